package core

import (
	"strings"
	"time"
)

// Message represents one ingested mailbox item, keyed by the
// provider-assigned message ID
type Message struct {
	ID         string
	Sender     string
	Subject    string
	ReceivedAt time.Time
	// RawDate keeps the original Date header for display; ReceivedAt
	// is the parsed form used for sorting
	RawDate string
	Body    string
}

// ApplicationStatus is the closed set of recognized application states
type ApplicationStatus string

const (
	StatusApplied   ApplicationStatus = "applied"
	StatusInterview ApplicationStatus = "interview"
	StatusOffer     ApplicationStatus = "offer"
	StatusRejected  ApplicationStatus = "rejected"
	StatusUnknown   ApplicationStatus = "unknown"
)

// statusVariants maps the free-form status spellings the model emits
// to the canonical buckets
var statusVariants = map[string]ApplicationStatus{
	"applied":               StatusApplied,
	"applied for":           StatusApplied,
	"application received":  StatusApplied,
	"application submitted": StatusApplied,
	"submitted":             StatusApplied,
	"interview":             StatusInterview,
	"interview invite":      StatusInterview,
	"interview scheduled":   StatusInterview,
	"scheduled interview":   StatusInterview,
	"offer":                 StatusOffer,
	"rejection":             StatusRejected,
	"rejected":              StatusRejected,
	"declined":              StatusRejected,
	"not selected":          StatusRejected,
	"other":                 StatusUnknown,
	"":                      StatusUnknown,
}

// NormalizeStatus maps a raw model-emitted status string to the
// canonical enumeration. Unrecognized values become StatusUnknown
// rather than an error.
func NormalizeStatus(raw string) ApplicationStatus {
	if status, ok := statusVariants[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return status
	}
	return StatusUnknown
}

// ApplicationRecord is one extracted job-application mention. A single
// email may produce several records, each linked to its source message.
type ApplicationRecord struct {
	Company   string
	Title     string
	Status    ApplicationStatus
	AppliedAt string
	// Reason is the model's short justification, kept for audit
	Reason string
}

// IsBlank reports whether the record carries no usable signal. Blank
// records are dropped instead of persisted so the dashboard never has
// to hide rows full of nulls.
func (r ApplicationRecord) IsBlank() bool {
	return strings.TrimSpace(r.Company) == "" && strings.TrimSpace(r.Title) == ""
}

// MessagePage is one page of listed messages plus the token for the
// next page. An empty NextPageToken means the listing is exhausted.
type MessagePage struct {
	Messages      []Message
	NextPageToken string
}

// RunStats holds the per-invocation counters reported at end of run.
// They are never persisted.
type RunStats struct {
	Fetched            int
	SkippedBlacklisted int
	SkippedDuplicate   int
	Extracted          int
	Records            int
	Failed             int
}
