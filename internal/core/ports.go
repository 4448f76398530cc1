package core

import (
	"context"
)

// MailSource defines the interface for pulling messages out of the
// mailbox provider. Implementations are read-only against the mailbox.
type MailSource interface {
	// FetchPage returns the next page of messages matching the
	// configured query. An empty pageToken requests the first page;
	// an empty NextPageToken on the result means exhaustion. limit is
	// the caller's remaining fetch budget; implementations may return
	// fewer messages but should not resolve more than limit of them
	// (zero or negative means no bound beyond the provider page size).
	FetchPage(ctx context.Context, pageToken string, limit int) (*MessagePage, error)
}

// Extractor defines the interface for turning message content into
// structured application records via a language model
type Extractor interface {
	// ExtractApplications returns zero or more records for the
	// message. An empty slice is a valid outcome, not a failure.
	ExtractApplications(ctx context.Context, msg *Message) ([]ApplicationRecord, error)
}

// MessageFilter rejects messages before they reach extraction
type MessageFilter interface {
	// IsBlacklisted reports whether any configured term matches the
	// message
	IsBlacklisted(msg *Message) bool
}

// ApplicationQuery narrows and orders the dashboard read surface
type ApplicationQuery struct {
	Status          ApplicationStatus
	ExcludeStatuses []ApplicationStatus
	HideUnknown     bool
	// SortBy is one of "date", "company", "status"; date descending
	// is the default
	SortBy string
	Limit  int
	Offset int
}

// ApplicationRow is one joined row returned to the dashboard
type ApplicationRow struct {
	MessageID string
	Company   string
	Title     string
	Status    ApplicationStatus
	AppliedAt string
	EmailDate string
}

// Store defines the persistence interface. The messages table's unique
// primary key doubles as the dedup ledger.
type Store interface {
	// HasMessage reports whether the message ID is already known
	HasMessage(ctx context.Context, messageID string) (bool, error)

	// SaveMessage upserts the message row and replaces its child
	// application rows in a single transaction
	SaveMessage(ctx context.Context, msg *Message, records []ApplicationRecord) error

	// ListApplications is the read-only query surface consumed by the
	// dashboard
	ListApplications(ctx context.Context, q ApplicationQuery) ([]ApplicationRow, error)

	// CountByStatus returns per-status totals for the dashboard
	CountByStatus(ctx context.Context) (map[ApplicationStatus]int, error)

	Close() error
}
