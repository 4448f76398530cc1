// Package extract turns free-form language model output into
// structured application records. Model output is treated as an
// untrusted external format: a strict JSON parse is attempted first,
// then a brace-slice recovery, then a lenient line scan. Nothing in
// here ever fails a message; unusable output yields zero records.
package extract

import (
	"encoding/json"
	"strings"

	"github.com/mikey/jobmail/internal/core"
)

// modelResponse mirrors the JSON shape the prompt asks for. The flat
// company/job_title/status fields accept the legacy single-application
// shape older prompts produced.
type modelResponse struct {
	Relevant     *bool              `json:"relevant"`
	Reason       string             `json:"reason"`
	Applications []modelApplication `json:"applications"`

	Company  string `json:"company"`
	JobTitle string `json:"job_title"`
	Status   string `json:"status"`
	Date     string `json:"date"`
}

type modelApplication struct {
	Company  string `json:"company"`
	JobTitle string `json:"job_title"`
	Status   string `json:"status"`
	Date     string `json:"date"`
}

// ParseRecords extracts zero or more application records from raw
// model output. It never returns an error: absence of signal is a
// valid outcome, and transport-level failures are the caller's
// concern, not the parser's.
func ParseRecords(text string) []core.ApplicationRecord {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var resp modelResponse
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		// The model often wraps the object in prose or a code fence;
		// slice from the first '{' to the last '}' and retry.
		start := strings.Index(text, "{")
		end := strings.LastIndex(text, "}")
		if start == -1 || end <= start {
			return recordsFromLines(text)
		}
		if err := json.Unmarshal([]byte(text[start:end+1]), &resp); err != nil {
			return recordsFromLines(text)
		}
	}

	return recordsFromResponse(&resp)
}

func recordsFromResponse(resp *modelResponse) []core.ApplicationRecord {
	if resp.Relevant != nil && !*resp.Relevant {
		return nil
	}

	var records []core.ApplicationRecord
	if len(resp.Applications) > 0 {
		for _, app := range resp.Applications {
			records = append(records, core.ApplicationRecord{
				Company:   strings.TrimSpace(app.Company),
				Title:     strings.TrimSpace(app.JobTitle),
				Status:    core.NormalizeStatus(app.Status),
				AppliedAt: strings.TrimSpace(app.Date),
				Reason:    strings.TrimSpace(resp.Reason),
			})
		}
	} else {
		records = append(records, core.ApplicationRecord{
			Company:   strings.TrimSpace(resp.Company),
			Title:     strings.TrimSpace(resp.JobTitle),
			Status:    core.NormalizeStatus(resp.Status),
			AppliedAt: strings.TrimSpace(resp.Date),
			Reason:    strings.TrimSpace(resp.Reason),
		})
	}

	kept := records[:0]
	for _, r := range records {
		if !r.IsBlank() {
			kept = append(kept, r)
		}
	}
	if len(kept) == 0 {
		return nil
	}
	return kept
}

// recordsFromLines is the last-resort heuristic: scan for key: value
// lines and assemble at most one record from them.
func recordsFromLines(text string) []core.ApplicationRecord {
	var record core.ApplicationRecord
	relevant := true

	for _, line := range strings.Split(text, "\n") {
		line = strings.Trim(strings.TrimSpace(line), "-* ")
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		value = strings.Trim(strings.TrimSpace(value), `"',`)
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "relevant":
			relevant = !strings.EqualFold(value, "false")
		case "company":
			record.Company = value
		case "job_title", "job title", "title", "role", "position":
			record.Title = value
		case "status":
			record.Status = core.NormalizeStatus(value)
		case "date":
			record.AppliedAt = value
		case "reason":
			record.Reason = value
		}
	}

	if !relevant || record.IsBlank() {
		return nil
	}
	if record.Status == "" {
		record.Status = core.StatusUnknown
	}
	return []core.ApplicationRecord{record}
}
