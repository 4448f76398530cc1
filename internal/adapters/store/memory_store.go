package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/mikey/jobmail/internal/core"
)

// MemoryStore is an in-memory implementation of the Store interface,
// used for tests and throwaway development runs. Nothing survives the
// process.
type MemoryStore struct {
	mu       sync.RWMutex
	messages map[string]core.Message
	children map[string][]core.ApplicationRecord
	logger   *zap.Logger

	// failNextSave forces the next SaveMessage to fail without
	// writing anything, for failure-injection tests
	failNextSave error
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore(logger *zap.Logger) *MemoryStore {
	return &MemoryStore{
		messages: make(map[string]core.Message),
		children: make(map[string][]core.ApplicationRecord),
		logger:   logger,
	}
}

// FailNextSave makes the next SaveMessage return err and write nothing
func (s *MemoryStore) FailNextSave(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNextSave = err
}

// HasMessage reports whether the message ID is already known
func (s *MemoryStore) HasMessage(ctx context.Context, messageID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.messages[messageID]
	return ok, nil
}

// SaveMessage stores the message and replaces its child records.
// Writes happen under one lock so readers never observe a message
// without its records.
func (s *MemoryStore) SaveMessage(ctx context.Context, msg *core.Message, records []core.ApplicationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNextSave != nil {
		err := s.failNextSave
		s.failNextSave = nil
		return err
	}
	s.messages[msg.ID] = *msg
	s.children[msg.ID] = append([]core.ApplicationRecord(nil), records...)
	return nil
}

// ListApplications is the read-only query surface backing the
// dashboard
func (s *MemoryStore) ListApplications(ctx context.Context, q core.ApplicationQuery) ([]core.ApplicationRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	excluded := make(map[core.ApplicationStatus]bool, len(q.ExcludeStatuses))
	for _, status := range q.ExcludeStatuses {
		excluded[status] = true
	}

	var out []core.ApplicationRow
	for id, records := range s.children {
		msg := s.messages[id]
		for _, r := range records {
			status := r.Status
			if status == "" {
				status = core.StatusUnknown
			}
			if q.Status != "" && status != q.Status {
				continue
			}
			if excluded[status] {
				continue
			}
			if q.HideUnknown && status == core.StatusUnknown {
				continue
			}
			out = append(out, core.ApplicationRow{
				MessageID: id,
				Company:   r.Company,
				Title:     r.Title,
				Status:    status,
				AppliedAt: r.AppliedAt,
				EmailDate: msg.RawDate,
			})
		}
	}

	switch q.SortBy {
	case "company":
		sort.SliceStable(out, func(i, j int) bool {
			return strings.ToLower(out[i].Company) < strings.ToLower(out[j].Company)
		})
	case "status":
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].Status < out[j].Status
		})
	default:
		sort.SliceStable(out, func(i, j int) bool {
			mi := s.messages[out[i].MessageID]
			mj := s.messages[out[j].MessageID]
			return mi.ReceivedAt.After(mj.ReceivedAt)
		})
	}

	offset := q.Offset
	if offset > len(out) {
		offset = len(out)
	}
	out = out[offset:]
	if limit := applicationLimit(q.Limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// CountByStatus returns per-status totals
func (s *MemoryStore) CountByStatus(ctx context.Context) (map[core.ApplicationStatus]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[core.ApplicationStatus]int)
	for _, records := range s.children {
		for _, r := range records {
			status := r.Status
			if status == "" {
				status = core.StatusUnknown
			}
			counts[status]++
		}
	}
	return counts, nil
}

// Close is a no-op for the in-memory store
func (s *MemoryStore) Close() error {
	return nil
}
