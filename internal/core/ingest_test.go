package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type fakeSource struct {
	pages   []MessagePage
	calls   int
	limits  []int
	failErr error
}

func (f *fakeSource) FetchPage(ctx context.Context, pageToken string, limit int) (*MessagePage, error) {
	f.calls++
	f.limits = append(f.limits, limit)
	if f.failErr != nil {
		return nil, f.failErr
	}
	idx := 0
	if pageToken != "" {
		fmt.Sscanf(pageToken, "page-%d", &idx)
	}
	if idx >= len(f.pages) {
		return &MessagePage{}, nil
	}
	page := f.pages[idx]
	if idx+1 < len(f.pages) {
		page.NextPageToken = fmt.Sprintf("page-%d", idx+1)
	}
	return &page, nil
}

type fakeExtractor struct {
	records  map[string][]ApplicationRecord
	errs     map[string]error
	seen     []string
	failures int
}

func (f *fakeExtractor) ExtractApplications(ctx context.Context, msg *Message) ([]ApplicationRecord, error) {
	f.seen = append(f.seen, msg.ID)
	if err, ok := f.errs[msg.ID]; ok {
		f.failures++
		return nil, err
	}
	return f.records[msg.ID], nil
}

type fakeStore struct {
	mu       sync.Mutex
	messages map[string]*Message
	children map[string][]ApplicationRecord
	saveErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		messages: make(map[string]*Message),
		children: make(map[string][]ApplicationRecord),
	}
}

func (f *fakeStore) HasMessage(ctx context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.messages[id]
	return ok, nil
}

func (f *fakeStore) SaveMessage(ctx context.Context, msg *Message, records []ApplicationRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.messages[msg.ID] = msg
	f.children[msg.ID] = records
	return nil
}

func (f *fakeStore) ListApplications(ctx context.Context, q ApplicationQuery) ([]ApplicationRow, error) {
	return nil, nil
}

func (f *fakeStore) CountByStatus(ctx context.Context) (map[ApplicationStatus]int, error) {
	return nil, nil
}

func (f *fakeStore) Close() error { return nil }

type termFilter struct{ terms []string }

func (t termFilter) IsBlacklisted(msg *Message) bool {
	haystack := strings.ToLower(msg.Subject + " " + msg.Sender + " " + msg.Body)
	for _, term := range t.terms {
		if strings.Contains(haystack, term) {
			return true
		}
	}
	return false
}

func newTestService(src MailSource, filter MessageFilter, ext Extractor, store Store, cap int) *IngestService {
	return NewIngestService(src, filter, ext, store, zap.NewNop(), cap, 3, time.Millisecond, 0)
}

func TestRunScenario(t *testing.T) {
	// Three messages: one blacklisted, one already known, one new email
	// mentioning two companies.
	src := &fakeSource{pages: []MessagePage{{
		Messages: []Message{
			{ID: "m1", Subject: "Your rental application was received"},
			{ID: "m2", Subject: "Interview at Initech"},
			{ID: "m3", Subject: "Application updates", Body: "Acme and Globex"},
		},
	}}}
	ext := &fakeExtractor{records: map[string][]ApplicationRecord{
		"m3": {
			{Company: "Acme", Title: "SWE", Status: StatusApplied},
			{Company: "Globex", Title: "SRE", Status: StatusInterview},
		},
	}}
	store := newFakeStore()
	store.messages["m2"] = &Message{ID: "m2"}

	svc := newTestService(src, termFilter{[]string{"rental"}}, ext, store, 100)
	stats, err := svc.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, stats.Fetched)
	assert.Equal(t, 1, stats.SkippedBlacklisted)
	assert.Equal(t, 1, stats.SkippedDuplicate)
	assert.Equal(t, 1, stats.Extracted)
	assert.Equal(t, 2, stats.Records)
	assert.Equal(t, 0, stats.Failed)

	assert.Len(t, store.children["m3"], 2)
	// Neither the blacklisted nor the duplicate message reached the
	// extractor.
	assert.Equal(t, []string{"m3"}, ext.seen)
}

func TestRunIdempotent(t *testing.T) {
	src := &fakeSource{pages: []MessagePage{{
		Messages: []Message{{ID: "m1", Subject: "Offer from Acme"}},
	}}}
	ext := &fakeExtractor{records: map[string][]ApplicationRecord{
		"m1": {{Company: "Acme", Status: StatusOffer}},
	}}
	store := newFakeStore()
	svc := newTestService(src, nil, ext, store, 100)

	_, err := svc.Run(context.Background())
	require.NoError(t, err)
	stats, err := svc.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, stats.SkippedDuplicate)
	assert.Equal(t, 0, stats.Extracted)
	assert.Len(t, store.messages, 1)
	// The extractor ran exactly once across both runs.
	assert.Equal(t, []string{"m1"}, ext.seen)
}

func TestRunFetchCap(t *testing.T) {
	var msgs []Message
	for i := 0; i < 10; i++ {
		msgs = append(msgs, Message{ID: fmt.Sprintf("m%d", i)})
	}
	src := &fakeSource{pages: []MessagePage{
		{Messages: msgs[:5]},
		{Messages: msgs[5:]},
	}}
	ext := &fakeExtractor{}
	store := newFakeStore()
	svc := newTestService(src, nil, ext, store, 7)

	stats, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, stats.Fetched)

	// The source is told how much budget is left so it can bound its
	// list call instead of resolving a full page.
	assert.Equal(t, []int{7, 2}, src.limits)
}

func TestRunExtractionFailureSkipsMessage(t *testing.T) {
	src := &fakeSource{pages: []MessagePage{{
		Messages: []Message{
			{ID: "bad"},
			{ID: "good"},
		},
	}}}
	ext := &fakeExtractor{
		records: map[string][]ApplicationRecord{
			"good": {{Company: "Acme", Status: StatusApplied}},
		},
		errs: map[string]error{
			"bad": &ExtractionError{Err: errors.New("model timeout")},
		},
	}
	store := newFakeStore()
	svc := newTestService(src, nil, ext, store, 100)

	stats, err := svc.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 1, stats.Extracted)
	// Retried up to the bound before giving up.
	assert.Equal(t, 3, ext.failures)
	// The failed message is not marked known, so it stays eligible.
	known, _ := store.HasMessage(context.Background(), "bad")
	assert.False(t, known)
	known, _ = store.HasMessage(context.Background(), "good")
	assert.True(t, known)
}

func TestRunAbortsOnAuthError(t *testing.T) {
	src := &fakeSource{failErr: &AuthError{Err: errors.New("token expired")}}
	svc := newTestService(src, nil, &fakeExtractor{}, newFakeStore(), 100)

	_, err := svc.Run(context.Background())
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	// Auth errors are not retried.
	assert.Equal(t, 1, src.calls)
}

func TestRunRetriesTransientListFailures(t *testing.T) {
	src := &fakeSource{failErr: &TransientFetchError{Err: errors.New("rate limited")}}
	svc := newTestService(src, nil, &fakeExtractor{}, newFakeStore(), 100)

	_, err := svc.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, 3, src.calls)
}

func TestRunLogsSummaryOnAbortedRun(t *testing.T) {
	// Failed and aborted runs still emit the end-of-run stats line.
	for name, failErr := range map[string]error{
		"listing exhausted": &TransientFetchError{Err: errors.New("rate limited")},
		"auth rejected":     &AuthError{Err: errors.New("token expired")},
	} {
		t.Run(name, func(t *testing.T) {
			obs, logs := observer.New(zap.InfoLevel)
			src := &fakeSource{failErr: failErr}
			svc := NewIngestService(src, nil, &fakeExtractor{}, newFakeStore(),
				zap.New(obs), 100, 3, time.Millisecond, 0)

			_, err := svc.Run(context.Background())
			require.Error(t, err)
			assert.Equal(t, 1, logs.FilterMessage("Ingestion run finished").Len())
		})
	}
}

func TestRunPersistenceFailureKeepsMessageEligible(t *testing.T) {
	src := &fakeSource{pages: []MessagePage{{
		Messages: []Message{{ID: "m1"}},
	}}}
	ext := &fakeExtractor{records: map[string][]ApplicationRecord{
		"m1": {{Company: "Acme", Status: StatusApplied}},
	}}
	store := newFakeStore()
	store.saveErr = errors.New("disk full")
	svc := newTestService(src, nil, ext, store, 100)

	stats, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Failed)
	assert.Empty(t, store.messages)
}

func TestRunHonorsCancellationAtMessageBoundary(t *testing.T) {
	src := &fakeSource{pages: []MessagePage{{
		Messages: []Message{{ID: "m1"}, {ID: "m2"}},
	}}}
	ctx, cancel := context.WithCancel(context.Background())
	ext := &fakeExtractor{records: map[string][]ApplicationRecord{}}
	store := newFakeStore()
	svc := newTestService(src, nil, ext, store, 100)

	cancel()
	stats, err := svc.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, stats.Fetched)
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, IsRetryable(&AuthError{Err: errors.New("x")}))
	assert.True(t, IsRetryable(&TransientFetchError{Err: errors.New("x")}))
	assert.True(t, IsRetryable(&ExtractionError{Err: errors.New("x")}))
	assert.True(t, IsRetryable(&PersistenceError{Err: errors.New("x")}))
	assert.False(t, IsRetryable(errors.New("plain")))
	// Wrapped classes are still recognized.
	wrapped := fmt.Errorf("listing: %w", &TransientFetchError{Err: errors.New("x")})
	assert.True(t, IsRetryable(wrapped))
}

func TestNormalizeStatus(t *testing.T) {
	cases := map[string]ApplicationStatus{
		"applied":              StatusApplied,
		"Application Received": StatusApplied,
		" SUBMITTED ":          StatusApplied,
		"interview invite":     StatusInterview,
		"offer":                StatusOffer,
		"Rejection":            StatusRejected,
		"not selected":         StatusRejected,
		"other":                StatusUnknown,
		"":                     StatusUnknown,
		"circus performer":     StatusUnknown,
	}
	for raw, want := range cases {
		assert.Equal(t, want, NormalizeStatus(raw), "raw=%q", raw)
	}
}
