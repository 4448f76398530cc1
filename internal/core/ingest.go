package core

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// IngestService drives one ingestion run: page through the mailbox,
// filter, dedup, extract and persist each message in sequence. One bad
// message never aborts the run; only authentication failures do.
type IngestService struct {
	source      MailSource
	filter      MessageFilter
	extractor   Extractor
	store       Store
	logger      *zap.Logger
	maxMessages int
	maxRetries  int
	backoff     time.Duration
	callTimeout time.Duration
}

// NewIngestService creates a new ingestion service
func NewIngestService(
	source MailSource,
	filter MessageFilter,
	extractor Extractor,
	store Store,
	logger *zap.Logger,
	maxMessages int,
	maxRetries int,
	backoff time.Duration,
	callTimeout time.Duration,
) *IngestService {
	return &IngestService{
		source:      source,
		filter:      filter,
		extractor:   extractor,
		store:       store,
		logger:      logger,
		maxMessages: maxMessages,
		maxRetries:  maxRetries,
		backoff:     backoff,
		callTimeout: callTimeout,
	}
}

// callCtx bounds a single upstream call. A zero timeout disables the
// bound, which the tests rely on.
func (s *IngestService) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.callTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.callTimeout)
}

// Run executes a single ingestion pass and returns its statistics.
// The returned error is non-nil only for run-aborting conditions
// (cancelled context, authentication failure, unreachable listing);
// per-message failures are counted in RunStats.Failed instead.
func (s *IngestService) Run(ctx context.Context) (*RunStats, error) {
	stats := &RunStats{}
	start := time.Now()
	pageToken := ""

	for stats.Fetched < s.maxMessages {
		var page *MessagePage
		err := withRetry(ctx, s.maxRetries, s.backoff, func() error {
			callCtx, cancel := s.callCtx(ctx)
			defer cancel()
			var fetchErr error
			page, fetchErr = s.source.FetchPage(callCtx, pageToken, s.maxMessages-stats.Fetched)
			return fetchErr
		})
		if err != nil {
			var authErr *AuthError
			if errors.As(err, &authErr) {
				s.logger.Error("Aborting run: mailbox credentials rejected", zap.Error(err))
			} else {
				s.logger.Error("Failed to list messages after retries", zap.Error(err))
			}
			// Aborted runs still report what they got through.
			s.logRunSummary(stats, start)
			return stats, err
		}

		for i := range page.Messages {
			// Cancellation is honored only at the message boundary;
			// an in-flight extraction or persistence completes first.
			select {
			case <-ctx.Done():
				s.logRunSummary(stats, start)
				return stats, ctx.Err()
			default:
			}

			if stats.Fetched >= s.maxMessages {
				break
			}
			stats.Fetched++

			msg := &page.Messages[i]
			if err := s.processMessage(ctx, msg, stats); err != nil {
				var authErr *AuthError
				if errors.As(err, &authErr) {
					s.logRunSummary(stats, start)
					return stats, err
				}
				stats.Failed++
				s.logger.Warn("Message failed, continuing run",
					zap.String("message_id", msg.ID),
					zap.Error(err))
			}
		}

		pageToken = page.NextPageToken
		if pageToken == "" {
			break
		}
	}

	s.logRunSummary(stats, start)
	return stats, nil
}

// processMessage runs one message through the filter, ledger,
// extraction and persistence stages
func (s *IngestService) processMessage(ctx context.Context, msg *Message, stats *RunStats) error {
	if s.filter != nil && s.filter.IsBlacklisted(msg) {
		stats.SkippedBlacklisted++
		s.logger.Debug("Skipping blacklisted message",
			zap.String("message_id", msg.ID),
			zap.String("subject", msg.Subject))
		return nil
	}

	known, err := s.store.HasMessage(ctx, msg.ID)
	if err != nil {
		return &PersistenceError{Err: err}
	}
	if known {
		stats.SkippedDuplicate++
		s.logger.Debug("Skipping already-ingested message", zap.String("message_id", msg.ID))
		return nil
	}

	var records []ApplicationRecord
	err = withRetry(ctx, s.maxRetries, s.backoff, func() error {
		callCtx, cancel := s.callCtx(ctx)
		defer cancel()
		var extractErr error
		records, extractErr = s.extractor.ExtractApplications(callCtx, msg)
		return extractErr
	})
	if err != nil {
		// Not marked known, so the message stays eligible next run.
		return err
	}

	// Persistence gets a single retry: the transaction is atomic, so a
	// failed first attempt leaves nothing behind.
	err = withRetry(ctx, 2, s.backoff, func() error {
		callCtx, cancel := s.callCtx(ctx)
		defer cancel()
		if saveErr := s.store.SaveMessage(callCtx, msg, records); saveErr != nil {
			return &PersistenceError{Err: saveErr}
		}
		return nil
	})
	if err != nil {
		return err
	}

	stats.Extracted++
	stats.Records += len(records)
	s.logger.Info("Ingested message",
		zap.String("message_id", msg.ID),
		zap.String("sender", msg.Sender),
		zap.Int("applications", len(records)))
	return nil
}

func (s *IngestService) logRunSummary(stats *RunStats, start time.Time) {
	s.logger.Info("Ingestion run finished",
		zap.Int("fetched", stats.Fetched),
		zap.Int("skipped_blacklisted", stats.SkippedBlacklisted),
		zap.Int("skipped_duplicate", stats.SkippedDuplicate),
		zap.Int("extracted", stats.Extracted),
		zap.Int("records", stats.Records),
		zap.Int("failed", stats.Failed),
		zap.Duration("elapsed", time.Since(start)))
}
