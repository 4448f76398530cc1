package core

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// AuthError indicates expired or invalid mailbox credentials. It is
// not retryable within a run and aborts the ingestion loop.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("mailbox authentication failed: %v", e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// TransientFetchError indicates a rate-limit or network failure while
// talking to the mailbox provider. Callers retry with backoff.
type TransientFetchError struct {
	Err error
}

func (e *TransientFetchError) Error() string {
	return fmt.Sprintf("transient fetch failure: %v", e.Err)
}

func (e *TransientFetchError) Unwrap() error { return e.Err }

// ExtractionError indicates a model or transport failure during
// extraction (timeout, malformed response envelope, quota). Retried a
// bounded number of times; exhaustion degrades to skip-for-this-run.
type ExtractionError struct {
	Err error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction failed: %v", e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// PersistenceError indicates a store write failure. Retried once;
// the message stays eligible because it is never marked known until
// the transaction commits.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failed: %v", e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// IsRetryable reports whether the error class permits another attempt
// within the current run.
func IsRetryable(err error) bool {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return false
	}
	var fetchErr *TransientFetchError
	var extractErr *ExtractionError
	var persistErr *PersistenceError
	return errors.As(err, &fetchErr) || errors.As(err, &extractErr) || errors.As(err, &persistErr)
}

// withRetry runs fn up to attempts times, sleeping backoff, 2*backoff,
// 4*backoff... between tries. Non-retryable errors and context
// cancellation stop immediately.
func withRetry(ctx context.Context, attempts int, backoff time.Duration, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if !IsRetryable(err) || i == attempts-1 {
			return err
		}
		select {
		case <-time.After(backoff << uint(i)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}
