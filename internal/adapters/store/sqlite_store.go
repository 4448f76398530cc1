package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/mikey/jobmail/internal/core"
)

// SQLiteStore is the SQLite implementation of the Store interface and
// the default persistence backend
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		sender TEXT,
		subject TEXT,
		received_at TIMESTAMP,
		raw_date TEXT,
		body TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS applications (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		message_id TEXT NOT NULL,
		company TEXT,
		title TEXT,
		status TEXT,
		applied_at TEXT,
		reason TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY(message_id) REFERENCES messages(id) ON DELETE CASCADE
	)`,
	`CREATE INDEX IF NOT EXISTS idx_applications_message_id ON applications(message_id)`,
	`CREATE INDEX IF NOT EXISTS idx_applications_status ON applications(status)`,
}

// NewSQLiteStore opens (and lazily migrates) a SQLite database
func NewSQLiteStore(dbPath string, logger *zap.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	for _, stmt := range sqliteSchema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to initialize schema: %w", err)
		}
	}

	return &SQLiteStore{db: db, logger: logger}, nil
}

// HasMessage reports whether the message ID is already known. This is
// the dedup ledger read.
func (s *SQLiteStore) HasMessage(ctx context.Context, messageID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM messages WHERE id = ?`, messageID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query messages: %w", err)
	}
	return true, nil
}

// SaveMessage upserts the message row and replaces its child
// application rows in one transaction. Either everything commits or
// nothing does, so a crashed run never leaves a message marked known
// with its records missing.
func (s *SQLiteStore) SaveMessage(ctx context.Context, msg *core.Message, records []core.ApplicationRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// received_at is stored in UTC so lexicographic order matches
	// instant order for the date sort.
	_, err = tx.ExecContext(ctx, `
		INSERT INTO messages (id, sender, subject, received_at, raw_date, body)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			sender = excluded.sender,
			subject = excluded.subject,
			received_at = excluded.received_at,
			raw_date = excluded.raw_date,
			body = excluded.body
	`, msg.ID, msg.Sender, msg.Subject, msg.ReceivedAt.UTC().Format(time.RFC3339), msg.RawDate, msg.Body)
	if err != nil {
		return fmt.Errorf("failed to upsert message: %w", err)
	}

	// Replace semantics: reprocessing a known message must not
	// accumulate duplicate child rows.
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM applications WHERE message_id = ?`, msg.ID); err != nil {
		return fmt.Errorf("failed to clear application rows: %w", err)
	}
	for _, r := range records {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO applications (message_id, company, title, status, applied_at, reason)
			VALUES (?, ?, ?, ?, ?, ?)
		`, msg.ID, r.Company, r.Title, string(r.Status), r.AppliedAt, r.Reason)
		if err != nil {
			return fmt.Errorf("failed to insert application row: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ListApplications is the read-only query surface backing the
// dashboard
func (s *SQLiteStore) ListApplications(ctx context.Context, q core.ApplicationQuery) ([]core.ApplicationRow, error) {
	where, args := buildApplicationFilter(q)
	query := `
		SELECT a.message_id, a.company, a.title,
		       COALESCE(NULLIF(a.status, ''), 'unknown') AS status,
		       a.applied_at, COALESCE(m.raw_date, '')
		FROM applications a
		JOIN messages m ON a.message_id = m.id
		` + where + `
		ORDER BY ` + applicationSort(q.SortBy) + `
		LIMIT ? OFFSET ?`
	args = append(args, applicationLimit(q.Limit), q.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query applications: %w", err)
	}
	defer rows.Close()

	var out []core.ApplicationRow
	for rows.Next() {
		var row core.ApplicationRow
		var status string
		if err := rows.Scan(&row.MessageID, &row.Company, &row.Title, &status, &row.AppliedAt, &row.EmailDate); err != nil {
			return nil, fmt.Errorf("failed to scan application row: %w", err)
		}
		row.Status = core.ApplicationStatus(status)
		out = append(out, row)
	}
	return out, rows.Err()
}

// CountByStatus returns per-status totals
func (s *SQLiteStore) CountByStatus(ctx context.Context) (map[core.ApplicationStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT COALESCE(NULLIF(status, ''), 'unknown') AS status, COUNT(*)
		FROM applications
		GROUP BY 1
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to count applications: %w", err)
	}
	defer rows.Close()

	counts := make(map[core.ApplicationStatus]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan count row: %w", err)
		}
		counts[core.ApplicationStatus(status)] = count
	}
	return counts, rows.Err()
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// buildApplicationFilter renders the shared WHERE clause for the
// dashboard query. Placeholders are `?` in both supported dialects.
func buildApplicationFilter(q core.ApplicationQuery) (string, []any) {
	statusExpr := `COALESCE(NULLIF(a.status, ''), 'unknown')`
	var clauses []string
	var args []any

	if q.Status != "" {
		clauses = append(clauses, statusExpr+" = ?")
		args = append(args, string(q.Status))
	}
	if len(q.ExcludeStatuses) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(q.ExcludeStatuses)), ",")
		clauses = append(clauses, statusExpr+" NOT IN ("+placeholders+")")
		for _, status := range q.ExcludeStatuses {
			args = append(args, string(status))
		}
	}
	if q.HideUnknown {
		clauses = append(clauses, statusExpr+" <> 'unknown'")
	}

	if len(clauses) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(clauses, " AND "), args
}

func applicationSort(sortBy string) string {
	switch sortBy {
	case "company":
		return "a.company COLLATE NOCASE ASC, m.received_at DESC"
	case "status":
		return "COALESCE(NULLIF(a.status, ''), 'unknown') ASC, m.received_at DESC"
	default:
		return "m.received_at DESC"
	}
}

func applicationLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	return limit
}
