package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"github.com/mikey/jobmail/internal/core"
)

// MySQLStore is the MySQL implementation of the Store interface, for
// deployments that already run a shared database
type MySQLStore struct {
	db     *sql.DB
	logger *zap.Logger
}

var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS messages (
		id VARCHAR(255) PRIMARY KEY,
		sender TEXT,
		subject TEXT,
		received_at TIMESTAMP NULL,
		raw_date TEXT,
		body MEDIUMTEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS applications (
		id INT AUTO_INCREMENT PRIMARY KEY,
		message_id VARCHAR(255) NOT NULL,
		company TEXT,
		title TEXT,
		status VARCHAR(50),
		applied_at VARCHAR(100),
		reason TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		INDEX idx_applications_message_id (message_id),
		INDEX idx_applications_status (status),
		FOREIGN KEY (message_id) REFERENCES messages(id) ON DELETE CASCADE
	)`,
}

// NewMySQLStore opens (and lazily migrates) a MySQL database
func NewMySQLStore(dsn string, logger *zap.Logger) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to MySQL: %w", err)
	}

	for _, stmt := range mysqlSchema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to initialize schema: %w", err)
		}
	}

	return &MySQLStore{db: db, logger: logger}, nil
}

// HasMessage reports whether the message ID is already known
func (s *MySQLStore) HasMessage(ctx context.Context, messageID string) (bool, error) {
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
// application rows in one transaction
func (s *MySQLStore) SaveMessage(ctx context.Context, msg *core.Message, records []core.ApplicationRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// DATETIME carries no offset, so received_at is normalized to UTC
	// before formatting.
	_, err = tx.ExecContext(ctx, `
		INSERT INTO messages (id, sender, subject, received_at, raw_date, body)
		VALUES (?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			sender = VALUES(sender),
			subject = VALUES(subject),
			received_at = VALUES(received_at),
			raw_date = VALUES(raw_date),
			body = VALUES(body)
	`, msg.ID, msg.Sender, msg.Subject, msg.ReceivedAt.UTC().Format(time.DateTime), msg.RawDate, msg.Body)
	if err != nil {
		return fmt.Errorf("failed to upsert message: %w", err)
	}

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
func (s *MySQLStore) ListApplications(ctx context.Context, q core.ApplicationQuery) ([]core.ApplicationRow, error) {
	where, args := buildApplicationFilter(q)
	var orderBy string
	switch q.SortBy {
	case "company":
		orderBy = "LOWER(a.company) ASC, m.received_at DESC"
	case "status":
		orderBy = "COALESCE(NULLIF(a.status, ''), 'unknown') ASC, m.received_at DESC"
	default:
		orderBy = "m.received_at DESC"
	}
	query := `
		SELECT a.message_id, a.company, a.title,
		       COALESCE(NULLIF(a.status, ''), 'unknown') AS status,
		       a.applied_at, COALESCE(m.raw_date, '')
		FROM applications a
		JOIN messages m ON a.message_id = m.id
		` + where + `
		ORDER BY ` + orderBy + `
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
func (s *MySQLStore) CountByStatus(ctx context.Context) (map[core.ApplicationStatus]int, error) {
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
func (s *MySQLStore) Close() error {
	return s.db.Close()
}
