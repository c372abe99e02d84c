package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/ericfisherdev/keyhold/internal/domain/model"
	"github.com/ericfisherdev/keyhold/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.AuditLog = (*AuditRepo)(nil)

// AuditRepo is the SQLite implementation of the AuditLog port.
type AuditRepo struct {
	db *DB
}

// NewAuditRepo creates an AuditRepo backed by the given DB.
func NewAuditRepo(db *DB) *AuditRepo {
	return &AuditRepo{db: db}
}

// Record appends an entry to the journal. A zero OccurredAt is stamped with
// the current time.
func (r *AuditRepo) Record(ctx context.Context, entry model.AuditEntry) error {
	occurredAt := entry.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now()
	}

	const query = `INSERT INTO audit_log (action, record_id, name, occurred_at) VALUES (?, ?, ?, ?)`
	_, err := r.db.Writer.ExecContext(ctx, query,
		string(entry.Action),
		entry.RecordID,
		entry.Name,
		occurredAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record %s of credential %d: %w", entry.Action, entry.RecordID, err)
	}
	return nil
}

// Recent returns at most limit entries, newest first.
func (r *AuditRepo) Recent(ctx context.Context, limit int) ([]model.AuditEntry, error) {
	const query = `SELECT id, action, record_id, name, occurred_at FROM audit_log ORDER BY id DESC LIMIT ?`
	rows, err := r.db.Reader.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	entries := make([]model.AuditEntry, 0, limit)
	for rows.Next() {
		var (
			e          model.AuditEntry
			action     string
			occurredAt string
		)
		if err := rows.Scan(&e.ID, &action, &e.RecordID, &e.Name, &occurredAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.Action = model.AuditAction(action)
		e.OccurredAt, err = parseTime(occurredAt)
		if err != nil {
			return nil, fmt.Errorf("parse occurred_at for audit entry %d: %w", e.ID, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return entries, nil
}

// parseTime accepts the formats SQLite and this package write timestamps in.
func parseTime(s string) (time.Time, error) {
	formats := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05",
		"2006-01-02 15:04:05.000",
	}

	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time format: %s", s)
}
