package model

import "time"

// AuditAction identifies the kind of mutation recorded in the audit journal.
type AuditAction string

const (
	AuditActionCreate AuditAction = "create"
	AuditActionUpdate AuditAction = "update"
	AuditActionDelete AuditAction = "delete"
)

// AuditEntry records one successful credential mutation. It never carries the
// secret value.
type AuditEntry struct {
	ID         int64
	Action     AuditAction
	RecordID   int64
	Name       string
	OccurredAt time.Time
}
