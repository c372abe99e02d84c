package driven

import (
	"context"

	"github.com/ericfisherdev/keyhold/internal/domain/model"
)

// AuditLog defines the driven port for the append-only mutation journal.
type AuditLog interface {
	Record(ctx context.Context, entry model.AuditEntry) error

	// Recent returns at most limit entries, newest first.
	Recent(ctx context.Context, limit int) ([]model.AuditEntry, error)
}
