package application

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ericfisherdev/keyhold/internal/domain/model"
	"github.com/ericfisherdev/keyhold/internal/domain/port/driven"
	"github.com/ericfisherdev/keyhold/internal/metrics"
)

// ErrAuditDisabled is returned by RecentAudit when no audit journal is configured.
var ErrAuditDisabled = errors.New("audit journal is disabled")

// CredentialService fronts the credential store for the HTTP API. After every
// persisted mutation it appends to the audit journal and updates metrics;
// journal failures are logged and never fail the mutation, which is already
// on disk by then.
type CredentialService struct {
	store   driven.CredentialStore
	audit   driven.AuditLog
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// NewCredentialService creates a CredentialService. audit and m may be nil.
func NewCredentialService(
	store driven.CredentialStore,
	audit driven.AuditLog,
	m *metrics.Metrics,
	logger *slog.Logger,
) *CredentialService {
	return &CredentialService{
		store:   store,
		audit:   audit,
		metrics: m,
		logger:  logger,
		now:     time.Now,
	}
}

// AuditEnabled reports whether mutations are being journaled.
func (s *CredentialService) AuditEnabled() bool {
	return s.audit != nil
}

// List returns all credentials in insertion order.
func (s *CredentialService) List(ctx context.Context) ([]model.Credential, error) {
	return s.store.List(ctx)
}

// Create stores a new credential.
func (s *CredentialService) Create(ctx context.Context, fields model.CredentialFields) (model.Credential, error) {
	cred, err := s.store.Create(ctx, fields)
	if err != nil {
		return model.Credential{}, err
	}

	s.afterMutation(ctx, model.AuditActionCreate, cred.ID, cred.Name)
	return cred, nil
}

// Update merges patch into an existing credential. Returns driven.ErrNotFound
// for an unknown id.
func (s *CredentialService) Update(ctx context.Context, id int64, patch model.CredentialPatch) (model.Credential, error) {
	cred, err := s.store.Update(ctx, id, patch)
	if err != nil {
		return model.Credential{}, err
	}

	s.afterMutation(ctx, model.AuditActionUpdate, cred.ID, cred.Name)
	return cred, nil
}

// Delete removes a credential. Returns driven.ErrNotFound for an unknown id.
func (s *CredentialService) Delete(ctx context.Context, id int64) error {
	name := s.nameOf(ctx, id)

	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}

	s.afterMutation(ctx, model.AuditActionDelete, id, name)
	return nil
}

// RecentAudit returns at most limit journal entries, newest first.
func (s *CredentialService) RecentAudit(ctx context.Context, limit int) ([]model.AuditEntry, error) {
	if s.audit == nil {
		return nil, ErrAuditDisabled
	}
	return s.audit.Recent(ctx, limit)
}

// SyncMetrics publishes the current record count.
func (s *CredentialService) SyncMetrics(ctx context.Context) {
	if s.metrics == nil {
		return
	}
	creds, err := s.store.List(ctx)
	if err != nil {
		s.logger.Warn("failed to count credentials", "error", err)
		return
	}
	s.metrics.SetRecords(len(creds))
}

// nameOf looks up a credential's name for the journal; "" when unknown.
func (s *CredentialService) nameOf(ctx context.Context, id int64) string {
	if s.audit == nil {
		return ""
	}
	creds, err := s.store.List(ctx)
	if err != nil {
		return ""
	}
	for _, c := range creds {
		if c.ID == id {
			return c.Name
		}
	}
	return ""
}

func (s *CredentialService) afterMutation(ctx context.Context, action model.AuditAction, id int64, name string) {
	s.logger.Info("credential "+string(action)+"d", "id", id)

	s.metrics.IncMutation(string(action))
	s.SyncMetrics(ctx)

	if s.audit == nil {
		return
	}
	entry := model.AuditEntry{
		Action:     action,
		RecordID:   id,
		Name:       name,
		OccurredAt: s.now(),
	}
	// The request context may already be done once the response is written.
	if err := s.audit.Record(context.WithoutCancel(ctx), entry); err != nil {
		s.logger.Error("failed to record audit entry", "action", action, "id", id, "error", err)
	}
}
