package application

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/keyhold/internal/adapter/driven/jsonfile"
	"github.com/ericfisherdev/keyhold/internal/domain/model"
	"github.com/ericfisherdev/keyhold/internal/domain/port/driven"
	"github.com/ericfisherdev/keyhold/internal/metrics"
)

// --- Mock implementations ---

type mockAuditLog struct {
	entries   []model.AuditEntry
	recordErr error
}

func (m *mockAuditLog) Record(_ context.Context, entry model.AuditEntry) error {
	if m.recordErr != nil {
		return m.recordErr
	}
	m.entries = append(m.entries, entry)
	return nil
}

func (m *mockAuditLog) Recent(_ context.Context, limit int) ([]model.AuditEntry, error) {
	out := make([]model.AuditEntry, 0, limit)
	for i := len(m.entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.entries[i])
	}
	return out, nil
}

// --- Test helpers ---

func newTestService(t *testing.T, audit driven.AuditLog, m *metrics.Metrics) *CredentialService {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	store, err := jsonfile.Open(filepath.Join(t.TempDir(), "passwords.json"), logger)
	require.NoError(t, err)

	svc := NewCredentialService(store, audit, m, logger)
	svc.now = func() time.Time { return time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC) }
	return svc
}

func TestCredentialService_JournalsMutations(t *testing.T) {
	audit := &mockAuditLog{}
	svc := newTestService(t, audit, nil)
	ctx := context.Background()

	cred, err := svc.Create(ctx, model.CredentialFields{Name: "mail", Secret: "s"})
	require.NoError(t, err)

	newName := "email"
	_, err = svc.Update(ctx, cred.ID, model.CredentialPatch{Name: &newName})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, cred.ID))

	require.Len(t, audit.entries, 3)
	assert.Equal(t, model.AuditEntry{
		Action:     model.AuditActionCreate,
		RecordID:   1,
		Name:       "mail",
		OccurredAt: time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC),
	}, audit.entries[0])
	assert.Equal(t, model.AuditActionUpdate, audit.entries[1].Action)
	assert.Equal(t, "email", audit.entries[1].Name)
	assert.Equal(t, model.AuditActionDelete, audit.entries[2].Action)
	assert.Equal(t, "email", audit.entries[2].Name)
}

func TestCredentialService_NotFoundIsNotJournaled(t *testing.T) {
	audit := &mockAuditLog{}
	svc := newTestService(t, audit, nil)
	ctx := context.Background()

	_, err := svc.Update(ctx, 99, model.CredentialPatch{})
	require.ErrorIs(t, err, driven.ErrNotFound)
	require.ErrorIs(t, svc.Delete(ctx, 99), driven.ErrNotFound)

	assert.Empty(t, audit.entries)
}

func TestCredentialService_AuditFailureDoesNotFailMutation(t *testing.T) {
	audit := &mockAuditLog{recordErr: errors.New("disk full")}
	svc := newTestService(t, audit, nil)
	ctx := context.Background()

	cred, err := svc.Create(ctx, model.CredentialFields{Name: "mail"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), cred.ID)

	creds, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, creds, 1)
}

func TestCredentialService_RecentAudit(t *testing.T) {
	svc := newTestService(t, nil, nil)
	assert.False(t, svc.AuditEnabled())

	_, err := svc.RecentAudit(context.Background(), 10)
	require.ErrorIs(t, err, ErrAuditDisabled)

	audit := &mockAuditLog{}
	svc = newTestService(t, audit, nil)
	assert.True(t, svc.AuditEnabled())

	_, err = svc.Create(context.Background(), model.CredentialFields{Name: "a"})
	require.NoError(t, err)
	entries, err := svc.RecentAudit(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestCredentialService_UpdatesMetrics(t *testing.T) {
	m := metrics.New()
	svc := newTestService(t, nil, m)
	ctx := context.Background()

	_, err := svc.Create(ctx, model.CredentialFields{Name: "a"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, model.CredentialFields{Name: "b"})
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, 1))

	series, err := testutil.GatherAndCount(m.Registry(), "keyhold_store_mutations_total")
	require.NoError(t, err)
	assert.Equal(t, 2, series, "one series per action")

	expected := `
# HELP keyhold_store_records Number of credentials currently stored.
# TYPE keyhold_store_records gauge
keyhold_store_records 1
`
	require.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "keyhold_store_records"))
}
