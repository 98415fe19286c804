package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"

	"github.com/dmehra2102/prod-golang-projects/medbook/internal/domain"
	"github.com/dmehra2102/prod-golang-projects/medbook/pkg/metrics"
)

func TestAuditService_FlushesOnShutdown(t *testing.T) {
	repo := &memAudit{}
	m := metrics.NewNopCollector()
	svc := newAuditService(repo, m, zap.NewNop(), 100, 50, time.Hour)

	userID := uuid.New()
	for i := 0; i < 3; i++ {
		svc.LogAsync(context.Background(), AuditEntry{
			UserID:       userID,
			UserRole:     domain.RoleDoctor,
			Action:       domain.ActionRead,
			ResourceType: "clinical_record",
			ResourceID:   uuid.NewString(),
			Changes:      `{"k":"v"}`,
		})
	}
	svc.Shutdown()

	entries := repo.all()
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	for _, e := range entries {
		if e.UserID != userID {
			t.Errorf("expected user id %s, got %s", userID, e.UserID)
		}
		if e.Changes == nil || *e.Changes != `{"k":"v"}` {
			t.Errorf("expected changes to be kept, got %v", e.Changes)
		}
	}
	if got := testutil.ToFloat64(m.AuditEntriesTotal); got != 3 {
		t.Errorf("expected 3 entries counted, got %v", got)
	}
}

func TestAuditService_FlushesOnBatchSize(t *testing.T) {
	repo := &memAudit{}
	svc := newAuditService(repo, metrics.NewNopCollector(), zap.NewNop(), 100, 2, time.Hour)
	defer svc.Shutdown()

	svc.LogAsync(context.Background(), AuditEntry{UserID: uuid.New(), Action: domain.ActionCreate})
	svc.LogAsync(context.Background(), AuditEntry{UserID: uuid.New(), Action: domain.ActionCreate})

	deadline := time.Now().Add(2 * time.Second)
	for len(repo.all()) < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("expected a full batch to be written, got %d entries", len(repo.all()))
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestAuditService_EmptyChangesStoredAsNull(t *testing.T) {
	repo := &memAudit{}
	svc := newAuditService(repo, metrics.NewNopCollector(), zap.NewNop(), 10, 10, time.Hour)
	svc.LogAsync(context.Background(), AuditEntry{UserID: uuid.New(), Action: domain.ActionDelete})
	svc.Shutdown()

	entries := repo.all()
	if len(entries) != 1 || entries[0].Changes != nil {
		t.Errorf("expected one entry with nil changes, got %+v", entries)
	}
}
