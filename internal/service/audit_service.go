package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/dmehra2102/prod-golang-projects/medbook/internal/domain"
	"github.com/dmehra2102/prod-golang-projects/medbook/pkg/metrics"
)

type AuditRepository interface {
	CreateBatch(ctx context.Context, entries []*domain.AuditLog) error
}

// AuditService persists audit entries off the request path. Entries are
// buffered in a channel and written in batches by a single worker.
type AuditService struct {
	repo    AuditRepository
	log     *zap.Logger
	metrics *metrics.Collector
	entries chan *domain.AuditLog
	done    chan struct{}

	batchSize     int
	flushInterval time.Duration
}

const (
	auditBufferSize    = 10_000
	auditBatchSize     = 100
	auditFlushInterval = time.Second
)

func NewAuditService(repo AuditRepository, m *metrics.Collector, log *zap.Logger) *AuditService {
	return newAuditService(repo, m, log, auditBufferSize, auditBatchSize, auditFlushInterval)
}

func newAuditService(repo AuditRepository, m *metrics.Collector, log *zap.Logger, buffer, batch int, flush time.Duration) *AuditService {
	svc := &AuditService{
		repo:          repo,
		log:           log,
		metrics:       m,
		entries:       make(chan *domain.AuditLog, buffer),
		done:          make(chan struct{}),
		batchSize:     batch,
		flushInterval: flush,
	}
	go svc.worker()
	return svc
}

// LogAsync enqueues an audit entry for async persistence.
// If the buffer is full, the entry is dropped and a warning is emitted.
func (s *AuditService) LogAsync(_ context.Context, entry AuditEntry) {
	al := &domain.AuditLog{
		UserID:       entry.UserID,
		UserRole:     entry.UserRole,
		Action:       entry.Action,
		ResourceType: entry.ResourceType,
		ResourceID:   entry.ResourceID,
		IPAddress:    entry.IPAddress,
		RequestID:    entry.RequestID,
		UserAgent:    entry.UserAgent,
		StatusCode:   entry.StatusCode,
	}
	if entry.Changes != "" {
		changes := entry.Changes
		al.Changes = &changes
	}

	select {
	case s.entries <- al:
	default:
		s.metrics.AuditBufferDropped.Inc()
		s.log.Warn("audit log buffer full, dropping entry",
			zap.String("action", string(entry.Action)),
			zap.String("resource", entry.ResourceType),
		)
	}
}

func (s *AuditService) Shutdown() {
	close(s.entries)
	select {
	case <-s.done:
	case <-time.After(10 * time.Second):
		s.log.Warn("audit service shutdown timed out; some entries may be lost")
	}
}

func (s *AuditService) worker() {
	defer close(s.done)

	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	batch := make([]*domain.AuditLog, 0, s.batchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.repo.CreateBatch(ctx, batch); err != nil {
			s.log.Error("failed to persist audit logs", zap.Int("count", len(batch)), zap.Error(err))
		} else {
			s.metrics.AuditEntriesTotal.Add(float64(len(batch)))
		}
		cancel()
		batch = make([]*domain.AuditLog, 0, s.batchSize)
	}

	for {
		select {
		case entry, ok := <-s.entries:
			if !ok {
				flush()
				return
			}
			batch = append(batch, entry)
			if len(batch) >= s.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}
