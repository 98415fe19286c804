package storage

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/dmehra2102/prod-golang-projects/medbook/pkg/metrics"
)

func TestInstrumented_CountsByResult(t *testing.T) {
	m := metrics.NewNopCollector()
	s := Instrument(NewMemoryStore(), m)
	ctx := context.Background()

	p, err := s.Put(ctx, NamespaceClinicalRecords, "scan.png", strings.NewReader("img"), 3, "image/png")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := s.Open(ctx, "clinical_records/missing.png"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.Delete(ctx, p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := testutil.ToFloat64(m.StorageOpsTotal.WithLabelValues("put", "ok")); got != 1 {
		t.Errorf("expected 1 put, got %v", got)
	}
	if got := testutil.ToFloat64(m.StorageOpsTotal.WithLabelValues("open", "not_found")); got != 1 {
		t.Errorf("expected 1 not_found open, got %v", got)
	}
	if got := testutil.ToFloat64(m.StorageOpsTotal.WithLabelValues("delete", "ok")); got != 1 {
		t.Errorf("expected 1 delete, got %v", got)
	}
}
