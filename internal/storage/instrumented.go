package storage

import (
	"context"
	"errors"
	"io"

	"github.com/dmehra2102/prod-golang-projects/medbook/pkg/metrics"
)

// Instrumented counts every operation on the wrapped store by result.
type Instrumented struct {
	next    Store
	metrics *metrics.Collector
}

func Instrument(next Store, m *metrics.Collector) *Instrumented {
	return &Instrumented{next: next, metrics: m}
}

func (s *Instrumented) observe(op string, err error) {
	result := "ok"
	switch {
	case errors.Is(err, ErrNotFound):
		result = "not_found"
	case err != nil:
		result = "error"
	}
	s.metrics.StorageOpsTotal.WithLabelValues(op, result).Inc()
}

func (s *Instrumented) Put(ctx context.Context, namespace, name string, r io.Reader, size int64, contentType string) (string, error) {
	p, err := s.next.Put(ctx, namespace, name, r, size, contentType)
	s.observe("put", err)
	return p, err
}

func (s *Instrumented) Open(ctx context.Context, p string) (io.ReadCloser, error) {
	rc, err := s.next.Open(ctx, p)
	s.observe("open", err)
	return rc, err
}

func (s *Instrumented) Exists(ctx context.Context, p string) (bool, error) {
	ok, err := s.next.Exists(ctx, p)
	s.observe("exists", err)
	return ok, err
}

func (s *Instrumented) Delete(ctx context.Context, p string) error {
	err := s.next.Delete(ctx, p)
	s.observe("delete", err)
	return err
}
