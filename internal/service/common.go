package service

import (
	"go.opentelemetry.io/otel"

	"github.com/dmehra2102/prod-golang-projects/medbook/internal/domain"
	"github.com/dmehra2102/prod-golang-projects/medbook/internal/policy"
	"github.com/dmehra2102/prod-golang-projects/medbook/pkg/metrics"
)

var tracer = otel.Tracer("github.com/dmehra2102/prod-golang-projects/medbook/internal/service")

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

func normalizePage(page, size int) (int, int) {
	if size <= 0 || size > maxPageSize {
		size = defaultPageSize
	}
	if page <= 0 {
		page = 1
	}
	return page, size
}

// authorize runs the policy check and counts denials.
func authorize(m *metrics.Collector, subject *domain.Claims, action policy.Action, res policy.Resource) error {
	if err := policy.Authorize(subject, action, res); err != nil {
		m.PolicyDenialsTotal.WithLabelValues(string(action)).Inc()
		return err
	}
	return nil
}
