package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewCollector_SanitizesNamespace(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector("medbook-api", reg)

	c.AppointmentsTotal.WithLabelValues("confirmed").Inc()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	found := false
	for _, mf := range families {
		if mf.GetName() == "medbook_api_booking_appointments_total" {
			found = true
		}
	}
	if !found {
		t.Error("expected medbook_api_booking_appointments_total to be registered")
	}
	if got := testutil.ToFloat64(c.AppointmentsTotal.WithLabelValues("confirmed")); got != 1 {
		t.Errorf("expected 1, got %v", got)
	}
}

func TestNewCollector_IndependentRegistries(t *testing.T) {
	// Two collectors on separate registries must not collide.
	_ = NewNopCollector()
	_ = NewNopCollector()
}
