package database

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/dmehra2102/prod-golang-projects/medbook/pkg/metrics"
)

const startKey = "metrics:start"

// RegisterMetrics times every gorm operation into the DB query histogram.
func RegisterMetrics(db *gorm.DB, m *metrics.Collector) error {
	before := func(tx *gorm.DB) {
		tx.InstanceSet(startKey, time.Now())
	}
	after := func(op string) func(*gorm.DB) {
		return func(tx *gorm.DB) {
			v, ok := tx.InstanceGet(startKey)
			if !ok {
				return
			}
			start, ok := v.(time.Time)
			if !ok {
				return
			}
			table := tx.Statement.Table
			if table == "" {
				table = "raw"
			}
			m.DBQueryDuration.WithLabelValues(op, table).Observe(time.Since(start).Seconds())
		}
	}

	cb := db.Callback()
	hooks := []struct {
		op            string
		before, after registrar
	}{
		{"create", cb.Create().Before("gorm:create"), cb.Create().After("gorm:create")},
		{"query", cb.Query().Before("gorm:query"), cb.Query().After("gorm:query")},
		{"update", cb.Update().Before("gorm:update"), cb.Update().After("gorm:update")},
		{"delete", cb.Delete().Before("gorm:delete"), cb.Delete().After("gorm:delete")},
		{"row", cb.Row().Before("gorm:row"), cb.Row().After("gorm:row")},
		{"raw", cb.Raw().Before("gorm:raw"), cb.Raw().After("gorm:raw")},
	}

	for _, h := range hooks {
		if err := h.before.Register("metrics:before_"+h.op, before); err != nil {
			return fmt.Errorf("registering %s callback: %w", h.op, err)
		}
		if err := h.after.Register("metrics:after_"+h.op, after(h.op)); err != nil {
			return fmt.Errorf("registering %s callback: %w", h.op, err)
		}
	}
	return nil
}

type registrar interface {
	Register(name string, fn func(*gorm.DB)) error
}

// SamplePoolStats publishes sql.DB pool stats every interval until ctx is done.
func SamplePoolStats(ctx context.Context, db *gorm.DB, m *metrics.Collector, interval time.Duration) {
	sqlDB, err := db.DB()
	if err != nil {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s := sqlDB.Stats()
			m.DBConnections.WithLabelValues("open").Set(float64(s.OpenConnections))
			m.DBConnections.WithLabelValues("in_use").Set(float64(s.InUse))
			m.DBConnections.WithLabelValues("idle").Set(float64(s.Idle))
			m.DBConnections.WithLabelValues("wait_count").Set(float64(s.WaitCount))
		}
	}
}
