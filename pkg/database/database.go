package database

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/dmehra2102/prod-golang-projects/medbook/internal/config"
	"github.com/dmehra2102/prod-golang-projects/medbook/internal/domain"
	"github.com/dmehra2102/prod-golang-projects/medbook/internal/domain/appointment"
	cr "github.com/dmehra2102/prod-golang-projects/medbook/internal/domain/clinical_record"
	"github.com/dmehra2102/prod-golang-projects/medbook/internal/domain/review"
	"github.com/dmehra2102/prod-golang-projects/medbook/internal/domain/user"
)

func Connect(cfg config.DatabaseConfig, log *zap.Logger) (*gorm.DB, error) {
	gormCfg := &gorm.Config{
		Logger:                                   NewGormLogger(log, cfg.SlowQueryThreshold),
		PrepareStmt:                              true,
		DisableForeignKeyConstraintWhenMigrating: false,
		DisableAutomaticPing:                     false,
		TranslateError:                           false,
	}

	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN:                  cfg.DSN(),
		PreferSimpleProtocol: false,
	}), gormCfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	// Configure connection pool
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return db, nil
}

// Models lists every table owned by the service, parents before children.
func Models() []any {
	return []any{
		&user.User{},
		&domain.RefreshToken{},
		&domain.AuditLog{},
		&appointment.Appointment{},
		&cr.ClinicalRecord{},
		&cr.Attachment{},
		&review.Review{},
	}
}

func Migrate(db *gorm.DB, log *zap.Logger) error {
	log.Info("running database migrations")
	start := time.Now()

	if err := db.Exec("CREATE EXTENSION IF NOT EXISTS pgcrypto").Error; err != nil {
		return fmt.Errorf("creating pgcrypto extension: %w", err)
	}

	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto-migrating models: %w", err)
	}

	if err := createConstraints(db); err != nil {
		return fmt.Errorf("creating constraints: %w", err)
	}

	if err := createIndexes(db); err != nil {
		return fmt.Errorf("creating indexes: %w", err)
	}

	log.Info("migrations completed", zap.Duration("duration", time.Since(start)))
	return nil
}

type constraint struct {
	name  string
	table string
	def   string
}

func createConstraints(db *gorm.DB) error {
	constraints := []constraint{
		{"fk_appointments_doctor", "appointments", "FOREIGN KEY (doctor_id) REFERENCES users(id) ON DELETE CASCADE"},
		{"fk_appointments_patient", "appointments", "FOREIGN KEY (patient_id) REFERENCES users(id) ON DELETE CASCADE"},
		{"ck_appointments_status", "appointments", "CHECK (status IN ('scheduled', 'confirmed', 'completed', 'cancelled'))"},
		{"fk_clinical_records_appointment", "clinical_records", "FOREIGN KEY (appointment_id) REFERENCES appointments(id) ON DELETE CASCADE"},
		{"ck_attachments_uploaded_by", "clinical_record_attachments", "CHECK (uploaded_by IN ('doctor', 'patient'))"},
		{"fk_reviews_appointment", "reviews", "FOREIGN KEY (appointment_id) REFERENCES appointments(id) ON DELETE CASCADE"},
		{"fk_reviews_doctor", "reviews", "FOREIGN KEY (doctor_id) REFERENCES users(id) ON DELETE CASCADE"},
		{"fk_reviews_patient", "reviews", "FOREIGN KEY (patient_id) REFERENCES users(id) ON DELETE CASCADE"},
		{"ck_reviews_rating", "reviews", "CHECK (rating BETWEEN 1 AND 5)"},
		{"fk_refresh_tokens_user", "refresh_tokens", "FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE"},
	}

	for _, c := range constraints {
		// Postgres has no ADD CONSTRAINT IF NOT EXISTS.
		q := fmt.Sprintf(`DO $$ BEGIN
	IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = '%s') THEN
		ALTER TABLE %s ADD CONSTRAINT %s %s;
	END IF;
END $$`, c.name, c.table, c.name, c.def)
		if err := db.Exec(q).Error; err != nil {
			return fmt.Errorf("%s: %w", c.name, err)
		}
	}
	return nil
}

func createIndexes(db *gorm.DB) error {
	indexes := []struct {
		name  string
		query string
	}{
		// At most one active appointment per doctor/patient pair.
		{
			name:  "uniq_active_appointment_pair",
			query: `CREATE UNIQUE INDEX IF NOT EXISTS uniq_active_appointment_pair ON appointments (doctor_id, patient_id) WHERE status IN ('scheduled', 'confirmed')`,
		},
		{
			name:  "idx_appointments_doctor_date",
			query: `CREATE INDEX IF NOT EXISTS idx_appointments_doctor_date ON appointments (doctor_id, appointment_date DESC)`,
		},
		{
			name:  "idx_appointments_patient_date",
			query: `CREATE INDEX IF NOT EXISTS idx_appointments_patient_date ON appointments (patient_id, appointment_date DESC)`,
		},
		{
			name:  "idx_reviews_doctor_created",
			query: `CREATE INDEX IF NOT EXISTS idx_reviews_doctor_created ON reviews (doctor_id, created_at DESC)`,
		},
	}

	for _, idx := range indexes {
		if err := db.Exec(idx.query).Error; err != nil {
			return fmt.Errorf("%s: %w", idx.name, err)
		}
	}

	return nil
}

// Checker adapts a gorm handle to the readiness probe.
type Checker struct {
	db *gorm.DB
}

func NewChecker(db *gorm.DB) *Checker {
	return &Checker{db: db}
}

func (c *Checker) Ping(ctx context.Context) error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
