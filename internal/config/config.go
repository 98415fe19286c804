package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

type Config struct {
	App       AppConfig
	Server    ServerConfig
	Database  DatabaseConfig
	JWT       JWTConfig
	Log       LogConfig
	Tracing   TracingConfig
	CORS      CORSConfig
	RateLimit RateLimitConfig
	Storage   StorageConfig
	Upload    UploadConfig
}

type AppConfig struct {
	Name        string
	Environment string
	Version     string
}

func (a AppConfig) IsProduction() bool {
	return a.Environment == "production"
}

type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type DatabaseConfig struct {
	Host               string
	Port               int
	Name               string
	User               string
	Password           string
	SSLMode            string
	MaxOpenConns       int
	MaxIdleConns       int
	ConnMaxLifetime    time.Duration
	ConnMaxIdleTime    time.Duration
	SlowQueryThreshold time.Duration
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=%s TimeZone=UTC",
		d.Host, d.User, d.Password, d.Name, d.Port, d.SSLMode,
	)
}

type JWTConfig struct {
	Secret          string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	Issuer          string
}

type LogConfig struct {
	Level      string
	Format     string
	OutputPath string
	Service    string
}

type TracingConfig struct {
	Enabled     bool
	ServiceName string
	Endpoint    string
	SampleRate  float64
}

type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
	MaxAge         time.Duration
}

type RateLimitConfig struct {
	// Global Rate limit per IP
	RequestsPerSecond float64
	BurstSize         int
	// Auth endpoints have stricter limits
	AuthRequestsPerMinute int
}

// StorageConfig selects the backend that holds uploaded files.
// Driver is one of "local", "s3" or "memory".
type StorageConfig struct {
	Driver    string
	LocalRoot string

	S3Bucket   string
	S3Region   string
	S3Prefix   string
	S3Endpoint string

	BreakerMaxFailures uint32
	BreakerOpenTimeout time.Duration
}

type UploadConfig struct {
	MaxFileSize       int64
	AllowedExtensions []string
	MaxFilesPerUpload int
}

func Load() (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name:        getEnv(v, "APP_NAME", "medbook-api"),
			Environment: getEnv(v, "APP_ENV", "development"),
			Version:     getEnv(v, "APP_VERSION", "0.0.0"),
		},
		Server: ServerConfig{
			Host:            getEnv(v, "SERVER_HOST", "0.0.0.0"),
			Port:            getEnvInt(v, "SERVER_PORT", 8080),
			ReadTimeout:     getEnvDuration(v, "SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration(v, "SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:     getEnvDuration(v, "SERVER_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration(v, "SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Host:               getEnv(v, "DB_HOST", "localhost"),
			Port:               getEnvInt(v, "DB_PORT", 5432),
			Name:               getEnv(v, "DB_NAME", "medbook"),
			User:               getEnv(v, "DB_USER", "medbook"),
			Password:           getEnv(v, "DB_PASSWORD", ""),
			SSLMode:            getEnv(v, "DB_SSLMODE", "require"),
			MaxOpenConns:       getEnvInt(v, "DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:       getEnvInt(v, "DB_MAX_IDLE_CONNS", 10),
			ConnMaxLifetime:    getEnvDuration(v, "DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime:    getEnvDuration(v, "DB_CONN_MAX_IDLE_TIME", 5*time.Minute),
			SlowQueryThreshold: getEnvDuration(v, "DB_SLOW_QUERY_THRESHOLD", 200*time.Millisecond),
		},
		JWT: JWTConfig{
			Secret:          getEnv(v, "JWT_SECRET", ""),
			AccessTokenTTL:  getEnvDuration(v, "JWT_ACCESS_TTL", 15*time.Minute),
			RefreshTokenTTL: getEnvDuration(v, "JWT_REFRESH_TTL", 7*24*time.Hour),
			Issuer:          getEnv(v, "JWT_ISSUER", "medbook-api"),
		},
		Log: LogConfig{
			Level:      getEnv(v, "LOG_LEVEL", "info"),
			Format:     getEnv(v, "LOG_FORMAT", "json"),
			OutputPath: getEnv(v, "LOG_OUTPUT", "stdout"),
		},
		Tracing: TracingConfig{
			Enabled:     getEnvBool(v, "TRACING_ENABLED", false),
			ServiceName: getEnv(v, "TRACING_SERVICE_NAME", "medbook-api"),
			Endpoint:    getEnv(v, "OTEL_EXPORTER_OTLP_ENDPOINT", "http://otel-collector:4318"),
			SampleRate:  getEnvFloat(v, "TRACING_SAMPLE_RATE", 0.1),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvSlice(v, "CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
			AllowedMethods: getEnvSlice(v, "CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}),
			AllowedHeaders: getEnvSlice(v, "CORS_ALLOWED_HEADERS", []string{"Authorization", "Content-Type", "X-Request-ID"}),
			MaxAge:         getEnvDuration(v, "CORS_MAX_AGE", 12*time.Hour),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond:     getEnvFloat(v, "RATE_LIMIT_RPS", 100),
			BurstSize:             getEnvInt(v, "RATE_LIMIT_BURST", 200),
			AuthRequestsPerMinute: getEnvInt(v, "RATE_LIMIT_AUTH_RPM", 10),
		},
		Storage: StorageConfig{
			Driver:             getEnv(v, "STORAGE_DRIVER", "local"),
			LocalRoot:          getEnv(v, "STORAGE_LOCAL_ROOT", "./storage"),
			S3Bucket:           getEnv(v, "STORAGE_S3_BUCKET", ""),
			S3Region:           getEnv(v, "STORAGE_S3_REGION", "us-east-1"),
			S3Prefix:           getEnv(v, "STORAGE_S3_PREFIX", ""),
			S3Endpoint:         getEnv(v, "STORAGE_S3_ENDPOINT", ""),
			BreakerMaxFailures: uint32(getEnvInt(v, "STORAGE_BREAKER_MAX_FAILURES", 5)),
			BreakerOpenTimeout: getEnvDuration(v, "STORAGE_BREAKER_OPEN_TIMEOUT", 30*time.Second),
		},
		Upload: UploadConfig{
			MaxFileSize:       int64(getEnvInt(v, "UPLOAD_MAX_FILE_SIZE", 5*1024*1024)),
			AllowedExtensions: getEnvSlice(v, "UPLOAD_ALLOWED_EXTENSIONS", []string{"jpg", "jpeg", "png", "pdf", "doc", "docx"}),
			MaxFilesPerUpload: getEnvInt(v, "UPLOAD_MAX_FILES", 10),
		},
	}

	cfg.Log.Service = cfg.App.Name

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate enforces production security requirements.
func validate(cfg *Config) error {
	var errs []string

	if cfg.JWT.Secret == "" {
		errs = append(errs, "JWT_SECRET is required")
	} else if len(cfg.JWT.Secret) < 32 && cfg.App.IsProduction() {
		errs = append(errs, "JWT_SECRET must be at least 32 characters in production")
	}

	if cfg.Database.Password == "" && cfg.App.Environment != "development" {
		errs = append(errs, "DB_PASSWORD is required in non-development environments")
	}

	if cfg.Database.SSLMode == "disable" && cfg.App.IsProduction() {
		errs = append(errs, "DB_SSLMODE=disable is not allowed in production")
	}

	switch cfg.Storage.Driver {
	case "local", "memory":
	case "s3":
		if cfg.Storage.S3Bucket == "" {
			errs = append(errs, "STORAGE_S3_BUCKET is required when STORAGE_DRIVER=s3")
		}
	default:
		errs = append(errs, fmt.Sprintf("STORAGE_DRIVER %q is not one of local, s3, memory", cfg.Storage.Driver))
	}

	if cfg.Storage.Driver == "memory" && cfg.App.IsProduction() {
		errs = append(errs, "STORAGE_DRIVER=memory is not allowed in production")
	}

	if cfg.Upload.MaxFileSize <= 0 {
		errs = append(errs, "UPLOAD_MAX_FILE_SIZE must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

func getEnv(v *viper.Viper, key, fallback string) string {
	if v.IsSet(key) {
		return v.GetString(key)
	}
	return fallback
}

func getEnvInt(v *viper.Viper, key string, fallback int) int {
	if !v.IsSet(key) {
		return fallback
	}
	i, err := cast.ToIntE(v.Get(key))
	if err != nil {
		return fallback
	}
	return i
}

func getEnvFloat(v *viper.Viper, key string, fallback float64) float64 {
	if !v.IsSet(key) {
		return fallback
	}
	f, err := cast.ToFloat64E(v.Get(key))
	if err != nil {
		return fallback
	}
	return f
}

func getEnvBool(v *viper.Viper, key string, fallback bool) bool {
	if !v.IsSet(key) {
		return fallback
	}
	b, err := cast.ToBoolE(v.Get(key))
	if err != nil {
		return fallback
	}
	return b
}

func getEnvDuration(v *viper.Viper, key string, fallback time.Duration) time.Duration {
	if !v.IsSet(key) {
		return fallback
	}
	d, err := time.ParseDuration(v.GetString(key))
	if err != nil {
		return fallback
	}
	return d
}

func getEnvSlice(v *viper.Viper, key string, fallback []string) []string {
	if !v.IsSet(key) {
		return fallback
	}
	parts := strings.Split(v.GetString(key), ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			result = append(result, t)
		}
	}
	if len(result) > 0 {
		return result
	}
	return fallback
}
