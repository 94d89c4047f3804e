// Package config loads the process configuration from the environment
// (populated from .env in main) and the optional API filter file.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/BartekS5/ticketflow/pkg/etlerr"
)

// Backend driver names.
const (
	DriverBigQuery  = "bigquery"
	DriverSQLServer = "sqlserver"
	DriverGCS       = "gcs"
	DriverMemory    = "memory"
)

// Config holds all configuration for the application. It is built once at
// startup and passed into every component constructor.
type Config struct {
	APIKey      string `validate:"required"`
	APIBaseURL  string `validate:"required,url"`
	CountryCode string `validate:"required,len=2"`
	// LookaheadWeeks sets the default endDateTime filter.
	LookaheadWeeks int           `validate:"gte=1"`
	PageSize       int           `validate:"gte=1,lte=200"`
	MaxPages       int           `validate:"gte=0"`
	HTTPTimeout    time.Duration `validate:"gt=0"`
	StagingDir     string        `validate:"required"`

	ProjectID       string
	BucketName      string `validate:"required"`
	Dataset         string `validate:"required"`
	StageTable      string `validate:"required"`
	HistoricalTable string `validate:"required"`
	StageWriteMode  string `validate:"oneof=truncate append empty"`
	WarehouseDriver string `validate:"oneof=bigquery sqlserver memory"`
	BlobDriver      string `validate:"oneof=gcs memory"`
	SQLConnString   string `validate:"required_if=WarehouseDriver sqlserver"`
	SQLSchema       string

	UploadMaxRetries     int           `validate:"gte=1"`
	UploadRetryDelay     time.Duration `validate:"gte=0"`
	UploadWorkers        int           `validate:"gte=1"`
	UploadAttemptTimeout time.Duration `validate:"gt=0"`
	LoadWorkers          int           `validate:"gte=1"`
	LoadTimeout          time.Duration `validate:"gt=0"`
	MergeLockTTL         time.Duration `validate:"gt=0"`

	MongoConnString string
	MongoDatabase   string `validate:"required_with=MongoConnString"`
	RedisAddr       string `validate:"omitempty,hostname_port"`
	RedisPassword   string

	HTTPPort         int           `validate:"gte=1,lte=65535"`
	ScheduleInterval time.Duration `validate:"gt=0"`
	LogLevel         string        `validate:"oneof=debug info warn error"`
	PrettyLogs       bool
}

// LoadConfig loads application settings from environment variables,
// applies defaults and validates the result. Every failure is a
// Configuration error.
func LoadConfig() (*Config, error) {
	var errs []error
	env := &envReader{errs: &errs}

	cfg := &Config{
		APIKey:         env.String("TICKETMASTER_API_KEY", ""),
		APIBaseURL:     env.String("TICKETMASTER_BASE_URL", "https://app.ticketmaster.com/discovery/v2/events.json"),
		CountryCode:    strings.ToUpper(env.String("EVENTS_COUNTRY_CODE", "NL")),
		LookaheadWeeks: env.Int("EVENTS_LOOKAHEAD_WEEKS", 4),
		PageSize:       env.Int("EVENTS_PAGE_SIZE", 100),
		MaxPages:       env.Int("EVENTS_MAX_PAGES", 0),
		HTTPTimeout:    env.Duration("HTTP_TIMEOUT", 30*time.Second),
		StagingDir:     env.String("STAGING_DIR", "."),

		ProjectID:       env.String("GCP_PROJECT_ID", ""),
		BucketName:      env.String("GCS_BUCKET_NAME", ""),
		Dataset:         env.String("BQ_DATASET_NAME", ""),
		StageTable:      env.String("STAGE_TABLE", "stg_events"),
		HistoricalTable: env.String("HISTORICAL_TABLE", "hist_events"),
		StageWriteMode:  strings.ToLower(env.String("STAGE_WRITE_MODE", "truncate")),
		WarehouseDriver: strings.ToLower(env.String("WAREHOUSE_DRIVER", DriverBigQuery)),
		BlobDriver:      strings.ToLower(env.String("BLOB_DRIVER", DriverGCS)),
		SQLConnString:   env.String("SQL_CONNECTION_STRING", ""),
		SQLSchema:       env.String("SQL_SCHEMA", "dbo"),

		UploadMaxRetries:     env.Int("UPLOAD_MAX_RETRIES", 3),
		UploadRetryDelay:     env.Duration("UPLOAD_RETRY_DELAY", 5*time.Second),
		UploadWorkers:        env.Int("UPLOAD_WORKERS", 5),
		UploadAttemptTimeout: env.Duration("UPLOAD_ATTEMPT_TIMEOUT", 2*time.Minute),
		LoadWorkers:          env.Int("LOAD_WORKERS", 5),
		LoadTimeout:          env.Duration("LOAD_TIMEOUT", 10*time.Minute),
		MergeLockTTL:         env.Duration("MERGE_LOCK_TTL", 10*time.Minute),

		MongoConnString: env.String("MONGO_CONNECTION_STRING", ""),
		MongoDatabase:   env.String("MONGO_DATABASE", "ticketflow"),
		RedisAddr:       env.String("REDIS_ADDR", ""),
		RedisPassword:   env.String("REDIS_PASSWORD", ""),

		HTTPPort:         env.Int("HTTP_PORT", 8080),
		ScheduleInterval: env.Duration("SCHEDULE_INTERVAL", 24*time.Hour),
		LogLevel:         strings.ToLower(env.String("LOG_LEVEL", "info")),
		PrettyLogs:       env.Bool("PRETTY_LOGS", false),
	}
	if len(errs) > 0 {
		return nil, etlerr.New(etlerr.KindConfiguration, "load config", errors.Join(errs...))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and the cross-driver requirements.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Field(), fe.Tag()))
			}
			err = errors.New(strings.Join(msgs, "; "))
		}
		return etlerr.New(etlerr.KindConfiguration, "validate config", err)
	}
	if c.ProjectID == "" && (c.WarehouseDriver == DriverBigQuery || c.BlobDriver == DriverGCS) {
		return etlerr.Errorf(etlerr.KindConfiguration, "validate config", "GCP_PROJECT_ID is required for the %s/%s drivers", c.WarehouseDriver, c.BlobDriver)
	}
	return nil
}
