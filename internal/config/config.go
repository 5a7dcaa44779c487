package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	OTLPEndpoint string

	Invoice   InvoiceConfig
	Redis     RedisConfig
	Document  DocumentStoreConfig
	Metrics   MetricsPushConfig
	RateLimit RateLimitConfig

	StorageTimeout   time.Duration
	CurrencyPlaces   int32
	BackfillInterval time.Duration

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int
}

type InvoiceConfig struct {
	Store          string
	StartNumber    int64
	MaxItems       int
	CSVPath        string
	CSVLock        string
	OutputDir      string
	NumberTemplate string
}

type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

type DocumentStoreConfig struct {
	Backend        string
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool
}

// RateLimitConfig throttles invoice submissions per client through a
// Redis token bucket.
type RateLimitConfig struct {
	Enabled     bool
	SubmitRate  float64
	SubmitBurst int
}

type MetricsPushConfig struct {
	Exporter  string
	Endpoint  string
	AuthToken string
	Interval  time.Duration
}

const (
	StoreSQL   = "sql"
	StoreCSV   = "csv"
	StoreRedis = "redis"

	LockLocal = "local"
	LockRedis = "redis"

	DocumentStoreFilesystem = "filesystem"
	DocumentStoreMinio      = "minio"
)

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:      getenv("APP_SERVICE", "invoicedesk"),
		AppVersion:   getenv("APP_VERSION", "0.1.0"),
		Environment:  getenv("ENVIRONMENT", "development"),
		HTTPAddr:     getenv("HTTP_ADDR", ":8080"),
		OTLPEndpoint: getenv("OTLP_ENDPOINT", "localhost:4317"),
		Invoice: InvoiceConfig{
			Store:          normalizeStore(getenv("INVOICE_STORE", StoreCSV)),
			StartNumber:    getenvInt64("INVOICE_START_NUMBER", 1),
			MaxItems:       int(getenvInt64("INVOICE_MAX_ITEMS", 30)),
			CSVPath:        getenv("INVOICE_CSV_PATH", "data/invoices.csv"),
			CSVLock:        strings.ToLower(strings.TrimSpace(getenv("INVOICE_CSV_LOCK", LockLocal))),
			OutputDir:      getenv("INVOICE_OUTPUT_DIR", "generated_invoices"),
			NumberTemplate: getenv("INVOICE_NUMBER_TEMPLATE", "{SEQ}"),
		},
		Redis: RedisConfig{
			Addr:      getenv("REDIS_ADDR", "localhost:6379"),
			Password:  getenv("REDIS_PASSWORD", ""),
			DB:        int(getenvInt64("REDIS_DB", 0)),
			KeyPrefix: getenv("REDIS_KEY_PREFIX", "invoicedesk"),
		},
		Document: DocumentStoreConfig{
			Backend:        strings.ToLower(strings.TrimSpace(getenv("DOCUMENT_STORE", DocumentStoreFilesystem))),
			MinioEndpoint:  strings.TrimSpace(getenv("MINIO_ENDPOINT", "localhost:9000")),
			MinioAccessKey: strings.TrimSpace(getenv("MINIO_ACCESS_KEY", "")),
			MinioSecretKey: strings.TrimSpace(getenv("MINIO_SECRET_KEY", "")),
			MinioBucket:    getenv("MINIO_BUCKET", "invoices"),
			MinioUseSSL:    getenvBool("MINIO_USE_SSL", false),
		},
		Metrics: MetricsPushConfig{
			Exporter:  strings.ToLower(getenv("METRICS_PUSH_EXPORTER", "")),
			Endpoint:  strings.TrimSpace(getenv("METRICS_PUSH_ENDPOINT", "")),
			AuthToken: strings.TrimSpace(getenv("METRICS_PUSH_TOKEN", "")),
			Interval:  time.Duration(getenvInt64("METRICS_PUSH_INTERVAL_SECONDS", 30)) * time.Second,
		},
		RateLimit: RateLimitConfig{
			Enabled:     getenvBool("RATE_LIMIT_ENABLED", false),
			SubmitRate:  getenvFloat("RATE_LIMIT_SUBMIT_RATE", 1),
			SubmitBurst: int(getenvInt64("RATE_LIMIT_SUBMIT_BURST", 5)),
		},
		StorageTimeout:   time.Duration(getenvInt64("STORAGE_TIMEOUT_MS", 5000)) * time.Millisecond,
		CurrencyPlaces:   int32(getenvInt64("CURRENCY_PLACES", 2)),
		BackfillInterval: time.Duration(getenvInt64("BACKFILL_INTERVAL_SECONDS", 0)) * time.Second,

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "invoicedesk"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     int(getenvInt64("DATABASE_MAX_IDLE_CONN", 5)),
		DBMaxOpenConn:     int(getenvInt64("DATABASE_MAX_OPEN_CONN", 20)),
		DBConnMaxLifetime: int(getenvInt64("DATABASE_CONN_MAX_LIFETIME", 300)),
		DBConnMaxIdleTime: int(getenvInt64("DATABASE_CONN_MAX_IDLE_TIME", 60)),
	}

	if cfg.Invoice.StartNumber < 1 {
		cfg.Invoice.StartNumber = 1
	}
	if cfg.Invoice.MaxItems < 1 {
		cfg.Invoice.MaxItems = 30
	}
	if cfg.StorageTimeout <= 0 {
		cfg.StorageTimeout = 5 * time.Second
	}
	if cfg.CurrencyPlaces < 0 {
		cfg.CurrencyPlaces = 2
	}

	return cfg
}

func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

func normalizeStore(raw string) string {
	value := strings.ToLower(strings.TrimSpace(raw))
	switch value {
	case StoreSQL, "postgres", "database":
		return StoreSQL
	case StoreRedis:
		return StoreRedis
	default:
		return StoreCSV
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}
