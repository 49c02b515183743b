package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/wardline/internal/blob"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Env       string
	Log       LogConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Blob      BlobConfig
	Queue     QueueConfig
	Report    ReportConfig
	Retention RetentionConfig
	Server    ServerConfig
	JWT       JWTConfig
}

// LogConfig selects the zerolog level and output format.
type LogConfig struct {
	Level  string
	Format string
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string //nolint:gosec // G117: DB connection config
	DBName   string
	SSLMode  string
	MaxConns int
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string //nolint:gosec // G117: Redis connection config
	DB       int
}

// BlobConfig configures the two buckets the service touches: reports are
// written, attachments are read and swept.
type BlobConfig struct {
	Backend           string
	ReportsBucket     string
	AttachmentsBucket string
	Region            string
	Endpoint          string
	UsePathStyle      bool
	AccessKeyID       string
	SecretAccessKey   string //nolint:gosec // G117: storage credential config
	GCSCredentials    string //nolint:gosec // G117: storage credential config
	AzureAccountName  string
	AzureAccountKey   string //nolint:gosec // G117: storage credential config
	AzureServiceURL   string
	SignedURLTTL      time.Duration
}

// QueueConfig selects the job transport.
type QueueConfig struct {
	Backend     string
	URL         string
	Name        string
	Region      string
	Endpoint    string
	Workers     int
	Prefetch    int
	WaitSeconds int
}

// ReportConfig holds report job tunables.
type ReportConfig struct {
	AppName           string
	MinJobVersion     int
	PollInterval      time.Duration
	ScratchDir        string
	MaxPartBytes      int64
	MaxReportsPerUser int
}

// RetentionConfig holds retention sweep settings.
type RetentionConfig struct {
	Enabled          bool
	Schedule         string
	ThumbnailPrefix  string
	Concurrency      int
	DeletesPerSecond float64
	LockTTL          time.Duration
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	CORSOrigins  []string
}

// JWTConfig holds the key used to verify bearer tokens minted by the platform.
type JWTConfig struct {
	Secret string //nolint:gosec // G117: JWT verification secret config
	Issuer string
}

// Backend names accepted for WARDLINE_QUEUE_BACKEND.
const (
	QueueSQS      = "sqs"
	QueueRabbitMQ = "rabbitmq"
)

// Load reads .env files when present, then configuration from environment
// variables. Real environment variables win over .env; .env.<WARDLINE_ENV>
// and .env.local override .env.
func Load() (*Config, error) {
	if err := loadEnvFiles(); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	cfg := &Config{
		Env: getEnv("WARDLINE_ENV", "development"),
		Log: LogConfig{
			Level:  getEnv("WARDLINE_LOG_LEVEL", "info"),
			Format: getEnv("WARDLINE_LOG_FORMAT", "json"),
		},
	}

	var err error
	if cfg.Database, err = loadDatabase(); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	if cfg.Redis, err = loadRedis(); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	if cfg.Blob, err = loadBlob(); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	if cfg.Queue, err = loadQueue(); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	if cfg.Report, err = loadReport(); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	if cfg.Retention, err = loadRetention(); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	if cfg.Server, err = loadServer(); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	cfg.JWT = JWTConfig{
		Secret: getEnv("WARDLINE_JWT_SECRET", ""),
		Issuer: getEnv("WARDLINE_JWT_ISSUER", ""),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	return cfg, nil
}

func loadEnvFiles() error {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return fmt.Errorf("load .env: %w", err)
		}
	}

	if env := os.Getenv("WARDLINE_ENV"); env != "" {
		envFile := ".env." + env
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Overload(envFile); err != nil {
				return fmt.Errorf("load %s: %w", envFile, err)
			}
		}
	}

	if _, err := os.Stat(".env.local"); err == nil {
		if err := godotenv.Overload(".env.local"); err != nil {
			return fmt.Errorf("load .env.local: %w", err)
		}
	}

	return nil
}

func loadDatabase() (DatabaseConfig, error) {
	port, err := getEnvInt("WARDLINE_DB_PORT", 5432)
	if err != nil {
		return DatabaseConfig{}, err
	}
	maxConns, err := getEnvInt("WARDLINE_DB_MAX_CONNS", 25)
	if err != nil {
		return DatabaseConfig{}, err
	}

	return DatabaseConfig{
		Host:     getEnv("WARDLINE_DB_HOST", "localhost"),
		Port:     port,
		User:     getEnv("WARDLINE_DB_USER", "wardline"),
		Password: getEnv("WARDLINE_DB_PASSWORD", ""),
		DBName:   getEnv("WARDLINE_DB_NAME", "wardline_dev"),
		SSLMode:  getEnv("WARDLINE_DB_SSLMODE", "disable"),
		MaxConns: maxConns,
	}, nil
}

func loadRedis() (RedisConfig, error) {
	db, err := getEnvInt("WARDLINE_REDIS_DB", 0)
	if err != nil {
		return RedisConfig{}, err
	}

	return RedisConfig{
		Addr:     getEnv("WARDLINE_REDIS_ADDR", "localhost:6379"),
		Password: getEnv("WARDLINE_REDIS_PASSWORD", ""),
		DB:       db,
	}, nil
}

func loadBlob() (BlobConfig, error) {
	pathStyle, err := getEnvBool("WARDLINE_BLOB_USE_PATH_STYLE", false)
	if err != nil {
		return BlobConfig{}, err
	}
	ttl, err := getEnvDuration("WARDLINE_BLOB_SIGNED_URL_TTL", 7*24*time.Hour)
	if err != nil {
		return BlobConfig{}, err
	}

	return BlobConfig{
		Backend:           getEnv("WARDLINE_BLOB_BACKEND", blob.BackendS3),
		ReportsBucket:     getEnv("WARDLINE_BLOB_REPORTS_BUCKET", "wardline-reports"),
		AttachmentsBucket: getEnv("WARDLINE_BLOB_ATTACHMENTS_BUCKET", "wardline-attachments"),
		Region:            getEnv("WARDLINE_BLOB_REGION", "us-east-1"),
		Endpoint:          getEnv("WARDLINE_BLOB_ENDPOINT", ""),
		UsePathStyle:      pathStyle,
		AccessKeyID:       getEnv("WARDLINE_BLOB_ACCESS_KEY_ID", ""),
		SecretAccessKey:   getEnv("WARDLINE_BLOB_SECRET_ACCESS_KEY", ""),
		GCSCredentials:    getEnv("WARDLINE_BLOB_GCS_CREDENTIALS_JSON", ""),
		AzureAccountName:  getEnv("WARDLINE_BLOB_AZURE_ACCOUNT_NAME", ""),
		AzureAccountKey:   getEnv("WARDLINE_BLOB_AZURE_ACCOUNT_KEY", ""),
		AzureServiceURL:   getEnv("WARDLINE_BLOB_AZURE_SERVICE_URL", ""),
		SignedURLTTL:      ttl,
	}, nil
}

func loadQueue() (QueueConfig, error) {
	workers, err := getEnvInt("WARDLINE_QUEUE_WORKERS", 2)
	if err != nil {
		return QueueConfig{}, err
	}
	prefetch, err := getEnvInt("WARDLINE_QUEUE_PREFETCH", 2)
	if err != nil {
		return QueueConfig{}, err
	}
	wait, err := getEnvInt("WARDLINE_QUEUE_WAIT_SECONDS", 20)
	if err != nil {
		return QueueConfig{}, err
	}

	return QueueConfig{
		Backend:     getEnv("WARDLINE_QUEUE_BACKEND", QueueSQS),
		URL:         getEnv("WARDLINE_QUEUE_URL", ""),
		Name:        getEnv("WARDLINE_QUEUE_NAME", "wardline-report-jobs"),
		Region:      getEnv("WARDLINE_QUEUE_REGION", "us-east-1"),
		Endpoint:    getEnv("WARDLINE_QUEUE_ENDPOINT", ""),
		Workers:     workers,
		Prefetch:    prefetch,
		WaitSeconds: wait,
	}, nil
}

func loadReport() (ReportConfig, error) {
	minVersion, err := getEnvInt("WARDLINE_REPORT_MIN_JOB_VERSION", 2)
	if err != nil {
		return ReportConfig{}, err
	}
	poll, err := getEnvDuration("WARDLINE_REPORT_POLL_INTERVAL", 5*time.Second)
	if err != nil {
		return ReportConfig{}, err
	}
	maxPart, err := getEnvInt64("WARDLINE_REPORT_MAX_PART_BYTES", 512<<20)
	if err != nil {
		return ReportConfig{}, err
	}
	maxReports, err := getEnvInt("WARDLINE_REPORT_MAX_PER_USER", 20)
	if err != nil {
		return ReportConfig{}, err
	}

	return ReportConfig{
		AppName:           getEnv("WARDLINE_REPORT_APP_NAME", "wardline"),
		MinJobVersion:     minVersion,
		PollInterval:      poll,
		ScratchDir:        getEnv("WARDLINE_REPORT_SCRATCH_DIR", os.TempDir()),
		MaxPartBytes:      maxPart,
		MaxReportsPerUser: maxReports,
	}, nil
}

func loadRetention() (RetentionConfig, error) {
	enabled, err := getEnvBool("WARDLINE_RETENTION_ENABLED", true)
	if err != nil {
		return RetentionConfig{}, err
	}
	concurrency, err := getEnvInt("WARDLINE_RETENTION_CONCURRENCY", 4)
	if err != nil {
		return RetentionConfig{}, err
	}
	perSecond, err := getEnvFloat("WARDLINE_RETENTION_DELETES_PER_SECOND", 50)
	if err != nil {
		return RetentionConfig{}, err
	}
	lockTTL, err := getEnvDuration("WARDLINE_RETENTION_LOCK_TTL", 30*time.Minute)
	if err != nil {
		return RetentionConfig{}, err
	}

	return RetentionConfig{
		Enabled:          enabled,
		Schedule:         getEnv("WARDLINE_RETENTION_SCHEDULE", "@every 1h"),
		ThumbnailPrefix:  getEnv("WARDLINE_RETENTION_THUMBNAIL_PREFIX", "thumb_"),
		Concurrency:      concurrency,
		DeletesPerSecond: perSecond,
		LockTTL:          lockTTL,
	}, nil
}

func loadServer() (ServerConfig, error) {
	readTimeout, err := getEnvDuration("WARDLINE_SERVER_READ_TIMEOUT", 10*time.Second)
	if err != nil {
		return ServerConfig{}, err
	}
	writeTimeout, err := getEnvDuration("WARDLINE_SERVER_WRITE_TIMEOUT", 30*time.Second)
	if err != nil {
		return ServerConfig{}, err
	}

	return ServerConfig{
		Addr:         getEnv("WARDLINE_SERVER_ADDR", ":8080"),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		CORSOrigins:  getEnvList("WARDLINE_CORS_ORIGINS", []string{"http://localhost:5173"}),
	}, nil
}

// validate checks required fields and value bounds.
func (c *Config) validate() error {
	if c.JWT.Secret == "" {
		return errors.New("WARDLINE_JWT_SECRET is required")
	}
	if len(c.JWT.Secret) < 32 {
		return errors.New("WARDLINE_JWT_SECRET must be at least 32 characters")
	}

	if c.Database.SSLMode == "disable" && c.Env == "production" {
		log.Warn().Msg("WARDLINE_DB_SSLMODE=disable is insecure for production; set to 'require' or 'verify-full'")
	}

	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("WARDLINE_DB_PORT must be 1-65535, got %d", c.Database.Port)
	}
	if c.Database.MaxConns < 1 {
		return fmt.Errorf("WARDLINE_DB_MAX_CONNS must be >= 1, got %d", c.Database.MaxConns)
	}

	switch c.Blob.Backend {
	case blob.BackendS3, blob.BackendGCS, blob.BackendAzure, blob.BackendMemory:
	default:
		return fmt.Errorf("WARDLINE_BLOB_BACKEND must be one of s3, gcs, azure, memory; got %q", c.Blob.Backend)
	}
	if c.Blob.ReportsBucket == "" || c.Blob.AttachmentsBucket == "" {
		return errors.New("WARDLINE_BLOB_REPORTS_BUCKET and WARDLINE_BLOB_ATTACHMENTS_BUCKET are required")
	}
	if c.Blob.SignedURLTTL <= 0 {
		return fmt.Errorf("WARDLINE_BLOB_SIGNED_URL_TTL must be positive, got %s", c.Blob.SignedURLTTL)
	}

	switch c.Queue.Backend {
	case QueueSQS, QueueRabbitMQ:
	default:
		return fmt.Errorf("WARDLINE_QUEUE_BACKEND must be sqs or rabbitmq, got %q", c.Queue.Backend)
	}
	if c.Queue.Workers < 1 {
		return fmt.Errorf("WARDLINE_QUEUE_WORKERS must be >= 1, got %d", c.Queue.Workers)
	}
	if c.Queue.WaitSeconds < 0 || c.Queue.WaitSeconds > 20 {
		return fmt.Errorf("WARDLINE_QUEUE_WAIT_SECONDS must be 0-20, got %d", c.Queue.WaitSeconds)
	}

	if c.Report.MinJobVersion < 1 {
		return fmt.Errorf("WARDLINE_REPORT_MIN_JOB_VERSION must be >= 1, got %d", c.Report.MinJobVersion)
	}
	if c.Report.PollInterval <= 0 {
		return fmt.Errorf("WARDLINE_REPORT_POLL_INTERVAL must be positive, got %s", c.Report.PollInterval)
	}
	if c.Report.MaxPartBytes < 1 {
		return fmt.Errorf("WARDLINE_REPORT_MAX_PART_BYTES must be >= 1, got %d", c.Report.MaxPartBytes)
	}
	if c.Report.MaxReportsPerUser < 1 {
		return fmt.Errorf("WARDLINE_REPORT_MAX_PER_USER must be >= 1, got %d", c.Report.MaxReportsPerUser)
	}

	if c.Retention.Concurrency < 1 {
		return fmt.Errorf("WARDLINE_RETENTION_CONCURRENCY must be >= 1, got %d", c.Retention.Concurrency)
	}
	if c.Retention.DeletesPerSecond < 0 {
		return fmt.Errorf("WARDLINE_RETENTION_DELETES_PER_SECOND must be >= 0, got %g", c.Retention.DeletesPerSecond)
	}
	if c.Retention.LockTTL <= 0 {
		return fmt.Errorf("WARDLINE_RETENTION_LOCK_TTL must be positive, got %s", c.Retention.LockTTL)
	}

	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("WARDLINE_SERVER_READ_TIMEOUT must be positive, got %s", c.Server.ReadTimeout)
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("WARDLINE_SERVER_WRITE_TIMEOUT must be positive, got %s", c.Server.WriteTimeout)
	}

	return nil
}

// DSN returns the PostgreSQL connection URL. pgx and golang-migrate both accept it.
func (c *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     c.Host + ":" + strconv.Itoa(c.Port),
		Path:     "/" + c.DBName,
		RawQuery: url.Values{"sslmode": {c.SSLMode}}.Encode(),
	}
	return u.String()
}

// Store returns the blob configuration for one bucket.
func (c *BlobConfig) Store(bucket string) blob.Config {
	cfg := blob.Config{
		Backend:          c.Backend,
		Bucket:           bucket,
		Region:           c.Region,
		Endpoint:         c.Endpoint,
		UsePathStyle:     c.UsePathStyle,
		AccessKeyID:      c.AccessKeyID,
		SecretAccessKey:  c.SecretAccessKey,
		AzureAccountName: c.AzureAccountName,
		AzureAccountKey:  c.AzureAccountKey,
		AzureServiceURL:  c.AzureServiceURL,
	}
	if c.GCSCredentials != "" {
		cfg.GCSCredentialsJSON = []byte(c.GCSCredentials)
	}
	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as int: %w", key, v, err)
	}
	return n, nil
}

func getEnvInt64(key string, fallback int64) (int64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as int64: %w", key, v, err)
	}
	return n, nil
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as float: %w", key, v, err)
	}
	return f, nil
}

func getEnvBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("parsing %s=%q as bool: %w", key, v, err)
	}
	return b, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as duration: %w", key, v, err)
	}
	return d, nil
}

func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
