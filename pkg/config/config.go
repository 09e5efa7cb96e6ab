package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Storage drivers supported by the dataset blob store.
const (
	StorageDriverLocal = "local"
	StorageDriverS3    = "s3"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database    DatabaseConfig
	Redis       RedisConfig
	JWT         JWTConfig
	CORS        CORSConfig
	Log         LogConfig
	Storage     StorageConfig
	Datasets    DatasetsConfig
	Ledger      LedgerConfig
	Scoring     ScoringConfig
	Catalog     CatalogConfig
	HealthCheck HealthCheckConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	AutoMigrate  bool
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// JWTConfig validates bearer tokens minted by the Gitea-backed login proxy.
type JWTConfig struct {
	Secret string
	Issuer string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// StorageConfig selects and configures the dataset blob backend.
type StorageConfig struct {
	Driver   string
	LocalDir string
	S3       S3Config
}

// S3Config configures an S3 compatible bucket (AWS, MinIO, Gitea packages proxy).
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Prefix          string
	ForcePathStyle  bool
}

// DatasetsConfig governs upload validation.
type DatasetsConfig struct {
	MaxFileSizeBytes int64
	SniffBytes       int
}

// LedgerConfig controls per-client read throttling on datasets.
type LedgerConfig struct {
	RateLimit  int
	RateWindow time.Duration
}

// ScoringConfig tunes the compatibility scoring policy and its workers.
type ScoringConfig struct {
	Workers              int
	Retries              int
	WeightProblemType    float64
	WeightFormat         float64
	WeightParameter      float64
	RecomputeSchedule    string
	RecomputeConcurrency int
}

// CatalogConfig points at the sources of declared problem schemas.
type CatalogConfig struct {
	File       string
	CacheTTL   time.Duration
	GiteaURL   string
	GiteaToken string
	GiteaQuery string
}

// HealthCheckConfig schedules the blob/row reconciler inside the API process.
type HealthCheckConfig struct {
	Schedule string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, err
		}
	}

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
		AutoMigrate:  v.GetBool("MIGRATIONS_AUTO"),
	}

	cfg.Redis = RedisConfig{
		Enabled:  v.GetBool("REDIS_ENABLED"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret: v.GetString("JWT_SECRET"),
		Issuer: v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Storage = StorageConfig{
		Driver:   strings.ToLower(v.GetString("STORAGE_DRIVER")),
		LocalDir: v.GetString("DATASETS_STORAGE_DIR"),
		S3: S3Config{
			Bucket:          v.GetString("S3_BUCKET"),
			Region:          v.GetString("S3_REGION"),
			Endpoint:        v.GetString("S3_ENDPOINT"),
			AccessKeyID:     v.GetString("S3_ACCESS_KEY_ID"),
			SecretAccessKey: v.GetString("S3_SECRET_ACCESS_KEY"),
			Prefix:          v.GetString("S3_PREFIX"),
			ForcePathStyle:  v.GetBool("S3_FORCE_PATH_STYLE"),
		},
	}

	maxSize := v.GetInt64("DATASETS_MAX_FILE_SIZE")
	if maxSize <= 0 {
		maxSize = 100 * 1024 * 1024
	}
	sniffBytes := v.GetInt("DATASETS_SNIFF_BYTES")
	if sniffBytes <= 0 {
		sniffBytes = 64 * 1024
	}
	cfg.Datasets = DatasetsConfig{
		MaxFileSizeBytes: maxSize,
		SniffBytes:       sniffBytes,
	}

	cfg.Ledger = LedgerConfig{
		RateLimit:  v.GetInt("LEDGER_RATE_LIMIT"),
		RateWindow: parseDuration(v.GetString("LEDGER_RATE_WINDOW"), time.Minute),
	}

	cfg.Scoring = ScoringConfig{
		Workers:              v.GetInt("SCORING_WORKERS"),
		Retries:              v.GetInt("SCORING_RETRIES"),
		WeightProblemType:    v.GetFloat64("SCORING_WEIGHT_PROBLEM_TYPE"),
		WeightFormat:         v.GetFloat64("SCORING_WEIGHT_FORMAT"),
		WeightParameter:      v.GetFloat64("SCORING_WEIGHT_PARAMETER"),
		RecomputeSchedule:    v.GetString("COMPAT_RECOMPUTE_SCHEDULE"),
		RecomputeConcurrency: v.GetInt("COMPAT_RECOMPUTE_CONCURRENCY"),
	}

	cfg.Catalog = CatalogConfig{
		File:       v.GetString("CATALOG_FILE"),
		CacheTTL:   parseDuration(v.GetString("CATALOG_CACHE_TTL"), 10*time.Minute),
		GiteaURL:   strings.TrimRight(v.GetString("GITEA_URL"), "/"),
		GiteaToken: v.GetString("GITEA_TOKEN"),
		GiteaQuery: v.GetString("GITEA_CATALOG_QUERY"),
	}

	cfg.HealthCheck = HealthCheckConfig{
		Schedule: v.GetString("HEALTHCHECK_SCHEDULE"),
	}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "rastion")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("MIGRATIONS_AUTO", true)

	v.SetDefault("REDIS_ENABLED", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("STORAGE_DRIVER", StorageDriverLocal)
	v.SetDefault("DATASETS_STORAGE_DIR", "./uploads/datasets")
	v.SetDefault("S3_REGION", "us-east-1")
	v.SetDefault("S3_PREFIX", "datasets/")
	v.SetDefault("S3_FORCE_PATH_STYLE", false)
	v.SetDefault("DATASETS_MAX_FILE_SIZE", 100*1024*1024)
	v.SetDefault("DATASETS_SNIFF_BYTES", 64*1024)

	v.SetDefault("LEDGER_RATE_LIMIT", 120)
	v.SetDefault("LEDGER_RATE_WINDOW", "1m")

	v.SetDefault("SCORING_WORKERS", 2)
	v.SetDefault("SCORING_RETRIES", 3)
	v.SetDefault("SCORING_WEIGHT_PROBLEM_TYPE", 0.5)
	v.SetDefault("SCORING_WEIGHT_FORMAT", 0.3)
	v.SetDefault("SCORING_WEIGHT_PARAMETER", 0.2)
	v.SetDefault("COMPAT_RECOMPUTE_SCHEDULE", "")
	v.SetDefault("COMPAT_RECOMPUTE_CONCURRENCY", 4)

	v.SetDefault("CATALOG_FILE", "")
	v.SetDefault("CATALOG_CACHE_TTL", "10m")
	v.SetDefault("GITEA_URL", "")
	v.SetDefault("GITEA_TOKEN", "")
	v.SetDefault("GITEA_CATALOG_QUERY", "")

	v.SetDefault("HEALTHCHECK_SCHEDULE", "")
}

func isMissingFile(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
