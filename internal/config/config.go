package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"iwasp/internal/export"
)

// Config aggregates application settings that may be sourced from files or environment variables.
type Config struct {
	API      APIConfig      `mapstructure:"api"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	MinIO    MinIOConfig    `mapstructure:"minio"`
	Clamd    ClamdConfig    `mapstructure:"clamd"`
	Session  SessionConfig  `mapstructure:"session"`
	Render   RenderConfig   `mapstructure:"render"`
	Export   ExportConfig   `mapstructure:"export"`
	Upload   UploadConfig   `mapstructure:"upload"`
}

// APIConfig contains HTTP server settings.
type APIConfig struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	// InternalSecret 保护 /internal 运维接口；为空时不注册这些路由。
	InternalSecret string `mapstructure:"internal_secret"`
}

// DatabaseConfig contains connection options for PostgreSQL.
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Name     string `mapstructure:"name"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"sslmode"`
}

// RedisConfig 包含 Redis 连接配置。
type RedisConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// Addr returns host:port for go-redis and asynq.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// MinIOConfig contains connection options for MinIO/S3-compatible storage.
type MinIOConfig struct {
	Endpoint         string `mapstructure:"endpoint"`
	PublicEndpoint   string `mapstructure:"public_endpoint"`
	AccessKeyID      string `mapstructure:"access_key_id"`
	SecretAccessKey  string `mapstructure:"secret_access_key"`
	UseSSL           bool   `mapstructure:"use_ssl"`
	Bucket           string `mapstructure:"bucket"`
	Region           string `mapstructure:"region"`
	BucketLookup     string `mapstructure:"bucket_lookup"`
	AutoCreateBucket bool   `mapstructure:"auto_create_bucket"`
}

// ClamdConfig 指向病毒扫描服务；Addr 为空时跳过扫描（仅限本地开发）。
type ClamdConfig struct {
	Addr string `mapstructure:"addr"`
}

// SessionConfig holds the shared secret used to verify session tokens
// minted by the order service.
type SessionConfig struct {
	Secret string `mapstructure:"secret"`
	Issuer string `mapstructure:"issuer"`
}

// RenderConfig controls preview geometry.
type RenderConfig struct {
	PreviewWidthPx float64 `mapstructure:"preview_width_px"`
}

// ExportConfig controls print pack generation.
type ExportConfig struct {
	FilePrefix  string `mapstructure:"file_prefix"`
	Supersample int    `mapstructure:"supersample"`
}

// UploadConfig 约束 Logo 上传。
type UploadConfig struct {
	MaxBytes      int64   `mapstructure:"max_bytes"`
	OptimalFactor float64 `mapstructure:"optimal_factor"`
	DailyLimit    int     `mapstructure:"daily_limit"`
}

// DSN builds a lib/pq compatible connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host,
		d.Port,
		d.User,
		d.Password,
		d.Name,
		d.SSLMode,
	)
}

// Load reads configuration from environment variables (with optional defaults).
// A .env file in the working directory is loaded first when present; variables
// already set in the environment win.
func Load() (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}
	return LoadFrom(viper.New())
}

// LoadFrom decodes configuration using an existing viper instance, which lets
// the CLI bind command flags before decoding.
func LoadFrom(v *viper.Viper) (*Config, error) {
	setDefaults(v)
	v.AutomaticEnv()

	if err := bindEnv(v); err != nil {
		return nil, fmt.Errorf("bind env: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadOffline decodes the same sources as LoadFrom but only validates the
// render, export and upload sections. The CLI works without database,
// redis or object storage.
func LoadOffline(v *viper.Viper) (*Config, error) {
	setDefaults(v)
	v.AutomaticEnv()

	if err := bindEnv(v); err != nil {
		return nil, fmt.Errorf("bind env: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := validateEngine(cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// MustLoad wraps Load and panics on failure.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.port", 8080)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "iwasp")
	v.SetDefault("database.user", "iwasp")
	v.SetDefault("database.password", "iwasp")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("minio.endpoint", "localhost:9000")
	v.SetDefault("minio.public_endpoint", "http://localhost:9000")
	v.SetDefault("minio.use_ssl", false)
	v.SetDefault("minio.bucket", "cards")
	v.SetDefault("minio.bucket_lookup", "auto")
	v.SetDefault("minio.auto_create_bucket", true)
	v.SetDefault("session.issuer", "iwasp-orders")
	v.SetDefault("render.preview_width_px", 428.0)
	v.SetDefault("export.file_prefix", "IWASP")
	v.SetDefault("export.supersample", 4)
	v.SetDefault("upload.max_bytes", 10<<20)
	v.SetDefault("upload.optimal_factor", 2.0)
	v.SetDefault("upload.daily_limit", 50)
}

func bindEnv(v *viper.Viper) error {
	mappings := map[string]string{
		"api.port":                 "API_PORT",
		"api.allowed_origins":      "API_ALLOWED_ORIGINS",
		"api.internal_secret":      "INTERNAL_API_SECRET",
		"database.host":            "DATABASE_HOST",
		"database.port":            "DATABASE_PORT",
		"database.name":            "POSTGRES_DB",
		"database.user":            "POSTGRES_USER",
		"database.password":        "POSTGRES_PASSWORD",
		"database.sslmode":         "DATABASE_SSLMODE",
		"redis.host":               "REDIS_HOST",
		"redis.port":               "REDIS_PORT",
		"minio.endpoint":           "MINIO_ENDPOINT",
		"minio.public_endpoint":    "MINIO_PUBLIC_ENDPOINT",
		"minio.access_key_id":      "MINIO_ACCESS_KEY_ID",
		"minio.secret_access_key":  "MINIO_SECRET_ACCESS_KEY",
		"minio.use_ssl":            "MINIO_USE_SSL",
		"minio.bucket":             "MINIO_BUCKET",
		"minio.region":             "MINIO_REGION",
		"minio.bucket_lookup":      "MINIO_BUCKET_LOOKUP",
		"minio.auto_create_bucket": "MINIO_AUTO_CREATE_BUCKET",
		"clamd.addr":               "CLAMD_ADDR",
		"session.secret":           "SESSION_SECRET",
		"session.issuer":           "SESSION_ISSUER",
		"render.preview_width_px":  "RENDER_PREVIEW_WIDTH_PX",
		"export.file_prefix":       "EXPORT_FILE_PREFIX",
		"export.supersample":       "EXPORT_SUPERSAMPLE",
		"upload.max_bytes":         "UPLOAD_MAX_BYTES",
		"upload.optimal_factor":    "UPLOAD_OPTIMAL_FACTOR",
		"upload.daily_limit":       "UPLOAD_DAILY_LIMIT",
	}

	for key, env := range mappings {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("bind %s to %s: %w", key, env, err)
		}
	}

	return nil
}

func validate(cfg Config) error {
	if cfg.API.Port <= 0 {
		return errors.New("api port must be positive")
	}
	if cfg.Database.Host == "" {
		return errors.New("database host is required")
	}
	if cfg.Database.Port <= 0 {
		return errors.New("database port must be positive")
	}
	if cfg.Database.Name == "" {
		return errors.New("database name is required")
	}
	if cfg.Database.User == "" {
		return errors.New("database user is required")
	}
	if cfg.Database.Password == "" {
		return errors.New("database password is required")
	}
	if cfg.Database.SSLMode == "" {
		return errors.New("database sslmode is required")
	}
	if cfg.Redis.Host == "" {
		return errors.New("redis host is required")
	}
	if cfg.Redis.Port <= 0 {
		return errors.New("redis port must be positive")
	}
	if cfg.MinIO.Endpoint == "" {
		return errors.New("minio endpoint is required")
	}
	if cfg.MinIO.AccessKeyID == "" {
		return errors.New("minio access key id is required")
	}
	if cfg.MinIO.SecretAccessKey == "" {
		return errors.New("minio secret access key is required")
	}
	if cfg.MinIO.Bucket == "" {
		return errors.New("minio bucket is required")
	}
	if len(strings.TrimSpace(cfg.Session.Secret)) < 32 {
		return errors.New("session secret must be at least 32 bytes")
	}
	return validateEngine(cfg)
}

// validateEngine 只校验渲染与导出相关配置，离线 CLI 使用。
func validateEngine(cfg Config) error {
	if cfg.Render.PreviewWidthPx <= 0 {
		return errors.New("render preview width must be positive")
	}
	if strings.TrimSpace(cfg.Export.FilePrefix) == "" {
		return errors.New("export file prefix is required")
	}
	if cfg.Export.Supersample != export.DefaultSupersample {
		return fmt.Errorf("export supersample is fixed at %d×, got %d", export.DefaultSupersample, cfg.Export.Supersample)
	}
	if cfg.Upload.MaxBytes <= 0 {
		return errors.New("upload max bytes must be positive")
	}
	if cfg.Upload.OptimalFactor < 1 {
		return errors.New("upload optimal factor must be at least 1")
	}
	return nil
}
