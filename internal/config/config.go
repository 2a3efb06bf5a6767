package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	fileKey := envKey + "_FILE"
	filePath := os.Getenv(fileKey)
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	val := strings.TrimSpace(string(data))
	os.Setenv(envKey, val)
}

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Zitadel   ZitadelConfig
	Gateway   GatewayConfig
	Suno      SunoConfig
	Storage   StorageConfig
	R2        R2Config
	Worker    WorkerConfig
}

type ServerConfig struct {
	Port        string
	Env         string
	LogLevel    string
	ApiDomain   string
	BodyLimitMB int
}

// IsProduction reports whether error details must be hidden from clients
func (s ServerConfig) IsProduction() bool {
	return strings.EqualFold(s.Env, "production") || strings.EqualFold(s.Env, "prod")
}

type DatabaseConfig struct {
	Driver          string // mysql or sqlite
	DSN             string
	Host            string
	Port            string
	User            string
	Password        string
	Name            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnectAttempts int
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration int // hours
}

type AuthConfig struct {
	Disabled bool
}

type RateLimitConfig struct {
	GeneratePerHour int
	UploadPerHour   int
}

type ZitadelConfig struct {
	Domain   string
	ClientID string
	Issuer   string
}

type GatewayConfig struct {
	Enabled bool
}

type SunoConfig struct {
	BaseURL      string
	Cookie       string
	Timeout      time.Duration
	MaxAttempts  int
	Backoff      time.Duration
	SyncEnabled  bool
	SyncInterval time.Duration
	SyncMaxPolls int
}

type StorageConfig struct {
	Backend             string // local or r2
	Location            string
	TempDir             string
	MaxFileSize         int64
	AllowedExtensions   []string
	URLPrefix           string
	UseOriginalFilename bool
	MaxFilenameLength   int
	KeyPrefix           string
}

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicURL       string
}

type WorkerConfig struct {
	Concurrency   int
	QueueCapacity int
}

func Load() (*Config, error) {
	// .env is optional; real environment variables win
	_ = godotenv.Load()

	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("DB_PASSWORD")
	readSecret("REDIS_PASSWORD")
	readSecret("JWT_SECRET")
	readSecret("SUNO_COOKIE")
	readSecret("R2_ACCOUNT_ID")
	readSecret("R2_ACCESS_KEY_ID")
	readSecret("R2_SECRET_ACCESS_KEY")
	readSecret("ZITADEL_CLIENT_ID")

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// Environment variables
	v.AutomaticEnv()

	bindEnv(v)
	setDefaults(v)

	// Try to read config file (optional)
	_ = v.ReadInConfig()

	cfg := fromViper(v)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// bindEnv binds environment variables with underscores to nested config keys
func bindEnv(v *viper.Viper) {
	_ = v.BindEnv("server.port", "SERVER_PORT")
	_ = v.BindEnv("server.env", "SERVER_ENV")
	_ = v.BindEnv("server.log_level", "LOG_LEVEL")
	_ = v.BindEnv("server.api_domain", "API_DOMAIN")
	_ = v.BindEnv("server.body_limit_mb", "BODY_LIMIT_MB")
	_ = v.BindEnv("database.driver", "DB_DRIVER")
	_ = v.BindEnv("database.dsn", "DB_DSN")
	_ = v.BindEnv("database.host", "DB_HOST")
	_ = v.BindEnv("database.port", "DB_PORT")
	_ = v.BindEnv("database.user", "DB_USER")
	_ = v.BindEnv("database.password", "DB_PASSWORD")
	_ = v.BindEnv("database.name", "DB_NAME")
	_ = v.BindEnv("database.max_open_conns", "DB_MAX_OPEN_CONNS")
	_ = v.BindEnv("database.max_idle_conns", "DB_MAX_IDLE_CONNS")
	_ = v.BindEnv("database.conn_max_lifetime", "DB_CONN_MAX_LIFETIME")
	_ = v.BindEnv("redis.addr", "REDIS_ADDR")
	_ = v.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = v.BindEnv("redis.db", "REDIS_DB")
	_ = v.BindEnv("jwt.secret", "JWT_SECRET")
	_ = v.BindEnv("jwt.expiration", "JWT_EXPIRATION")
	_ = v.BindEnv("auth.disabled", "AUTH_DISABLED")
	_ = v.BindEnv("zitadel.domain", "ZITADEL_DOMAIN")
	_ = v.BindEnv("zitadel.client_id", "ZITADEL_CLIENT_ID")
	_ = v.BindEnv("zitadel.issuer", "ZITADEL_ISSUER")
	_ = v.BindEnv("gateway.enabled", "GATEWAY_ENABLED")
	_ = v.BindEnv("suno.base_url", "SUNO_BASE_URL")
	_ = v.BindEnv("suno.cookie", "SUNO_COOKIE")
	_ = v.BindEnv("suno.timeout", "SUNO_TIMEOUT")
	_ = v.BindEnv("suno.max_attempts", "SUNO_MAX_ATTEMPTS")
	_ = v.BindEnv("suno.backoff", "SUNO_BACKOFF")
	_ = v.BindEnv("suno.sync_enabled", "SUNO_SYNC_ENABLED")
	_ = v.BindEnv("suno.sync_interval", "SUNO_SYNC_INTERVAL")
	_ = v.BindEnv("suno.sync_max_polls", "SUNO_SYNC_MAX_POLLS")
	_ = v.BindEnv("storage.backend", "STORAGE_BACKEND")
	_ = v.BindEnv("storage.location", "STORAGE_LOCATION")
	_ = v.BindEnv("storage.temp_dir", "STORAGE_TEMP_DIR")
	_ = v.BindEnv("storage.max_file_size", "STORAGE_MAX_FILE_SIZE")
	_ = v.BindEnv("storage.allowed_extensions", "STORAGE_ALLOWED_EXTENSIONS")
	_ = v.BindEnv("storage.url_prefix", "STORAGE_URL_PREFIX")
	_ = v.BindEnv("storage.use_original_filename", "STORAGE_USE_ORIGINAL_FILENAME")
	_ = v.BindEnv("storage.max_filename_length", "STORAGE_MAX_FILENAME_LENGTH")
	_ = v.BindEnv("storage.key_prefix", "STORAGE_KEY_PREFIX")
	_ = v.BindEnv("r2.account_id", "R2_ACCOUNT_ID")
	_ = v.BindEnv("r2.access_key_id", "R2_ACCESS_KEY_ID")
	_ = v.BindEnv("r2.secret_access_key", "R2_SECRET_ACCESS_KEY")
	_ = v.BindEnv("r2.bucket_name", "R2_BUCKET_NAME")
	_ = v.BindEnv("r2.public_url", "R2_PUBLIC_URL")
	_ = v.BindEnv("worker.concurrency", "WORKER_CONCURRENCY")
	_ = v.BindEnv("worker.queue_capacity", "WORKER_QUEUE_CAPACITY")
	_ = v.BindEnv("ratelimit.generate_per_hour", "RATELIMIT_GENERATE_PER_HOUR")
	_ = v.BindEnv("ratelimit.upload_per_hour", "RATELIMIT_UPLOAD_PER_HOUR")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.env", "development")
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.body_limit_mb", 50)

	// Database defaults
	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "3306")
	v.SetDefault("database.user", "root")
	v.SetDefault("database.name", "aimusic")
	v.SetDefault("database.max_open_conns", 50)
	v.SetDefault("database.max_idle_conns", 25)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("database.connect_attempts", 5)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("jwt.secret", "change-me-in-production")
	v.SetDefault("jwt.expiration", 24)
	v.SetDefault("auth.disabled", false)
	v.SetDefault("gateway.enabled", false)
	v.SetDefault("ratelimit.generate_per_hour", 30)
	v.SetDefault("ratelimit.upload_per_hour", 100)

	// Suno defaults
	v.SetDefault("suno.base_url", "http://localhost:3000/api")
	v.SetDefault("suno.timeout", 30*time.Second)
	v.SetDefault("suno.max_attempts", 2)
	v.SetDefault("suno.backoff", time.Second)
	v.SetDefault("suno.sync_enabled", false)
	v.SetDefault("suno.sync_interval", 10*time.Second)
	v.SetDefault("suno.sync_max_polls", 60)

	// Storage defaults
	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.location", "./data/uploads")
	v.SetDefault("storage.temp_dir", "./data/tmp")
	v.SetDefault("storage.max_file_size", 50*1024*1024)
	v.SetDefault("storage.allowed_extensions", []string{"mp3", "wav", "m4a", "aac", "ogg", "flac"})
	v.SetDefault("storage.url_prefix", "/api/storage/download")
	v.SetDefault("storage.use_original_filename", false)
	v.SetDefault("storage.max_filename_length", 255)
	v.SetDefault("storage.key_prefix", "audio")

	// Worker defaults
	v.SetDefault("worker.concurrency", 4)
	v.SetDefault("worker.queue_capacity", 100)
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		Server: ServerConfig{
			Port:        v.GetString("server.port"),
			Env:         v.GetString("server.env"),
			LogLevel:    v.GetString("server.log_level"),
			ApiDomain:   v.GetString("server.api_domain"),
			BodyLimitMB: v.GetInt("server.body_limit_mb"),
		},
		Database: DatabaseConfig{
			Driver:          v.GetString("database.driver"),
			DSN:             v.GetString("database.dsn"),
			Host:            v.GetString("database.host"),
			Port:            v.GetString("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			Name:            v.GetString("database.name"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetDuration("database.conn_max_lifetime"),
			ConnectAttempts: v.GetInt("database.connect_attempts"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret:     v.GetString("jwt.secret"),
			Expiration: v.GetInt("jwt.expiration"),
		},
		Auth: AuthConfig{
			Disabled: v.GetBool("auth.disabled"),
		},
		RateLimit: RateLimitConfig{
			GeneratePerHour: v.GetInt("ratelimit.generate_per_hour"),
			UploadPerHour:   v.GetInt("ratelimit.upload_per_hour"),
		},
		Zitadel: ZitadelConfig{
			Domain:   v.GetString("zitadel.domain"),
			ClientID: v.GetString("zitadel.client_id"),
			Issuer:   v.GetString("zitadel.issuer"),
		},
		Gateway: GatewayConfig{
			Enabled: v.GetBool("gateway.enabled"),
		},
		Suno: SunoConfig{
			BaseURL:      strings.TrimRight(v.GetString("suno.base_url"), "/"),
			Cookie:       v.GetString("suno.cookie"),
			Timeout:      v.GetDuration("suno.timeout"),
			MaxAttempts:  v.GetInt("suno.max_attempts"),
			Backoff:      v.GetDuration("suno.backoff"),
			SyncEnabled:  v.GetBool("suno.sync_enabled"),
			SyncInterval: v.GetDuration("suno.sync_interval"),
			SyncMaxPolls: v.GetInt("suno.sync_max_polls"),
		},
		Storage: StorageConfig{
			Backend:             v.GetString("storage.backend"),
			Location:            v.GetString("storage.location"),
			TempDir:             v.GetString("storage.temp_dir"),
			MaxFileSize:         v.GetInt64("storage.max_file_size"),
			AllowedExtensions:   stringList(v.GetStringSlice("storage.allowed_extensions")),
			URLPrefix:           strings.TrimRight(v.GetString("storage.url_prefix"), "/"),
			UseOriginalFilename: v.GetBool("storage.use_original_filename"),
			MaxFilenameLength:   v.GetInt("storage.max_filename_length"),
			KeyPrefix:           v.GetString("storage.key_prefix"),
		},
		R2: R2Config{
			AccountID:       v.GetString("r2.account_id"),
			AccessKeyID:     v.GetString("r2.access_key_id"),
			SecretAccessKey: v.GetString("r2.secret_access_key"),
			BucketName:      v.GetString("r2.bucket_name"),
			PublicURL:       v.GetString("r2.public_url"),
		},
		Worker: WorkerConfig{
			Concurrency:   v.GetInt("worker.concurrency"),
			QueueCapacity: v.GetInt("worker.queue_capacity"),
		},
	}
}

// stringList accepts both YAML lists and comma separated env values
func stringList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// Validate rejects settings the services cannot run with
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "mysql", "sqlite":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}

	switch c.Storage.Backend {
	case "local", "r2":
	default:
		return fmt.Errorf("unsupported storage backend %q", c.Storage.Backend)
	}

	if c.Suno.MaxAttempts < 1 {
		return fmt.Errorf("suno.max_attempts must be at least 1, got %d", c.Suno.MaxAttempts)
	}
	if c.Suno.Backoff < 0 {
		return fmt.Errorf("suno.backoff must not be negative")
	}
	if c.Storage.MaxFileSize <= 0 {
		return fmt.Errorf("storage.max_file_size must be positive")
	}
	if c.Storage.MaxFilenameLength <= 0 {
		return fmt.Errorf("storage.max_filename_length must be positive")
	}
	if c.Worker.Concurrency < 1 {
		return fmt.Errorf("worker.concurrency must be at least 1")
	}

	return nil
}
