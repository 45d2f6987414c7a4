package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"weather-etl/pkg/database"
)

// Config is the full application configuration.
//
// Values are layered: built-in defaults, then the YAML file named by
// CONFIG_FILE (if any), then a .env file in the working directory, then the
// process environment. Later layers win.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Ingestion IngestionConfig `yaml:"ingestion"`
	Uploader  UploaderConfig  `yaml:"uploader"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL settings. URL overrides the discrete fields.
type DatabaseConfig struct {
	URL             string        `yaml:"url"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
}

// IngestionConfig controls the ETL pipelines
type IngestionConfig struct {
	BatchSize      int    `yaml:"batch_size"`
	SampleLines    int    `yaml:"sample_lines"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes"`
	DataDir        string `yaml:"data_dir"`
}

// UploaderConfig controls the bulk upload client
type UploaderConfig struct {
	BaseURL        string        `yaml:"base_url"`
	Timeout        time.Duration `yaml:"timeout"`
	FailureTrip    uint32        `yaml:"failure_trip"`
	BreakerTimeout time.Duration `yaml:"breaker_timeout"`
}

// LoggingConfig holds logger settings
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    5 * time.Minute,
			IdleTimeout:     2 * time.Minute,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			User:            "postgres",
			Database:        "weather",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
			ConnMaxIdleTime: 5 * time.Minute,
		},
		Ingestion: IngestionConfig{
			BatchSize:      5000,
			SampleLines:    5,
			MaxUploadBytes: 100 << 20,
			DataDir:        "./wx_data",
		},
		Uploader: UploaderConfig{
			BaseURL:        "http://localhost:8080",
			Timeout:        5 * time.Minute,
			FailureTrip:    3,
			BreakerTimeout: time.Minute,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfig builds the configuration from defaults, CONFIG_FILE, .env and
// the environment.
func LoadConfig() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	// A missing .env is normal outside local development.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("invalid %s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	int64Var := func(key string, dst *int64) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("invalid %s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			d, err := time.ParseDuration(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("invalid %s: %w", key, err))
				return
			}
			*dst = d
		}
	}

	str("SERVER_HOST", &c.Server.Host)
	integer("SERVER_PORT", &c.Server.Port)
	integer("PORT", &c.Server.Port)
	duration("SERVER_READ_TIMEOUT", &c.Server.ReadTimeout)
	duration("SERVER_WRITE_TIMEOUT", &c.Server.WriteTimeout)
	duration("SERVER_IDLE_TIMEOUT", &c.Server.IdleTimeout)
	duration("SERVER_SHUTDOWN_TIMEOUT", &c.Server.ShutdownTimeout)

	str("DATABASE_URL", &c.Database.URL)
	str("DB_HOST", &c.Database.Host)
	integer("DB_PORT", &c.Database.Port)
	str("DB_USER", &c.Database.User)
	str("DB_PASSWORD", &c.Database.Password)
	str("DB_NAME", &c.Database.Database)
	str("DB_SSLMODE", &c.Database.SSLMode)
	integer("DB_MAX_OPEN_CONNS", &c.Database.MaxOpenConns)
	integer("DB_MAX_IDLE_CONNS", &c.Database.MaxIdleConns)
	duration("DB_CONN_MAX_LIFETIME", &c.Database.ConnMaxLifetime)
	duration("DB_CONN_MAX_IDLE_TIME", &c.Database.ConnMaxIdleTime)

	integer("INGEST_BATCH_SIZE", &c.Ingestion.BatchSize)
	integer("INGEST_SAMPLE_LINES", &c.Ingestion.SampleLines)
	int64Var("UPLOAD_MAX_BYTES", &c.Ingestion.MaxUploadBytes)
	str("DATA_DIR", &c.Ingestion.DataDir)

	str("UPLOADER_BASE_URL", &c.Uploader.BaseURL)
	duration("UPLOADER_TIMEOUT", &c.Uploader.Timeout)
	duration("UPLOADER_BREAKER_TIMEOUT", &c.Uploader.BreakerTimeout)
	if v, ok := os.LookupEnv("UPLOADER_FAILURE_TRIP"); ok && v != "" {
		n, err := strconv.ParseUint(strings.TrimSpace(v), 10, 32)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid UPLOADER_FAILURE_TRIP: %w", err))
		} else {
			c.Uploader.FailureTrip = uint32(n)
		}
	}

	str("LOG_LEVEL", &c.Logging.Level)
	c.Logging.Level = strings.ToLower(c.Logging.Level)

	return errors.Join(errs...)
}

// Validate checks the configuration for values the binaries cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Database.URL == "" {
		if c.Database.Host == "" {
			errs = append(errs, errors.New("database host is required when DATABASE_URL is not set"))
		}
		if c.Database.Database == "" {
			errs = append(errs, errors.New("database name is required when DATABASE_URL is not set"))
		}
	}
	if c.Database.MaxOpenConns < 1 {
		errs = append(errs, fmt.Errorf("max open connections must be positive, got %d", c.Database.MaxOpenConns))
	}
	if c.Ingestion.BatchSize < 1 {
		errs = append(errs, fmt.Errorf("ingestion batch size must be positive, got %d", c.Ingestion.BatchSize))
	}
	if c.Ingestion.SampleLines < 1 {
		errs = append(errs, fmt.Errorf("ingestion sample lines must be positive, got %d", c.Ingestion.SampleLines))
	}
	if c.Ingestion.MaxUploadBytes < 1 {
		errs = append(errs, fmt.Errorf("max upload bytes must be positive, got %d", c.Ingestion.MaxUploadBytes))
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error", "fatal":
	default:
		errs = append(errs, fmt.Errorf("unknown log level %q", c.Logging.Level))
	}

	return errors.Join(errs...)
}

// PostgresConfig converts the database section for pkg/database.
func (c *Config) PostgresConfig() *database.Config {
	return &database.Config{
		URL:             c.Database.URL,
		Host:            c.Database.Host,
		Port:            c.Database.Port,
		User:            c.Database.User,
		Password:        c.Database.Password,
		Database:        c.Database.Database,
		SSLMode:         c.Database.SSLMode,
		MaxOpenConns:    c.Database.MaxOpenConns,
		MaxIdleConns:    c.Database.MaxIdleConns,
		ConnMaxLifetime: c.Database.ConnMaxLifetime,
		ConnMaxIdleTime: c.Database.ConnMaxIdleTime,
	}
}
