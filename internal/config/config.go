// Package config loads the exchange configuration from the environment,
// with optional .env and YAML-file overlays.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// S3Config holds the blob-store settings for result publication. The
// configuration is complete when bucket and endpoint are set; otherwise
// publication is a logged no-op.
type S3Config struct {
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
}

// Complete reports whether enough bucket information is present to publish.
func (c S3Config) Complete() bool {
	return c.Bucket != "" && c.Endpoint != ""
}

// DBConfig holds the SurrealDB registry connection settings.
type DBConfig struct {
	URL       string `yaml:"url"`
	Namespace string `yaml:"namespace"`
	Database  string `yaml:"database"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
	AuthLevel string `yaml:"auth_level"`
}

// Config holds all configuration values.
type Config struct {
	// HTTP daemon
	ListenAddr string `yaml:"listen_addr"`

	// Per-project artifact storage root
	RepositoryDir string `yaml:"repository_dir"`

	// HUMAN protocol exchange identity and peers
	ExchangeID    int    `yaml:"exchange_id"`
	ExchangeKey   string `yaml:"exchange_key"`
	HumanAPIKey   string `yaml:"human_api_key"`
	JobFlowURL    string `yaml:"job_flow_url"`
	InviteBaseURL string `yaml:"invite_base_url"`

	S3 S3Config `yaml:"s3"`
	DB DBConfig `yaml:"db"`

	// Logging
	LogFile      string     `yaml:"log_file"`
	LogLevelName string     `yaml:"log_level"`
	LogLevel     slog.Level `yaml:"-"`
}

// Load reads configuration from environment variables. When envFile is
// non-empty it is loaded first via godotenv; a missing file is not an
// error so the daemon can run on plain environment variables.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("load env file: %w", err)
		}
	}

	cfg := Config{
		ListenAddr:    getEnv("ANNOBRIDGE_LISTEN_ADDR", ":8673"),
		RepositoryDir: getEnv("ANNOBRIDGE_REPOSITORY_DIR", "/var/lib/annobridge"),

		ExchangeID:    getEnvAsInt("HUMAN_EXCHANGE_ID", 0),
		ExchangeKey:   getEnv("HUMAN_EXCHANGE_KEY", ""),
		HumanAPIKey:   getEnv("HUMAN_API_KEY", ""),
		JobFlowURL:    strings.TrimRight(getEnv("HUMAN_JOB_FLOW_URL", ""), "/"),
		InviteBaseURL: strings.TrimRight(getEnv("ANNOBRIDGE_INVITE_BASE_URL", "http://localhost:8673"), "/"),

		S3: S3Config{
			Region:    getEnv("HUMAN_S3_REGION", ""),
			Endpoint:  strings.TrimRight(getEnv("HUMAN_S3_ENDPOINT", ""), "/"),
			AccessKey: getEnv("HUMAN_S3_ACCESS_KEY", ""),
			SecretKey: getEnv("HUMAN_S3_SECRET_KEY", ""),
			Bucket:    getEnv("HUMAN_S3_BUCKET", ""),
		},

		DB: DBConfig{
			URL:       getEnv("SURREALDB_URL", "ws://localhost:8000/rpc"),
			Namespace: getEnv("SURREALDB_NAMESPACE", "annobridge"),
			Database:  getEnv("SURREALDB_DATABASE", "exchange"),
			Username:  getEnv("SURREALDB_USER", "root"),
			Password:  getEnv("SURREALDB_PASS", "root"),
			AuthLevel: getEnv("SURREALDB_AUTH_LEVEL", "root"),
		},

		LogFile:      getEnv("ANNOBRIDGE_LOG_FILE", ""),
		LogLevelName: getEnv("ANNOBRIDGE_LOG_LEVEL", "INFO"),
	}
	cfg.LogLevel = parseLogLevel(cfg.LogLevelName)

	return cfg, nil
}

// LoadWithFile reads the environment configuration and then overlays the
// YAML file at path on top of it. Zero values in the file leave the
// corresponding setting untouched.
func LoadWithFile(envFile, path string) (Config, error) {
	cfg, err := Load(envFile)
	if err != nil {
		return Config{}, err
	}
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	var overlay Config
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}
	cfg.apply(overlay)
	cfg.LogLevel = parseLogLevel(cfg.LogLevelName)

	return cfg, nil
}

func (c *Config) apply(o Config) {
	setString(&c.ListenAddr, o.ListenAddr)
	setString(&c.RepositoryDir, o.RepositoryDir)
	if o.ExchangeID != 0 {
		c.ExchangeID = o.ExchangeID
	}
	setString(&c.ExchangeKey, o.ExchangeKey)
	setString(&c.HumanAPIKey, o.HumanAPIKey)
	setString(&c.JobFlowURL, strings.TrimRight(o.JobFlowURL, "/"))
	setString(&c.InviteBaseURL, strings.TrimRight(o.InviteBaseURL, "/"))

	setString(&c.S3.Region, o.S3.Region)
	setString(&c.S3.Endpoint, strings.TrimRight(o.S3.Endpoint, "/"))
	setString(&c.S3.AccessKey, o.S3.AccessKey)
	setString(&c.S3.SecretKey, o.S3.SecretKey)
	setString(&c.S3.Bucket, o.S3.Bucket)

	setString(&c.DB.URL, o.DB.URL)
	setString(&c.DB.Namespace, o.DB.Namespace)
	setString(&c.DB.Database, o.DB.Database)
	setString(&c.DB.Username, o.DB.Username)
	setString(&c.DB.Password, o.DB.Password)
	setString(&c.DB.AuthLevel, o.DB.AuthLevel)

	setString(&c.LogFile, o.LogFile)
	setString(&c.LogLevelName, o.LogLevelName)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
