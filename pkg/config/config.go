package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Port        string `yaml:"port"`
	DatabaseURL string `yaml:"database_url"`
	AppEnv      string `yaml:"app_env"`

	MongoURI      string `yaml:"mongodb_uri"`
	MongoDatabase string `yaml:"mongodb_database"`

	SourceURL      string        `yaml:"source_url"`
	PageSize       int           `yaml:"page_size"`
	IngestInterval time.Duration `yaml:"ingest_interval"`
	FetchTimeout   time.Duration `yaml:"fetch_timeout"`
	RunOnStart     bool          `yaml:"run_on_start"`
	WorkerEnabled  bool          `yaml:"worker_enabled"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
	StaticDir string `yaml:"static_dir"`

	LockBackend   string        `yaml:"lock_backend"`
	LockTTL       time.Duration `yaml:"lock_ttl"`
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`

	KafkaBrokers []string `yaml:"kafka_brokers"`
	KafkaTopic   string   `yaml:"kafka_topic"`
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// Load builds the configuration: defaults for the resolved APP_ENV, then the
// optional CONFIG_FILE (YAML), then environment variables. app_env may come
// from either the file or the environment, the environment winning.
func Load() (*Config, error) {
	_ = godotenv.Load() // Ignore error if .env not found (e.g. prod)

	var file []byte
	appEnv := "local"
	if path := getEnv("CONFIG_FILE", ""); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		var head struct {
			AppEnv string `yaml:"app_env"`
		}
		if err := yaml.Unmarshal(data, &head); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
		if head.AppEnv != "" {
			appEnv = head.AppEnv
		}
		file = data
	}
	if v := os.Getenv("APP_ENV"); v != "" {
		appEnv = v
	}

	cfg := Defaults(appEnv)
	if file != nil {
		if err := yaml.Unmarshal(file, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.AppEnv = appEnv
	return cfg, nil
}

// Defaults depend on the environment: local runs ingest every minute with a
// short fetch timeout, production hourly with a longer one.
func Defaults(appEnv string) *Config {
	cfg := &Config{
		Port:          "8080",
		DatabaseURL:   "file:db.sqlite",
		AppEnv:        appEnv,
		MongoDatabase: "facts",
		SourceURL:     "https://meowfacts.herokuapp.com/?count=5",
		PageSize:      10,
		LogLevel:      "info",
		LogFormat:     "json",
		LockBackend:   "none",
		LockTTL:       5 * time.Minute,
		RedisAddr:     "localhost:6379",
		KafkaTopic:    "fact-notices",
	}
	if appEnv == "production" {
		cfg.IngestInterval = time.Hour
		cfg.FetchTimeout = 60 * time.Second
	} else {
		cfg.IngestInterval = time.Minute
		cfg.FetchTimeout = 10 * time.Second
		cfg.WorkerEnabled = true
		cfg.RunOnStart = true
		cfg.LogFormat = "text"
		cfg.LogLevel = "debug"
	}
	return cfg
}

func (c *Config) applyEnv() error {
	c.Port = getEnv("PORT", c.Port)
	c.DatabaseURL = getEnv("DATABASE_URL", c.DatabaseURL)
	c.MongoURI = getEnv("MONGODB_URI", c.MongoURI)
	c.MongoDatabase = getEnv("MONGODB_DATABASE", c.MongoDatabase)
	c.SourceURL = getEnv("SOURCE_URL", c.SourceURL)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("LOG_FORMAT", c.LogFormat)
	c.StaticDir = getEnv("STATIC_DIR", c.StaticDir)
	c.LockBackend = getEnv("LOCK_BACKEND", c.LockBackend)
	c.RedisAddr = getEnv("REDIS_ADDR", c.RedisAddr)
	c.RedisPassword = getEnv("REDIS_PASSWORD", c.RedisPassword)
	c.KafkaTopic = getEnv("KAFKA_TOPIC", c.KafkaTopic)
	if brokers := getEnv("KAFKA_BROKERS", ""); brokers != "" {
		c.KafkaBrokers = splitList(brokers)
	}

	var err error
	if c.PageSize, err = getEnvInt("PAGE_SIZE", c.PageSize); err != nil {
		return err
	}
	if c.RedisDB, err = getEnvInt("REDIS_DB", c.RedisDB); err != nil {
		return err
	}
	if c.IngestInterval, err = getEnvDuration("INGEST_INTERVAL", c.IngestInterval); err != nil {
		return err
	}
	if c.FetchTimeout, err = getEnvDuration("FETCH_TIMEOUT", c.FetchTimeout); err != nil {
		return err
	}
	if c.LockTTL, err = getEnvDuration("LOCK_TTL", c.LockTTL); err != nil {
		return err
	}
	if c.RunOnStart, err = getEnvBool("RUN_ON_START", c.RunOnStart); err != nil {
		return err
	}
	if c.WorkerEnabled, err = getEnvBool("WORKER_ENABLED", c.WorkerEnabled); err != nil {
		return err
	}
	return nil
}

// MissingSettingError lists required settings that are empty.
type MissingSettingError struct {
	Keys []string
}

func (e *MissingSettingError) Error() string {
	msgs := make([]string, len(e.Keys))
	for i, k := range e.Keys {
		msgs[i] = fmt.Sprintf("%q needs to be specified in the app configuration", k)
	}
	return strings.Join(msgs, "; ")
}

// Validate checks the settings every host needs before it starts.
func (c *Config) Validate() error {
	var missing []string
	if c.DatabaseURL == "" && c.MongoURI == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if c.SourceURL == "" {
		missing = append(missing, "SOURCE_URL")
	}
	if c.PageSize <= 0 {
		missing = append(missing, "PAGE_SIZE")
	}
	if c.IngestInterval <= 0 {
		missing = append(missing, "INGEST_INTERVAL")
	}
	if c.FetchTimeout <= 0 {
		missing = append(missing, "FETCH_TIMEOUT")
	}
	if c.LockBackend == "redis" && c.RedisAddr == "" {
		missing = append(missing, "REDIS_ADDR")
	}
	if len(c.KafkaBrokers) > 0 && c.KafkaTopic == "" {
		missing = append(missing, "KAFKA_TOPIC")
	}
	if len(missing) > 0 {
		return &MissingSettingError{Keys: missing}
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getEnvBool(key string, fallback bool) (bool, error) {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
