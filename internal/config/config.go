package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type AppConfig struct {
	Port           string        `yaml:"port"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	LogLevel       string        `yaml:"log_level"`
	LogFormat      string        `yaml:"log_format"`
}

type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	DBName          string        `yaml:"dbname"`
	SSLMode         string        `yaml:"sslmode"`
	MaxConns        int32         `yaml:"max_conns"`
	MinConns        int32         `yaml:"min_conns"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
	MigrationsPath  string        `yaml:"migrations_path"`
}

type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

// RedisConfig is optional: an empty Addr disables the cart cache and the
// cross-instance cart broadcast.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type KafkaConfig struct {
	Brokers    []string `yaml:"brokers"`
	OrderTopic string   `yaml:"order_topic"`
}

type PaymentConfig struct {
	GatewayURL string        `yaml:"gateway_url"`
	KeyID      string        `yaml:"key_id"`
	KeySecret  string        `yaml:"key_secret"`
	Timeout    time.Duration `yaml:"timeout"`
}

type Config struct {
	App      AppConfig      `yaml:"app"`
	Postgres PostgresConfig `yaml:"postgres"`
	Auth     AuthConfig     `yaml:"auth"`
	Redis    RedisConfig    `yaml:"redis"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Payment  PaymentConfig  `yaml:"payment"`
}

func defaults() Config {
	return Config{
		App: AppConfig{
			Port:           "8081",
			RequestTimeout: 10 * time.Second,
			AllowedOrigins: []string{"http://localhost:5173"},
			LogLevel:       "debug",
			LogFormat:      "console",
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            "5432",
			User:            "postgres",
			DBName:          "storefront",
			SSLMode:         "disable",
			MaxConns:        25,
			MinConns:        5,
			MaxConnLifetime: 5 * time.Minute,
			MigrationsPath:  "migrations",
		},
		Auth: AuthConfig{
			TokenTTL: 24 * time.Hour,
		},
		Kafka: KafkaConfig{
			OrderTopic: "order-events",
		},
		Payment: PaymentConfig{
			Timeout: 5 * time.Second,
		},
	}
}

// NewConfig собирает конфигурацию: значения по умолчанию, затем YAML из CONFIG_FILE,
// затем переменные окружения (в том числе из .env).
func NewConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func loadFile(path string, cfg *Config) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open config file %s: %w", path, err)
	}
	defer file.Close()

	if err := yaml.NewDecoder(file).Decode(cfg); err != nil {
		return fmt.Errorf("invalid config file %s: %w", path, err)
	}

	return nil
}

func applyEnv(cfg *Config) error {
	setString("APP_PORT", &cfg.App.Port)
	setString("LOG_LEVEL", &cfg.App.LogLevel)
	setString("LOG_FORMAT", &cfg.App.LogFormat)
	setList("CORS_ALLOWED_ORIGINS", &cfg.App.AllowedOrigins)
	if err := setDuration("REQUEST_TIMEOUT", &cfg.App.RequestTimeout); err != nil {
		return err
	}

	setString("DB_HOST", &cfg.Postgres.Host)
	setString("DB_PORT", &cfg.Postgres.Port)
	setString("DB_USER", &cfg.Postgres.User)
	setString("DB_PASSWORD", &cfg.Postgres.Password)
	setString("DB_NAME", &cfg.Postgres.DBName)
	setString("DB_SSLMODE", &cfg.Postgres.SSLMode)
	setString("MIGRATIONS_PATH", &cfg.Postgres.MigrationsPath)
	if err := setInt32("DB_MAX_CONNS", &cfg.Postgres.MaxConns); err != nil {
		return err
	}
	if err := setInt32("DB_MIN_CONNS", &cfg.Postgres.MinConns); err != nil {
		return err
	}
	if err := setDuration("DB_MAX_CONN_LIFETIME", &cfg.Postgres.MaxConnLifetime); err != nil {
		return err
	}

	setString("JWT_SECRET", &cfg.Auth.JWTSecret)
	if err := setDuration("JWT_TTL", &cfg.Auth.TokenTTL); err != nil {
		return err
	}

	setString("REDIS_ADDR", &cfg.Redis.Addr)
	setString("REDIS_PASSWORD", &cfg.Redis.Password)
	if v := os.Getenv("REDIS_DB"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid REDIS_DB %q: %w", v, err)
		}
		cfg.Redis.DB = n
	}

	setList("KAFKA_BROKERS", &cfg.Kafka.Brokers)
	setString("KAFKA_ORDER_TOPIC", &cfg.Kafka.OrderTopic)

	setString("PAYMENT_GATEWAY_URL", &cfg.Payment.GatewayURL)
	setString("PAYMENT_GATEWAY_KEY", &cfg.Payment.KeyID)
	setString("PAYMENT_GATEWAY_SECRET", &cfg.Payment.KeySecret)
	if err := setDuration("PAYMENT_GATEWAY_TIMEOUT", &cfg.Payment.Timeout); err != nil {
		return err
	}

	return nil
}

func (c *Config) validate() error {
	if c.Auth.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.Postgres.MinConns > c.Postgres.MaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) cannot exceed DB_MAX_CONNS (%d)", c.Postgres.MinConns, c.Postgres.MaxConns)
	}
	if c.App.RequestTimeout <= 0 {
		return errors.New("REQUEST_TIMEOUT must be positive")
	}
	return nil
}

func setString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setList(key string, dst *[]string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	*dst = out
}

func setDuration(key string, dst *time.Duration) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	*dst = d
	return nil
}

func setInt32(key string, dst *int32) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.ParseInt(v, 10, 32)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	*dst = int32(n)
	return nil
}
