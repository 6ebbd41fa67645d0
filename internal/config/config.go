package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config represents the application configuration
type Config struct {
	Server        ServerConfig        `json:"server"`
	Database      DatabaseConfig      `json:"database"`
	Security      SecurityConfig      `json:"security"`
	Logging       LoggingConfig       `json:"logging"`
	Kernel        KernelConfig        `json:"kernel"`
	Notifications NotificationsConfig `json:"notifications"`
	Search        SearchConfig        `json:"search"`
	Workers       WorkersConfig       `json:"workers"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	Host           string        `json:"host"`
	Port           int           `json:"port"`
	User           string        `json:"user"`
	Password       string        `json:"password"`
	DBName         string        `json:"db_name"`
	SSLMode        string        `json:"ssl_mode"`
	MaxConnections int           `json:"max_connections"`
	MaxIdleConns   int           `json:"max_idle_conns"`
	MaxLifetime    time.Duration `json:"max_lifetime"`
}

// SecurityConfig holds token verification settings
type SecurityConfig struct {
	JWTSecret string `json:"jwt_secret"`
	JWTIssuer string `json:"jwt_issuer"`
}

// LoggingConfig
type LoggingConfig struct {
	Level       string `json:"level"`
	Development bool   `json:"development"`
}

// KernelConfig holds lifecycle policy
type KernelConfig struct {
	EscrowExpiryDays     int  `json:"escrow_expiry_days"`
	AllowBuyerSettlement bool `json:"allow_buyer_settlement"`
}

// NotificationsConfig selects the transition notifier. An empty topic logs only.
type NotificationsConfig struct {
	SNSTopicARN string `json:"sns_topic_arn"`
	Region      string `json:"region"`
}

// SearchConfig enables the audit mirror when URLs are set
type SearchConfig struct {
	ElasticsearchURLs []string `json:"elasticsearch_urls"`
	Index             string   `json:"index"`
}

// WorkersConfig
type WorkersConfig struct {
	EscrowSweepSchedule string `json:"escrow_sweep_schedule"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Database: DatabaseConfig{
			Host:           "localhost",
			Port:           5432,
			User:           os.Getenv("USER"),
			DBName:         "tradelane_portal",
			SSLMode:        "disable",
			MaxConnections: 25,
			MaxIdleConns:   5,
			MaxLifetime:    5 * time.Minute,
		},
		Logging: LoggingConfig{Level: "info"},
		Kernel: KernelConfig{
			EscrowExpiryDays: 30,
		},
		Notifications: NotificationsConfig{Region: "us-east-1"},
		Search:        SearchConfig{Index: "trade-events"},
		Workers:       WorkersConfig{EscrowSweepSchedule: "@every 1h"},
	}
}

// LoadConfig loads configuration from file, .env and environment variables,
// in that order of increasing precedence.
func LoadConfig(configPath string) (*Config, error) {
	// .env is optional; real environment variables win over it
	_ = godotenv.Load()

	config := Default()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		switch {
		case err == nil:
			if err := json.Unmarshal(data, config); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		case !errors.Is(err, os.ErrNotExist):
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := overrideWithEnv(config); err != nil {
		return nil, err
	}
	return config, nil
}

func overrideWithEnv(config *Config) error {
	if host := os.Getenv("SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid SERVER_PORT %q: %w", port, err)
		}
		config.Server.Port = p
	}

	if dbHost := os.Getenv("DATABASE_HOST"); dbHost != "" {
		config.Database.Host = dbHost
	}
	if dbPort := os.Getenv("DATABASE_PORT"); dbPort != "" {
		p, err := strconv.Atoi(dbPort)
		if err != nil {
			return fmt.Errorf("invalid DATABASE_PORT %q: %w", dbPort, err)
		}
		config.Database.Port = p
	}
	if dbUser := os.Getenv("DATABASE_USER"); dbUser != "" {
		config.Database.User = dbUser
	}
	if dbPass := os.Getenv("DATABASE_PASSWORD"); dbPass != "" {
		config.Database.Password = dbPass
	}
	if dbName := os.Getenv("DATABASE_DBNAME"); dbName != "" {
		config.Database.DBName = dbName
	}
	if sslMode := os.Getenv("DATABASE_SSLMODE"); sslMode != "" {
		config.Database.SSLMode = sslMode
	}

	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		config.Security.JWTSecret = secret
	}
	if issuer := os.Getenv("JWT_ISSUER"); issuer != "" {
		config.Security.JWTIssuer = issuer
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}

	if days := os.Getenv("ESCROW_EXPIRY_DAYS"); days != "" {
		d, err := strconv.Atoi(days)
		if err != nil {
			return fmt.Errorf("invalid ESCROW_EXPIRY_DAYS %q: %w", days, err)
		}
		config.Kernel.EscrowExpiryDays = d
	}
	if allow := os.Getenv("ALLOW_BUYER_SETTLEMENT"); allow != "" {
		b, err := strconv.ParseBool(allow)
		if err != nil {
			return fmt.Errorf("invalid ALLOW_BUYER_SETTLEMENT %q: %w", allow, err)
		}
		config.Kernel.AllowBuyerSettlement = b
	}

	if arn := os.Getenv("SNS_TOPIC_ARN"); arn != "" {
		config.Notifications.SNSTopicARN = arn
	}
	if region := os.Getenv("AWS_REGION"); region != "" {
		config.Notifications.Region = region
	}
	if urls := os.Getenv("ELASTICSEARCH_URLS"); urls != "" {
		config.Search.ElasticsearchURLs = splitList(urls)
	}
	if schedule := os.Getenv("ESCROW_SWEEP_SCHEDULE"); schedule != "" {
		config.Workers.EscrowSweepSchedule = schedule
	}
	return nil
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

// Validate rejects configurations the services cannot start with
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Server.Port)
	}
	if c.Security.JWTSecret == "" {
		return errors.New("jwt secret is required")
	}
	if c.Kernel.EscrowExpiryDays <= 0 {
		return fmt.Errorf("escrow expiry must be positive, got %d days", c.Kernel.EscrowExpiryDays)
	}
	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	return nil
}

// EscrowTTL is the default lifetime of a newly opened escrow
func (c *KernelConfig) EscrowTTL() time.Duration {
	return time.Duration(c.EscrowExpiryDays) * 24 * time.Hour
}

// GetDatabaseURL returns the database connection string
func (c *DatabaseConfig) GetDatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode)
}

// GetServerAddr returns the server address
func (c *ServerConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// NewLogger builds the zap logger described by the logging section
func (c *LoggingConfig) NewLogger() (*zap.Logger, error) {
	if c.Development {
		return zap.NewDevelopment()
	}
	level, err := zap.ParseAtomicLevel(c.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = level
	return cfg.Build()
}
