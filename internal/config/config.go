package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config is the full runtime configuration of the ledger service.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Argon2   Argon2Config
	Policy   Policy
}

type ServerConfig struct {
	Port           string
	RequestTimeout time.Duration
	CORSOrigins    []string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	MigrateOnStart  bool
}

// DSN returns the lib/pq connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// URL returns the connection string in URL form, as golang-migrate expects.
func (c DatabaseConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// Addr returns host:port.
func (c RedisConfig) Addr() string {
	return c.Host + ":" + c.Port
}

type JWTConfig struct {
	SecretKey string
	Issuer    string
	Expiry    time.Duration
}

// Argon2Config tunes PIN hashing.
type Argon2Config struct {
	Time       uint32
	Memory     uint32
	Threads    uint8
	KeyLength  uint32
	SaltLength uint32
}

// Validate rejects parameters that argon2.IDKey panics on or that produce
// empty hashes.
func (a Argon2Config) Validate() error {
	switch {
	case a.Time == 0:
		return errors.New("time must be positive")
	case a.Memory == 0:
		return errors.New("memory must be positive")
	case a.Threads == 0:
		return errors.New("threads must be between 1 and 255")
	case a.KeyLength == 0:
		return errors.New("key length must be positive")
	case a.SaltLength == 0:
		return errors.New("salt length must be positive")
	}
	return nil
}

// Policy holds the ledger's tunable limits. None of these are hard-coded in
// the engine.
type Policy struct {
	LockoutThreshold     int
	LockoutDuration      time.Duration
	AdminFreezeDuration  time.Duration
	DailyWithdrawalLimit decimal.Decimal
	DailyTransferLimit   decimal.Decimal
	RecipientHourlyLimit int
	WithdrawalWindow     time.Duration
	TransferWindow       time.Duration
	RecipientWindow      time.Duration
	StoreTimeout         time.Duration
}

// DefaultPolicy returns the reference limits. The 10 second lockout is
// deliberately short for demos; deployments should raise it.
func DefaultPolicy() Policy {
	return Policy{
		LockoutThreshold:     5,
		LockoutDuration:      10 * time.Second,
		AdminFreezeDuration:  24 * time.Hour,
		DailyWithdrawalLimit: decimal.RequireFromString("1000.00"),
		DailyTransferLimit:   decimal.RequireFromString("5000.00"),
		RecipientHourlyLimit: 5,
		WithdrawalWindow:     24 * time.Hour,
		TransferWindow:       24 * time.Hour,
		RecipientWindow:      time.Hour,
		StoreTimeout:         5 * time.Second,
	}
}

// Validate rejects policies that would disable a control by accident.
func (p Policy) Validate() error {
	switch {
	case p.LockoutThreshold <= 0:
		return errors.New("lockout threshold must be positive")
	case p.LockoutDuration <= 0:
		return errors.New("lockout duration must be positive")
	case !p.DailyWithdrawalLimit.IsPositive():
		return errors.New("daily withdrawal limit must be positive")
	case !p.DailyTransferLimit.IsPositive():
		return errors.New("daily transfer limit must be positive")
	case p.RecipientHourlyLimit <= 0:
		return errors.New("recipient hourly limit must be positive")
	case p.WithdrawalWindow <= 0 || p.TransferWindow <= 0 || p.RecipientWindow <= 0:
		return errors.New("rate limit windows must be positive")
	case p.StoreTimeout <= 0:
		return errors.New("store timeout must be positive")
	}
	return nil
}

var envBindings = map[string]string{
	"server.port":            "PORT",
	"server.request_timeout": "REQUEST_TIMEOUT",
	"server.cors_origins":    "CORS_ALLOWED_ORIGINS",

	"database.host":              "DATABASE_HOST",
	"database.port":              "DATABASE_PORT",
	"database.user":              "DATABASE_USER",
	"database.password":          "DATABASE_PASSWORD",
	"database.name":              "DATABASE_NAME",
	"database.ssl_mode":          "DATABASE_SSL_MODE",
	"database.max_open_conns":    "DATABASE_MAX_OPEN_CONNS",
	"database.max_idle_conns":    "DATABASE_MAX_IDLE_CONNS",
	"database.conn_max_lifetime": "DATABASE_CONN_MAX_LIFETIME",
	"database.migrate_on_start":  "DATABASE_MIGRATE_ON_START",

	"redis.host":     "REDIS_HOST",
	"redis.port":     "REDIS_PORT",
	"redis.password": "REDIS_PASSWORD",
	"redis.db":       "REDIS_DB",

	"jwt.secret_key":   "JWT_SECRET_KEY",
	"jwt.issuer":       "JWT_ISSUER",
	"jwt.expiry_hours": "JWT_EXPIRY_HOURS",

	"argon2.time":        "ARGON2_TIME",
	"argon2.memory":      "ARGON2_MEMORY",
	"argon2.threads":     "ARGON2_THREADS",
	"argon2.key_length":  "ARGON2_KEY_LENGTH",
	"argon2.salt_length": "ARGON2_SALT_LENGTH",

	"policy.lockout_threshold":      "LOCKOUT_THRESHOLD",
	"policy.lockout_duration":       "LOCKOUT_DURATION",
	"policy.admin_freeze_duration":  "ADMIN_FREEZE_DURATION",
	"policy.daily_withdrawal_limit": "DAILY_WITHDRAWAL_LIMIT",
	"policy.daily_transfer_limit":   "DAILY_TRANSFER_LIMIT",
	"policy.recipient_hourly_limit": "RECIPIENT_HOURLY_LIMIT",
	"policy.withdrawal_window":      "WITHDRAWAL_WINDOW",
	"policy.transfer_window":        "TRANSFER_WINDOW",
	"policy.recipient_window":       "RECIPIENT_WINDOW",
	"policy.store_timeout":          "STORE_TIMEOUT",
}

// Load reads configuration from the environment. Files named in envFiles
// (default ".env") are loaded into the environment first; a missing file is
// not an error. CONFIG_FILE may point to an additional yaml/toml/json file.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				log.Printf("[CONFIG] %s not found, relying on existing environment", f)
				continue
			}
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	v := viper.New()
	setDefaults(v)
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	return fromViper(v)
}

func setDefaults(v *viper.Viper) {
	p := DefaultPolicy()

	v.SetDefault("server.port", "8080")
	v.SetDefault("server.request_timeout", 60*time.Second)
	v.SetDefault("server.cors_origins", "https://*,http://*")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "password")
	v.SetDefault("database.name", "atm_ledger")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("database.migrate_on_start", true)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", "6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("jwt.issuer", "atm-ledger")
	v.SetDefault("jwt.expiry_hours", 24)

	v.SetDefault("argon2.time", 1)
	v.SetDefault("argon2.memory", 64*1024)
	v.SetDefault("argon2.threads", 4)
	v.SetDefault("argon2.key_length", 32)
	v.SetDefault("argon2.salt_length", 16)

	v.SetDefault("policy.lockout_threshold", p.LockoutThreshold)
	v.SetDefault("policy.lockout_duration", p.LockoutDuration)
	v.SetDefault("policy.admin_freeze_duration", p.AdminFreezeDuration)
	v.SetDefault("policy.daily_withdrawal_limit", p.DailyWithdrawalLimit.StringFixed(2))
	v.SetDefault("policy.daily_transfer_limit", p.DailyTransferLimit.StringFixed(2))
	v.SetDefault("policy.recipient_hourly_limit", p.RecipientHourlyLimit)
	v.SetDefault("policy.withdrawal_window", p.WithdrawalWindow)
	v.SetDefault("policy.transfer_window", p.TransferWindow)
	v.SetDefault("policy.recipient_window", p.RecipientWindow)
	v.SetDefault("policy.store_timeout", p.StoreTimeout)
}

func fromViper(v *viper.Viper) (*Config, error) {
	withdrawalLimit, err := decimal.NewFromString(v.GetString("policy.daily_withdrawal_limit"))
	if err != nil {
		return nil, fmt.Errorf("parse DAILY_WITHDRAWAL_LIMIT: %w", err)
	}
	transferLimit, err := decimal.NewFromString(v.GetString("policy.daily_transfer_limit"))
	if err != nil {
		return nil, fmt.Errorf("parse DAILY_TRANSFER_LIMIT: %w", err)
	}

	threads := v.GetUint("argon2.threads")
	if threads < 1 || threads > 255 {
		return nil, fmt.Errorf("invalid argon2 config: threads must be between 1 and 255, got %d", threads)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:           v.GetString("server.port"),
			RequestTimeout: v.GetDuration("server.request_timeout"),
			CORSOrigins:    parseCSV(v.GetString("server.cors_origins")),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("database.host"),
			Port:            v.GetString("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			Name:            v.GetString("database.name"),
			SSLMode:         v.GetString("database.ssl_mode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetDuration("database.conn_max_lifetime"),
			MigrateOnStart:  v.GetBool("database.migrate_on_start"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetString("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			SecretKey: strings.TrimSpace(v.GetString("jwt.secret_key")),
			Issuer:    v.GetString("jwt.issuer"),
			Expiry:    time.Duration(v.GetInt("jwt.expiry_hours")) * time.Hour,
		},
		Argon2: Argon2Config{
			Time:       v.GetUint32("argon2.time"),
			Memory:     v.GetUint32("argon2.memory"),
			Threads:    uint8(threads),
			KeyLength:  v.GetUint32("argon2.key_length"),
			SaltLength: v.GetUint32("argon2.salt_length"),
		},
		Policy: Policy{
			LockoutThreshold:     v.GetInt("policy.lockout_threshold"),
			LockoutDuration:      v.GetDuration("policy.lockout_duration"),
			AdminFreezeDuration:  v.GetDuration("policy.admin_freeze_duration"),
			DailyWithdrawalLimit: withdrawalLimit,
			DailyTransferLimit:   transferLimit,
			RecipientHourlyLimit: v.GetInt("policy.recipient_hourly_limit"),
			WithdrawalWindow:     v.GetDuration("policy.withdrawal_window"),
			TransferWindow:       v.GetDuration("policy.transfer_window"),
			RecipientWindow:      v.GetDuration("policy.recipient_window"),
			StoreTimeout:         v.GetDuration("policy.store_timeout"),
		},
	}

	if cfg.JWT.SecretKey == "" {
		return nil, errors.New("JWT_SECRET_KEY is required")
	}
	if err := cfg.Argon2.Validate(); err != nil {
		return nil, fmt.Errorf("invalid argon2 config: %w", err)
	}
	if err := cfg.Policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid policy: %w", err)
	}
	return cfg, nil
}

func parseCSV(input string) []string {
	var out []string
	for _, part := range strings.Split(input, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}
