package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	EnvConfigPath        = "CONFIG_PATH"
	EnvFile              = "ENV_FILE"
	EnvDBConnection      = "DB_CONNECTION"
	EnvBotToken          = "BOT_TOKEN"
	EnvOperatorID        = "OPERATOR_ID"
	EnvMembershipChannel = "MEMBERSHIP_CHANNEL"
	EnvMembershipURL     = "MEMBERSHIP_URL"
	EnvPassphrase        = "ENCRYPTION_PASSPHRASE"
	EnvJWTSecret         = "ADMIN_JWT_SECRET"
	EnvJWTExpiry         = "ADMIN_JWT_EXPIRY"
	EnvRedisAddr         = "REDIS_ADDR"
)

const (
	DefaultPort          = 8319
	DefaultAmount        = 200.0
	DefaultGrantDays     = 30
	DefaultValidityDays  = 30
	DefaultSweepInterval = 24 * time.Hour
	DefaultTempMaxAge    = 24 * time.Hour
	DefaultSessionTTL    = 6 * time.Hour
	defaultJWTExpiry     = 30 * 24 * time.Hour
)

var (
	// ErrMissingDatabaseDSN indicates no database DSN is present in the config file.
	ErrMissingDatabaseDSN = errors.New("missing database dsn (set `database.dsn` in config file or DB_CONNECTION)")
	// ErrMissingBotToken indicates the bot platform token is not configured.
	ErrMissingBotToken = errors.New("missing bot token (set `bot.token` or BOT_TOKEN)")
	// ErrMissingOperator indicates the operator identity is not configured.
	ErrMissingOperator = errors.New("missing operator id (set `bot.operator-id` or OPERATOR_ID)")
	// ErrMissingPassphrase indicates the at-rest encryption passphrase is not configured.
	ErrMissingPassphrase = errors.New("missing encryption passphrase (set `encryption.passphrase` or ENCRYPTION_PASSPHRASE)")
	// ErrMissingMembership indicates the membership gate is neither configured nor explicitly disabled.
	ErrMissingMembership = errors.New("missing membership gate (set `bot.membership-channel` and `bot.membership-url`, or `bot.membership-disabled: true`)")
)

// Config is the resolved application configuration.
type Config struct {
	Path string `yaml:"-"`

	Database   DatabaseConfig   `yaml:"database"`
	Storage    StorageConfig    `yaml:"storage"`
	Encryption EncryptionConfig `yaml:"encryption"`
	Bot        BotConfig        `yaml:"bot"`
	Payment    PaymentConfig    `yaml:"payment"`
	Files      FilesConfig      `yaml:"files"`
	Sweep      SweepConfig      `yaml:"sweep"`
	Session    SessionConfig    `yaml:"session"`
	HTTP       HTTPConfig       `yaml:"http"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

type StorageConfig struct {
	ConfigDir string       `yaml:"config-dir"`
	TempDir   string       `yaml:"temp-dir"`
	ProofDir  string       `yaml:"proof-dir"`
	Proofs    ProofsConfig `yaml:"proofs"`
}

// ProofsConfig selects where payment proof blobs live.
type ProofsConfig struct {
	Backend         string `yaml:"backend"` // local or s3
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access-key-id"`
	SecretAccessKey string `yaml:"secret-access-key"`
}

type EncryptionConfig struct {
	Passphrase string `yaml:"passphrase"`

	// Legacy writes the fixed-salt format readable by older deployments.
	Legacy bool `yaml:"legacy"`
}

type BotConfig struct {
	Token             string `yaml:"token"`
	OperatorID        int64  `yaml:"operator-id"`
	OperatorUsername  string `yaml:"operator-username"`
	MembershipChannel string `yaml:"membership-channel"`
	MembershipURL     string `yaml:"membership-url"`
	NotifyURL         string `yaml:"notify-url"`

	// MembershipDisabled lets every user past the channel check. Must be set explicitly.
	MembershipDisabled bool `yaml:"membership-disabled"`
}

type PaymentConfig struct {
	Amount    float64 `yaml:"amount"`
	GrantDays int     `yaml:"grant-days"`
	Method    string  `yaml:"method"`
	Number    string  `yaml:"number"`
	Name      string  `yaml:"name"`
}

type FilesConfig struct {
	ValidityDays int `yaml:"validity-days"`
}

type SweepConfig struct {
	Interval   time.Duration `yaml:"interval"`
	TempMaxAge time.Duration `yaml:"temp-max-age"`
}

type SessionConfig struct {
	Backend       string        `yaml:"backend"` // memory or redis
	RedisAddr     string        `yaml:"redis-addr"`
	RedisPassword string        `yaml:"redis-password"`
	RedisDB       int           `yaml:"redis-db"`
	RedisPrefix   string        `yaml:"redis-prefix"`
	TTL           time.Duration `yaml:"ttl"`
}

type HTTPConfig struct {
	Port int       `yaml:"port"`
	JWT  JWTConfig `yaml:",inline"`
}

// JWTConfig holds JWT secret and expiry settings.
type JWTConfig struct {
	Secret string        `yaml:"jwt-secret"`
	Expiry time.Duration `yaml:"jwt-expiry"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ResolveConfigPath normalizes the config path and applies defaults.
func ResolveConfigPath(p string) string {
	trimmed := strings.TrimSpace(p)
	if trimmed == "" {
		trimmed = strings.TrimSpace(os.Getenv(EnvConfigPath))
	}
	if trimmed == "" {
		trimmed = "./config.yaml"
	}
	if abs, err := filepath.Abs(trimmed); err == nil {
		return abs
	}
	return trimmed
}

// LoadEnvFile loads a dotenv file into the process environment without overriding
// variables that are already set. A missing file is not an error.
func LoadEnvFile(path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		path = strings.TrimSpace(os.Getenv(EnvFile))
	}
	if path == "" {
		path = ".env"
	}
	if _, errStat := os.Stat(path); errors.Is(errStat, os.ErrNotExist) {
		return nil
	}
	if errLoad := godotenv.Load(path); errLoad != nil {
		return fmt.Errorf("load env file %s: %w", path, errLoad)
	}
	return nil
}

// Load reads the YAML file at path (a missing file yields an env-only config),
// applies environment overrides and defaults, and validates required fields.
func Load(path string) (Config, error) {
	cfg, err := read(path)
	if err != nil {
		return Config{}, err
	}
	if errEnv := applyEnv(&cfg); errEnv != nil {
		return Config{}, errEnv
	}
	applyDefaults(&cfg)
	if errValidate := cfg.Validate(); errValidate != nil {
		return Config{}, errValidate
	}
	return cfg, nil
}

func read(path string) (Config, error) {
	cfg := Config{Path: path}
	data, errRead := os.ReadFile(path)
	if errRead != nil {
		if errors.Is(errRead, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config file: %w", errRead)
	}
	if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
		return Config{}, fmt.Errorf("parse config file: %w", errUnmarshal)
	}
	cfg.Path = path
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if v := strings.TrimSpace(os.Getenv(EnvDBConnection)); v != "" {
		cfg.Database.DSN = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvBotToken)); v != "" {
		cfg.Bot.Token = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvOperatorID)); v != "" {
		id, errParse := strconv.ParseInt(v, 10, 64)
		if errParse != nil {
			return fmt.Errorf("parse %s: %w", EnvOperatorID, errParse)
		}
		cfg.Bot.OperatorID = id
	}
	if v := strings.TrimSpace(os.Getenv(EnvMembershipChannel)); v != "" {
		cfg.Bot.MembershipChannel = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvMembershipURL)); v != "" {
		cfg.Bot.MembershipURL = v
	}
	if v := os.Getenv(EnvPassphrase); v != "" {
		cfg.Encryption.Passphrase = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvJWTSecret)); v != "" {
		cfg.HTTP.JWT.Secret = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvJWTExpiry)); v != "" {
		if expiry, errParse := time.ParseDuration(v); errParse == nil && expiry > 0 {
			cfg.HTTP.JWT.Expiry = expiry
		}
	}
	if v := strings.TrimSpace(os.Getenv(EnvRedisAddr)); v != "" {
		cfg.Session.RedisAddr = v
		if cfg.Session.Backend == "" {
			cfg.Session.Backend = "redis"
		}
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Storage.ConfigDir == "" {
		cfg.Storage.ConfigDir = "configs"
	}
	if cfg.Storage.TempDir == "" {
		cfg.Storage.TempDir = "temp"
	}
	if cfg.Storage.ProofDir == "" {
		cfg.Storage.ProofDir = "payment_proofs"
	}
	if cfg.Storage.Proofs.Backend == "" {
		cfg.Storage.Proofs.Backend = "local"
	}
	if cfg.Payment.Amount <= 0 {
		cfg.Payment.Amount = DefaultAmount
	}
	if cfg.Payment.GrantDays <= 0 {
		cfg.Payment.GrantDays = DefaultGrantDays
	}
	if cfg.Files.ValidityDays <= 0 {
		cfg.Files.ValidityDays = DefaultValidityDays
	}
	if cfg.Sweep.Interval <= 0 {
		cfg.Sweep.Interval = DefaultSweepInterval
	}
	if cfg.Sweep.TempMaxAge <= 0 {
		cfg.Sweep.TempMaxAge = DefaultTempMaxAge
	}
	if cfg.Session.Backend == "" {
		cfg.Session.Backend = "memory"
	}
	if cfg.Session.RedisPrefix == "" {
		cfg.Session.RedisPrefix = "configbot:session:"
	}
	if cfg.Session.TTL <= 0 {
		cfg.Session.TTL = DefaultSessionTTL
	}
	if cfg.HTTP.Port <= 0 {
		cfg.HTTP.Port = DefaultPort
	}
	if cfg.HTTP.JWT.Expiry <= 0 {
		cfg.HTTP.JWT.Expiry = defaultJWTExpiry
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
}

// Validate checks required settings and enumerated values.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Database.DSN) == "" {
		return ErrMissingDatabaseDSN
	}
	if strings.TrimSpace(c.Bot.Token) == "" {
		return ErrMissingBotToken
	}
	if c.Bot.OperatorID == 0 {
		return ErrMissingOperator
	}
	if c.Encryption.Passphrase == "" {
		return ErrMissingPassphrase
	}
	if !c.Bot.MembershipDisabled &&
		(strings.TrimSpace(c.Bot.MembershipChannel) == "" || strings.TrimSpace(c.Bot.MembershipURL) == "") {
		return ErrMissingMembership
	}
	switch c.Storage.Proofs.Backend {
	case "local":
	case "s3":
		if strings.TrimSpace(c.Storage.Proofs.Bucket) == "" {
			return fmt.Errorf("storage.proofs.bucket is required for the s3 backend")
		}
	default:
		return fmt.Errorf("unsupported storage.proofs.backend %q", c.Storage.Proofs.Backend)
	}
	switch c.Session.Backend {
	case "memory":
	case "redis":
		if strings.TrimSpace(c.Session.RedisAddr) == "" {
			return fmt.Errorf("session.redis-addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("unsupported session.backend %q", c.Session.Backend)
	}
	return nil
}

// LoadDatabaseDSN reads only the database DSN, for commands that need nothing else.
func LoadDatabaseDSN(configPath string) (string, error) {
	if dsn := strings.TrimSpace(os.Getenv(EnvDBConnection)); dsn != "" {
		return dsn, nil
	}
	cfg, err := read(configPath)
	if err != nil {
		return "", err
	}
	if dsn := strings.TrimSpace(cfg.Database.DSN); dsn != "" {
		return dsn, nil
	}
	return "", ErrMissingDatabaseDSN
}

// LoadJWTConfig loads admin JWT settings from the YAML config file and environment.
func LoadJWTConfig(configPath string) (JWTConfig, error) {
	cfg, err := read(configPath)
	if err != nil {
		return JWTConfig{}, err
	}
	if errEnv := applyEnv(&cfg); errEnv != nil {
		return JWTConfig{}, errEnv
	}
	if cfg.HTTP.JWT.Expiry <= 0 {
		cfg.HTTP.JWT.Expiry = defaultJWTExpiry
	}
	return cfg.HTTP.JWT, nil
}
