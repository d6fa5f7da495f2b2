package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const defaultConfigPath = "config/config.yml"

type AppConfig struct {
	Port     int    `yaml:"port"`
	GinMode  string `yaml:"gin_mode"`
	LogLevel string `yaml:"log_level"`
}

type DatabaseConfig struct {
	DSN      string `yaml:"dsn"`
	LogLevel string `yaml:"log_level"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type JWTConfig struct {
	Secret     string `yaml:"secret"`
	Issuer     string `yaml:"issuer"`
	AccessTTL  string `yaml:"access_ttl"`
	RefreshTTL string `yaml:"refresh_ttl"`
}

type VerificationConfig struct {
	CodeTTL           string `yaml:"code_ttl"`
	ResendWindow      string `yaml:"resend_window"`
	ResendMaxAttempts int    `yaml:"resend_max_attempts"`
}

type PasswordConfig struct {
	MinLength     int  `yaml:"min_length"`
	RequireUpper  bool `yaml:"require_upper"`
	RequireLower  bool `yaml:"require_lower"`
	RequireDigit  bool `yaml:"require_digit"`
	RequireSymbol bool `yaml:"require_symbol"`
}

type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

type DeliveryConfig struct {
	Workers     int    `yaml:"workers"`
	QueueSize   int    `yaml:"queue_size"`
	SendTimeout string `yaml:"send_timeout"`
}

type ConfigFile struct {
	App          AppConfig          `yaml:"app"`
	Database     DatabaseConfig     `yaml:"database"`
	Redis        RedisConfig        `yaml:"redis"`
	JWT          JWTConfig          `yaml:"jwt"`
	Verification VerificationConfig `yaml:"verification"`
	Password     PasswordConfig     `yaml:"password"`
	SMTP         SMTPConfig         `yaml:"smtp"`
	Delivery     DeliveryConfig     `yaml:"delivery"`
}

type Config struct {
	Port        string
	GinMode     string
	LogLevel    string
	DSN         string
	DBLogLevel  string
	RedisAddr   string
	RedisPass   string
	RedisDB     int
	JWTSecret   string
	JWTIssuer   string
	AccessTTL   time.Duration
	RefreshTTL  time.Duration
	CodeTTL     time.Duration
	ResendWnd   time.Duration
	ResendMax   int
	Password    PasswordConfig
	SMTP        SMTPConfig
	Workers     int
	QueueSize   int
	SendTimeout time.Duration
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func envInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

// Load reads the YAML file at CONFIG_PATH (default config/config.yml) and
// applies environment overrides for secrets and endpoints.
func Load() (*Config, error) {
	file, err := loadConfigFile(env("CONFIG_PATH", defaultConfigPath))
	if err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}
	return FromFile(file)
}

// FromFile converts a parsed config file into a validated Config.
func FromFile(file *ConfigFile) (*Config, error) {
	durations := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"jwt.access_ttl", env("JWT_ACCESS_TTL", file.JWT.AccessTTL), new(time.Duration)},
		{"jwt.refresh_ttl", env("JWT_REFRESH_TTL", file.JWT.RefreshTTL), new(time.Duration)},
		{"verification.code_ttl", env("VERIFICATION_CODE_TTL", file.Verification.CodeTTL), new(time.Duration)},
		{"verification.resend_window", env("VERIFICATION_RESEND_WINDOW", file.Verification.ResendWindow), new(time.Duration)},
		{"delivery.send_timeout", orDefault(file.Delivery.SendTimeout, "10s"), new(time.Duration)},
	}
	for _, d := range durations {
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", d.name, err)
		}
		*d.dst = v
	}

	cfg := &Config{
		Port:        strconv.Itoa(envInt("PORT", file.App.Port)),
		GinMode:     env("GIN_MODE", orDefault(file.App.GinMode, "release")),
		LogLevel:    env("LOG_LEVEL", orDefault(file.App.LogLevel, "info")),
		DSN:         env("DATABASE_DSN", file.Database.DSN),
		DBLogLevel:  orDefault(file.Database.LogLevel, "warn"),
		RedisAddr:   env("REDIS_ADDR", file.Redis.Addr),
		RedisPass:   env("REDIS_PASSWORD", file.Redis.Password),
		RedisDB:     envInt("REDIS_DB", file.Redis.DB),
		JWTSecret:   env("JWT_SECRET", file.JWT.Secret),
		JWTIssuer:   orDefault(file.JWT.Issuer, "accountsvc"),
		AccessTTL:   *durations[0].dst,
		RefreshTTL:  *durations[1].dst,
		CodeTTL:     *durations[2].dst,
		ResendWnd:   *durations[3].dst,
		ResendMax:   envInt("VERIFICATION_RESEND_MAX_ATTEMPTS", file.Verification.ResendMaxAttempts),
		Password:    file.Password,
		SMTP:        file.SMTP,
		Workers:     file.Delivery.Workers,
		QueueSize:   file.Delivery.QueueSize,
		SendTimeout: *durations[4].dst,
	}
	cfg.SMTP.Host = env("SMTP_HOST", cfg.SMTP.Host)
	cfg.SMTP.Port = envInt("SMTP_PORT", cfg.SMTP.Port)
	cfg.SMTP.Username = env("SMTP_USERNAME", cfg.SMTP.Username)
	cfg.SMTP.Password = env("SMTP_PASSWORD", cfg.SMTP.Password)
	cfg.SMTP.From = env("SMTP_FROM", cfg.SMTP.From)
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the service cannot run with
func (c *Config) Validate() error {
	var errs []error
	if c.JWTSecret == "" || c.JWTSecret == "change" {
		errs = append(errs, errors.New("jwt secret must be set"))
	}
	if c.DSN == "" {
		errs = append(errs, errors.New("database dsn must be set"))
	}
	if c.RedisAddr == "" {
		errs = append(errs, errors.New("redis addr must be set"))
	}
	if c.AccessTTL <= 0 || c.RefreshTTL <= 0 {
		errs = append(errs, errors.New("token ttls must be positive"))
	}
	if c.AccessTTL >= c.RefreshTTL {
		errs = append(errs, errors.New("access ttl must be shorter than refresh ttl"))
	}
	if c.CodeTTL <= 0 || c.ResendWnd <= 0 {
		errs = append(errs, errors.New("verification ttls must be positive"))
	}
	if c.ResendMax <= 0 {
		errs = append(errs, errors.New("verification.resend_max_attempts must be positive"))
	}
	if c.Password.MinLength <= 0 {
		errs = append(errs, errors.New("password.min_length must be positive"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func loadConfigFile(path string) (*ConfigFile, error) {
	bytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read config file at %s: %w", path, err)
	}
	return parseConfig(bytes)
}

func parseConfig(bytes []byte) (*ConfigFile, error) {
	var config ConfigFile
	if err := yaml.Unmarshal(bytes, &config); err != nil {
		return nil, fmt.Errorf("could not parse config yaml: %w", err)
	}
	return &config, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
