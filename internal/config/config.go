package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration required by the agent process.
// All values must come from env (or env-file loaded by the process runner).
// No business logic should depend on raw environment variables.
type Config struct {
	App     AppConfig
	DB      DBConfig
	Redis   RedisConfig
	Auth    AuthConfig
	Gateway GatewayConfig
	Call    CallConfig
}

type AppConfig struct {
	Env  string
	Port int
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// SSLMode is kept explicit for hosted-Postgres posture.
	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string
}

type RedisConfig struct {
	Host string
	Port int
}

type AuthConfig struct {
	JWTSecret      string
	JWTIssuer      string
	JWTAudience    string
	AccessTokenTTL time.Duration

	// UserID and DeviceID identify this agent instance; tokens minted by the
	// pairing endpoint are bound to them.
	UserID   string
	DeviceID string
}

// GatewayConfig describes the RTC gateway the audio engine handle connects to.
type GatewayConfig struct {
	WSURL       string
	AppID       string
	DialTimeout time.Duration
}

// CallConfig tunes the auto-join call lifecycle.
type CallConfig struct {
	// RecoveryWindow bounds how old a persisted call may be and still resume.
	RecoveryWindow time.Duration

	// ForegroundFreshness bounds how recent a shell foreground mark must be
	// for the process to count as foregrounded.
	ForegroundFreshness time.Duration

	// PresenceLeaseTTL is the TTL on the foreground-work lease key.
	PresenceLeaseTTL time.Duration

	// NotifyChannel is the redis channel the shell listens on for the
	// ongoing-call notification.
	NotifyChannel string
}

func Load() (Config, error) {
	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	{
		n, err := mustInt("APP_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.App.Port = n
	}

	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	{
		n, err := mustInt("DB_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.DB.Port = n
	}
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	{
		n, err := mustInt("REDIS_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Redis.Port = n
	}

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	c.Auth.JWTAudience = strings.TrimSpace(os.Getenv("JWT_AUDIENCE"))
	// Duration env vars are optional; defaults applied in Validate().
	c.Auth.AccessTokenTTL = mustDuration("JWT_ACCESS_TTL")
	c.Auth.UserID = strings.TrimSpace(os.Getenv("AGENT_USER_ID"))
	c.Auth.DeviceID = strings.TrimSpace(os.Getenv("AGENT_DEVICE_ID"))

	c.Gateway.WSURL = strings.TrimSpace(os.Getenv("GATEWAY_WS_URL"))
	c.Gateway.AppID = strings.TrimSpace(os.Getenv("GATEWAY_APP_ID"))
	c.Gateway.DialTimeout = mustDuration("GATEWAY_DIAL_TIMEOUT")

	c.Call.RecoveryWindow = mustDuration("CALL_RECOVERY_WINDOW")
	c.Call.ForegroundFreshness = mustDuration("FOREGROUND_FRESHNESS")
	c.Call.PresenceLeaseTTL = mustDuration("PRESENCE_LEASE_TTL")
	c.Call.NotifyChannel = strings.TrimSpace(os.Getenv("CALL_NOTIFY_CHANNEL"))

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}

	if c.DB.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if c.DB.Port <= 0 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
	}
	if c.DB.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if c.DB.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if strings.TrimSpace(c.DB.SSLMode) == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_SSLMODE is required in production"))
		} else {
			// Local-friendly default; production must be explicit.
			c.DB.SSLMode = "disable"
		}
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}

	if c.Redis.Host == "" {
		errs = append(errs, errors.New("REDIS_HOST is required"))
	}
	if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.IsProduction() {
		if c.Auth.JWTIssuer == "" {
			errs = append(errs, errors.New("JWT_ISSUER is required in production"))
		}
		if c.Auth.JWTAudience == "" {
			errs = append(errs, errors.New("JWT_AUDIENCE is required in production"))
		}
	}
	if c.Auth.AccessTokenTTL <= 0 {
		// Default: short-lived access tokens.
		c.Auth.AccessTokenTTL = 15 * time.Minute
	}
	if c.Auth.UserID == "" {
		errs = append(errs, errors.New("AGENT_USER_ID is required"))
	}
	if c.Auth.DeviceID == "" {
		errs = append(errs, errors.New("AGENT_DEVICE_ID is required"))
	}

	if c.Gateway.WSURL == "" {
		errs = append(errs, errors.New("GATEWAY_WS_URL is required"))
	} else if !strings.HasPrefix(c.Gateway.WSURL, "ws://") && !strings.HasPrefix(c.Gateway.WSURL, "wss://") {
		errs = append(errs, fmt.Errorf("GATEWAY_WS_URL must be a ws:// or wss:// URL, got %q", c.Gateway.WSURL))
	}
	if c.IsProduction() && c.Gateway.AppID == "" {
		errs = append(errs, errors.New("GATEWAY_APP_ID is required in production"))
	}
	if c.Gateway.DialTimeout <= 0 {
		c.Gateway.DialTimeout = 5 * time.Second
	}

	if c.Call.RecoveryWindow <= 0 {
		// A persisted call older than this is stale and never resumed.
		c.Call.RecoveryWindow = 30 * time.Minute
	}
	if c.Call.ForegroundFreshness <= 0 {
		c.Call.ForegroundFreshness = 15 * time.Second
	}
	if c.Call.PresenceLeaseTTL <= 0 {
		c.Call.PresenceLeaseTTL = 30 * time.Second
	}
	if c.Call.NotifyChannel == "" {
		c.Call.NotifyChannel = "pushtalk:call:notify"
	}

	return joinErrors(errs)
}

func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c *Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c *Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func mustInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func mustDuration(key string) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0
	}
	return d
}

func appendParseErr(errs []error, n int, err error) (int, []error) {
	if err != nil {
		errs = append(errs, err)
	}
	return n, errs
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
