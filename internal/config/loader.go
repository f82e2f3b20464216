package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/rpattn/pawlog/internal/db"
)

// Config is the full runtime configuration of the service.
type Config struct {
	Server    ServerConfig
	Database  db.Config
	Redis     RedisConfig
	Quota     QuotaConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Log       LogConfig
}

type ServerConfig struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	CORSOrigins     []string
}

type RedisConfig struct {
	Enabled     bool
	Addr        string
	Password    string
	DB          int
	StatsPrefix string
	StatsTTL    time.Duration
	// TrackPrincipals keeps per-user decision totals, reported on /api/quota.
	TrackPrincipals bool
}

// QuotaConfig holds operator switches for the pet quota.
type QuotaConfig struct {
	// BypassLimits disables pet limits for every user. Test environments only.
	BypassLimits bool
}

type AuthConfig struct {
	SessionTTL time.Duration
	ResetTTL   time.Duration
	BcryptCost int
	// OperatorToken guards the admin routes (plan changes). Empty disables them.
	OperatorToken string
}

type RateLimitConfig struct {
	RPS     float64
	Burst   int
	IdleTTL time.Duration
}

type LogConfig struct {
	Level       string
	Development bool
}

const envPrefix = "PAWLOG"

func setDefaults(v *viper.Viper) {
	dbDefaults := db.DefaultConfig()

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.cors_origins", []string{"http://localhost:3000"})

	v.SetDefault("database.host", dbDefaults.Host)
	v.SetDefault("database.port", dbDefaults.Port)
	v.SetDefault("database.user", dbDefaults.User)
	v.SetDefault("database.password", dbDefaults.Password)
	v.SetDefault("database.dbname", dbDefaults.DBName)
	v.SetDefault("database.sslmode", dbDefaults.SSLMode)
	v.SetDefault("database.max_conns", dbDefaults.MaxConns)
	v.SetDefault("database.min_conns", dbDefaults.MinConns)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.stats_prefix", "pawlog:quota")
	v.SetDefault("redis.stats_ttl", 30*24*time.Hour)
	v.SetDefault("redis.track_principals", false)

	v.SetDefault("quota.bypass_limits", false)

	v.SetDefault("auth.session_ttl", 30*24*time.Hour)
	v.SetDefault("auth.reset_ttl", time.Hour)
	v.SetDefault("auth.bcrypt_cost", 12)
	v.SetDefault("auth.operator_token", "")

	v.SetDefault("ratelimit.rps", 10.0)
	v.SetDefault("ratelimit.burst", 20)
	v.SetDefault("ratelimit.idle_ttl", 15*time.Minute)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// Load reads config.yaml from configPath when present, then applies
// PAWLOG_* environment overrides (PAWLOG_DATABASE_HOST, PAWLOG_QUOTA_BYPASS_LIMITS, ...).
// The returned bool reports whether a config file was found.
func Load(configPath string) (Config, bool, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, false, fmt.Errorf("read config: %w", err)
		}
		fileFound = false
	}

	cfg := Config{
		Server: ServerConfig{
			Addr:            v.GetString("server.addr"),
			ReadTimeout:     v.GetDuration("server.read_timeout"),
			WriteTimeout:    v.GetDuration("server.write_timeout"),
			IdleTimeout:     v.GetDuration("server.idle_timeout"),
			ShutdownTimeout: v.GetDuration("server.shutdown_timeout"),
			CORSOrigins:     splitList(v.GetStringSlice("server.cors_origins")),
		},
		Database: db.Config{
			Host:     v.GetString("database.host"),
			Port:     v.GetInt("database.port"),
			User:     v.GetString("database.user"),
			Password: v.GetString("database.password"),
			DBName:   v.GetString("database.dbname"),
			SSLMode:  v.GetString("database.sslmode"),
			MaxConns: v.GetInt32("database.max_conns"),
			MinConns: v.GetInt32("database.min_conns"),
		},
		Redis: RedisConfig{
			Enabled:         v.GetBool("redis.enabled"),
			Addr:            v.GetString("redis.addr"),
			Password:        v.GetString("redis.password"),
			DB:              v.GetInt("redis.db"),
			StatsPrefix:     v.GetString("redis.stats_prefix"),
			StatsTTL:        v.GetDuration("redis.stats_ttl"),
			TrackPrincipals: v.GetBool("redis.track_principals"),
		},
		Quota: QuotaConfig{
			BypassLimits: v.GetBool("quota.bypass_limits"),
		},
		Auth: AuthConfig{
			SessionTTL:    v.GetDuration("auth.session_ttl"),
			ResetTTL:      v.GetDuration("auth.reset_ttl"),
			BcryptCost:    v.GetInt("auth.bcrypt_cost"),
			OperatorToken: v.GetString("auth.operator_token"),
		},
		RateLimit: RateLimitConfig{
			RPS:     v.GetFloat64("ratelimit.rps"),
			Burst:   v.GetInt("ratelimit.burst"),
			IdleTTL: v.GetDuration("ratelimit.idle_ttl"),
		},
		Log: LogConfig{
			Level:       v.GetString("log.level"),
			Development: v.GetBool("log.development"),
		},
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fileFound, err
	}
	return cfg, fileFound, nil
}

// Validate rejects configurations the service cannot start with.
func (c Config) Validate() error {
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		return fmt.Errorf("database.port %d out of range", c.Database.Port)
	}
	if c.Database.MaxConns < c.Database.MinConns {
		return fmt.Errorf("database.max_conns must be >= database.min_conns")
	}
	if c.Auth.SessionTTL <= 0 || c.Auth.ResetTTL <= 0 {
		return fmt.Errorf("auth ttls must be positive")
	}
	if c.RateLimit.RPS <= 0 || c.RateLimit.Burst <= 0 {
		return fmt.Errorf("ratelimit.rps and ratelimit.burst must be positive")
	}
	return nil
}

// env vars arrive as one comma separated string
func splitList(values []string) []string {
	var out []string
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
