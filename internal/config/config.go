// Package config loads console settings from the environment (EBD_ prefix)
// with an optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const EnvPrefix = "EBD"

type Config struct {
	HTTPAddr string
	// GRPCAddr serves grpc.health.v1 when set.
	GRPCAddr        string
	PostgresDSN     string
	AggregationAddr string
	TokenSecret     string
	TokenIssuer     string
	RateBurst       int
	RatePerSecond   int
	MaxBodyBytes    int64
	FetchTimeout    time.Duration
	ShutdownTimeout time.Duration
	SessionIdle     time.Duration
	LogLevel        string
	// DemoData seeds the in-memory store and report fixture when no backend is configured.
	DemoData bool
}

// Load reads dotEnvPath if it exists, then the environment. An empty path
// skips the file.
func Load(dotEnvPath string) (Config, error) {
	if dotEnvPath != "" {
		if _, err := os.Stat(dotEnvPath); err == nil {
			if err := godotenv.Load(dotEnvPath); err != nil {
				return Config{}, fmt.Errorf("config: load %s: %w", dotEnvPath, err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("config: stat %s: %w", dotEnvPath, err)
		}
	}

	v := viper.New()
	v.SetTypeByDefaultValue(true)
	v.SetDefault("http_addr", ":8080")
	v.SetDefault("grpc_addr", "")
	v.SetDefault("pg_dsn", "")
	v.SetDefault("aggregation_addr", "")
	v.SetDefault("token_secret", "")
	v.SetDefault("token_issuer", "ebd-identity")
	v.SetDefault("rate_burst", 20)
	v.SetDefault("rate_per_second", 10)
	v.SetDefault("max_body_bytes", int64(1<<20))
	v.SetDefault("fetch_timeout", 10*time.Second)
	v.SetDefault("shutdown_timeout", 10*time.Second)
	v.SetDefault("session_idle_timeout", 30*time.Minute)
	v.SetDefault("log_level", "info")
	v.SetDefault("demo_data", false)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := Config{
		HTTPAddr:        v.GetString("http_addr"),
		GRPCAddr:        v.GetString("grpc_addr"),
		PostgresDSN:     v.GetString("pg_dsn"),
		AggregationAddr: v.GetString("aggregation_addr"),
		TokenSecret:     v.GetString("token_secret"),
		TokenIssuer:     v.GetString("token_issuer"),
		RateBurst:       v.GetInt("rate_burst"),
		RatePerSecond:   v.GetInt("rate_per_second"),
		MaxBodyBytes:    v.GetInt64("max_body_bytes"),
		FetchTimeout:    v.GetDuration("fetch_timeout"),
		ShutdownTimeout: v.GetDuration("shutdown_timeout"),
		SessionIdle:     v.GetDuration("session_idle_timeout"),
		LogLevel:        v.GetString("log_level"),
		DemoData:        v.GetBool("demo_data"),
	}
	return cfg, cfg.Validate()
}

// Validate checks the settings the server cannot start without.
func (c Config) Validate() error {
	var problems []string
	if len(c.TokenSecret) < 32 {
		problems = append(problems, "EBD_TOKEN_SECRET must be at least 32 bytes")
	}
	if !c.DemoData && c.PostgresDSN == "" {
		problems = append(problems, "EBD_PG_DSN is required unless EBD_DEMO_DATA is set")
	}
	if !c.DemoData && c.AggregationAddr == "" {
		problems = append(problems, "EBD_AGGREGATION_ADDR is required unless EBD_DEMO_DATA is set")
	}
	if c.RateBurst <= 0 || c.RatePerSecond <= 0 {
		problems = append(problems, "rate limit must be positive")
	}
	if c.MaxBodyBytes <= 0 {
		problems = append(problems, "EBD_MAX_BODY_BYTES must be positive")
	}
	if c.FetchTimeout <= 0 {
		problems = append(problems, "EBD_FETCH_TIMEOUT must be positive")
	}
	if len(problems) > 0 {
		return fmt.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}
