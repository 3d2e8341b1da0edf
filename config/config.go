// Package config loads sigrpcd settings from a TOML file, an optional .env
// file and SIGRPC_* environment variables, in increasing order of precedence.
package config

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/naoina/toml"
)

// EnvPrefix prefixes every environment override. The env tags on the
// settings name the variables without it.
const EnvPrefix = "SIGRPC_"

// Config is the complete server configuration.
type Config struct {
	Server  Server
	Service Service
	Quota   Quota
	CORS    CORS
	Log     Log
}

// Server configures the HTTP listener.
type Server struct {
	Addr            string   `env:"ADDR" validate:"required"`
	Path            string   `env:"PATH" validate:"required,startswith=/"`
	MaxBodyBytes    int64    `env:"MAX_BODY_BYTES" validate:"gte=0"`
	ReadTimeout     Duration `env:"READ_TIMEOUT" validate:"gte=0"`
	ShutdownTimeout Duration `env:"SHUTDOWN_TIMEOUT" validate:"gte=0"`
	// HSTSMaxAge enables Strict-Transport-Security when positive. Set it
	// only when the server is reached over TLS.
	HSTSMaxAge Duration `env:"HSTS_MAX_AGE" validate:"gte=0"`
}

// Service configures the JSON-RPC service.
type Service struct {
	Name    string `env:"NAME"`
	ID      string
	Version string
	Summary string
	Help    string `validate:"omitempty,url"`
	Address string `validate:"omitempty,url"`

	Debug bool `env:"DEBUG"`
	// Verbose indents responses. Unset, it follows Debug.
	Verbose         *bool    `env:"VERBOSE"`
	Safe            bool     `env:"SAFE"`
	HTTPErrors      bool     `env:"HTTP_ERRORS"`
	PaddingNames    []string `validate:"dive,required,alphanum"`
	ContentType     string
	PropagateFaults bool `env:"PROPAGATE_FAULTS"`
}

// Quota configures per-client limits. A zero Rate disables the rate
// limiter; zero BudgetCalls disables the cookie budget.
type Quota struct {
	Rate         float64  `env:"QUOTA_RATE" validate:"gte=0"`
	Burst        int      `env:"QUOTA_BURST" validate:"gte=0"`
	BudgetCalls  int      `env:"QUOTA_BUDGET_CALLS" validate:"gte=0"`
	BudgetWindow Duration `env:"QUOTA_BUDGET_WINDOW" validate:"gte=0"`
	CookieName   string
	// CookieKeys holds "id:base64key" entries; the first seals new cookies.
	CookieKeys []string `env:"COOKIE_KEYS" validate:"required_with=BudgetCalls,dive,contains=:"`
}

// CORS configures cross-origin access to the RPC endpoint.
type CORS struct {
	AllowedOrigins   []string `env:"CORS_ORIGINS"`
	AllowCredentials bool
}

// Log configures the process logger.
type Log struct {
	Level string `env:"LOG_LEVEL" validate:"oneof=debug info warn error"`
}

// Duration is a time.Duration written as a string such as "30s".
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) { return []byte(time.Duration(d).String()), nil }

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Server: Server{
			Addr:            "localhost:8080",
			Path:            "/rpc",
			MaxBodyBytes:    1 << 20,
			ReadTimeout:     Duration(30 * time.Second),
			ShutdownTimeout: Duration(10 * time.Second),
		},
		Service: Service{
			HTTPErrors:   true,
			PaddingNames: []string{"callback", "jsoncallback"},
		},
		Quota: Quota{
			BudgetWindow: Duration(time.Hour),
			CookieName:   "rpc_budget",
		},
		Log: Log{Level: "info"},
	}
}

// SlogLevel returns the configured level for log/slog.
func (l Log) SlogLevel() slog.Level {
	switch l.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// tomlSettings rejects keys that do not name a field.
var tomlSettings = toml.Config{
	NormFieldName: toml.DefaultConfig.NormFieldName,
	FieldToKey:    toml.DefaultConfig.FieldToKey,
	MissingField: func(rt reflect.Type, field string) error {
		return fmt.Errorf("field %q is not defined in %s", field, rt.Name())
	},
}

// Load builds a Config from Default, the TOML file at path and the
// environment. Either path or envFile may be empty. Variables already set in
// the process environment take precedence over those in envFile.
func Load(path, envFile string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := decodeFile(path, cfg); err != nil {
			return nil, err
		}
	}

	vars := map[string]string{}
	if envFile != "" {
		m, err := godotenv.Read(envFile)
		if err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", envFile, err)
		}
		vars = m
	}
	maps.Copy(vars, env.ToMap(os.Environ()))
	if err := cfg.ApplyEnv(vars); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	defer f.Close()

	err = tomlSettings.NewDecoder(bufio.NewReader(f)).Decode(cfg)
	if err != nil {
		return fmt.Errorf("config: %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides c with the SIGRPC_* entries of vars. Lists are comma
// separated.
func (c *Config) ApplyEnv(vars map[string]string) error {
	err := env.ParseWithOptions(c, env.Options{Prefix: EnvPrefix, Environment: vars})
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	c.Quota.CookieKeys = trimList(c.Quota.CookieKeys)
	c.CORS.AllowedOrigins = trimList(c.CORS.AllowedOrigins)
	return nil
}

func trimList(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate reports whether c is usable.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.Quota.BudgetCalls > 0 && c.Quota.BudgetWindow <= 0 {
		return errors.New("config: quota.budget_window must be positive when quota.budget_calls is set")
	}
	return nil
}
