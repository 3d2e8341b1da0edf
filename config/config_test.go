package config

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestDefault_IsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default().Validate: %v", err)
	}
}

func TestLoad_File(t *testing.T) {
	cfg, err := Load("testdata/sigrpcd.toml", "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := Default()
	want.Server.Addr = ":9000"
	want.Server.Path = "/api/rpc"
	want.Server.MaxBodyBytes = 65536
	want.Server.ReadTimeout = Duration(5 * time.Second)
	want.Server.HSTSMaxAge = Duration(24 * time.Hour)
	want.Service.Name = "Arithmetic"
	want.Service.Version = "1.2.0"
	want.Service.Summary = "Demo arithmetic service"
	want.Service.Help = "https://example.com/arith"
	want.Service.Safe = true
	want.Service.HTTPErrors = false
	want.Service.PaddingNames = []string{"cb"}
	want.Quota.Rate = 5
	want.Quota.Burst = 10
	want.Quota.BudgetCalls = 100
	want.Quota.BudgetWindow = Duration(30 * time.Minute)
	want.Quota.CookieKeys = []string{"k1:AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA="}
	want.CORS.AllowedOrigins = []string{"https://app.example.com"}
	want.Log.Level = "debug"

	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("Load (-want +got):\n%s", diff)
	}
}

func TestLoad_EnvOverlay(t *testing.T) {
	t.Setenv("SIGRPC_LOG_LEVEL", "error")
	t.Setenv("SIGRPC_CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load("testdata/sigrpcd.toml", "testdata/test.env")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Service.Name != "FromEnvFile" {
		t.Errorf("Name: got %q, want the .env value", cfg.Service.Name)
	}
	if !cfg.Service.Debug {
		t.Error("Debug: want true from the .env file")
	}
	if cfg.Log.Level != "error" {
		t.Errorf("Log.Level: got %q, want the process environment to win", cfg.Log.Level)
	}
	if diff := cmp.Diff([]string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins); diff != "" {
		t.Errorf("AllowedOrigins (-want +got):\n%s", diff)
	}
	if cfg.Server.Addr != ":9000" {
		t.Errorf("Addr: got %q, want the file value", cfg.Server.Addr)
	}
	if cfg.Service.Verbose != nil {
		t.Errorf("Verbose: got %v, want unset", *cfg.Service.Verbose)
	}
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(map[string]string{
		"SIGRPC_VERBOSE":         "false",
		"SIGRPC_QUOTA_RATE":      "2.5",
		"SIGRPC_HSTS_MAX_AGE":    "1h",
		"SIGRPC_MAX_BODY_BYTES":  "4096",
		"SIGRPC_COOKIE_KEYS":     "a:x,, b:y ",
		"ADDR":                   ":1",
		"SIGRPC_UNKNOWN_SETTING": "ignored",
	})
	if err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}
	want := Default()
	verbose := false
	want.Service.Verbose = &verbose
	want.Quota.Rate = 2.5
	want.Server.HSTSMaxAge = Duration(time.Hour)
	want.Server.MaxBodyBytes = 4096
	want.Quota.CookieKeys = []string{"a:x", "b:y"}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("ApplyEnv (-want +got):\n%s", diff)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		envFile string
		env     map[string]string
		want    string
	}{
		{name: "missing file", path: "testdata/nope.toml", want: "no such file"},
		{name: "unknown field", path: "testdata/unknown.toml", want: "adress"},
		{name: "missing env file", envFile: "testdata/nope.env", want: "nope.env"},
		{name: "bad bool", env: map[string]string{"SIGRPC_DEBUG": "maybe"}, want: "Debug"},
		{name: "bad window", env: map[string]string{"SIGRPC_QUOTA_BUDGET_WINDOW": "soon"}, want: "BudgetWindow"},
		{name: "bad level", env: map[string]string{"SIGRPC_LOG_LEVEL": "loud"}, want: "Level"},
		{name: "budget without keys", env: map[string]string{"SIGRPC_QUOTA_BUDGET_CALLS": "5"}, want: "CookieKeys"},
		{name: "relative path", env: map[string]string{"SIGRPC_PATH": "rpc"}, want: "Path"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load(tt.path, tt.envFile)
			if err == nil {
				t.Fatal("Load: got nil error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("got %q, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestValidate_BudgetWindow(t *testing.T) {
	cfg := Default()
	cfg.Quota.BudgetCalls = 10
	cfg.Quota.CookieKeys = []string{"k:key"}
	cfg.Quota.BudgetWindow = 0
	if err := cfg.Validate(); err == nil {
		t.Error("Validate: want an error for a zero budget window")
	}
	cfg.Quota.BudgetWindow = Duration(time.Minute)
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLog_SlogLevel(t *testing.T) {
	for level, want := range map[string]string{
		"debug": "DEBUG", "info": "INFO", "warn": "WARN", "error": "ERROR", "": "INFO",
	} {
		if got := (Log{Level: level}).SlogLevel().String(); got != want {
			t.Errorf("SlogLevel(%q) = %s, want %s", level, got, want)
		}
	}
}
