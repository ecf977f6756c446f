package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/kbukum/pushflow/errors"
)

func TestServiceConfigApplyDefaults(t *testing.T) {
	t.Run("empty environment defaults to development", func(t *testing.T) {
		cfg := ServiceConfig{Name: "svc"}
		cfg.ApplyDefaults()
		if cfg.Environment != "development" {
			t.Errorf("expected 'development', got %q", cfg.Environment)
		}
		if !cfg.Debug {
			t.Error("expected debug=true for development")
		}
	})

	t.Run("production environment keeps debug false", func(t *testing.T) {
		cfg := ServiceConfig{Name: "svc", Environment: "production"}
		cfg.ApplyDefaults()
		if cfg.Debug {
			t.Error("expected debug=false for production")
		}
	})

	t.Run("stream and logging defaults", func(t *testing.T) {
		cfg := ServiceConfig{Name: "svc"}
		cfg.ApplyDefaults()
		if cfg.Stream.Prefetch != DefaultPrefetch {
			t.Errorf("expected prefetch %d, got %d", DefaultPrefetch, cfg.Stream.Prefetch)
		}
		if cfg.Stream.SSEWindow != DefaultSSEWindow {
			t.Errorf("expected sse window %d, got %d", DefaultSSEWindow, cfg.Stream.SSEWindow)
		}
		if cfg.Stream.KeepAlive != DefaultKeepAlive {
			t.Errorf("expected keep alive %v, got %v", DefaultKeepAlive, cfg.Stream.KeepAlive)
		}
		if cfg.Logging.ServiceName != "svc" {
			t.Errorf("expected logging service name 'svc', got %q", cfg.Logging.ServiceName)
		}
		if cfg.Observability.Tracing.SampleRate != 1.0 {
			t.Errorf("expected sample rate 1.0, got %v", cfg.Observability.Tracing.SampleRate)
		}
		if cfg.Server.Addr != ":8080" {
			t.Errorf("expected addr ':8080', got %q", cfg.Server.Addr)
		}
	})
}

func TestServiceConfigValidate(t *testing.T) {
	valid := func() ServiceConfig {
		cfg := ServiceConfig{Name: "svc", Environment: "staging"}
		cfg.ApplyDefaults()
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*ServiceConfig)
		wantErr bool
		errMsg  string
	}{
		{"valid", func(*ServiceConfig) {}, false, ""},
		{"missing name", func(c *ServiceConfig) { c.Name = "" }, true, "name"},
		{"invalid environment", func(c *ServiceConfig) { c.Environment = "invalid" }, true, "environment"},
		{"negative prefetch", func(c *ServiceConfig) { c.Stream.Prefetch = -1 }, true, "stream.prefetch"},
		{"oversized window", func(c *ServiceConfig) { c.Stream.SSEWindow = 10000 }, true, "stream.sse_window"},
		{"sample rate above one", func(c *ServiceConfig) { c.Observability.Tracing.SampleRate = 2 }, true, "sample_rate"},
		{"tracing without endpoint", func(c *ServiceConfig) { c.Observability.Tracing.Enabled = true }, true, "endpoint"},
		{"tracing with endpoint", func(c *ServiceConfig) {
			c.Observability.Tracing.Enabled = true
			c.Observability.Tracing.Endpoint = "localhost:4318"
		}, false, ""},
		{"negative stream limit", func(c *ServiceConfig) { c.Server.MaxStreamsPerClient = -1 }, true, "server.max_streams_per_client"},
		{"bad log level", func(c *ServiceConfig) { c.Logging.Level = "loud" }, true, "level"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if !tc.wantErr {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.IsCode(err, errors.ErrCodeInvalidConfig) {
				t.Errorf("expected INVALID_CONFIG, got %v", err)
			}
			if !strings.Contains(err.Error(), tc.errMsg) {
				t.Errorf("expected error containing %q, got %q", tc.errMsg, err.Error())
			}
		})
	}
}

func TestLoadConfigWithYAML(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yml")

	yamlContent := `
name: test-service
environment: staging
version: "1.0.0"
server:
  addr: "127.0.0.1:9090"
stream:
  prefetch: 64
  keep_alive: 5s
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	var cfg ServiceConfig
	err := LoadConfig("test-service", &cfg, WithConfigFile(configPath))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Name != "test-service" {
		t.Errorf("expected name 'test-service', got %q", cfg.Name)
	}
	if cfg.Environment != "staging" {
		t.Errorf("expected environment 'staging', got %q", cfg.Environment)
	}
	if cfg.Stream.Prefetch != 64 {
		t.Errorf("expected prefetch 64, got %d", cfg.Stream.Prefetch)
	}
	if cfg.Server.Addr != "127.0.0.1:9090" {
		t.Errorf("expected server addr from file, got %q", cfg.Server.Addr)
	}
	if cfg.Stream.KeepAlive != 5*time.Second {
		t.Errorf("expected keep alive 5s, got %v", cfg.Stream.KeepAlive)
	}
}

func TestLoadAppliesDefaultsAndValidates(t *testing.T) {
	configPath := writeFile(t, t.TempDir(), "config.yml", "environment: production\n")

	cfg, err := Load("streamd", WithConfigFile(configPath))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Name != "streamd" {
		t.Errorf("expected name to fall back to 'streamd', got %q", cfg.Name)
	}
	if cfg.Stream.SSEWindow != DefaultSSEWindow {
		t.Errorf("expected default window, got %d", cfg.Stream.SSEWindow)
	}
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	configPath := writeFile(t, t.TempDir(), "config.yml", "environment: moon\n")

	_, err := Load("streamd", WithConfigFile(configPath))
	if !errors.IsCode(err, errors.ErrCodeInvalidConfig) {
		t.Fatalf("expected INVALID_CONFIG, got %v", err)
	}
}

func TestLoadConfigExplicitFiles(t *testing.T) {
	tests := []struct {
		name string
		opt  Option
	}{
		{"missing config file", WithConfigFile("/nonexistent/config.yml")},
		{"missing env file", WithEnvFile("/nonexistent/.env")},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var cfg ServiceConfig
			err := LoadConfig("svc", &cfg, tc.opt, WithSearchDirs(t.TempDir()))
			if !errors.IsCode(err, errors.ErrCodeInvalidConfig) {
				t.Errorf("expected INVALID_CONFIG, got %v", err)
			}
		})
	}
}

func TestLoadConfigNothingFound(t *testing.T) {
	var cfg ServiceConfig
	if err := LoadConfig("svc", &cfg, WithSearchDirs(t.TempDir())); err != nil {
		t.Fatalf("expected success without any files, got %v", err)
	}
	if cfg.Name != "" {
		t.Errorf("expected empty config, got name %q", cfg.Name)
	}
}

func TestLoadConfigSearchOrder(t *testing.T) {
	root := t.TempDir()
	cmdDir := filepath.Join(root, "cmd", "svc")
	if err := os.MkdirAll(cmdDir, 0o755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, cmdDir, "config.yml", "name: from-cmd\n")
	writeFile(t, root, "config.yml", "name: from-root\n")

	tests := []struct {
		name string
		dirs []string
		want string
	}{
		{"cmd dir first", []string{cmdDir, root}, "from-cmd"},
		{"root only", []string{root}, "from-root"},
		{"directory skipped", []string{filepath.Join(root, "cmd"), root}, "from-root"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var cfg ServiceConfig
			if err := LoadConfig("svc", &cfg, WithSearchDirs(tc.dirs...)); err != nil {
				t.Fatal(err)
			}
			if cfg.Name != tc.want {
				t.Errorf("expected %q, got %q", tc.want, cfg.Name)
			}
		})
	}
}

func TestLoadConfigEnvironmentOverrides(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "config.yml", "name: svc\nstream:\n  sse_window: 16\nserver:\n  addr: \":8080\"\n")
	writeFile(t, dir, ".env", "SERVER_ADDR=127.0.0.1:7070\n")
	t.Setenv("STREAM_SSE_WINDOW", "8")
	t.Setenv("SERVER_CORS_ALLOWED_ORIGINS", "https://a.example,https://b.example")
	os.Unsetenv("SERVER_ADDR")
	t.Cleanup(func() { os.Unsetenv("SERVER_ADDR") })

	var cfg ServiceConfig
	if err := LoadConfig("svc", &cfg, WithSearchDirs(dir)); err != nil {
		t.Fatal(err)
	}
	if cfg.Stream.SSEWindow != 8 {
		t.Errorf("expected the environment to win, got window %d", cfg.Stream.SSEWindow)
	}
	if cfg.Server.Addr != "127.0.0.1:7070" {
		t.Errorf("expected addr from .env, got %q", cfg.Server.Addr)
	}
	if len(cfg.Server.CORS.AllowedOrigins) != 2 {
		t.Errorf("expected two origins from a comma list, got %v", cfg.Server.CORS.AllowedOrigins)
	}
}

func TestConfigKeys(t *testing.T) {
	type inner struct {
		Window int `mapstructure:"window"`
	}
	type Base struct {
		Name string `mapstructure:"name"`
	}
	type sample struct {
		Base    `mapstructure:",squash"`
		Stream  inner  `mapstructure:"stream"`
		Nested  *inner `mapstructure:"nested"`
		Skipped string `mapstructure:"-"`
		Plain   bool
	}

	got := configKeys(reflect.TypeOf(&sample{}), "")
	want := []string{"name", "stream.window", "nested.window", "plain"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("expected %v, got %v", want, got)
	}
	if envName("stream.sse_window") != "STREAM_SSE_WINDOW" {
		t.Errorf("unexpected env name %q", envName("stream.sse_window"))
	}
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}
