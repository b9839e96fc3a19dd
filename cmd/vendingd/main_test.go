package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/MarkoPoloResearchLab/vending/internal/config"
)

func TestResolveDriver(t *testing.T) {
	dir := t.TempDir()
	cases := []struct {
		name       string
		dsn        string
		wantDriver string
		wantPath   string
	}{
		{name: "postgres", dsn: "postgres://user@localhost/vending", wantDriver: driverPostgres},
		{name: "postgresql", dsn: "postgresql://user@localhost/vending", wantDriver: driverPostgres},
		{name: "sqlite url", dsn: "sqlite://" + filepath.Join(dir, "nested", "v.db"), wantDriver: driverSQLite, wantPath: filepath.Join(dir, "nested", "v.db")},
		{name: "memory", dsn: ":memory:", wantDriver: driverSQLite, wantPath: ":memory:"},
		{name: "bare path", dsn: filepath.Join(dir, "plain.db"), wantDriver: driverSQLite, wantPath: filepath.Join(dir, "plain.db")},
	}
	for _, tc := range cases {
		driver, path, err := resolveDriver(tc.dsn)
		if err != nil {
			t.Fatalf("%s: unexpected error %v", tc.name, err)
		}
		if driver != tc.wantDriver || path != tc.wantPath {
			t.Fatalf("%s: expected %s %q, got %s %q", tc.name, tc.wantDriver, tc.wantPath, driver, path)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "nested")); err != nil {
		t.Fatalf("expected sqlite directory to be created: %v", err)
	}
}

func TestLoadConfigFromFlags(t *testing.T) {
	cmd := newRootCommand()
	if err := cmd.Flags().Parse([]string{
		"--jwt-signing-key=secret",
		"--store=gorm",
		"--database-url=sqlite://" + filepath.Join(t.TempDir(), "v.db"),
		"--session-ttl=15m",
		"--allowed-origins=http://a.test, http://b.test",
		"--serialize-balances",
		"--login-burst=3",
		"--env-file=",
	}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	cfg := &config.Config{}
	if err := loadConfig(cmd, cfg); err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.SessionTTL != 15*time.Minute || !cfg.SerializeBalances || cfg.LoginBurst != 3 || len(cfg.AllowedOrigins) != 2 {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.ListenAddr != ":8080" || cfg.SessionCacheURL != "memory://" {
		t.Fatalf("expected defaults to be filled, got %+v", cfg)
	}
}

func TestLoadConfigFromEnvFile(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), "test.env")
	content := "VENDING_JWT_SIGNING_KEY=from-file\nVENDING_SESSION_CACHE_URL=redis://localhost:6379/0\nVENDING_LISTEN_ADDR=:9999\n"
	if err := os.WriteFile(envFile, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	for _, key := range []string{"VENDING_JWT_SIGNING_KEY", "VENDING_SESSION_CACHE_URL", "VENDING_LISTEN_ADDR"} {
		key := key
		t.Cleanup(func() { _ = os.Unsetenv(key) })
	}

	cmd := newRootCommand()
	if err := cmd.Flags().Parse([]string{"--env-file=" + envFile}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	cfg := &config.Config{}
	if err := loadConfig(cmd, cfg); err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.JWTSigningKey != "from-file" || cfg.SessionCacheURL != "redis://localhost:6379/0" || cfg.ListenAddr != ":9999" {
		t.Fatalf("expected env file values, got %+v", cfg)
	}
}

func TestLoadConfigRequiresSigningKey(t *testing.T) {
	cmd := newRootCommand()
	if err := cmd.Flags().Parse([]string{"--env-file=" + filepath.Join(t.TempDir(), "missing.env")}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	t.Setenv("VENDING_JWT_SIGNING_KEY", "")
	if err := loadConfig(cmd, &config.Config{}); err == nil {
		t.Fatalf("expected missing signing key to fail")
	}
}
