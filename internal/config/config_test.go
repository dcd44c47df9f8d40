package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != DefaultHTTPAddr {
		t.Fatalf("addr = %q", cfg.Server.Addr)
	}
	if cfg.Store.Driver != DefaultStoreDriver {
		t.Fatalf("driver = %q", cfg.Store.Driver)
	}
	if cfg.Scheduler.BatchSize != DefaultSweepBatch {
		t.Fatalf("batch size = %d", cfg.Scheduler.BatchSize)
	}
	if cfg.Agents.DefaultAgentID != DefaultAgentID {
		t.Fatalf("default agent = %q", cfg.Agents.DefaultAgentID)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	contents := `
[server]
addr = ":9090"
api_token = "secret"

[store]
driver = "memory"

[scheduler]
sweep_interval = "30s"
batch_size = 10

[postgres]
host = "db.internal"
password = "hunter2"
`
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != ":9090" || cfg.Server.APIToken != "secret" {
		t.Fatalf("server = %+v", cfg.Server)
	}
	if cfg.Store.Driver != "memory" {
		t.Fatalf("driver = %q", cfg.Store.Driver)
	}
	if cfg.Scheduler.SweepInterval != "30s" || cfg.Scheduler.BatchSize != 10 {
		t.Fatalf("scheduler = %+v", cfg.Scheduler)
	}
	// untouched sections keep their defaults
	if cfg.Postgres.Port != DefaultPGPort || cfg.Postgres.Host != "db.internal" {
		t.Fatalf("postgres = %+v", cfg.Postgres)
	}
}

func TestLoadInvalidTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[server\naddr = "), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("want parse error")
	}
}

func TestDuration(t *testing.T) {
	if got := Duration("45s", DefaultSweepInterval); got != 45*time.Second {
		t.Fatalf("got %v", got)
	}
	if got := Duration("", DefaultSweepInterval); got != time.Minute {
		t.Fatalf("fallback = %v", got)
	}
	if got := Duration("nonsense", DefaultSweepInterval); got != time.Minute {
		t.Fatalf("invalid = %v", got)
	}
	if got := Duration("-5s", DefaultSweepInterval); got != time.Minute {
		t.Fatalf("negative = %v", got)
	}
}
