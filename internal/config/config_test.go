package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestParseStartTime(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
		err  bool
	}{
		{in: ""},
		{in: "1700000000", want: time.Unix(1700000000, 0).UTC()},
		{in: "2024-01-01T00:00:00Z", want: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
		{in: "2024-01-01T08:00:00+08:00", want: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
		{in: "2024-03-05", want: time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)},
		{in: "-5", err: true},
		{in: "yesterday", err: true},
	}
	for _, tt := range tests {
		got, err := ParseStartTime(tt.in)
		if tt.err {
			if err == nil {
				t.Fatalf("%q: expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%q: unexpected error %v", tt.in, err)
		}
		if !got.Equal(tt.want) {
			t.Fatalf("%q: got %s want %s", tt.in, got, tt.want)
		}
	}
}

func TestLoadFlagsOverrideDefaults(t *testing.T) {
	flags := pflag.NewFlagSet("simulate", pflag.ContinueOnError)
	flags.String("script", "", "")
	flags.Int("batch-size", 0, "")
	flags.String("start-time", "", "")
	flags.Bool("fail-fast", false, "")
	if err := flags.Parse([]string{"--script", "ops.jsonl", "--batch-size", "10", "--start-time", "2024-01-01T00:00:00Z", "--fail-fast"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	cfg, err := Load(writeConfig(t, "log-level: debug\n"), flags)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Script != "ops.jsonl" || cfg.BatchSize != 10 || !cfg.FailFast {
		t.Fatalf("flags not applied: %+v", cfg)
	}
	if cfg.StartTime.Unix() != 1704067200 {
		t.Fatalf("start time %s", cfg.StartTime)
	}
	if cfg.DefaultUnbonding != 7*24*time.Hour || cfg.QueuedSlashPolicy != "forfeit-at-payout" {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("config file not applied: %q", cfg.LogLevel)
	}
}

func TestLoadAuditPoolsFromEnv(t *testing.T) {
	t.Setenv("LEDGER_POOL", " 0xa001, ,0xa002 ")
	t.Setenv("LEDGER_RETRY_BACKOFF", "2s")

	cfg, err := LoadAudit(writeConfig(t, "rpc: http://localhost:8545\n"), nil)
	if err != nil {
		t.Fatalf("load audit: %v", err)
	}
	if want := []string{"0xa001", "0xa002"}; !reflect.DeepEqual(cfg.Pools, want) {
		t.Fatalf("pools: got %v want %v", cfg.Pools, want)
	}
	if cfg.RetryBackoff != 2*time.Second || cfg.MaxRetries != 5 {
		t.Fatalf("retry settings: %+v", cfg)
	}
	if cfg.RPCURL != "http://localhost:8545" {
		t.Fatalf("rpc: %q", cfg.RPCURL)
	}
}

func TestLoadReplayMissingConfigFile(t *testing.T) {
	if _, err := LoadReplay(filepath.Join(t.TempDir(), "missing.yaml"), nil); err == nil {
		t.Fatalf("expected error for missing explicit config file")
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}
