package config

import (
	"time"

	"github.com/spf13/pflag"
)

// ReplayConfig holds settings for rebuilding ledger state from a journal.
type ReplayConfig struct {
	In                string
	StateFile         string
	PGDSN             string
	BatchSize         int
	DefaultUnbonding  time.Duration
	QueuedSlashPolicy string
	LogLevel          string
}

// LoadReplay merges config file, environment variables, and flags into ReplayConfig.
func LoadReplay(cfgFile string, flags *pflag.FlagSet) (ReplayConfig, error) {
	v := newViper()
	v.SetDefault("in", "./data/events.jsonl")
	v.SetDefault("batch-size", 500)
	v.SetDefault("default-unbonding", 7*24*time.Hour)
	v.SetDefault("queued-slash-policy", "forfeit-at-payout")

	if err := readConfig(v, cfgFile, flags); err != nil {
		return ReplayConfig{}, err
	}

	cfg := ReplayConfig{
		In:                v.GetString("in"),
		StateFile:         v.GetString("state-file"),
		PGDSN:             v.GetString("pg-dsn"),
		BatchSize:         v.GetInt("batch-size"),
		DefaultUnbonding:  v.GetDuration("default-unbonding"),
		QueuedSlashPolicy: v.GetString("queued-slash-policy"),
		LogLevel:          v.GetString("log-level"),
	}

	return cfg, nil
}
