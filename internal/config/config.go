package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds settings for the simulate command, loaded from flags, env, or config file.
type Config struct {
	Script            string
	Out               string
	StateFile         string
	PGDSN             string
	BatchSize         int
	StartTime         time.Time
	DefaultUnbonding  time.Duration
	QueuedSlashPolicy string
	ProofMode         string
	Owner             string
	Custody           string
	FailFast          bool
	MetricsAddr       string
	LogLevel          string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := newViper()
	v.SetDefault("out", "./data/events.jsonl")
	v.SetDefault("state-file", "./data/snapshot.json")
	v.SetDefault("batch-size", 500)
	v.SetDefault("default-unbonding", 7*24*time.Hour)
	v.SetDefault("queued-slash-policy", "forfeit-at-payout")
	v.SetDefault("proof-mode", "flag")
	v.SetDefault("custody", "0x000000000000000000000000000000000000c0de")
	v.SetDefault("fail-fast", false)

	if err := readConfig(v, cfgFile, flags); err != nil {
		return Config{}, err
	}

	startTime, err := ParseStartTime(v.GetString("start-time"))
	if err != nil {
		return Config{}, fmt.Errorf("parse start-time: %w", err)
	}

	cfg := Config{
		Script:            v.GetString("script"),
		Out:               v.GetString("out"),
		StateFile:         v.GetString("state-file"),
		PGDSN:             v.GetString("pg-dsn"),
		BatchSize:         v.GetInt("batch-size"),
		StartTime:         startTime,
		DefaultUnbonding:  v.GetDuration("default-unbonding"),
		QueuedSlashPolicy: v.GetString("queued-slash-policy"),
		ProofMode:         v.GetString("proof-mode"),
		Owner:             v.GetString("owner"),
		Custody:           v.GetString("custody"),
		FailFast:          v.GetBool("fail-fast"),
		MetricsAddr:       v.GetString("metrics-addr"),
		LogLevel:          v.GetString("log-level"),
	}

	return cfg, nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("LEDGER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	v.SetDefault("log-level", "info")
	return v
}

// readConfig binds flags and reads cfgFile, or ./config.* when present.
func readConfig(v *viper.Viper, cfgFile string, flags *pflag.FlagSet) error {
	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config: %w", err)
		}
		return nil
	}

	v.SetConfigName("config")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("read config: %w", err)
		}
	}
	return nil
}
