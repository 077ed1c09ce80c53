package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// AuditConfig holds settings for the on-chain custody audit.
type AuditConfig struct {
	RPCURL       string
	StateFile    string
	Custody      string
	Pools        []string
	Block        uint64
	MaxRetries   int
	RetryBackoff time.Duration
	MaxBackoff   time.Duration
	LogLevel     string
}

// LoadAudit merges config file, environment variables, and flags into AuditConfig.
func LoadAudit(cfgFile string, flags *pflag.FlagSet) (AuditConfig, error) {
	v := newViper()
	v.SetDefault("state-file", "./data/snapshot.json")
	v.SetDefault("max-retries", 5)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("retry-max-backoff", 10*time.Second)

	if err := readConfig(v, cfgFile, flags); err != nil {
		return AuditConfig{}, err
	}

	cfg := AuditConfig{
		RPCURL:       v.GetString("rpc"),
		StateFile:    v.GetString("state-file"),
		Custody:      v.GetString("custody"),
		Pools:        addressList(v, "pool"),
		Block:        v.GetUint64("block"),
		MaxRetries:   v.GetInt("max-retries"),
		RetryBackoff: v.GetDuration("retry-backoff"),
		MaxBackoff:   v.GetDuration("retry-max-backoff"),
		LogLevel:     v.GetString("log-level"),
	}

	return cfg, nil
}

// addressList accepts a YAML list, a repeated flag, or a comma-separated env value.
func addressList(v *viper.Viper, key string) []string {
	var raw []string
	switch val := v.Get(key).(type) {
	case []string:
		raw = val
	case []interface{}:
		for _, item := range val {
			raw = append(raw, fmt.Sprint(item))
		}
	case string:
		raw = strings.Split(val, ",")
	}

	var out []string
	for _, item := range raw {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
