package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// ReplayConfig holds configuration values loaded from flags, env, or
// config file for the replay command.
type ReplayConfig struct {
	Input     string
	AssetA    string
	AssetB    string
	SeedFile  string
	Out       string
	PGDSN     string
	StateFile string
	BatchSize int
	LogLevel  string
}

// LoadReplay merges config file, environment variables, and flags into
// ReplayConfig.
func LoadReplay(cfgFile string, flags *pflag.FlagSet) (ReplayConfig, error) {
	v := viper.New()
	v.SetEnvPrefix("AMM")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("out", "./data/pool_events.jsonl")
	v.SetDefault("state-file", "./data/replay_state.json")
	v.SetDefault("batch-size", 500)
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return ReplayConfig{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return ReplayConfig{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return ReplayConfig{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := ReplayConfig{
		Input:     v.GetString("in"),
		AssetA:    v.GetString("asset-a"),
		AssetB:    v.GetString("asset-b"),
		SeedFile:  v.GetString("seed"),
		Out:       v.GetString("out"),
		PGDSN:     v.GetString("pg-dsn"),
		StateFile: v.GetString("state-file"),
		BatchSize: v.GetInt("batch-size"),
		LogLevel:  v.GetString("log-level"),
	}

	return cfg, nil
}
