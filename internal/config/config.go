// Copyright 2026 The chainconsumer Authors
// This file is part of chainconsumer.
//
// chainconsumer is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// chainconsumer is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with chainconsumer. If not, see <http://www.gnu.org/licenses/>.

// Package config loads the service's environment-variable configuration.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/erigontech/chainconsumer/internal/apperror"
)

// Postgres holds the connection parameters for the store.
type Postgres struct {
	Host     string
	Port     uint16
	Database string
	User     string
	Password string
	PoolSize uint32
}

// Upstream holds the streaming-subscription tuning parameters.
type Upstream struct {
	URL                string
	UpdatesPerRequest  uint
	MaxWaitTime        time.Duration
	StartRollbackDepth uint32
}

// Config is the fully resolved process configuration.
type Config struct {
	Port              uint16
	MetricsPort       uint16
	Postgres          Postgres
	Upstream          Upstream
	HistoryKeysEnable bool
	LogLevel          string
	LogFile           string
}

// rawConfig mirrors the flat environment-variable key space viper binds
// against; mapstructure decodes straight into it via Unmarshal, and Load
// reshapes the result into the nested Config the rest of the service uses.
// A duration can't be decoded automatically from a bare seconds count, so
// MaxWaitTimeInSecs is converted by hand below.
type rawConfig struct {
	Port                uint16 `mapstructure:"port"`
	MetricsPort         uint16 `mapstructure:"metrics_port"`
	PgHost              string `mapstructure:"pghost"`
	PgPort              uint16 `mapstructure:"pgport"`
	PgDatabase          string `mapstructure:"pgdatabase"`
	PgUser              string `mapstructure:"pguser"`
	PgPassword          string `mapstructure:"pgpassword"`
	PgPoolSize          uint32 `mapstructure:"pgpoolsize"`
	BlockchainUpdateURL string `mapstructure:"blockchain_updates_url"`
	UpdatesPerRequest   uint   `mapstructure:"updates_per_request"`
	MaxWaitTimeInSecs   int64  `mapstructure:"max_wait_time_in_secs"`
	StartRollbackDepth  uint32 `mapstructure:"start_rollback_depth"`
	HistoryKeysEnabled  bool   `mapstructure:"history_keys_enabled"`
	LogLevel            string `mapstructure:"log_level"`
	LogFile             string `mapstructure:"log_file"`
}

// Load reads configuration from the environment (all keys uppercase, per
// the service's external contract) and validates the required fields.
func Load() (Config, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("port", 8080)
	v.SetDefault("metrics_port", 9090)
	v.SetDefault("pgport", 5432)
	v.SetDefault("pgpoolsize", 2)
	v.SetDefault("updates_per_request", 256)
	v.SetDefault("max_wait_time_in_secs", 5)
	v.SetDefault("start_rollback_depth", 1)
	v.SetDefault("history_keys_enabled", true)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_file", "")

	required := []string{"pghost", "pgdatabase", "pguser", "pgpassword", "blockchain_updates_url"}
	for _, key := range required {
		// AutomaticEnv alone does not make a key visible to Unmarshal; binding
		// it explicitly does.
		if err := v.BindEnv(key); err != nil {
			return Config{}, apperror.Wrap(apperror.ConfigLoad, err)
		}
		if v.GetString(key) == "" {
			return Config{}, apperror.Wrapf(apperror.ConfigLoad, "missing required environment variable %s", strings.ToUpper(key))
		}
	}

	var raw rawConfig
	if err := v.Unmarshal(&raw); err != nil {
		return Config{}, apperror.Wrap(apperror.ConfigLoad, err)
	}

	cfg := Config{
		Port:        raw.Port,
		MetricsPort: raw.MetricsPort,
		Postgres: Postgres{
			Host:     raw.PgHost,
			Port:     raw.PgPort,
			Database: raw.PgDatabase,
			User:     raw.PgUser,
			Password: raw.PgPassword,
			PoolSize: raw.PgPoolSize,
		},
		Upstream: Upstream{
			URL:                raw.BlockchainUpdateURL,
			UpdatesPerRequest:  raw.UpdatesPerRequest,
			MaxWaitTime:        time.Duration(raw.MaxWaitTimeInSecs) * time.Second,
			StartRollbackDepth: raw.StartRollbackDepth,
		},
		HistoryKeysEnable: raw.HistoryKeysEnabled,
		LogLevel:          raw.LogLevel,
		LogFile:           raw.LogFile,
	}

	return cfg, nil
}
