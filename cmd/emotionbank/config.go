package main

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/quailyquaily/emotionbank/companion"
	"github.com/quailyquaily/emotionbank/db"
	"github.com/quailyquaily/emotionbank/internal/pathutil"
	"github.com/quailyquaily/emotionbank/vectorindex"
)

func dbConfigFromViper() db.Config {
	cfg := db.DefaultConfig()

	if v := strings.TrimSpace(viper.GetString("db.driver")); v != "" {
		cfg.Driver = v
	}
	if v := strings.TrimSpace(viper.GetString("db.dsn")); v != "" {
		cfg.DSN = v
	}
	cfg.AutoMigrate = viper.GetBool("db.automigrate")

	if v := viper.GetInt("db.pool.max_open_conns"); v > 0 {
		cfg.Pool.MaxOpenConns = v
	}
	if v := viper.GetInt("db.pool.max_idle_conns"); v > 0 {
		cfg.Pool.MaxIdleConns = v
	}
	if v := viper.GetDuration("db.pool.conn_max_lifetime"); v > 0 {
		cfg.Pool.ConnMaxLifetime = v
	}

	if v := viper.GetInt("db.sqlite.busy_timeout_ms"); v > 0 {
		cfg.SQLite.BusyTimeoutMs = v
	}
	if viper.IsSet("db.sqlite.wal") {
		cfg.SQLite.WAL = viper.GetBool("db.sqlite.wal")
	}
	if viper.IsSet("db.sqlite.foreign_keys") {
		cfg.SQLite.ForeignKeys = viper.GetBool("db.sqlite.foreign_keys")
	}

	return cfg
}

func vectorIndexFromViper() (vectorindex.Index, error) {
	dir := strings.TrimSpace(viper.GetString("vector.dir"))
	if dir == "" {
		return vectorindex.New(), nil
	}
	resolved, err := pathutil.EnsureDir(dir)
	if err != nil {
		return nil, fmt.Errorf("vector dir: %w", err)
	}
	return vectorindex.NewPersistent(resolved)
}

func promptBankFromViper() (companion.PromptBank, error) {
	path := strings.TrimSpace(viper.GetString("companion.prompts_file"))
	if path == "" {
		return companion.DefaultPromptBank(), nil
	}
	return companion.LoadPromptBank(pathutil.ExpandHomePath(path))
}
