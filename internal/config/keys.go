package config

import (
	"fmt"
	"log/slog"
	"os"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kFloat
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "CONTEC_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "storage.backend", typ: kString, env: "CONTEC_STORAGE_BACKEND",
		apply:   func(cfg *Config, v any) { cfg.Storage.Backend = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.Backend },
	},
	{
		key: "storage.data_dir", typ: kString, env: "CONTEC_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "storage.kb_file", typ: kString, env: "CONTEC_STORAGE_KB_FILE",
		apply:   func(cfg *Config, v any) { cfg.Storage.KBFile = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.KBFile },
	},
	{
		key: "storage.save_timeout", typ: kString, env: "CONTEC_STORAGE_SAVE_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Storage.SaveTimeout = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.SaveTimeout },
	},
	{
		key: "matcher.cutoff", typ: kFloat, env: "CONTEC_MATCHER_CUTOFF",
		apply:   func(cfg *Config, v any) { cfg.Matcher.Cutoff = v.(float64) },
		extract: func(cfg Config) any { return cfg.Matcher.Cutoff },
	},
	{
		key: "trainer.password", typ: kString, env: "CONTEC_TRAINER_PASSWORD",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Trainer.Password = v.(string) },
		extract: func(cfg Config) any { return cfg.Trainer.Password },
	},
	{
		key: "log.level", typ: kString, env: "CONTEC_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		var (
			v   any
			ok  bool
			err error
		)
		switch s.typ {
		case kInt:
			v, ok, err = b.GetInt(s.key)
		case kFloat:
			v, ok, err = b.GetFloat(s.key)
		default:
			v, ok, err = b.GetString(s.key)
		}
		if err != nil {
			return fmt.Errorf("reading %s: %w", s.key, err)
		}
		if ok {
			s.apply(cfg, v)
		}
	}
	return nil
}

// applyEnvOverrides applies CONTEC_* variables. Values that do not parse are
// logged and skipped.
func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		v, err := parseValue(s, raw)
		if err != nil {
			slog.Warn("ignoring environment override", "var", s.env, "error", err)
			continue
		}
		s.apply(cfg, v)
	}
}
