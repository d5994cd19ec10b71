package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

type Config struct {
	Server  ServerConfig
	Storage StorageConfig
	Matcher MatcherConfig
	Trainer TrainerConfig
	Log     LogConfig
}

type ServerConfig struct {
	Port int
}

type StorageConfig struct {
	Backend     string
	DataDir     string
	KBFile      string
	SaveTimeout string
}

type MatcherConfig struct {
	Cutoff float64
}

type TrainerConfig struct {
	Password string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4100,
		},
		Storage: StorageConfig{
			Backend:     BackendFile,
			DataDir:     defaultDataDir(),
			KBFile:      "knowledge_base.json",
			SaveTimeout: "5s",
		},
		Matcher: MatcherConfig{
			Cutoff: 0.6,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// KnowledgePath returns the JSON knowledge base path. A relative KBFile is
// resolved against DataDir.
func (s StorageConfig) KnowledgePath() string {
	if filepath.IsAbs(s.KBFile) {
		return s.KBFile
	}
	return filepath.Join(s.DataDir, s.KBFile)
}

// SaveTimeoutDuration parses SaveTimeout. Validate has already rejected
// unparseable values for a loaded Config.
func (s StorageConfig) SaveTimeoutDuration() time.Duration {
	d, err := time.ParseDuration(s.SaveTimeout)
	if err != nil {
		return 0
	}
	return d
}

// Load reads configuration from a .env file in the working directory, the
// JSON config file at $XDG_CONFIG_HOME/contec/config.json, environment
// variables, and the secrets file.
//
// Precedence, lowest first: defaults, config file, environment (CONTEC_*).
// The trainer password is a secret: it comes from CONTEC_TRAINER_PASSWORD or
// the secrets file, never from the config file.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("could not read .env", "error", err)
	}
	return loadWith(newPlatformBackend(), secretsFile{path: secretsFilePath()})
}

// secretStore abstracts the secrets file for testing.
type secretStore interface {
	Get(service, account string) (string, error)
}

func loadWith(b ConfigBackend, secrets secretStore) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if cfg.Trainer.Password == "" {
		if pw, err := secrets.Get("contec", "trainer_password"); err == nil && pw != "" {
			cfg.Trainer.Password = pw
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects values the rest of the program cannot work with.
func (c Config) Validate() error {
	var errs []error
	switch c.Storage.Backend {
	case BackendFile, BackendSQLite:
	default:
		errs = append(errs, fmt.Errorf("storage.backend must be %q or %q, got %q", BackendFile, BackendSQLite, c.Storage.Backend))
	}
	if c.Storage.DataDir == "" {
		errs = append(errs, errors.New("storage.data_dir must not be empty"))
	}
	if c.Storage.Backend == BackendFile && c.Storage.KBFile == "" {
		errs = append(errs, errors.New("storage.kb_file must not be empty"))
	}
	if d, err := time.ParseDuration(c.Storage.SaveTimeout); err != nil || d <= 0 {
		errs = append(errs, fmt.Errorf("storage.save_timeout must be a positive duration, got %q", c.Storage.SaveTimeout))
	}
	if c.Matcher.Cutoff < 0 || c.Matcher.Cutoff > 1 {
		errs = append(errs, fmt.Errorf("matcher.cutoff must be in [0, 1], got %v", c.Matcher.Cutoff))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level must be one of debug, info, warn, error, got %q", c.Log.Level))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// secretsFile reads secrets from the JSON file written by SetTrainerPassword.
type secretsFile struct {
	path string
}

func (f secretsFile) Get(service, account string) (string, error) {
	v, err := readSecret(f.path, service, account)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(v), nil
}
