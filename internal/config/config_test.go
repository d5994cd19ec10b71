package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// mockSecrets is a test double for the secrets file.
type mockSecrets struct {
	value string
	err   error
}

func (m mockSecrets) Get(service, account string) (string, error) {
	return m.value, m.err
}

var errNoSecret = errors.New("no secret")

func clearEnv(t *testing.T) {
	t.Helper()
	for _, s := range specs {
		t.Setenv(s.env, "")
	}
}

func writeTempConfig(t *testing.T, content string) *fileBackend {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if content != "" {
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return newFileBackend(path)
}

func TestDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("XDG_DATA_HOME", "/tmp/xdg-data")

	cfg, err := loadWith(writeTempConfig(t, ""), mockSecrets{err: errNoSecret})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 4100 {
		t.Errorf("Server.Port = %d, want 4100", cfg.Server.Port)
	}
	if cfg.Storage.Backend != BackendFile {
		t.Errorf("Storage.Backend = %q, want %q", cfg.Storage.Backend, BackendFile)
	}
	if cfg.Storage.DataDir != "/tmp/xdg-data/contec" {
		t.Errorf("Storage.DataDir = %q, want %q", cfg.Storage.DataDir, "/tmp/xdg-data/contec")
	}
	if got := cfg.Storage.KnowledgePath(); got != "/tmp/xdg-data/contec/knowledge_base.json" {
		t.Errorf("KnowledgePath() = %q", got)
	}
	if got := cfg.Storage.SaveTimeoutDuration(); got != 5*time.Second {
		t.Errorf("SaveTimeoutDuration() = %v, want 5s", got)
	}
	if cfg.Matcher.Cutoff != 0.6 {
		t.Errorf("Matcher.Cutoff = %v, want 0.6", cfg.Matcher.Cutoff)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want info", cfg.Log.Level)
	}
	if cfg.Trainer.Password != "" {
		t.Errorf("Trainer.Password = %q, want empty", cfg.Trainer.Password)
	}
}

func TestFileValues(t *testing.T) {
	clearEnv(t)

	b := writeTempConfig(t, `{
  "server.port": 5000,
  "storage.backend": "sqlite",
  "storage.data_dir": "/srv/contec",
  "matcher.cutoff": "0.75",
  "log.level": "debug"
}`)
	cfg, err := loadWith(b, mockSecrets{err: errNoSecret})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 5000 {
		t.Errorf("Server.Port = %d, want 5000", cfg.Server.Port)
	}
	if cfg.Storage.Backend != BackendSQLite {
		t.Errorf("Storage.Backend = %q, want sqlite", cfg.Storage.Backend)
	}
	if cfg.Storage.DataDir != "/srv/contec" {
		t.Errorf("Storage.DataDir = %q", cfg.Storage.DataDir)
	}
	if cfg.Matcher.Cutoff != 0.75 {
		t.Errorf("Matcher.Cutoff = %v, want 0.75", cfg.Matcher.Cutoff)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want debug", cfg.Log.Level)
	}
}

func TestEnvOverride(t *testing.T) {
	clearEnv(t)
	b := writeTempConfig(t, `{"server.port": 5000, "matcher.cutoff": "0.7"}`)

	t.Setenv("CONTEC_SERVER_PORT", "6000")
	t.Setenv("CONTEC_MATCHER_CUTOFF", "0.9")
	t.Setenv("CONTEC_STORAGE_KB_FILE", "/abs/kb.json")

	cfg, err := loadWith(b, mockSecrets{err: errNoSecret})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 6000 {
		t.Errorf("Server.Port = %d, want 6000", cfg.Server.Port)
	}
	if cfg.Matcher.Cutoff != 0.9 {
		t.Errorf("Matcher.Cutoff = %v, want 0.9", cfg.Matcher.Cutoff)
	}
	if got := cfg.Storage.KnowledgePath(); got != "/abs/kb.json" {
		t.Errorf("KnowledgePath() = %q, want /abs/kb.json", got)
	}
}

func TestInvalidEnvIgnored(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONTEC_SERVER_PORT", "not-a-number")

	cfg, err := loadWith(writeTempConfig(t, ""), mockSecrets{err: errNoSecret})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 4100 {
		t.Errorf("Server.Port = %d, want default 4100", cfg.Server.Port)
	}
}

func TestTrainerPassword(t *testing.T) {
	t.Run("from secrets file", func(t *testing.T) {
		clearEnv(t)
		cfg, err := loadWith(writeTempConfig(t, ""), mockSecrets{value: "file-secret"})
		if err != nil {
			t.Fatal(err)
		}
		if cfg.Trainer.Password != "file-secret" {
			t.Errorf("Trainer.Password = %q, want file-secret", cfg.Trainer.Password)
		}
	})

	t.Run("env wins over secrets file", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("CONTEC_TRAINER_PASSWORD", "env-secret")
		cfg, err := loadWith(writeTempConfig(t, ""), mockSecrets{value: "file-secret"})
		if err != nil {
			t.Fatal(err)
		}
		if cfg.Trainer.Password != "env-secret" {
			t.Errorf("Trainer.Password = %q, want env-secret", cfg.Trainer.Password)
		}
	})

	t.Run("never read from config file", func(t *testing.T) {
		clearEnv(t)
		b := writeTempConfig(t, `{"trainer.password": "leaked"}`)
		cfg, err := loadWith(b, mockSecrets{err: errNoSecret})
		if err != nil {
			t.Fatal(err)
		}
		if cfg.Trainer.Password != "" {
			t.Errorf("Trainer.Password = %q, want empty", cfg.Trainer.Password)
		}
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults ok", func(*Config) {}, ""},
		{"unknown backend", func(c *Config) { c.Storage.Backend = "redis" }, "storage.backend"},
		{"cutoff above one", func(c *Config) { c.Matcher.Cutoff = 1.5 }, "matcher.cutoff"},
		{"negative cutoff", func(c *Config) { c.Matcher.Cutoff = -0.1 }, "matcher.cutoff"},
		{"bad timeout", func(c *Config) { c.Storage.SaveTimeout = "soon" }, "storage.save_timeout"},
		{"zero timeout", func(c *Config) { c.Storage.SaveTimeout = "0s" }, "storage.save_timeout"},
		{"port out of range", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"unknown log level", func(c *Config) { c.Log.Level = "verbose" }, "log.level"},
		{"empty kb file", func(c *Config) { c.Storage.KBFile = "" }, "storage.kb_file"},
		{"empty kb file with sqlite", func(c *Config) {
			c.Storage.Backend = BackendSQLite
			c.Storage.KBFile = ""
		}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() = %v, want error mentioning %q", err, tt.wantErr)
			}
		})
	}
}

func TestSetKey(t *testing.T) {
	clearEnv(t)
	b := writeTempConfig(t, "")

	if err := setKey(b, "server.port", "4200"); err != nil {
		t.Fatalf("setKey port: %v", err)
	}
	if err := setKey(b, "matcher.cutoff", "0.8"); err != nil {
		t.Fatalf("setKey cutoff: %v", err)
	}
	if err := setKey(b, "storage.backend", "sqlite"); err != nil {
		t.Fatalf("setKey backend: %v", err)
	}

	reloaded := newFileBackend(b.path)
	cfg, err := loadWith(reloaded, mockSecrets{err: errNoSecret})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 4200 || cfg.Matcher.Cutoff != 0.8 || cfg.Storage.Backend != BackendSQLite {
		t.Errorf("reloaded config = %+v", cfg)
	}

	if err := setKey(b, "server.port", "abc"); err == nil {
		t.Error("expected error for non-integer port")
	}
	if err := setKey(b, "matcher.cutoff", "high"); err == nil {
		t.Error("expected error for non-numeric cutoff")
	}
	if err := setKey(b, "trainer.password", "x"); err == nil {
		t.Error("expected error when setting a secret")
	}
	if err := setKey(b, "nope", "x"); err == nil {
		t.Error("expected error for unknown key")
	}
	if err := setKey(b, "matcher.cutoff", "1.5"); err == nil || !strings.Contains(err.Error(), "matcher.cutoff") {
		t.Errorf("setKey cutoff 1.5 = %v, want range error", err)
	}
	if err := setKey(b, "storage.save_timeout", "soon"); err == nil {
		t.Error("expected error for unparseable duration")
	}
	if got, _, _ := newFileBackend(b.path).GetFloat("matcher.cutoff"); got != 0.8 {
		t.Errorf("rejected value reached the file: cutoff = %v", got)
	}
}

func TestUnsetKey(t *testing.T) {
	clearEnv(t)
	b := writeTempConfig(t, `{"server.port": 5000, "log.level": "debug"}`)

	if err := unsetKey(b, "server.port"); err != nil {
		t.Fatalf("unsetKey: %v", err)
	}
	if err := unsetKey(b, "server.port"); err != nil {
		t.Fatalf("unsetKey on absent key: %v", err)
	}
	if err := unsetKey(b, "trainer.password"); err == nil {
		t.Error("expected error for secret key")
	}

	cfg, err := loadWith(newFileBackend(b.path), mockSecrets{err: errNoSecret})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 4100 || cfg.Log.Level != "debug" {
		t.Errorf("after unset: port=%d level=%q", cfg.Server.Port, cfg.Log.Level)
	}
}

func TestShowAllSources(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONTEC_LOG_LEVEL", "warn")
	b := writeTempConfig(t, `{"server.port": 5000}`)
	cfg, err := loadWith(b, mockSecrets{err: errNoSecret})
	if err != nil {
		t.Fatal(err)
	}

	got := map[string]KeyInfo{}
	for _, ki := range showAll(cfg, b) {
		got[ki.Key] = ki
	}
	tests := []struct {
		key, value, source string
	}{
		{"server.port", "5000", SourceFile},
		{"log.level", "warn", SourceEnv},
		{"matcher.cutoff", "0.6", SourceDefault},
	}
	for _, tt := range tests {
		ki := got[tt.key]
		if ki.Value != tt.value || ki.Source != tt.source {
			t.Errorf("%s = %q (%s), want %q (%s)", tt.key, ki.Value, ki.Source, tt.value, tt.source)
		}
	}
}

func TestFileBackendRejectsBadValues(t *testing.T) {
	clearEnv(t)
	tests := []struct {
		name    string
		content string
	}{
		{"fractional port", `{"server.port": 4100.5}`},
		{"non-numeric cutoff", `{"matcher.cutoff": "high"}`},
		{"cutoff as object", `{"matcher.cutoff": {"v": 1}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := loadWith(writeTempConfig(t, tt.content), mockSecrets{err: errNoSecret}); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestFileBackendUnparseableFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := loadWith(writeTempConfig(t, "{not json"), mockSecrets{err: errNoSecret})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 4100 {
		t.Errorf("Server.Port = %d, want 4100", cfg.Server.Port)
	}
}

func TestFileBackendWritePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")
	b := newFileBackend(path)
	if err := b.SetInt("server.port", 4200); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("config file mode = %o, want 600", perm)
	}
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("leftover files in config dir: %v", entries)
	}
}

func TestShowAllHidesSecrets(t *testing.T) {
	cfg := defaults()
	cfg.Trainer.Password = "hunter2"
	for _, ki := range showAll(cfg, writeTempConfig(t, "")) {
		if ki.Key == "trainer.password" || ki.Value == "hunter2" {
			t.Fatalf("ShowAll leaked secret: %+v", ki)
		}
	}
	if len(ValidKeys()) != len(specs)-1 {
		t.Errorf("ValidKeys() = %v", ValidKeys())
	}
}

func TestSecretsFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets.json")
	if err := writeSecret(path, "contec", "trainer_password", " s3cret \n"); err != nil {
		t.Fatal(err)
	}
	got, err := secretsFile{path: path}.Get("contec", "trainer_password")
	if err != nil {
		t.Fatal(err)
	}
	if got != "s3cret" {
		t.Errorf("Get() = %q, want s3cret", got)
	}
	if _, err := (secretsFile{path: path}).Get("contec", "other"); err == nil {
		t.Error("expected error for missing account")
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("secrets file mode = %o, want 600", perm)
	}
}
