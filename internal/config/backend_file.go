package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// xdgDir returns $env, or $HOME joined with fallback when it is unset.
func xdgDir(env string, fallback ...string) string {
	if dir := os.Getenv(env); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(append([]string{home}, fallback...)...)
}

func dataHome() string { return xdgDir("XDG_DATA_HOME", ".local", "share") }

func defaultDataDir() string { return filepath.Join(dataHome(), "contec") }

func configFilePath() string {
	return filepath.Join(xdgDir("XDG_CONFIG_HOME", ".config"), "contec", "config.json")
}

// ConfigPath returns the config file location for display.
func ConfigPath() string { return configFilePath() }

// fileBackend keeps settings as one flat JSON object keyed by dotted name.
// Numbers are held as float64, the shape encoding/json decodes them into.
type fileBackend struct {
	path   string
	values map[string]any
}

func newPlatformBackend() ConfigBackend {
	return newFileBackend(configFilePath())
}

// newFileBackend reads path. A missing file is empty; an unreadable one is
// logged and treated as empty so defaults still apply.
func newFileBackend(path string) *fileBackend {
	b := &fileBackend{path: path, values: make(map[string]any)}
	if err := b.read(); err != nil {
		slog.Warn("ignoring config file, using defaults", "path", path, "error", err)
	}
	return b
}

func (b *fileBackend) read() error {
	data, err := os.ReadFile(b.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	var values map[string]any
	if err := json.Unmarshal(data, &values); err != nil {
		return fmt.Errorf("parsing %s: %w", b.path, err)
	}
	if values != nil {
		b.values = values
	}
	return nil
}

func (b *fileBackend) write() error {
	data, err := json.MarshalIndent(b.values, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(b.path, append(data, '\n'), 0o600)
}

func (b *fileBackend) set(key string, v any) error {
	b.values[key] = v
	return b.write()
}

func (b *fileBackend) Has(key string) bool {
	_, ok := b.values[key]
	return ok
}

func (b *fileBackend) GetString(key string) (string, bool, error) {
	v, ok := b.values[key]
	if !ok {
		return "", false, nil
	}
	if s, isString := v.(string); isString {
		return s, true, nil
	}
	return fmt.Sprint(v), true, nil
}

// GetFloat accepts a JSON number or a numeric string.
func (b *fileBackend) GetFloat(key string) (float64, bool, error) {
	v, ok := b.values[key]
	if !ok {
		return 0, false, nil
	}
	switch val := v.(type) {
	case float64:
		return val, true, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return 0, true, fmt.Errorf("%s: %q is not a number", key, val)
		}
		return f, true, nil
	default:
		return 0, true, fmt.Errorf("%s: expected a number, got %T", key, v)
	}
}

func (b *fileBackend) GetInt(key string) (int, bool, error) {
	f, ok, err := b.GetFloat(key)
	if !ok || err != nil {
		return 0, ok, err
	}
	if f != math.Trunc(f) || f < math.MinInt || f > math.MaxInt {
		return 0, true, fmt.Errorf("%s: %v is not an integer", key, f)
	}
	return int(f), true, nil
}

func (b *fileBackend) SetString(key, val string) error { return b.set(key, val) }

func (b *fileBackend) SetInt(key string, val int) error { return b.set(key, float64(val)) }

func (b *fileBackend) SetFloat(key string, val float64) error { return b.set(key, val) }

func (b *fileBackend) Delete(key string) error {
	if !b.Has(key) {
		return nil
	}
	delete(b.values, key)
	return b.write()
}

// writeFileAtomic replaces path with data via a synced temp file and rename.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), perm); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
