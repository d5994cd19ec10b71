package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Value sources reported by ShowAll.
const (
	SourceDefault = "default"
	SourceFile    = "file"
	SourceEnv     = "env"
)

// KeyInfo describes a config key for display purposes.
type KeyInfo struct {
	Key    string
	EnvVar string
	Value  string
	Source string
}

// ShowAll lists every non-secret key with its effective value in cfg and
// where that value came from.
func ShowAll(cfg Config) []KeyInfo {
	return showAll(cfg, newPlatformBackend())
}

func showAll(cfg Config, b ConfigBackend) []KeyInfo {
	var result []KeyInfo
	for _, s := range specs {
		if s.secret {
			continue
		}
		src := SourceDefault
		switch {
		case os.Getenv(s.env) != "":
			src = SourceEnv
		case b.Has(s.key):
			src = SourceFile
		}
		result = append(result, KeyInfo{
			Key:    s.key,
			EnvVar: s.env,
			Value:  fmt.Sprint(s.extract(cfg)),
			Source: src,
		})
	}
	return result
}

// SetKey validates value for key and writes it to the config file.
func SetKey(key, value string) error {
	return setKey(newPlatformBackend(), key, value)
}

func setKey(b ConfigBackend, key, value string) error {
	s, err := lookupSpec(key)
	if err != nil {
		return err
	}
	v, err := parseValue(s, value)
	if err != nil {
		return err
	}

	// Check the value alone against defaults so unrelated bad keys in the
	// file do not block fixing this one.
	probe := defaults()
	s.apply(&probe, v)
	if err := probe.Validate(); err != nil {
		return err
	}

	switch s.typ {
	case kInt:
		return b.SetInt(key, v.(int))
	case kFloat:
		return b.SetFloat(key, v.(float64))
	default:
		return b.SetString(key, v.(string))
	}
}

// UnsetKey removes key from the config file so its default applies again.
func UnsetKey(key string) error {
	return unsetKey(newPlatformBackend(), key)
}

func unsetKey(b ConfigBackend, key string) error {
	if _, err := lookupSpec(key); err != nil {
		return err
	}
	return b.Delete(key)
}

func lookupSpec(key string) (keySpec, error) {
	for _, s := range specs {
		if s.key != key {
			continue
		}
		if s.secret {
			return keySpec{}, fmt.Errorf("%q is a secret; set %s or run `contec passwd --save`", key, s.env)
		}
		return s, nil
	}
	return keySpec{}, fmt.Errorf("unknown config key %q (valid: %s)", key, strings.Join(ValidKeys(), ", "))
}

func parseValue(s keySpec, raw string) (any, error) {
	raw = strings.TrimSpace(raw)
	switch s.typ {
	case kInt:
		i, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("%s wants an integer, got %q", s.key, raw)
		}
		return i, nil
	case kFloat:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("%s wants a number, got %q", s.key, raw)
		}
		return f, nil
	default:
		return raw, nil
	}
}

// ValidKeys returns the list of valid non-secret config key names.
func ValidKeys() []string {
	var keys []string
	for _, s := range specs {
		if !s.secret {
			keys = append(keys, s.key)
		}
	}
	return keys
}
