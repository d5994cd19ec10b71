package knowledge

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Format names an interchange encoding for export and import.
type Format string

const (
	FormatJSON Format = "json"
	FormatTOML Format = "toml"
)

// ParseFormat accepts "json" or "toml", case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatJSON, FormatTOML:
		return f, nil
	default:
		return "", fmt.Errorf("unknown format %q (want json or toml)", s)
	}
}

// FormatFromPath guesses the format from a file extension, defaulting to
// JSON.
func FormatFromPath(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return FormatTOML
	}
	return FormatJSON
}

// Encode writes b to w in format f.
func Encode(w io.Writer, b Base, f Format) error {
	if b.Questions == nil {
		b.Questions = []Entry{}
	}
	switch f {
	case FormatTOML:
		return toml.NewEncoder(w).Encode(b)
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(b)
	default:
		return fmt.Errorf("unknown format %q", f)
	}
}

// Decode reads a base in format f from r. Entries with an empty question or
// answer are rejected.
func Decode(r io.Reader, f Format) (Base, error) {
	var b Base
	switch f {
	case FormatTOML:
		if _, err := toml.NewDecoder(r).Decode(&b); err != nil {
			return Base{}, fmt.Errorf("decoding toml: %w", err)
		}
	case FormatJSON:
		if err := json.NewDecoder(r).Decode(&b); err != nil {
			return Base{}, fmt.Errorf("decoding json: %w", err)
		}
	default:
		return Base{}, fmt.Errorf("unknown format %q", f)
	}
	for i, e := range b.Questions {
		if strings.TrimSpace(e.Question) == "" || strings.TrimSpace(e.Answer) == "" {
			return Base{}, fmt.Errorf("entry %d: question and answer must not be empty", i+1)
		}
	}
	return b, nil
}
