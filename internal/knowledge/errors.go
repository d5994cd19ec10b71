package knowledge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrCorrupt is matched by any CorruptError.
var ErrCorrupt = errors.New("knowledge base is corrupt")

// CorruptError reports a persisted knowledge base that exists but cannot be
// parsed.
type CorruptError struct {
	Source string
	Err    error
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("knowledge base %s is corrupt: %v", e.Source, e.Err)
}

func (e *CorruptError) Unwrap() error { return e.Err }

func (e *CorruptError) Is(target error) bool { return target == ErrCorrupt }

// LoadOrEmpty loads s and never fails: on any load error it logs a warning
// and substitutes an empty base. The load error is returned alongside so the
// caller can report it; a nil error means the base was read cleanly.
func LoadOrEmpty(ctx context.Context, s Store) (Base, error) {
	b, err := s.Load(ctx)
	if err != nil {
		slog.Warn("knowledge base unavailable, starting fresh", "error", err)
		return Base{}, err
	}
	return b, nil
}
