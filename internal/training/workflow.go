// Package training gates the AwaitingTraining -> Active transition behind
// operator authorization and commits taught answers to the knowledge base.
package training

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kalambet/contec/internal/dialog"
	"github.com/kalambet/contec/internal/knowledge"
)

// DefaultSaveTimeout bounds a single knowledge base write.
const DefaultSaveTimeout = 5 * time.Second

type Status int

const (
	// Committed: the pair was persisted and the session resumed.
	Committed Status = iota
	// Cancelled: the pending question was dropped.
	Cancelled
	// Unauthorized: the actor may not train; nothing changed.
	Unauthorized
	// NothingPending: the session has no question awaiting training.
	NothingPending
	// EmptyAnswer: the submitted answer was blank; the form re-prompts.
	EmptyAnswer
)

func (s Status) String() string {
	switch s {
	case Committed:
		return "committed"
	case Cancelled:
		return "cancelled"
	case Unauthorized:
		return "unauthorized"
	case NothingPending:
		return "nothing_pending"
	case EmptyAnswer:
		return "empty_answer"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Result describes what a Submit or Cancel call did.
type Result struct {
	Status Status
	// Entry is the committed pair when Status is Committed.
	Entry knowledge.Entry
	// Warning is set when the stored base could not be read before the
	// commit and an empty base was used instead.
	Warning error
}

// Workflow commits taught answers. It never sees credentials: callers pass
// the outcome of their own authorization check on every call.
type Workflow struct {
	store       knowledge.Store
	saveTimeout time.Duration
}

// New returns a Workflow persisting to store. A non-positive saveTimeout
// selects DefaultSaveTimeout.
func New(store knowledge.Store, saveTimeout time.Duration) *Workflow {
	if saveTimeout <= 0 {
		saveTimeout = DefaultSaveTimeout
	}
	return &Workflow{store: store, saveTimeout: saveTimeout}
}

// Submit teaches answer for the session's pending question. The session is
// only modified after the knowledge base has been saved; a load error other
// than corruption, or a save error, is returned with the session untouched.
func (w *Workflow) Submit(ctx context.Context, sess *dialog.Session, answer string, authorized bool) (Result, error) {
	if !authorized {
		return Result{Status: Unauthorized}, nil
	}
	question, ok := sess.PendingQuestion()
	if !ok {
		return Result{Status: NothingPending}, nil
	}
	if strings.TrimSpace(answer) == "" {
		return Result{Status: EmptyAnswer}, nil
	}

	// Only a corrupt base is replaced with an empty one.
	kb, warn := w.store.Load(ctx)
	if warn != nil {
		if !errors.Is(warn, knowledge.ErrCorrupt) {
			return Result{}, fmt.Errorf("loading knowledge base: %w", warn)
		}
		slog.Warn("knowledge base corrupt, replacing it", "error", warn)
		kb = knowledge.Base{}
	}
	entry := knowledge.Entry{Question: question, Answer: answer}

	saveCtx, cancel := context.WithTimeout(ctx, w.saveTimeout)
	defer cancel()
	if err := w.store.Save(saveCtx, kb.With(entry)); err != nil {
		return Result{}, fmt.Errorf("saving taught answer: %w", err)
	}

	slog.Info("knowledge base trained", "session", sess.ID, "question", question, "entries", kb.Len()+1)

	sess.AppendAssistant(dialog.Learned(question))
	sess.Resume()
	return Result{Status: Committed, Entry: entry, Warning: warn}, nil
}

// Cancel drops the pending question without touching the knowledge base.
func (w *Workflow) Cancel(sess *dialog.Session, authorized bool) Result {
	if !authorized {
		return Result{Status: Unauthorized}
	}
	if _, ok := sess.PendingQuestion(); !ok {
		return Result{Status: NothingPending}
	}
	sess.AppendAssistant(dialog.Continuing)
	sess.Resume()
	return Result{Status: Cancelled}
}

// Abandon silently drops the pending question, e.g. when the operator logs
// out.
func (w *Workflow) Abandon(sess *dialog.Session) {
	sess.Resume()
}
