// Package conversation is the single entry point for a user turn. It routes
// input by session phase to the matcher, the knowledge store, and the
// training workflow.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kalambet/contec/internal/dialog"
	"github.com/kalambet/contec/internal/knowledge"
	"github.com/kalambet/contec/internal/matcher"
	"github.com/kalambet/contec/internal/training"
)

// QuitKeyword ends a session, compared case-insensitively after trimming.
const QuitKeyword = "quit"

// ErrSessionEnded is returned for input on an ended session. The session is
// left as it was.
var ErrSessionEnded = errors.New("conversation has ended")

// Turn is the outcome of one HandleInput call.
type Turn struct {
	// Replies are the assistant messages appended during the turn.
	Replies []dialog.Message
	// Warning is set when the knowledge base could not be read and the turn
	// was answered against an empty base.
	Warning error
}

// Controller processes turns. It holds no per-session state and no copy of
// the knowledge base between calls.
type Controller struct {
	store    knowledge.Store
	matcher  matcher.Matcher
	training *training.Workflow
}

func New(store knowledge.Store, m matcher.Matcher, wf *training.Workflow) *Controller {
	return &Controller{store: store, matcher: m, training: wf}
}

// HandleInput processes one user utterance. Blank input is ignored. Casing
// is kept for the transcript and for any question queued for training.
func (c *Controller) HandleInput(ctx context.Context, sess *dialog.Session, raw string) (Turn, error) {
	if sess.Phase() == dialog.Ended {
		return Turn{}, ErrSessionEnded
	}
	text := strings.TrimSpace(raw)
	if text == "" {
		return Turn{}, nil
	}

	mark := len(sess.Transcript)
	sess.AppendUser(text)

	if strings.ToLower(text) == QuitKeyword {
		sess.AppendAssistant(dialog.Farewell)
		sess.End()
		return Turn{Replies: sess.Since(mark + 1)}, nil
	}

	kb, warn := knowledge.LoadOrEmpty(ctx, c.store)
	turn := Turn{Warning: warn}

	if best, ok := c.matcher.BestMatch(text, kb.QuestionTexts()); ok {
		answer, found := kb.AnswerFor(best)
		if !found {
			// BestMatch only returns questions taken from kb.
			return Turn{}, fmt.Errorf("matched question %q has no answer", best)
		}
		slog.Debug("question matched", "session", sess.ID, "input", text, "match", best)
		sess.AppendAssistant(answer)
		turn.Replies = sess.Since(mark + 1)
		return turn, nil
	}

	slog.Debug("question unknown", "session", sess.ID, "input", text)
	sess.AppendAssistant(dialog.Unknown)
	if err := sess.AwaitTraining(text); err != nil {
		return Turn{}, err
	}
	turn.Replies = sess.Since(mark + 1)
	return turn, nil
}

// Train submits an operator answer for the pending question.
func (c *Controller) Train(ctx context.Context, sess *dialog.Session, answer string, authorized bool) (training.Result, error) {
	if sess.Phase() == dialog.Ended {
		return training.Result{}, ErrSessionEnded
	}
	return c.training.Submit(ctx, sess, answer, authorized)
}

// Cancel drops the pending question without teaching it.
func (c *Controller) Cancel(sess *dialog.Session, authorized bool) (training.Result, error) {
	if sess.Phase() == dialog.Ended {
		return training.Result{}, ErrSessionEnded
	}
	return c.training.Cancel(sess, authorized), nil
}

// Logout discards the pending question when the operator signs out.
func (c *Controller) Logout(sess *dialog.Session) {
	c.training.Abandon(sess)
}
