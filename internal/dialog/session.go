// Package dialog holds the per-conversation state: the transcript, the
// lifecycle phase, and the single question waiting to be taught.
package dialog

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ErrEnded is returned when a transition is attempted on an ended session.
var ErrEnded = errors.New("session has ended")

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one transcript line.
type Message struct {
	Role Role   `json:"role"`
	Text string `json:"content"`
}

// Phase is the lifecycle state of a session.
type Phase int

const (
	// Active is normal question answering.
	Active Phase = iota
	// AwaitingTraining means an unmatched question is queued for an operator.
	AwaitingTraining
	// Ended means the user quit; only a new session leaves this state.
	Ended
)

func (p Phase) String() string {
	switch p {
	case Active:
		return "active"
	case AwaitingTraining:
		return "awaiting_training"
	case Ended:
		return "ended"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

func (p Phase) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// Session is the state of one conversation. Phase and pending question are
// only changed through methods so that a pending question exists exactly
// when the phase is AwaitingTraining.
//
// A Session is not safe for concurrent use; callers process one turn at a
// time.
type Session struct {
	ID         string
	Transcript []Message

	phase   Phase
	pending string
}

// New starts an Active session with an empty transcript.
func New() *Session {
	return &Session{ID: uuid.NewString(), phase: Active}
}

func (s *Session) Phase() Phase { return s.phase }

// PendingQuestion returns the question awaiting an answer, if any.
func (s *Session) PendingQuestion() (string, bool) {
	return s.pending, s.phase == AwaitingTraining
}

func (s *Session) AppendUser(text string) {
	s.Transcript = append(s.Transcript, Message{Role: RoleUser, Text: text})
}

func (s *Session) AppendAssistant(text string) {
	s.Transcript = append(s.Transcript, Message{Role: RoleAssistant, Text: text})
}

// Since returns the messages appended after the transcript had n entries.
func (s *Session) Since(n int) []Message {
	if n < 0 || n >= len(s.Transcript) {
		return nil
	}
	out := make([]Message, len(s.Transcript)-n)
	copy(out, s.Transcript[n:])
	return out
}

// AwaitTraining queues question for training, replacing any question that
// was already pending.
func (s *Session) AwaitTraining(question string) error {
	if s.phase == Ended {
		return ErrEnded
	}
	if strings.TrimSpace(question) == "" {
		return errors.New("pending question must not be blank")
	}
	s.phase = AwaitingTraining
	s.pending = question
	return nil
}

// Resume drops the pending question and returns to Active. It is a no-op
// unless the session is AwaitingTraining.
func (s *Session) Resume() {
	if s.phase != AwaitingTraining {
		return
	}
	s.phase = Active
	s.pending = ""
}

// End moves the session to Ended, discarding any pending question.
func (s *Session) End() {
	s.phase = Ended
	s.pending = ""
}

// Validate reports a broken phase/pending-question invariant.
func (s *Session) Validate() error {
	switch {
	case s.phase == AwaitingTraining && s.pending == "":
		return errors.New("awaiting training without a pending question")
	case s.phase != AwaitingTraining && s.pending != "":
		return fmt.Errorf("pending question set in phase %s", s.phase)
	}
	return nil
}

type sessionJSON struct {
	ID              string    `json:"id"`
	Phase           Phase     `json:"phase"`
	PendingQuestion string    `json:"pending_question,omitempty"`
	Transcript      []Message `json:"transcript"`
}

func (s *Session) MarshalJSON() ([]byte, error) {
	t := s.Transcript
	if t == nil {
		t = []Message{}
	}
	return json.Marshal(sessionJSON{
		ID:              s.ID,
		Phase:           s.phase,
		PendingQuestion: s.pending,
		Transcript:      t,
	})
}
