package knowledge

import (
	"context"
	"strings"
)

// Entry is a single taught question/answer pair.
type Entry struct {
	Question string `json:"question" toml:"question"`
	Answer   string `json:"answer" toml:"answer"`
}

// Base is the ordered set of known pairs. Its JSON form is the on-disk
// record: {"questions": [{"question": ..., "answer": ...}]}.
//
// Duplicate questions are allowed; lookups resolve to the first one.
type Base struct {
	Questions []Entry `json:"questions" toml:"questions"`
}

// Store is the durable home of the knowledge base. Every Load/Save pair is
// self-contained; implementations keep no cached copy between calls.
type Store interface {
	// Load returns the persisted base. A missing resource yields an empty
	// base and nil error; unparseable content yields a *CorruptError.
	Load(ctx context.Context) (Base, error)
	// Save overwrites the persisted base. A failed Save leaves the previous
	// content intact.
	Save(ctx context.Context, b Base) error
}

// Len returns the number of entries.
func (b Base) Len() int { return len(b.Questions) }

// QuestionTexts returns the question strings in base order.
func (b Base) QuestionTexts() []string {
	out := make([]string, len(b.Questions))
	for i, e := range b.Questions {
		out[i] = e.Question
	}
	return out
}

// AnswerFor looks up question case-insensitively and returns the answer of
// the first matching entry.
func (b Base) AnswerFor(question string) (string, bool) {
	q := strings.ToLower(question)
	for _, e := range b.Questions {
		if strings.ToLower(e.Question) == q {
			return e.Answer, true
		}
	}
	return "", false
}

// With returns a copy of b with e appended. The receiver is not modified.
func (b Base) With(e Entry) Base {
	out := make([]Entry, len(b.Questions), len(b.Questions)+1)
	copy(out, b.Questions)
	return Base{Questions: append(out, e)}
}
