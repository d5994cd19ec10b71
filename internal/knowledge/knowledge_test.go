package knowledge

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

var ctx = context.Background()

func TestAnswerFor(t *testing.T) {
	b := Base{Questions: []Entry{
		{Question: "What is Contec?", Answer: "A company."},
		{Question: "what is contec?", Answer: "A later duplicate."},
		{Question: "Where are you?", Answer: "Chennai."},
	}}

	tests := []struct {
		name     string
		question string
		want     string
		wantOK   bool
	}{
		{"exact", "What is Contec?", "A company.", true},
		{"case-insensitive, first entry wins", "WHAT IS CONTEC?", "A company.", true},
		{"second entry", "where are you?", "Chennai.", true},
		{"no partial matches", "What is Contec", "", false},
		{"unknown", "Who are you?", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := b.AnswerFor(tt.question)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("AnswerFor(%q) = (%q, %v), want (%q, %v)", tt.question, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestWithDoesNotAliasReceiver(t *testing.T) {
	orig := Base{Questions: make([]Entry, 1, 4)}
	orig.Questions[0] = Entry{Question: "a", Answer: "1"}

	next := orig.With(Entry{Question: "b", Answer: "2"})
	_ = orig.With(Entry{Question: "c", Answer: "3"})

	if orig.Len() != 1 {
		t.Fatalf("receiver mutated: len = %d", orig.Len())
	}
	if got := next.QuestionTexts(); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("QuestionTexts = %v, want [a b]", got)
	}
}

func TestFileStore_MissingFileIsEmpty(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "knowledge_base.json"))

	b, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if b.Len() != 0 {
		t.Errorf("expected empty base, got %d entries", b.Len())
	}
}

func TestFileStore_SaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "knowledge_base.json")
	s := NewFileStore(path)

	want := Base{Questions: []Entry{
		{Question: "What is Contec?", Answer: "A company."},
		{Question: "hello", Answer: "Hi there!"},
	}}
	if err := s.Save(ctx, want); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Load = %+v, want %+v", got, want)
	}

	// Loading twice without a save yields the same content.
	again, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("second Load: %v", err)
	}
	if !reflect.DeepEqual(again, got) {
		t.Errorf("second Load = %+v, want %+v", again, got)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(raw), `"questions": [`) {
		t.Errorf("unexpected on-disk format:\n%s", raw)
	}
}

func TestFileStore_EmptyBaseWritesEmptyArray(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kb.json")
	if err := NewFileStore(path).Save(ctx, Base{}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(raw), "null") {
		t.Errorf("empty base serialized as null: %s", raw)
	}
}

func TestFileStore_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kb.json")
	if err := os.WriteFile(path, []byte(`{"questions": [`), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := NewFileStore(path).Load(ctx)
	if !errors.Is(err, ErrCorrupt) {
		t.Fatalf("Load error = %v, want ErrCorrupt", err)
	}
	var ce *CorruptError
	if !errors.As(err, &ce) || ce.Source != path {
		t.Errorf("expected CorruptError for %s, got %v", path, err)
	}
}

func TestFileStore_SaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	s := NewFileStore(filepath.Join(dir, "kb.json"))
	for i := 0; i < 3; i++ {
		if err := s.Save(ctx, Base{Questions: []Entry{{Question: "q", Answer: "a"}}}); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("expected only kb.json in dir, found %d entries", len(entries))
	}
}

func TestFileStore_CancelledSaveKeepsPreviousContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kb.json")
	s := NewFileStore(path)
	prev := Base{Questions: []Entry{{Question: "old", Answer: "kept"}}}
	if err := s.Save(ctx, prev); err != nil {
		t.Fatal(err)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	err := s.Save(cancelled, Base{Questions: []Entry{{Question: "new", Answer: "lost"}}})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Save error = %v, want context.Canceled", err)
	}

	got, err := s.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, prev) {
		t.Errorf("Load = %+v, want previous %+v", got, prev)
	}
}

func TestLoadOrEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kb.json")
	if err := os.WriteFile(path, []byte("not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	b, err := LoadOrEmpty(ctx, NewFileStore(path))
	if !errors.Is(err, ErrCorrupt) {
		t.Errorf("err = %v, want ErrCorrupt", err)
	}
	if b.Len() != 0 {
		t.Errorf("expected empty base, got %d entries", b.Len())
	}
}
