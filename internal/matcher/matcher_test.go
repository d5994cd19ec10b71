package matcher

import (
	"math"
	"testing"
)

func TestScore(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"What is Contec?", "what is contec", 24.0 / 29.0},
		{"abcde", "abcxy", 0.6},
		{"abcde", "abxyz", 0.4},
		{"hello", "hello", 1},
		{"HELLO", "hello", 0},
		{"", "", 1},
	}
	for _, tt := range tests {
		got := Score(tt.a, tt.b)
		if math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("Score(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestBestMatch(t *testing.T) {
	tests := []struct {
		name   string
		query  string
		known  []string
		want   string
		wantOK bool
	}{
		{
			name:   "case differences still clear the cutoff",
			query:  "what is contec",
			known:  []string{"What is Contec?"},
			want:   "What is Contec?",
			wantOK: true,
		},
		{
			name:   "highest score wins over earlier candidate",
			query:  "what is contec",
			known:  []string{"What is your name?", "What is Contec?"},
			want:   "What is Contec?",
			wantOK: true,
		},
		{
			name:   "ties go to the first candidate",
			query:  "abcx",
			known:  []string{"abcd", "abce"},
			want:   "abcd",
			wantOK: true,
		},
		{
			name:   "score exactly at cutoff matches",
			query:  "abcxy",
			known:  []string{"abcde"},
			want:   "abcde",
			wantOK: true,
		},
		{
			name:  "score below cutoff does not match",
			query: "abxyz",
			known: []string{"abcde"},
		},
		{
			name:  "scoring is case-sensitive",
			query: "HELLO",
			known: []string{"hello"},
		},
		{
			name:  "empty knowledge base",
			query: "hello",
		},
		{
			name:  "unrelated question",
			query: "hello",
			known: []string{"What is Contec?"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := BestMatch(tt.query, tt.known)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("BestMatch(%q) = (%q, %v), want (%q, %v)", tt.query, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestBestMatchAgreesWithScore(t *testing.T) {
	known := []string{"What is Contec?", "Where is the office?", "Who founded Contec?", "hello"}
	queries := []string{"what is contec", "where is the office", "helo", "quit", "Who founded it?", "xyz"}

	for _, q := range queries {
		var above bool
		for _, k := range known {
			if Score(k, q) >= DefaultCutoff {
				above = true
			}
		}
		_, ok := BestMatch(q, known)
		if ok != above {
			t.Errorf("BestMatch(%q) ok = %v, but some score >= cutoff is %v", q, ok, above)
		}
	}
}

func TestBestMatchDeterministic(t *testing.T) {
	known := []string{"What is Contec?", "What is Contex?", "what is contec?"}
	first, _ := BestMatch("What is contec", known)
	for i := 0; i < 20; i++ {
		if got, _ := BestMatch("What is contec", known); got != first {
			t.Fatalf("run %d: got %q, first run gave %q", i, got, first)
		}
	}
}

func TestNewRejectsOutOfRangeCutoff(t *testing.T) {
	for _, c := range []float64{-0.1, 1.5} {
		if _, err := New(c); err == nil {
			t.Errorf("New(%v) succeeded, want error", c)
		}
	}
	m, err := New(0.9)
	if err != nil {
		t.Fatalf("New(0.9): %v", err)
	}
	if _, ok := m.BestMatch("what is contec", []string{"What is Contec?"}); ok {
		t.Error("expected no match at cutoff 0.9")
	}
}
