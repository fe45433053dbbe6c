package util

import (
	"testing"
)

func TestNormalizeEntityID(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"SimpleName", "Machine Learning", "machine_learning"},
		{"AlreadyNormalized", "machine_learning", "machine_learning"},
		{"Hyphenated", "machine-learning", "machine_learning"},
		{"MixedSeparators", " Machine -- Learning ", "machine_learning"},
		{"SingleWord", "AI", "ai"},
		{"Digits", "GPT 4", "gpt_4"},
		{"Punctuation", "O'Reilly & Associates, Inc.", "o_reilly_associates_inc"},
		{"UnicodeLetters", "Räuber Höhle", "räuber_höhle"},
		{"LeadingTrailingJunk", "...core...", "core"},
		{"Empty", "", ""},
		{"OnlyJunk", "!!!", ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := NormalizeEntityID(tc.in)
			if got != tc.want {
				t.Fatalf("NormalizeEntityID(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestNormalizeEntityID_Stable(t *testing.T) {
	variants := []string{"Neural Network", "neural network", "NEURAL-NETWORK", "neural_network"}
	for _, v := range variants {
		if got := NormalizeEntityID(v); got != "neural_network" {
			t.Fatalf("NormalizeEntityID(%q) = %q, want neural_network", v, got)
		}
	}
}

func TestNewRunID(t *testing.T) {
	a, err := NewRunID()
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	b, err := NewRunID()
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if a == "" || b == "" {
		t.Fatal("expected non-empty run ids")
	}
	if a == b {
		t.Fatalf("expected distinct run ids, got %q twice", a)
	}
}
