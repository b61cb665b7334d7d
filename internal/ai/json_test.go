package ai

import (
	"errors"
	"math"
	"testing"
)

func TestDecodeObjectHandlesCodeBlock(t *testing.T) {
	raw := "```json\n{\"match\": true, \"score\": \"0.8\", \"reasons\": [\"Go backend\"]}\n```"

	data, err := DecodeObject(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if data["match"] != true {
		t.Fatalf("expected match true, got %v", data["match"])
	}
}

func TestDecodeObjectErrors(t *testing.T) {
	if _, err := DecodeObject("   "); !errors.Is(err, ErrEmptyResponse) {
		t.Fatalf("expected ErrEmptyResponse, got %v", err)
	}

	if _, err := DecodeObject("I think this project is a match."); err == nil {
		t.Fatal("expected error for prose answer")
	}

	if _, err := DecodeObject("[1, 2]"); err == nil {
		t.Fatal("expected error for non-object json")
	}
}

func TestCoerceFloat(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		input any
		want  float64
	}{
		{name: "number", input: 0.7, want: 0.7},
		{name: "int", input: 1, want: 1},
		{name: "numeric string", input: " 0.25 ", want: 0.25},
		{name: "garbage", input: "high", want: math.NaN()},
		{name: "nil", input: nil, want: math.NaN()},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := CoerceFloat(tc.input)
			if math.IsNaN(tc.want) {
				if !math.IsNaN(got) {
					t.Fatalf("expected NaN, got %v", got)
				}
				return
			}
			if got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestCoerceStringsLimit(t *testing.T) {
	got := CoerceStrings([]any{"a", "", "b", 3.0, "d"}, 3)
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "3" {
		t.Fatalf("unexpected reasons: %#v", got)
	}

	if got := CoerceStrings("single", 3); len(got) != 1 || got[0] != "single" {
		t.Fatalf("expected single reason, got %#v", got)
	}

	if got := CoerceStrings(42.0, 3); got != nil {
		t.Fatalf("expected nil for unsupported type, got %#v", got)
	}
}
