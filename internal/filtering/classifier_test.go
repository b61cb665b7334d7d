package filtering

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
)

func TestIsMatchedProject(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name          string
		keywords      []string
		responses     []map[string]any
		errs          []error
		describeErr   error
		want          bool
		wantErr       bool
		wantCalls     int
		wantDescribed bool
	}{
		{
			name:          "both passes match",
			keywords:      []string{"api"},
			responses:     []map[string]any{{"match": true}, {"match": true, "score": 0.9, "reasons": []any{"Go"}}},
			want:          true,
			wantCalls:     2,
			wantDescribed: true,
		},
		{
			name:      "keyword gate rejects without inference",
			keywords:  []string{"kubernetes"},
			want:      false,
			wantCalls: 0,
		},
		{
			name:      "notification pass rejects",
			responses: []map[string]any{{"match": false}},
			want:      false,
			wantCalls: 1,
		},
		{
			name:          "description below threshold",
			responses:     []map[string]any{{"match": true}, {"match": true, "score": 0.4}},
			want:          false,
			wantCalls:     2,
			wantDescribed: true,
		},
		{
			name:          "description inference fails",
			responses:     []map[string]any{{"match": true}},
			errs:          []error{nil, errors.New("ollama down")},
			want:          false,
			wantCalls:     2,
			wantDescribed: true,
		},
		{
			name:          "description fetch fails",
			responses:     []map[string]any{{"match": true}},
			describeErr:   errors.New("GET: unexpected status 403"),
			wantErr:       true,
			wantCalls:     1,
			wantDescribed: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			completer := &stubCompleter{responses: tc.responses, errs: tc.errs}
			classifier, err := NewClassifier(Config{Keywords: tc.keywords, Profile: "Go", MinimumFitScore: DefaultMinimumFitScore}, completer, zap.NewNop())
			if err != nil {
				t.Fatalf("new classifier: %v", err)
			}

			described := false
			verdict, err := classifier.IsMatchedProject(context.Background(), "ref", "Nouveau projet: API Go", func(context.Context) (string, error) {
				described = true
				return "Description complète", tc.describeErr
			})

			if tc.wantErr != (err != nil) {
				t.Fatalf("expected error=%v, got %v", tc.wantErr, err)
			}
			if verdict.Matched != tc.want {
				t.Fatalf("expected matched=%v, got %+v", tc.want, verdict)
			}
			if completer.calls() != tc.wantCalls {
				t.Fatalf("expected %d inference calls, got %d", tc.wantCalls, completer.calls())
			}
			if described != tc.wantDescribed {
				t.Fatalf("expected described=%v", tc.wantDescribed)
			}
		})
	}
}

func TestNewClassifierRequiresCompleter(t *testing.T) {
	if _, err := NewClassifier(Config{}, nil, nil); err == nil {
		t.Fatal("expected error without inference provider")
	}
}

func TestNewClassifierThreshold(t *testing.T) {
	cases := []struct {
		name      string
		threshold float64
		want      string
	}{
		{name: "configured", threshold: 0.8, want: "0.80"},
		{name: "zero disables", threshold: 0, want: ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			classifier, err := NewClassifier(Config{MinimumFitScore: tc.threshold}, &stubCompleter{}, nil)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			for _, status := range Describe(classifier.Filters()) {
				if status.Name == "semantic_description" && status.Details["minimum_score"] != tc.want {
					t.Fatalf("expected minimum_score %q, got %+v", tc.want, status)
				}
			}
		})
	}
}

func TestZeroThresholdKeepsLowScore(t *testing.T) {
	completer := &stubCompleter{responses: []map[string]any{{"match": true}, {"match": true, "score": 0.1}}}
	classifier, err := NewClassifier(Config{Profile: "Go"}, completer, zap.NewNop())
	if err != nil {
		t.Fatalf("new classifier: %v", err)
	}

	verdict, err := classifier.IsMatchedProject(context.Background(), "ref", "Nouveau projet: API Go", func(context.Context) (string, error) {
		return "Description complète", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !verdict.Matched {
		t.Fatalf("expected low score to pass without threshold, got %+v", verdict)
	}
}
