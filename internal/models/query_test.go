package models

import (
	"errors"
	"testing"
)

func TestSearchOptions_Validate(t *testing.T) {
	tests := []struct {
		name    string
		opts    SearchOptions
		wantErr bool
	}{
		{"zero options", SearchOptions{}, false},
		{"min score in range", SearchOptions{MinScore: Float64(0.7)}, false},
		{"min score above one", SearchOptions{MinScore: Float64(1.2)}, true},
		{"negative min score", SearchOptions{MinScore: Float64(-0.1)}, true},
		{"negative max results", SearchOptions{MaxResults: -1}, true},
		{"blank languages", SearchOptions{Languages: []string{" ", ""}}, true},
		{"languages normalized", SearchOptions{Languages: []string{"EN", "en", " fr "}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.opts.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidOptions) {
				t.Errorf("expected ErrInvalidOptions, got %v", err)
			}
		})
	}
}

func TestSearchOptions_ValidateDedupesLanguages(t *testing.T) {
	opts := SearchOptions{Languages: []string{"EN", "en", " fr "}}
	if err := opts.Validate(); err != nil {
		t.Fatal(err)
	}
	if len(opts.Languages) != 2 || opts.Languages[0] != "en" || opts.Languages[1] != "fr" {
		t.Errorf("unexpected languages: %v", opts.Languages)
	}
}

func TestMethod_Priority(t *testing.T) {
	order := []Method{MethodExact, MethodFuzzy, MethodSemantic, MethodAIFallback}
	for i := 1; i < len(order); i++ {
		if order[i-1].Priority() >= order[i].Priority() {
			t.Errorf("%s should outrank %s", order[i-1], order[i])
		}
	}
}
