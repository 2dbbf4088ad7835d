package allocator

import "testing"

func TestEstimateTokensFallback(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int
	}{
		{"empty", "", 0},
		{"short", "hi", 1},
		{"sixteen chars", "1234567890123456", 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := estimateTokens(tt.text); got != tt.want {
				t.Errorf("estimateTokens(%q) = %d, want %d", tt.text, got, tt.want)
			}
		})
	}
}

func TestCountFallsBackWithoutEncoder(t *testing.T) {
	var c TokenCounter // zero value: no tiktoken encoder loaded
	if got := c.Count("1234567890123456"); got != 4 {
		t.Fatalf("expected fallback estimate of 4, got %d", got)
	}
}

func TestExtractTokenUsageParsesReportedFormat(t *testing.T) {
	var c TokenCounter
	usage := c.ExtractTokenUsage("work done. Tokens: 120 input, 45 output", "do the thing")
	if usage.Input != 120 || usage.Output != 45 {
		t.Fatalf("unexpected usage: %+v", usage)
	}
}

func TestExtractTokenUsageFallsBackToEstimate(t *testing.T) {
	var c TokenCounter
	usage := c.ExtractTokenUsage("no token report here", "1234567890123456")
	if usage.Input != 4 {
		t.Fatalf("expected fallback estimate 4, got %d", usage.Input)
	}
}

func TestCalculateCost(t *testing.T) {
	usage := TokenUsage{Input: 1_000_000, Output: 1_000_000}
	cost := CalculateCost(usage, 3.0, 15.0)
	if cost != 18.0 {
		t.Fatalf("expected 18.0, got %v", cost)
	}
}
