package allocator

import (
	"regexp"
	"strconv"

	"github.com/pkoukk/tiktoken-go"

	"github.com/cortexplane/control-plane/internal/cortexerr"
)

// TokenCounter counts tokens for a piece of text using a real BPE
// tokenizer, replacing the teacher's chars/4 heuristic
// (internal/cost/tokens.go estimateTokens).
type TokenCounter struct {
	enc *tiktoken.Tiktoken
}

// NewTokenCounter loads the named tiktoken encoding (e.g. "cl100k_base").
func NewTokenCounter(model string) (TokenCounter, error) {
	enc, err := tiktoken.GetEncoding(model)
	if err != nil {
		return TokenCounter{}, cortexerr.InvalidInput("allocator: load tokenizer "+model, err)
	}
	return TokenCounter{enc: enc}, nil
}

// Count returns the number of tokens text encodes to, or a chars/4 estimate
// if no tokenizer has been loaded.
func (c TokenCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	if c.enc == nil {
		return estimateTokens(text)
	}
	return len(c.enc.Encode(text, nil, nil))
}

// estimateTokens is the teacher's fallback heuristic, used only when the
// real tokenizer is unavailable (spec allows degrading, never failing).
func estimateTokens(text string) int {
	tokens := len(text) / 4
	if tokens == 0 && len(text) > 0 {
		return 1
	}
	return tokens
}

// TokenUsage holds input/output token counts for one worker execution,
// generalizing the teacher's cost.TokenUsage.
type TokenUsage struct {
	Input  int
	Output int
}

var (
	tokenRe  = regexp.MustCompile(`Tokens: (\d+) input, (\d+) output`)
	inputRe  = regexp.MustCompile(`Input tokens: (\d+)`)
	outputRe = regexp.MustCompile(`Output tokens: (\d+)`)
)

// ExtractTokenUsage parses a worker's self-reported token usage from its
// output, falling back to the tiktoken estimate of prompt/output length
// when the worker didn't report it — generalizes the teacher's
// cost.ExtractTokenUsage to use a real tokenizer for the fallback.
func (c TokenCounter) ExtractTokenUsage(output, prompt string) TokenUsage {
	usage := TokenUsage{}
	if m := tokenRe.FindStringSubmatch(output); len(m) == 3 {
		usage.Input, _ = strconv.Atoi(m[1])
		usage.Output, _ = strconv.Atoi(m[2])
	} else {
		if m := inputRe.FindStringSubmatch(output); len(m) == 2 {
			usage.Input, _ = strconv.Atoi(m[1])
		}
		if m := outputRe.FindStringSubmatch(output); len(m) == 2 {
			usage.Output, _ = strconv.Atoi(m[1])
		}
	}
	if usage.Input == 0 {
		usage.Input = c.Count(prompt)
	}
	if usage.Output == 0 {
		usage.Output = c.Count(output)
	}
	return usage
}

// CalculateCost computes total USD cost from per-million-token pricing,
// unchanged from the teacher's cost.CalculateCost.
func CalculateCost(usage TokenUsage, inputPriceMtok, outputPriceMtok float64) float64 {
	inputCost := (float64(usage.Input) / 1_000_000.0) * inputPriceMtok
	outputCost := (float64(usage.Output) / 1_000_000.0) * outputPriceMtok
	return inputCost + outputCost
}
