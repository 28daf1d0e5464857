// Package tokens approximates token counts for budgeting without requiring
// the backend model's exact tokenizer.
package tokens

import (
	"log"

	"github.com/pkoukk/tiktoken-go"
)

// charsPerToken is the heuristic ratio used when no tokenizer is
// available: an average English token is about four characters.
const charsPerToken = 4

// Estimator returns a non-negative token estimate for a text. Estimate
// never fails; any internal trouble has to degrade, not propagate.
type Estimator interface {
	Estimate(text string) int
}

// Tiktoken counts tokens with the cl100k_base BPE, which matches the
// tokenization of common chat models closely enough for budgeting.
type Tiktoken struct {
	enc *tiktoken.Tiktoken
}

func NewTiktoken() (*Tiktoken, error) {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, err
	}
	return &Tiktoken{enc: enc}, nil
}

func (t *Tiktoken) Estimate(text string) int {
	return len(t.enc.Encode(text, nil, nil))
}

// Heuristic is the fallback estimator: character count divided by four,
// integer division.
type Heuristic struct{}

func (Heuristic) Estimate(text string) int {
	return len(text) / charsPerToken
}

// NewEstimator returns the tiktoken estimator when its encoding data is
// available and the character heuristic otherwise. The degradation is
// silent towards callers; the switch is only logged.
func NewEstimator() Estimator {
	est, err := NewTiktoken()
	if err != nil {
		log.Printf("[tokens] tiktoken unavailable, falling back to character estimate: %v", err)
		return Heuristic{}
	}
	return est
}
