// Package history selects how much prior conversation fits into a model
// request alongside the system prompt and the new user input.
package history

import (
	"github.com/vennietweek/llm-chat/internal/models"
	"github.com/vennietweek/llm-chat/internal/tokens"
)

// Policy holds the fixed token accounting constants. Callers that need
// different numbers construct a Budgeter with their own Policy; the
// values are not per-call parameters.
type Policy struct {
	// MessageOverhead covers role and formatting tokens added per
	// message by the chat wire format.
	MessageOverhead int
	// Headroom is reserved beyond prompt and input so the model has
	// room to generate a response.
	Headroom int
}

var DefaultPolicy = Policy{MessageOverhead: 10, Headroom: 512}

// Budgeter computes the trailing window of history that fits a model's
// context window. It is a pure computation: safe for concurrent use and
// it never fails, returning an empty window when nothing fits.
type Budgeter struct {
	est    tokens.Estimator
	policy Policy
}

func NewBudgeter(est tokens.Estimator) *Budgeter {
	return NewBudgeterWithPolicy(est, DefaultPolicy)
}

func NewBudgeterWithPolicy(est tokens.Estimator, policy Policy) *Budgeter {
	return &Budgeter{est: est, policy: policy}
}

// MessageTokens is the budgeted cost of one message: content estimate
// plus the per-message overhead.
func (b *Budgeter) MessageTokens(content string) int {
	return b.est.Estimate(content) + b.policy.MessageOverhead
}

// Available returns the token budget left for history after reserving
// space for the system prompt, the user input and generation headroom.
// Negative or zero capacity yields a non-positive result.
func (b *Budgeter) Available(modelMaxTokens int, userInput, systemPrompt string) int {
	reserved := b.MessageTokens(systemPrompt) + b.MessageTokens(userInput) + b.policy.Headroom
	return modelMaxTokens - reserved
}

// Truncate picks the maximal contiguous trailing window of history
// (oldest-first in, oldest-first out) whose cost stays within the
// available budget. The walk is greedy from the most recent message:
// the first message that would overflow stops the walk, so an older,
// smaller message beyond that point is never reconsidered. When even
// the reserved tokens exceed the capacity the result is empty.
func (b *Budgeter) Truncate(history []models.Message, modelMaxTokens int, userInput, systemPrompt string) []models.Message {
	available := b.Available(modelMaxTokens, userInput, systemPrompt)
	if available <= 0 {
		return nil
	}

	running := 0
	start := len(history)
	for i := len(history) - 1; i >= 0; i-- {
		cost := b.MessageTokens(history[i].Content)
		if running+cost > available {
			break
		}
		running += cost
		start = i
	}
	if start >= len(history) {
		return nil
	}

	kept := make([]models.Message, len(history)-start)
	copy(kept, history[start:])
	return kept
}
