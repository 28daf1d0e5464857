package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/vennietweek/llm-chat/internal/history"
	"github.com/vennietweek/llm-chat/internal/llm"
	"github.com/vennietweek/llm-chat/internal/models"
	"github.com/vennietweek/llm-chat/internal/storage"

	"github.com/cloudwego/eino/schema"
)

// Backend answers an assembled chat payload.
type Backend interface {
	Chat(ctx context.Context, msgs []*schema.Message) (string, error)
}

// CapacitySource reports the model's current token ceiling.
type CapacitySource interface {
	Capacity(ctx context.Context) int
}

// Pipeline runs one chat turn end to end: load recent history, fit it
// to the model's token budget, call the backend and persist the reply.
type Pipeline struct {
	store        *storage.MessageStore
	backend      Backend
	capacity     CapacitySource
	budgeter     *history.Budgeter
	systemPrompt string
	recentLimit  int
}

func NewPipeline(store *storage.MessageStore, backend Backend, capacity CapacitySource, budgeter *history.Budgeter, systemPrompt string, recentLimit int) *Pipeline {
	return &Pipeline{
		store:        store,
		backend:      backend,
		capacity:     capacity,
		budgeter:     budgeter,
		systemPrompt: systemPrompt,
		recentLimit:  recentLimit,
	}
}

// Run processes the given user input. The backend reply (or a bracketed
// failure notice when the backend is down) is stored as the assistant
// turn and returned.
func (p *Pipeline) Run(ctx context.Context, userInput string) (*models.Message, error) {
	// One extra row so the pending input itself can be excluded from
	// its own history.
	recent, err := p.store.Recent(ctx, p.recentLimit+1)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	hist := p.priorTurns(recent, userInput)
	log.Printf("[llm] processing with %d history messages", len(hist))

	modelMax := p.capacity.Capacity(ctx)
	kept := p.budgeter.Truncate(hist, modelMax, userInput, p.systemPrompt)
	if len(kept) != len(hist) {
		log.Printf("[tokens] history truncated: %d -> %d messages (model limit %d)", len(hist), len(kept), modelMax)
	}
	total := p.budgeter.MessageTokens(p.systemPrompt) + p.budgeter.MessageTokens(userInput)
	for _, m := range kept {
		total += p.budgeter.MessageTokens(m.Content)
	}
	log.Printf("[tokens] estimated total tokens: %d/%d", total, modelMax)

	payload := make([]*schema.Message, 0, len(kept)+2)
	payload = append(payload, &schema.Message{Role: schema.System, Content: p.systemPrompt})
	payload = append(payload, llm.ConvertMessages(kept)...)
	payload = append(payload, &schema.Message{Role: schema.User, Content: userInput})

	reply, err := p.backend.Chat(ctx, payload)
	if err != nil {
		log.Printf("[llm] backend call failed: %v", err)
		reply = failureNotice(err)
	}

	saved, err := p.store.Add(ctx, models.RoleAssistant, reply)
	if err != nil {
		return nil, fmt.Errorf("store reply: %w", err)
	}
	return saved, nil
}

// priorTurns drops the pending user input when it is the newest stored
// row, then trims the window back to recentLimit from the front.
func (p *Pipeline) priorTurns(recent []models.Message, userInput string) []models.Message {
	if n := len(recent); n > 0 {
		last := recent[n-1]
		if last.Role == models.RoleUser && last.Content == userInput {
			recent = recent[:n-1]
		}
	}
	if len(recent) > p.recentLimit {
		recent = recent[len(recent)-p.recentLimit:]
	}
	return recent
}

func failureNotice(err error) string {
	if errors.Is(err, context.DeadlineExceeded) || strings.Contains(strings.ToLower(err.Error()), "timeout") {
		return "[LLM backend timed out - please try again with a shorter message or check that the inference server is running]"
	}
	return fmt.Sprintf("[LLM backend unavailable: %v]", err)
}
