package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/vennietweek/llm-chat/internal/redis"
)

// DefaultCapacity is assumed when the backend's introspection endpoint
// is unreachable or does not report limits.
const DefaultCapacity = 4096

const probeTimeout = 10 * time.Second

// ModelInfo carries the token limits reported by the backend.
type ModelInfo struct {
	ContextLength int
	MaxTokens     int
}

// CapacityProvider resolves the model's context window, optionally
// caching the probed value in redis so each chat turn does not hit the
// introspection endpoint.
type CapacityProvider struct {
	baseURL    string
	model      string
	httpClient *http.Client
	cache      *redis.Client
	cacheTTL   time.Duration
}

func NewCapacityProvider(baseURL, model string, cache *redis.Client, cacheTTL time.Duration) *CapacityProvider {
	return &CapacityProvider{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: probeTimeout},
		cache:      cache,
		cacheTTL:   cacheTTL,
	}
}

// Probe queries the backend's model listing for the configured model.
// It never fails: any error or missing field degrades to DefaultCapacity.
func (p *CapacityProvider) Probe(ctx context.Context) ModelInfo {
	info := ModelInfo{ContextLength: DefaultCapacity, MaxTokens: DefaultCapacity}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/models", nil)
	if err != nil {
		log.Printf("[llm] build model info request: %v", err)
		return info
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		log.Printf("[llm] could not get model info: %v", err)
		return info
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		log.Printf("[llm] model info returned status %d", resp.StatusCode)
		return info
	}

	var listing struct {
		Data []struct {
			ID            string `json:"id"`
			ContextLength int    `json:"context_length"`
			MaxTokens     int    `json:"max_tokens"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		log.Printf("[llm] decode model info: %v", err)
		return info
	}
	for _, m := range listing.Data {
		if m.ID != p.model {
			continue
		}
		if m.ContextLength > 0 {
			info.ContextLength = m.ContextLength
		}
		if m.MaxTokens > 0 {
			info.MaxTokens = m.MaxTokens
		}
		return info
	}
	return info
}

// Capacity returns the token ceiling the truncation budget protects:
// the model's context window, since headroom for generation is already
// reserved on top of prompt, history and input.
func (p *CapacityProvider) Capacity(ctx context.Context) int {
	if cached, ok := p.cachedCapacity(ctx); ok {
		return cached
	}

	info := p.Probe(ctx)
	capacity := info.ContextLength
	if capacity <= 0 {
		capacity = info.MaxTokens
	}
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	p.storeCapacity(ctx, capacity)
	return capacity
}

func (p *CapacityProvider) cacheKey() string {
	return fmt.Sprintf("llmchat:capacity:%s", p.model)
}

func (p *CapacityProvider) cachedCapacity(ctx context.Context) (int, bool) {
	if p.cache == nil {
		return 0, false
	}
	raw, err := p.cache.Get(ctx, p.cacheKey())
	if err != nil {
		if !errors.Is(err, redis.ErrCacheMiss) {
			log.Printf("[llm] capacity cache read: %v", err)
		}
		return 0, false
	}
	capacity, err := strconv.Atoi(raw)
	if err != nil || capacity <= 0 {
		return 0, false
	}
	return capacity, true
}

// Invalidate drops the cached capacity so the next lookup re-probes
// the backend. Called at startup because the served model and its
// limits may have changed between runs.
func (p *CapacityProvider) Invalidate(ctx context.Context) {
	if p.cache == nil {
		return
	}
	if err := p.cache.Del(ctx, p.cacheKey()); err != nil {
		log.Printf("[llm] capacity cache invalidate: %v", err)
	}
}

func (p *CapacityProvider) storeCapacity(ctx context.Context, capacity int) {
	if p.cache == nil {
		return
	}
	if err := p.cache.Set(ctx, p.cacheKey(), strconv.Itoa(capacity), p.cacheTTL); err != nil {
		log.Printf("[llm] capacity cache write: %v", err)
	}
}
