// Package llm talks to the locally hosted OpenAI-compatible inference
// server: chat completions through the eino openai component, plus the
// introspection endpoint for model token limits.
package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/vennietweek/llm-chat/internal/config"
	"github.com/vennietweek/llm-chat/internal/models"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// Client streams chat completions from the backend.
type Client struct {
	chatModel model.ToolCallingChatModel
}

func NewClient(ctx context.Context, cfg config.LLMConfig) (*Client, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		// Local servers ignore the key but the wire format requires one.
		apiKey = "local"
	}
	chatModel, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		BaseURL: cfg.BaseURL,
		Model:   cfg.Model,
		APIKey:  apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("init chat model: %w", err)
	}
	return &Client{chatModel: chatModel}, nil
}

// Chat sends the assembled payload and returns the cleaned full response.
func (c *Client) Chat(ctx context.Context, msgs []*schema.Message) (string, error) {
	streamReader, err := c.chatModel.Stream(ctx, msgs)
	if err != nil {
		return "", fmt.Errorf("generate chat stream: %w", err)
	}
	full, err := collectStream(streamReader)
	if err != nil {
		return "", fmt.Errorf("read chat stream: %w", err)
	}
	return cleanResponse(full), nil
}

// collectStream accumulates chunks until the stream ends. A non-EOF
// receive error surfaces so a dropped stream is not mistaken for a
// complete reply.
func collectStream(stream *schema.StreamReader[*schema.Message]) (string, error) {
	defer stream.Close()
	var full strings.Builder
	for {
		chunk, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return full.String(), nil
			}
			return "", err
		}
		full.WriteString(chunk.Content)
	}
}

// ConvertMessages maps stored turns to the backend wire format.
func ConvertMessages(msgs []models.Message) []*schema.Message {
	out := make([]*schema.Message, 0, len(msgs))
	for _, m := range msgs {
		var role schema.RoleType
		switch m.Role {
		case models.RoleAssistant:
			role = schema.Assistant
		case models.RoleSystem:
			role = schema.System
		default:
			role = schema.User
		}
		out = append(out, &schema.Message{Role: role, Content: m.Content})
	}
	return out
}

// cleanResponse strips surrounding quotes and literal escape sequences
// that some local models emit around their output.
func cleanResponse(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && strings.HasPrefix(s, `"`) && strings.HasSuffix(s, `"`) {
		s = s[1 : len(s)-1]
	}
	s = strings.ReplaceAll(s, `\n`, "\n")
	s = strings.ReplaceAll(s, `\"`, `"`)
	return s
}
