package app

import (
	"context"

	"github.com/example/companion-bot/internal/conversation"
	"github.com/example/companion-bot/internal/model"
	"github.com/example/companion-bot/pkg/openai"
)

// llmGenerator adapts the OpenAI client to the Generator contract the
// conversation engine consumes.
type llmGenerator struct {
	client *openai.Client
}

// NewOpenAIGenerator wraps an OpenAI client as a text-generation collaborator.
func NewOpenAIGenerator(client *openai.Client) conversation.Generator {
	return llmGenerator{client: client}
}

func (g llmGenerator) Reply(ctx context.Context, persona string, history []*model.Message, latest string) (string, error) {
	turns := make([]openai.ChatMessage, 0, len(history)+1)
	for _, m := range history {
		role := "user"
		if m.Sender == model.SenderAgent {
			role = "assistant"
		}
		turns = append(turns, openai.ChatMessage{Role: role, Content: m.Text})
	}
	turns = append(turns, openai.ChatMessage{Role: "user", Content: latest})
	return g.client.ChatCompletion(ctx, persona, turns)
}
