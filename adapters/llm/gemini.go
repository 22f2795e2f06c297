package llm

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/yuvalro/ivan/domain"
)

type GeminiClient struct {
	client *genai.Client
}

// NewGeminiClient builds a domain.Llm over the Gemini API. Credentials come
// from the environment (GEMINI_API_KEY / GOOGLE_API_KEY).
func NewGeminiClient(ctx context.Context) (domain.Llm, error) {
	client, err := genai.NewClient(
		ctx,
		&genai.ClientConfig{
			HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
		},
	)
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}

	return &GeminiClient{client: client}, nil
}

// GenerateImage is the non-streaming path: one call, the response parts
// returned in order as tagged variants.
func (g *GeminiClient) GenerateImage(ctx context.Context, modelKey string, prompt string) ([]domain.ReplyPart, error) {
	resp, err := g.client.Models.GenerateContent(
		ctx,
		modelKey,
		genai.Text(prompt),
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("generate content: %w", err)
	}

	var parts []domain.ReplyPart
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			switch {
			case part.InlineData != nil:
				parts = append(parts, domain.ReplyPart{
					Kind:     domain.ImagePart,
					MIMEType: part.InlineData.MIMEType,
					Data:     part.InlineData.Data,
				})
			case part.Text != "":
				parts = append(parts, domain.ReplyPart{
					Kind: domain.TextPart,
					Text: part.Text,
				})
			}
		}
	}
	return parts, nil
}

// StreamChat opens a chat with the given config and streams the reply to
// the sole user message as text fragments.
func (g *GeminiClient) StreamChat(ctx context.Context, modelKey string, config domain.ChatConfig, text string) (<-chan domain.Fragment, error) {
	generateConfig := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{
				{Text: config.SystemInstruction},
			},
		},
	}
	if config.ThinkingBudget > 0 {
		generateConfig.ThinkingConfig = &genai.ThinkingConfig{
			ThinkingBudget: genai.Ptr(config.ThinkingBudget),
		}
	}

	chat, err := g.client.Chats.Create(ctx, modelKey, generateConfig, nil)
	if err != nil {
		return nil, fmt.Errorf("creating chat: %w", err)
	}

	fragments := make(chan domain.Fragment)
	go func() {
		defer close(fragments)
		for resp, err := range chat.SendMessageStream(ctx, genai.Part{Text: text}) {
			if err != nil {
				fragments <- domain.Fragment{Err: fmt.Errorf("streaming chat: %w", err)}
				return
			}
			select {
			case fragments <- domain.Fragment{Text: resp.Text()}:
			case <-ctx.Done():
				return
			}
		}
	}()

	return fragments, nil
}
