package domain

import "context"

// Llm abstracts the generative backend. Two operations only: a single-shot
// image generation call and a streaming chat exchange.
type Llm interface {
	// GenerateImage sends the full prompt to an image-capable model and
	// returns the response parts in order.
	GenerateImage(ctx context.Context, modelKey string, prompt string) ([]ReplyPart, error)

	// StreamChat opens a streaming exchange and sends the user text as the
	// sole message. The returned channel yields fragments in production
	// order and is closed when the stream ends; the stream is finite and
	// not restartable.
	StreamChat(ctx context.Context, modelKey string, config ChatConfig, text string) (<-chan Fragment, error)
}

// ChatConfig carries the per-request generation configuration built by the
// chat service.
type ChatConfig struct {
	SystemInstruction string
	// ThinkingBudget enables deeper reasoning when positive.
	ThinkingBudget int32
}

// PartKind tags a ReplyPart.
type PartKind int

const (
	TextPart PartKind = iota
	ImagePart
)

// ReplyPart is one part of a non-streaming response: either plain text or
// inline binary image data.
type ReplyPart struct {
	Kind     PartKind
	Text     string
	MIMEType string
	Data     []byte
}

// Fragment is one increment of a streamed reply. Err is non-nil on the
// terminal fragment when the stream fails partway.
type Fragment struct {
	Text string
	Err  error
}
