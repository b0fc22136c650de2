package groq

import "context"

// Message is one entry in the chat-completions message list.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest describes one streaming completion call. Nil
// Temperature or MaxTokens fall back to the service defaults.
type CompletionRequest struct {
	ModelAlias  string
	Messages    []Message
	Temperature *float64
	MaxTokens   *int
}

// Completion is the final accumulated response after streaming ends.
type Completion struct {
	Text string
}

// DeltaHandler receives streaming text fragments in production order.
type DeltaHandler func(delta string) error

// Streamer opens a streaming completion and relays fragments as they
// arrive. A stream is finite and cannot be restarted.
type Streamer interface {
	StreamCompletion(ctx context.Context, req CompletionRequest, onDelta DeltaHandler) (Completion, error)
}

const (
	defaultTemperature = 0.65
	defaultMaxTokens   = 1024
)

var modelAliases = map[string]string{
	"fast":  "llama-3.1-8b-instant",
	"smart": "llama-3.1-70b-versatile",
	"ultra": "mixtral-8x22b-instruct",
}

// ResolveModel maps a client-facing alias to a provider model ID. Unknown
// aliases fall back to the fast model.
func ResolveModel(alias string) string {
	if id, ok := modelAliases[alias]; ok {
		return id
	}
	return modelAliases["fast"]
}
