package ai

import "context"

// Role represents the role of a message sender in a conversation.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message represents a single message in a conversation.
type Message struct {
	Role    Role
	Content string
}

// CompletionRequest contains the parameters for a completion request.
type CompletionRequest struct {
	Messages    []Message
	MaxTokens   int
	Temperature float64
	JSONMode    bool
}

// CompletionResponse contains the result of a completion request.
type CompletionResponse struct {
	Content      string
	InputTokens  int
	OutputTokens int
	Model        string
	FinishReason string
}

// TokenFunc receives each generated text fragment as it arrives.
type TokenFunc func(token string)

// Provider bundles chat completion and text embedding behind one
// interface so the backing service can be swapped at runtime.
type Provider interface {
	// Name returns the provider identifier ("ollama", "openai", "anthropic").
	Name() string

	// Complete sends a completion request and returns the full response.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Stream sends a completion request and invokes onToken for each text
	// fragment. It returns the assembled response once the stream ends.
	Stream(ctx context.Context, req CompletionRequest, onToken TokenFunc) (*CompletionResponse, error)

	// Embed generates embedding vectors for one or more texts, in order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding vector length this provider produces.
	Dimensions() int

	// CheckHealth verifies the backing service is reachable.
	CheckHealth(ctx context.Context) error
}
