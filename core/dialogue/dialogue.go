// Package dialogue defines the conversational contract between the session
// orchestrator and an LLM chat backend.
package dialogue

import "context"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is a single user or assistant contribution to the conversation.
type Turn struct {
	Role    Role
	Content string
}

const (
	// MaxTurns bounds how much history a single completion request may carry.
	MaxTurns = 50
	// MaxTurnContentLength is the per-turn content cap; longer turns are
	// clipped before being sent.
	MaxTurnContentLength = 3000
)

// Params are sampling parameters forwarded verbatim to the backend.
type Params struct {
	Temperature      float64
	TopP             float64
	MaxTokens        int
	PresencePenalty  float64
	FrequencyPenalty float64
}

func DefaultParams() Params {
	return Params{
		Temperature:      0.65,
		TopP:             0.9,
		MaxTokens:        240,
		PresencePenalty:  0.25,
		FrequencyPenalty: 0.15,
	}
}

type CompletionOptions struct {
	Instructions string
	Params       Params
}

type CompletionOption func(*CompletionOptions)

// WithInstructions sets the system prompt for the completion. Repeating this
// option overwrites the previous instructions.
func WithInstructions(instructions string) CompletionOption {
	return func(opts *CompletionOptions) {
		opts.Instructions = instructions
	}
}

// WithParams overrides the backend's default sampling parameters.
func WithParams(params Params) CompletionOption {
	return func(opts *CompletionOptions) {
		opts.Params = params
	}
}

// Client generates a single assistant reply from the conversation so far.
type Client interface {
	Complete(ctx context.Context, turns []Turn, opts ...CompletionOption) (string, error)
}
