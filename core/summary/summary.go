// Package summary turns a finished session's transcript into a structured
// action sheet via the dialogue service.
package summary

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/quietroom/reflect-core/core/dialogue"
	"github.com/quietroom/reflect-core/core/errdefs"
	"github.com/quietroom/reflect-core/core/prompts"
)

const (
	// MaxTurns bounds how much transcript a summarization request may carry;
	// older turns are dropped first.
	MaxTurns = 70
	// MaxTurnContentLength is the per-turn content cap in the rendered
	// transcript block.
	MaxTurnContentLength = 4000

	// MinTurns is the least transcript a summary can be asked for.
	MinTurns = 2
)

// ParseError reports a summarization response that was not valid JSON after
// stripping code fences.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("could not parse summary JSON: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// EmptyError reports a summarization call that returned no content.
type EmptyError struct{}

func (e *EmptyError) Error() string {
	return "no summary content returned"
}

type Requester struct {
	client dialogue.Client
	params dialogue.Params
}

type RequesterOption func(*Requester)

// WithParams overrides the sampling parameters used for summarization.
func WithParams(params dialogue.Params) RequesterOption {
	return func(r *Requester) {
		r.params = params
	}
}

func NewRequester(client dialogue.Client, opts ...RequesterOption) *Requester {
	requester := &Requester{
		client: client,
		params: dialogue.Params{
			Temperature: 0.5,
			TopP:        0.9,
			MaxTokens:   1024,
		},
	}
	for _, opt := range opts {
		opt(requester)
	}
	return requester
}

// Request renders the transcript as a role-labeled block and asks the
// dialogue service for an action sheet conforming to the Artifact schema.
func (r *Requester) Request(ctx context.Context, turns []dialogue.Turn) (*Artifact, error) {
	if len(turns) < MinTurns {
		return nil, &errdefs.ValidationError{
			Reason: fmt.Sprintf("transcript has %d turns, need at least %d to summarise", len(turns), MinTurns),
		}
	}
	if len(turns) > MaxTurns {
		turns = turns[len(turns)-MaxTurns:]
	}

	lines := make([]string, 0, len(turns))
	for _, turn := range turns {
		content := turn.Content
		// Clip at a rune boundary so multi-byte characters survive.
		if runes := []rune(content); len(runes) > MaxTurnContentLength {
			content = string(runes[:MaxTurnContentLength])
		}
		lines = append(lines, fmt.Sprintf("%s: %s", strings.ToUpper(string(turn.Role)), content))
	}
	transcript := "Transcript:\n" + strings.Join(lines, "\n")

	reflector := jsonschema.Reflector{DoNotReference: true}
	schema := reflector.Reflect(&Artifact{})
	schemaJSON, err := schema.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("error marshalling schema: %w", err)
	}

	content, err := r.client.Complete(ctx,
		[]dialogue.Turn{{Role: dialogue.RoleUser, Content: transcript}},
		dialogue.WithInstructions(prompts.Summary(string(schemaJSON))),
		dialogue.WithParams(r.params),
	)
	if err != nil {
		return nil, err
	}

	cleaned := strings.TrimSpace(stripCodeFences(content))
	if cleaned == "" {
		return nil, &EmptyError{}
	}

	artifact := &Artifact{}
	if err := json.Unmarshal([]byte(cleaned), artifact); err != nil {
		return nil, &ParseError{Err: err}
	}
	return artifact, nil
}

// stripCodeFences removes markdown fence markers that models wrap JSON in
// despite instructions not to.
func stripCodeFences(content string) string {
	content = strings.ReplaceAll(content, "```json", "")
	return strings.ReplaceAll(content, "```", "")
}
