// Package openrouter implements the dialogue client on top of the OpenRouter
// chat completions API.
package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/quietroom/reflect-core/core/dialogue"
	"github.com/quietroom/reflect-core/core/errdefs"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const defaultBaseURL = "https://openrouter.ai/api/v1"

type Client struct {
	apiKey  string
	model   string
	baseURL string
	params  dialogue.Params

	httpClient *http.Client
}

type Option func(*Client)

// WithBaseURL overrides the API base URL, mostly for testing.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

// WithDefaultParams sets the sampling parameters used when a completion does
// not override them.
func WithDefaultParams(params dialogue.Params) Option {
	return func(c *Client) {
		c.params = params
	}
}

func NewClient(apiKey string, model string, opts ...Option) (*Client, error) {
	missing := []string{}
	if apiKey == "" {
		missing = append(missing, "api key")
	}
	if model == "" {
		missing = append(missing, "model")
	}
	if len(missing) > 0 {
		return nil, &errdefs.ConfigurationError{Service: "openrouter", Missing: missing}
	}

	client := &Client{
		apiKey:  apiKey,
		model:   model,
		baseURL: defaultBaseURL,
		params:  dialogue.DefaultParams(),
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

func (c *Client) Complete(ctx context.Context, turns []dialogue.Turn, opts ...dialogue.CompletionOption) (string, error) {
	ctx, span := tracer.Start(ctx, "openrouter completion")
	defer span.End()

	options := dialogue.CompletionOptions{Params: c.params}
	for _, opt := range opts {
		opt(&options)
	}

	if len(turns) > dialogue.MaxTurns {
		err := &errdefs.ValidationError{
			Reason: fmt.Sprintf("conversation has %d turns, limit is %d", len(turns), dialogue.MaxTurns),
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	messages := make([]message, 0, len(turns)+1)
	if options.Instructions != "" {
		messages = append(messages, message{
			Role:    messageRoleSystem,
			Content: options.Instructions,
		})
	}
	for _, turn := range turns {
		content := turn.Content
		// Clip at a rune boundary so multi-byte characters survive.
		if runes := []rune(content); len(runes) > dialogue.MaxTurnContentLength {
			content = string(runes[:dialogue.MaxTurnContentLength])
		}
		messages = append(messages, message{
			Role:    messageRole(turn.Role),
			Content: content,
		})
	}

	reqBody := requestBody{
		Model:            c.model,
		Messages:         messages,
		Temperature:      options.Params.Temperature,
		TopP:             options.Params.TopP,
		MaxTokens:        options.Params.MaxTokens,
		PresencePenalty:  options.Params.PresencePenalty,
		FrequencyPenalty: options.Params.FrequencyPenalty,
	}

	requestBodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		err = fmt.Errorf("error marshalling JSON: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/chat/completions", bytes.NewBuffer(requestBodyBytes))
	if err != nil {
		err = fmt.Errorf("error creating HTTP request: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	span.SetAttributes(attribute.String("request.model", c.model))
	span.SetAttributes(attribute.Int("request.turns", len(turns)))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		tErr := &errdefs.TransportError{Service: "openrouter", Err: err}
		span.RecordError(tErr)
		span.SetStatus(codes.Error, tErr.Error())
		return "", tErr
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("response.status_code", resp.StatusCode))
	if resp.StatusCode != http.StatusOK {
		detail := resp.Status
		if errorBody, err := io.ReadAll(resp.Body); err == nil && len(errorBody) > 0 {
			detail = fmt.Sprintf("%s: %s", resp.Status, string(errorBody))
		}
		tErr := &errdefs.TransportError{Service: "openrouter", Detail: detail}
		span.RecordError(tErr)
		span.SetStatus(codes.Error, tErr.Error())
		return "", tErr
	}

	respBodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		err = fmt.Errorf("error reading response body: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	var responseBody responseBody
	if err := json.Unmarshal(respBodyBytes, &responseBody); err != nil {
		err = fmt.Errorf("error unmarshalling response: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	if len(responseBody.Choices) == 0 || strings.TrimSpace(responseBody.Choices[0].Message.Content) == "" {
		eErr := &errdefs.EmptyResultError{Service: "openrouter"}
		span.RecordError(eErr)
		span.SetStatus(codes.Error, eErr.Error())
		return "", eErr
	}

	content := strings.TrimSpace(responseBody.Choices[0].Message.Content)
	logger.DebugContext(ctx, "completion received", "model", c.model, "length", len(content))
	return content, nil
}

type requestBody struct {
	Model            string    `json:"model"`
	Messages         []message `json:"messages"`
	Temperature      float64   `json:"temperature"`
	TopP             float64   `json:"top_p"`
	MaxTokens        int       `json:"max_tokens"`
	PresencePenalty  float64   `json:"presence_penalty"`
	FrequencyPenalty float64   `json:"frequency_penalty"`
}

type message struct {
	Role    messageRole `json:"role"`
	Content string      `json:"content"`
}

type messageRole string

const (
	messageRoleSystem    messageRole = "system"
	messageRoleUser      messageRole = "user"
	messageRoleAssistant messageRole = "assistant"
)

type responseBody struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role,omitempty"`
			Content string `json:"content,omitempty"`
		} `json:"message"`
		FinishReason *string `json:"finish_reason,omitempty"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}
