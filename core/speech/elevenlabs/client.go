// Package elevenlabs implements the speech synthesizer on top of the
// ElevenLabs text-to-speech API. Audio is requested as raw PCM16 at 16 kHz
// so it can be fed straight into the playback device.
package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/quietroom/reflect-core/core/errdefs"
	"github.com/quietroom/reflect-core/core/speech"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	defaultBaseURL = "https://api.elevenlabs.io"
	defaultModelID = "eleven_turbo_v2"

	// outputFormat matches the playback device's expectations, raw PCM16 at
	// 16 kHz mono.
	outputFormat = "pcm_16000"
)

type Client struct {
	apiKey        string
	voiceID       string
	modelID       string
	baseURL       string
	voiceSettings speech.VoiceSettings

	httpClient *http.Client
}

type Option func(*Client)

// WithBaseURL overrides the API base URL, mostly for testing.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

// WithModelID overrides the synthesis model.
func WithModelID(modelID string) Option {
	return func(c *Client) {
		c.modelID = modelID
	}
}

// WithVoiceSettings sets the default voice settings used when a request does
// not override them.
func WithVoiceSettings(settings speech.VoiceSettings) Option {
	return func(c *Client) {
		c.voiceSettings = settings
	}
}

func NewClient(apiKey string, voiceID string, opts ...Option) (*Client, error) {
	missing := []string{}
	if apiKey == "" {
		missing = append(missing, "api key")
	}
	if voiceID == "" {
		missing = append(missing, "voice id")
	}
	if len(missing) > 0 {
		return nil, &errdefs.ConfigurationError{Service: "elevenlabs", Missing: missing}
	}

	client := &Client{
		apiKey:        apiKey,
		voiceID:       voiceID,
		modelID:       defaultModelID,
		baseURL:       defaultBaseURL,
		voiceSettings: speech.DefaultVoiceSettings(),
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

func (c *Client) Synthesize(ctx context.Context, text string, opts ...speech.SynthesisOption) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "elevenlabs synthesis")
	defer span.End()

	options := speech.SynthesisOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		err := &errdefs.ValidationError{Reason: "no text to synthesize"}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	// Clip at a rune boundary so multi-byte characters survive.
	if runes := []rune(text); len(runes) > speech.MaxTextLength {
		text = string(runes[:speech.MaxTextLength])
	}

	voiceSettings := c.voiceSettings
	if options.VoiceSettings != nil {
		voiceSettings = *options.VoiceSettings
	}

	reqBody := requestBody{
		Text:          text,
		ModelID:       c.modelID,
		VoiceSettings: voiceSettings,
	}
	requestBodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		err = fmt.Errorf("error marshalling JSON: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	url := fmt.Sprintf("%s/v1/text-to-speech/%s?output_format=%s", c.baseURL, c.voiceID, outputFormat)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(requestBodyBytes))
	if err != nil {
		err = fmt.Errorf("error creating HTTP request: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", c.apiKey)

	span.SetAttributes(attribute.String("request.model", c.modelID))
	span.SetAttributes(attribute.Int("request.text_length", len(text)))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		tErr := &errdefs.TransportError{Service: "elevenlabs", Err: err}
		span.RecordError(tErr)
		span.SetStatus(codes.Error, tErr.Error())
		return nil, tErr
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("response.status_code", resp.StatusCode))
	if resp.StatusCode != http.StatusOK {
		detail := resp.Status
		if errorBody, err := io.ReadAll(resp.Body); err == nil && len(errorBody) > 0 {
			detail = fmt.Sprintf("%s: %s", resp.Status, string(errorBody))
		}
		tErr := &errdefs.TransportError{Service: "elevenlabs", Detail: detail}
		span.RecordError(tErr)
		span.SetStatus(codes.Error, tErr.Error())
		return nil, tErr
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		err = fmt.Errorf("error reading response body: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if len(audio) == 0 {
		eErr := &errdefs.EmptyResultError{Service: "elevenlabs"}
		span.RecordError(eErr)
		span.SetStatus(codes.Error, eErr.Error())
		return nil, eErr
	}

	logger.DebugContext(ctx, "synthesis received", "audio_bytes", len(audio))
	return audio, nil
}

type requestBody struct {
	Text          string               `json:"text"`
	ModelID       string               `json:"model_id"`
	VoiceSettings speech.VoiceSettings `json:"voice_settings"`
}
