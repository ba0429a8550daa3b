// Package lemonfox implements the transcription client on top of the
// Lemonfox audio transcription API.
package lemonfox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/quietroom/reflect-core/core/audio"
	"github.com/quietroom/reflect-core/core/errdefs"
	"github.com/quietroom/reflect-core/core/transcription"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const defaultBaseURL = "https://api.lemonfox.ai/v1"

type Client struct {
	apiKey   string
	baseURL  string
	encoding audio.EncodingInfo

	httpClient *http.Client
}

type Option func(*Client)

// WithBaseURL overrides the API base URL, mostly for testing.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

// WithEncoding declares the encoding of the raw clips this client will
// receive, when it differs from the capture default.
func WithEncoding(encoding audio.EncodingInfo) Option {
	return func(c *Client) {
		c.encoding = encoding
	}
}

func NewClient(apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, &errdefs.ConfigurationError{Service: "lemonfox", Missing: []string{"api key"}}
	}

	client := &Client{
		apiKey:   apiKey,
		baseURL:  defaultBaseURL,
		encoding: audio.GetDefaultEncodingInfo(),
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

func (c *Client) Transcribe(ctx context.Context, clip []byte, opts ...transcription.Option) (string, error) {
	ctx, span := tracer.Start(ctx, "lemonfox transcription")
	defer span.End()

	options := transcription.Options{FileName: "audio.wav"}
	for _, opt := range opts {
		opt(&options)
	}

	if len(clip) == 0 {
		err := &errdefs.ValidationError{Reason: "no audio to transcribe"}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	if len(clip) > transcription.MaxAudioBytes {
		err := &errdefs.ValidationError{
			Reason: fmt.Sprintf("audio clip is %d bytes, limit is %d", len(clip), transcription.MaxAudioBytes),
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	wav, err := audio.EncodeWAV(clip, c.encoding)
	if err != nil {
		err = fmt.Errorf("error encoding audio: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	body := bytes.Buffer{}
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", options.FileName)
	if err != nil {
		err = fmt.Errorf("error building multipart body: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	if _, err := part.Write(wav); err != nil {
		err = fmt.Errorf("error writing audio to multipart body: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	if options.Language != "" {
		_ = writer.WriteField("language", options.Language)
	}
	_ = writer.WriteField("response_format", "json")
	if err := writer.Close(); err != nil {
		err = fmt.Errorf("error finalizing multipart body: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/audio/transcriptions", &body)
	if err != nil {
		err = fmt.Errorf("error creating HTTP request: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	span.SetAttributes(attribute.Int("request.audio_bytes", len(clip)))
	span.SetAttributes(attribute.String("request.language", options.Language))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		tErr := &errdefs.TransportError{Service: "lemonfox", Err: err}
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
		tErr := &errdefs.TransportError{Service: "lemonfox", Detail: detail}
		span.RecordError(tErr)
		span.SetStatus(codes.Error, tErr.Error())
		return "", tErr
	}

	var responseBody struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&responseBody); err != nil {
		err = fmt.Errorf("error unmarshalling response: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	transcript := strings.TrimSpace(responseBody.Text)
	logger.DebugContext(ctx, "transcription received", "length", len(transcript))
	return transcript, nil
}
