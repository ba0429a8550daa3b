// Package deepgram implements the transcription client against the Deepgram
// streaming API. Each clip is sent over a short-lived websocket session and
// the final transcript segments are stitched together once the stream closes.
package deepgram

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	api "github.com/deepgram/deepgram-go-sdk/pkg/api/listen/v1/websocket/interfaces"
	"github.com/gorilla/websocket"
	"github.com/quietroom/reflect-core/core/audio"
	"github.com/quietroom/reflect-core/core/errdefs"
	"github.com/quietroom/reflect-core/core/transcription"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	defaultListenURL = "wss://api.deepgram.com/v1/listen"
	defaultModel     = "nova-3"

	// sendChunkSize bounds individual websocket frames when replaying a clip.
	sendChunkSize = 8192
)

type Client struct {
	apiKey    string
	model     string
	listenURL string
	encoding  audio.EncodingInfo
}

type Option func(*Client)

// WithModel overrides the recognition model.
func WithModel(model string) Option {
	return func(c *Client) {
		c.model = model
	}
}

// WithListenURL overrides the websocket endpoint, mostly for testing.
func WithListenURL(listenURL string) Option {
	return func(c *Client) {
		c.listenURL = listenURL
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
		return nil, &errdefs.ConfigurationError{Service: "deepgram", Missing: []string{"api key"}}
	}

	client := &Client{
		apiKey:    apiKey,
		model:     defaultModel,
		listenURL: defaultListenURL,
		encoding:  audio.GetDefaultEncodingInfo(),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

func (c *Client) Transcribe(ctx context.Context, clip []byte, opts ...transcription.Option) (string, error) {
	ctx, span := tracer.Start(ctx, "deepgram transcription")
	defer span.End()

	options := transcription.Options{}
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

	span.SetAttributes(attribute.Int("request.audio_bytes", len(clip)))
	span.SetAttributes(attribute.String("request.model", c.model))

	conn, err := c.connect(options.Language)
	if err != nil {
		tErr := &errdefs.TransportError{Service: "deepgram", Err: err}
		span.RecordError(tErr)
		span.SetStatus(codes.Error, tErr.Error())
		return "", tErr
	}
	defer conn.Close()

	type result struct {
		transcript string
		err        error
	}
	done := make(chan result, 1)
	go func() {
		transcript, err := collectTranscript(conn)
		done <- result{transcript: transcript, err: err}
	}()

	for offset := 0; offset < len(clip); offset += sendChunkSize {
		end := min(offset+sendChunkSize, len(clip))
		if err := conn.WriteMessage(websocket.BinaryMessage, clip[offset:end]); err != nil {
			tErr := &errdefs.TransportError{Service: "deepgram", Err: err}
			span.RecordError(tErr)
			span.SetStatus(codes.Error, tErr.Error())
			return "", tErr
		}
	}
	if err := conn.WriteJSON(struct {
		Type string `json:"type"`
	}{Type: string(api.TypeCloseStreamResponse)}); err != nil {
		tErr := &errdefs.TransportError{Service: "deepgram", Err: err}
		span.RecordError(tErr)
		span.SetStatus(codes.Error, tErr.Error())
		return "", tErr
	}

	select {
	case <-ctx.Done():
		span.SetStatus(codes.Error, ctx.Err().Error())
		return "", ctx.Err()
	case res := <-done:
		if res.err != nil {
			tErr := &errdefs.TransportError{Service: "deepgram", Err: res.err}
			span.RecordError(tErr)
			span.SetStatus(codes.Error, tErr.Error())
			return "", tErr
		}
		logger.DebugContext(ctx, "transcription received", "length", len(res.transcript))
		return res.transcript, nil
	}
}

func (c *Client) connect(language string) (*websocket.Conn, error) {
	listenURL, err := url.Parse(c.listenURL)
	if err != nil {
		return nil, fmt.Errorf("invalid listen url: %w", err)
	}

	queryParams := listenURL.Query()
	queryParams.Set("encoding", c.encoding.Format.Name())
	queryParams.Set("sample_rate", strconv.Itoa(c.encoding.SampleRate))
	queryParams.Set("channels", "1")
	queryParams.Set("model", c.model)
	if language != "" {
		queryParams.Set("language", language)
	}
	queryParams.Set("smart_format", "true")
	listenURL.RawQuery = queryParams.Encode()

	conn, _, err := websocket.DefaultDialer.Dial(listenURL.String(),
		http.Header{"Authorization": {"Token " + c.apiKey}})
	if err != nil {
		return nil, fmt.Errorf("failed to open socket connection to deepgram: %w", err)
	}
	return conn, nil
}

// collectTranscript accumulates final transcript segments until the server
// closes the stream.
func collectTranscript(conn *websocket.Conn) (string, error) {
	var segments []string
	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return strings.TrimSpace(strings.Join(segments, " ")), nil
			}
			return "", err
		}
		if msgType == websocket.BinaryMessage {
			continue
		}

		var parsedMsg struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(msg, &parsedMsg); err != nil {
			continue
		}

		switch api.TypeResponse(parsedMsg.Type) {
		case api.TypeMessageResponse:
			var msgResp api.MessageResponse
			if err := json.Unmarshal(msg, &msgResp); err != nil {
				continue
			}
			if !msgResp.IsFinal || len(msgResp.Channel.Alternatives) == 0 {
				continue
			}
			if transcript := strings.TrimSpace(msgResp.Channel.Alternatives[0].Transcript); transcript != "" {
				segments = append(segments, transcript)
			}
		case api.TypeCloseStreamResponse:
			return strings.TrimSpace(strings.Join(segments, " ")), nil
		}
	}
}
