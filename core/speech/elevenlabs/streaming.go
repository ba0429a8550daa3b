package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/quietroom/reflect-core/core/errdefs"
	"github.com/quietroom/reflect-core/core/speech"
)

// NewSpeechGenerator opens a stream-input websocket session against the
// voice this client is configured for. Text is synthesized in the order it
// is sent; audio arrives through the audio callback.
func (c *Client) NewSpeechGenerator(ctx context.Context, opts ...speech.GeneratorOption) (speech.Generator, error) {
	req := &streamingRequest{
		options: speech.GeneratorOptions{
			SpeechAudioCallback: func([]byte) {},
			SpeechEndedCallback: func() {},
			ErrorCallback:       func(error) {},
		},
	}
	for _, opt := range opts {
		opt(&req.options)
	}

	voiceSettings := c.voiceSettings
	if req.options.VoiceSettings != nil {
		voiceSettings = *req.options.VoiceSettings
	}

	var err error
	if req.ws, err = c.connectWebsocket(voiceSettings); err != nil {
		return nil, fmt.Errorf("failed to open websocket: %w", err)
	}

	go req.processIncomingMessages(ctx)

	return req, nil
}

func (c *Client) connectWebsocket(voiceSettings speech.VoiceSettings) (*websocket.Conn, error) {
	streamURL, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	switch streamURL.Scheme {
	case "https":
		streamURL.Scheme = "wss"
	case "http":
		streamURL.Scheme = "ws"
	}
	streamURL.Path = fmt.Sprintf("/v1/text-to-speech/%s/stream-input", c.voiceID)

	urlValues := url.Values{}
	urlValues.Set("model_id", c.modelID)
	urlValues.Set("output_format", outputFormat)
	streamURL.RawQuery = urlValues.Encode()

	conn, _, err := websocket.DefaultDialer.Dial(streamURL.String(),
		http.Header{"xi-api-key": {c.apiKey}})
	if err != nil {
		return nil, fmt.Errorf("failed to open socket connection to elevenlabs: %w", err)
	}

	// The session opens with a single space and the voice settings, per the
	// stream-input protocol.
	if err := conn.WriteJSON(streamingMessage{
		Text:          " ",
		VoiceSettings: &voiceSettings,
	}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize elevenlabs stream: %w", err)
	}

	return conn, nil
}

type streamingRequest struct {
	ws *websocket.Conn
	mu sync.Mutex

	options speech.GeneratorOptions

	textComplete bool
	cancelled    bool
	closed       bool
}

func (r *streamingRequest) SendText(text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return fmt.Errorf("streaming request closed")
	} else if r.cancelled {
		return fmt.Errorf("streaming request cancelled")
	} else if r.textComplete {
		return fmt.Errorf("streaming request text already completed")
	}

	if text == "" {
		return nil
	}

	if err := r.ws.WriteJSON(streamingMessage{
		Text:                 text + " ",
		TryTriggerGeneration: true,
	}); err != nil {
		return fmt.Errorf("failed to send websocket text message: %w", err)
	}
	return nil
}

func (r *streamingRequest) EndOfText() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return fmt.Errorf("streaming request closed")
	} else if r.cancelled {
		return fmt.Errorf("streaming request cancelled")
	} else if r.textComplete {
		return nil
	}

	r.textComplete = true
	// An empty text message marks the end of input.
	if err := r.ws.WriteJSON(streamingMessage{}); err != nil {
		return fmt.Errorf("failed to send websocket end of text message: %w", err)
	}
	return nil
}

func (r *streamingRequest) Cancel() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return fmt.Errorf("streaming request closed")
	} else if r.cancelled {
		return nil
	}

	r.cancelled = true
	return r.closeLocked()
}

func (r *streamingRequest) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	return r.closeLocked()
}

func (r *streamingRequest) closeLocked() error {
	r.closed = true
	if err := r.ws.Close(); err != nil {
		return fmt.Errorf("failed to close websocket: %w", err)
	}
	return nil
}

func (r *streamingRequest) processIncomingMessages(_ context.Context) {
	for {
		_, msg, err := r.ws.ReadMessage()
		if err != nil {
			r.mu.Lock()
			closed, cancelled := r.closed, r.cancelled
			r.mu.Unlock()
			if closed || cancelled || websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return
			}

			r.options.ErrorCallback(&errdefs.TransportError{Service: "elevenlabs", Err: err})
			_ = r.Close()
			return
		}

		var parsedMsg struct {
			Audio   string `json:"audio"`
			IsFinal *bool  `json:"isFinal"`
		}
		if err := json.Unmarshal(msg, &parsedMsg); err != nil {
			continue
		}

		if parsedMsg.Audio != "" {
			audio, err := base64.StdEncoding.DecodeString(parsedMsg.Audio)
			if err != nil {
				continue
			}
			r.options.SpeechAudioCallback(audio)
		}

		if parsedMsg.IsFinal != nil && *parsedMsg.IsFinal {
			r.options.SpeechEndedCallback()
			_ = r.Close()
			return
		}
	}
}

type streamingMessage struct {
	Text                 string                `json:"text"`
	VoiceSettings        *speech.VoiceSettings `json:"voice_settings,omitempty"`
	TryTriggerGeneration bool                  `json:"try_trigger_generation,omitempty"`
}
