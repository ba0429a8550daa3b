package elevenlabs

import (
	"bytes"
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/quietroom/reflect-core/core/speech"
)

// streamingServer speaks just enough of the stream-input protocol: it reads
// the opening message, echoes one audio chunk per text message, and sends
// the final marker once the empty end-of-text message arrives.
func streamingServer(t *testing.T, pcm []byte, received *[]streamingMessage, mu *sync.Mutex) *httptest.Server {
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("could not upgrade connection: %v", err)
			return
		}
		defer conn.Close()

		for {
			var msg streamingMessage
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			mu.Lock()
			*received = append(*received, msg)
			mu.Unlock()

			if msg.VoiceSettings != nil {
				continue // opening message
			}
			if msg.Text == "" {
				isFinal := true
				conn.WriteJSON(struct {
					IsFinal *bool `json:"isFinal"`
				}{IsFinal: &isFinal})
				return
			}
			conn.WriteJSON(struct {
				Audio string `json:"audio"`
			}{Audio: base64.StdEncoding.EncodeToString(pcm)})
		}
	}))
}

func TestSpeechGeneratorStreamsAudioInOrder(t *testing.T) {
	pcm := []byte{0x01, 0x02, 0x03, 0x04}
	var mu sync.Mutex
	var received []streamingMessage
	server := streamingServer(t, pcm, &received, &mu)
	defer server.Close()

	client, err := NewClient("test-key", "test-voice", WithBaseURL(server.URL))
	if err != nil {
		t.Fatalf("could not create client: %v", err)
	}

	var audio []byte
	ended := make(chan struct{})
	generator, err := client.NewSpeechGenerator(context.Background(),
		speech.WithSpeechAudioCallback(func(chunk []byte) {
			mu.Lock()
			audio = append(audio, chunk...)
			mu.Unlock()
		}),
		speech.WithSpeechEndedCallback(func() { close(ended) }),
		speech.WithErrorCallback(func(err error) { t.Errorf("unexpected generator error: %v", err) }),
	)
	if err != nil {
		t.Fatalf("could not open generator: %v", err)
	}
	defer generator.Close()

	if err := generator.SendText("What stood out"); err != nil {
		t.Fatalf("expected the text to be accepted, got %v", err)
	}
	if err := generator.SendText("this year?"); err != nil {
		t.Fatalf("expected the text to be accepted, got %v", err)
	}
	if err := generator.EndOfText(); err != nil {
		t.Fatalf("expected end of text to be accepted, got %v", err)
	}

	select {
	case <-ended:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for the speech to end")
	}

	mu.Lock()
	defer mu.Unlock()
	if !bytes.Equal(audio, append(append([]byte{}, pcm...), pcm...)) {
		t.Fatalf("expected one decoded chunk per text message, got %d bytes", len(audio))
	}
	if len(received) < 4 {
		t.Fatalf("expected the opening, two text and one end message, got %d", len(received))
	}
	if received[0].VoiceSettings == nil || received[0].Text != " " {
		t.Fatalf("expected the opening message with voice settings, got %+v", received[0])
	}
	if received[1].Text != "What stood out " || !received[1].TryTriggerGeneration {
		t.Fatalf("expected the first text message padded and triggering, got %+v", received[1])
	}
}

func TestSpeechGeneratorRejectsTextAfterEndOfText(t *testing.T) {
	var mu sync.Mutex
	var received []streamingMessage
	server := streamingServer(t, []byte{0x00}, &received, &mu)
	defer server.Close()

	client, err := NewClient("test-key", "test-voice", WithBaseURL(server.URL))
	if err != nil {
		t.Fatalf("could not create client: %v", err)
	}

	generator, err := client.NewSpeechGenerator(context.Background())
	if err != nil {
		t.Fatalf("could not open generator: %v", err)
	}
	defer generator.Close()

	if err := generator.EndOfText(); err != nil {
		t.Fatalf("expected end of text to be accepted, got %v", err)
	}
	if err := generator.EndOfText(); err != nil {
		t.Fatalf("expected a repeated end of text to be ignored, got %v", err)
	}
	if err := generator.SendText("too late"); err == nil {
		t.Fatalf("expected text after end of text to be rejected")
	}
}

func TestSpeechGeneratorCancelStopsDelivery(t *testing.T) {
	var mu sync.Mutex
	var received []streamingMessage
	server := streamingServer(t, []byte{0x00}, &received, &mu)
	defer server.Close()

	client, err := NewClient("test-key", "test-voice", WithBaseURL(server.URL))
	if err != nil {
		t.Fatalf("could not create client: %v", err)
	}

	generator, err := client.NewSpeechGenerator(context.Background())
	if err != nil {
		t.Fatalf("could not open generator: %v", err)
	}

	if err := generator.Cancel(); err != nil {
		t.Fatalf("expected cancel to succeed, got %v", err)
	}
	if err := generator.Cancel(); err != nil {
		t.Fatalf("expected a repeated cancel to be ignored, got %v", err)
	}
	if err := generator.SendText("after cancel"); err == nil {
		t.Fatalf("expected text after cancel to be rejected")
	}
}
