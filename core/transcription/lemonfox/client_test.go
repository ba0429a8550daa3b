package lemonfox

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/quietroom/reflect-core/core/errdefs"
	"github.com/quietroom/reflect-core/core/transcription"
)

func TestNewClientRequiresAnAPIKey(t *testing.T) {
	_, err := NewClient("")
	configErr := &errdefs.ConfigurationError{}
	if !errors.As(err, &configErr) {
		t.Fatalf("expected a configuration error, got %v", err)
	}
}

func TestTranscribeUploadsAWAVContainer(t *testing.T) {
	var fileName, language, responseFormat string
	var uploaded []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			t.Errorf("could not parse multipart form: %v", err)
			return
		}
		language = r.FormValue("language")
		responseFormat = r.FormValue("response_format")
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("could not read file part: %v", err)
			return
		}
		defer file.Close()
		fileName = header.Filename
		uploaded, _ = io.ReadAll(file)
		w.Write([]byte(`{"text":"  it was a good year  "}`))
	}))
	defer server.Close()

	client, err := NewClient("test-key", WithBaseURL(server.URL))
	if err != nil {
		t.Fatalf("could not create client: %v", err)
	}

	clip := bytes.Repeat([]byte{0x01, 0x02}, 1600)
	transcript, err := client.Transcribe(context.Background(), clip,
		transcription.WithLanguage("english"),
	)
	if err != nil {
		t.Fatalf("expected the transcription to succeed, got %v", err)
	}

	if transcript != "it was a good year" {
		t.Fatalf("expected the trimmed transcript, got %q", transcript)
	}
	if fileName != "audio.wav" {
		t.Fatalf("expected the default file name, got %q", fileName)
	}
	if language != "english" {
		t.Fatalf("expected the language field, got %q", language)
	}
	if responseFormat != "json" {
		t.Fatalf("expected the json response format field, got %q", responseFormat)
	}
	if len(uploaded) != len(clip)+44 {
		t.Fatalf("expected a 44 byte WAV header around the clip, got %d bytes for a %d byte clip", len(uploaded), len(clip))
	}
	if !bytes.HasPrefix(uploaded, []byte("RIFF")) || !bytes.Equal(uploaded[8:12], []byte("WAVE")) {
		t.Fatalf("expected a RIFF/WAVE container, got %q", uploaded[:12])
	}
	if !bytes.Equal(uploaded[44:], clip) {
		t.Fatalf("expected the raw clip after the header")
	}
}

func TestTranscribeRejectsEmptyClips(t *testing.T) {
	client, err := NewClient("test-key")
	if err != nil {
		t.Fatalf("could not create client: %v", err)
	}

	_, err = client.Transcribe(context.Background(), nil)
	validationErr := &errdefs.ValidationError{}
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected a validation error for an empty clip, got %v", err)
	}
}

func TestTranscribeRejectsOversizedClips(t *testing.T) {
	client, err := NewClient("test-key")
	if err != nil {
		t.Fatalf("could not create client: %v", err)
	}

	_, err = client.Transcribe(context.Background(), make([]byte, transcription.MaxAudioBytes+1))
	validationErr := &errdefs.ValidationError{}
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected a validation error for an oversized clip, got %v", err)
	}
}

func TestTranscribeReportsUpstreamFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte("invalid api key"))
	}))
	defer server.Close()

	client, err := NewClient("bad-key", WithBaseURL(server.URL))
	if err != nil {
		t.Fatalf("could not create client: %v", err)
	}

	_, err = client.Transcribe(context.Background(), []byte{0x01, 0x02})
	transportErr := &errdefs.TransportError{}
	if !errors.As(err, &transportErr) {
		t.Fatalf("expected a transport error, got %v", err)
	}
}
