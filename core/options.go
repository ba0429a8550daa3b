package session

import (
	"unicode"

	"github.com/quietroom/reflect-core/core/dialogue"
	"github.com/quietroom/reflect-core/core/events"
	"github.com/quietroom/reflect-core/core/speech"
	"github.com/quietroom/reflect-core/core/transcription"
)

// Config holds the per-session knobs sourced once at construction; call
// sites never read process-wide state.
type Config struct {
	// Language is the hint passed to the transcription service.
	Language string
	// Script is the script transcripts are expected in; transcriptions
	// dominated by another script are rejected as recognizer misfires.
	Script *unicode.RangeTable

	DialogueParams dialogue.Params
	SummaryParams  *dialogue.Params

	// MaxSpokenChars bounds the text sent for synthesis per reply.
	MaxSpokenChars int
	// MaxManualInputChars bounds typed input per message.
	MaxManualInputChars int
}

func DefaultConfig() Config {
	return Config{
		Language:            "english",
		Script:              unicode.Latin,
		DialogueParams:      dialogue.DefaultParams(),
		MaxSpokenChars:      600,
		MaxManualInputChars: 320,
	}
}

type Option func(*Session)

func WithConfig(config Config) Option {
	return func(s *Session) {
		s.config = config
	}
}

func WithDialogueClient(client dialogue.Client) Option {
	return func(s *Session) {
		s.dialogueClient = client
	}
}

func WithTranscriptionClient(client transcription.Client) Option {
	return func(s *Session) {
		s.transcriptionClient = client
	}
}

func WithSynthesizer(synthesizer speech.Synthesizer) Option {
	return func(s *Session) {
		s.synthesizer = synthesizer
	}
}

// WithSpeechGenerator enables streamed synthesis: replies are fed through a
// per-turn generator session and played back chunk by chunk as audio
// arrives, instead of waiting for the full one-shot clip.
func WithSpeechGenerator(factory speech.GeneratorFactory) Option {
	return func(s *Session) {
		s.speechGenerator = factory
	}
}

func WithCaptureClient(client CaptureClient) Option {
	return func(s *Session) {
		s.capture = newAudioCapture(client)
	}
}

func WithPlaybackClient(client PlaybackClient) Option {
	return func(s *Session) {
		s.playback = newAudioPlayback(client)
	}
}

// WithEventCallback subscribes to session events; the callback runs on the
// session's goroutines and must not block or call back into the session.
func WithEventCallback(callback func(events.Event)) Option {
	return func(s *Session) {
		s.onEvent = callback
	}
}
