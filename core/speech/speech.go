// Package speech defines the text-to-speech contract used for spoken
// delivery of assistant replies.
package speech

import "context"

// MaxTextLength is the longest text a single synthesis request may carry;
// longer text is clipped by the backend before sending.
const MaxTextLength = 800

// VoiceSettings tune the synthesized voice. The zero value is not valid,
// use DefaultVoiceSettings as a base.
type VoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	SpeakerBoost    bool    `json:"use_speaker_boost"`
}

func DefaultVoiceSettings() VoiceSettings {
	return VoiceSettings{
		Stability:       0.5,
		SimilarityBoost: 0.8,
		Style:           0.25,
		SpeakerBoost:    true,
	}
}

type SynthesisOptions struct {
	VoiceSettings *VoiceSettings
}

type SynthesisOption func(*SynthesisOptions)

// WithVoiceSettings overrides the backend's default voice settings for a
// single request.
func WithVoiceSettings(settings VoiceSettings) SynthesisOption {
	return func(opts *SynthesisOptions) {
		opts.VoiceSettings = &settings
	}
}

// Synthesizer renders text into raw PCM16 audio in one shot.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, opts ...SynthesisOption) ([]byte, error)
}

type GeneratorOptions struct {
	// SpeechAudioCallback is called, possibly repeatedly, as the generator
	// produces audio.
	SpeechAudioCallback func(audio []byte)
	// SpeechEndedCallback is called once all speech for the sent text has
	// been generated.
	SpeechEndedCallback func()
	// ErrorCallback is called when the generator encounters an error, this
	// usually means the generator has been cancelled.
	ErrorCallback func(error)

	VoiceSettings *VoiceSettings
}

type GeneratorOption func(*GeneratorOptions)

func WithSpeechAudioCallback(callback func(audio []byte)) GeneratorOption {
	return func(opts *GeneratorOptions) { opts.SpeechAudioCallback = callback }
}

func WithSpeechEndedCallback(callback func()) GeneratorOption {
	return func(opts *GeneratorOptions) { opts.SpeechEndedCallback = callback }
}

func WithErrorCallback(callback func(error)) GeneratorOption {
	return func(opts *GeneratorOptions) { opts.ErrorCallback = callback }
}

func WithGeneratorVoiceSettings(settings VoiceSettings) GeneratorOption {
	return func(opts *GeneratorOptions) { opts.VoiceSettings = &settings }
}

// GeneratorFactory opens a new streaming synthesis session.
type GeneratorFactory func(ctx context.Context, opts ...GeneratorOption) (Generator, error)

// Generator produces speech incrementally from streamed text.
type Generator interface {
	// SendText queues text for synthesis. It is guaranteed that the speech
	// is generated in the order text is sent.
	//
	// SendText errors if EndOfText, Cancel or Close has been called.
	SendText(text string) error
	// EndOfText signals that no more text will be sent. The generator closes
	// itself once all remaining speech has been generated.
	//
	// EndOfText errors if Cancel or Close has been called. Repeated calls
	// are ignored.
	EndOfText() error
	// Cancel immediately stops further speech generation and closes the
	// generator. Repeated calls are ignored.
	Cancel() error
	// Close immediately closes the generator. No audio is delivered after
	// this call. Repeated calls are ignored.
	Close() error
}
