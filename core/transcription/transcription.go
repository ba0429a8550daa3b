// Package transcription defines the speech-to-text contract used for turn
// capture.
package transcription

import "context"

// MaxAudioBytes is the largest clip a backend has to accept.
const MaxAudioBytes = 6 << 20

type Options struct {
	// Language is a hint for the recognizer, e.g. "english".
	Language string
	// FileName labels the uploaded clip for backends that take uploads.
	FileName string
}

type Option func(*Options)

func WithLanguage(language string) Option {
	return func(opts *Options) {
		opts.Language = language
	}
}

func WithFileName(fileName string) Option {
	return func(opts *Options) {
		opts.FileName = fileName
	}
}

// Client turns a recorded audio clip into text. The clip is raw PCM16 mono
// at the capture client's sample rate; backends that need a file container
// wrap it themselves. Implementations return the transcript with surrounding
// whitespace trimmed; an empty transcript is a valid result, not an error.
type Client interface {
	Transcribe(ctx context.Context, audio []byte, opts ...Option) (string, error)
}
