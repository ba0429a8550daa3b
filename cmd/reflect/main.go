// Command reflect runs a voice-first reflection session in the terminal.
//
// Configuration comes from the environment (a .env file is loaded when
// present):
//
//	OPENROUTER_API_KEY, OPENROUTER_MODEL   dialogue and summary (required)
//	LEMONFOX_API_KEY                       transcription (preferred)
//	DEEPGRAM_API_KEY                       transcription (fallback)
//	ELEVENLABS_API_KEY, ELEVENLABS_VOICE_ID spoken replies (optional)
package main

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	session "github.com/quietroom/reflect-core/core"
	"github.com/quietroom/reflect-core/core/audio/miniaudio"
	"github.com/quietroom/reflect-core/core/audio/portaudio"
	"github.com/quietroom/reflect-core/core/dialogue/openrouter"
	"github.com/quietroom/reflect-core/core/events"
	"github.com/quietroom/reflect-core/core/speech/elevenlabs"
	"github.com/quietroom/reflect-core/core/transcription"
	"github.com/quietroom/reflect-core/core/transcription/deepgram"
	"github.com/quietroom/reflect-core/core/transcription/lemonfox"
)

func main() {
	_ = godotenv.Load()

	dialogueClient, err := openrouter.NewClient(
		os.Getenv("OPENROUTER_API_KEY"),
		os.Getenv("OPENROUTER_MODEL"),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "reflect: %v\n", err)
		os.Exit(1)
	}

	opts := []session.Option{
		session.WithDialogueClient(dialogueClient),
	}

	if transcriber := newTranscriptionClient(); transcriber != nil {
		opts = append(opts, session.WithTranscriptionClient(transcriber))
	}

	var synthesizer *elevenlabs.Client
	if apiKey, voiceID := os.Getenv("ELEVENLABS_API_KEY"), os.Getenv("ELEVENLABS_VOICE_ID"); apiKey != "" && voiceID != "" {
		if synthesizer, err = elevenlabs.NewClient(apiKey, voiceID); err != nil {
			fmt.Fprintf(os.Stderr, "reflect: %v\n", err)
			os.Exit(1)
		}
		opts = append(opts, session.WithSynthesizer(synthesizer))
	}

	audioClient, err := miniaudio.NewClient()
	if err == nil {
		defer audioClient.Close()
		opts = append(opts,
			session.WithCaptureClient(audioClient),
			session.WithPlaybackClient(audioClient),
		)
		if synthesizer != nil {
			// With a real speaker attached, stream the synthesis so
			// playback starts before the full reply is rendered.
			opts = append(opts, session.WithSpeechGenerator(synthesizer.NewSpeechGenerator))
		}
	} else if captureClient, paErr := portaudio.NewClient(1024); paErr == nil {
		// No playback without miniaudio, but the microphone still works.
		fmt.Fprintf(os.Stderr, "reflect: miniaudio unavailable, capturing via portaudio: %v\n", err)
		defer captureClient.Close()
		opts = append(opts, session.WithCaptureClient(captureClient))
	} else {
		fmt.Fprintf(os.Stderr, "reflect: audio unavailable, running text-only: %v\n", err)
	}

	var program *tea.Program
	opts = append(opts, session.WithEventCallback(func(event events.Event) {
		if program != nil {
			go program.Send(event)
		}
	}))

	sess := session.New(opts...)
	defer sess.Close()

	program = tea.NewProgram(newModel(sess), tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "reflect: %v\n", err)
		os.Exit(1)
	}
}

func newTranscriptionClient() transcription.Client {
	if apiKey := os.Getenv("LEMONFOX_API_KEY"); apiKey != "" {
		client, err := lemonfox.NewClient(apiKey)
		if err == nil {
			return client
		}
		fmt.Fprintf(os.Stderr, "reflect: %v\n", err)
	}
	if apiKey := os.Getenv("DEEPGRAM_API_KEY"); apiKey != "" {
		client, err := deepgram.NewClient(apiKey)
		if err == nil {
			return client
		}
		fmt.Fprintf(os.Stderr, "reflect: %v\n", err)
	}
	return nil
}
