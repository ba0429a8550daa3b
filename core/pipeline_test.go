package session

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/quietroom/reflect-core/core/dialogue"
	"github.com/quietroom/reflect-core/core/events"
	"github.com/quietroom/reflect-core/core/speech"
	"github.com/quietroom/reflect-core/core/steps"
	"github.com/quietroom/reflect-core/core/transcription"
)

func refusingDialogue(t *testing.T) *dialogueClientStub {
	return &dialogueClientStub{
		complete: func(context.Context, []dialogue.Turn, ...dialogue.CompletionOption) (string, error) {
			t.Errorf("expected no dialogue call")
			return "", nil
		},
	}
}

func TestOpeningTurnsAreAnsweredLocally(t *testing.T) {
	s := New(WithDialogueClient(refusingDialogue(t)))
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("expected start to succeed, got %v", err)
	}

	answers := []string{
		"I expected a quiet year and it was anything but.",
		"Finishing the garden, that genuinely went well.",
		"The move fell through, that one stung.",
	}
	for i, answer := range answers {
		before := s.transcript.len()
		if err := s.SendText(context.Background(), answer); err != nil {
			t.Fatalf("expected turn %d to be accepted, got %v", i, err)
		}
		waitUntil(t, func() bool { return s.transcript.len() >= before+2 }, "the turn to be answered")

		turns := s.Turns()
		reply := turns[len(turns)-1]
		want, ok := steps.FixedPrompt(i)
		if !ok {
			t.Fatalf("expected a fixed prompt for step %d", i)
		}
		if reply.Role != dialogue.RoleAssistant || reply.Content != want {
			t.Fatalf("expected the step %d fixed prompt, got %+v", i, reply)
		}
		if got := s.StepIndex(); got != i+1 {
			t.Fatalf("expected the step index to advance to %d, got %d", i+1, got)
		}
	}
}

func TestGenerativeTurnCarriesStepDirectives(t *testing.T) {
	var mu sync.Mutex
	var instructions string
	var history []dialogue.Turn
	s := New(WithDialogueClient(&dialogueClientStub{
		complete: func(_ context.Context, turns []dialogue.Turn, opts ...dialogue.CompletionOption) (string, error) {
			options := dialogue.CompletionOptions{}
			for _, opt := range opts {
				opt(&options)
			}
			mu.Lock()
			instructions = options.Instructions
			history = turns
			mu.Unlock()
			return "What made it feel that way?", nil
		},
	}))
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("expected start to succeed, got %v", err)
	}
	s.mu.Lock()
	s.stepIndex = steps.FixedPrefixLength
	s.mu.Unlock()

	if err := s.SendText(context.Background(), "Work mostly drained me this year."); err != nil {
		t.Fatalf("expected the turn to be accepted, got %v", err)
	}
	waitUntil(t, func() bool { return s.transcript.len() >= 3 }, "the turn to be answered")

	mu.Lock()
	defer mu.Unlock()
	if !strings.Contains(instructions, "Current step intent:") {
		t.Fatalf("expected the step intent in the instructions, got %q", instructions)
	}
	if !strings.Contains(instructions, "Banned phrasings") {
		t.Fatalf("expected the banned phrasings in the instructions")
	}
	if len(history) != 2 {
		t.Fatalf("expected the intro and the user turn in the history, got %d", len(history))
	}
	if history[1].Content != "Work mostly drained me this year." {
		t.Fatalf("expected the user turn in the history, got %q", history[1].Content)
	}

	turns := s.Turns()
	if got := turns[len(turns)-1].Content; got != "What made it feel that way?" {
		t.Fatalf("expected the dialogue reply appended, got %q", got)
	}
	if got := s.StepIndex(); got != steps.FixedPrefixLength {
		t.Fatalf("expected the step to hold until a cap fires, got %d", got)
	}
}

func TestGenerativeStepsPermitOneFollowUpEach(t *testing.T) {
	var mu sync.Mutex
	var instructions []string
	s := New(WithDialogueClient(&dialogueClientStub{
		complete: func(_ context.Context, _ []dialogue.Turn, opts ...dialogue.CompletionOption) (string, error) {
			options := dialogue.CompletionOptions{}
			for _, opt := range opts {
				opt(&options)
			}
			mu.Lock()
			instructions = append(instructions, options.Instructions)
			mu.Unlock()
			return "Where were you when that happened?", nil
		},
	}))
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("expected start to succeed, got %v", err)
	}

	answers := []string{
		"A lot more travel than I planned for.",
		"Finishing the garden, that went well.",
		"The move fell through.",
		"The garden again, honestly.",
		"Out back, early spring, just me.",
	}
	for i, answer := range answers {
		before := s.transcript.len()
		if err := s.SendText(context.Background(), answer); err != nil {
			t.Fatalf("expected turn %d to be accepted, got %v", i, err)
		}
		waitUntil(t, func() bool { return s.transcript.len() >= before+2 }, "the turn to be answered")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(instructions) != 2 {
		t.Fatalf("expected two dialogue calls past the opening turns, got %d", len(instructions))
	}
	if strings.Contains(instructions[0], "already followed up") {
		t.Fatalf("expected the step's first call to permit a follow-up, got %q", instructions[0])
	}
	if !strings.Contains(instructions[1], "already followed up") {
		t.Fatalf("expected the turn cap on the step's second call, got %q", instructions[1])
	}
	if got := s.StepIndex(); got != steps.FixedPrefixLength+1 {
		t.Fatalf("expected the step to advance only after the follow-up, got %d", got)
	}
}

func TestStepAdvancesOnceTheTurnCapFires(t *testing.T) {
	s := New(WithDialogueClient(echoDialogue("Let's look at the next one: what kept you going?")))
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("expected start to succeed, got %v", err)
	}
	step := steps.FixedPrefixLength
	s.mu.Lock()
	s.stepIndex = step
	s.mu.Unlock()
	s.transcript.append(dialogue.RoleUser, "Mostly the people around me.", step)
	s.transcript.append(dialogue.RoleAssistant, "Who in particular?", step)

	before := s.transcript.len()
	if err := s.SendText(context.Background(), "My sister, without question."); err != nil {
		t.Fatalf("expected the turn to be accepted, got %v", err)
	}
	waitUntil(t, func() bool { return s.transcript.len() >= before+2 }, "the turn to be answered")

	if got := s.StepIndex(); got != step+1 {
		t.Fatalf("expected the step to advance to %d after the turn cap, got %d", step+1, got)
	}
}

func TestEmptyInputGetsTheRetryPrompt(t *testing.T) {
	s := New(WithDialogueClient(refusingDialogue(t)))
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("expected start to succeed, got %v", err)
	}

	if err := s.SendText(context.Background(), "   "); err != nil {
		t.Fatalf("expected the blank turn to be accepted, got %v", err)
	}
	waitUntil(t, func() bool { return s.transcript.len() >= 2 }, "the retry prompt")

	turns := s.Turns()
	if len(turns) != 2 {
		t.Fatalf("expected no user turn for blank input, got %d turns", len(turns))
	}
	if got := turns[1].Content; got != steps.RetryPrompt() {
		t.Fatalf("expected the retry prompt, got %q", got)
	}
	if got := s.StepIndex(); got != 0 {
		t.Fatalf("expected the step unchanged, got %d", got)
	}
}

func TestEscapePhraseEndsTheSession(t *testing.T) {
	s := New(WithDialogueClient(refusingDialogue(t)))
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("expected start to succeed, got %v", err)
	}

	if err := s.SendText(context.Background(), "Okay, just stop."); err != nil {
		t.Fatalf("expected the turn to be accepted, got %v", err)
	}
	waitUntil(t, func() bool { return s.Phase() == PhaseIdle }, "the session to end")

	if got := len(s.Turns()); got != 0 {
		t.Fatalf("expected the transcript discarded, got %d turns", got)
	}
}

func TestUnexpectedScriptGetsTheMismatchPrompt(t *testing.T) {
	s := New(WithDialogueClient(refusingDialogue(t)))
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("expected start to succeed, got %v", err)
	}

	if err := s.SendText(context.Background(), "Это был хороший год"); err != nil {
		t.Fatalf("expected the turn to be accepted, got %v", err)
	}
	waitUntil(t, func() bool { return s.transcript.len() >= 2 }, "the mismatch prompt")

	turns := s.Turns()
	if len(turns) != 2 {
		t.Fatalf("expected the garbled turn not to be committed, got %d turns", len(turns))
	}
	if got := turns[1].Content; got != steps.MismatchPrompt() {
		t.Fatalf("expected the mismatch prompt, got %q", got)
	}
	if got := s.StepIndex(); got != 0 {
		t.Fatalf("expected the step unchanged, got %d", got)
	}
}

func TestMismatchedScriptEscapeWordsDoNotEndTheSession(t *testing.T) {
	s := New(WithDialogueClient(refusingDialogue(t)))
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("expected start to succeed, got %v", err)
	}

	// A recognizer misfire that happens to contain an escape word must be
	// rejected as garbled, not treated as a request to end.
	if err := s.SendText(context.Background(), "пожалуйста cancel пожалуйста"); err != nil {
		t.Fatalf("expected the turn to be accepted, got %v", err)
	}
	waitUntil(t, func() bool { return s.transcript.len() >= 2 }, "the mismatch prompt")

	if got := s.Phase(); got != PhaseActive {
		t.Fatalf("expected the session to stay active, got %s", got)
	}
	turns := s.Turns()
	if got := turns[len(turns)-1].Content; got != steps.MismatchPrompt() {
		t.Fatalf("expected the mismatch prompt, got %q", got)
	}
}

func TestRecordedTurnFlowsThroughTranscription(t *testing.T) {
	capture := &captureClientStub{}
	var mu sync.Mutex
	var clip []byte
	var language string
	s := New(
		WithCaptureClient(capture),
		WithDialogueClient(refusingDialogue(t)),
		WithTranscriptionClient(&transcriptionClientStub{
			transcribe: func(_ context.Context, audioClip []byte, opts ...transcription.Option) (string, error) {
				options := transcription.Options{}
				for _, opt := range opts {
					opt(&options)
				}
				mu.Lock()
				clip = audioClip
				language = options.Language
				mu.Unlock()
				return "I expected less travel.", nil
			},
		}),
	)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("expected start to succeed, got %v", err)
	}

	if err := s.BeginTurn(context.Background()); err != nil {
		t.Fatalf("expected the recording to start, got %v", err)
	}
	if !s.IsRecording() {
		t.Fatalf("expected the session to report recording")
	}
	capture.feed([]byte{0x01, 0x02})
	capture.feed([]byte{0x03, 0x04})

	if err := s.CompleteTurn(context.Background()); err != nil {
		t.Fatalf("expected the recording to complete, got %v", err)
	}
	waitUntil(t, func() bool { return s.transcript.len() >= 3 }, "the recorded turn to be answered")

	mu.Lock()
	defer mu.Unlock()
	if !bytes.Equal(clip, []byte{0x01, 0x02, 0x03, 0x04}) {
		t.Fatalf("expected the buffered chunks assembled in order, got %v", clip)
	}
	if language != "english" {
		t.Fatalf("expected the configured language hint, got %q", language)
	}

	turns := s.Turns()
	if turns[1].Role != dialogue.RoleUser || turns[1].Content != "I expected less travel." {
		t.Fatalf("expected the transcript to carry the transcription, got %+v", turns[1])
	}
}

func TestBeginTurnIsANoOpOutsideActive(t *testing.T) {
	capture := &captureClientStub{}
	s := New(WithCaptureClient(capture))

	if err := s.BeginTurn(context.Background()); err != nil {
		t.Fatalf("expected begin to be a silent no-op while idle, got %v", err)
	}
	if s.IsRecording() {
		t.Fatalf("expected no recording while idle")
	}

	if err := s.CompleteTurn(context.Background()); err != nil {
		t.Fatalf("expected complete to be a silent no-op with nothing captured, got %v", err)
	}
}

func TestSupersededTranscriptionIsDiscarded(t *testing.T) {
	capture := &captureClientStub{}
	entered := make(chan struct{})
	release := make(chan struct{})
	s := New(
		WithCaptureClient(capture),
		WithTranscriptionClient(&transcriptionClientStub{
			transcribe: func(ctx context.Context, _ []byte, _ ...transcription.Option) (string, error) {
				close(entered)
				select {
				case <-release:
				case <-ctx.Done():
				}
				return "a stale transcription", nil
			},
		}),
	)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("expected start to succeed, got %v", err)
	}

	if err := s.BeginTurn(context.Background()); err != nil {
		t.Fatalf("expected the recording to start, got %v", err)
	}
	capture.feed([]byte{0x01, 0x02})
	if err := s.CompleteTurn(context.Background()); err != nil {
		t.Fatalf("expected the recording to complete, got %v", err)
	}
	<-entered

	s.HardEnd()
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("expected a restart, got %v", err)
	}
	close(release)
	waitUntil(t, func() bool { return !s.IsProcessing() }, "the stale pipeline to drain")

	for _, turn := range s.Turns() {
		if turn.Content == "a stale transcription" {
			t.Fatalf("expected the stale transcription to be discarded")
		}
	}
	if s.Err() != nil {
		t.Fatalf("expected no surfaced error for superseded work, got %v", s.Err())
	}
}

func TestSpokenRepliesAreStrippedAndPlayed(t *testing.T) {
	playback := &playbackClientStub{}
	recorder := &eventRecorder{}
	var mu sync.Mutex
	var spoken string
	pcm := []byte{0x0a, 0x0b, 0x0c, 0x0d}
	s := New(
		WithDialogueClient(echoDialogue("**Noted.** What else---anything?")),
		WithPlaybackClient(playback),
		WithSynthesizer(&synthesizerStub{
			synthesize: func(_ context.Context, text string, _ ...speech.SynthesisOption) ([]byte, error) {
				mu.Lock()
				spoken = text
				mu.Unlock()
				return pcm, nil
			},
		}),
		WithEventCallback(recorder.record),
	)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("expected start to succeed, got %v", err)
	}
	s.mu.Lock()
	s.stepIndex = steps.FixedPrefixLength
	s.mu.Unlock()

	if err := s.SendText(context.Background(), "That covers it, really."); err != nil {
		t.Fatalf("expected the turn to be accepted, got %v", err)
	}
	// The intro is spoken too, so wait for the reply's own playback event.
	waitUntil(t, func() bool {
		return recorder.hasPlaybackEnded("Noted. What else-anything?")
	}, "the reply playback to finish")

	mu.Lock()
	defer mu.Unlock()
	if spoken != "Noted. What else-anything?" {
		t.Fatalf("expected the formatting stripped before synthesis, got %q", spoken)
	}

	playback.mu.Lock()
	defer playback.mu.Unlock()
	if len(playback.sent) == 0 || !bytes.Equal(playback.sent[len(playback.sent)-1], pcm) {
		t.Fatalf("expected the synthesized audio sent to playback")
	}
	if !recorder.has(events.KindPlaybackStarted) {
		t.Fatalf("expected a playback started event")
	}
}

type generatorStub struct {
	mu      sync.Mutex
	options speech.GeneratorOptions
	pcm     []byte
	sent    []string
	ended   bool
}

func (g *generatorStub) SendText(text string) error {
	g.mu.Lock()
	g.sent = append(g.sent, text)
	g.mu.Unlock()
	g.options.SpeechAudioCallback(g.pcm)
	return nil
}

func (g *generatorStub) EndOfText() error {
	g.mu.Lock()
	already := g.ended
	g.ended = true
	g.mu.Unlock()
	if !already {
		g.options.SpeechEndedCallback()
	}
	return nil
}

func (g *generatorStub) Cancel() error { return nil }
func (g *generatorStub) Close() error  { return nil }

func TestStreamedRepliesArePlayedAsChunksArrive(t *testing.T) {
	playback := &playbackClientStub{}
	recorder := &eventRecorder{}
	pcm := []byte{0x10, 0x20, 0x30}
	var mu sync.Mutex
	var generators []*generatorStub
	factory := func(_ context.Context, opts ...speech.GeneratorOption) (speech.Generator, error) {
		g := &generatorStub{pcm: pcm, options: speech.GeneratorOptions{
			SpeechAudioCallback: func([]byte) {},
			SpeechEndedCallback: func() {},
			ErrorCallback:       func(error) {},
		}}
		for _, opt := range opts {
			opt(&g.options)
		}
		mu.Lock()
		generators = append(generators, g)
		mu.Unlock()
		return g, nil
	}
	s := New(
		WithDialogueClient(echoDialogue("Stay with that for a moment.")),
		WithPlaybackClient(playback),
		WithSpeechGenerator(factory),
		WithEventCallback(recorder.record),
	)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("expected start to succeed, got %v", err)
	}
	s.mu.Lock()
	s.stepIndex = steps.FixedPrefixLength
	s.mu.Unlock()

	if err := s.SendText(context.Background(), "Honestly, the spring trip."); err != nil {
		t.Fatalf("expected the turn to be accepted, got %v", err)
	}
	// The intro streams too, so wait for the reply's own playback event.
	waitUntil(t, func() bool {
		return recorder.hasPlaybackEnded("Stay with that for a moment.")
	}, "the streamed reply to finish")

	playback.mu.Lock()
	if len(playback.sent) == 0 || !bytes.Equal(playback.sent[len(playback.sent)-1], pcm) {
		playback.mu.Unlock()
		t.Fatalf("expected the streamed audio queued on playback")
	}
	playback.mu.Unlock()

	mu.Lock()
	generator := generators[len(generators)-1]
	mu.Unlock()
	generator.mu.Lock()
	defer generator.mu.Unlock()
	if len(generator.sent) != 1 || generator.sent[0] != "Stay with that for a moment." {
		t.Fatalf("expected the reply streamed to the generator, got %v", generator.sent)
	}
	if !generator.ended {
		t.Fatalf("expected the text stream to be closed out")
	}
}

func TestNewUserTurnDiscardsTheSummary(t *testing.T) {
	s := New(WithDialogueClient(echoDialogue(`{"theme":"rest"}`)))
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("expected start to succeed, got %v", err)
	}
	s.transcript.append(dialogue.RoleUser, "A restful year.", 0)
	if err := s.EndAndSummarise(context.Background()); err != nil {
		t.Fatalf("expected the session to summarise, got %v", err)
	}
	if s.Summary() == nil {
		t.Fatalf("expected an action sheet")
	}

	// Reopen the conversation; the sheet no longer reflects the transcript.
	s.mu.Lock()
	s.setPhaseLocked(PhaseActive)
	s.mu.Unlock()
	before := s.transcript.len()
	if err := s.SendText(context.Background(), "Actually, one more thing."); err != nil {
		t.Fatalf("expected the turn to be accepted, got %v", err)
	}
	waitUntil(t, func() bool { return s.transcript.len() >= before+1 }, "the turn to be committed")

	if s.Summary() != nil {
		t.Fatalf("expected the stale action sheet discarded")
	}
}
