package session

import (
	"context"
	"strings"

	"github.com/quietroom/reflect-core/core/dialogue"
	"github.com/quietroom/reflect-core/core/errdefs"
	"github.com/quietroom/reflect-core/core/events"
	"github.com/quietroom/reflect-core/core/prompts"
	"github.com/quietroom/reflect-core/core/speech"
	"github.com/quietroom/reflect-core/core/steps"
	"github.com/quietroom/reflect-core/core/transcription"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// turnPipeline sequences one full turn: audio, text, assistant reply,
// speech, playback. Every asynchronous stage captures a generation on entry
// and re-checks it before committing, so superseded work drops its result
// instead of mutating state. Cancellations are silent; only genuine
// failures surface an error.
type turnPipeline struct {
	session *Session
}

// processAudio runs the pipeline from a captured audio clip.
func (p *turnPipeline) processAudio(ctx context.Context, clip []byte) {
	ctx, span := tracer.Start(ctx, "process audio turn")
	defer span.End()

	s := p.session
	if s.terminated.Load() {
		return
	}

	text, err := p.transcribe(ctx, clip)
	if err != nil {
		if !errdefs.IsCancellation(err) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			s.setError(err)
		}
		return
	}

	p.handleUserText(ctx, text)
}

// processText runs the pipeline from typed input, skipping the capture and
// transcription stages.
func (p *turnPipeline) processText(ctx context.Context, text string) {
	ctx, span := tracer.Start(ctx, "process text turn")
	defer span.End()

	p.handleUserText(ctx, text)
}

func (p *turnPipeline) transcribe(ctx context.Context, clip []byte) (string, error) {
	s := p.session
	if s.transcriptionClient == nil {
		return "", &errdefs.ConfigurationError{Service: "transcription", Missing: []string{"client"}}
	}

	generation := s.cancellation.begin(stageTranscribe)
	ctx, cancel := context.WithCancel(ctx)
	s.cancellation.register(stageTranscribe, cancel)
	defer func() {
		cancel()
		s.cancellation.release(stageTranscribe)
	}()

	text, err := s.transcriptionClient.Transcribe(ctx, clip,
		transcription.WithLanguage(s.config.Language))
	if !s.cancellation.isCurrent(stageTranscribe, generation) {
		return "", errdefs.ErrSuperseded
	}
	if err != nil {
		return "", err
	}
	return text, nil
}

// handleUserText is the shared tail of both entry points: script check,
// escape check, transcript append, step progression, dialogue and spoken
// delivery.
func (p *turnPipeline) handleUserText(ctx context.Context, text string) {
	s := p.session
	if s.terminated.Load() || s.Phase() != PhaseActive {
		return
	}

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		p.deliverAssistant(ctx, steps.RetryPrompt(), s.StepIndex())
		return
	}

	// A garbled transcription is rejected before anything else reads it; a
	// recognizer misfire must not be able to end the session.
	if mostlyUnexpectedScript(trimmed, s.config.Script) {
		logger.WarnContext(ctx, "transcription rejected, unexpected script", "length", len(trimmed))
		p.deliverAssistant(ctx, steps.MismatchPrompt(), s.StepIndex())
		return
	}

	if steps.IsEscapePhrase(trimmed) {
		logger.InfoContext(ctx, "escape phrase detected, ending session")
		s.HardEnd()
		return
	}

	s.mu.Lock()
	stepIndex := s.stepIndex
	s.summary = nil
	s.lastError = nil
	s.mu.Unlock()

	turn := s.transcript.append(dialogue.RoleUser, trimmed, stepIndex)
	s.emitEvent(events.NewTurnAppended(string(turn.Role), turn.Content, turn.Step))

	// The opening turns are answered from the fixed prompt table, no
	// dialogue service involved.
	if prompt, ok := steps.FixedPrompt(stepIndex); ok {
		s.mu.Lock()
		s.stepIndex = stepIndex + 1
		s.mu.Unlock()
		p.deliverAssistant(ctx, prompt, stepIndex)
		return
	}

	reply, capApplied, err := p.converse(ctx, stepIndex)
	if err != nil {
		if !errdefs.IsCancellation(err) {
			s.setError(err)
		}
		return
	}

	if capApplied {
		s.mu.Lock()
		if s.stepIndex == stepIndex {
			s.stepIndex = stepIndex + 1
		}
		s.mu.Unlock()
	}

	p.deliverAssistant(ctx, reply, stepIndex)
}

// converse asks the dialogue service for the next coaching turn, with the
// step directives appended to the system instruction. It reports whether
// the directives told the assistant to close out the current step, which
// is when the step index advances.
func (p *turnPipeline) converse(ctx context.Context, stepIndex int) (string, bool, error) {
	ctx, span := tracer.Start(ctx, "converse")
	defer span.End()

	s := p.session
	if s.dialogueClient == nil {
		return "", false, &errdefs.ConfigurationError{Service: "dialogue", Missing: []string{"client"}}
	}

	directives := steps.Derive(stepIndex, s.transcript.stepMessages())
	instructions := prompts.Coach() + "\n\n" + directives.Render()

	span.SetAttributes(attribute.Int("turn.step", stepIndex))
	span.SetAttributes(attribute.Bool("turn.cap_applied", directives.CapApplied()))

	generation := s.cancellation.begin(stageConverse)
	ctx, cancel := context.WithCancel(ctx)
	s.cancellation.register(stageConverse, cancel)
	defer func() {
		cancel()
		s.cancellation.release(stageConverse)
	}()

	reply, err := s.dialogueClient.Complete(ctx, s.transcript.dialogueTurns(),
		dialogue.WithInstructions(instructions),
		dialogue.WithParams(s.config.DialogueParams),
	)
	if !s.cancellation.isCurrent(stageConverse, generation) {
		return "", false, errdefs.ErrSuperseded
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", false, err
	}

	return reply, directives.CapApplied(), nil
}

// deliverAssistant commits the assistant turn and speaks it. The turn is
// tagged with the step it answered, not the step the session may have
// advanced to, so the per-step caps see every step open with its user turn.
func (p *turnPipeline) deliverAssistant(ctx context.Context, text string, stepIndex int) {
	s := p.session
	if s.terminated.Load() {
		return
	}

	turn := s.transcript.append(dialogue.RoleAssistant, text, stepIndex)
	s.emitEvent(events.NewTurnAppended(string(turn.Role), turn.Content, turn.Step))

	p.speak(ctx, text)
}

// speak renders the text as audio and plays it, streamed when a generator
// is configured. Without a synthesis backend the session runs text-only and
// this is a no-op.
func (p *turnPipeline) speak(ctx context.Context, text string) {
	s := p.session
	if (s.synthesizer == nil && s.speechGenerator == nil) || s.terminated.Load() {
		return
	}

	spoken := clipForSpeech(stripFormatting(text), s.config.MaxSpokenChars)
	if spoken == "" {
		return
	}

	if s.speechGenerator != nil && s.playback.IsConfigured() {
		p.speakStreamed(ctx, spoken)
		return
	}
	if s.synthesizer != nil {
		p.speakOneShot(ctx, spoken)
	}
}

// speakOneShot renders the whole reply in a single synthesis call and plays
// the returned clip.
func (p *turnPipeline) speakOneShot(ctx context.Context, spoken string) {
	s := p.session

	ctx, span := tracer.Start(ctx, "speak")
	defer span.End()

	generation := s.cancellation.begin(stageSpeak)
	ctx, cancel := context.WithCancel(ctx)
	s.cancellation.register(stageSpeak, cancel)
	defer func() {
		cancel()
		s.cancellation.release(stageSpeak)
	}()

	audioData, err := s.synthesizer.Synthesize(ctx, spoken)
	if !s.cancellation.isCurrent(stageSpeak, generation) {
		return
	}
	if err != nil {
		if !errdefs.IsCancellation(err) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			s.setError(err)
		}
		return
	}

	s.emitEvent(events.NewPlaybackStarted())
	if err := s.playback.Play(ctx, audioData); err != nil {
		if !errdefs.IsCancellation(err) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			s.setError(err)
		}
		return
	}
	if !s.cancellation.isCurrent(stageSpeak, generation) {
		return
	}
	s.emitEvent(events.NewPlaybackEnded(spoken))
}

// speakStreamed feeds the reply through a streaming synthesis session and
// queues audio for playback chunk by chunk as it arrives.
func (p *turnPipeline) speakStreamed(ctx context.Context, spoken string) {
	s := p.session

	ctx, span := tracer.Start(ctx, "speak streamed")
	defer span.End()

	generation := s.cancellation.begin(stageSpeak)
	ctx, cancel := context.WithCancel(ctx)

	done := make(chan error, 1)
	finish := func(err error) {
		select {
		case done <- err:
		default:
		}
	}

	generator, err := s.speechGenerator(ctx,
		speech.WithSpeechAudioCallback(func(audio []byte) {
			if !s.cancellation.isCurrent(stageSpeak, generation) {
				return
			}
			if err := s.playback.Send(audio); err != nil {
				finish(err)
			}
		}),
		speech.WithSpeechEndedCallback(func() { finish(nil) }),
		speech.WithErrorCallback(finish),
	)
	if err != nil {
		cancel()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.setError(err)
		return
	}
	s.cancellation.register(stageSpeak, func() {
		cancel()
		_ = generator.Cancel()
	})
	defer func() {
		cancel()
		_ = generator.Close()
		s.cancellation.release(stageSpeak)
	}()

	s.emitEvent(events.NewPlaybackStarted())
	err = generator.SendText(spoken)
	if err == nil {
		err = generator.EndOfText()
	}
	if err != nil {
		if s.cancellation.isCurrent(stageSpeak, generation) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			s.setError(err)
		}
		return
	}

	select {
	case err := <-done:
		if err != nil {
			if !errdefs.IsCancellation(err) && s.cancellation.isCurrent(stageSpeak, generation) {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				s.setError(err)
			}
			return
		}
	case <-ctx.Done():
		_ = s.playback.Stop()
		return
	}

	// All speech has been generated; wait for the queue to play out.
	if err := s.playback.Drain(ctx); err != nil {
		return
	}
	if !s.cancellation.isCurrent(stageSpeak, generation) {
		return
	}
	s.emitEvent(events.NewPlaybackEnded(spoken))
}
