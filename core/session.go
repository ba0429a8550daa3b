// Package session implements the reflection session orchestrator: an
// explicit state machine over a turn pipeline that records the user,
// transcribes the clip, asks the dialogue service for the next coaching
// turn, synthesizes it and plays it back, while advancing through the
// interview outline.
//
// The session is single-flight: at most one turn pipeline execution is
// active at any time, and every asynchronous stage result is checked
// against a generation counter before it is allowed to touch state.
package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/quietroom/reflect-core/core/dialogue"
	"github.com/quietroom/reflect-core/core/errdefs"
	"github.com/quietroom/reflect-core/core/events"
	"github.com/quietroom/reflect-core/core/speech"
	"github.com/quietroom/reflect-core/core/steps"
	"github.com/quietroom/reflect-core/core/summary"
	"github.com/quietroom/reflect-core/core/transcription"
)

type Phase string

const (
	PhaseIdle     Phase = "idle"
	PhaseActive   Phase = "active"
	PhasePaused   Phase = "paused"
	PhaseFinished Phase = "finished"
)

type Session struct {
	mu        sync.Mutex
	phase     Phase
	stepIndex int
	createdAt time.Time
	summary   *summary.Artifact
	lastError error

	transcript transcriptStore

	// processing is the single-flight guard: set while a turn pipeline run
	// is between its first stage and its cleanup.
	processing atomic.Bool
	// terminated is set synchronously on hard-end so stages resuming
	// afterwards discard their results instead of mutating state.
	terminated atomic.Bool

	cancellation cancellationManager
	pipeline     turnPipeline

	capture  *audioCapture
	playback *audioPlayback

	dialogueClient      dialogue.Client
	transcriptionClient transcription.Client
	synthesizer         speech.Synthesizer
	speechGenerator     speech.GeneratorFactory
	summaryRequester    *summary.Requester

	config  Config
	onEvent func(events.Event)

	closeOnce sync.Once
}

func New(opts ...Option) *Session {
	s := &Session{
		phase:  PhaseIdle,
		config: DefaultConfig(),
	}
	s.capture = newAudioCapture(nil)
	s.playback = newAudioPlayback(nil)
	s.pipeline = turnPipeline{session: s}

	for _, opt := range opts {
		opt(s)
	}

	if s.dialogueClient != nil {
		requesterOpts := []summary.RequesterOption{}
		if s.config.SummaryParams != nil {
			requesterOpts = append(requesterOpts, summary.WithParams(*s.config.SummaryParams))
		}
		s.summaryRequester = summary.NewRequester(s.dialogueClient, requesterOpts...)
	}

	return s
}

func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

func (s *Session) StepIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stepIndex
}

func (s *Session) CreatedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createdAt
}

// Turns returns a point-in-time snapshot of the transcript.
func (s *Session) Turns() []Turn {
	return s.transcript.snapshot()
}

// Summary returns the current action sheet, or nil if none has been
// produced (or it was discarded by a newer user turn).
func (s *Session) Summary() *summary.Artifact {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.summary
}

// Err returns the last surfaced turn failure, cleared on the next
// successful action.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastError
}

func (s *Session) IsProcessing() bool { return s.processing.Load() }
func (s *Session) IsRecording() bool  { return s.capture.IsCapturing() }

// Start begins a fresh session: transcript and step index reset, phase
// moves to active, and the introductory turn is spoken. Capture does not
// begin automatically.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.phase != PhaseIdle {
		s.mu.Unlock()
		return fmt.Errorf("cannot start session from %s phase", s.phase)
	}

	s.transcript.clear()
	s.stepIndex = 0
	s.createdAt = time.Now()
	s.summary = nil
	s.lastError = nil
	s.terminated.Store(false)
	s.setPhaseLocked(PhaseActive)
	s.mu.Unlock()

	intro := steps.Intro()
	turn := s.transcript.append(dialogue.RoleAssistant, intro, 0)
	s.emitEvent(events.NewTurnAppended(string(turn.Role), turn.Content, turn.Step))

	go s.pipeline.speak(ctx, intro)
	return nil
}

// Pause stops any in-flight capture but leaves committed dialogue and
// speech work running.
func (s *Session) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseActive {
		return fmt.Errorf("cannot pause session from %s phase", s.phase)
	}

	s.capture.Abort()
	s.setPhaseLocked(PhasePaused)
	return nil
}

func (s *Session) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhasePaused {
		return fmt.Errorf("cannot resume session from %s phase", s.phase)
	}

	s.setPhaseLocked(PhaseActive)
	return nil
}

// EndAndSummarise finishes the session and requests the action sheet.
// A summarization failure leaves the session finished; Summarise can be
// called again to retry.
func (s *Session) EndAndSummarise(ctx context.Context) error {
	s.mu.Lock()
	if s.phase != PhaseActive && s.phase != PhasePaused {
		s.mu.Unlock()
		return fmt.Errorf("cannot end session from %s phase", s.phase)
	}

	s.capture.Abort()
	s.setPhaseLocked(PhaseFinished)
	s.mu.Unlock()

	_ = s.playback.Stop()
	return s.Summarise(ctx)
}

// Summarise produces (or re-produces) the action sheet for a finished
// session. The previous artifact, if any, is replaced wholesale.
func (s *Session) Summarise(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "summarise session")
	defer span.End()

	s.mu.Lock()
	if s.phase != PhaseFinished {
		s.mu.Unlock()
		return fmt.Errorf("cannot summarise session from %s phase", s.phase)
	}
	s.mu.Unlock()

	if s.summaryRequester == nil {
		err := &errdefs.ConfigurationError{Service: "summary", Missing: []string{"dialogue client"}}
		s.setError(err)
		return err
	}

	generation := s.cancellation.begin(stageSummarise)
	ctx, cancel := context.WithCancel(ctx)
	s.cancellation.register(stageSummarise, cancel)
	defer func() {
		cancel()
		s.cancellation.release(stageSummarise)
	}()

	artifact, err := s.summaryRequester.Request(ctx, s.transcript.dialogueTurns())
	if !s.cancellation.isCurrent(stageSummarise, generation) {
		return errdefs.ErrSuperseded
	}
	if err != nil {
		if !errdefs.IsCancellation(err) {
			s.setError(err)
		}
		return err
	}

	s.mu.Lock()
	if s.terminated.Load() || s.phase != PhaseFinished {
		s.mu.Unlock()
		return errdefs.ErrSuperseded
	}
	s.summary = artifact
	s.lastError = nil
	s.mu.Unlock()
	s.emitEvent(events.NewSummaryReady())
	return nil
}

// HardEnd is the termination safety valve: reachable from every phase,
// including mid-pipeline. It cancels all in-flight stages, releases the
// microphone, and resets the session to idle with nothing retained.
func (s *Session) HardEnd() {
	s.terminated.Store(true)
	s.cancellation.stopAll()
	s.capture.Abort()
	_ = s.playback.Stop()

	s.mu.Lock()
	s.transcript.clear()
	s.stepIndex = 0
	s.summary = nil
	s.lastError = nil
	s.setPhaseLocked(PhaseIdle)
	s.mu.Unlock()
}

// BeginTurn acquires the microphone and starts buffering a recording. It is
// a no-op unless the session is active and no turn is already in flight.
func (s *Session) BeginTurn(ctx context.Context) error {
	s.mu.Lock()
	if s.phase != PhaseActive {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	if s.processing.Load() || s.capture.IsCapturing() {
		return nil
	}

	if err := s.capture.Begin(ctx); err != nil {
		s.setError(err)
		return err
	}
	s.emitEvent(events.NewCaptureStarted())
	return nil
}

// CompleteTurn stops the recording and runs the turn pipeline on the
// captured clip. It is a no-op if nothing is being captured.
func (s *Session) CompleteTurn(ctx context.Context) error {
	if !s.capture.IsCapturing() {
		return nil
	}

	blob, err := s.capture.End()
	s.emitEvent(events.NewCaptureStopped())
	if err != nil {
		s.setError(err)
		return err
	}

	if !s.processing.CompareAndSwap(false, true) {
		return nil
	}
	go func() {
		defer s.processing.Store(false)
		s.pipeline.processAudio(ctx, blob)
	}()
	return nil
}

// SendText runs the turn pipeline on typed input instead of a recording.
func (s *Session) SendText(ctx context.Context, text string) error {
	s.mu.Lock()
	if s.phase != PhaseActive {
		s.mu.Unlock()
		return fmt.Errorf("cannot send text from %s phase", s.phase)
	}
	s.mu.Unlock()

	if maxChars := s.config.MaxManualInputChars; maxChars > 0 {
		runes := []rune(text)
		if len(runes) > maxChars {
			text = string(runes[:maxChars])
		}
	}

	if !s.processing.CompareAndSwap(false, true) {
		return nil
	}
	go func() {
		defer s.processing.Store(false)
		s.pipeline.processText(ctx, text)
	}()
	return nil
}

func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.HardEnd()
		if err := s.capture.Close(); err != nil {
			logger.Error("failed to close capture client", "error", err)
		}
		if err := s.playback.Close(); err != nil {
			logger.Error("failed to close playback client", "error", err)
		}
	})
	return nil
}

// setPhaseLocked transitions the phase and emits the change. Callers hold mu.
func (s *Session) setPhaseLocked(to Phase) {
	from := s.phase
	if from == to {
		return
	}
	s.phase = to
	s.emitEvent(events.NewPhaseChanged(string(from), string(to)))
}

func (s *Session) setError(err error) {
	s.mu.Lock()
	s.lastError = err
	s.mu.Unlock()
	s.emitEvent(events.NewTurnFailed(err.Error()))
}

func (s *Session) emitEvent(event events.Event) {
	if s.onEvent != nil {
		s.onEvent(event)
	}
}
