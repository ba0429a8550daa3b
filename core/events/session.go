// Package events defines the typed session event contract consumed by the
// rendering layer.
//
// Event kinds are grouped by receiver-facing namespaces:
//
//   - session.*  lifecycle transitions of the session state machine
//   - turn.*     transcript mutations and turn failures
//   - capture.*  microphone acquisition and release
//   - playback.* synthesized speech playback boundaries
package events

const (
	KindPhaseChanged    Kind = "session.phase_changed"
	KindSummaryReady    Kind = "session.summary_ready"
	KindTurnAppended    Kind = "turn.appended"
	KindTurnFailed      Kind = "turn.failed"
	KindCaptureStarted  Kind = "capture.started"
	KindCaptureStopped  Kind = "capture.stopped"
	KindPlaybackStarted Kind = "playback.started"
	KindPlaybackEnded   Kind = "playback.ended"
)

// PhaseChanged is emitted after every named transition of the state machine.
type PhaseChanged struct {
	Base
	From string
	To   string
}

func NewPhaseChanged(from, to string) PhaseChanged {
	return PhaseChanged{Base: NewBase(KindPhaseChanged), From: from, To: to}
}

// TurnAppended is emitted after a turn is committed to the transcript.
type TurnAppended struct {
	Base
	Role    string
	Content string
	Step    int
}

func NewTurnAppended(role, content string, step int) TurnAppended {
	return TurnAppended{Base: NewBase(KindTurnAppended), Role: role, Content: content, Step: step}
}

// TurnFailed carries the single user-visible message for a failed turn.
type TurnFailed struct {
	Base
	Message string
}

func NewTurnFailed(message string) TurnFailed {
	return TurnFailed{Base: NewBase(KindTurnFailed), Message: message}
}

// SummaryReady is emitted once a summary artifact has been produced.
type SummaryReady struct {
	Base
}

func NewSummaryReady() SummaryReady {
	return SummaryReady{Base: NewBase(KindSummaryReady)}
}

type CaptureStarted struct {
	Base
}

func NewCaptureStarted() CaptureStarted {
	return CaptureStarted{Base: NewBase(KindCaptureStarted)}
}

type CaptureStopped struct {
	Base
}

func NewCaptureStopped() CaptureStopped {
	return CaptureStopped{Base: NewBase(KindCaptureStopped)}
}

type PlaybackStarted struct {
	Base
}

func NewPlaybackStarted() PlaybackStarted {
	return PlaybackStarted{Base: NewBase(KindPlaybackStarted)}
}

// PlaybackEnded includes the text that was handed to the speech stage, which
// is what the player knows was spoken.
type PlaybackEnded struct {
	Base
	SpokenText string
}

func NewPlaybackEnded(spokenText string) PlaybackEnded {
	return PlaybackEnded{Base: NewBase(KindPlaybackEnded), SpokenText: spokenText}
}
