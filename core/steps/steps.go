// Package steps implements the interview outline policy: which topic the
// next assistant turn should pursue, and the caps that keep any one topic
// from dragging on.
//
// Everything here is a pure function of the step index and the shape of the
// transcript so far; nothing in this package holds state.
package steps

import (
	"fmt"
	"strings"

	"github.com/quietroom/reflect-core/core/dialogue"
)

const (
	// FixedPrefixLength is the number of opening turns answered from the
	// local prompt table instead of the dialogue service.
	FixedPrefixLength = 3
	// StepCount is the number of topic slots in the outline.
	StepCount = 12

	// depthCapThreshold is the message count within one step above which the
	// topic is forced closed.
	depthCapThreshold = 4
)

// Message is the transcript shape the policy needs: who spoke, and which
// step the turn belonged to when it was appended.
type Message struct {
	Role dialogue.Role
	Step int
}

// Directives are the per-turn notes appended to the system instruction sent
// to the dialogue service. Empty fields are omitted when rendering.
type Directives struct {
	Intent             string
	ShapeNote          string
	DepthCapNote       string
	TurnCapNote        string
	BannedPatternsNote string
}

// Render concatenates the non-empty notes into the instruction block.
func (d Directives) Render() string {
	notes := []string{}
	if d.Intent != "" {
		notes = append(notes, "Current step intent: "+d.Intent)
	}
	if d.ShapeNote != "" {
		notes = append(notes, "Response shape: "+d.ShapeNote)
	}
	if d.DepthCapNote != "" {
		notes = append(notes, d.DepthCapNote)
	}
	if d.TurnCapNote != "" {
		notes = append(notes, d.TurnCapNote)
	}
	if d.BannedPatternsNote != "" {
		notes = append(notes, d.BannedPatternsNote)
	}
	return strings.Join(notes, "\n")
}

// CapApplied reports whether either cap fired, i.e. whether the directives
// told the assistant to close out the current step.
func (d Directives) CapApplied() bool {
	return d.DepthCapNote != "" || d.TurnCapNote != ""
}

// Derive computes the directives for the next assistant turn from the step
// index and the transcript so far. Only user and assistant turns belong in
// history.
func Derive(stepIndex int, history []Message) Directives {
	directives := Directives{
		Intent:             intentFor(stepIndex),
		ShapeNote:          shapeFor(stepIndex),
		BannedPatternsNote: bannedPatternsNote,
	}

	// Only assistant turns after the step's first user message count as
	// follow-ups; nudge prompts delivered before the user answered do not.
	messagesInStep := 0
	assistantRepliesInStep := 0
	userSeen := false
	for _, msg := range history {
		if msg.Step != stepIndex {
			continue
		}
		messagesInStep++
		switch {
		case msg.Role == dialogue.RoleUser:
			userSeen = true
		case msg.Role == dialogue.RoleAssistant && userSeen:
			assistantRepliesInStep++
		}
	}

	if messagesInStep > depthCapThreshold {
		directives.DepthCapNote = "This topic has run long. Close it out in one sentence and move to the next step's question."
	}
	if assistantRepliesInStep >= 1 {
		directives.TurnCapNote = "You already followed up on this step once. Do not ask another follow-up; ask the next step's question instead."
	}

	return directives
}

const bannedPatternsNote = `Banned phrasings, never use: "How did that make you feel?"; "What did that give you?"; "protect your fun" or "strengthen your fun"; repeating the user's abstract word back as the whole reply; any therapy language or praise.`

var stepIntents = [StepCount]string{
	0:  "Overview: expected vs surprise this year. Ask for one concrete surprise moment.",
	1:  "Win: one thing that went well. Force a concrete scene.",
	2:  "Drain: one thing that didn't go as hoped or took more than expected. Keep it brief.",
	3:  "Favorite moment from that win: ask for scene details (where, who, what happened first).",
	4:  "Leverage: what conditions or actions caused that win. Avoid asking what it gave them.",
	5:  "Repeatability: what trade-off or scheduling will recreate it next year.",
	6:  "Happy memory: best meal, surprise, day, song, or quote. If they offer nothing, force a choice or the smallest pleasant moment.",
	7:  "Lessons: what they learned this year and why it held up.",
	8:  "Time: the most and least valuable uses of their time, and how to shift the balance.",
	9:  "People: who mattered most this year and how to invest more in them.",
	10: "Plan: what their 85-year-old self would want more or less of; habits to start or stop.",
	11: "Wrap: land on a theme, 1-3 commitments, one stop-doing, and one if/then rule, in their words.",
}

var stepShapes = [StepCount]string{
	0:  "One light opening question, recent and concrete. No year-level framing yet.",
	1:  "One win only, no scene-level detail yet.",
	2:  "One drain only. If they say 'all of it', force a specific week or domain.",
	3:  "Scene request: where, who, what happened first. One question.",
	4:  "Cause-hunting question about conditions or actions, not feelings.",
	5:  "Concrete scheduling or trade-off question, calendar-level specificity.",
	6:  "Memory anchor question with a forced choice if they stall.",
	7:  "One lesson at a time; ask why it held up, not how it felt.",
	8:  "Contrast question: high-value vs low-value time, pick one of each.",
	9:  "One person at a time; ask for the concrete way they mattered.",
	10: "Broad actionable question, future-looking, still answerable concretely.",
	11: "Closing question that lands commitments in the user's own words.",
}

// defaultShape covers step indices beyond the table, which can happen when
// the depth cap keeps advancing past the last outlined topic.
const (
	defaultIntent = "Continue the reflection naturally; follow what the user just said toward a close."
	defaultShape  = "One precise, concrete question; steer gently toward wrapping up."
)

func intentFor(stepIndex int) string {
	if stepIndex < 0 || stepIndex >= StepCount {
		return defaultIntent
	}
	return stepIntents[stepIndex]
}

func shapeFor(stepIndex int) string {
	if stepIndex < 0 || stepIndex >= StepCount {
		return defaultShape
	}
	return stepShapes[stepIndex]
}

func init() {
	for i := range StepCount {
		if stepIntents[i] == "" || stepShapes[i] == "" {
			panic(fmt.Sprintf("step table entry %d is empty", i))
		}
	}
}
