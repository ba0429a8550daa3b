package steps

// The first few assistant turns come from this table instead of the dialogue
// service: deterministic, zero-latency openers for the part of the session
// where users drop off the most.

const intro = "Hey. This is your space to look back at the year, no pressure and no right answers. When you're ready, just say hi or tell me anything at all."

var fixedPrompts = [FixedPrefixLength]string{
	0: "Let's ease in. Thinking back over the year, did it turn out roughly how you expected, or did it surprise you?",
	1: "Looking back now, what's one thing that genuinely went well this year?",
	2: "And what's one thing that didn't go the way you hoped, or took more out of you than expected?",
}

// Intro is the assistant turn emitted when a session starts.
func Intro() string {
	return intro
}

// FixedPrompt returns the locally authored reply for the given step, and
// whether the step is still within the fixed prefix.
func FixedPrompt(stepIndex int) (string, bool) {
	if stepIndex < 0 || stepIndex >= FixedPrefixLength {
		return "", false
	}
	return fixedPrompts[stepIndex], true
}

// RetryPrompt is spoken when a recording produced no usable words.
func RetryPrompt() string {
	return "I didn't catch much there. Share one quick moment from this year that stands out."
}

// MismatchPrompt is spoken when a transcription comes back mostly in an
// unexpected script, which usually means the recognizer misfired.
func MismatchPrompt() string {
	return "That came through garbled on my end. Mind saying it again, a little slower?"
}
