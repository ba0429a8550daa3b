package prompts

import "fmt"

const summaryRules = `You are an expert facilitator creating a crisp one-page review action sheet.
Given a conversation transcript between a user and a coach, produce JSON only, conforming to the schema below.

Rules:
- Use the user's concrete nouns and phrases (places, people, events) as evidence hooks. Avoid generic statements.
- Keep it concise; avoid duplication.
- Commitments must be action-ready and map to levers discovered in the transcript:
  - title: short, concrete
  - why: one sentence tied to a lever or pattern from the transcript
  - first_step: doable in under 15 minutes
  - cadence: calendar-ready and specific (e.g. "Sun 6pm weekly review", not just "weekly")
- Include 3-5 commitments if possible (else fewer).
- If/then rules: at least 3 if the data exists; each must trigger on a real pattern from the transcript.
- Theme: not generic; must reference at least one specific element from the transcript.
- Do not include nulls; return valid JSON with all keys present; arrays may be empty.
- No extra commentary or markdown.`

// Summary builds the summarization instruction around the JSON schema the
// response must conform to.
func Summary(schemaJSON string) string {
	return fmt.Sprintf("%s\n\nJSON schema:\n%s", summaryRules, schemaJSON)
}
