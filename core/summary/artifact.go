package summary

// Artifact is the one-page action sheet produced at session end. All keys
// are always present; arrays may be empty.
type Artifact struct {
	YearSentence     string       `json:"year_sentence"`
	Wins             []string     `json:"wins"`
	Drains           []string     `json:"drains"`
	Theme            string       `json:"theme"`
	TopLessons       []string     `json:"top_lessons"`
	Commitments      []Commitment `json:"commitments"`
	StopDoing        []string     `json:"stop_doing"`
	IfThenRules      []string     `json:"if_then_rules"`
	PeopleToInvestIn []string     `json:"people_to_invest_in"`
	ClosingNote      string       `json:"closing_note"`
}

// Commitment is one action-ready item on the sheet.
type Commitment struct {
	Title     string `json:"title"`
	Why       string `json:"why"`
	FirstStep string `json:"first_step"`
	Cadence   string `json:"cadence"`
}
