package models

// StepKind discriminates the tagged outcome of one scenario walker step.
type StepKind string

const (
	StepQuestion StepKind = "question"
	StepSelfFix  StepKind = "self_fix"
	StepTerminal StepKind = "terminal"
)

// WalkStep is the walker's next action: a question to ask, a self-fix
// instruction to give, or a terminal ranked result.
type WalkStep struct {
	Kind StepKind `json:"kind"`

	// StepQuestion
	Question *Question `json:"question,omitempty"`
	// CauseID names the cause the question resolves; empty for a light's
	// initial question or a self-fix follow-up.
	CauseID string `json:"cause_id,omitempty"`

	// StepSelfFix
	SelfFix *SelfFixAction `json:"self_fix,omitempty"`

	// StepTerminal. Result may be empty for a scenario with no causes.
	Result  []RankedCause `json:"result,omitempty"`
	Message string        `json:"message,omitempty"`
}

// TurnResult is what one submitted turn produces for the caller: the new
// engine messages, the options to offer, the resulting status, and the
// terminal diagnosis when the conversation finished with one.
type TurnResult struct {
	Messages  []Message          `json:"messages"`
	Options   []QuestionOption   `json:"options,omitempty"`
	Status    ConversationStatus `json:"status"`
	Diagnosis *DiagnosisReport   `json:"diagnosis,omitempty"`
}
