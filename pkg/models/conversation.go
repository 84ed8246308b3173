package models

// ConversationStatus is the orchestrator state machine position.
type ConversationStatus string

const (
	StatusIdle        ConversationStatus = "idle"
	StatusProcessing  ConversationStatus = "processing"
	StatusWaitingUser ConversationStatus = "waiting_user"
	StatusFinished    ConversationStatus = "finished"
	StatusError       ConversationStatus = "error"
)

// IsTerminal returns true for statuses that accept no further turns.
func (s ConversationStatus) IsTerminal() bool {
	return s == StatusFinished || s == StatusError
}

// SuspectStatus is the running belief for one cause.
type SuspectStatus string

const (
	SuspectOpen      SuspectStatus = "open"
	SuspectConfirmed SuspectStatus = "confirmed"
	SuspectRuledOut  SuspectStatus = "ruled_out"
)

// Suspect tracks the accumulated belief for a cause across turns.
type Suspect struct {
	CauseID     string        `json:"cause_id"`
	Status      SuspectStatus `json:"status"`
	Probability float64       `json:"probability"`
}

// ReportData accumulates findings for the final report. All lists are
// append-only sets keyed by cause or finding ID.
type ReportData struct {
	Verified         []string `json:"verified,omitempty"`
	RuledOut         []string `json:"ruled_out,omitempty"`
	Skipped          []string `json:"skipped,omitempty"`
	CriticalFindings []string `json:"critical_findings,omitempty"`
	Answers          []string `json:"answers,omitempty"`
}

func appendUnique(list []string, id string) []string {
	for _, v := range list {
		if v == id {
			return list
		}
	}
	return append(list, id)
}

// AddVerified records a verified finding.
func (r *ReportData) AddVerified(id string) { r.Verified = appendUnique(r.Verified, id) }

// AddRuledOut records a ruled-out cause.
func (r *ReportData) AddRuledOut(id string) { r.RuledOut = appendUnique(r.RuledOut, id) }

// AddSkipped records a skipped step.
func (r *ReportData) AddSkipped(id string) { r.Skipped = appendUnique(r.Skipped, id) }

// AddCritical records a critical finding.
func (r *ReportData) AddCritical(id string) { r.CriticalFindings = appendUnique(r.CriticalFindings, id) }

// AddAnswer records a raw question/answer pair for the technician summary.
func (r *ReportData) AddAnswer(entry string) { r.Answers = appendUnique(r.Answers, entry) }

// ConversationState is the mutable per-session context threaded through
// successive turns. It is owned exclusively by the orchestrator, mutated only
// by applying a turn's outcome, and never shared across conversations.
type ConversationState struct {
	CurrentLightID    string              `json:"current_light_id,omitempty"`
	CurrentScenarioID string              `json:"current_scenario_id,omitempty"`
	CurrentStepID     string              `json:"current_step_id,omitempty"`
	// Category is the symptom category that routed into the scenario, if any.
	Category   string              `json:"category,omitempty"`
	Suspects   map[string]*Suspect `json:"suspects,omitempty"`
	ReportData ReportData          `json:"report_data"`
	ReaskCount int                 `json:"reask_count,omitempty"`
}

// NewConversationState creates an empty conversation state.
func NewConversationState() *ConversationState {
	return &ConversationState{Suspects: make(map[string]*Suspect)}
}

// HasActiveScenario returns true when a scenario walk is in progress.
func (s *ConversationState) HasActiveScenario() bool {
	return s.CurrentScenarioID != "" || s.CurrentLightID != ""
}

// Suspect returns the belief entry for a cause, creating it as open with the
// given authored probability on first access.
func (s *ConversationState) Suspect(causeID string, probability float64) *Suspect {
	if s.Suspects == nil {
		s.Suspects = make(map[string]*Suspect)
	}
	if sus, ok := s.Suspects[causeID]; ok {
		return sus
	}
	sus := &Suspect{CauseID: causeID, Status: SuspectOpen, Probability: probability}
	s.Suspects[causeID] = sus
	return sus
}

// VehicleInfo describes the vehicle under diagnosis, embedded verbatim in
// generative prompts.
type VehicleInfo struct {
	Make  string `json:"make,omitempty"`
	Model string `json:"model,omitempty"`
	Year  int    `json:"year,omitempty"`
}
