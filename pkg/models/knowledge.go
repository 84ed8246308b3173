package models

// ============================================================================
// Knowledge Base Entities
// ============================================================================
//
// All knowledge base entities are immutable reference data: they are loaded
// once at process start, validated, and never mutated at runtime. They are
// safely shared by all concurrent conversations.

// SafetySeverity classifies a safety rule.
type SafetySeverity string

const (
	SafetyCritical SafetySeverity = "critical"
	SafetyWarning  SafetySeverity = "warning"
)

// SafetyRule is a keyword-triggered policy that can halt or redirect a
// diagnostic conversation. Rules are evaluated in declaration order; the
// first rule with a non-negated keyword hit wins.
type SafetyRule struct {
	ID              string         `yaml:"id" json:"id"`
	Keywords        []string       `yaml:"keywords" json:"keywords"`
	Severity        SafetySeverity `yaml:"severity" json:"severity"`
	Message         string         `yaml:"message" json:"message"`
	EndConversation bool           `yaml:"end_conversation" json:"end_conversation"`
	NextScenarioID  string         `yaml:"next_scenario_id,omitempty" json:"next_scenario_id,omitempty"`
	FollowUpMessage string         `yaml:"follow_up_message,omitempty" json:"follow_up_message,omitempty"`
}

// LightSeverity is the normalized severity of a warning light.
type LightSeverity string

const (
	LightSeverityDanger  LightSeverity = "danger"
	LightSeverityCaution LightSeverity = "caution"
)

// NormalizeLightSeverity maps author-supplied severity strings to the two
// normalized levels. Unknown severities default to caution.
func NormalizeLightSeverity(s string) LightSeverity {
	switch s {
	case "danger", "critical", "red":
		return LightSeverityDanger
	default:
		return LightSeverityCaution
	}
}

// QuestionOption is one enumerated answer to a question. For a warning
// light's initial question, ScenarioID names the scenario the answer selects;
// when empty, the option ID doubles as the scenario ID.
type QuestionOption struct {
	ID         string `yaml:"id" json:"id"`
	Label      string `yaml:"label" json:"label"`
	ScenarioID string `yaml:"scenario_id,omitempty" json:"scenario_id,omitempty"`
}

// Question is a user-facing question with enumerated options.
type Question struct {
	Text    string           `yaml:"text" json:"text"`
	Options []QuestionOption `yaml:"options,omitempty" json:"options,omitempty"`
}

// AnswerEffect is the author-declared effect of a key-question answer on the
// belief for its cause.
type AnswerEffect string

const (
	EffectConfirm AnswerEffect = "confirm"
	EffectRuleOut AnswerEffect = "rule_out"
	EffectNone    AnswerEffect = "none"
)

// KeyAnswer is one enumerated answer to a key-question together with its
// declared effect.
type KeyAnswer struct {
	ID     string       `yaml:"id" json:"id"`
	Label  string       `yaml:"label" json:"label"`
	Effect AnswerEffect `yaml:"effect" json:"effect"`
}

// KeyQuestion is the question that resolves belief in a single cause.
type KeyQuestion struct {
	Text    string      `yaml:"text" json:"text"`
	Answers []KeyAnswer `yaml:"answers" json:"answers"`
}

// Effect returns the declared effect for the given answer ID. Unknown
// answers are treated as no-ops.
func (q *KeyQuestion) Effect(answerID string) AnswerEffect {
	for _, a := range q.Answers {
		if a.ID == answerID {
			return a.Effect
		}
	}
	return EffectNone
}

// Options converts the key-question answers into plain question options for
// presentation.
func (q *KeyQuestion) Options() []QuestionOption {
	opts := make([]QuestionOption, len(q.Answers))
	for i, a := range q.Answers {
		opts[i] = QuestionOption{ID: a.ID, Label: a.Label}
	}
	return opts
}

// Cause is one candidate explanation for an observed fault. Probability is a
// relative confidence score in [0,1]; causes within a scenario need not sum
// to 1.
type Cause struct {
	ID          string       `yaml:"id" json:"id"`
	Name        string       `yaml:"name" json:"name"`
	Probability float64      `yaml:"probability" json:"probability"`
	KeyQuestion *KeyQuestion `yaml:"key_question,omitempty" json:"key_question,omitempty"`
}

// SelfFixAction is a driver-performable check or fix. When FollowUp is set,
// its question is asked after the instruction, before moving to the next
// cause.
type SelfFixAction struct {
	ID          string    `yaml:"id" json:"id"`
	Instruction string    `yaml:"instruction" json:"instruction"`
	FollowUp    *Question `yaml:"follow_up,omitempty" json:"follow_up,omitempty"`
}

// Scenario is a named branch of the knowledge base describing one family of
// root causes for a light or symptom, with a decision tree of key-questions.
type Scenario struct {
	ID             string          `yaml:"id" json:"id"`
	Severity       string          `yaml:"severity,omitempty" json:"severity,omitempty"`
	Description    string          `yaml:"description,omitempty" json:"description,omitempty"`
	Causes         []Cause         `yaml:"causes,omitempty" json:"causes,omitempty"`
	SelfFixActions []SelfFixAction `yaml:"self_fix_actions,omitempty" json:"self_fix_actions,omitempty"`
}

// CauseByID returns the cause with the given ID, or nil.
func (s *Scenario) CauseByID(id string) *Cause {
	for i := range s.Causes {
		if s.Causes[i].ID == id {
			return &s.Causes[i]
		}
	}
	return nil
}

// WarningLight is a dashboard indicator known to the knowledge base.
// Names holds the localized display names matched against user text.
// Hybrid marks lights whose follow-up questions come from the knowledge base
// but whose final diagnosis is produced by the generative fallback.
type WarningLight struct {
	ID              string               `yaml:"id" json:"id"`
	Names           []string             `yaml:"names" json:"names"`
	Severity        string               `yaml:"severity" json:"severity"`
	Description     string               `yaml:"description,omitempty" json:"description,omitempty"`
	Hybrid          bool                 `yaml:"hybrid,omitempty" json:"hybrid,omitempty"`
	InitialQuestion Question             `yaml:"question" json:"question"`
	Scenarios       map[string]*Scenario `yaml:"scenarios,omitempty" json:"scenarios,omitempty"`
}

// MappingType classifies what a symptom mapping points at.
type MappingType string

const (
	MappingScenario MappingType = "scenario"
	MappingSafety   MappingType = "safety"
	MappingSymptom  MappingType = "symptom"
	MappingLight    MappingType = "light"
)

// SymptomMapping routes a keyword group to a scenario, safety rule, symptom
// family, or warning light. Mappings are scanned in declaration order; the
// first non-negated keyword hit wins.
type SymptomMapping struct {
	ID       string      `yaml:"id" json:"id"`
	Keywords []string    `yaml:"keywords" json:"keywords"`
	Type     MappingType `yaml:"type" json:"type"`
	TargetID string      `yaml:"target_id" json:"target_id"`
	Category string      `yaml:"category,omitempty" json:"category,omitempty"`
}
