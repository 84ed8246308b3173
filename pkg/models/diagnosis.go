package models

// ConfidenceLevel is the qualitative band derived from the numeric overall
// confidence.
type ConfidenceLevel string

const (
	ConfidenceLow    ConfidenceLevel = "low"
	ConfidenceMedium ConfidenceLevel = "medium"
	ConfidenceHigh   ConfidenceLevel = "high"
)

// ConfidenceLevelFor derives the qualitative level from a numeric
// confidence: low < 0.5 <= medium < 0.7 <= high.
func ConfidenceLevelFor(confidence float64) ConfidenceLevel {
	switch {
	case confidence >= 0.7:
		return ConfidenceHigh
	case confidence >= 0.5:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// Status colors for a diagnosis report.
const (
	StatusColorRed    = "red"
	StatusColorYellow = "yellow"
	StatusColorBlue   = "blue"
)

// ReportStatus carries the report's severity presentation.
type ReportStatus struct {
	Color       string `json:"color"`
	Text        string `json:"text"`
	Instruction string `json:"instruction"`
}

// RankedCause is one entry in the ranked diagnosis list.
type RankedCause struct {
	Issue       string  `json:"issue"`
	Probability float64 `json:"probability"`
	Explanation string  `json:"explanation,omitempty"`
}

// RequesterSummary is the structured summary shown to the person who opened
// the fault request.
type RequesterSummary struct {
	Headline  string   `json:"headline"`
	NextSteps []string `json:"next_steps,omitempty"`
}

// TechnicianSummary is the structured hand-off for a receiving technician.
type TechnicianSummary struct {
	SuspectedCauses []string `json:"suspected_causes,omitempty"`
	Verified        []string `json:"verified,omitempty"`
	RuledOut        []string `json:"ruled_out,omitempty"`
	Answers         []string `json:"answers,omitempty"`
}

// DiagnosisReport is the terminal output of a diagnostic conversation.
// Every generator path, including all failure fallbacks, produces a
// structurally complete report.
type DiagnosisReport struct {
	Title           string             `json:"title"`
	Confidence      float64            `json:"confidence"`
	Level           ConfidenceLevel    `json:"level"`
	Causes          []RankedCause      `json:"causes"`
	Status          ReportStatus       `json:"status"`
	SelfFixSteps    []string           `json:"self_fix_steps,omitempty"`
	Recommendations []string           `json:"recommendations,omitempty"`
	Disclaimer      string             `json:"disclaimer"`
	Requester       *RequesterSummary  `json:"requester_summary,omitempty"`
	Technician      *TechnicianSummary `json:"technician_summary,omitempty"`
	Degraded        bool               `json:"degraded,omitempty"`
}
