package models

// RouteKind discriminates the tagged RouteResult variant returned by the
// knowledge base router.
type RouteKind string

const (
	RouteSafetyStop    RouteKind = "safety_stop"
	RouteWarningLight  RouteKind = "warning_light"
	RouteSymptomMatch  RouteKind = "symptom_match"
	RouteStartScenario RouteKind = "start_scenario"
	RouteConsultAI     RouteKind = "consult_ai"
)

// RouteResult is the routing decision for one user turn. Exactly the fields
// belonging to Kind are populated; the orchestrator dispatches on Kind with
// an exhaustive switch.
type RouteResult struct {
	Kind RouteKind `json:"kind"`

	// RouteSafetyStop
	Rule *SafetyRule `json:"rule,omitempty"`

	// RouteWarningLight
	LightID       string        `json:"light_id,omitempty"`
	LightSeverity LightSeverity `json:"light_severity,omitempty"`

	// RouteSymptomMatch
	Mapping  *SymptomMapping `json:"mapping,omitempty"`
	Category string          `json:"category,omitempty"`

	// RouteStartScenario
	ScenarioID string `json:"scenario_id,omitempty"`
}

// NewSafetyStopRoute creates a safety stop routing decision.
func NewSafetyStopRoute(rule *SafetyRule) RouteResult {
	return RouteResult{Kind: RouteSafetyStop, Rule: rule}
}

// NewWarningLightRoute creates a warning light routing decision.
func NewWarningLightRoute(lightID string, severity LightSeverity) RouteResult {
	return RouteResult{Kind: RouteWarningLight, LightID: lightID, LightSeverity: severity}
}

// NewSymptomMatchRoute creates a symptom match routing decision.
func NewSymptomMatchRoute(mapping *SymptomMapping, category string) RouteResult {
	return RouteResult{Kind: RouteSymptomMatch, Mapping: mapping, Category: category}
}

// NewConsultAIRoute creates a generative fallback routing decision.
func NewConsultAIRoute() RouteResult {
	return RouteResult{Kind: RouteConsultAI}
}
