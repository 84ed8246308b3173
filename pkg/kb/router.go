package kb

import (
	"github.com/Intelligent-Repair/IntelligentRepair-sub001/pkg/models"
	"github.com/Intelligent-Repair/IntelligentRepair-sub001/pkg/textmatch"
)

// Route resolves a free-text user turn to a routing decision. The ordering
// is a deliberate precedence policy: safety stop > explicit light name >
// mapped symptom or light report > generative fallback.
func (k *KnowledgeBase) Route(text string) models.RouteResult {
	tokens := textmatch.Normalize(text)

	// 1. Safety rules always preempt knowledge-base and AI routing.
	if rule := k.evaluateSafetyTokens(tokens); rule != nil {
		return models.NewSafetyStopRoute(rule)
	}

	// 2. Explicit light names, in catalog order; first hit wins.
	for _, light := range k.Lights {
		for _, name := range light.Names {
			if k.matcher.ContainsNonNegated(tokens, name) {
				return models.NewWarningLightRoute(light.ID, models.NormalizeLightSeverity(light.Severity))
			}
		}
	}

	// 3. Symptom mappings, scanned in table order; first keyword hit decides.
	for _, m := range k.Mappings {
		if !k.mappingHit(tokens, m) {
			continue
		}
		switch m.Type {
		case models.MappingScenario:
			// Scenario-tagged symptoms branch too open-endedly for a static
			// tree; they are deferred to the generative fallback.
			return models.NewConsultAIRoute()
		case models.MappingSafety:
			return models.NewSafetyStopRoute(k.rulesByID[m.TargetID])
		case models.MappingSymptom:
			return models.NewSymptomMatchRoute(m, m.Category)
		case models.MappingLight:
			// Only treat the hit as a light report when the text actually
			// says an indicator is involved.
			if k.hasLightReportTrigger(tokens) {
				light := k.lightsByID[m.TargetID]
				return models.NewWarningLightRoute(light.ID, models.NormalizeLightSeverity(light.Severity))
			}
			return models.NewConsultAIRoute()
		}
	}

	// 4. Nothing matched.
	return models.NewConsultAIRoute()
}

func (k *KnowledgeBase) mappingHit(tokens []string, m *models.SymptomMapping) bool {
	for _, keyword := range m.Keywords {
		if k.matcher.ContainsNonNegated(tokens, keyword) {
			return true
		}
	}
	return false
}
