// Package kb holds the static diagnostic knowledge base: the ordered safety
// rule table, the warning light catalog with their scenario trees, and the
// symptom keyword mappings. The knowledge base is loaded and validated once
// at process start and is read-only afterwards, so it is safely shared by all
// concurrent conversations.
package kb

import (
	"github.com/Intelligent-Repair/IntelligentRepair-sub001/pkg/models"
	"github.com/Intelligent-Repair/IntelligentRepair-sub001/pkg/textmatch"
)

// KnowledgeBase is the immutable reference data for the diagnostic engine.
type KnowledgeBase struct {
	SafetyRules []*models.SafetyRule
	Lights      []*models.WarningLight
	Mappings    []*models.SymptomMapping

	rulesByID     map[string]*models.SafetyRule
	lightsByID    map[string]*models.WarningLight
	scenariosByID map[string]*models.Scenario
	scenarioLight map[string]*models.WarningLight

	lightReportTriggers []string
	matcher             *textmatch.Matcher
}

// Matcher returns the lexical matcher built from the loaded negation set.
func (k *KnowledgeBase) Matcher() *textmatch.Matcher {
	return k.matcher
}

// RuleByID returns the safety rule with the given ID, or nil.
func (k *KnowledgeBase) RuleByID(id string) *models.SafetyRule {
	return k.rulesByID[id]
}

// LightByID returns the warning light with the given ID, or nil.
func (k *KnowledgeBase) LightByID(id string) *models.WarningLight {
	return k.lightsByID[id]
}

// ScenarioByID returns the scenario with the given ID, or nil. Scenario IDs
// are globally unique across lights and standalone scenarios.
func (k *KnowledgeBase) ScenarioByID(id string) *models.Scenario {
	return k.scenariosByID[id]
}

// LightForScenario returns the light owning the scenario, or nil for a
// standalone scenario.
func (k *KnowledgeBase) LightForScenario(scenarioID string) *models.WarningLight {
	return k.scenarioLight[scenarioID]
}

// hasLightReportTrigger reports whether the tokens contain one of the fixed
// light-report trigger words, i.e. the user is describing an indicator
// rather than a generic symptom.
func (k *KnowledgeBase) hasLightReportTrigger(tokens []string) bool {
	for _, trigger := range k.lightReportTriggers {
		if textmatch.HasPhrase(tokens, trigger) {
			return true
		}
	}
	return false
}
