package kb

import (
	"github.com/Intelligent-Repair/IntelligentRepair-sub001/pkg/models"
	"github.com/Intelligent-Repair/IntelligentRepair-sub001/pkg/textmatch"
)

// EvaluateSafety scans the text against the ordered safety rule table and
// returns the first rule with any non-negated keyword hit, or nil. The rule
// order defines priority. Safety evaluation is pure: it has no side effects
// and absence of a match is not an error.
func (k *KnowledgeBase) EvaluateSafety(text string) *models.SafetyRule {
	return k.evaluateSafetyTokens(textmatch.Normalize(text))
}

func (k *KnowledgeBase) evaluateSafetyTokens(tokens []string) *models.SafetyRule {
	for _, rule := range k.SafetyRules {
		for _, keyword := range rule.Keywords {
			if k.matcher.ContainsNonNegated(tokens, keyword) {
				return rule
			}
		}
	}
	return nil
}
