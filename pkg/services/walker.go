// Package services contains the diagnostic engine: the scenario walker, the
// hybrid diagnosis generator, and the conversation orchestrator.
package services

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Intelligent-Repair/IntelligentRepair-sub001/pkg/apperrors"
	"github.com/Intelligent-Repair/IntelligentRepair-sub001/pkg/kb"
	"github.com/Intelligent-Repair/IntelligentRepair-sub001/pkg/models"
)

// Step IDs record the walker's position inside a scenario. They are opaque to
// everything except the walker itself.
const (
	stepInitial     = "initial"
	stepCausePrefix = "cause:"
	stepFixPrefix   = "fix:"
)

// Belief adjustments applied by key-question answers. A confirmed cause is
// never reported as certain.
const (
	confirmBoost   = 0.3
	confirmCeiling = 0.95
)

// Walker advances a conversation through a scenario's decision tree: the
// light's initial question, one key-question per cause in authoring order,
// the self-fix actions, and finally a ranked terminal result. The walker
// mutates only the ConversationState it is handed; the knowledge base stays
// read-only.
type Walker struct {
	kb *kb.KnowledgeBase
}

// NewWalker creates a walker over the given knowledge base.
func NewWalker(knowledge *kb.KnowledgeBase) *Walker {
	return &Walker{kb: knowledge}
}

// StartLight activates a warning light flow. The first step is always the
// light's initial question, whose answer selects the scenario.
func (w *Walker) StartLight(state *models.ConversationState, lightID string) (*models.WalkStep, error) {
	light := w.kb.LightByID(lightID)
	if light == nil {
		return nil, fmt.Errorf("light %q: %w", lightID, apperrors.ErrNotFound)
	}

	state.CurrentLightID = light.ID
	state.CurrentScenarioID = ""
	state.CurrentStepID = stepInitial

	q := light.InitialQuestion
	return &models.WalkStep{Kind: models.StepQuestion, Question: &q}, nil
}

// StartScenario activates a scenario directly, as symptom mappings and safety
// redirects do. All causes are seeded as open suspects with their authored
// priors, so causes without key-questions still carry weight in the ranking.
func (w *Walker) StartScenario(state *models.ConversationState, scenarioID string) (*models.WalkStep, error) {
	sc := w.kb.ScenarioByID(scenarioID)
	if sc == nil {
		return nil, fmt.Errorf("scenario %q: %w", scenarioID, apperrors.ErrUnknownScenario)
	}

	state.CurrentScenarioID = sc.ID
	if light := w.kb.LightForScenario(sc.ID); light != nil {
		state.CurrentLightID = light.ID
	}
	for _, c := range sc.Causes {
		state.Suspect(c.ID, c.Probability)
	}

	return w.stepAfter(state, sc, ""), nil
}

// Advance applies the user's answer to the current step and returns the next
// one. Unknown answers to a light's initial question re-present the question;
// unknown answers to a key-question are declared no-ops and the walk moves on.
func (w *Walker) Advance(state *models.ConversationState, answerID string) (*models.WalkStep, error) {
	stepID := state.CurrentStepID

	if stepID == stepInitial {
		return w.advanceInitial(state, answerID)
	}

	sc := w.kb.ScenarioByID(state.CurrentScenarioID)
	if sc == nil {
		return nil, fmt.Errorf("scenario %q: %w", state.CurrentScenarioID, apperrors.ErrUnknownScenario)
	}

	switch {
	case strings.HasPrefix(stepID, stepCausePrefix):
		w.applyCauseAnswer(state, sc, strings.TrimPrefix(stepID, stepCausePrefix), answerID)
	case strings.HasPrefix(stepID, stepFixPrefix):
		w.recordFixAnswer(state, sc, strings.TrimPrefix(stepID, stepFixPrefix), answerID)
	}

	return w.stepAfter(state, sc, stepID), nil
}

// advanceInitial resolves the initial-question answer to a scenario. An
// option's explicit scenario_id wins; otherwise the option ID doubles as the
// scenario ID.
func (w *Walker) advanceInitial(state *models.ConversationState, answerID string) (*models.WalkStep, error) {
	light := w.kb.LightByID(state.CurrentLightID)
	if light == nil {
		return nil, fmt.Errorf("light %q: %w", state.CurrentLightID, apperrors.ErrNotFound)
	}

	for _, opt := range light.InitialQuestion.Options {
		if opt.ID != answerID {
			continue
		}
		state.ReportData.AddAnswer(answerEntry(light.InitialQuestion.Text, opt.Label))
		scenarioID := opt.ScenarioID
		if scenarioID == "" {
			scenarioID = opt.ID
		}
		return w.StartScenario(state, scenarioID)
	}

	// Not one of the offered options; ask again.
	q := light.InitialQuestion
	return &models.WalkStep{Kind: models.StepQuestion, Question: &q}, nil
}

// applyCauseAnswer applies a key-question answer to the belief for its cause.
func (w *Walker) applyCauseAnswer(state *models.ConversationState, sc *models.Scenario, causeID, answerID string) {
	cause := sc.CauseByID(causeID)
	if cause == nil || cause.KeyQuestion == nil {
		return
	}

	sus := state.Suspect(cause.ID, cause.Probability)
	if label := answerLabel(cause.KeyQuestion, answerID); label != "" {
		state.ReportData.AddAnswer(answerEntry(cause.KeyQuestion.Text, label))
	}

	switch cause.KeyQuestion.Effect(answerID) {
	case models.EffectConfirm:
		sus.Status = models.SuspectConfirmed
		sus.Probability = cause.Probability + confirmBoost
		if sus.Probability > confirmCeiling {
			sus.Probability = confirmCeiling
		}
		state.ReportData.AddVerified(cause.Name)
	case models.EffectRuleOut:
		sus.Status = models.SuspectRuledOut
		sus.Probability = 0
		state.ReportData.AddRuledOut(cause.Name)
	}
}

// recordFixAnswer records the answer to a self-fix follow-up question. The
// answer informs the report but does not move belief between causes.
func (w *Walker) recordFixAnswer(state *models.ConversationState, sc *models.Scenario, fixID, answerID string) {
	for i := range sc.SelfFixActions {
		action := &sc.SelfFixActions[i]
		if action.ID != fixID {
			continue
		}
		if action.FollowUp == nil {
			return
		}
		for _, opt := range action.FollowUp.Options {
			if opt.ID == answerID {
				state.ReportData.AddAnswer(answerEntry(action.FollowUp.Text, opt.Label))
				break
			}
		}
		return
	}
}

// Skip marks the current step as skipped and moves past it without applying
// any belief change.
func (w *Walker) Skip(state *models.ConversationState) (*models.WalkStep, error) {
	sc := w.kb.ScenarioByID(state.CurrentScenarioID)
	if sc == nil {
		return nil, fmt.Errorf("scenario %q: %w", state.CurrentScenarioID, apperrors.ErrUnknownScenario)
	}
	if state.CurrentStepID != "" && state.CurrentStepID != stepInitial {
		state.ReportData.AddSkipped(state.CurrentStepID)
	}
	return w.stepAfter(state, sc, state.CurrentStepID), nil
}

// stepAfter returns the next step in the scenario's fixed walk order:
// key-questions for causes in authoring order, then self-fix actions, then
// the terminal ranked result.
func (w *Walker) stepAfter(state *models.ConversationState, sc *models.Scenario, afterStepID string) *models.WalkStep {
	plan := w.plan(sc)
	next := 0
	for i, id := range plan {
		if id == afterStepID {
			next = i + 1
			break
		}
	}

	for ; next < len(plan); next++ {
		stepID := plan[next]

		if causeID, ok := strings.CutPrefix(stepID, stepCausePrefix); ok {
			cause := sc.CauseByID(causeID)
			sus := state.Suspect(cause.ID, cause.Probability)
			if sus.Status != models.SuspectOpen {
				continue
			}
			state.CurrentStepID = stepID
			return &models.WalkStep{
				Kind:     models.StepQuestion,
				Question: &models.Question{Text: cause.KeyQuestion.Text, Options: cause.KeyQuestion.Options()},
				CauseID:  cause.ID,
			}
		}

		if fixID, ok := strings.CutPrefix(stepID, stepFixPrefix); ok {
			for i := range sc.SelfFixActions {
				if sc.SelfFixActions[i].ID == fixID {
					state.CurrentStepID = stepID
					return &models.WalkStep{Kind: models.StepSelfFix, SelfFix: &sc.SelfFixActions[i]}
				}
			}
		}
	}

	state.CurrentStepID = ""
	return &models.WalkStep{Kind: models.StepTerminal, Result: w.RankedResult(state, sc)}
}

// plan lists the walk's step IDs in order. Causes without a key-question have
// no step; their priors flow straight into the ranking.
func (w *Walker) plan(sc *models.Scenario) []string {
	ids := make([]string, 0, len(sc.Causes)+len(sc.SelfFixActions))
	for _, c := range sc.Causes {
		if c.KeyQuestion != nil {
			ids = append(ids, stepCausePrefix+c.ID)
		}
	}
	for _, a := range sc.SelfFixActions {
		ids = append(ids, stepFixPrefix+a.ID)
	}
	return ids
}

// RankedResult builds the ranked cause list from the accumulated beliefs.
// Ruled-out causes are excluded; ties keep authoring order.
func (w *Walker) RankedResult(state *models.ConversationState, sc *models.Scenario) []models.RankedCause {
	ranked := make([]models.RankedCause, 0, len(sc.Causes))
	for _, c := range sc.Causes {
		p := c.Probability
		if sus, ok := state.Suspects[c.ID]; ok {
			if sus.Status == models.SuspectRuledOut {
				continue
			}
			p = sus.Probability
		}
		ranked = append(ranked, models.RankedCause{Issue: c.Name, Probability: clampProbability(p)})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Probability > ranked[j].Probability
	})
	return ranked
}

// SelfFixInstructions returns the scenario's self-fix instructions for the
// final report.
func (w *Walker) SelfFixInstructions(sc *models.Scenario) []string {
	if sc == nil || len(sc.SelfFixActions) == 0 {
		return nil
	}
	steps := make([]string, 0, len(sc.SelfFixActions))
	for _, a := range sc.SelfFixActions {
		steps = append(steps, a.Instruction)
	}
	return steps
}

func answerLabel(q *models.KeyQuestion, answerID string) string {
	for _, a := range q.Answers {
		if a.ID == answerID {
			return a.Label
		}
	}
	return ""
}

func answerEntry(question, answer string) string {
	return fmt.Sprintf("%s | %s", question, answer)
}

func clampProbability(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}
