package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Intelligent-Repair/IntelligentRepair-sub001/pkg/apperrors"
	"github.com/Intelligent-Repair/IntelligentRepair-sub001/pkg/kb"
	"github.com/Intelligent-Repair/IntelligentRepair-sub001/pkg/models"
	"github.com/Intelligent-Repair/IntelligentRepair-sub001/pkg/prompts"
)

const (
	greetingText = "שלום! אני עוזר האבחון של המוסך. תאר במילים שלך מה קורה ברכב ואתחיל לבדוק."
	reaskText    = "לא קיבלתי תשובה. אפשר לנסות שוב?"
	genericError = "אירעה שגיאה בעיבוד הפנייה. אפשר לפתוח שיחה חדשה ולנסות שוב."

	// consultStepPrefix tracks position on the free-form path, where the
	// model authors the questions itself.
	consultStepPrefix = "consult:"
	// maxConsultQuestions bounds the free-form path; after that many model
	// questions the diagnosis is generated from whatever was collected.
	maxConsultQuestions = 3
)

// Conversation is one diagnostic session. All turn processing is serialized:
// a second turn submitted while one is in flight is rejected, not queued.
// A reset may happen while a turn is in flight; the epoch counter lets the
// stale turn detect it and discard its result instead of merging it.
type Conversation struct {
	ID      string
	Vehicle *models.VehicleInfo

	kb        *kb.KnowledgeBase
	walker    *Walker
	generator *Generator
	logger    *zap.Logger

	mu          sync.Mutex
	epoch       uint64
	status      models.ConversationStatus
	state       *models.ConversationState
	messages    []models.Message
	lastOptions []models.QuestionOption
	diagnosis   *models.DiagnosisReport
	lastActive  time.Time
}

// Status returns the current state machine position.
func (c *Conversation) Status() models.ConversationStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Messages returns a copy of the conversation log.
func (c *Conversation) Messages() []models.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Diagnosis returns the terminal report, or nil before the conversation
// finished.
func (c *Conversation) Diagnosis() *models.DiagnosisReport {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.diagnosis
}

// SetVehicle records vehicle details that arrived after the conversation
// started. An in-flight turn keeps the vehicle it snapshotted at admission.
func (c *Conversation) SetVehicle(v *models.VehicleInfo) {
	if v == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Vehicle = v
}

// LastActive returns the time of the last completed turn.
func (c *Conversation) LastActive() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActive
}

// Turn submits one user input and runs the conversation until it needs the
// user again or finishes. Concurrent turns on the same conversation are
// rejected with ErrTurnInProgress; turns on a finished conversation with
// ErrConversationEnded. A turn overtaken by a reset is discarded and reported
// as ErrConversationReset.
func (c *Conversation) Turn(ctx context.Context, input string) (*models.TurnResult, error) {
	c.mu.Lock()
	if c.status.IsTerminal() {
		c.mu.Unlock()
		return nil, apperrors.ErrConversationEnded
	}
	if c.status == models.StatusProcessing {
		c.mu.Unlock()
		return nil, apperrors.ErrTurnInProgress
	}
	c.status = models.StatusProcessing
	t := &turn{
		conv:        c,
		epoch:       c.epoch,
		state:       c.state,
		history:     append([]models.Message(nil), c.messages...),
		vehicle:     c.Vehicle,
		lastOptions: c.lastOptions,
	}
	c.mu.Unlock()

	result := t.process(ctx, input)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != t.epoch {
		// The conversation was reset while this turn was running. The fresh
		// state must not see any of the stale turn's output.
		return nil, apperrors.ErrConversationReset
	}
	c.messages = append(c.messages, t.log...)
	c.status = result.Status
	c.lastOptions = result.Options
	if result.Diagnosis != nil {
		c.diagnosis = result.Diagnosis
	}
	c.lastActive = time.Now()
	return result, nil
}

// reset returns the conversation to a fresh greeting, keeping its ID and
// vehicle. Bumping the epoch orphans any turn still in flight: it keeps
// working on its own snapshot and its result is dropped at finalization.
func (c *Conversation) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.epoch++
	c.state = models.NewConversationState()
	c.messages = []models.Message{models.NewMessage(models.SenderAssistant, models.MessageTypeText, greetingText)}
	c.status = models.StatusWaitingUser
	c.lastOptions = nil
	c.diagnosis = nil
	c.lastActive = time.Now()
}

// turn is one submission's working set, snapshotted when the turn was
// admitted. It owns its state object exclusively: a concurrent reset swaps
// the conversation over to a fresh state instead of touching this one, so
// processing needs no lock.
type turn struct {
	conv        *Conversation
	epoch       uint64
	state       *models.ConversationState
	history     []models.Message
	vehicle     *models.VehicleInfo
	lastOptions []models.QuestionOption

	// log collects every message this turn produces, user input included,
	// in order. It is merged into the conversation at finalization.
	log []models.Message
}

func (t *turn) append(m models.Message) {
	t.log = append(t.log, m)
}

// messages returns the full conversation log as this turn sees it, for
// prompt building.
func (t *turn) messages() []models.Message {
	out := make([]models.Message, 0, len(t.history)+len(t.log))
	out = append(out, t.history...)
	out = append(out, t.log...)
	return out
}

// process runs one turn. It never returns an error: any fault, including a
// panic, ends the conversation in the error state with a generic message.
func (t *turn) process(ctx context.Context, input string) (result *models.TurnResult) {
	defer func() {
		if r := recover(); r != nil {
			t.conv.logger.Error("turn processing panicked",
				zap.String("conversation_id", t.conv.ID),
				zap.Any("panic", r))
			result = t.errorResult()
		}
	}()

	input = strings.TrimSpace(input)
	if input == "" {
		return t.handleEmptyInput(ctx)
	}
	t.state.ReaskCount = 0
	t.append(models.NewMessage(models.SenderUser, models.MessageTypeText, input))

	// Safety preempts everything, including an active scenario walk.
	if rule := t.conv.kb.EvaluateSafety(input); rule != nil {
		return t.handleSafety(ctx, rule)
	}

	if t.state.HasActiveScenario() && t.state.CurrentStepID != "" {
		step, err := t.conv.walker.Advance(t.state, input)
		if err != nil {
			return t.failTurn(err)
		}
		return t.handleStep(ctx, step, nil)
	}

	if asked, ok := consultPosition(t.state.CurrentStepID); ok {
		return t.consult(ctx, asked)
	}

	route := t.conv.kb.Route(input)
	switch route.Kind {
	case models.RouteSafetyStop:
		return t.handleSafety(ctx, route.Rule)
	case models.RouteWarningLight:
		step, err := t.conv.walker.StartLight(t.state, route.LightID)
		if err != nil {
			return t.failTurn(err)
		}
		return t.handleStep(ctx, step, nil)
	case models.RouteSymptomMatch:
		t.state.Category = route.Category
		step, err := t.conv.walker.StartScenario(t.state, route.Mapping.TargetID)
		if err != nil {
			return t.failTurn(err)
		}
		return t.handleStep(ctx, step, nil)
	case models.RouteStartScenario:
		step, err := t.conv.walker.StartScenario(t.state, route.ScenarioID)
		if err != nil {
			return t.failTurn(err)
		}
		return t.handleStep(ctx, step, nil)
	case models.RouteConsultAI:
		return t.consult(ctx, 0)
	default:
		return t.consult(ctx, 0)
	}
}

// handleEmptyInput re-asks once; a second consecutive empty input skips the
// current question instead of stalling the conversation.
func (t *turn) handleEmptyInput(ctx context.Context) *models.TurnResult {
	if t.state.ReaskCount == 0 {
		t.state.ReaskCount++
		msg := models.NewMessage(models.SenderAssistant, models.MessageTypeText, reaskText)
		t.append(msg)
		return &models.TurnResult{
			Messages: []models.Message{msg},
			Options:  t.lastOptions,
			Status:   models.StatusWaitingUser,
		}
	}

	t.state.ReaskCount = 0
	if t.state.HasActiveScenario() && t.state.CurrentStepID != "" && t.state.CurrentStepID != stepInitial {
		step, err := t.conv.walker.Skip(t.state)
		if err != nil {
			return t.failTurn(err)
		}
		return t.handleStep(ctx, step, nil)
	}

	msg := models.NewMessage(models.SenderAssistant, models.MessageTypeText,
		"אשמח לתיאור קצר של התקלה כדי שאוכל לעזור.")
	t.append(msg)
	return &models.TurnResult{Messages: []models.Message{msg}, Status: models.StatusWaitingUser}
}

// handleSafety applies a triggered safety rule: an alert message, and either
// a hard stop or a redirect into the rule's scenario. On the hard stop the
// follow-up message, if authored, still goes out after the alert.
func (t *turn) handleSafety(ctx context.Context, rule *models.SafetyRule) *models.TurnResult {
	t.state.ReportData.AddCritical(rule.ID)
	t.conv.logger.Warn("safety rule triggered",
		zap.String("conversation_id", t.conv.ID),
		zap.String("rule_id", rule.ID),
		zap.String("severity", string(rule.Severity)))

	alert := models.NewMessage(models.SenderAssistant, models.MessageTypeSafetyAlert, rule.Message)
	msgs := []models.Message{alert}
	t.append(alert)

	if rule.EndConversation {
		if rule.FollowUpMessage != "" {
			m := models.NewMessage(models.SenderAssistant, models.MessageTypeText, rule.FollowUpMessage)
			t.append(m)
			msgs = append(msgs, m)
		}
		return &models.TurnResult{Messages: msgs, Status: models.StatusFinished}
	}

	if rule.FollowUpMessage != "" {
		m := models.NewMessage(models.SenderAssistant, models.MessageTypeText, rule.FollowUpMessage)
		t.append(m)
		msgs = append(msgs, m)
	}
	if rule.NextScenarioID != "" {
		step, err := t.conv.walker.StartScenario(t.state, rule.NextScenarioID)
		if err != nil {
			return t.failTurn(err)
		}
		return t.handleStep(ctx, step, msgs)
	}
	return &models.TurnResult{Messages: msgs, Status: models.StatusWaitingUser}
}

// handleStep advances through walker steps until one needs user input or the
// walk terminates. Self-fix instructions without a follow-up question do not
// pause the conversation.
func (t *turn) handleStep(ctx context.Context, step *models.WalkStep, msgs []models.Message) *models.TurnResult {
	for {
		switch step.Kind {
		case models.StepQuestion:
			m := models.NewMessage(models.SenderAssistant, models.MessageTypeQuestion, step.Question.Text)
			t.append(m)
			msgs = append(msgs, m)
			return &models.TurnResult{Messages: msgs, Options: step.Question.Options, Status: models.StatusWaitingUser}

		case models.StepSelfFix:
			m := models.NewMessage(models.SenderAssistant, models.MessageTypeInstruction, step.SelfFix.Instruction)
			t.append(m)
			msgs = append(msgs, m)
			if fu := step.SelfFix.FollowUp; fu != nil {
				q := models.NewMessage(models.SenderAssistant, models.MessageTypeQuestion, fu.Text)
				t.append(q)
				msgs = append(msgs, q)
				return &models.TurnResult{Messages: msgs, Options: fu.Options, Status: models.StatusWaitingUser}
			}
			next, err := t.conv.walker.Advance(t.state, "")
			if err != nil {
				return t.failTurn(err)
			}
			step = next

		case models.StepTerminal:
			return t.finishWithDiagnosis(ctx, step, msgs)

		default:
			return t.failTurn(fmt.Errorf("unknown walk step kind %q", step.Kind))
		}
	}
}

// finishWithDiagnosis produces the terminal report. Hybrid lights hand the
// collected evidence to the generative path; everything else gets the
// deterministic knowledge-base report.
func (t *turn) finishWithDiagnosis(ctx context.Context, step *models.WalkStep, msgs []models.Message) *models.TurnResult {
	sc := t.conv.kb.ScenarioByID(t.state.CurrentScenarioID)
	light := t.conv.kb.LightByID(t.state.CurrentLightID)

	dc := &prompts.DiagnosisContext{}
	if light != nil {
		dc.Title = light.Description
		dc.Severity = light.Severity
	}
	if sc != nil {
		if dc.Title == "" {
			dc.Title = sc.Description
		}
		dc.Description = sc.Description
		if sc.Severity != "" {
			dc.Severity = sc.Severity
		}
		dc.Candidates = sc.Causes
	}
	dc.Category = t.state.Category
	dc.Answers = t.state.ReportData.Answers

	var report *models.DiagnosisReport
	if light != nil && light.Hybrid {
		report = t.conv.generator.Diagnose(ctx, dc, t.messages(), t.vehicle, step.Result, &t.state.ReportData)
	} else {
		report = t.conv.generator.KnowledgeReport(dc, step.Result, &t.state.ReportData, false)
	}
	if len(report.SelfFixSteps) == 0 && sc != nil {
		report.SelfFixSteps = t.conv.walker.SelfFixInstructions(sc)
	}

	return t.deliverDiagnosis(report, msgs)
}

// deliverDiagnosis appends the report messages and closes the conversation.
func (t *turn) deliverDiagnosis(report *models.DiagnosisReport, msgs []models.Message) *models.TurnResult {
	d := models.NewMessage(models.SenderAssistant, models.MessageTypeDiagnosis, report.Title)
	t.append(d)
	msgs = append(msgs, d)

	if report.Technician != nil && len(report.Technician.SuspectedCauses) > 0 {
		m := models.NewMessage(models.SenderAssistant, models.MessageTypeMechanicReport,
			"חשודים עיקריים: "+strings.Join(report.Technician.SuspectedCauses, ", "))
		t.append(m)
		msgs = append(msgs, m)
	}

	return &models.TurnResult{Messages: msgs, Status: models.StatusFinished, Diagnosis: report}
}

// consult runs the free-form path: the model authors the next question until
// it signals readiness or the question budget runs out.
func (t *turn) consult(ctx context.Context, asked int) *models.TurnResult {
	if asked >= maxConsultQuestions {
		return t.freeFormDiagnosis(ctx)
	}

	nq, err := t.conv.generator.NextQuestion(ctx, t.messages(), t.vehicle)
	if err != nil {
		t.conv.logger.Warn("free-form question generation failed",
			zap.String("conversation_id", t.conv.ID),
			zap.Error(err))
		if asked == 0 {
			// One scripted clarifying question before giving up on the model.
			t.state.CurrentStepID = consultStepPrefix + "1"
			m := models.NewMessage(models.SenderAssistant, models.MessageTypeQuestion,
				"תוכל לתאר מתי התקלה מופיעה ומה בדיוק מורגש או נשמע?")
			t.append(m)
			return &models.TurnResult{Messages: []models.Message{m}, Status: models.StatusWaitingUser}
		}
		return t.freeFormDiagnosis(ctx)
	}

	if nq.Ready || nq.Question == "" {
		return t.freeFormDiagnosis(ctx)
	}

	t.state.CurrentStepID = consultStepPrefix + strconv.Itoa(asked+1)
	m := models.NewMessage(models.SenderAssistant, models.MessageTypeQuestion, nq.Question)
	t.append(m)
	return &models.TurnResult{Messages: []models.Message{m}, Options: nq.Options, Status: models.StatusWaitingUser}
}

// freeFormDiagnosis generates the terminal report with no knowledge-base
// candidates, from the conversation history alone.
func (t *turn) freeFormDiagnosis(ctx context.Context) *models.TurnResult {
	t.state.CurrentStepID = ""
	dc := &prompts.DiagnosisContext{}
	report := t.conv.generator.Diagnose(ctx, dc, t.messages(), t.vehicle, nil, &t.state.ReportData)
	return t.deliverDiagnosis(report, nil)
}

func (t *turn) failTurn(err error) *models.TurnResult {
	t.conv.logger.Error("turn processing failed",
		zap.String("conversation_id", t.conv.ID),
		zap.Error(err))
	return t.errorResult()
}

func (t *turn) errorResult() *models.TurnResult {
	m := models.NewMessage(models.SenderAssistant, models.MessageTypeError, genericError)
	t.append(m)
	return &models.TurnResult{Messages: []models.Message{m}, Status: models.StatusError}
}

// consultPosition parses the free-form step marker, returning how many model
// questions were already asked.
func consultPosition(stepID string) (int, bool) {
	rest, ok := strings.CutPrefix(stepID, consultStepPrefix)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil {
		return 0, false
	}
	return n, true
}
