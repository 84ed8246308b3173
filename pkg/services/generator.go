package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Intelligent-Repair/IntelligentRepair-sub001/pkg/config"
	"github.com/Intelligent-Repair/IntelligentRepair-sub001/pkg/jsonutil"
	"github.com/Intelligent-Repair/IntelligentRepair-sub001/pkg/llm"
	"github.com/Intelligent-Repair/IntelligentRepair-sub001/pkg/models"
	"github.com/Intelligent-Repair/IntelligentRepair-sub001/pkg/prompts"
	"github.com/Intelligent-Repair/IntelligentRepair-sub001/pkg/retry"
)

// Disclaimer appended to every diagnosis report.
const reportDisclaimer = "האבחון מבוסס על המידע שנמסר ואינו מחליף בדיקה של מכונאי מוסמך."

// Generative causes are never reported with near-certainty.
const generativeCeiling = 0.92

// A degraded report never claims more confidence than this, regardless of how
// strong the walked belief was when the generative path failed.
const degradedConfidenceCap = 0.6

// fallbackLadder re-prices the top walked candidates on a degraded report.
// The walked probabilities reflect confirmed answers the model never saw; a
// fallback must not inherit them.
var fallbackLadder = []float64{0.55, 0.30, 0.15}

// Generator produces the terminal diagnosis report. It prefers the
// text-generation service; on any failure (timeout, transport, unparseable
// reply, tripped circuit) it degrades to a report built from the knowledge
// base alone. Diagnose never returns an error: a conversation that reached
// the terminal step always gets a structurally complete report.
type Generator struct {
	client      llm.Client
	breaker     *llm.CircuitBreaker
	retryCfg    *retry.Config
	timeout     time.Duration
	temperature float64
	logger      *zap.Logger
}

// NewGenerator creates a generator around the given client. A nil client
// disables the generative path entirely; every diagnosis is then
// knowledge-base only.
func NewGenerator(client llm.Client, cfg *config.LLMConfig, logger *zap.Logger) *Generator {
	retryCfg := retry.DefaultConfig()
	timeout := 12 * time.Second
	temperature := 0.2
	if cfg != nil {
		retryCfg.MaxRetries = cfg.MaxRetries
		timeout = cfg.Timeout()
		temperature = cfg.Temperature
	}
	return &Generator{
		client:      client,
		breaker:     llm.NewCircuitBreaker(llm.DefaultCircuitBreakerConfig()),
		retryCfg:    retryCfg,
		timeout:     timeout,
		temperature: temperature,
		logger:      logger.Named("generator"),
	}
}

// rawDiagnosis is the tolerant decode target for the model's diagnosis JSON.
// All fields are raw so scalar-type drift (numbers as strings, percentages)
// can be coerced instead of failing the decode.
type rawDiagnosis struct {
	Title           json.RawMessage `json:"title"`
	Confidence      json.RawMessage `json:"confidence"`
	Severity        json.RawMessage `json:"severity"`
	Causes          []rawCause      `json:"causes"`
	SelfFixSteps    json.RawMessage `json:"self_fix_steps"`
	Recommendations json.RawMessage `json:"recommendations"`
	DoNotDrive      json.RawMessage `json:"do_not_drive"`
	TowNeeded       json.RawMessage `json:"tow_needed"`
}

type rawCause struct {
	Issue       json.RawMessage `json:"issue"`
	Probability json.RawMessage `json:"probability"`
	Explanation json.RawMessage `json:"explanation"`
}

// Diagnose produces the final report for a conversation. ranked carries the
// knowledge-base belief ranking (may be empty on the free-form path); report
// carries the accumulated findings for the technician summary.
func (g *Generator) Diagnose(ctx context.Context, dc *prompts.DiagnosisContext, history []models.Message, vehicle *models.VehicleInfo, ranked []models.RankedCause, report *models.ReportData) *models.DiagnosisReport {
	raw, err := g.generate(ctx, prompts.BuildDiagnosisPrompt(dc, history, vehicle))
	if err != nil {
		g.logger.Warn("generative diagnosis unavailable, using knowledge-base fallback",
			zap.String("error_type", string(llm.GetErrorType(err))),
			zap.Error(err))
		return g.KnowledgeReport(dc, ranked, report, true)
	}

	parsed, err := llm.ParseJSONResponse[rawDiagnosis](raw)
	if err != nil {
		g.logger.Warn("diagnosis reply unparseable, using knowledge-base fallback", zap.Error(err))
		return g.KnowledgeReport(dc, ranked, report, true)
	}

	out := g.reportFromRaw(&parsed, dc, ranked, report)
	if out == nil {
		g.logger.Warn("diagnosis reply missing required fields, using knowledge-base fallback")
		return g.KnowledgeReport(dc, ranked, report, true)
	}
	return out
}

// reportFromRaw converts a decoded reply into a report, or nil when the reply
// lacks the required fields (title and at least one cause).
func (g *Generator) reportFromRaw(raw *rawDiagnosis, dc *prompts.DiagnosisContext, ranked []models.RankedCause, report *models.ReportData) *models.DiagnosisReport {
	title := jsonutil.FlexibleStringValue(raw.Title)
	if title == "" {
		title = dc.Title
	}

	causes := make([]models.RankedCause, 0, len(raw.Causes))
	for _, rc := range raw.Causes {
		issue := jsonutil.FlexibleStringValue(rc.Issue)
		if issue == "" {
			continue
		}
		p := clampProbability(jsonutil.FlexibleFloatValue(rc.Probability))
		if p > generativeCeiling {
			p = generativeCeiling
		}
		causes = append(causes, models.RankedCause{
			Issue:       issue,
			Probability: p,
			Explanation: jsonutil.FlexibleStringValue(rc.Explanation),
		})
	}
	if title == "" || len(causes) == 0 {
		return nil
	}

	confidence := clampProbability(jsonutil.FlexibleFloatValue(raw.Confidence))
	if confidence == 0 {
		confidence = causes[0].Probability
	}

	severity := jsonutil.FlexibleStringValue(raw.Severity)
	if severity == "" {
		severity = dc.Severity
	}
	status := statusForSeverity(severity)
	if jsonutil.FlexibleBoolValue(raw.DoNotDrive) || jsonutil.FlexibleBoolValue(raw.TowNeeded) {
		status = statusForSeverity("critical")
	}

	recommendations := jsonutil.FlexibleStringSlice(raw.Recommendations)
	if jsonutil.FlexibleBoolValue(raw.TowNeeded) {
		recommendations = append(recommendations, "הזמן שירות גרירה; אל תמשיך בנסיעה עצמאית.")
	}

	return finishReport(&models.DiagnosisReport{
		Title:           title,
		Confidence:      confidence,
		Causes:          causes,
		Status:          status,
		SelfFixSteps:    jsonutil.FlexibleStringSlice(raw.SelfFixSteps),
		Recommendations: recommendations,
	}, report)
}

// KnowledgeReport builds a diagnosis report from the knowledge base alone.
// It serves both the deterministic terminal of non-hybrid scenarios and the
// degraded fallback when the generative path fails.
func (g *Generator) KnowledgeReport(dc *prompts.DiagnosisContext, ranked []models.RankedCause, report *models.ReportData, degraded bool) *models.DiagnosisReport {
	causes := ranked
	if degraded {
		causes = degradedCauses(ranked)
	}
	if len(causes) == 0 {
		causes = []models.RankedCause{genericCause()}
	}

	confidence := causes[0].Probability
	if report != nil && len(report.Verified) > 0 && confidence < 0.6 {
		confidence = 0.6
	}
	if degraded && confidence > degradedConfidenceCap {
		confidence = degradedConfidenceCap
	}

	title := dc.Title
	if title == "" {
		title = "אבחון ראשוני"
	}

	return finishReport(&models.DiagnosisReport{
		Title:        title,
		Confidence:   confidence,
		Causes:       causes,
		Status:       statusForSeverity(dc.Severity),
		SelfFixSteps: nil,
		Recommendations: []string{
			"מומלץ לקבוע בדיקה במוסך ולהציג את סיכום השיחה למכונאי.",
		},
		Degraded: degraded,
	}, report)
}

// NextQuestion asks the model for the next clarifying question on the
// free-form path. Unlike Diagnose it may fail; the orchestrator then falls
// back to a generic question or moves straight to the diagnosis.
func (g *Generator) NextQuestion(ctx context.Context, history []models.Message, vehicle *models.VehicleInfo) (*NextQuestion, error) {
	raw, err := g.generate(ctx, prompts.BuildNextQuestionPrompt(history, vehicle))
	if err != nil {
		return nil, err
	}

	parsed, err := llm.ParseJSONResponse[rawNextQuestion](raw)
	if err != nil {
		return nil, err
	}

	nq := &NextQuestion{
		Question: jsonutil.FlexibleStringValue(parsed.Question),
		Ready:    jsonutil.FlexibleBoolValue(parsed.Ready),
	}
	for i, opt := range parsed.Options {
		label := jsonutil.FlexibleStringValue(opt.Label)
		if label == "" {
			continue
		}
		id := jsonutil.FlexibleStringValue(opt.ID)
		if id == "" {
			id = fmt.Sprintf("opt%d", i+1)
		}
		nq.Options = append(nq.Options, models.QuestionOption{ID: id, Label: label})
	}
	if nq.Question == "" && !nq.Ready {
		return nil, llm.NewError(llm.ErrorTypeFormat, "reply carries neither a question nor a ready signal", false, nil)
	}
	return nq, nil
}

// NextQuestion is the model's free-form intake decision: either the next
// question to ask or the signal that enough was collected.
type NextQuestion struct {
	Question string
	Options  []models.QuestionOption
	Ready    bool
}

type rawNextQuestion struct {
	Question json.RawMessage `json:"question"`
	Options  []rawOption     `json:"options"`
	Ready    json.RawMessage `json:"ready_for_diagnosis"`
}

type rawOption struct {
	ID    json.RawMessage `json:"id"`
	Label json.RawMessage `json:"label"`
}

// generate performs one guarded model call: circuit breaker, per-call
// deadline, retry on transient failures.
func (g *Generator) generate(ctx context.Context, prompt string) (string, error) {
	if g.client == nil {
		return "", llm.NewError(llm.ErrorTypeEndpoint, "no text-generation client configured", false, nil)
	}
	if allowed, err := g.breaker.Allow(); !allowed {
		return "", err
	}

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	result, err := retry.DoWithResult(callCtx, g.retryCfg, func() (string, error) {
		return g.client.GenerateResponse(callCtx, prompt, prompts.BuildDiagnosisSystemMessage(), g.temperature)
	})
	if err != nil {
		g.breaker.RecordFailure()
		return "", err
	}
	g.breaker.RecordSuccess()
	return result, nil
}

// finishReport fills the derived and mandatory fields every report carries.
func finishReport(r *models.DiagnosisReport, report *models.ReportData) *models.DiagnosisReport {
	r.Confidence = clampProbability(r.Confidence)
	r.Level = models.ConfidenceLevelFor(r.Confidence)
	r.Disclaimer = reportDisclaimer

	nextSteps := r.Recommendations
	if len(nextSteps) == 0 {
		nextSteps = []string{"פנה למוסך לבדיקה."}
	}
	r.Requester = &models.RequesterSummary{Headline: r.Title, NextSteps: nextSteps}

	tech := &models.TechnicianSummary{}
	for _, c := range r.Causes {
		tech.SuspectedCauses = append(tech.SuspectedCauses, fmt.Sprintf("%s (%.0f%%)", c.Issue, c.Probability*100))
	}
	if report != nil {
		tech.Verified = report.Verified
		tech.RuledOut = report.RuledOut
		tech.Answers = report.Answers
	}
	r.Technician = tech

	return r
}

// statusForSeverity maps an authored or model-supplied severity tag to the
// report's presentation status.
func statusForSeverity(severity string) models.ReportStatus {
	switch severity {
	case "critical", "danger":
		return models.ReportStatus{
			Color:       models.StatusColorRed,
			Text:        "חומרה גבוהה",
			Instruction: "אל תמשיך בנסיעה. פנה לטיפול מיידי.",
		}
	case "high":
		return models.ReportStatus{
			Color:       models.StatusColorYellow,
			Text:        "דרושה בדיקה בהקדם",
			Instruction: "קבע ביקור במוסך בימים הקרובים.",
		}
	default:
		return models.ReportStatus{
			Color:       models.StatusColorBlue,
			Text:        "ניתן להמשיך בזהירות",
			Instruction: "עקוב אחר התופעה וטפל בה בהזדמנות הקרובה.",
		}
	}
}

// degradedCauses keeps the identity of the top walked candidates but re-prices
// them on the fixed descending ladder.
func degradedCauses(ranked []models.RankedCause) []models.RankedCause {
	n := len(ranked)
	if n > len(fallbackLadder) {
		n = len(fallbackLadder)
	}
	out := make([]models.RankedCause, 0, n)
	for i := 0; i < n; i++ {
		c := ranked[i]
		c.Probability = fallbackLadder[i]
		out = append(out, c)
	}
	return out
}

// genericCause is the single last-resort entry when neither the model nor the
// knowledge base produced candidates.
func genericCause() models.RankedCause {
	return models.RankedCause{Issue: "תקלה הדורשת אבחון במוסך", Probability: 0.5}
}
