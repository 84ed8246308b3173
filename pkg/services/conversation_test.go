package services

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Intelligent-Repair/IntelligentRepair-sub001/pkg/apperrors"
	"github.com/Intelligent-Repair/IntelligentRepair-sub001/pkg/kb"
	"github.com/Intelligent-Repair/IntelligentRepair-sub001/pkg/llm"
	"github.com/Intelligent-Repair/IntelligentRepair-sub001/pkg/models"
)

func testEngine(t *testing.T, client llm.Client) *Engine {
	t.Helper()
	e := NewEngine(testKB(t), testGenerator(client), zap.NewNop(), time.Hour)
	t.Cleanup(e.Close)
	return e
}

func runTurn(t *testing.T, c *Conversation, text string) *models.TurnResult {
	t.Helper()
	result, err := c.Turn(context.Background(), text)
	require.NoError(t, err)
	return result
}

func TestConversation_StartGreets(t *testing.T) {
	e := testEngine(t, nil)
	c := e.Start(nil)

	assert.NotEmpty(t, c.ID)
	assert.Equal(t, models.StatusWaitingUser, c.Status())
	msgs := c.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, models.SenderAssistant, msgs[0].Sender)
}

func TestConversation_SafetyStopEndsConversation(t *testing.T) {
	e := testEngine(t, nil)
	c := e.Start(nil)

	result := runTurn(t, c, "יש עשן מהמנוע!")
	assert.Equal(t, models.StatusFinished, result.Status)
	require.NotEmpty(t, result.Messages)
	assert.Equal(t, models.MessageTypeSafetyAlert, result.Messages[0].Type)

	_, err := c.Turn(context.Background(), "מה עכשיו?")
	assert.ErrorIs(t, err, apperrors.ErrConversationEnded)
}

func TestConversation_SafetyPreemptsMidScenario(t *testing.T) {
	e := testEngine(t, nil)
	c := e.Start(nil)

	result := runTurn(t, c, "חריקת בלמים חזקה")
	require.Equal(t, models.StatusWaitingUser, result.Status)

	// The free-text answer reveals an emergency; the walk is abandoned.
	result = runTurn(t, c, "עכשיו יש עשן מהמנוע")
	assert.Equal(t, models.StatusFinished, result.Status)
	assert.Equal(t, models.MessageTypeSafetyAlert, result.Messages[0].Type)
}

func TestConversation_SafetyRedirectContinues(t *testing.T) {
	e := testEngine(t, nil)
	c := e.Start(nil)

	result := runTurn(t, c, "המנוע רותח, יש קיטור מהמכסה")
	require.Equal(t, models.StatusWaitingUser, result.Status)

	// Alert, follow-up text, then the first engine_overheat question.
	require.GreaterOrEqual(t, len(result.Messages), 3)
	assert.Equal(t, models.MessageTypeSafetyAlert, result.Messages[0].Type)
	assert.Equal(t, models.MessageTypeQuestion, result.Messages[len(result.Messages)-1].Type)
	assert.NotEmpty(t, result.Options)
}

func TestConversation_FullScenarioWalkToReport(t *testing.T) {
	e := testEngine(t, nil)
	c := e.Start(nil)

	// brake_squeal has no owning light, so the terminal report is
	// deterministic even without a model client.
	result := runTurn(t, c, "יש חריקת בלמים כל בוקר")
	require.Equal(t, models.StatusWaitingUser, result.Status)
	require.NotEmpty(t, result.Options)

	result = runTurn(t, c, "long_ago")
	require.Equal(t, models.StatusWaitingUser, result.Status)

	result = runTurn(t, c, "no_strong")
	require.Equal(t, models.StatusFinished, result.Status)
	require.NotNil(t, result.Diagnosis)
	assert.False(t, result.Diagnosis.Degraded)
	assert.Equal(t, "רפידות בלם שחוקות", result.Diagnosis.Causes[0].Issue)
	assert.Equal(t, result.Diagnosis, c.Diagnosis())

	// The technician hand-off carries the verified finding.
	require.NotNil(t, result.Diagnosis.Technician)
	assert.Contains(t, result.Diagnosis.Technician.Verified, "רפידות בלם שחוקות")
}

func TestConversation_LightFlowWithSelfFix(t *testing.T) {
	e := testEngine(t, nil)
	c := e.Start(nil)

	result := runTurn(t, c, "נדלקה נורית מצבר")
	require.Equal(t, models.StatusWaitingUser, result.Status)
	require.Len(t, result.Options, 2)

	result = runTurn(t, c, "on_start")
	require.Equal(t, models.StatusWaitingUser, result.Status)

	// old_battery, corroded_terminals, then the clean_terminals self-fix.
	result = runTurn(t, c, "over_four")
	require.Equal(t, models.StatusWaitingUser, result.Status)

	result = runTurn(t, c, "yes_corrosion")
	require.Equal(t, models.StatusWaitingUser, result.Status)

	// Instruction plus its follow-up question arrive in one turn.
	types := messageTypes(result.Messages)
	assert.Contains(t, types, models.MessageTypeInstruction)
	assert.Contains(t, types, models.MessageTypeQuestion)

	result = runTurn(t, c, "light_off")
	require.Equal(t, models.StatusFinished, result.Status)
	require.NotNil(t, result.Diagnosis)
	assert.Equal(t, "מצבר ישן", result.Diagnosis.Causes[0].Issue)
	assert.NotEmpty(t, result.Diagnosis.SelfFixSteps)
}

func TestConversation_HybridLightFallsBackWithoutClient(t *testing.T) {
	e := testEngine(t, nil)
	c := e.Start(nil)

	result := runTurn(t, c, "נדלקה נורית מנוע")
	result = runTurn(t, c, "flashing")
	require.Equal(t, models.StatusWaitingUser, result.Status)

	result = runTurn(t, c, "yes_shaking")
	require.Equal(t, models.StatusFinished, result.Status)
	require.NotNil(t, result.Diagnosis)
	// check_engine is hybrid; with no client the report is degraded.
	assert.True(t, result.Diagnosis.Degraded)
	assert.Equal(t, "החטאות הצתה (Misfire)", result.Diagnosis.Causes[0].Issue)
}

func TestConversation_HybridLightUsesModel(t *testing.T) {
	mock := llm.NewMockClient()
	mock.GenerateResponseFunc = func(ctx context.Context, prompt, system string, temperature float64) (string, error) {
		return `{"title": "החטאות הצתה", "confidence": 0.8, "severity": "high",
			"causes": [{"issue": "סליל הצתה", "probability": 0.7}]}`, nil
	}
	e := testEngine(t, mock)
	c := e.Start(&models.VehicleInfo{Make: "Mazda", Model: "3", Year: 2019})

	runTurn(t, c, "נדלקה נורית מנוע")
	runTurn(t, c, "flashing")
	result := runTurn(t, c, "yes_shaking")

	require.Equal(t, models.StatusFinished, result.Status)
	require.NotNil(t, result.Diagnosis)
	assert.False(t, result.Diagnosis.Degraded)
	assert.Equal(t, "החטאות הצתה", result.Diagnosis.Title)
	// The prompt embeds the vehicle and the collected answers verbatim.
	assert.Contains(t, mock.LastPrompt, "Mazda")
	assert.Contains(t, mock.LastPrompt, "רועד ומאבד כוח")
}

func TestConversation_FreeFormPathWithModel(t *testing.T) {
	mock := llm.NewMockClient()
	asked := false
	mock.GenerateResponseFunc = func(ctx context.Context, prompt, system string, temperature float64) (string, error) {
		if !asked {
			asked = true
			return `{"question": "באיזו מהירות זה קורה?", "ready_for_diagnosis": false}`, nil
		}
		return `{"title": "רעש מהמתלים", "confidence": 0.5,
			"causes": [{"issue": "תומך בולם שחוק", "probability": 0.5}]}`, nil
	}
	e := testEngine(t, mock)
	c := e.Start(nil)

	result := runTurn(t, c, "יש רעש מוזר מקדימה")
	require.Equal(t, models.StatusWaitingUser, result.Status)
	assert.Equal(t, "באיזו מהירות זה קורה?", result.Messages[0].Text)

	// The next turn first gets a ready signal, then the diagnosis reply.
	readySent := false
	mock.GenerateResponseFunc = func(ctx context.Context, prompt, system string, temperature float64) (string, error) {
		if !readySent {
			readySent = true
			return `{"question": "", "ready_for_diagnosis": true}`, nil
		}
		return `{"title": "רעש מהמתלים", "confidence": 0.5,
			"causes": [{"issue": "תומך בולם שחוק", "probability": 0.5}]}`, nil
	}

	result = runTurn(t, c, "בערך 80 קמ\"ש")
	require.Equal(t, models.StatusFinished, result.Status)
	require.NotNil(t, result.Diagnosis)
	assert.Equal(t, "רעש מהמתלים", result.Diagnosis.Title)
}

func TestConversation_FreeFormPathWithoutClient(t *testing.T) {
	e := testEngine(t, nil)
	c := e.Start(nil)

	// With no model, one scripted clarifying question is asked.
	result := runTurn(t, c, "משהו מרגיש מוזר ברכב")
	require.Equal(t, models.StatusWaitingUser, result.Status)
	assert.Equal(t, models.MessageTypeQuestion, result.Messages[0].Type)

	// The next turn cannot get a model question either and degrades to a
	// generic knowledge-base report.
	result = runTurn(t, c, "קשה לי להסביר")
	require.Equal(t, models.StatusFinished, result.Status)
	require.NotNil(t, result.Diagnosis)
	assert.True(t, result.Diagnosis.Degraded)
	require.NotEmpty(t, result.Diagnosis.Causes)
}

func TestConversation_EmptyInputReasksOnce(t *testing.T) {
	e := testEngine(t, nil)
	c := e.Start(nil)

	runTurn(t, c, "חריקת בלמים")
	before := len(c.Messages())

	result := runTurn(t, c, "   ")
	require.Equal(t, models.StatusWaitingUser, result.Status)
	assert.Len(t, c.Messages(), before+1)
	// The previous question's options are offered again.
	assert.NotEmpty(t, result.Options)

	// A second consecutive empty input skips the question.
	result = runTurn(t, c, "")
	require.Equal(t, models.StatusWaitingUser, result.Status)
	assert.NotEmpty(t, result.Options)
}

func TestConversation_ConcurrentTurnRejected(t *testing.T) {
	block := make(chan struct{})
	mock := llm.NewMockClient()
	mock.GenerateResponseFunc = func(ctx context.Context, prompt, system string, temperature float64) (string, error) {
		<-block
		return `{"question": "q?", "ready_for_diagnosis": false}`, nil
	}
	e := testEngine(t, mock)
	c := e.Start(nil)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = c.Turn(context.Background(), "משהו לא ברור")
	}()

	// Wait until the first turn is inside the model call.
	require.Eventually(t, func() bool {
		return c.Status() == models.StatusProcessing
	}, time.Second, time.Millisecond)

	_, err := c.Turn(context.Background(), "עוד הודעה")
	assert.ErrorIs(t, err, apperrors.ErrTurnInProgress)

	close(block)
	wg.Wait()
	assert.Equal(t, models.StatusWaitingUser, c.Status())
}

func TestConversation_ResetDiscardsInFlightTurn(t *testing.T) {
	block := make(chan struct{})
	mock := llm.NewMockClient()
	mock.GenerateResponseFunc = func(ctx context.Context, prompt, system string, temperature float64) (string, error) {
		<-block
		return `{"question": "מתי זה קורה?", "ready_for_diagnosis": false}`, nil
	}
	e := testEngine(t, mock)
	c := e.Start(nil)

	errCh := make(chan error, 1)
	go func() {
		_, err := c.Turn(context.Background(), "משהו לא ברור")
		errCh <- err
	}()

	require.Eventually(t, func() bool {
		return c.Status() == models.StatusProcessing
	}, time.Second, time.Millisecond)

	// Reset while the first turn is still inside the model call.
	reset, err := e.Reset(c.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusWaitingUser, reset.Status())

	close(block)
	assert.ErrorIs(t, <-errCh, apperrors.ErrConversationReset)

	// Nothing from the stale turn leaked into the fresh log.
	msgs := c.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, models.SenderAssistant, msgs[0].Sender)
	assert.Equal(t, models.StatusWaitingUser, c.Status())
	assert.Nil(t, c.Diagnosis())

	// The reset conversation routes normally again.
	result := runTurn(t, c, "חריקת בלמים")
	require.Equal(t, models.StatusWaitingUser, result.Status)
	assert.NotEmpty(t, result.Options)
}

func TestConversation_SafetyStopDeliversFollowUp(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "safety.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
rules:
  - id: brake_failure
    severity: critical
    keywords: ["הגלגל משוחרר"]
    message: "עצור את הרכב מיד במקום בטוח."
    end_conversation: true
    follow_up_message: "התקשר לגרירה ואל תמשיך בנסיעה."
`), 0o600))

	k, err := kb.Load(kb.LoadOptions{SafetyPath: path})
	require.NoError(t, err)
	e := NewEngine(k, testGenerator(nil), zap.NewNop(), time.Hour)
	t.Cleanup(e.Close)
	c := e.Start(nil)

	result := runTurn(t, c, "הגלגל משוחרר לגמרי")
	require.Equal(t, models.StatusFinished, result.Status)
	require.Len(t, result.Messages, 2)
	assert.Equal(t, models.MessageTypeSafetyAlert, result.Messages[0].Type)
	assert.Equal(t, "התקשר לגרירה ואל תמשיך בנסיעה.", result.Messages[1].Text)

	_, err = c.Turn(context.Background(), "מה עכשיו?")
	assert.ErrorIs(t, err, apperrors.ErrConversationEnded)
}

func TestConversation_SymptomRouteRecordsCategory(t *testing.T) {
	e := testEngine(t, nil)
	c := e.Start(nil)

	runTurn(t, c, "חריקת בלמים כל בוקר")

	c.mu.Lock()
	category := c.state.Category
	c.mu.Unlock()
	assert.Equal(t, "brakes", category)
}

func TestConversation_ResetStartsOver(t *testing.T) {
	e := testEngine(t, nil)
	c := e.Start(nil)

	runTurn(t, c, "יש עשן")
	require.Equal(t, models.StatusFinished, c.Status())

	reset, err := e.Reset(c.ID)
	require.NoError(t, err)
	assert.Equal(t, c.ID, reset.ID)
	assert.Equal(t, models.StatusWaitingUser, reset.Status())
	assert.Len(t, reset.Messages(), 1)
	assert.Nil(t, reset.Diagnosis())

	// The reset conversation accepts turns again.
	result := runTurn(t, c, "חריקת בלמים")
	assert.Equal(t, models.StatusWaitingUser, result.Status)
}

func TestConversation_ReplayIsDeterministic(t *testing.T) {
	e := testEngine(t, nil)

	runOnce := func() *models.DiagnosisReport {
		c := e.Start(nil)
		runTurn(t, c, "חריקת בלמים")
		runTurn(t, c, "long_ago")
		result := runTurn(t, c, "yes_strong")
		require.Equal(t, models.StatusFinished, result.Status)
		return result.Diagnosis
	}

	first := runOnce()
	second := runOnce()
	require.NotNil(t, first)
	require.NotNil(t, second)
	assert.Equal(t, first.Causes, second.Causes)
	assert.Equal(t, first.Confidence, second.Confidence)
	assert.Equal(t, first.Status, second.Status)
}

func TestConversation_SetVehicleAfterStart(t *testing.T) {
	e := testEngine(t, nil)
	c := e.Start(nil)

	c.SetVehicle(nil)
	assert.Nil(t, c.Vehicle)

	c.SetVehicle(&models.VehicleInfo{Make: "Kia", Model: "Sportage", Year: 2021})
	require.NotNil(t, c.Vehicle)
	assert.Equal(t, "Kia", c.Vehicle.Make)
}

func messageTypes(msgs []models.Message) []models.MessageType {
	types := make([]models.MessageType, 0, len(msgs))
	for _, m := range msgs {
		types = append(types, m.Type)
	}
	return types
}
