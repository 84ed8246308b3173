package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Intelligent-Repair/IntelligentRepair-sub001/pkg/kb"
	"github.com/Intelligent-Repair/IntelligentRepair-sub001/pkg/models"
	"github.com/Intelligent-Repair/IntelligentRepair-sub001/pkg/services"
)

// newTestMux wires the diagnose API against the embedded knowledge base
// with no model client, so every flow stays deterministic.
func newTestMux(t *testing.T) *http.ServeMux {
	t.Helper()

	knowledge, err := kb.Load(kb.LoadOptions{})
	require.NoError(t, err)

	generator := services.NewGenerator(nil, nil, zap.NewNop())
	engine := services.NewEngine(knowledge, generator, zap.NewNop(), time.Minute)
	t.Cleanup(engine.Close)

	mux := http.NewServeMux()
	NewDiagnoseHandler(engine, zap.NewNop()).RegisterRoutes(mux)
	return mux
}

func doJSON(t *testing.T, mux *http.ServeMux, method, path, body string) (*httptest.ResponseRecorder, ConversationResponse) {
	t.Helper()

	var reader *bytes.Reader
	if body == "" {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	var resp ConversationResponse
	if rec.Code < 300 {
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	}
	return rec, resp
}

func startConversation(t *testing.T, mux *http.ServeMux) ConversationResponse {
	t.Helper()
	rec, resp := doJSON(t, mux, http.MethodPost, "/api/diagnose/start", "")
	require.Equal(t, http.StatusCreated, rec.Code)
	require.NotEmpty(t, resp.ConversationID)
	return resp
}

func TestDiagnose_StartGreets(t *testing.T) {
	mux := newTestMux(t)

	resp := startConversation(t, mux)

	assert.Equal(t, models.StatusWaitingUser, resp.Status)
	require.Len(t, resp.Messages, 1)
	assert.Equal(t, models.SenderAssistant, resp.Messages[0].Sender)
}

func TestDiagnose_StartWithVehicle(t *testing.T) {
	mux := newTestMux(t)

	rec, resp := doJSON(t, mux, http.MethodPost, "/api/diagnose/start",
		`{"vehicle": {"make": "Mazda", "model": "3", "year": 2019}}`)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.NotEmpty(t, resp.ConversationID)
}

func TestDiagnose_StartRejectsBadJSON(t *testing.T) {
	mux := newTestMux(t)

	rec, _ := doJSON(t, mux, http.MethodPost, "/api/diagnose/start", `{"vehicle":`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDiagnose_TurnWalksScenario(t *testing.T) {
	mux := newTestMux(t)
	start := startConversation(t, mux)

	rec, resp := doJSON(t, mux, http.MethodPost, "/api/diagnose/"+start.ConversationID+"/turn",
		`{"text": "יש חריקת בלמים כל בוקר"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.StatusWaitingUser, resp.Status)
	assert.NotEmpty(t, resp.Options, "a key question should offer answer options")
	// The turn response carries only the new messages, not the greeting.
	for _, m := range resp.Messages {
		assert.NotEqual(t, models.SenderUser, m.Sender)
	}
}

func TestDiagnose_TurnAcceptsLateVehicle(t *testing.T) {
	mux := newTestMux(t)
	start := startConversation(t, mux)

	rec, resp := doJSON(t, mux, http.MethodPost, "/api/diagnose/"+start.ConversationID+"/turn",
		`{"text": "יש חריקת בלמים כל בוקר", "vehicle": {"make": "Kia", "model": "Sportage", "year": 2021}}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.StatusWaitingUser, resp.Status)
}

func TestDiagnose_TurnUnknownConversation(t *testing.T) {
	mux := newTestMux(t)

	rec, _ := doJSON(t, mux, http.MethodPost, "/api/diagnose/missing/turn", `{"text": "שלום"}`)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "conversation_not_found"))
}

func TestDiagnose_TurnRejectsBadJSON(t *testing.T) {
	mux := newTestMux(t)
	start := startConversation(t, mux)

	rec, _ := doJSON(t, mux, http.MethodPost, "/api/diagnose/"+start.ConversationID+"/turn", `{"text":`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDiagnose_TurnAfterSafetyStop(t *testing.T) {
	mux := newTestMux(t)
	start := startConversation(t, mux)

	rec, resp := doJSON(t, mux, http.MethodPost, "/api/diagnose/"+start.ConversationID+"/turn",
		`{"text": "יש עשן מהמנוע"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, models.StatusFinished, resp.Status)

	rec, _ = doJSON(t, mux, http.MethodPost, "/api/diagnose/"+start.ConversationID+"/turn",
		`{"text": "מה עכשיו?"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "conversation_ended"))
}

func TestDiagnose_ResetRestartsConversation(t *testing.T) {
	mux := newTestMux(t)
	start := startConversation(t, mux)

	rec, resp := doJSON(t, mux, http.MethodPost, "/api/diagnose/"+start.ConversationID+"/turn",
		`{"text": "יש עשן מהמנוע"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, models.StatusFinished, resp.Status)

	rec, resp = doJSON(t, mux, http.MethodPost, "/api/diagnose/"+start.ConversationID+"/reset", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.StatusWaitingUser, resp.Status)
	assert.Len(t, resp.Messages, 1)

	rec, _ = doJSON(t, mux, http.MethodPost, "/api/diagnose/"+start.ConversationID+"/turn",
		`{"text": "יש חריקת בלמים כל בוקר"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDiagnose_ResetUnknownConversation(t *testing.T) {
	mux := newTestMux(t)

	rec, _ := doJSON(t, mux, http.MethodPost, "/api/diagnose/missing/reset", "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDiagnose_GetReturnsFullLog(t *testing.T) {
	mux := newTestMux(t)
	start := startConversation(t, mux)

	rec, _ := doJSON(t, mux, http.MethodPost, "/api/diagnose/"+start.ConversationID+"/turn",
		`{"text": "יש חריקת בלמים כל בוקר"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, resp := doJSON(t, mux, http.MethodGet, "/api/diagnose/"+start.ConversationID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	// Greeting, user input and the follow-up question are all in the log.
	assert.GreaterOrEqual(t, len(resp.Messages), 3)
}

func TestDiagnose_GetUnknownConversation(t *testing.T) {
	mux := newTestMux(t)

	rec, _ := doJSON(t, mux, http.MethodGet, "/api/diagnose/missing", "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
