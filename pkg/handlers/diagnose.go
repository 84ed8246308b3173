package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/Intelligent-Repair/IntelligentRepair-sub001/pkg/apperrors"
	"github.com/Intelligent-Repair/IntelligentRepair-sub001/pkg/models"
	"github.com/Intelligent-Repair/IntelligentRepair-sub001/pkg/services"
)

// StartRequest opens a new diagnostic conversation. Vehicle details are
// optional and only enrich the generative prompts.
type StartRequest struct {
	Vehicle *models.VehicleInfo `json:"vehicle,omitempty"`
}

// ConversationResponse describes a conversation to the client.
type ConversationResponse struct {
	ConversationID string                    `json:"conversation_id"`
	Status         models.ConversationStatus `json:"status"`
	Messages       []models.Message          `json:"messages"`
	Options        []models.QuestionOption   `json:"options,omitempty"`
	Diagnosis      *models.DiagnosisReport   `json:"diagnosis,omitempty"`
}

// TurnRequest submits one user input to a conversation. Vehicle details may
// arrive late, after the conversation already started.
type TurnRequest struct {
	Text    string              `json:"text"`
	Vehicle *models.VehicleInfo `json:"vehicle,omitempty"`
}

// DiagnoseHandler exposes the diagnostic conversation API.
type DiagnoseHandler struct {
	engine *services.Engine
	logger *zap.Logger
}

// NewDiagnoseHandler creates a new DiagnoseHandler.
func NewDiagnoseHandler(engine *services.Engine, logger *zap.Logger) *DiagnoseHandler {
	return &DiagnoseHandler{engine: engine, logger: logger}
}

// RegisterRoutes registers the diagnose handler's routes on the given mux.
func (h *DiagnoseHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/diagnose/start", h.Start)
	mux.HandleFunc("POST /api/diagnose/{id}/turn", h.Turn)
	mux.HandleFunc("POST /api/diagnose/{id}/reset", h.Reset)
	mux.HandleFunc("GET /api/diagnose/{id}", h.Get)
}

// Start handles POST /api/diagnose/start requests.
func (h *DiagnoseHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "request body must be valid JSON")
			return
		}
	}

	conv := h.engine.Start(req.Vehicle)
	if err := WriteJSON(w, http.StatusCreated, h.conversationResponse(conv, nil)); err != nil {
		h.logger.Error("Failed to encode start response", zap.Error(err))
	}
}

// Turn handles POST /api/diagnose/{id}/turn requests. The response carries
// only the messages produced by this turn, not the whole log.
func (h *DiagnoseHandler) Turn(w http.ResponseWriter, r *http.Request) {
	conv, ok := h.conversation(w, r)
	if !ok {
		return
	}

	var req TurnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "request body must be valid JSON")
		return
	}

	conv.SetVehicle(req.Vehicle)
	result, err := conv.Turn(r.Context(), req.Text)
	if err != nil {
		h.writeTurnError(w, conv.ID, err)
		return
	}

	resp := ConversationResponse{
		ConversationID: conv.ID,
		Status:         result.Status,
		Messages:       result.Messages,
		Options:        result.Options,
		Diagnosis:      result.Diagnosis,
	}
	if err := WriteJSON(w, http.StatusOK, resp); err != nil {
		h.logger.Error("Failed to encode turn response", zap.Error(err))
	}
}

// Reset handles POST /api/diagnose/{id}/reset requests.
func (h *DiagnoseHandler) Reset(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	conv, err := h.engine.Reset(id)
	if err != nil {
		_ = ErrorResponse(w, http.StatusNotFound, "conversation_not_found", "no conversation with id "+id)
		return
	}
	if err := WriteJSON(w, http.StatusOK, h.conversationResponse(conv, nil)); err != nil {
		h.logger.Error("Failed to encode reset response", zap.Error(err))
	}
}

// Get handles GET /api/diagnose/{id} requests, returning the full log.
func (h *DiagnoseHandler) Get(w http.ResponseWriter, r *http.Request) {
	conv, ok := h.conversation(w, r)
	if !ok {
		return
	}
	if err := WriteJSON(w, http.StatusOK, h.conversationResponse(conv, conv.Diagnosis())); err != nil {
		h.logger.Error("Failed to encode conversation response", zap.Error(err))
	}
}

func (h *DiagnoseHandler) conversation(w http.ResponseWriter, r *http.Request) (*services.Conversation, bool) {
	id := r.PathValue("id")
	conv, err := h.engine.Get(id)
	if err != nil {
		_ = ErrorResponse(w, http.StatusNotFound, "conversation_not_found", "no conversation with id "+id)
		return nil, false
	}
	return conv, true
}

func (h *DiagnoseHandler) conversationResponse(conv *services.Conversation, diagnosis *models.DiagnosisReport) ConversationResponse {
	return ConversationResponse{
		ConversationID: conv.ID,
		Status:         conv.Status(),
		Messages:       conv.Messages(),
		Diagnosis:      diagnosis,
	}
}

func (h *DiagnoseHandler) writeTurnError(w http.ResponseWriter, id string, err error) {
	switch {
	case errors.Is(err, apperrors.ErrTurnInProgress):
		_ = ErrorResponse(w, http.StatusConflict, "turn_in_progress", "a turn is already being processed for this conversation")
	case errors.Is(err, apperrors.ErrConversationEnded):
		_ = ErrorResponse(w, http.StatusConflict, "conversation_ended", "the conversation has already ended; reset it or start a new one")
	case errors.Is(err, apperrors.ErrConversationReset):
		_ = ErrorResponse(w, http.StatusConflict, "conversation_reset", "the conversation was reset while this turn was being processed")
	default:
		h.logger.Error("Turn failed", zap.String("conversation_id", id), zap.Error(err))
		_ = ErrorResponse(w, http.StatusInternalServerError, "internal_error", "failed to process turn")
	}
}
