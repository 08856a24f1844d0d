package gamification

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/practiceprep/backend/internal/middleware"
	"github.com/practiceprep/backend/internal/models"
)

const maxOptionLength = 5

type Handler struct {
	engine *Engine
	logger *slog.Logger
}

func NewHandler(engine *Engine, logger *slog.Logger) *Handler {
	return &Handler{engine: engine, logger: logger.With("component", "gamification_http")}
}

// RegisterRoutes mounts the user routes on protected and the staff-only
// routes on staff.
func (h *Handler) RegisterRoutes(protected, staff *mux.Router) {
	protected.HandleFunc("/questions/{id}/answer", h.SubmitAnswer).Methods("POST")
	protected.HandleFunc("/exams/sessions/{id}/complete", h.CompleteExam).Methods("POST")
	protected.HandleFunc("/leaderboard/{period}", h.GetLeaderboard).Methods("GET")
	protected.HandleFunc("/gamification/progress", h.GetProgress).Methods("GET")

	staff.HandleFunc("/scheduler/run", h.RunScheduler).Methods("POST")
	staff.HandleFunc("/social-events", h.RecordSocialEvent).Methods("POST")
	staff.HandleFunc("/achievements/{key}", h.DeleteAchievement).Methods("DELETE")
	staff.HandleFunc("/reward-items", h.CreateRewardItem).Methods("POST")
}

func getUserID(r *http.Request) (int64, bool) {
	return middleware.UserID(r.Context())
}

// ── Answers & Exams ─────────────────────────────────────

func (h *Handler) SubmitAnswer(w http.ResponseWriter, r *http.Request) {
	userID, ok := getUserID(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Authentication required"})
		return
	}

	questionID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid question ID"})
		return
	}

	var req models.SubmitAnswerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body"})
		return
	}
	option := strings.TrimSpace(req.SelectedOption)
	if option == "" || len(option) > maxOptionLength {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "selected_option is required"})
		return
	}

	resp, err := h.engine.SubmitAnswer(r.Context(), userID, questionID, option)
	if err != nil {
		h.writeEngineError(w, err, "Failed to submit answer")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) CompleteExam(w http.ResponseWriter, r *http.Request) {
	userID, ok := getUserID(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Authentication required"})
		return
	}

	var req models.CompleteExamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body"})
		return
	}
	if req.ExamID <= 0 {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "exam_id is required"})
		return
	}

	resp, err := h.engine.CompleteExam(r.Context(), models.ExamSession{
		ID:      mux.Vars(r)["id"],
		UserID:  userID,
		ExamID:  req.ExamID,
		Answers: req.Answers,
	})
	if err != nil {
		h.writeEngineError(w, err, "Failed to complete exam")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// ── Leaderboard & Progress ──────────────────────────────

func (h *Handler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	if _, ok := getUserID(r); !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Authentication required"})
		return
	}

	resp, err := h.engine.GetLeaderboard(r.Context(), mux.Vars(r)["period"], r.URL.Query().Get("key"))
	if err != nil {
		h.writeEngineError(w, err, "Failed to get leaderboard")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) GetProgress(w http.ResponseWriter, r *http.Request) {
	userID, ok := getUserID(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Authentication required"})
		return
	}

	resp, err := h.engine.GetProgress(r.Context(), userID)
	if err != nil {
		h.writeEngineError(w, err, "Failed to get progress")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// ── Staff ───────────────────────────────────────────────

func (h *Handler) RunScheduler(w http.ResponseWriter, r *http.Request) {
	report, err := h.engine.RunScheduledAggregation(r.Context())
	if err != nil {
		h.writeEngineError(w, err, "Scheduled aggregation failed")
		return
	}

	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) RecordSocialEvent(w http.ResponseWriter, r *http.Request) {
	var req models.SocialEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body"})
		return
	}
	if req.UserID <= 0 {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "user_id is required"})
		return
	}

	outcome, err := h.engine.RecordSocialEvent(r.Context(), req.UserID, req.Trigger)
	if err != nil {
		h.writeEngineError(w, err, "Failed to record event")
		return
	}

	writeJSON(w, http.StatusOK, outcome)
}

func (h *Handler) DeleteAchievement(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	if err := h.engine.DeleteAchievement(r.Context(), key); err != nil {
		switch {
		case errors.Is(err, ErrAchievementInUse):
			writeJSON(w, http.StatusConflict, models.ErrorResponse{Error: err.Error()})
		case errors.Is(err, models.ErrNotFound):
			writeJSON(w, http.StatusNotFound, models.ErrorResponse{Error: "Achievement not found"})
		default:
			h.writeEngineError(w, err, "Failed to delete achievement")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *Handler) CreateRewardItem(w http.ResponseWriter, r *http.Request) {
	var req models.CreateRewardItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body"})
		return
	}

	item, err := h.engine.CreateRewardItem(r.Context(), req)
	if err != nil {
		if errors.Is(err, ErrItemExists) {
			writeJSON(w, http.StatusConflict, models.ErrorResponse{Error: err.Error()})
			return
		}
		h.writeEngineError(w, err, "Failed to create reward item")
		return
	}

	writeJSON(w, http.StatusCreated, item)
}

// ── Helpers ─────────────────────────────────────────────

func (h *Handler) writeEngineError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case IsNotFoundError(err):
		writeJSON(w, http.StatusNotFound, models.ErrorResponse{Error: err.Error()})
	case IsValidationError(err):
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
	default:
		h.logger.Error(fallback, "error", err)
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: fallback})
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
