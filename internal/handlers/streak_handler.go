package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/Dias221467/taskreminder/internal/models"
	"github.com/Dias221467/taskreminder/internal/services"
	"github.com/Dias221467/taskreminder/pkg/logger"
	"github.com/Dias221467/taskreminder/pkg/middleware"
)

type StreakHandler struct {
	Service *services.StreakService
}

func NewStreakHandler(service *services.StreakService) *StreakHandler {
	return &StreakHandler{Service: service}
}

// GET /streak
func (h *StreakHandler) GetStreakHandler(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetUserFromContext(r.Context())
	if claims == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	streak, err := h.Service.GetStreak(r.Context(), claims.UserID)
	if err != nil {
		logger.Log.Errorf("Failed to load streak for user %s: %v", claims.UserID, err)
		http.Error(w, "Failed to get streak", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, streak)
}

type activityRequest struct {
	UserID     string     `json:"user_id"`
	OccurredAt *time.Time `json:"occurred_at"`
}

// POST /streak/activity
// Called when a task is created or completed. The body is optional; admins
// (the task service) may report activity for another user.
func (h *StreakHandler) RecordActivityHandler(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetUserFromContext(r.Context())
	if claims == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req activityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	userID := claims.UserID
	if req.UserID != "" && req.UserID != claims.UserID {
		if claims.Role != "admin" {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		userID = req.UserID
	}

	var (
		update models.StreakUpdate
		err    error
	)
	if req.OccurredAt != nil {
		update, err = h.Service.RecordActivityOn(r.Context(), userID, *req.OccurredAt)
	} else {
		update, err = h.Service.RecordActivity(r.Context(), userID)
	}
	if errors.Is(err, services.ErrFutureActivity) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if errors.Is(err, services.ErrBackdatedActivity) {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	if err != nil {
		logger.Log.Errorf("Failed to record activity for user %s: %v", userID, err)
		http.Error(w, "Failed to record activity", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, update)
}

// GET /admin/streaks/stats
func (h *StreakHandler) StatsHandler(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Service.Stats(r.Context())
	if err != nil {
		logger.Log.Errorf("Failed to compute streak stats: %v", err)
		http.Error(w, "Failed to get stats", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
