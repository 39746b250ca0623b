package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/Dias221467/taskreminder/internal/models"
	"github.com/Dias221467/taskreminder/internal/repository"
	"github.com/Dias221467/taskreminder/internal/services"
	"github.com/Dias221467/taskreminder/pkg/logger"
	"github.com/Dias221467/taskreminder/pkg/middleware"
	"github.com/gorilla/mux"
)

const maxListLimit = 200

type NotificationHandler struct {
	Service *services.NotificationService
}

func NewNotificationHandler(service *services.NotificationService) *NotificationHandler {
	return &NotificationHandler{Service: service}
}

// GET /notifications?unread=true&type=reminder&limit=20
func (h *NotificationHandler) ListNotificationsHandler(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetUserFromContext(r.Context())
	if claims == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	q := r.URL.Query()
	var filter repository.ListFilter
	if v := q.Get("unread"); v != "" {
		unread, err := strconv.ParseBool(v)
		if err != nil {
			http.Error(w, "Invalid unread flag", http.StatusBadRequest)
			return
		}
		filter.UnreadOnly = unread
	}
	if v := q.Get("type"); v != "" {
		kind, err := models.ParseKind(v)
		if err != nil {
			http.Error(w, "Invalid notification type", http.StatusBadRequest)
			return
		}
		filter.Kind = &kind
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 || limit > maxListLimit {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		filter.Limit = limit
	}

	notifications, err := h.Service.ListForUser(r.Context(), claims.UserID, filter)
	if err != nil {
		logger.Log.Errorf("Failed to fetch notifications for user %s: %v", claims.UserID, err)
		http.Error(w, "Failed to get notifications", http.StatusInternalServerError)
		return
	}
	if notifications == nil {
		notifications = []models.Notification{}
	}
	writeJSON(w, http.StatusOK, notifications)
}

// GET /notifications/unread-count
func (h *NotificationHandler) UnreadCountHandler(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetUserFromContext(r.Context())
	if claims == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	count, err := h.Service.GetUnreadCount(r.Context(), claims.UserID)
	if err != nil {
		logger.Log.Errorf("Failed to count unread notifications for user %s: %v", claims.UserID, err)
		http.Error(w, "Failed to count notifications", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"unread_count": count})
}

type createNotificationRequest struct {
	UserID  string  `json:"user_id"`
	TaskID  *string `json:"task_id"`
	Message string  `json:"message"`
	Type    string  `json:"type"`
}

// POST /notifications
// Admins may target another user; everyone else notifies themselves.
func (h *NotificationHandler) CreateNotificationHandler(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetUserFromContext(r.Context())
	if claims == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req createNotificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	userID := claims.UserID
	if req.UserID != "" && req.UserID != claims.UserID {
		if claims.Role != "admin" {
			logger.Log.Warnf("User %s tried to notify user %s", claims.UserID, req.UserID)
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		userID = req.UserID
	}

	kind := models.KindInfo
	if req.Type != "" {
		parsed, err := models.ParseKind(req.Type)
		if err != nil {
			http.Error(w, "Invalid notification type", http.StatusBadRequest)
			return
		}
		kind = parsed
	}

	n, err := h.Service.CreateInstantNotification(r.Context(), userID, req.TaskID, req.Message, kind)
	switch {
	case errors.Is(err, services.ErrEmptyMessage):
		http.Error(w, "Message is required", http.StatusBadRequest)
		return
	case err != nil && n == nil:
		logger.Log.Errorf("Failed to create notification for user %s: %v", userID, err)
		http.Error(w, "Failed to create notification", http.StatusInternalServerError)
		return
	case err != nil:
		// Stored but not delivered; the scheduler picks it up on its next tick.
		logger.Log.Warnf("Notification %s stored but not dispatched: %v", n.ID, err)
		writeJSON(w, http.StatusAccepted, n)
		return
	}
	writeJSON(w, http.StatusCreated, n)
}

// PATCH /notifications/{id}/read
func (h *NotificationHandler) MarkAsReadHandler(w http.ResponseWriter, r *http.Request) {
	n, ok := h.ownedNotification(w, r)
	if !ok {
		return
	}

	if err := h.Service.MarkRead(r.Context(), n.ID); err != nil {
		logger.Log.Errorf("Failed to mark notification %s as read: %v", n.ID, err)
		http.Error(w, "Failed to mark as read", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Notification marked as read"})
}

// PATCH /notifications/read-all
func (h *NotificationHandler) MarkAllAsReadHandler(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetUserFromContext(r.Context())
	if claims == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	marked, err := h.Service.MarkAllRead(r.Context(), claims.UserID)
	if err != nil {
		logger.Log.Errorf("Failed to mark notifications as read for user %s: %v", claims.UserID, err)
		http.Error(w, "Failed to mark as read", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"marked": marked})
}

// DELETE /notifications/{id}
func (h *NotificationHandler) DeleteNotificationHandler(w http.ResponseWriter, r *http.Request) {
	n, ok := h.ownedNotification(w, r)
	if !ok {
		return
	}

	deleted, err := h.Service.Delete(r.Context(), n.ID)
	if err != nil {
		logger.Log.Errorf("Failed to delete notification %s: %v", n.ID, err)
		http.Error(w, "Failed to delete notification", http.StatusInternalServerError)
		return
	}
	if !deleted {
		http.Error(w, "Notification not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Notification deleted"})
}

// ownedNotification loads {id} and checks it belongs to the caller. It writes
// the error response itself when ok is false.
func (h *NotificationHandler) ownedNotification(w http.ResponseWriter, r *http.Request) (*models.Notification, bool) {
	claims := middleware.GetUserFromContext(r.Context())
	if claims == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return nil, false
	}

	id := strings.TrimSpace(mux.Vars(r)["id"])
	if id == "" {
		http.Error(w, "Invalid notification ID", http.StatusBadRequest)
		return nil, false
	}

	n, err := h.Service.GetNotification(r.Context(), id)
	if errors.Is(err, repository.ErrNotFound) {
		http.Error(w, "Notification not found", http.StatusNotFound)
		return nil, false
	}
	if err != nil {
		logger.Log.Errorf("Failed to load notification %s: %v", id, err)
		http.Error(w, "Failed to load notification", http.StatusInternalServerError)
		return nil, false
	}
	if n.UserID != claims.UserID {
		logger.Log.Warnf("User %s tried to access notification %s they do not own", claims.UserID, id)
		http.Error(w, "Forbidden", http.StatusForbidden)
		return nil, false
	}
	return n, true
}
