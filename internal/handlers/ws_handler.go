package handlers

import (
	"net/http"

	"github.com/Dias221467/taskreminder/internal/push"
	"github.com/Dias221467/taskreminder/pkg/logger"
	"github.com/Dias221467/taskreminder/pkg/middleware"
)

type PushHandler struct {
	Hub *push.Hub
}

func NewPushHandler(hub *push.Hub) *PushHandler {
	return &PushHandler{Hub: hub}
}

// GET /ws?token=...
// Blocks for the lifetime of the socket.
func (h *PushHandler) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetUserFromContext(r.Context())
	if claims == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	if err := h.Hub.Serve(w, r, claims.UserID); err != nil {
		logger.Log.WithError(err).WithField("user_id", claims.UserID).Warn("Push socket closed with error")
	}
}
