package handlers

import (
	"github.com/Dias221467/taskreminder/pkg/middleware"
	"github.com/gorilla/mux"
)

type Handlers struct {
	Notifications *NotificationHandler
	Streaks       *StreakHandler
	Push          *PushHandler
	Health        *HealthHandler
}

// NewRouter wires every route. All but /health require a JWT.
func NewRouter(h Handlers, jwtSecret string) *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/health", h.Health.HealthHandler).Methods("GET")

	auth := middleware.AuthMiddleware(jwtSecret)

	wsRoutes := router.PathPrefix("/ws").Subrouter()
	wsRoutes.Use(auth)
	wsRoutes.HandleFunc("", h.Push.WebSocketHandler).Methods("GET")

	notificationRoutes := router.PathPrefix("/notifications").Subrouter()
	notificationRoutes.Use(auth)
	notificationRoutes.HandleFunc("", h.Notifications.ListNotificationsHandler).Methods("GET")
	notificationRoutes.HandleFunc("", h.Notifications.CreateNotificationHandler).Methods("POST")
	notificationRoutes.HandleFunc("/unread-count", h.Notifications.UnreadCountHandler).Methods("GET")
	notificationRoutes.HandleFunc("/read-all", h.Notifications.MarkAllAsReadHandler).Methods("PATCH")
	notificationRoutes.HandleFunc("/{id}/read", h.Notifications.MarkAsReadHandler).Methods("PATCH")
	notificationRoutes.HandleFunc("/{id}", h.Notifications.DeleteNotificationHandler).Methods("DELETE")

	streakRoutes := router.PathPrefix("/streak").Subrouter()
	streakRoutes.Use(auth)
	streakRoutes.HandleFunc("", h.Streaks.GetStreakHandler).Methods("GET")
	streakRoutes.HandleFunc("/activity", h.Streaks.RecordActivityHandler).Methods("POST")

	adminRoutes := router.PathPrefix("/admin").Subrouter()
	adminRoutes.Use(auth)
	adminRoutes.Use(middleware.RequireRole("admin"))
	adminRoutes.HandleFunc("/streaks/stats", h.Streaks.StatsHandler).Methods("GET")

	router.Use(middleware.LoggingMiddleware)
	return router
}
