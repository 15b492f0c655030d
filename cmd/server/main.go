package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/nursdev/lms-notifications/internal/config"
	"github.com/nursdev/lms-notifications/internal/database"
	"github.com/nursdev/lms-notifications/internal/handlers"
	"github.com/nursdev/lms-notifications/internal/realtime"
	"github.com/nursdev/lms-notifications/internal/repository"
	"github.com/nursdev/lms-notifications/internal/scheduler"
	"github.com/nursdev/lms-notifications/internal/services"
	"github.com/nursdev/lms-notifications/pkg/logger"
	"github.com/nursdev/lms-notifications/pkg/middleware"
	"github.com/rs/cors"
)

func main() {
	// Load configuration from .env file
	cfg := config.LoadConfig()

	logger.InitLogger()
	logger.Log.Info("Logger initialized")

	// Connect to MongoDB
	db, err := database.ConnectDB(cfg)
	if err != nil {
		log.Fatalf("Database connection error: %v", err)
	}

	// --- Repositories ---
	notificationRepo := repository.NewNotificationRepository(db)
	templateRepo := repository.NewTemplateRepository(db)
	userRepo := repository.NewUserRepository(db)

	// --- Realtime ---
	registry := realtime.NewRegistry()
	socketHandler := handlers.NewSocketHandler(registry, cfg.JWTSecret)
	broadcaster := realtime.NewBroadcaster(registry, socketHandler)
	socketHandler.Broadcaster = broadcaster

	// --- Services ---
	resolver := services.NewTargetResolver(userRepo)
	notificationService := services.NewNotificationService(notificationRepo, userRepo, resolver, broadcaster)
	templateService := services.NewTemplateService(templateRepo, notificationRepo)

	// --- Handlers ---
	notificationHandler := handlers.NewNotificationHandler(notificationService)
	templateHandler := handlers.NewTemplateHandler(templateService, notificationService)

	// Background activation of scheduled notifications
	scheduler.StartNotificationCronJobs(notificationService)

	// Initialize Gorilla Mux router
	router := mux.NewRouter()

	// User-facing notification routes
	notificationRoutes := router.PathPrefix("/notifications").Subrouter()
	notificationRoutes.Use(middleware.AuthMiddleware(cfg.JWTSecret))
	notificationRoutes.HandleFunc("", notificationHandler.GetUserNotificationsHandler).Methods("GET")
	notificationRoutes.HandleFunc("", notificationHandler.CreateNotificationHandler).Methods("POST")
	notificationRoutes.HandleFunc("/unread-count", notificationHandler.UnreadCountHandler).Methods("GET")
	notificationRoutes.HandleFunc("/stats", notificationHandler.StatsHandler).Methods("GET")
	notificationRoutes.HandleFunc("/bulk", notificationHandler.BulkActionHandler).Methods("POST")
	notificationRoutes.HandleFunc("/read-all", notificationHandler.MarkAllReadHandler).Methods("POST")
	notificationRoutes.HandleFunc("/{id}/read", notificationHandler.MarkAsReadHandler).Methods("POST")
	notificationRoutes.HandleFunc("/{id}/archive", notificationHandler.ArchiveHandler).Methods("POST")
	notificationRoutes.HandleFunc("/{id}/unarchive", notificationHandler.UnarchiveHandler).Methods("POST")
	notificationRoutes.HandleFunc("/{id}/restore", notificationHandler.RestoreHandler).Methods("POST")
	notificationRoutes.HandleFunc("/{id}", notificationHandler.DeleteHandler).Methods("DELETE")

	// Admin notification management
	adminRoutes := router.PathPrefix("/admin").Subrouter()
	adminRoutes.Use(middleware.AuthMiddleware(cfg.JWTSecret))
	adminRoutes.Use(middleware.RequireRole("admin", "staff"))
	adminRoutes.HandleFunc("/notifications", notificationHandler.AdminListHandler).Methods("GET")
	adminRoutes.HandleFunc("/notifications/scheduled", notificationHandler.ScheduledListHandler).Methods("GET")
	adminRoutes.HandleFunc("/notifications/scheduled/{id}", notificationHandler.CancelScheduledHandler).Methods("DELETE")
	adminRoutes.HandleFunc("/notifications/{id}/recipients", notificationHandler.RecipientsHandler).Methods("GET")
	adminRoutes.HandleFunc("/notifications/{id}", notificationHandler.AdminUpdateHandler).Methods("PATCH")
	adminRoutes.HandleFunc("/notifications/{id}", notificationHandler.AdminDeleteHandler).Methods("DELETE")

	// Template routes
	adminRoutes.HandleFunc("/templates", templateHandler.CreateTemplateHandler).Methods("POST")
	adminRoutes.HandleFunc("/templates", templateHandler.GetTemplatesHandler).Methods("GET")
	adminRoutes.HandleFunc("/templates/{name}", templateHandler.UpdateTemplateHandler).Methods("PATCH")
	adminRoutes.HandleFunc("/templates/{name}", templateHandler.DeleteTemplateHandler).Methods("DELETE")
	adminRoutes.HandleFunc("/templates/{name}/send", templateHandler.SendFromTemplateHandler).Methods("POST")

	// WebSocket endpoint (token is passed as a query parameter)
	router.HandleFunc("/ws", socketHandler.ServeWebSocketHandler)

	// Apply middleware for logging
	router.Use(middleware.LoggingMiddleware)

	// Start the HTTP server
	port := cfg.Port
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	})

	handler := c.Handler(router)

	fmt.Printf("Server running on port %s\n", port)
	log.Fatal(http.ListenAndServe(":"+port, handler))
}
