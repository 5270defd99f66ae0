package main

import (
	"context"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"accounthub/internal/config"
	"accounthub/internal/database"
	"accounthub/internal/handlers"
	"accounthub/internal/repository"
	"accounthub/internal/respond"
	"accounthub/internal/security"
	"accounthub/internal/service"
	"accounthub/internal/session"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize database with config (supports sqlite, postgres, mysql)
	db, err := database.Initialize(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	log.Printf("Database connection established (type: %s)", cfg.DatabaseType)

	// Run migrations
	if err := db.RunMigrations(cfg.MigrationsPath); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	log.Println("Migrations completed successfully")

	// Load templates
	templates, err := loadTemplates(cfg.TemplatesPath)
	if err != nil {
		log.Fatalf("Failed to load templates: %v", err)
	}

	log.Println("Templates loaded successfully")

	// Initialize email delivery
	emailService, err := service.NewEmailService(cfg.SESRegion, cfg.FromEmail, cfg.FromName, cfg.Debug)
	if err != nil {
		log.Fatalf("Failed to initialize email service: %v", err)
	}

	// Initialize repositories and services
	userRepo := repository.NewUserRepository(db)
	authService := service.NewAuthService(userRepo, emailService, cfg.AuthSecret, cfg.AppBaseURL, cfg.FromName, cfg.MaxLoginAttempts, cfg.RememberDuration)

	// Server-side sessions and the post-process worker
	sessions := session.NewStore()
	worker := respond.NewWorker(64)
	defer worker.Shutdown()

	// Initialize handlers
	limiter := security.NewRateLimiter(10, time.Minute)
	csrf := security.NewCSRFGenerator(cfg.AuthSecret)
	middleware := handlers.NewMiddleware(sessions, authService, limiter, csrf)
	authHandler := handlers.NewAuthHandler(authService, sessions, templates, worker, csrf)

	// Setup routes
	mux := http.NewServeMux()

	// Static files
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.Dir(cfg.StaticPath))))

	// Public routes
	mux.HandleFunc("GET /{$}", authHandler.Home)
	mux.HandleFunc("GET /login", authHandler.LoginPage)
	mux.HandleFunc("POST /login", middleware.RateLimit(authHandler.Login))
	mux.HandleFunc("POST /register", middleware.RateLimit(authHandler.Register))
	mux.HandleFunc("GET /register_success", authHandler.RegisterSuccess)
	mux.HandleFunc("GET /logout", authHandler.Logout)
	mux.HandleFunc("GET /unlock", authHandler.Unlock)
	mux.HandleFunc("GET /reset_pass", authHandler.ResetPasswordPage)
	mux.HandleFunc("POST /reset_pass", middleware.CSRFProtect(authHandler.ResetPassword))
	mux.HandleFunc("GET /session", authHandler.SessionInfo)

	// Protected routes
	mux.HandleFunc("GET /account", middleware.RequireAuth(authHandler.Account))

	// Wrap with logging middleware
	handler := handlers.Logging(mux)

	// Start server
	addr := ":" + cfg.ServerPort
	server := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start background cleanup of stale sessions
	go cleanupSessions(authService, sessions)

	// Graceful shutdown
	go func() {
		log.Printf("Server starting on http://localhost%s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Server shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown: %v", err)
	}
}

// loadTemplates loads all template files
func loadTemplates(templatesPath string) (*template.Template, error) {
	files, err := filepath.Glob(filepath.Join(templatesPath, "*.tmpl"))
	if err != nil {
		return nil, fmt.Errorf("failed to glob templates: %w", err)
	}

	tmpl, err := template.ParseFiles(files...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	return tmpl, nil
}

// cleanupSessions periodically removes expired cookie sessions from the
// database and idle server-side sessions from memory.
func cleanupSessions(authService *service.AuthService, sessions *session.Store) {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	for range ticker.C {
		if err := authService.CleanupExpiredCookieSessions(); err != nil {
			log.Printf("Error cleaning up expired cookie sessions: %v", err)
		} else {
			log.Println("Expired cookie sessions cleaned up")
		}

		sessions.Cleanup(24 * time.Hour)
	}
}
