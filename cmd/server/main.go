package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/codehive/backend/internal/api"
	"github.com/codehive/backend/internal/auth"
	"github.com/codehive/backend/internal/chat"
	"github.com/codehive/backend/internal/config"
	"github.com/codehive/backend/internal/db"
	"github.com/codehive/backend/internal/exec"
	"github.com/codehive/backend/internal/presence"
	"github.com/codehive/backend/internal/retention"
	"github.com/codehive/backend/internal/session"
	"github.com/codehive/backend/internal/ws"
)

// socketAuth adapts the auth service to the websocket layer.
type socketAuth struct {
	service *auth.Service
}

func (s socketAuth) Authenticate(token string) (ws.Identity, error) {
	identity, err := s.service.Verify(token)
	if err != nil {
		return ws.Identity{}, err
	}
	return ws.Identity{UserID: identity.UserID, Username: identity.Username}, nil
}

func main() {
	cfg := config.Load()

	database, err := db.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer database.Close()

	var sessions auth.SessionStore
	if cfg.RedisURL != "" {
		redisStore, err := session.NewRedisStore(cfg.RedisURL)
		if err != nil {
			log.Fatalf("Failed to connect to redis: %v", err)
		}
		defer redisStore.Close()
		sessions = redisStore
		log.Printf("Using Redis for refresh token storage")
	} else {
		sessions = session.NewMemoryStore()
		log.Printf("Using in-memory refresh token storage")
	}

	authService := auth.New(cfg.JWTSecret, cfg.AccessTTL, cfg.RefreshTTL, database, sessions)

	presenceStore := presence.NewStore()
	chatService := chat.New(database)

	hub := ws.NewHub(presenceStore, database, chatService)
	go hub.Run()

	var runner api.CodeRunner
	if cfg.JDoodleClientID != "" {
		runner = exec.NewClient(cfg.JDoodleClientID, cfg.JDoodleClientSecret)
	}

	retentionService := retention.New(database, retention.DefaultConfig(cfg.RoomTTL))
	retentionService.Start()
	defer retentionService.Stop()

	apiHandler := api.New(hub, database, authService, runner)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWs(hub, socketAuth{authService}, w, r)
	})
	mux.HandleFunc("/health", apiHandler.HealthHandler)
	mux.HandleFunc("/api/stats", apiHandler.StatsHandler)
	mux.HandleFunc("/api/auth/", apiHandler.AuthRouter)
	mux.HandleFunc("/api/rooms", apiHandler.RoomsRouter)
	mux.HandleFunc("/api/rooms/", apiHandler.RoomsRouter)

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           corsMiddleware(cfg.AllowedOrigin, mux),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("CodeHive server listening on %s", cfg.Addr)
		log.Println("Endpoints:")
		log.Println("  - WebSocket: /ws?token={accessToken}")
		log.Println("  - Health:    GET /health")
		log.Println("  - Stats:     GET /api/stats")
		log.Println("  - Auth:      POST /api/auth/{register,login,refresh,logout}")
		log.Println("  - Rooms:     POST /api/rooms, GET /api/rooms/{id}")
		log.Println("  - Files:     POST /api/rooms/{id}/files, DELETE /api/rooms/{id}/files/{name}")
		log.Println("  - Save:      POST /api/rooms/{id}/save")
		log.Println("  - Run:       POST /api/rooms/{id}/run")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("ListenAndServe: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
}

func corsMiddleware(origin string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
