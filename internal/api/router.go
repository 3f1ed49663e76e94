package api

import (
	"net/http"
	"time"

	"characterchat-backend/internal/config"
	"characterchat-backend/internal/handlers"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterDependencies holds all the dependencies required by the router setup,
// primarily handlers and configuration.
type RouterDependencies struct {
	ChatHandler    *handlers.ChatHandlers
	ThreadHandler  *handlers.ThreadHandlers
	ProfileHandler *handlers.ProfileHandlers
	Config         *config.Config
}

// NewRouter creates and configures the main Chi router for the application.
func NewRouter(deps RouterDependencies) *chi.Mux {
	r := chi.NewRouter()

	// --- Base Middleware Stack ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// --- CORS Configuration ---
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000", "http://localhost:5173", "https://*.vercel.app"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// --- Public Routes (No JWT Required) ---
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	r.Get("/v1/characters", handlers.HandleListCharacters)

	// --- Streaming Relay Route ---
	// Mounted without the request timeout middleware: a token stream stays
	// open for as long as the model generates.
	r.Group(func(r chi.Router) {
		r.Use(JwtAuthMiddleware(deps.Config.JWTSecret))
		r.Post("/v1/chat", deps.ChatHandler.HandleRelayChat)
	})

	// --- Authenticated Routes (JWT Required) ---
	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))
		r.Use(JwtAuthMiddleware(deps.Config.JWTSecret))

		r.Post("/profile", deps.ProfileHandler.HandleUpsertProfile)

		r.Route("/threads", func(r chi.Router) {
			r.Get("/", deps.ThreadHandler.HandleListThreads)
			r.Post("/", deps.ThreadHandler.HandleCreateThread)
			r.Get("/{threadID}/messages", deps.ThreadHandler.HandleListMessages)
			r.Post("/{threadID}/messages", deps.ThreadHandler.HandleCreateMessage)
		})
	})

	return r
}
