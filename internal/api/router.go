package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/mcoot/arcaderooms/internal/api/handler"
	"github.com/mcoot/arcaderooms/internal/api/middleware"
	"github.com/mcoot/arcaderooms/internal/api/response"
	"github.com/mcoot/arcaderooms/internal/api/sse"
	"github.com/mcoot/arcaderooms/internal/services/matches"
	"github.com/mcoot/arcaderooms/internal/services/relay"
	"github.com/mcoot/arcaderooms/internal/services/rooms"
)

// Pinger reports whether a backing store is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// RouterConfig holds configuration for the API router
type RouterConfig struct {
	Logger      *slog.Logger
	Coordinator *rooms.Coordinator
	Relay       *relay.Service
	Hub         *relay.Hub
	Recorder    *matches.Recorder
	Store       Pinger
	// Events serves the read-only room event stream (optional)
	Events *sse.HubManager
}

// NewRouter creates a new API router with all routes configured
func NewRouter(cfg RouterConfig) http.Handler {
	r := mux.NewRouter()

	// Create handlers
	notifiers := handler.Notifiers{cfg.Relay}
	if cfg.Events != nil {
		notifiers = append(notifiers, cfg.Events)
	}
	roomHandler := handler.NewRoomHandler(cfg.Coordinator, notifiers, cfg.Logger)
	relayHandler := handler.NewRelayHandler(cfg.Relay)
	matchHandler := handler.NewMatchHandler(cfg.Recorder)
	wsHandler := relay.NewHandler(cfg.Hub, cfg.Logger)

	// Create middleware
	loggingMiddleware := middleware.Logging(cfg.Logger)
	recoveryMiddleware := middleware.Recovery(cfg.Logger)

	// API subrouter with common middleware
	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(recoveryMiddleware)
	api.Use(loggingMiddleware)

	// Room lifecycle
	api.HandleFunc("/rooms", roomHandler.Create).Methods(http.MethodPost)
	api.HandleFunc("/rooms/{code}", roomHandler.Get).Methods(http.MethodGet)
	api.HandleFunc("/rooms/{code}/join", roomHandler.Join).Methods(http.MethodPost)
	api.HandleFunc("/rooms/{code}/ready", roomHandler.Ready).Methods(http.MethodPost)
	api.HandleFunc("/rooms/{code}/start", roomHandler.Start).Methods(http.MethodPost)
	api.HandleFunc("/rooms/{code}/finish", roomHandler.Finish).Methods(http.MethodPost)
	if cfg.Events != nil {
		api.HandleFunc("/rooms/{code}/events", sse.Handler(cfg.Events)).Methods(http.MethodGet)
	}

	// Realtime relay
	api.HandleFunc("/relay/update-player", relayHandler.UpdatePlayer).Methods(http.MethodPost)
	api.HandleFunc("/relay/players/{code}/{address}", relayHandler.Players).Methods(http.MethodGet)
	api.HandleFunc("/relay/cleanup", relayHandler.Cleanup).Methods(http.MethodPost)
	api.HandleFunc("/relay/stats", relayHandler.Stats).Methods(http.MethodGet)
	api.Handle("/relay/ws", wsHandler).Methods(http.MethodGet)

	// Match results
	api.HandleFunc("/matches/save", matchHandler.Save).Methods(http.MethodPost)
	api.HandleFunc("/matches/{address}", matchHandler.List).Methods(http.MethodGet)

	api.HandleFunc("/health", healthHandler(cfg.Store, cfg.Logger)).Methods(http.MethodGet)

	return r
}

func healthHandler(store Pinger, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if store == nil {
			response.JSON(w, http.StatusOK, response.Health{Status: "ok"})
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := store.Ping(ctx); err != nil {
			logger.Warn("health check failed", slog.String("error", err.Error()))
			response.JSON(w, http.StatusServiceUnavailable, response.Health{Status: "degraded", Store: "unavailable"})
			return
		}
		response.JSON(w, http.StatusOK, response.Health{Status: "ok", Store: "ok"})
	}
}
