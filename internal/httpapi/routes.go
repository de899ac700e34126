package httpapi

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/DoyleJ11/fantasy-draft-backend/internal/config"
	"github.com/DoyleJ11/fantasy-draft-backend/internal/league"
	"github.com/DoyleJ11/fantasy-draft-backend/internal/registry"
	"github.com/DoyleJ11/fantasy-draft-backend/internal/ws"
)

func SetupRoutes(reg *registry.Registry, store *league.Store, cfg config.Config, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(corsMiddleware(cfg.AllowedOrigins))

	lh := NewLeagueHandler(store, reg, logger)

	r.Get("/healthz", Healthz)
	r.Get("/ws", ws.Handler(reg, cfg.AllowedOrigins, logger))
	r.Route("/leagues", func(r chi.Router) {
		r.Post("/", lh.CreateLeague)
		r.Get("/{code}", lh.GetLeague)
		r.Patch("/{code}", lh.UpdateLeague)
	})
	return r
}

func corsMiddleware(origins []string) func(http.Handler) http.Handler {
	allowed := "*"
	if len(origins) > 0 {
		allowed = strings.Join(origins, ", ")
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", allowed)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type")

			// Websocket upgrades skip further CORS handling; the
			// accept step does its own origin check.
			if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
				next.ServeHTTP(w, r)
				return
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
