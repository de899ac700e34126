package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/DoyleJ11/fantasy-draft-backend/internal/league"
	"github.com/DoyleJ11/fantasy-draft-backend/internal/registry"
)

type LeagueHandler struct {
	store  *league.Store
	reg    *registry.Registry
	logger *zap.Logger
}

func NewLeagueHandler(store *league.Store, reg *registry.Registry, logger *zap.Logger) *LeagueHandler {
	return &LeagueHandler{store: store, reg: reg, logger: logger}
}

type createLeagueRequest struct {
	Name         string `json:"name"`
	Commissioner string `json:"commissioner"`
}

func (h *LeagueHandler) CreateLeague(w http.ResponseWriter, r *http.Request) {
	var req createLeagueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" || req.Commissioner == "" {
		http.Error(w, "name and commissioner required", http.StatusBadRequest)
		return
	}

	var code string
	for {
		c, err := league.GenerateCode()
		if err != nil {
			http.Error(w, "failed to generate code", http.StatusInternalServerError)
			return
		}
		if _, err := h.store.GetLeague(r.Context(), c); errors.Is(err, league.ErrNotFound) {
			code = c
			break
		}
		h.logger.Info("league code collision, regenerating", zap.String("code", c))
	}

	l := &league.League{Code: code, Name: req.Name, Status: league.StatusForming}
	if err := h.store.CreateLeague(r.Context(), l); err != nil {
		h.logger.Error("create league failed", zap.Error(err))
		http.Error(w, "failed to create league", http.StatusInternalServerError)
		return
	}
	member := &league.Member{LeagueCode: code, Username: req.Commissioner, Commissioner: true}
	if err := h.store.AddMember(r.Context(), member); err != nil {
		h.logger.Error("add commissioner failed", zap.Error(err))
		http.Error(w, "failed to create league", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, struct {
		Code string `json:"code"`
	}{Code: code})
}

func (h *LeagueHandler) GetLeague(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	l, err := h.store.GetLeague(r.Context(), code)
	if errors.Is(err, league.ErrNotFound) {
		http.Error(w, "league not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("get league failed", zap.Error(err))
		http.Error(w, "failed to load league", http.StatusInternalServerError)
		return
	}

	// Live presence, when a draft room exists for the league.
	online := 0
	if rm := h.reg.Get(code); rm != nil {
		online = rm.Clients()
	}

	writeJSON(w, http.StatusOK, struct {
		*league.League
		Online int `json:"online"`
	}{League: l, Online: online})
}

type updateLeagueRequest struct {
	Status       league.Status `json:"status"`
	Commissioner string        `json:"commissioner"`
}

func (h *LeagueHandler) UpdateLeague(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	var req updateLeagueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	switch req.Status {
	case league.StatusForming, league.StatusDrafting, league.StatusComplete:
	default:
		http.Error(w, "invalid status", http.StatusBadRequest)
		return
	}

	ok, err := h.store.IsAdmin(r.Context(), code, req.Commissioner)
	if err != nil {
		h.logger.Error("admin check failed", zap.Error(err))
		http.Error(w, "failed to update league", http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, "not authorized", http.StatusForbidden)
		return
	}

	if err := h.store.UpdateStatus(r.Context(), code, req.Status); err != nil {
		if errors.Is(err, league.ErrNotFound) {
			http.Error(w, "league not found", http.StatusNotFound)
			return
		}
		h.logger.Error("update league failed", zap.Error(err))
		http.Error(w, "failed to update league", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
