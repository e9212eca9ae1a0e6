// Package api exposes the snapshot cache to the mobile client. All handlers
// read point-in-time copies of the cache; only mark-seen and the recipient
// registration calls mutate state, and never the vehicle records' identity.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"willhaben_watch/internal/model"
	"willhaben_watch/internal/scheduler"
	"willhaben_watch/internal/store"
)

// listLimit caps the externally visible listing.
const listLimit = 100

// Scraper triggers scrape cycles on demand, subject to the scheduler's
// mutual-exclusion contract.
type Scraper interface {
	RunOnce(ctx context.Context) scheduler.Result
	InFlight() bool
}

// Server handles the HTTP API.
type Server struct {
	store   *store.Store
	scraper Scraper
	log     *slog.Logger
}

// New creates a Server.
func New(st *store.Store, scraper Scraper, log *slog.Logger) *Server {
	return &Server{store: st, scraper: scraper, log: log}
}

// Handler returns the route mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/vehicles", s.handleVehicles)
	mux.HandleFunc("GET /api/vehicles/new", s.handleNewVehicles)
	mux.HandleFunc("POST /api/vehicles/mark-seen", s.handleMarkSeen)
	mux.HandleFunc("POST /api/scrape", s.handleScrape)
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("POST /api/register-push-token", s.handleRegisterToken)
	mux.HandleFunc("DELETE /api/register-push-token", s.handleUnregisterToken)
	mux.HandleFunc("GET /{$}", s.handleRoot)
	return mux
}

func (s *Server) handleVehicles(w http.ResponseWriter, _ *http.Request) {
	vehicles, last := s.store.ListCurrent(listLimit)
	s.writeJSON(w, http.StatusOK, struct {
		Vehicles       []model.Vehicle `json:"vehicles"`
		LastScrapeTime *time.Time      `json:"lastScrapeTime"`
	}{vehicles, last})
}

func (s *Server) handleNewVehicles(w http.ResponseWriter, _ *http.Request) {
	vehicles := s.store.ListNew()
	s.writeJSON(w, http.StatusOK, struct {
		Vehicles []model.Vehicle `json:"vehicles"`
		Count    int             `json:"count"`
	}{vehicles, len(vehicles)})
}

func (s *Server) handleMarkSeen(w http.ResponseWriter, _ *http.Request) {
	s.store.AcknowledgeAll()
	s.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleScrape(w http.ResponseWriter, r *http.Request) {
	res := s.scraper.RunOnce(r.Context())
	s.writeJSON(w, http.StatusOK, struct {
		Success        bool       `json:"success"`
		NewCount       int        `json:"newCount"`
		TotalVehicles  int        `json:"totalVehicles"`
		LastScrapeTime *time.Time `json:"lastScrapeTime"`
		IsScraping     bool       `json:"isScraping"`
	}{true, res.NewCount, res.TotalVehicles, res.LastScrapeTime, s.scraper.InFlight()})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	stats := s.store.Stats()
	s.writeJSON(w, http.StatusOK, struct {
		Status               string     `json:"status"`
		LastScrapeTime       *time.Time `json:"lastScrapeTime"`
		TotalVehicles        int        `json:"totalVehicles"`
		NewVehicles          int        `json:"newVehicles"`
		RegisteredPushTokens int        `json:"registeredPushTokens"`
		IsScraping           bool       `json:"isScraping"`
	}{"ok", stats.LastScrapeTime, stats.TotalVehicles, stats.NewVehicles, stats.Recipients, s.scraper.InFlight()})
}

type tokenRequest struct {
	Token string `json:"token"`
}

func (s *Server) handleRegisterToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Token == "" {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid token"})
		return
	}
	s.store.AddRecipient(req.Token)
	s.log.Info("push token registered", "total", s.store.Stats().Recipients)
	s.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleUnregisterToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err == nil && req.Token != "" {
		s.store.RemoveRecipient(req.Token)
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, struct {
		Message   string   `json:"message"`
		Endpoints []string `json:"endpoints"`
		Status    string   `json:"status"`
	}{
		Message: "Willhaben Cars API",
		Endpoints: []string{
			"/api/vehicles",
			"/api/vehicles/new",
			"/api/health",
			"/api/register-push-token",
		},
		Status: "running",
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("write response", "error", err)
	}
}
