package registry

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// Server exposes the subscription registry over HTTP: subscribe, settings
// update, unsubscribe and a manual dispatch trigger
type Server struct {
	store          *Store
	dispatcher     *Dispatcher
	vapidPublicKey string
	log            zerolog.Logger
}

// NewServer wires the HTTP surface of the registry
func NewServer(store *Store, dispatcher *Dispatcher, vapidPublicKey string, logger zerolog.Logger) *Server {
	return &Server{
		store:          store,
		dispatcher:     dispatcher,
		vapidPublicKey: vapidPublicKey,
		log:            logger,
	}
}

// Routes builds the router
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Post("/api/subscribe", s.handleSubscribe)
	r.Put("/api/update-settings", s.handleUpdateSettings)
	r.Post("/api/unsubscribe", s.handleUnsubscribe)
	r.Delete("/api/unsubscribe", s.handleUnsubscribe)
	r.Get("/api/cron", s.handleCron)
	r.Get("/api/vapid-public-key", s.handleVAPIDKey)

	return r
}

type subscribeRequest struct {
	Subscription json.RawMessage `json:"subscription"`
	Timezone     string          `json:"timezone"`
	HHMM         string          `json:"hhmm"`
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid payload")
		return
	}

	var sub struct {
		Endpoint string `json:"endpoint"`
	}
	if len(req.Subscription) == 0 || json.Unmarshal(req.Subscription, &sub) != nil || sub.Endpoint == "" ||
		req.Timezone == "" || req.HHMM == "" {
		writeError(w, http.StatusBadRequest, "Invalid payload")
		return
	}

	if err := s.store.Upsert(sub.Endpoint, string(req.Subscription), req.Timezone, req.HHMM); err != nil {
		s.log.Error().Err(err).Msg("subscribe failed")
		writeError(w, http.StatusInternalServerError, "Server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

type updateSettingsRequest struct {
	Endpoint string `json:"endpoint"`
	Timezone string `json:"timezone"`
	HHMM     string `json:"hhmm"`
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req updateSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Endpoint == "" || req.Timezone == "" || req.HHMM == "" {
		writeError(w, http.StatusBadRequest, "Invalid payload")
		return
	}

	err := s.store.UpdateSettings(req.Endpoint, req.Timezone, req.HHMM)
	if err != nil && err != ErrSubscriptionNotFound {
		s.log.Error().Err(err).Msg("update settings failed")
		writeError(w, http.StatusInternalServerError, "Server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Endpoint string `json:"endpoint"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Endpoint == "" {
		writeError(w, http.StatusBadRequest, "Missing endpoint")
		return
	}

	if err := s.store.Delete(req.Endpoint); err != nil {
		s.log.Error().Err(err).Msg("unsubscribe failed")
		writeError(w, http.StatusInternalServerError, "Server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleCron(w http.ResponseWriter, r *http.Request) {
	result := s.dispatcher.Run()
	if !result.OK {
		writeError(w, http.StatusInternalServerError, "Server error")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleVAPIDKey(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"key": s.vapidPublicKey})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
