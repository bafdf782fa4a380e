package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/tapboard/internal/domain"
	"github.com/tapboard/internal/service"
	"github.com/tapboard/internal/websocket"
)

// Handler provides HTTP handlers for the leaderboard API. The submission
// endpoint is the gateway boundary: whatever bot or relay fronts the game
// POSTs events here and delivers the reply text back to the player.
type Handler struct {
	service *service.ScoreService
	hub     *websocket.Hub
	logger  *slog.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(service *service.ScoreService, hub *websocket.Hub, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		hub:     hub,
		logger:  logger,
	}
}

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// SubmissionRequest is the gateway event shape
type SubmissionRequest struct {
	UserID      int64  `json:"user_id"`
	DisplayName string `json:"display_name"`
	Payload     string `json:"payload"`
}

// Router creates and configures the HTTP router
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(corsMiddleware)

	// Health check
	r.Get("/health", h.HealthCheck)
	r.Get("/ready", h.ReadyCheck)

	// WebSocket endpoint
	r.Get("/ws", h.HandleWebSocket)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/submissions", h.SubmitScore)

		r.Route("/leaderboard", func(r chi.Router) {
			r.Get("/top", h.GetTop)
			r.Get("/text", h.GetTopText)
			r.Get("/player/{userID}", h.GetPlayer)
		})

		r.Route("/players/{userID}/boosts", func(r chi.Router) {
			r.Get("/", h.GetBoosts)
			r.Post("/use", h.UseBoost)
			r.Post("/grant", h.GrantBoosts)
		})

		r.Get("/cheaters/{userID}", h.GetCheatRecord)

		// WebSocket info endpoint
		r.Get("/ws/stats", h.GetWebSocketStats)
	})

	return r
}

// corsMiddleware adds CORS headers
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Request-ID")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeSuccess writes a successful JSON response
func (h *Handler) writeSuccess(w http.ResponseWriter, data interface{}) {
	h.writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    data,
	})
}

// writeError writes an error JSON response
func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	h.writeJSON(w, status, APIResponse{
		Success: false,
		Error:   err.Error(),
	})
}

func userIDParam(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}

// statusForVerdict maps validation outcomes onto HTTP statuses. Every verdict
// still carries its reason in the body; the status is for gateway routing.
func statusForVerdict(v domain.Verdict) int {
	switch v {
	case domain.VerdictAccept:
		return http.StatusOK
	case domain.VerdictRejectMalformed, domain.VerdictRejectOutOfRange:
		return http.StatusBadRequest
	case domain.VerdictRejectFlagged:
		return http.StatusForbidden
	case domain.VerdictRejectRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusBadRequest
	}
}

// HandleWebSocket handles WebSocket upgrade requests
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.ServeWs(h.hub, h.logger, w, r)
}

// GetWebSocketStats returns WebSocket connection statistics
func (h *Handler) GetWebSocketStats(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]interface{}{
		"total_connections": h.hub.GetTotalConnections(),
	})
}

// HealthCheck returns service health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]string{"status": "healthy"})
}

// ReadyCheck returns service readiness status
func (h *Handler) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]string{"status": "ready"})
}

// SubmitScore handles a gateway submission event
func (h *Handler) SubmitScore(w http.ResponseWriter, r *http.Request) {
	var req SubmissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	if req.UserID == 0 {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	event := domain.SubmissionEvent{
		UserID:      req.UserID,
		DisplayName: req.DisplayName,
		RawPayload:  req.Payload,
		ReceivedAt:  time.Now(),
	}

	outcome, err := h.service.ProcessSubmission(r.Context(), event)
	if err != nil {
		h.logger.Error("failed to process submission", "user_id", req.UserID, "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	h.writeJSON(w, statusForVerdict(outcome.Verdict), APIResponse{
		Success: outcome.Verdict.Accepted(),
		Data:    outcome,
	})
}

// GetTop returns the ranked top entries
func (h *Handler) GetTop(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = l
		}
	}

	entries, err := h.service.TopN(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to get top", "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	h.writeSuccess(w, entries)
}

// GetTopText returns the formatted top-N reply text
func (h *Handler) GetTopText(w http.ResponseWriter, r *http.Request) {
	text, err := h.service.TopText(r.Context())
	if err != nil {
		h.logger.Error("failed to get top text", "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	h.writeSuccess(w, map[string]string{"text": text})
}

// GetPlayer returns a user's rank and score
func (h *Handler) GetPlayer(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDParam(r)
	if !ok {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	entry, err := h.service.GetPlayer(r.Context(), userID)
	if err != nil {
		if domain.IsNotFoundError(err) {
			h.writeError(w, http.StatusNotFound, err)
			return
		}
		h.logger.Error("failed to get player", "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	h.writeSuccess(w, entry)
}

// GetBoosts returns a user's boost balance
func (h *Handler) GetBoosts(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDParam(r)
	if !ok {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	event := domain.SubmissionEvent{
		UserID:     userID,
		RawPayload: `{"action":"get_boosts"}`,
		ReceivedAt: time.Now(),
	}
	outcome, err := h.service.ProcessSubmission(r.Context(), event)
	if err != nil {
		h.logger.Error("failed to get boosts", "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	h.writeSuccess(w, outcome)
}

// UseBoost consumes one of the user's boosts
func (h *Handler) UseBoost(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDParam(r)
	if !ok {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	event := domain.SubmissionEvent{
		UserID:     userID,
		RawPayload: `{"action":"use_boost"}`,
		ReceivedAt: time.Now(),
	}
	outcome, err := h.service.ProcessSubmission(r.Context(), event)
	if err != nil {
		h.logger.Error("failed to use boost", "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	h.writeSuccess(w, outcome)
}

// GrantBoosts credits referral boosts to a user
func (h *Handler) GrantBoosts(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDParam(r)
	if !ok {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	balance, err := h.service.GrantReferralBoosts(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to grant boosts", "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	h.writeSuccess(w, map[string]int64{"balance": balance})
}

// GetCheatRecord returns a user's cheat record
func (h *Handler) GetCheatRecord(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDParam(r)
	if !ok {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	record, err := h.service.GetCheatRecord(r.Context(), userID)
	if err != nil {
		if domain.IsNotFoundError(err) {
			h.writeError(w, http.StatusNotFound, err)
			return
		}
		h.logger.Error("failed to get cheat record", "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	h.writeSuccess(w, record)
}
