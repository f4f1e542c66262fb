package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/rso-iota/rso-bots/bot/domain"
)

// BotsHandler は /api/bots 配下の JSON API です。
type BotsHandler struct {
	control  BotControl
	defaults Defaults
	logger   *slog.Logger
}

func NewBotsHandler(control BotControl, defaults Defaults, logger *slog.Logger) *BotsHandler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &BotsHandler{control: control, defaults: defaults, logger: logger}
}

// List handles GET /api/bots.
func (h *BotsHandler) List(w http.ResponseWriter, r *http.Request) {
	infos, err := h.control.List(r.Context())
	if err != nil {
		h.sendError(w, r, err)
		return
	}
	bots := make([]BotView, 0, len(infos))
	for _, info := range infos {
		bots = append(bots, NewBotView(info))
	}
	sendJSON(w, http.StatusOK, map[string]any{"bots": bots})
}

// Get handles GET /api/bots/{id}.
func (h *BotsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	info, ok, err := h.control.Get(r.Context(), id)
	if err != nil {
		h.sendError(w, r, err)
		return
	}
	if !ok {
		sendJSONError(w, http.StatusNotFound, "bot not found")
		return
	}
	sendJSON(w, http.StatusOK, NewBotView(info))
}

// Create handles POST /api/bots.
func (h *BotsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
			sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}
	if req.BotID == "" {
		req.BotID = uuid.NewString()
	}
	view, err := create(r.Context(), h.control, req.BotID, h.defaults.spec(req.BotID, req))
	if err != nil {
		h.sendError(w, r, err)
		return
	}
	h.logger.InfoContext(r.Context(), "bot created", "botID", req.BotID)
	sendJSON(w, http.StatusCreated, view)
}

// Delete handles DELETE /api/bots/{id}.
func (h *BotsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.control.Remove(r.Context(), id); err != nil {
		h.sendError(w, r, err)
		return
	}
	h.logger.InfoContext(r.Context(), "bot deleted", "botID", id)
	w.WriteHeader(http.StatusNoContent)
}

func (h *BotsHandler) sendError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrAgentAlreadyExists):
		sendJSONError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrAgentNotFound):
		sendJSONError(w, http.StatusNotFound, err.Error())
	case isClientError(err):
		sendJSONError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrSupervisorStopped):
		sendJSONError(w, http.StatusServiceUnavailable, err.Error())
	default:
		h.logger.ErrorContext(r.Context(), "bot api request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		sendJSONError(w, http.StatusInternalServerError, "internal server error")
	}
}

func sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func sendJSONError(w http.ResponseWriter, status int, message string) {
	sendJSON(w, status, map[string]string{"error": message})
}
