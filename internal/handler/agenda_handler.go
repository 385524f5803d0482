package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"coopvote/internal/domain"
	"coopvote/internal/service"
	"coopvote/pkg/logger"
)

type AgendaHandler struct {
	voting service.Voting
	logger *logger.Logger
}

func NewAgendaHandler(voting service.Voting, log *logger.Logger) *AgendaHandler {
	return &AgendaHandler{
		voting: voting,
		logger: log.Named("agenda_handler"),
	}
}

// Create handles POST /api/agendas
func (h *AgendaHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateAgendaRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err, h.logger)
		return
	}

	agenda, err := h.voting.CreateAgenda(r.Context(), &req)
	if err != nil {
		respondError(w, r, err, h.logger)
		return
	}
	respondJSON(w, http.StatusCreated, agenda)
}

// Get handles GET /api/agendas/{id}
func (h *AgendaHandler) Get(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.voting.GetAgenda(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err, h.logger)
		return
	}
	respondJSON(w, http.StatusOK, snapshot)
}

// List handles GET /api/agendas?status=&limit=&offset=
func (h *AgendaHandler) List(w http.ResponseWriter, r *http.Request) {
	page, err := parsePage(r)
	if err != nil {
		respondError(w, r, err, h.logger)
		return
	}

	status := domain.AgendaStatus(r.URL.Query().Get("status"))
	agendas, total, err := h.voting.ListAgendas(r.Context(), status, page)
	if err != nil {
		respondError(w, r, err, h.logger)
		return
	}
	respondJSON(w, http.StatusOK, pagedBody("agendas", agendas, len(agendas), total, page))
}

// ListSessions handles GET /api/agendas/{id}/sessions
func (h *AgendaHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.voting.ListSessions(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err, h.logger)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"sessions": sessions,
	})
}

// StartSession handles POST /api/sessions
func (h *AgendaHandler) StartSession(w http.ResponseWriter, r *http.Request) {
	var req domain.StartSessionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err, h.logger)
		return
	}

	started, err := h.voting.StartSession(r.Context(), req.AgendaID, req.DurationInMinutes)
	if err != nil {
		respondError(w, r, err, h.logger)
		return
	}
	respondJSON(w, http.StatusCreated, started)
}

// Finalize handles POST /api/agendas/{id}/finalize, closing the session early
func (h *AgendaHandler) Finalize(w http.ResponseWriter, r *http.Request) {
	agenda, err := h.voting.Finalize(r.Context(), chi.URLParam(r, "id"), service.TriggerManual)
	if err != nil {
		respondError(w, r, err, h.logger)
		return
	}
	respondJSON(w, http.StatusOK, agenda)
}
