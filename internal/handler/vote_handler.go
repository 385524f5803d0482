package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"coopvote/internal/domain"
	"coopvote/internal/middleware"
	"coopvote/internal/service"
	"coopvote/pkg/errors"
	"coopvote/pkg/logger"
)

type VoteHandler struct {
	voting service.Voting
	logger *logger.Logger
}

func NewVoteHandler(voting service.Voting, log *logger.Logger) *VoteHandler {
	return &VoteHandler{
		voting: voting,
		logger: log.Named("vote_handler"),
	}
}

// CastVote handles POST /api/votes. The voter is the authenticated member;
// a userId in the body must match it.
func (h *VoteHandler) CastVote(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		respondError(w, r, errors.NewAuthenticationError("Authentication required"), h.logger)
		return
	}

	var req domain.CastVoteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err, h.logger)
		return
	}
	if req.UserID != "" && req.UserID != user.UserID {
		respondError(w, r, errors.NewValidationError("userId does not match the authenticated member", nil), h.logger)
		return
	}

	resp, err := h.voting.CastVote(r.Context(), req.AgendaID, user.UserID, req.Vote)
	if err != nil {
		respondError(w, r, err, h.logger)
		return
	}
	respondJSON(w, http.StatusCreated, resp)
}

// Tally handles GET /api/agendas/{id}/tally
func (h *VoteHandler) Tally(w http.ResponseWriter, r *http.Request) {
	t, err := h.voting.QueryTally(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err, h.logger)
		return
	}

	etag := generateETag(t)
	w.Header().Set("ETag", etag)
	if t.Status == domain.StatusFinished {
		w.Header().Set("Cache-Control", "public, max-age=300")
	} else {
		w.Header().Set("Cache-Control", "no-cache")
	}

	if match := r.Header.Get("If-None-Match"); match != "" && match == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	respondJSON(w, http.StatusOK, t)
}

// ListByAgenda handles GET /api/agendas/{id}/votes?limit=&offset=
func (h *VoteHandler) ListByAgenda(w http.ResponseWriter, r *http.Request) {
	page, err := parsePage(r)
	if err != nil {
		respondError(w, r, err, h.logger)
		return
	}

	votes, total, err := h.voting.ListVotes(r.Context(), chi.URLParam(r, "id"), page)
	if err != nil {
		respondError(w, r, err, h.logger)
		return
	}
	respondJSON(w, http.StatusOK, pagedBody("votes", votes, len(votes), total, page))
}

// ListMine handles GET /api/votes/me, the authenticated member's votes
func (h *VoteHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		respondError(w, r, errors.NewAuthenticationError("Authentication required"), h.logger)
		return
	}
	page, err := parsePage(r)
	if err != nil {
		respondError(w, r, err, h.logger)
		return
	}

	votes, total, err := h.voting.ListUserVotes(r.Context(), user.UserID, page)
	if err != nil {
		respondError(w, r, err, h.logger)
		return
	}
	respondJSON(w, http.StatusOK, pagedBody("votes", votes, len(votes), total, page))
}
