// Rapid Studio - Swipe Feed Engine and Preference Analytics
// Copyright 2026 Jeff M. Johnson (jeffmichaeljohnson-tech)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jeffmichaeljohnson-tech/rapid-studio

// Package api exposes the REST and websocket surface: session
// lifecycle, deck reads, the HTTP gesture-release fallback, media
// bytes, operator analytics, and health.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/auth"
	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/deck"
	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/logging"
	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/media"
	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/models"
	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/validation"
	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/websocket"
)

// maxRequestBody bounds JSON request bodies.
const maxRequestBody = 1 << 20

// TokenMinter issues session tokens. Nil when auth mode is "none".
type TokenMinter interface {
	GenerateSessionToken(userID, sessionID string) (string, error)
}

// Generator submits prompt-driven generation jobs. Satisfied by
// supplier.Client.
type Generator interface {
	RequestGeneration(ctx context.Context, req models.GenerationRequest) (string, error)
}

// Handler carries the API's collaborators.
type Handler struct {
	manager   *deck.Manager
	tokens    TokenMinter
	fetcher   *media.Fetcher
	hub       *websocket.Hub
	upgrader  *websocket.Upgrader
	generator Generator
	stats     StatsSource
	latency   LatencySource
	outbox    OutboxSource
	ready     []ReadyCheck
	version   string
}

// HandlerDeps wires a Handler. manager is required; the rest degrade
// gracefully when nil.
type HandlerDeps struct {
	Manager   *deck.Manager
	Tokens    TokenMinter
	Fetcher   *media.Fetcher
	Hub       *websocket.Hub
	Upgrader  *websocket.Upgrader
	Generator Generator
	Stats     StatsSource
	Latency   LatencySource
	Outbox    OutboxSource
	Ready     []ReadyCheck
	Version   string
}

// NewHandler builds the handler set. A nil Upgrader falls back to one
// that admits only requests without an Origin header.
func NewHandler(deps HandlerDeps) *Handler {
	if deps.Upgrader == nil {
		deps.Upgrader = websocket.NewUpgrader(nil)
	}
	return &Handler{
		manager:   deps.Manager,
		tokens:    deps.Tokens,
		fetcher:   deps.Fetcher,
		hub:       deps.Hub,
		upgrader:  deps.Upgrader,
		generator: deps.Generator,
		stats:     deps.Stats,
		latency:   deps.Latency,
		outbox:    deps.Outbox,
		ready:     deps.Ready,
		version:   deps.Version,
	}
}

type createSessionRequest struct {
	UserID        string            `json:"user_id" validate:"required,min=1,max=128"`
	ViewportWidth float64           `json:"viewport_width" validate:"omitempty,gt=0,lte=10000"`
	Prompt        string            `json:"prompt" validate:"omitempty,max=2000"`
	StyleParams   map[string]string `json:"style_params" validate:"omitempty,max=32"`
}

type createSessionResponse struct {
	Session models.SessionInfo  `json:"session"`
	Token   string              `json:"token,omitempty"`
	Deck    models.DeckSnapshot `json:"deck"`
}

type releaseRequest struct {
	DX         float64   `json:"dx"`
	DY         float64   `json:"dy"`
	VX         float64   `json:"vx" validate:"omitempty,gte=-100000,lte=100000"`
	VY         float64   `json:"vy"`
	StartedAt  time.Time `json:"started_at"`
	ReleasedAt time.Time `json:"released_at"`
}

type releaseResponse struct {
	Outcome   string              `json:"outcome"` // committed | snapped_back
	Decision  *models.Decision    `json:"decision,omitempty"`
	Transform models.Transform    `json:"transform"`
	Deck      models.DeckSnapshot `json:"deck"`
}

// CreateSession starts a session, seeds its deck, and mints the session
// token. An optional prompt is forwarded to the generation pipeline.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req createSessionRequest
	if !h.decode(rw, r, &req) {
		return
	}

	session, snap, err := h.manager.Create(r.Context(), req.UserID, req.ViewportWidth)
	if err != nil {
		logging.Error().Err(err).Str("user_id", req.UserID).Msg("API: Session create failed")
		rw.InternalError("failed to create session")
		return
	}

	info, err := session.Info(r.Context())
	if err != nil {
		rw.InternalError("failed to read session")
		return
	}

	resp := createSessionResponse{Session: info, Deck: snap}
	if h.tokens != nil {
		token, err := h.tokens.GenerateSessionToken(req.UserID, session.ID())
		if err != nil {
			logging.Error().Err(err).Msg("API: Token mint failed")
			rw.InternalError("failed to issue session token")
			return
		}
		resp.Token = token
	}

	if req.Prompt != "" {
		h.requestGeneration(r.Context(), session.ID(), req)
	}

	rw.Created(resp)
}

// requestGeneration is best-effort; a failed kickoff does not fail the
// session create.
func (h *Handler) requestGeneration(ctx context.Context, sessionID string, req createSessionRequest) {
	if h.generator == nil {
		return
	}
	jobID, err := h.generator.RequestGeneration(ctx, models.GenerationRequest{
		UserID:      req.UserID,
		Prompt:      req.Prompt,
		StyleParams: req.StyleParams,
	})
	if err != nil {
		logging.Warn().Err(err).Str("session_id", sessionID).Msg("API: Prompt generation request failed")
		return
	}
	logging.Debug().Str("session_id", sessionID).Str("job_id", jobID).Msg("API: Generation requested for prompt")
}

// GetDeck returns the session's current snapshot.
func (h *Handler) GetDeck(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	session, ok := h.session(rw, r)
	if !ok {
		return
	}

	snap, err := session.Snapshot(r.Context())
	if err != nil {
		h.sessionError(rw, err)
		return
	}
	rw.Success(snap)
}

// Release is the HTTP fallback for the websocket gesture stream: one
// begin-release exchange per call. started_at and released_at carry the
// client's view of the drag, but hesitation is timed on the server clock,
// so with begin and release landing in one request it reads near zero.
// Clients that care about hesitation stream the gesture over the
// websocket instead.
func (h *Handler) Release(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	session, ok := h.session(rw, r)
	if !ok {
		return
	}

	var req releaseRequest
	if !h.decode(rw, r, &req) {
		return
	}
	releasedAt := req.ReleasedAt
	if releasedAt.IsZero() {
		releasedAt = time.Now()
	}
	startedAt := req.StartedAt
	if startedAt.IsZero() || startedAt.After(releasedAt) {
		startedAt = releasedAt
	}

	// HTTP clients do not stream moves, so the begin is implicit.
	if err := session.Begin(r.Context(), models.GestureStart{At: startedAt}); err != nil {
		h.sessionError(rw, err)
		return
	}
	res, err := session.Release(r.Context(), models.GestureRelease{
		DX: req.DX, DY: req.DY, VX: req.VX, VY: req.VY, At: releasedAt,
	})
	if err != nil {
		h.sessionError(rw, err)
		return
	}

	outcome := "snapped_back"
	if res.Outcome.Committed {
		outcome = "committed"
	}
	rw.Success(releaseResponse{
		Outcome:   outcome,
		Decision:  res.Decision,
		Transform: res.Outcome.Transform,
		Deck:      res.Snapshot,
	})
}

// SessionStats returns the live session counters, enriched with the
// archive summary when analytics is enabled.
func (h *Handler) SessionStats(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	session, ok := h.session(rw, r)
	if !ok {
		return
	}

	info, err := session.Info(r.Context())
	if err != nil {
		h.sessionError(rw, err)
		return
	}

	resp := map[string]interface{}{"session": info}
	if h.stats != nil {
		if summary, err := h.stats.GetSessionSummary(r.Context(), session.ID()); err == nil {
			resp["archive"] = summary
		}
	}
	rw.Success(resp)
}

// DeleteSession flushes and ends the session.
func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	id := chi.URLParam(r, "id")
	if !h.authorizeSessionAccess(rw, r, id) {
		return
	}

	if err := h.manager.Close(r.Context(), id); err != nil {
		h.sessionError(rw, err)
		return
	}
	rw.NoContent()
}

// Media serves an item's bytes, fetching from origin on a cache miss.
// X-Media-Source reports which layer answered.
func (h *Handler) Media(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	itemID := chi.URLParam(r, "itemID")

	item, ok := h.manager.FindItem(itemID)
	if !ok {
		rw.NotFound("unknown item: " + itemID)
		return
	}
	if h.fetcher == nil {
		rw.ServiceUnavailable("media serving disabled")
		return
	}

	data, source, err := h.fetcher.Get(r.Context(), item)
	if err != nil {
		// Client falls back to its placeholder art.
		w.Header().Set("X-Media-Source", "unavailable")
		rw.Error(http.StatusNotFound, ErrCodeMediaUnavailable, "media unavailable: "+itemID)
		return
	}

	w.Header().Set("X-Media-Source", source)
	w.Header().Set("Content-Type", http.DetectContentType(data))
	w.Header().Set("Cache-Control", "private, max-age=3600")
	_, _ = w.Write(data)
}

// WebSocketSession upgrades the connection and binds it to the session.
func (h *Handler) WebSocketSession(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	session, ok := h.session(rw, r)
	if !ok {
		return
	}
	if h.hub == nil {
		rw.ServiceUnavailable("websocket disabled")
		return
	}
	if err := h.upgrader.Upgrade(h.hub, session, w, r); err != nil {
		logging.Warn().Err(err).Str("session_id", session.ID()).Msg("API: Websocket upgrade failed")
	}
}

// session resolves the path session and checks the caller may touch it.
func (h *Handler) session(rw *ResponseWriter, r *http.Request) (*deck.Session, bool) {
	id := chi.URLParam(r, "id")
	if !h.authorizeSessionAccess(rw, r, id) {
		return nil, false
	}
	session, err := h.manager.Get(id)
	if err != nil {
		rw.NotFound("unknown session: " + id)
		return nil, false
	}
	return session, true
}

// authorizeSessionAccess rejects device tokens bound to a different
// session. Admin tokens and auth mode none pass.
func (h *Handler) authorizeSessionAccess(rw *ResponseWriter, r *http.Request, sessionID string) bool {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok || claims.Role == models.RoleAdmin {
		return true
	}
	if claims.SessionID != sessionID {
		rw.Error(http.StatusForbidden, ErrCodeForbidden, "token is bound to a different session")
		return false
	}
	return true
}

func (h *Handler) sessionError(rw *ResponseWriter, err error) {
	switch {
	case errors.Is(err, deck.ErrSessionNotFound):
		rw.NotFound("unknown session")
	case errors.Is(err, deck.ErrSessionClosed):
		rw.Gone("session has ended")
	default:
		rw.InternalError(err.Error())
	}
}

// decode reads, validates, and reports a JSON request body. Returns
// false when a response was already written.
func (h *Handler) decode(rw *ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(nil, r.Body, maxRequestBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		rw.BadRequest("invalid JSON body: " + err.Error())
		return false
	}
	if verr := validation.ValidateStruct(v); verr != nil {
		rw.ValidationError("request validation failed", verr.ToAPIError().Details)
		return false
	}
	return true
}
