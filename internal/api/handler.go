// Package api exposes the bot over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/jmcgover/ngrambot/internal/bot"
	"github.com/jmcgover/ngrambot/internal/generator"
	"github.com/jmcgover/ngrambot/internal/ngram"
	"github.com/jmcgover/ngrambot/internal/poster"
	"github.com/jmcgover/ngrambot/internal/sink"
	apperrors "github.com/jmcgover/ngrambot/pkg/errors"
	"github.com/jmcgover/ngrambot/pkg/logger"
	"github.com/jmcgover/ngrambot/pkg/middleware"
)

// Bot is what the handlers call; *bot.Bot in production.
type Bot interface {
	Sentence(ctx context.Context, order int, mode generator.LinkMode) (bot.Sentence, error)
	PosSentence(ctx context.Context, order int) (bot.Sentence, error)
	Compose(ctx context.Context) (sink.Post, error)
	Post(ctx context.Context) (sink.Post, error)
	Rebuild(ctx context.Context) (*ngram.Model, error)
}

// PostLister serves the post history; *poster.History in production.
type PostLister interface {
	Recent(ctx context.Context, limit int) ([]poster.Entry, error)
}

const maxHistory = 100

type Handler struct {
	bot          Bot
	history      PostLister
	defaultOrder int
	logger       *slog.Logger
}

// New creates a Handler. history may be nil; the history endpoint then
// answers 503.
func New(b Bot, history PostLister, defaultOrder int) *Handler {
	return &Handler{
		bot:          b,
		history:      history,
		defaultOrder: defaultOrder,
		logger:       logger.WithComponent("api-handler"),
	}
}

// Sentence handles GET /api/v1/sentence?order=3&link=last.
func (h *Handler) Sentence(w http.ResponseWriter, r *http.Request) {
	order, ok := h.orderParam(w, r, h.defaultOrder)
	if !ok {
		return
	}
	mode, err := generator.ParseLinkMode(r.URL.Query().Get("link"))
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	s, err := h.bot.Sentence(r.Context(), order, mode)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, s)
}

// PosSentence handles GET /api/v1/pos-sentence?order=4. Without an order the
// configured default is used.
func (h *Handler) PosSentence(w http.ResponseWriter, r *http.Request) {
	order, ok := h.orderParam(w, r, 0)
	if !ok {
		return
	}
	s, err := h.bot.PosSentence(r.Context(), order)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, s)
}

// Compose handles GET /api/v1/compose: a post as it would be sent, without
// sending it.
func (h *Handler) Compose(w http.ResponseWriter, r *http.Request) {
	p, err := h.bot.Compose(r.Context())
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, p)
}

// CreatePost handles POST /api/v1/posts.
func (h *Handler) CreatePost(w http.ResponseWriter, r *http.Request) {
	p, err := h.bot.Post(r.Context())
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	logger.FromContext(r.Context()).Info("post created over api", "id", p.ID)
	h.writeJSON(w, http.StatusCreated, p)
}

// ListPosts handles GET /api/v1/posts?limit=20.
func (h *Handler) ListPosts(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		h.writeError(w, http.StatusServiceUnavailable, "post history is not configured")
		return
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			h.writeAppError(w, r, apperrors.Newf(apperrors.ErrInvalidArgument, http.StatusBadRequest, "limit %q must be a positive integer", v))
			return
		}
		limit = min(n, maxHistory)
	}
	entries, err := h.history.Recent(r.Context(), limit)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	if entries == nil {
		entries = []poster.Entry{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"posts": entries})
}

// Rebuild handles POST /api/v1/model/rebuild.
func (h *Handler) Rebuild(w http.ResponseWriter, r *http.Request) {
	m, err := h.bot.Rebuild(r.Context())
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"low":      m.Low,
		"high":     m.High,
		"built_at": m.BuiltAt,
		"tagged":   m.Tags != nil,
	})
}

// orderParam parses ?order=, answering 400 itself on a bad value.
func (h *Handler) orderParam(w http.ResponseWriter, r *http.Request, fallback int) (int, bool) {
	v := r.URL.Query().Get("order")
	if v == "" {
		return fallback, true
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		h.writeAppError(w, r, apperrors.Newf(apperrors.ErrInvalidArgument, http.StatusBadRequest, "order %q must be an integer", v))
		return 0, false
	}
	return n, true
}

func (h *Handler) writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatusCode(err)
	if errors.Is(err, context.DeadlineExceeded) {
		status = http.StatusGatewayTimeout
	}
	log := logger.FromContext(r.Context())
	if status >= 500 {
		log.Error("request failed", "path", r.URL.Path, "status", status, "error", err)
		h.writeJSON(w, status, map[string]string{
			"error":      http.StatusText(status),
			"request_id": middleware.GetRequestID(r.Context()),
		})
		return
	}
	log.Warn("request rejected", "path", r.URL.Path, "status", status, "error", err)
	h.writeError(w, status, err.Error())
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
