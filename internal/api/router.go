package api

import (
	"net/http"

	"github.com/jmcgover/ngrambot/pkg/config"
	"github.com/jmcgover/ngrambot/pkg/health"
	"github.com/jmcgover/ngrambot/pkg/metrics"
	"github.com/jmcgover/ngrambot/pkg/middleware"
)

// NewRouter builds the API handler.
//
// Route table:
//
//	GET    /api/v1/sentence        n-gram sentence (?order=, ?link=)
//	GET    /api/v1/pos-sentence    part-of-speech sentence (?order=)
//	GET    /api/v1/compose         post preview, not sent
//	GET    /api/v1/posts           post history (?limit=)
//	POST   /api/v1/posts           compose and send a post  (admin key)
//	POST   /api/v1/model/rebuild   rebuild the model        (admin key)
//	GET    /health/live, /health/ready
//
// Middleware, outermost first: RequestID, Timeout, Metrics, RateLimit.
// limiter may be nil.
func NewRouter(h *Handler, checker *health.Checker, m *metrics.Metrics, cfg config.ServerConfig, limiter *middleware.Limiter) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	mux.HandleFunc("GET /api/v1/sentence", h.Sentence)
	mux.HandleFunc("GET /api/v1/pos-sentence", h.PosSentence)
	mux.HandleFunc("GET /api/v1/compose", h.Compose)
	mux.HandleFunc("GET /api/v1/posts", h.ListPosts)

	admin := middleware.AdminKey(cfg.AdminKey)
	mux.Handle("POST /api/v1/posts", admin(http.HandlerFunc(h.CreatePost)))
	mux.Handle("POST /api/v1/model/rebuild", admin(http.HandlerFunc(h.Rebuild)))

	var chain http.Handler = mux
	if limiter != nil {
		chain = middleware.RateLimit(limiter)(chain)
	}
	chain = middleware.Metrics(m)(chain)
	chain = middleware.Timeout(cfg.RequestTimeout)(chain)
	chain = middleware.RequestID(chain)
	return chain
}
