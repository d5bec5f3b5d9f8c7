package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcgover/ngrambot/internal/bot"
	"github.com/jmcgover/ngrambot/internal/generator"
	"github.com/jmcgover/ngrambot/internal/ngram"
	"github.com/jmcgover/ngrambot/internal/poster"
	"github.com/jmcgover/ngrambot/internal/sink"
	"github.com/jmcgover/ngrambot/pkg/config"
	apperrors "github.com/jmcgover/ngrambot/pkg/errors"
	"github.com/jmcgover/ngrambot/pkg/health"
	"github.com/jmcgover/ngrambot/pkg/metrics"
	"github.com/jmcgover/ngrambot/pkg/middleware"
)

type fakeBot struct {
	gotOrder int
	gotMode  generator.LinkMode
	err      error
	posted   int
}

func (f *fakeBot) Sentence(_ context.Context, order int, mode generator.LinkMode) (bot.Sentence, error) {
	f.gotOrder, f.gotMode = order, mode
	if f.err != nil {
		return bot.Sentence{}, f.err
	}
	return bot.Sentence{Text: "I am here.", Kind: "ngram", Order: order, Mode: mode.String()}, nil
}

func (f *fakeBot) PosSentence(_ context.Context, order int) (bot.Sentence, error) {
	f.gotOrder = order
	if f.err != nil {
		return bot.Sentence{}, f.err
	}
	return bot.Sentence{Text: "He left.", Kind: "pos", Order: max(order, 4)}, nil
}

func (f *fakeBot) Compose(context.Context) (sink.Post, error) {
	if f.err != nil {
		return sink.Post{}, f.err
	}
	return sink.NewPost("I am here. #ng", "ngram", 2, "full"), nil
}

func (f *fakeBot) Post(ctx context.Context) (sink.Post, error) {
	p, err := f.Compose(ctx)
	if err == nil {
		f.posted++
	}
	return p, err
}

func (f *fakeBot) Rebuild(context.Context) (*ngram.Model, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &ngram.Model{Low: 1, High: 4, BuiltAt: time.Unix(0, 0).UTC()}, nil
}

type fakeHistory struct{ entries []poster.Entry }

func (f *fakeHistory) Recent(_ context.Context, limit int) ([]poster.Entry, error) {
	return f.entries[:min(limit, len(f.entries))], nil
}

func newServer(t *testing.T, b Bot, history PostLister, limiter *middleware.Limiter) http.Handler {
	t.Helper()
	cfg := config.ServerConfig{AdminKey: "s3cret", RequestTimeout: time.Second}
	m := metrics.New(prometheus.NewRegistry())
	return NewRouter(New(b, history, 2), health.NewChecker(), m, cfg, limiter)
}

func do(t *testing.T, h http.Handler, method, target string, header ...string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var body map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	}
	return rec, body
}

func TestSentence(t *testing.T) {
	b := &fakeBot{}
	srv := newServer(t, b, nil, nil)

	rec, body := do(t, srv, http.MethodGet, "/api/v1/sentence?order=3&link=last")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "I am here.", body["text"])
	assert.Equal(t, 3, b.gotOrder)
	assert.Equal(t, generator.LastToken, b.gotMode)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	do(t, srv, http.MethodGet, "/api/v1/sentence")
	assert.Equal(t, 2, b.gotOrder)
	assert.Equal(t, generator.FullPrefix, b.gotMode)
}

func TestSentenceBadInput(t *testing.T) {
	srv := newServer(t, &fakeBot{}, nil, nil)

	rec, _ := do(t, srv, http.MethodGet, "/api/v1/sentence?order=two")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body := do(t, srv, http.MethodGet, "/api/v1/sentence?link=sideways")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, body["error"], "sideways")
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: order 9", apperrors.ErrOrderOutOfRange), http.StatusBadRequest},
		{apperrors.ErrRetryLimit, http.StatusUnprocessableEntity},
		{apperrors.ErrEmptyBucket, http.StatusInternalServerError},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		srv := newServer(t, &fakeBot{err: tt.err}, nil, nil)
		rec, body := do(t, srv, http.MethodGet, "/api/v1/sentence?order=9")
		assert.Equal(t, tt.want, rec.Code, tt.err.Error())
		if tt.want >= 500 {
			assert.NotContains(t, body["error"], "disk")
			assert.NotEmpty(t, body["request_id"])
		}
	}
}

func TestPosSentenceDefaultsOrder(t *testing.T) {
	b := &fakeBot{}
	srv := newServer(t, b, nil, nil)
	rec, body := do(t, srv, http.MethodGet, "/api/v1/pos-sentence")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, b.gotOrder)
	assert.Equal(t, "pos", body["kind"])
}

func TestComposeDoesNotPost(t *testing.T) {
	b := &fakeBot{}
	srv := newServer(t, b, nil, nil)
	rec, body := do(t, srv, http.MethodGet, "/api/v1/compose")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "I am here. #ng", body["text"])
	assert.Zero(t, b.posted)
}

func TestCreatePostNeedsAdminKey(t *testing.T) {
	b := &fakeBot{}
	srv := newServer(t, b, nil, nil)

	rec, _ := do(t, srv, http.MethodPost, "/api/v1/posts")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Zero(t, b.posted)

	rec, body := do(t, srv, http.MethodPost, "/api/v1/posts", "Authorization", "Bearer s3cret")
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.NotEmpty(t, body["id"])
	assert.Equal(t, 1, b.posted)
}

func TestCreatePostSinkFailure(t *testing.T) {
	srv := newServer(t, &fakeBot{err: fmt.Errorf("%w: 500", apperrors.ErrSinkFailed)}, nil, nil)
	rec, _ := do(t, srv, http.MethodPost, "/api/v1/posts", "X-API-Key", "s3cret")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestListPosts(t *testing.T) {
	rec, _ := do(t, newServer(t, &fakeBot{}, nil, nil), http.MethodGet, "/api/v1/posts")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	history := &fakeHistory{entries: []poster.Entry{
		{Post: sink.NewPost("One.", "ngram", 2, "full"), Status: poster.StatusDelivered},
		{Post: sink.NewPost("Two.", "ngram", 3, "last"), Status: poster.StatusFailed},
	}}
	srv := newServer(t, &fakeBot{}, history, nil)

	rec, body := do(t, srv, http.MethodGet, "/api/v1/posts?limit=1")
	require.Equal(t, http.StatusOK, rec.Code)
	posts := body["posts"].([]any)
	require.Len(t, posts, 1)
	assert.Equal(t, "One.", posts[0].(map[string]any)["text"])

	rec, _ = do(t, srv, http.MethodGet, "/api/v1/posts?limit=0")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRebuild(t *testing.T) {
	srv := newServer(t, &fakeBot{}, nil, nil)
	rec, body := do(t, srv, http.MethodPost, "/api/v1/model/rebuild", "X-API-Key", "s3cret")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 4.0, body["high"])
	assert.Equal(t, false, body["tagged"])
}

func TestRateLimited(t *testing.T) {
	srv := newServer(t, &fakeBot{}, nil, middleware.NewLimiter(1, time.Minute))
	rec, _ := do(t, srv, http.MethodGet, "/api/v1/sentence")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = do(t, srv, http.MethodGet, "/api/v1/sentence")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestHealth(t *testing.T) {
	srv := newServer(t, &fakeBot{}, nil, nil)
	rec, body := do(t, srv, http.MethodGet, "/health/ready")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "up", body["status"])
}
