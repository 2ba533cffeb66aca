package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"measurements":[]}`))
})

func TestCORS(t *testing.T) {
	handler := CORS(okHandler)

	req := httptest.NewRequest(http.MethodGet, "/api/temperatures", nil)
	req.Header.Set("Origin", "https://dashboard.example")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, `{"measurements":[]}`, rec.Body.String())
}

func TestCORSPreflight(t *testing.T) {
	called := false
	handler := CORS(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodOptions, "/api/temperatures", nil)
	req.Header.Set("Origin", "https://dashboard.example")
	req.Header.Set("Access-Control-Request-Method", "GET")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "GET")
	assert.False(t, called)
}

func TestRequestIDResponseMiddleware(t *testing.T) {
	handler := chimw.RequestID(RequestIDResponseMiddleware(okHandler))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestRoutePattern(t *testing.T) {
	var pattern string
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req)
			pattern = routePattern(req)
		})
	})
	r.Get("/api/temperatures", func(w http.ResponseWriter, req *http.Request) {})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/temperatures?dev=true", nil))
	assert.Equal(t, "/api/temperatures", pattern)

	assert.Equal(t, "unmatched", routePattern(httptest.NewRequest(http.MethodGet, "/whatever", nil)))
}

func TestPrometheusMiddlewarePassesThrough(t *testing.T) {
	handler := PrometheusMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/temperatures", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(zaptest.NewLogger(t), 2)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	handler := rl.Handler(okHandler)

	do := func(remote string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/temperatures", nil)
		req.RemoteAddr = remote
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, do("10.1.1.1:5000"))
	assert.Equal(t, http.StatusOK, do("10.1.1.1:5001"))
	assert.Equal(t, http.StatusTooManyRequests, do("10.1.1.1:5002"))

	// other clients have their own bucket
	assert.Equal(t, http.StatusOK, do("10.2.2.2:5000"))

	// one token refills every 30s at 2/min
	now = now.Add(31 * time.Second)
	assert.Equal(t, http.StatusOK, do("10.1.1.1:5003"))
}

func TestRateLimiterSweepsIdleClients(t *testing.T) {
	rl := NewRateLimiter(zaptest.NewLogger(t), 60)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	require.True(t, rl.allow("a"))
	now = now.Add(idleLimiterTTL + time.Minute)
	require.True(t, rl.allow("b"))

	rl.mu.Lock()
	defer rl.mu.Unlock()
	_, hasA := rl.clients["a"]
	assert.False(t, hasA)
	assert.Len(t, rl.clients, 1)
}

func TestETagMiddleware(t *testing.T) {
	handler := NewETagMiddleware(zaptest.NewLogger(t)).Middleware(okHandler)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/temperatures", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	etag := rec.Header().Get("ETag")
	require.NotEmpty(t, etag)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, `{"measurements":[]}`, rec.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/api/temperatures", nil)
	req.Header.Set("If-None-Match", `W/"other", `+etag)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotModified, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestETagMiddlewareSkipsErrors(t *testing.T) {
	handler := NewETagMiddleware(zaptest.NewLogger(t)).Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/temperatures", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Empty(t, rec.Header().Get("ETag"))
	assert.Empty(t, rec.Body.String())
}

func TestETagMatches(t *testing.T) {
	assert.False(t, etagMatches("", `"abc"`))
	assert.True(t, etagMatches(`"abc"`, `"abc"`))
	assert.True(t, etagMatches(`W/"abc"`, `"abc"`))
	assert.True(t, etagMatches(`*`, `"abc"`))
	assert.False(t, etagMatches(`"abd"`, `"abc"`))
}
