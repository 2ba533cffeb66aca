package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// ETagMiddleware answers conditional GETs with 304 when the body is unchanged.
// Dashboards poll the temperature endpoint; most polls within a minute return
// identical measurements.
type ETagMiddleware struct {
	logger *zap.Logger
}

// NewETagMiddleware creates a new ETag middleware
func NewETagMiddleware(logger *zap.Logger) *ETagMiddleware {
	return &ETagMiddleware{
		logger: logger,
	}
}

// Middleware returns the ETag middleware handler
func (em *ETagMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			next.ServeHTTP(w, r)
			return
		}

		recorder := &etagRecorder{header: make(http.Header), status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		for k, v := range recorder.header {
			w.Header()[k] = v
		}

		if recorder.status != http.StatusOK || recorder.body.Len() == 0 {
			w.WriteHeader(recorder.status)
			w.Write(recorder.body.Bytes())
			return
		}

		etag := calculateETag(recorder.body.Bytes())
		w.Header().Set("ETag", etag)
		w.Header().Set("Cache-Control", "no-cache")

		if etagMatches(r.Header.Get("If-None-Match"), etag) {
			em.logger.Debug("ETag matched, serving 304",
				zap.String("path", r.URL.Path),
				zap.String("etag", etag),
				zap.String("request_id", middleware.GetReqID(r.Context())))
			w.Header().Del("Content-Length")
			w.WriteHeader(http.StatusNotModified)
			return
		}

		w.WriteHeader(http.StatusOK)
		w.Write(recorder.body.Bytes())
	})
}

// calculateETag returns a strong, quoted ETag for content
func calculateETag(content []byte) string {
	sum := sha256.Sum256(content)
	return `"` + hex.EncodeToString(sum[:8]) + `"`
}

// etagMatches checks an If-None-Match header (possibly a list, possibly weak)
// against the server ETag
func etagMatches(header, etag string) bool {
	if header == "" {
		return false
	}
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" {
			return true
		}
		candidate = strings.TrimPrefix(candidate, "W/")
		if candidate == etag {
			return true
		}
	}
	return false
}

// etagRecorder buffers the downstream response so the ETag can be computed
// before anything is written to the client.
type etagRecorder struct {
	header      http.Header
	body        bytes.Buffer
	status      int
	wroteHeader bool
}

func (r *etagRecorder) Header() http.Header {
	return r.header
}

func (r *etagRecorder) WriteHeader(statusCode int) {
	if r.wroteHeader {
		return
	}
	r.status = statusCode
	r.wroteHeader = true
}

func (r *etagRecorder) Write(data []byte) (int, error) {
	r.wroteHeader = true
	return r.body.Write(data)
}
