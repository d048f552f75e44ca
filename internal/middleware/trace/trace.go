// Package trace tags each API request with an id and logs its start and
// completion.
package trace

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"rupee/internal/log"
)

type contextKey struct{}

// HeaderRequestID is echoed on every response. An inbound value is kept
// when it parses as a UUID.
const HeaderRequestID = "X-Request-ID"

type Middleware struct {
	clientIP func(*http.Request) string
	logger   *log.RequestLogger

	requests atomic.Int64
	failures atomic.Int64
}

func NewMiddleware(logger *log.Logger, clientIP func(*http.Request) string) *Middleware {
	return &Middleware{
		clientIP: clientIP,
		logger:   log.NewRequestLogger(logger),
	}
}

func (m *Middleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ip := ""
		if m.clientIP != nil {
			ip = m.clientIP(r)
		}

		id := r.Header.Get(HeaderRequestID)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), contextKey{}, id)
		r = r.WithContext(ctx)
		w.Header().Set(HeaderRequestID, id)

		m.requests.Add(1)
		m.logger.Started(ctx, r, ip)

		rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)

		if rw.status >= http.StatusInternalServerError {
			m.failures.Add(1)
		}
		m.logger.Finished(ctx, r, rw.status, time.Since(start).Milliseconds(), ip)
	})
}

// Counts returns the number of requests served and how many ended in a
// server error.
func (m *Middleware) Counts() (requests, failures int64) {
	return m.requests.Load(), m.failures.Load()
}

// RequestID returns the id assigned to the request carried by ctx.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(contextKey{}).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (rw *statusRecorder) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.status = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusRecorder) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	return rw.ResponseWriter.Write(b)
}
