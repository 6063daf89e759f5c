package gateway

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"net/http"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/linjoshua/ChatGPT-Line-Bot/internal/logging"
	"github.com/linjoshua/ChatGPT-Line-Bot/internal/metrics"
)

const requestIDHeader = "X-Request-ID"

// maxRequestBody caps request bodies. A LINE webhook batch is a few KB.
const maxRequestBody = 1 << 20

// withMiddleware wraps the routed handler. observe is outermost so it sees
// the final status, including recovered panics and CORS preflights.
func withMiddleware(handler http.Handler, log *logging.Logger, corsOrigins []string) http.Handler {
	h := handler
	h = limitBody(h, maxRequestBody)
	h = recoverPanics(h, log)
	h = corsMiddleware(h, corsOrigins)
	h = requestIDMiddleware(h)
	h = observe(h, log)
	return h
}

// observe logs each request and records it in the HTTP metrics. The
// label is the matched route pattern, so webhook and websocket traffic are
// counted per channel route and unmatched paths collapse into "other".
// Websocket requests are recorded when the connection closes.
func observe(next http.Handler, log *logging.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		elapsed := time.Since(start)

		route := routeLabel(r)
		metrics.RequestCount.WithLabelValues(r.Method, route, strconv.Itoa(sw.status)).Inc()
		metrics.RequestDuration.WithLabelValues(r.Method, route).Observe(elapsed.Seconds())

		ev := log.Debug()
		if sw.status >= http.StatusBadRequest && route != "other" {
			ev = log.Warn()
		}
		ev.Str("method", r.Method).
			Str("route", route).
			Str("path", r.URL.Path).
			Int("status", sw.status).
			Dur("duration", elapsed).
			Str("remote", r.RemoteAddr).
			Str("requestId", sw.Header().Get(requestIDHeader)).
			Msg("http request")
	})
}

// routeLabel relies on the mux writing the matched pattern back into the
// shared request, so no middleware may replace r.
func routeLabel(r *http.Request) string {
	path := r.Pattern
	if _, p, ok := strings.Cut(path, " "); ok {
		path = p
	}
	if path == "" || path == "/" {
		return "other"
	}
	return path
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get(requestIDHeader)
		if reqID == "" {
			reqID = uuid.New().String()
		}
		w.Header().Set(requestIDHeader, reqID)
		next.ServeHTTP(w, r)
	})
}

// recoverPanics turns a panicking channel handler into a 500 so one bad
// webhook payload cannot take the relay down with it.
func recoverPanics(next http.Handler, log *logging.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rv := recover()
			if rv == nil {
				return
			}
			if rv == http.ErrAbortHandler {
				panic(rv)
			}
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			log.Error().
				Str("panic", fmt.Sprint(rv)).
				Str("path", r.URL.Path).
				Str("requestId", w.Header().Get(requestIDHeader)).
				Str("stack", string(buf[:n])).
				Msg("handler panicked")
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		}()
		next.ServeHTTP(w, r)
	})
}

// limitBody bounds what a handler can read. The LINE SDK reads the whole
// webhook body before checking the signature.
func limitBody(next http.Handler, limit int64) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, limit)
		}
		next.ServeHTTP(w, r)
	})
}

// corsMiddleware answers preflights for the health and metrics endpoints.
// Websocket upgrades are not subject to CORS; the webchat channel checks
// Origin itself.
func corsMiddleware(next http.Handler, allowedOrigins []string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && isOriginAllowed(origin, allowedOrigins) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
			w.Header().Set("Access-Control-Max-Age", "86400")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func isOriginAllowed(origin string, allowed []string) bool {
	for _, a := range allowed {
		if a == "*" || a == origin {
			return true
		}
	}
	return false
}

// statusWriter records the response status. It passes Hijack through so
// the webchat channel can upgrade to a websocket behind the middleware.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response does not support hijacking")
	}
	conn, rw, err := hj.Hijack()
	if err == nil {
		w.status = http.StatusSwitchingProtocols
	}
	return conn, rw, err
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
