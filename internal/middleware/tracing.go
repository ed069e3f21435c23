package middleware

import (
	"net/http"
	"time"

	"github.com/waypoint-tourism/directory/internal/logging"
)

const (
	TraceIDHeader   = "X-Trace-ID"
	RequestIDHeader = "X-Request-ID"

	maxTraceIDLen = 128
)

// TracingMiddleware gives every request a trace id, logs it once it
// completes and turns handler panics into 500s.
type TracingMiddleware struct {
	logger *logging.Logger
}

// NewTracingMiddleware creates a new tracing middleware
func NewTracingMiddleware(logger *logging.Logger) *TracingMiddleware {
	if logger == nil {
		logger = logging.Default()
	}
	return &TracingMiddleware{logger: logger}
}

// Handler propagates an incoming X-Trace-ID (or X-Request-ID from proxies)
// and otherwise mints one. The id is echoed on the response.
func (m *TracingMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := incomingTraceID(r)
		if traceID == "" {
			traceID = logging.NewTraceID()
		}
		ctx := logging.WithTraceID(r.Context(), traceID)
		w.Header().Set(TraceIDHeader, traceID)

		rec := recordStatus(w)
		start := time.Now()

		defer func() {
			if p := recover(); p != nil {
				m.logger.WithContext(ctx).WithField("panic", p).Error("handler panicked")
				if !rec.wroteHeader {
					rec.WriteHeader(http.StatusInternalServerError)
				}
			}
			m.logger.WithContext(ctx).WithField("bytes", rec.bytes).Debug("response written")
			m.logger.LogRequest(ctx, r.Method, r.URL.Path, rec.status, time.Since(start))
		}()

		next.ServeHTTP(rec, r.WithContext(ctx))
	})
}

// incomingTraceID returns a caller supplied id if it is short and printable.
// Anything else is dropped so it cannot forge log lines.
func incomingTraceID(r *http.Request) string {
	for _, h := range []string{TraceIDHeader, RequestIDHeader} {
		id := r.Header.Get(h)
		if id == "" || len(id) > maxTraceIDLen {
			continue
		}
		if printable(id) {
			return id
		}
	}
	return ""
}

func printable(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < 0x21 || s[i] > 0x7e {
			return false
		}
	}
	return true
}
