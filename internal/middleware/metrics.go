package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/waypoint-tourism/directory/internal/metrics"
)

// unmatchedRoute labels requests no route matched, so probing random paths
// cannot grow the series count.
const unmatchedRoute = "unmatched"

// MetricsMiddleware counts requests per route template and observes their
// latency. Scrapes of /metrics are not counted.
func MetricsMiddleware(serviceName string, m *metrics.Metrics) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/metrics" {
				next.ServeHTTP(w, r)
				return
			}

			m.IncrementInFlight()
			defer m.DecrementInFlight()

			rec := recordStatus(w)
			start := time.Now()
			next.ServeHTTP(rec, r)

			m.RecordHTTPRequest(serviceName, r.Method, routeTemplate(r), strconv.Itoa(rec.status), time.Since(start))
		})
	}
}

func routeTemplate(r *http.Request) string {
	route := mux.CurrentRoute(r)
	if route == nil {
		return unmatchedRoute
	}
	tmpl, err := route.GetPathTemplate()
	if err != nil {
		return unmatchedRoute
	}
	return tmpl
}
