package middleware

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"signalhub/internal/metrics"
)

// Metrics - middleware для prometheus: счетчик и длительность запросов.
// Метка route - шаблон маршрута mux ({id} вместо значения), чтобы не раздувать кардинальность.
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := wrap(w)

		next.ServeHTTP(wrapped, r)

		route := "unmatched"
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		metrics.RecordHTTPRequest(r.Method, route, wrapped.statusCode, time.Since(start))
	})
}
