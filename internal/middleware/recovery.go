package middleware

import (
	"log"
	"net/http"
	"runtime/debug"

	"universalis-alerts/pkg/apierror"
)

// Recovery turns handler panics into a 500 envelope.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				log.Printf("[HTTP] PANIC req=%s: %v\n%s", GetRequestID(r.Context()), err, debug.Stack())

				writeError(w, apierror.InternalError("internal server error"))
			}
		}()

		next.ServeHTTP(w, r)
	})
}
