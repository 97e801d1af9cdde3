// Package requesttime captures one "now" per request so run records and
// audit events written while serving it agree on the time.
package requesttime

import (
	"net/http"
	"time"

	"lineageforge/pkg/requestcontext"
)

func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithTime(r.Context(), time.Now())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
