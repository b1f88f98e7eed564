package middleware

import (
	"net/http"
	"runtime/debug"

	"ecotrace-api/pkg/apierror"
)

// Recovery is a middleware that recovers from panics.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				httpLog().Error().
					Interface("panic", err).
					Bytes("stack", debug.Stack()).
					Str("request_id", GetRequestID(r.Context())).
					Msg("recovered from panic")

				writeError(w, apierror.InternalError("internal server error"))
			}
		}()

		next.ServeHTTP(w, r)
	})
}
