package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"ecotrace-api/internal/model"
	"ecotrace-api/pkg/apierror"
)

// CallerKey is the key for storing the authenticated caller in request context.
const CallerKey contextKey = "caller"

// StaffSubject is the subject recorded for requests made with a staff API key.
const StaffSubject = "staff"

// TokenValidator resolves a session token to the caller it was issued for.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*model.TokenData, error)
}

// AuthConfig holds configuration for the auth middleware.
type AuthConfig struct {
	Tokens    TokenValidator
	StaffKeys []string
	// PublicPaths are served without credentials.
	PublicPaths []string
}

// NewAuthMiddleware creates an authentication middleware with injected dependencies.
// Session tokens (X-Token) identify consumers, manufacturers and recyclers;
// staff API keys (X-API-Key or Bearer) act as admin.
func NewAuthMiddleware(cfg AuthConfig) func(http.Handler) http.Handler {
	public := make(map[string]bool, len(cfg.PublicPaths))
	for _, p := range cfg.PublicPaths {
		public[p] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if public[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			// Try X-Token first (session tokens)
			token := r.Header.Get("X-Token")
			if token != "" && cfg.Tokens != nil {
				caller, err := cfg.Tokens.ValidateToken(r.Context(), token)
				if err != nil {
					if model.KindOf(err) == model.KindInternal {
						httpLog().Error().Err(err).Msg("token validation failed")
						writeError(w, apierror.ServiceUnavailable("token validation unavailable"))
						return
					}
					writeError(w, apierror.Unauthorized("Invalid or expired token"))
					return
				}

				next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), caller)))
				return
			}

			// Fall back to X-API-Key
			apiKey := r.Header.Get("X-API-Key")
			if apiKey == "" {
				auth := r.Header.Get("Authorization")
				if strings.HasPrefix(auth, "Bearer ") {
					apiKey = strings.TrimPrefix(auth, "Bearer ")
				}
			}

			if apiKey == "" {
				writeError(w, apierror.Unauthorized("Authentication required. Use X-Token or X-API-Key header."))
				return
			}

			if !isValidKey(apiKey, cfg.StaffKeys) {
				writeError(w, apierror.Unauthorized("Invalid API key"))
				return
			}

			staff := &model.TokenData{SubjectID: StaffSubject, Role: model.RoleAdmin}
			next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), staff)))
		})
	}
}

// RequireRole rejects callers whose role is not listed. Admins always pass.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller := GetCaller(r.Context())
			if caller == nil {
				writeError(w, apierror.Unauthorized(""))
				return
			}
			if caller.Role == model.RoleAdmin {
				next.ServeHTTP(w, r)
				return
			}
			for _, role := range roles {
				if caller.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeError(w, apierror.Forbidden("This endpoint is not available to "+caller.Role+" accounts"))
		})
	}
}

// writeError writes an API error response.
func writeError(w http.ResponseWriter, err *apierror.Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.StatusCode)
	w.Write(err.ToJSON())
}

// isValidKey checks if the provided key is in the valid keys list.
func isValidKey(key string, validKeys []string) bool {
	for _, valid := range validKeys {
		if subtle.ConstantTimeCompare([]byte(key), []byte(valid)) == 1 {
			return true
		}
	}
	return false
}

// WithCaller stores the authenticated caller in ctx.
func WithCaller(ctx context.Context, caller *model.TokenData) context.Context {
	return context.WithValue(ctx, CallerKey, caller)
}

// GetCaller retrieves the authenticated caller from request context.
func GetCaller(ctx context.Context) *model.TokenData {
	if data, ok := ctx.Value(CallerKey).(*model.TokenData); ok {
		return data
	}
	return nil
}
