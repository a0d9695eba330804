package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"linkhub-membership/internal/domain"
	"linkhub-membership/internal/domain/model"
	"linkhub-membership/internal/infra/logging"
)

type Middleware func(http.Handler) http.Handler

const requestIDHeader = "X-Request-ID"

// TraceID attaches a trace id to the request context, reusing the caller's
// X-Request-ID when it looks sane.
func TraceID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tid := strings.TrimSpace(r.Header.Get(requestIDHeader))
			if tid == "" || len(tid) > 64 {
				tid = uuid.NewString()
			}
			w.Header().Set(requestIDHeader, tid)
			ctx := logging.WithTraceID(r.Context(), tid)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func RequestLog(logger *zerolog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &respWriter{ResponseWriter: w, status: 200}
			next.ServeHTTP(ww, r)
			l := logging.With(r.Context(), logger)
			ev := l.Info()
			if ww.status >= 500 {
				ev = l.Error()
			}
			ev.Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.status).
				Dur("duration", time.Since(start)).
				Msg("http_request")
		})
	}
}

type respWriter struct {
	http.ResponseWriter
	status int
}

func (w *respWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func Recover(logger *zerolog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					l := logging.With(r.Context(), logger)
					l.Error().Interface("panic", rec).Msg("panic recovered")
					writeJSON(w, http.StatusInternalServerError, errorBody{Code: "internal", Message: "Internal error."})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func Timeout(d time.Duration) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

type geoKey struct{}

// Geo reads the visitor's country from headers set by the edge proxy. The
// request body is never trusted for this. In dev a ?country= override is
// honoured for manual testing.
func Geo(trustedHeaders []string, defaultCountry string, dev bool) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			g := model.NewGeo(defaultCountry, "default")
			for _, h := range trustedHeaders {
				if v := strings.TrimSpace(r.Header.Get(h)); validCountry(v) {
					g = model.NewGeo(v, strings.ToLower(h))
					break
				}
			}
			if dev {
				if v := r.URL.Query().Get("country"); validCountry(v) {
					g = model.NewGeo(v, "query")
				}
			}
			ctx := context.WithValue(r.Context(), geoKey{}, g)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// validCountry accepts two ASCII alphanumerics. Cloudflare sends XX and T1
// for unknown and Tor traffic; both resolve to INTL.
func validCountry(v string) bool {
	if len(v) != 2 {
		return false
	}
	for i := 0; i < len(v); i++ {
		c := v[i]
		if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9') {
			return false
		}
	}
	return true
}

func geoFrom(ctx context.Context) model.Geo {
	if g, ok := ctx.Value(geoKey{}).(model.Geo); ok {
		return g
	}
	return model.NewGeo("", "default")
}

type userKey struct{}

// RequireUser rejects requests without a valid bearer JWT.
func RequireUser(auth *AuthManager) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := auth.ParseFromRequest(r)
			if err != nil {
				writeError(w, r, domain.NewReason(domain.ErrUnauthorized, "unauthorized", "Sign in to continue.").Wrap(err), false, nil)
				return
			}
			next.ServeHTTP(w, r.WithContext(withUser(r.Context(), claims.UserIDOrSubject())))
		})
	}
}

// OptionalUser attaches the user when a valid token is present and lets
// anonymous requests through.
func OptionalUser(auth *AuthManager) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if claims, err := auth.ParseFromRequest(r); err == nil {
				r = r.WithContext(withUser(r.Context(), claims.UserIDOrSubject()))
			}
			next.ServeHTTP(w, r)
		})
	}
}

func withUser(ctx context.Context, userID string) context.Context {
	ctx = context.WithValue(ctx, userKey{}, userID)
	return logging.WithUserID(ctx, userID)
}

func userFrom(ctx context.Context) string {
	s, _ := ctx.Value(userKey{}).(string)
	return s
}
