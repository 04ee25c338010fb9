package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/negi-chat/internal/metrics"
	"github.com/zhouzirui/negi-chat/pkg/utils"
)

// ErrOriginNotAllowed marks a request rejected by the origin allow-list.
var ErrOriginNotAllowed = errors.New("origin not allowed")

// OriginPolicy is the browser origin allow-list.
type OriginPolicy struct {
	allowAll bool
	allowed  map[string]struct{}
	origins  []string
}

// NewOriginPolicy builds a policy from a list of origins. "*" allows any origin.
func NewOriginPolicy(origins []string) *OriginPolicy {
	p := &OriginPolicy{allowed: make(map[string]struct{}, len(origins))}
	for _, origin := range origins {
		origin = normalizeOrigin(origin)
		if origin == "" {
			continue
		}
		if origin == "*" {
			p.allowAll = true
		}
		p.allowed[origin] = struct{}{}
		p.origins = append(p.origins, origin)
	}
	return p
}

// Allows reports whether a request with the given Origin header may proceed.
// Requests without an Origin header come from tools or other servers and are allowed.
func (p *OriginPolicy) Allows(origin string) bool {
	if origin == "" || p.allowAll {
		return true
	}
	_, ok := p.allowed[normalizeOrigin(origin)]
	return ok
}

// RequireOrigin rejects requests whose origin is not allow-listed before they
// reach any handler.
func RequireOrigin(policy *OriginPolicy, logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if !policy.Allows(origin) {
				metrics.RejectedOrigins.Inc()
				logger.Warn().
					Err(ErrOriginNotAllowed).
					Str("origin", origin).
					Str("path", r.URL.Path).
					Msg("rejected request from origin outside allow-list")
				utils.RespondError(w, http.StatusForbidden, "Not allowed by CORS")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// CORS sets the response headers browsers need for allow-listed origins and
// answers preflight requests.
func CORS(policy *OriginPolicy) func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins:   policy.origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	})
}

func normalizeOrigin(origin string) string {
	return strings.TrimRight(strings.ToLower(strings.TrimSpace(origin)), "/")
}
