package gateway

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/flemzord/sbus/internal/security"
)

// credentialCheck reports whether r carries one accepted credential.
type credentialCheck func(r *http.Request) bool

// credentialChecks returns one check per credential configured in cfg.
func credentialChecks(cfg AuthConfig) []credentialCheck {
	var checks []credentialCheck
	if cfg.BearerToken != "" {
		checks = append(checks, func(r *http.Request) bool {
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			return ok && secureEqual(token, cfg.BearerToken)
		})
	}
	if cfg.BasicUser != "" && cfg.BasicPass != "" {
		checks = append(checks, func(r *http.Request) bool {
			user, pass, ok := r.BasicAuth()
			// Compare both fields unconditionally.
			userOK := secureEqual(user, cfg.BasicUser)
			passOK := secureEqual(pass, cfg.BasicPass)
			return ok && userOK && passOK
		})
	}
	return checks
}

// authMiddleware guards the admin API. Every attempt spends a token from
// the auth bucket; rejections are audited with the caller's address.
func authMiddleware(cfg AuthConfig, audit *security.AuditLogger, limiter *security.RateLimiter) func(http.Handler) http.Handler {
	checks := credentialChecks(cfg)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter != nil {
				if err := limiter.Allow(security.KindAuth); err != nil {
					auditRequest(audit, security.EventRateLimit, r, "auth")
					writeError(w, http.StatusTooManyRequests, err)
					return
				}
			}

			reason := "missing authorization header"
			if r.Header.Get("Authorization") != "" {
				for _, check := range checks {
					if check(r) {
						next.ServeHTTP(w, r)
						return
					}
				}
				reason = "invalid credentials"
			}
			auditRequest(audit, security.EventAuthFailure, r, reason)
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized"})
		})
	}
}

func auditRequest(audit *security.AuditLogger, eventType security.EventType, r *http.Request, detail string) {
	audit.Log(security.AuditEvent{
		Type:   eventType,
		Detail: detail,
		Metadata: map[string]string{
			"remote_addr": r.RemoteAddr,
			"method":      r.Method,
			"path":        r.URL.Path,
		},
	})
}

func secureEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
