package security

import (
	"fmt"
	"net/http"
)

// HeadersConfig lists the response headers set on every API response.
type HeadersConfig struct {
	CSP               string
	HSTSMaxAge        int
	FrameOptions      string
	ReferrerPolicy    string
	PermissionsPolicy string
	// AllowCamera keeps camera and microphone enabled for clients that
	// capture bills or voice notes in the browser.
	AllowCamera bool
}

// DefaultHeadersConfig suits a JSON API that never serves documents.
func DefaultHeadersConfig() HeadersConfig {
	return HeadersConfig{
		CSP:               "default-src 'none'; frame-ancestors 'none'; base-uri 'none'",
		HSTSMaxAge:        31536000,
		FrameOptions:      "DENY",
		ReferrerPolicy:    "no-referrer",
		PermissionsPolicy: "geolocation=(), payment=(), usb=()",
		AllowCamera:       true,
	}
}

// Headers returns middleware applying cfg. API responses are never cached.
func Headers(cfg HeadersConfig) func(http.Handler) http.Handler {
	permissions := cfg.PermissionsPolicy
	if !cfg.AllowCamera {
		permissions += ", camera=(), microphone=()"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", cfg.FrameOptions)
			h.Set("Content-Security-Policy", cfg.CSP)
			h.Set("Referrer-Policy", cfg.ReferrerPolicy)
			h.Set("Permissions-Policy", permissions)
			h.Set("Cache-Control", "no-store")
			if r.TLS != nil && cfg.HSTSMaxAge > 0 {
				h.Set("Strict-Transport-Security", fmt.Sprintf("max-age=%d; includeSubDomains", cfg.HSTSMaxAge))
			}
			next.ServeHTTP(w, r)
		})
	}
}
