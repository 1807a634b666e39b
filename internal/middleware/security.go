package middleware

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/volunteer-hub/volunteer-hub/internal/config"
)

const oneYear = 365 * 24 * 60 * 60

// SecurityHeadersConfig controls the response headers added by SecurityHeadersMiddleware.
// A zero HSTSMaxAge disables Strict-Transport-Security.
type SecurityHeadersConfig struct {
	HSTSMaxAge            int
	HSTSIncludeSubdomains bool
	FrameOptions          string
	ContentSecurityPolicy string
	ReferrerPolicy        string
}

// SecurityHeadersConfigFor builds the header set for the JSON API. HSTS is only
// sent when the server terminates TLS itself or session cookies are marked secure,
// since either means the deployment is HTTPS-only.
func SecurityHeadersConfigFor(cfg *config.Config) SecurityHeadersConfig {
	hc := SecurityHeadersConfig{
		FrameOptions:          "DENY",
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'",
		ReferrerPolicy:        "no-referrer",
	}
	if cfg != nil && (cfg.Security.TLS.Enabled || cfg.Auth.CookieSecure) {
		hc.HSTSMaxAge = oneYear
		hc.HSTSIncludeSubdomains = true
	}
	return hc
}

// SecurityHeadersMiddleware adds the configured security headers to every response.
func SecurityHeadersMiddleware(hc SecurityHeadersConfig) gin.HandlerFunc {
	var hsts string
	if hc.HSTSMaxAge > 0 {
		hsts = "max-age=" + strconv.Itoa(hc.HSTSMaxAge)
		if hc.HSTSIncludeSubdomains {
			hsts += "; includeSubDomains"
		}
	}

	return func(c *gin.Context) {
		h := c.Writer.Header()
		if hsts != "" {
			h.Set("Strict-Transport-Security", hsts)
		}
		if hc.FrameOptions != "" {
			h.Set("X-Frame-Options", hc.FrameOptions)
		}
		if hc.ContentSecurityPolicy != "" {
			h.Set("Content-Security-Policy", hc.ContentSecurityPolicy)
		}
		if hc.ReferrerPolicy != "" {
			h.Set("Referrer-Policy", hc.ReferrerPolicy)
		}
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("Cross-Origin-Resource-Policy", "same-origin")
		// Session and approval responses carry personal data.
		h.Set("Cache-Control", "no-store")

		c.Next()
	}
}
