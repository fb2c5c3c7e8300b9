package security

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

type HeadersConfig struct {
	AllowedOrigins []string
	IsDevelopment  bool
}

// HeadersMiddleware sets browser hardening headers. The chat UI needs
// connect-src access to the API for SSE and to its ws:// or wss:// twin for
// the WebSocket endpoint.
func HeadersMiddleware(cfg HeadersConfig) fiber.Handler {
	csp := strings.Join([]string{
		"default-src 'self'",
		"script-src 'self'",
		"style-src 'self' 'unsafe-inline'",
		"img-src 'self' data: https:",
		"connect-src " + connectSrc(cfg.AllowedOrigins),
		"frame-ancestors 'none'",
		"base-uri 'self'",
		"form-action 'self'",
	}, "; ")

	return func(c *fiber.Ctx) error {
		c.Set("X-Frame-Options", "DENY")
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Set("Content-Security-Policy", csp)

		if !cfg.IsDevelopment {
			c.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		return c.Next()
	}
}

func connectSrc(origins []string) string {
	sources := []string{"'self'"}
	for _, origin := range origins {
		if origin == "" || origin == "*" {
			continue
		}
		sources = append(sources, origin)
		switch {
		case strings.HasPrefix(origin, "https://"):
			sources = append(sources, "wss://"+strings.TrimPrefix(origin, "https://"))
		case strings.HasPrefix(origin, "http://"):
			sources = append(sources, "ws://"+strings.TrimPrefix(origin, "http://"))
		}
	}
	return strings.Join(sources, " ")
}
