package validation

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// LocalsQuery is the fiber.Ctx locals key holding the sanitized query.
const LocalsQuery = "query"

var xssPattern = regexp.MustCompile(`(?i)(<script|<iframe|javascript:|onerror=|onload=|onclick=)`)

type Config struct {
	MaxQueryLength      int
	AllowedContentTypes []string
	// QueryPaths are the POST endpoints whose JSON body carries a "query".
	QueryPaths []string
	Logger     *zap.Logger
}

type queryBody struct {
	Query string `json:"query"`
}

// Middleware checks content types and validates the query of chat style
// requests. Product questions legitimately contain words like "select" or
// "update", so queries are only screened for markup injection.
func Middleware(cfg Config) fiber.Handler {
	if cfg.MaxQueryLength == 0 {
		cfg.MaxQueryLength = 1000
	}
	if len(cfg.AllowedContentTypes) == 0 {
		cfg.AllowedContentTypes = []string{"application/json"}
	}
	if len(cfg.QueryPaths) == 0 {
		cfg.QueryPaths = []string{"/api/v1/chat", "/api/v1/route"}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return func(c *fiber.Ctx) error {
		if c.Method() != fiber.MethodPost && c.Method() != fiber.MethodPut {
			return c.Next()
		}

		contentType := c.Get(fiber.HeaderContentType)
		if contentType != "" && !allowed(contentType, cfg.AllowedContentTypes) {
			return c.Status(fiber.StatusUnsupportedMediaType).JSON(fiber.Map{
				"error": "Unsupported content type",
			})
		}

		if !isQueryPath(c.Path(), cfg.QueryPaths) {
			return c.Next()
		}

		var req queryBody
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid JSON format",
			})
		}

		query, problem := CheckQuery(req.Query, cfg.MaxQueryLength)
		if problem != "" {
			if problem == problemMarkup {
				cfg.Logger.Warn("Potential XSS attempt",
					zap.String("ip", c.IP()),
					zap.String("query", query),
				)
			}
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": problem,
			})
		}

		c.Locals(LocalsQuery, query)
		return c.Next()
	}
}

const (
	problemRequired = "Query is required and must be a string"
	problemTooLong  = "Query exceeds maximum length"
	problemMarkup   = "Invalid query content"
)

// CheckQuery sanitizes a raw query and applies the length and markup
// checks. A non-empty problem is the client-facing reason it was rejected.
func CheckQuery(raw string, maxLength int) (query string, problem string) {
	query = sanitizeString(raw)
	switch {
	case query == "":
		return query, problemRequired
	case maxLength > 0 && utf8.RuneCountInString(query) > maxLength:
		return query, problemTooLong
	case containsXSS(query):
		return query, problemMarkup
	}
	return query, ""
}

// Query returns the sanitized query stored by Middleware, or "".
func Query(c *fiber.Ctx) string {
	q, _ := c.Locals(LocalsQuery).(string)
	return q
}

func allowed(contentType string, types []string) bool {
	for _, t := range types {
		if strings.Contains(contentType, t) {
			return true
		}
	}
	return false
}

func isQueryPath(path string, paths []string) bool {
	for _, p := range paths {
		if path == p {
			return true
		}
	}
	return false
}

func containsXSS(input string) bool {
	return xssPattern.MatchString(input)
}

func sanitizeString(input string) string {
	input = strings.ReplaceAll(input, "\x00", "")
	return strings.TrimSpace(input)
}
