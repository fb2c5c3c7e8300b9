package security

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectSrc(t *testing.T) {
	assert.Equal(t, "'self'", connectSrc(nil))
	assert.Equal(t,
		"'self' https://shop.example wss://shop.example http://localhost:3000 ws://localhost:3000",
		connectSrc([]string{"https://shop.example", "*", "http://localhost:3000"}),
	)
}

func TestHeadersMiddleware(t *testing.T) {
	app := fiber.New()
	app.Use(HeadersMiddleware(HeadersConfig{AllowedOrigins: []string{"https://shop.example"}}))
	app.Get("/", func(c *fiber.Ctx) error { return c.SendString("ok") })

	resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)

	assert.Equal(t, "DENY", resp.Header.Get("X-Frame-Options"))
	assert.Contains(t, resp.Header.Get("Content-Security-Policy"), "connect-src 'self' https://shop.example wss://shop.example")
	assert.NotEmpty(t, resp.Header.Get("Strict-Transport-Security"))

	dev := fiber.New()
	dev.Use(HeadersMiddleware(HeadersConfig{IsDevelopment: true}))
	dev.Get("/", func(c *fiber.Ctx) error { return c.SendString("ok") })

	resp, err = dev.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	assert.Empty(t, resp.Header.Get("Strict-Transport-Security"))
}
