package middleware

import (
	"context"
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calllog_server/pkg/apperr"
)

func TestErrorHandler_StatusMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{name: "app error keeps status", err: apperr.InvalidInput("limit", "negative"), wantStatus: fiber.StatusBadRequest},
		{name: "wrapped app error", err: apperr.RefreshFailed("apply", apperr.Transient("apply", assert.AnError)), wantStatus: fiber.StatusInternalServerError},
		{name: "fiber error", err: fiber.NewError(fiber.StatusTooManyRequests, "slow down"), wantStatus: fiber.StatusTooManyRequests},
		{name: "plain error", err: assert.AnError, wantStatus: fiber.StatusInternalServerError},
		{name: "deadline", err: fmt.Errorf("list: %w", context.DeadlineExceeded), wantStatus: fiber.StatusGatewayTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler()})
			app.Get("/", func(c *fiber.Ctx) error { return tt.err })

			resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/", nil), -1)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
		})
	}
}

func TestRecover(t *testing.T) {
	app := fiber.New()
	app.Use(RequestID(), Recover())
	app.Get("/", func(c *fiber.Ctx) error { panic("boom") })

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestETag_NotModified(t *testing.T) {
	app := fiber.New()
	app.Use(ETag())
	app.Get("/calllog", func(c *fiber.Ctx) error { return c.SendString(`{"rows":[]}`) })

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/calllog", nil), -1)
	require.NoError(t, err)
	etag := resp.Header.Get("ETag")
	require.NotEmpty(t, etag)

	req := httptest.NewRequest(fiber.MethodGet, "/calllog", nil)
	req.Header.Set("If-None-Match", etag)
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotModified, resp.StatusCode)
}

func TestTriggerLimiter(t *testing.T) {
	limiter := NewTriggerLimiter(2, time.Minute)
	defer limiter.Stop()

	now := time.Unix(1_700_000_000, 0)
	limiter.now = func() time.Time { return now }

	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler()})
	app.Post("/refresh", limiter.Handler(), func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusAccepted) })

	post := func() int {
		resp, err := app.Test(httptest.NewRequest(fiber.MethodPost, "/refresh", nil), -1)
		require.NoError(t, err)
		return resp.StatusCode
	}

	assert.Equal(t, fiber.StatusAccepted, post())
	assert.Equal(t, fiber.StatusAccepted, post())
	assert.Equal(t, fiber.StatusTooManyRequests, post())

	now = now.Add(2 * time.Minute)
	assert.Equal(t, fiber.StatusAccepted, post())
}
