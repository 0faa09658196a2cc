package server

import (
	"github.com/labstack/echo/v4"

	"github.com/mitsuaky/felpsbot-backend/internal/platform/correlation"
)

// correlationMiddleware attaches a correlation ID to every request context.
// Webhook deliveries reuse the EventSub message ID so a delivery can be
// traced across retries with a single identifier.
func correlationMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			messageID := c.Request().Header.Get(headerMessageID)
			ctx := correlation.Ensure(c.Request().Context(), messageID)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}
