package server

import (
	"net/http"

	"github.com/labstack/echo/v4"

	apperrors "github.com/mitsuaky/felpsbot-backend/internal/errors"
)

// Helix caps the channels endpoint at 100 broadcaster IDs per request.
const maxChannelIDs = 100

// handleGetChannels proxies Helix channel lookups for the bot and operator
// tooling, reusing the service's app token instead of minting another grant.
func (s *Server) handleGetChannels(c echo.Context) error {
	ids := c.QueryParams()["broadcaster_id"]
	if len(ids) == 0 {
		return apperrors.ValidationError("at least one broadcaster_id is required")
	}
	if len(ids) > maxChannelIDs {
		return apperrors.ValidationError("too many broadcaster_id values")
	}

	channels, err := s.channels.FetchChannels(c.Request().Context(), ids)
	if err != nil {
		return apperrors.InternalError("failed to fetch channels", err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"channels": channels,
		"count":    len(channels),
	})
}
