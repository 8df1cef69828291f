package controllers

import (
	"net/http"

	"github.com/angelmondragon/sharedwishlist/api/middleware"
	"github.com/angelmondragon/sharedwishlist/api/responses"
	"github.com/angelmondragon/sharedwishlist/internal/realtime/ws"
	pkgerrors "github.com/angelmondragon/sharedwishlist/pkg/errors"
	"github.com/angelmondragon/sharedwishlist/pkg/logger"
	"github.com/google/uuid"
)

// RealtimeConnect upgrades an authenticated request to a websocket session.
func RealtimeConnect(server *ws.Server, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if server == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "realtime unavailable"))
			return
		}

		userID, err := uuid.Parse(middleware.UserIDFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing user"))
			return
		}

		if err := server.Serve(w, r, userID); err != nil && logg != nil {
			logg.Warn(logg.WithField(r.Context(), "error", err.Error()), "realtime.upgrade.failed")
		}
	}
}
