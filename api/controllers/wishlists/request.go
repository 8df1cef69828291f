package wishlists

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/sharedwishlist/api/middleware"
	pkgerrors "github.com/angelmondragon/sharedwishlist/pkg/errors"
)

type createWishlistRequest struct {
	Name string `json:"name" validate:"required,max=200"`
}

type renameWishlistRequest struct {
	Name string `json:"name" validate:"required,max=200"`
}

type commentRequest struct {
	Text string `json:"text" validate:"required,max=2000"`
}

type reactionRequest struct {
	Emoji string `json:"emoji" validate:"required,max=32"`
}

type inviteRequest struct {
	Email string `json:"email" validate:"required,email"`
}

func actorID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(middleware.UserIDFromContext(r.Context()))
	if err != nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing user")
	}
	return id, nil
}

func pathUUID(r *http.Request, param string) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, param))
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid "+param).WithDetails(map[string]any{"field": param})
	}
	return id, nil
}

// scope resolves the actor and the wishlist id every wishlist route needs.
func scope(r *http.Request) (uuid.UUID, uuid.UUID, error) {
	actor, err := actorID(r)
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	wishlistID, err := pathUUID(r, "wishlistId")
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	return actor, wishlistID, nil
}
