package wishlists

import (
	"time"

	"github.com/angelmondragon/sharedwishlist/pkg/db/models"
	"github.com/angelmondragon/sharedwishlist/pkg/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// UserRefDTO is how users appear inside wishlist representations.
type UserRefDTO struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
	Email    string    `json:"email"`
}

type CommentDTO struct {
	ID        uuid.UUID  `json:"id"`
	Text      string     `json:"text"`
	User      UserRefDTO `json:"user"`
	CreatedAt time.Time  `json:"createdAt"`
}

type ReactionDTO struct {
	Emoji string     `json:"emoji"`
	User  UserRefDTO `json:"user"`
}

// ProductDTO is the full product snapshot carried by product events.
type ProductDTO struct {
	ID         uuid.UUID       `json:"id"`
	WishlistID uuid.UUID       `json:"wishlistId"`
	Name       string          `json:"name"`
	ImageURL   *string         `json:"imageUrl,omitempty"`
	Price      decimal.Decimal `json:"price"`
	Category   string          `json:"category"`
	AddedBy    UserRefDTO      `json:"addedBy"`
	EditedBy   *UserRefDTO     `json:"editedBy,omitempty"`
	Position   int64           `json:"position"`
	Revision   int64           `json:"revision"`
	Comments   []CommentDTO    `json:"comments"`
	Reactions  []ReactionDTO   `json:"reactions"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

// WishlistDTO is the authoritative full representation returned by GET.
type WishlistDTO struct {
	ID        uuid.UUID    `json:"id"`
	Name      string       `json:"name"`
	Owner     UserRefDTO   `json:"owner"`
	Members   []UserRefDTO `json:"members"`
	Products  []ProductDTO `json:"products"`
	Revision  int64        `json:"revision"`
	CreatedAt time.Time    `json:"createdAt"`
	UpdatedAt time.Time    `json:"updatedAt"`
}

type WishlistSummaryDTO struct {
	ID        uuid.UUID  `json:"id"`
	Name      string     `json:"name"`
	Owner     UserRefDTO `json:"owner"`
	Revision  int64      `json:"revision"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// MembershipDTO is the payload of membership events.
type MembershipDTO struct {
	WishlistID uuid.UUID    `json:"wishlistId"`
	User       UserRefDTO   `json:"user"`
	Members    []UserRefDTO `json:"members"`
}

// ProductInput is the body of an add-product request. A missing price is 0.
type ProductInput struct {
	Name     string           `json:"name" validate:"required,max=200"`
	ImageURL *string          `json:"imageUrl,omitempty" validate:"omitempty,max=2048"`
	Price    *decimal.Decimal `json:"price,omitempty"`
	Category string           `json:"category,omitempty" validate:"max=64"`
}

// ProductPatch carries only the fields the caller sent. A null imageUrl
// clears the image; a null category resets it to the default.
type ProductPatch struct {
	Name     types.Nullable[string]          `json:"name"`
	ImageURL types.Nullable[string]          `json:"imageUrl"`
	Price    types.Nullable[decimal.Decimal] `json:"price"`
	Category types.Nullable[string]          `json:"category"`
}

func (p ProductPatch) Empty() bool {
	return !p.Name.Present && !p.ImageURL.Present && !p.Price.Present && !p.Category.Present
}

func userRef(u *models.User, fallbackID uuid.UUID) UserRefDTO {
	if u == nil {
		return UserRefDTO{ID: fallbackID}
	}
	return UserRefDTO{ID: u.ID, Username: u.Username, Email: u.Email}
}

func ProductFromModel(p *models.Product) *ProductDTO {
	if p == nil {
		return nil
	}
	dto := &ProductDTO{
		ID:         p.ID,
		WishlistID: p.WishlistID,
		Name:       p.Name,
		ImageURL:   p.ImageURL,
		Price:      p.Price,
		Category:   p.Category,
		AddedBy:    userRef(p.AddedBy, p.AddedByID),
		Position:   p.Position,
		Revision:   p.Revision,
		Comments:   make([]CommentDTO, 0, len(p.Comments)),
		Reactions:  make([]ReactionDTO, 0, len(p.Reactions)),
		CreatedAt:  p.CreatedAt,
		UpdatedAt:  p.UpdatedAt,
	}
	if p.EditedByID != nil {
		ref := userRef(p.EditedBy, *p.EditedByID)
		dto.EditedBy = &ref
	}
	for _, c := range p.Comments {
		dto.Comments = append(dto.Comments, CommentDTO{
			ID:        c.ID,
			Text:      c.Text,
			User:      userRef(c.User, c.UserID),
			CreatedAt: c.CreatedAt,
		})
	}
	for _, r := range p.Reactions {
		dto.Reactions = append(dto.Reactions, ReactionDTO{
			Emoji: r.Emoji,
			User:  userRef(r.User, r.UserID),
		})
	}
	return dto
}

func WishlistFromModel(w *models.Wishlist) *WishlistDTO {
	if w == nil {
		return nil
	}
	dto := &WishlistDTO{
		ID:        w.ID,
		Name:      w.Name,
		Owner:     userRef(w.Owner, w.OwnerID),
		Members:   membersFromModel(w.Members),
		Products:  make([]ProductDTO, 0, len(w.Products)),
		Revision:  w.Revision,
		CreatedAt: w.CreatedAt,
		UpdatedAt: w.UpdatedAt,
	}
	for i := range w.Products {
		dto.Products = append(dto.Products, *ProductFromModel(&w.Products[i]))
	}
	return dto
}

func SummaryFromModel(w models.Wishlist) WishlistSummaryDTO {
	return WishlistSummaryDTO{
		ID:        w.ID,
		Name:      w.Name,
		Owner:     userRef(w.Owner, w.OwnerID),
		Revision:  w.Revision,
		CreatedAt: w.CreatedAt,
		UpdatedAt: w.UpdatedAt,
	}
}

func membersFromModel(members []models.WishlistMember) []UserRefDTO {
	out := make([]UserRefDTO, 0, len(members))
	for _, m := range members {
		out = append(out, userRef(m.User, m.UserID))
	}
	return out
}
