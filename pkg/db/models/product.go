package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const DefaultCategory = "General"

// Product is one desired item inside a wishlist.
type Product struct {
	ID         uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	WishlistID uuid.UUID       `gorm:"column:wishlist_id;type:uuid;not null;index:products_wishlist_position_idx,priority:1"`
	Name       string          `gorm:"column:name;not null"`
	ImageURL   *string         `gorm:"column:image_url"`
	Price      decimal.Decimal `gorm:"column:price;type:numeric(12,2);not null;default:0"`
	Category   string          `gorm:"column:category;not null;default:General"`
	AddedByID  uuid.UUID       `gorm:"column:added_by;type:uuid;not null"`
	AddedBy    *User           `gorm:"foreignKey:AddedByID"`
	EditedByID *uuid.UUID      `gorm:"column:edited_by;type:uuid"`
	EditedBy   *User           `gorm:"foreignKey:EditedByID"`
	Position   int64           `gorm:"column:position;not null;index:products_wishlist_position_idx,priority:2"`
	Revision   int64           `gorm:"column:revision;not null;default:1"`
	Comments   []Comment       `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE"`
	Reactions  []Reaction      `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE"`
	CreatedAt  time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Product) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.Category == "" {
		p.Category = DefaultCategory
	}
	if p.Revision == 0 {
		p.Revision = 1
	}
	return nil
}

// Comment is an immutable note left on a product.
type Comment struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	ProductID uuid.UUID `gorm:"column:product_id;type:uuid;not null;index:comments_product_created_idx,priority:1"`
	UserID    uuid.UUID `gorm:"column:user_id;type:uuid;not null"`
	User      *User     `gorm:"foreignKey:UserID"`
	Text      string    `gorm:"column:text;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime;index:comments_product_created_idx,priority:2"`
}

func (c *Comment) BeforeCreate(*gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// Reaction is unique per (product, user, emoji).
type Reaction struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	ProductID uuid.UUID `gorm:"column:product_id;type:uuid;not null;uniqueIndex:reactions_product_user_emoji_key,priority:1"`
	UserID    uuid.UUID `gorm:"column:user_id;type:uuid;not null;uniqueIndex:reactions_product_user_emoji_key,priority:2"`
	User      *User     `gorm:"foreignKey:UserID"`
	Emoji     string    `gorm:"column:emoji;not null;uniqueIndex:reactions_product_user_emoji_key,priority:3"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (r *Reaction) BeforeCreate(*gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// All lists every model in dependency order, used for sqlite schema setup.
func All() []any {
	return []any{
		&User{},
		&Wishlist{},
		&WishlistMember{},
		&Product{},
		&Comment{},
		&Reaction{},
	}
}
