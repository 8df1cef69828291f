package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Wishlist is a shared, named collection of products.
type Wishlist struct {
	ID        uuid.UUID        `gorm:"column:id;type:uuid;primaryKey"`
	Name      string           `gorm:"column:name;not null"`
	OwnerID   uuid.UUID        `gorm:"column:owner_id;type:uuid;not null;index:wishlists_owner_id_idx"`
	Owner     *User            `gorm:"foreignKey:OwnerID"`
	Members   []WishlistMember `gorm:"foreignKey:WishlistID;constraint:OnDelete:CASCADE"`
	Products  []Product        `gorm:"foreignKey:WishlistID;constraint:OnDelete:CASCADE"`
	Revision  int64            `gorm:"column:revision;not null;default:1"`
	CreatedAt time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

func (w *Wishlist) BeforeCreate(*gorm.DB) error {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	if w.Revision == 0 {
		w.Revision = 1
	}
	return nil
}

// WishlistMember links a user to a wishlist. The owner always has a row.
type WishlistMember struct {
	WishlistID      uuid.UUID  `gorm:"column:wishlist_id;type:uuid;primaryKey"`
	UserID          uuid.UUID  `gorm:"column:user_id;type:uuid;primaryKey;index:wishlist_members_user_id_idx"`
	User            *User      `gorm:"foreignKey:UserID"`
	InvitedByUserID *uuid.UUID `gorm:"column:invited_by_user_id;type:uuid"`
	CreatedAt       time.Time  `gorm:"column:created_at;autoCreateTime"`
}
