package wishlists

import (
	"context"
	"time"

	"github.com/angelmondragon/sharedwishlist/pkg/db/models"
	"github.com/angelmondragon/sharedwishlist/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// WishlistRepository is the persistence surface the service depends on.
type WishlistRepository interface {
	WithTx(tx *gorm.DB) WishlistRepository

	CreateWishlist(ctx context.Context, wishlist *models.Wishlist) error
	FindWishlist(ctx context.Context, wishlistID uuid.UUID) (*models.Wishlist, error)
	ListForUser(ctx context.Context, userID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.Wishlist, error)
	RenameWishlist(ctx context.Context, wishlistID uuid.UUID, name string) error
	DeleteWishlist(ctx context.Context, wishlistID uuid.UUID) error

	OwnerOf(ctx context.Context, wishlistID uuid.UUID) (uuid.UUID, error)
	IsMember(ctx context.Context, wishlistID, userID uuid.UUID) (bool, error)
	IsOwner(ctx context.Context, wishlistID, userID uuid.UUID) (bool, error)
	AddMember(ctx context.Context, wishlistID, userID uuid.UUID, invitedBy *uuid.UUID) (bool, error)
	RemoveMember(ctx context.Context, wishlistID, userID uuid.UUID) (bool, error)
	ListMembers(ctx context.Context, wishlistID uuid.UUID) ([]models.WishlistMember, error)

	CreateProduct(ctx context.Context, product *models.Product) error
	FindProduct(ctx context.Context, wishlistID, productID uuid.UUID) (*models.Product, error)
	UpdateProduct(ctx context.Context, wishlistID, productID uuid.UUID, changes map[string]any) error
	DeleteProduct(ctx context.Context, wishlistID, productID uuid.UUID) (bool, error)
	CreateComment(ctx context.Context, comment *models.Comment) error
	ToggleReaction(ctx context.Context, productID, userID uuid.UUID, emoji string) (bool, error)
}

// Repository encapsulates wishlist persistence.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a wishlist repository bound to the provided gorm DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx binds the repository to a transaction.
func (r *Repository) WithTx(tx *gorm.DB) WishlistRepository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// CreateWishlist inserts the wishlist and its owner's membership row.
func (r *Repository) CreateWishlist(ctx context.Context, wishlist *models.Wishlist) error {
	db := r.db.WithContext(ctx)
	if err := db.Omit(clause.Associations).Create(wishlist).Error; err != nil {
		return err
	}
	return db.Create(&models.WishlistMember{
		WishlistID: wishlist.ID,
		UserID:     wishlist.OwnerID,
	}).Error
}

// FindWishlist loads the full representation: owner, members, products by
// position, comments by creation order and reactions.
func (r *Repository) FindWishlist(ctx context.Context, wishlistID uuid.UUID) (*models.Wishlist, error) {
	var wishlist models.Wishlist
	err := r.db.WithContext(ctx).
		Preload("Owner").
		Preload("Members", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC").Order("user_id ASC")
		}).
		Preload("Members.User").
		Preload("Products", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		Preload("Products.AddedBy").
		Preload("Products.EditedBy").
		Preload("Products.Comments", orderComments).
		Preload("Products.Comments.User").
		Preload("Products.Reactions", orderReactions).
		Preload("Products.Reactions.User").
		First(&wishlist, "id = ?", wishlistID).Error
	if err != nil {
		return nil, err
	}
	return &wishlist, nil
}

// ListForUser pages through wishlists the user belongs to, newest first.
func (r *Repository) ListForUser(ctx context.Context, userID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.Wishlist, error) {
	query := r.db.WithContext(ctx).
		Model(&models.Wishlist{}).
		Select("wishlists.*").
		Joins("JOIN wishlist_members wm ON wm.wishlist_id = wishlists.id AND wm.user_id = ?", userID).
		Preload("Owner")
	if cursor != nil {
		query = query.Where("(wishlists.created_at < ?) OR (wishlists.created_at = ? AND wishlists.id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}

	var rows []models.Wishlist
	err := query.
		Order("wishlists.created_at DESC").
		Order("wishlists.id DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *Repository) RenameWishlist(ctx context.Context, wishlistID uuid.UUID, name string) error {
	res := r.db.WithContext(ctx).
		Model(&models.Wishlist{}).
		Where("id = ?", wishlistID).
		Updates(map[string]any{
			"name":       name,
			"revision":   gorm.Expr("revision + 1"),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DeleteWishlist removes the wishlist and everything under it. Children are
// deleted explicitly so sqlite without cascading FKs behaves like postgres.
func (r *Repository) DeleteWishlist(ctx context.Context, wishlistID uuid.UUID) error {
	db := r.db.WithContext(ctx)
	products := db.Model(&models.Product{}).Select("id").Where("wishlist_id = ?", wishlistID)

	if err := db.Where("product_id IN (?)", products).Delete(&models.Reaction{}).Error; err != nil {
		return err
	}
	if err := db.Where("product_id IN (?)", products).Delete(&models.Comment{}).Error; err != nil {
		return err
	}
	if err := db.Where("wishlist_id = ?", wishlistID).Delete(&models.Product{}).Error; err != nil {
		return err
	}
	if err := db.Where("wishlist_id = ?", wishlistID).Delete(&models.WishlistMember{}).Error; err != nil {
		return err
	}
	res := db.Where("id = ?", wishlistID).Delete(&models.Wishlist{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// OwnerOf returns gorm.ErrRecordNotFound when the wishlist does not exist.
func (r *Repository) OwnerOf(ctx context.Context, wishlistID uuid.UUID) (uuid.UUID, error) {
	var wishlist models.Wishlist
	err := r.db.WithContext(ctx).
		Select("id", "owner_id").
		First(&wishlist, "id = ?", wishlistID).Error
	if err != nil {
		return uuid.Nil, err
	}
	return wishlist.OwnerID, nil
}

func (r *Repository) IsMember(ctx context.Context, wishlistID, userID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.WishlistMember{}).
		Where("wishlist_id = ? AND user_id = ?", wishlistID, userID).
		Count(&count).Error
	return count > 0, err
}

// IsOwner returns gorm.ErrRecordNotFound when the wishlist does not exist.
func (r *Repository) IsOwner(ctx context.Context, wishlistID, userID uuid.UUID) (bool, error) {
	ownerID, err := r.OwnerOf(ctx, wishlistID)
	if err != nil {
		return false, err
	}
	return ownerID == userID, nil
}

// AddMember reports false when the user was already a member.
func (r *Repository) AddMember(ctx context.Context, wishlistID, userID uuid.UUID, invitedBy *uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.WishlistMember{
			WishlistID:      wishlistID,
			UserID:          userID,
			InvitedByUserID: invitedBy,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// RemoveMember reports false when the user was not a member.
func (r *Repository) RemoveMember(ctx context.Context, wishlistID, userID uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("wishlist_id = ? AND user_id = ?", wishlistID, userID).
		Delete(&models.WishlistMember{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *Repository) ListMembers(ctx context.Context, wishlistID uuid.UUID) ([]models.WishlistMember, error) {
	var members []models.WishlistMember
	err := r.db.WithContext(ctx).
		Preload("User").
		Where("wishlist_id = ?", wishlistID).
		Order("created_at ASC").
		Order("user_id ASC").
		Find(&members).Error
	return members, err
}

// CreateProduct appends the product after the current last position.
func (r *Repository) CreateProduct(ctx context.Context, product *models.Product) error {
	db := r.db.WithContext(ctx)
	var last int64
	err := db.Model(&models.Product{}).
		Where("wishlist_id = ?", product.WishlistID).
		Select("COALESCE(MAX(position), 0)").
		Scan(&last).Error
	if err != nil {
		return err
	}
	product.Position = last + 1
	return db.Omit(clause.Associations).Create(product).Error
}

func (r *Repository) FindProduct(ctx context.Context, wishlistID, productID uuid.UUID) (*models.Product, error) {
	var product models.Product
	err := r.db.WithContext(ctx).
		Preload("AddedBy").
		Preload("EditedBy").
		Preload("Comments", orderComments).
		Preload("Comments.User").
		Preload("Reactions", orderReactions).
		Preload("Reactions.User").
		Where("wishlist_id = ?", wishlistID).
		First(&product, "id = ?", productID).Error
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// UpdateProduct applies changes and bumps the revision in the same statement.
func (r *Repository) UpdateProduct(ctx context.Context, wishlistID, productID uuid.UUID, changes map[string]any) error {
	updates := make(map[string]any, len(changes)+2)
	for k, v := range changes {
		updates[k] = v
	}
	updates["revision"] = gorm.Expr("revision + 1")
	updates["updated_at"] = time.Now().UTC()

	res := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ? AND wishlist_id = ?", productID, wishlistID).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DeleteProduct removes the product with its comments and reactions.
func (r *Repository) DeleteProduct(ctx context.Context, wishlistID, productID uuid.UUID) (bool, error) {
	db := r.db.WithContext(ctx)
	if err := db.Where("product_id = ?", productID).Delete(&models.Reaction{}).Error; err != nil {
		return false, err
	}
	if err := db.Where("product_id = ?", productID).Delete(&models.Comment{}).Error; err != nil {
		return false, err
	}
	res := db.Where("id = ? AND wishlist_id = ?", productID, wishlistID).Delete(&models.Product{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// CreateComment appends a comment and bumps the product revision.
func (r *Repository) CreateComment(ctx context.Context, comment *models.Comment) error {
	db := r.db.WithContext(ctx)
	if err := db.Omit(clause.Associations).Create(comment).Error; err != nil {
		return err
	}
	return r.bumpProduct(db, comment.ProductID)
}

// ToggleReaction deletes the (user, emoji) reaction if present, otherwise
// inserts it. It reports whether the reaction now exists.
func (r *Repository) ToggleReaction(ctx context.Context, productID, userID uuid.UUID, emoji string) (bool, error) {
	db := r.db.WithContext(ctx)
	res := db.Where("product_id = ? AND user_id = ? AND emoji = ?", productID, userID, emoji).
		Delete(&models.Reaction{})
	if res.Error != nil {
		return false, res.Error
	}

	added := false
	if res.RowsAffected == 0 {
		ins := db.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&models.Reaction{ProductID: productID, UserID: userID, Emoji: emoji})
		if ins.Error != nil {
			return false, ins.Error
		}
		added = ins.RowsAffected > 0
	}
	if err := r.bumpProduct(db, productID); err != nil {
		return false, err
	}
	return added, nil
}

func (r *Repository) bumpProduct(db *gorm.DB, productID uuid.UUID) error {
	res := db.Model(&models.Product{}).
		Where("id = ?", productID).
		Updates(map[string]any{
			"revision":   gorm.Expr("revision + 1"),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func orderComments(db *gorm.DB) *gorm.DB {
	return db.Order("created_at ASC").Order("id ASC")
}

func orderReactions(db *gorm.DB) *gorm.DB {
	return db.Order("created_at ASC").Order("emoji ASC")
}
