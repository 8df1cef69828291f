package wishlists

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/angelmondragon/sharedwishlist/internal/realtime"
	"github.com/angelmondragon/sharedwishlist/pkg/db/models"
	pkgerrors "github.com/angelmondragon/sharedwishlist/pkg/errors"
	"github.com/angelmondragon/sharedwishlist/pkg/logger"
	"github.com/angelmondragon/sharedwishlist/pkg/metrics"
	"github.com/angelmondragon/sharedwishlist/pkg/pagination"
	"github.com/angelmondragon/sharedwishlist/pkg/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	maxNameLength    = 200
	maxCommentLength = 2000
	maxEmojiLength   = 32
)

// Service applies wishlist mutations and announces each successful one to the
// wishlist's room.
type Service interface {
	CreateWishlist(ctx context.Context, actorID uuid.UUID, name string) (*WishlistDTO, error)
	ListWishlists(ctx context.Context, actorID uuid.UUID, params pagination.Params) (types.Page[WishlistSummaryDTO], error)
	GetWishlist(ctx context.Context, actorID, wishlistID uuid.UUID) (*WishlistDTO, error)
	RenameWishlist(ctx context.Context, actorID, wishlistID uuid.UUID, name string) (*WishlistDTO, error)
	DeleteWishlist(ctx context.Context, actorID, wishlistID uuid.UUID) error

	AddProduct(ctx context.Context, actorID, wishlistID uuid.UUID, input ProductInput) (*ProductDTO, error)
	UpdateProduct(ctx context.Context, actorID, wishlistID, productID uuid.UUID, patch ProductPatch) (*ProductDTO, error)
	DeleteProduct(ctx context.Context, actorID, wishlistID, productID uuid.UUID) (*ProductDTO, error)
	AddComment(ctx context.Context, actorID, wishlistID, productID uuid.UUID, text string) (*ProductDTO, error)
	ToggleReaction(ctx context.Context, actorID, wishlistID, productID uuid.UUID, emoji string) (*ProductDTO, error)
	InviteMember(ctx context.Context, actorID, wishlistID uuid.UUID, email string) (*MembershipDTO, error)
	RemoveMember(ctx context.Context, actorID, wishlistID, memberID uuid.UUID) (*MembershipDTO, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type userLookup interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
}

// EventPublisher fans an event out to the wishlist room. realtime.Broadcaster
// satisfies it.
type EventPublisher interface {
	Publish(ctx context.Context, event realtime.Event)
}

// ServiceParams groups dependencies for the wishlist service.
type ServiceParams struct {
	Repo      WishlistRepository
	Users     userLookup
	TxRunner  txRunner
	Publisher EventPublisher
	Metrics   *metrics.MutationMetrics
	Logger    *logger.Logger
}

type service struct {
	repo      WishlistRepository
	users     userLookup
	tx        txRunner
	publisher EventPublisher
	metrics   *metrics.MutationMetrics
	logg      *logger.Logger
}

// NewService builds a wishlist service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("wishlist repo is required")
	}
	if params.Users == nil {
		return nil, fmt.Errorf("user lookup is required")
	}
	if params.TxRunner == nil {
		return nil, fmt.Errorf("tx runner is required")
	}
	if params.Publisher == nil {
		return nil, fmt.Errorf("event publisher is required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		repo:      params.Repo,
		users:     params.Users,
		tx:        params.TxRunner,
		publisher: params.Publisher,
		metrics:   params.Metrics,
		logg:      logg,
	}, nil
}

func (s *service) CreateWishlist(ctx context.Context, actorID uuid.UUID, name string) (*WishlistDTO, error) {
	name, err := requireName(name)
	if err != nil {
		return nil, err
	}

	var out *WishlistDTO
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		wishlist := &models.Wishlist{Name: name, OwnerID: actorID}
		if err := repo.CreateWishlist(ctx, wishlist); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create wishlist")
		}
		loaded, err := s.loadWishlist(ctx, repo, wishlist.ID)
		if err != nil {
			return err
		}
		out = WishlistFromModel(loaded)
		return nil
	})
	return out, err
}

func (s *service) ListWishlists(ctx context.Context, actorID uuid.UUID, params pagination.Params) (types.Page[WishlistSummaryDTO], error) {
	cursor, err := pagination.ParseCursor(strings.TrimSpace(params.Cursor))
	if err != nil {
		return types.Page[WishlistSummaryDTO]{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.ListForUser(ctx, actorID, cursor, pagination.LimitWithBuffer(params.Limit))
	if err != nil {
		return types.Page[WishlistSummaryDTO]{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list wishlists")
	}

	rows, next := pagination.Trim(rows, params.Limit, func(w models.Wishlist) pagination.Cursor {
		return pagination.Cursor{CreatedAt: w.CreatedAt, ID: w.ID}
	})
	items := make([]WishlistSummaryDTO, 0, len(rows))
	for _, row := range rows {
		items = append(items, SummaryFromModel(row))
	}
	return types.Page[WishlistSummaryDTO]{Items: items, NextCursor: next}, nil
}

func (s *service) GetWishlist(ctx context.Context, actorID, wishlistID uuid.UUID) (*WishlistDTO, error) {
	if _, err := s.requireMember(ctx, s.repo, wishlistID, actorID); err != nil {
		return nil, err
	}
	wishlist, err := s.loadWishlist(ctx, s.repo, wishlistID)
	if err != nil {
		return nil, err
	}
	return WishlistFromModel(wishlist), nil
}

func (s *service) RenameWishlist(ctx context.Context, actorID, wishlistID uuid.UUID, name string) (*WishlistDTO, error) {
	name, err := requireName(name)
	if err != nil {
		return nil, err
	}

	var out *WishlistDTO
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := s.requireOwner(ctx, repo, wishlistID, actorID); err != nil {
			return err
		}
		if err := repo.RenameWishlist(ctx, wishlistID, name); err != nil {
			return storeError(err, "wishlist not found", "rename wishlist")
		}
		loaded, err := s.loadWishlist(ctx, repo, wishlistID)
		if err != nil {
			return err
		}
		out = WishlistFromModel(loaded)
		return nil
	})
	return out, err
}

func (s *service) DeleteWishlist(ctx context.Context, actorID, wishlistID uuid.UUID) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := s.requireOwner(ctx, repo, wishlistID, actorID); err != nil {
			return err
		}
		if err := repo.DeleteWishlist(ctx, wishlistID); err != nil {
			return storeError(err, "wishlist not found", "delete wishlist")
		}
		return nil
	})
}

func (s *service) AddProduct(ctx context.Context, actorID, wishlistID uuid.UUID, input ProductInput) (*ProductDTO, error) {
	var out *ProductDTO
	err := s.mutate(ctx, "add_product", realtime.ProductAdded, wishlistID, func() (any, error) {
		name, err := requireName(input.Name)
		if err != nil {
			return nil, err
		}
		price, err := requirePrice(input.Price)
		if err != nil {
			return nil, err
		}
		product := &models.Product{
			WishlistID: wishlistID,
			Name:       name,
			ImageURL:   normalizeOptional(input.ImageURL),
			Price:      price,
			Category:   normalizeCategory(input.Category),
			AddedByID:  actorID,
		}

		err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			if _, err := s.requireMember(ctx, repo, wishlistID, actorID); err != nil {
				return err
			}
			if err := repo.CreateProduct(ctx, product); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create product")
			}
			out, err = s.loadProduct(ctx, repo, wishlistID, product.ID)
			return err
		})
		return out, err
	})
	return out, err
}

func (s *service) UpdateProduct(ctx context.Context, actorID, wishlistID, productID uuid.UUID, patch ProductPatch) (*ProductDTO, error) {
	var out *ProductDTO
	err := s.mutate(ctx, "update_product", realtime.ProductUpdated, wishlistID, func() (any, error) {
		changes, err := patchChanges(patch)
		if err != nil {
			return nil, err
		}
		changes["edited_by"] = actorID

		err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			if _, err := s.requireMember(ctx, repo, wishlistID, actorID); err != nil {
				return err
			}
			if err := repo.UpdateProduct(ctx, wishlistID, productID, changes); err != nil {
				return storeError(err, "product not found", "update product")
			}
			out, err = s.loadProduct(ctx, repo, wishlistID, productID)
			return err
		})
		return out, err
	})
	return out, err
}

// DeleteProduct returns the last snapshot of the product with the revision
// the deletion consumed.
func (s *service) DeleteProduct(ctx context.Context, actorID, wishlistID, productID uuid.UUID) (*ProductDTO, error) {
	var out *ProductDTO
	err := s.mutate(ctx, "delete_product", realtime.ProductDeleted, wishlistID, func() (any, error) {
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			if _, err := s.requireMember(ctx, repo, wishlistID, actorID); err != nil {
				return err
			}
			snapshot, err := s.loadProduct(ctx, repo, wishlistID, productID)
			if err != nil {
				return err
			}
			deleted, err := repo.DeleteProduct(ctx, wishlistID, productID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete product")
			}
			if !deleted {
				return pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
			}
			snapshot.Revision++
			out = snapshot
			return nil
		})
		return out, err
	})
	return out, err
}

func (s *service) AddComment(ctx context.Context, actorID, wishlistID, productID uuid.UUID, text string) (*ProductDTO, error) {
	var out *ProductDTO
	err := s.mutate(ctx, "add_comment", realtime.CommentAdded, wishlistID, func() (any, error) {
		text = strings.TrimSpace(text)
		if text == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "comment text is required")
		}
		if utf8.RuneCountInString(text) > maxCommentLength {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "comment text is too long")
		}

		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			if _, err := s.requireMember(ctx, repo, wishlistID, actorID); err != nil {
				return err
			}
			if _, err := s.loadProduct(ctx, repo, wishlistID, productID); err != nil {
				return err
			}
			if err := repo.CreateComment(ctx, &models.Comment{ProductID: productID, UserID: actorID, Text: text}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create comment")
			}
			var err error
			out, err = s.loadProduct(ctx, repo, wishlistID, productID)
			return err
		})
		return out, err
	})
	return out, err
}

// ToggleReaction removes the actor's emoji reaction if present and adds it
// otherwise, so two identical calls cancel out.
func (s *service) ToggleReaction(ctx context.Context, actorID, wishlistID, productID uuid.UUID, emoji string) (*ProductDTO, error) {
	var out *ProductDTO
	err := s.mutate(ctx, "toggle_reaction", realtime.ReactionChanged, wishlistID, func() (any, error) {
		emoji = strings.TrimSpace(emoji)
		if emoji == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "emoji is required")
		}
		if len(emoji) > maxEmojiLength {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "emoji is too long")
		}

		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			if _, err := s.requireMember(ctx, repo, wishlistID, actorID); err != nil {
				return err
			}
			if _, err := s.loadProduct(ctx, repo, wishlistID, productID); err != nil {
				return err
			}
			if _, err := repo.ToggleReaction(ctx, productID, actorID, emoji); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "toggle reaction")
			}
			var err error
			out, err = s.loadProduct(ctx, repo, wishlistID, productID)
			return err
		})
		return out, err
	})
	return out, err
}

// InviteMember is open to the owner and existing members.
func (s *service) InviteMember(ctx context.Context, actorID, wishlistID uuid.UUID, email string) (*MembershipDTO, error) {
	var out *MembershipDTO
	err := s.mutate(ctx, "invite_member", realtime.MemberInvited, wishlistID, func() (any, error) {
		email = strings.ToLower(strings.TrimSpace(email))
		if email == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "email is required")
		}

		if _, err := s.requireMember(ctx, s.repo, wishlistID, actorID); err != nil {
			return nil, err
		}
		target, err := s.users.FindByEmail(ctx, email)
		if err != nil {
			return nil, storeError(err, "user not found", "lookup user")
		}

		err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			added, err := repo.AddMember(ctx, wishlistID, target.ID, &actorID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "add member")
			}
			if !added {
				return pkgerrors.New(pkgerrors.CodeAlreadyMember, "user is already a member").
					WithDetails(map[string]any{"userId": target.ID})
			}
			out, err = s.membership(ctx, repo, wishlistID, target)
			return err
		})
		return out, err
	})
	return out, err
}

// RemoveMember is owner-only and never removes the owner.
func (s *service) RemoveMember(ctx context.Context, actorID, wishlistID, memberID uuid.UUID) (*MembershipDTO, error) {
	var out *MembershipDTO
	err := s.mutate(ctx, "remove_member", realtime.MemberRemoved, wishlistID, func() (any, error) {
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			if err := s.requireOwner(ctx, repo, wishlistID, actorID); err != nil {
				return err
			}
			if memberID == actorID {
				return pkgerrors.New(pkgerrors.CodeForbidden, "the owner cannot be removed")
			}

			members, err := repo.ListMembers(ctx, wishlistID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list members")
			}
			var removedUser *models.User
			for i := range members {
				if members[i].UserID == memberID {
					removedUser = members[i].User
				}
			}

			removed, err := repo.RemoveMember(ctx, wishlistID, memberID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "remove member")
			}
			if !removed {
				return pkgerrors.New(pkgerrors.CodeNotFound, "member not found")
			}
			if removedUser == nil {
				removedUser = &models.User{ID: memberID}
			}
			out, err = s.membership(ctx, repo, wishlistID, removedUser)
			return err
		})
		return out, err
	})
	return out, err
}

// mutate runs apply, records its outcome and publishes the resulting entity
// only when apply succeeded.
func (s *service) mutate(ctx context.Context, operation string, eventType realtime.EventType, wishlistID uuid.UUID, apply func() (any, error)) error {
	start := time.Now()
	payload, err := apply()
	s.metrics.Observe(operation, time.Since(start), err)
	if err != nil {
		return err
	}

	event, err := realtime.NewEvent(eventType, wishlistID, payload)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build event")
	}
	s.publisher.Publish(ctx, event)

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"wishlist_id": wishlistID.String(),
		"event_type":  string(eventType),
		"operation":   operation,
	})
	if p, ok := payload.(*ProductDTO); ok && p != nil {
		logCtx = s.logg.WithField(logCtx, "product_id", p.ID.String())
	}
	s.logg.Info(logCtx, "wishlist.mutation.applied")
	return nil
}

func (s *service) requireMember(ctx context.Context, repo WishlistRepository, wishlistID, userID uuid.UUID) (uuid.UUID, error) {
	ownerID, err := repo.OwnerOf(ctx, wishlistID)
	if err != nil {
		return uuid.Nil, storeError(err, "wishlist not found", "load wishlist")
	}
	if ownerID == userID {
		return ownerID, nil
	}
	ok, err := repo.IsMember(ctx, wishlistID, userID)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check membership")
	}
	if !ok {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeForbidden, "not a member of this wishlist")
	}
	return ownerID, nil
}

func (s *service) requireOwner(ctx context.Context, repo WishlistRepository, wishlistID, userID uuid.UUID) error {
	isOwner, err := repo.IsOwner(ctx, wishlistID, userID)
	if err != nil {
		return storeError(err, "wishlist not found", "load wishlist")
	}
	if !isOwner {
		return pkgerrors.New(pkgerrors.CodeForbidden, "only the owner can do this")
	}
	return nil
}

func (s *service) loadWishlist(ctx context.Context, repo WishlistRepository, wishlistID uuid.UUID) (*models.Wishlist, error) {
	wishlist, err := repo.FindWishlist(ctx, wishlistID)
	if err != nil {
		return nil, storeError(err, "wishlist not found", "load wishlist")
	}
	return wishlist, nil
}

func (s *service) loadProduct(ctx context.Context, repo WishlistRepository, wishlistID, productID uuid.UUID) (*ProductDTO, error) {
	product, err := repo.FindProduct(ctx, wishlistID, productID)
	if err != nil {
		return nil, storeError(err, "product not found", "load product")
	}
	return ProductFromModel(product), nil
}

func (s *service) membership(ctx context.Context, repo WishlistRepository, wishlistID uuid.UUID, subject *models.User) (*MembershipDTO, error) {
	members, err := repo.ListMembers(ctx, wishlistID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list members")
	}
	return &MembershipDTO{
		WishlistID: wishlistID,
		User:       userRef(subject, subject.ID),
		Members:    membersFromModel(members),
	}, nil
}

func storeError(err error, notFound, op string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, notFound)
	}
	if typed := pkgerrors.As(err); typed != nil {
		return typed
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, op)
}

func requireName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "name is too long")
	}
	return name, nil
}

func requirePrice(price *decimal.Decimal) (decimal.Decimal, error) {
	if price == nil {
		return decimal.Zero, nil
	}
	if price.IsNegative() {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "price must not be negative")
	}
	return price.Round(2), nil
}

func normalizeCategory(category string) string {
	category = strings.TrimSpace(category)
	if category == "" {
		return models.DefaultCategory
	}
	return category
}

func normalizeOptional(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func patchChanges(patch ProductPatch) (map[string]any, error) {
	if patch.Empty() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "no fields to update")
	}
	changes := map[string]any{}
	if patch.Name.Present {
		if patch.Name.Value == nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "name cannot be null")
		}
		name, err := requireName(*patch.Name.Value)
		if err != nil {
			return nil, err
		}
		changes["name"] = name
	}
	if patch.ImageURL.Present {
		changes["image_url"] = normalizeOptional(patch.ImageURL.Value)
	}
	if patch.Price.Present {
		price, err := requirePrice(patch.Price.Value)
		if err != nil {
			return nil, err
		}
		changes["price"] = price
	}
	if patch.Category.Present {
		category := ""
		if patch.Category.Value != nil {
			category = *patch.Category.Value
		}
		changes["category"] = normalizeCategory(category)
	}
	return changes, nil
}
