package wishlists

import (
	"context"
	"errors"
	"testing"

	"github.com/angelmondragon/sharedwishlist/pkg/db"
	"github.com/angelmondragon/sharedwishlist/pkg/db/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file::memory:?_foreign_keys=on"), &gorm.Config{NowFunc: db.NowUTC})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, conn.AutoMigrate(models.All()...))
	return conn
}

func seedUser(t *testing.T, conn *gorm.DB, name string) *models.User {
	t.Helper()
	user := &models.User{Username: name, Email: name + "@example.com", PasswordHash: "x"}
	require.NoError(t, conn.Create(user).Error)
	return user
}

func seedWishlist(t *testing.T, repo *Repository, owner *models.User) *models.Wishlist {
	t.Helper()
	w := &models.Wishlist{Name: "Birthday", OwnerID: owner.ID}
	require.NoError(t, repo.CreateWishlist(context.Background(), w))
	return w
}

func TestRepositoryCreateWishlistAddsOwnerAsMember(t *testing.T) {
	conn := newTestDB(t)
	repo := NewRepository(conn)
	owner := seedUser(t, conn, "owner")
	w := seedWishlist(t, repo, owner)

	ok, err := repo.IsMember(context.Background(), w.ID, owner.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	isOwner, err := repo.IsOwner(context.Background(), w.ID, owner.ID)
	require.NoError(t, err)
	assert.True(t, isOwner)

	loaded, err := repo.FindWishlist(context.Background(), w.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Members, 1)
	assert.Equal(t, "owner", loaded.Members[0].User.Username)
	assert.Equal(t, int64(1), loaded.Revision)
}

func TestRepositoryIsOwner(t *testing.T) {
	conn := newTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	owner := seedUser(t, conn, "owner")
	guest := seedUser(t, conn, "guest")
	w := seedWishlist(t, repo, owner)

	isOwner, err := repo.IsOwner(ctx, w.ID, guest.ID)
	require.NoError(t, err)
	assert.False(t, isOwner)

	_, err = repo.IsOwner(ctx, uuid.New(), owner.ID)
	assert.True(t, errors.Is(err, gorm.ErrRecordNotFound))
}

func TestRepositoryAddMemberReportsDuplicates(t *testing.T) {
	conn := newTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	owner := seedUser(t, conn, "owner")
	guest := seedUser(t, conn, "guest")
	w := seedWishlist(t, repo, owner)

	added, err := repo.AddMember(ctx, w.ID, guest.ID, &owner.ID)
	require.NoError(t, err)
	assert.True(t, added)

	added, err = repo.AddMember(ctx, w.ID, guest.ID, &owner.ID)
	require.NoError(t, err)
	assert.False(t, added)

	members, err := repo.ListMembers(ctx, w.ID)
	require.NoError(t, err)
	assert.Len(t, members, 2)

	removed, err := repo.RemoveMember(ctx, w.ID, guest.ID)
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = repo.RemoveMember(ctx, w.ID, guest.ID)
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestRepositoryProductPositionsAndRevisions(t *testing.T) {
	conn := newTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	owner := seedUser(t, conn, "owner")
	w := seedWishlist(t, repo, owner)

	first := &models.Product{WishlistID: w.ID, Name: "Lamp", AddedByID: owner.ID, Price: decimal.RequireFromString("12.50")}
	second := &models.Product{WishlistID: w.ID, Name: "Book", AddedByID: owner.ID}
	require.NoError(t, repo.CreateProduct(ctx, first))
	require.NoError(t, repo.CreateProduct(ctx, second))
	assert.Equal(t, int64(1), first.Position)
	assert.Equal(t, int64(2), second.Position)

	require.NoError(t, repo.UpdateProduct(ctx, w.ID, first.ID, map[string]any{"name": "Desk lamp", "edited_by": owner.ID}))
	loaded, err := repo.FindProduct(ctx, w.ID, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "Desk lamp", loaded.Name)
	assert.Equal(t, int64(2), loaded.Revision)
	assert.Equal(t, models.DefaultCategory, loaded.Category)
	assert.True(t, loaded.Price.Equal(decimal.RequireFromString("12.5")))
	require.NotNil(t, loaded.EditedBy)
	assert.Equal(t, owner.ID, loaded.EditedBy.ID)

	err = repo.UpdateProduct(ctx, uuid.New(), first.ID, map[string]any{"name": "x"})
	assert.True(t, errors.Is(err, gorm.ErrRecordNotFound))

	full, err := repo.FindWishlist(ctx, w.ID)
	require.NoError(t, err)
	require.Len(t, full.Products, 2)
	assert.Equal(t, first.ID, full.Products[0].ID)
	assert.Equal(t, second.ID, full.Products[1].ID)
}

func TestRepositoryToggleReactionIsItsOwnInverse(t *testing.T) {
	conn := newTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	owner := seedUser(t, conn, "owner")
	w := seedWishlist(t, repo, owner)
	p := &models.Product{WishlistID: w.ID, Name: "Lamp", AddedByID: owner.ID}
	require.NoError(t, repo.CreateProduct(ctx, p))

	added, err := repo.ToggleReaction(ctx, p.ID, owner.ID, "🎉")
	require.NoError(t, err)
	assert.True(t, added)

	loaded, err := repo.FindProduct(ctx, w.ID, p.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Reactions, 1)
	assert.Equal(t, int64(2), loaded.Revision)

	added, err = repo.ToggleReaction(ctx, p.ID, owner.ID, "🎉")
	require.NoError(t, err)
	assert.False(t, added)

	loaded, err = repo.FindProduct(ctx, w.ID, p.ID)
	require.NoError(t, err)
	assert.Empty(t, loaded.Reactions)
	assert.Equal(t, int64(3), loaded.Revision)
}

func TestRepositoryCommentsKeepInsertionOrder(t *testing.T) {
	conn := newTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	owner := seedUser(t, conn, "owner")
	w := seedWishlist(t, repo, owner)
	p := &models.Product{WishlistID: w.ID, Name: "Lamp", AddedByID: owner.ID}
	require.NoError(t, repo.CreateProduct(ctx, p))

	for _, text := range []string{"first", "second", "third"} {
		require.NoError(t, repo.CreateComment(ctx, &models.Comment{ProductID: p.ID, UserID: owner.ID, Text: text}))
	}

	loaded, err := repo.FindProduct(ctx, w.ID, p.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Comments, 3)
	assert.Equal(t, "first", loaded.Comments[0].Text)
	assert.Equal(t, "third", loaded.Comments[2].Text)
	assert.Equal(t, "owner", loaded.Comments[0].User.Username)
	assert.Equal(t, int64(4), loaded.Revision)
}

func TestRepositoryDeleteWishlistCascades(t *testing.T) {
	conn := newTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	owner := seedUser(t, conn, "owner")
	w := seedWishlist(t, repo, owner)
	p := &models.Product{WishlistID: w.ID, Name: "Lamp", AddedByID: owner.ID}
	require.NoError(t, repo.CreateProduct(ctx, p))
	require.NoError(t, repo.CreateComment(ctx, &models.Comment{ProductID: p.ID, UserID: owner.ID, Text: "hi"}))
	_, err := repo.ToggleReaction(ctx, p.ID, owner.ID, "👍")
	require.NoError(t, err)

	require.NoError(t, repo.DeleteWishlist(ctx, w.ID))

	for _, model := range []any{&models.Wishlist{}, &models.WishlistMember{}, &models.Product{}, &models.Comment{}, &models.Reaction{}} {
		var count int64
		require.NoError(t, conn.Model(model).Count(&count).Error)
		assert.Zero(t, count)
	}
	assert.True(t, errors.Is(repo.DeleteWishlist(ctx, w.ID), gorm.ErrRecordNotFound))
}

func TestRepositoryListForUserPaginates(t *testing.T) {
	conn := newTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	owner := seedUser(t, conn, "owner")
	other := seedUser(t, conn, "other")
	for i := 0; i < 3; i++ {
		seedWishlist(t, repo, owner)
	}
	seedWishlist(t, repo, other)

	rows, err := repo.ListForUser(ctx, owner.ID, nil, 10)
	require.NoError(t, err)
	assert.Len(t, rows, 3)
	for _, row := range rows {
		assert.Equal(t, owner.ID, row.OwnerID)
		require.NotNil(t, row.Owner)
	}
}
