package users

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/angelmondragon/sharedwishlist/pkg/db"
	"github.com/angelmondragon/sharedwishlist/pkg/db/models"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{NowFunc: db.NowUTC})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, conn.AutoMigrate(&models.User{}))
	return NewRepository(conn)
}

func TestRepositoryCreateAndFind(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	created, err := repo.Create(ctx, CreateUserDTO{Username: "ana", Email: "ana@example.com", PasswordHash: "hash"})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)

	byEmail, err := repo.FindByEmail(ctx, "  ANA@example.com ")
	require.NoError(t, err)
	require.Equal(t, created.ID, byEmail.ID)

	byID, err := repo.FindByID(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, "ana", byID.Username)

	_, err = repo.FindByEmail(ctx, "nobody@example.com")
	require.True(t, errors.Is(err, gorm.ErrRecordNotFound))
}

func TestRepositoryUpdateLastLogin(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	created, err := repo.Create(ctx, CreateUserDTO{Username: "ben", Email: "ben@example.com", PasswordHash: "hash"})
	require.NoError(t, err)

	at := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, repo.UpdateLastLogin(ctx, created.ID, at))

	got, err := repo.FindByID(ctx, created.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastLoginAt)
	require.True(t, got.LastLoginAt.Equal(at))
}

func TestFromModelOmitsPassword(t *testing.T) {
	dto := FromModel(&models.User{Username: "c", Email: "c@example.com", PasswordHash: "secret"})
	require.Equal(t, "c", dto.Username)
	require.Nil(t, FromModel(nil))
}
