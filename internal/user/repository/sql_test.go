package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"splan/backend/internal/db/dbtest"
	"splan/backend/internal/user/domain"
)

func TestSQLRepository_CreateAndGet(t *testing.T) {
	repo := NewSQLRepository(dbtest.Open(t))
	ctx := context.Background()

	u := &domain.User{Username: "mmuster", Firstname: "Max", Lastname: "Muster", Type: domain.TypeTeacher, PasswordHash: "hash", Active: true}
	require.NoError(t, repo.Create(ctx, u))
	require.NotZero(t, u.ID)

	byID, err := repo.GetByID(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, byID)
	assert.Equal(t, "mmuster", byID.Username)
	assert.Equal(t, domain.TypeTeacher, byID.Type)
	assert.True(t, byID.Active)

	byName, err := repo.GetByUsername(ctx, "mmuster")
	require.NoError(t, err)
	require.NotNil(t, byName)
	assert.Equal(t, u.ID, byName.ID)
}

func TestSQLRepository_Missing(t *testing.T) {
	repo := NewSQLRepository(dbtest.Open(t))
	ctx := context.Background()

	u, err := repo.GetByID(ctx, 999)
	require.NoError(t, err)
	assert.Nil(t, u)

	u, err = repo.GetByUsername(ctx, "ghost")
	require.NoError(t, err)
	assert.Nil(t, u)
}

func TestSQLRepository_CreateInvalid(t *testing.T) {
	repo := NewSQLRepository(dbtest.Open(t))
	err := repo.Create(context.Background(), &domain.User{Username: "x"})
	assert.Error(t, err)
}

func TestSQLRepository_CreateDuplicate(t *testing.T) {
	repo := NewSQLRepository(dbtest.Open(t))
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, &domain.User{Username: "dup", PasswordHash: "h"}))
	assert.Error(t, repo.Create(ctx, &domain.User{Username: "dup", PasswordHash: "h"}))
}

func TestSQLRepository_Permissions(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewSQLRepository(db)
	ctx := context.Background()
	id := dbtest.InsertUser(t, db, "admin", "admin")

	perms, err := repo.Permissions(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, perms)

	require.NoError(t, repo.Grant(ctx, id, "users.manage"))
	require.NoError(t, repo.Grant(ctx, id, "announcements.write"))
	require.NoError(t, repo.Grant(ctx, id, "users.manage"))

	perms, err = repo.Permissions(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []string{"announcements.write", "users.manage"}, perms)
}
