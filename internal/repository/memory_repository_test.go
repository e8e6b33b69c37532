package repository

import (
	"context"
	"testing"
	"time"

	"github.com/rongwang/groupbets-server/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestMemoryUniqueEmail(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	a := &models.User{ID: primitive.NewObjectID(), Email: "a@example.com"}
	b := &models.User{ID: primitive.NewObjectID(), Email: "b@example.com"}
	require.NoError(t, repo.CreateUser(ctx, a))
	require.NoError(t, repo.CreateUser(ctx, b))

	dup := &models.User{ID: primitive.NewObjectID(), Email: "a@example.com"}
	assert.ErrorIs(t, repo.CreateUser(ctx, dup), ErrDuplicateKey)

	taken := "a@example.com"
	_, err := repo.UpdateUser(ctx, b.ID, models.UserPatch{Email: &taken})
	assert.ErrorIs(t, err, ErrDuplicateKey)

	// Renaming frees the old address
	fresh := "c@example.com"
	_, err = repo.UpdateUser(ctx, a.ID, models.UserPatch{Email: &fresh})
	require.NoError(t, err)
	found, err := repo.GetUserByEmail(ctx, "a@example.com")
	require.NoError(t, err)
	assert.Nil(t, found)
	require.NoError(t, repo.CreateUser(ctx, dup))
}

func TestMemoryCopiesAreIsolated(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	desc := "original"
	group := &models.Group{ID: primitive.NewObjectID(), Name: "g", Description: &desc}
	require.NoError(t, repo.CreateGroup(ctx, group))
	desc = "changed"

	got, err := repo.GetGroup(ctx, group.ID)
	require.NoError(t, err)
	assert.Equal(t, "original", *got.Description)

	got.UserIDs = append(got.UserIDs, primitive.NewObjectID())
	again, err := repo.GetGroup(ctx, group.ID)
	require.NoError(t, err)
	assert.Empty(t, again.UserIDs)
}

func TestMemoryListPagination(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	var ids []primitive.ObjectID
	for _, name := range []string{"a", "b", "c"} {
		g := &models.Group{ID: primitive.NewObjectID(), Name: name}
		require.NoError(t, repo.CreateGroup(ctx, g))
		ids = append(ids, g.ID)
	}

	groups, err := repo.ListGroups(ctx, models.GroupFilter{Page: models.Page{Limit: 1, Skip: 1}})
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, ids[1], groups[0].ID)

	groups, err = repo.ListGroups(ctx, models.GroupFilter{Page: models.Page{Limit: 50, Skip: 3}})
	require.NoError(t, err)
	assert.NotNil(t, groups)
	assert.Empty(t, groups)

	groups, err = repo.ListGroups(ctx, models.GroupFilter{Name: "c", Page: models.Page{Limit: 50}})
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, ids[2], groups[0].ID)
}

func TestMemorySetOperations(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	group := &models.Group{ID: primitive.NewObjectID(), Name: "g"}
	require.NoError(t, repo.CreateGroup(ctx, group))
	user := primitive.NewObjectID()

	require.NoError(t, repo.AddGroupMember(ctx, group.ID, user))
	require.NoError(t, repo.AddGroupMember(ctx, group.ID, user))
	got, _ := repo.GetGroup(ctx, group.ID)
	assert.Equal(t, []primitive.ObjectID{user}, got.UserIDs)

	n, err := repo.RemoveUserFromGroups(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	n, err = repo.RemoveUserFromGroups(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	// Writes to a missing owner are no-ops
	assert.NoError(t, repo.AddGroupMember(ctx, primitive.NewObjectID(), user))
	assert.NoError(t, repo.AddUserGroup(ctx, primitive.NewObjectID(), group.ID))
}

func TestMemoryClearCurrentBet(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	group := &models.Group{ID: primitive.NewObjectID(), Name: "g"}
	require.NoError(t, repo.CreateGroup(ctx, group))
	current, other := primitive.NewObjectID(), primitive.NewObjectID()

	require.NoError(t, repo.SetCurrentBet(ctx, group.ID, current))
	require.NoError(t, repo.ClearCurrentBet(ctx, group.ID, other))
	got, _ := repo.GetGroup(ctx, group.ID)
	require.NotNil(t, got.CurrentBetID)
	assert.Equal(t, current, *got.CurrentBetID)

	require.NoError(t, repo.ClearCurrentBet(ctx, group.ID, current))
	got, _ = repo.GetGroup(ctx, group.ID)
	assert.Nil(t, got.CurrentBetID)
}

func TestMemoryProgress(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	bet := &models.Bet{ID: primitive.NewObjectID(), GroupID: primitive.NewObjectID(), Status: models.BetPlanned}
	require.NoError(t, repo.CreateBet(ctx, bet))
	user := primitive.NewObjectID()
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	matched, err := repo.UpdateProgress(ctx, bet.ID, user, 0.5, t0)
	require.NoError(t, err)
	assert.False(t, matched)

	entry := models.ProgressEntry{UserID: user, Progress: 0.5, LastUpdated: t0}
	require.NoError(t, repo.AppendProgress(ctx, bet.ID, entry))
	entry.Progress = 0.9
	require.NoError(t, repo.AppendProgress(ctx, bet.ID, entry))

	got, _ := repo.GetBet(ctx, bet.ID)
	require.Len(t, got.UserProgress, 1)
	assert.Equal(t, 0.5, got.UserProgress[0].Progress)

	matched, err = repo.UpdateProgress(ctx, bet.ID, user, 0.7, t0.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, matched)
	got, _ = repo.GetBet(ctx, bet.ID)
	assert.Equal(t, 0.7, got.UserProgress[0].Progress)
	assert.Equal(t, t0.Add(time.Hour), got.UserProgress[0].LastUpdated)

	n, err := repo.RemoveUserProgress(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	got, _ = repo.GetBet(ctx, bet.ID)
	assert.Empty(t, got.UserProgress)

	// Missing bet
	assert.NoError(t, repo.AppendProgress(ctx, primitive.NewObjectID(), entry))
	status, err := repo.SetBetStatus(ctx, primitive.NewObjectID(), models.BetActive)
	require.NoError(t, err)
	assert.Nil(t, status)
}

func TestMemoryPingHonorsContext(t *testing.T) {
	repo := NewMemoryRepository()
	assert.NoError(t, repo.Ping(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, repo.Ping(ctx), context.Canceled)
}
