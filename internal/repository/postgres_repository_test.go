package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/rongwang/groupbets-server/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func newMockRepository(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresRepository(sqlx.NewDb(db, "postgres")), mock
}

func q(s string) string {
	return regexp.QuoteMeta(s)
}

var (
	userCols     = []string{"id", "profile_url", "username", "email", "password_hash", "average_spending"}
	groupCols    = []string{"id", "name", "description", "current_bet_id", "created_at", "is_active"}
	betCols      = []string{"id", "group_id", "title", "status", "start_date", "end_date", "meta"}
	refCols      = []string{"owner_id", "ref_id"}
	progressCols = []string{"bet_id", "user_id", "progress", "last_updated"}
)

func TestPostgresGetUserNotFound(t *testing.T) {
	repo, mock := newMockRepository(t)
	id := primitive.NewObjectID()

	mock.ExpectQuery(q("FROM users WHERE id = $1")).
		WithArgs(id.Hex()).
		WillReturnRows(sqlmock.NewRows(userCols))

	user, err := repo.GetUser(context.Background(), id)
	require.NoError(t, err)
	assert.Nil(t, user)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetUserHydratesGroups(t *testing.T) {
	repo, mock := newMockRepository(t)
	id := primitive.NewObjectID()
	g1, g2 := primitive.NewObjectID(), primitive.NewObjectID()

	mock.ExpectQuery(q("FROM users WHERE email = $1")).
		WithArgs("a@example.com").
		WillReturnRows(sqlmock.NewRows(userCols).
			AddRow(id.Hex(), "https://example.com/a.png", "alice", "a@example.com", "hash", 12.5))
	mock.ExpectQuery(q("SELECT user_id AS owner_id, group_id AS ref_id FROM user_group_refs WHERE user_id = ANY($1) ORDER BY position")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(refCols).
			AddRow(id.Hex(), g1.Hex()).
			AddRow(id.Hex(), g2.Hex()))

	user, err := repo.GetUserByEmail(context.Background(), "a@example.com")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, id, user.ID)
	assert.Equal(t, "alice", user.Username)
	assert.Equal(t, 12.5, user.AverageSpending)
	assert.Equal(t, []primitive.ObjectID{g1, g2}, user.GroupIDs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCreateUser(t *testing.T) {
	repo, mock := newMockRepository(t)
	user := &models.User{
		ID:       primitive.NewObjectID(),
		Email:    "a@example.com",
		GroupIDs: []primitive.ObjectID{primitive.NewObjectID()},
	}

	mock.ExpectBegin()
	mock.ExpectExec(q("INSERT INTO users")).
		WithArgs(user.ID.Hex(), "", "", "a@example.com", "", 0.0).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q("INSERT INTO user_group_refs (user_id, group_id) VALUES ($1, $2) ON CONFLICT DO NOTHING")).
		WithArgs(user.ID.Hex(), user.GroupIDs[0].Hex()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.CreateUser(context.Background(), user))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCreateUserDuplicateEmail(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectBegin()
	mock.ExpectExec(q("INSERT INTO users")).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "users_email_key"})
	mock.ExpectRollback()

	err := repo.CreateUser(context.Background(), &models.User{ID: primitive.NewObjectID(), Email: "a@example.com"})
	assert.ErrorIs(t, err, ErrDuplicateKey)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpdateUserMissing(t *testing.T) {
	repo, mock := newMockRepository(t)
	id := primitive.NewObjectID()
	name := "bob"

	mock.ExpectBegin()
	mock.ExpectExec(q("UPDATE users SET username = $1 WHERE id = $2")).
		WithArgs("bob", id.Hex()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	user, err := repo.UpdateUser(context.Background(), id, models.UserPatch{Username: &name})
	require.NoError(t, err)
	assert.Nil(t, user)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpdateUserReplacesGroups(t *testing.T) {
	repo, mock := newMockRepository(t)
	id := primitive.NewObjectID()
	group := primitive.NewObjectID()
	groups := []primitive.ObjectID{group}

	mock.ExpectBegin()
	mock.ExpectQuery(q("SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)")).
		WithArgs(id.Hex()).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectExec(q("DELETE FROM user_group_refs WHERE user_id = $1")).
		WithArgs(id.Hex()).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(q("INSERT INTO user_group_refs")).
		WithArgs(id.Hex(), group.Hex()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(q("FROM users WHERE id = $1")).
		WithArgs(id.Hex()).
		WillReturnRows(sqlmock.NewRows(userCols).AddRow(id.Hex(), "", "alice", "a@example.com", "hash", 0.0))
	mock.ExpectQuery(q("FROM user_group_refs")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(refCols).AddRow(id.Hex(), group.Hex()))
	mock.ExpectCommit()

	user, err := repo.UpdateUser(context.Background(), id, models.UserPatch{GroupIDs: &groups})
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, groups, user.GroupIDs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpdateGroupClearsNullableColumns(t *testing.T) {
	repo, mock := newMockRepository(t)
	id := primitive.NewObjectID()
	created := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec(q("UPDATE betting_groups SET description = $1, current_bet_id = $2 WHERE id = $3")).
		WithArgs(nil, nil, id.Hex()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(q("FROM betting_groups WHERE id = $1")).
		WithArgs(id.Hex()).
		WillReturnRows(sqlmock.NewRows(groupCols).AddRow(id.Hex(), "g", nil, nil, created, true))
	mock.ExpectQuery(q("FROM group_member_refs")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(refCols))
	mock.ExpectQuery(q("FROM group_past_bets")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(refCols))
	mock.ExpectCommit()

	group, err := repo.UpdateGroup(context.Background(), id, models.GroupPatch{SetDescription: true, SetCurrentBetID: true})
	require.NoError(t, err)
	require.NotNil(t, group)
	assert.Nil(t, group.Description)
	assert.Nil(t, group.CurrentBetID)
	assert.NotNil(t, group.UserIDs)
	assert.Equal(t, created, group.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresMembershipWrites(t *testing.T) {
	repo, mock := newMockRepository(t)
	group, user := primitive.NewObjectID(), primitive.NewObjectID()

	mock.ExpectExec(`INSERT INTO group_member_refs \(group_id, user_id\)\s+SELECT id, \$2::char\(24\) FROM betting_groups WHERE id = \$1\s+ON CONFLICT DO NOTHING`).
		WithArgs(group.Hex(), user.Hex()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q("DELETE FROM user_group_refs WHERE user_id = $1 AND group_id = $2")).
		WithArgs(user.Hex(), group.Hex()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(q("DELETE FROM group_member_refs WHERE user_id = $1")).
		WithArgs(user.Hex()).
		WillReturnResult(sqlmock.NewResult(0, 4))

	ctx := context.Background()
	require.NoError(t, repo.AddGroupMember(ctx, group, user))
	require.NoError(t, repo.RemoveUserGroup(ctx, user, group))
	n, err := repo.RemoveUserFromGroups(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresClearCurrentBetIsConditional(t *testing.T) {
	repo, mock := newMockRepository(t)
	group, bet := primitive.NewObjectID(), primitive.NewObjectID()

	mock.ExpectExec(q("UPDATE betting_groups SET current_bet_id = NULL WHERE id = $1 AND current_bet_id = $2")).
		WithArgs(group.Hex(), bet.Hex()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.ClearCurrentBet(context.Background(), group, bet))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSetBetStatus(t *testing.T) {
	repo, mock := newMockRepository(t)
	id, group, user := primitive.NewObjectID(), primitive.NewObjectID(), primitive.NewObjectID()
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(48 * time.Hour)

	mock.ExpectBegin()
	mock.ExpectQuery(q("UPDATE bets SET status = $2 WHERE id = $1 RETURNING")).
		WithArgs(id.Hex(), "active").
		WillReturnRows(sqlmock.NewRows(betCols).
			AddRow(id.Hex(), group.Hex(), "steps", "active", start, end, []byte(`{"unit":"km"}`)))
	mock.ExpectQuery(q("FROM bet_progress WHERE bet_id = ANY($1) ORDER BY position")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(progressCols).AddRow(id.Hex(), user.Hex(), 0.5, start))
	mock.ExpectCommit()

	bet, err := repo.SetBetStatus(context.Background(), id, models.BetActive)
	require.NoError(t, err)
	require.NotNil(t, bet)
	assert.Equal(t, models.BetActive, bet.Status)
	assert.Equal(t, group, bet.GroupID)
	assert.Equal(t, map[string]string{"unit": "km"}, bet.Meta)
	require.Len(t, bet.UserProgress, 1)
	assert.Equal(t, user, bet.UserProgress[0].UserID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSetBetStatusMissing(t *testing.T) {
	repo, mock := newMockRepository(t)
	id := primitive.NewObjectID()

	mock.ExpectBegin()
	mock.ExpectQuery(q("UPDATE bets SET status = $2 WHERE id = $1 RETURNING")).
		WithArgs(id.Hex(), "finished").
		WillReturnRows(sqlmock.NewRows(betCols))
	mock.ExpectCommit()

	bet, err := repo.SetBetStatus(context.Background(), id, models.BetFinished)
	require.NoError(t, err)
	assert.Nil(t, bet)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresProgressUpsertPrimitives(t *testing.T) {
	repo, mock := newMockRepository(t)
	bet, user := primitive.NewObjectID(), primitive.NewObjectID()
	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	mock.ExpectExec(q("UPDATE bet_progress SET progress = $3, last_updated = $4 WHERE bet_id = $1 AND user_id = $2")).
		WithArgs(bet.Hex(), user.Hex(), 0.5, at).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(q("INSERT INTO bet_progress (bet_id, user_id, progress, last_updated)")).
		WithArgs(bet.Hex(), user.Hex(), 0.5, at).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ctx := context.Background()
	matched, err := repo.UpdateProgress(ctx, bet, user, 0.5, at)
	require.NoError(t, err)
	assert.False(t, matched)
	require.NoError(t, repo.AppendProgress(ctx, bet, models.ProgressEntry{UserID: user, Progress: 0.5, LastUpdated: at}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresListBetsFilters(t *testing.T) {
	repo, mock := newMockRepository(t)
	group := primitive.NewObjectID()

	mock.ExpectQuery(q("FROM bets WHERE group_id = $1 AND status = $2 ORDER BY id LIMIT $3 OFFSET $4")).
		WithArgs(group.Hex(), "planned", 10, 20).
		WillReturnRows(sqlmock.NewRows(betCols))

	bets, err := repo.ListBets(context.Background(), models.BetFilter{
		GroupID: &group,
		Status:  models.BetPlanned,
		Page:    models.Page{Limit: 10, Skip: 20},
	})
	require.NoError(t, err)
	assert.NotNil(t, bets)
	assert.Empty(t, bets)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresDeleteReportsExistence(t *testing.T) {
	repo, mock := newMockRepository(t)
	id := primitive.NewObjectID()

	mock.ExpectExec(q("DELETE FROM bets WHERE id = $1")).
		WithArgs(id.Hex()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q("DELETE FROM bets WHERE id = $1")).
		WithArgs(id.Hex()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	found, err := repo.DeleteBet(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, found)
	found, err = repo.DeleteBet(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, found)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresPing(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectPing()
	mock.ExpectPing().WillReturnError(errors.New("connection refused"))

	assert.NoError(t, repo.Ping(context.Background()))
	assert.ErrorIs(t, repo.Ping(context.Background()), ErrStorageUnavailable)
	assert.NoError(t, mock.ExpectationsWereMet())
}
