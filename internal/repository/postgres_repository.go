package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/rongwang/groupbets-server/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// uniqueViolation is the SQLSTATE raised when a unique index rejects a write
const uniqueViolation = "23505"

// PostgresRepository implements the Repository interface using PostgreSQL.
//
// A record is a row in users, betting_groups or bets together with the rows
// it owns in the *_refs, group_past_bets and bet_progress tables. Writes to
// one record run in a single transaction; nothing spans two records.
type PostgresRepository struct {
	db *sqlx.DB
}

var _ Repository = (*PostgresRepository)(nil)

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{
		db: db,
	}
}

// GetDB returns the underlying database connection
func (r *PostgresRepository) GetDB() *sqlx.DB {
	return r.db
}

type userRow struct {
	ID              string  `db:"id"`
	ProfileURL      string  `db:"profile_url"`
	Username        string  `db:"username"`
	Email           string  `db:"email"`
	PasswordHash    string  `db:"password_hash"`
	AverageSpending float64 `db:"average_spending"`
}

type groupRow struct {
	ID           string         `db:"id"`
	Name         string         `db:"name"`
	Description  sql.NullString `db:"description"`
	CurrentBetID sql.NullString `db:"current_bet_id"`
	CreatedAt    time.Time      `db:"created_at"`
	IsActive     bool           `db:"is_active"`
}

type betRow struct {
	ID        string    `db:"id"`
	GroupID   string    `db:"group_id"`
	Title     string    `db:"title"`
	Status    string    `db:"status"`
	StartDate time.Time `db:"start_date"`
	EndDate   time.Time `db:"end_date"`
	Meta      []byte    `db:"meta"`
}

type refRow struct {
	OwnerID string `db:"owner_id"`
	RefID   string `db:"ref_id"`
}

type progressRow struct {
	BetID       string    `db:"bet_id"`
	UserID      string    `db:"user_id"`
	Progress    float64   `db:"progress"`
	LastUpdated time.Time `db:"last_updated"`
}

const (
	userColumns  = `id, profile_url, username, email, password_hash, average_spending`
	groupColumns = `id, name, description, current_bet_id, created_at, is_active`
	betColumns   = `id, group_id, title, status, start_date, end_date, meta`
)

// User repository methods
func (r *PostgresRepository) CreateUser(ctx context.Context, user *models.User) error {
	return r.withTx(ctx, func(tx *sqlx.Tx) error {
		query := `
			INSERT INTO users (id, profile_url, username, email, password_hash, average_spending)
			VALUES ($1, $2, $3, $4, $5, $6)
		`
		_, err := tx.ExecContext(ctx, query,
			user.ID.Hex(), user.ProfileURL, user.Username, user.Email, user.PasswordHash, user.AverageSpending)
		if err != nil {
			return translateError(err)
		}
		return insertRefs(ctx, tx, "user_group_refs", "user_id", "group_id", user.ID, user.GroupIDs)
	})
}

func (r *PostgresRepository) GetUser(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	return r.getUser(ctx, r.db, `SELECT `+userColumns+` FROM users WHERE id = $1`, id.Hex())
}

func (r *PostgresRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.getUser(ctx, r.db, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
}

func (r *PostgresRepository) getUser(ctx context.Context, q sqlx.QueryerContext, query string, arg interface{}) (*models.User, error) {
	var row userRow
	err := sqlx.GetContext(ctx, q, &row, query, arg)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // User not found
		}
		return nil, err
	}

	users, err := r.hydrateUsers(ctx, q, []userRow{row})
	if err != nil {
		return nil, err
	}
	return &users[0], nil
}

func (r *PostgresRepository) ListUsers(ctx context.Context, filter models.UserFilter) ([]models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users`
	var args []interface{}
	if filter.Email != "" {
		args = append(args, filter.Email)
		query += ` WHERE email = $1`
	}
	query, args = pageClause(query, args, filter.Page)

	var rows []userRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	return r.hydrateUsers(ctx, r.db, rows)
}

func (r *PostgresRepository) UpdateUser(ctx context.Context, id primitive.ObjectID, patch models.UserPatch) (*models.User, error) {
	var updated *models.User
	err := r.withTx(ctx, func(tx *sqlx.Tx) error {
		var set setClause
		if patch.ProfileURL != nil {
			set.add("profile_url", *patch.ProfileURL)
		}
		if patch.Username != nil {
			set.add("username", *patch.Username)
		}
		if patch.Email != nil {
			set.add("email", *patch.Email)
		}
		if patch.PasswordHash != nil {
			set.add("password_hash", *patch.PasswordHash)
		}
		if patch.AverageSpending != nil {
			set.add("average_spending", *patch.AverageSpending)
		}

		found, err := set.apply(ctx, tx, "users", id)
		if err != nil || !found {
			return err
		}

		if patch.GroupIDs != nil {
			if err := replaceRefs(ctx, tx, "user_group_refs", "user_id", "group_id", id, *patch.GroupIDs); err != nil {
				return err
			}
		}

		updated, err = r.getUser(ctx, tx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id.Hex())
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (r *PostgresRepository) DeleteUser(ctx context.Context, id primitive.ObjectID) (bool, error) {
	return r.deleteRow(ctx, "users", id)
}

func (r *PostgresRepository) AddUserGroup(ctx context.Context, userID, groupID primitive.ObjectID) error {
	return r.addRef(ctx, "user_group_refs", "user_id", "group_id", "users", userID, groupID)
}

func (r *PostgresRepository) RemoveUserGroup(ctx context.Context, userID, groupID primitive.ObjectID) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM user_group_refs WHERE user_id = $1 AND group_id = $2`,
		userID.Hex(), groupID.Hex())
	return err
}

func (r *PostgresRepository) RemoveGroupFromUsers(ctx context.Context, groupID primitive.ObjectID) (int64, error) {
	return r.execCount(ctx, `DELETE FROM user_group_refs WHERE group_id = $1`, groupID.Hex())
}

// Group repository methods
func (r *PostgresRepository) CreateGroup(ctx context.Context, group *models.Group) error {
	return r.withTx(ctx, func(tx *sqlx.Tx) error {
		query := `
			INSERT INTO betting_groups (id, name, description, current_bet_id, created_at, is_active)
			VALUES ($1, $2, $3, $4, $5, $6)
		`
		_, err := tx.ExecContext(ctx, query,
			group.ID.Hex(), group.Name, nullString(group.Description), nullID(group.CurrentBetID),
			group.CreatedAt, group.IsActive)
		if err != nil {
			return translateError(err)
		}
		if err := insertRefs(ctx, tx, "group_member_refs", "group_id", "user_id", group.ID, group.UserIDs); err != nil {
			return err
		}
		return insertRefs(ctx, tx, "group_past_bets", "group_id", "bet_id", group.ID, group.PastBetIDs)
	})
}

func (r *PostgresRepository) GetGroup(ctx context.Context, id primitive.ObjectID) (*models.Group, error) {
	return r.getGroup(ctx, r.db, `SELECT `+groupColumns+` FROM betting_groups WHERE id = $1`, id.Hex())
}

func (r *PostgresRepository) GetGroupByName(ctx context.Context, name string) (*models.Group, error) {
	return r.getGroup(ctx, r.db, `SELECT `+groupColumns+` FROM betting_groups WHERE name = $1`, name)
}

func (r *PostgresRepository) getGroup(ctx context.Context, q sqlx.QueryerContext, query string, arg interface{}) (*models.Group, error) {
	var row groupRow
	err := sqlx.GetContext(ctx, q, &row, query, arg)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Group not found
		}
		return nil, err
	}

	groups, err := r.hydrateGroups(ctx, q, []groupRow{row})
	if err != nil {
		return nil, err
	}
	return &groups[0], nil
}

func (r *PostgresRepository) ListGroups(ctx context.Context, filter models.GroupFilter) ([]models.Group, error) {
	query := `SELECT ` + groupColumns + ` FROM betting_groups`
	var args []interface{}
	if filter.Name != "" {
		args = append(args, filter.Name)
		query += ` WHERE name = $1`
	}
	query, args = pageClause(query, args, filter.Page)

	var rows []groupRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	return r.hydrateGroups(ctx, r.db, rows)
}

func (r *PostgresRepository) UpdateGroup(ctx context.Context, id primitive.ObjectID, patch models.GroupPatch) (*models.Group, error) {
	var updated *models.Group
	err := r.withTx(ctx, func(tx *sqlx.Tx) error {
		var set setClause
		if patch.Name != nil {
			set.add("name", *patch.Name)
		}
		if patch.SetDescription {
			set.add("description", nullString(patch.Description))
		}
		if patch.SetCurrentBetID {
			set.add("current_bet_id", nullID(patch.CurrentBetID))
		}
		if patch.IsActive != nil {
			set.add("is_active", *patch.IsActive)
		}

		found, err := set.apply(ctx, tx, "betting_groups", id)
		if err != nil || !found {
			return err
		}

		if patch.UserIDs != nil {
			if err := replaceRefs(ctx, tx, "group_member_refs", "group_id", "user_id", id, *patch.UserIDs); err != nil {
				return err
			}
		}

		updated, err = r.getGroup(ctx, tx, `SELECT `+groupColumns+` FROM betting_groups WHERE id = $1`, id.Hex())
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (r *PostgresRepository) DeleteGroup(ctx context.Context, id primitive.ObjectID) (bool, error) {
	return r.deleteRow(ctx, "betting_groups", id)
}

func (r *PostgresRepository) AddGroupMember(ctx context.Context, groupID, userID primitive.ObjectID) error {
	return r.addRef(ctx, "group_member_refs", "group_id", "user_id", "betting_groups", groupID, userID)
}

func (r *PostgresRepository) RemoveGroupMember(ctx context.Context, groupID, userID primitive.ObjectID) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM group_member_refs WHERE group_id = $1 AND user_id = $2`,
		groupID.Hex(), userID.Hex())
	return err
}

func (r *PostgresRepository) RemoveUserFromGroups(ctx context.Context, userID primitive.ObjectID) (int64, error) {
	return r.execCount(ctx, `DELETE FROM group_member_refs WHERE user_id = $1`, userID.Hex())
}

func (r *PostgresRepository) SetCurrentBet(ctx context.Context, groupID, betID primitive.ObjectID) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE betting_groups SET current_bet_id = $2 WHERE id = $1`,
		groupID.Hex(), betID.Hex())
	return err
}

func (r *PostgresRepository) AddPastBet(ctx context.Context, groupID, betID primitive.ObjectID) error {
	return r.addRef(ctx, "group_past_bets", "group_id", "bet_id", "betting_groups", groupID, betID)
}

func (r *PostgresRepository) ClearCurrentBet(ctx context.Context, groupID, betID primitive.ObjectID) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE betting_groups SET current_bet_id = NULL WHERE id = $1 AND current_bet_id = $2`,
		groupID.Hex(), betID.Hex())
	return err
}

// Bet repository methods
func (r *PostgresRepository) CreateBet(ctx context.Context, bet *models.Bet) error {
	meta, err := json.Marshal(nonNilMeta(bet.Meta))
	if err != nil {
		return err
	}

	return r.withTx(ctx, func(tx *sqlx.Tx) error {
		query := `
			INSERT INTO bets (id, group_id, title, status, start_date, end_date, meta)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`
		_, err := tx.ExecContext(ctx, query,
			bet.ID.Hex(), bet.GroupID.Hex(), bet.Title, string(bet.Status),
			bet.StartDate, bet.EndDate, string(meta))
		if err != nil {
			return translateError(err)
		}
		return insertProgress(ctx, tx, bet.ID, bet.UserProgress)
	})
}

func (r *PostgresRepository) GetBet(ctx context.Context, id primitive.ObjectID) (*models.Bet, error) {
	return r.getBet(ctx, r.db, `SELECT `+betColumns+` FROM bets WHERE id = $1`, id.Hex())
}

func (r *PostgresRepository) getBet(ctx context.Context, q sqlx.QueryerContext, query string, args ...interface{}) (*models.Bet, error) {
	var row betRow
	err := sqlx.GetContext(ctx, q, &row, query, args...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Bet not found
		}
		return nil, err
	}

	bets, err := r.hydrateBets(ctx, q, []betRow{row})
	if err != nil {
		return nil, err
	}
	return &bets[0], nil
}

func (r *PostgresRepository) ListBets(ctx context.Context, filter models.BetFilter) ([]models.Bet, error) {
	var (
		conditions []string
		args       []interface{}
	)
	if filter.GroupID != nil {
		args = append(args, filter.GroupID.Hex())
		conditions = append(conditions, fmt.Sprintf("group_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}

	query := `SELECT ` + betColumns + ` FROM bets`
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, " AND ")
	}
	query, args = pageClause(query, args, filter.Page)

	var rows []betRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	return r.hydrateBets(ctx, r.db, rows)
}

func (r *PostgresRepository) UpdateBet(ctx context.Context, id primitive.ObjectID, patch models.BetPatch) (*models.Bet, error) {
	var updated *models.Bet
	err := r.withTx(ctx, func(tx *sqlx.Tx) error {
		var set setClause
		if patch.Title != nil {
			set.add("title", *patch.Title)
		}
		if patch.StartDate != nil {
			set.add("start_date", *patch.StartDate)
		}
		if patch.EndDate != nil {
			set.add("end_date", *patch.EndDate)
		}
		if patch.Status != nil {
			set.add("status", string(*patch.Status))
		}
		if patch.Meta != nil {
			meta, err := json.Marshal(nonNilMeta(*patch.Meta))
			if err != nil {
				return err
			}
			set.add("meta", string(meta))
		}

		found, err := set.apply(ctx, tx, "bets", id)
		if err != nil || !found {
			return err
		}

		if patch.UserProgress != nil {
			if _, err := tx.ExecContext(ctx, `DELETE FROM bet_progress WHERE bet_id = $1`, id.Hex()); err != nil {
				return err
			}
			if err := insertProgress(ctx, tx, id, *patch.UserProgress); err != nil {
				return err
			}
		}

		updated, err = r.getBet(ctx, tx, `SELECT `+betColumns+` FROM bets WHERE id = $1`, id.Hex())
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (r *PostgresRepository) DeleteBet(ctx context.Context, id primitive.ObjectID) (bool, error) {
	return r.deleteRow(ctx, "bets", id)
}

func (r *PostgresRepository) SetBetStatus(ctx context.Context, id primitive.ObjectID, status models.BetStatus) (*models.Bet, error) {
	var updated *models.Bet
	err := r.withTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		updated, err = r.getBet(ctx, tx,
			`UPDATE bets SET status = $2 WHERE id = $1 RETURNING `+betColumns,
			id.Hex(), string(status))
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (r *PostgresRepository) UpdateProgress(ctx context.Context, betID, userID primitive.ObjectID, progress float64, at time.Time) (bool, error) {
	n, err := r.execCount(ctx,
		`UPDATE bet_progress SET progress = $3, last_updated = $4 WHERE bet_id = $1 AND user_id = $2`,
		betID.Hex(), userID.Hex(), progress, at)
	return n > 0, err
}

func (r *PostgresRepository) AppendProgress(ctx context.Context, betID primitive.ObjectID, entry models.ProgressEntry) error {
	query := `
		INSERT INTO bet_progress (bet_id, user_id, progress, last_updated)
		SELECT id, $2::char(24), $3::double precision, $4::timestamptz FROM bets WHERE id = $1
		ON CONFLICT DO NOTHING
	`
	_, err := r.db.ExecContext(ctx, query, betID.Hex(), entry.UserID.Hex(), entry.Progress, entry.LastUpdated)
	return err
}

func (r *PostgresRepository) RemoveUserProgress(ctx context.Context, userID primitive.ObjectID) (int64, error) {
	return r.execCount(ctx, `DELETE FROM bet_progress WHERE user_id = $1`, userID.Hex())
}

func (r *PostgresRepository) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}

func (r *PostgresRepository) Close() error {
	return r.db.Close()
}

// Helper methods

func (r *PostgresRepository) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if err != nil {
			tx.Rollback()
			return
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *PostgresRepository) execCount(ctx context.Context, query string, args ...interface{}) (int64, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *PostgresRepository) deleteRow(ctx context.Context, table string, id primitive.ObjectID) (bool, error) {
	n, err := r.execCount(ctx, `DELETE FROM `+table+` WHERE id = $1`, id.Hex())
	return n > 0, err
}

// addRef inserts (owner, ref) into a set table when the owner row exists
func (r *PostgresRepository) addRef(ctx context.Context, table, ownerCol, refCol, ownerTable string, owner, ref primitive.ObjectID) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (%s, %s)
		SELECT id, $2::char(24) FROM %s WHERE id = $1
		ON CONFLICT DO NOTHING
	`, table, ownerCol, refCol, ownerTable)
	_, err := r.db.ExecContext(ctx, query, owner.Hex(), ref.Hex())
	return err
}

func (r *PostgresRepository) loadRefs(ctx context.Context, q sqlx.QueryerContext, table, ownerCol, refCol string, owners []string) (map[string][]primitive.ObjectID, error) {
	query := fmt.Sprintf(
		`SELECT %s AS owner_id, %s AS ref_id FROM %s WHERE %s = ANY($1) ORDER BY position`,
		ownerCol, refCol, table, ownerCol)

	var rows []refRow
	if err := sqlx.SelectContext(ctx, q, &rows, query, pq.Array(owners)); err != nil {
		return nil, err
	}

	refs := make(map[string][]primitive.ObjectID, len(owners))
	for _, row := range rows {
		id, err := parseKey(row.RefID)
		if err != nil {
			return nil, err
		}
		refs[row.OwnerID] = append(refs[row.OwnerID], id)
	}
	return refs, nil
}

func (r *PostgresRepository) hydrateUsers(ctx context.Context, q sqlx.QueryerContext, rows []userRow) ([]models.User, error) {
	users := make([]models.User, 0, len(rows))
	if len(rows) == 0 {
		return users, nil
	}

	ids := make([]string, len(rows))
	for i, row := range rows {
		ids[i] = row.ID
	}
	groupRefs, err := r.loadRefs(ctx, q, "user_group_refs", "user_id", "group_id", ids)
	if err != nil {
		return nil, err
	}

	for _, row := range rows {
		id, err := parseKey(row.ID)
		if err != nil {
			return nil, err
		}
		users = append(users, models.User{
			ID:              id,
			ProfileURL:      row.ProfileURL,
			Username:        row.Username,
			Email:           row.Email,
			PasswordHash:    row.PasswordHash,
			GroupIDs:        nonNilIDs(groupRefs[row.ID]),
			AverageSpending: row.AverageSpending,
		})
	}
	return users, nil
}

func (r *PostgresRepository) hydrateGroups(ctx context.Context, q sqlx.QueryerContext, rows []groupRow) ([]models.Group, error) {
	groups := make([]models.Group, 0, len(rows))
	if len(rows) == 0 {
		return groups, nil
	}

	ids := make([]string, len(rows))
	for i, row := range rows {
		ids[i] = row.ID
	}
	members, err := r.loadRefs(ctx, q, "group_member_refs", "group_id", "user_id", ids)
	if err != nil {
		return nil, err
	}
	pastBets, err := r.loadRefs(ctx, q, "group_past_bets", "group_id", "bet_id", ids)
	if err != nil {
		return nil, err
	}

	for _, row := range rows {
		id, err := parseKey(row.ID)
		if err != nil {
			return nil, err
		}
		group := models.Group{
			ID:         id,
			Name:       row.Name,
			UserIDs:    nonNilIDs(members[row.ID]),
			PastBetIDs: nonNilIDs(pastBets[row.ID]),
			CreatedAt:  row.CreatedAt.UTC(),
			IsActive:   row.IsActive,
		}
		if row.Description.Valid {
			desc := row.Description.String
			group.Description = &desc
		}
		if row.CurrentBetID.Valid {
			current, err := parseKey(row.CurrentBetID.String)
			if err != nil {
				return nil, err
			}
			group.CurrentBetID = &current
		}
		groups = append(groups, group)
	}
	return groups, nil
}

func (r *PostgresRepository) hydrateBets(ctx context.Context, q sqlx.QueryerContext, rows []betRow) ([]models.Bet, error) {
	bets := make([]models.Bet, 0, len(rows))
	if len(rows) == 0 {
		return bets, nil
	}

	ids := make([]string, len(rows))
	for i, row := range rows {
		ids[i] = row.ID
	}
	var progressRows []progressRow
	err := sqlx.SelectContext(ctx, q, &progressRows,
		`SELECT bet_id, user_id, progress, last_updated FROM bet_progress WHERE bet_id = ANY($1) ORDER BY position`,
		pq.Array(ids))
	if err != nil {
		return nil, err
	}
	progress := make(map[string][]models.ProgressEntry, len(rows))
	for _, p := range progressRows {
		userID, err := parseKey(p.UserID)
		if err != nil {
			return nil, err
		}
		progress[p.BetID] = append(progress[p.BetID], models.ProgressEntry{
			UserID:      userID,
			Progress:    p.Progress,
			LastUpdated: p.LastUpdated.UTC(),
		})
	}

	for _, row := range rows {
		id, err := parseKey(row.ID)
		if err != nil {
			return nil, err
		}
		groupID, err := parseKey(row.GroupID)
		if err != nil {
			return nil, err
		}
		meta := map[string]string{}
		if len(row.Meta) > 0 {
			if err := json.Unmarshal(row.Meta, &meta); err != nil {
				return nil, fmt.Errorf("error decoding bet meta: %w", err)
			}
		}
		entries := progress[row.ID]
		if entries == nil {
			entries = []models.ProgressEntry{}
		}
		bets = append(bets, models.Bet{
			ID:           id,
			GroupID:      groupID,
			Title:        row.Title,
			Status:       models.BetStatus(row.Status),
			StartDate:    row.StartDate.UTC(),
			EndDate:      row.EndDate.UTC(),
			UserProgress: entries,
			Meta:         meta,
		})
	}
	return bets, nil
}

func insertRefs(ctx context.Context, tx *sqlx.Tx, table, ownerCol, refCol string, owner primitive.ObjectID, refs []primitive.ObjectID) error {
	query := fmt.Sprintf(`INSERT INTO %s (%s, %s) VALUES ($1, $2) ON CONFLICT DO NOTHING`, table, ownerCol, refCol)
	for _, ref := range refs {
		if _, err := tx.ExecContext(ctx, query, owner.Hex(), ref.Hex()); err != nil {
			return err
		}
	}
	return nil
}

func replaceRefs(ctx context.Context, tx *sqlx.Tx, table, ownerCol, refCol string, owner primitive.ObjectID, refs []primitive.ObjectID) error {
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE %s = $1`, table, ownerCol), owner.Hex()); err != nil {
		return err
	}
	return insertRefs(ctx, tx, table, ownerCol, refCol, owner, refs)
}

func insertProgress(ctx context.Context, tx *sqlx.Tx, betID primitive.ObjectID, entries []models.ProgressEntry) error {
	query := `
		INSERT INTO bet_progress (bet_id, user_id, progress, last_updated)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT DO NOTHING
	`
	for _, e := range entries {
		if _, err := tx.ExecContext(ctx, query, betID.Hex(), e.UserID.Hex(), e.Progress, e.LastUpdated); err != nil {
			return err
		}
	}
	return nil
}

// setClause accumulates "column = $n" assignments for a partial update
type setClause struct {
	columns []string
	args    []interface{}
}

func (s *setClause) add(column string, value interface{}) {
	s.args = append(s.args, value)
	s.columns = append(s.columns, fmt.Sprintf("%s = $%d", column, len(s.args)))
}

// apply runs the update, or only checks existence when nothing is set
func (s *setClause) apply(ctx context.Context, tx *sqlx.Tx, table string, id primitive.ObjectID) (bool, error) {
	if len(s.columns) == 0 {
		var exists bool
		err := tx.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM `+table+` WHERE id = $1)`, id.Hex()).Scan(&exists)
		return exists, err
	}

	args := append(s.args, id.Hex())
	query := fmt.Sprintf(`UPDATE %s SET %s WHERE id = $%d`, table, strings.Join(s.columns, ", "), len(args))
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return false, translateError(err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func pageClause(query string, args []interface{}, page models.Page) (string, []interface{}) {
	query += ` ORDER BY id`
	if page.Limit > 0 {
		args = append(args, page.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}
	if page.Skip > 0 {
		args = append(args, page.Skip)
		query += fmt.Sprintf(` OFFSET $%d`, len(args))
	}
	return query, args
}

func translateError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", ErrDuplicateKey, pqErr.Constraint)
	}
	return err
}

func parseKey(s string) (primitive.ObjectID, error) {
	id, err := primitive.ObjectIDFromHex(strings.TrimSpace(s))
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("error decoding stored key %q: %w", s, err)
	}
	return id, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullID(id *primitive.ObjectID) sql.NullString {
	if id == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: id.Hex(), Valid: true}
}

func nonNilIDs(ids []primitive.ObjectID) []primitive.ObjectID {
	if ids == nil {
		return []primitive.ObjectID{}
	}
	return ids
}

func nonNilMeta(meta map[string]string) map[string]string {
	if meta == nil {
		return map[string]string{}
	}
	return meta
}
