package repository

import (
	"context"
	"errors"
	"time"

	"github.com/rongwang/groupbets-server/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	// ErrDuplicateKey is returned when a write violates a unique index
	// (user email, group name).
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrStorageUnavailable wraps connection and liveness failures.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// Repository interface defines the methods that any repository implementation must satisfy.
//
// Every method reads or writes exactly one record, atomically. Operations
// that span users, groups and bets are composed by the service layer from
// these primitives without any cross-record transaction.
//
// Lookups return (nil, nil) when the record does not exist.
type Repository interface {
	// User operations
	CreateUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	ListUsers(ctx context.Context, filter models.UserFilter) ([]models.User, error)
	UpdateUser(ctx context.Context, id primitive.ObjectID, patch models.UserPatch) (*models.User, error)
	DeleteUser(ctx context.Context, id primitive.ObjectID) (bool, error)
	AddUserGroup(ctx context.Context, userID, groupID primitive.ObjectID) error
	RemoveUserGroup(ctx context.Context, userID, groupID primitive.ObjectID) error
	RemoveGroupFromUsers(ctx context.Context, groupID primitive.ObjectID) (int64, error)

	// Group operations
	CreateGroup(ctx context.Context, group *models.Group) error
	GetGroup(ctx context.Context, id primitive.ObjectID) (*models.Group, error)
	GetGroupByName(ctx context.Context, name string) (*models.Group, error)
	ListGroups(ctx context.Context, filter models.GroupFilter) ([]models.Group, error)
	UpdateGroup(ctx context.Context, id primitive.ObjectID, patch models.GroupPatch) (*models.Group, error)
	DeleteGroup(ctx context.Context, id primitive.ObjectID) (bool, error)
	AddGroupMember(ctx context.Context, groupID, userID primitive.ObjectID) error
	RemoveGroupMember(ctx context.Context, groupID, userID primitive.ObjectID) error
	RemoveUserFromGroups(ctx context.Context, userID primitive.ObjectID) (int64, error)
	SetCurrentBet(ctx context.Context, groupID, betID primitive.ObjectID) error
	AddPastBet(ctx context.Context, groupID, betID primitive.ObjectID) error
	// ClearCurrentBet unsets current_bet_id only while it still equals betID.
	ClearCurrentBet(ctx context.Context, groupID, betID primitive.ObjectID) error

	// Bet operations
	CreateBet(ctx context.Context, bet *models.Bet) error
	GetBet(ctx context.Context, id primitive.ObjectID) (*models.Bet, error)
	ListBets(ctx context.Context, filter models.BetFilter) ([]models.Bet, error)
	UpdateBet(ctx context.Context, id primitive.ObjectID, patch models.BetPatch) (*models.Bet, error)
	DeleteBet(ctx context.Context, id primitive.ObjectID) (bool, error)
	SetBetStatus(ctx context.Context, id primitive.ObjectID, status models.BetStatus) (*models.Bet, error)
	// UpdateProgress rewrites the entry of userID in place and reports
	// whether such an entry existed.
	UpdateProgress(ctx context.Context, betID, userID primitive.ObjectID, progress float64, at time.Time) (bool, error)
	// AppendProgress adds entry unless the bet is missing or already has an
	// entry for entry.UserID.
	AppendProgress(ctx context.Context, betID primitive.ObjectID, entry models.ProgressEntry) error
	RemoveUserProgress(ctx context.Context, userID primitive.ObjectID) (int64, error)

	// Ping checks storage liveness
	Ping(ctx context.Context) error
	Close() error
}
