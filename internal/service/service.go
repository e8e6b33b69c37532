package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rongwang/groupbets-server/internal/models"
	"github.com/rongwang/groupbets-server/internal/repository"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrDuplicateEmail = errors.New("email already exists")
	ErrDuplicateName  = errors.New("group name already exists")
	// ErrPasswordTooLong rejects passwords bcrypt cannot hash. The limit is
	// in bytes, so multibyte passwords hit it with fewer characters.
	ErrPasswordTooLong = fmt.Errorf("password exceeds %d bytes", maxPasswordBytes)
)

const maxPasswordBytes = 72

// Service defines all the business logic operations
type Service interface {
	UserManager
	GroupManager
	BetManager

	// Health checks that storage is reachable
	Health(ctx context.Context) error
}

// UserManager owns user records and their unique email
type UserManager interface {
	CreateUser(ctx context.Context, req models.CreateUserRequest) (*models.UserResponse, error)
	GetUser(ctx context.Context, id string) (*models.UserResponse, error)
	ListUsers(ctx context.Context, q models.ListUsersQuery) ([]models.UserResponse, error)
	UpdateUser(ctx context.Context, id string, req models.UpdateUserRequest) (*models.UserResponse, error)
	DeleteUser(ctx context.Context, id string) error
	// DetachUser removes dangling references to a user from groups and bets
	DetachUser(ctx context.Context, id string) (*models.DetachUserResponse, error)
}

// GroupManager owns group records and both sides of group membership
type GroupManager interface {
	CreateGroup(ctx context.Context, req models.CreateGroupRequest) (*models.GroupResponse, error)
	GetGroup(ctx context.Context, id string) (*models.GroupResponse, error)
	ListGroups(ctx context.Context, q models.ListGroupsQuery) ([]models.GroupResponse, error)
	UpdateGroup(ctx context.Context, id string, req models.UpdateGroupRequest) (*models.GroupResponse, error)
	DeleteGroup(ctx context.Context, id string) error
	JoinGroup(ctx context.Context, groupID, userID string) (*models.GroupResponse, error)
	LeaveGroup(ctx context.Context, groupID, userID string) (*models.GroupResponse, error)
	// DetachGroup removes dangling references to a group from users
	DetachGroup(ctx context.Context, id string) (*models.DetachGroupResponse, error)
}

// BetManager owns bet records, their progress entries and lifecycle
type BetManager interface {
	CreateBet(ctx context.Context, req models.CreateBetRequest) (*models.BetResponse, error)
	GetBet(ctx context.Context, id string) (*models.BetResponse, error)
	ListBets(ctx context.Context, q models.ListBetsQuery) ([]models.BetResponse, error)
	UpdateBet(ctx context.Context, id string, req models.UpdateBetRequest) (*models.BetResponse, error)
	DeleteBet(ctx context.Context, id string) error
	ActivateBet(ctx context.Context, id string) (*models.BetResponse, error)
	FinishBet(ctx context.Context, id string) (*models.BetResponse, error)
	SetProgress(ctx context.Context, betID, userID string, progress float64) (*models.BetResponse, error)
}

// DefaultService implements the Service interface
type DefaultService struct {
	repo       repository.Repository
	bcryptCost int
	now        func() time.Time
}

// NewDefaultService creates a new DefaultService. A bcryptCost outside the
// range bcrypt accepts falls back to bcrypt.DefaultCost.
func NewDefaultService(repo repository.Repository, bcryptCost int) *DefaultService {
	if bcryptCost < bcrypt.MinCost || bcryptCost > bcrypt.MaxCost {
		bcryptCost = bcrypt.DefaultCost
	}
	return &DefaultService{
		repo:       repo,
		bcryptCost: bcryptCost,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *DefaultService) Health(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

func pageOf(q models.PageQuery) models.Page {
	return models.Page{Limit: q.Limit, Skip: q.Skip}
}
