package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/rongwang/groupbets-server/internal/ident"
	"github.com/rongwang/groupbets-server/internal/models"
	"github.com/rongwang/groupbets-server/internal/repository"
	"golang.org/x/crypto/bcrypt"
)

// CreateUser registers a user. The email pre-check is advisory; the
// storage unique index has the final word and maps to the same error.
func (s *DefaultService) CreateUser(ctx context.Context, req models.CreateUserRequest) (*models.UserResponse, error) {
	groupIDs, err := ident.ParseAll(req.GroupIDs)
	if err != nil {
		return nil, err
	}

	// Check if user already exists
	existingUser, err := s.repo.GetUserByEmail(ctx, req.Email)
	if err != nil {
		return nil, fmt.Errorf("error checking user existence: %w", err)
	}
	if existingUser != nil {
		return nil, ErrDuplicateEmail
	}

	hashedPassword, err := s.hashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		ID:           ident.New(),
		ProfileURL:   req.ProfileURL,
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hashedPassword,
		GroupIDs:     ident.Unique(groupIDs),
	}
	if req.AverageSpending != nil {
		user.AverageSpending = *req.AverageSpending
	}

	if err := s.repo.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateKey) {
			return nil, ErrDuplicateEmail
		}
		return nil, fmt.Errorf("error creating user: %w", err)
	}

	slog.Info("User created", "user_id", user.ID.Hex())
	return toUserResponse(user), nil
}

func (s *DefaultService) GetUser(ctx context.Context, id string) (*models.UserResponse, error) {
	uid, err := ident.Parse(id)
	if err != nil {
		return nil, err
	}

	user, err := s.repo.GetUser(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("error getting user: %w", err)
	}
	if user == nil {
		return nil, ErrNotFound
	}
	return toUserResponse(user), nil
}

func (s *DefaultService) ListUsers(ctx context.Context, q models.ListUsersQuery) ([]models.UserResponse, error) {
	users, err := s.repo.ListUsers(ctx, models.UserFilter{Email: q.Email, Page: pageOf(q.PageQuery)})
	if err != nil {
		return nil, fmt.Errorf("error listing users: %w", err)
	}

	out := make([]models.UserResponse, 0, len(users))
	for i := range users {
		out = append(out, *toUserResponse(&users[i]))
	}
	return out, nil
}

// UpdateUser applies only the fields present in req. group_ids replaces the
// whole set.
func (s *DefaultService) UpdateUser(ctx context.Context, id string, req models.UpdateUserRequest) (*models.UserResponse, error) {
	uid, err := ident.Parse(id)
	if err != nil {
		return nil, err
	}

	patch := models.UserPatch{
		ProfileURL:      req.ProfileURL,
		Username:        req.Username,
		Email:           req.Email,
		AverageSpending: req.AverageSpending,
	}
	if req.GroupIDs != nil {
		groupIDs, err := ident.ParseAll(*req.GroupIDs)
		if err != nil {
			return nil, err
		}
		groupIDs = ident.Unique(groupIDs)
		patch.GroupIDs = &groupIDs
	}
	if req.Password != nil {
		hashedPassword, err := s.hashPassword(*req.Password)
		if err != nil {
			return nil, err
		}
		patch.PasswordHash = &hashedPassword
	}

	user, err := s.repo.UpdateUser(ctx, uid, patch)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateKey) {
			return nil, ErrDuplicateEmail
		}
		return nil, fmt.Errorf("error updating user: %w", err)
	}
	if user == nil {
		return nil, ErrNotFound
	}

	if !patch.Empty() {
		slog.Info("User updated", "user_id", id)
	}
	return toUserResponse(user), nil
}

// DeleteUser removes the user record only. Groups and bets may keep
// referencing the id until DetachUser runs.
func (s *DefaultService) DeleteUser(ctx context.Context, id string) error {
	uid, err := ident.Parse(id)
	if err != nil {
		return err
	}

	found, err := s.repo.DeleteUser(ctx, uid)
	if err != nil {
		return fmt.Errorf("error deleting user: %w", err)
	}
	if !found {
		return ErrNotFound
	}

	slog.Info("User deleted", "user_id", id)
	return nil
}

func (s *DefaultService) DetachUser(ctx context.Context, id string) (*models.DetachUserResponse, error) {
	uid, err := ident.Parse(id)
	if err != nil {
		return nil, err
	}

	groups, err := s.repo.RemoveUserFromGroups(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("error detaching user from groups: %w", err)
	}
	bets, err := s.repo.RemoveUserProgress(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("error detaching user from bets: %w", err)
	}

	slog.Info("User references detached", "user_id", id, "groups_updated", groups, "bets_updated", bets)
	return &models.DetachUserResponse{GroupsUpdated: groups, BetsUpdated: bets}, nil
}

func (s *DefaultService) hashPassword(password string) (string, error) {
	if len(password) > maxPasswordBytes {
		return "", ErrPasswordTooLong
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return "", fmt.Errorf("error hashing password: %w", err)
	}
	return string(hashed), nil
}
