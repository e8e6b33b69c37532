package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/rongwang/groupbets-server/internal/ident"
	"github.com/rongwang/groupbets-server/internal/metrics"
	"github.com/rongwang/groupbets-server/internal/models"
	"github.com/rongwang/groupbets-server/internal/repository"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// CreateGroup stores a new group. user_ids given here are stored as-is;
// the listed users are not updated.
func (s *DefaultService) CreateGroup(ctx context.Context, req models.CreateGroupRequest) (*models.GroupResponse, error) {
	userIDs, err := ident.ParseAll(req.UserIDs)
	if err != nil {
		return nil, err
	}
	currentBetID, err := ident.ParseOptional(req.CurrentBetID)
	if err != nil {
		return nil, err
	}

	existing, err := s.repo.GetGroupByName(ctx, req.Name)
	if err != nil {
		return nil, fmt.Errorf("error checking group existence: %w", err)
	}
	if existing != nil {
		return nil, ErrDuplicateName
	}

	group := &models.Group{
		ID:           ident.New(),
		Name:         req.Name,
		Description:  req.Description,
		UserIDs:      ident.Unique(userIDs),
		CurrentBetID: currentBetID,
		PastBetIDs:   []primitive.ObjectID{},
		CreatedAt:    s.now(),
		IsActive:     true,
	}
	if req.CreatedAt != nil {
		group.CreatedAt = req.CreatedAt.UTC()
	}
	if req.IsActive != nil {
		group.IsActive = *req.IsActive
	}

	if err := s.repo.CreateGroup(ctx, group); err != nil {
		if errors.Is(err, repository.ErrDuplicateKey) {
			return nil, ErrDuplicateName
		}
		return nil, fmt.Errorf("error creating group: %w", err)
	}

	slog.Info("Group created", "group_id", group.ID.Hex(), "name", group.Name)
	return toGroupResponse(group), nil
}

func (s *DefaultService) GetGroup(ctx context.Context, id string) (*models.GroupResponse, error) {
	gid, err := ident.Parse(id)
	if err != nil {
		return nil, err
	}
	return s.readGroup(ctx, gid)
}

func (s *DefaultService) ListGroups(ctx context.Context, q models.ListGroupsQuery) ([]models.GroupResponse, error) {
	groups, err := s.repo.ListGroups(ctx, models.GroupFilter{Name: q.Name, Page: pageOf(q.PageQuery)})
	if err != nil {
		return nil, fmt.Errorf("error listing groups: %w", err)
	}

	out := make([]models.GroupResponse, 0, len(groups))
	for i := range groups {
		out = append(out, *toGroupResponse(&groups[i]))
	}
	return out, nil
}

// UpdateGroup applies the fields present in req. An explicit null clears
// description or current_bet_id.
func (s *DefaultService) UpdateGroup(ctx context.Context, id string, req models.UpdateGroupRequest) (*models.GroupResponse, error) {
	gid, err := ident.Parse(id)
	if err != nil {
		return nil, err
	}

	patch := models.GroupPatch{
		Name:           req.Name,
		SetDescription: req.Description.Set,
		Description:    req.Description.Value,
		IsActive:       req.IsActive,
	}
	if req.UserIDs != nil {
		userIDs, err := ident.ParseAll(*req.UserIDs)
		if err != nil {
			return nil, err
		}
		userIDs = ident.Unique(userIDs)
		patch.UserIDs = &userIDs
	}
	if req.CurrentBetID.Set {
		currentBetID, err := ident.ParseOptional(req.CurrentBetID.Value)
		if err != nil {
			return nil, err
		}
		patch.SetCurrentBetID = true
		patch.CurrentBetID = currentBetID
	}

	group, err := s.repo.UpdateGroup(ctx, gid, patch)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateKey) {
			return nil, ErrDuplicateName
		}
		return nil, fmt.Errorf("error updating group: %w", err)
	}
	if group == nil {
		return nil, ErrNotFound
	}

	if !patch.Empty() {
		slog.Info("Group updated", "group_id", id)
	}
	return toGroupResponse(group), nil
}

// DeleteGroup removes the group record only; members keep the group id
// until DetachGroup runs.
func (s *DefaultService) DeleteGroup(ctx context.Context, id string) error {
	gid, err := ident.Parse(id)
	if err != nil {
		return err
	}

	found, err := s.repo.DeleteGroup(ctx, gid)
	if err != nil {
		return fmt.Errorf("error deleting group: %w", err)
	}
	if !found {
		return ErrNotFound
	}

	slog.Info("Group deleted", "group_id", id)
	return nil
}

// JoinGroup adds the user to the group and the group to the user. The two
// writes are independent: a failure after the first leaves them diverged.
func (s *DefaultService) JoinGroup(ctx context.Context, groupID, userID string) (*models.GroupResponse, error) {
	gid, uid, err := parseMembership(groupID, userID)
	if err != nil {
		return nil, err
	}

	if err := s.repo.AddGroupMember(ctx, gid, uid); err != nil {
		return nil, fmt.Errorf("error adding group member: %w", err)
	}
	if err := s.repo.AddUserGroup(ctx, uid, gid); err != nil {
		slog.Error("Membership diverged", "group_id", groupID, "user_id", userID, "error", err)
		return nil, fmt.Errorf("error adding user group: %w", err)
	}
	metrics.RecordMembershipChange("join")

	return s.readGroup(ctx, gid)
}

// LeaveGroup is the symmetric removal of JoinGroup
func (s *DefaultService) LeaveGroup(ctx context.Context, groupID, userID string) (*models.GroupResponse, error) {
	gid, uid, err := parseMembership(groupID, userID)
	if err != nil {
		return nil, err
	}

	if err := s.repo.RemoveGroupMember(ctx, gid, uid); err != nil {
		return nil, fmt.Errorf("error removing group member: %w", err)
	}
	if err := s.repo.RemoveUserGroup(ctx, uid, gid); err != nil {
		slog.Error("Membership diverged", "group_id", groupID, "user_id", userID, "error", err)
		return nil, fmt.Errorf("error removing user group: %w", err)
	}
	metrics.RecordMembershipChange("leave")

	return s.readGroup(ctx, gid)
}

func (s *DefaultService) DetachGroup(ctx context.Context, id string) (*models.DetachGroupResponse, error) {
	gid, err := ident.Parse(id)
	if err != nil {
		return nil, err
	}

	users, err := s.repo.RemoveGroupFromUsers(ctx, gid)
	if err != nil {
		return nil, fmt.Errorf("error detaching group from users: %w", err)
	}

	slog.Info("Group references detached", "group_id", id, "users_updated", users)
	return &models.DetachGroupResponse{UsersUpdated: users}, nil
}

func (s *DefaultService) readGroup(ctx context.Context, gid primitive.ObjectID) (*models.GroupResponse, error) {
	group, err := s.repo.GetGroup(ctx, gid)
	if err != nil {
		return nil, fmt.Errorf("error getting group: %w", err)
	}
	if group == nil {
		return nil, ErrNotFound
	}
	return toGroupResponse(group), nil
}

func parseMembership(groupID, userID string) (primitive.ObjectID, primitive.ObjectID, error) {
	gid, err := ident.Parse(groupID)
	if err != nil {
		return primitive.NilObjectID, primitive.NilObjectID, err
	}
	uid, err := ident.Parse(userID)
	if err != nil {
		return primitive.NilObjectID, primitive.NilObjectID, err
	}
	return gid, uid, nil
}
