package models

import (
	"bytes"
	"encoding/json"
	"time"
)

// OptionalString distinguishes an absent JSON field from an explicit null
type OptionalString struct {
	Set   bool
	Value *string
}

// UnmarshalJSON is only invoked when the field is present in the payload
func (o *OptionalString) UnmarshalJSON(data []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		o.Value = nil
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	o.Value = &s
	return nil
}

// MarshalJSON writes the value or null
func (o OptionalString) MarshalJSON() ([]byte, error) {
	if o.Value == nil {
		return []byte("null"), nil
	}
	return json.Marshal(*o.Value)
}

// Request models
type CreateUserRequest struct {
	ProfileURL      string   `json:"profile_url" binding:"required"`
	Username        string   `json:"username" binding:"required"`
	Email           string   `json:"email" binding:"required,email"`
	Password        string   `json:"password" binding:"required,max=72"`
	GroupIDs        []string `json:"group_ids"`
	AverageSpending *float64 `json:"average_spending" binding:"required"`
}

type UpdateUserRequest struct {
	ProfileURL      *string   `json:"profile_url,omitempty"`
	Username        *string   `json:"username,omitempty"`
	Email           *string   `json:"email,omitempty" binding:"omitempty,email"`
	Password        *string   `json:"password,omitempty" binding:"omitempty,max=72"`
	GroupIDs        *[]string `json:"group_ids,omitempty"`
	AverageSpending *float64  `json:"average_spending,omitempty"`
}

type CreateGroupRequest struct {
	Name         string     `json:"name" binding:"required"`
	Description  *string    `json:"description"`
	UserIDs      []string   `json:"user_ids"`
	CurrentBetID *string    `json:"current_bet_id"`
	CreatedAt    *time.Time `json:"created_at"`
	IsActive     *bool      `json:"is_active"`
}

type UpdateGroupRequest struct {
	Name         *string        `json:"name,omitempty"`
	Description  OptionalString `json:"description"`
	UserIDs      *[]string      `json:"user_ids,omitempty"`
	CurrentBetID OptionalString `json:"current_bet_id"`
	IsActive     *bool          `json:"is_active,omitempty"`
}

type ProgressEntryRequest struct {
	UserID      string     `json:"user_id"`
	Progress    float64    `json:"progress"`
	LastUpdated *time.Time `json:"last_updated,omitempty"`
}

type CreateBetRequest struct {
	GroupID      string                 `json:"group_id" binding:"required"`
	Title        string                 `json:"title" binding:"required"`
	UserProgress []ProgressEntryRequest `json:"user_progress"`
	StartDate    time.Time              `json:"start_date" binding:"required"`
	EndDate      time.Time              `json:"end_date" binding:"required"`
	Status       BetStatus              `json:"status" binding:"omitempty,oneof=planned active finished cancelled"`
	Meta         map[string]string      `json:"meta"`
}

type UpdateBetRequest struct {
	Title        *string                 `json:"title,omitempty"`
	StartDate    *time.Time              `json:"start_date,omitempty"`
	EndDate      *time.Time              `json:"end_date,omitempty"`
	Status       *BetStatus              `json:"status,omitempty" binding:"omitempty,oneof=planned active finished cancelled"`
	Meta         *map[string]string      `json:"meta,omitempty"`
	UserProgress *[]ProgressEntryRequest `json:"user_progress,omitempty"`
}

// Query models
type PageQuery struct {
	Limit int `form:"limit,default=50" binding:"min=1,max=200"`
	Skip  int `form:"skip,default=0" binding:"min=0"`
}

type ListUsersQuery struct {
	PageQuery
	Email string `form:"email"`
}

type ListGroupsQuery struct {
	PageQuery
	Name string `form:"name"`
}

type ListBetsQuery struct {
	PageQuery
	GroupID string    `form:"group_id"`
	Status  BetStatus `form:"status" binding:"omitempty,oneof=planned active finished cancelled"`
}

type SetProgressQuery struct {
	Progress *float64 `form:"progress" binding:"required"`
}

// Response models
type UserResponse struct {
	ID              string   `json:"id"`
	ProfileURL      string   `json:"profile_url"`
	Username        string   `json:"username"`
	Email           string   `json:"email"`
	GroupIDs        []string `json:"group_ids"`
	AverageSpending float64  `json:"average_spending"`
}

type GroupResponse struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Description  *string   `json:"description"`
	UserIDs      []string  `json:"user_ids"`
	CurrentBetID *string   `json:"current_bet_id"`
	PastBetIDs   []string  `json:"past_bet_ids"`
	CreatedAt    time.Time `json:"created_at"`
	IsActive     bool      `json:"is_active"`
}

type ProgressEntryResponse struct {
	UserID      string    `json:"user_id"`
	Progress    float64   `json:"progress"`
	LastUpdated time.Time `json:"last_updated"`
}

type BetResponse struct {
	ID           string                  `json:"id"`
	GroupID      string                  `json:"group_id"`
	Title        string                  `json:"title"`
	Status       BetStatus               `json:"status"`
	StartDate    time.Time               `json:"start_date"`
	EndDate      time.Time               `json:"end_date"`
	UserProgress []ProgressEntryResponse `json:"user_progress"`
	Meta         map[string]string       `json:"meta"`
}

type DetachUserResponse struct {
	GroupsUpdated int64 `json:"groups_updated"`
	BetsUpdated   int64 `json:"bets_updated"`
}

type DetachGroupResponse struct {
	UsersUpdated int64 `json:"users_updated"`
}

type HealthResponse struct {
	Status string `json:"status"`
}

type ErrorResponse struct {
	Status  string `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}
