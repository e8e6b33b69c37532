package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// BetStatus is the lifecycle state of a bet
type BetStatus string

const (
	BetPlanned   BetStatus = "planned"
	BetActive    BetStatus = "active"
	BetFinished  BetStatus = "finished"
	BetCancelled BetStatus = "cancelled"
)

// Valid reports whether s is one of the known statuses
func (s BetStatus) Valid() bool {
	switch s {
	case BetPlanned, BetActive, BetFinished, BetCancelled:
		return true
	}
	return false
}

// User represents a stored user record
type User struct {
	ID              primitive.ObjectID   `bson:"_id"`
	ProfileURL      string               `bson:"profile_url"`
	Username        string               `bson:"username"`
	Email           string               `bson:"email"`
	PasswordHash    string               `bson:"password_hash"` // never leaves the service layer
	GroupIDs        []primitive.ObjectID `bson:"group_ids"`
	AverageSpending float64              `bson:"average_spending"`
}

// Group represents a stored group record
type Group struct {
	ID           primitive.ObjectID   `bson:"_id"`
	Name         string               `bson:"name"`
	Description  *string              `bson:"description"`
	UserIDs      []primitive.ObjectID `bson:"user_ids"`
	CurrentBetID *primitive.ObjectID  `bson:"current_bet_id,omitempty"`
	PastBetIDs   []primitive.ObjectID `bson:"past_bet_ids"`
	CreatedAt    time.Time            `bson:"created_at"`
	IsActive     bool                 `bson:"is_active"`
}

// ProgressEntry is one user's progress within a bet
type ProgressEntry struct {
	UserID      primitive.ObjectID `bson:"user_id"`
	Progress    float64            `bson:"progress"`
	LastUpdated time.Time          `bson:"last_updated"`
}

// Bet represents a stored bet record. GroupID never changes after creation.
type Bet struct {
	ID           primitive.ObjectID `bson:"_id"`
	GroupID      primitive.ObjectID `bson:"group_id"`
	Title        string             `bson:"title"`
	Status       BetStatus          `bson:"status"`
	StartDate    time.Time          `bson:"start_date"`
	EndDate      time.Time          `bson:"end_date"`
	UserProgress []ProgressEntry    `bson:"user_progress"`
	Meta         map[string]string  `bson:"meta"`
}

// UserPatch lists the user fields to overwrite; nil means untouched
type UserPatch struct {
	ProfileURL      *string
	Username        *string
	Email           *string
	PasswordHash    *string
	GroupIDs        *[]primitive.ObjectID
	AverageSpending *float64
}

// Empty reports whether the patch changes nothing
func (p UserPatch) Empty() bool {
	return p.ProfileURL == nil && p.Username == nil && p.Email == nil &&
		p.PasswordHash == nil && p.GroupIDs == nil && p.AverageSpending == nil
}

// GroupPatch lists the group fields to overwrite. Description and
// CurrentBetID are tri-state: SetX false leaves the field alone, SetX true
// with a nil value clears it.
type GroupPatch struct {
	Name            *string
	SetDescription  bool
	Description     *string
	UserIDs         *[]primitive.ObjectID
	SetCurrentBetID bool
	CurrentBetID    *primitive.ObjectID
	IsActive        *bool
}

// Empty reports whether the patch changes nothing
func (p GroupPatch) Empty() bool {
	return p.Name == nil && !p.SetDescription && p.UserIDs == nil &&
		!p.SetCurrentBetID && p.IsActive == nil
}

// BetPatch lists the bet fields to overwrite
type BetPatch struct {
	Title        *string
	StartDate    *time.Time
	EndDate      *time.Time
	Status       *BetStatus
	Meta         *map[string]string
	UserProgress *[]ProgressEntry
}

// Empty reports whether the patch changes nothing
func (p BetPatch) Empty() bool {
	return p.Title == nil && p.StartDate == nil && p.EndDate == nil &&
		p.Status == nil && p.Meta == nil && p.UserProgress == nil
}

// Page is an offset/limit window over a listing ordered by id
type Page struct {
	Limit int
	Skip  int
}

// UserFilter selects users for listing
type UserFilter struct {
	Email string
	Page
}

// GroupFilter selects groups for listing
type GroupFilter struct {
	Name string
	Page
}

// BetFilter selects bets for listing
type BetFilter struct {
	GroupID *primitive.ObjectID
	Status  BetStatus
	Page
}
