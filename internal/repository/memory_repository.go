package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rongwang/groupbets-server/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MemoryRepository implements the Repository interface in process memory.
// It is safe for concurrent use and is intended for tests and local
// development. Unique email and name indexes are maintained like the
// persistent backends do.
type MemoryRepository struct {
	mu     sync.RWMutex
	users  map[primitive.ObjectID]*models.User
	groups map[primitive.ObjectID]*models.Group
	bets   map[primitive.ObjectID]*models.Bet
	emails map[string]primitive.ObjectID
	names  map[string]primitive.ObjectID
}

var _ Repository = (*MemoryRepository)(nil)

// NewMemoryRepository creates an empty repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		users:  make(map[primitive.ObjectID]*models.User),
		groups: make(map[primitive.ObjectID]*models.Group),
		bets:   make(map[primitive.ObjectID]*models.Bet),
		emails: make(map[string]primitive.ObjectID),
		names:  make(map[string]primitive.ObjectID),
	}
}

// User repository methods
func (r *MemoryRepository) CreateUser(ctx context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.emails[user.Email]; taken {
		return ErrDuplicateKey
	}
	stored := copyUser(user)
	r.users[user.ID] = stored
	r.emails[user.Email] = user.ID
	return nil
}

func (r *MemoryRepository) GetUser(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if u, ok := r.users[id]; ok {
		return copyUser(u), nil
	}
	return nil, nil
}

func (r *MemoryRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if id, ok := r.emails[email]; ok {
		return copyUser(r.users[id]), nil
	}
	return nil, nil
}

func (r *MemoryRepository) ListUsers(ctx context.Context, filter models.UserFilter) ([]models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []models.User
	for _, id := range sortedKeys(r.users) {
		u := r.users[id]
		if filter.Email != "" && u.Email != filter.Email {
			continue
		}
		out = append(out, *copyUser(u))
	}
	return paginate(out, filter.Page), nil
}

func (r *MemoryRepository) UpdateUser(ctx context.Context, id primitive.ObjectID, patch models.UserPatch) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return nil, nil
	}
	if patch.Email != nil && *patch.Email != u.Email {
		if _, taken := r.emails[*patch.Email]; taken {
			return nil, ErrDuplicateKey
		}
		delete(r.emails, u.Email)
		r.emails[*patch.Email] = id
		u.Email = *patch.Email
	}
	if patch.ProfileURL != nil {
		u.ProfileURL = *patch.ProfileURL
	}
	if patch.Username != nil {
		u.Username = *patch.Username
	}
	if patch.PasswordHash != nil {
		u.PasswordHash = *patch.PasswordHash
	}
	if patch.GroupIDs != nil {
		u.GroupIDs = copyIDs(*patch.GroupIDs)
	}
	if patch.AverageSpending != nil {
		u.AverageSpending = *patch.AverageSpending
	}
	return copyUser(u), nil
}

func (r *MemoryRepository) DeleteUser(ctx context.Context, id primitive.ObjectID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return false, nil
	}
	delete(r.emails, u.Email)
	delete(r.users, id)
	return true, nil
}

func (r *MemoryRepository) AddUserGroup(ctx context.Context, userID, groupID primitive.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if u, ok := r.users[userID]; ok {
		u.GroupIDs = addToSet(u.GroupIDs, groupID)
	}
	return nil
}

func (r *MemoryRepository) RemoveUserGroup(ctx context.Context, userID, groupID primitive.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if u, ok := r.users[userID]; ok {
		u.GroupIDs, _ = pull(u.GroupIDs, groupID)
	}
	return nil
}

func (r *MemoryRepository) RemoveGroupFromUsers(ctx context.Context, groupID primitive.ObjectID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for _, u := range r.users {
		var removed bool
		if u.GroupIDs, removed = pull(u.GroupIDs, groupID); removed {
			n++
		}
	}
	return n, nil
}

// Group repository methods
func (r *MemoryRepository) CreateGroup(ctx context.Context, group *models.Group) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.names[group.Name]; taken {
		return ErrDuplicateKey
	}
	r.groups[group.ID] = copyGroup(group)
	r.names[group.Name] = group.ID
	return nil
}

func (r *MemoryRepository) GetGroup(ctx context.Context, id primitive.ObjectID) (*models.Group, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if g, ok := r.groups[id]; ok {
		return copyGroup(g), nil
	}
	return nil, nil
}

func (r *MemoryRepository) GetGroupByName(ctx context.Context, name string) (*models.Group, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if id, ok := r.names[name]; ok {
		return copyGroup(r.groups[id]), nil
	}
	return nil, nil
}

func (r *MemoryRepository) ListGroups(ctx context.Context, filter models.GroupFilter) ([]models.Group, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []models.Group
	for _, id := range sortedKeys(r.groups) {
		g := r.groups[id]
		if filter.Name != "" && g.Name != filter.Name {
			continue
		}
		out = append(out, *copyGroup(g))
	}
	return paginate(out, filter.Page), nil
}

func (r *MemoryRepository) UpdateGroup(ctx context.Context, id primitive.ObjectID, patch models.GroupPatch) (*models.Group, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	g, ok := r.groups[id]
	if !ok {
		return nil, nil
	}
	if patch.Name != nil && *patch.Name != g.Name {
		if _, taken := r.names[*patch.Name]; taken {
			return nil, ErrDuplicateKey
		}
		delete(r.names, g.Name)
		r.names[*patch.Name] = id
		g.Name = *patch.Name
	}
	if patch.SetDescription {
		g.Description = copyString(patch.Description)
	}
	if patch.UserIDs != nil {
		g.UserIDs = copyIDs(*patch.UserIDs)
	}
	if patch.SetCurrentBetID {
		g.CurrentBetID = copyID(patch.CurrentBetID)
	}
	if patch.IsActive != nil {
		g.IsActive = *patch.IsActive
	}
	return copyGroup(g), nil
}

func (r *MemoryRepository) DeleteGroup(ctx context.Context, id primitive.ObjectID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	g, ok := r.groups[id]
	if !ok {
		return false, nil
	}
	delete(r.names, g.Name)
	delete(r.groups, id)
	return true, nil
}

func (r *MemoryRepository) AddGroupMember(ctx context.Context, groupID, userID primitive.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if g, ok := r.groups[groupID]; ok {
		g.UserIDs = addToSet(g.UserIDs, userID)
	}
	return nil
}

func (r *MemoryRepository) RemoveGroupMember(ctx context.Context, groupID, userID primitive.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if g, ok := r.groups[groupID]; ok {
		g.UserIDs, _ = pull(g.UserIDs, userID)
	}
	return nil
}

func (r *MemoryRepository) RemoveUserFromGroups(ctx context.Context, userID primitive.ObjectID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for _, g := range r.groups {
		var removed bool
		if g.UserIDs, removed = pull(g.UserIDs, userID); removed {
			n++
		}
	}
	return n, nil
}

func (r *MemoryRepository) SetCurrentBet(ctx context.Context, groupID, betID primitive.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if g, ok := r.groups[groupID]; ok {
		g.CurrentBetID = &betID
	}
	return nil
}

func (r *MemoryRepository) AddPastBet(ctx context.Context, groupID, betID primitive.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if g, ok := r.groups[groupID]; ok {
		g.PastBetIDs = addToSet(g.PastBetIDs, betID)
	}
	return nil
}

func (r *MemoryRepository) ClearCurrentBet(ctx context.Context, groupID, betID primitive.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if g, ok := r.groups[groupID]; ok && g.CurrentBetID != nil && *g.CurrentBetID == betID {
		g.CurrentBetID = nil
	}
	return nil
}

// Bet repository methods
func (r *MemoryRepository) CreateBet(ctx context.Context, bet *models.Bet) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.bets[bet.ID] = copyBet(bet)
	return nil
}

func (r *MemoryRepository) GetBet(ctx context.Context, id primitive.ObjectID) (*models.Bet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if b, ok := r.bets[id]; ok {
		return copyBet(b), nil
	}
	return nil, nil
}

func (r *MemoryRepository) ListBets(ctx context.Context, filter models.BetFilter) ([]models.Bet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []models.Bet
	for _, id := range sortedKeys(r.bets) {
		b := r.bets[id]
		if filter.GroupID != nil && b.GroupID != *filter.GroupID {
			continue
		}
		if filter.Status != "" && b.Status != filter.Status {
			continue
		}
		out = append(out, *copyBet(b))
	}
	return paginate(out, filter.Page), nil
}

func (r *MemoryRepository) UpdateBet(ctx context.Context, id primitive.ObjectID, patch models.BetPatch) (*models.Bet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.bets[id]
	if !ok {
		return nil, nil
	}
	if patch.Title != nil {
		b.Title = *patch.Title
	}
	if patch.StartDate != nil {
		b.StartDate = *patch.StartDate
	}
	if patch.EndDate != nil {
		b.EndDate = *patch.EndDate
	}
	if patch.Status != nil {
		b.Status = *patch.Status
	}
	if patch.Meta != nil {
		b.Meta = copyMeta(*patch.Meta)
	}
	if patch.UserProgress != nil {
		b.UserProgress = copyProgress(*patch.UserProgress)
	}
	return copyBet(b), nil
}

func (r *MemoryRepository) DeleteBet(ctx context.Context, id primitive.ObjectID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.bets[id]; !ok {
		return false, nil
	}
	delete(r.bets, id)
	return true, nil
}

func (r *MemoryRepository) SetBetStatus(ctx context.Context, id primitive.ObjectID, status models.BetStatus) (*models.Bet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.bets[id]
	if !ok {
		return nil, nil
	}
	b.Status = status
	return copyBet(b), nil
}

func (r *MemoryRepository) UpdateProgress(ctx context.Context, betID, userID primitive.ObjectID, progress float64, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.bets[betID]
	if !ok {
		return false, nil
	}
	for i := range b.UserProgress {
		if b.UserProgress[i].UserID == userID {
			b.UserProgress[i].Progress = progress
			b.UserProgress[i].LastUpdated = at
			return true, nil
		}
	}
	return false, nil
}

func (r *MemoryRepository) AppendProgress(ctx context.Context, betID primitive.ObjectID, entry models.ProgressEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.bets[betID]
	if !ok {
		return nil
	}
	for _, p := range b.UserProgress {
		if p.UserID == entry.UserID {
			return nil
		}
	}
	b.UserProgress = append(b.UserProgress, entry)
	return nil
}

func (r *MemoryRepository) RemoveUserProgress(ctx context.Context, userID primitive.ObjectID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for _, b := range r.bets {
		kept := b.UserProgress[:0]
		for _, p := range b.UserProgress {
			if p.UserID != userID {
				kept = append(kept, p)
			}
		}
		if len(kept) != len(b.UserProgress) {
			n++
		}
		b.UserProgress = kept
	}
	return n, nil
}

func (r *MemoryRepository) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (r *MemoryRepository) Close() error {
	return nil
}

// Helpers

func sortedKeys[V any](m map[primitive.ObjectID]V) []primitive.ObjectID {
	keys := make([]primitive.ObjectID, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Hex() < keys[j].Hex() })
	return keys
}

func paginate[T any](items []T, page models.Page) []T {
	if page.Skip >= len(items) {
		return []T{}
	}
	items = items[page.Skip:]
	if page.Limit > 0 && page.Limit < len(items) {
		items = items[:page.Limit]
	}
	return items
}

func addToSet(ids []primitive.ObjectID, id primitive.ObjectID) []primitive.ObjectID {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}

func pull(ids []primitive.ObjectID, id primitive.ObjectID) ([]primitive.ObjectID, bool) {
	out := make([]primitive.ObjectID, 0, len(ids))
	for _, existing := range ids {
		if existing != id {
			out = append(out, existing)
		}
	}
	return out, len(out) != len(ids)
}

func copyIDs(ids []primitive.ObjectID) []primitive.ObjectID {
	out := make([]primitive.ObjectID, len(ids))
	copy(out, ids)
	return out
}

func copyID(id *primitive.ObjectID) *primitive.ObjectID {
	if id == nil {
		return nil
	}
	c := *id
	return &c
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

func copyMeta(meta map[string]string) map[string]string {
	out := make(map[string]string, len(meta))
	for k, v := range meta {
		out[k] = v
	}
	return out
}

func copyProgress(entries []models.ProgressEntry) []models.ProgressEntry {
	out := make([]models.ProgressEntry, len(entries))
	copy(out, entries)
	return out
}

func copyUser(u *models.User) *models.User {
	c := *u
	c.GroupIDs = copyIDs(u.GroupIDs)
	return &c
}

func copyGroup(g *models.Group) *models.Group {
	c := *g
	c.Description = copyString(g.Description)
	c.UserIDs = copyIDs(g.UserIDs)
	c.CurrentBetID = copyID(g.CurrentBetID)
	c.PastBetIDs = copyIDs(g.PastBetIDs)
	return &c
}

func copyBet(b *models.Bet) *models.Bet {
	c := *b
	c.UserProgress = copyProgress(b.UserProgress)
	c.Meta = copyMeta(b.Meta)
	return &c
}
