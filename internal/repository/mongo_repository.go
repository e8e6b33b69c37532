package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rongwang/groupbets-server/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/x/mongo/driver/topology"
)

// Collection names
const (
	UsersCollection  = "users"
	GroupsCollection = "groups"
	BetsCollection   = "bets"
)

// MongoRepository implements the Repository interface on a MongoDB
// database. Each method issues a single-document command.
type MongoRepository struct {
	client *mongo.Client
	users  *mongo.Collection
	groups *mongo.Collection
	bets   *mongo.Collection
}

var _ Repository = (*MongoRepository)(nil)

// NewMongoRepository creates a repository over the named database
func NewMongoRepository(client *mongo.Client, database string) *MongoRepository {
	db := client.Database(database)
	return &MongoRepository{
		client: client,
		users:  db.Collection(UsersCollection),
		groups: db.Collection(GroupsCollection),
		bets:   db.Collection(BetsCollection),
	}
}

// Database returns the database the repository writes to
func (r *MongoRepository) Database() *mongo.Database {
	return r.users.Database()
}

var returnAfter = options.FindOneAndUpdate().SetReturnDocument(options.After)

// User repository methods
func (r *MongoRepository) CreateUser(ctx context.Context, user *models.User) error {
	doc := *user
	doc.GroupIDs = nonNilIDs(doc.GroupIDs)
	_, err := r.users.InsertOne(ctx, doc)
	return translateMongoError(err)
}

func (r *MongoRepository) GetUser(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	var user models.User
	if err := findOne(ctx, r.users, bson.M{"_id": id}, &user); err != nil {
		return nil, err
	}
	return nilIfEmpty(&user, user.ID), nil
}

func (r *MongoRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := findOne(ctx, r.users, bson.M{"email": email}, &user); err != nil {
		return nil, err
	}
	return nilIfEmpty(&user, user.ID), nil
}

func (r *MongoRepository) ListUsers(ctx context.Context, filter models.UserFilter) ([]models.User, error) {
	query := bson.M{}
	if filter.Email != "" {
		query["email"] = filter.Email
	}
	users := []models.User{}
	if err := findPage(ctx, r.users, query, filter.Page, &users); err != nil {
		return nil, err
	}
	return users, nil
}

func (r *MongoRepository) UpdateUser(ctx context.Context, id primitive.ObjectID, patch models.UserPatch) (*models.User, error) {
	set := bson.M{}
	if patch.ProfileURL != nil {
		set["profile_url"] = *patch.ProfileURL
	}
	if patch.Username != nil {
		set["username"] = *patch.Username
	}
	if patch.Email != nil {
		set["email"] = *patch.Email
	}
	if patch.PasswordHash != nil {
		set["password_hash"] = *patch.PasswordHash
	}
	if patch.GroupIDs != nil {
		set["group_ids"] = nonNilIDs(*patch.GroupIDs)
	}
	if patch.AverageSpending != nil {
		set["average_spending"] = *patch.AverageSpending
	}

	var user models.User
	if err := r.setFields(ctx, r.users, id, set, &user); err != nil {
		return nil, err
	}
	return nilIfEmpty(&user, user.ID), nil
}

func (r *MongoRepository) DeleteUser(ctx context.Context, id primitive.ObjectID) (bool, error) {
	return deleteOne(ctx, r.users, id)
}

func (r *MongoRepository) AddUserGroup(ctx context.Context, userID, groupID primitive.ObjectID) error {
	_, err := r.users.UpdateOne(ctx, bson.M{"_id": userID}, bson.M{"$addToSet": bson.M{"group_ids": groupID}})
	return translateMongoError(err)
}

func (r *MongoRepository) RemoveUserGroup(ctx context.Context, userID, groupID primitive.ObjectID) error {
	_, err := r.users.UpdateOne(ctx, bson.M{"_id": userID}, bson.M{"$pull": bson.M{"group_ids": groupID}})
	return translateMongoError(err)
}

func (r *MongoRepository) RemoveGroupFromUsers(ctx context.Context, groupID primitive.ObjectID) (int64, error) {
	res, err := r.users.UpdateMany(ctx, bson.M{"group_ids": groupID}, bson.M{"$pull": bson.M{"group_ids": groupID}})
	if err != nil {
		return 0, translateMongoError(err)
	}
	return res.ModifiedCount, nil
}

// Group repository methods
func (r *MongoRepository) CreateGroup(ctx context.Context, group *models.Group) error {
	doc := *group
	doc.UserIDs = nonNilIDs(doc.UserIDs)
	doc.PastBetIDs = nonNilIDs(doc.PastBetIDs)
	_, err := r.groups.InsertOne(ctx, doc)
	return translateMongoError(err)
}

func (r *MongoRepository) GetGroup(ctx context.Context, id primitive.ObjectID) (*models.Group, error) {
	var group models.Group
	if err := findOne(ctx, r.groups, bson.M{"_id": id}, &group); err != nil {
		return nil, err
	}
	return normalizeGroup(nilIfEmpty(&group, group.ID)), nil
}

func (r *MongoRepository) GetGroupByName(ctx context.Context, name string) (*models.Group, error) {
	var group models.Group
	if err := findOne(ctx, r.groups, bson.M{"name": name}, &group); err != nil {
		return nil, err
	}
	return normalizeGroup(nilIfEmpty(&group, group.ID)), nil
}

func (r *MongoRepository) ListGroups(ctx context.Context, filter models.GroupFilter) ([]models.Group, error) {
	query := bson.M{}
	if filter.Name != "" {
		query["name"] = filter.Name
	}
	groups := []models.Group{}
	if err := findPage(ctx, r.groups, query, filter.Page, &groups); err != nil {
		return nil, err
	}
	for i := range groups {
		normalizeGroup(&groups[i])
	}
	return groups, nil
}

func (r *MongoRepository) UpdateGroup(ctx context.Context, id primitive.ObjectID, patch models.GroupPatch) (*models.Group, error) {
	set := bson.M{}
	unset := bson.M{}
	if patch.Name != nil {
		set["name"] = *patch.Name
	}
	if patch.SetDescription {
		set["description"] = patch.Description
	}
	if patch.UserIDs != nil {
		set["user_ids"] = nonNilIDs(*patch.UserIDs)
	}
	if patch.SetCurrentBetID {
		if patch.CurrentBetID == nil {
			unset["current_bet_id"] = ""
		} else {
			set["current_bet_id"] = *patch.CurrentBetID
		}
	}
	if patch.IsActive != nil {
		set["is_active"] = *patch.IsActive
	}

	update := bson.M{}
	if len(set) > 0 {
		update["$set"] = set
	}
	if len(unset) > 0 {
		update["$unset"] = unset
	}

	var group models.Group
	if err := r.applyUpdate(ctx, r.groups, id, update, &group); err != nil {
		return nil, err
	}
	return normalizeGroup(nilIfEmpty(&group, group.ID)), nil
}

func (r *MongoRepository) DeleteGroup(ctx context.Context, id primitive.ObjectID) (bool, error) {
	return deleteOne(ctx, r.groups, id)
}

func (r *MongoRepository) AddGroupMember(ctx context.Context, groupID, userID primitive.ObjectID) error {
	_, err := r.groups.UpdateOne(ctx, bson.M{"_id": groupID}, bson.M{"$addToSet": bson.M{"user_ids": userID}})
	return translateMongoError(err)
}

func (r *MongoRepository) RemoveGroupMember(ctx context.Context, groupID, userID primitive.ObjectID) error {
	_, err := r.groups.UpdateOne(ctx, bson.M{"_id": groupID}, bson.M{"$pull": bson.M{"user_ids": userID}})
	return translateMongoError(err)
}

func (r *MongoRepository) RemoveUserFromGroups(ctx context.Context, userID primitive.ObjectID) (int64, error) {
	res, err := r.groups.UpdateMany(ctx, bson.M{"user_ids": userID}, bson.M{"$pull": bson.M{"user_ids": userID}})
	if err != nil {
		return 0, translateMongoError(err)
	}
	return res.ModifiedCount, nil
}

func (r *MongoRepository) SetCurrentBet(ctx context.Context, groupID, betID primitive.ObjectID) error {
	_, err := r.groups.UpdateOne(ctx, bson.M{"_id": groupID}, bson.M{"$set": bson.M{"current_bet_id": betID}})
	return translateMongoError(err)
}

func (r *MongoRepository) AddPastBet(ctx context.Context, groupID, betID primitive.ObjectID) error {
	_, err := r.groups.UpdateOne(ctx, bson.M{"_id": groupID}, bson.M{"$addToSet": bson.M{"past_bet_ids": betID}})
	return translateMongoError(err)
}

func (r *MongoRepository) ClearCurrentBet(ctx context.Context, groupID, betID primitive.ObjectID) error {
	filter, update := clearCurrentBetCommand(groupID, betID)
	_, err := r.groups.UpdateOne(ctx, filter, update)
	return translateMongoError(err)
}

// Bet repository methods
func (r *MongoRepository) CreateBet(ctx context.Context, bet *models.Bet) error {
	doc := *bet
	if doc.UserProgress == nil {
		doc.UserProgress = []models.ProgressEntry{}
	}
	doc.Meta = nonNilMeta(doc.Meta)
	_, err := r.bets.InsertOne(ctx, doc)
	return translateMongoError(err)
}

func (r *MongoRepository) GetBet(ctx context.Context, id primitive.ObjectID) (*models.Bet, error) {
	var bet models.Bet
	if err := findOne(ctx, r.bets, bson.M{"_id": id}, &bet); err != nil {
		return nil, err
	}
	return normalizeBet(nilIfEmpty(&bet, bet.ID)), nil
}

func (r *MongoRepository) ListBets(ctx context.Context, filter models.BetFilter) ([]models.Bet, error) {
	query := bson.M{}
	if filter.GroupID != nil {
		query["group_id"] = *filter.GroupID
	}
	if filter.Status != "" {
		query["status"] = filter.Status
	}
	bets := []models.Bet{}
	if err := findPage(ctx, r.bets, query, filter.Page, &bets); err != nil {
		return nil, err
	}
	for i := range bets {
		normalizeBet(&bets[i])
	}
	return bets, nil
}

func (r *MongoRepository) UpdateBet(ctx context.Context, id primitive.ObjectID, patch models.BetPatch) (*models.Bet, error) {
	set := bson.M{}
	if patch.Title != nil {
		set["title"] = *patch.Title
	}
	if patch.StartDate != nil {
		set["start_date"] = *patch.StartDate
	}
	if patch.EndDate != nil {
		set["end_date"] = *patch.EndDate
	}
	if patch.Status != nil {
		set["status"] = *patch.Status
	}
	if patch.Meta != nil {
		set["meta"] = nonNilMeta(*patch.Meta)
	}
	if patch.UserProgress != nil {
		entries := *patch.UserProgress
		if entries == nil {
			entries = []models.ProgressEntry{}
		}
		set["user_progress"] = entries
	}

	var bet models.Bet
	if err := r.setFields(ctx, r.bets, id, set, &bet); err != nil {
		return nil, err
	}
	return normalizeBet(nilIfEmpty(&bet, bet.ID)), nil
}

func (r *MongoRepository) DeleteBet(ctx context.Context, id primitive.ObjectID) (bool, error) {
	return deleteOne(ctx, r.bets, id)
}

func (r *MongoRepository) SetBetStatus(ctx context.Context, id primitive.ObjectID, status models.BetStatus) (*models.Bet, error) {
	var bet models.Bet
	if err := r.setFields(ctx, r.bets, id, bson.M{"status": status}, &bet); err != nil {
		return nil, err
	}
	return normalizeBet(nilIfEmpty(&bet, bet.ID)), nil
}

func (r *MongoRepository) UpdateProgress(ctx context.Context, betID, userID primitive.ObjectID, progress float64, at time.Time) (bool, error) {
	filter, update := progressUpdateCommand(betID, userID, progress, at)
	res, err := r.bets.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, translateMongoError(err)
	}
	return res.MatchedCount > 0, nil
}

func (r *MongoRepository) AppendProgress(ctx context.Context, betID primitive.ObjectID, entry models.ProgressEntry) error {
	filter, update := progressAppendCommand(betID, entry)
	_, err := r.bets.UpdateOne(ctx, filter, update)
	return translateMongoError(err)
}

func (r *MongoRepository) RemoveUserProgress(ctx context.Context, userID primitive.ObjectID) (int64, error) {
	res, err := r.bets.UpdateMany(ctx,
		bson.M{"user_progress.user_id": userID},
		bson.M{"$pull": bson.M{"user_progress": bson.M{"user_id": userID}}})
	if err != nil {
		return 0, translateMongoError(err)
	}
	return res.ModifiedCount, nil
}

func (r *MongoRepository) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}

func (r *MongoRepository) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return r.client.Disconnect(ctx)
}

// Helper methods

// setFields applies $set and decodes the resulting document into out. An
// empty set only reads the current document.
func (r *MongoRepository) setFields(ctx context.Context, coll *mongo.Collection, id primitive.ObjectID, set bson.M, out interface{}) error {
	update := bson.M{}
	if len(set) > 0 {
		update["$set"] = set
	}
	return r.applyUpdate(ctx, coll, id, update, out)
}

func (r *MongoRepository) applyUpdate(ctx context.Context, coll *mongo.Collection, id primitive.ObjectID, update bson.M, out interface{}) error {
	if len(update) == 0 {
		return findOne(ctx, coll, bson.M{"_id": id}, out)
	}
	err := coll.FindOneAndUpdate(ctx, bson.M{"_id": id}, update, returnAfter).Decode(out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil
	}
	return translateMongoError(err)
}

func findOne(ctx context.Context, coll *mongo.Collection, filter bson.M, out interface{}) error {
	err := coll.FindOne(ctx, filter).Decode(out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil
	}
	return translateMongoError(err)
}

func findPage(ctx context.Context, coll *mongo.Collection, filter bson.M, page models.Page, out interface{}) error {
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}).SetSkip(int64(page.Skip))
	if page.Limit > 0 {
		opts.SetLimit(int64(page.Limit))
	}
	cur, err := coll.Find(ctx, filter, opts)
	if err != nil {
		return translateMongoError(err)
	}
	return translateMongoError(cur.All(ctx, out))
}

func deleteOne(ctx context.Context, coll *mongo.Collection, id primitive.ObjectID) (bool, error) {
	res, err := coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return false, translateMongoError(err)
	}
	return res.DeletedCount > 0, nil
}

// nilIfEmpty maps a zero-valued decode target (no document) to nil
func nilIfEmpty[T any](v *T, id primitive.ObjectID) *T {
	if id.IsZero() {
		return nil
	}
	return v
}

// normalizeGroup and normalizeBet restore what bson decoding loses: empty
// sets come back nil and times come back in the local zone.
func normalizeGroup(group *models.Group) *models.Group {
	if group == nil {
		return nil
	}
	group.UserIDs = nonNilIDs(group.UserIDs)
	group.PastBetIDs = nonNilIDs(group.PastBetIDs)
	group.CreatedAt = group.CreatedAt.UTC()
	return group
}

func normalizeBet(bet *models.Bet) *models.Bet {
	if bet == nil {
		return nil
	}
	if bet.UserProgress == nil {
		bet.UserProgress = []models.ProgressEntry{}
	}
	bet.Meta = nonNilMeta(bet.Meta)
	for i := range bet.UserProgress {
		bet.UserProgress[i].LastUpdated = bet.UserProgress[i].LastUpdated.UTC()
	}
	bet.StartDate = bet.StartDate.UTC()
	bet.EndDate = bet.EndDate.UTC()
	return bet
}

// translateMongoError maps duplicate keys to ErrDuplicateKey and lost
// connectivity (server selection, network, timeouts) to ErrStorageUnavailable.
func translateMongoError(err error) error {
	if err == nil {
		return nil
	}
	var selection topology.ServerSelectionError
	switch {
	case mongo.IsDuplicateKeyError(err):
		return fmt.Errorf("%w: %v", ErrDuplicateKey, err)
	case errors.As(err, &selection), mongo.IsNetworkError(err), mongo.IsTimeout(err):
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return err
}

// progressUpdateCommand rewrites the entry of userID in place through the
// positional operator. It matches nothing when the bet has no such entry.
func progressUpdateCommand(betID, userID primitive.ObjectID, progress float64, at time.Time) (bson.M, bson.M) {
	filter := bson.M{"_id": betID, "user_progress.user_id": userID}
	update := bson.M{"$set": bson.M{
		"user_progress.$.progress":     progress,
		"user_progress.$.last_updated": at,
	}}
	return filter, update
}

// progressAppendCommand pushes entry unless the bet already holds one for
// the same user, so a lost race with another append cannot duplicate it.
func progressAppendCommand(betID primitive.ObjectID, entry models.ProgressEntry) (bson.M, bson.M) {
	filter := bson.M{"_id": betID, "user_progress.user_id": bson.M{"$ne": entry.UserID}}
	update := bson.M{"$push": bson.M{"user_progress": entry}}
	return filter, update
}

// clearCurrentBetCommand unsets current_bet_id only while it still names betID
func clearCurrentBetCommand(groupID, betID primitive.ObjectID) (bson.M, bson.M) {
	filter := bson.M{"_id": groupID, "current_bet_id": betID}
	update := bson.M{"$unset": bson.M{"current_bet_id": ""}}
	return filter, update
}
