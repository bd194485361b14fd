package repository

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"

	"github.com/spec-kit/resource-queue/internal/domain"
)

const (
	resourcesCollection     = "resources"
	notificationsCollection = "notifications"
	usersCollection         = "users"
)

// MongoStore keeps documents in MongoDB collections. Transactions require a
// replica set deployment.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

// NewMongoStore returns a store bound to the given database.
func NewMongoStore(client *mongo.Client, database string) *MongoStore {
	return &MongoStore{client: client, db: client.Database(database)}
}

// Repositories returns auto-committing repositories.
func (s *MongoStore) Repositories() Repositories {
	return Repositories{
		Resources:     &mongoResourceRepository{coll: s.db.Collection(resourcesCollection)},
		Notifications: &mongoNotificationRepository{coll: s.db.Collection(notificationsCollection)},
		Users:         &mongoUserRepository{coll: s.db.Collection(usersCollection)},
	}
}

// WithTransaction runs fn in a session transaction. The driver retries fn on
// transient errors, which the remaining failures surface as ErrConflict.
func (s *MongoStore) WithTransaction(ctx context.Context, fn TxFunc) error {
	session, err := s.client.StartSession()
	if err != nil {
		return err
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc, s.Repositories())
	}, transactionOptions())
	return translateMongoError(err)
}

// transactionOptions reads from the primary with local read concern and
// commits with majority write concern.
func transactionOptions() *options.TransactionOptions {
	return options.Transaction().
		SetReadPreference(readpref.Primary()).
		SetReadConcern(readconcern.Local()).
		SetWriteConcern(writeconcern.Majority())
}

// Ping verifies connectivity.
func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// EnsureIndexes creates the indexes the repositories query by.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	if _, err := s.db.Collection(resourcesCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "tickets.user._id", Value: 1}}},
		{Keys: bson.D{{Key: "createdBy._id", Value: 1}}},
		{Keys: bson.D{{Key: "tickets.statuses.statusCode", Value: 1}}},
	}); err != nil {
		return err
	}
	if _, err := s.db.Collection(notificationsCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "resource._id", Value: 1}, {Key: "user._id", Value: 1}}},
	}); err != nil {
		return err
	}
	_, err := s.db.Collection(usersCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "username", Value: "text"}, {Key: "name", Value: "text"}, {Key: "surname", Value: "text"}},
	})
	return err
}

func translateMongoError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrNotFound
	}
	var serverErr mongo.ServerError
	if errors.As(err, &serverErr) && serverErr.HasErrorLabel("TransientTransactionError") {
		return errors.Join(ErrConflict, err)
	}
	return err
}

var byCreationDate = options.Find().SetSort(bson.D{{Key: "creationDate", Value: 1}, {Key: "_id", Value: 1}})

type mongoResourceRepository struct {
	coll *mongo.Collection
}

func (r *mongoResourceRepository) Create(ctx context.Context, resource *domain.Resource) error {
	_, err := r.coll.InsertOne(ctx, resource)
	return translateMongoError(err)
}

func (r *mongoResourceRepository) GetByID(ctx context.Context, id string) (*domain.Resource, error) {
	var resource domain.Resource
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&resource); err != nil {
		return nil, translateMongoError(err)
	}
	return &resource, nil
}

func (r *mongoResourceRepository) Save(ctx context.Context, resource *domain.Resource) error {
	res, err := r.coll.ReplaceOne(ctx, bson.M{"_id": resource.ID}, resource)
	if err != nil {
		return translateMongoError(err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *mongoResourceRepository) find(ctx context.Context, filter bson.M) ([]domain.Resource, error) {
	cursor, err := r.coll.Find(ctx, filter, byCreationDate)
	if err != nil {
		return nil, translateMongoError(err)
	}
	var result []domain.Resource
	if err := cursor.All(ctx, &result); err != nil {
		return nil, translateMongoError(err)
	}
	return result, nil
}

func (r *mongoResourceRepository) ListByUser(ctx context.Context, userID string) ([]domain.Resource, error) {
	return r.find(ctx, bson.M{"tickets.user._id": userID})
}

func (r *mongoResourceRepository) ListCreatedBy(ctx context.Context, userID string) ([]domain.Resource, error) {
	return r.find(ctx, bson.M{"createdBy._id": userID})
}

func (r *mongoResourceRepository) ListAwaitingConfirmation(ctx context.Context) ([]domain.Resource, error) {
	return r.find(ctx, bson.M{"tickets.statuses.statusCode": domain.StatusAwaitingConfirmation})
}

func (r *mongoResourceRepository) Delete(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := r.coll.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return 0, translateMongoError(err)
	}
	return res.DeletedCount, nil
}

type mongoNotificationRepository struct {
	coll *mongo.Collection
}

func (r *mongoNotificationRepository) Create(ctx context.Context, n *domain.Notification) error {
	_, err := r.coll.InsertOne(ctx, n)
	return translateMongoError(err)
}

func (r *mongoNotificationRepository) ListByUser(ctx context.Context, userID string) ([]domain.Notification, error) {
	cursor, err := r.coll.Find(ctx, bson.M{"user._id": userID}, options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}}))
	if err != nil {
		return nil, translateMongoError(err)
	}
	var result []domain.Notification
	if err := cursor.All(ctx, &result); err != nil {
		return nil, translateMongoError(err)
	}
	return result, nil
}

func (r *mongoNotificationRepository) deleteMany(ctx context.Context, filter bson.M) (int64, error) {
	res, err := r.coll.DeleteMany(ctx, filter)
	if err != nil {
		return 0, translateMongoError(err)
	}
	return res.DeletedCount, nil
}

func (r *mongoNotificationRepository) DeleteByResourceAndUsers(ctx context.Context, resourceID string, userIDs []string) (int64, error) {
	return r.deleteMany(ctx, bson.M{"resource._id": resourceID, "user._id": bson.M{"$in": userIDs}})
}

func (r *mongoNotificationRepository) DeleteByResources(ctx context.Context, resourceIDs []string) (int64, error) {
	if len(resourceIDs) == 0 {
		return 0, nil
	}
	return r.deleteMany(ctx, bson.M{"resource._id": bson.M{"$in": resourceIDs}})
}

func (r *mongoNotificationRepository) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	return r.deleteMany(ctx, bson.M{"user._id": userID})
}

type mongoUserRepository struct {
	coll *mongo.Collection
}

func (r *mongoUserRepository) Create(ctx context.Context, user *domain.User) error {
	doc := *user
	doc.WebPushSubscriptions = nonNilSubscriptions(user.WebPushSubscriptions)
	_, err := r.coll.InsertOne(ctx, doc)
	return translateMongoError(err)
}

func (r *mongoUserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	var user domain.User
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&user); err != nil {
		return nil, translateMongoError(err)
	}
	return &user, nil
}

func (r *mongoUserRepository) Search(ctx context.Context, query string, limit int) ([]domain.PublicUser, error) {
	opts := options.Find().
		SetProjection(bson.M{"_id": 1, "username": 1, "name": 1, "surname": 1}).
		SetSort(bson.D{{Key: "name", Value: 1}}).
		SetLimit(int64(searchLimit(limit)))
	cursor, err := r.coll.Find(ctx, bson.M{"$text": bson.M{"$search": query}}, opts)
	if err != nil {
		return nil, translateMongoError(err)
	}
	var result []domain.PublicUser
	if err := cursor.All(ctx, &result); err != nil {
		return nil, translateMongoError(err)
	}
	return result, nil
}

func (r *mongoUserRepository) AddSubscription(ctx context.Context, userID string, sub domain.WebPushSubscription) error {
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": userID, "webPushSubscriptions.endpoint": bson.M{"$ne": sub.Endpoint}},
		bson.M{"$push": bson.M{"webPushSubscriptions": sub}},
	)
	if err != nil {
		return translateMongoError(err)
	}
	if res.MatchedCount == 0 {
		if _, err := r.GetByID(ctx, userID); err != nil {
			return err
		}
	}
	return nil
}

func (r *mongoUserRepository) RemoveSubscription(ctx context.Context, userID, endpoint string) error {
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": userID},
		bson.M{"$pull": bson.M{"webPushSubscriptions": bson.M{"endpoint": endpoint}}},
	)
	if err != nil {
		return translateMongoError(err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *mongoUserRepository) Delete(ctx context.Context, id string) error {
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return translateMongoError(err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}
