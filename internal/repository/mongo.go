package repository

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/tableserve/tableserve-auth/internal/model"
)

type userDocument struct {
	ID           primitive.ObjectID `bson:"_id,omitempty"`
	Username     string             `bson:"username"`
	Email        string             `bson:"email"`
	PasswordHash string             `bson:"password_hash"`
	Roles        []string           `bson:"roles"`
	CreatedAt    time.Time          `bson:"created_at"`
}

func (d userDocument) toModel() *model.User {
	return &model.User{
		ID:           d.ID.Hex(),
		Username:     d.Username,
		Email:        d.Email,
		PasswordHash: d.PasswordHash,
		Roles:        d.Roles,
		CreatedAt:    d.CreatedAt,
	}
}

// MongoUserRepository stores one document per user in a MongoDB collection.
type MongoUserRepository struct {
	coll *mongo.Collection
	now  func() time.Time
}

// NewMongoUserRepository creates a MongoUserRepository on top of coll.
func NewMongoUserRepository(coll *mongo.Collection) *MongoUserRepository {
	return &MongoUserRepository{coll: coll, now: time.Now}
}

// EnsureIndexes creates the unique email index and the username lookup index.
func (r *MongoUserRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uq_email"),
		},
		{
			Keys:    bson.D{{Key: "username", Value: 1}, {Key: "created_at", Value: 1}},
			Options: options.Index().SetName("idx_username"),
		},
	})
	return err
}

// Create inserts a new user document and sets the generated ID on the user struct.
func (r *MongoUserRepository) Create(ctx context.Context, user *model.User) error {
	doc := userDocument{
		ID:           primitive.NewObjectID(),
		Username:     user.Username,
		Email:        NormalizeEmail(user.Email),
		PasswordHash: user.PasswordHash,
		Roles:        user.Roles,
		// BSON dates carry millisecond precision.
		CreatedAt: r.now().UTC().Truncate(time.Millisecond),
	}

	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateEmail
		}
		return err
	}

	user.ID = doc.ID.Hex()
	user.Email = doc.Email
	user.CreatedAt = doc.CreatedAt
	return nil
}

// GetByEmail retrieves a user by their email address.
func (r *MongoUserRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.findOne(ctx, bson.M{"email": NormalizeEmail(email)})
}

// GetByUsername retrieves the earliest registered user with the given username.
func (r *MongoUserRepository) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	return r.findOne(ctx, bson.M{"username": username}, opts)
}

// CountByUsername returns how many users share the given username.
func (r *MongoUserRepository) CountByUsername(ctx context.Context, username string) (int64, error) {
	return r.coll.CountDocuments(ctx, bson.M{"username": username})
}

func (r *MongoUserRepository) findOne(ctx context.Context, filter bson.M, opts ...*options.FindOneOptions) (*model.User, error) {
	var doc userDocument
	if err := r.coll.FindOne(ctx, filter, opts...).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return doc.toModel(), nil
}
