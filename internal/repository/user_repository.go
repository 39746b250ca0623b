package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/Dias221467/taskreminder/internal/models"
	"github.com/Dias221467/taskreminder/pkg/logger"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// UserRepository reads the shared users collection.
type UserRepository struct {
	collection *mongo.Collection
}

// NewUserRepository creates a new instance of UserRepository.
func NewUserRepository(db *mongo.Database) *UserRepository {
	return &UserRepository{
		collection: db.Collection("users"),
	}
}

// GetEmail returns the user's address, or "" when the user is unknown.
func (r *UserRepository) GetEmail(ctx context.Context, userID string) (string, error) {
	oid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return "", nil
	}

	var user models.User
	opts := options.FindOne().SetProjection(bson.M{"email": 1})
	err = r.collection.FindOne(ctx, bson.M{"_id": oid}, opts).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		logger.Log.WithField("userID", userID).Warn("User not found for email lookup")
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to find user by id: %w", err)
	}
	return user.Email, nil
}
