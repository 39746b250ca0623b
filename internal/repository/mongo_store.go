package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

var _ Store = (*MongoStore)(nil)

// MongoStore bundles the collection repositories behind one Store.
type MongoStore struct {
	*TaskRepository
	*UserRepository
	*NotificationRepository
	*StreakRepository

	client *mongo.Client
}

func NewMongoStore(client *mongo.Client, db *mongo.Database) *MongoStore {
	return &MongoStore{
		TaskRepository:         NewTaskRepository(db),
		UserRepository:         NewUserRepository(db),
		NotificationRepository: NewNotificationRepository(db),
		StreakRepository:       NewStreakRepository(db),
		client:                 client,
	}
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
