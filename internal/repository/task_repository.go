package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Dias221467/taskreminder/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type taskDoc struct {
	ID           primitive.ObjectID `bson:"_id,omitempty"`
	UserID       primitive.ObjectID `bson:"user_id"`
	Title        string             `bson:"title"`
	Description  string             `bson:"description,omitempty"`
	Deadline     *time.Time         `bson:"deadline,omitempty"`
	Priority     string             `bson:"priority"`
	Status       string             `bson:"status"`
	ReminderTime *time.Time         `bson:"reminder_time,omitempty"`
}

func (d taskDoc) toModel() models.Task {
	return models.Task{
		ID:           d.ID.Hex(),
		UserID:       d.UserID.Hex(),
		Title:        d.Title,
		Description:  d.Description,
		Deadline:     d.Deadline,
		Priority:     models.Priority(d.Priority),
		Status:       models.TaskStatus(d.Status),
		ReminderTime: d.ReminderTime,
	}
}

// TaskRepository is a read-only view of the tasks collection.
type TaskRepository struct {
	collection *mongo.Collection
}

func NewTaskRepository(db *mongo.Database) *TaskRepository {
	return &TaskRepository{
		collection: db.Collection("tasks"),
	}
}

func (r *TaskRepository) ListActiveTasksWithDeadlineBetween(ctx context.Context, from, to time.Time) ([]models.Task, error) {
	filter := bson.M{
		"deadline": bson.M{"$gte": from.UTC(), "$lte": to.UTC()},
		"status":   bson.M{"$ne": string(models.StatusCompleted)},
	}
	return r.list(ctx, filter, options.Find().SetSort(bson.D{{Key: "deadline", Value: 1}}))
}

func (r *TaskRepository) ListActiveTasksWithReminderBetween(ctx context.Context, from, to time.Time) ([]models.Task, error) {
	filter := bson.M{
		"reminder_time": bson.M{"$gte": from.UTC(), "$lte": to.UTC()},
		"deadline":      bson.M{"$ne": nil},
		"status":        bson.M{"$ne": string(models.StatusCompleted)},
	}
	return r.list(ctx, filter, options.Find().SetSort(bson.D{{Key: "reminder_time", Value: 1}}))
}

func (r *TaskRepository) list(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]models.Task, error) {
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch tasks: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []taskDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode tasks: %w", err)
	}

	tasks := make([]models.Task, 0, len(docs))
	for _, d := range docs {
		tasks = append(tasks, d.toModel())
	}
	return tasks, nil
}

func (r *TaskRepository) GetTask(ctx context.Context, id string) (*models.Task, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrNotFound
	}

	var doc taskDoc
	err = r.collection.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch task: %w", err)
	}
	task := doc.toModel()
	return &task, nil
}
