package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Dias221467/taskreminder/internal/models"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// streakDoc is keyed by user id. Days are stored as YYYY-MM-DD strings.
type streakDoc struct {
	UserID           string    `bson:"_id"`
	CurrentStreak    int       `bson:"current_streak"`
	LongestStreak    int       `bson:"longest_streak"`
	LastActivityDate string    `bson:"last_activity_date,omitempty"`
	TotalDaysActive  int       `bson:"total_days_active"`
	UpdatedAt        time.Time `bson:"updated_at"`
}

type StreakRepository struct {
	collection *mongo.Collection
}

func NewStreakRepository(db *mongo.Database) *StreakRepository {
	return &StreakRepository{
		collection: db.Collection("user_streaks"),
	}
}

func (r *StreakRepository) GetStreak(ctx context.Context, userID string) (*models.UserStreakState, error) {
	var doc streakDoc
	err := r.collection.FindOne(ctx, bson.M{"_id": userID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch streak: %w", err)
	}

	state := &models.UserStreakState{
		UserID:          doc.UserID,
		CurrentStreak:   doc.CurrentStreak,
		LongestStreak:   doc.LongestStreak,
		TotalDaysActive: doc.TotalDaysActive,
	}
	if doc.LastActivityDate != "" {
		day, err := models.ParseDay(doc.LastActivityDate)
		if err != nil {
			return nil, fmt.Errorf("invalid last_activity_date for %s: %w", userID, err)
		}
		state.LastActivityDate = &day
	}
	return state, nil
}

// SaveStreak upserts the whole state
func (r *StreakRepository) SaveStreak(ctx context.Context, state *models.UserStreakState) error {
	doc := streakDoc{
		UserID:          state.UserID,
		CurrentStreak:   state.CurrentStreak,
		LongestStreak:   state.LongestStreak,
		TotalDaysActive: state.TotalDaysActive,
		UpdatedAt:       time.Now().UTC(),
	}
	if state.LastActivityDate != nil {
		doc.LastActivityDate = state.LastActivityDate.Format(models.DateLayout)
	}

	opts := options.Replace().SetUpsert(true)
	if _, err := r.collection.ReplaceOne(ctx, bson.M{"_id": state.UserID}, doc, opts); err != nil {
		logrus.WithError(err).WithField("user_id", state.UserID).Error("Failed to save streak")
		return fmt.Errorf("failed to save streak: %w", err)
	}
	return nil
}

func (r *StreakRepository) ListStale(ctx context.Context, before time.Time) ([]string, error) {
	filter := bson.M{
		"current_streak":     bson.M{"$gt": 0},
		"last_activity_date": bson.M{"$lt": before.Format(models.DateLayout), "$ne": ""},
	}
	opts := options.Find().SetProjection(bson.M{"_id": 1}).SetSort(bson.D{{Key: "_id", Value: 1}})

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch stale streaks: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []streakDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode stale streaks: %w", err)
	}
	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.UserID)
	}
	return ids, nil
}

func (r *StreakRepository) ResetCurrent(ctx context.Context, userID string) error {
	_, err := r.collection.UpdateOne(ctx, bson.M{"_id": userID}, bson.M{"$set": bson.M{
		"current_streak": 0,
		"updated_at":     time.Now().UTC(),
	}})
	if err != nil {
		return fmt.Errorf("failed to reset streak: %w", err)
	}
	return nil
}

func (r *StreakRepository) Stats(ctx context.Context) (*models.StreakStats, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.M{
			"_id":                nil,
			"total_users":        bson.M{"$sum": 1},
			"avg_current_streak": bson.M{"$avg": "$current_streak"},
			"max_current_streak": bson.M{"$max": "$current_streak"},
			"avg_longest_streak": bson.M{"$avg": "$longest_streak"},
			"max_longest_streak": bson.M{"$max": "$longest_streak"},
			"avg_days_active":    bson.M{"$avg": "$total_days_active"},
		}}},
	}

	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate streaks: %w", err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		TotalUsers       int64   `bson:"total_users"`
		AvgCurrentStreak float64 `bson:"avg_current_streak"`
		MaxCurrentStreak int     `bson:"max_current_streak"`
		AvgLongestStreak float64 `bson:"avg_longest_streak"`
		MaxLongestStreak int     `bson:"max_longest_streak"`
		AvgDaysActive    float64 `bson:"avg_days_active"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode streak stats: %w", err)
	}

	stats := &models.StreakStats{}
	if len(rows) > 0 {
		row := rows[0]
		stats.TotalUsers = row.TotalUsers
		stats.AvgCurrentStreak = row.AvgCurrentStreak
		stats.MaxCurrentStreak = row.MaxCurrentStreak
		stats.AvgLongestStreak = row.AvgLongestStreak
		stats.MaxLongestStreak = row.MaxLongestStreak
		stats.AvgDaysActive = row.AvgDaysActive
	}
	return stats, nil
}
