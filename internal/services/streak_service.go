package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Dias221467/taskreminder/internal/models"
	"github.com/Dias221467/taskreminder/internal/repository"
	"github.com/Dias221467/taskreminder/pkg/clock"
	"github.com/Dias221467/taskreminder/pkg/logger"
	"github.com/sirupsen/logrus"
)

var (
	ErrBackdatedActivity = errors.New("activity date is before the last recorded activity")
	ErrFutureActivity    = errors.New("activity date is in the future")
)

// StreakService tracks consecutive active days per user. Calls for the same
// user are serialised; different users never wait on each other.
type StreakService struct {
	store       repository.StreakStore
	clock       clock.Clock
	location    *time.Location
	resetOnRead bool
	locks       *keyedMutex
}

// NewStreakService computes calendar days in loc. With resetOnRead, GetStreak
// zeroes a lapsed streak before returning it.
func NewStreakService(store repository.StreakStore, clk clock.Clock, loc *time.Location, resetOnRead bool) *StreakService {
	if clk == nil {
		clk = clock.Real{}
	}
	if loc == nil {
		loc = time.UTC
	}
	return &StreakService{
		store:       store,
		clock:       clk,
		location:    loc,
		resetOnRead: resetOnRead,
		locks:       newKeyedMutex(),
	}
}

func (s *StreakService) today() time.Time {
	return models.DayOf(s.clock.Now(), s.location)
}

// RecordActivity registers activity for today.
func (s *StreakService) RecordActivity(ctx context.Context, userID string) (models.StreakUpdate, error) {
	return s.record(ctx, userID, s.today())
}

// RecordActivityOn registers activity on the calendar day containing at.
func (s *StreakService) RecordActivityOn(ctx context.Context, userID string, at time.Time) (models.StreakUpdate, error) {
	return s.record(ctx, userID, models.DayOf(at, s.location))
}

func (s *StreakService) record(ctx context.Context, userID string, day time.Time) (models.StreakUpdate, error) {
	if day.After(s.today()) {
		return models.StreakUpdate{}, ErrFutureActivity
	}

	unlock := s.locks.Lock(userID)
	defer unlock()

	state, err := s.load(ctx, userID)
	if err != nil {
		return models.StreakUpdate{}, err
	}

	next, updated, err := advanceStreak(*state, day)
	if err != nil {
		return models.StreakUpdate{UserStreakState: *state}, err
	}
	if !updated {
		return models.StreakUpdate{UserStreakState: *state}, nil
	}

	if err := s.store.SaveStreak(ctx, &next); err != nil {
		return models.StreakUpdate{}, fmt.Errorf("saving streak: %w", err)
	}

	logger.Log.WithFields(logrus.Fields{
		"user_id":        userID,
		"current_streak": next.CurrentStreak,
		"longest_streak": next.LongestStreak,
	}).Debug("Streak updated")
	return models.StreakUpdate{UserStreakState: next, StreakUpdated: true}, nil
}

// advanceStreak applies one activity on day to state.
func advanceStreak(state models.UserStreakState, day time.Time) (models.UserStreakState, bool, error) {
	if state.LastActivityDate == nil {
		state.CurrentStreak = 1
		state.TotalDaysActive = 1
	} else {
		switch gap := models.DaysBetween(*state.LastActivityDate, day); {
		case gap == 0:
			return state, false, nil
		case gap < 0:
			return state, false, ErrBackdatedActivity
		case gap == 1:
			state.CurrentStreak++
			state.TotalDaysActive++
		default:
			state.CurrentStreak = 1
			state.TotalDaysActive++
		}
	}

	if state.CurrentStreak > state.LongestStreak {
		state.LongestStreak = state.CurrentStreak
	}
	d := day
	state.LastActivityDate = &d
	return state, true, nil
}

// CheckAndReset zeroes current_streak when more than a day has passed since
// the last activity. Longest and total are kept.
func (s *StreakService) CheckAndReset(ctx context.Context, userID string) (bool, error) {
	unlock := s.locks.Lock(userID)
	defer unlock()
	return s.checkAndReset(ctx, userID)
}

func (s *StreakService) checkAndReset(ctx context.Context, userID string) (bool, error) {
	state, err := s.store.GetStreak(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("loading streak: %w", err)
	}
	if state.LastActivityDate == nil || state.CurrentStreak == 0 {
		return false, nil
	}
	if models.DaysBetween(*state.LastActivityDate, s.today()) <= 1 {
		return false, nil
	}

	if err := s.store.ResetCurrent(ctx, userID); err != nil {
		return false, err
	}
	logger.Log.WithField("user_id", userID).Info("Streak reset after inactivity")
	return true, nil
}

// GetStreak returns the user's streak; unknown users get a zero state.
func (s *StreakService) GetStreak(ctx context.Context, userID string) (*models.UserStreakState, error) {
	unlock := s.locks.Lock(userID)
	defer unlock()

	if s.resetOnRead {
		if _, err := s.checkAndReset(ctx, userID); err != nil {
			return nil, err
		}
	}
	return s.load(ctx, userID)
}

func (s *StreakService) load(ctx context.Context, userID string) (*models.UserStreakState, error) {
	state, err := s.store.GetStreak(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return &models.UserStreakState{UserID: userID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading streak: %w", err)
	}
	return state, nil
}

// ResetStale runs CheckAndReset for every user whose streak has lapsed.
func (s *StreakService) ResetStale(ctx context.Context) (int, error) {
	yesterday := s.today().AddDate(0, 0, -1)
	ids, err := s.store.ListStale(ctx, yesterday)
	if err != nil {
		return 0, fmt.Errorf("listing stale streaks: %w", err)
	}

	reset := 0
	for _, id := range ids {
		ok, err := s.CheckAndReset(ctx, id)
		if err != nil {
			logger.Log.WithError(err).WithField("user_id", id).Error("Failed to reset streak")
			continue
		}
		if ok {
			reset++
		}
	}
	return reset, nil
}

func (s *StreakService) Stats(ctx context.Context) (*models.StreakStats, error) {
	return s.store.Stats(ctx)
}
