package models

import "time"

// UserStreakState is the per-user activity streak.
type UserStreakState struct {
	UserID           string     `json:"user_id"`
	CurrentStreak    int        `json:"current_streak"`
	LongestStreak    int        `json:"longest_streak"`
	LastActivityDate *time.Time `json:"last_activity_date,omitempty"` // calendar day, midnight UTC
	TotalDaysActive  int        `json:"total_days_active"`
}

type StreakUpdate struct {
	UserStreakState
	StreakUpdated bool `json:"streak_updated"`
}

type StreakStats struct {
	TotalUsers       int64   `json:"total_users" db:"total_users"`
	AvgCurrentStreak float64 `json:"avg_current_streak" db:"avg_current_streak"`
	MaxCurrentStreak int     `json:"max_current_streak" db:"max_current_streak"`
	AvgLongestStreak float64 `json:"avg_longest_streak" db:"avg_longest_streak"`
	MaxLongestStreak int     `json:"max_longest_streak" db:"max_longest_streak"`
	AvgDaysActive    float64 `json:"avg_days_active" db:"avg_days_active"`
}

const DateLayout = "2006-01-02"

// DayOf returns the calendar day of t in loc, as midnight UTC of that date.
func DayOf(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween counts whole calendar days from a to b. Both must come from DayOf.
func DaysBetween(a, b time.Time) int {
	return int(b.Sub(a).Hours() / 24)
}

func ParseDay(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, time.UTC)
}
