package models

import "time"

type Priority string

const (
	PriorityHigh   Priority = "High"
	PriorityMedium Priority = "Medium"
	PriorityLow    Priority = "Low"
)

type TaskStatus string

const (
	StatusPending    TaskStatus = "Pending"
	StatusInProgress TaskStatus = "In Progress"
	StatusCompleted  TaskStatus = "Completed"
)

// Task is owned by the task store. The engine only reads it.
type Task struct {
	ID           string     `json:"id"`
	UserID       string     `json:"user_id"`
	Title        string     `json:"title"`
	Description  string     `json:"description,omitempty"`
	Deadline     *time.Time `json:"deadline,omitempty"`
	Priority     Priority   `json:"priority"`
	Status       TaskStatus `json:"status"`
	ReminderTime *time.Time `json:"reminder_time,omitempty"` // planned as its own "explicit" tier
}

func (t *Task) IsCompleted() bool {
	return t.Status == StatusCompleted
}
