package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// TaskType determines the completion window used for max_completions.
type TaskType string

const (
	TaskOnce      TaskType = "once"
	TaskDaily     TaskType = "daily"
	TaskWeekly    TaskType = "weekly"
	TaskPerAction TaskType = "per_action"
)

type Task struct {
	ID             int64           `json:"id"`
	Key            string          `json:"key"`
	Name           string          `json:"name"`
	Type           TaskType        `json:"type"`
	RewardPoints   decimal.Decimal `json:"reward_points"`
	MaxCompletions int             `json:"max_completions"`
	Active         bool            `json:"active"`
	SortOrder      int             `json:"sort_order"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

type TaskCompletion struct {
	ID          int64     `json:"id"`
	TaskID      int64     `json:"task_id"`
	AccountID   int64     `json:"account_id"`
	CompletedAt time.Time `json:"completed_at"`
}
