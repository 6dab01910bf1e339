package economy

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/canvashq/canvas/internal/metrics"
	"github.com/canvashq/canvas/internal/model"
	"github.com/canvashq/canvas/internal/store"
)

// TaskEngine credits point rewards for qualifying actions, respecting each
// task's completion limit and cadence.
type TaskEngine struct {
	db     *sql.DB
	tasks  *store.TaskStore
	ledger *store.LedgerStore
	logger *slog.Logger
}

func NewTaskEngine(db *sql.DB, tasks *store.TaskStore, ledger *store.LedgerStore, logger *slog.Logger) *TaskEngine {
	return &TaskEngine{db: db, tasks: tasks, ledger: ledger, logger: logger}
}

// Complete records a task completion and credits its reward. The completion
// row and the ledger credit are written in one transaction, so the same
// action occurring twice within a window can never double-credit: the window
// count is re-checked under the write lock. The returned ledger entry is nil
// for zero-reward tasks.
func (e *TaskEngine) Complete(ctx context.Context, accountID int64, taskKey string, occurredAt time.Time) (*model.TaskCompletion, *model.PointTransaction, error) {
	var completion *model.TaskCompletion
	var entry *model.PointTransaction
	var task *model.Task

	err := store.WithTx(ctx, e.db, func(tx *sql.Tx) error {
		var err error
		task, err = e.tasks.GetByKeyTx(tx, taskKey)
		if err != nil {
			return err
		}
		if task == nil {
			return fmt.Errorf("%w: %q", ErrTaskNotFound, taskKey)
		}
		if !task.Active {
			return fmt.Errorf("%w: %q", ErrTaskInactive, taskKey)
		}

		start, end := CompletionWindow(task.Type, occurredAt)
		count, err := e.tasks.CountCompletionsTx(tx, task.ID, accountID, start, end)
		if err != nil {
			return err
		}
		if count >= task.MaxCompletions {
			return fmt.Errorf("%w: %q (%d/%d)", ErrTaskLimitReached, taskKey, count, task.MaxCompletions)
		}

		completion, err = e.tasks.CreateCompletionTx(tx, task.ID, accountID, occurredAt)
		if err != nil {
			return err
		}

		// Zero-reward tasks record the completion only.
		if task.RewardPoints.IsPositive() {
			entry, err = e.ledger.AppendTx(tx, store.AppendParams{
				AccountID:     accountID,
				Amount:        task.RewardPoints,
				Type:          model.TxTaskReward,
				Description:   task.Name,
				RelatedEntity: fmt.Sprintf("task:%s", task.Key),
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	metrics.TaskCompletions.WithLabelValues(task.Key).Inc()
	if entry != nil {
		metrics.LedgerEntries.WithLabelValues(string(model.TxTaskReward)).Inc()
	}
	e.logger.Info("task completed",
		"account_id", accountID,
		"task", task.Key,
		"reward", task.RewardPoints,
	)
	return completion, entry, nil
}
