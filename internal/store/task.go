package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/canvashq/canvas/internal/model"
)

type TaskStore struct {
	db *sql.DB
}

func NewTaskStore(db *sql.DB) *TaskStore {
	return &TaskStore{db: db}
}

const taskCols = `id, key, name, type, reward_points, max_completions, active, sort_order, created_at, updated_at`

func scanTask(scanner interface{ Scan(...any) error }) (*model.Task, error) {
	var t model.Task
	var reward string
	var active int

	err := scanner.Scan(&t.ID, &t.Key, &t.Name, &t.Type, &reward, &t.MaxCompletions, &active, &t.SortOrder, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if t.RewardPoints, err = decimal.NewFromString(reward); err != nil {
		return nil, fmt.Errorf("parse reward points: %w", err)
	}
	t.Active = active != 0
	return &t, nil
}

func (s *TaskStore) GetByKey(key string) (*model.Task, error) {
	row := s.db.QueryRow(`SELECT `+taskCols+` FROM tasks WHERE key = ?`, key)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

func (s *TaskStore) GetByKeyTx(tx *sql.Tx, key string) (*model.Task, error) {
	row := tx.QueryRow(`SELECT `+taskCols+` FROM tasks WHERE key = ?`, key)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

func (s *TaskStore) List() ([]model.Task, error) {
	rows, err := s.db.Query(`SELECT ` + taskCols + ` FROM tasks ORDER BY sort_order ASC, key ASC`)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

func (s *TaskStore) Create(key, name string, taskType model.TaskType, reward decimal.Decimal, maxCompletions, sortOrder int) (*model.Task, error) {
	_, err := s.db.Exec(
		`INSERT INTO tasks (key, name, type, reward_points, max_completions, sort_order) VALUES (?, ?, ?, ?, ?, ?)`,
		key, name, string(taskType), reward.String(), maxCompletions, sortOrder,
	)
	if err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}
	return s.GetByKey(key)
}

// SetRewardTx updates the live reward value, within the same transaction as
// the economic-config audit record for immediate changes.
func (s *TaskStore) SetRewardTx(tx *sql.Tx, key string, reward decimal.Decimal) error {
	res, err := tx.Exec(
		`UPDATE tasks SET reward_points = ?, updated_at = datetime('now') WHERE key = ?`,
		reward.String(), key,
	)
	if err != nil {
		return fmt.Errorf("set task reward: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("set task reward: no task with key %q", key)
	}
	return nil
}

// SetActiveTx toggles a task on or off.
func (s *TaskStore) SetActiveTx(tx *sql.Tx, key string, active bool) error {
	var a int
	if active {
		a = 1
	}
	res, err := tx.Exec(
		`UPDATE tasks SET active = ?, updated_at = datetime('now') WHERE key = ?`,
		a, key,
	)
	if err != nil {
		return fmt.Errorf("set task active: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("set task active: no task with key %q", key)
	}
	return nil
}

// --- Completion methods ---

const completionCols = `id, task_id, account_id, completed_at`

func scanTaskCompletion(scanner interface{ Scan(...any) error }) (*model.TaskCompletion, error) {
	var c model.TaskCompletion
	err := scanner.Scan(&c.ID, &c.TaskID, &c.AccountID, &c.CompletedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// CountCompletionsTx counts completions for (account, task) within a window.
// A nil bound leaves that side open; both nil counts lifetime completions.
func (s *TaskStore) CountCompletionsTx(tx *sql.Tx, taskID, accountID int64, start, end *time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM task_completions WHERE task_id = ? AND account_id = ?`
	args := []any{taskID, accountID}
	if start != nil {
		query += ` AND completed_at >= ?`
		args = append(args, start.UTC())
	}
	if end != nil {
		query += ` AND completed_at < ?`
		args = append(args, end.UTC())
	}

	var count int
	if err := tx.QueryRow(query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count completions: %w", err)
	}
	return count, nil
}

func (s *TaskStore) CreateCompletionTx(tx *sql.Tx, taskID, accountID int64, completedAt time.Time) (*model.TaskCompletion, error) {
	result, err := tx.Exec(
		`INSERT INTO task_completions (task_id, account_id, completed_at) VALUES (?, ?, ?)`,
		taskID, accountID, completedAt.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert completion: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	row := tx.QueryRow(`SELECT `+completionCols+` FROM task_completions WHERE id = ?`, id)
	c, err := scanTaskCompletion(row)
	if err != nil {
		return nil, fmt.Errorf("read back completion: %w", err)
	}
	return c, nil
}

func (s *TaskStore) ListCompletionsByAccount(accountID int64) ([]model.TaskCompletion, error) {
	rows, err := s.db.Query(
		`SELECT `+completionCols+` FROM task_completions WHERE account_id = ? ORDER BY completed_at DESC`,
		accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("list completions: %w", err)
	}
	defer rows.Close()

	var completions []model.TaskCompletion
	for rows.Next() {
		c, err := scanTaskCompletion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan completion: %w", err)
		}
		completions = append(completions, *c)
	}
	return completions, rows.Err()
}
