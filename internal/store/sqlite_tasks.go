package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"browserbridge/internal/core"
)

const taskColumns = `scope, id, instruction, provider, status, created_at, finished_at, output, error,
	steps, media, browser_config, save_browser_data, browser_data, live_url`

func (s *SQLite) Create(ctx context.Context, scope string, task *core.Task) error {
	steps, err := json.Marshal(coalesceSteps(task.Steps))
	if err != nil {
		return fmt.Errorf("encode steps: %w", err)
	}
	media, err := json.Marshal(coalesceMedia(task.Media))
	if err != nil {
		return fmt.Errorf("encode media: %w", err)
	}
	browserCfg, err := json.Marshal(task.Browser)
	if err != nil {
		return fmt.Errorf("encode browser config: %w", err)
	}
	var browserData any
	if task.BrowserData != nil {
		encoded, err := json.Marshal(task.BrowserData)
		if err != nil {
			return fmt.Errorf("encode browser data: %w", err)
		}
		browserData = string(encoded)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tasks (`+taskColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, scope, task.ID, task.Instruction, task.Provider, task.Status,
		task.CreatedAt.UTC().Format(time.RFC3339Nano), nullableTime(task.FinishedAt),
		nullableString(task.Output), nullableString(task.Error),
		string(steps), string(media), string(browserCfg),
		boolToInt(task.SaveBrowserData), browserData, task.LiveURL)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrTaskExists
		}
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

func (s *SQLite) Get(ctx context.Context, scope, id string) (*core.Task, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+taskColumns+` FROM tasks WHERE scope = ? AND id = ?
	`, scope, id)
	task, err := scanTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTaskNotFound
		}
		return nil, err
	}
	return task, nil
}

// withTask runs fn against the current document inside a transaction so the
// read-modify-write of JSON columns stays atomic per (scope, id).
func (s *SQLite) withTask(ctx context.Context, scope, id string, fn func(tx *sql.Tx, task *core.Task) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `
		SELECT `+taskColumns+` FROM tasks WHERE scope = ? AND id = ?
	`, scope, id)
	task, err := scanTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrTaskNotFound
		}
		return err
	}
	if err := fn(tx, task); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLite) Update(ctx context.Context, scope, id string, patch TaskPatch) error {
	return s.withTask(ctx, scope, id, func(tx *sql.Tx, task *core.Task) error {
		if patch.Status != nil {
			if task.Status.Terminal() {
				return ErrTerminalState
			}
			task.Status = *patch.Status
		}
		if patch.Output != nil {
			task.Output = patch.Output
		}
		if patch.Error != nil {
			task.Error = patch.Error
		}
		if patch.BrowserData != nil {
			task.BrowserData = patch.BrowserData
		}
		var browserData any
		if task.BrowserData != nil {
			encoded, err := json.Marshal(task.BrowserData)
			if err != nil {
				return fmt.Errorf("encode browser data: %w", err)
			}
			browserData = string(encoded)
		}
		_, err := tx.ExecContext(ctx, `
			UPDATE tasks SET status = ?, output = ?, error = ?, browser_data = ?
			WHERE scope = ? AND id = ?
		`, task.Status, nullableString(task.Output), nullableString(task.Error), browserData, scope, id)
		if err != nil {
			return fmt.Errorf("update task: %w", err)
		}
		return nil
	})
}

func (s *SQLite) UpdateStatus(ctx context.Context, scope, id string, status core.TaskStatus) error {
	return s.Update(ctx, scope, id, TaskPatch{Status: &status})
}

func (s *SQLite) SetOutput(ctx context.Context, scope, id, output string) error {
	return s.setColumn(ctx, scope, id, "output", output)
}

func (s *SQLite) SetError(ctx context.Context, scope, id, errText string) error {
	return s.setColumn(ctx, scope, id, "error", errText)
}

func (s *SQLite) setColumn(ctx context.Context, scope, id, column, value string) error {
	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE tasks SET %s = ? WHERE scope = ? AND id = ?`, column),
		value, scope, id)
	if err != nil {
		return fmt.Errorf("set %s: %w", column, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrTaskNotFound
	}
	return nil
}

func (s *SQLite) MarkFinished(ctx context.Context, scope, id string, terminal core.TaskStatus) error {
	return s.withTask(ctx, scope, id, func(tx *sql.Tx, task *core.Task) error {
		if task.Status.Terminal() {
			return nil
		}
		finishedAt := task.FinishedAt
		if finishedAt == nil {
			now := time.Now().UTC()
			finishedAt = &now
		}
		_, err := tx.ExecContext(ctx, `
			UPDATE tasks SET status = ?, finished_at = ? WHERE scope = ? AND id = ?
		`, terminal, nullableTime(finishedAt), scope, id)
		if err != nil {
			return fmt.Errorf("mark finished: %w", err)
		}
		return nil
	})
}

func (s *SQLite) AddStep(ctx context.Context, scope, id string, step core.Step) error {
	return s.withTask(ctx, scope, id, func(tx *sql.Tx, task *core.Task) error {
		steps, err := json.Marshal(append(task.Steps, step))
		if err != nil {
			return fmt.Errorf("encode steps: %w", err)
		}
		_, err = tx.ExecContext(ctx, `UPDATE tasks SET steps = ? WHERE scope = ? AND id = ?`,
			string(steps), scope, id)
		if err != nil {
			return fmt.Errorf("append step: %w", err)
		}
		return nil
	})
}

func (s *SQLite) AddMedia(ctx context.Context, scope, id string, entry core.MediaEntry) error {
	return s.withTask(ctx, scope, id, func(tx *sql.Tx, task *core.Task) error {
		media, err := json.Marshal(append(task.Media, entry))
		if err != nil {
			return fmt.Errorf("encode media: %w", err)
		}
		_, err = tx.ExecContext(ctx, `UPDATE tasks SET media = ? WHERE scope = ? AND id = ?`,
			string(media), scope, id)
		if err != nil {
			return fmt.Errorf("append media: %w", err)
		}
		return nil
	})
}

func (s *SQLite) List(ctx context.Context, scope string, page, perPage int) (*TaskPage, error) {
	page, perPage = clampPage(page, perPage)

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM tasks WHERE scope = ?`, scope).Scan(&total); err != nil {
		return nil, fmt.Errorf("count tasks: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+taskColumns+` FROM tasks
		WHERE scope = ?
		ORDER BY created_at DESC, id ASC
		LIMIT ? OFFSET ?
	`, scope, perPage, (page-1)*perPage)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	tasks := make([]*core.Task, 0, perPage)
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &TaskPage{
		Tasks:      tasks,
		Total:      total,
		Page:       page,
		PerPage:    perPage,
		TotalPages: (total + perPage - 1) / perPage,
	}, nil
}

func (s *SQLite) Exists(ctx context.Context, scope, id string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM tasks WHERE scope = ? AND id = ?`, scope, id).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check task: %w", err)
	}
	return count > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*core.Task, error) {
	var task core.Task
	var scope, createdAt string
	var finishedAt, output, errText, browserData sql.NullString
	var steps, media, browserCfg string
	var saveBrowserData int

	err := row.Scan(&scope, &task.ID, &task.Instruction, &task.Provider, &task.Status,
		&createdAt, &finishedAt, &output, &errText,
		&steps, &media, &browserCfg, &saveBrowserData, &browserData, &task.LiveURL)
	if err != nil {
		return nil, err
	}

	if task.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if finishedAt.Valid {
		parsed, err := time.Parse(time.RFC3339Nano, finishedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse finished_at: %w", err)
		}
		task.FinishedAt = &parsed
	}
	if output.Valid {
		task.Output = &output.String
	}
	if errText.Valid {
		task.Error = &errText.String
	}
	if err := json.Unmarshal([]byte(steps), &task.Steps); err != nil {
		return nil, fmt.Errorf("decode steps: %w", err)
	}
	if err := json.Unmarshal([]byte(media), &task.Media); err != nil {
		return nil, fmt.Errorf("decode media: %w", err)
	}
	if err := json.Unmarshal([]byte(browserCfg), &task.Browser); err != nil {
		return nil, fmt.Errorf("decode browser config: %w", err)
	}
	task.SaveBrowserData = saveBrowserData != 0
	if browserData.Valid {
		var data core.BrowserData
		if err := json.Unmarshal([]byte(browserData.String), &data); err != nil {
			return nil, fmt.Errorf("decode browser data: %w", err)
		}
		task.BrowserData = &data
	}
	return &task, nil
}

func coalesceSteps(steps []core.Step) []core.Step {
	if steps == nil {
		return []core.Step{}
	}
	return steps
}

func coalesceMedia(media []core.MediaEntry) []core.MediaEntry {
	if media == nil {
		return []core.MediaEntry{}
	}
	return media
}

func nullableString(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableTime(v *time.Time) any {
	if v == nil {
		return nil
	}
	return v.UTC().Format(time.RFC3339Nano)
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func isUniqueViolation(err error) bool {
	// modernc.org/sqlite surfaces constraint failures by message; rely on
	// the SQLITE_CONSTRAINT text rather than driver-specific error types.
	return err != nil && strings.Contains(err.Error(), "constraint failed")
}
