package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"browserbridge/internal/core"
)

// Memory is a process-lifetime Store keeping task documents in scoped maps.
type Memory struct {
	mu     sync.RWMutex
	scopes map[string]map[string]*core.Task
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{scopes: make(map[string]map[string]*core.Task)}
}

func (m *Memory) Create(ctx context.Context, scope string, task *core.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tasks, ok := m.scopes[scope]
	if !ok {
		tasks = make(map[string]*core.Task)
		m.scopes[scope] = tasks
	}
	if _, exists := tasks[task.ID]; exists {
		return ErrTaskExists
	}
	tasks[task.ID] = task.Clone()
	return nil
}

func (m *Memory) Get(ctx context.Context, scope, id string) (*core.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	task, ok := m.scopes[scope][id]
	if !ok {
		return nil, ErrTaskNotFound
	}
	return task.Clone(), nil
}

// mutate runs fn against the live document under the write lock.
func (m *Memory) mutate(scope, id string, fn func(task *core.Task) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.scopes[scope][id]
	if !ok {
		return ErrTaskNotFound
	}
	return fn(task)
}

func (m *Memory) Update(ctx context.Context, scope, id string, patch TaskPatch) error {
	return m.mutate(scope, id, func(task *core.Task) error {
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
		return nil
	})
}

func (m *Memory) UpdateStatus(ctx context.Context, scope, id string, status core.TaskStatus) error {
	return m.Update(ctx, scope, id, TaskPatch{Status: &status})
}

func (m *Memory) SetOutput(ctx context.Context, scope, id, output string) error {
	return m.mutate(scope, id, func(task *core.Task) error {
		task.Output = &output
		return nil
	})
}

func (m *Memory) SetError(ctx context.Context, scope, id, errText string) error {
	return m.mutate(scope, id, func(task *core.Task) error {
		task.Error = &errText
		return nil
	})
}

func (m *Memory) MarkFinished(ctx context.Context, scope, id string, terminal core.TaskStatus) error {
	return m.mutate(scope, id, func(task *core.Task) error {
		if task.Status.Terminal() {
			return nil
		}
		task.Status = terminal
		if task.FinishedAt == nil {
			now := time.Now().UTC()
			task.FinishedAt = &now
		}
		return nil
	})
}

func (m *Memory) AddStep(ctx context.Context, scope, id string, step core.Step) error {
	return m.mutate(scope, id, func(task *core.Task) error {
		task.Steps = append(task.Steps, step)
		return nil
	})
}

func (m *Memory) AddMedia(ctx context.Context, scope, id string, entry core.MediaEntry) error {
	return m.mutate(scope, id, func(task *core.Task) error {
		task.Media = append(task.Media, entry)
		return nil
	})
}

func (m *Memory) List(ctx context.Context, scope string, page, perPage int) (*TaskPage, error) {
	page, perPage = clampPage(page, perPage)

	m.mu.RLock()
	tasks := make([]*core.Task, 0, len(m.scopes[scope]))
	for _, task := range m.scopes[scope] {
		tasks = append(tasks, task.Clone())
	}
	m.mu.RUnlock()

	sort.Slice(tasks, func(i, j int) bool {
		if tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].ID < tasks[j].ID
		}
		return tasks[i].CreatedAt.After(tasks[j].CreatedAt)
	})

	total := len(tasks)
	totalPages := (total + perPage - 1) / perPage
	start := (page - 1) * perPage
	if start > total {
		start = total
	}
	end := start + perPage
	if end > total {
		end = total
	}

	return &TaskPage{
		Tasks:      tasks[start:end],
		Total:      total,
		Page:       page,
		PerPage:    perPage,
		TotalPages: totalPages,
	}, nil
}

func (m *Memory) Exists(ctx context.Context, scope, id string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.scopes[scope][id]
	return ok, nil
}
