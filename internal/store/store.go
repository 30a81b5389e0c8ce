// Package store provides the multi-tenant task store contract and its
// memory and sqlite implementations, plus the transient agent-handle
// registry. Every operation is scoped by (user scope, task id); no
// operation reads or writes outside its own scope.
package store

import (
	"context"
	"errors"

	"browserbridge/internal/core"
)

var (
	ErrTaskNotFound  = errors.New("task not found")
	ErrTaskExists    = errors.New("task already exists")
	ErrTerminalState = errors.New("task is in a terminal state")
)

// DefaultScope is the user scope applied when a caller supplies none.
const DefaultScope = "default"

// MaxPerPage bounds list response size.
const MaxPerPage = 1000

// TaskPatch is a partial update; nil fields are left untouched.
type TaskPatch struct {
	Status      *core.TaskStatus
	Output      *string
	Error       *string
	BrowserData *core.BrowserData
}

// TaskPage is one page of a scoped task listing.
type TaskPage struct {
	Tasks      []*core.Task `json:"tasks"`
	Total      int          `json:"total_count"`
	Page       int          `json:"page"`
	PerPage    int          `json:"per_page"`
	TotalPages int          `json:"total_pages"`
}

// Store is the persistence contract for task documents. Each mutator is
// atomic with respect to other mutators on the same (scope, id); status
// changes on terminal documents are refused with ErrTerminalState, and
// MarkFinished sets the completion timestamp exactly once.
type Store interface {
	Create(ctx context.Context, scope string, task *core.Task) error
	Get(ctx context.Context, scope, id string) (*core.Task, error)
	Update(ctx context.Context, scope, id string, patch TaskPatch) error
	UpdateStatus(ctx context.Context, scope, id string, status core.TaskStatus) error
	SetOutput(ctx context.Context, scope, id, output string) error
	SetError(ctx context.Context, scope, id, errText string) error
	MarkFinished(ctx context.Context, scope, id string, terminal core.TaskStatus) error
	AddStep(ctx context.Context, scope, id string, step core.Step) error
	AddMedia(ctx context.Context, scope, id string, entry core.MediaEntry) error
	List(ctx context.Context, scope string, page, perPage int) (*TaskPage, error)
	Exists(ctx context.Context, scope, id string) (bool, error)
}

// clampPage normalises pagination arguments per the listing contract.
func clampPage(page, perPage int) (int, int) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 1
	}
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}
	return page, perPage
}
