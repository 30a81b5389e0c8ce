// Package media writes, indexes and serves the artifacts captured during task
// execution. Capture is deliberately non-fatal: a failed screenshot must never
// fail the task that triggered it.
package media

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"browserbridge/internal/core"
	"browserbridge/internal/engine"
	"browserbridge/internal/store"
)

// Pipeline captures screenshots for running tasks and reconstructs media
// listings from the filesystem when the task document has none.
type Pipeline struct {
	root   string
	store  store.Store
	logger *slog.Logger
}

func NewPipeline(root string, st store.Store, logger *slog.Logger) *Pipeline {
	return &Pipeline{root: root, store: st, logger: logger}
}

// Root returns the media root directory.
func (p *Pipeline) Root() string { return p.root }

// TaskDir returns the media directory for a task without creating it.
func (p *Pipeline) TaskDir(taskID string) string {
	return filepath.Join(p.root, taskID)
}

// EnsureTaskDir creates the media directory for a task.
func (p *Pipeline) EnsureTaskDir(taskID string) (string, error) {
	dir := p.TaskDir(taskID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create media dir: %w", err)
	}
	return dir, nil
}

// Capture takes a screenshot of the agent's current page and records it on
// the task document. All failures are logged and swallowed; the first page of
// a fresh session is always about:blank and is skipped rather than captured.
func (p *Pipeline) Capture(ctx context.Context, agent engine.Agent, scope, taskID string) {
	if agent == nil {
		return
	}
	session := agent.Session()
	if session == nil {
		return
	}

	url, err := session.CurrentURL(ctx)
	if err != nil {
		p.logger.Debug("screenshot skipped, current url unavailable", "task_id", taskID, "error", err)
		return
	}
	if url == "" || url == "about:blank" {
		return
	}

	task, err := p.store.Get(ctx, scope, taskID)
	if err != nil {
		p.logger.Warn("screenshot skipped, task lookup failed", "task_id", taskID, "error", err)
		return
	}

	data, err := session.TakeScreenshot(ctx, true)
	if err != nil {
		p.logger.Warn("screenshot failed", "task_id", taskID, "error", err)
		return
	}
	if len(data) == 0 {
		p.logger.Warn("screenshot produced no data", "task_id", taskID)
		return
	}

	dir, err := p.EnsureTaskDir(taskID)
	if err != nil {
		p.logger.Warn("screenshot not written", "task_id", taskID, "error", err)
		return
	}

	filename := captureFilename(task)
	path := filepath.Join(dir, filename)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		p.logger.Warn("screenshot write failed", "task_id", taskID, "error", err)
		return
	}

	entry := core.MediaEntry{
		URL:       "/media/" + taskID + "/" + filename,
		Type:      core.MediaTypeScreenshot,
		Filename:  filename,
		CreatedAt: time.Now().UTC(),
	}
	if err := p.store.AddMedia(ctx, scope, taskID, entry); err != nil {
		p.logger.Warn("media entry not recorded", "task_id", taskID, "error", err)
	}
}

// captureFilename names a screenshot after the phase it was taken in. The
// nanosecond suffix keeps rapid successive captures from colliding.
func captureFilename(task *core.Task) string {
	now := time.Now().UTC()
	ts := fmt.Sprintf("%s-%09d", now.Format("20060102-150405"), now.Nanosecond())

	switch task.Status {
	case core.StatusFinished:
		return fmt.Sprintf("final-%s.png", ts)
	case core.StatusRunning:
		// Step numbering trails the capture by one page: by the time step N
		// is recorded the browser already shows the page for step N+1.
		label := "initial"
		if n := len(task.Steps); n > 1 {
			label = fmt.Sprintf("%d", task.Steps[n-1].Number-1)
		}
		return fmt.Sprintf("status-step-%s-%s.png", label, ts)
	default:
		return fmt.Sprintf("status-%s-%s.png", task.Status, ts)
	}
}

// List returns the media entries for a task. When the document carries none
// but files exist on disk (a restart lost the in-memory doc, say), entries
// are rebuilt from the filesystem and persisted back onto the document.
func (p *Pipeline) List(ctx context.Context, scope, taskID string) ([]core.MediaEntry, error) {
	task, err := p.store.Get(ctx, scope, taskID)
	if err != nil {
		return nil, err
	}
	if len(task.Media) > 0 {
		return task.Media, nil
	}

	entries, err := p.scanDir(taskID)
	if err != nil || len(entries) == 0 {
		return nil, err
	}
	for _, entry := range entries {
		if err := p.store.AddMedia(ctx, scope, taskID, entry); err != nil {
			p.logger.Warn("reconstructed media entry not recorded", "task_id", taskID, "error", err)
			break
		}
	}
	return entries, nil
}

// FileInfo describes one media file on disk for listing endpoints.
type FileInfo struct {
	Filename  string    `json:"filename"`
	Type      string    `json:"type"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
	URL       string    `json:"url"`
}

// FileInfos lists the files in a task's media directory with sizes and
// modification times, newest first.
func (p *Pipeline) FileInfos(taskID string) ([]FileInfo, error) {
	dir := p.TaskDir(taskID)
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read media dir: %w", err)
	}

	infos := make([]FileInfo, 0, len(dirEntries))
	for _, de := range dirEntries {
		if de.IsDir() {
			continue
		}
		fi, err := de.Info()
		if err != nil {
			continue
		}
		infos = append(infos, FileInfo{
			Filename:  de.Name(),
			Type:      TypeForExt(de.Name()),
			Size:      fi.Size(),
			CreatedAt: fi.ModTime().UTC(),
			URL:       "/media/" + taskID + "/" + de.Name(),
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].CreatedAt.After(infos[j].CreatedAt) })
	return infos, nil
}

func (p *Pipeline) scanDir(taskID string) ([]core.MediaEntry, error) {
	infos, err := p.FileInfos(taskID)
	if err != nil {
		return nil, err
	}
	entries := make([]core.MediaEntry, 0, len(infos))
	for _, fi := range infos {
		entries = append(entries, core.MediaEntry{
			URL:       fi.URL,
			Type:      fi.Type,
			Filename:  fi.Filename,
			CreatedAt: fi.CreatedAt,
		})
	}
	return entries, nil
}

// TypeForExt classifies a media file by its extension.
func TypeForExt(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".png", ".jpg", ".jpeg":
		return core.MediaTypeScreenshot
	case ".mp4", ".webm":
		return core.MediaTypeRecording
	default:
		return core.MediaTypeUnknown
	}
}
