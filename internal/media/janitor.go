package media

import (
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"
)

// Janitor periodically removes zero-byte artifacts left behind by interrupted
// captures. A screenshot that died between create and write stays empty
// forever; everything else is left alone.
type Janitor struct {
	root   string
	cron   *cron.Cron
	logger *slog.Logger

	// minAge protects files that are mid-write during the sweep.
	minAge time.Duration
}

func NewJanitor(root string, logger *slog.Logger) *Janitor {
	return &Janitor{
		root:   root,
		cron:   cron.New(),
		logger: logger,
		minAge: time.Minute,
	}
}

// Start schedules the sweep. It returns an error only when the schedule spec
// itself is invalid.
func (j *Janitor) Start() error {
	if _, err := j.cron.AddFunc("@every 5m", j.sweep); err != nil {
		return err
	}
	j.cron.Start()
	return nil
}

// Stop halts the schedule and waits for an in-flight sweep to finish.
func (j *Janitor) Stop() {
	ctx := j.cron.Stop()
	<-ctx.Done()
}

func (j *Janitor) sweep() {
	cutoff := time.Now().Add(-j.minAge)
	removed := 0

	err := filepath.WalkDir(j.root, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.Size() == 0 && info.ModTime().Before(cutoff) {
			if err := os.Remove(path); err != nil {
				j.logger.Warn("janitor could not remove empty file", "path", path, "error", err)
				return nil
			}
			removed++
		}
		return nil
	})
	if err != nil {
		j.logger.Warn("media sweep failed", "error", err)
		return
	}
	if removed > 0 {
		j.logger.Info("media sweep removed empty files", "count", removed)
	}
}
