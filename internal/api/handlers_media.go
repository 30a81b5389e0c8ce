package api

import (
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"browserbridge/internal/media"
)

// handleTaskMedia returns the capture URLs for a completed task. Media for a
// task still in flight is withheld rather than returned partially.
func (s *Server) handleTaskMedia(w http.ResponseWriter, r *http.Request) {
	scope := userScope(r)
	taskID := chi.URLParam(r, "taskID")

	task, err := s.controller.Get(r.Context(), scope, taskID)
	if err != nil {
		writeStoreError(w, s, err, "task media")
		return
	}
	if !task.Status.Terminal() {
		writeError(w, http.StatusBadRequest, "task_not_finished", "Media only available for completed tasks")
		return
	}

	entries, err := s.controller.Media(r.Context(), scope, taskID)
	if err != nil {
		writeStoreError(w, s, err, "task media")
		return
	}

	typeFilter := r.URL.Query().Get("type")
	urls := make([]string, 0, len(entries))
	for _, entry := range entries {
		if typeFilter != "" && entry.Type != typeFilter {
			continue
		}
		urls = append(urls, entry.URL)
	}
	writeJSON(w, http.StatusOK, map[string]any{"recordings": urls})
}

func (s *Server) handleTaskMediaList(w http.ResponseWriter, r *http.Request) {
	scope := userScope(r)
	taskID := chi.URLParam(r, "taskID")

	exists, err := s.controller.Exists(r.Context(), scope, taskID)
	if err != nil {
		s.logger.Error("task media list", "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
		return
	}
	if !exists {
		writeError(w, http.StatusNotFound, "not_found", "task not found")
		return
	}

	infos, err := s.controller.MediaFiles(taskID)
	if err != nil {
		s.logger.Error("task media list", "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "failed to read media directory")
		return
	}
	if infos == nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"media":   []media.FileInfo{},
			"count":   0,
			"message": "No media directory found for this task",
		})
		return
	}

	typeFilter := r.URL.Query().Get("type")
	filtered := make([]media.FileInfo, 0, len(infos))
	for _, info := range infos {
		if typeFilter != "" && info.Type != typeFilter {
			continue
		}
		filtered = append(filtered, info)
	}
	writeJSON(w, http.StatusOK, map[string]any{"media": filtered, "count": len(filtered)})
}

// handleMediaFile serves one raw capture file. The task must exist in the
// caller's scope, and the filename may not escape the task's directory.
func (s *Server) handleMediaFile(w http.ResponseWriter, r *http.Request) {
	scope := userScope(r)
	taskID := chi.URLParam(r, "taskID")
	filename := chi.URLParam(r, "filename")

	exists, err := s.controller.Exists(r.Context(), scope, taskID)
	if err != nil {
		s.logger.Error("media file", "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
		return
	}
	if !exists {
		writeError(w, http.StatusNotFound, "not_found", "task not found")
		return
	}

	if filename != filepath.Base(filename) || strings.Contains(filename, "..") {
		writeError(w, http.StatusBadRequest, "invalid_input", "invalid filename")
		return
	}

	path := filepath.Join(s.controller.MediaDir(taskID), filename)
	if _, err := os.Stat(path); err != nil {
		writeError(w, http.StatusNotFound, "not_found", "media file not found")
		return
	}

	contentType := mime.TypeByExtension(filepath.Ext(filename))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)

	disposition := "inline"
	if r.URL.Query().Get("download") == "true" {
		disposition = "attachment"
	}
	w.Header().Set("Content-Disposition", disposition+`; filename="`+filename+`"`)

	http.ServeFile(w, r, path)
}
