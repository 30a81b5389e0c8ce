package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"browserbridge/internal/executor"
	"browserbridge/internal/store"
)

type submitTaskRequest struct {
	Task            string `json:"task"`
	Provider        string `json:"ai_provider"`
	SaveBrowserData bool   `json:"save_browser_data"`
	Headful         *bool  `json:"headful"`
	UseCustomChrome *bool  `json:"use_custom_chrome"`
}

type submitTaskResponse struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	LiveURL string `json:"live_url"`
}

type taskStatusResponse struct {
	Status string  `json:"status"`
	Output *string `json:"output"`
	Error  *string `json:"error"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func (s *Server) handleSubmitTask(w http.ResponseWriter, r *http.Request) {
	var req submitTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	task, err := s.controller.Submit(r.Context(), userScope(r), executor.SubmitRequest{
		Instruction:     req.Task,
		Provider:        req.Provider,
		SaveBrowserData: req.SaveBrowserData,
		Headful:         req.Headful,
		UseCustomChrome: req.UseCustomChrome,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, submitTaskResponse{
		ID:      task.ID,
		Status:  string(task.Status),
		LiveURL: task.LiveURL,
	})
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	page := queryInt(r, "page", 1)
	perPage := queryInt(r, "per_page", 100)

	result, err := s.controller.List(r.Context(), userScope(r), page, perPage)
	if err != nil {
		s.logger.Error("list tasks", "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "failed to list tasks")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.controller.Get(r.Context(), userScope(r), chi.URLParam(r, "taskID"))
	if err != nil {
		writeStoreError(w, s, err, "get task")
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleTaskStatus(w http.ResponseWriter, r *http.Request) {
	task, err := s.controller.Observe(r.Context(), userScope(r), chi.URLParam(r, "taskID"))
	if err != nil {
		writeStoreError(w, s, err, "task status")
		return
	}
	writeJSON(w, http.StatusOK, taskStatusResponse{
		Status: string(task.Status),
		Output: task.Output,
		Error:  task.Error,
	})
}

func (s *Server) handleStopTask(w http.ResponseWriter, r *http.Request) {
	s.handleControl(w, r, s.controller.Stop)
}

func (s *Server) handlePauseTask(w http.ResponseWriter, r *http.Request) {
	s.handleControl(w, r, s.controller.Pause)
}

func (s *Server) handleResumeTask(w http.ResponseWriter, r *http.Request) {
	s.handleControl(w, r, s.controller.Resume)
}

func (s *Server) handleControl(w http.ResponseWriter, r *http.Request,
	op func(ctx context.Context, scope, id string) (string, error)) {
	message, err := op(r.Context(), userScope(r), chi.URLParam(r, "taskID"))
	if err != nil {
		writeStoreError(w, s, err, "task control")
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: message})
}

func writeStoreError(w http.ResponseWriter, s *Server, err error, op string) {
	if errors.Is(err, store.ErrTaskNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "task not found")
		return
	}
	s.logger.Error(op, "err", err)
	writeError(w, http.StatusInternalServerError, "internal", "internal error")
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	payload := map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	}
	writeJSON(w, status, payload)
}
