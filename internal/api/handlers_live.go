package api

import (
	"encoding/json"
	"html/template"
	"net/http"

	"github.com/go-chi/chi/v5"

	"browserbridge/web"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": "API is running",
	})
}

// handleBrowserConfig reports the effective process-level browser settings.
// Paths are read-only diagnostics; they cannot be changed per request.
func (s *Server) handleBrowserConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"headful":            s.cfg.Browser.Headful,
		"chrome_path_set":    s.cfg.Browser.ChromePath != "",
		"chrome_profile_set": s.cfg.Browser.ChromeUserData != "",
		"default_provider":   s.cfg.Provider.Default,
	})
}

// handleLiveView serves the self-refreshing task page. The page polls the
// task document with the viewer's scope so media URLs resolve correctly.
func (s *Server) handleLiveView(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	scope := userScope(r)

	html, err := web.LiveViewHTML()
	if err != nil {
		s.logger.Error("live view template", "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "live view unavailable")
		return
	}

	tmpl, err := template.New("live").Parse(html)
	if err != nil {
		s.logger.Error("live view template", "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "live view unavailable")
		return
	}

	taskIDJSON, _ := json.Marshal(taskID)
	userIDJSON, _ := json.Marshal(scope)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.Execute(w, map[string]any{
		"TaskID":     taskID,
		"TaskIDJSON": template.JS(taskIDJSON),
		"UserIDJSON": template.JS(userIDJSON),
	}); err != nil {
		s.logger.Error("live view render", "err", err)
	}
}
