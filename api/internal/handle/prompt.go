package handle

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"insights-proxy/api/internal/insights/types"
)

type UpdatePromptRequest struct {
	Task string `json:"task"`
	Text string `json:"text"`
}

type UpdatePromptResponse struct {
	OK      bool   `json:"ok"`
	Task    string `json:"task"`
	Path    string `json:"path"`
	Size    int    `json:"size"`
	Updated string `json:"updated"`
}

// UpdatePrompt replaces the prompt template of one task. The file is written atomically and the
// next request for that task renders with it.
func (h *Handle) UpdatePrompt(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.prompts == nil {
		http.Error(w, "prompt overrides are disabled", http.StatusNotFound)
		return
	}
	defer r.Body.Close()

	var req UpdatePromptRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	if err := dec.Decode(&req); err != nil {
		http.Error(w, "bad json: "+err.Error(), http.StatusBadRequest)
		return
	}
	task, err := types.ParseTask(strings.TrimSpace(req.Task))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		http.Error(w, "text is empty", http.StatusBadRequest)
		return
	}

	path, err := h.prompts.Save(task, req.Text)
	if err != nil {
		http.Error(w, "save prompt: "+err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, UpdatePromptResponse{
		OK:      true,
		Task:    string(task),
		Path:    path,
		Size:    len(req.Text),
		Updated: time.Now().UTC().Format(time.RFC3339),
	})
}
