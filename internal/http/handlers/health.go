package handlers

import (
	"net/http"
)

type healthResponse struct {
	Status  string `json:"status"`
	Running bool   `json:"batch_running"`
	Jobs    int    `json:"jobs"`
	Journal bool   `json:"journal"`
}

// Health reports liveness along with a cheap view of the batch.
func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Journal: a.Journal != nil}
	if a.Scheduler != nil {
		stats := a.Scheduler.Stats()
		resp.Running = stats.Running
		resp.Jobs = stats.Total
	}
	a.json(w, http.StatusOK, resp)
}
