package server

import (
	"encoding/json"
	"net/http"
	"time"

	"backupd/internal/config"
	"backupd/internal/scheduler"
	"backupd/pkg/httpx"
)

type presetsHandler struct {
	sched   *scheduler.Scheduler
	presets map[string]config.Preset
}

func (h *presetsHandler) list(w http.ResponseWriter, _ *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, h.presets)
}

// instantiate creates a schedule from a named preset.
func (h *presetsHandler) instantiate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Preset string `json:"preset"`
		Name   string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	p, ok := h.presets[body.Preset]
	if !ok {
		httpx.WriteTypedError(w, http.StatusNotFound, "preset.not_found", "unknown preset: "+body.Preset)
		return
	}
	name := body.Name
	if name == "" {
		name = body.Preset
	}
	sc, err := p.Instantiate(name, time.Now())
	if err != nil {
		writeScheduleError(w, err)
		return
	}
	if err := h.sched.AddSchedule(sc); err != nil {
		writeScheduleError(w, err)
		return
	}
	created, err := h.sched.GetSchedule(name)
	if err != nil {
		writeScheduleError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, created)
}
