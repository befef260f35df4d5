package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"backupd/internal/schedule"
	"backupd/internal/scheduler"
	"backupd/pkg/httpx"
)

type schedulesHandler struct {
	sched *scheduler.Scheduler
}

func (h *schedulesHandler) list(w http.ResponseWriter, _ *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, h.sched.ListSchedules())
}

func (h *schedulesHandler) get(w http.ResponseWriter, r *http.Request) {
	sc, err := h.sched.GetSchedule(chi.URLParam(r, "name"))
	if err != nil {
		writeScheduleError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, sc)
}

func (h *schedulesHandler) create(w http.ResponseWriter, r *http.Request) {
	var sc schedule.Schedule
	if err := json.NewDecoder(r.Body).Decode(&sc); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.sched.AddSchedule(&sc); err != nil {
		writeScheduleError(w, err)
		return
	}
	created, err := h.sched.GetSchedule(sc.Name)
	if err != nil {
		writeScheduleError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, created)
}

func (h *schedulesHandler) update(w http.ResponseWriter, r *http.Request) {
	var upd schedule.Schedule
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	sc, err := h.sched.UpdateSchedule(chi.URLParam(r, "name"), &upd)
	if err != nil {
		writeScheduleError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, sc)
}

func (h *schedulesHandler) remove(w http.ResponseWriter, r *http.Request) {
	if err := h.sched.RemoveSchedule(chi.URLParam(r, "name")); err != nil {
		writeScheduleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *schedulesHandler) toggle(w http.ResponseWriter, r *http.Request) {
	sc, err := h.sched.ToggleSchedule(chi.URLParam(r, "name"))
	if err != nil {
		writeScheduleError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, sc)
}

func (h *schedulesHandler) trigger(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Type schedule.BackupType `json:"type"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	exec, err := h.sched.TriggerBackup(chi.URLParam(r, "name"), body.Type)
	if err != nil {
		writeScheduleError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusAccepted, exec)
}

func writeScheduleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, schedule.ErrNotFound):
		httpx.WriteTypedError(w, http.StatusNotFound, "schedule.not_found", err.Error())
	case errors.Is(err, schedule.ErrExists):
		httpx.WriteTypedError(w, http.StatusConflict, "schedule.exists", err.Error())
	case errors.Is(err, schedule.ErrInvalidFrequency):
		httpx.WriteTypedError(w, http.StatusBadRequest, "schedule.invalid_frequency", err.Error())
	default:
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
	}
}
