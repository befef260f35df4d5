package server

import (
	"net/http"

	"backupd/pkg/httpx"
)

func (h *schedulesHandler) status(w http.ResponseWriter, _ *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, h.sched.Status())
}

func (h *schedulesHandler) start(w http.ResponseWriter, _ *http.Request) {
	h.sched.Start()
	httpx.WriteJSON(w, http.StatusOK, map[string]bool{"running": h.sched.Running()})
}

func (h *schedulesHandler) stop(w http.ResponseWriter, _ *http.Request) {
	h.sched.Stop()
	httpx.WriteJSON(w, http.StatusOK, map[string]bool{"running": h.sched.Running()})
}
