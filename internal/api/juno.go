package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/NoaSEED/juno-starknet-node-setup/internal/jobs"
	"github.com/NoaSEED/juno-starknet-node-setup/internal/middleware"
	"github.com/NoaSEED/juno-starknet-node-setup/internal/monitor"
	"github.com/NoaSEED/juno-starknet-node-setup/internal/node"
)

type controlRequest struct {
	Action string `json:"action"`
}

type controlResponse struct {
	Success bool                `json:"success"`
	Message string              `json:"message"`
	Job     *jobs.ControlStatus `json:"job"`
}

func (s *Server) handleNodeStatus(w http.ResponseWriter, r *http.Request) {
	raw, err := s.deps.Node.RawStatus(r.Context())
	if err != nil {
		s.proxyError(w, r, "Error al obtener estado del nodo", err)
		return
	}
	writeRaw(w, raw)
}

func (s *Server) handleNetInfo(w http.ResponseWriter, r *http.Request) {
	raw, err := s.deps.Node.RawNetInfo(r.Context())
	if err != nil {
		s.proxyError(w, r, "Error al obtener información de red", err)
		return
	}
	writeRaw(w, raw)
}

// proxyError answers 502 with the passthrough error shape the front-end reads.
func (s *Server) proxyError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	s.deps.ErrHandler.Handle(r.Context(), err)
	middleware.WriteJSON(w, http.StatusBadGateway, errorBody{Error: msg})
}

func writeRaw(w http.ResponseWriter, raw json.RawMessage) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}

func (s *Server) handleSystem(w http.ResponseWriter, r *http.Request) {
	info := &monitor.SystemInfo{
		Uptime:  node.NotAvailable,
		CPULoad: node.NotAvailable,
		Memory:  node.NotAvailable,
		Disk:    node.NotAvailable,
	}

	if s.deps.System != nil {
		probed, err := s.deps.System.SystemInfo(r.Context())
		if err != nil {
			s.proxyError(w, r, "Error al obtener información del sistema", err)
			return
		}
		if probed != nil {
			info = probed
		}
	}

	middleware.WriteJSON(w, http.StatusOK, info)
}

func (s *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	var req controlRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		s.writeError(w, r, node.ErrInvalidAction)
		return
	}

	action, err := node.ParseAction(req.Action)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	requestedBy := "web"
	if mgr := managerFrom(r.Context()); mgr != nil {
		if user := mgr.State().User; user != nil {
			requestedBy = "web:" + user.Username
		}
	}

	st, err := s.deps.Control.Dispatch(r.Context(), action, requestedBy)
	if err != nil && (st == nil || st.State != jobs.StateFailed) {
		s.writeError(w, r, err)
		return
	}
	if err != nil {
		s.log.WarnContext(r.Context(), "node control failed",
			"action", string(action),
			"error", err,
		)
	}

	switch st.State {
	case jobs.StateFailed:
		middleware.WriteJSON(w, http.StatusBadGateway, controlResponse{
			Message: fmt.Sprintf("Error al %s el nodo", action),
			Job:     st,
		})
	case jobs.StateCompleted:
		middleware.WriteJSON(w, http.StatusOK, controlResponse{
			Success: true,
			Message: fmt.Sprintf("Nodo %s ejecutado", action),
			Job:     st,
		})
	default:
		middleware.WriteJSON(w, http.StatusAccepted, controlResponse{
			Success: true,
			Message: fmt.Sprintf("Nodo %s encolado", action),
			Job:     st,
		})
	}
}

func (s *Server) handleControlStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.deps.Control.Status(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		if !errors.Is(err, jobs.ErrTaskNotFound) {
			s.log.WarnContext(r.Context(), "control status lookup failed", "error", err)
		}
		s.writeError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, st)
}
