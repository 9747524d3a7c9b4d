package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"grimm.is/fwplan/internal/configtree"
	"grimm.is/fwplan/internal/deploy"
	"grimm.is/fwplan/internal/state"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"routers": len(s.routers.RouterNames()),
		"time":    s.clock.Now(),
	})
}

// RouterInfo describes one managed router.
type RouterInfo struct {
	Name     string `json:"name"`
	Host     string `json:"host"`
	Platform string `json:"platform"`
}

func (s *Server) handleListRouters(w http.ResponseWriter, r *http.Request) {
	names := s.routers.RouterNames()
	out := make([]RouterInfo, 0, len(names))
	for _, name := range names {
		rt, ok := s.routers.Router(name)
		if !ok {
			continue
		}
		out = append(out, RouterInfo{Name: rt.Name(), Host: rt.Host(), Platform: rt.Platform()})
	}
	WriteJSON(w, http.StatusOK, out)
}

// PlanResponse is the planned configuration of one router.
type PlanResponse struct {
	Router string                   `json:"router"`
	Trees  []*configtree.ConfigTree `json:"trees"`
}

func (s *Server) handlePlan(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if _, ok := s.routers.Router(name); !ok {
		WriteErrorCtx(w, r, http.StatusNotFound, "unknown router %s", name)
		return
	}
	trees, err := s.currentPlanner().Plan(name)
	if err != nil {
		WriteError(w, http.StatusUnprocessableEntity, "planning failed", err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, PlanResponse{Router: name, Trees: trees})
}

func (s *Server) handleListDeployments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := state.ListOptions{
		Router: q.Get("router"),
		State:  deploy.State(q.Get("state")),
		Limit:  50,
	}
	if opts.State != "" && !opts.State.Valid() {
		WriteErrorCtx(w, r, http.StatusBadRequest, "invalid state %q", q.Get("state"))
		return
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			WriteErrorCtx(w, r, http.StatusBadRequest, "invalid limit %q", v)
			return
		}
		opts.Limit = n
	}

	list, err := s.store.ListDeployments(r.Context(), opts)
	if err != nil {
		s.logger.Error("listing deployments failed", "error", err)
		WriteErrorCtx(w, r, http.StatusInternalServerError, "failed to list deployments")
		return
	}
	if list == nil {
		list = []*deploy.Deployment{}
	}
	WriteJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetDeployment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	d, err := s.store.GetDeployment(r.Context(), id)
	if errors.Is(err, state.ErrNotFound) {
		WriteErrorCtx(w, r, http.StatusNotFound, "deployment %s not found", id)
		return
	}
	if err != nil {
		s.logger.Error("loading deployment failed", "deployment", id, "error", err)
		WriteErrorCtx(w, r, http.StatusInternalServerError, "failed to load deployment")
		return
	}
	WriteJSON(w, http.StatusOK, d)
}

// CreateDeploymentRequest selects the routers to deploy. Empty means all.
type CreateDeploymentRequest struct {
	Routers []string `json:"routers"`
}

func (s *Server) handleCreateDeployment(w http.ResponseWriter, r *http.Request) {
	ip := clientIP(r)
	if !s.deployLimiter.Allow(ip) {
		WriteErrorCtx(w, r, http.StatusTooManyRequests, "deployment rate limit exceeded")
		return
	}

	var req CreateDeploymentRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
			WriteErrorCtx(w, r, http.StatusBadRequest, "invalid request body: %v", err)
			return
		}
	}
	if len(req.Routers) == 0 {
		req.Routers = s.routers.RouterNames()
	}
	for _, name := range req.Routers {
		if _, ok := s.routers.Router(name); !ok {
			WriteErrorCtx(w, r, http.StatusBadRequest, "unknown router %s", name)
			return
		}
	}

	ctx := r.Context()
	d, planErr := s.currentPlanner().Prepare(req.Routers, s.clock.Now())
	if d == nil {
		s.logger.Error("preparing deployment failed", "error", planErr)
		WriteErrorCtx(w, r, http.StatusInternalServerError, "failed to prepare deployment")
		return
	}

	if planErr == nil {
		// saved as ready before it is queued so the worker can load it
		if err := s.store.SaveDeployment(ctx, d); err != nil {
			s.logger.Error("saving deployment failed", "deployment", d.ID, "error", err)
			WriteErrorCtx(w, r, http.StatusInternalServerError, "failed to save deployment")
			return
		}
		if err := s.queue.Enqueue(d.ID); err != nil {
			planErr = err
			if ferr := d.Fail(err, s.clock.Now()); ferr != nil {
				s.logger.Error("failing unqueued deployment", "deployment", d.ID, "error", ferr)
			}
		}
	}
	if planErr != nil {
		if err := s.store.SaveDeployment(ctx, d); err != nil {
			s.logger.Error("saving failed deployment", "deployment", d.ID, "error", err)
		}
	}

	s.hub.EmitDeployment(d)
	s.logger.Audit("deployment_created", d.ID, map[string]any{
		"client":  ip,
		"routers": req.Routers,
		"state":   string(d.State),
	})

	switch {
	case planErr == nil:
		WriteJSON(w, http.StatusAccepted, d)
	case errors.Is(planErr, deploy.ErrQueueFull) || errors.Is(planErr, deploy.ErrWorkerStopped):
		WriteJSON(w, http.StatusServiceUnavailable, d)
	default:
		WriteJSON(w, http.StatusUnprocessableEntity, d)
	}
}

// DriftResponse carries the latest drift reports.
type DriftResponse struct {
	CheckedAt time.Time            `json:"checked_at,omitempty"`
	Reports   []deploy.DriftReport `json:"reports"`
	Error     string               `json:"error,omitempty"`
}

func (s *Server) handleGetDrift(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	resp := DriftResponse{CheckedAt: s.driftAt, Reports: s.driftReport}
	s.mu.RUnlock()
	if resp.Reports == nil {
		resp.Reports = []deploy.DriftReport{}
	}
	WriteJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCheckDrift(w http.ResponseWriter, r *http.Request) {
	if s.drift == nil {
		WriteErrorCtx(w, r, http.StatusNotImplemented, "drift detection is not configured")
		return
	}
	reports, err := s.drift.Check(r.Context())
	s.RecordDrift(reports)
	s.hub.EmitDrift(reports)

	resp := DriftResponse{CheckedAt: s.clock.Now(), Reports: reports}
	if resp.Reports == nil {
		resp.Reports = []deploy.DriftReport{}
	}
	if err != nil {
		resp.Error = err.Error()
	}
	WriteJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRouterDrift(w http.ResponseWriter, r *http.Request) {
	if s.drift == nil {
		WriteErrorCtx(w, r, http.StatusNotImplemented, "drift detection is not configured")
		return
	}
	name := chi.URLParam(r, "name")
	if _, ok := s.routers.Router(name); !ok {
		WriteErrorCtx(w, r, http.StatusNotFound, "unknown router %s", name)
		return
	}
	report, err := s.drift.CheckRouter(r.Context(), name)
	if err != nil {
		WriteError(w, http.StatusBadGateway, "drift check failed", err.Error())
		return
	}
	if report == nil {
		// busy or never deployed
		w.WriteHeader(http.StatusNoContent)
		return
	}
	WriteJSON(w, http.StatusOK, report)
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	if s.tasks == nil {
		WriteJSON(w, http.StatusOK, []any{})
		return
	}
	WriteJSON(w, http.StatusOK, s.tasks.GetStatus())
}

func (s *Server) handleRunTask(w http.ResponseWriter, r *http.Request) {
	if s.tasks == nil {
		WriteErrorCtx(w, r, http.StatusNotImplemented, "scheduler is not running")
		return
	}
	id := chi.URLParam(r, "id")
	if err := s.tasks.RunTask(id); err != nil {
		WriteError(w, http.StatusNotFound, "cannot run task", err.Error())
		return
	}
	WriteJSON(w, http.StatusAccepted, map[string]string{"status": "started", "task": id})
}
