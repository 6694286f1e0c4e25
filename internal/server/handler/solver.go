package handler

import (
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mrheyday/futarchy-arbitrage-sub000/internal/compliance"
	"github.com/mrheyday/futarchy-arbitrage-sub000/internal/domain"
	"github.com/mrheyday/futarchy-arbitrage-sub000/internal/service"
)

// SolverHandler serves the reputation and compliance endpoints.
type SolverHandler struct {
	svc      *service.ResolutionService
	registry *compliance.Registry
	admin    common.Address
	required uint64
	logger   *slog.Logger
}

// NewSolverHandler creates a SolverHandler. Flag mutation is restricted to
// the admin address; required is the flag mask solvers must carry to pass
// the resolution gate.
func NewSolverHandler(svc *service.ResolutionService, registry *compliance.Registry, admin common.Address, required uint64, logger *slog.Logger) *SolverHandler {
	return &SolverHandler{
		svc:      svc,
		registry: registry,
		admin:    admin,
		required: required,
		logger:   logHandler(logger, "solver"),
	}
}

type adjustReputationRequest struct {
	Caller string `json:"caller"`
	Delta  int64  `json:"delta"`
}

type setFlagsRequest struct {
	Caller string `json:"caller"`
	Mask   uint64 `json:"mask"`
}

// GetReputation returns a solver's log-scaled reputation score.
// GET /api/solvers/{solver}/reputation
func (h *SolverHandler) GetReputation(w http.ResponseWriter, r *http.Request) {
	solver, err := parseAddress(pathParam(r, "solver"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"solver":     solver.Hex(),
		"reputation": h.svc.Reputation(solver),
	})
}

// AdjustReputation applies a signed raw delta to a solver's reputation.
// Admin only.
// POST /api/solvers/{solver}/reputation
func (h *SolverHandler) AdjustReputation(w http.ResponseWriter, r *http.Request) {
	solver, err := parseAddress(pathParam(r, "solver"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req adjustReputationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	score, err := h.svc.AdjustReputation(r.Context(), caller, solver, req.Delta)
	if err != nil {
		writeError(w, errStatus(err), err.Error())
		return
	}

	h.logger.Info("reputation adjusted",
		slog.String("solver", solver.Hex()),
		slog.Int64("delta", req.Delta),
		slog.Int64("score", score),
	)
	writeJSON(w, http.StatusOK, map[string]any{
		"solver":     solver.Hex(),
		"reputation": score,
	})
}

// GetCompliance returns a solver's flag mask and whether it clears the
// configured gate.
// GET /api/solvers/{solver}/compliance
func (h *SolverHandler) GetCompliance(w http.ResponseWriter, r *http.Request) {
	solver, err := parseAddress(pathParam(r, "solver"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"solver":    solver.Hex(),
		"flags":     h.registry.Flags(solver),
		"compliant": h.registry.Check(solver, h.required),
	})
}

// SetCompliance replaces a solver's flag mask. Admin only.
// POST /api/solvers/{solver}/compliance
func (h *SolverHandler) SetCompliance(w http.ResponseWriter, r *http.Request) {
	solver, err := parseAddress(pathParam(r, "solver"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req setFlagsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if caller != h.admin {
		writeError(w, http.StatusForbidden, domain.ErrUnauthorized.Error())
		return
	}

	h.registry.SetFlags(r.Context(), solver, req.Mask)
	writeJSON(w, http.StatusOK, map[string]any{
		"solver": solver.Hex(),
		"flags":  req.Mask,
	})
}
