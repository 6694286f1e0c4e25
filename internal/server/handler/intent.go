package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/mrheyday/futarchy-arbitrage-sub000/internal/domain"
	"github.com/mrheyday/futarchy-arbitrage-sub000/internal/service"
)

// IntentHandler serves the intent submission and resolution endpoints.
type IntentHandler struct {
	svc    *service.ResolutionService
	logger *slog.Logger
}

// NewIntentHandler creates an IntentHandler backed by the resolution service.
func NewIntentHandler(svc *service.ResolutionService, logger *slog.Logger) *IntentHandler {
	return &IntentHandler{svc: svc, logger: logHandler(logger, "intent")}
}

type submitIntentRequest struct {
	ID        string `json:"id"`
	Submitter string `json:"submitter"`
	Payload   string `json:"payload"` // 0x-prefixed hex
}

type resolveIntentRequest struct {
	Solver       string `json:"solver"`
	Proof        string `json:"proof,omitempty"`
	CallbackData string `json:"callback_data,omitempty"`
	LoanToken    string `json:"loan_token,omitempty"`
	LoanAmount   string `json:"loan_amount,omitempty"`
}

type batchResolveRequest struct {
	IDs     []string `json:"ids"`
	Solvers []string `json:"solvers"`
}

type intentView struct {
	ID          string    `json:"id"`
	Submitter   string    `json:"submitter"`
	Payload     string    `json:"payload"`
	Resolver    *string   `json:"resolver,omitempty"`
	Status      string    `json:"status"`
	SubmittedAt time.Time `json:"submitted_at"`
}

func newIntentView(in domain.Intent) intentView {
	v := intentView{
		ID:          in.ID.Hex(),
		Submitter:   in.Submitter.Hex(),
		Payload:     hexutil.Encode(in.Payload),
		Status:      string(in.Status),
		SubmittedAt: in.SubmittedAt,
	}
	if in.Resolver != nil {
		hex := in.Resolver.Hex()
		v.Resolver = &hex
	}
	return v
}

// SubmitIntent registers a new intent.
// POST /api/intents
func (h *IntentHandler) SubmitIntent(w http.ResponseWriter, r *http.Request) {
	var req submitIntentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	id, err := parseHash(req.ID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	submitter, err := parseAddress(req.Submitter)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	payload, err := hexutil.Decode(req.Payload)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload hex")
		return
	}

	if err := h.svc.Submit(r.Context(), id, submitter, payload); err != nil {
		writeError(w, errStatus(err), err.Error())
		return
	}

	in, err := h.svc.Get(id)
	if err != nil {
		writeError(w, errStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, newIntentView(in))
}

// GetIntent returns a single intent by id.
// GET /api/intents/{id}
func (h *IntentHandler) GetIntent(w http.ResponseWriter, r *http.Request) {
	id, err := parseHash(pathParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	in, err := h.svc.Get(id)
	if err != nil {
		writeError(w, errStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, newIntentView(in))
}

// ResolveIntent runs a single resolution attempt for the intent.
// POST /api/intents/{id}/resolve
func (h *IntentHandler) ResolveIntent(w http.ResponseWriter, r *http.Request) {
	id, err := parseHash(pathParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req resolveIntentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	solver, err := parseAddress(req.Solver)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	data, err := buildExecData(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.svc.Resolve(r.Context(), id, solver, data); err != nil {
		h.logger.Warn("resolve failed",
			slog.String("intent", id.Hex()),
			slog.String("solver", solver.Hex()),
			slog.String("error", err.Error()),
		)
		writeError(w, errStatus(err), err.Error())
		return
	}

	in, err := h.svc.Get(id)
	if err != nil {
		writeError(w, errStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, newIntentView(in))
}

// BatchResolve resolves a batch of intents atomically.
// POST /api/intents/batch
func (h *IntentHandler) BatchResolve(w http.ResponseWriter, r *http.Request) {
	var req batchResolveRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ids := make([]common.Hash, len(req.IDs))
	for i, raw := range req.IDs {
		id, err := parseHash(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		ids[i] = id
	}
	solvers := make([]common.Address, len(req.Solvers))
	for i, raw := range req.Solvers {
		solver, err := parseAddress(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		solvers[i] = solver
	}

	if err := h.svc.BatchResolve(r.Context(), ids, solvers); err != nil {
		writeError(w, errStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"resolved": len(ids),
	})
}

// AbandonIntent marks a submitted intent as failed. Admin only.
// POST /api/intents/{id}/abandon
func (h *IntentHandler) AbandonIntent(w http.ResponseWriter, r *http.Request) {
	id, err := parseHash(pathParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req struct {
		Caller string `json:"caller"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.svc.Abandon(r.Context(), caller, id); err != nil {
		writeError(w, errStatus(err), err.Error())
		return
	}

	in, err := h.svc.Get(id)
	if err != nil {
		writeError(w, errStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, newIntentView(in))
}

func buildExecData(req resolveIntentRequest) (domain.ExecData, error) {
	var data domain.ExecData

	if req.Proof != "" {
		b, err := hexutil.Decode(req.Proof)
		if err != nil {
			return data, err
		}
		data.Proof = b
	}
	if req.CallbackData != "" {
		b, err := hexutil.Decode(req.CallbackData)
		if err != nil {
			return data, err
		}
		data.CallbackData = b
	}
	if req.LoanAmount != "" {
		amount, err := parseAmount(req.LoanAmount)
		if err != nil {
			return data, err
		}
		token, err := parseAddress(req.LoanToken)
		if err != nil {
			return data, err
		}
		data.LoanToken = token
		data.LoanAmount = amount
	}
	return data, nil
}
