package handler

import (
	"log/slog"
	"net/http"

	"github.com/mrheyday/futarchy-arbitrage-sub000/internal/treasury"
)

// TreasuryHandler serves the treasury ledger endpoints.
type TreasuryHandler struct {
	ledger *treasury.Ledger
	logger *slog.Logger
}

// NewTreasuryHandler creates a TreasuryHandler over the shared ledger.
func NewTreasuryHandler(ledger *treasury.Ledger, logger *slog.Logger) *TreasuryHandler {
	return &TreasuryHandler{ledger: ledger, logger: logHandler(logger, "treasury")}
}

type depositRequest struct {
	From   string `json:"from"`
	Token  string `json:"token"`
	Amount string `json:"amount"`
}

type withdrawRequest struct {
	Caller string `json:"caller"`
	Token  string `json:"token"`
	Amount string `json:"amount"`
	To     string `json:"to"`
}

type authorizeRequest struct {
	Caller string `json:"caller"`
	Solver string `json:"solver"`
}

// Deposit credits tokens to the treasury.
// POST /api/treasury/deposit
func (h *TreasuryHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	from, err := parseAddress(req.From)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	token, err := parseAddress(req.Token)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.ledger.Deposit(r.Context(), from, token, amount)
	writeJSON(w, http.StatusOK, map[string]string{
		"token":   token.Hex(),
		"balance": h.ledger.Balance(token).String(),
	})
}

// Withdraw debits tokens from the treasury. The caller must be the admin or
// an authorized solver.
// POST /api/treasury/withdraw
func (h *TreasuryHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	var req withdrawRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	token, err := parseAddress(req.Token)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	to, err := parseAddress(req.To)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.ledger.Withdraw(r.Context(), caller, token, amount, to); err != nil {
		h.logger.Warn("withdrawal refused",
			slog.String("caller", caller.Hex()),
			slog.String("token", token.Hex()),
			slog.String("error", err.Error()),
		)
		writeError(w, errStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"token":   token.Hex(),
		"balance": h.ledger.Balance(token).String(),
	})
}

// Authorize grants a solver withdrawal access. Admin only.
// POST /api/treasury/authorize
func (h *TreasuryHandler) Authorize(w http.ResponseWriter, r *http.Request) {
	var req authorizeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	solver, err := parseAddress(req.Solver)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.ledger.AuthorizeAccess(caller, solver); err != nil {
		writeError(w, errStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"solver":     solver.Hex(),
		"authorized": true,
	})
}

// Balance returns the treasury balance for a token.
// GET /api/treasury/balance/{token}
func (h *TreasuryHandler) Balance(w http.ResponseWriter, r *http.Request) {
	token, err := parseAddress(pathParam(r, "token"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"token":   token.Hex(),
		"balance": h.ledger.Balance(token).String(),
	})
}
