package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mrheyday/futarchy-arbitrage-sub000/internal/auction"
	"github.com/mrheyday/futarchy-arbitrage-sub000/internal/service"
)

// AuctionHandler serves the commit-reveal auction endpoints.
type AuctionHandler struct {
	svc    *service.AuctionService
	logger *slog.Logger
}

// NewAuctionHandler creates an AuctionHandler backed by the auction service.
func NewAuctionHandler(svc *service.AuctionService, logger *slog.Logger) *AuctionHandler {
	return &AuctionHandler{svc: svc, logger: logHandler(logger, "auction")}
}

type commitRequest struct {
	Solver string `json:"solver"`
	Hash   string `json:"hash"`
}

type revealRequest struct {
	Solver string `json:"solver"`
	Value  string `json:"value"`
	Salt   string `json:"salt"`
}

type settleRequest struct {
	Candidates []string `json:"candidates,omitempty"`
}

type auctionView struct {
	ID          uint64 `json:"id"`
	Open        bool   `json:"open"`
	Settled     bool   `json:"settled"`
	Commitments int    `json:"commitments"`
	Reveals     int    `json:"reveals"`
	Winner      string `json:"winner,omitempty"`
	WinningBid  string `json:"winning_bid,omitempty"`
}

func newAuctionView(v auction.View) auctionView {
	out := auctionView{
		ID:          v.ID,
		Open:        v.Open,
		Settled:     v.Settled,
		Commitments: v.Commitments,
		Reveals:     v.Reveals,
	}
	if v.Settled {
		out.Winner = v.Winner.Hex()
		if v.WinningBid != nil {
			out.WinningBid = v.WinningBid.String()
		}
	}
	return out
}

func parseAuctionID(r *http.Request) (uint64, error) {
	return strconv.ParseUint(pathParam(r, "id"), 10, 64)
}

// OpenAuction opens (or reopens) the auction with the given id.
// POST /api/auctions/{id}/open
func (h *AuctionHandler) OpenAuction(w http.ResponseWriter, r *http.Request) {
	id, err := parseAuctionID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid auction id")
		return
	}

	h.svc.Open(r.Context(), id)

	v, err := h.svc.Get(id)
	if err != nil {
		writeError(w, errStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, newAuctionView(v))
}

// Commit records a sealed bid commitment.
// POST /api/auctions/{id}/commit
func (h *AuctionHandler) Commit(w http.ResponseWriter, r *http.Request) {
	id, err := parseAuctionID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid auction id")
		return
	}

	var req commitRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	solver, err := parseAddress(req.Solver)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	hash, err := parseHash(req.Hash)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.svc.Commit(r.Context(), id, solver, hash); err != nil {
		writeError(w, errStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "committed"})
}

// CloseAuction ends the commit phase.
// POST /api/auctions/{id}/close
func (h *AuctionHandler) CloseAuction(w http.ResponseWriter, r *http.Request) {
	id, err := parseAuctionID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid auction id")
		return
	}

	h.svc.Close(id)

	v, err := h.svc.Get(id)
	if err != nil {
		writeError(w, errStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, newAuctionView(v))
}

// Reveal opens a sealed bid against its commitment.
// POST /api/auctions/{id}/reveal
func (h *AuctionHandler) Reveal(w http.ResponseWriter, r *http.Request) {
	id, err := parseAuctionID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid auction id")
		return
	}

	var req revealRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	solver, err := parseAddress(req.Solver)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	value, err := parseAmount(req.Value)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	salt, err := parseHash(req.Salt)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.svc.Reveal(r.Context(), id, solver, value, salt); err != nil {
		writeError(w, errStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "revealed"})
}

// Settle picks the winner among candidates. An empty candidate list settles
// over every solver that revealed, as recorded in the event journal.
// POST /api/auctions/{id}/settle
func (h *AuctionHandler) Settle(w http.ResponseWriter, r *http.Request) {
	id, err := parseAuctionID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid auction id")
		return
	}

	var req settleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	candidates := make([]common.Address, len(req.Candidates))
	for i, raw := range req.Candidates {
		addr, err := parseAddress(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		candidates[i] = addr
	}

	winner, bid, err := h.svc.Settle(r.Context(), id, candidates)
	if err != nil {
		h.logger.Warn("settlement failed",
			slog.Uint64("auction_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, errStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"winner":      winner.Hex(),
		"winning_bid": bid.String(),
	})
}

// GetAuction returns the auction state by id.
// GET /api/auctions/{id}
func (h *AuctionHandler) GetAuction(w http.ResponseWriter, r *http.Request) {
	id, err := parseAuctionID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid auction id")
		return
	}

	v, err := h.svc.Get(id)
	if err != nil {
		writeError(w, errStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, newAuctionView(v))
}
