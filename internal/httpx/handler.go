package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/clearledger/paygate/internal/chain"
	"github.com/clearledger/paygate/internal/governance"
	"github.com/clearledger/paygate/internal/ledger"
	"github.com/clearledger/paygate/internal/order"
)

// Handler maps the HTTP surface onto the claim engine, the chain read
// port and the governance service.
type Handler struct {
	registry   *order.Registry
	dispatcher *order.Dispatcher
	chain      chain.Reader
	governance *governance.Service
}

func NewHandler(registry *order.Registry, dispatcher *order.Dispatcher, reader chain.Reader, gov *governance.Service) *Handler {
	return &Handler{
		registry:   registry,
		dispatcher: dispatcher,
		chain:      reader,
		governance: gov,
	}
}

// --- payment orders ---

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	views := h.registry.List()
	out := OrderListResponse{Orders: make([]OrderResponse, 0, len(views))}
	for _, v := range views {
		out.Orders = append(out.Orders, mapOrderView(v))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	view, ok := h.registry.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "order_not_found", "")
		return
	}
	writeJSON(w, http.StatusOK, mapOrderView(view))
}

func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	if req.ID == "" || req.Secret == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "id and secret are required")
		return
	}

	if err := h.registry.Create(r.Context(), req.ID, req.Secret, req.Amount); err != nil {
		switch {
		case errors.Is(err, order.ErrDuplicateID):
			writeError(w, http.StatusConflict, "duplicate_id", "")
		case errors.Is(err, order.ErrInvalidAmount):
			writeError(w, http.StatusUnprocessableEntity, "invalid_amount", "amount must be positive")
		default:
			writeError(w, http.StatusInternalServerError, "create_failed", err.Error())
		}
		return
	}

	view, _ := h.registry.Get(req.ID)
	writeJSON(w, http.StatusCreated, mapOrderView(view))
}

// ClaimPayment authorizes the claim and drives the settlement in one
// request. The engine enforces exactly-once; concurrent claims for the
// same order surface as 409.
func (h *Handler) ClaimPayment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req ClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	if req.Secret == "" || req.Address == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "secret and address are required")
		return
	}

	ticket, err := h.registry.BeginClaim(r.Context(), id, req.Secret)
	if err != nil {
		switch {
		case errors.Is(err, order.ErrClaimDenied):
			// Unknown id and wrong secret share this shape on purpose.
			writeError(w, http.StatusNotFound, "claim_denied", "")
		case errors.Is(err, order.ErrAlreadyClaimed):
			writeError(w, http.StatusConflict, "already_claimed", "")
		case errors.Is(err, order.ErrClaimInProgress):
			writeError(w, http.StatusConflict, "claim_in_progress", "")
		default:
			writeError(w, http.StatusInternalServerError, "claim_failed", err.Error())
		}
		return
	}

	ref, err := h.dispatcher.Settle(r.Context(), ticket, req.Address)
	if err != nil {
		if ledger.IsRetriable(err) {
			// The order reopened; the holder may retry the claim.
			writeError(w, http.StatusBadGateway, "settlement_retriable", err.Error())
		} else {
			writeError(w, http.StatusUnprocessableEntity, "settlement_rejected", err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, ClaimResponse{SettlementRef: string(ref)})
}

// --- token / transaction reads ---

func (h *Handler) TokenAddress(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, TokenAddressResponse{Address: h.chain.TokenAddress()})
}

func (h *Handler) TotalSupply(w http.ResponseWriter, r *http.Request) {
	supply, err := h.chain.TotalSupply(r.Context())
	if err != nil {
		writeUpstreamError(w, r, "total supply", err)
		return
	}
	writeJSON(w, http.StatusOK, TotalSupplyResponse{TotalSupply: supply})
}

func (h *Handler) Allowance(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")
	spender := r.URL.Query().Get("spender")
	if owner == "" || spender == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "owner and spender are required")
		return
	}

	allowance, err := h.chain.Allowance(r.Context(), owner, spender)
	if err != nil {
		writeUpstreamError(w, r, "allowance", err)
		return
	}
	writeJSON(w, http.StatusOK, AllowanceResponse{Owner: owner, Spender: spender, Allowance: allowance})
}

func (h *Handler) TransactionByHash(w http.ResponseWriter, r *http.Request) {
	h.writeTransaction(w, r, h.chain.TransactionByHash)
}

func (h *Handler) TransactionReceipt(w http.ResponseWriter, r *http.Request) {
	h.writeTransaction(w, r, h.chain.TransactionReceipt)
}

func (h *Handler) writeTransaction(w http.ResponseWriter, r *http.Request, load func(ctx context.Context, hash string) (json.RawMessage, error)) {
	hash := chi.URLParam(r, "hash")
	raw, err := load(r.Context(), hash)
	if err != nil {
		writeUpstreamError(w, r, "transaction lookup", err)
		return
	}
	if raw == nil || string(raw) == "null" {
		writeError(w, http.StatusNotFound, "transaction_not_found", "")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}

// --- governance ---

func (h *Handler) WinningProposal(w http.ResponseWriter, r *http.Request) {
	p, err := h.governance.WinningProposal(r.Context())
	if err != nil {
		writeUpstreamError(w, r, "winning proposal", err)
		return
	}
	writeJSON(w, http.StatusOK, ProposalResponse{Name: p.Name, VoteCount: p.VoteCount})
}

func (h *Handler) Delegate(w http.ResponseWriter, r *http.Request) {
	var req DelegateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	if req.Address == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "address is required")
		return
	}

	ref, err := h.governance.Delegate(r.Context(), req.Address)
	if err != nil {
		writeSignerError(w, r, "delegate", err)
		return
	}
	writeJSON(w, http.StatusCreated, ReferenceResponse{Reference: string(ref)})
}

func (h *Handler) SubmitVote(w http.ResponseWriter, r *http.Request) {
	var req VoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	if req.Choice == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "choice is required")
		return
	}

	ref, err := h.governance.SubmitVote(r.Context(), req.Choice)
	if err != nil {
		writeSignerError(w, r, "vote", err)
		return
	}
	writeJSON(w, http.StatusCreated, ReferenceResponse{Reference: string(ref)})
}

func (h *Handler) RequestTokens(w http.ResponseWriter, r *http.Request) {
	var req RequestTokensRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	if req.Address == "" || req.Amount.Sign() <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "address and a positive amount are required")
		return
	}

	ref, err := h.governance.RequestTokens(r.Context(), req.Address, req.Amount)
	if err != nil {
		writeSignerError(w, r, "request tokens", err)
		return
	}
	writeJSON(w, http.StatusCreated, ReferenceResponse{Reference: string(ref)})
}

// --- helpers ---

func mapOrderView(v order.View) OrderResponse {
	return OrderResponse{
		ID:            v.ID,
		Amount:        v.Amount.String(),
		State:         string(v.State),
		SettlementRef: string(v.SettlementRef),
	}
}

func writeUpstreamError(w http.ResponseWriter, r *http.Request, what string, err error) {
	slog.ErrorContext(r.Context(), "chain read failed", "query", what, "error", err)
	writeError(w, http.StatusBadGateway, "chain_unavailable", err.Error())
}

func writeSignerError(w http.ResponseWriter, r *http.Request, what string, err error) {
	slog.ErrorContext(r.Context(), "governance write failed", "operation", what, "error", err)
	if ledger.IsRetriable(err) {
		writeError(w, http.StatusBadGateway, "signer_unavailable", err.Error())
		return
	}
	writeError(w, http.StatusUnprocessableEntity, "signer_rejected", err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, ErrorResponse{
		Error:   code,
		Message: msg,
	})
}
