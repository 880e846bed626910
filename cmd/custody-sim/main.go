// custody-sim is an in-memory stand-in for the custody/signer service,
// implementing the contract internal/ledger/custodyhttp speaks. It exists
// for local development and smoke tests; it signs nothing.
package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// transferLimit mirrors a custody-side per-transfer policy cap; transfers
// above it are rejected permanently (409), which exercises the claim
// engine's terminal-failure path end to end.
var transferLimit = decimal.NewFromInt(500)

type transferRequest struct {
	Destination    string `json:"destination"`
	Amount         string `json:"amount"`
	IdempotencyKey string `json:"idempotency_key"`
}

type signedRequest struct {
	Delegatee   string `json:"delegatee"`
	Choice      string `json:"choice"`
	Destination string `json:"destination"`
	Amount      string `json:"amount"`
	Weight      string `json:"weight"`
}

type referenceResponse struct {
	Reference string `json:"reference"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

type simulator struct {
	mu sync.Mutex
	// seen replays the original reference for a repeated idempotency key.
	seen map[string]string
}

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, nil)))

	sim := &simulator{seen: make(map[string]string)}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Post("/v1/transfers", sim.transfer)
	r.Post("/v1/delegations", sim.signed("delegation"))
	r.Post("/v1/votes", sim.signed("vote"))
	r.Post("/v1/issuances", sim.signed("issuance"))

	addr := ":" + getEnv("PORT", "7090")
	slog.Info("custody simulator running", "addr", addr)
	if err := http.ListenAndServe(addr, r); err != nil {
		slog.Error("custody simulator failed", "error", err)
		os.Exit(1)
	}
}

func (s *simulator) transfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || amount.Sign() <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_amount", req.Amount)
		return
	}
	if err := validateAddress(req.Destination); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid_destination", err.Error())
		return
	}
	if amount.GreaterThan(transferLimit) {
		writeError(w, http.StatusConflict, "rejected", "amount exceeds transfer limit")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if ref, ok := s.seen[req.IdempotencyKey]; ok && req.IdempotencyKey != "" {
		slog.Info("replaying transfer", "idempotency_key", req.IdempotencyKey, "reference", ref)
		writeJSON(w, http.StatusCreated, referenceResponse{Reference: ref})
		return
	}

	ref := newReference()
	if req.IdempotencyKey != "" {
		s.seen[req.IdempotencyKey] = ref
	}
	slog.Info("transfer executed", "destination", req.Destination, "amount", amount.String(), "reference", ref)
	writeJSON(w, http.StatusCreated, referenceResponse{Reference: ref})
}

func (s *simulator) signed(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req signedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
			return
		}

		ref := newReference()
		slog.Info("signed transaction executed", "kind", kind, "reference", ref)
		writeJSON(w, http.StatusCreated, referenceResponse{Reference: ref})
	}
}

// validateAddress accepts 0x-prefixed 20-byte hex addresses.
func validateAddress(addr string) error {
	if !strings.HasPrefix(addr, "0x") || len(addr) != 42 {
		return errors.New("destination must be a 0x-prefixed 20-byte hex address")
	}
	return nil
}

// newReference fabricates a transaction-hash-shaped reference.
func newReference() string {
	return "0x" + strings.ReplaceAll(uuid.NewString()+uuid.NewString(), "-", "")[:64]
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Error: code, Message: msg})
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
