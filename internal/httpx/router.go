package httpx

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/clearledger/paygate/internal/httpx/middlewares"
)

// NewRouter assembles the full HTTP surface. The otelhttp wrapper opens a
// server span per request; the slog access log rides inside it so every
// access line carries trace_id.
func NewRouter(handler *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewares.AccessLog)
	r.Use(middleware.Recoverer)

	r.Route("/orders", func(r chi.Router) {
		r.Get("/", handler.ListOrders)
		r.Post("/", handler.CreateOrder)
		r.Get("/{id}", handler.GetOrder)
		r.Post("/{id}/claim", handler.ClaimPayment)
	})

	r.Route("/token", func(r chi.Router) {
		r.Get("/address", handler.TokenAddress)
		r.Get("/total-supply", handler.TotalSupply)
		r.Get("/allowance", handler.Allowance)
	})

	r.Route("/transactions", func(r chi.Router) {
		r.Get("/{hash}", handler.TransactionByHash)
		r.Get("/{hash}/receipt", handler.TransactionReceipt)
	})

	r.Route("/governance", func(r chi.Router) {
		r.Get("/winning-proposal", handler.WinningProposal)
		r.Post("/delegate", handler.Delegate)
		r.Post("/vote", handler.SubmitVote)
		r.Post("/request-tokens", handler.RequestTokens)
	})

	return otelhttp.NewHandler(r, "paygate-api")
}
