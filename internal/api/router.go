package api

import (
	"net/http"
	"os"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"

	"github.com/AdotAyush/cedefi-banking/internal/metrics"
)

// NewRouter wires the main-system routes. rdb may be nil, which disables the
// Idempotency-Key middleware on transaction creation.
func (h *Handlers) NewRouter(rdb *redis.Client) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", h.Health).Methods("GET")
	r.Handle("/metrics", metrics.Handler()).Methods("GET")

	create := http.Handler(http.HandlerFunc(h.CreateTransaction))
	if rdb != nil {
		create = Idempotency(rdb, h.Log)(create)
	}
	r.Handle("/transactions", create).Methods("POST")
	r.HandleFunc("/transactions", h.ListTransactions).Methods("GET")
	r.HandleFunc("/transactions/faucet", h.Faucet).Methods("POST")
	r.HandleFunc("/transactions/{id}", h.GetTransaction).Methods("GET")
	r.HandleFunc("/transactions/{id}/vote", h.Vote).Methods("POST")
	r.HandleFunc("/transactions/{id}/bank-approval", h.BankApproval).Methods("POST")
	r.HandleFunc("/transactions/{id}/claim", h.Claim).Methods("POST")

	r.HandleFunc("/nodes", h.RegisterNode).Methods("POST")
	r.HandleFunc("/nodes", h.ListNodes).Methods("GET")
	r.HandleFunc("/nodes/{publicKey}/verify", h.VerifyNode).Methods("POST")

	r.HandleFunc("/banks/health", h.BanksHealth).Methods("GET")

	return r
}

// NewServer wraps the router with request logging and CORS and applies the
// usual server timeouts.
func NewServer(addr string, router *mux.Router) *http.Server {
	logged := handlers.LoggingHandler(os.Stdout, router)
	cors := handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{"GET", "POST", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type", "Idempotency-Key"}),
	)(logged)

	return &http.Server{
		Addr:              addr,
		Handler:           cors,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
