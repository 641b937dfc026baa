/**
 * @description
 * This file sets up the HTTP router for the ledger-service. It defines the API
 * endpoints, associates them with their corresponding handlers, and applies any
 * necessary middleware, such as for authentication.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// LedgerRoutes creates and returns a new router for the ledger service.
func LedgerRoutes(h *LedgerHandlers, jwtSigningKey string) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging, panic recovery, and timeouts.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	// Group routes that require authentication.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(jwtSigningKey))

		// Wallet endpoints
		r.Post("/wallets", h.CreateWalletHandler)
		r.Get("/wallets", h.GetWalletsConsistentHandler)
		r.Get("/wallets/{walletID}", h.GetWalletHandler)
		r.Put("/wallets/{walletID}/status", h.SetWalletStatusHandler)
		r.Post("/wallets/{walletID}/deposit", h.DepositHandler)
		r.Get("/wallets/{walletID}/transactions", h.TransactionHistoryHandler)

		// Transfer endpoints
		r.Post("/transfers", h.TransferHandler)
		r.Get("/transactions/{transactionID}", h.GetTransactionHandler)

		// Batch payout endpoints
		r.Post("/batches", h.CreateBatchHandler)
		r.Get("/batches", h.ListBatchesHandler)
		r.Get("/batches/{batchID}", h.GetBatchHandler)
		r.Get("/batches/{batchID}/rows", h.GetBatchRowsHandler)
		r.Post("/batches/{batchID}/execute", h.ExecuteBatchHandler)
		r.Post("/batches/{batchID}/execute-csv", h.ExecuteBatchCSVHandler)
		r.Post("/batches/{batchID}/compensate", h.CompensateBatchHandler)
	})

	return r
}
