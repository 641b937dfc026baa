/**
 * @description
 * This file contains the HTTP handlers for the ledger-service's wallet and
 * transfer endpoints. Handlers are responsible for parsing incoming requests,
 * calling the appropriate methods on the application service, and writing the
 * HTTP response. They act as the bridge between the web layer and the business
 * logic layer.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - internal/app, internal/domain, internal/store: For service logic, models, and custom errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/transfa/ledger-service/internal/app"
	"github.com/transfa/ledger-service/internal/domain"
	"github.com/transfa/ledger-service/internal/store"
)

// LedgerHandlers holds the application service that handlers will use.
type LedgerHandlers struct {
	service *app.Service
}

// NewLedgerHandlers creates a new instance of LedgerHandlers.
func NewLedgerHandlers(service *app.Service) *LedgerHandlers {
	return &LedgerHandlers{service: service}
}

// CreateWalletHandler provisions a new wallet for the authenticated user.
func (h *LedgerHandlers) CreateWalletHandler(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.authenticatedOwnerID(w, r)
	if !ok {
		return
	}

	wallet, err := h.service.CreateWallet(r.Context(), ownerID)
	if err != nil {
		log.Printf("level=error component=api endpoint=create_wallet owner_id=%s err=%v", ownerID, err)
		h.writeError(w, http.StatusInternalServerError, "Could not create wallet")
		return
	}

	log.Printf("level=info component=api endpoint=create_wallet outcome=created wallet_id=%s owner_id=%s", wallet.ID, ownerID)
	h.writeJSON(w, http.StatusCreated, wallet)
}

// GetWalletsConsistentHandler reads a fixed set of wallets in one statement so
// the response reflects a single instant across all of them. Wallet ids are
// passed as a comma-separated `ids` query parameter.
func (h *LedgerHandlers) GetWalletsConsistentHandler(w http.ResponseWriter, r *http.Request) {
	rawIDs := strings.Split(r.URL.Query().Get("ids"), ",")
	walletIDs := make([]uuid.UUID, 0, len(rawIDs))
	for _, raw := range rawIDs {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid wallet ID %q", raw))
			return
		}
		walletIDs = append(walletIDs, id)
	}
	if len(walletIDs) == 0 {
		h.writeError(w, http.StatusBadRequest, "Query parameter \"ids\" is required")
		return
	}

	wallets, err := h.service.GetWalletsConsistent(r.Context(), walletIDs)
	if err != nil {
		h.writeServiceError(w, "get_wallets_consistent", err)
		return
	}
	h.writeJSON(w, http.StatusOK, wallets)
}

// GetWalletHandler returns a single wallet by id.
func (h *LedgerHandlers) GetWalletHandler(w http.ResponseWriter, r *http.Request) {
	walletID, ok := h.pathUUID(w, r, "walletID", "wallet ID")
	if !ok {
		return
	}

	wallet, err := h.service.GetWallet(r.Context(), walletID)
	if err != nil {
		h.writeServiceError(w, "get_wallet", err)
		return
	}
	h.writeJSON(w, http.StatusOK, wallet)
}

// SetWalletStatusHandler activates or deactivates a wallet.
func (h *LedgerHandlers) SetWalletStatusHandler(w http.ResponseWriter, r *http.Request) {
	walletID, ok := h.pathUUID(w, r, "walletID", "wallet ID")
	if !ok {
		return
	}

	var req struct {
		Status domain.WalletStatus `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}
	if req.Status != domain.WalletStatusActive && req.Status != domain.WalletStatusInactive {
		h.writeError(w, http.StatusBadRequest, "Status must be ACTIVE or INACTIVE")
		return
	}

	wallet, err := h.service.SetWalletStatus(r.Context(), walletID, req.Status)
	if err != nil {
		h.writeServiceError(w, "set_wallet_status", err)
		return
	}

	log.Printf("level=info component=api endpoint=set_wallet_status wallet_id=%s status=%s", walletID, req.Status)
	h.writeJSON(w, http.StatusOK, wallet)
}

// DepositHandler credits a wallet from an external funding source.
func (h *LedgerHandlers) DepositHandler(w http.ResponseWriter, r *http.Request) {
	walletID, ok := h.pathUUID(w, r, "walletID", "wallet ID")
	if !ok {
		return
	}

	var req domain.DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	wallet, err := h.service.Deposit(r.Context(), walletID, req.Amount)
	if err != nil {
		h.writeServiceError(w, "deposit", err)
		return
	}

	log.Printf("level=info component=api endpoint=deposit outcome=accepted wallet_id=%s amount=%d", walletID, req.Amount)
	h.writeJSON(w, http.StatusOK, wallet)
}

// TransferHandler moves funds atomically between two wallets. The caller must
// own the source wallet.
func (h *LedgerHandlers) TransferHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("level=warn component=api endpoint=transfer outcome=reject reason=invalid_json err=%v", err)
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}
	if !h.requireWalletOwner(w, r, "transfer", req.FromWalletID, "You do not own the source wallet") {
		return
	}

	txn, err := h.service.Transfer(r.Context(), req)
	if err != nil {
		var rateErr *app.RateLimitError
		if errors.As(err, &rateErr) {
			w.Header().Set("Retry-After", strconv.Itoa(rateErr.RetryAfterSeconds))
			h.writeError(w, http.StatusTooManyRequests, "Too many transfers. Please wait and try again.")
			return
		}
		h.writeServiceError(w, "transfer", err)
		return
	}

	log.Printf("level=info component=api endpoint=transfer outcome=accepted transaction_id=%s from=%s to=%s amount=%d",
		txn.ID, req.FromWalletID, req.ToWalletID, req.Amount)
	h.writeJSON(w, http.StatusCreated, txn)
}

// GetTransactionHandler returns a single ledger transaction by id.
func (h *LedgerHandlers) GetTransactionHandler(w http.ResponseWriter, r *http.Request) {
	transactionID, ok := h.pathUUID(w, r, "transactionID", "transaction ID")
	if !ok {
		return
	}

	txn, err := h.service.GetTransaction(r.Context(), transactionID)
	if err != nil {
		h.writeServiceError(w, "get_transaction", err)
		return
	}
	h.writeJSON(w, http.StatusOK, txn)
}

// TransactionHistoryHandler returns the transactions touching a wallet,
// newest first. The caller must own the wallet.
func (h *LedgerHandlers) TransactionHistoryHandler(w http.ResponseWriter, r *http.Request) {
	walletID, ok := h.pathUUID(w, r, "walletID", "wallet ID")
	if !ok {
		return
	}
	if !h.requireWalletOwner(w, r, "transaction_history", walletID, "Not authorized to view this wallet's transactions") {
		return
	}

	txns, err := h.service.TransactionHistory(r.Context(), walletID)
	if err != nil {
		h.writeServiceError(w, "transaction_history", err)
		return
	}
	h.writeJSON(w, http.StatusOK, txns)
}

// authenticatedOwnerID extracts the authenticated subject from the request
// context and parses it as a UUID.
func (h *LedgerHandlers) authenticatedOwnerID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	userIDStr, ok := GetAuthUserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get user ID from context")
		return uuid.Nil, false
	}
	ownerID, err := uuid.Parse(userIDStr)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid user ID format")
		return uuid.Nil, false
	}
	return ownerID, true
}

// requireWalletOwner verifies the authenticated caller owns the wallet,
// writing the appropriate error response when they do not.
func (h *LedgerHandlers) requireWalletOwner(w http.ResponseWriter, r *http.Request, endpoint string, walletID uuid.UUID, denied string) bool {
	ownerID, ok := h.authenticatedOwnerID(w, r)
	if !ok {
		return false
	}
	wallet, err := h.service.GetWallet(r.Context(), walletID)
	if err != nil {
		h.writeServiceError(w, endpoint, err)
		return false
	}
	if wallet.OwnerID != ownerID {
		log.Printf("level=warn component=api endpoint=%s outcome=reject reason=not_owner wallet_id=%s user_id=%s", endpoint, walletID, ownerID)
		h.writeError(w, http.StatusForbidden, denied)
		return false
	}
	return true
}

// requireBatchOwner loads a batch and verifies the authenticated caller owns
// it. Batches and their rows are visible and operable only by their submitter.
func (h *LedgerHandlers) requireBatchOwner(w http.ResponseWriter, r *http.Request, endpoint string, batchID uuid.UUID) (*domain.Batch, bool) {
	ownerID, ok := h.authenticatedOwnerID(w, r)
	if !ok {
		return nil, false
	}
	batch, err := h.service.GetBatch(r.Context(), batchID)
	if err != nil {
		h.writeServiceError(w, endpoint, err)
		return nil, false
	}
	if batch.OwnerID != ownerID {
		log.Printf("level=warn component=api endpoint=%s outcome=reject reason=not_owner batch_id=%s user_id=%s", endpoint, batchID, ownerID)
		h.writeError(w, http.StatusForbidden, "Not authorized to access this batch")
		return nil, false
	}
	return batch, true
}

// pathUUID parses a UUID URL parameter, writing a 400 response on failure.
func (h *LedgerHandlers) pathUUID(w http.ResponseWriter, r *http.Request, param, label string) (uuid.UUID, bool) {
	raw := chi.URLParam(r, param)
	id, err := uuid.Parse(raw)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid %s format", label))
		return uuid.Nil, false
	}
	return id, true
}

// writeServiceError maps domain and store errors to HTTP status codes.
func (h *LedgerHandlers) writeServiceError(w http.ResponseWriter, endpoint string, err error) {
	switch {
	case errors.Is(err, store.ErrWalletNotFound):
		h.writeError(w, http.StatusNotFound, "Wallet not found")
	case errors.Is(err, store.ErrTransactionNotFound):
		h.writeError(w, http.StatusNotFound, "Transaction not found")
	case errors.Is(err, store.ErrBatchNotFound):
		h.writeError(w, http.StatusNotFound, "Batch not found")
	case errors.Is(err, store.ErrWalletInactive):
		h.writeError(w, http.StatusConflict, "Wallet is inactive")
	case errors.Is(err, store.ErrInsufficientFunds):
		h.writeError(w, http.StatusUnprocessableEntity, "Insufficient funds")
	case errors.Is(err, store.ErrInvalidAmount):
		h.writeError(w, http.StatusBadRequest, "Amount must be a positive integer in minor units")
	case errors.Is(err, store.ErrSameWallet):
		h.writeError(w, http.StatusBadRequest, "Sender and recipient wallets must differ")
	case errors.Is(err, app.ErrMissingIdempotencyKey):
		h.writeError(w, http.StatusBadRequest, "Idempotency key is required")
	case errors.Is(err, app.ErrBatchNotExecutable):
		h.writeError(w, http.StatusConflict, "Batch has already finished")
	case errors.Is(err, app.ErrBatchRowsMismatch):
		h.writeError(w, http.StatusConflict, "Submitted rows do not match the batch's persisted rows")
	case errors.Is(err, app.ErrNoRows):
		h.writeError(w, http.StatusBadRequest, "Batch has no payout rows")
	case errors.Is(err, app.ErrEmptyPayoutFile):
		h.writeError(w, http.StatusBadRequest, "Payout file contains no rows")
	default:
		log.Printf("level=error component=api endpoint=%s err=%v", endpoint, err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// writeJSON is a helper for writing JSON responses.
func (h *LedgerHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError is a helper for writing JSON error responses.
func (h *LedgerHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
