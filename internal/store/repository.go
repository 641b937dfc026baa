/**
 * @description
 * This file defines the `Repository` interface, which specifies the contract for all
 * data access operations required by the ledger-service. By defining an interface,
 * we decouple the application's business logic from the specific database
 * implementation (PostgreSQL), making the code more modular and easier to test.
 *
 * @dependencies
 * - context: Standard Go library.
 * - github.com/google/uuid: For UUID generation and handling.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/transfa/ledger-service/internal/domain"
)

// TransferParams carries everything the transfer engine needs for one atomic
// debit+credit+record unit.
type TransferParams struct {
	FromWalletID   uuid.UUID
	ToWalletID     uuid.UUID
	Amount         int64 // in minor units
	IdempotencyKey string
	BatchID        *uuid.UUID
}

// BatchRowOutcome records the result of processing one batch row. The row update,
// the batch counters, and the cursor advance are persisted in a single database
// transaction so the cursor never points past an undurable outcome.
type BatchRowOutcome struct {
	BatchID       uuid.UUID
	RowID         uuid.UUID
	RowIndex      int
	Success       bool
	Amount        int64 // credited to the batch total only on success
	TransactionID *uuid.UUID
	ErrorMessage  string
}

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// Wallet methods
	CreateWallet(ctx context.Context, ownerID uuid.UUID) (*domain.Wallet, error)
	FindWalletByID(ctx context.Context, walletID uuid.UUID) (*domain.Wallet, error)
	// FindWalletsConsistent reads a fixed set of wallets with one statement so the
	// caller observes a single-instant view across all of them. Single-wallet reads
	// are best-effort with respect to in-flight transfers.
	FindWalletsConsistent(ctx context.Context, walletIDs []uuid.UUID) ([]domain.Wallet, error)
	SetWalletStatus(ctx context.Context, walletID uuid.UUID, status domain.WalletStatus) (*domain.Wallet, error)
	// Deposit is the only non-transfer balance mutation. It is intentionally
	// outside the transfer engine's locking and idempotency machinery.
	Deposit(ctx context.Context, walletID uuid.UUID, amount int64) (*domain.Wallet, error)

	// Transfer engine
	ExecuteTransfer(ctx context.Context, params TransferParams) (*domain.Transaction, error)

	// Transaction methods
	FindTransactionByID(ctx context.Context, transactionID uuid.UUID) (*domain.Transaction, error)
	FindTransactionsByWallet(ctx context.Context, walletID uuid.UUID) ([]domain.Transaction, error)

	// Batch methods
	CreateBatch(ctx context.Context, batch *domain.Batch) error
	FindBatchByID(ctx context.Context, batchID uuid.UUID) (*domain.Batch, error)
	FindBatchByIdempotencyKey(ctx context.Context, key string) (*domain.Batch, error)
	FindBatchesByOwner(ctx context.Context, ownerID uuid.UUID) ([]domain.Batch, error)
	CreateBatchRows(ctx context.Context, rows []domain.BatchRow) error
	FindBatchRows(ctx context.Context, batchID uuid.UUID) ([]domain.BatchRow, error)
	UpdateBatchStatus(ctx context.Context, batchID uuid.UUID, status domain.BatchStatus) error
	RecordBatchRowOutcome(ctx context.Context, outcome BatchRowOutcome) error
}
