/**
 * @description
 * This file defines the core domain models for the ledger-service. These structs
 * represent the main entities and data transfer objects (DTOs) used throughout the
 * service's business logic, database interactions, and API layers.
 *
 * @notes
 * - Using distinct types for API requests and database models ensures clear
 *   separation of concerns and type safety.
 * - Amounts are stored as `int64` to represent the value in the smallest currency
 *   unit, which avoids floating-point inaccuracies with financial data.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// WalletStatus enumerates the lifecycle states of a wallet.
type WalletStatus string

const (
	WalletStatusActive   WalletStatus = "ACTIVE"
	WalletStatusInactive WalletStatus = "INACTIVE"
)

// Wallet represents a user's custodial balance. This struct maps directly to the
// `wallets` table. Balances are mutated only through the transfer engine's locked
// unit, with the single exception of deposits.
type Wallet struct {
	ID        uuid.UUID    `json:"id"`
	OwnerID   uuid.UUID    `json:"owner_id"`
	Balance   int64        `json:"balance"` // in minor units
	Status    WalletStatus `json:"status"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// Transaction is the immutable ledger record of one completed transfer. Rows are
// append-only: once committed they are never mutated or deleted.
type Transaction struct {
	ID             uuid.UUID  `json:"id"`
	FromWalletID   uuid.UUID  `json:"from_wallet_id"`
	ToWalletID     uuid.UUID  `json:"to_wallet_id"`
	Amount         int64      `json:"amount"` // in minor units
	IdempotencyKey string     `json:"idempotency_key"`
	BatchID        *uuid.UUID `json:"batch_id,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// TransferRequest is the DTO for incoming single-transfer API requests.
type TransferRequest struct {
	FromWalletID   uuid.UUID `json:"from_wallet_id"`
	ToWalletID     uuid.UUID `json:"to_wallet_id"`
	Amount         int64     `json:"amount"` // in minor units
	IdempotencyKey string    `json:"idempotency_key"`
}

// DepositRequest is the DTO for crediting a wallet from an external funding source.
type DepositRequest struct {
	Amount int64 `json:"amount"` // in minor units
}
