package domain

import (
	"time"

	"github.com/google/uuid"
)

// BatchStatus is the state machine driven by the batch orchestrator:
// PENDING -> PROCESSING -> {COMPLETED | PARTIALLY_FAILED | FAILED}.
// PROCESSING is re-entrant; re-execution while PROCESSING means "resume".
type BatchStatus string

const (
	BatchStatusPending         BatchStatus = "PENDING"
	BatchStatusProcessing      BatchStatus = "PROCESSING"
	BatchStatusCompleted       BatchStatus = "COMPLETED"
	BatchStatusPartiallyFailed BatchStatus = "PARTIALLY_FAILED"
	// BatchStatusFailed is reserved for whole-batch faults, e.g. the source
	// wallet cannot be resolved at all. Row-level failures never produce it.
	BatchStatusFailed BatchStatus = "FAILED"
)

// BatchRowStatus enumerates the states of one planned transfer inside a batch.
// Rows start SKIPPED and move to SUCCESS or FAILED exactly once.
type BatchRowStatus string

const (
	BatchRowStatusSkipped BatchRowStatus = "SKIPPED"
	BatchRowStatusSuccess BatchRowStatus = "SUCCESS"
	BatchRowStatusFailed  BatchRowStatus = "FAILED"
)

// Batch is a payout job. It is created on submission, mutated only by the
// orchestrator, and never deleted — it doubles as the audit record of the run.
// LastProcessedIndex is the resumability cursor (initial -1); a crash between
// two row commits restarts the scan at LastProcessedIndex + 1.
type Batch struct {
	ID                 uuid.UUID   `json:"id"`
	OwnerID            uuid.UUID   `json:"owner_id"`
	SourceWalletID     uuid.UUID   `json:"source_wallet_id"`
	Status             BatchStatus `json:"status"`
	ItemCount          int         `json:"item_count"`
	SuccessCount       int         `json:"success_count"`
	FailureCount       int         `json:"failure_count"`
	TotalAmount        int64       `json:"total_amount"` // sum of successful rows, minor units
	LastProcessedIndex int         `json:"last_processed_index"`
	IdempotencyKey     *string     `json:"idempotency_key,omitempty"`
	CreatedAt          time.Time   `json:"created_at"`
	UpdatedAt          time.Time   `json:"updated_at"`
}

// BatchRow is one planned transfer inside a batch. RowIndex is assigned at
// ingestion and is stable for the life of the batch; the index-to-row mapping
// is never re-derived from a later upload.
type BatchRow struct {
	ID                uuid.UUID      `json:"id"`
	BatchID           uuid.UUID      `json:"batch_id"`
	RowIndex          int            `json:"row_index"`
	RecipientWalletID uuid.UUID      `json:"recipient_wallet_id"`
	Amount            int64          `json:"amount"` // in minor units
	Status            BatchRowStatus `json:"status"`
	TransactionID     *uuid.UUID     `json:"transaction_id,omitempty"`
	ErrorMessage      *string        `json:"error_message,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// PayoutRow is one decoded upload row: a planned transfer that has not yet been
// materialized as a BatchRow.
type PayoutRow struct {
	RecipientWalletID uuid.UUID `json:"recipient_wallet_id"`
	Amount            int64     `json:"amount"` // in minor units
}

// CreateBatchRequest is the DTO for submitting a new payout job.
type CreateBatchRequest struct {
	SourceWalletID uuid.UUID `json:"source_wallet_id"`
	IdempotencyKey *string   `json:"idempotency_key,omitempty"`
}

// BatchExecutionSummary reports the outcome of one execute invocation.
// PreCheckWarning is advisory only; the real enforcement happens per row
// inside the transfer engine.
type BatchExecutionSummary struct {
	BatchID         uuid.UUID   `json:"batch_id"`
	FinalStatus     BatchStatus `json:"final_status"`
	Total           int         `json:"total"`
	Success         int         `json:"success"`
	Failed          int         `json:"failed"`
	PreCheckWarning string      `json:"pre_check_warning,omitempty"`
}

// CompensationStatus enumerates per-row compensation outcomes.
type CompensationStatus string

const (
	CompensationStatusCompensated CompensationStatus = "Compensated"
	CompensationStatusSkipped     CompensationStatus = "Skipped"
	CompensationStatusFailed      CompensationStatus = "Failed"
	CompensationStatusError       CompensationStatus = "Error"
)

// CompensationRequest is the DTO for requesting reversals of batch rows.
type CompensationRequest struct {
	RowIndices []int `json:"row_indices"`
}

// CompensationResult is the per-row outcome of a compensation request.
type CompensationResult struct {
	Index  int                `json:"index"`
	Status CompensationStatus `json:"status"`
	Detail string             `json:"detail,omitempty"`
}
