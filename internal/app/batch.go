/**
 * @description
 * This file contains the batch payout orchestrator: a resumable state machine
 * driving many transfers derived from an uploaded row set.
 *
 * Key properties:
 * - Resumability: the persisted cursor (`last_processed_index`) is the single
 *   source of truth for progress. A crash or interruption between rows never
 *   re-executes a processed row and never skips an unprocessed one.
 * - Fault isolation: a failing row is recorded and never aborts the batch, so
 *   one bad row cannot block funds reaching the remaining valid recipients.
 * - Idempotent rows: every row's transfer uses a key deterministic in
 *   (batchID, rowIndex), so even a retried row attempt moves money at most once.
 *
 * @dependencies
 * - context, errors, fmt, log, time: Standard Go libraries.
 * - github.com/google/uuid: For UUID generation.
 * - internal/domain, internal/store: For domain models and data access.
 * - pkg/rabbitmq: For the batch.finished event.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/transfa/ledger-service/internal/domain"
	"github.com/transfa/ledger-service/internal/store"
	"github.com/transfa/ledger-service/pkg/rabbitmq"
)

var (
	ErrBatchNotExecutable = errors.New("batch cannot be executed in its current status")
	ErrBatchRowsMismatch  = errors.New("submitted rows do not match the batch's materialized rows")
	ErrNoRows             = errors.New("batch has no rows to execute")
)

// transferIdempotencyKey derives the stable per-row transfer key. It must stay
// deterministic in (batchID, rowIndex) across retries and process restarts.
func transferIdempotencyKey(batchID uuid.UUID, rowIndex int) string {
	return fmt.Sprintf("batch_%s_row_%d", batchID, rowIndex)
}

// reversalIdempotencyKey derives the stable per-row compensation key.
func reversalIdempotencyKey(batchID uuid.UUID, rowIndex int) string {
	return fmt.Sprintf("reversal_batch_%s_row_%d", batchID, rowIndex)
}

// CreateBatch submits a new payout job in PENDING state. If an idempotency key
// is supplied and was already seen, the existing batch is returned instead of
// creating a duplicate job.
func (s *Service) CreateBatch(ctx context.Context, req domain.CreateBatchRequest, ownerID uuid.UUID) (*domain.Batch, error) {
	if req.IdempotencyKey != nil && *req.IdempotencyKey != "" {
		existing, err := s.repo.FindBatchByIdempotencyKey(ctx, *req.IdempotencyKey)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, store.ErrBatchNotFound) {
			return nil, fmt.Errorf("batch idempotency lookup failed: %w", err)
		}
	}

	if _, err := s.repo.FindWalletByID(ctx, req.SourceWalletID); err != nil {
		return nil, err
	}

	batch := &domain.Batch{
		ID:                 uuid.New(),
		OwnerID:            ownerID,
		SourceWalletID:     req.SourceWalletID,
		Status:             domain.BatchStatusPending,
		LastProcessedIndex: -1,
		IdempotencyKey:     req.IdempotencyKey,
	}
	if err := s.repo.CreateBatch(ctx, batch); err != nil {
		return nil, fmt.Errorf("failed to create batch: %w", err)
	}
	log.Printf("level=info component=service op=create_batch batch_id=%s source_wallet_id=%s", batch.ID, batch.SourceWalletID)
	return batch, nil
}

// GetBatch returns one batch.
func (s *Service) GetBatch(ctx context.Context, batchID uuid.UUID) (*domain.Batch, error) {
	return s.repo.FindBatchByID(ctx, batchID)
}

// GetBatchRows lists a batch's rows in stable index order.
func (s *Service) GetBatchRows(ctx context.Context, batchID uuid.UUID) ([]domain.BatchRow, error) {
	if _, err := s.repo.FindBatchByID(ctx, batchID); err != nil {
		return nil, err
	}
	return s.repo.FindBatchRows(ctx, batchID)
}

// ListBatches lists a user's payout batches.
func (s *Service) ListBatches(ctx context.Context, ownerID uuid.UUID) ([]domain.Batch, error) {
	return s.repo.FindBatchesByOwner(ctx, ownerID)
}

// ExecuteBatch runs (or resumes) a payout batch. The first execution
// materializes one BatchRow per input row; re-execution reuses the persisted
// rows, so `rows` may be empty on resume. A non-empty resubmission whose length
// differs from the materialized row set is rejected rather than re-derived.
func (s *Service) ExecuteBatch(ctx context.Context, batchID uuid.UUID, rows []domain.PayoutRow) (*domain.BatchExecutionSummary, error) {
	batch, err := s.repo.FindBatchByID(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if batch.Status != domain.BatchStatusPending && batch.Status != domain.BatchStatusProcessing {
		return nil, ErrBatchNotExecutable
	}

	// A batch whose source wallet cannot be resolved at all is a whole-batch
	// fault: FAILED, as opposed to the per-row PARTIALLY_FAILED outcomes.
	sourceWallet, err := s.repo.FindWalletByID(ctx, batch.SourceWalletID)
	if err != nil {
		if errors.Is(err, store.ErrWalletNotFound) {
			if statusErr := s.repo.UpdateBatchStatus(ctx, batchID, domain.BatchStatusFailed); statusErr != nil {
				log.Printf("level=error component=service op=execute_batch batch_id=%s msg=\"failed to mark batch FAILED\" err=%v", batchID, statusErr)
			}
		}
		return nil, err
	}

	batchRows, err := s.materializeRows(ctx, batch, rows)
	if err != nil {
		return nil, err
	}
	if len(batchRows) == 0 {
		return nil, ErrNoRows
	}

	// Advisory pre-check only. Enforcement happens per row inside the transfer
	// engine, under the row lock.
	warning := preCheckWarning(sourceWallet.Balance, batchRows)

	if batch.Status == domain.BatchStatusPending {
		if err := s.repo.UpdateBatchStatus(ctx, batchID, domain.BatchStatusProcessing); err != nil {
			return nil, err
		}
	}

	for index := batch.LastProcessedIndex + 1; index < len(batchRows); index++ {
		// Interruption is honored at row boundaries only; the persisted cursor
		// makes the run safely resumable.
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := s.processBatchRow(ctx, batch, &batchRows[index]); err != nil {
			// The batch stays PROCESSING with the cursor still pointing before
			// this row. A later run re-attempts it, and the transfer engine's
			// idempotency makes the re-attempt free of extra movement.
			return nil, err
		}
	}

	final, err := s.finalizeBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}

	summary := &domain.BatchExecutionSummary{
		BatchID:         batchID,
		FinalStatus:     final.Status,
		Total:           len(batchRows),
		Success:         final.SuccessCount,
		Failed:          final.FailureCount,
		PreCheckWarning: warning,
	}
	log.Printf("level=info component=service op=execute_batch batch_id=%s status=%s success=%d failed=%d",
		batchID, final.Status, final.SuccessCount, final.FailureCount)
	return summary, nil
}

// materializeRows returns the batch's persisted rows, creating them on first
// execution. Row indices and content, once created, are immutable.
func (s *Service) materializeRows(ctx context.Context, batch *domain.Batch, input []domain.PayoutRow) ([]domain.BatchRow, error) {
	existing, err := s.repo.FindBatchRows(ctx, batch.ID)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		// Re-execution: the persisted rows are the source of truth. An upload
		// of a different size is flagged, not merged.
		if len(input) > 0 && len(input) != len(existing) {
			return nil, ErrBatchRowsMismatch
		}
		return existing, nil
	}

	batchRows := make([]domain.BatchRow, 0, len(input))
	for index, row := range input {
		batchRows = append(batchRows, domain.BatchRow{
			ID:                uuid.New(),
			BatchID:           batch.ID,
			RowIndex:          index,
			RecipientWalletID: row.RecipientWalletID,
			Amount:            row.Amount,
			Status:            domain.BatchRowStatusSkipped,
		})
	}
	if err := s.repo.CreateBatchRows(ctx, batchRows); err != nil {
		return nil, fmt.Errorf("failed to materialize batch rows: %w", err)
	}
	return batchRows, nil
}

// processBatchRow executes one row and records its outcome. Transfer errors are
// recorded on the row and never propagate; an error persisting the outcome
// itself does propagate, because continuing would advance the cursor past an
// undurable result.
func (s *Service) processBatchRow(ctx context.Context, batch *domain.Batch, row *domain.BatchRow) error {
	batchID := batch.ID
	txn, err := s.repo.ExecuteTransfer(ctx, store.TransferParams{
		FromWalletID:   batch.SourceWalletID,
		ToWalletID:     row.RecipientWalletID,
		Amount:         row.Amount,
		IdempotencyKey: transferIdempotencyKey(batchID, row.RowIndex),
		BatchID:        &batchID,
	})

	outcome := store.BatchRowOutcome{
		BatchID:  batchID,
		RowID:    row.ID,
		RowIndex: row.RowIndex,
	}
	if err != nil {
		outcome.ErrorMessage = err.Error()
		log.Printf("level=warn component=service op=execute_batch batch_id=%s row_index=%d outcome=failed err=%v",
			batchID, row.RowIndex, err)
	} else {
		outcome.Success = true
		outcome.Amount = row.Amount
		outcome.TransactionID = &txn.ID
	}

	if recordErr := s.repo.RecordBatchRowOutcome(ctx, outcome); recordErr != nil {
		log.Printf("level=error component=service op=execute_batch batch_id=%s row_index=%d msg=\"row outcome not persisted; aborting run\" err=%v",
			batchID, row.RowIndex, recordErr)
		return fmt.Errorf("row %d outcome not persisted: %w", row.RowIndex, recordErr)
	}
	return nil
}

// finalizeBatch settles the terminal status from the persisted counters and
// publishes the batch.finished event.
func (s *Service) finalizeBatch(ctx context.Context, batchID uuid.UUID) (*domain.Batch, error) {
	final, err := s.repo.FindBatchByID(ctx, batchID)
	if err != nil {
		return nil, err
	}
	status := domain.BatchStatusCompleted
	if final.FailureCount > 0 {
		status = domain.BatchStatusPartiallyFailed
	}
	if err := s.repo.UpdateBatchStatus(ctx, batchID, status); err != nil {
		return nil, err
	}
	final.Status = status

	if s.eventProducer != nil {
		event := rabbitmq.BatchFinishedEvent{
			BatchID:      batchID,
			Status:       string(status),
			SuccessCount: final.SuccessCount,
			FailureCount: final.FailureCount,
			TotalAmount:  final.TotalAmount,
			Timestamp:    time.Now().UTC(),
		}
		if err := s.eventProducer.PublishBatchFinishedEvent(ctx, event); err != nil {
			log.Printf("level=warn component=service op=execute_batch batch_id=%s msg=\"batch event publish failed\" err=%v", batchID, err)
		}
	}
	return final, nil
}

func preCheckWarning(sourceBalance int64, rows []domain.BatchRow) string {
	var required int64
	for _, row := range rows {
		if row.Status == domain.BatchRowStatusSkipped {
			required += row.Amount
		}
	}
	if sourceBalance >= required {
		return ""
	}
	return fmt.Sprintf("source wallet holds %d but the remaining rows require %d; execution will proceed but rows may fail", sourceBalance, required)
}
