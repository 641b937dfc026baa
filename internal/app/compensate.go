/**
 * @description
 * This file contains the compensation engine. Compensation is not a rollback:
 * it issues new forward transfers that reverse the economic effect of prior
 * successful batch rows. The original rows and transactions are never mutated,
 * so the audit trail shows both the original and the reversing ledger entry.
 *
 * @dependencies
 * - context: Standard Go library.
 * - github.com/google/uuid: For UUID handling.
 * - internal/domain, internal/store: For domain models and data access.
 */

package app

import (
	"context"
	"log"

	"github.com/google/uuid"
	"github.com/transfa/ledger-service/internal/domain"
	"github.com/transfa/ledger-service/internal/store"
)

// CompensateBatch issues reversal transfers for the requested row indices,
// or for every row when no indices are given. Each reversal runs
// recipient -> source for the original amount under a key deterministic in
// (batchID, rowIndex), so repeated compensation requests for the same row are
// themselves idempotent. Reversal failures are reported per row and do not
// affect other reversals.
func (s *Service) CompensateBatch(ctx context.Context, batchID uuid.UUID, rowIndices []int) ([]domain.CompensationResult, error) {
	batch, err := s.repo.FindBatchByID(ctx, batchID)
	if err != nil {
		return nil, err
	}
	rows, err := s.repo.FindBatchRows(ctx, batchID)
	if err != nil {
		return nil, err
	}

	if len(rowIndices) == 0 {
		rowIndices = make([]int, 0, len(rows))
		for index := range rows {
			rowIndices = append(rowIndices, index)
		}
	}

	results := make([]domain.CompensationResult, 0, len(rowIndices))
	for _, index := range rowIndices {
		results = append(results, s.compensateRow(ctx, batch, rows, index))
	}
	return results, nil
}

func (s *Service) compensateRow(ctx context.Context, batch *domain.Batch, rows []domain.BatchRow, index int) domain.CompensationResult {
	if index < 0 || index >= len(rows) {
		return domain.CompensationResult{
			Index:  index,
			Status: domain.CompensationStatusError,
			Detail: "invalid row index",
		}
	}

	row := rows[index]
	if row.Status != domain.BatchRowStatusSuccess || row.TransactionID == nil {
		return domain.CompensationResult{
			Index:  index,
			Status: domain.CompensationStatusSkipped,
			Detail: "row was not successful, nothing to reverse",
		}
	}

	// Forward transfer reversing the original: recipient pays the source back.
	_, err := s.repo.ExecuteTransfer(ctx, store.TransferParams{
		FromWalletID:   row.RecipientWalletID,
		ToWalletID:     batch.SourceWalletID,
		Amount:         row.Amount,
		IdempotencyKey: reversalIdempotencyKey(batch.ID, index),
	})
	if err != nil {
		log.Printf("level=warn component=service op=compensate_batch batch_id=%s row_index=%d outcome=failed err=%v",
			batch.ID, index, err)
		return domain.CompensationResult{
			Index:  index,
			Status: domain.CompensationStatusFailed,
			Detail: err.Error(),
		}
	}
	return domain.CompensationResult{Index: index, Status: domain.CompensationStatusCompensated}
}
