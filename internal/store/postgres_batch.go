/**
 * @description
 * This file contains the PostgreSQL persistence for payout batches and their rows.
 * The critical method is RecordBatchRowOutcome: the row update, the batch counters,
 * and the resumability cursor advance all commit in one database transaction, so a
 * crash between any two rows leaves the cursor pointing at the last durable outcome.
 *
 * @dependencies
 * - context, errors: Standard Go libraries.
 * - github.com/jackc/pgx/v5: For transactions.
 * - internal/domain: For the batch domain models.
 */

package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/transfa/ledger-service/internal/domain"
)

const batchColumns = "id, owner_id, source_wallet_id, status, item_count, success_count, failure_count, total_amount, last_processed_index, idempotency_key, created_at, updated_at"

func scanBatch(row pgx.Row) (*domain.Batch, error) {
	var b domain.Batch
	err := row.Scan(&b.ID, &b.OwnerID, &b.SourceWalletID, &b.Status, &b.ItemCount, &b.SuccessCount,
		&b.FailureCount, &b.TotalAmount, &b.LastProcessedIndex, &b.IdempotencyKey, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrBatchNotFound
		}
		return nil, err
	}
	return &b, nil
}

// CreateBatch inserts a new payout batch in PENDING state with the cursor at -1.
func (r *PostgresRepository) CreateBatch(ctx context.Context, batch *domain.Batch) error {
	query := `
		INSERT INTO batches (id, owner_id, source_wallet_id, status, last_processed_index, idempotency_key)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`
	return r.db.QueryRow(ctx, query,
		batch.ID,
		batch.OwnerID,
		batch.SourceWalletID,
		batch.Status,
		batch.LastProcessedIndex,
		batch.IdempotencyKey,
	).Scan(&batch.CreatedAt, &batch.UpdatedAt)
}

// FindBatchByID retrieves one batch.
func (r *PostgresRepository) FindBatchByID(ctx context.Context, batchID uuid.UUID) (*domain.Batch, error) {
	query := `SELECT ` + batchColumns + ` FROM batches WHERE id = $1`
	return scanBatch(r.db.QueryRow(ctx, query, batchID))
}

// FindBatchByIdempotencyKey looks up a batch by its submission idempotency key.
func (r *PostgresRepository) FindBatchByIdempotencyKey(ctx context.Context, key string) (*domain.Batch, error) {
	query := `SELECT ` + batchColumns + ` FROM batches WHERE idempotency_key = $1`
	return scanBatch(r.db.QueryRow(ctx, query, key))
}

// FindBatchesByOwner lists a user's payout batches, newest first.
func (r *PostgresRepository) FindBatchesByOwner(ctx context.Context, ownerID uuid.UUID) ([]domain.Batch, error) {
	query := `SELECT ` + batchColumns + ` FROM batches WHERE owner_id = $1 ORDER BY created_at DESC`
	rows, err := r.db.Query(ctx, query, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var batches []domain.Batch
	for rows.Next() {
		var b domain.Batch
		if err := rows.Scan(&b.ID, &b.OwnerID, &b.SourceWalletID, &b.Status, &b.ItemCount, &b.SuccessCount,
			&b.FailureCount, &b.TotalAmount, &b.LastProcessedIndex, &b.IdempotencyKey, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}
	return batches, rows.Err()
}

// CreateBatchRows inserts all materialized rows for a batch atomically. Row
// indices are assigned once here and never re-derived from a later upload.
func (r *PostgresRepository) CreateBatchRows(ctx context.Context, rows []domain.BatchRow) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO batch_rows (id, batch_id, row_index, recipient_wallet_id, amount, status)
		VALUES ($1, $2, $3, $4, $5, $6)`
	for _, row := range rows {
		if _, err := tx.Exec(ctx, query,
			row.ID,
			row.BatchID,
			row.RowIndex,
			row.RecipientWalletID,
			row.Amount,
			row.Status,
		); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// FindBatchRows lists a batch's rows in stable index order.
func (r *PostgresRepository) FindBatchRows(ctx context.Context, batchID uuid.UUID) ([]domain.BatchRow, error) {
	query := `
		SELECT id, batch_id, row_index, recipient_wallet_id, amount, status, transaction_id, error_message, created_at, updated_at
		FROM batch_rows
		WHERE batch_id = $1
		ORDER BY row_index`
	rows, err := r.db.Query(ctx, query, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var batchRows []domain.BatchRow
	for rows.Next() {
		var br domain.BatchRow
		if err := rows.Scan(&br.ID, &br.BatchID, &br.RowIndex, &br.RecipientWalletID, &br.Amount,
			&br.Status, &br.TransactionID, &br.ErrorMessage, &br.CreatedAt, &br.UpdatedAt); err != nil {
			return nil, err
		}
		batchRows = append(batchRows, br)
	}
	return batchRows, rows.Err()
}

// UpdateBatchStatus transitions the batch state machine.
func (r *PostgresRepository) UpdateBatchStatus(ctx context.Context, batchID uuid.UUID, status domain.BatchStatus) error {
	result, err := r.db.Exec(ctx,
		`UPDATE batches SET status = $2, updated_at = NOW() WHERE id = $1`, batchID, status)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrBatchNotFound
	}
	return nil
}

// RecordBatchRowOutcome persists one processed row: its terminal status, the
// batch counters, and the cursor advance, all in a single commit.
func (r *PostgresRepository) RecordBatchRowOutcome(ctx context.Context, outcome BatchRowOutcome) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if outcome.Success {
		if _, err := tx.Exec(ctx,
			`UPDATE batch_rows
			 SET status = $2, transaction_id = $3, error_message = NULL, updated_at = NOW()
			 WHERE id = $1`,
			outcome.RowID, domain.BatchRowStatusSuccess, outcome.TransactionID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx,
			`UPDATE batches
			 SET item_count = item_count + 1,
			     success_count = success_count + 1,
			     total_amount = total_amount + $2,
			     last_processed_index = $3,
			     updated_at = NOW()
			 WHERE id = $1`,
			outcome.BatchID, outcome.Amount, outcome.RowIndex); err != nil {
			return err
		}
	} else {
		if _, err := tx.Exec(ctx,
			`UPDATE batch_rows
			 SET status = $2, error_message = $3, updated_at = NOW()
			 WHERE id = $1`,
			outcome.RowID, domain.BatchRowStatusFailed, outcome.ErrorMessage); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx,
			`UPDATE batches
			 SET item_count = item_count + 1,
			     failure_count = failure_count + 1,
			     last_processed_index = $2,
			     updated_at = NOW()
			 WHERE id = $1`,
			outcome.BatchID, outcome.RowIndex); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}
