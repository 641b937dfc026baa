/**
 * @description
 * This file contains the transfer engine: the single atomic debit+credit+record
 * primitive every money movement in the system goes through. The whole operation
 * runs inside one database transaction so partially-applied balance changes are
 * never observable.
 *
 * Key properties:
 * - Idempotent replay: a transfer that already committed under the same
 *   idempotency key is returned unchanged, with no side effect.
 * - Deadlock freedom: both wallet rows are locked FOR UPDATE in ascending-id
 *   order regardless of transfer direction, so two opposing transfers between
 *   the same pair can never wait on each other in a cycle.
 * - Conservation: the debit and credit are equal and committed together, so the
 *   global sum of balances is invariant across any sequence of transfers.
 *
 * @dependencies
 * - context, bytes, errors, fmt: Standard Go libraries.
 * - github.com/jackc/pgx/v5, pgconn: For transactions and unique-violation detection.
 * - internal/domain: For the Transaction model.
 */

package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/transfa/ledger-service/internal/domain"
)

// pgUniqueViolation is the PostgreSQL error code for unique constraint violations.
const pgUniqueViolation = "23505"

// orderWalletIDs returns the two wallet ids in ascending byte order. Locks must
// always be acquired in this order, never in caller-supplied from/to order.
func orderWalletIDs(a, b uuid.UUID) (uuid.UUID, uuid.UUID) {
	if bytes.Compare(a[:], b[:]) > 0 {
		return b, a
	}
	return a, b
}

// ExecuteTransfer moves funds between two wallets as one atomic unit.
//
// Steps: replay lookup on the idempotency key, lock both wallet rows in
// ascending-id order, validate sender funds and status under the lock, then
// insert the ledger record and apply both balance updates in the same commit.
// On any failure after locks are taken the transaction rolls back in full.
func (r *PostgresRepository) ExecuteTransfer(ctx context.Context, params TransferParams) (*domain.Transaction, error) {
	if params.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if params.FromWalletID == params.ToWalletID {
		return nil, ErrSameWallet
	}

	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("transfer tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	// 1. Idempotency check: if a transaction already exists for this key, the
	// transfer already happened. Return it unchanged so retries are free.
	existing, err := scanTransaction(tx.QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE idempotency_key = $1`,
		params.IdempotencyKey))
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrTransactionNotFound) {
		return nil, fmt.Errorf("idempotency lookup failed: %w", err)
	}

	// 2. Deterministic lock ordering.
	firstID, secondID := orderWalletIDs(params.FromWalletID, params.ToWalletID)

	first, err := lockWallet(ctx, tx, firstID)
	if err != nil {
		return nil, err
	}
	second, err := lockWallet(ctx, tx, secondID)
	if err != nil {
		return nil, err
	}

	sender := first
	if second.ID == params.FromWalletID {
		sender = second
	}

	// 3. Validation under lock.
	if sender.Status != domain.WalletStatusActive {
		return nil, ErrWalletInactive
	}
	if sender.Balance < params.Amount {
		return nil, ErrInsufficientFunds
	}

	// 4. Atomic mutation: ledger record plus both balance updates, one commit.
	record, err := scanTransaction(tx.QueryRow(ctx,
		`INSERT INTO transactions (id, from_wallet_id, to_wallet_id, amount, idempotency_key, batch_id)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING `+transactionColumns,
		uuid.New(), params.FromWalletID, params.ToWalletID, params.Amount, params.IdempotencyKey, params.BatchID))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			// Lost a replay race: a concurrent call with the same key committed
			// between our lookup and our insert. Roll back and return the winner.
			_ = tx.Rollback(ctx)
			return r.findTransactionByIdempotencyKey(ctx, params.IdempotencyKey)
		}
		return nil, fmt.Errorf("transaction insert failed: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE wallets SET balance = balance - $1, updated_at = NOW() WHERE id = $2`,
		params.Amount, params.FromWalletID); err != nil {
		return nil, fmt.Errorf("debit failed: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`UPDATE wallets SET balance = balance + $1, updated_at = NOW() WHERE id = $2`,
		params.Amount, params.ToWalletID); err != nil {
		return nil, fmt.Errorf("credit failed: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("transfer commit failed: %w", err)
	}
	return record, nil
}

// lockWallet acquires an exclusive row lock on one wallet and returns its state
// as of the lock acquisition.
func lockWallet(ctx context.Context, tx pgx.Tx, walletID uuid.UUID) (*domain.Wallet, error) {
	w, err := scanWallet(tx.QueryRow(ctx,
		`SELECT `+walletColumns+` FROM wallets WHERE id = $1 FOR UPDATE`, walletID))
	if err != nil {
		if errors.Is(err, ErrWalletNotFound) {
			return nil, ErrWalletNotFound
		}
		return nil, fmt.Errorf("wallet lock acquisition failed: %w", err)
	}
	return w, nil
}

func (r *PostgresRepository) findTransactionByIdempotencyKey(ctx context.Context, key string) (*domain.Transaction, error) {
	return scanTransaction(r.db.QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE idempotency_key = $1`, key))
}
