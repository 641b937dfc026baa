/**
 * @description
 * This file contains the PostgreSQL implementation of the Repository interface for
 * wallets and transactions. Batch persistence lives in postgres_batch.go and the
 * transfer engine in postgres_transfer.go.
 *
 * @dependencies
 * - context, errors: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver and connection pool.
 * - github.com/google/uuid: For UUID handling.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/transfa/ledger-service/internal/domain"
)

var (
	ErrWalletNotFound      = errors.New("wallet not found")
	ErrWalletInactive      = errors.New("sender wallet inactive")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrSameWallet          = errors.New("source and destination wallets are the same")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrBatchNotFound       = errors.New("batch not found")
)

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const walletColumns = "id, owner_id, balance, status, created_at, updated_at"

func scanWallet(row pgx.Row) (*domain.Wallet, error) {
	var w domain.Wallet
	err := row.Scan(&w.ID, &w.OwnerID, &w.Balance, &w.Status, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrWalletNotFound
		}
		return nil, err
	}
	return &w, nil
}

// CreateWallet inserts a new wallet with a zero balance and ACTIVE status.
func (r *PostgresRepository) CreateWallet(ctx context.Context, ownerID uuid.UUID) (*domain.Wallet, error) {
	query := `
		INSERT INTO wallets (id, owner_id, balance, status)
		VALUES ($1, $2, 0, $3)
		RETURNING ` + walletColumns
	return scanWallet(r.db.QueryRow(ctx, query, uuid.New(), ownerID, domain.WalletStatusActive))
}

// FindWalletByID retrieves a single wallet. The read takes no row lock, so the
// value is best-effort with respect to in-flight transfers.
func (r *PostgresRepository) FindWalletByID(ctx context.Context, walletID uuid.UUID) (*domain.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE id = $1`
	return scanWallet(r.db.QueryRow(ctx, query, walletID))
}

// uniqueWalletIDs drops duplicate ids while preserving first-seen order, so
// the result-count check below compares against the number of distinct rows
// the query can return.
func uniqueWalletIDs(walletIDs []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(walletIDs))
	unique := make([]uuid.UUID, 0, len(walletIDs))
	for _, id := range walletIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	return unique
}

// FindWalletsConsistent reads a fixed set of wallets in one statement. A single
// statement sees one snapshot, so the returned balances coexisted at a commit
// point even while transfers between them are in flight.
func (r *PostgresRepository) FindWalletsConsistent(ctx context.Context, walletIDs []uuid.UUID) ([]domain.Wallet, error) {
	walletIDs = uniqueWalletIDs(walletIDs)
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE id = ANY($1) ORDER BY id`
	rows, err := r.db.Query(ctx, query, walletIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var wallets []domain.Wallet
	for rows.Next() {
		var w domain.Wallet
		if err := rows.Scan(&w.ID, &w.OwnerID, &w.Balance, &w.Status, &w.CreatedAt, &w.UpdatedAt); err != nil {
			return nil, err
		}
		wallets = append(wallets, w)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(wallets) != len(walletIDs) {
		return nil, ErrWalletNotFound
	}
	return wallets, nil
}

// SetWalletStatus activates or deactivates a wallet.
func (r *PostgresRepository) SetWalletStatus(ctx context.Context, walletID uuid.UUID, status domain.WalletStatus) (*domain.Wallet, error) {
	query := `
		UPDATE wallets SET status = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + walletColumns
	return scanWallet(r.db.QueryRow(ctx, query, walletID, status))
}

// Deposit performs an atomic credit on a wallet. A conditional single-statement
// UPDATE is race-free without an explicit lock and leaves the transfer engine's
// locking and idempotency machinery out of the deposit path.
func (r *PostgresRepository) Deposit(ctx context.Context, walletID uuid.UUID, amount int64) (*domain.Wallet, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	query := `
		UPDATE wallets SET balance = balance + $2, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + walletColumns
	return scanWallet(r.db.QueryRow(ctx, query, walletID, amount))
}

const transactionColumns = "id, from_wallet_id, to_wallet_id, amount, idempotency_key, batch_id, created_at"

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	var t domain.Transaction
	err := row.Scan(&t.ID, &t.FromWalletID, &t.ToWalletID, &t.Amount, &t.IdempotencyKey, &t.BatchID, &t.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return &t, nil
}

// FindTransactionByID retrieves one ledger entry.
func (r *PostgresRepository) FindTransactionByID(ctx context.Context, transactionID uuid.UUID) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`
	return scanTransaction(r.db.QueryRow(ctx, query, transactionID))
}

// FindTransactionsByWallet lists the ledger entries a wallet participated in,
// as sender or receiver, newest first.
func (r *PostgresRepository) FindTransactionsByWallet(ctx context.Context, walletID uuid.UUID) ([]domain.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE from_wallet_id = $1 OR to_wallet_id = $1
		ORDER BY created_at DESC`
	rows, err := r.db.Query(ctx, query, walletID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txns []domain.Transaction
	for rows.Next() {
		var t domain.Transaction
		if err := rows.Scan(&t.ID, &t.FromWalletID, &t.ToWalletID, &t.Amount, &t.IdempotencyKey, &t.BatchID, &t.CreatedAt); err != nil {
			return nil, err
		}
		txns = append(txns, t)
	}
	return txns, rows.Err()
}
