package app

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/transfa/ledger-service/internal/domain"
	"github.com/transfa/ledger-service/internal/store"
)

// fakeRepository is a mutex-guarded in-memory implementation of
// store.Repository with the same transfer semantics as the PostgreSQL engine:
// idempotency replay, validation under the lock, atomic debit+credit+record,
// and single-commit row outcomes. Orchestration tests run against it.
type fakeRepository struct {
	mu           sync.Mutex
	wallets      map[uuid.UUID]*domain.Wallet
	transactions []domain.Transaction
	txnByKey     map[string]uuid.UUID
	txnByID      map[uuid.UUID]*domain.Transaction
	batches      map[uuid.UUID]*domain.Batch
	rowsByBatch  map[uuid.UUID][]domain.BatchRow

	// onRowOutcome, when set, runs after a row outcome becomes durable. Tests
	// use it to interrupt a batch run between two row commits.
	onRowOutcome func()

	// rowOutcomeErr, when set, fails the next RecordBatchRowOutcome call and
	// is then cleared, leaving the row and cursor untouched.
	rowOutcomeErr error
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		wallets:     make(map[uuid.UUID]*domain.Wallet),
		txnByKey:    make(map[string]uuid.UUID),
		txnByID:     make(map[uuid.UUID]*domain.Transaction),
		batches:     make(map[uuid.UUID]*domain.Batch),
		rowsByBatch: make(map[uuid.UUID][]domain.BatchRow),
	}
}

func (f *fakeRepository) addWallet(balance int64, status domain.WalletStatus) uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := uuid.New()
	f.wallets[id] = &domain.Wallet{
		ID:      id,
		OwnerID: uuid.New(),
		Balance: balance,
		Status:  status,
	}
	return id
}

func (f *fakeRepository) removeWallet(walletID uuid.UUID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.wallets, walletID)
}

func (f *fakeRepository) balance(walletID uuid.UUID) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.wallets[walletID].Balance
}

func (f *fakeRepository) balanceSum() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	var sum int64
	for _, w := range f.wallets {
		sum += w.Balance
	}
	return sum
}

func (f *fakeRepository) transactionCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.transactions)
}

func (f *fakeRepository) CreateWallet(ctx context.Context, ownerID uuid.UUID) (*domain.Wallet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w := &domain.Wallet{
		ID:        uuid.New(),
		OwnerID:   ownerID,
		Balance:   0,
		Status:    domain.WalletStatusActive,
		CreatedAt: time.Now(),
	}
	f.wallets[w.ID] = w
	copied := *w
	return &copied, nil
}

func (f *fakeRepository) FindWalletByID(ctx context.Context, walletID uuid.UUID) (*domain.Wallet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.wallets[walletID]
	if !ok {
		return nil, store.ErrWalletNotFound
	}
	copied := *w
	return &copied, nil
}

func (f *fakeRepository) FindWalletsConsistent(ctx context.Context, walletIDs []uuid.UUID) ([]domain.Wallet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	wallets := make([]domain.Wallet, 0, len(walletIDs))
	for _, id := range walletIDs {
		w, ok := f.wallets[id]
		if !ok {
			return nil, store.ErrWalletNotFound
		}
		wallets = append(wallets, *w)
	}
	return wallets, nil
}

func (f *fakeRepository) SetWalletStatus(ctx context.Context, walletID uuid.UUID, status domain.WalletStatus) (*domain.Wallet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.wallets[walletID]
	if !ok {
		return nil, store.ErrWalletNotFound
	}
	w.Status = status
	copied := *w
	return &copied, nil
}

func (f *fakeRepository) Deposit(ctx context.Context, walletID uuid.UUID, amount int64) (*domain.Wallet, error) {
	if amount <= 0 {
		return nil, store.ErrInvalidAmount
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.wallets[walletID]
	if !ok {
		return nil, store.ErrWalletNotFound
	}
	w.Balance += amount
	copied := *w
	return &copied, nil
}

func (f *fakeRepository) ExecuteTransfer(ctx context.Context, params store.TransferParams) (*domain.Transaction, error) {
	if params.Amount <= 0 {
		return nil, store.ErrInvalidAmount
	}
	if params.FromWalletID == params.ToWalletID {
		return nil, store.ErrSameWallet
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if id, ok := f.txnByKey[params.IdempotencyKey]; ok {
		copied := *f.txnByID[id]
		return &copied, nil
	}

	sender, ok := f.wallets[params.FromWalletID]
	if !ok {
		return nil, store.ErrWalletNotFound
	}
	receiver, ok := f.wallets[params.ToWalletID]
	if !ok {
		return nil, store.ErrWalletNotFound
	}
	if sender.Status != domain.WalletStatusActive {
		return nil, store.ErrWalletInactive
	}
	if sender.Balance < params.Amount {
		return nil, store.ErrInsufficientFunds
	}

	sender.Balance -= params.Amount
	receiver.Balance += params.Amount

	txn := domain.Transaction{
		ID:             uuid.New(),
		FromWalletID:   params.FromWalletID,
		ToWalletID:     params.ToWalletID,
		Amount:         params.Amount,
		IdempotencyKey: params.IdempotencyKey,
		BatchID:        params.BatchID,
		CreatedAt:      time.Now(),
	}
	f.transactions = append(f.transactions, txn)
	f.txnByKey[txn.IdempotencyKey] = txn.ID
	stored := txn
	f.txnByID[txn.ID] = &stored

	copied := txn
	return &copied, nil
}

func (f *fakeRepository) FindTransactionByID(ctx context.Context, transactionID uuid.UUID) (*domain.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	txn, ok := f.txnByID[transactionID]
	if !ok {
		return nil, store.ErrTransactionNotFound
	}
	copied := *txn
	return &copied, nil
}

func (f *fakeRepository) FindTransactionsByWallet(ctx context.Context, walletID uuid.UUID) ([]domain.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var txns []domain.Transaction
	for _, txn := range f.transactions {
		if txn.FromWalletID == walletID || txn.ToWalletID == walletID {
			txns = append(txns, txn)
		}
	}
	return txns, nil
}

func (f *fakeRepository) CreateBatch(ctx context.Context, batch *domain.Batch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	batch.CreatedAt = time.Now()
	batch.UpdatedAt = batch.CreatedAt
	stored := *batch
	f.batches[batch.ID] = &stored
	return nil
}

func (f *fakeRepository) FindBatchByID(ctx context.Context, batchID uuid.UUID) (*domain.Batch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.batches[batchID]
	if !ok {
		return nil, store.ErrBatchNotFound
	}
	copied := *b
	return &copied, nil
}

func (f *fakeRepository) FindBatchByIdempotencyKey(ctx context.Context, key string) (*domain.Batch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, b := range f.batches {
		if b.IdempotencyKey != nil && *b.IdempotencyKey == key {
			copied := *b
			return &copied, nil
		}
	}
	return nil, store.ErrBatchNotFound
}

func (f *fakeRepository) FindBatchesByOwner(ctx context.Context, ownerID uuid.UUID) ([]domain.Batch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var batches []domain.Batch
	for _, b := range f.batches {
		if b.OwnerID == ownerID {
			batches = append(batches, *b)
		}
	}
	return batches, nil
}

func (f *fakeRepository) CreateBatchRows(ctx context.Context, rows []domain.BatchRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range rows {
		f.rowsByBatch[row.BatchID] = append(f.rowsByBatch[row.BatchID], row)
	}
	return nil
}

func (f *fakeRepository) FindBatchRows(ctx context.Context, batchID uuid.UUID) ([]domain.BatchRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rows := f.rowsByBatch[batchID]
	copied := make([]domain.BatchRow, len(rows))
	copy(copied, rows)
	return copied, nil
}

func (f *fakeRepository) UpdateBatchStatus(ctx context.Context, batchID uuid.UUID, status domain.BatchStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.batches[batchID]
	if !ok {
		return store.ErrBatchNotFound
	}
	b.Status = status
	return nil
}

func (f *fakeRepository) RecordBatchRowOutcome(ctx context.Context, outcome store.BatchRowOutcome) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rowOutcomeErr != nil {
		err := f.rowOutcomeErr
		f.rowOutcomeErr = nil
		return err
	}
	b, ok := f.batches[outcome.BatchID]
	if !ok {
		return store.ErrBatchNotFound
	}
	rows := f.rowsByBatch[outcome.BatchID]
	for i := range rows {
		if rows[i].ID != outcome.RowID {
			continue
		}
		if outcome.Success {
			rows[i].Status = domain.BatchRowStatusSuccess
			rows[i].TransactionID = outcome.TransactionID
			rows[i].ErrorMessage = nil
			b.SuccessCount++
			b.TotalAmount += outcome.Amount
		} else {
			rows[i].Status = domain.BatchRowStatusFailed
			message := outcome.ErrorMessage
			rows[i].ErrorMessage = &message
			b.FailureCount++
		}
		b.ItemCount++
		b.LastProcessedIndex = outcome.RowIndex
		if f.onRowOutcome != nil {
			f.onRowOutcome()
		}
		return nil
	}
	return store.ErrBatchNotFound
}
