package app

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/transfa/ledger-service/internal/domain"
	"github.com/transfa/ledger-service/internal/store"
)

// executePartialBatch runs a batch where rows 0 and 1 succeed and row 2 fails,
// and returns the batch and its source wallet.
func executePartialBatch(t *testing.T, svc *Service, repo *fakeRepository) (*domain.Batch, uuid.UUID, []domain.PayoutRow) {
	t.Helper()
	batch, source := newTestBatch(t, svc, repo, 12000)
	rows := payoutRows(repo, 5000, 5000, 5000)
	summary, err := svc.ExecuteBatch(context.Background(), batch.ID, rows)
	if err != nil {
		t.Fatalf("ExecuteBatch failed: %v", err)
	}
	if summary.Success != 2 || summary.Failed != 1 {
		t.Fatalf("fixture expected 2/1, got %d/%d", summary.Success, summary.Failed)
	}
	return batch, source, rows
}

func TestCompensateBatch_ReversesSuccessfulRows(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo, nil)
	batch, source, rows := executePartialBatch(t, svc, repo)

	sumBefore := repo.balanceSum()
	results, err := svc.CompensateBatch(context.Background(), batch.ID, []int{0, 1})
	if err != nil {
		t.Fatalf("CompensateBatch failed: %v", err)
	}
	for _, result := range results {
		if result.Status != domain.CompensationStatusCompensated {
			t.Fatalf("row %d: expected Compensated, got %s (%s)", result.Index, result.Status, result.Detail)
		}
	}

	// The reversals restored the source and drained the recipients.
	if got := repo.balance(source); got != 12000 {
		t.Fatalf("expected source restored to 12000, got %d", got)
	}
	for i := 0; i < 2; i++ {
		if got := repo.balance(rows[i].RecipientWalletID); got != 0 {
			t.Fatalf("recipient %d: expected 0 after reversal, got %d", i, got)
		}
	}
	// Compensation moves value, never creates or destroys it.
	if got := repo.balanceSum(); got != sumBefore {
		t.Fatalf("conservation violated by compensation: before %d, after %d", sumBefore, got)
	}

	// Originals are untouched: the audit trail shows original plus reversal.
	persisted, _ := repo.FindBatchRows(context.Background(), batch.ID)
	for i := 0; i < 2; i++ {
		if persisted[i].Status != domain.BatchRowStatusSuccess || persisted[i].TransactionID == nil {
			t.Fatalf("row %d: compensation must not mutate the original row", i)
		}
	}
	if got := repo.transactionCount(); got != 4 {
		t.Fatalf("expected 2 originals + 2 reversals = 4 transactions, got %d", got)
	}
}

func TestCompensateBatch_RepeatedRequestsAreIdempotent(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo, nil)
	batch, source, _ := executePartialBatch(t, svc, repo)

	for attempt := 0; attempt < 3; attempt++ {
		results, err := svc.CompensateBatch(context.Background(), batch.ID, []int{0})
		if err != nil {
			t.Fatalf("attempt %d failed: %v", attempt, err)
		}
		if results[0].Status != domain.CompensationStatusCompensated {
			t.Fatalf("attempt %d: expected Compensated, got %s", attempt, results[0].Status)
		}
	}

	// Exactly one reversal transaction regardless of retry count.
	if got := repo.transactionCount(); got != 3 {
		t.Fatalf("expected 2 originals + 1 reversal = 3 transactions, got %d", got)
	}
	if got := repo.balance(source); got != 7000 {
		t.Fatalf("expected source at 7000 after one reversal, got %d", got)
	}
}

func TestCompensateBatch_SkipsAndErrors(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo, nil)
	batch, _, _ := executePartialBatch(t, svc, repo)

	results, err := svc.CompensateBatch(context.Background(), batch.ID, []int{2, -1, 99})
	if err != nil {
		t.Fatalf("CompensateBatch failed: %v", err)
	}

	// Row 2 failed during execution: nothing to reverse.
	if results[0].Status != domain.CompensationStatusSkipped {
		t.Fatalf("expected Skipped for failed row, got %s", results[0].Status)
	}
	// Out-of-range indices are reported, not fatal.
	for _, i := range []int{1, 2} {
		if results[i].Status != domain.CompensationStatusError {
			t.Fatalf("index %d: expected Error, got %s", results[i].Index, results[i].Status)
		}
	}
}

func TestCompensateBatch_ReversalFailureIsIsolated(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo, nil)
	batch, _, rows := executePartialBatch(t, svc, repo)

	// Drain recipient 0 so its reversal fails with insufficient funds.
	drain := repo.addWallet(0, domain.WalletStatusActive)
	if _, err := svc.Transfer(context.Background(), domain.TransferRequest{
		FromWalletID: rows[0].RecipientWalletID, ToWalletID: drain, Amount: 5000, IdempotencyKey: "drain-0",
	}); err != nil {
		t.Fatalf("drain transfer failed: %v", err)
	}

	results, err := svc.CompensateBatch(context.Background(), batch.ID, []int{0, 1})
	if err != nil {
		t.Fatalf("CompensateBatch failed: %v", err)
	}
	if results[0].Status != domain.CompensationStatusFailed || results[0].Detail == "" {
		t.Fatalf("expected Failed with detail for drained recipient, got %s (%q)", results[0].Status, results[0].Detail)
	}
	// The other reversal proceeds regardless.
	if results[1].Status != domain.CompensationStatusCompensated {
		t.Fatalf("expected Compensated for row 1, got %s", results[1].Status)
	}
}

func TestCompensateBatch_EmptyIndicesConsidersAllRows(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo, nil)
	batch, source, _ := executePartialBatch(t, svc, repo)

	results, err := svc.CompensateBatch(context.Background(), batch.ID, nil)
	if err != nil {
		t.Fatalf("CompensateBatch failed: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected a result per row, got %d", len(results))
	}
	if results[0].Status != domain.CompensationStatusCompensated ||
		results[1].Status != domain.CompensationStatusCompensated {
		t.Fatalf("expected rows 0 and 1 Compensated, got %s and %s", results[0].Status, results[1].Status)
	}
	if results[2].Status != domain.CompensationStatusSkipped {
		t.Fatalf("expected failed row to be Skipped, got %s", results[2].Status)
	}
	if got := repo.balance(source); got != 12000 {
		t.Fatalf("expected source restored to 12000, got %d", got)
	}
}

func TestCompensateBatch_UnknownBatch(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo, nil)

	_, err := svc.CompensateBatch(context.Background(), uuid.New(), []int{0})
	if !errors.Is(err, store.ErrBatchNotFound) {
		t.Fatalf("expected ErrBatchNotFound, got %v", err)
	}
}
