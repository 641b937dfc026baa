package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/transfa/ledger-service/internal/domain"
	"github.com/transfa/ledger-service/internal/store"
	"github.com/transfa/ledger-service/pkg/rabbitmq"
)

type recordingPublisher struct {
	mu             sync.Mutex
	transferEvents []rabbitmq.TransferEvent
	batchEvents    []rabbitmq.BatchFinishedEvent
}

func (p *recordingPublisher) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	return nil
}

func (p *recordingPublisher) PublishTransferEvent(ctx context.Context, event rabbitmq.TransferEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.transferEvents = append(p.transferEvents, event)
	return nil
}

func (p *recordingPublisher) PublishBatchFinishedEvent(ctx context.Context, event rabbitmq.BatchFinishedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.batchEvents = append(p.batchEvents, event)
	return nil
}

func (p *recordingPublisher) Close() {}

func TestTransfer_RequiresIdempotencyKey(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo, nil)

	a := repo.addWallet(10000, domain.WalletStatusActive)
	b := repo.addWallet(0, domain.WalletStatusActive)

	_, err := svc.Transfer(context.Background(), domain.TransferRequest{
		FromWalletID: a, ToWalletID: b, Amount: 3000, IdempotencyKey: "   ",
	})
	if !errors.Is(err, ErrMissingIdempotencyKey) {
		t.Fatalf("expected ErrMissingIdempotencyKey, got %v", err)
	}
	if repo.transactionCount() != 0 {
		t.Fatalf("expected no transaction, got %d", repo.transactionCount())
	}
}

func TestTransfer_IdempotentReplay(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo, nil)

	// Wallet A starts at 100.00, wallet B at 0.00 (minor units).
	a := repo.addWallet(10000, domain.WalletStatusActive)
	b := repo.addWallet(0, domain.WalletStatusActive)

	req := domain.TransferRequest{FromWalletID: a, ToWalletID: b, Amount: 3000, IdempotencyKey: "k1"}

	first, err := svc.Transfer(context.Background(), req)
	if err != nil {
		t.Fatalf("first transfer failed: %v", err)
	}
	for i := 0; i < 4; i++ {
		replay, err := svc.Transfer(context.Background(), req)
		if err != nil {
			t.Fatalf("replay %d failed: %v", i, err)
		}
		if replay.ID != first.ID {
			t.Fatalf("replay returned a different transaction: %s vs %s", replay.ID, first.ID)
		}
	}

	if got := repo.transactionCount(); got != 1 {
		t.Fatalf("expected exactly one transaction, got %d", got)
	}
	if got := repo.balance(a); got != 7000 {
		t.Fatalf("expected sender balance 7000, got %d", got)
	}
	if got := repo.balance(b); got != 3000 {
		t.Fatalf("expected receiver balance 3000, got %d", got)
	}
}

func TestTransfer_ConcurrentReplaySameKey(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo, nil)

	a := repo.addWallet(10000, domain.WalletStatusActive)
	b := repo.addWallet(0, domain.WalletStatusActive)
	req := domain.TransferRequest{FromWalletID: a, ToWalletID: b, Amount: 3000, IdempotencyKey: "k1"}

	var wg sync.WaitGroup
	errs := make([]error, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Transfer(context.Background(), req)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("concurrent call %d failed: %v", i, err)
		}
	}
	if got := repo.transactionCount(); got != 1 {
		t.Fatalf("expected exactly one transaction after concurrent replays, got %d", got)
	}
	if repo.balance(a) != 7000 || repo.balance(b) != 3000 {
		t.Fatalf("expected balances 7000/3000, got %d/%d", repo.balance(a), repo.balance(b))
	}
}

func TestTransfer_ConservationUnderConcurrentLoad(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo, nil)

	a := repo.addWallet(50000, domain.WalletStatusActive)
	b := repo.addWallet(50000, domain.WalletStatusActive)
	before := repo.balanceSum()

	// Bidirectional concurrent load between the same two wallets.
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_, _ = svc.Transfer(context.Background(), domain.TransferRequest{
				FromWalletID: a, ToWalletID: b, Amount: 700,
				IdempotencyKey: transferKeyForTest("ab", i),
			})
		}(i)
		go func(i int) {
			defer wg.Done()
			_, _ = svc.Transfer(context.Background(), domain.TransferRequest{
				FromWalletID: b, ToWalletID: a, Amount: 900,
				IdempotencyKey: transferKeyForTest("ba", i),
			})
		}(i)
	}
	wg.Wait()

	if after := repo.balanceSum(); after != before {
		t.Fatalf("conservation violated: sum before %d, after %d", before, after)
	}
	if repo.balance(a) < 0 || repo.balance(b) < 0 {
		t.Fatalf("negative balance observed: a=%d b=%d", repo.balance(a), repo.balance(b))
	}
}

func TestTransfer_PreconditionFailures(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo, nil)

	active := repo.addWallet(1000, domain.WalletStatusActive)
	inactive := repo.addWallet(5000, domain.WalletStatusInactive)
	empty := repo.addWallet(0, domain.WalletStatusActive)

	tests := []struct {
		name    string
		req     domain.TransferRequest
		wantErr error
	}{
		{
			name:    "insufficient funds",
			req:     domain.TransferRequest{FromWalletID: empty, ToWalletID: active, Amount: 100, IdempotencyKey: "t1"},
			wantErr: store.ErrInsufficientFunds,
		},
		{
			name:    "inactive sender",
			req:     domain.TransferRequest{FromWalletID: inactive, ToWalletID: active, Amount: 100, IdempotencyKey: "t2"},
			wantErr: store.ErrWalletInactive,
		},
		{
			name:    "non-positive amount",
			req:     domain.TransferRequest{FromWalletID: active, ToWalletID: empty, Amount: 0, IdempotencyKey: "t3"},
			wantErr: store.ErrInvalidAmount,
		},
		{
			name:    "same wallet",
			req:     domain.TransferRequest{FromWalletID: active, ToWalletID: active, Amount: 100, IdempotencyKey: "t4"},
			wantErr: store.ErrSameWallet,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Transfer(context.Background(), tt.req)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}

	if repo.transactionCount() != 0 {
		t.Fatalf("failed transfers must not create transactions, got %d", repo.transactionCount())
	}
}

func TestTransfer_PublishesEvent(t *testing.T) {
	repo := newFakeRepository()
	publisher := &recordingPublisher{}
	svc := NewService(repo, publisher)

	a := repo.addWallet(10000, domain.WalletStatusActive)
	b := repo.addWallet(0, domain.WalletStatusActive)

	txn, err := svc.Transfer(context.Background(), domain.TransferRequest{
		FromWalletID: a, ToWalletID: b, Amount: 2500, IdempotencyKey: "evt-1",
	})
	if err != nil {
		t.Fatalf("transfer failed: %v", err)
	}
	if len(publisher.transferEvents) != 1 {
		t.Fatalf("expected one transfer event, got %d", len(publisher.transferEvents))
	}
	if publisher.transferEvents[0].TransactionID != txn.ID {
		t.Fatalf("event references wrong transaction")
	}
}

func transferKeyForTest(direction string, i int) string {
	return fmt.Sprintf("load_%s_%d", direction, i)
}
