/**
 * @description
 * This file contains the core business logic for the ledger-service. The `Service`
 * struct orchestrates all money movement operations, coordinating between the
 * database repository and the message broker.
 *
 * Key features:
 * - Implements the wallet use cases: creation, deposits, balance reads, and the
 *   single idempotent transfer primitive.
 * - Publishes events to RabbitMQ for asynchronous processing by other services.
 *   Event delivery is best-effort and never affects ledger outcomes.
 *
 * @dependencies
 * - context, errors, log, time: Standard Go libraries.
 * - github.com/google/uuid: For UUID handling.
 * - internal/domain, internal/store: For domain models and data access.
 * - pkg/rabbitmq: For event publishing.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/transfa/ledger-service/internal/domain"
	"github.com/transfa/ledger-service/internal/store"
	"github.com/transfa/ledger-service/pkg/rabbitmq"
)

var ErrMissingIdempotencyKey = errors.New("idempotency key is required")

// RateLimitError reports a rejected transfer attempt together with the delay
// after which the caller may retry.
type RateLimitError struct {
	RetryAfterSeconds int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("transfer rate limit exceeded, retry after %ds", e.RetryAfterSeconds)
}

// Service provides the core business logic for the ledger.
type Service struct {
	repo          store.Repository
	eventProducer rabbitmq.Publisher

	transferLimiter        *RedisTransferRateLimiter
	transferLimitPerMinute int
}

// NewService creates a new ledger service instance.
func NewService(repo store.Repository, producer rabbitmq.Publisher) *Service {
	return &Service{
		repo:          repo,
		eventProducer: producer,
	}
}

// SetTransferRateLimiter enables distributed per-wallet transfer rate limiting.
func (s *Service) SetTransferRateLimiter(limiter *RedisTransferRateLimiter, limitPerMinute int) {
	s.transferLimiter = limiter
	s.transferLimitPerMinute = limitPerMinute
}

// CreateWallet provisions a new wallet for a user with a zero balance.
func (s *Service) CreateWallet(ctx context.Context, ownerID uuid.UUID) (*domain.Wallet, error) {
	wallet, err := s.repo.CreateWallet(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to create wallet: %w", err)
	}
	log.Printf("level=info component=service op=create_wallet wallet_id=%s owner_id=%s", wallet.ID, ownerID)
	return wallet, nil
}

// GetWallet returns one wallet. The read is best-effort with respect to
// in-flight transfers; use GetWalletsConsistent for a cross-wallet view.
func (s *Service) GetWallet(ctx context.Context, walletID uuid.UUID) (*domain.Wallet, error) {
	return s.repo.FindWalletByID(ctx, walletID)
}

// GetWalletsConsistent reads a fixed set of wallets as of one instant.
func (s *Service) GetWalletsConsistent(ctx context.Context, walletIDs []uuid.UUID) ([]domain.Wallet, error) {
	if len(walletIDs) == 0 {
		return nil, nil
	}
	return s.repo.FindWalletsConsistent(ctx, walletIDs)
}

// SetWalletStatus activates or deactivates a wallet.
func (s *Service) SetWalletStatus(ctx context.Context, walletID uuid.UUID, status domain.WalletStatus) (*domain.Wallet, error) {
	if status != domain.WalletStatusActive && status != domain.WalletStatusInactive {
		return nil, fmt.Errorf("unknown wallet status %q", status)
	}
	return s.repo.SetWalletStatus(ctx, walletID, status)
}

// Deposit credits a wallet from an external funding source. This is the only
// balance mutation outside the transfer engine.
func (s *Service) Deposit(ctx context.Context, walletID uuid.UUID, amount int64) (*domain.Wallet, error) {
	wallet, err := s.repo.Deposit(ctx, walletID, amount)
	if err != nil {
		return nil, err
	}
	log.Printf("level=info component=service op=deposit wallet_id=%s amount=%d", walletID, amount)
	return wallet, nil
}

// Transfer executes one idempotent wallet-to-wallet transfer. For a fixed
// idempotency key, repeated calls produce exactly one transaction and one net
// balance movement, regardless of retry count or concurrency.
func (s *Service) Transfer(ctx context.Context, req domain.TransferRequest) (*domain.Transaction, error) {
	if strings.TrimSpace(req.IdempotencyKey) == "" {
		return nil, ErrMissingIdempotencyKey
	}

	if s.transferLimiter != nil && s.transferLimitPerMinute > 0 {
		count, retryAfter, err := s.transferLimiter.ConsumeRateLimit(
			ctx, "transfer", req.FromWalletID.String(), s.transferLimitPerMinute, time.Minute)
		if err != nil {
			// Limiter outages must not block money movement.
			log.Printf("level=warn component=service op=transfer msg=\"rate limiter unavailable; allowing request\" err=%v", err)
		} else if count > s.transferLimitPerMinute {
			return nil, &RateLimitError{RetryAfterSeconds: retryAfter}
		}
	}

	txn, err := s.repo.ExecuteTransfer(ctx, store.TransferParams{
		FromWalletID:   req.FromWalletID,
		ToWalletID:     req.ToWalletID,
		Amount:         req.Amount,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		return nil, err
	}

	s.publishTransferEvent(ctx, txn)
	return txn, nil
}

// GetTransaction returns one ledger entry.
func (s *Service) GetTransaction(ctx context.Context, transactionID uuid.UUID) (*domain.Transaction, error) {
	return s.repo.FindTransactionByID(ctx, transactionID)
}

// TransactionHistory lists the ledger entries a wallet participated in.
func (s *Service) TransactionHistory(ctx context.Context, walletID uuid.UUID) ([]domain.Transaction, error) {
	if _, err := s.repo.FindWalletByID(ctx, walletID); err != nil {
		return nil, err
	}
	return s.repo.FindTransactionsByWallet(ctx, walletID)
}

func (s *Service) publishTransferEvent(ctx context.Context, txn *domain.Transaction) {
	if s.eventProducer == nil {
		return
	}
	event := rabbitmq.TransferEvent{
		TransactionID: txn.ID,
		FromWalletID:  txn.FromWalletID,
		ToWalletID:    txn.ToWalletID,
		Amount:        txn.Amount,
		BatchID:       txn.BatchID,
		Timestamp:     time.Now().UTC(),
	}
	if err := s.eventProducer.PublishTransferEvent(ctx, event); err != nil {
		log.Printf("level=warn component=service op=transfer msg=\"transfer event publish failed\" transaction_id=%s err=%v", txn.ID, err)
	}
}
