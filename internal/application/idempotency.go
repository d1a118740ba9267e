package application

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/DanielPopoola/wallet-ledger/internal/domain"
)

// maxKeyInstallAttempts bounds the conditional-install retry loop in
// EnsureWithdrawalKey, mirroring original_source's
// wallets/integrations/idempotency.py ensure_transaction_idempotency_key,
// which raises after 3 failed attempts.
const maxKeyInstallAttempts = 3

// GenerateIdempotencyKey returns a random 32-character hex key, the Go
// equivalent of original_source's generate_idempotency_key
// (uuid.uuid4().hex).
func GenerateIdempotencyKey() (string, error) {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("generate idempotency key: %w", err)
	}
	return hex.EncodeToString(buf[:]), nil
}

// IdempotencyService assigns stable idempotency keys to withdrawal
// transactions, with collision-retry, grounded on original_source's
// ensure_transaction_idempotency_key.
type IdempotencyService struct {
	transactions TransactionRepository
	tryInstall   func(ctx context.Context, transactionID int64, key string) (bool, error)
}

// NewIdempotencyService wires the service against a key-install function,
// kept separate from TransactionRepository's normal interface because the
// conditional "set only if currently NULL" semantics are a narrow,
// SQL-specific operation best expressed once in the postgres adapter.
func NewIdempotencyService(repo TransactionRepository, tryInstall func(ctx context.Context, transactionID int64, key string) (bool, error)) *IdempotencyService {
	return &IdempotencyService{transactions: repo, tryInstall: tryInstall}
}

// EnsureWithdrawalKey returns the transaction's idempotency key, generating
// and installing one if it does not already have one. Must run inside a
// unit of work holding a row lock on the transaction to avoid losing a
// concurrently-installed key.
func (s *IdempotencyService) EnsureWithdrawalKey(ctx context.Context, t *domain.Transaction) (string, error) {
	if t.Type != domain.TransactionTypeWithdrawal {
		return "", fmt.Errorf("%w: idempotency keys are only managed for withdrawals", domain.ErrInvalidIdempotencyKey)
	}
	if t.IdempotencyKey != nil && *t.IdempotencyKey != "" {
		return *t.IdempotencyKey, nil
	}

	for attempt := 0; attempt < maxKeyInstallAttempts; attempt++ {
		candidate, err := GenerateIdempotencyKey()
		if err != nil {
			return "", err
		}
		installed, err := s.tryInstall(ctx, t.ID, candidate)
		if err != nil {
			return "", err
		}
		if installed {
			t.IdempotencyKey = &candidate
			return candidate, nil
		}
		// Lost the race to another worker or hit a collision; refresh and
		// check whether a key now exists before retrying.
		fresh, err := s.transactions.FindByID(ctx, t.ID)
		if err != nil {
			return "", err
		}
		if fresh.IdempotencyKey != nil && *fresh.IdempotencyKey != "" {
			t.IdempotencyKey = fresh.IdempotencyKey
			return *fresh.IdempotencyKey, nil
		}
	}

	return "", fmt.Errorf("%w: exhausted %d attempts installing idempotency key for transaction %d", domain.ErrInvalidIdempotencyKey, maxKeyInstallAttempts, t.ID)
}
