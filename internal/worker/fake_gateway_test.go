package worker_test

import (
	"context"
	"sync"

	"github.com/DanielPopoola/wallet-ledger/internal/application"
)

// fakeGateway is a hand-rolled application.BankGateway double: the teacher's
// mockery-generated mocks (internal/core/service/mocks.go) use plain struct
// fields for canned responses rather than an expectation DSL, so worker
// tests follow that shape instead of pulling in a mock framework for a
// three-method interface.
type fakeGateway struct {
	mu sync.Mutex

	transferResult *application.TransferResult
	transferErr    error
	transferCalls  []application.TransferRequest

	canQueryStatus bool
	queryResult    *application.TransferResult
	queryErr       error
	queryCalls     []string
}

func (f *fakeGateway) Transfer(ctx context.Context, req application.TransferRequest) (*application.TransferResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transferCalls = append(f.transferCalls, req)
	if f.transferErr != nil {
		return nil, f.transferErr
	}
	result := *f.transferResult
	return &result, nil
}

func (f *fakeGateway) CanQueryStatus() bool {
	return f.canQueryStatus
}

func (f *fakeGateway) QueryStatus(ctx context.Context, idempotencyKey string) (*application.TransferResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queryCalls = append(f.queryCalls, idempotencyKey)
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	result := *f.queryResult
	return &result, nil
}

func (f *fakeGateway) transferCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.transferCalls)
}
