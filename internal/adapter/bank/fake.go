package bank

import (
	"context"
	"fmt"
	"sync"

	"phantom-ledger/internal/core/ports"
)

var _ ports.BankAccountService = (*Fake)(nil)

// Fake is an in-process bank for local runs and tests. It honours idempotency
// keys the way the real bank does.
type Fake struct {
	mu       sync.Mutex
	seq      int
	calls    int
	byKey    map[string]string
	balances map[string]int64
	failNext error
}

func NewFake() *Fake {
	return &Fake{
		byKey:    make(map[string]string),
		balances: make(map[string]int64),
	}
}

func (f *Fake) CreateAccount(ctx context.Context, customer ports.CustomerInfo, idempotencyKey string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.take(); err != nil {
		return "", err
	}
	if ref, ok := f.byKey[idempotencyKey]; ok {
		return ref, nil
	}
	f.seq++
	ref := fmt.Sprintf("ACC-%06d", f.seq)
	f.byKey[idempotencyKey] = ref
	f.balances[ref] = 0
	return ref, nil
}

func (f *Fake) TransferIn(ctx context.Context, accountRef string, amount int64, idempotencyKey string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.take(); err != nil {
		return "", err
	}
	if ref, ok := f.byKey[idempotencyKey]; ok {
		return ref, nil
	}
	if _, ok := f.balances[accountRef]; !ok {
		return "", fmt.Errorf("bank: unknown account %s", accountRef)
	}
	f.seq++
	ref := fmt.Sprintf("TRF-%06d", f.seq)
	f.byKey[idempotencyKey] = ref
	f.balances[accountRef] += amount
	return ref, nil
}

// FailOnce makes the next call return err.
func (f *Fake) FailOnce(err error) {
	f.mu.Lock()
	f.failNext = err
	f.mu.Unlock()
}

// Calls counts every call, failed ones included.
func (f *Fake) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// Balance returns what the fake bank holds for accountRef.
func (f *Fake) Balance(accountRef string) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balances[accountRef]
}

func (f *Fake) take() error {
	f.calls++
	err := f.failNext
	f.failNext = nil
	return err
}
