package vending

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BalanceMutation computes an account's new balance from its current state.
type BalanceMutation func(account Account) (decimal.Decimal, error)

// BalanceLedger performs read-modify-write updates of account balances. Each
// update is one account fetch followed by one account write (with its history
// event) through the store.
type BalanceLedger struct {
	store    Store
	nowFn    func() time.Time
	locks    *identityLocks
	recorder operationRecorder
}

// NewBalanceLedger wires a BalanceLedger.
func NewBalanceLedger(store Store, now func() time.Time, options ...ServiceOption) (*BalanceLedger, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	configured := applyOptions(options)
	ledger := &BalanceLedger{
		store:    store,
		nowFn:    now,
		recorder: operationRecorder{loggers: configured.loggers},
	}
	if configured.serializeBalances {
		ledger.locks = newIdentityLocks()
	}
	return ledger, nil
}

// Apply runs mutate against the caller's current account and persists the
// result together with a history event of eventType.
func (ledger *BalanceLedger) Apply(ctx context.Context, userID UserID, eventType BalanceEventType, metadata MetadataJSON, mutate BalanceMutation) (Account, error) {
	if userID.IsZero() {
		return Account{}, fail(KindNotFound, ErrUserUnavailable, nil)
	}
	unlock := ledger.locks.lock(userID)
	defer unlock()

	account, err := ledger.store.GetAccount(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return Account{}, fail(KindNotFound, ErrUserUnavailable, err)
		}
		return Account{}, fail(KindPersistenceFailure, ErrUserUnavailable, err)
	}
	previousBalance := account.Balance
	updatedBalance, err := mutate(account)
	if err != nil {
		return Account{}, err
	}
	updatedBalance = updatedBalance.Round(minorUnitExponent)
	if updatedBalance.IsNegative() {
		return Account{}, fail(KindInsufficientFunds, ErrInsufficientFunds, nil)
	}

	nowUTC := ledger.nowFn().UTC()
	account.Balance = updatedBalance
	account.ModifiedAt = nowUTC
	account.ModifiedBy = account.Email.String()
	event := BalanceEvent{
		ID:           uuid.NewString(),
		AccountID:    account.ID,
		Type:         eventType,
		Amount:       updatedBalance.Sub(previousBalance),
		BalanceAfter: updatedBalance,
		Metadata:     metadata,
		CreatedAt:    nowUTC,
	}
	err = ledger.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		if err := transactionStore.SaveAccount(ctx, account); err != nil {
			return err
		}
		return transactionStore.InsertBalanceEvent(ctx, event)
	})
	if err != nil {
		return Account{}, fail(KindPersistenceFailure, ErrUserUpdateFailed, err)
	}
	return account, nil
}

// Debit subtracts amount from the balance, failing with ErrInsufficientFunds
// when the balance does not cover it.
func (ledger *BalanceLedger) Debit(ctx context.Context, userID UserID, amount decimal.Decimal) (Account, error) {
	var account Account
	operationError := func() error {
		if amount.IsNegative() {
			return fail(KindInvalidInput, ErrInvalidBalance, nil)
		}
		var err error
		account, err = ledger.Apply(ctx, userID, BalanceEventDebit, metadataOf(map[string]any{"amount": amount.StringFixed(minorUnitExponent)}), func(current Account) (decimal.Decimal, error) {
			if amount.GreaterThan(current.Balance) {
				return decimal.Zero, fail(KindInsufficientFunds, ErrInsufficientFunds, nil)
			}
			return current.Balance.Sub(amount), nil
		})
		return err
	}()
	ledger.recorder.logOperation(ctx, OperationLog{
		Operation: operationDebit,
		UserID:    userID,
		Amount:    amount,
		Error:     operationError,
	})
	return account, operationError
}

// Credit deposits one coin. Face values outside the fixed set are rejected
// before the account is read.
func (ledger *BalanceLedger) Credit(ctx context.Context, userID UserID, coin Coin) (Account, error) {
	var account Account
	operationError := func() error {
		accepted, err := ParseCoin(coin.Int())
		if err != nil {
			return fail(KindInvalidInput, ErrInvalidCoin, err)
		}
		account, err = ledger.Apply(ctx, userID, BalanceEventDeposit, metadataOf(map[string]any{"coin": accepted.Int()}), func(current Account) (decimal.Decimal, error) {
			return current.Balance.Add(accepted.Value()), nil
		})
		return err
	}()
	ledger.recorder.logOperation(ctx, OperationLog{
		Operation: operationDeposit,
		UserID:    userID,
		Amount:    coin.Value(),
		Error:     operationError,
	})
	return account, operationError
}

// SetBalance overwrites the balance.
func (ledger *BalanceLedger) SetBalance(ctx context.Context, userID UserID, balance decimal.Decimal) (Account, error) {
	var account Account
	operationError := func() error {
		normalized, err := NewPrice(balance)
		if err != nil {
			return fail(KindInvalidInput, ErrInvalidBalance, err)
		}
		account, err = ledger.Apply(ctx, userID, BalanceEventSet, metadataOf(map[string]any{"balance": normalized.StringFixed(minorUnitExponent)}), func(Account) (decimal.Decimal, error) {
			return normalized, nil
		})
		return err
	}()
	ledger.recorder.logOperation(ctx, OperationLog{
		Operation: operationSetBalance,
		UserID:    userID,
		Amount:    balance,
		Error:     operationError,
	})
	return account, operationError
}

// Reset sets the balance to zero.
func (ledger *BalanceLedger) Reset(ctx context.Context, userID UserID) (Account, error) {
	account, operationError := ledger.Apply(ctx, userID, BalanceEventReset, MetadataJSON{}, func(Account) (decimal.Decimal, error) {
		return decimal.Zero, nil
	})
	ledger.recorder.logOperation(ctx, OperationLog{
		Operation: operationReset,
		UserID:    userID,
		Error:     operationError,
	})
	return account, operationError
}

// History lists the newest balance events for userID.
func (ledger *BalanceLedger) History(ctx context.Context, userID UserID, limit int) ([]BalanceEvent, error) {
	if userID.IsZero() {
		return nil, fail(KindNotFound, ErrUserUnavailable, nil)
	}
	events, err := ledger.store.ListBalanceEvents(ctx, userID, clampLimit(limit))
	if err != nil {
		return nil, fail(KindPersistenceFailure, ErrUserUnavailable, err)
	}
	return events, nil
}

// identityLocks hands out one mutex per identity and forgets it once no caller holds or waits on it.
type identityLocks struct {
	mu      sync.Mutex
	entries map[string]*identityLock
}

type identityLock struct {
	mu      sync.Mutex
	holders int
}

func newIdentityLocks() *identityLocks {
	return &identityLocks{entries: make(map[string]*identityLock)}
}

func (locks *identityLocks) lock(userID UserID) func() {
	if locks == nil {
		return func() {}
	}
	key := userID.String()
	locks.mu.Lock()
	entry, exists := locks.entries[key]
	if !exists {
		entry = &identityLock{}
		locks.entries[key] = entry
	}
	entry.holders++
	locks.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		locks.mu.Lock()
		entry.holders--
		if entry.holders == 0 {
			delete(locks.entries, key)
		}
		locks.mu.Unlock()
	}
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}

func applyOptions(options []ServiceOption) serviceOptions {
	configured := serviceOptions{}
	for _, option := range options {
		if option != nil {
			option(&configured)
		}
	}
	return configured
}
