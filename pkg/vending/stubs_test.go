package vending

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

const (
	buyerIDValue    = "buyer-1"
	sellerIDValue   = "seller-1"
	strangerIDValue = "seller-2"
	buyerEmail      = "buyer@example.com"
	sellerEmail     = "seller@example.com"
	strangerEmail   = "other@example.com"
	validPassword   = "Passw0rd!"
	errStoreMessage = "store error"
	errCacheMessage = "cache error"
)

var (
	errStoreFailure = errors.New(errStoreMessage)
	errCacheFailure = errors.New(errCacheMessage)
	fixedTime       = time.Date(2026, time.March, 14, 9, 26, 53, 0, time.UTC)
)

func fixedNow() time.Time {
	return fixedTime
}

type stubStore struct {
	mu sync.Mutex

	accounts map[UserID]Account
	products map[ProductID]Product
	events   []BalanceEvent

	getAccountErr    error
	findAccountErr   error
	createAccountErr error
	saveAccountErr   error
	deleteAccountErr error
	getProductErr    error
	saveProductErr   error
	deleteProductErr error
	insertEventErr   error

	getAccountCalls  int
	saveAccountCalls int
}

func newStubStore(test *testing.T) *stubStore {
	test.Helper()
	return &stubStore{
		accounts: make(map[UserID]Account),
		products: make(map[ProductID]Product),
	}
}

func (store *stubStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error {
	return fn(ctx, store)
}

func (store *stubStore) GetAccount(_ context.Context, userID UserID) (Account, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.getAccountCalls++
	if store.getAccountErr != nil {
		return Account{}, store.getAccountErr
	}
	account, ok := store.accounts[userID]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return account, nil
}

func (store *stubStore) FindAccountByEmail(_ context.Context, email Email) (Account, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	if store.findAccountErr != nil {
		return Account{}, store.findAccountErr
	}
	for _, account := range store.accounts {
		if strings.EqualFold(account.Email.String(), email.String()) {
			return account, nil
		}
	}
	return Account{}, ErrAccountNotFound
}

func (store *stubStore) CreateAccount(_ context.Context, account Account) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	if store.createAccountErr != nil {
		return store.createAccountErr
	}
	if _, exists := store.accounts[account.ID]; exists {
		return ErrAccountExists
	}
	store.accounts[account.ID] = account
	return nil
}

func (store *stubStore) SaveAccount(_ context.Context, account Account) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.saveAccountCalls++
	if store.saveAccountErr != nil {
		return store.saveAccountErr
	}
	if _, exists := store.accounts[account.ID]; !exists {
		return ErrNoRowsAffected
	}
	store.accounts[account.ID] = account
	return nil
}

func (store *stubStore) DeleteAccount(_ context.Context, userID UserID) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	if store.deleteAccountErr != nil {
		return store.deleteAccountErr
	}
	if _, exists := store.accounts[userID]; !exists {
		return ErrNoRowsAffected
	}
	delete(store.accounts, userID)
	return nil
}

func (store *stubStore) GetProduct(_ context.Context, productID ProductID) (Product, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	if store.getProductErr != nil {
		return Product{}, store.getProductErr
	}
	product, ok := store.products[productID]
	if !ok {
		return Product{}, ErrProductNotFound
	}
	return product, nil
}

func (store *stubStore) ListProducts(_ context.Context, limit int) ([]Product, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	products := make([]Product, 0, len(store.products))
	for _, product := range store.products {
		products = append(products, product)
	}
	sort.Slice(products, func(left, right int) bool {
		return products[left].CreatedAt.After(products[right].CreatedAt)
	})
	if len(products) > limit {
		products = products[:limit]
	}
	return products, nil
}

func (store *stubStore) CreateProduct(_ context.Context, product Product) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.products[product.ID] = product
	return nil
}

func (store *stubStore) SaveProduct(_ context.Context, product Product) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	if store.saveProductErr != nil {
		return store.saveProductErr
	}
	if _, exists := store.products[product.ID]; !exists {
		return ErrNoRowsAffected
	}
	store.products[product.ID] = product
	return nil
}

func (store *stubStore) DeleteProduct(_ context.Context, productID ProductID) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	if store.deleteProductErr != nil {
		return store.deleteProductErr
	}
	if _, exists := store.products[productID]; !exists {
		return ErrNoRowsAffected
	}
	delete(store.products, productID)
	return nil
}

func (store *stubStore) InsertBalanceEvent(_ context.Context, event BalanceEvent) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	if store.insertEventErr != nil {
		return store.insertEventErr
	}
	store.events = append(store.events, event)
	return nil
}

func (store *stubStore) ListBalanceEvents(_ context.Context, userID UserID, limit int) ([]BalanceEvent, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	events := make([]BalanceEvent, 0)
	for index := len(store.events) - 1; index >= 0 && len(events) < limit; index-- {
		if store.events[index].AccountID == userID {
			events = append(events, store.events[index])
		}
	}
	return events, nil
}

func (store *stubStore) putAccount(account Account) {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.accounts[account.ID] = account
}

func (store *stubStore) putProduct(product Product) {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.products[product.ID] = product
}

func (store *stubStore) balanceOf(test *testing.T, userID UserID) decimal.Decimal {
	test.Helper()
	store.mu.Lock()
	defer store.mu.Unlock()
	account, ok := store.accounts[userID]
	if !ok {
		test.Fatalf("account %s missing", userID)
	}
	return account.Balance
}

func (store *stubStore) productOf(productID ProductID) (Product, bool) {
	store.mu.Lock()
	defer store.mu.Unlock()
	product, ok := store.products[productID]
	return product, ok
}

func (store *stubStore) eventCount() int {
	store.mu.Lock()
	defer store.mu.Unlock()
	return len(store.events)
}

type cacheEntry struct {
	value     string
	expiresAt time.Time
}

// stubCache is a conditional cache with a movable clock.
type stubCache struct {
	mu      sync.Mutex
	now     time.Time
	entries map[string]cacheEntry
	getErr  error
	setErr  error
	delErr  error
	lastTTL time.Duration
}

func newStubCache() *stubCache {
	return &stubCache{now: fixedTime, entries: make(map[string]cacheEntry)}
}

func (cache *stubCache) Get(_ context.Context, key string) (string, bool, error) {
	cache.mu.Lock()
	defer cache.mu.Unlock()
	if cache.getErr != nil {
		return "", false, cache.getErr
	}
	entry, ok := cache.entries[key]
	if !ok || !cache.now.Before(entry.expiresAt) {
		return "", false, nil
	}
	return entry.value, true, nil
}

func (cache *stubCache) Set(_ context.Context, key string, value string, ttl time.Duration) error {
	cache.mu.Lock()
	defer cache.mu.Unlock()
	if cache.setErr != nil {
		return cache.setErr
	}
	cache.lastTTL = ttl
	cache.entries[key] = cacheEntry{value: value, expiresAt: cache.now.Add(ttl)}
	return nil
}

func (cache *stubCache) SetIfAbsent(_ context.Context, key string, value string, ttl time.Duration) (bool, error) {
	cache.mu.Lock()
	defer cache.mu.Unlock()
	if cache.setErr != nil {
		return false, cache.setErr
	}
	if entry, ok := cache.entries[key]; ok && cache.now.Before(entry.expiresAt) {
		return false, nil
	}
	cache.lastTTL = ttl
	cache.entries[key] = cacheEntry{value: value, expiresAt: cache.now.Add(ttl)}
	return true, nil
}

func (cache *stubCache) Delete(_ context.Context, key string) error {
	cache.mu.Lock()
	defer cache.mu.Unlock()
	if cache.delErr != nil {
		return cache.delErr
	}
	delete(cache.entries, key)
	return nil
}

func (cache *stubCache) advance(duration time.Duration) {
	cache.mu.Lock()
	defer cache.mu.Unlock()
	cache.now = cache.now.Add(duration)
}

func (cache *stubCache) valueOf(key string) (string, bool) {
	value, found, _ := cache.Get(context.Background(), key)
	return value, found
}

// plainCache hides SetIfAbsent so the guard falls back to Set.
type plainCache struct {
	inner *stubCache
}

func (cache plainCache) Get(ctx context.Context, key string) (string, bool, error) {
	return cache.inner.Get(ctx, key)
}

func (cache plainCache) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	return cache.inner.Set(ctx, key, value, ttl)
}

func (cache plainCache) Delete(ctx context.Context, key string) error {
	return cache.inner.Delete(ctx, key)
}

// racingCache reports a free slot on Get but loses the conditional write.
type racingCache struct {
	*stubCache
}

func (cache racingCache) Get(context.Context, string) (string, bool, error) {
	return "", false, nil
}

func (cache racingCache) SetIfAbsent(context.Context, string, string, time.Duration) (bool, error) {
	return false, nil
}

type stubCredentials struct {
	hashErr error
}

func (credentials stubCredentials) HashPassword(password string) (string, error) {
	if credentials.hashErr != nil {
		return "", credentials.hashErr
	}
	return "hashed:" + password, nil
}

func (credentials stubCredentials) VerifyPassword(hash string, password string) bool {
	return hash == "hashed:"+password
}

type stubTokens struct {
	err error
}

func (tokens stubTokens) IssueToken(account Account) (Token, error) {
	if tokens.err != nil {
		return Token{}, tokens.err
	}
	return Token{Value: "token-" + account.ID.String(), ExpiresAt: fixedTime.Add(time.Hour)}, nil
}

type recorderLogger struct {
	mu      sync.Mutex
	entries []OperationLog
}

func (logger *recorderLogger) LogOperation(_ context.Context, entry OperationLog) {
	logger.mu.Lock()
	defer logger.mu.Unlock()
	logger.entries = append(logger.entries, entry)
}

func mustUserID(test *testing.T, raw string) UserID {
	test.Helper()
	value, err := NewUserID(raw)
	if err != nil {
		test.Fatalf("user id: %v", err)
	}
	return value
}

func mustEmail(test *testing.T, raw string) Email {
	test.Helper()
	value, err := NewEmail(raw)
	if err != nil {
		test.Fatalf("email: %v", err)
	}
	return value
}

func mustDecimal(test *testing.T, raw string) decimal.Decimal {
	test.Helper()
	value, err := decimal.NewFromString(raw)
	if err != nil {
		test.Fatalf("decimal %q: %v", raw, err)
	}
	return value
}

func mustQuantity(test *testing.T, raw int) Quantity {
	test.Helper()
	value, err := NewQuantity(raw)
	if err != nil {
		test.Fatalf("quantity: %v", err)
	}
	return value
}

func seedAccount(test *testing.T, store *stubStore, rawID string, rawEmail string, role Role, balance string) Account {
	test.Helper()
	account := Account{
		ID:           mustUserID(test, rawID),
		Email:        mustEmail(test, rawEmail),
		FirstName:    "Test",
		LastName:     "User",
		Role:         role,
		PasswordHash: "hashed:" + validPassword,
		Balance:      mustDecimal(test, balance),
		CreatedAt:    fixedTime,
		CreatedBy:    defaultCreator,
	}
	store.putAccount(account)
	return account
}

func seedProduct(test *testing.T, store *stubStore, owner Account, name string, price string) Product {
	test.Helper()
	product := Product{
		ID:        newProductID(),
		Name:      name,
		Price:     mustDecimal(test, price),
		OwnerID:   owner.ID,
		CreatedAt: fixedTime,
		CreatedBy: owner.Email.String(),
	}
	store.putProduct(product)
	return product
}

func expectFailure(test *testing.T, err error, wantKind ErrorKind, wantReason error) {
	test.Helper()
	if err == nil {
		test.Fatalf("expected %s failure, got nil", wantKind)
	}
	if KindOf(err) != wantKind {
		test.Fatalf("expected kind %s, got %s (%v)", wantKind, KindOf(err), err)
	}
	if wantReason != nil && !errors.Is(err, wantReason) {
		test.Fatalf("expected reason %v, got %v", wantReason, err)
	}
}

func expectBalance(test *testing.T, store *stubStore, userID UserID, want string) {
	test.Helper()
	got := store.balanceOf(test, userID)
	if !got.Equal(mustDecimal(test, want)) {
		test.Fatalf("expected balance %s, got %s", want, got.String())
	}
}
