package vending

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Service composes the balance ledger, checkout, product catalog and account
// directory over one Store and one SessionCache.
type Service struct {
	ledger    *BalanceLedger
	purchases *PurchaseOrchestrator
	catalog   *Catalog
	directory *Directory
	sessions  *SessionGuard
}

// NewService wires a Service.
func NewService(store Store, cache SessionCache, credentials Credentials, tokens TokenIssuer, now func() time.Time, options ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	configured := applyOptions(options)
	sessions, err := NewSessionGuard(cache, configured.sessionTTL)
	if err != nil {
		return nil, err
	}
	ledger, err := NewBalanceLedger(store, now, options...)
	if err != nil {
		return nil, err
	}
	purchases, err := NewPurchaseOrchestrator(store, ledger, options...)
	if err != nil {
		return nil, err
	}
	catalog, err := NewCatalog(store, now, options...)
	if err != nil {
		return nil, err
	}
	directory, err := NewDirectory(store, sessions, credentials, tokens, now, options...)
	if err != nil {
		return nil, err
	}
	return &Service{
		ledger:    ledger,
		purchases: purchases,
		catalog:   catalog,
		directory: directory,
		sessions:  sessions,
	}, nil
}

// Register creates a Buyer or Seller account.
func (service *Service) Register(ctx context.Context, registration Registration) (Account, error) {
	return service.directory.Register(ctx, registration)
}

// Login claims the session slot and issues a bearer token.
func (service *Service) Login(ctx context.Context, email string, password string) (LoginResult, error) {
	return service.directory.Login(ctx, email, password)
}

// Logout ends every session of the account.
func (service *Service) Logout(ctx context.Context, email string, password string) error {
	return service.directory.Logout(ctx, email, password)
}

// Account returns an account by id.
func (service *Service) Account(ctx context.Context, userID UserID) (Account, error) {
	return service.directory.Get(ctx, userID)
}

// HasActiveSession reports whether the account holds a live session marker.
func (service *Service) HasActiveSession(ctx context.Context, account Account) (bool, error) {
	return service.directory.HasActiveSession(ctx, account)
}

// UpdateProfile changes the caller's names.
func (service *Service) UpdateProfile(ctx context.Context, callerID UserID, targetID UserID, update ProfileUpdate) (Account, error) {
	return service.directory.UpdateProfile(ctx, callerID, targetID, update)
}

// DeleteAccount removes the caller's account.
func (service *Service) DeleteAccount(ctx context.Context, callerID UserID, targetID UserID) error {
	return service.directory.Delete(ctx, callerID, targetID)
}

// Roles lists the assignable roles.
func (service *Service) Roles() []Role {
	return service.directory.Roles()
}

// Deposit credits one coin given by its face value in minor units.
func (service *Service) Deposit(ctx context.Context, userID UserID, faceValue int) (Account, error) {
	return service.ledger.Credit(ctx, userID, Coin(faceValue))
}

// Debit subtracts amount from the balance.
func (service *Service) Debit(ctx context.Context, userID UserID, amount decimal.Decimal) (Account, error) {
	return service.ledger.Debit(ctx, userID, amount)
}

// SetBalance overwrites the balance.
func (service *Service) SetBalance(ctx context.Context, userID UserID, balance decimal.Decimal) (Account, error) {
	return service.ledger.SetBalance(ctx, userID, balance)
}

// Reset zeroes the balance.
func (service *Service) Reset(ctx context.Context, userID UserID) (Account, error) {
	return service.ledger.Reset(ctx, userID)
}

// History lists the newest balance events of the account.
func (service *Service) History(ctx context.Context, userID UserID, limit int) ([]BalanceEvent, error) {
	return service.ledger.History(ctx, userID, limit)
}

// Purchase buys products and returns change computed on the remaining balance.
func (service *Service) Purchase(ctx context.Context, userID UserID, productID ProductID, quantity Quantity) (Receipt, error) {
	return service.purchases.Purchase(ctx, userID, productID, quantity)
}

// CreateProduct adds a product owned by ownerID.
func (service *Service) CreateProduct(ctx context.Context, ownerID UserID, input ProductInput) (Product, error) {
	return service.catalog.Create(ctx, ownerID, input)
}

// Product returns a product by id.
func (service *Service) Product(ctx context.Context, productID ProductID) (Product, error) {
	return service.catalog.Get(ctx, productID)
}

// Products lists products, newest first.
func (service *Service) Products(ctx context.Context, limit int) ([]Product, error) {
	return service.catalog.List(ctx, limit)
}

// UpdateProduct changes a product owned by callerID.
func (service *Service) UpdateProduct(ctx context.Context, callerID UserID, productID ProductID, input ProductInput) (Product, error) {
	return service.catalog.Update(ctx, callerID, productID, input)
}

// DeleteProduct removes a product owned by callerID.
func (service *Service) DeleteProduct(ctx context.Context, callerID UserID, productID ProductID) error {
	return service.catalog.Delete(ctx, callerID, productID)
}

// SessionTTL returns the lifetime of a login marker.
func (service *Service) SessionTTL() time.Duration {
	return service.sessions.TTL()
}
