package vending

import (
	"context"
	"encoding/json"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// UserID identifies an account owner.
type UserID struct {
	value string
}

// ProductID identifies a product.
type ProductID struct {
	value string
}

// Email is a normalized login address. It doubles as the session marker key.
type Email struct {
	value string
}

// MetadataJSON stores arbitrary event metadata.
type MetadataJSON struct {
	value string
}

// NewUserID validates and normalizes a user id.
func NewUserID(raw string) (UserID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return UserID{}, fmt.Errorf("%w: empty value", ErrInvalidUserID)
	}
	return UserID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id UserID) String() string {
	return id.value
}

// IsZero reports whether the id was never set.
func (id UserID) IsZero() bool {
	return id.value == ""
}

// NewProductID validates a UUID product id.
func NewProductID(raw string) (ProductID, error) {
	parsed, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ProductID{}, fmt.Errorf("%w: %v", ErrInvalidProductID, err)
	}
	return ProductID{value: parsed.String()}, nil
}

func newProductID() ProductID {
	return ProductID{value: uuid.NewString()}
}

// String returns the canonical UUID form.
func (id ProductID) String() string {
	return id.value
}

// NewEmail validates and lower-cases an email address.
func NewEmail(raw string) (Email, error) {
	trimmed := strings.TrimSpace(raw)
	address, err := mail.ParseAddress(trimmed)
	if err != nil || address.Address != trimmed {
		return Email{}, fmt.Errorf("%w: %q", ErrInvalidEmail, raw)
	}
	return Email{value: strings.ToLower(trimmed)}, nil
}

// String returns the normalized address.
func (email Email) String() string {
	return email.value
}

// NewMetadataJSON validates metadata string (defaulting to "{}" for empty inputs).
func NewMetadataJSON(raw string) (MetadataJSON, error) {
	normalized := strings.TrimSpace(raw)
	if normalized == "" {
		normalized = "{}"
	}
	if !json.Valid([]byte(normalized)) {
		return MetadataJSON{}, fmt.Errorf("%w: must be valid json", ErrInvalidMetadataJSON)
	}
	return MetadataJSON{value: normalized}, nil
}

// String returns the normalized JSON blob.
func (metadata MetadataJSON) String() string {
	if metadata.value == "" {
		return "{}"
	}
	return metadata.value
}

func metadataOf(fields map[string]any) MetadataJSON {
	raw, err := json.Marshal(fields)
	if err != nil {
		return MetadataJSON{value: "{}"}
	}
	return MetadataJSON{value: string(raw)}
}

// Role gates which endpoints an account may use.
type Role string

const (
	RoleBuyer  Role = "Buyer"
	RoleSeller Role = "Seller"
)

// ParseRole validates a role name case-insensitively.
func ParseRole(raw string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "buyer":
		return RoleBuyer, nil
	case "seller":
		return RoleSeller, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, raw)
	}
}

// String returns the role name.
func (role Role) String() string {
	return string(role)
}

// Coin is a face value in minor units (hundredths of the currency).
type Coin int

// ParseCoin accepts only face values from the fixed denomination set.
func ParseCoin(raw int) (Coin, error) {
	for _, coin := range acceptedCoins {
		if int(coin) == raw {
			return coin, nil
		}
	}
	return 0, fmt.Errorf("%w: %d", ErrInvalidCoin, raw)
}

// AcceptedCoins returns the denomination set, largest first.
func AcceptedCoins() []Coin {
	coins := make([]Coin, len(acceptedCoins))
	copy(coins, acceptedCoins)
	return coins
}

// Value returns the monetary value of the coin.
func (coin Coin) Value() decimal.Decimal {
	return decimal.New(int64(coin), -minorUnitExponent)
}

// Int returns the face value in minor units.
func (coin Coin) Int() int {
	return int(coin)
}

// Quantity is a positive product count.
type Quantity int

// NewQuantity validates a product count.
func NewQuantity(raw int) (Quantity, error) {
	if raw <= 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidQuantity, raw)
	}
	return Quantity(raw), nil
}

// Int returns the count.
func (quantity Quantity) Int() int {
	return int(quantity)
}

// NewPrice validates that a price is non-negative and fits the minor unit.
func NewPrice(raw decimal.Decimal) (decimal.Decimal, error) {
	if raw.IsNegative() || !raw.Equal(raw.Round(minorUnitExponent)) {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrInvalidPrice, raw.String())
	}
	return raw.Round(minorUnitExponent), nil
}

// Account is a registered user and its balance.
type Account struct {
	ID           UserID
	Email        Email
	FirstName    string
	LastName     string
	Role         Role
	PasswordHash string
	Balance      decimal.Decimal
	CreatedAt    time.Time
	CreatedBy    string
	ModifiedAt   time.Time
	ModifiedBy   string
}

// Product is an item for sale owned by the seller who created it.
type Product struct {
	ID          ProductID
	Name        string
	Description string
	Price       decimal.Decimal
	OwnerID     UserID
	CreatedAt   time.Time
	CreatedBy   string
	ModifiedAt  time.Time
	ModifiedBy  string
}

// BalanceEventType enumerates balance mutations.
type BalanceEventType string

const (
	BalanceEventDeposit  BalanceEventType = "deposit"
	BalanceEventPurchase BalanceEventType = "purchase"
	BalanceEventReset    BalanceEventType = "reset"
	BalanceEventDebit    BalanceEventType = "debit"
	BalanceEventSet      BalanceEventType = "set"
)

// ParseBalanceEventType validates a stored event type.
func ParseBalanceEventType(raw string) (BalanceEventType, error) {
	switch BalanceEventType(raw) {
	case BalanceEventDeposit, BalanceEventPurchase, BalanceEventReset, BalanceEventDebit, BalanceEventSet:
		return BalanceEventType(raw), nil
	default:
		return "", fmt.Errorf("invalid balance event type %q", raw)
	}
}

// A single immutable line in the balance history.
type BalanceEvent struct {
	ID           string
	AccountID    UserID
	Type         BalanceEventType
	Amount       decimal.Decimal
	BalanceAfter decimal.Decimal
	Metadata     MetadataJSON
	CreatedAt    time.Time
}

// AccountStore persists accounts.
type AccountStore interface {
	GetAccount(ctx context.Context, userID UserID) (Account, error)
	FindAccountByEmail(ctx context.Context, email Email) (Account, error)
	CreateAccount(ctx context.Context, account Account) error
	SaveAccount(ctx context.Context, account Account) error
	DeleteAccount(ctx context.Context, userID UserID) error
}

// ProductStore persists products.
type ProductStore interface {
	GetProduct(ctx context.Context, productID ProductID) (Product, error)
	ListProducts(ctx context.Context, limit int) ([]Product, error)
	CreateProduct(ctx context.Context, product Product) error
	SaveProduct(ctx context.Context, product Product) error
	DeleteProduct(ctx context.Context, productID ProductID) error
}

// BalanceEventStore persists the balance history.
type BalanceEventStore interface {
	InsertBalanceEvent(ctx context.Context, event BalanceEvent) error
	ListBalanceEvents(ctx context.Context, userID UserID, limit int) ([]BalanceEvent, error)
}

// Store is the persistence contract used by Service.
// GetAccount/FindAccountByEmail return ErrAccountNotFound, GetProduct returns
// ErrProductNotFound, CreateAccount returns ErrAccountExists on a duplicate email,
// and writes that change nothing return ErrNoRowsAffected.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error
	AccountStore
	ProductStore
	BalanceEventStore
}
