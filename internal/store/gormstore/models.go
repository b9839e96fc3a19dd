package gormstore

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Account represents the accounts table.
type Account struct {
	AccountID    string          `gorm:"type:uuid;primaryKey"`
	Email        string          `gorm:"not null;uniqueIndex:idx_accounts_email"`
	FirstName    string          `gorm:"not null"`
	LastName     string          `gorm:"not null"`
	Role         string          `gorm:"not null"`
	PasswordHash string          `gorm:"not null"`
	Balance      decimal.Decimal `gorm:"type:numeric(18,2);not null;default:0"`
	CreatedAt    time.Time       `gorm:"not null"`
	CreatedBy    string          `gorm:"not null"`
	ModifiedAt   *time.Time
	ModifiedBy   string
}

func (Account) TableName() string { return "accounts" }

func (account *Account) BeforeCreate(tx *gorm.DB) error {
	if account.AccountID == "" {
		account.AccountID = uuid.NewString()
	}
	return nil
}

// Product mirrors the products table.
type Product struct {
	ProductID   string          `gorm:"type:uuid;primaryKey"`
	Name        string          `gorm:"not null"`
	Description string          `gorm:"not null;default:''"`
	Price       decimal.Decimal `gorm:"type:numeric(18,2);not null"`
	OwnerID     string          `gorm:"type:uuid;not null;index:idx_products_owner"`
	CreatedAt   time.Time       `gorm:"not null;index:idx_products_created"`
	CreatedBy   string          `gorm:"not null"`
	ModifiedAt  *time.Time
	ModifiedBy  string
}

func (Product) TableName() string { return "products" }

func (product *Product) BeforeCreate(tx *gorm.DB) error {
	if product.ProductID == "" {
		product.ProductID = uuid.NewString()
	}
	return nil
}

// BalanceEvent mirrors the balance_events table.
type BalanceEvent struct {
	EventID      string          `gorm:"type:uuid;primaryKey"`
	AccountID    string          `gorm:"type:uuid;not null;index:idx_balance_events_account_created,priority:1"`
	Type         string          `gorm:"not null"`
	Amount       decimal.Decimal `gorm:"type:numeric(18,2);not null"`
	BalanceAfter decimal.Decimal `gorm:"type:numeric(18,2);not null"`
	Metadata     datatypes.JSON  `gorm:"type:jsonb;not null"`
	CreatedAt    time.Time       `gorm:"not null;index:idx_balance_events_account_created,priority:2"`
}

func (BalanceEvent) TableName() string { return "balance_events" }

func (event *BalanceEvent) BeforeCreate(tx *gorm.DB) error {
	if event.EventID == "" {
		event.EventID = uuid.NewString()
	}
	return nil
}

// Models lists every table owned by the store, in migration order.
func Models() []any {
	return []any{&Account{}, &Product{}, &BalanceEvent{}}
}
