package gormstore

import (
	"context"
	"errors"
	"time"

	"github.com/MarkoPoloResearchLab/vending/pkg/vending"
	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	defaultMetadataJSON   = "{}"
	pgUniqueViolationCode = "23505"
	sqliteConstraintCode  = 19
	minorUnitExponent     = 2
	errorOperationStore   = "store"
	errorSubjectAccount   = "account"
	errorSubjectProduct   = "product"
	errorSubjectEvent     = "balance_event"
	errorCodeCreate       = "create"
	errorCodeDelete       = "delete"
	errorCodeDuplicate    = "duplicate"
	errorCodeGet          = "get"
	errorCodeInsert       = "insert"
	errorCodeInvalid      = "invalid"
	errorCodeList         = "list"
	errorCodeMigrate      = "migrate"
	errorCodeSave         = "save"
)

// Store implements vending.Store using GORM.
type Store struct {
	db *gorm.DB
}

// New returns a Store backed by gorm.DB.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates or updates the tables owned by the store.
func (store *Store) Migrate(ctx context.Context) error {
	if err := store.db.WithContext(ctx).AutoMigrate(Models()...); err != nil {
		return wrapStoreError("schema", errorCodeMigrate, err)
	}
	return nil
}

// WithTx executes fn within a transaction.
func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore vending.Store) error) error {
	return store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		return fn(ctx, &Store{db: transaction})
	})
}

func (store *Store) GetAccount(ctx context.Context, userID vending.UserID) (vending.Account, error) {
	var row Account
	err := store.db.WithContext(ctx).Where("account_id = ?", userID.String()).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return vending.Account{}, wrapStoreError(errorSubjectAccount, errorCodeGet, vending.ErrAccountNotFound)
		}
		return vending.Account{}, wrapStoreError(errorSubjectAccount, errorCodeGet, err)
	}
	account, err := mapAccount(row)
	if err != nil {
		return vending.Account{}, wrapStoreError(errorSubjectAccount, errorCodeInvalid, err)
	}
	return account, nil
}

func (store *Store) FindAccountByEmail(ctx context.Context, email vending.Email) (vending.Account, error) {
	var row Account
	err := store.db.WithContext(ctx).Where("email = ?", email.String()).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return vending.Account{}, wrapStoreError(errorSubjectAccount, errorCodeGet, vending.ErrAccountNotFound)
		}
		return vending.Account{}, wrapStoreError(errorSubjectAccount, errorCodeGet, err)
	}
	account, err := mapAccount(row)
	if err != nil {
		return vending.Account{}, wrapStoreError(errorSubjectAccount, errorCodeInvalid, err)
	}
	return account, nil
}

func (store *Store) CreateAccount(ctx context.Context, account vending.Account) error {
	row := Account{
		AccountID:    account.ID.String(),
		Email:        account.Email.String(),
		FirstName:    account.FirstName,
		LastName:     account.LastName,
		Role:         account.Role.String(),
		PasswordHash: account.PasswordHash,
		Balance:      account.Balance,
		CreatedAt:    timeOrNow(account.CreatedAt),
		CreatedBy:    account.CreatedBy,
	}
	err := store.db.WithContext(ctx).Create(&row).Error
	if isUniqueViolation(err) {
		return wrapStoreError(errorSubjectAccount, errorCodeDuplicate, vending.ErrAccountExists)
	}
	if err != nil {
		return wrapStoreError(errorSubjectAccount, errorCodeCreate, err)
	}
	return nil
}

func (store *Store) SaveAccount(ctx context.Context, account vending.Account) error {
	result := store.db.WithContext(ctx).
		Model(&Account{}).
		Where("account_id = ?", account.ID.String()).
		Updates(map[string]any{
			"first_name":  account.FirstName,
			"last_name":   account.LastName,
			"role":        account.Role.String(),
			"balance":     account.Balance,
			"modified_at": timePointer(account.ModifiedAt),
			"modified_by": account.ModifiedBy,
		})
	if result.Error != nil {
		return wrapStoreError(errorSubjectAccount, errorCodeSave, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectAccount, errorCodeSave, vending.ErrNoRowsAffected)
	}
	return nil
}

func (store *Store) DeleteAccount(ctx context.Context, userID vending.UserID) error {
	result := store.db.WithContext(ctx).Where("account_id = ?", userID.String()).Delete(&Account{})
	if result.Error != nil {
		return wrapStoreError(errorSubjectAccount, errorCodeDelete, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectAccount, errorCodeDelete, vending.ErrNoRowsAffected)
	}
	return nil
}

func (store *Store) GetProduct(ctx context.Context, productID vending.ProductID) (vending.Product, error) {
	var row Product
	err := store.db.WithContext(ctx).Where("product_id = ?", productID.String()).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return vending.Product{}, wrapStoreError(errorSubjectProduct, errorCodeGet, vending.ErrProductNotFound)
		}
		return vending.Product{}, wrapStoreError(errorSubjectProduct, errorCodeGet, err)
	}
	product, err := mapProduct(row)
	if err != nil {
		return vending.Product{}, wrapStoreError(errorSubjectProduct, errorCodeInvalid, err)
	}
	return product, nil
}

func (store *Store) ListProducts(ctx context.Context, limit int) ([]vending.Product, error) {
	var rows []Product
	err := store.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectProduct, errorCodeList, err)
	}
	products := make([]vending.Product, 0, len(rows))
	for _, row := range rows {
		product, err := mapProduct(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectProduct, errorCodeInvalid, err)
		}
		products = append(products, product)
	}
	return products, nil
}

func (store *Store) CreateProduct(ctx context.Context, product vending.Product) error {
	row := Product{
		ProductID:   product.ID.String(),
		Name:        product.Name,
		Description: product.Description,
		Price:       product.Price,
		OwnerID:     product.OwnerID.String(),
		CreatedAt:   timeOrNow(product.CreatedAt),
		CreatedBy:   product.CreatedBy,
	}
	if err := store.db.WithContext(ctx).Create(&row).Error; err != nil {
		return wrapStoreError(errorSubjectProduct, errorCodeCreate, err)
	}
	return nil
}

func (store *Store) SaveProduct(ctx context.Context, product vending.Product) error {
	result := store.db.WithContext(ctx).
		Model(&Product{}).
		Where("product_id = ?", product.ID.String()).
		Updates(map[string]any{
			"name":        product.Name,
			"description": product.Description,
			"price":       product.Price,
			"modified_at": timePointer(product.ModifiedAt),
			"modified_by": product.ModifiedBy,
		})
	if result.Error != nil {
		return wrapStoreError(errorSubjectProduct, errorCodeSave, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectProduct, errorCodeSave, vending.ErrNoRowsAffected)
	}
	return nil
}

func (store *Store) DeleteProduct(ctx context.Context, productID vending.ProductID) error {
	result := store.db.WithContext(ctx).Where("product_id = ?", productID.String()).Delete(&Product{})
	if result.Error != nil {
		return wrapStoreError(errorSubjectProduct, errorCodeDelete, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectProduct, errorCodeDelete, vending.ErrNoRowsAffected)
	}
	return nil
}

func (store *Store) InsertBalanceEvent(ctx context.Context, event vending.BalanceEvent) error {
	row := BalanceEvent{
		EventID:      event.ID,
		AccountID:    event.AccountID.String(),
		Type:         string(event.Type),
		Amount:       event.Amount,
		BalanceAfter: event.BalanceAfter,
		Metadata:     datatypesJSON(event.Metadata.String()),
		CreatedAt:    timeOrNow(event.CreatedAt),
	}
	if err := store.db.WithContext(ctx).Create(&row).Error; err != nil {
		return wrapStoreError(errorSubjectEvent, errorCodeInsert, err)
	}
	return nil
}

func (store *Store) ListBalanceEvents(ctx context.Context, userID vending.UserID, limit int) ([]vending.BalanceEvent, error) {
	var rows []BalanceEvent
	err := store.db.WithContext(ctx).
		Where("account_id = ?", userID.String()).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectEvent, errorCodeList, err)
	}
	events := make([]vending.BalanceEvent, 0, len(rows))
	for _, row := range rows {
		event, err := mapBalanceEvent(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectEvent, errorCodeInvalid, err)
		}
		events = append(events, event)
	}
	return events, nil
}

func wrapStoreError(subject string, code string, err error) error {
	return vending.WrapError(errorOperationStore, subject, code, err)
}

func mapAccount(row Account) (vending.Account, error) {
	userID, err := vending.NewUserID(row.AccountID)
	if err != nil {
		return vending.Account{}, err
	}
	email, err := vending.NewEmail(row.Email)
	if err != nil {
		return vending.Account{}, err
	}
	role, err := vending.ParseRole(row.Role)
	if err != nil {
		return vending.Account{}, err
	}
	return vending.Account{
		ID:           userID,
		Email:        email,
		FirstName:    row.FirstName,
		LastName:     row.LastName,
		Role:         role,
		PasswordHash: row.PasswordHash,
		Balance:      row.Balance.Round(minorUnitExponent),
		CreatedAt:    row.CreatedAt.UTC(),
		CreatedBy:    row.CreatedBy,
		ModifiedAt:   timeOrZero(row.ModifiedAt),
		ModifiedBy:   row.ModifiedBy,
	}, nil
}

func mapProduct(row Product) (vending.Product, error) {
	productID, err := vending.NewProductID(row.ProductID)
	if err != nil {
		return vending.Product{}, err
	}
	ownerID, err := vending.NewUserID(row.OwnerID)
	if err != nil {
		return vending.Product{}, err
	}
	return vending.Product{
		ID:          productID,
		Name:        row.Name,
		Description: row.Description,
		Price:       row.Price.Round(minorUnitExponent),
		OwnerID:     ownerID,
		CreatedAt:   row.CreatedAt.UTC(),
		CreatedBy:   row.CreatedBy,
		ModifiedAt:  timeOrZero(row.ModifiedAt),
		ModifiedBy:  row.ModifiedBy,
	}, nil
}

func mapBalanceEvent(row BalanceEvent) (vending.BalanceEvent, error) {
	accountID, err := vending.NewUserID(row.AccountID)
	if err != nil {
		return vending.BalanceEvent{}, err
	}
	eventType, err := vending.ParseBalanceEventType(row.Type)
	if err != nil {
		return vending.BalanceEvent{}, err
	}
	metadata, err := vending.NewMetadataJSON(string(row.Metadata))
	if err != nil {
		return vending.BalanceEvent{}, err
	}
	return vending.BalanceEvent{
		ID:           row.EventID,
		AccountID:    accountID,
		Type:         eventType,
		Amount:       row.Amount.Round(minorUnitExponent),
		BalanceAfter: row.BalanceAfter.Round(minorUnitExponent),
		Metadata:     metadata,
		CreatedAt:    row.CreatedAt.UTC(),
	}, nil
}

func timeOrNow(value time.Time) time.Time {
	if value.IsZero() {
		return time.Now().UTC()
	}
	return value.UTC()
}

func timePointer(value time.Time) *time.Time {
	if value.IsZero() {
		return nil
	}
	utc := value.UTC()
	return &utc
}

func timeOrZero(value *time.Time) time.Time {
	if value == nil {
		return time.Time{}
	}
	return value.UTC()
}

func datatypesJSON(raw string) datatypes.JSON {
	if raw == "" {
		return datatypes.JSON([]byte(defaultMetadataJSON))
	}
	return datatypes.JSON([]byte(raw))
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xFF == sqliteConstraintCode
	}
	return false
}
