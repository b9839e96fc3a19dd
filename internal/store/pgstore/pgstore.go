package pgstore

import (
	"context"
	"errors"
	"time"

	"github.com/MarkoPoloResearchLab/vending/pkg/vending"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const (
	pgUniqueViolationCode   = "23505"
	errorOperationStore     = "store"
	errorSubjectAccount     = "account"
	errorSubjectProduct     = "product"
	errorSubjectEvent       = "balance_event"
	errorSubjectSchema      = "schema"
	errorSubjectTransaction = "transaction"
	errorCodeBegin          = "begin"
	errorCodeCommit         = "commit"
	errorCodeCreate         = "create"
	errorCodeDelete         = "delete"
	errorCodeDuplicate      = "duplicate"
	errorCodeGet            = "get"
	errorCodeInsert         = "insert"
	errorCodeInvalid        = "invalid"
	errorCodeList           = "list"
	errorCodeMigrate        = "migrate"
	errorCodeSave           = "save"

	sqlCreateSchema = `
		create table if not exists accounts (
			account_id uuid primary key,
			email text not null,
			first_name text not null,
			last_name text not null,
			role text not null,
			password_hash text not null,
			balance numeric(18,2) not null default 0,
			created_at timestamptz not null,
			created_by text not null,
			modified_at timestamptz,
			modified_by text
		);
		create unique index if not exists idx_accounts_email on accounts(email);
		create table if not exists products (
			product_id uuid primary key,
			name text not null,
			description text not null default '',
			price numeric(18,2) not null,
			owner_id uuid not null,
			created_at timestamptz not null,
			created_by text not null,
			modified_at timestamptz,
			modified_by text
		);
		create index if not exists idx_products_owner on products(owner_id);
		create index if not exists idx_products_created on products(created_at);
		create table if not exists balance_events (
			event_id uuid primary key,
			account_id uuid not null,
			type text not null,
			amount numeric(18,2) not null,
			balance_after numeric(18,2) not null,
			metadata jsonb not null,
			created_at timestamptz not null
		);
		create index if not exists idx_balance_events_account_created on balance_events(account_id, created_at);
	`

	accountColumns = `account_id::text, email, first_name, last_name, role, password_hash, balance::text, created_at, created_by, modified_at, coalesce(modified_by,'')`
	productColumns = `product_id::text, name, description, price::text, owner_id::text, created_at, created_by, modified_at, coalesce(modified_by,'')`

	sqlSelectAccountByID    = `select ` + accountColumns + ` from accounts where account_id = $1`
	sqlSelectAccountByEmail = `select ` + accountColumns + ` from accounts where email = $1`

	sqlInsertAccount = `
		insert into accounts(account_id, email, first_name, last_name, role, password_hash, balance, created_at, created_by)
		values ($1, $2, $3, $4, $5, $6, $7::numeric, $8, $9)
	`

	sqlUpdateAccount = `
		update accounts
		set first_name = $2, last_name = $3, role = $4, balance = $5::numeric, modified_at = $6, modified_by = $7
		where account_id = $1
	`

	sqlDeleteAccount = `delete from accounts where account_id = $1`

	sqlSelectProductByID = `select ` + productColumns + ` from products where product_id = $1`
	sqlListProducts      = `select ` + productColumns + ` from products order by created_at desc limit $1`

	sqlInsertProduct = `
		insert into products(product_id, name, description, price, owner_id, created_at, created_by)
		values ($1, $2, $3, $4::numeric, $5, $6, $7)
	`

	sqlUpdateProduct = `
		update products
		set name = $2, description = $3, price = $4::numeric, modified_at = $5, modified_by = $6
		where product_id = $1
	`

	sqlDeleteProduct = `delete from products where product_id = $1`

	sqlInsertBalanceEvent = `
		insert into balance_events(event_id, account_id, type, amount, balance_after, metadata, created_at)
		values ($1, $2, $3, $4::numeric, $5::numeric, coalesce(nullif($6,''),'{}')::jsonb, $7)
	`

	sqlListBalanceEvents = `
		select event_id::text, account_id::text, type, amount::text, balance_after::text, metadata::text, created_at
		from balance_events
		where account_id = $1
		order by created_at desc
		limit $2
	`
)

// querier is the subset of pgx shared by the pool and an open transaction.
type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements vending.Store using a pgx connection pool (autocommit).
type Store struct {
	pool *pgxpool.Pool
	db   querier
}

// New returns a Store backed by a pgx pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, db: pool}
}

// Migrate creates the tables when they do not exist.
func (store *Store) Migrate(ctx context.Context) error {
	if _, err := store.db.Exec(ctx, sqlCreateSchema); err != nil {
		return wrapStoreError(errorSubjectSchema, errorCodeMigrate, err)
	}
	return nil
}

// WithTx runs fn in a transaction. Nested calls reuse the open transaction.
func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore vending.Store) error) error {
	if store.pool == nil {
		return fn(ctx, store)
	}
	tx, err := store.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return wrapStoreError(errorSubjectTransaction, errorCodeBegin, err)
	}
	if err := fn(ctx, &Store{db: tx}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return wrapStoreError(errorSubjectTransaction, errorCodeCommit, err)
	}
	return nil
}

func (store *Store) GetAccount(ctx context.Context, userID vending.UserID) (vending.Account, error) {
	account, err := scanAccount(store.db.QueryRow(ctx, sqlSelectAccountByID, userID.String()))
	if err != nil {
		return vending.Account{}, classifyAccountError(err)
	}
	return account, nil
}

func (store *Store) FindAccountByEmail(ctx context.Context, email vending.Email) (vending.Account, error) {
	account, err := scanAccount(store.db.QueryRow(ctx, sqlSelectAccountByEmail, email.String()))
	if err != nil {
		return vending.Account{}, classifyAccountError(err)
	}
	return account, nil
}

func (store *Store) CreateAccount(ctx context.Context, account vending.Account) error {
	_, err := store.db.Exec(ctx, sqlInsertAccount,
		account.ID.String(),
		account.Email.String(),
		account.FirstName,
		account.LastName,
		account.Role.String(),
		account.PasswordHash,
		account.Balance.String(),
		timeOrNow(account.CreatedAt),
		account.CreatedBy,
	)
	if isUniqueViolation(err) {
		return wrapStoreError(errorSubjectAccount, errorCodeDuplicate, vending.ErrAccountExists)
	}
	if err != nil {
		return wrapStoreError(errorSubjectAccount, errorCodeCreate, err)
	}
	return nil
}

func (store *Store) SaveAccount(ctx context.Context, account vending.Account) error {
	tag, err := store.db.Exec(ctx, sqlUpdateAccount,
		account.ID.String(),
		account.FirstName,
		account.LastName,
		account.Role.String(),
		account.Balance.String(),
		timePointer(account.ModifiedAt),
		account.ModifiedBy,
	)
	return checkAffected(errorSubjectAccount, errorCodeSave, tag, err)
}

func (store *Store) DeleteAccount(ctx context.Context, userID vending.UserID) error {
	tag, err := store.db.Exec(ctx, sqlDeleteAccount, userID.String())
	return checkAffected(errorSubjectAccount, errorCodeDelete, tag, err)
}

func (store *Store) GetProduct(ctx context.Context, productID vending.ProductID) (vending.Product, error) {
	product, err := scanProduct(store.db.QueryRow(ctx, sqlSelectProductByID, productID.String()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return vending.Product{}, wrapStoreError(errorSubjectProduct, errorCodeGet, vending.ErrProductNotFound)
		}
		return vending.Product{}, wrapStoreError(errorSubjectProduct, errorCodeGet, err)
	}
	return product, nil
}

func (store *Store) ListProducts(ctx context.Context, limit int) ([]vending.Product, error) {
	rows, err := store.db.Query(ctx, sqlListProducts, limit)
	if err != nil {
		return nil, wrapStoreError(errorSubjectProduct, errorCodeList, err)
	}
	defer rows.Close()
	products := make([]vending.Product, 0, limit)
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, wrapStoreError(errorSubjectProduct, errorCodeInvalid, err)
		}
		products = append(products, product)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreError(errorSubjectProduct, errorCodeList, err)
	}
	return products, nil
}

func (store *Store) CreateProduct(ctx context.Context, product vending.Product) error {
	_, err := store.db.Exec(ctx, sqlInsertProduct,
		product.ID.String(),
		product.Name,
		product.Description,
		product.Price.String(),
		product.OwnerID.String(),
		timeOrNow(product.CreatedAt),
		product.CreatedBy,
	)
	if err != nil {
		return wrapStoreError(errorSubjectProduct, errorCodeCreate, err)
	}
	return nil
}

func (store *Store) SaveProduct(ctx context.Context, product vending.Product) error {
	tag, err := store.db.Exec(ctx, sqlUpdateProduct,
		product.ID.String(),
		product.Name,
		product.Description,
		product.Price.String(),
		timePointer(product.ModifiedAt),
		product.ModifiedBy,
	)
	return checkAffected(errorSubjectProduct, errorCodeSave, tag, err)
}

func (store *Store) DeleteProduct(ctx context.Context, productID vending.ProductID) error {
	tag, err := store.db.Exec(ctx, sqlDeleteProduct, productID.String())
	return checkAffected(errorSubjectProduct, errorCodeDelete, tag, err)
}

func (store *Store) InsertBalanceEvent(ctx context.Context, event vending.BalanceEvent) error {
	_, err := store.db.Exec(ctx, sqlInsertBalanceEvent,
		event.ID,
		event.AccountID.String(),
		string(event.Type),
		event.Amount.String(),
		event.BalanceAfter.String(),
		event.Metadata.String(),
		timeOrNow(event.CreatedAt),
	)
	if err != nil {
		return wrapStoreError(errorSubjectEvent, errorCodeInsert, err)
	}
	return nil
}

func (store *Store) ListBalanceEvents(ctx context.Context, userID vending.UserID, limit int) ([]vending.BalanceEvent, error) {
	rows, err := store.db.Query(ctx, sqlListBalanceEvents, userID.String(), limit)
	if err != nil {
		return nil, wrapStoreError(errorSubjectEvent, errorCodeList, err)
	}
	defer rows.Close()
	events := make([]vending.BalanceEvent, 0, limit)
	for rows.Next() {
		var (
			eventIDValue      string
			accountIDValue    string
			typeValue         string
			amountValue       string
			balanceAfterValue string
			metadataValue     string
			createdAt         time.Time
		)
		if err := rows.Scan(&eventIDValue, &accountIDValue, &typeValue, &amountValue, &balanceAfterValue, &metadataValue, &createdAt); err != nil {
			return nil, wrapStoreError(errorSubjectEvent, errorCodeList, err)
		}
		event, err := mapBalanceEvent(eventIDValue, accountIDValue, typeValue, amountValue, balanceAfterValue, metadataValue, createdAt)
		if err != nil {
			return nil, wrapStoreError(errorSubjectEvent, errorCodeInvalid, err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreError(errorSubjectEvent, errorCodeList, err)
	}
	return events, nil
}

func scanAccount(row pgx.Row) (vending.Account, error) {
	var (
		accountIDValue string
		emailValue     string
		roleValue      string
		balanceValue   string
		modifiedAt     *time.Time
		account        vending.Account
	)
	if err := row.Scan(
		&accountIDValue,
		&emailValue,
		&account.FirstName,
		&account.LastName,
		&roleValue,
		&account.PasswordHash,
		&balanceValue,
		&account.CreatedAt,
		&account.CreatedBy,
		&modifiedAt,
		&account.ModifiedBy,
	); err != nil {
		return vending.Account{}, err
	}
	var err error
	if account.ID, err = vending.NewUserID(accountIDValue); err != nil {
		return vending.Account{}, err
	}
	if account.Email, err = vending.NewEmail(emailValue); err != nil {
		return vending.Account{}, err
	}
	if account.Role, err = vending.ParseRole(roleValue); err != nil {
		return vending.Account{}, err
	}
	if account.Balance, err = decimal.NewFromString(balanceValue); err != nil {
		return vending.Account{}, err
	}
	account.CreatedAt = account.CreatedAt.UTC()
	if modifiedAt != nil {
		account.ModifiedAt = modifiedAt.UTC()
	}
	return account, nil
}

func scanProduct(row pgx.Row) (vending.Product, error) {
	var (
		productIDValue string
		priceValue     string
		ownerIDValue   string
		modifiedAt     *time.Time
		product        vending.Product
	)
	if err := row.Scan(
		&productIDValue,
		&product.Name,
		&product.Description,
		&priceValue,
		&ownerIDValue,
		&product.CreatedAt,
		&product.CreatedBy,
		&modifiedAt,
		&product.ModifiedBy,
	); err != nil {
		return vending.Product{}, err
	}
	var err error
	if product.ID, err = vending.NewProductID(productIDValue); err != nil {
		return vending.Product{}, err
	}
	if product.OwnerID, err = vending.NewUserID(ownerIDValue); err != nil {
		return vending.Product{}, err
	}
	if product.Price, err = decimal.NewFromString(priceValue); err != nil {
		return vending.Product{}, err
	}
	product.CreatedAt = product.CreatedAt.UTC()
	if modifiedAt != nil {
		product.ModifiedAt = modifiedAt.UTC()
	}
	return product, nil
}

func mapBalanceEvent(eventID, accountID, eventType, amount, balanceAfter, metadata string, createdAt time.Time) (vending.BalanceEvent, error) {
	parsedAccountID, err := vending.NewUserID(accountID)
	if err != nil {
		return vending.BalanceEvent{}, err
	}
	parsedType, err := vending.ParseBalanceEventType(eventType)
	if err != nil {
		return vending.BalanceEvent{}, err
	}
	parsedAmount, err := decimal.NewFromString(amount)
	if err != nil {
		return vending.BalanceEvent{}, err
	}
	parsedBalanceAfter, err := decimal.NewFromString(balanceAfter)
	if err != nil {
		return vending.BalanceEvent{}, err
	}
	parsedMetadata, err := vending.NewMetadataJSON(metadata)
	if err != nil {
		return vending.BalanceEvent{}, err
	}
	return vending.BalanceEvent{
		ID:           eventID,
		AccountID:    parsedAccountID,
		Type:         parsedType,
		Amount:       parsedAmount,
		BalanceAfter: parsedBalanceAfter,
		Metadata:     parsedMetadata,
		CreatedAt:    createdAt.UTC(),
	}, nil
}

func classifyAccountError(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return wrapStoreError(errorSubjectAccount, errorCodeGet, vending.ErrAccountNotFound)
	}
	return wrapStoreError(errorSubjectAccount, errorCodeGet, err)
}

func checkAffected(subject string, code string, tag pgconn.CommandTag, err error) error {
	if err != nil {
		return wrapStoreError(subject, code, err)
	}
	if tag.RowsAffected() == 0 {
		return wrapStoreError(subject, code, vending.ErrNoRowsAffected)
	}
	return nil
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

func wrapStoreError(subject string, code string, err error) error {
	return vending.WrapError(errorOperationStore, subject, code, err)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode
	}
	return false
}
