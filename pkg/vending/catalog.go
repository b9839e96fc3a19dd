package vending

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ProductInput carries the mutable product fields.
type ProductInput struct {
	Name        string
	Description string
	Price       decimal.Decimal
}

func (input ProductInput) normalize() (ProductInput, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return ProductInput{}, fail(KindInvalidInput, ErrInvalidName, nil)
	}
	price, err := NewPrice(input.Price)
	if err != nil {
		return ProductInput{}, fail(KindInvalidInput, ErrInvalidPrice, err)
	}
	return ProductInput{
		Name:        name,
		Description: strings.TrimSpace(input.Description),
		Price:       price,
	}, nil
}

// Catalog manages products. Only the creator of a product may change or remove it.
type Catalog struct {
	store    Store
	nowFn    func() time.Time
	recorder operationRecorder
}

// NewCatalog wires a Catalog.
func NewCatalog(store Store, now func() time.Time, options ...ServiceOption) (*Catalog, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	configured := applyOptions(options)
	return &Catalog{store: store, nowFn: now, recorder: operationRecorder{loggers: configured.loggers}}, nil
}

// Create adds a product owned by ownerID.
func (catalog *Catalog) Create(ctx context.Context, ownerID UserID, input ProductInput) (Product, error) {
	var product Product
	operationError := func() error {
		owner, err := catalog.resolveAccount(ctx, ownerID)
		if err != nil {
			return err
		}
		normalized, err := input.normalize()
		if err != nil {
			return err
		}
		product = Product{
			ID:          newProductID(),
			Name:        normalized.Name,
			Description: normalized.Description,
			Price:       normalized.Price,
			OwnerID:     owner.ID,
			CreatedAt:   catalog.nowFn().UTC(),
			CreatedBy:   owner.Email.String(),
		}
		if err := catalog.store.CreateProduct(ctx, product); err != nil {
			product = Product{}
			return fail(KindPersistenceFailure, ErrProductWriteFailed, err)
		}
		return nil
	}()
	catalog.recorder.logOperation(ctx, OperationLog{
		Operation: operationCreateProduct,
		UserID:    ownerID,
		ProductID: product.ID,
		Amount:    product.Price,
		Error:     operationError,
	})
	return product, operationError
}

// Get returns a product by id.
func (catalog *Catalog) Get(ctx context.Context, productID ProductID) (Product, error) {
	product, err := catalog.store.GetProduct(ctx, productID)
	if err != nil {
		if errors.Is(err, ErrProductNotFound) {
			return Product{}, fail(KindNotFound, ErrInvalidProduct, err)
		}
		return Product{}, fail(KindPersistenceFailure, ErrProductUnavailable, err)
	}
	return product, nil
}

// List returns up to limit products, newest first.
func (catalog *Catalog) List(ctx context.Context, limit int) ([]Product, error) {
	products, err := catalog.store.ListProducts(ctx, clampLimit(limit))
	if err != nil {
		return nil, fail(KindPersistenceFailure, ErrProductUnavailable, err)
	}
	return products, nil
}

// Update replaces the mutable fields of a product owned by callerID.
func (catalog *Catalog) Update(ctx context.Context, callerID UserID, productID ProductID, input ProductInput) (Product, error) {
	var product Product
	operationError := func() error {
		current, err := catalog.Get(ctx, productID)
		if err != nil {
			return err
		}
		caller, err := catalog.resolveAccount(ctx, callerID)
		if err != nil {
			return err
		}
		if current.OwnerID != caller.ID {
			return fail(KindPermissionDenied, ErrPermissionDenied, nil)
		}
		normalized, err := input.normalize()
		if err != nil {
			return err
		}
		current.Name = normalized.Name
		current.Description = normalized.Description
		current.Price = normalized.Price
		current.ModifiedAt = catalog.nowFn().UTC()
		current.ModifiedBy = caller.Email.String()
		if err := catalog.store.SaveProduct(ctx, current); err != nil {
			return fail(KindPersistenceFailure, ErrProductWriteFailed, err)
		}
		product = current
		return nil
	}()
	catalog.recorder.logOperation(ctx, OperationLog{
		Operation: operationUpdateProduct,
		UserID:    callerID,
		ProductID: productID,
		Amount:    product.Price,
		Error:     operationError,
	})
	return product, operationError
}

// Delete removes a product owned by callerID.
func (catalog *Catalog) Delete(ctx context.Context, callerID UserID, productID ProductID) error {
	operationError := func() error {
		current, err := catalog.Get(ctx, productID)
		if err != nil {
			return err
		}
		caller, err := catalog.resolveAccount(ctx, callerID)
		if err != nil {
			return err
		}
		if current.OwnerID != caller.ID {
			return fail(KindPermissionDenied, ErrPermissionDenied, nil)
		}
		if err := catalog.store.DeleteProduct(ctx, productID); err != nil {
			return fail(KindPersistenceFailure, ErrProductWriteFailed, err)
		}
		return nil
	}()
	catalog.recorder.logOperation(ctx, OperationLog{
		Operation: operationDeleteProduct,
		UserID:    callerID,
		ProductID: productID,
		Error:     operationError,
	})
	return operationError
}

func (catalog *Catalog) resolveAccount(ctx context.Context, userID UserID) (Account, error) {
	if userID.IsZero() {
		return Account{}, fail(KindNotFound, ErrUserUnavailable, nil)
	}
	account, err := catalog.store.GetAccount(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return Account{}, fail(KindNotFound, ErrUserUnavailable, err)
		}
		return Account{}, fail(KindPersistenceFailure, ErrUserUnavailable, err)
	}
	return account, nil
}
