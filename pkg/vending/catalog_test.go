package vending

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func mustCatalog(test *testing.T, store Store, options ...ServiceOption) *Catalog {
	test.Helper()
	catalog, err := NewCatalog(store, fixedNow, options...)
	if err != nil {
		test.Fatalf("catalog: %v", err)
	}
	return catalog
}

func TestCatalogCreate(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	seller := seedAccount(test, store, sellerIDValue, sellerEmail, RoleSeller, "0")
	catalog := mustCatalog(test, store)

	product, err := catalog.Create(context.Background(), seller.ID, ProductInput{Name: "  Cola ", Description: "cold", Price: mustDecimal(test, "1.25")})
	if err != nil {
		test.Fatalf("create: %v", err)
	}
	if product.Name != "Cola" || product.OwnerID != seller.ID || product.CreatedBy != sellerEmail || !product.CreatedAt.Equal(fixedTime) {
		test.Fatalf("unexpected product %+v", product)
	}
	stored, ok := store.productOf(product.ID)
	if !ok || !stored.Price.Equal(mustDecimal(test, "1.25")) {
		test.Fatalf("expected stored product, got %+v", stored)
	}
}

func TestCatalogCreateValidation(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name       string
		ownerID    string
		input      ProductInput
		wantKind   ErrorKind
		wantReason error
	}{
		{name: "blank name", ownerID: sellerIDValue, input: ProductInput{Name: " ", Price: mustDecimal(test, "1")}, wantKind: KindInvalidInput, wantReason: ErrInvalidName},
		{name: "negative price", ownerID: sellerIDValue, input: ProductInput{Name: "Cola", Price: mustDecimal(test, "-1")}, wantKind: KindInvalidInput, wantReason: ErrInvalidPrice},
		{name: "sub cent price", ownerID: sellerIDValue, input: ProductInput{Name: "Cola", Price: mustDecimal(test, "0.125")}, wantKind: KindInvalidInput, wantReason: ErrInvalidPrice},
		{name: "unknown owner", ownerID: "ghost", input: ProductInput{Name: "Cola", Price: mustDecimal(test, "1")}, wantKind: KindNotFound, wantReason: ErrUserUnavailable},
	}

	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			store := newStubStore(test)
			seedAccount(test, store, sellerIDValue, sellerEmail, RoleSeller, "0")
			catalog := mustCatalog(test, store)

			_, err := catalog.Create(context.Background(), mustUserID(test, testCase.ownerID), testCase.input)
			expectFailure(test, err, testCase.wantKind, testCase.wantReason)
			products, _ := store.ListProducts(context.Background(), maxListLimit)
			if len(products) != 0 {
				test.Fatalf("expected no products, got %d", len(products))
			}
		})
	}
}

func TestCatalogOwnerChecks(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name string
		run  func(catalog *Catalog, callerID UserID, productID ProductID) error
	}{
		{
			name: "update",
			run: func(catalog *Catalog, callerID UserID, productID ProductID) error {
				_, err := catalog.Update(context.Background(), callerID, productID, ProductInput{Name: "Hijacked", Price: decimal.Zero})
				return err
			},
		},
		{
			name: "delete",
			run: func(catalog *Catalog, callerID UserID, productID ProductID) error {
				return catalog.Delete(context.Background(), callerID, productID)
			},
		},
	}

	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			store := newStubStore(test)
			owner := seedAccount(test, store, sellerIDValue, sellerEmail, RoleSeller, "0")
			stranger := seedAccount(test, store, strangerIDValue, strangerEmail, RoleSeller, "0")
			product := seedProduct(test, store, owner, "Cola", "1.25")
			catalog := mustCatalog(test, store)

			err := testCase.run(catalog, stranger.ID, product.ID)
			expectFailure(test, err, KindPermissionDenied, ErrPermissionDenied)
			stored, ok := store.productOf(product.ID)
			if !ok {
				test.Fatalf("expected product to survive")
			}
			if stored.Name != "Cola" || !stored.Price.Equal(product.Price) || !stored.ModifiedAt.IsZero() {
				test.Fatalf("expected product unchanged, got %+v", stored)
			}
		})
	}
}

func TestCatalogOwnerUpdatesAndDeletes(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	owner := seedAccount(test, store, sellerIDValue, sellerEmail, RoleSeller, "0")
	product := seedProduct(test, store, owner, "Cola", "1.25")
	catalog := mustCatalog(test, store)

	updated, err := catalog.Update(context.Background(), owner.ID, product.ID, ProductInput{Name: "Diet Cola", Description: "zero", Price: mustDecimal(test, "1.40")})
	if err != nil {
		test.Fatalf("update: %v", err)
	}
	if updated.Name != "Diet Cola" || updated.ModifiedBy != sellerEmail || !updated.ModifiedAt.Equal(fixedTime) || updated.CreatedBy != sellerEmail {
		test.Fatalf("unexpected update %+v", updated)
	}

	_, err = catalog.Update(context.Background(), owner.ID, product.ID, ProductInput{Name: "Diet Cola", Price: mustDecimal(test, "-2")})
	expectFailure(test, err, KindInvalidInput, ErrInvalidPrice)

	if err := catalog.Delete(context.Background(), owner.ID, product.ID); err != nil {
		test.Fatalf("delete: %v", err)
	}
	_, err = catalog.Get(context.Background(), product.ID)
	expectFailure(test, err, KindNotFound, ErrInvalidProduct)
	err = catalog.Delete(context.Background(), owner.ID, product.ID)
	expectFailure(test, err, KindNotFound, ErrInvalidProduct)
}

func TestCatalogRejectsCallersWithoutAccount(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	owner := seedAccount(test, store, sellerIDValue, sellerEmail, RoleSeller, "0")
	product := seedProduct(test, store, owner, "Cola", "1.25")
	catalog := mustCatalog(test, store)
	delete(store.accounts, owner.ID)

	_, err := catalog.Update(context.Background(), owner.ID, product.ID, ProductInput{Name: "Cola", Price: mustDecimal(test, "1")})
	expectFailure(test, err, KindNotFound, ErrUserUnavailable)
	err = catalog.Delete(context.Background(), owner.ID, product.ID)
	expectFailure(test, err, KindNotFound, ErrUserUnavailable)
	if _, ok := store.productOf(product.ID); !ok {
		test.Fatalf("expected product to survive")
	}
}

func TestCatalogWriteFailures(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	owner := seedAccount(test, store, sellerIDValue, sellerEmail, RoleSeller, "0")
	product := seedProduct(test, store, owner, "Cola", "1.25")
	store.saveProductErr = ErrNoRowsAffected
	store.deleteProductErr = errStoreFailure
	catalog := mustCatalog(test, store)

	_, err := catalog.Update(context.Background(), owner.ID, product.ID, ProductInput{Name: "Cola", Price: mustDecimal(test, "1")})
	expectFailure(test, err, KindPersistenceFailure, ErrProductWriteFailed)
	err = catalog.Delete(context.Background(), owner.ID, product.ID)
	expectFailure(test, err, KindPersistenceFailure, ErrProductWriteFailed)
	if !errors.Is(err, errStoreFailure) {
		test.Fatalf("expected cause to be kept, got %v", err)
	}
}

func TestCatalogListNewestFirst(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	owner := seedAccount(test, store, sellerIDValue, sellerEmail, RoleSeller, "0")
	clock := fixedTime
	catalog, err := NewCatalog(store, func() time.Time { return clock })
	if err != nil {
		test.Fatalf("catalog: %v", err)
	}
	for _, name := range []string{"first", "second", "third"} {
		if _, err := catalog.Create(context.Background(), owner.ID, ProductInput{Name: name, Price: mustDecimal(test, "1")}); err != nil {
			test.Fatalf("create %s: %v", name, err)
		}
		clock = clock.Add(time.Minute)
	}
	products, err := catalog.List(context.Background(), 2)
	if err != nil {
		test.Fatalf("list: %v", err)
	}
	if len(products) != 2 || products[0].Name != "third" || products[1].Name != "second" {
		test.Fatalf("unexpected listing %+v", products)
	}
}
