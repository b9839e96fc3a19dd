package vending

import (
	"context"
	"reflect"
	"testing"
)

func TestServiceLogsPurchaseOperation(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	buyer := seedAccount(test, store, buyerIDValue, buyerEmail, RoleBuyer, "2.00")
	seller := seedAccount(test, store, sellerIDValue, sellerEmail, RoleSeller, "0")
	product := seedProduct(test, store, seller, "Cola", "0.50")
	logger := &recorderLogger{}
	service := mustNewService(test, store, newStubCache(), WithOperationLogger(logger))

	if _, err := service.Purchase(context.Background(), buyer.ID, product.ID, mustQuantity(test, 1)); err != nil {
		test.Fatalf("purchase failed: %v", err)
	}
	if len(logger.entries) != 1 {
		test.Fatalf("expected one log entry, got %d", len(logger.entries))
	}
	entry := logger.entries[0]
	if entry.Operation != operationPurchase || entry.UserID != buyer.ID || entry.ProductID != product.ID || entry.Quantity != 1 {
		test.Fatalf("unexpected log entry: %+v", entry)
	}
	if !entry.Amount.Equal(mustDecimal(test, "0.50")) || !reflect.DeepEqual(entry.Coins, []Coin{100, 50}) {
		test.Fatalf("unexpected amount or coins: %+v", entry)
	}
	if entry.Error != nil || entry.Status != operationStatusOK {
		test.Fatalf("expected successful log entry, got %+v", entry)
	}
}

func TestServiceLogsErrorStatus(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	buyer := seedAccount(test, store, buyerIDValue, buyerEmail, RoleBuyer, "0")
	store.saveAccountErr = errStoreFailure
	logger := &recorderLogger{}
	service := mustNewService(test, store, newStubCache(), WithOperationLogger(logger))

	if _, err := service.Deposit(context.Background(), buyer.ID, 50); err == nil {
		test.Fatalf("expected error")
	}
	if len(logger.entries) != 1 {
		test.Fatalf("expected one log entry, got %d", len(logger.entries))
	}
	if logger.entries[0].Status != operationStatusError || logger.entries[0].Error == nil || logger.entries[0].Operation != operationDeposit {
		test.Fatalf("expected error log entry, got %+v", logger.entries[0])
	}
}

func TestEveryLoggerReceivesEveryEntry(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	buyer := seedAccount(test, store, buyerIDValue, buyerEmail, RoleBuyer, "0")
	first, second := &recorderLogger{}, &recorderLogger{}
	service := mustNewService(test, store, newStubCache(), WithOperationLogger(first), WithOperationLogger(nil), WithOperationLogger(second))

	if _, err := service.Reset(context.Background(), buyer.ID); err != nil {
		test.Fatalf("reset failed: %v", err)
	}
	if len(first.entries) != 1 || len(second.entries) != 1 {
		test.Fatalf("expected both loggers to record, got %d and %d", len(first.entries), len(second.entries))
	}
	if first.entries[0].Operation != operationReset {
		test.Fatalf("unexpected operation %q", first.entries[0].Operation)
	}
}
