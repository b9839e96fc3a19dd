package vending

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Receipt is the success variant of a purchase.
type Receipt struct {
	Coins     []Coin
	Remainder decimal.Decimal
	Message   string
	ProductID ProductID
	Quantity  Quantity
	TotalCost decimal.Decimal
	Balance   decimal.Decimal
}

// PurchaseOrchestrator runs the checkout: product lookup, funds check, debit,
// and change calculation.
type PurchaseOrchestrator struct {
	products   ProductStore
	ledger     *BalanceLedger
	calculator *ChangeCalculator
	recorder   operationRecorder
}

// NewPurchaseOrchestrator wires a PurchaseOrchestrator.
func NewPurchaseOrchestrator(products ProductStore, ledger *BalanceLedger, options ...ServiceOption) (*PurchaseOrchestrator, error) {
	if products == nil {
		return nil, fmt.Errorf("%w: product store dependency is nil", ErrInvalidServiceConfig)
	}
	if ledger == nil {
		return nil, fmt.Errorf("%w: balance ledger dependency is nil", ErrInvalidServiceConfig)
	}
	configured := applyOptions(options)
	calculator := configured.changeCalculator
	if calculator == nil {
		calculator = defaultChangeCalculator
	}
	return &PurchaseOrchestrator{
		products:   products,
		ledger:     ledger,
		calculator: calculator,
		recorder:   operationRecorder{loggers: configured.loggers},
	}, nil
}

// Purchase buys quantity units of productID for userID.
//
// The stored balance after a purchase is the post-debit residual. The returned
// coins are the change computed on that residual; they are not subtracted from
// the stored balance.
func (orchestrator *PurchaseOrchestrator) Purchase(ctx context.Context, userID UserID, productID ProductID, quantity Quantity) (Receipt, error) {
	receipt, operationError := orchestrator.purchase(ctx, userID, productID, quantity)
	orchestrator.recorder.logOperation(ctx, OperationLog{
		Operation: operationPurchase,
		UserID:    userID,
		ProductID: productID,
		Amount:    receipt.TotalCost,
		Quantity:  quantity,
		Coins:     receipt.Coins,
		Error:     operationError,
	})
	return receipt, operationError
}

func (orchestrator *PurchaseOrchestrator) purchase(ctx context.Context, userID UserID, productID ProductID, quantity Quantity) (Receipt, error) {
	if quantity <= 0 {
		return Receipt{}, fail(KindInvalidInput, ErrInvalidQuantity, nil)
	}
	product, err := orchestrator.products.GetProduct(ctx, productID)
	if err != nil {
		if errors.Is(err, ErrProductNotFound) {
			return Receipt{}, fail(KindNotFound, ErrInvalidProduct, err)
		}
		return Receipt{}, fail(KindPersistenceFailure, ErrProductUnavailable, err)
	}

	totalCost := product.Price.Mul(decimal.NewFromInt(int64(quantity)))
	var change Change
	metadata := metadataOf(map[string]any{
		"product_id": product.ID.String(),
		"quantity":   quantity.Int(),
		"unit_price": product.Price.StringFixed(minorUnitExponent),
	})
	account, err := orchestrator.ledger.Apply(ctx, userID, BalanceEventPurchase, metadata, func(current Account) (decimal.Decimal, error) {
		if totalCost.GreaterThan(current.Balance) {
			return decimal.Zero, fail(KindInsufficientFunds, ErrInsufficientFunds, nil)
		}
		residual := current.Balance.Sub(totalCost)
		change = orchestrator.calculator.ComputeChange(residual)
		return residual, nil
	})
	if err != nil {
		return Receipt{TotalCost: totalCost}, err
	}
	return Receipt{
		Coins:     change.Coins,
		Remainder: change.Remainder,
		Message:   MessagePurchaseSuccessful,
		ProductID: product.ID,
		Quantity:  quantity,
		TotalCost: totalCost,
		Balance:   account.Balance,
	}, nil
}
