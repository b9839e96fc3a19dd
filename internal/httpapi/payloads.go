package httpapi

import (
	"encoding/json"
	"time"

	"github.com/MarkoPoloResearchLab/vending/pkg/vending"
	"github.com/shopspring/decimal"
)

type registerRequest struct {
	Email           string `json:"email"`
	FirstName       string `json:"firstName"`
	LastName        string `json:"lastName"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
	Role            string `json:"role"`
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type updateUserRequest struct {
	UserID    string `json:"userId"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

type productRequest struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
}

type accountPayload struct {
	UserID         string      `json:"userId"`
	Email          string      `json:"email"`
	FirstName      string      `json:"firstName"`
	LastName       string      `json:"lastName"`
	Role           string      `json:"role"`
	AccountBalance json.Number `json:"accountBalance"`
	Token          string      `json:"token,omitempty"`
	TokenExpiresAt *time.Time  `json:"tokenExpiresAt,omitempty"`
}

type productPayload struct {
	ProductID   string      `json:"productId"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Price       json.Number `json:"price"`
	SellerID    string      `json:"sellerId"`
	CreatedAt   time.Time   `json:"createdAt"`
	CreatedBy   string      `json:"createdBy"`
	ModifiedAt  *time.Time  `json:"modifiedAt,omitempty"`
	ModifiedBy  string      `json:"modifiedBy,omitempty"`
}

type purchasePayload struct {
	ProductID string      `json:"productId"`
	Quantity  int         `json:"quantity"`
	TotalCost json.Number `json:"totalCost"`
	Balance   json.Number `json:"accountBalance"`
	Change    []int       `json:"change"`
	Remainder json.Number `json:"remainder"`
}

type balanceEventPayload struct {
	EventID      string          `json:"eventId"`
	Type         string          `json:"type"`
	Amount       json.Number     `json:"amount"`
	BalanceAfter json.Number     `json:"balanceAfter"`
	Metadata     json.RawMessage `json:"metadata"`
	CreatedAt    time.Time       `json:"createdAt"`
}

func newAccountPayload(account vending.Account) accountPayload {
	return accountPayload{
		UserID:         account.ID.String(),
		Email:          account.Email.String(),
		FirstName:      account.FirstName,
		LastName:       account.LastName,
		Role:           account.Role.String(),
		AccountBalance: amount(account.Balance),
	}
}

func newLoginPayload(result vending.LoginResult) accountPayload {
	payload := newAccountPayload(result.Account)
	payload.Token = result.Token.Value
	expiresAt := result.Token.ExpiresAt
	payload.TokenExpiresAt = &expiresAt
	return payload
}

func newProductPayload(product vending.Product) productPayload {
	payload := productPayload{
		ProductID:   product.ID.String(),
		Name:        product.Name,
		Description: product.Description,
		Price:       amount(product.Price),
		SellerID:    product.OwnerID.String(),
		CreatedAt:   product.CreatedAt,
		CreatedBy:   product.CreatedBy,
		ModifiedBy:  product.ModifiedBy,
	}
	if !product.ModifiedAt.IsZero() {
		modifiedAt := product.ModifiedAt
		payload.ModifiedAt = &modifiedAt
	}
	return payload
}

func newPurchasePayload(receipt vending.Receipt) purchasePayload {
	change := make([]int, 0, len(receipt.Coins))
	for _, coin := range receipt.Coins {
		change = append(change, coin.Int())
	}
	return purchasePayload{
		ProductID: receipt.ProductID.String(),
		Quantity:  receipt.Quantity.Int(),
		TotalCost: amount(receipt.TotalCost),
		Balance:   amount(receipt.Balance),
		Change:    change,
		Remainder: amount(receipt.Remainder),
	}
}

func newBalanceEventPayloads(events []vending.BalanceEvent) []balanceEventPayload {
	payloads := make([]balanceEventPayload, 0, len(events))
	for _, event := range events {
		payloads = append(payloads, balanceEventPayload{
			EventID:      event.ID,
			Type:         string(event.Type),
			Amount:       amount(event.Amount),
			BalanceAfter: amount(event.BalanceAfter),
			Metadata:     json.RawMessage(event.Metadata.String()),
			CreatedAt:    event.CreatedAt,
		})
	}
	return payloads
}

func amount(value decimal.Decimal) json.Number {
	return json.Number(value.StringFixed(2))
}
