package vending

import "time"

const (
	operationRegister      = "register"
	operationLogin         = "login"
	operationLogout        = "logout"
	operationDeposit       = "deposit"
	operationDebit         = "debit"
	operationSetBalance    = "set_balance"
	operationReset         = "reset"
	operationPurchase      = "purchase"
	operationCreateProduct = "create_product"
	operationUpdateProduct = "update_product"
	operationDeleteProduct = "delete_product"
	operationUpdateProfile = "update_profile"
	operationDeleteAccount = "delete_account"

	operationStatusOK    = "ok"
	operationStatusError = "error"

	minorUnitExponent = 2

	// DefaultSessionTTL is how long a login marker lives without re-acquisition.
	DefaultSessionTTL = 60 * time.Minute

	defaultCreator      = "SYSTEM"
	defaultListLimit    = 50
	maxListLimit        = 200
	minimumPasswordSize = 8
	maximumPasswordSize = 72

	MessagePurchaseSuccessful = "Purchase successful"
	MessageDepositSuccessful  = "Deposit successful"
	MessageResetSuccessful    = "Reset successful"
	MessageLoggedOut          = "User logged out of all sessions"
	MessageRegistered         = "User created successfully"
	MessageLoggedIn           = "User logged in successfully"
	MessageProductAdded       = "Product added successfully"
	MessageProductUpdated     = "Product updated successfully"
	MessageProductDeleted     = "Product deleted successfully"
	MessageProductRetrieved   = "Product retrieved successfully"
	MessageUserRetrieved      = "User retrieved successfully"
	MessageUserUpdated        = "User updated successfully"
	MessageUserDeleted        = "User deleted successfully"
)

// acceptedCoins is the fixed denomination set, largest first.
var acceptedCoins = []Coin{100, 50, 20, 10, 5}
