package vending

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Credentials hashes and verifies passwords.
type Credentials interface {
	HashPassword(password string) (string, error)
	VerifyPassword(hash string, password string) bool
}

// Token is a signed bearer credential.
type Token struct {
	Value     string
	ExpiresAt time.Time
}

// TokenIssuer signs bearer credentials for authenticated accounts.
type TokenIssuer interface {
	IssueToken(account Account) (Token, error)
}

// Registration is the input of Directory.Register.
type Registration struct {
	Email           string
	FirstName       string
	LastName        string
	Password        string
	ConfirmPassword string
	Role            string
}

// ProfileUpdate is the input of Directory.UpdateProfile.
type ProfileUpdate struct {
	FirstName string
	LastName  string
}

// LoginResult is returned by a successful login.
type LoginResult struct {
	Account Account
	Token   Token
}

// Directory owns account registration, login sessions and profiles.
type Directory struct {
	store       Store
	sessions    *SessionGuard
	credentials Credentials
	tokens      TokenIssuer
	nowFn       func() time.Time
	recorder    operationRecorder
}

// NewDirectory wires a Directory.
func NewDirectory(store Store, sessions *SessionGuard, credentials Credentials, tokens TokenIssuer, now func() time.Time, options ...ServiceOption) (*Directory, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if sessions == nil {
		return nil, fmt.Errorf("%w: session guard dependency is nil", ErrInvalidServiceConfig)
	}
	if credentials == nil {
		return nil, fmt.Errorf("%w: credentials dependency is nil", ErrInvalidServiceConfig)
	}
	if tokens == nil {
		return nil, fmt.Errorf("%w: token issuer dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	configured := applyOptions(options)
	return &Directory{
		store:       store,
		sessions:    sessions,
		credentials: credentials,
		tokens:      tokens,
		nowFn:       now,
		recorder:    operationRecorder{loggers: configured.loggers},
	}, nil
}

// Register creates an account with a zero balance.
func (directory *Directory) Register(ctx context.Context, registration Registration) (Account, error) {
	var account Account
	operationError := func() error {
		candidate, err := directory.newAccount(registration)
		if err != nil {
			return err
		}
		if _, err := directory.store.FindAccountByEmail(ctx, candidate.Email); err == nil {
			return fail(KindInvalidInput, ErrAccountExists, nil)
		} else if !errors.Is(err, ErrAccountNotFound) {
			return fail(KindPersistenceFailure, ErrAccountWriteFailed, err)
		}
		if err := directory.store.CreateAccount(ctx, candidate); err != nil {
			if errors.Is(err, ErrAccountExists) {
				return fail(KindInvalidInput, ErrAccountExists, err)
			}
			return fail(KindPersistenceFailure, ErrAccountWriteFailed, err)
		}
		account = candidate
		return nil
	}()
	directory.recorder.logOperation(ctx, OperationLog{
		Operation: operationRegister,
		UserID:    account.ID,
		Error:     operationError,
	})
	return account, operationError
}

func (directory *Directory) newAccount(registration Registration) (Account, error) {
	firstName := strings.TrimSpace(registration.FirstName)
	lastName := strings.TrimSpace(registration.LastName)
	if firstName == "" || lastName == "" {
		return Account{}, fail(KindInvalidInput, ErrInvalidName, nil)
	}
	email, err := NewEmail(registration.Email)
	if err != nil {
		return Account{}, fail(KindInvalidInput, ErrInvalidEmail, err)
	}
	role, err := ParseRole(registration.Role)
	if err != nil {
		return Account{}, fail(KindInvalidInput, ErrInvalidRole, err)
	}
	if len(registration.Password) > maximumPasswordSize {
		return Account{}, fail(KindInvalidInput, ErrPasswordTooLong, nil)
	}
	if !isStrongPassword(registration.Password) {
		return Account{}, fail(KindInvalidInput, ErrWeakPassword, nil)
	}
	if registration.Password != registration.ConfirmPassword {
		return Account{}, fail(KindInvalidInput, ErrPasswordMismatch, nil)
	}
	hash, err := directory.credentials.HashPassword(registration.Password)
	if err != nil {
		return Account{}, fail(KindInternal, ErrAccountWriteFailed, err)
	}
	return Account{
		ID:           UserID{value: uuid.NewString()},
		Email:        email,
		FirstName:    firstName,
		LastName:     lastName,
		Role:         role,
		PasswordHash: hash,
		Balance:      decimal.Zero,
		CreatedAt:    directory.nowFn().UTC(),
		CreatedBy:    defaultCreator,
	}, nil
}

// Login verifies the password and claims the single session slot for the account.
// A live session fails with ErrSessionActive before the password is checked.
func (directory *Directory) Login(ctx context.Context, rawEmail string, password string) (LoginResult, error) {
	var result LoginResult
	operationError := func() error {
		email, err := NewEmail(rawEmail)
		if err != nil {
			return fail(KindAuthenticationFailure, ErrInvalidCredentials, err)
		}
		account, err := directory.store.FindAccountByEmail(ctx, email)
		if err != nil {
			if errors.Is(err, ErrAccountNotFound) {
				return fail(KindAuthenticationFailure, ErrInvalidCredentials, err)
			}
			return fail(KindPersistenceFailure, ErrUserUnavailable, err)
		}
		verify := func() bool {
			return directory.credentials.VerifyPassword(account.PasswordHash, password)
		}
		if err := directory.sessions.TryAcquire(ctx, email.String(), account.ID.String(), verify); err != nil {
			return err
		}
		token, err := directory.tokens.IssueToken(account)
		if err != nil {
			// No token was handed out; free the slot claimed above.
			if releaseErr := directory.sessions.Release(ctx, email.String()); releaseErr != nil {
				err = errors.Join(err, releaseErr)
			}
			return fail(KindInternal, ErrTokenIssue, err)
		}
		result = LoginResult{Account: account, Token: token}
		return nil
	}()
	directory.recorder.logOperation(ctx, OperationLog{
		Operation: operationLogin,
		UserID:    result.Account.ID,
		Error:     operationError,
	})
	return result, operationError
}

// Logout verifies the password and releases the session marker for every device.
func (directory *Directory) Logout(ctx context.Context, rawEmail string, password string) error {
	var userID UserID
	operationError := func() error {
		email, err := NewEmail(rawEmail)
		if err != nil {
			return fail(KindAuthenticationFailure, ErrInvalidCredentials, err)
		}
		account, err := directory.store.FindAccountByEmail(ctx, email)
		if err != nil {
			if errors.Is(err, ErrAccountNotFound) {
				return fail(KindAuthenticationFailure, ErrInvalidCredentials, err)
			}
			return fail(KindPersistenceFailure, ErrUserUnavailable, err)
		}
		if !directory.credentials.VerifyPassword(account.PasswordHash, password) {
			return fail(KindAuthenticationFailure, ErrInvalidCredentials, nil)
		}
		userID = account.ID
		return directory.sessions.Release(ctx, email.String())
	}()
	directory.recorder.logOperation(ctx, OperationLog{
		Operation: operationLogout,
		UserID:    userID,
		Error:     operationError,
	})
	return operationError
}

// Get returns an account by id.
func (directory *Directory) Get(ctx context.Context, userID UserID) (Account, error) {
	if userID.IsZero() {
		return Account{}, fail(KindNotFound, ErrUserUnavailable, nil)
	}
	account, err := directory.store.GetAccount(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return Account{}, fail(KindNotFound, ErrUserUnavailable, err)
		}
		return Account{}, fail(KindPersistenceFailure, ErrUserUnavailable, err)
	}
	return account, nil
}

// HasActiveSession reports whether the account currently holds a session marker.
func (directory *Directory) HasActiveSession(ctx context.Context, account Account) (bool, error) {
	return directory.sessions.IsActive(ctx, account.Email.String())
}

// UpdateProfile changes the names of the caller's own account.
func (directory *Directory) UpdateProfile(ctx context.Context, callerID UserID, targetID UserID, update ProfileUpdate) (Account, error) {
	var account Account
	operationError := func() error {
		current, err := directory.Get(ctx, targetID)
		if err != nil {
			return err
		}
		if callerID != current.ID {
			return fail(KindPermissionDenied, ErrPermissionDenied, nil)
		}
		firstName := strings.TrimSpace(update.FirstName)
		lastName := strings.TrimSpace(update.LastName)
		if firstName == "" || lastName == "" {
			return fail(KindInvalidInput, ErrInvalidName, nil)
		}
		current.FirstName = firstName
		current.LastName = lastName
		current.ModifiedAt = directory.nowFn().UTC()
		current.ModifiedBy = current.Email.String()
		if err := directory.store.SaveAccount(ctx, current); err != nil {
			return fail(KindPersistenceFailure, ErrUserUpdateFailed, err)
		}
		account = current
		return nil
	}()
	directory.recorder.logOperation(ctx, OperationLog{
		Operation: operationUpdateProfile,
		UserID:    targetID,
		Error:     operationError,
	})
	return account, operationError
}

// Delete removes the caller's own account and ends its session.
func (directory *Directory) Delete(ctx context.Context, callerID UserID, targetID UserID) error {
	operationError := func() error {
		current, err := directory.Get(ctx, targetID)
		if err != nil {
			return err
		}
		if callerID != current.ID {
			return fail(KindPermissionDenied, ErrPermissionDenied, nil)
		}
		// The marker goes first so a failed release leaves the account intact.
		if err := directory.sessions.Release(ctx, current.Email.String()); err != nil {
			return err
		}
		if err := directory.store.DeleteAccount(ctx, current.ID); err != nil {
			return fail(KindPersistenceFailure, ErrAccountWriteFailed, err)
		}
		return nil
	}()
	directory.recorder.logOperation(ctx, OperationLog{
		Operation: operationDeleteAccount,
		UserID:    targetID,
		Error:     operationError,
	})
	return operationError
}

// Roles lists the assignable roles.
func (directory *Directory) Roles() []Role {
	return []Role{RoleBuyer, RoleSeller}
}

func isStrongPassword(password string) bool {
	if len(password) < minimumPasswordSize {
		return false
	}
	var hasDigit, hasLower, hasUpper bool
	for _, character := range password {
		switch {
		case unicode.IsDigit(character):
			hasDigit = true
		case unicode.IsLower(character):
			hasLower = true
		case unicode.IsUpper(character):
			hasUpper = true
		}
	}
	return hasDigit && hasLower && hasUpper
}
