package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/MarkoPoloResearchLab/vending/pkg/vending"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	messageRolesRetrieved    = "User roles retrieved successfully"
	messageHistoryRetrieved  = "Balance history retrieved successfully"
	messageProductsRetrieved = "Products retrieved successfully"
)

func (handler *httpHandler) handleRegister(ctx *gin.Context) {
	var request registerRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		respondFailure(ctx, http.StatusBadRequest, errInvalidPayload.Error())
		return
	}
	account, err := handler.service.Register(ctx.Request.Context(), vending.Registration{
		Email:           request.Email,
		FirstName:       request.FirstName,
		LastName:        request.LastName,
		Password:        request.Password,
		ConfirmPassword: request.ConfirmPassword,
		Role:            request.Role,
	})
	if err != nil {
		handler.respondError(ctx, "register", err)
		return
	}
	respondOK(ctx, newAccountPayload(account), vending.MessageRegistered)
}

func (handler *httpHandler) handleLogin(ctx *gin.Context) {
	var request credentialsRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		respondFailure(ctx, http.StatusBadRequest, errInvalidPayload.Error())
		return
	}
	result, err := handler.service.Login(ctx.Request.Context(), request.Email, request.Password)
	if err != nil {
		handler.respondError(ctx, "login", err)
		return
	}
	respondOK(ctx, newLoginPayload(result), vending.MessageLoggedIn)
}

func (handler *httpHandler) handleLogout(ctx *gin.Context) {
	var request credentialsRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		respondFailure(ctx, http.StatusBadRequest, errInvalidPayload.Error())
		return
	}
	if err := handler.service.Logout(ctx.Request.Context(), request.Email, request.Password); err != nil {
		handler.respondError(ctx, "logout", err)
		return
	}
	respondOK(ctx, vending.MessageLoggedOut, vending.MessageLoggedOut)
}

func (handler *httpHandler) handleCurrentUser(ctx *gin.Context) {
	current, ok := handler.mustPrincipal(ctx)
	if !ok {
		return
	}
	handler.respondAccount(ctx, current.UserID)
}

func (handler *httpHandler) handleUserByID(ctx *gin.Context) {
	userID, err := parseAccountID(ctx.Param("id"))
	if err != nil {
		handler.respondError(ctx, "get_user", vending.NewFailure(vending.KindInvalidInput, vending.ErrInvalidUserID, err))
		return
	}
	handler.respondAccount(ctx, userID)
}

func (handler *httpHandler) respondAccount(ctx *gin.Context, userID vending.UserID) {
	account, err := handler.service.Account(ctx.Request.Context(), userID)
	if err != nil {
		handler.respondError(ctx, "get_user", err)
		return
	}
	respondOK(ctx, newAccountPayload(account), vending.MessageUserRetrieved)
}

func (handler *httpHandler) handleRoles(ctx *gin.Context) {
	roles := handler.service.Roles()
	names := make([]string, 0, len(roles))
	for _, role := range roles {
		names = append(names, role.String())
	}
	respondOK(ctx, names, messageRolesRetrieved)
}

func (handler *httpHandler) handleUpdateUser(ctx *gin.Context) {
	current, ok := handler.mustPrincipal(ctx)
	if !ok {
		return
	}
	var request updateUserRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		respondFailure(ctx, http.StatusBadRequest, errInvalidPayload.Error())
		return
	}
	targetID := current.UserID
	if strings.TrimSpace(request.UserID) != "" {
		parsed, err := parseAccountID(request.UserID)
		if err != nil {
			handler.respondError(ctx, "update_user", vending.NewFailure(vending.KindInvalidInput, vending.ErrInvalidUserID, err))
			return
		}
		targetID = parsed
	}
	account, err := handler.service.UpdateProfile(ctx.Request.Context(), current.UserID, targetID, vending.ProfileUpdate{
		FirstName: request.FirstName,
		LastName:  request.LastName,
	})
	if err != nil {
		handler.respondError(ctx, "update_user", err)
		return
	}
	respondOK(ctx, newAccountPayload(account), vending.MessageUserUpdated)
}

func (handler *httpHandler) handleDeleteUser(ctx *gin.Context) {
	current, ok := handler.mustPrincipal(ctx)
	if !ok {
		return
	}
	if err := handler.service.DeleteAccount(ctx.Request.Context(), current.UserID, current.UserID); err != nil {
		handler.respondError(ctx, "delete_user", err)
		return
	}
	respondOK(ctx, vending.MessageUserDeleted, vending.MessageUserDeleted)
}

func (handler *httpHandler) handleDeposit(ctx *gin.Context) {
	current, ok := handler.mustPrincipal(ctx)
	if !ok {
		return
	}
	faceValue, err := strconv.Atoi(ctx.Param("amount"))
	if err != nil {
		handler.respondError(ctx, "deposit", vending.NewFailure(vending.KindInvalidInput, vending.ErrInvalidCoin, err))
		return
	}
	account, err := handler.service.Deposit(ctx.Request.Context(), current.UserID, faceValue)
	if err != nil {
		handler.respondError(ctx, "deposit", err)
		return
	}
	respondOK(ctx, newAccountPayload(account), vending.MessageDepositSuccessful)
}

func (handler *httpHandler) handleReset(ctx *gin.Context) {
	current, ok := handler.mustPrincipal(ctx)
	if !ok {
		return
	}
	account, err := handler.service.Reset(ctx.Request.Context(), current.UserID)
	if err != nil {
		handler.respondError(ctx, "reset", err)
		return
	}
	respondOK(ctx, newAccountPayload(account), vending.MessageResetSuccessful)
}

func (handler *httpHandler) handleHistory(ctx *gin.Context) {
	current, ok := handler.mustPrincipal(ctx)
	if !ok {
		return
	}
	limit, ok := handler.queryLimit(ctx)
	if !ok {
		return
	}
	events, err := handler.service.History(ctx.Request.Context(), current.UserID, limit)
	if err != nil {
		handler.respondError(ctx, "history", err)
		return
	}
	respondOK(ctx, newBalanceEventPayloads(events), messageHistoryRetrieved)
}

// parseAccountID accepts only the uuid ids that registration assigns.
func parseAccountID(raw string) (vending.UserID, error) {
	parsed, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return vending.UserID{}, err
	}
	return vending.NewUserID(parsed.String())
}

// queryLimit reads an optional positive limit; zero lets the core pick its default.
func (handler *httpHandler) queryLimit(ctx *gin.Context) (int, bool) {
	raw := strings.TrimSpace(ctx.Query("limit"))
	if raw == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		respondFailure(ctx, http.StatusBadRequest, "limit must be a non-negative integer")
		return 0, false
	}
	return limit, true
}
