package httpapi

import (
	"errors"
	"net/http"

	"github.com/MarkoPoloResearchLab/vending/pkg/vending"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	responseCodeSuccess = "00"
	responseCodeFailure = "99"
)

var (
	errAuthorizationRequired = errors.New("authorization required")
	errInvalidToken          = errors.New("invalid or expired token")
	errSessionInactive       = errors.New("session is no longer active")
	errTooManyRequests       = errors.New("too many requests, try again later")
	errInvalidPayload        = errors.New("expected JSON body")
)

type envelope struct {
	Success      bool   `json:"success"`
	Data         any    `json:"data"`
	Message      string `json:"message"`
	ResponseCode string `json:"responseCode"`
}

func respondOK(ctx *gin.Context, data any, message string) {
	ctx.JSON(http.StatusOK, envelope{
		Success:      true,
		Data:         data,
		Message:      message,
		ResponseCode: responseCodeSuccess,
	})
}

func respondFailure(ctx *gin.Context, status int, message string) {
	ctx.AbortWithStatusJSON(status, envelope{
		Success:      false,
		Message:      message,
		ResponseCode: responseCodeFailure,
	})
}

// respondError maps a core failure to its HTTP status. Causes never reach the client.
func (handler *httpHandler) respondError(ctx *gin.Context, operation string, err error) {
	kind := vending.KindOf(err)
	status := statusForKind(kind)
	if status >= http.StatusInternalServerError {
		handler.logger.Error("request failed", zap.String("operation", operation), zap.String("kind", string(kind)), zap.Error(err))
	}
	respondFailure(ctx, status, vending.MessageOf(err))
}

func statusForKind(kind vending.ErrorKind) int {
	switch kind {
	case vending.KindNotFound:
		return http.StatusNotFound
	case vending.KindInvalidInput, vending.KindInsufficientFunds:
		return http.StatusBadRequest
	case vending.KindPermissionDenied:
		return http.StatusForbidden
	case vending.KindSessionConflict:
		return http.StatusConflict
	case vending.KindAuthenticationFailure:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
