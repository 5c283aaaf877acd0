package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Nachoram/plataforma-inmobiliaria-sub005/model"
	"github.com/Nachoram/plataforma-inmobiliaria-sub005/pkg/logger"
	"github.com/Nachoram/plataforma-inmobiliaria-sub005/service"
)

const (
	codeNotFound      model.ErrorCode = "NOT_FOUND"
	codeConflict      model.ErrorCode = "CONFLICT"
	codeNotResendable model.ErrorCode = "NOT_RESENDABLE"
	codeBadRequest    model.ErrorCode = "BAD_REQUEST"
	codeUnavailable   model.ErrorCode = "UNAVAILABLE"
	codeInternal      model.ErrorCode = "INTERNAL_ERROR"
)

// errorStatus maps a service error to an HTTP status and a stable code.
func errorStatus(err error) (int, model.ErrorCode) {
	var (
		transition *model.TransitionError
		validation *model.ValidationError
		dispatch   *model.DispatchError
		prov       *model.ProviderError
		rendering  *model.RenderError
		expiry     *model.ExpiryError
	)
	switch {
	case errors.As(err, &transition):
		return http.StatusConflict, model.CodeTransition
	case errors.As(err, &validation):
		return http.StatusBadRequest, model.CodeValidation
	case errors.As(err, &dispatch):
		return http.StatusBadGateway, model.CodeDispatch
	case errors.As(err, &expiry):
		return http.StatusGone, model.CodeExpiry
	case errors.As(err, &rendering):
		return http.StatusUnprocessableEntity, model.CodeRender
	case errors.As(err, &prov):
		return http.StatusBadGateway, model.CodeProvider
	case errors.Is(err, service.ErrContractNotFound), errors.Is(err, service.ErrSignatureNotFound):
		return http.StatusNotFound, codeNotFound
	case errors.Is(err, service.ErrContractExists), errors.Is(err, service.ErrSendInProgress),
		errors.Is(err, service.ErrStatusConflict), errors.Is(err, service.ErrSignatureConflict):
		return http.StatusConflict, codeConflict
	case errors.Is(err, service.ErrNotResendable):
		return http.StatusConflict, codeNotResendable
	}
	return http.StatusInternalServerError, codeInternal
}

// respondError writes the JSON error body. Extra fields are merged in.
func respondError(c *gin.Context, err error, extra gin.H) {
	status, code := errorStatus(err)
	_ = c.Error(err)
	if status >= http.StatusInternalServerError && code == codeInternal {
		logger.Error(c.Request.Context(), "request failed", "error", err)
	}

	body := gin.H{"error": err.Error(), "code": code}
	if status == http.StatusInternalServerError {
		body["error"] = "Internal server error"
	}
	for k, v := range extra {
		body[k] = v
	}
	c.JSON(status, body)
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg, "code": codeBadRequest})
}
