package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Nachoram/plataforma-inmobiliaria-sub005/model"
	"github.com/Nachoram/plataforma-inmobiliaria-sub005/pkg/logger"
	"github.com/Nachoram/plataforma-inmobiliaria-sub005/provider"
	"github.com/Nachoram/plataforma-inmobiliaria-sub005/service"
)

const maxCallbackBody = 1 << 20

type CallbackHandler struct {
	orch   *service.Orchestrator
	secret string
}

func NewCallbackHandler(orch *service.Orchestrator, webhookSecret string) *CallbackHandler {
	return &CallbackHandler{orch: orch, secret: webhookSecret}
}

// HandleCallback receives status notifications from the signature provider
func (h *CallbackHandler) HandleCallback(c *gin.Context) {
	ctx := c.Request.Context()

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxCallbackBody))
	if err != nil {
		badRequest(c, "Invalid request")
		return
	}

	if !provider.VerifyCallback(c.Request.Header, body, h.secret) {
		logger.Warn(ctx, "callback signature rejected", "client_ip", c.ClientIP())
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid signature", "code": "UNAUTHORIZED"})
		return
	}

	event, err := provider.ParseCallback(body)
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	rec, status, err := h.orch.HandleCallback(ctx, event)
	var expired *model.ExpiryError
	switch {
	case errors.As(err, &expired):
		// Processed: the record is now expired. A retry would change nothing.
		c.JSON(http.StatusOK, gin.H{
			"message":         "Callback received",
			"signature":       rec,
			"contract_status": status,
			"expired":         true,
		})
		return
	case err != nil:
		respondError(c, err, nil)
		return
	}

	logger.Info(logger.WithContractID(ctx, rec.ContractID), "callback applied",
		"signer", rec.SignerType,
		"reported", event.Status,
		"record_status", rec.Status,
		"contract_status", status,
	)
	c.JSON(http.StatusOK, gin.H{
		"message":         "Callback received",
		"signature":       rec,
		"contract_status": status,
	})
}
