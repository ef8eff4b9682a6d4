package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jurisdesk/atendimento/internal/pkg/response"
	messageSvc "github.com/jurisdesk/atendimento/internal/service/message"
)

type MessageHandler struct {
	service *messageSvc.Service
	log     *zap.Logger
}

func NewMessageHandler(service *messageSvc.Service, log *zap.Logger) *MessageHandler {
	return &MessageHandler{service: service, log: log}
}

func (h *MessageHandler) Register(r *gin.RouterGroup) {
	r.POST("/messages/send", h.sendText)
}

type sendTextRequest struct {
	ConnectionID string `json:"connection_id" binding:"required"`
	To           string `json:"to" binding:"required"`
	Text         string `json:"text" binding:"required"`
}

// sendText envia texto avulso pela conexão. Falha imediatamente se a
// conexão não estiver conectada; não há fila nem retry.
func (h *MessageHandler) sendText(c *gin.Context) {
	var req sendTextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, err)
		return
	}

	id, err := h.service.SendText(c.Request.Context(), messageSvc.SendTextInput{
		ConnectionID: req.ConnectionID,
		To:           req.To,
		Text:         req.Text,
	})
	if err != nil {
		if errors.Is(err, messageSvc.ErrInvalidPayload) {
			response.Error(c, http.StatusBadRequest, err)
			return
		}
		response.Error(c, statusFor(err), err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"message_id": id})
}
