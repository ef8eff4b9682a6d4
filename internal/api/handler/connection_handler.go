package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	qrcode "github.com/skip2/go-qrcode"
	"go.uber.org/zap"

	"github.com/jurisdesk/atendimento/internal/api/middleware"
	"github.com/jurisdesk/atendimento/internal/pkg/response"
	connectionSvc "github.com/jurisdesk/atendimento/internal/service/connection"
	"github.com/jurisdesk/atendimento/internal/session"
	"github.com/jurisdesk/atendimento/internal/storage"
)

type ConnectionHandler struct {
	service *connectionSvc.Service
	log     *zap.Logger
}

func NewConnectionHandler(service *connectionSvc.Service, log *zap.Logger) *ConnectionHandler {
	return &ConnectionHandler{service: service, log: log}
}

func (h *ConnectionHandler) Register(r *gin.RouterGroup) {
	r.GET("/connections", h.list)
	r.GET("/connections/:id", h.get)
	r.POST("/connections", h.create)
	r.PUT("/connections/:id", h.update)
	r.DELETE("/connections/:id", h.disable)
	r.POST("/connections/:id/start", h.start)
	r.POST("/connections/:id/reset", h.reset)
	r.POST("/connections/:id/stop", h.stop)
	r.GET("/connections/:id/qr", h.getQR)
}

type createConnectionRequest struct {
	Name          string `json:"name" binding:"required,min=2"`
	WebhookURL    string `json:"webhook_url"`
	WebhookSecret string `json:"webhook_secret"`
}

type updateConnectionRequest struct {
	Name          string `json:"name" binding:"required,min=2"`
	WebhookURL    string `json:"webhook_url"`
	WebhookSecret string `json:"webhook_secret"`
}

func (h *ConnectionHandler) create(c *gin.Context) {
	var req createConnectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, err)
		return
	}

	conn, err := h.service.Create(c.Request.Context(), connectionSvc.CreateInput{
		TenantID:      middleware.TenantID(c),
		Name:          req.Name,
		WebhookURL:    req.WebhookURL,
		WebhookSecret: req.WebhookSecret,
	})
	if err != nil {
		response.Error(c, http.StatusBadRequest, err)
		return
	}
	response.Success(c, http.StatusCreated, conn)
}

func (h *ConnectionHandler) list(c *gin.Context) {
	conns, err := h.service.List(c.Request.Context(), middleware.TenantID(c))
	if err != nil {
		response.Error(c, http.StatusInternalServerError, err)
		return
	}
	response.Success(c, http.StatusOK, conns)
}

func (h *ConnectionHandler) get(c *gin.Context) {
	conn, err := h.service.Get(c.Request.Context(), middleware.TenantID(c), c.Param("id"))
	if err != nil {
		response.Error(c, statusFor(err), err)
		return
	}
	response.Success(c, http.StatusOK, conn)
}

func (h *ConnectionHandler) update(c *gin.Context) {
	var req updateConnectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, err)
		return
	}

	conn, err := h.service.Update(c.Request.Context(), middleware.TenantID(c), c.Param("id"), connectionSvc.UpdateInput{
		Name:          req.Name,
		WebhookURL:    req.WebhookURL,
		WebhookSecret: req.WebhookSecret,
	})
	if err != nil {
		response.Error(c, statusFor(err), err)
		return
	}
	response.Success(c, http.StatusOK, conn)
}

// disable desabilita a conexão; nunca remove o registro, tickets
// existentes continuam apontando para ela.
func (h *ConnectionHandler) disable(c *gin.Context) {
	if err := h.service.Disable(c.Request.Context(), middleware.TenantID(c), c.Param("id")); err != nil {
		response.Error(c, statusFor(err), err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"message": "conexão desabilitada"})
}

func (h *ConnectionHandler) start(c *gin.Context) {
	conn, err := h.service.Start(c.Request.Context(), middleware.TenantID(c), c.Param("id"))
	if err != nil {
		response.Error(c, statusFor(err), err)
		return
	}
	response.Success(c, http.StatusAccepted, conn)
}

func (h *ConnectionHandler) reset(c *gin.Context) {
	if err := h.service.Reset(c.Request.Context(), middleware.TenantID(c), c.Param("id")); err != nil {
		response.Error(c, statusFor(err), err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"message": "conexão reiniciada, novo pareamento necessário"})
}

func (h *ConnectionHandler) stop(c *gin.Context) {
	if err := h.service.Stop(c.Request.Context(), middleware.TenantID(c), c.Param("id")); err != nil {
		response.Error(c, statusFor(err), err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"message": "conexão parada"})
}

func (h *ConnectionHandler) getQR(c *gin.Context) {
	id := c.Param("id")

	code, err := h.service.QRCode(c.Request.Context(), middleware.TenantID(c), id)
	if err != nil {
		response.Error(c, statusFor(err), err)
		return
	}
	if code == "" {
		response.ErrorWithMessage(c, http.StatusNotFound, "nenhum QR code disponível; conexão não está aguardando pareamento")
		return
	}

	if c.Query("format") == "raw" {
		response.Success(c, http.StatusOK, gin.H{"qr": code})
		return
	}

	png, err := qrcode.Encode(code, qrcode.Medium, 256)
	if err != nil {
		h.log.Error("erro ao gerar imagem do QR code", zap.String("connection_id", id), zap.Error(err))
		response.Error(c, http.StatusInternalServerError, err)
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

// statusFor traduz erros de domínio para códigos HTTP.
func statusFor(err error) int {
	switch {
	case errors.Is(err, storage.ErrNotFound),
		errors.Is(err, session.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrAlreadyStarted),
		errors.Is(err, session.ErrLockNotAcquired),
		errors.Is(err, connectionSvc.ErrDisabled):
		return http.StatusConflict
	case errors.Is(err, session.ErrConnectionNotReady):
		return http.StatusUnprocessableEntity
	case errors.Is(err, connectionSvc.ErrInvalidName),
		errors.Is(err, connectionSvc.ErrInvalidWebhook):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
