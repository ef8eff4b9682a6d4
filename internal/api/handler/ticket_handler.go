package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jurisdesk/atendimento/internal/api/middleware"
	"github.com/jurisdesk/atendimento/internal/pkg/response"
	messageSvc "github.com/jurisdesk/atendimento/internal/service/message"
	ticketSvc "github.com/jurisdesk/atendimento/internal/service/ticket"
	"github.com/jurisdesk/atendimento/internal/storage/model"
)

type TicketHandler struct {
	service  *ticketSvc.Service
	messages *messageSvc.Service
	log      *zap.Logger
}

func NewTicketHandler(service *ticketSvc.Service, messages *messageSvc.Service, log *zap.Logger) *TicketHandler {
	return &TicketHandler{service: service, messages: messages, log: log}
}

func (h *TicketHandler) Register(r *gin.RouterGroup) {
	r.GET("/tickets", h.list)
	r.GET("/tickets/:id", h.get)
	r.PUT("/tickets/:id/status", h.updateStatus)
	r.POST("/tickets/:id/reply", h.reply)
}

// list filtra por status via query: /tickets?status=open,in_progress
func (h *TicketHandler) list(c *gin.Context) {
	var statuses []model.TicketStatus
	if raw := c.Query("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			statuses = append(statuses, model.TicketStatus(strings.TrimSpace(s)))
		}
	}

	tickets, err := h.service.List(c.Request.Context(), middleware.TenantID(c), statuses)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, err)
		return
	}
	response.Success(c, http.StatusOK, tickets)
}

func (h *TicketHandler) get(c *gin.Context) {
	detail, err := h.service.Get(c.Request.Context(), middleware.TenantID(c), c.Param("id"))
	if err != nil {
		response.Error(c, statusFor(err), err)
		return
	}
	response.Success(c, http.StatusOK, detail)
}

type updateTicketStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

func (h *TicketHandler) updateStatus(c *gin.Context) {
	var req updateTicketStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, err)
		return
	}

	err := h.service.UpdateStatus(c.Request.Context(), middleware.TenantID(c), c.Param("id"), model.TicketStatus(req.Status))
	if err != nil {
		if errors.Is(err, ticketSvc.ErrInvalidStatus) {
			response.Error(c, http.StatusBadRequest, err)
			return
		}
		response.Error(c, statusFor(err), err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"message": "status atualizado"})
}

type replyTicketRequest struct {
	Text string `json:"text" binding:"required"`
}

func (h *TicketHandler) reply(c *gin.Context) {
	var req replyTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, err)
		return
	}

	msg, err := h.messages.ReplyTicket(c.Request.Context(), messageSvc.ReplyTicketInput{
		TenantID: middleware.TenantID(c),
		TicketID: c.Param("id"),
		UserID:   middleware.UserID(c),
		Text:     req.Text,
	})
	if err != nil {
		if errors.Is(err, messageSvc.ErrInvalidPayload) {
			response.Error(c, http.StatusBadRequest, err)
			return
		}
		response.Error(c, statusFor(err), err)
		return
	}
	response.Success(c, http.StatusCreated, msg)
}
