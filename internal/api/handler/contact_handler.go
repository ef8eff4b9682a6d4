package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jurisdesk/atendimento/internal/api/middleware"
	"github.com/jurisdesk/atendimento/internal/pkg/response"
	"github.com/jurisdesk/atendimento/internal/storage"
)

type ContactHandler struct {
	contacts storage.ContactRepository
	log      *zap.Logger
}

func NewContactHandler(contacts storage.ContactRepository, log *zap.Logger) *ContactHandler {
	return &ContactHandler{contacts: contacts, log: log}
}

func (h *ContactHandler) Register(r *gin.RouterGroup) {
	r.GET("/contacts", h.list)
	r.GET("/contacts/:id", h.get)
	r.PUT("/contacts/:id", h.update)
}

func (h *ContactHandler) list(c *gin.Context) {
	contacts, err := h.contacts.ListByTenant(c.Request.Context(), middleware.TenantID(c))
	if err != nil {
		response.Error(c, http.StatusInternalServerError, err)
		return
	}
	response.Success(c, http.StatusOK, contacts)
}

func (h *ContactHandler) get(c *gin.Context) {
	contact, err := h.contacts.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil || contact.TenantID != middleware.TenantID(c) {
		response.ErrorWithMessage(c, http.StatusNotFound, "contato não encontrado")
		return
	}
	response.Success(c, http.StatusOK, contact)
}

type updateContactRequest struct {
	Name  string `json:"name" binding:"required,min=2"`
	Phone string `json:"phone" binding:"required"`
	Email string `json:"email"`
}

func (h *ContactHandler) update(c *gin.Context) {
	contact, err := h.contacts.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil || contact.TenantID != middleware.TenantID(c) {
		response.ErrorWithMessage(c, http.StatusNotFound, "contato não encontrado")
		return
	}

	var req updateContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, err)
		return
	}

	contact.Name = req.Name
	contact.Phone = req.Phone
	contact.Email = req.Email

	updated, err := h.contacts.Update(c.Request.Context(), contact)
	if err != nil {
		response.Error(c, statusFor(err), err)
		return
	}
	response.Success(c, http.StatusOK, updated)
}
