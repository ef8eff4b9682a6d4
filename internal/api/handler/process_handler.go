package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jurisdesk/atendimento/internal/api/middleware"
	"github.com/jurisdesk/atendimento/internal/pkg/response"
	"github.com/jurisdesk/atendimento/internal/storage"
	"github.com/jurisdesk/atendimento/internal/triage"
)

type ProcessHandler struct {
	engine    *triage.Engine
	processes storage.ProcessRepository
	log       *zap.Logger
}

func NewProcessHandler(engine *triage.Engine, processes storage.ProcessRepository, log *zap.Logger) *ProcessHandler {
	return &ProcessHandler{engine: engine, processes: processes, log: log}
}

func (h *ProcessHandler) Register(r *gin.RouterGroup) {
	r.GET("/processes/:id/timeline", h.timeline)
	r.POST("/messages/:id/link-process", h.linkProcess)
}

func (h *ProcessHandler) timeline(c *gin.Context) {
	tenantID := middleware.TenantID(c)
	id := c.Param("id")

	proc, err := h.processes.GetByID(c.Request.Context(), id)
	if err != nil || proc.TenantID != tenantID {
		response.ErrorWithMessage(c, http.StatusNotFound, "processo não encontrado")
		return
	}

	entries, err := h.processes.ListTimeline(c.Request.Context(), id)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, err)
		return
	}
	response.Success(c, http.StatusOK, entries)
}

type linkProcessRequest struct {
	ProcessID string `json:"process_id" binding:"required"`
}

// linkProcess anexa uma mensagem de ticket à linha do tempo de um
// processo jurídico do mesmo tenant.
func (h *ProcessHandler) linkProcess(c *gin.Context) {
	var req linkProcessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, err)
		return
	}

	entry, err := h.engine.LinkToProcess(c.Request.Context(), middleware.TenantID(c), c.Param("id"), req.ProcessID)
	if err != nil {
		response.Error(c, statusFor(err), err)
		return
	}
	response.Success(c, http.StatusCreated, entry)
}
