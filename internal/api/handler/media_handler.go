package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jurisdesk/atendimento/internal/pkg/response"
	"github.com/jurisdesk/atendimento/internal/storage/media"
)

type MediaHandler struct {
	storage *media.Storage
	log     *zap.Logger
}

func NewMediaHandler(storage *media.Storage, log *zap.Logger) *MediaHandler {
	return &MediaHandler{storage: storage, log: log}
}

// GetMedia serve um anexo baixado. A URL é opaca e de curta duração;
// arquivos expirados retornam 404.
func (h *MediaHandler) GetMedia(c *gin.Context) {
	connectionID := c.Param("connectionId")
	mediaID := c.Param("mediaId")

	data, err := h.storage.Get(c.Request.Context(), connectionID, mediaID)
	if err != nil {
		response.ErrorWithMessage(c, http.StatusNotFound, "mídia não encontrada")
		return
	}

	c.Data(http.StatusOK, contentTypeFromName(mediaID), data)
}

func contentTypeFromName(name string) string {
	switch {
	case strings.HasSuffix(name, ".jpg"), strings.HasSuffix(name, ".jpeg"):
		return "image/jpeg"
	case strings.HasSuffix(name, ".png"):
		return "image/png"
	case strings.HasSuffix(name, ".webp"):
		return "image/webp"
	case strings.HasSuffix(name, ".mp4"):
		return "video/mp4"
	case strings.HasSuffix(name, ".ogg"):
		return "audio/ogg"
	case strings.HasSuffix(name, ".mp3"):
		return "audio/mpeg"
	case strings.HasSuffix(name, ".pdf"):
		return "application/pdf"
	default:
		return "application/octet-stream"
	}
}
