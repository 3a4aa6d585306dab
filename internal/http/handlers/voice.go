package handlers

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/echoform/echoform-backend/internal/http/middleware"
	"github.com/echoform/echoform-backend/internal/http/response"
	"github.com/echoform/echoform-backend/internal/services"
)

// maxSampleUploadBytes caps a single sample upload.
const maxSampleUploadBytes = 64 << 20

type VoiceHandler struct {
	voice services.VoiceService
}

func NewVoiceHandler(voice services.VoiceService) *VoiceHandler {
	return &VoiceHandler{voice: voice}
}

// UploadSample accepts multipart form data: an "audio" file plus optional
// "format", "sample_rate" and "language" fields. Format falls back to the
// file extension.
func (h *VoiceHandler) UploadSample(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSampleUploadBytes)

	file, header, err := c.Request.FormFile("audio")
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	defer file.Close()

	raw, err := io.ReadAll(file)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}

	format := c.PostForm("format")
	if format == "" {
		if name := header.Filename; len(name) > 4 {
			format = name[len(name)-3:]
		}
	}
	sampleRate := 0
	if raw := c.PostForm("sample_rate"); raw != "" {
		sampleRate, _ = strconv.Atoi(raw)
	}

	sample, err := h.voice.UploadSample(c.Request.Context(), middleware.UserID(c), services.UploadSampleRequest{
		Audio:      raw,
		Format:     format,
		SampleRate: sampleRate,
		Language:   c.PostForm("language"),
	})
	if err != nil {
		response.RespondFromError(c, err)
		return
	}
	response.RespondCreated(c, gin.H{"sample": sample})
}

func (h *VoiceHandler) GetSample(c *gin.Context) {
	sampleID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_id", err)
		return
	}
	sample, err := h.voice.GetSample(c.Request.Context(), middleware.UserID(c), sampleID)
	if err != nil {
		response.RespondFromError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"sample": sample})
}

func (h *VoiceHandler) ListSamples(c *gin.Context) {
	samples, err := h.voice.ListSamples(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		response.RespondFromError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"samples": samples})
}

func (h *VoiceHandler) DeleteSample(c *gin.Context) {
	sampleID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_id", err)
		return
	}
	if err := h.voice.DeleteSample(c.Request.Context(), middleware.UserID(c), sampleID); err != nil {
		response.RespondFromError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *VoiceHandler) CreateClone(c *gin.Context) {
	var req services.CreateCloneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	clone, err := h.voice.CreateClone(c.Request.Context(), middleware.UserID(c), req)
	if err != nil {
		response.RespondFromError(c, err)
		return
	}
	response.RespondCreated(c, gin.H{"clone": clone})
}

func (h *VoiceHandler) GetClone(c *gin.Context) {
	cloneID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_id", err)
		return
	}
	clone, err := h.voice.GetClone(c.Request.Context(), middleware.UserID(c), cloneID)
	if err != nil {
		response.RespondFromError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"clone": clone})
}

func (h *VoiceHandler) ListClones(c *gin.Context) {
	clones, err := h.voice.ListClones(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		response.RespondFromError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"clones": clones})
}

func (h *VoiceHandler) DeleteClone(c *gin.Context) {
	cloneID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_id", err)
		return
	}
	if err := h.voice.DeleteClone(c.Request.Context(), middleware.UserID(c), cloneID); err != nil {
		response.RespondFromError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
