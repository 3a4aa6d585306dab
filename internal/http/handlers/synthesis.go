package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/echoform/echoform-backend/internal/http/middleware"
	"github.com/echoform/echoform-backend/internal/http/response"
	"github.com/echoform/echoform-backend/internal/services"
)

type SynthesisHandler struct {
	synthesis services.SynthesisService
}

func NewSynthesisHandler(synthesis services.SynthesisService) *SynthesisHandler {
	return &SynthesisHandler{synthesis: synthesis}
}

func (h *SynthesisHandler) Submit(c *gin.Context) {
	var req services.SynthesisRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}

	job, err := h.synthesis.Submit(c.Request.Context(), middleware.UserID(c), req)
	if err != nil {
		response.RespondFromError(c, err)
		return
	}
	if job.CacheHit {
		response.RespondOK(c, gin.H{"job": job})
		return
	}
	response.RespondCreated(c, gin.H{"job": job})
}

func (h *SynthesisHandler) Get(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_id", err)
		return
	}
	job, err := h.synthesis.GetJob(c.Request.Context(), middleware.UserID(c), jobID)
	if err != nil {
		response.RespondFromError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"job": job})
}

func (h *SynthesisHandler) Status(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_id", err)
		return
	}
	status, err := h.synthesis.Status(c.Request.Context(), middleware.UserID(c), jobID)
	if err != nil {
		response.RespondFromError(c, err)
		return
	}
	response.RespondOK(c, status)
}

func (h *SynthesisHandler) Cancel(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_id", err)
		return
	}
	job, err := h.synthesis.Cancel(c.Request.Context(), middleware.UserID(c), jobID)
	if err != nil {
		response.RespondFromError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"job": job})
}

func (h *SynthesisHandler) List(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}
	jobs, err := h.synthesis.ListJobs(c.Request.Context(), middleware.UserID(c), limit)
	if err != nil {
		response.RespondFromError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"jobs": jobs})
}
