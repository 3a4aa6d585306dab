package http

import (
	"github.com/gin-gonic/gin"

	httpH "github.com/echoform/echoform-backend/internal/http/handlers"
	httpMW "github.com/echoform/echoform-backend/internal/http/middleware"
	"github.com/echoform/echoform-backend/internal/pkg/logger"
)

type RouterConfig struct {
	Log *logger.Logger

	VoiceHandler     *httpH.VoiceHandler
	SynthesisHandler *httpH.SynthesisHandler
	StreamHandler    *httpH.StreamHandler
	HealthHandler    *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpMW.CORS())
	r.Use(httpMW.RequestLogger(cfg.Log))

	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}

	api := r.Group("/api")
	api.Use(httpMW.Identity())
	{
		if cfg.StreamHandler != nil {
			api.GET("/events", cfg.StreamHandler.Stream)
		}

		if cfg.VoiceHandler != nil {
			api.POST("/voice/samples", cfg.VoiceHandler.UploadSample)
			api.GET("/voice/samples", cfg.VoiceHandler.ListSamples)
			api.GET("/voice/samples/:id", cfg.VoiceHandler.GetSample)
			api.DELETE("/voice/samples/:id", cfg.VoiceHandler.DeleteSample)

			api.POST("/voice/clones", cfg.VoiceHandler.CreateClone)
			api.GET("/voice/clones", cfg.VoiceHandler.ListClones)
			api.GET("/voice/clones/:id", cfg.VoiceHandler.GetClone)
			api.DELETE("/voice/clones/:id", cfg.VoiceHandler.DeleteClone)
		}

		if cfg.SynthesisHandler != nil {
			api.POST("/synthesis", cfg.SynthesisHandler.Submit)
			api.GET("/synthesis", cfg.SynthesisHandler.List)
			api.GET("/synthesis/:id", cfg.SynthesisHandler.Get)
			api.GET("/synthesis/:id/status", cfg.SynthesisHandler.Status)
			api.POST("/synthesis/:id/cancel", cfg.SynthesisHandler.Cancel)
		}
	}

	return r
}
