package http

import (
	"context"

	"github.com/dkeye/p2precorder/internal/app/capture"
	"github.com/dkeye/p2precorder/internal/app/signaling"
	"github.com/dkeye/p2precorder/internal/config"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const ArtifactPrefix = "/artifacts/"

// Deps is what the operator surface drives. Recorder and Artifacts are nil
// for the sending role.
type Deps struct {
	Coordinator *signaling.Coordinator
	Recorder    *capture.Recorder
	Artifacts   *capture.ArtifactStore
	Hub         *Hub
	Limiter     *RateLimiter
	Gatherer    prometheus.Gatherer
}

func SetupRouter(ctx context.Context, cfg *config.Config, d Deps) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	h := &handlers{d: d}

	api := r.Group("/api")
	api.GET("/session", h.getSession)
	api.POST("/session/reset", h.resetSession)
	api.GET("/exchange", h.exportExchange)
	api.POST("/exchange", h.importExchange)
	if d.Hub != nil {
		api.GET("/ws", func(c *gin.Context) {
			d.Hub.Serve(ctx, c)
		})
	}

	if d.Recorder != nil {
		api.GET("/recording", h.getRecording)
		api.POST("/recording/start", h.startRecording)
		api.POST("/recording/stop", h.stopRecording)
	}
	if d.Artifacts != nil {
		r.GET(ArtifactPrefix+":id", h.downloadArtifact)
		r.DELETE(ArtifactPrefix+":id", h.revokeArtifact)
	}

	if d.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}

	log.Info().
		Str("module", "adapters.http").
		Str("role", d.Coordinator.Role().String()).
		Bool("recorder", d.Recorder != nil).
		Msg("router setup")
	return r
}
