package http

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/dkeye/p2precorder/internal/app/capture"
	"github.com/dkeye/p2precorder/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const maxExchangeBytes = 1 << 20

type handlers struct {
	d Deps
}

type recordingResponse struct {
	State capture.RecorderState `json:"state"`
	Last  *capture.Artifact     `json:"last,omitempty"`
}

func (h *handlers) getSession(c *gin.Context) {
	c.JSON(http.StatusOK, h.d.Coordinator.Snapshot())
}

func (h *handlers) resetSession(c *gin.Context) {
	if h.d.Recorder != nil {
		h.d.Recorder.Abort()
		h.broadcastRecording()
	}
	s, err := h.d.Coordinator.Activate(c.Request.Context())
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("session reset failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "session": s.Snapshot()})
		return
	}
	c.JSON(http.StatusOK, s.Snapshot())
}

func (h *handlers) exportExchange(c *gin.Context) {
	snap, err := h.d.Coordinator.Export(c.Request.Context())
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	if snap.Text == "" {
		c.Status(http.StatusNoContent)
		return
	}
	c.Header("X-Exchange-Complete", strconv.FormatBool(snap.Complete))
	c.Header("X-Exchange-Revision", strconv.Itoa(snap.Revision))
	c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(snap.Text))
}

func (h *handlers) importExchange(c *gin.Context) {
	if !h.d.Limiter.Allow(c.ClientIP()) {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many attempts"})
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxExchangeBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("read body: %v", err)})
		return
	}
	if err := h.d.Coordinator.Import(c.Request.Context(), string(body)); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, h.d.Coordinator.Snapshot())
}

func (h *handlers) getRecording(c *gin.Context) {
	c.JSON(http.StatusOK, recordingResponse{State: h.d.Recorder.State(), Last: h.d.Recorder.Last()})
}

func (h *handlers) startRecording(c *gin.Context) {
	if err := h.d.Recorder.Start(h.d.Coordinator.Stream()); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	h.broadcastRecording()
	c.JSON(http.StatusOK, recordingResponse{State: h.d.Recorder.State(), Last: h.d.Recorder.Last()})
}

func (h *handlers) stopRecording(c *gin.Context) {
	a, err := h.d.Recorder.Stop()
	if errors.Is(err, domain.ErrRecordingEmpty) {
		h.broadcastRecording()
	}
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	h.broadcastRecording()
	c.JSON(http.StatusOK, recordingResponse{State: h.d.Recorder.State(), Last: a})
}

func (h *handlers) downloadArtifact(c *gin.Context) {
	a, ok := h.d.Artifacts.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "artifact not found"})
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, a.Filename))
	c.Data(http.StatusOK, a.MimeType, a.Data)
}

func (h *handlers) revokeArtifact(c *gin.Context) {
	if !h.d.Artifacts.Revoke(c.Param("id")) {
		c.JSON(http.StatusNotFound, gin.H{"error": "artifact not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) broadcastRecording() {
	if h.d.Hub == nil || h.d.Recorder == nil {
		return
	}
	h.d.Hub.Broadcast("recording", recordingResponse{State: h.d.Recorder.State(), Last: h.d.Recorder.Last()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrSignalingParse):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrSignalingApply),
		errors.Is(err, domain.ErrRecordingStartRejected),
		errors.Is(err, domain.ErrRecordingStopRejected):
		return http.StatusConflict
	case errors.Is(err, domain.ErrRecordingEmpty):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrSessionClosed):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
