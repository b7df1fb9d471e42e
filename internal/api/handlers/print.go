package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/josephwaligorski/milklabel/internal/core"
)

type CompleteJobRequest struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type PrintHandler struct {
	dispatcher *core.Dispatcher
	queue      *core.Queue
	log        *zap.Logger
}

func NewPrintHandler(dispatcher *core.Dispatcher, queue *core.Queue, log *zap.Logger) *PrintHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &PrintHandler{
		dispatcher: dispatcher,
		queue:      queue,
		log:        log,
	}
}

func (h *PrintHandler) Print(c *gin.Context) {
	var req core.PrintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.dispatcher.Dispatch(c.Request.Context(), &req)
	if err != nil {
		var terr *core.TransportError
		switch {
		case errors.Is(err, core.ErrNoSession):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.As(err, &terr):
			h.log.Error("print dispatch failed",
				zap.String("transport", terr.Transport),
				zap.String("detail", terr.Detail))
			c.JSON(http.StatusBadGateway, gin.H{"error": terr.Error()})
		default:
			h.log.Error("print dispatch failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to dispatch print request"})
		}
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *PrintHandler) GetJob(c *gin.Context) {
	job, err := h.queue.Get(c.Request.Context(), c.Param("jobId"))
	if err != nil {
		if errors.Is(err, core.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get job"})
		return
	}
	c.JSON(http.StatusOK, job)
}

func (h *PrintHandler) CompleteJob(c *gin.Context) {
	var req CompleteJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	job, err := h.queue.Complete(c.Request.Context(), c.Param("jobId"), req.Success, req.Error)
	if err != nil {
		if errors.Is(err, core.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to complete job"})
		return
	}

	h.log.Info("job completed",
		zap.String("job_id", job.ID),
		zap.String("status", job.Status))

	c.JSON(http.StatusOK, gin.H{"ok": true, "status": job.Status})
}

func (h *PrintHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/print", h.Print)
	r.GET("/print/:jobId", h.GetJob)
	r.POST("/print/:jobId/complete", h.CompleteJob)
}
