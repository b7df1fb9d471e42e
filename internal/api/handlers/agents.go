package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/josephwaligorski/milklabel/internal/core"
	milkdb "github.com/josephwaligorski/milklabel/internal/db"
)

type HeartbeatRequest struct {
	PrinterID    string          `json:"printerId" binding:"required"`
	AgentVersion string          `json:"agentVersion"`
	Capabilities json.RawMessage `json:"capabilities"`
}

type NextJobRequest struct {
	PrinterID *string `json:"printerId"`
}

type AgentHandler struct {
	store *milkdb.Store
	queue *core.Queue
	log   *zap.Logger
}

func NewAgentHandler(store *milkdb.Store, queue *core.Queue, log *zap.Logger) *AgentHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &AgentHandler{
		store: store,
		queue: queue,
		log:   log,
	}
}

func (h *AgentHandler) Heartbeat(c *gin.Context) {
	var req HeartbeatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	agent := &milkdb.Agent{
		PrinterID:    req.PrinterID,
		AgentVersion: req.AgentVersion,
		Capabilities: string(req.Capabilities),
	}

	if err := h.store.UpsertAgent(c.Request.Context(), agent); err != nil {
		h.log.Error("agent upsert failed", zap.String("printer_id", req.PrinterID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record heartbeat"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// NextJob is the claim endpoint. Anonymous agents (no printerId) only see
// unassigned jobs; identified agents see their targeted jobs first.
func (h *AgentHandler) NextJob(c *gin.Context) {
	var req NextJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	job, err := h.queue.Claim(c.Request.Context(), req.PrinterID)
	if err != nil {
		h.log.Error("job claim failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to claim job"})
		return
	}

	if job != nil {
		claimer := ""
		if req.PrinterID != nil {
			claimer = *req.PrinterID
		}
		h.log.Info("job claimed",
			zap.String("job_id", job.ID),
			zap.String("printer_id", claimer))
	}

	c.JSON(http.StatusOK, gin.H{"job": job})
}

func (h *AgentHandler) ListAgents(c *gin.Context) {
	agents, err := h.store.ListAgents(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list agents"})
		return
	}
	if agents == nil {
		agents = []*milkdb.Agent{}
	}
	c.JSON(http.StatusOK, gin.H{"agents": agents})
}

func (h *AgentHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/agents", h.ListAgents)
	r.POST("/agents/heartbeat", h.Heartbeat)
	r.POST("/agents/next-job", h.NextJob)
}
