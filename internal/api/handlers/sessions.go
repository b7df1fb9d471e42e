package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/josephwaligorski/milklabel/internal/core"
	milkdb "github.com/josephwaligorski/milklabel/internal/db"
)

type CreateSessionRequest struct {
	Timestamp   *time.Time `json:"timestamp"`
	AmountOz    float64    `json:"amount_oz" binding:"required,gt=0"`
	Notes       string     `json:"notes"`
	UseByFridge *time.Time `json:"use_by_fridge"`
	UseByFrozen *time.Time `json:"use_by_frozen"`
}

type SessionHandler struct {
	store *milkdb.Store
	log   *zap.Logger
}

func NewSessionHandler(store *milkdb.Store, log *zap.Logger) *SessionHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &SessionHandler{store: store, log: log}
}

func (h *SessionHandler) CreateSession(c *gin.Context) {
	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	now := time.Now().UTC()
	ts := now
	if req.Timestamp != nil {
		ts = req.Timestamp.UTC()
	}

	fridge, frozen := core.DeriveUseBy(ts)
	if req.UseByFridge != nil {
		fridge = req.UseByFridge.UTC()
	}
	if req.UseByFrozen != nil {
		frozen = req.UseByFrozen.UTC()
	}

	sess := &milkdb.Session{
		ID:          uuid.NewString(),
		Timestamp:   ts,
		AmountOz:    req.AmountOz,
		Notes:       req.Notes,
		UseByFridge: fridge,
		UseByFrozen: frozen,
		CreatedAt:   now,
	}

	if err := h.store.CreateSession(c.Request.Context(), sess); err != nil {
		h.log.Error("session create failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create session"})
		return
	}

	c.JSON(http.StatusCreated, sess)
}

func (h *SessionHandler) ListSessions(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	sessions, err := h.store.ListSessions(c.Request.Context(), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list sessions"})
		return
	}
	if sessions == nil {
		sessions = []*milkdb.Session{}
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions, "count": len(sessions)})
}

func (h *SessionHandler) GetSession(c *gin.Context) {
	sess, err := h.store.GetSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, milkdb.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get session"})
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (h *SessionHandler) DeleteSession(c *gin.Context) {
	err := h.store.DeleteSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, milkdb.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete session"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *SessionHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/sessions", h.CreateSession)
	r.GET("/sessions", h.ListSessions)
	r.GET("/sessions/:id", h.GetSession)
	r.DELETE("/sessions/:id", h.DeleteSession)
}
