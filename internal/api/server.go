package api

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/josephwaligorski/milklabel/internal/api/handlers"
	"github.com/josephwaligorski/milklabel/internal/core"
	milkdb "github.com/josephwaligorski/milklabel/internal/db"
)

// NewEngine wires the handlers into a gin engine. Kept separate from main
// so tests can exercise the full HTTP surface in-process.
func NewEngine(store *milkdb.Store, queue *core.Queue, dispatcher *core.Dispatcher, log *zap.Logger) *gin.Engine {
	if log == nil {
		log = zap.NewNop()
	}

	engine := gin.New()
	engine.Use(gin.Recovery())

	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	apiGroup := engine.Group("/api")
	handlers.NewPrintHandler(dispatcher, queue, log).RegisterRoutes(apiGroup)
	handlers.NewAgentHandler(store, queue, log).RegisterRoutes(apiGroup)
	handlers.NewSessionHandler(store, log).RegisterRoutes(apiGroup)

	return engine
}
