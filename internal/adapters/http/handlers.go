package http

import (
	"net/http"

	"github.com/dkeye/Drop/internal/app/orch"
	"github.com/gin-gonic/gin"
)

type HealthResponse struct {
	Status      string `json:"status"`
	Sessions    int    `json:"sessions"`
	Connections int    `json:"connections"`
}

func healthHandler(o *orch.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, HealthResponse{
			Status:      "ok",
			Sessions:    o.Store.Count(),
			Connections: o.Registry.Count(),
		})
	}
}
