package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const serviceName = "catalog-import-service"

// HealthCheck handles health check requests
// @Summary Health check
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /health [get]
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": serviceName,
	})
}

// Dependency is a named readiness probe.
type Dependency struct {
	Name string
	Ping func(ctx context.Context) error
}

// ReadinessCheck reports 503 until every dependency answers.
func ReadinessCheck(deps ...Dependency) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		checks := gin.H{}
		status := http.StatusOK
		for _, dep := range deps {
			if err := dep.Ping(ctx); err != nil {
				checks[dep.Name] = err.Error()
				status = http.StatusServiceUnavailable
				continue
			}
			checks[dep.Name] = "ok"
		}

		state := "ready"
		if status != http.StatusOK {
			state = "not ready"
		}
		c.JSON(status, gin.H{
			"status":  state,
			"service": serviceName,
			"checks":  checks,
		})
	}
}
