package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
)

// HealthCheck pings one dependency. Optional checks are reported but do not
// turn the response into a 503.
type HealthCheck struct {
	Name     string
	Optional bool
	Ping     func(ctx context.Context) error
}

type HealthHandler struct {
	info      gin.H
	startedAt time.Time
	checks    []HealthCheck
	timeout   time.Duration
}

type dependencyStatus struct {
	OK       bool   `json:"ok"`
	Optional bool   `json:"optional,omitempty"`
	Message  string `json:"message,omitempty"`
}

func NewHealthHandler(info gin.H, startedAt time.Time, checks ...HealthCheck) *HealthHandler {
	return &HealthHandler{info: info, startedAt: startedAt, checks: checks, timeout: 2 * time.Second}
}

func (h *HealthHandler) Check(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	statuses := make([]dependencyStatus, len(h.checks))
	// failures are reported per dependency, never through the group
	var g errgroup.Group
	for i, check := range h.checks {
		g.Go(func() error {
			status := dependencyStatus{OK: true, Optional: check.Optional}
			if err := check.Ping(ctx); err != nil {
				status = dependencyStatus{OK: false, Optional: check.Optional, Message: err.Error()}
			}
			statuses[i] = status
			return nil
		})
	}
	_ = g.Wait()

	healthy := true
	dependencies := make(gin.H, len(h.checks))
	for i, check := range h.checks {
		dependencies[check.Name] = statuses[i]
		if !statuses[i].OK && !check.Optional {
			healthy = false
		}
	}

	body := gin.H{
		"status":       "ok",
		"uptime_sec":   int(time.Since(h.startedAt).Seconds()),
		"dependencies": dependencies,
	}
	for k, v := range h.info {
		body[k] = v
	}
	statusCode := http.StatusOK
	if !healthy {
		statusCode = http.StatusServiceUnavailable
		body["status"] = "degraded"
	}
	c.JSON(statusCode, body)
}
