// Package health provides health check handlers for the blog generation backend
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/Nexora-Open-Source/blog-generator-backend/middleware"
	"github.com/Nexora-Open-Source/blog-generator-backend/utils"
	"github.com/sirupsen/logrus"
)

// HealthStatus represents the health check response structure
type HealthStatus struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Version   string            `json:"version"`
	Services  map[string]string `json:"services"`
	Uptime    string            `json:"uptime"`
}

// Check probes one dependency
type Check struct {
	Name string
	Run  func(ctx context.Context) error
}

// Handler contains dependencies for health handlers
type Handler struct {
	Checks  []Check
	Version string
	Timeout time.Duration
	Logger  *logrus.Logger
}

// NewHandler creates a new health handler
func NewHandler(logger *logrus.Logger, checks ...Check) *Handler {
	return &Handler{
		Checks:  checks,
		Version: "1.0.0",
		Timeout: 5 * time.Second,
		Logger:  logger,
	}
}

// ArtifactCheck reports whether the artifact directories are writable
func ArtifactCheck(writable func() error) Check {
	return Check{
		Name: "artifacts",
		Run:  func(context.Context) error { return writable() },
	}
}

// TextGenerationCheck reports whether text generation credentials are configured
func TextGenerationCheck(configured bool) Check {
	return Check{
		Name: "text_generation",
		Run: func(context.Context) error {
			if !configured {
				return fmt.Errorf("text generation credentials are not configured")
			}
			return nil
		},
	}
}

// HandleHealthCheck reports the state of every dependency
//
// @Summary Health check
// @Description Reports the state of the artifact directories, the text generation service and the article archive
// @Tags Health
// @Produce json
// @Success 200 {object} HealthStatus
// @Router /health [get]
func (h *Handler) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")
	if requestID == "" {
		requestID = utils.GenerateRequestID()
		w.Header().Set("X-Request-ID", requestID)
	}

	health := HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now().Format(time.RFC3339),
		Version:   h.Version,
		Services:  make(map[string]string),
		Uptime:    time.Since(startTime).String(),
	}

	for name, err := range h.runChecks(r.Context()) {
		if err != nil {
			health.Status = "unhealthy"
			health.Services[name] = "unhealthy: " + err.Error()
			h.Logger.WithFields(logrus.Fields{
				"service":    name,
				"error":      err.Error(),
				"request_id": requestID,
			}).Error("Health check failed")
			continue
		}
		health.Services[name] = "healthy"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(health)
}

// HandleLivenessCheck provides a simple liveness probe
//
// @Summary Liveness probe
// @Tags Health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /health/live [get]
func (h *Handler) HandleLivenessCheck(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":    "alive",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(startTime).String(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response)
}

// HandleReadinessCheck provides a readiness probe
//
// @Summary Readiness probe
// @Tags Health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 503 {object} middleware.APIError
// @Router /health/ready [get]
func (h *Handler) HandleReadinessCheck(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")
	if requestID == "" {
		requestID = utils.GenerateRequestID()
	}

	services := make(map[string]string)
	for name, err := range h.runChecks(r.Context()) {
		if err != nil {
			middleware.RespondServiceUnavailable(w, fmt.Errorf("%s: %w", name, err), requestID)
			return
		}
		services[name] = "ready"
	}

	response := map[string]interface{}{
		"status":    "ready",
		"timestamp": time.Now().Format(time.RFC3339),
		"services":  services,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response)
}

// runChecks yields each check's name and result in registration order
func (h *Handler) runChecks(ctx context.Context) func(yield func(string, error) bool) {
	return func(yield func(string, error) bool) {
		for _, check := range h.Checks {
			checkCtx, cancel := context.WithTimeout(ctx, h.Timeout)
			err := check.Run(checkCtx)
			cancel()
			if !yield(check.Name, err) {
				return
			}
		}
	}
}

var startTime = time.Now()
