/*
Package handlers provides the HTTP handlers of the blog generation API.

The Handler struct carries the job coordinator and logger, so handlers can be
tested against any implementation of the coordinator interface.
*/
package handlers

import (
	"net/http"

	"github.com/Nexora-Open-Source/blog-generator-backend/types"
	"github.com/Nexora-Open-Source/blog-generator-backend/utils"
	"github.com/sirupsen/logrus"
)

// JobCoordinator schedules blog generation jobs and reports their status
type JobCoordinator interface {
	Submit(keyword string) (string, error)
	Status(jobID string) (types.JobStatus, bool)
}

// Handler contains all service dependencies for HTTP handlers
type Handler struct {
	Jobs   JobCoordinator
	Logger *logrus.Logger
}

// NewHandler creates a new handler instance with injected dependencies
func NewHandler(jobs JobCoordinator, logger *logrus.Logger) *Handler {
	return &Handler{
		Jobs:   jobs,
		Logger: logger,
	}
}

// requestID returns the request's X-Request-ID, generating one when absent
func requestID(w http.ResponseWriter, r *http.Request) string {
	id := r.Header.Get("X-Request-ID")
	if id == "" {
		id = utils.GenerateRequestID()
		w.Header().Set("X-Request-ID", id)
	}
	return id
}
