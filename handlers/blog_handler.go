package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/Nexora-Open-Source/blog-generator-backend/jobs"
	"github.com/Nexora-Open-Source/blog-generator-backend/middleware"
	"github.com/Nexora-Open-Source/blog-generator-backend/types"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

const maxRequestBody = 1 << 20

// HandleGenerateBlog schedules a blog generation job for a keyword
//
// @Summary Start blog generation
// @Description Schedules a job that searches the web for the keyword, summarizes the top results and writes a blog post. Returns immediately with the job id.
// @Tags Blog Generation
// @Accept json
// @Produce json
// @Param request body types.GenerateRequest true "Keyword to write about"
// @Success 200 {object} types.GenerateResponse "Job scheduled"
// @Failure 400 {object} middleware.APIError "Invalid body or empty keyword"
// @Failure 429 {object} middleware.APIError "Rate limit exceeded"
// @Failure 503 {object} middleware.APIError "Job queue is full"
// @Router /generate-blog [post]
func (h *Handler) HandleGenerateBlog(w http.ResponseWriter, r *http.Request) {
	reqID := requestID(w, r)

	var req types.GenerateRequest
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	if err := decoder.Decode(&req); err != nil {
		middleware.RespondBadRequest(w, fmt.Errorf("invalid request body: %w", err), reqID)
		return
	}

	jobID, err := h.Jobs.Submit(req.Keyword)
	switch {
	case errors.Is(err, jobs.ErrEmptyKeyword):
		middleware.RespondValidationError(w, err, reqID)
		return
	case errors.Is(err, jobs.ErrQueueFull), errors.Is(err, jobs.ErrStopped):
		middleware.RespondServiceUnavailable(w, err, reqID)
		return
	case err != nil:
		middleware.RespondInternalError(w, err, reqID)
		return
	}

	h.Logger.WithFields(logrus.Fields{
		"request_id": reqID,
		"job_id":     jobID,
		"keyword":    req.Keyword,
	}).Info("Blog generation requested")

	writeJSON(w, http.StatusOK, types.GenerateResponse{
		JobID:   jobID,
		Status:  types.StatusProcessing,
		Message: fmt.Sprintf("Blog generation started for keyword: %s", req.Keyword),
	})
}

// HandleGetBlogStatus returns the current state of a blog generation job
//
// @Summary Get blog generation status
// @Description Returns the job status, its progress label and, once finished, the article or the error.
// @Tags Blog Generation
// @Produce json
// @Param job_id path string true "Job ID"
// @Success 200 {object} types.JobStatus "Job status"
// @Failure 404 {object} middleware.APIError "Job not found"
// @Router /blog-status/{job_id} [get]
func (h *Handler) HandleGetBlogStatus(w http.ResponseWriter, r *http.Request) {
	reqID := requestID(w, r)
	jobID := mux.Vars(r)["job_id"]

	status, exists := h.Jobs.Status(jobID)
	if !exists {
		middleware.RespondNotFound(w, errors.New("job not found"), reqID)
		return
	}

	h.Logger.WithFields(logrus.Fields{
		"request_id": reqID,
		"job_id":     jobID,
		"status":     status.Status,
	}).Debug("Job status retrieved")

	writeJSON(w, http.StatusOK, status)
}

func writeJSON(w http.ResponseWriter, statusCode int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}
