// Package types contains shared types used across the blog generation backend
package types

import (
	"time"
)

// Job states
const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Progress labels reported while a job runs
const (
	ProgressInitializing = "Initializing"
	ProgressBrowser      = "Setting up web scraper"
	ProgressSearching    = "Performing Google search"
	ProgressScraping     = "Scraping search results"
	ProgressLoading      = "Loading scraped content"
	ProgressSummarizing  = "Summarizing content"
	ProgressGenerating   = "Generating blog post"
	ProgressSaving       = "Saving blog post"
	ProgressCompleted    = "Blog post generated and saved successfully"
	ProgressFailed       = "Failed"
)

// JobStatus represents the status of a blog generation job
type JobStatus struct {
	JobID       string     `json:"job_id"`
	Keyword     string     `json:"keyword"`
	Status      string     `json:"status"` // processing, completed, failed
	Progress    string     `json:"progress"`
	Result      string     `json:"result,omitempty"`
	Error       string     `json:"error,omitempty"`
	ArticlePath string     `json:"-"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// IsTerminal reports whether the job has reached completed or failed.
func (s *JobStatus) IsTerminal() bool {
	return s.Status == StatusCompleted || s.Status == StatusFailed
}

// GenerateRequest is the body accepted by POST /generate-blog
type GenerateRequest struct {
	Keyword string `json:"keyword"`
}

// GenerateResponse is returned once a job has been scheduled
type GenerateResponse struct {
	JobID   string `json:"job_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}
