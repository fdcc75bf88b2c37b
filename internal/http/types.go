package http

import (
	"encoding/json"

	"bindery/internal/jobs"
	"bindery/internal/model"
	"bindery/internal/store"
)

// ErrorResponse is the generic failure envelope.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Code    string `json:"code,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ValidationJobRequest creates a validate job.
type ValidationJobRequest struct {
	FileID        string             `json:"fileId"`
	FileURL       string             `json:"fileUrl"`
	FileType      string             `json:"fileType"`
	OrderOptions  model.OrderOptions `json:"orderOptions"`
	EditSessionID string             `json:"editSessionId"`
}

// ConversionJobRequest creates a convert job with free-form options.
type ConversionJobRequest struct {
	FileID  string          `json:"fileId"`
	FileURL string          `json:"fileUrl"`
	Options json.RawMessage `json:"options"`
}

// SynthesisJobRequest creates a synthesize job.
type SynthesisJobRequest struct {
	CoverFileID   string  `json:"coverFileId"`
	CoverURL      string  `json:"coverUrl"`
	ContentFileID string  `json:"contentFileId"`
	ContentURL    string  `json:"contentUrl"`
	SpineWidth    float64 `json:"spineWidth"`
	OrderID       string  `json:"orderId"`
	CallbackURL   string  `json:"callbackUrl"`
	Priority      string  `json:"priority"`
	EditSessionID string  `json:"editSessionId"`
}

// MergeCheckRequest is the synthesis pre-flight body.
type MergeCheckRequest struct {
	EditSessionID string  `json:"editSessionId"`
	CoverFileID   string  `json:"coverFileId"`
	CoverURL      string  `json:"coverUrl"`
	ContentFileID string  `json:"contentFileId"`
	ContentURL    string  `json:"contentUrl"`
	SpineWidth    float64 `json:"spineWidth"`
}

// StatusUpdateRequest is the worker-facing ingestion body.
type StatusUpdateRequest struct {
	Status        string          `json:"status"`
	OutputFileID  string          `json:"outputFileId"`
	OutputFileURL string          `json:"outputFileUrl"`
	Result        json.RawMessage `json:"result"`
	ErrorMessage  string          `json:"errorMessage"`
}

// JobResponse wraps a single job.
type JobResponse struct {
	Success bool       `json:"success"`
	Code    string     `json:"code,omitempty"`
	Error   string     `json:"error,omitempty"`
	Job     *model.Job `json:"job,omitempty"`
}

// ListJobsResponse wraps a job listing.
type ListJobsResponse struct {
	Success bool        `json:"success"`
	Code    string      `json:"code,omitempty"`
	Error   string      `json:"error,omitempty"`
	Jobs    []model.Job `json:"jobs"`
}

// JobStatsResponse wraps the status × type counts.
type JobStatsResponse struct {
	Success bool               `json:"success"`
	Code    string             `json:"code,omitempty"`
	Error   string             `json:"error,omitempty"`
	Stats   []store.JobStatRow `json:"stats"`
}

// MergeCheckResponse wraps the dry-run outcome.
type MergeCheckResponse struct {
	Success   bool         `json:"success"`
	Code      string       `json:"code,omitempty"`
	Error     string       `json:"error,omitempty"`
	Mergeable bool         `json:"mergeable"`
	Issues    []jobs.Issue `json:"issues,omitempty"`
}
