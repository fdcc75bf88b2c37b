package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// JobType identifies the kind of print-file work a job performs.
type JobType string

const (
	JobTypeValidate   JobType = "validate"
	JobTypeConvert    JobType = "convert"
	JobTypeSynthesize JobType = "synthesize"
)

// Valid reports whether t is a known job type value.
func (t JobType) Valid() bool {
	switch t {
	case JobTypeValidate, JobTypeConvert, JobTypeSynthesize:
		return true
	}
	return false
}

// JobStatus is the lifecycle state of a job. These values must match the
// text values stored in jobs.status.
//
// StatusFixable is a resting state for validate jobs only: the file needs
// user correction, as opposed to a system/processing error. It does not
// auto-transition and is not terminal.
type JobStatus string

const (
	StatusPending    JobStatus = "pending"
	StatusProcessing JobStatus = "processing"
	StatusFixable    JobStatus = "fixable"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
)

// Terminal reports whether s is a terminal job status. Jobs in a terminal
// status have completedAt set and accept no further updates.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Valid reports whether s is a known job status value.
func (s JobStatus) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusFixable, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// WorkerStatus is the derived processing state of an edit session. It is
// empty until the session's first validation job is created and is mutated
// only by the status ingestion path.
type WorkerStatus string

const (
	WorkerStatusPending    WorkerStatus = "pending"
	WorkerStatusProcessing WorkerStatus = "processing"
	WorkerStatusValidated  WorkerStatus = "validated"
	WorkerStatusFailed     WorkerStatus = "failed"
)

// Job is a unit of asynchronous print-file work. Created PENDING by a
// producer, driven to a terminal state by an external worker through the
// status ingestion endpoint, never deleted or reused (retention aside).
type Job struct {
	ID            uuid.UUID       `json:"id"`
	Type          JobType         `json:"jobType"`
	Status        JobStatus       `json:"status"`
	EditSessionID *uuid.UUID      `json:"editSessionId,omitempty"`
	FileID        string          `json:"fileId,omitempty"`
	InputFileURL  string          `json:"inputFileUrl,omitempty"`
	OutputFileID  string          `json:"outputFileId,omitempty"`
	OutputFileURL string          `json:"outputFileUrl,omitempty"`
	Options       json.RawMessage `json:"options,omitempty"`
	Result        json.RawMessage `json:"result,omitempty"`
	ErrorMessage  string          `json:"errorMessage,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	CompletedAt   *time.Time      `json:"completedAt,omitempty"`
}

// OutputFile is one typed output produced by a worker, carried inside a
// job's result payload (e.g. the cover and content halves of a synthesis).
type OutputFile struct {
	Type string `json:"type"` // "cover" | "content"
	URL  string `json:"url"`
}

// EditSession is the slice of an editing session this service owns: the
// derived worker fields plus the callback target. The session row itself
// is created and managed by the editor backend.
type EditSession struct {
	ID           uuid.UUID    `json:"id"`
	WorkerStatus WorkerStatus `json:"workerStatus,omitempty"`
	WorkerError  string       `json:"workerError,omitempty"`
	CallbackURL  string       `json:"callbackUrl,omitempty"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}

// OrderOptions are the physical print constraints a validation job checks
// a file against.
type OrderOptions struct {
	Size           Size    `json:"size"`
	Pages          int     `json:"pages"`
	Binding        string  `json:"binding"`
	Bleed          float64 `json:"bleed"`
	PaperThickness float64 `json:"paperThickness,omitempty"`
}

// Size is a physical page size in millimeters.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}
