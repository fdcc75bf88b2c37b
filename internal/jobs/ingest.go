package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"bindery/internal/metrics"
	"bindery/internal/model"
	"bindery/internal/store"
	"bindery/internal/webhook"
)

// IngestStore is the slice of the store the ingestion path needs.
type IngestStore interface {
	GetJobByID(ctx context.Context, id uuid.UUID) (model.Job, error)
	UpdateJobStatus(ctx context.Context, id uuid.UUID, patch store.StatusPatch) (model.Job, error)
	ListJobsBySession(ctx context.Context, sessionID uuid.UUID) ([]model.Job, error)
	GetSession(ctx context.Context, id uuid.UUID) (model.EditSession, error)
	UpdateSessionWorkerStatus(ctx context.Context, id uuid.UUID, status model.WorkerStatus, workerError string) error
}

// Ingestor is the single mutation entry point external workers report
// through. It applies the status patch, keeps the owning edit session's
// derived worker state consistent, and fans out webhooks for the two
// external consumers: the editor (session events) and the storefront
// (synthesis job events).
type Ingestor struct {
	store  IngestStore
	notify webhook.Notifier
	logger *slog.Logger

	// mu guards locks; each session gets its own mutex so the
	// "are all session jobs terminal" read-modify-write is serialized
	// per session without stalling unrelated ingestions.
	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

func NewIngestor(st IngestStore, notify webhook.Notifier, logger *slog.Logger) *Ingestor {
	return &Ingestor{
		store:  st,
		notify: notify,
		logger: logger,
		locks:  make(map[uuid.UUID]*sync.Mutex),
	}
}

func (i *Ingestor) sessionLock(id uuid.UUID) *sync.Mutex {
	i.mu.Lock()
	defer i.mu.Unlock()
	lock, ok := i.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		i.locks[id] = lock
	}
	return lock
}

// dropSessionLock evicts a session's lock entry. Called once the session
// reaches a terminal worker status; later reports on the session are
// no-ops, so a fresh mutex is fine if one ever arrives.
func (i *Ingestor) dropSessionLock(id uuid.UUID) {
	i.mu.Lock()
	delete(i.locks, id)
	i.mu.Unlock()
}

// UpdateStatus applies a worker-reported status patch to a job. Updates to
// jobs already in a terminal status are ignored: the stored job is returned
// unchanged so duplicate worker reports stay harmless.
func (i *Ingestor) UpdateStatus(ctx context.Context, jobID uuid.UUID, patch store.StatusPatch) (model.Job, error) {
	if !patch.Status.Valid() {
		return model.Job{}, newError(CodeInvalidStatus, "unknown status "+string(patch.Status))
	}

	job, err := i.store.GetJobByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Job{}, ErrJobNotFound
		}
		return model.Job{}, err
	}

	if job.Status.Terminal() {
		i.logger.Warn("status_update_on_terminal_job",
			"job_id", jobID.String(), "status", job.Status, "patch_status", patch.Status)
		return job, nil
	}

	// FIXABLE is a resting state for validate jobs only.
	if patch.Status == model.StatusFixable && job.Type != model.JobTypeValidate {
		return model.Job{}, newError(CodeInvalidStatus,
			"status fixable applies to validate jobs only")
	}

	updated, err := i.store.UpdateJobStatus(ctx, jobID, patch)
	if err != nil {
		return model.Job{}, err
	}
	metrics.RecordStatusUpdate(string(updated.Type), string(updated.Status))
	i.logger.Info("job_status_ingested",
		"job_id", jobID.String(), "job_type", updated.Type, "status", updated.Status)

	if updated.EditSessionID != nil {
		i.syncSession(ctx, *updated.EditSessionID, updated, patch)
	}

	if updated.Type == model.JobTypeSynthesize && updated.Status.Terminal() {
		i.notifySynthesis(updated)
	}

	return updated, nil
}

// syncSession reconciles the session's derived workerStatus with the job
// outcome that was just ingested. The read of all session jobs and the
// session write are serialized per session id so two jobs finishing at the
// same instant cannot both observe "not all terminal" and drop the
// VALIDATED transition.
func (i *Ingestor) syncSession(ctx context.Context, sessionID uuid.UUID, job model.Job, patch store.StatusPatch) {
	lock := i.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	var (
		newStatus   model.WorkerStatus
		workerError string
	)

	switch job.Status {
	case model.StatusProcessing:
		newStatus = model.WorkerStatusProcessing
	case model.StatusFailed:
		newStatus = model.WorkerStatusFailed
		workerError = patch.ErrorMessage
		if workerError == "" {
			workerError = "processing failed"
		}
	case model.StatusCompleted:
		siblings, err := i.store.ListJobsBySession(ctx, sessionID)
		if err != nil {
			i.logger.Error("session_jobs_lookup_failed",
				"edit_session_id", sessionID.String(), "error", err)
			return
		}
		allTerminal := true
		anyFailed := false
		for _, sib := range siblings {
			if !sib.Status.Terminal() {
				allTerminal = false
			}
			if sib.Status == model.StatusFailed {
				anyFailed = true
			}
		}
		// A failed sibling already moved the session to FAILED; a late
		// completion must not overwrite that.
		if allTerminal && !anyFailed {
			newStatus = model.WorkerStatusValidated
		}
	}

	if newStatus == "" {
		return
	}

	sess, err := i.store.GetSession(ctx, sessionID)
	if err != nil {
		i.logger.Error("session_lookup_failed", "edit_session_id", sessionID.String(), "error", err)
		return
	}
	if sess.WorkerStatus == newStatus {
		return
	}

	if err := i.store.UpdateSessionWorkerStatus(ctx, sessionID, newStatus, workerError); err != nil {
		// The job row stays the source of truth; the session can be
		// reconciled from it later.
		i.logger.Error("session_sync_failed", "edit_session_id", sessionID.String(), "error", err)
		return
	}
	i.logger.Info("session_synced",
		"edit_session_id", sessionID.String(), "worker_status", newStatus)

	if newStatus == model.WorkerStatusValidated || newStatus == model.WorkerStatusFailed {
		i.dropSessionLock(sessionID)
		i.notifySession(sess, newStatus, workerError)
	}
}

// SessionEventPayload is the webhook body for session-scoped events.
type SessionEventPayload struct {
	Event         string `json:"event"`
	EditSessionID string `json:"editSessionId"`
	WorkerStatus  string `json:"workerStatus"`
	WorkerError   string `json:"workerError,omitempty"`
	Timestamp     string `json:"timestamp"`
}

// SynthesisEventPayload is the webhook body for job-scoped synthesis events.
type SynthesisEventPayload struct {
	Event         string          `json:"event"`
	JobID         string          `json:"jobId"`
	OrderID       string          `json:"orderId,omitempty"`
	OutputFileURL string          `json:"outputFileUrl,omitempty"`
	Result        json.RawMessage `json:"result,omitempty"`
	ErrorMessage  string          `json:"errorMessage,omitempty"`
	Timestamp     string          `json:"timestamp"`
}

// notifySession delivers the session-scoped webhook on a background
// goroutine; the ingestion response never waits on delivery.
func (i *Ingestor) notifySession(sess model.EditSession, status model.WorkerStatus, workerError string) {
	if sess.CallbackURL == "" {
		return
	}

	event := webhook.EventSessionValidated
	if status == model.WorkerStatusFailed {
		event = webhook.EventSessionFailed
	}
	payload := SessionEventPayload{
		Event:         event,
		EditSessionID: sess.ID.String(),
		WorkerStatus:  string(status),
		WorkerError:   workerError,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		i.notify.Send(ctx, sess.CallbackURL, event, sess.ID.String(), payload)
	}()
}

// notifySynthesis delivers the job-scoped webhook for a terminal synthesis
// job that carries a callback URL in its options. This runs independently
// of the session notification: synthesis jobs triggered by order placement
// have no session at all.
func (i *Ingestor) notifySynthesis(job model.Job) {
	var opts SynthesisOptions
	if len(job.Options) > 0 {
		if err := json.Unmarshal(job.Options, &opts); err != nil {
			i.logger.Warn("synthesis_options_decode_failed", "job_id", job.ID.String(), "error", err)
			return
		}
	}
	if opts.CallbackURL == "" {
		return
	}

	event := webhook.EventSynthesisCompleted
	if job.Status == model.StatusFailed {
		event = webhook.EventSynthesisFailed
	}
	payload := SynthesisEventPayload{
		Event:         event,
		JobID:         job.ID.String(),
		OrderID:       opts.OrderID,
		OutputFileURL: job.OutputFileURL,
		Result:        job.Result,
		ErrorMessage:  job.ErrorMessage,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		i.notify.Send(ctx, opts.CallbackURL, event, job.ID.String(), payload)
	}()
}
