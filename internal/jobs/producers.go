package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"bindery/internal/files"
	"bindery/internal/metrics"
	"bindery/internal/model"
	"bindery/internal/queue"
)

// FileRef is a caller-supplied input reference: either a pre-resolved URL
// or an opaque file identifier the producer resolves itself.
type FileRef struct {
	FileID string `json:"fileId,omitempty"`
	URL    string `json:"url,omitempty"`
}

func (r FileRef) empty() bool {
	return r.FileID == "" && r.URL == ""
}

// CreatorStore is the slice of the store the producers need.
type CreatorStore interface {
	CreateJob(ctx context.Context, job model.Job) (model.Job, error)
	UpdateSessionWorkerStatus(ctx context.Context, id uuid.UUID, status model.WorkerStatus, workerError string) error
}

// Producer creates jobs and hands matching work items to the queue
// dispatcher. The job row is persisted before the enqueue; if the enqueue
// fails the job stays PENDING and the sweeper re-enqueues it later.
type Producer struct {
	store  CreatorStore
	queue  queue.Dispatcher
	files  files.Resolver
	logger *slog.Logger
}

func NewProducer(st CreatorStore, q queue.Dispatcher, fr files.Resolver, logger *slog.Logger) *Producer {
	return &Producer{store: st, queue: q, files: fr, logger: logger}
}

// ValidationOptions are the persisted options of a validate job.
type ValidationOptions struct {
	FileType string             `json:"fileType"`
	Order    model.OrderOptions `json:"orderOptions"`
}

// SynthesisOptions are the persisted options of a synthesize job. The
// callback URL and order id live here so the webhook step after completion
// does not need the original caller.
type SynthesisOptions struct {
	SpineWidth    float64 `json:"spineWidth"`
	OrderID       string  `json:"orderId,omitempty"`
	CallbackURL   string  `json:"callbackUrl,omitempty"`
	Priority      string  `json:"priority,omitempty"`
	CoverFileID   string  `json:"coverFileId,omitempty"`
	CoverURL      string  `json:"coverUrl"`
	ContentFileID string  `json:"contentFileId,omitempty"`
	ContentURL    string  `json:"contentUrl"`
}

// ValidationWork is the queue payload consumed by validation workers.
type ValidationWork struct {
	JobID        uuid.UUID          `json:"jobId"`
	FileID       string             `json:"fileId,omitempty"`
	FileURL      string             `json:"fileUrl"`
	FileType     string             `json:"fileType"`
	OrderOptions model.OrderOptions `json:"orderOptions"`
}

// ConversionWork is the queue payload consumed by conversion workers.
type ConversionWork struct {
	JobID   uuid.UUID       `json:"jobId"`
	FileID  string          `json:"fileId,omitempty"`
	FileURL string          `json:"fileUrl"`
	Options json.RawMessage `json:"options,omitempty"`
}

// SynthesisWork is the queue payload consumed by synthesis workers.
type SynthesisWork struct {
	JobID      uuid.UUID `json:"jobId"`
	CoverURL   string    `json:"coverUrl"`
	ContentURL string    `json:"contentUrl"`
	SpineWidth float64   `json:"spineWidth"`
	OrderID    string    `json:"orderId,omitempty"`
}

// newJobID generates a uuidv7 job id, falling back to v4.
func newJobID() uuid.UUID {
	if id, err := uuid.NewV7(); err == nil {
		return id
	}
	return uuid.New()
}

// resolveRef turns a FileRef into a concrete URL, resolving file ids via
// the file service. missingCode is returned when neither side of the ref
// is supplied.
func (p *Producer) resolveRef(ctx context.Context, ref FileRef, missingCode string) (fileID, url string, err error) {
	if ref.empty() {
		return "", "", newError(missingCode, "either a file id or a file url is required")
	}
	if ref.URL != "" {
		return ref.FileID, ref.URL, nil
	}

	resolved, err := p.files.Resolve(ctx, ref.FileID)
	if err != nil {
		if errors.Is(err, files.ErrFileNotFound) {
			return "", "", newError(CodeFileNotFound, fmt.Sprintf("file %q could not be resolved", ref.FileID))
		}
		return "", "", err
	}
	url = resolved.URL
	if url == "" {
		url = resolved.Path
	}
	return ref.FileID, url, nil
}

// CreateValidation creates a validate job and enqueues it on the
// validation queue. The order options carry the physical print
// constraints the worker checks the file against.
func (p *Producer) CreateValidation(ctx context.Context, input FileRef, fileType string, order model.OrderOptions, sessionID *uuid.UUID) (model.Job, error) {
	if order.Size.Width <= 0 || order.Size.Height <= 0 {
		return model.Job{}, newError(CodeInvalidInput, "orderOptions.size is required")
	}
	if order.Pages <= 0 {
		return model.Job{}, newError(CodeInvalidInput, "orderOptions.pages is required")
	}
	if order.Binding == "" {
		return model.Job{}, newError(CodeInvalidInput, "orderOptions.binding is required")
	}

	fileID, fileURL, err := p.resolveRef(ctx, input, CodeInvalidInput)
	if err != nil {
		return model.Job{}, err
	}

	options, err := json.Marshal(ValidationOptions{FileType: fileType, Order: order})
	if err != nil {
		return model.Job{}, err
	}

	job, err := p.store.CreateJob(ctx, model.Job{
		ID:            newJobID(),
		Type:          model.JobTypeValidate,
		EditSessionID: sessionID,
		FileID:        fileID,
		InputFileURL:  fileURL,
		Options:       options,
	})
	if err != nil {
		return model.Job{}, err
	}
	metrics.RecordJobCreated(string(job.Type))

	// The session's derived worker state leaves null the moment its first
	// validation job exists.
	if sessionID != nil {
		if err := p.store.UpdateSessionWorkerStatus(ctx, *sessionID, model.WorkerStatusPending, ""); err != nil {
			p.logger.Warn("session_mark_pending_failed", "edit_session_id", sessionID.String(), "error", err)
		}
	}

	work := ValidationWork{
		JobID:        job.ID,
		FileID:       fileID,
		FileURL:      fileURL,
		FileType:     fileType,
		OrderOptions: order,
	}
	if err := p.queue.Enqueue(ctx, queue.Validation, work, ""); err != nil {
		// Job stays PENDING; the sweeper picks it up later.
		p.logger.Warn("enqueue_failed", "job_id", job.ID.String(), "queue", queue.Validation, "error", err)
	} else {
		p.logger.Info("job_enqueued", "job_id", job.ID.String(), "job_type", job.Type, "queue", queue.Validation)
	}

	return job, nil
}

// CreateConversion creates a convert job with free-form conversion
// parameters and enqueues it on the conversion queue.
func (p *Producer) CreateConversion(ctx context.Context, input FileRef, convertOptions json.RawMessage) (model.Job, error) {
	fileID, fileURL, err := p.resolveRef(ctx, input, CodeInvalidInput)
	if err != nil {
		return model.Job{}, err
	}

	job, err := p.store.CreateJob(ctx, model.Job{
		ID:           newJobID(),
		Type:         model.JobTypeConvert,
		FileID:       fileID,
		InputFileURL: fileURL,
		Options:      convertOptions,
	})
	if err != nil {
		return model.Job{}, err
	}
	metrics.RecordJobCreated(string(job.Type))

	work := ConversionWork{JobID: job.ID, FileID: fileID, FileURL: fileURL, Options: convertOptions}
	if err := p.queue.Enqueue(ctx, queue.Conversion, work, ""); err != nil {
		p.logger.Warn("enqueue_failed", "job_id", job.ID.String(), "queue", queue.Conversion, "error", err)
	} else {
		p.logger.Info("job_enqueued", "job_id", job.ID.String(), "job_type", job.Type, "queue", queue.Conversion)
	}

	return job, nil
}

// SynthesisRequest carries the inputs of a synthesize job: the cover and
// content halves, the spine, and the optional storefront wiring.
type SynthesisRequest struct {
	Cover       FileRef
	Content     FileRef
	SpineWidth  float64
	OrderID     string
	CallbackURL string
	Priority    string
	SessionID   *uuid.UUID
}

// CreateSynthesis creates a synthesize job and enqueues it on the
// synthesis queue tier matching the requested priority.
func (p *Producer) CreateSynthesis(ctx context.Context, req SynthesisRequest) (model.Job, error) {
	if req.SpineWidth < 0 {
		return model.Job{}, newError(CodeInvalidSpineWidth, "spineWidth must not be negative")
	}

	coverID, coverURL, err := p.resolveRef(ctx, req.Cover, CodeCoverFileRequired)
	if err != nil {
		return model.Job{}, err
	}
	contentID, contentURL, err := p.resolveRef(ctx, req.Content, CodeContentFileRequired)
	if err != nil {
		return model.Job{}, err
	}

	priority := queue.ParsePriority(req.Priority)
	options, err := json.Marshal(SynthesisOptions{
		SpineWidth:    req.SpineWidth,
		OrderID:       req.OrderID,
		CallbackURL:   req.CallbackURL,
		Priority:      string(priority),
		CoverFileID:   coverID,
		CoverURL:      coverURL,
		ContentFileID: contentID,
		ContentURL:    contentURL,
	})
	if err != nil {
		return model.Job{}, err
	}

	// The content block is recorded as the job's primary input; the cover
	// ref travels in the options.
	job, err := p.store.CreateJob(ctx, model.Job{
		ID:            newJobID(),
		Type:          model.JobTypeSynthesize,
		EditSessionID: req.SessionID,
		FileID:        contentID,
		InputFileURL:  contentURL,
		Options:       options,
	})
	if err != nil {
		return model.Job{}, err
	}
	metrics.RecordJobCreated(string(job.Type))

	work := SynthesisWork{
		JobID:      job.ID,
		CoverURL:   coverURL,
		ContentURL: contentURL,
		SpineWidth: req.SpineWidth,
		OrderID:    req.OrderID,
	}
	if err := p.queue.Enqueue(ctx, queue.Synthesis, work, priority); err != nil {
		p.logger.Warn("enqueue_failed", "job_id", job.ID.String(), "queue", queue.Synthesis, "error", err)
	} else {
		p.logger.Info("job_enqueued",
			"job_id", job.ID.String(), "job_type", job.Type, "queue", queue.Synthesis, "priority", priority)
	}

	return job, nil
}
