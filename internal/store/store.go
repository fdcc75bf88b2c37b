package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/sqlc-dev/pqtype"

	"bindery/internal/model"
)

// Store wraps access to the database via a shared *sql.DB with pooling.
type Store struct {
	DB *sql.DB
}

// New creates a new Store that uses a shared *sql.DB with pooling.
func New(database *sql.DB) *Store {
	return &Store{DB: database}
}

// hashAPIKey hashes a raw API key string using SHA-256 and returns a hex string.
func hashAPIKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

const jobColumns = `id, job_type, status, edit_session_id, file_id, input_file_url,
	output_file_id, output_file_url, options, result, error_message, created_at, completed_at`

// scanJob reads one jobs row from a *sql.Row or *sql.Rows.
func scanJob(row interface{ Scan(...any) error }) (model.Job, error) {
	var (
		job       model.Job
		sessionID uuid.NullUUID
		fileID    sql.NullString
		inputURL  sql.NullString
		outID     sql.NullString
		outURL    sql.NullString
		options   pqtype.NullRawMessage
		result    pqtype.NullRawMessage
		errMsg    sql.NullString
		completed sql.NullTime
	)

	err := row.Scan(&job.ID, &job.Type, &job.Status, &sessionID, &fileID, &inputURL,
		&outID, &outURL, &options, &result, &errMsg, &job.CreatedAt, &completed)
	if err != nil {
		return model.Job{}, err
	}

	if sessionID.Valid {
		id := sessionID.UUID
		job.EditSessionID = &id
	}
	job.FileID = fileID.String
	job.InputFileURL = inputURL.String
	job.OutputFileID = outID.String
	job.OutputFileURL = outURL.String
	if options.Valid {
		job.Options = options.RawMessage
	}
	if result.Valid {
		job.Result = result.RawMessage
	}
	job.ErrorMessage = errMsg.String
	if completed.Valid {
		t := completed.Time
		job.CompletedAt = &t
	}
	return job, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullRaw(raw json.RawMessage) pqtype.NullRawMessage {
	if len(raw) == 0 {
		return pqtype.NullRawMessage{}
	}
	return pqtype.NullRawMessage{RawMessage: raw, Valid: true}
}

// CreateJob inserts a new job row in PENDING state and returns the stored row.
func (s *Store) CreateJob(ctx context.Context, job model.Job) (model.Job, error) {
	var sessionID uuid.NullUUID
	if job.EditSessionID != nil {
		sessionID = uuid.NullUUID{UUID: *job.EditSessionID, Valid: true}
	}

	row := s.DB.QueryRowContext(ctx, `
		INSERT INTO jobs (id, job_type, status, edit_session_id, file_id, input_file_url, options, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		RETURNING `+jobColumns,
		job.ID, job.Type, model.StatusPending, sessionID,
		nullString(job.FileID), nullString(job.InputFileURL), nullRaw(job.Options))
	return scanJob(row)
}

// GetJobByID fetches a single job row.
func (s *Store) GetJobByID(ctx context.Context, id uuid.UUID) (model.Job, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id)
	return scanJob(row)
}

// JobListFilter narrows ListJobs results. Zero values mean "no filter".
type JobListFilter struct {
	Status model.JobStatus
	Type   model.JobType
	Limit  int32
	Offset int32
}

// ListJobs returns jobs newest-first, optionally filtered by status and type.
func (s *Store) ListJobs(ctx context.Context, filter JobListFilter) ([]model.Job, error) {
	var (
		where []string
		args  []any
	)
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Type != "" {
		args = append(args, filter.Type)
		where = append(where, fmt.Sprintf("job_type = $%d", len(args)))
	}

	query := `SELECT ` + jobColumns + ` FROM jobs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit)
	query += fmt.Sprintf(" LIMIT $%d", len(args))
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []model.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// ListJobsBySession returns every job associated with the given edit session.
func (s *Store) ListJobsBySession(ctx context.Context, sessionID uuid.UUID) ([]model.Job, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT `+jobColumns+` FROM jobs WHERE edit_session_id = $1 ORDER BY created_at`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []model.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// StatusPatch carries the fields a worker may set when reporting job
// progress or a final outcome.
type StatusPatch struct {
	Status        model.JobStatus
	OutputFileID  string
	OutputFileURL string
	Result        json.RawMessage
	ErrorMessage  string
}

// UpdateJobStatus overwrites the job's status and any supplied output
// fields, and sets completed_at exactly when the new status is terminal.
// It returns the updated row.
func (s *Store) UpdateJobStatus(ctx context.Context, id uuid.UUID, patch StatusPatch) (model.Job, error) {
	var completedAt sql.NullTime
	if patch.Status.Terminal() {
		completedAt = sql.NullTime{Time: time.Now().UTC(), Valid: true}
	}

	row := s.DB.QueryRowContext(ctx, `
		UPDATE jobs SET
			status          = $2,
			output_file_id  = COALESCE($3, output_file_id),
			output_file_url = COALESCE($4, output_file_url),
			result          = COALESCE($5, result),
			error_message   = COALESCE($6, error_message),
			completed_at    = $7
		WHERE id = $1
		RETURNING `+jobColumns,
		id, patch.Status, nullString(patch.OutputFileID), nullString(patch.OutputFileURL),
		nullRaw(patch.Result), nullString(patch.ErrorMessage), completedAt)
	return scanJob(row)
}

// JobStatRow is one status × type bucket of the stats aggregation.
type JobStatRow struct {
	Status model.JobStatus `json:"status"`
	Type   model.JobType   `json:"jobType"`
	Count  int64           `json:"count"`
}

// JobStats returns job counts grouped by status and type.
func (s *Store) JobStats(ctx context.Context) ([]JobStatRow, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT status, job_type, COUNT(*) FROM jobs
		GROUP BY status, job_type
		ORDER BY status, job_type`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []JobStatRow
	for rows.Next() {
		var row JobStatRow
		if err := rows.Scan(&row.Status, &row.Type, &row.Count); err != nil {
			return nil, err
		}
		stats = append(stats, row)
	}
	return stats, rows.Err()
}

// ListStalePendingJobs returns up to limit jobs still PENDING that were
// created before the cutoff. These are candidates for re-enqueueing.
func (s *Store) ListStalePendingJobs(ctx context.Context, cutoff time.Time, limit int32) ([]model.Job, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT `+jobColumns+` FROM jobs
		WHERE status = $1 AND created_at < $2
		ORDER BY created_at
		LIMIT $3`, model.StatusPending, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []model.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// DeleteExpiredJobsByType deletes terminal jobs of the given type completed
// before the cutoff. Returns the number of rows deleted.
func (s *Store) DeleteExpiredJobsByType(ctx context.Context, jobType model.JobType, cutoff time.Time) (int64, error) {
	res, err := s.DB.ExecContext(ctx, `
		DELETE FROM jobs
		WHERE job_type = $1 AND status IN ($2, $3) AND completed_at < $4`,
		jobType, model.StatusCompleted, model.StatusFailed, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// GetSession fetches an edit session row.
func (s *Store) GetSession(ctx context.Context, id uuid.UUID) (model.EditSession, error) {
	var (
		sess    model.EditSession
		status  sql.NullString
		wErr    sql.NullString
		cbURL   sql.NullString
		created time.Time
	)
	err := s.DB.QueryRowContext(ctx, `
		SELECT id, worker_status, worker_error, callback_url, created_at, updated_at
		FROM edit_sessions WHERE id = $1`, id).
		Scan(&sess.ID, &status, &wErr, &cbURL, &created, &sess.UpdatedAt)
	if err != nil {
		return model.EditSession{}, err
	}
	sess.WorkerStatus = model.WorkerStatus(status.String)
	sess.WorkerError = wErr.String
	sess.CallbackURL = cbURL.String
	return sess, nil
}

// UpdateSessionWorkerStatus overwrites the session's derived worker fields.
// An empty workerError clears the column.
func (s *Store) UpdateSessionWorkerStatus(ctx context.Context, id uuid.UUID, status model.WorkerStatus, workerError string) error {
	_, err := s.DB.ExecContext(ctx, `
		UPDATE edit_sessions SET worker_status = $2, worker_error = $3, updated_at = now()
		WHERE id = $1`, id, status, nullString(workerError))
	return err
}

// APIKey is a stored API credential. The raw key is never persisted.
type APIKey struct {
	ID                 uuid.UUID
	KeyHash            string
	Label              string
	IsAdmin            bool
	RateLimitPerMinute sql.NullInt32
	CreatedAt          time.Time
}

// GetAPIKeyByRawKey looks up an API key by its raw value.
func (s *Store) GetAPIKeyByRawKey(ctx context.Context, rawKey string) (APIKey, error) {
	var key APIKey
	err := s.DB.QueryRowContext(ctx, `
		SELECT id, key_hash, label, is_admin, rate_limit_per_minute, created_at
		FROM api_keys WHERE key_hash = $1`, hashAPIKey(rawKey)).
		Scan(&key.ID, &key.KeyHash, &key.Label, &key.IsAdmin, &key.RateLimitPerMinute, &key.CreatedAt)
	return key, err
}

// EnsureAdminAPIKey ensures that there is an admin API key for the given raw
// key and label. If it already exists, it is returned; otherwise, it is created.
func (s *Store) EnsureAdminAPIKey(ctx context.Context, rawKey, label string) (APIKey, error) {
	key, err := s.GetAPIKeyByRawKey(ctx, rawKey)
	if err == nil {
		return key, nil
	}
	if err != sql.ErrNoRows {
		return APIKey{}, err
	}

	key = APIKey{ID: uuid.New(), KeyHash: hashAPIKey(rawKey), Label: label, IsAdmin: true}
	_, err = s.DB.ExecContext(ctx, `
		INSERT INTO api_keys (id, key_hash, label, is_admin) VALUES ($1, $2, $3, TRUE)`,
		key.ID, key.KeyHash, key.Label)
	if err != nil {
		return APIKey{}, err
	}
	return key, nil
}
