package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"bindery/internal/model"
	"bindery/internal/store"
	"bindery/internal/webhook"
)

type fakeIngestStore struct {
	jobs     map[uuid.UUID]model.Job
	sessions map[uuid.UUID]model.EditSession
}

func newFakeIngestStore() *fakeIngestStore {
	return &fakeIngestStore{
		jobs:     make(map[uuid.UUID]model.Job),
		sessions: make(map[uuid.UUID]model.EditSession),
	}
}

func (f *fakeIngestStore) GetJobByID(_ context.Context, id uuid.UUID) (model.Job, error) {
	job, ok := f.jobs[id]
	if !ok {
		return model.Job{}, sql.ErrNoRows
	}
	return job, nil
}

func (f *fakeIngestStore) UpdateJobStatus(_ context.Context, id uuid.UUID, patch store.StatusPatch) (model.Job, error) {
	job, ok := f.jobs[id]
	if !ok {
		return model.Job{}, sql.ErrNoRows
	}
	job.Status = patch.Status
	if patch.OutputFileID != "" {
		job.OutputFileID = patch.OutputFileID
	}
	if patch.OutputFileURL != "" {
		job.OutputFileURL = patch.OutputFileURL
	}
	if len(patch.Result) > 0 {
		job.Result = patch.Result
	}
	if patch.ErrorMessage != "" {
		job.ErrorMessage = patch.ErrorMessage
	}
	if patch.Status.Terminal() {
		now := time.Now().UTC()
		job.CompletedAt = &now
	}
	f.jobs[id] = job
	return job, nil
}

func (f *fakeIngestStore) ListJobsBySession(_ context.Context, sessionID uuid.UUID) ([]model.Job, error) {
	var out []model.Job
	for _, job := range f.jobs {
		if job.EditSessionID != nil && *job.EditSessionID == sessionID {
			out = append(out, job)
		}
	}
	return out, nil
}

func (f *fakeIngestStore) GetSession(_ context.Context, id uuid.UUID) (model.EditSession, error) {
	sess, ok := f.sessions[id]
	if !ok {
		return model.EditSession{}, sql.ErrNoRows
	}
	return sess, nil
}

func (f *fakeIngestStore) UpdateSessionWorkerStatus(_ context.Context, id uuid.UUID, status model.WorkerStatus, workerError string) error {
	sess := f.sessions[id]
	sess.ID = id
	sess.WorkerStatus = status
	sess.WorkerError = workerError
	f.sessions[id] = sess
	return nil
}

type sentWebhook struct {
	URL        string
	Event      string
	Identifier string
	Payload    any
}

// fakeNotifier records deliveries on a channel; the real sender runs on a
// background goroutine, so tests must wait rather than inspect a slice.
type fakeNotifier struct {
	sent chan sentWebhook
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{sent: make(chan sentWebhook, 8)}
}

func (f *fakeNotifier) Send(_ context.Context, url, event, identifier string, payload any) bool {
	f.sent <- sentWebhook{URL: url, Event: event, Identifier: identifier, Payload: payload}
	return true
}

func (f *fakeNotifier) wait(t *testing.T) sentWebhook {
	t.Helper()
	select {
	case hook := <-f.sent:
		return hook
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for webhook delivery")
		return sentWebhook{}
	}
}

func (f *fakeNotifier) assertNone(t *testing.T) {
	t.Helper()
	select {
	case hook := <-f.sent:
		t.Fatalf("unexpected webhook delivery: %+v", hook)
	case <-time.After(50 * time.Millisecond):
	}
}

func seedJob(st *fakeIngestStore, jobType model.JobType, status model.JobStatus, sessionID *uuid.UUID) model.Job {
	job := model.Job{
		ID:            uuid.New(),
		Type:          jobType,
		Status:        status,
		EditSessionID: sessionID,
		CreatedAt:     time.Now().UTC(),
	}
	st.jobs[job.ID] = job
	return job
}

func TestUpdateStatus_UnknownJob(t *testing.T) {
	ing := NewIngestor(newFakeIngestStore(), newFakeNotifier(), testLogger())

	_, err := ing.UpdateStatus(context.Background(), uuid.New(), store.StatusPatch{Status: model.StatusProcessing})
	if !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}

func TestUpdateStatus_InvalidStatus(t *testing.T) {
	st := newFakeIngestStore()
	job := seedJob(st, model.JobTypeValidate, model.StatusPending, nil)
	ing := NewIngestor(st, newFakeNotifier(), testLogger())

	_, err := ing.UpdateStatus(context.Background(), job.ID, store.StatusPatch{Status: "done"})
	coded, ok := AsCoded(err)
	if !ok || coded.Code != CodeInvalidStatus {
		t.Fatalf("expected INVALID_STATUS, got %v", err)
	}
}

func TestUpdateStatus_CompletedAtOnlyWhenTerminal(t *testing.T) {
	st := newFakeIngestStore()
	job := seedJob(st, model.JobTypeConvert, model.StatusPending, nil)
	ing := NewIngestor(st, newFakeNotifier(), testLogger())

	updated, err := ing.UpdateStatus(context.Background(), job.ID, store.StatusPatch{Status: model.StatusProcessing})
	if err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if updated.CompletedAt != nil {
		t.Error("completedAt must stay unset for a non-terminal status")
	}

	updated, err = ing.UpdateStatus(context.Background(), job.ID, store.StatusPatch{
		Status:        model.StatusCompleted,
		OutputFileURL: "/out/book.pdf",
	})
	if err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if updated.CompletedAt == nil {
		t.Error("completedAt must be set on a terminal status")
	}
	if updated.OutputFileURL != "/out/book.pdf" {
		t.Errorf("outputFileUrl = %q", updated.OutputFileURL)
	}
}

func TestUpdateStatus_FixableIsNotTerminal(t *testing.T) {
	st := newFakeIngestStore()
	job := seedJob(st, model.JobTypeValidate, model.StatusProcessing, nil)
	ing := NewIngestor(st, newFakeNotifier(), testLogger())

	updated, err := ing.UpdateStatus(context.Background(), job.ID, store.StatusPatch{
		Status:       model.StatusFixable,
		ErrorMessage: "page 3 exceeds bleed area",
	})
	if err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if updated.CompletedAt != nil {
		t.Error("fixable must not set completedAt")
	}

	// A fixable job still accepts the terminal update that follows the fix.
	updated, err = ing.UpdateStatus(context.Background(), job.ID, store.StatusPatch{Status: model.StatusCompleted})
	if err != nil {
		t.Fatalf("UpdateStatus after fixable: %v", err)
	}
	if updated.Status != model.StatusCompleted {
		t.Errorf("status = %q, want completed", updated.Status)
	}
}

func TestUpdateStatus_FixableOnlyForValidateJobs(t *testing.T) {
	st := newFakeIngestStore()
	ing := NewIngestor(st, newFakeNotifier(), testLogger())

	for _, jobType := range []model.JobType{model.JobTypeConvert, model.JobTypeSynthesize} {
		job := seedJob(st, jobType, model.StatusProcessing, nil)

		_, err := ing.UpdateStatus(context.Background(), job.ID, store.StatusPatch{
			Status:       model.StatusFixable,
			ErrorMessage: "page 3 exceeds bleed area",
		})
		coded, ok := AsCoded(err)
		if !ok || coded.Code != CodeInvalidStatus {
			t.Fatalf("%s: expected INVALID_STATUS, got %v", jobType, err)
		}
		if st.jobs[job.ID].Status != model.StatusProcessing {
			t.Errorf("%s: stored job must be untouched, got %q", jobType, st.jobs[job.ID].Status)
		}
	}
}

func TestUpdateStatus_TerminalJobIsImmutable(t *testing.T) {
	st := newFakeIngestStore()
	notify := newFakeNotifier()
	job := seedJob(st, model.JobTypeValidate, model.StatusCompleted, nil)
	ing := NewIngestor(st, notify, testLogger())

	updated, err := ing.UpdateStatus(context.Background(), job.ID, store.StatusPatch{
		Status:       model.StatusFailed,
		ErrorMessage: "late duplicate report",
	})
	if err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if updated.Status != model.StatusCompleted {
		t.Errorf("status = %q, terminal job must stay completed", updated.Status)
	}
	if st.jobs[job.ID].ErrorMessage != "" {
		t.Error("stored job must be untouched")
	}
	notify.assertNone(t)
}

func TestUpdateStatus_SingleJobValidatesSession(t *testing.T) {
	st := newFakeIngestStore()
	notify := newFakeNotifier()
	sessionID := uuid.New()
	st.sessions[sessionID] = model.EditSession{
		ID:           sessionID,
		WorkerStatus: model.WorkerStatusProcessing,
		CallbackURL:  "https://editor.example/hooks",
	}
	job := seedJob(st, model.JobTypeValidate, model.StatusProcessing, &sessionID)
	ing := NewIngestor(st, notify, testLogger())

	_, err := ing.UpdateStatus(context.Background(), job.ID, store.StatusPatch{Status: model.StatusCompleted})
	if err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	if st.sessions[sessionID].WorkerStatus != model.WorkerStatusValidated {
		t.Errorf("session status = %q, want validated", st.sessions[sessionID].WorkerStatus)
	}

	hook := notify.wait(t)
	if hook.Event != webhook.EventSessionValidated {
		t.Errorf("event = %q, want session.validated", hook.Event)
	}
	if hook.URL != "https://editor.example/hooks" || hook.Identifier != sessionID.String() {
		t.Errorf("unexpected delivery target: %+v", hook)
	}
}

func TestUpdateStatus_SessionLockEvictedOnTerminalStatus(t *testing.T) {
	st := newFakeIngestStore()
	sessionID := uuid.New()
	st.sessions[sessionID] = model.EditSession{ID: sessionID, WorkerStatus: model.WorkerStatusProcessing}
	job := seedJob(st, model.JobTypeValidate, model.StatusProcessing, &sessionID)
	ing := NewIngestor(st, newFakeNotifier(), testLogger())

	if _, err := ing.UpdateStatus(context.Background(), job.ID, store.StatusPatch{Status: model.StatusCompleted}); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	ing.mu.Lock()
	held := len(ing.locks)
	ing.mu.Unlock()
	if held != 0 {
		t.Errorf("lock map must be empty after the session turned terminal, has %d entries", held)
	}
}

func TestUpdateStatus_SessionWaitsForAllSiblings(t *testing.T) {
	st := newFakeIngestStore()
	notify := newFakeNotifier()
	sessionID := uuid.New()
	st.sessions[sessionID] = model.EditSession{
		ID:           sessionID,
		WorkerStatus: model.WorkerStatusProcessing,
		CallbackURL:  "https://editor.example/hooks",
	}
	j1 := seedJob(st, model.JobTypeValidate, model.StatusProcessing, &sessionID)
	j2 := seedJob(st, model.JobTypeValidate, model.StatusProcessing, &sessionID)
	ing := NewIngestor(st, notify, testLogger())

	// First job completes while the second is still running: no transition.
	if _, err := ing.UpdateStatus(context.Background(), j1.ID, store.StatusPatch{Status: model.StatusCompleted}); err != nil {
		t.Fatalf("UpdateStatus j1: %v", err)
	}
	if st.sessions[sessionID].WorkerStatus != model.WorkerStatusProcessing {
		t.Errorf("session moved early to %q", st.sessions[sessionID].WorkerStatus)
	}
	notify.assertNone(t)

	// Second job fails: session fails with the worker's message.
	if _, err := ing.UpdateStatus(context.Background(), j2.ID, store.StatusPatch{
		Status:       model.StatusFailed,
		ErrorMessage: "content PDF is encrypted",
	}); err != nil {
		t.Fatalf("UpdateStatus j2: %v", err)
	}

	sess := st.sessions[sessionID]
	if sess.WorkerStatus != model.WorkerStatusFailed {
		t.Errorf("session status = %q, want failed", sess.WorkerStatus)
	}
	if sess.WorkerError != "content PDF is encrypted" {
		t.Errorf("workerError = %q", sess.WorkerError)
	}

	hook := notify.wait(t)
	if hook.Event != webhook.EventSessionFailed {
		t.Errorf("event = %q, want session.failed", hook.Event)
	}
}

func TestUpdateStatus_LateCompletionKeepsSessionFailed(t *testing.T) {
	st := newFakeIngestStore()
	notify := newFakeNotifier()
	sessionID := uuid.New()
	st.sessions[sessionID] = model.EditSession{
		ID:           sessionID,
		WorkerStatus: model.WorkerStatusFailed,
		WorkerError:  "cover PDF is corrupt",
	}
	seedJob(st, model.JobTypeValidate, model.StatusFailed, &sessionID)
	late := seedJob(st, model.JobTypeValidate, model.StatusProcessing, &sessionID)
	ing := NewIngestor(st, notify, testLogger())

	if _, err := ing.UpdateStatus(context.Background(), late.ID, store.StatusPatch{Status: model.StatusCompleted}); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	if st.sessions[sessionID].WorkerStatus != model.WorkerStatusFailed {
		t.Errorf("late completion overwrote FAILED with %q", st.sessions[sessionID].WorkerStatus)
	}
	notify.assertNone(t)
}

func TestUpdateStatus_FailedWithoutMessageGetsFallback(t *testing.T) {
	st := newFakeIngestStore()
	sessionID := uuid.New()
	st.sessions[sessionID] = model.EditSession{ID: sessionID, WorkerStatus: model.WorkerStatusProcessing}
	job := seedJob(st, model.JobTypeValidate, model.StatusProcessing, &sessionID)
	ing := NewIngestor(st, newFakeNotifier(), testLogger())

	if _, err := ing.UpdateStatus(context.Background(), job.ID, store.StatusPatch{Status: model.StatusFailed}); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if st.sessions[sessionID].WorkerError != "processing failed" {
		t.Errorf("workerError = %q, want fallback", st.sessions[sessionID].WorkerError)
	}
}

func TestUpdateStatus_ProcessingSyncsSessionWithoutWebhook(t *testing.T) {
	st := newFakeIngestStore()
	notify := newFakeNotifier()
	sessionID := uuid.New()
	st.sessions[sessionID] = model.EditSession{
		ID:           sessionID,
		WorkerStatus: model.WorkerStatusPending,
		CallbackURL:  "https://editor.example/hooks",
	}
	job := seedJob(st, model.JobTypeValidate, model.StatusPending, &sessionID)
	ing := NewIngestor(st, notify, testLogger())

	if _, err := ing.UpdateStatus(context.Background(), job.ID, store.StatusPatch{Status: model.StatusProcessing}); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if st.sessions[sessionID].WorkerStatus != model.WorkerStatusProcessing {
		t.Errorf("session status = %q, want processing", st.sessions[sessionID].WorkerStatus)
	}
	notify.assertNone(t)
}

func TestUpdateStatus_SynthesisCompletedNotifiesStorefront(t *testing.T) {
	st := newFakeIngestStore()
	notify := newFakeNotifier()
	options, _ := json.Marshal(SynthesisOptions{
		OrderID:     "order-42",
		CallbackURL: "https://store.example/hooks",
	})
	job := seedJob(st, model.JobTypeSynthesize, model.StatusProcessing, nil)
	job.Options = options
	st.jobs[job.ID] = job
	ing := NewIngestor(st, notify, testLogger())

	if _, err := ing.UpdateStatus(context.Background(), job.ID, store.StatusPatch{
		Status:        model.StatusCompleted,
		OutputFileURL: "/out/merged.pdf",
	}); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	hook := notify.wait(t)
	if hook.Event != webhook.EventSynthesisCompleted {
		t.Errorf("event = %q, want synthesis.completed", hook.Event)
	}
	if hook.URL != "https://store.example/hooks" {
		t.Errorf("url = %q", hook.URL)
	}
	payload, ok := hook.Payload.(SynthesisEventPayload)
	if !ok {
		t.Fatalf("payload type %T", hook.Payload)
	}
	if payload.OrderID != "order-42" || payload.OutputFileURL != "/out/merged.pdf" {
		t.Errorf("unexpected payload: %+v", payload)
	}
}

func TestUpdateStatus_SynthesisFailedNotifiesStorefront(t *testing.T) {
	st := newFakeIngestStore()
	notify := newFakeNotifier()
	options, _ := json.Marshal(SynthesisOptions{CallbackURL: "https://store.example/hooks"})
	job := seedJob(st, model.JobTypeSynthesize, model.StatusProcessing, nil)
	job.Options = options
	st.jobs[job.ID] = job
	ing := NewIngestor(st, notify, testLogger())

	if _, err := ing.UpdateStatus(context.Background(), job.ID, store.StatusPatch{
		Status:       model.StatusFailed,
		ErrorMessage: "spine exceeds cover width",
	}); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	hook := notify.wait(t)
	if hook.Event != webhook.EventSynthesisFailed {
		t.Errorf("event = %q, want synthesis.failed", hook.Event)
	}
	payload := hook.Payload.(SynthesisEventPayload)
	if payload.ErrorMessage != "spine exceeds cover width" {
		t.Errorf("errorMessage = %q", payload.ErrorMessage)
	}
}

func TestUpdateStatus_SynthesisWithoutCallbackStaysQuiet(t *testing.T) {
	st := newFakeIngestStore()
	notify := newFakeNotifier()
	job := seedJob(st, model.JobTypeSynthesize, model.StatusProcessing, nil)
	ing := NewIngestor(st, notify, testLogger())

	if _, err := ing.UpdateStatus(context.Background(), job.ID, store.StatusPatch{Status: model.StatusCompleted}); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	notify.assertNone(t)
}
