package synthesize

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/echoform/echoform-backend/internal/clients/features"
	"github.com/echoform/echoform-backend/internal/config"
	"github.com/echoform/echoform-backend/internal/consistency"
	types "github.com/echoform/echoform-backend/internal/domain"
	"github.com/echoform/echoform-backend/internal/pkg/dbctx"
	apperrors "github.com/echoform/echoform-backend/internal/pkg/errors"
	"github.com/echoform/echoform-backend/internal/pkg/logger"
	"github.com/echoform/echoform-backend/internal/platform/vector"
	"github.com/echoform/echoform-backend/internal/synthesis"
)

func TestRunHappyPath(t *testing.T) {
	f := newFixture(t)
	job := f.seedRunningJob()

	f.backend.polls = []pollStep{
		{progress: synthesis.Progress{Fraction: 0.4}},
		{progress: synthesis.Progress{Fraction: 1, Done: true}},
	}
	f.backend.result = synthesis.Result{
		Audio:    []byte("RIFF...."),
		MimeType: "audio/wav",
		WordTimestamps: []types.WordTimestamp{
			{Word: "hello", StartTime: 0, EndTime: 0.4},
		},
	}

	if err := f.pipeline.Run(context.Background(), job); err != nil {
		t.Fatalf("Run: %v", err)
	}

	stored := f.jobs.rows[job.ID]
	if stored.Status != types.SynthesisJobStatusCompleted {
		t.Fatalf("status: want=completed got=%s", stored.Status)
	}
	if stored.AudioKey == "" || !f.blobs.keys[stored.AudioKey] {
		t.Fatalf("artifact not stored: key=%q", stored.AudioKey)
	}
	if stored.ExpiresAt == nil || !stored.ExpiresAt.After(time.Now()) {
		t.Fatalf("expiry not set: %v", stored.ExpiresAt)
	}
	if _, held := f.claims.claims[job.Fingerprint]; held {
		t.Fatalf("claim not released")
	}
	if f.users.increments[job.UserID] != 1 {
		t.Fatalf("daily counter: want=1 got=%d", f.users.increments[job.UserID])
	}
	if got := f.vecs.upsertsIn(vector.NamespaceSynthText); len(got) != 1 || got[0].ID != job.ID.String() {
		t.Fatalf("synth_text embedding: %+v", got)
	}
}

func TestRunTransientSubmitFailureThenSuccess(t *testing.T) {
	f := newFixture(t)
	job := f.seedRunningJob()

	f.backend.submitErrs = []error{
		&synthesis.BackendError{Class: synthesis.ErrorClassTransient, StatusCode: 503, Message: "overloaded"},
	}
	f.backend.polls = []pollStep{{progress: synthesis.Progress{Fraction: 1, Done: true}}}
	f.backend.result = synthesis.Result{Audio: []byte("a"), MimeType: "audio/wav"}

	if err := f.pipeline.Run(context.Background(), job); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := f.jobs.rows[job.ID].Status; got != types.SynthesisJobStatusCompleted {
		t.Fatalf("status: want=completed got=%s", got)
	}
	if f.backend.submits != 2 {
		t.Fatalf("submits: want=2 got=%d", f.backend.submits)
	}
}

func TestRunPermanentSubmitFailureNoRetry(t *testing.T) {
	f := newFixture(t)
	job := f.seedRunningJob()

	f.backend.submitErrs = []error{
		&synthesis.BackendError{Class: synthesis.ErrorClassPermanent, StatusCode: 422, Message: "unsupported language"},
		&synthesis.BackendError{Class: synthesis.ErrorClassPermanent, StatusCode: 422, Message: "unsupported language"},
	}

	if err := f.pipeline.Run(context.Background(), job); err != nil {
		t.Fatalf("Run: %v", err)
	}
	stored := f.jobs.rows[job.ID]
	if stored.Status != types.SynthesisJobStatusFailed {
		t.Fatalf("status: want=failed got=%s", stored.Status)
	}
	if stored.ErrorKind != types.ErrorKindPermanentBackend {
		t.Fatalf("error kind: want=%s got=%s", types.ErrorKindPermanentBackend, stored.ErrorKind)
	}
	if f.backend.submits != 1 {
		t.Fatalf("permanent errors must not retry: submits=%d", f.backend.submits)
	}
	if _, held := f.claims.claims[job.Fingerprint]; held {
		t.Fatalf("claim not released on failure")
	}
	if f.users.increments[job.UserID] != 0 {
		t.Fatalf("failed job must not count against quota")
	}
}

func TestRunRequeuesWhileAttemptsRemain(t *testing.T) {
	f := newFixture(t)
	job := f.seedRunningJob()
	job.Attempts = 1 // below the max of 3 configured in the fixture

	f.backend.submitErrs = []error{
		&synthesis.BackendError{Class: synthesis.ErrorClassTransient, Message: "down"},
		&synthesis.BackendError{Class: synthesis.ErrorClassTransient, Message: "down"},
		&synthesis.BackendError{Class: synthesis.ErrorClassTransient, Message: "down"},
	}

	if err := f.pipeline.Run(context.Background(), job); err != nil {
		t.Fatalf("Run: %v", err)
	}
	stored := f.jobs.rows[job.ID]
	if stored.Status != types.SynthesisJobStatusPending {
		t.Fatalf("status: want=pending got=%s", stored.Status)
	}
	if _, held := f.claims.claims[job.Fingerprint]; !held {
		t.Fatalf("claim must survive a requeue")
	}
}

func TestRunTimeoutFailsTransient(t *testing.T) {
	f := newFixture(t)
	job := f.seedRunningJob()
	job.Attempts = 99 // attempts exhausted, so the timeout is terminal

	// The engine never finishes.
	f.backend.polls = []pollStep{{progress: synthesis.Progress{Fraction: 0.1}}}
	f.backend.repeatLastPoll = true

	base := time.Now()
	elapsed := time.Duration(0)
	f.pipeline.now = func() time.Time { return base.Add(elapsed) }
	f.pipeline.sleep = func(ctx context.Context, d time.Duration) error {
		elapsed += d
		return nil
	}

	if err := f.pipeline.Run(context.Background(), job); err != nil {
		t.Fatalf("Run: %v", err)
	}
	stored := f.jobs.rows[job.ID]
	if stored.Status != types.SynthesisJobStatusFailed {
		t.Fatalf("status: want=failed got=%s", stored.Status)
	}
	if stored.ErrorKind != types.ErrorKindTransientBackend {
		t.Fatalf("error kind: want=%s got=%s", types.ErrorKindTransientBackend, stored.ErrorKind)
	}
	if !f.backend.cancelled {
		t.Fatalf("engine not told to stop after timeout")
	}
}

func TestRunCancelBeforeSubmit(t *testing.T) {
	f := newFixture(t)
	job := f.seedRunningJob()
	job.CancelRequested = true
	f.jobs.rows[job.ID].CancelRequested = true

	if err := f.pipeline.Run(context.Background(), job); err != nil {
		t.Fatalf("Run: %v", err)
	}
	stored := f.jobs.rows[job.ID]
	if stored.Status != types.SynthesisJobStatusCancelled {
		t.Fatalf("status: want=cancelled got=%s", stored.Status)
	}
	if stored.CompletedAt == nil {
		t.Fatalf("cancelled job missing completed_at")
	}
	if f.backend.submits != 0 {
		t.Fatalf("cancelled job must not reach the engine")
	}
	if _, held := f.claims.claims[job.Fingerprint]; held {
		t.Fatalf("claim not released on cancel")
	}
}

func TestRunCancelDuringPollConfirmed(t *testing.T) {
	f := newFixture(t)
	job := f.seedRunningJob()

	f.backend.polls = []pollStep{{progress: synthesis.Progress{Fraction: 0.2}}}
	f.backend.repeatLastPoll = true
	f.backend.cancelOK = true
	f.backend.onPoll = func(n int) {
		if n == 1 {
			f.jobs.rows[job.ID].CancelRequested = true
		}
	}

	if err := f.pipeline.Run(context.Background(), job); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := f.jobs.rows[job.ID].Status; got != types.SynthesisJobStatusCancelled {
		t.Fatalf("status: want=cancelled got=%s", got)
	}
}

func TestRunCancelRacingCompletionCompletes(t *testing.T) {
	f := newFixture(t)
	job := f.seedRunningJob()

	// Cancel arrives mid-poll but the engine reports it could not stop the
	// work, so the completed result wins.
	f.backend.cancelOK = false
	f.backend.polls = []pollStep{
		{progress: synthesis.Progress{Fraction: 0.8}},
		{progress: synthesis.Progress{Fraction: 1, Done: true}},
	}
	f.backend.onPoll = func(n int) {
		if n == 1 {
			f.jobs.rows[job.ID].CancelRequested = true
		}
	}
	f.backend.result = synthesis.Result{Audio: []byte("a"), MimeType: "audio/wav"}

	if err := f.pipeline.Run(context.Background(), job); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := f.jobs.rows[job.ID].Status; got != types.SynthesisJobStatusCompleted {
		t.Fatalf("late cancellation must lose to completion: status=%s", got)
	}
	if f.users.increments[job.UserID] != 1 {
		t.Fatalf("completed job must count against quota exactly once")
	}
}

func TestRunEmbeddingFailureDefersReindex(t *testing.T) {
	f := newFixture(t)
	job := f.seedRunningJob()

	f.backend.polls = []pollStep{{progress: synthesis.Progress{Fraction: 1, Done: true}}}
	f.backend.result = synthesis.Result{Audio: []byte("a"), MimeType: "audio/wav"}
	f.features.embedErr = errors.New("feature service down")

	if err := f.pipeline.Run(context.Background(), job); err != nil {
		t.Fatalf("Run: %v", err)
	}
	stored := f.jobs.rows[job.ID]
	if stored.Status != types.SynthesisJobStatusCompleted {
		t.Fatalf("embedding failure must not fail the job: %s", stored.Status)
	}
	if !stored.NeedsReindex {
		t.Fatalf("job not flagged for reindex")
	}
}

// ---- fixture ----

type fixture struct {
	pipeline *Pipeline
	jobs     *fakeJobRepo
	users    *fakeUserRepo
	clones   *fakeCloneRepo
	claims   *fakeClaimRepo
	backend  *scriptedBackend
	blobs    *fakeBlobStore
	features *fakeFeatures
	vecs     *fakeVectorStore

	userID  uuid.UUID
	cloneID uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	t.Cleanup(func() { log.Sync() })

	f := &fixture{
		jobs:     &fakeJobRepo{rows: map[uuid.UUID]*types.SynthesisJob{}},
		users:    &fakeUserRepo{increments: map[uuid.UUID]int{}},
		clones:   &fakeCloneRepo{rows: map[uuid.UUID]*types.VoiceClone{}},
		claims:   &fakeClaimRepo{claims: map[string]*types.SynthesisClaim{}},
		backend:  &scriptedBackend{},
		blobs:    &fakeBlobStore{keys: map[string]bool{}},
		features: &fakeFeatures{},
		vecs:     &fakeVectorStore{},
		userID:   uuid.New(),
		cloneID:  uuid.New(),
	}

	cfg := config.Default()
	cfg.Synthesis.MaxRetries = 1
	cfg.Worker.MaxAttempts = 3
	coord := consistency.NewCoordinator(log, passthroughTxRunner{}, f.vecs)
	f.pipeline = NewPipeline(
		log,
		cfg.Synthesis,
		cfg.Cache,
		cfg.Worker,
		passthroughTxRunner{},
		f.jobs,
		f.users,
		f.clones,
		f.claims,
		f.backend,
		f.blobs,
		f.features,
		coord,
		nil,
	)
	f.pipeline.sleep = func(ctx context.Context, d time.Duration) error { return nil }

	f.clones.rows[f.cloneID] = &types.VoiceClone{
		ID:                 f.cloneID,
		UserID:             f.userID,
		Status:             types.VoiceCloneStatusReady,
		SpeakerEmbeddingID: f.cloneID.String(),
	}
	return f
}

func (f *fixture) seedRunningJob() *types.SynthesisJob {
	job := &types.SynthesisJob{
		ID:           uuid.New(),
		UserID:       f.userID,
		VoiceCloneID: f.cloneID,
		Text:         "hello world",
		Fingerprint:  "fp-" + uuid.NewString(),
		Format:       "wav",
		SampleRate:   22050,
		Speed:        1,
		Pitch:        1,
		Volume:       1,
		Status:       types.SynthesisJobStatusRunning,
		Attempts:     1,
	}
	cp := *job
	f.jobs.rows[job.ID] = &cp
	f.claims.claims[job.Fingerprint] = &types.SynthesisClaim{Fingerprint: job.Fingerprint, JobID: job.ID}
	return job
}

type passthroughTxRunner struct{}

func (passthroughTxRunner) RunInTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

// ---- scripted backend ----

type pollStep struct {
	progress synthesis.Progress
	err      error
}

type scriptedBackend struct {
	submitErrs     []error
	submits        int
	polls          []pollStep
	pollCount      int
	repeatLastPoll bool
	onPoll         func(n int)
	result         synthesis.Result
	resultErr      error
	cancelOK       bool
	cancelled      bool
}

func (b *scriptedBackend) Submit(ctx context.Context, req synthesis.Request) (synthesis.Handle, error) {
	idx := b.submits
	b.submits++
	if idx < len(b.submitErrs) {
		return "", b.submitErrs[idx]
	}
	return synthesis.Handle("h-1"), nil
}

func (b *scriptedBackend) Poll(ctx context.Context, handle synthesis.Handle) (synthesis.Progress, error) {
	idx := b.pollCount
	b.pollCount++
	if b.onPoll != nil {
		b.onPoll(b.pollCount)
	}
	if idx >= len(b.polls) {
		if b.repeatLastPoll && len(b.polls) > 0 {
			idx = len(b.polls) - 1
		} else {
			return synthesis.Progress{}, errors.New("poll past end of script")
		}
	}
	step := b.polls[idx]
	return step.progress, step.err
}

func (b *scriptedBackend) FetchResult(ctx context.Context, handle synthesis.Handle) (synthesis.Result, error) {
	if b.resultErr != nil {
		return synthesis.Result{}, b.resultErr
	}
	return b.result, nil
}

func (b *scriptedBackend) Cancel(ctx context.Context, handle synthesis.Handle) (bool, error) {
	b.cancelled = true
	return b.cancelOK, nil
}

// ---- fakes ----

type fakeJobRepo struct {
	rows map[uuid.UUID]*types.SynthesisJob
}

func (f *fakeJobRepo) Create(dbc dbctx.Context, jobs []*types.SynthesisJob) ([]*types.SynthesisJob, error) {
	for _, j := range jobs {
		f.rows[j.ID] = j
	}
	return jobs, nil
}

func (f *fakeJobRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.SynthesisJob, error) {
	j, ok := f.rows[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (f *fakeJobRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.SynthesisJob, error) {
	return nil, nil
}

func (f *fakeJobRepo) ListByUser(dbc dbctx.Context, userID uuid.UUID, limit int) ([]*types.SynthesisJob, error) {
	return nil, nil
}

func (f *fakeJobRepo) LatestCompletedByFingerprint(dbc dbctx.Context, fingerprint string) (*types.SynthesisJob, error) {
	return nil, nil
}

func (f *fakeJobRepo) ClaimNextRunnable(dbc dbctx.Context, maxAttempts int, staleRunning time.Duration) (*types.SynthesisJob, error) {
	return nil, nil
}

func (f *fakeJobRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	j, ok := f.rows[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	applyJobUpdates(j, updates)
	return nil
}

func (f *fakeJobRepo) UpdateFieldsUnlessStatus(dbc dbctx.Context, id uuid.UUID, disallowed []string, updates map[string]interface{}) (bool, error) {
	j, ok := f.rows[id]
	if !ok {
		return false, apperrors.ErrNotFound
	}
	for _, s := range disallowed {
		if j.Status == s {
			return false, nil
		}
	}
	applyJobUpdates(j, updates)
	return true, nil
}

func (f *fakeJobRepo) SetProgress(dbc dbctx.Context, id uuid.UUID, progress float64) error {
	if j, ok := f.rows[id]; ok && j.Status == types.SynthesisJobStatusRunning && progress >= j.Progress {
		j.Progress = progress
	}
	return nil
}

func (f *fakeJobRepo) Heartbeat(dbc dbctx.Context, id uuid.UUID) error { return nil }

func (f *fakeJobRepo) RequestCancel(dbc dbctx.Context, id uuid.UUID) (string, error) {
	return "", nil
}

func (f *fakeJobRepo) ListNeedsReindex(dbc dbctx.Context, limit int) ([]*types.SynthesisJob, error) {
	return nil, nil
}

func (f *fakeJobRepo) ListExpired(dbc dbctx.Context, now time.Time, limit int) ([]*types.SynthesisJob, error) {
	return nil, nil
}

func (f *fakeJobRepo) ExistsByIDs(dbc dbctx.Context, ids []uuid.UUID) (map[uuid.UUID]bool, error) {
	return nil, nil
}

func applyJobUpdates(j *types.SynthesisJob, updates map[string]interface{}) {
	if v, ok := updates["status"].(string); ok {
		j.Status = v
	}
	if v, ok := updates["error"].(string); ok {
		j.Error = v
	}
	if v, ok := updates["error_kind"].(string); ok {
		j.ErrorKind = v
	}
	if v, ok := updates["audio_key"].(string); ok {
		j.AudioKey = v
	}
	if v, ok := updates["audio_url"].(string); ok {
		j.AudioURL = v
	}
	if v, ok := updates["progress"].(float64); ok {
		j.Progress = v
	}
	if v, ok := updates["needs_reindex"].(bool); ok {
		j.NeedsReindex = v
	}
	if v, ok := updates["cancel_requested"].(bool); ok {
		j.CancelRequested = v
	}
	if v, ok := updates["expires_at"].(time.Time); ok {
		j.ExpiresAt = &v
	}
	if v, ok := updates["completed_at"].(time.Time); ok {
		j.CompletedAt = &v
	}
}

type fakeUserRepo struct {
	increments map[uuid.UUID]int
}

func (f *fakeUserRepo) Create(dbc dbctx.Context, users []*types.User) ([]*types.User, error) {
	return users, nil
}

func (f *fakeUserRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.User, error) {
	return nil, apperrors.ErrNotFound
}

func (f *fakeUserRepo) GetByEmail(dbc dbctx.Context, email string) (*types.User, error) {
	return nil, apperrors.ErrNotFound
}

func (f *fakeUserRepo) IncrementDailySyntheses(dbc dbctx.Context, id uuid.UUID, day time.Time) error {
	f.increments[id]++
	return nil
}

func (f *fakeUserRepo) AddStorageUsed(dbc dbctx.Context, id uuid.UUID, delta int64) error {
	return nil
}

type fakeCloneRepo struct {
	rows map[uuid.UUID]*types.VoiceClone
}

func (f *fakeCloneRepo) Create(dbc dbctx.Context, clone *types.VoiceClone, sampleIDs []uuid.UUID) (*types.VoiceClone, error) {
	f.rows[clone.ID] = clone
	return clone, nil
}

func (f *fakeCloneRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.VoiceClone, error) {
	c, ok := f.rows[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return c, nil
}

func (f *fakeCloneRepo) ListByUser(dbc dbctx.Context, userID uuid.UUID) ([]*types.VoiceClone, error) {
	return nil, nil
}

func (f *fakeCloneRepo) SampleIDs(dbc dbctx.Context, cloneID uuid.UUID) ([]uuid.UUID, error) {
	return nil, nil
}

func (f *fakeCloneRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	return nil
}

func (f *fakeCloneRepo) UpdateFieldsUnlessStatus(dbc dbctx.Context, id uuid.UUID, disallowed []string, updates map[string]interface{}) (bool, error) {
	return false, nil
}

func (f *fakeCloneRepo) Delete(dbc dbctx.Context, id uuid.UUID) error { return nil }

func (f *fakeCloneRepo) CountClonesUsingSample(dbc dbctx.Context, sampleID uuid.UUID) (int64, error) {
	return 0, nil
}

func (f *fakeCloneRepo) ListNeedsReindex(dbc dbctx.Context, limit int) ([]*types.VoiceClone, error) {
	return nil, nil
}

func (f *fakeCloneRepo) ExistsByIDs(dbc dbctx.Context, ids []uuid.UUID) (map[uuid.UUID]bool, error) {
	return nil, nil
}

type fakeClaimRepo struct {
	claims map[string]*types.SynthesisClaim
}

func (f *fakeClaimRepo) Acquire(dbc dbctx.Context, fingerprint string, jobID uuid.UUID) (bool, *types.SynthesisClaim, error) {
	if c, ok := f.claims[fingerprint]; ok {
		return false, c, nil
	}
	c := &types.SynthesisClaim{Fingerprint: fingerprint, JobID: jobID}
	f.claims[fingerprint] = c
	return true, c, nil
}

func (f *fakeClaimRepo) Get(dbc dbctx.Context, fingerprint string) (*types.SynthesisClaim, error) {
	return f.claims[fingerprint], nil
}

func (f *fakeClaimRepo) Release(dbc dbctx.Context, fingerprint string) error {
	delete(f.claims, fingerprint)
	return nil
}

func (f *fakeClaimRepo) ReleaseByJob(dbc dbctx.Context, jobID uuid.UUID) error {
	for fp, c := range f.claims {
		if c.JobID == jobID {
			delete(f.claims, fp)
		}
	}
	return nil
}

type fakeBlobStore struct {
	keys map[string]bool
}

func (f *fakeBlobStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	f.keys[key] = true
	return nil
}

func (f *fakeBlobStore) Get(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	return nil, 0, errors.New("not implemented")
}

func (f *fakeBlobStore) Exists(ctx context.Context, key string) (bool, error) {
	return f.keys[key], nil
}

func (f *fakeBlobStore) Delete(ctx context.Context, key string) error {
	delete(f.keys, key)
	return nil
}

func (f *fakeBlobStore) URL(key string) string { return "http://blob.local/" + key }

type fakeFeatures struct {
	embedErr error
}

func (f *fakeFeatures) EmbedText(ctx context.Context, inputs []string) ([][]float32, error) {
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	out := make([][]float32, len(inputs))
	for i := range inputs {
		out[i] = []float32{0.1, 0.2, 0.3}
	}
	return out, nil
}

func (f *fakeFeatures) ExtractVoice(ctx context.Context, storageKey string) (features.VoiceFeatures, error) {
	return features.VoiceFeatures{}, errors.New("not implemented")
}

type fakeVectorStore struct {
	upserts []vector.Vector
	byNS    map[string][]vector.Vector
}

func (f *fakeVectorStore) upsertsIn(namespace string) []vector.Vector {
	if f.byNS == nil {
		return nil
	}
	return f.byNS[namespace]
}

func (f *fakeVectorStore) Upsert(ctx context.Context, namespace string, vectors []vector.Vector) error {
	if f.byNS == nil {
		f.byNS = map[string][]vector.Vector{}
	}
	f.upserts = append(f.upserts, vectors...)
	f.byNS[namespace] = append(f.byNS[namespace], vectors...)
	return nil
}

func (f *fakeVectorStore) QuerySimilar(ctx context.Context, namespace string, q []float32, topK int, minSimilarity float64, filter map[string]any) ([]vector.Match, error) {
	return nil, nil
}

func (f *fakeVectorStore) Fetch(ctx context.Context, namespace string, ids []string) ([]vector.Vector, error) {
	return nil, nil
}

func (f *fakeVectorStore) DeleteIDs(ctx context.Context, namespace string, ids []string) error {
	return nil
}

func (f *fakeVectorStore) ScrollIDs(ctx context.Context, namespace string, cursor string, limit int) ([]string, string, error) {
	return nil, "", nil
}
