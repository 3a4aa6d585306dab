package voice_clone_train

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/echoform/echoform-backend/internal/consistency"
	types "github.com/echoform/echoform-backend/internal/domain"
	"github.com/echoform/echoform-backend/internal/jobs/runtime"
	"github.com/echoform/echoform-backend/internal/pkg/dbctx"
	apperrors "github.com/echoform/echoform-backend/internal/pkg/errors"
	"github.com/echoform/echoform-backend/internal/pkg/logger"
	"github.com/echoform/echoform-backend/internal/platform/vector"
)

func TestRunMarksCloneReady(t *testing.T) {
	f := newFixture(t)
	sample := f.seedSample(types.VoiceSampleStatusReady)
	clone := f.seedClone(sample.ID)
	f.vecs.fetchable[sample.ID.String()] = vector.Vector{ID: sample.ID.String(), Values: []float32{1, 0}}
	jc := f.claimedContext(clone.ID)

	if err := f.h.Run(jc); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if jc.Job.Status != types.TrainingJobStatusSucceeded {
		t.Fatalf("job status: want=%s got=%s", types.TrainingJobStatusSucceeded, jc.Job.Status)
	}
	up := f.clones.lastUpdate(clone.ID)
	if up == nil {
		t.Fatalf("expected a clone update")
	}
	if up["status"] != types.VoiceCloneStatusReady {
		t.Fatalf("clone status: want=%s got=%v", types.VoiceCloneStatusReady, up["status"])
	}
	if up["speaker_embedding_id"] != clone.ID.String() {
		t.Fatalf("speaker_embedding_id: want=%s got=%v", clone.ID, up["speaker_embedding_id"])
	}
	speakers := f.vecs.upsertsIn(vector.NamespaceSpeaker)
	if len(speakers) != 1 || speakers[0].ID != clone.ID.String() {
		t.Fatalf("expected one speaker upsert for %s, got %+v", clone.ID, speakers)
	}
}

// A train job claimed while the extract job is still running must wait for
// it, not fail the clone: both jobs are enqueued together and the pool
// routinely claims them concurrently.
func TestRunWaitsWhileSampleExtractionInFlight(t *testing.T) {
	f := newFixture(t)
	sample := f.seedSample(types.VoiceSampleStatusProcessing)
	clone := f.seedClone(sample.ID)
	jc := f.claimedContext(clone.ID)

	if err := f.h.Run(jc); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if jc.Job.Status != types.TrainingJobStatusQueued {
		t.Fatalf("job status: want=%s got=%s", types.TrainingJobStatusQueued, jc.Job.Status)
	}
	if jc.Job.Attempts != 0 {
		t.Fatalf("waiting must not spend an attempt; attempts=%d", jc.Job.Attempts)
	}
	if jc.Job.LastErrorAt == nil {
		t.Fatalf("requeue must set last_error_at so the retry delay applies")
	}
	if up := f.clones.lastUpdate(clone.ID); up != nil {
		t.Fatalf("clone must stay untouched while waiting, got update %+v", up)
	}
	if clone.Status != types.VoiceCloneStatusPending {
		t.Fatalf("clone status: want=%s got=%s", types.VoiceCloneStatusPending, clone.Status)
	}
}

func TestRunWaitsForDeferredSampleEmbedding(t *testing.T) {
	f := newFixture(t)
	sample := f.seedSample(types.VoiceSampleStatusReady)
	clone := f.seedClone(sample.ID)
	// Sample is ready but its embedding upsert was deferred; nothing
	// fetchable yet.
	jc := f.claimedContext(clone.ID)

	if err := f.h.Run(jc); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if jc.Job.Status != types.TrainingJobStatusQueued {
		t.Fatalf("job status: want=%s got=%s", types.TrainingJobStatusQueued, jc.Job.Status)
	}
	if up := f.clones.lastUpdate(clone.ID); up != nil {
		t.Fatalf("clone must stay untouched while waiting, got update %+v", up)
	}
}

func TestRunFailsWhenSampleFailedExtraction(t *testing.T) {
	f := newFixture(t)
	sample := f.seedSample(types.VoiceSampleStatusFailed)
	clone := f.seedClone(sample.ID)
	jc := f.claimedContext(clone.ID)

	if err := f.h.Run(jc); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if jc.Job.Status != types.TrainingJobStatusFailed {
		t.Fatalf("job status: want=%s got=%s", types.TrainingJobStatusFailed, jc.Job.Status)
	}
	up := f.clones.lastUpdate(clone.ID)
	if up == nil || up["status"] != types.VoiceCloneStatusFailed {
		t.Fatalf("expected clone marked failed, got %+v", up)
	}
}

func TestRunFailsWhenCloneHasNoSamples(t *testing.T) {
	f := newFixture(t)
	clone := f.seedClone()
	jc := f.claimedContext(clone.ID)

	if err := f.h.Run(jc); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if jc.Job.Status != types.TrainingJobStatusFailed {
		t.Fatalf("job status: want=%s got=%s", types.TrainingJobStatusFailed, jc.Job.Status)
	}
}

// ---- fixture ----

type fixture struct {
	h       *Handler
	owner   uuid.UUID
	clones  *fakeCloneStore
	samples *fakeSampleStore
	vecs    *fakeVectorStore
	jobs    *fakeTrainingJobs
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	t.Cleanup(func() { log.Sync() })

	clones := &fakeCloneStore{rows: map[uuid.UUID]*types.VoiceClone{}, samples: map[uuid.UUID][]uuid.UUID{}}
	samples := &fakeSampleStore{rows: map[uuid.UUID]*types.VoiceSample{}}
	vecs := &fakeVectorStore{fetchable: map[string]vector.Vector{}}
	coord := consistency.NewCoordinator(log, passthroughTxRunner{}, vecs)

	return &fixture{
		h:       NewHandler(log, clones, samples, vecs, coord),
		owner:   uuid.New(),
		clones:  clones,
		samples: samples,
		vecs:    vecs,
		jobs:    &fakeTrainingJobs{},
	}
}

func (f *fixture) seedSample(status string) *types.VoiceSample {
	s := &types.VoiceSample{
		ID:       uuid.New(),
		UserID:   f.owner,
		Status:   status,
		Language: "en",
	}
	f.samples.rows[s.ID] = s
	return s
}

func (f *fixture) seedClone(sampleIDs ...uuid.UUID) *types.VoiceClone {
	c := &types.VoiceClone{
		ID:       uuid.New(),
		UserID:   f.owner,
		Name:     "clone",
		Language: "en",
		Status:   types.VoiceCloneStatusPending,
	}
	f.clones.rows[c.ID] = c
	f.clones.samples[c.ID] = sampleIDs
	return c
}

// claimedContext builds the job context the worker would hand over after
// ClaimNextRunnable incremented attempts and moved the job to running.
func (f *fixture) claimedContext(cloneID uuid.UUID) *runtime.Context {
	job := &types.VoiceTrainingJob{
		ID:          uuid.New(),
		OwnerUserID: f.owner,
		JobType:     types.JobTypeVoiceCloneTrain,
		Status:      types.TrainingJobStatusRunning,
		Stage:       "queued",
		Attempts:    1,
		Payload:     datatypes.JSON(fmt.Sprintf(`{"voice_clone_id":%q}`, cloneID)),
	}
	return runtime.NewContext(context.Background(), nil, job, f.jobs, nil)
}

type passthroughTxRunner struct{}

func (passthroughTxRunner) RunInTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

// ---- fakes ----

type fakeTrainingJobs struct {
	updates []map[string]interface{}
}

func (f *fakeTrainingJobs) Create(dbc dbctx.Context, jobs []*types.VoiceTrainingJob) ([]*types.VoiceTrainingJob, error) {
	return jobs, nil
}

func (f *fakeTrainingJobs) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.VoiceTrainingJob, error) {
	return nil, nil
}

func (f *fakeTrainingJobs) GetLatestByEntity(dbc dbctx.Context, ownerUserID uuid.UUID, entityType string, entityID uuid.UUID, jobType string) (*types.VoiceTrainingJob, error) {
	return nil, nil
}

func (f *fakeTrainingJobs) ClaimNextRunnable(dbc dbctx.Context, maxAttempts int, retryDelay time.Duration, staleRunning time.Duration) (*types.VoiceTrainingJob, error) {
	return nil, nil
}

func (f *fakeTrainingJobs) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	f.updates = append(f.updates, updates)
	return nil
}

func (f *fakeTrainingJobs) UpdateFieldsUnlessStatus(dbc dbctx.Context, id uuid.UUID, disallowed []string, updates map[string]interface{}) (bool, error) {
	f.updates = append(f.updates, updates)
	return true, nil
}

func (f *fakeTrainingJobs) Heartbeat(dbc dbctx.Context, id uuid.UUID) error { return nil }

func (f *fakeTrainingJobs) HasRunnableForEntity(dbc dbctx.Context, ownerUserID uuid.UUID, entityType string, entityID uuid.UUID, jobType string) (bool, error) {
	return false, nil
}

type fakeCloneStore struct {
	rows    map[uuid.UUID]*types.VoiceClone
	samples map[uuid.UUID][]uuid.UUID
	updates map[uuid.UUID][]map[string]interface{}
}

func (f *fakeCloneStore) lastUpdate(id uuid.UUID) map[string]interface{} {
	ups := f.updates[id]
	if len(ups) == 0 {
		return nil
	}
	return ups[len(ups)-1]
}

func (f *fakeCloneStore) Create(dbc dbctx.Context, clone *types.VoiceClone, sampleIDs []uuid.UUID) (*types.VoiceClone, error) {
	f.rows[clone.ID] = clone
	f.samples[clone.ID] = sampleIDs
	return clone, nil
}

func (f *fakeCloneStore) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.VoiceClone, error) {
	c, ok := f.rows[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return c, nil
}

func (f *fakeCloneStore) ListByUser(dbc dbctx.Context, userID uuid.UUID) ([]*types.VoiceClone, error) {
	return nil, nil
}

func (f *fakeCloneStore) SampleIDs(dbc dbctx.Context, cloneID uuid.UUID) ([]uuid.UUID, error) {
	return f.samples[cloneID], nil
}

func (f *fakeCloneStore) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if f.updates == nil {
		f.updates = map[uuid.UUID][]map[string]interface{}{}
	}
	f.updates[id] = append(f.updates[id], updates)
	return nil
}

func (f *fakeCloneStore) UpdateFieldsUnlessStatus(dbc dbctx.Context, id uuid.UUID, disallowed []string, updates map[string]interface{}) (bool, error) {
	return false, nil
}

func (f *fakeCloneStore) Delete(dbc dbctx.Context, id uuid.UUID) error { return nil }

func (f *fakeCloneStore) CountClonesUsingSample(dbc dbctx.Context, sampleID uuid.UUID) (int64, error) {
	return 0, nil
}

func (f *fakeCloneStore) ListNeedsReindex(dbc dbctx.Context, limit int) ([]*types.VoiceClone, error) {
	return nil, nil
}

func (f *fakeCloneStore) ExistsByIDs(dbc dbctx.Context, ids []uuid.UUID) (map[uuid.UUID]bool, error) {
	return nil, nil
}

type fakeSampleStore struct {
	rows map[uuid.UUID]*types.VoiceSample
}

func (f *fakeSampleStore) Create(dbc dbctx.Context, samples []*types.VoiceSample) ([]*types.VoiceSample, error) {
	for _, s := range samples {
		f.rows[s.ID] = s
	}
	return samples, nil
}

func (f *fakeSampleStore) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.VoiceSample, error) {
	s, ok := f.rows[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return s, nil
}

func (f *fakeSampleStore) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.VoiceSample, error) {
	var out []*types.VoiceSample
	for _, id := range ids {
		if s, ok := f.rows[id]; ok {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeSampleStore) ListByUser(dbc dbctx.Context, userID uuid.UUID) ([]*types.VoiceSample, error) {
	return nil, nil
}

func (f *fakeSampleStore) CountByUser(dbc dbctx.Context, userID uuid.UUID) (int64, error) {
	return 0, nil
}

func (f *fakeSampleStore) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	return nil
}

func (f *fakeSampleStore) UpdateFieldsUnlessStatus(dbc dbctx.Context, id uuid.UUID, disallowed []string, updates map[string]interface{}) (bool, error) {
	return false, nil
}

func (f *fakeSampleStore) Delete(dbc dbctx.Context, id uuid.UUID) error { return nil }

func (f *fakeSampleStore) ListNeedsReindex(dbc dbctx.Context, limit int) ([]*types.VoiceSample, error) {
	return nil, nil
}

func (f *fakeSampleStore) ExistsByIDs(dbc dbctx.Context, ids []uuid.UUID) (map[uuid.UUID]bool, error) {
	return nil, nil
}

type fakeVectorStore struct {
	fetchable map[string]vector.Vector
	byNS      map[string][]vector.Vector
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
	f.byNS[namespace] = append(f.byNS[namespace], vectors...)
	return nil
}

func (f *fakeVectorStore) QuerySimilar(ctx context.Context, namespace string, q []float32, topK int, minSimilarity float64, filter map[string]any) ([]vector.Match, error) {
	return nil, nil
}

func (f *fakeVectorStore) Fetch(ctx context.Context, namespace string, ids []string) ([]vector.Vector, error) {
	var out []vector.Vector
	for _, id := range ids {
		if v, ok := f.fetchable[id]; ok {
			out = append(out, v)
		}
	}
	return out, nil
}

func (f *fakeVectorStore) DeleteIDs(ctx context.Context, namespace string, ids []string) error {
	return nil
}

func (f *fakeVectorStore) ScrollIDs(ctx context.Context, namespace string, cursor string, limit int) ([]string, string, error) {
	return nil, "", nil
}
