package consistency

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/echoform/echoform-backend/internal/clients/features"
	"github.com/echoform/echoform-backend/internal/config"
	"github.com/echoform/echoform-backend/internal/data/repos"
	types "github.com/echoform/echoform-backend/internal/domain"
	"github.com/echoform/echoform-backend/internal/pkg/dbctx"
	"github.com/echoform/echoform-backend/internal/pkg/logger"
	"github.com/echoform/echoform-backend/internal/platform/blob"
	"github.com/echoform/echoform-backend/internal/platform/vector"
)

var (
	errMissingSampleEmbeddings = errors.New("constituent sample embeddings not yet indexed")
	errEmptyEmbedding          = errors.New("feature service returned no embedding")
)

// SweepReport counts what one reconciliation pass did. Failures are rows
// that stay flagged and will be retried on the next pass.
type SweepReport struct {
	SamplesRepaired  int
	ClonesRepaired   int
	JobsRepaired     int
	RepairFailures   int
	OrphansDeleted   int
	ArtifactsExpired int
}

// Reconciler repairs drift between the relational store and the vector
// index: re-upserts embeddings for rows flagged needs_reindex, deletes
// embeddings whose relational row is gone, and expires aged artifacts.
// Every phase is idempotent.
type Reconciler struct {
	log      *logger.Logger
	cfg      config.ReconcileConfig
	samples  repos.VoiceSampleRepo
	clones   repos.VoiceCloneRepo
	jobs     repos.SynthesisJobRepo
	features features.Client
	vectors  vector.Store
	blobs    blob.Store
}

func NewReconciler(
	log *logger.Logger,
	cfg config.ReconcileConfig,
	samples repos.VoiceSampleRepo,
	clones repos.VoiceCloneRepo,
	jobs repos.SynthesisJobRepo,
	featuresClient features.Client,
	vectors vector.Store,
	blobs blob.Store,
) *Reconciler {
	return &Reconciler{
		log:      log.With("service", "Reconciler"),
		cfg:      cfg,
		samples:  samples,
		clones:   clones,
		jobs:     jobs,
		features: featuresClient,
		vectors:  vectors,
		blobs:    blobs,
	}
}

// Start schedules periodic sweeps and returns a stop function. The schedule
// string follows cron syntax, including @every descriptors.
func (r *Reconciler) Start(ctx context.Context) (func(), error) {
	c := cron.New()
	_, err := c.AddFunc(r.cfg.Schedule, func() {
		report, err := r.Sweep(ctx)
		if err != nil {
			r.log.Error("Reconciliation sweep failed", "error", err)
			return
		}
		r.log.Info("Reconciliation sweep complete",
			"samples_repaired", report.SamplesRepaired,
			"clones_repaired", report.ClonesRepaired,
			"jobs_repaired", report.JobsRepaired,
			"repair_failures", report.RepairFailures,
			"orphans_deleted", report.OrphansDeleted,
			"artifacts_expired", report.ArtifactsExpired,
		)
	})
	if err != nil {
		return nil, err
	}
	c.Start()
	return func() { <-c.Stop().Done() }, nil
}

// Sweep runs one reconciliation pass. Work is bounded by the configured
// batch size per phase; rows that cannot be repaired stay flagged for the
// next pass. Repairs run in dependency order because speaker embeddings
// are derived from sample embeddings.
func (r *Reconciler) Sweep(ctx context.Context) (SweepReport, error) {
	var report SweepReport

	r.repairSamples(ctx, &report)
	r.repairClones(ctx, &report)
	r.repairJobs(ctx, &report)

	if err := r.deleteOrphans(ctx, &report); err != nil {
		return report, err
	}
	if err := r.expireArtifacts(ctx, &report); err != nil {
		return report, err
	}
	return report, nil
}

func (r *Reconciler) repairSamples(ctx context.Context, report *SweepReport) {
	dbc := dbctx.Context{Ctx: ctx}
	rows, err := r.samples.ListNeedsReindex(dbc, r.cfg.BatchSize)
	if err != nil {
		r.log.Warn("Listing samples needing reindex failed", "error", err)
		report.RepairFailures++
		return
	}
	for _, s := range rows {
		if err := r.repairSample(ctx, s); err != nil {
			r.log.Warn("Sample reindex failed", "voice_sample_id", s.ID, "error", err)
			report.RepairFailures++
			continue
		}
		report.SamplesRepaired++
	}
}

func (r *Reconciler) repairSample(ctx context.Context, s *types.VoiceSample) error {
	feats, err := r.features.ExtractVoice(ctx, s.StorageKey)
	if err != nil {
		return err
	}
	w := SampleWrite(r.samples, s, feats.Vector)
	if err := r.vectors.Upsert(ctx, w.Namespace, []vector.Vector{w.Vector}); err != nil {
		return err
	}
	return r.samples.UpdateFields(dbctx.Context{Ctx: ctx}, s.ID, map[string]interface{}{
		"needs_reindex": false,
		"embedding_id":  s.ID.String(),
	})
}

func (r *Reconciler) repairClones(ctx context.Context, report *SweepReport) {
	dbc := dbctx.Context{Ctx: ctx}
	rows, err := r.clones.ListNeedsReindex(dbc, r.cfg.BatchSize)
	if err != nil {
		r.log.Warn("Listing clones needing reindex failed", "error", err)
		report.RepairFailures++
		return
	}
	for _, c := range rows {
		if err := r.repairClone(ctx, c); err != nil {
			r.log.Warn("Clone reindex failed", "voice_clone_id", c.ID, "error", err)
			report.RepairFailures++
			continue
		}
		report.ClonesRepaired++
	}
}

func (r *Reconciler) repairClone(ctx context.Context, c *types.VoiceClone) error {
	dbc := dbctx.Context{Ctx: ctx}
	sampleIDs, err := r.clones.SampleIDs(dbc, c.ID)
	if err != nil {
		return err
	}
	ids := make([]string, 0, len(sampleIDs))
	for _, id := range sampleIDs {
		ids = append(ids, id.String())
	}
	sampleVecs, err := r.vectors.Fetch(ctx, vector.NamespaceVoiceSample, ids)
	if err != nil {
		return err
	}
	if len(sampleVecs) < len(ids) {
		// Constituent sample embeddings are themselves missing; they get
		// repaired first and this clone is picked up on a later pass.
		return errMissingSampleEmbeddings
	}
	values := make([][]float32, 0, len(sampleVecs))
	for _, v := range sampleVecs {
		values = append(values, v.Values)
	}
	speaker, err := vector.MeanNormalized(values)
	if err != nil {
		return err
	}
	w := SpeakerWrite(r.clones, c, speaker)
	if err := r.vectors.Upsert(ctx, w.Namespace, []vector.Vector{w.Vector}); err != nil {
		return err
	}
	return r.clones.UpdateFields(dbc, c.ID, map[string]interface{}{
		"needs_reindex":        false,
		"speaker_embedding_id": c.ID.String(),
	})
}

func (r *Reconciler) repairJobs(ctx context.Context, report *SweepReport) {
	dbc := dbctx.Context{Ctx: ctx}
	rows, err := r.jobs.ListNeedsReindex(dbc, r.cfg.BatchSize)
	if err != nil {
		r.log.Warn("Listing jobs needing reindex failed", "error", err)
		report.RepairFailures++
		return
	}
	for _, j := range rows {
		if err := r.repairJob(ctx, j); err != nil {
			r.log.Warn("Job reindex failed", "job_id", j.ID, "error", err)
			report.RepairFailures++
			continue
		}
		report.JobsRepaired++
	}
}

func (r *Reconciler) repairJob(ctx context.Context, j *types.SynthesisJob) error {
	embeddings, err := r.features.EmbedText(ctx, []string{j.Text})
	if err != nil {
		return err
	}
	if len(embeddings) == 0 {
		return errEmptyEmbedding
	}
	w := SynthTextWrite(r.jobs, j, embeddings[0])
	if err := r.vectors.Upsert(ctx, w.Namespace, []vector.Vector{w.Vector}); err != nil {
		return err
	}
	return r.jobs.UpdateFields(dbctx.Context{Ctx: ctx}, j.ID, map[string]interface{}{
		"needs_reindex": false,
	})
}

// deleteOrphans scans each namespace and removes embeddings whose
// relational row no longer exists. The three namespaces scan concurrently;
// they touch disjoint data.
func (r *Reconciler) deleteOrphans(ctx context.Context, report *SweepReport) error {
	var (
		mu      sync.Mutex
		deleted int
	)
	g, gctx := errgroup.WithContext(ctx)

	scan := func(namespace string, exists func(dbctx.Context, []uuid.UUID) (map[uuid.UUID]bool, error)) {
		g.Go(func() error {
			n, err := r.scanNamespace(gctx, namespace, exists)
			if err != nil {
				return err
			}
			mu.Lock()
			deleted += n
			mu.Unlock()
			return nil
		})
	}
	scan(vector.NamespaceVoiceSample, r.samples.ExistsByIDs)
	scan(vector.NamespaceSpeaker, r.clones.ExistsByIDs)
	scan(vector.NamespaceSynthText, r.jobs.ExistsByIDs)

	if err := g.Wait(); err != nil {
		return err
	}
	report.OrphansDeleted += deleted
	return nil
}

func (r *Reconciler) scanNamespace(ctx context.Context, namespace string, exists func(dbctx.Context, []uuid.UUID) (map[uuid.UUID]bool, error)) (int, error) {
	deleted := 0
	cursor := ""
	for {
		ids, next, err := r.vectors.ScrollIDs(ctx, namespace, cursor, r.cfg.BatchSize)
		if err != nil {
			return deleted, err
		}
		if len(ids) > 0 {
			var (
				parsed  []uuid.UUID
				orphans []string
			)
			for _, raw := range ids {
				id, err := uuid.Parse(raw)
				if err != nil {
					// Not one of ours; an unparseable id can never match a
					// row, so it is an orphan.
					orphans = append(orphans, raw)
					continue
				}
				parsed = append(parsed, id)
			}
			present, err := exists(dbctx.Context{Ctx: ctx}, parsed)
			if err != nil {
				return deleted, err
			}
			for _, id := range parsed {
				if !present[id] {
					orphans = append(orphans, id.String())
				}
			}
			if len(orphans) > 0 {
				if err := r.vectors.DeleteIDs(ctx, namespace, orphans); err != nil {
					return deleted, err
				}
				deleted += len(orphans)
			}
		}
		if next == "" {
			return deleted, nil
		}
		cursor = next
	}
}

// expireArtifacts drops audio blobs and synth_text embeddings for completed
// jobs whose retention window has passed. The job row survives with its
// artifact references cleared: history stays queryable, storage does not
// grow without bound.
func (r *Reconciler) expireArtifacts(ctx context.Context, report *SweepReport) error {
	dbc := dbctx.Context{Ctx: ctx}
	rows, err := r.jobs.ListExpired(dbc, time.Now(), r.cfg.BatchSize)
	if err != nil {
		return err
	}
	for _, j := range rows {
		if r.blobs != nil && j.AudioKey != "" {
			if err := r.blobs.Delete(ctx, j.AudioKey); err != nil {
				r.log.Warn("Expired artifact delete failed", "job_id", j.ID, "audio_key", j.AudioKey, "error", err)
				continue
			}
		}
		if err := r.vectors.DeleteIDs(ctx, vector.NamespaceSynthText, []string{j.ID.String()}); err != nil {
			r.log.Warn("Expired embedding delete failed", "job_id", j.ID, "error", err)
			continue
		}
		if err := r.jobs.UpdateFields(dbc, j.ID, map[string]interface{}{
			"audio_key": "",
			"audio_url": "",
		}); err != nil {
			r.log.Warn("Clearing expired artifact refs failed", "job_id", j.ID, "error", err)
			continue
		}
		report.ArtifactsExpired++
	}
	return nil
}
