// Package synthesize runs a claimed synthesis job end to end: submit to the
// engine, poll with heartbeats, honor cancellation at poll boundaries, store
// the artifact, and finalize relational state plus the text embedding in one
// coordinated commit.
package synthesize

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/echoform/echoform-backend/internal/clients/features"
	"github.com/echoform/echoform-backend/internal/config"
	"github.com/echoform/echoform-backend/internal/consistency"
	"github.com/echoform/echoform-backend/internal/data/db"
	"github.com/echoform/echoform-backend/internal/data/repos"
	types "github.com/echoform/echoform-backend/internal/domain"
	"github.com/echoform/echoform-backend/internal/pkg/dbctx"
	"github.com/echoform/echoform-backend/internal/pkg/logger"
	"github.com/echoform/echoform-backend/internal/platform/blob"
	"github.com/echoform/echoform-backend/internal/services"
	"github.com/echoform/echoform-backend/internal/synthesis"
)

// JobType tags notifier events from this pipeline.
const JobType = "synthesis"

const stageRender = "render"

type Pipeline struct {
	log            *logger.Logger
	cfg            config.SynthesisConfig
	cacheCfg       config.CacheConfig
	maxJobAttempts int
	tx             db.TxRunner
	jobs           repos.SynthesisJobRepo
	users          repos.UserRepo
	clones         repos.VoiceCloneRepo
	claims         repos.SynthesisClaimRepo
	backend        synthesis.Backend
	blobs          blob.Store
	features       features.Client
	coord          *consistency.Coordinator
	notify         services.JobNotifier

	// sleep is replaceable in tests so retry/poll waits do not slow them.
	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

func NewPipeline(
	log *logger.Logger,
	cfg config.SynthesisConfig,
	cacheCfg config.CacheConfig,
	workerCfg config.WorkerConfig,
	tx db.TxRunner,
	jobs repos.SynthesisJobRepo,
	users repos.UserRepo,
	clones repos.VoiceCloneRepo,
	claims repos.SynthesisClaimRepo,
	backend synthesis.Backend,
	blobs blob.Store,
	featuresClient features.Client,
	coord *consistency.Coordinator,
	notify services.JobNotifier,
) *Pipeline {
	return &Pipeline{
		log:            log.With("component", "SynthesizePipeline"),
		cfg:            cfg,
		cacheCfg:       cacheCfg,
		maxJobAttempts: workerCfg.MaxAttempts,
		tx:             tx,
		jobs:           jobs,
		users:          users,
		clones:         clones,
		claims:         claims,
		backend:        backend,
		blobs:          blobs,
		features:       featuresClient,
		coord:          coord,
		notify:         notify,
		sleep:          sleepCtx,
		now:            time.Now,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Run drives one claimed job to a terminal state or back to pending for a
// later attempt. The job row arrives already moved to running by the claim.
func (p *Pipeline) Run(ctx context.Context, job *types.SynthesisJob) error {
	dbc := dbctx.Context{Ctx: ctx}

	if job.CancelRequested {
		return p.finishCancelled(ctx, job)
	}

	clone, err := p.clones.GetByID(dbc, job.VoiceCloneID)
	if err != nil {
		return p.finishFailed(ctx, job, fmt.Errorf("voice clone %s: %w", job.VoiceCloneID, err), types.ErrorKindValidation)
	}
	if clone.UserID != job.UserID {
		return p.finishFailed(ctx, job, fmt.Errorf("voice clone %s does not belong to job owner", clone.ID), types.ErrorKindValidation)
	}
	if clone.Status != types.VoiceCloneStatusReady {
		return p.finishFailed(ctx, job, fmt.Errorf("voice clone %s is %s, not ready", clone.ID, clone.Status), types.ErrorKindValidation)
	}

	speakerRef := clone.SpeakerEmbeddingID
	if speakerRef == "" {
		speakerRef = clone.ID.String()
	}

	deadline := p.now().Add(p.cfg.JobTimeout)

	handle, terminal, err := p.submit(ctx, job, speakerRef)
	if terminal || err != nil {
		return err
	}

	done, terminal, err := p.poll(ctx, job, handle, deadline)
	if terminal || err != nil {
		return err
	}
	if !done {
		// Deadline expired without completion. Ask the engine to stop and
		// hand the attempt budget the decision.
		_, _ = p.backend.Cancel(ctx, handle)
		return p.retryOrFail(ctx, job, fmt.Errorf("synthesis exceeded %v", p.cfg.JobTimeout), types.ErrorKindTransientBackend)
	}

	res, err := p.backend.FetchResult(ctx, handle)
	if err != nil {
		if kind := synthesis.ErrorKindFor(err); kind == types.ErrorKindPermanentBackend {
			return p.finishFailed(ctx, job, err, kind)
		}
		return p.retryOrFail(ctx, job, err, types.ErrorKindTransientBackend)
	}

	audioKey := fmt.Sprintf("synthesis/%s/%s.%s", job.UserID, job.ID, job.Format)
	if err := p.blobs.Put(ctx, audioKey, bytes.NewReader(res.Audio), int64(len(res.Audio)), res.MimeType); err != nil {
		return p.retryOrFail(ctx, job, fmt.Errorf("store artifact: %w", err), types.ErrorKindTransientBackend)
	}

	return p.finalize(ctx, job, res, audioKey)
}

// submit pushes the request to the engine, retrying transient failures with
// exponential backoff. terminal=true means the job already reached a
// terminal state here.
func (p *Pipeline) submit(ctx context.Context, job *types.SynthesisJob, speakerRef string) (synthesis.Handle, bool, error) {
	req := synthesis.Request{
		Text:       job.Text,
		SpeakerRef: speakerRef,
		Config:     job.Config(),
	}

	backoff := p.cfg.RetryBackoff
	var lastErr error
	for attempt := 0; attempt <= p.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := p.sleep(ctx, backoff); err != nil {
				return "", true, p.retryOrFail(ctx, job, err, types.ErrorKindTransientBackend)
			}
			backoff *= 2
		}

		// Cancellation before the engine has the work is the cheap case.
		if fresh, err := p.jobs.GetByID(dbctx.Context{Ctx: ctx}, job.ID); err == nil && fresh.CancelRequested {
			return "", true, p.finishCancelled(ctx, job)
		}

		sctx, cancel := context.WithTimeout(ctx, p.cfg.SubmitTimeout)
		handle, err := p.backend.Submit(sctx, req)
		cancel()
		if err == nil {
			return handle, false, nil
		}
		lastErr = err
		if kind := synthesis.ErrorKindFor(err); kind == types.ErrorKindPermanentBackend {
			return "", true, p.finishFailed(ctx, job, err, kind)
		}
		p.log.Warn("Submit attempt failed", "job_id", job.ID, "attempt", attempt+1, "error", err)
	}
	return "", true, p.retryOrFail(ctx, job, lastErr, types.ErrorKindTransientBackend)
}

// poll watches the engine until completion, the deadline, or cancellation.
// Cancellation only wins if the engine confirms it stopped; an engine that
// already finished means the completion stands.
func (p *Pipeline) poll(ctx context.Context, job *types.SynthesisJob, handle synthesis.Handle, deadline time.Time) (done bool, terminal bool, err error) {
	dbc := dbctx.Context{Ctx: ctx}

	for p.now().Before(deadline) {
		_ = p.jobs.Heartbeat(dbc, job.ID)

		if fresh, ferr := p.jobs.GetByID(dbc, job.ID); ferr == nil && fresh.CancelRequested {
			stopped, cerr := p.backend.Cancel(ctx, handle)
			if cerr == nil && stopped {
				return false, true, p.finishCancelled(ctx, job)
			}
			// Too late: the engine finished or is finishing. Keep polling
			// and let the completed result win.
		}

		prog, perr := p.backend.Poll(ctx, handle)
		if perr != nil {
			if kind := synthesis.ErrorKindFor(perr); kind == types.ErrorKindPermanentBackend {
				return false, true, p.finishFailed(ctx, job, perr, kind)
			}
			// Transient poll failure: wait out the interval and try again
			// until the deadline decides.
			if serr := p.sleep(ctx, p.cfg.PollInterval); serr != nil {
				return false, true, p.retryOrFail(ctx, job, serr, types.ErrorKindTransientBackend)
			}
			continue
		}

		_ = p.jobs.SetProgress(dbc, job.ID, prog.Fraction)
		if p.notify != nil {
			p.notify.JobProgress(job.UserID, job.ID, JobType, stageRender, prog.Fraction, "")
		}
		if prog.Done {
			return true, false, nil
		}

		if serr := p.sleep(ctx, p.cfg.PollInterval); serr != nil {
			return false, true, p.retryOrFail(ctx, job, serr, types.ErrorKindTransientBackend)
		}
	}
	return false, false, nil
}

// finalize commits the completed job, the quota increment, and the claim
// release in one relational transaction, with the text embedding applied
// after commit. An embedding failure defers to the reconciliation sweep and
// never fails the job.
func (p *Pipeline) finalize(ctx context.Context, job *types.SynthesisJob, res synthesis.Result, audioKey string) error {
	now := p.now()
	expires := now.Add(p.cacheCfg.ResultTTL)

	updates := map[string]interface{}{
		"status":           types.SynthesisJobStatusCompleted,
		"progress":         1.0,
		"audio_key":        audioKey,
		"audio_url":        p.blobs.URL(audioKey),
		"error":            "",
		"error_kind":       "",
		"locked_at":        nil,
		"cancel_requested": false,
		"expires_at":       expires,
		"completed_at":     now,
		"updated_at":       now,
	}
	if len(res.WordTimestamps) > 0 {
		raw, err := json.Marshal(res.WordTimestamps)
		if err == nil {
			updates["word_timestamps"] = datatypes.JSON(raw)
		}
	}
	if len(res.SyllableTimestamps) > 0 {
		raw, err := json.Marshal(res.SyllableTimestamps)
		if err == nil {
			updates["syllable_timestamps"] = datatypes.JSON(raw)
		}
	}

	var writes []consistency.Write
	embeddings, embedErr := p.features.EmbedText(ctx, []string{job.Text})
	if embedErr != nil || len(embeddings) == 0 {
		p.log.Warn("Text embedding unavailable at finalize; deferring to sweep", "job_id", job.ID, "error", embedErr)
		updates["needs_reindex"] = true
	} else {
		writes = append(writes, consistency.SynthTextWrite(p.jobs, job, embeddings[0]))
	}

	_, err := p.coord.Commit(ctx, func(tx *gorm.DB) error {
		dbtx := dbctx.Context{Ctx: ctx, Tx: tx}
		if err := p.jobs.UpdateFields(dbtx, job.ID, updates); err != nil {
			return err
		}
		// Cache hits never reach this pipeline, so the counter increments
		// exactly once per real synthesis.
		if err := p.users.IncrementDailySyntheses(dbtx, job.UserID, now); err != nil {
			return err
		}
		return p.claims.Release(dbtx, job.Fingerprint)
	}, writes)
	if err != nil {
		return p.retryOrFail(ctx, job, fmt.Errorf("finalize: %w", err), types.ErrorKindTransientBackend)
	}

	job.Status = types.SynthesisJobStatusCompleted
	job.Progress = 1
	job.AudioKey = audioKey
	job.CompletedAt = &now
	job.ExpiresAt = &expires

	if p.notify != nil {
		p.notify.JobDone(job.UserID, job.ID, JobType, job)
	}
	p.log.Info("Synthesis completed", "job_id", job.ID, "audio_key", audioKey)
	return nil
}

// retryOrFail puts the job back to pending while attempts remain, otherwise
// fails it terminally. The claim is kept across retries so duplicate
// requests still attach to this job.
func (p *Pipeline) retryOrFail(ctx context.Context, job *types.SynthesisJob, cause error, kind string) error {
	if job.Attempts < p.maxJobAttempts {
		now := p.now()
		err := p.jobs.UpdateFields(dbctx.Context{Ctx: ctx}, job.ID, map[string]interface{}{
			"status":        types.SynthesisJobStatusPending,
			"error":         cause.Error(),
			"error_kind":    kind,
			"last_error_at": now,
			"locked_at":     nil,
			"updated_at":    now,
		})
		if err != nil {
			p.log.Error("Failed to requeue job", "job_id", job.ID, "error", err)
			return err
		}
		p.log.Warn("Job requeued after transient failure",
			"job_id", job.ID,
			"attempt", job.Attempts,
			"max_attempts", p.maxJobAttempts,
			"error", cause,
		)
		return nil
	}
	return p.finishFailed(ctx, job, cause, kind)
}

func (p *Pipeline) finishFailed(ctx context.Context, job *types.SynthesisJob, cause error, kind string) error {
	now := p.now()
	err := p.tx.RunInTx(ctx, func(tx *gorm.DB) error {
		dbtx := dbctx.Context{Ctx: ctx, Tx: tx}
		if err := p.jobs.UpdateFields(dbtx, job.ID, map[string]interface{}{
			"status":        types.SynthesisJobStatusFailed,
			"error":         cause.Error(),
			"error_kind":    kind,
			"last_error_at": now,
			"locked_at":     nil,
			"completed_at":  now,
			"updated_at":    now,
		}); err != nil {
			return err
		}
		return p.claims.Release(dbtx, job.Fingerprint)
	})
	if err != nil {
		p.log.Error("Failed to mark job failed", "job_id", job.ID, "error", err)
		return err
	}

	job.Status = types.SynthesisJobStatusFailed
	job.Error = cause.Error()
	job.ErrorKind = kind

	if p.notify != nil {
		p.notify.JobFailed(job.UserID, job.ID, JobType, stageRender, cause.Error())
	}
	p.log.Warn("Synthesis failed", "job_id", job.ID, "error_kind", kind, "error", cause)
	return nil
}

func (p *Pipeline) finishCancelled(ctx context.Context, job *types.SynthesisJob) error {
	now := p.now()
	err := p.tx.RunInTx(ctx, func(tx *gorm.DB) error {
		dbtx := dbctx.Context{Ctx: ctx, Tx: tx}
		if err := p.jobs.UpdateFields(dbtx, job.ID, map[string]interface{}{
			"status":       types.SynthesisJobStatusCancelled,
			"locked_at":    nil,
			"completed_at": now,
			"updated_at":   now,
		}); err != nil {
			return err
		}
		return p.claims.Release(dbtx, job.Fingerprint)
	})
	if err != nil {
		p.log.Error("Failed to mark job cancelled", "job_id", job.ID, "error", err)
		return err
	}

	job.Status = types.SynthesisJobStatusCancelled
	job.CompletedAt = &now

	if p.notify != nil {
		p.notify.JobCancelled(job.UserID, job.ID, JobType)
	}
	p.log.Info("Synthesis cancelled", "job_id", job.ID)
	return nil
}
