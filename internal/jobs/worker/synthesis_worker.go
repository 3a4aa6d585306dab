package worker

import (
	"context"
	"time"

	"github.com/echoform/echoform-backend/internal/config"
	"github.com/echoform/echoform-backend/internal/data/repos"
	types "github.com/echoform/echoform-backend/internal/domain"
	"github.com/echoform/echoform-backend/internal/pkg/dbctx"
	"github.com/echoform/echoform-backend/internal/pkg/logger"
)

// SynthesisRunner is the synthesize pipeline as this worker sees it.
type SynthesisRunner interface {
	Run(ctx context.Context, job *types.SynthesisJob) error
}

// SynthesisWorker claims runnable synthesis_job rows and hands them to the
// pipeline. Stale running rows (dead worker, old heartbeat) are reclaimed by
// the same loop.
type SynthesisWorker struct {
	log      *logger.Logger
	cfg      config.WorkerConfig
	repo     repos.SynthesisJobRepo
	claims   repos.SynthesisClaimRepo
	pipeline SynthesisRunner
}

func NewSynthesisWorker(baseLog *logger.Logger, cfg config.WorkerConfig, repo repos.SynthesisJobRepo, claims repos.SynthesisClaimRepo, pipeline SynthesisRunner) *SynthesisWorker {
	return &SynthesisWorker{
		log:      baseLog.With("component", "SynthesisWorker"),
		cfg:      cfg,
		repo:     repo,
		claims:   claims,
		pipeline: pipeline,
	}
}

func (w *SynthesisWorker) Start(ctx context.Context) {
	concurrency := w.cfg.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	w.log.Info("Starting synthesis worker pool", "concurrency", concurrency)

	for i := 0; i < concurrency; i++ {
		go w.runLoop(ctx, i+1)
	}
}

func (w *SynthesisWorker) runLoop(ctx context.Context, workerID int) {
	ticker := time.NewTicker(claimInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info("Synthesis worker loop stopped", "worker_id", workerID)
			return
		case <-ticker.C:
			job, err := w.repo.ClaimNextRunnable(dbctx.Context{Ctx: ctx}, w.cfg.MaxAttempts, w.cfg.StaleRunning)
			if err != nil {
				w.log.Warn("ClaimNextRunnable failed", "worker_id", workerID, "error", err)
				continue
			}
			if job == nil {
				continue
			}
			w.runOne(ctx, workerID, job)
		}
	}
}

func (w *SynthesisWorker) runOne(ctx context.Context, workerID int, job *types.SynthesisJob) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("Synthesis pipeline panic",
				"worker_id", workerID,
				"job_id", job.ID,
				"panic", r,
			)
			now := time.Now()
			_ = w.repo.UpdateFields(dbctx.Context{Ctx: ctx}, job.ID, map[string]interface{}{
				"status":        types.SynthesisJobStatusFailed,
				"error":         "internal error",
				"error_kind":    types.ErrorKindTransientBackend,
				"last_error_at": now,
				"locked_at":     nil,
				"completed_at":  now,
			})
			// The claim row keeps attaching callers to this job; it must
			// not outlive the job's terminal state.
			if err := w.claims.ReleaseByJob(dbctx.Context{Ctx: ctx}, job.ID); err != nil {
				w.log.Warn("Claim release after panic failed", "job_id", job.ID, "error", err)
			}
		}
	}()

	if err := w.pipeline.Run(ctx, job); err != nil {
		w.log.Warn("Synthesis pipeline error", "worker_id", workerID, "job_id", job.ID, "error", err)
	}
}
