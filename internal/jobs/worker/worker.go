// Package worker hosts the polling loops that claim runnable jobs. Claiming
// uses FOR UPDATE SKIP LOCKED in the repos, so any number of processes can
// run these loops against the same database.
package worker

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/echoform/echoform-backend/internal/config"
	"github.com/echoform/echoform-backend/internal/data/repos"
	"github.com/echoform/echoform-backend/internal/jobs/runtime"
	"github.com/echoform/echoform-backend/internal/pkg/dbctx"
	"github.com/echoform/echoform-backend/internal/pkg/logger"
	"github.com/echoform/echoform-backend/internal/services"
)

const claimInterval = time.Second

// TrainingWorker drives voice_training_job rows through registered
// pipeline handlers.
type TrainingWorker struct {
	db       *gorm.DB
	log      *logger.Logger
	cfg      config.WorkerConfig
	repo     repos.TrainingJobRepo
	registry *runtime.Registry
	notify   services.JobNotifier
}

func NewTrainingWorker(db *gorm.DB, baseLog *logger.Logger, cfg config.WorkerConfig, repo repos.TrainingJobRepo, registry *runtime.Registry, notify services.JobNotifier) *TrainingWorker {
	return &TrainingWorker{
		db:       db,
		log:      baseLog.With("component", "TrainingWorker"),
		cfg:      cfg,
		repo:     repo,
		registry: registry,
		notify:   notify,
	}
}

func (w *TrainingWorker) Start(ctx context.Context) {
	concurrency := w.cfg.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	w.log.Info("Starting training worker pool",
		"concurrency", concurrency,
		"job_types", w.registry.Types(),
	)

	for i := 0; i < concurrency; i++ {
		go w.runLoop(ctx, i+1)
	}
}

func (w *TrainingWorker) runLoop(ctx context.Context, workerID int) {
	ticker := time.NewTicker(claimInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info("Training worker loop stopped", "worker_id", workerID)
			return
		case <-ticker.C:
			job, err := w.repo.ClaimNextRunnable(dbctx.Context{Ctx: ctx}, w.cfg.MaxAttempts, w.cfg.RetryDelay, w.cfg.StaleRunning)
			if err != nil {
				w.log.Warn("ClaimNextRunnable failed", "worker_id", workerID, "error", err)
				continue
			}
			if job == nil {
				continue
			}

			jc := runtime.NewContext(ctx, w.db, job, w.repo, w.notify)
			h, ok := w.registry.Get(job.JobType)
			if !ok {
				w.log.Warn("No handler registered for job_type",
					"worker_id", workerID,
					"job_type", job.JobType,
					"job_id", job.ID,
				)
				jc.Fail("dispatch", &missingHandlerError{JobType: job.JobType})
				continue
			}

			func() {
				defer func() {
					if r := recover(); r != nil {
						w.log.Error("Job handler panic",
							"worker_id", workerID,
							"job_id", job.ID,
							"job_type", job.JobType,
							"panic", r,
						)
						jc.Fail("panic", &panicError{Val: r})
					}
				}()

				if runErr := h.Run(jc); runErr != nil {
					// Handlers normally call jc.Fail themselves; this is a
					// safety net.
					jc.Fail("run", runErr)
				}
			}()
		}
	}
}

type missingHandlerError struct{ JobType string }

func (e *missingHandlerError) Error() string {
	return "no handler registered for job_type=" + e.JobType
}

type panicError struct{ Val any }

func (e *panicError) Error() string { return "panic: unexpected error" }
