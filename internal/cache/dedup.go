// Package cache implements synthesis result reuse: an in-process hot map
// and an exact relational lookup keyed by fingerprint, a near-duplicate
// path over text embeddings, and the single-flight claim that collapses
// concurrent identical requests into one backend invocation.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"gorm.io/gorm"

	"github.com/echoform/echoform-backend/internal/clients/features"
	"github.com/echoform/echoform-backend/internal/config"
	"github.com/echoform/echoform-backend/internal/data/db"
	"github.com/echoform/echoform-backend/internal/data/repos"
	types "github.com/echoform/echoform-backend/internal/domain"
	"github.com/echoform/echoform-backend/internal/pkg/dbctx"
	apperrors "github.com/echoform/echoform-backend/internal/pkg/errors"
	"github.com/echoform/echoform-backend/internal/pkg/logger"
	"github.com/echoform/echoform-backend/internal/platform/blob"
	"github.com/echoform/echoform-backend/internal/platform/vector"
)

// errClaimRace marks an Acquire readback that found the claim already
// deleted; the caller retries from the top.
var errClaimRace = errors.New("synthesis claim deleted mid-acquire")

const claimAttempts = 3

// LookupResult reports a cache decision. Source is the completed job whose
// artifact is being reused.
type LookupResult struct {
	Kind   string
	Source *types.SynthesisJob
}

type Dedup struct {
	log      *logger.Logger
	cfg      config.CacheConfig
	tx       db.TxRunner
	jobs     repos.SynthesisJobRepo
	claims   repos.SynthesisClaimRepo
	features features.Client
	vectors  vector.Store
	blobs    blob.Store
	hot      *gocache.Cache
}

func NewDedup(
	log *logger.Logger,
	cfg config.CacheConfig,
	tx db.TxRunner,
	jobs repos.SynthesisJobRepo,
	claims repos.SynthesisClaimRepo,
	featuresClient features.Client,
	vectors vector.Store,
	blobs blob.Store,
) *Dedup {
	return &Dedup{
		log:      log.With("service", "DedupCache"),
		cfg:      cfg,
		tx:       tx,
		jobs:     jobs,
		claims:   claims,
		features: featuresClient,
		vectors:  vectors,
		blobs:    blobs,
		hot:      gocache.New(cfg.ExactTTL, 2*cfg.ExactTTL),
	}
}

// Lookup checks, in order: the in-process hot map, the relational exact
// match, and the embedding near-duplicate path. A nil result is a miss.
func (d *Dedup) Lookup(ctx context.Context, userID, cloneID uuid.UUID, text, fingerprint string) (*LookupResult, error) {
	dbc := dbctx.Context{Ctx: ctx}

	if raw, ok := d.hot.Get(fingerprint); ok {
		if jobID, ok := raw.(uuid.UUID); ok {
			job, err := d.jobs.GetByID(dbc, jobID)
			if err == nil && d.servable(ctx, job) {
				return &LookupResult{Kind: types.CacheKindExact, Source: job}, nil
			}
			d.hot.Delete(fingerprint)
		}
	}

	exact, err := d.jobs.LatestCompletedByFingerprint(dbc, fingerprint)
	if err != nil {
		return nil, err
	}
	if exact != nil && d.servable(ctx, exact) {
		d.hot.SetDefault(fingerprint, exact.ID)
		return &LookupResult{Kind: types.CacheKindExact, Source: exact}, nil
	}

	return d.lookupNearDuplicate(ctx, userID, cloneID, text)
}

func (d *Dedup) lookupNearDuplicate(ctx context.Context, userID, cloneID uuid.UUID, text string) (*LookupResult, error) {
	if d.features == nil || d.vectors == nil {
		return nil, nil
	}

	embeddings, err := d.features.EmbedText(ctx, []string{text})
	if err != nil {
		// The approximate path is an optimization; a degraded feature
		// service must not block synthesis.
		d.log.Warn("Near-duplicate embedding unavailable; treating as miss", "error", err)
		return nil, nil
	}
	if len(embeddings) == 0 {
		return nil, nil
	}

	matches, err := d.vectors.QuerySimilar(
		ctx,
		vector.NamespaceSynthText,
		embeddings[0],
		d.cfg.NearDuplicateTopK,
		d.cfg.NearDuplicateThreshold,
		map[string]any{
			vector.MetaOwnerID:      userID.String(),
			vector.MetaVoiceCloneID: cloneID.String(),
		},
	)
	if err != nil {
		d.log.Warn("Near-duplicate query failed; treating as miss", "error", err)
		return nil, nil
	}

	dbc := dbctx.Context{Ctx: ctx}
	for _, m := range matches {
		// The store already filtered by owner; a result claiming another
		// owner means the isolation invariant itself is broken.
		if owner, _ := m.Metadata[vector.MetaOwnerID].(string); owner != userID.String() {
			return nil, fmt.Errorf(
				"similarity match %s crossed owner boundary: %w",
				m.ID,
				apperrors.ErrIsolationViolation,
			)
		}

		jobID, err := uuid.Parse(m.ID)
		if err != nil {
			continue
		}
		job, err := d.jobs.GetByID(dbc, jobID)
		if err != nil {
			continue
		}
		if job.CacheHit || job.VoiceCloneID != cloneID || !d.servable(ctx, job) {
			continue
		}
		return &LookupResult{Kind: types.CacheKindApproximate, Source: job}, nil
	}
	return nil, nil
}

// servable verifies the job is completed, unexpired, and its artifact still
// exists in blob storage.
func (d *Dedup) servable(ctx context.Context, job *types.SynthesisJob) bool {
	if job == nil || job.Status != types.SynthesisJobStatusCompleted {
		return false
	}
	if job.AudioKey == "" {
		return false
	}
	if job.ExpiresAt != nil && job.ExpiresAt.Before(time.Now()) {
		return false
	}
	if d.blobs != nil {
		exists, err := d.blobs.Exists(ctx, job.AudioKey)
		if err != nil {
			d.log.Warn("Artifact existence check failed; treating as miss",
				"audio_key", job.AudioKey,
				"error", err,
			)
			return false
		}
		if !exists {
			return false
		}
	}
	return true
}

// ClaimOrAttach enforces single-flight per fingerprint: the winner's job row
// is created inside the claim transaction; losers get the winner's job back
// and create nothing.
func (d *Dedup) ClaimOrAttach(ctx context.Context, fingerprint string, newJob *types.SynthesisJob) (*types.SynthesisJob, bool, error) {
	if newJob == nil || fingerprint == "" {
		return nil, false, apperrors.ErrInvalidArgument
	}
	if newJob.ID == uuid.Nil {
		newJob.ID = uuid.New()
	}

	for attempt := 0; attempt < claimAttempts; attempt++ {
		var (
			out    *types.SynthesisJob
			winner bool
		)
		err := d.tx.RunInTx(ctx, func(tx *gorm.DB) error {
			dbc := dbctx.Context{Ctx: ctx, Tx: tx}

			won, existing, err := d.claims.Acquire(dbc, fingerprint, newJob.ID)
			if err != nil {
				return err
			}
			if won {
				if _, err := d.jobs.Create(dbc, []*types.SynthesisJob{newJob}); err != nil {
					return err
				}
				out, winner = newJob, true
				return nil
			}
			if existing == nil {
				return errClaimRace
			}

			job, err := d.jobs.GetByID(dbc, existing.JobID)
			if errors.Is(err, apperrors.ErrNotFound) {
				// Claim points at a vanished job; clear it and retry.
				if relErr := d.claims.Release(dbc, fingerprint); relErr != nil {
					return relErr
				}
				return errClaimRace
			}
			if err != nil {
				return err
			}
			if types.IsTerminalJobStatus(job.Status) {
				// The claim should have been released when its job reached a
				// terminal state; a leftover one must not wedge the
				// fingerprint. Clear it and retry.
				if relErr := d.claims.Release(dbc, fingerprint); relErr != nil {
					return relErr
				}
				return errClaimRace
			}
			out, winner = job, false
			return nil
		})
		if errors.Is(err, errClaimRace) {
			continue
		}
		if err != nil {
			return nil, false, err
		}
		return out, winner, nil
	}
	return nil, false, fmt.Errorf("claim for fingerprint %s kept racing; giving up", fingerprint)
}
