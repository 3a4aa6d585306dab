// Package voice_clone_train derives a clone's speaker embedding from its
// constituent sample embeddings and marks the clone ready. A clone may only
// become ready when every sample is ready and its embedding is live in the
// index.
package voice_clone_train

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/echoform/echoform-backend/internal/consistency"
	"github.com/echoform/echoform-backend/internal/data/repos"
	types "github.com/echoform/echoform-backend/internal/domain"
	"github.com/echoform/echoform-backend/internal/jobs/runtime"
	"github.com/echoform/echoform-backend/internal/pkg/dbctx"
	"github.com/echoform/echoform-backend/internal/pkg/logger"
	"github.com/echoform/echoform-backend/internal/platform/vector"
)

type Handler struct {
	log     *logger.Logger
	clones  repos.VoiceCloneRepo
	samples repos.VoiceSampleRepo
	vectors vector.Store
	coord   *consistency.Coordinator
}

func NewHandler(log *logger.Logger, clones repos.VoiceCloneRepo, samples repos.VoiceSampleRepo, vectors vector.Store, coord *consistency.Coordinator) *Handler {
	return &Handler{
		log:     log.With("component", "VoiceCloneTrain"),
		clones:  clones,
		samples: samples,
		vectors: vectors,
		coord:   coord,
	}
}

func (h *Handler) Type() string { return types.JobTypeVoiceCloneTrain }

func (h *Handler) Run(jc *runtime.Context) error {
	cloneID, ok := jc.PayloadUUID("voice_clone_id")
	if !ok {
		jc.Fail("decode", fmt.Errorf("payload missing voice_clone_id"))
		return nil
	}
	dbc := dbctx.Context{Ctx: jc.Ctx}

	clone, err := h.clones.GetByID(dbc, cloneID)
	if err != nil {
		jc.Fail("load", fmt.Errorf("voice clone %s: %w", cloneID, err))
		return nil
	}

	sampleIDs, err := h.clones.SampleIDs(dbc, clone.ID)
	if err != nil {
		jc.Fail("load", err)
		return nil
	}
	if len(sampleIDs) == 0 {
		h.markFailed(jc, clone, fmt.Errorf("clone has no samples"))
		return nil
	}
	jc.Progress("verify", 20, "verifying constituent samples")

	samples, err := h.samples.GetByIDs(dbc, sampleIDs)
	if err != nil {
		jc.Fail("verify", err)
		return nil
	}
	if len(samples) != len(sampleIDs) {
		h.markFailed(jc, clone, fmt.Errorf("clone references %d samples, found %d", len(sampleIDs), len(samples)))
		return nil
	}
	for _, s := range samples {
		switch s.Status {
		case types.VoiceSampleStatusReady:
		case types.VoiceSampleStatusFailed:
			h.markFailed(jc, clone, fmt.Errorf("sample %s failed extraction", s.ID))
			return nil
		default:
			// Extraction is still in flight; this job usually lands before
			// the extract job finishes when both were enqueued together.
			// Hand the attempt back instead of failing the clone.
			jc.Requeue("verify", fmt.Errorf("sample %s is %s; waiting for extraction", s.ID, s.Status))
			return nil
		}
	}

	ids := make([]string, 0, len(sampleIDs))
	for _, id := range sampleIDs {
		ids = append(ids, id.String())
	}
	sampleVecs, err := h.vectors.Fetch(jc.Ctx, vector.NamespaceVoiceSample, ids)
	if err != nil {
		jc.Fail("verify", err)
		return nil
	}
	if len(sampleVecs) != len(ids) {
		// Every sample is ready, so the missing vectors are deferred index
		// writes (needs_reindex) that the reconciler will repair. Wait for
		// them rather than failing the clone.
		jc.Requeue("verify", fmt.Errorf("sample embeddings not yet indexed: want=%d indexed=%d", len(ids), len(sampleVecs)))
		return nil
	}
	jc.Progress("train", 60, "deriving speaker embedding")

	values := make([][]float32, 0, len(sampleVecs))
	for _, v := range sampleVecs {
		values = append(values, v.Values)
	}
	speaker, err := vector.MeanNormalized(values)
	if err != nil {
		h.markFailed(jc, clone, err)
		return nil
	}

	write := consistency.SpeakerWrite(h.clones, clone, speaker)
	_, err = h.coord.Commit(jc.Ctx, func(tx *gorm.DB) error {
		return h.clones.UpdateFields(dbctx.Context{Ctx: jc.Ctx, Tx: tx}, clone.ID, map[string]interface{}{
			"status":               types.VoiceCloneStatusReady,
			"speaker_embedding_id": clone.ID.String(),
			"needs_reindex":        false,
			"error":                "",
		})
	}, []consistency.Write{write})
	if err != nil {
		h.markFailed(jc, clone, err)
		return nil
	}

	jc.Succeed("done", map[string]any{
		"voice_clone_id": clone.ID,
		"samples":        len(sampleIDs),
	})
	return nil
}

func (h *Handler) markFailed(jc *runtime.Context, clone *types.VoiceClone, cause error) {
	if err := h.clones.UpdateFields(dbctx.Context{Ctx: jc.Ctx}, clone.ID, map[string]interface{}{
		"status": types.VoiceCloneStatusFailed,
		"error":  cause.Error(),
	}); err != nil {
		h.log.Warn("Failed to mark clone failed", "voice_clone_id", clone.ID, "error", err)
	}
	jc.Fail("train", cause)
}
