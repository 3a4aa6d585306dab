// Package voice_sample_extract moves an uploaded voice sample through
// feature extraction: uploaded -> processing -> ready, with the sample
// embedding indexed alongside.
package voice_sample_extract

import (
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/echoform/echoform-backend/internal/clients/features"
	"github.com/echoform/echoform-backend/internal/consistency"
	"github.com/echoform/echoform-backend/internal/data/repos"
	types "github.com/echoform/echoform-backend/internal/domain"
	"github.com/echoform/echoform-backend/internal/jobs/runtime"
	"github.com/echoform/echoform-backend/internal/pkg/dbctx"
	"github.com/echoform/echoform-backend/internal/pkg/logger"
)

type Handler struct {
	log      *logger.Logger
	samples  repos.VoiceSampleRepo
	features features.Client
	coord    *consistency.Coordinator
}

func NewHandler(log *logger.Logger, samples repos.VoiceSampleRepo, featuresClient features.Client, coord *consistency.Coordinator) *Handler {
	return &Handler{
		log:      log.With("component", "VoiceSampleExtract"),
		samples:  samples,
		features: featuresClient,
		coord:    coord,
	}
}

func (h *Handler) Type() string { return types.JobTypeVoiceSampleExtract }

func (h *Handler) Run(jc *runtime.Context) error {
	sampleID, ok := jc.PayloadUUID("voice_sample_id")
	if !ok {
		jc.Fail("decode", fmt.Errorf("payload missing voice_sample_id"))
		return nil
	}
	dbc := dbctx.Context{Ctx: jc.Ctx}

	sample, err := h.samples.GetByID(dbc, sampleID)
	if err != nil {
		jc.Fail("load", fmt.Errorf("voice sample %s: %w", sampleID, err))
		return nil
	}

	if err := h.samples.UpdateFields(dbc, sample.ID, map[string]interface{}{
		"status": types.VoiceSampleStatusProcessing,
	}); err != nil {
		jc.Fail("load", err)
		return nil
	}
	jc.Progress("extract", 10, "extracting voice features")

	feats, err := h.features.ExtractVoice(jc.Ctx, sample.StorageKey)
	if err != nil {
		h.markFailed(jc, sample.ID, "extract", err)
		return nil
	}
	if len(feats.Vector) == 0 {
		h.markFailed(jc, sample.ID, "extract", fmt.Errorf("feature service returned empty voice vector"))
		return nil
	}
	jc.Progress("index", 70, "indexing sample embedding")

	sample.QualityScore = feats.QualityScore
	write := consistency.SampleWrite(h.samples, sample, feats.Vector)

	_, err = h.coord.Commit(jc.Ctx, func(tx *gorm.DB) error {
		return h.samples.UpdateFields(dbctx.Context{Ctx: jc.Ctx, Tx: tx}, sample.ID, map[string]interface{}{
			"status":        types.VoiceSampleStatusReady,
			"quality_score": feats.QualityScore,
			"duration_sec":  feats.DurationSec,
			"sample_rate":   feats.SampleRate,
			"embedding_id":  sample.ID.String(),
			"needs_reindex": false,
			"error":         "",
		})
	}, []consistency.Write{write})
	if err != nil {
		h.markFailed(jc, sample.ID, "commit", err)
		return nil
	}

	jc.Succeed("done", map[string]any{
		"voice_sample_id": sample.ID,
		"quality_score":   feats.QualityScore,
		"duration_sec":    feats.DurationSec,
	})
	return nil
}

func (h *Handler) markFailed(jc *runtime.Context, sampleID uuid.UUID, stage string, cause error) {
	if err := h.samples.UpdateFields(dbctx.Context{Ctx: jc.Ctx}, sampleID, map[string]interface{}{
		"status": types.VoiceSampleStatusFailed,
		"error":  cause.Error(),
	}); err != nil {
		h.log.Warn("Failed to mark sample failed", "voice_sample_id", sampleID, "error", err)
	}
	jc.Fail(stage, cause)
}
