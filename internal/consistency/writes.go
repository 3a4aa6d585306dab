package consistency

import (
	"context"
	"time"

	"github.com/echoform/echoform-backend/internal/data/repos"
	types "github.com/echoform/echoform-backend/internal/domain"
	"github.com/echoform/echoform-backend/internal/pkg/dbctx"
	"github.com/echoform/echoform-backend/internal/platform/vector"
)

// SampleWrite plans the voice_sample embedding upsert for a sample row.
func SampleWrite(sampleRepo repos.VoiceSampleRepo, s *types.VoiceSample, values []float32) Write {
	id := s.ID
	return Write{
		Namespace: vector.NamespaceVoiceSample,
		Vector: vector.Vector{
			ID:     id.String(),
			Values: values,
			Metadata: map[string]any{
				vector.MetaOwnerID:   s.UserID.String(),
				vector.MetaLanguage:  s.Language,
				vector.MetaQuality:   s.QualityScore,
				vector.MetaUpdatedAt: time.Now().UTC().Format(time.RFC3339Nano),
			},
		},
		Flag: func(ctx context.Context) error {
			return sampleRepo.UpdateFields(dbctx.Context{Ctx: ctx}, id, map[string]interface{}{
				"needs_reindex": true,
			})
		},
	}
}

// SpeakerWrite plans the speaker embedding upsert for a clone row.
func SpeakerWrite(cloneRepo repos.VoiceCloneRepo, c *types.VoiceClone, values []float32) Write {
	id := c.ID
	return Write{
		Namespace: vector.NamespaceSpeaker,
		Vector: vector.Vector{
			ID:     id.String(),
			Values: values,
			Metadata: map[string]any{
				vector.MetaOwnerID:   c.UserID.String(),
				vector.MetaLanguage:  c.Language,
				vector.MetaUpdatedAt: time.Now().UTC().Format(time.RFC3339Nano),
			},
		},
		Flag: func(ctx context.Context) error {
			return cloneRepo.UpdateFields(dbctx.Context{Ctx: ctx}, id, map[string]interface{}{
				"needs_reindex": true,
			})
		},
	}
}

// SynthTextWrite plans the synth_text embedding upsert that feeds the
// near-duplicate cache path. Only original completed jobs get one; cache-hit
// rows never do.
func SynthTextWrite(jobRepo repos.SynthesisJobRepo, j *types.SynthesisJob, values []float32) Write {
	id := j.ID
	return Write{
		Namespace: vector.NamespaceSynthText,
		Vector: vector.Vector{
			ID:     id.String(),
			Values: values,
			Metadata: map[string]any{
				vector.MetaOwnerID:      j.UserID.String(),
				vector.MetaVoiceCloneID: j.VoiceCloneID.String(),
				vector.MetaLanguage:     j.Language,
				vector.MetaUpdatedAt:    time.Now().UTC().Format(time.RFC3339Nano),
			},
		},
		Flag: func(ctx context.Context) error {
			return jobRepo.UpdateFields(dbctx.Context{Ctx: ctx}, id, map[string]interface{}{
				"needs_reindex": true,
			})
		},
	}
}
