package testutil

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/echoform/echoform-backend/internal/domain"
)

func SeedUser(tb testing.TB, ctx context.Context, tx *gorm.DB, email string) *types.User {
	tb.Helper()
	u := &types.User{
		ID:                uuid.New(),
		Email:             email,
		DisplayName:       "A",
		MaxVoiceSamples:   10,
		MaxDailySyntheses: 50,
	}
	if err := tx.WithContext(ctx).Create(u).Error; err != nil {
		tb.Fatalf("seed user: %v", err)
	}
	return u
}

func SeedVoiceSample(tb testing.TB, ctx context.Context, tx *gorm.DB, userID uuid.UUID, status string) *types.VoiceSample {
	tb.Helper()
	s := &types.VoiceSample{
		ID:         uuid.New(),
		UserID:     userID,
		StorageKey: fmt.Sprintf("samples/%s.wav", uuid.New()),
		Format:     "wav",
		SampleRate: 22050,
		Status:     status,
		Language:   "en",
	}
	if err := tx.WithContext(ctx).Create(s).Error; err != nil {
		tb.Fatalf("seed voice sample: %v", err)
	}
	return s
}

func SeedVoiceClone(tb testing.TB, ctx context.Context, tx *gorm.DB, userID uuid.UUID, status string, sampleIDs ...uuid.UUID) *types.VoiceClone {
	tb.Helper()
	c := &types.VoiceClone{
		ID:       uuid.New(),
		UserID:   userID,
		Name:     "clone",
		Language: "en",
		Status:   status,
	}
	if err := tx.WithContext(ctx).Create(c).Error; err != nil {
		tb.Fatalf("seed voice clone: %v", err)
	}
	for _, sid := range sampleIDs {
		link := &types.VoiceCloneSample{
			VoiceCloneID:  c.ID,
			VoiceSampleID: sid,
		}
		if err := tx.WithContext(ctx).Create(link).Error; err != nil {
			tb.Fatalf("seed clone sample link: %v", err)
		}
	}
	return c
}

func SeedSynthesisJob(tb testing.TB, ctx context.Context, tx *gorm.DB, userID, cloneID uuid.UUID, fingerprint, status string) *types.SynthesisJob {
	tb.Helper()
	j := &types.SynthesisJob{
		ID:           uuid.New(),
		UserID:       userID,
		VoiceCloneID: cloneID,
		Text:         "Hello world",
		Fingerprint:  fingerprint,
		Format:       "wav",
		SampleRate:   22050,
		Speed:        1,
		Pitch:        1,
		Volume:       1,
		Language:     "en",
		Status:       status,
	}
	if err := tx.WithContext(ctx).Create(j).Error; err != nil {
		tb.Fatalf("seed synthesis job: %v", err)
	}
	return j
}
