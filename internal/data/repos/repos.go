package repos

import (
	"gorm.io/gorm"

	"github.com/echoform/echoform-backend/internal/data/repos/jobs"
	"github.com/echoform/echoform-backend/internal/data/repos/synth"
	"github.com/echoform/echoform-backend/internal/data/repos/user"
	"github.com/echoform/echoform-backend/internal/data/repos/voice"
	"github.com/echoform/echoform-backend/internal/pkg/logger"
)

type UserRepo = user.Repo

type VoiceSampleRepo = voice.SampleRepo
type VoiceCloneRepo = voice.CloneRepo

type SynthesisJobRepo = synth.JobRepo
type SynthesisClaimRepo = synth.ClaimRepo

type TrainingJobRepo = jobs.TrainingJobRepo

func NewUserRepo(db *gorm.DB, baseLog *logger.Logger) UserRepo {
	return user.NewRepo(db, baseLog)
}

func NewVoiceSampleRepo(db *gorm.DB, baseLog *logger.Logger) VoiceSampleRepo {
	return voice.NewSampleRepo(db, baseLog)
}

func NewVoiceCloneRepo(db *gorm.DB, baseLog *logger.Logger) VoiceCloneRepo {
	return voice.NewCloneRepo(db, baseLog)
}

func NewSynthesisJobRepo(db *gorm.DB, baseLog *logger.Logger) SynthesisJobRepo {
	return synth.NewJobRepo(db, baseLog)
}

func NewSynthesisClaimRepo(db *gorm.DB, baseLog *logger.Logger) SynthesisClaimRepo {
	return synth.NewClaimRepo(db, baseLog)
}

func NewTrainingJobRepo(db *gorm.DB, baseLog *logger.Logger) TrainingJobRepo {
	return jobs.NewTrainingJobRepo(db, baseLog)
}
