package db

import (
	"fmt"

	types "github.com/echoform/echoform-backend/internal/domain"
	"gorm.io/gorm"
)

func AutoMigrateAll(db *gorm.DB) error {
	if err := db.AutoMigrate(
		// Identity + quotas
		&types.User{},

		// Voice data
		&types.VoiceSample{},
		&types.VoiceClone{},
		&types.VoiceCloneSample{},

		// Synthesis
		&types.SynthesisJob{},
		&types.SynthesisClaim{},

		// Background training work
		&types.VoiceTrainingJob{},
	); err != nil {
		return fmt.Errorf("auto migration failed: %w", err)
	}
	return addForeignKeys(db)
}

func addForeignKeys(db *gorm.DB) error {
	constraints := []struct {
		name string
		sql  string
	}{
		{
			name: "fk_voice_sample_user_id",
			sql: `ALTER TABLE "voice_sample"
				ADD CONSTRAINT "fk_voice_sample_user_id"
				FOREIGN KEY ("user_id") REFERENCES "user"("id")
				ON DELETE CASCADE`,
		},
		{
			name: "fk_voice_clone_user_id",
			sql: `ALTER TABLE "voice_clone"
				ADD CONSTRAINT "fk_voice_clone_user_id"
				FOREIGN KEY ("user_id") REFERENCES "user"("id")
				ON DELETE CASCADE`,
		},
		{
			name: "fk_voice_clone_sample_clone_id",
			sql: `ALTER TABLE "voice_clone_sample"
				ADD CONSTRAINT "fk_voice_clone_sample_clone_id"
				FOREIGN KEY ("voice_clone_id") REFERENCES "voice_clone"("id")
				ON DELETE CASCADE`,
		},
		{
			// Samples referenced by a clone must be unlinked first; deletion
			// of a still-referenced sample is a referential error.
			name: "fk_voice_clone_sample_sample_id",
			sql: `ALTER TABLE "voice_clone_sample"
				ADD CONSTRAINT "fk_voice_clone_sample_sample_id"
				FOREIGN KEY ("voice_sample_id") REFERENCES "voice_sample"("id")
				ON DELETE RESTRICT`,
		},
		{
			name: "fk_synthesis_job_user_id",
			sql: `ALTER TABLE "synthesis_job"
				ADD CONSTRAINT "fk_synthesis_job_user_id"
				FOREIGN KEY ("user_id") REFERENCES "user"("id")
				ON DELETE CASCADE`,
		},
		{
			name: "fk_synthesis_job_voice_clone_id",
			sql: `ALTER TABLE "synthesis_job"
				ADD CONSTRAINT "fk_synthesis_job_voice_clone_id"
				FOREIGN KEY ("voice_clone_id") REFERENCES "voice_clone"("id")
				ON DELETE CASCADE`,
		},
	}

	for _, c := range constraints {
		var exists bool
		err := db.Raw(
			`SELECT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = ?)`,
			c.name,
		).Scan(&exists).Error
		if err != nil {
			return fmt.Errorf("constraint check %s failed: %w", c.name, err)
		}
		if exists {
			continue
		}
		if err := db.Exec(c.sql).Error; err != nil {
			return fmt.Errorf("failed to add %s: %w", c.name, err)
		}
	}
	return nil
}
