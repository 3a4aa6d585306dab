package synth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/echoform/echoform-backend/internal/data/repos/testutil"
	types "github.com/echoform/echoform-backend/internal/domain"
	"github.com/echoform/echoform-backend/internal/pkg/dbctx"
	apperrors "github.com/echoform/echoform-backend/internal/pkg/errors"
)

func TestJobRepoLatestCompletedByFingerprint(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := NewJobRepo(db, testutil.Logger(t))

	u := testutil.SeedUser(t, ctx, tx, "synth-fp@test.local")
	clone := testutil.SeedVoiceClone(t, ctx, tx, u.ID, types.VoiceCloneStatusReady)
	fingerprint := "fp-" + uuid.NewString()

	older := testutil.SeedSynthesisJob(t, ctx, tx, u.ID, clone.ID, fingerprint, types.SynthesisJobStatusCompleted)
	newer := testutil.SeedSynthesisJob(t, ctx, tx, u.ID, clone.ID, fingerprint, types.SynthesisJobStatusCompleted)

	now := time.Now()
	olderDone := now.Add(-2 * time.Hour)
	if err := repo.UpdateFields(dbc, older.ID, map[string]interface{}{
		"audio_key": "audio/older.wav", "completed_at": olderDone,
	}); err != nil {
		t.Fatalf("UpdateFields older: %v", err)
	}
	if err := repo.UpdateFields(dbc, newer.ID, map[string]interface{}{
		"audio_key": "audio/newer.wav", "completed_at": now,
	}); err != nil {
		t.Fatalf("UpdateFields newer: %v", err)
	}

	// A cache-hit row under the same fingerprint is never the lookup target.
	hit := testutil.SeedSynthesisJob(t, ctx, tx, u.ID, clone.ID, fingerprint, types.SynthesisJobStatusCompleted)
	if err := repo.UpdateFields(dbc, hit.ID, map[string]interface{}{
		"cache_hit": true, "completed_at": now.Add(time.Hour),
	}); err != nil {
		t.Fatalf("UpdateFields hit: %v", err)
	}

	got, err := repo.LatestCompletedByFingerprint(dbc, fingerprint)
	if err != nil {
		t.Fatalf("LatestCompletedByFingerprint: %v", err)
	}
	if got == nil {
		t.Fatalf("LatestCompletedByFingerprint: expected a row")
	}
	if got.ID != newer.ID {
		t.Fatalf("LatestCompletedByFingerprint: want=%s got=%s", newer.ID, got.ID)
	}

	none, err := repo.LatestCompletedByFingerprint(dbc, "fp-absent-"+uuid.NewString())
	if err != nil {
		t.Fatalf("LatestCompletedByFingerprint absent: %v", err)
	}
	if none != nil {
		t.Fatalf("LatestCompletedByFingerprint absent: expected nil, got=%+v", none)
	}
}

func TestJobRepoRequestCancelPending(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := NewJobRepo(db, testutil.Logger(t))

	u := testutil.SeedUser(t, ctx, tx, "synth-cancel-pending@test.local")
	clone := testutil.SeedVoiceClone(t, ctx, tx, u.ID, types.VoiceCloneStatusReady)
	job := testutil.SeedSynthesisJob(t, ctx, tx, u.ID, clone.ID, "fp-"+uuid.NewString(), types.SynthesisJobStatusPending)

	status, err := repo.RequestCancel(dbc, job.ID)
	if err != nil {
		t.Fatalf("RequestCancel: %v", err)
	}
	if status != types.SynthesisJobStatusCancelled {
		t.Fatalf("status: want=%q got=%q", types.SynthesisJobStatusCancelled, status)
	}

	got, err := repo.GetByID(dbc, job.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != types.SynthesisJobStatusCancelled {
		t.Fatalf("row status: want=%q got=%q", types.SynthesisJobStatusCancelled, got.Status)
	}
	if got.CompletedAt == nil {
		t.Fatalf("cancelled row missing completed_at")
	}
}

func TestJobRepoRequestCancelRunningOnlySetsFlag(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := NewJobRepo(db, testutil.Logger(t))

	u := testutil.SeedUser(t, ctx, tx, "synth-cancel-running@test.local")
	clone := testutil.SeedVoiceClone(t, ctx, tx, u.ID, types.VoiceCloneStatusReady)
	job := testutil.SeedSynthesisJob(t, ctx, tx, u.ID, clone.ID, "fp-"+uuid.NewString(), types.SynthesisJobStatusRunning)

	status, err := repo.RequestCancel(dbc, job.ID)
	if err != nil {
		t.Fatalf("RequestCancel: %v", err)
	}
	if status != types.SynthesisJobStatusRunning {
		t.Fatalf("status: want=%q got=%q", types.SynthesisJobStatusRunning, status)
	}

	got, err := repo.GetByID(dbc, job.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != types.SynthesisJobStatusRunning {
		t.Fatalf("row status: want=%q got=%q", types.SynthesisJobStatusRunning, got.Status)
	}
	if !got.CancelRequested {
		t.Fatalf("cancel_requested: want=true")
	}
}

func TestJobRepoRequestCancelTerminalIsNoop(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := NewJobRepo(db, testutil.Logger(t))

	u := testutil.SeedUser(t, ctx, tx, "synth-cancel-done@test.local")
	clone := testutil.SeedVoiceClone(t, ctx, tx, u.ID, types.VoiceCloneStatusReady)
	job := testutil.SeedSynthesisJob(t, ctx, tx, u.ID, clone.ID, "fp-"+uuid.NewString(), types.SynthesisJobStatusCompleted)

	status, err := repo.RequestCancel(dbc, job.ID)
	if err != nil {
		t.Fatalf("RequestCancel: %v", err)
	}
	if status != types.SynthesisJobStatusCompleted {
		t.Fatalf("status: want=%q got=%q", types.SynthesisJobStatusCompleted, status)
	}

	got, err := repo.GetByID(dbc, job.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != types.SynthesisJobStatusCompleted {
		t.Fatalf("completed row changed status: got=%q", got.Status)
	}
	if got.CancelRequested {
		t.Fatalf("completed row gained cancel_requested")
	}
}

func TestJobRepoRequestCancelMissing(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}
	repo := NewJobRepo(db, testutil.Logger(t))

	_, err := repo.RequestCancel(dbc, uuid.New())
	if !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("RequestCancel missing: want ErrNotFound, got=%v", err)
	}
}

func TestJobRepoSetProgressGuards(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := NewJobRepo(db, testutil.Logger(t))

	u := testutil.SeedUser(t, ctx, tx, "synth-progress@test.local")
	clone := testutil.SeedVoiceClone(t, ctx, tx, u.ID, types.VoiceCloneStatusReady)
	running := testutil.SeedSynthesisJob(t, ctx, tx, u.ID, clone.ID, "fp-"+uuid.NewString(), types.SynthesisJobStatusRunning)
	done := testutil.SeedSynthesisJob(t, ctx, tx, u.ID, clone.ID, "fp-"+uuid.NewString(), types.SynthesisJobStatusCompleted)

	if err := repo.SetProgress(dbc, running.ID, 0.5); err != nil {
		t.Fatalf("SetProgress running: %v", err)
	}
	got, err := repo.GetByID(dbc, running.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Progress != 0.5 {
		t.Fatalf("progress: want=0.5 got=%v", got.Progress)
	}

	// Progress never moves backwards.
	if err := repo.SetProgress(dbc, running.ID, 0.2); err != nil {
		t.Fatalf("SetProgress backwards: %v", err)
	}
	got, err = repo.GetByID(dbc, running.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Progress != 0.5 {
		t.Fatalf("progress after backwards write: want=0.5 got=%v", got.Progress)
	}

	// Terminal rows ignore progress writes entirely.
	if err := repo.SetProgress(dbc, done.ID, 0.9); err != nil {
		t.Fatalf("SetProgress terminal: %v", err)
	}
	got, err = repo.GetByID(dbc, done.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Progress != 0 {
		t.Fatalf("terminal progress: want=0 got=%v", got.Progress)
	}
}

func TestJobRepoClaimNextRunnable(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := NewJobRepo(db, testutil.Logger(t))

	u := testutil.SeedUser(t, ctx, tx, "synth-claim@test.local")
	clone := testutil.SeedVoiceClone(t, ctx, tx, u.ID, types.VoiceCloneStatusReady)
	pending := testutil.SeedSynthesisJob(t, ctx, tx, u.ID, clone.ID, "fp-"+uuid.NewString(), types.SynthesisJobStatusPending)

	claimed, err := repo.ClaimNextRunnable(dbc, 5, 30*time.Minute)
	if err != nil {
		t.Fatalf("ClaimNextRunnable: %v", err)
	}
	if claimed == nil {
		t.Fatalf("ClaimNextRunnable: expected a job")
	}
	if claimed.ID != pending.ID {
		t.Fatalf("claimed id: want=%s got=%s", pending.ID, claimed.ID)
	}
	if claimed.Status != types.SynthesisJobStatusRunning {
		t.Fatalf("claimed status: want=%q got=%q", types.SynthesisJobStatusRunning, claimed.Status)
	}

	row, err := repo.GetByID(dbc, pending.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if row.Status != types.SynthesisJobStatusRunning || row.Attempts != 1 {
		t.Fatalf("claimed row: status=%q attempts=%d", row.Status, row.Attempts)
	}
	if row.HeartbeatAt == nil || row.LockedAt == nil {
		t.Fatalf("claimed row missing lock timestamps")
	}

	// Nothing else runnable.
	second, err := repo.ClaimNextRunnable(dbc, 5, 30*time.Minute)
	if err != nil {
		t.Fatalf("ClaimNextRunnable second: %v", err)
	}
	if second != nil {
		t.Fatalf("ClaimNextRunnable second: expected nil, got=%+v", second)
	}
}
