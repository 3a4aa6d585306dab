package consistency

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/echoform/echoform-backend/internal/domain"
	"github.com/echoform/echoform-backend/internal/pkg/logger"
	"github.com/echoform/echoform-backend/internal/platform/vector"
)

func TestCommitAppliesEmbeddingsAfterRelational(t *testing.T) {
	log := newTestLogger(t)
	vecs := &fakeVectorStore{}
	coord := NewCoordinator(log, passthroughTxRunner{}, vecs)

	var order []string
	res, err := coord.Commit(context.Background(),
		func(tx *gorm.DB) error {
			order = append(order, "relational")
			return nil
		},
		[]Write{
			{
				Namespace: vector.NamespaceSynthText,
				Vector:    vector.Vector{ID: uuid.NewString(), Values: []float32{0.1}},
			},
		},
	)
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if res.Applied != 1 || res.Deferred != 0 {
		t.Fatalf("result: %+v", res)
	}
	if len(vecs.upserts) != 1 {
		t.Fatalf("upserts: want=1 got=%d", len(vecs.upserts))
	}
	if len(order) != 1 || order[0] != "relational" {
		t.Fatalf("relational callback not run exactly once: %v", order)
	}
}

func TestCommitRelationalFailureSkipsEmbeddings(t *testing.T) {
	log := newTestLogger(t)
	vecs := &fakeVectorStore{}
	coord := NewCoordinator(log, passthroughTxRunner{}, vecs)

	boom := errors.New("constraint violation")
	_, err := coord.Commit(context.Background(),
		func(tx *gorm.DB) error { return boom },
		[]Write{
			{
				Namespace: vector.NamespaceSynthText,
				Vector:    vector.Vector{ID: uuid.NewString(), Values: []float32{0.1}},
			},
		},
	)
	if !errors.Is(err, boom) {
		t.Fatalf("want relational error, got=%v", err)
	}
	if len(vecs.upserts) != 0 {
		t.Fatalf("no embedding may be written after a failed relational tx, got %d", len(vecs.upserts))
	}
}

func TestCommitEmbeddingFailureFlagsAndSucceeds(t *testing.T) {
	log := newTestLogger(t)
	vecs := &fakeVectorStore{upsertErr: errors.New("index unavailable")}
	coord := NewCoordinator(log, passthroughTxRunner{}, vecs)

	flagged := false
	res, err := coord.Commit(context.Background(),
		func(tx *gorm.DB) error { return nil },
		[]Write{
			{
				Namespace: vector.NamespaceVoiceSample,
				Vector:    vector.Vector{ID: uuid.NewString(), Values: []float32{0.1}},
				Flag: func(ctx context.Context) error {
					flagged = true
					return nil
				},
			},
		},
	)
	if err != nil {
		t.Fatalf("embedding failure must not fail the commit: %v", err)
	}
	if res.Applied != 0 || res.Deferred != 1 {
		t.Fatalf("result: %+v", res)
	}
	if !flagged {
		t.Fatalf("source row was not flagged for reindex")
	}
}

func TestSynthTextWriteMetadata(t *testing.T) {
	job := &types.SynthesisJob{
		ID:           uuid.New(),
		UserID:       uuid.New(),
		VoiceCloneID: uuid.New(),
		Text:         "hello",
		Language:     "en",
	}
	w := SynthTextWrite(nil, job, []float32{0.1, 0.2})

	if w.Namespace != vector.NamespaceSynthText {
		t.Fatalf("namespace: %s", w.Namespace)
	}
	if w.Vector.ID != job.ID.String() {
		t.Fatalf("vector id: want=%s got=%s", job.ID, w.Vector.ID)
	}
	if got := w.Vector.Metadata[vector.MetaOwnerID]; got != job.UserID.String() {
		t.Fatalf("owner metadata: %v", got)
	}
	if got := w.Vector.Metadata[vector.MetaVoiceCloneID]; got != job.VoiceCloneID.String() {
		t.Fatalf("clone metadata: %v", got)
	}
}

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	t.Cleanup(func() { log.Sync() })
	return log
}

type passthroughTxRunner struct{}

func (passthroughTxRunner) RunInTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}
