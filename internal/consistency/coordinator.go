// Package consistency keeps the relational store and the vector index in
// agreement. The relational store is the source of truth; embedding writes
// happen after the relational commit and are allowed to fail, flagging the
// source row for the reconciliation sweep instead of rolling anything back.
package consistency

import (
	"context"

	"gorm.io/gorm"

	"github.com/echoform/echoform-backend/internal/data/db"
	apperrors "github.com/echoform/echoform-backend/internal/pkg/errors"
	"github.com/echoform/echoform-backend/internal/pkg/logger"
	"github.com/echoform/echoform-backend/internal/platform/vector"
)

// Write is one embedding upsert planned alongside a relational commit.
// Flag is invoked when the upsert fails; it must set needs_reindex on the
// row the embedding derives from.
type Write struct {
	Namespace string
	Vector    vector.Vector
	Flag      func(ctx context.Context) error
}

// CommitResult reports how the embedding half of a commit went. Deferred
// writes were flagged for the sweep; they are not errors.
type CommitResult struct {
	Applied  int
	Deferred int
}

type Coordinator struct {
	log     *logger.Logger
	tx      db.TxRunner
	vectors vector.Store
}

func NewCoordinator(log *logger.Logger, tx db.TxRunner, vectors vector.Store) *Coordinator {
	return &Coordinator{
		log:     log.With("service", "ConsistencyCoordinator"),
		tx:      tx,
		vectors: vectors,
	}
}

// Commit runs the relational transaction, and only after it is durable
// applies the embedding writes. A failed relational transaction aborts
// everything; a failed embedding write flags its source row and the commit
// still succeeds.
func (c *Coordinator) Commit(ctx context.Context, relational func(tx *gorm.DB) error, writes []Write) (CommitResult, error) {
	if relational == nil {
		return CommitResult{}, apperrors.ErrInvalidArgument
	}
	if err := c.tx.RunInTx(ctx, relational); err != nil {
		return CommitResult{}, err
	}

	var res CommitResult
	for _, w := range writes {
		if err := c.vectors.Upsert(ctx, w.Namespace, []vector.Vector{w.Vector}); err != nil {
			c.log.Warn("Embedding upsert failed after relational commit; deferring to sweep",
				"namespace", w.Namespace,
				"vector_id", w.Vector.ID,
				"error", err,
			)
			res.Deferred++
			if w.Flag == nil {
				continue
			}
			if flagErr := w.Flag(ctx); flagErr != nil {
				c.log.Error("Failed to flag row for reindex",
					"namespace", w.Namespace,
					"vector_id", w.Vector.ID,
					"error", flagErr,
				)
			}
			continue
		}
		res.Applied++
	}
	return res, nil
}
