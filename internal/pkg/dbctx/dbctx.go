// Package dbctx threads a request context and an optional transaction
// through the repo layer, so service-level units of work (claim plus job
// insert, sample row plus storage accounting) can span repos.
package dbctx

import (
	"context"

	"gorm.io/gorm"
)

// Context bundles a request context with an optional GORM transaction.
// A nil Tx means the repo runs against its own connection.
type Context struct {
	Ctx context.Context
	Tx  *gorm.DB
}

// Session resolves the DB handle for one repo call: the enclosing
// transaction when present, otherwise fallback, bound to the request
// context.
func (c Context) Session(fallback *gorm.DB) *gorm.DB {
	db := c.Tx
	if db == nil {
		db = fallback
	}
	return db.WithContext(c.Ctx)
}
