// Package vector defines the embedding store interface shared by the cache
// layer and the consistency coordinator. The store is a derived index over
// relational rows: ids equal the owning row's id, upserts are idempotent,
// and the whole index is rebuildable from relational data.
package vector

import (
	"context"
	"fmt"
)

// Namespaces used by this system. Each namespace holds one embedding kind.
const (
	NamespaceVoiceSample = "voice_sample"
	NamespaceSpeaker     = "speaker"
	NamespaceSynthText   = "synth_text"
)

// Metadata keys carried on every vector.
const (
	MetaOwnerID      = "owner_id"
	MetaVoiceCloneID = "voice_clone_id"
	MetaLanguage     = "language"
	MetaQuality      = "quality"
	MetaUpdatedAt    = "updated_at"
)

type Vector struct {
	ID       string
	Values   []float32
	Metadata map[string]any
}

// Match is one similarity result. Score is cosine similarity, higher is
// better. Metadata is the stored payload, returned so callers can verify
// ownership without a second round trip.
type Match struct {
	ID       string
	Score    float64
	Metadata map[string]any
}

// Store is the embedding store interface.
//
// QuerySimilar enforces hard owner isolation: the filter must carry
// MetaOwnerID, and implementations reject the query otherwise. Results are
// ordered by score descending with ties broken by most-recent
// MetaUpdatedAt descending.
type Store interface {
	Upsert(ctx context.Context, namespace string, vectors []Vector) error
	QuerySimilar(ctx context.Context, namespace string, q []float32, topK int, minSimilarity float64, filter map[string]any) ([]Match, error)
	Fetch(ctx context.Context, namespace string, ids []string) ([]Vector, error)
	DeleteIDs(ctx context.Context, namespace string, ids []string) error
	// ScrollIDs pages through every id in a namespace; the reconciliation
	// sweep uses it to find orphaned embeddings. An empty next cursor means
	// the scan is complete.
	ScrollIDs(ctx context.Context, namespace string, cursor string, limit int) (ids []string, next string, err error)
}

// RequireOwnerFilter validates the isolation invariant shared by all Store
// implementations.
func RequireOwnerFilter(filter map[string]any) error {
	if filter == nil {
		return fmt.Errorf("similarity query requires an %s filter", MetaOwnerID)
	}
	owner, ok := filter[MetaOwnerID]
	if !ok || owner == nil || fmt.Sprint(owner) == "" {
		return fmt.Errorf("similarity query requires an %s filter", MetaOwnerID)
	}
	return nil
}
