// Package fingerprint derives the cache/dedup key for a synthesis request.
//
// The key covers exactly the inputs that change acoustic output: normalized
// text, the voice clone identity, and the acoustically-relevant config
// fields. Display-only fields (label) are excluded so relabeling a request
// never defeats the cache.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/echoform/echoform-backend/internal/domain"
)

// keyVersion is bumped whenever the canonical encoding changes, so stale
// keys from older deployments can never collide with new ones.
const keyVersion = "v1"

// Normalize applies the single text normalization policy used everywhere a
// fingerprint or text embedding is computed: trim, collapse whitespace runs
// to single spaces, lower-case.
func Normalize(text string) string {
	return strings.ToLower(strings.Join(strings.Fields(text), " "))
}

// Compute returns the deterministic fingerprint for (text, clone, config).
// Same inputs always produce the same key; changing any acoustic field
// produces a different key. No side effects.
func Compute(text string, voiceCloneID uuid.UUID, cfg domain.SynthesisConfig) string {
	parts := []string{
		keyVersion,
		voiceCloneID.String(),
		Normalize(text),
		strings.ToLower(strings.TrimSpace(cfg.Format)),
		strconv.Itoa(cfg.SampleRate),
		formatFloat(cfg.Speed),
		formatFloat(cfg.Pitch),
		formatFloat(cfg.Volume),
		strings.ToLower(strings.TrimSpace(cfg.Language)),
		strconv.FormatBool(cfg.WithTimestamps),
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return hex.EncodeToString(sum[:])
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
