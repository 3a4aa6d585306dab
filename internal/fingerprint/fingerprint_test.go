package fingerprint

import (
	"testing"

	"github.com/google/uuid"

	"github.com/echoform/echoform-backend/internal/domain"
)

func baseConfig() domain.SynthesisConfig {
	return domain.SynthesisConfig{
		Format:     "wav",
		SampleRate: 22050,
		Speed:      1.0,
		Pitch:      1.0,
		Volume:     1.0,
		Language:   "en",
	}
}

func TestNormalize(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{name: "trim", in: "  Hello world  ", want: "hello world"},
		{name: "collapse_runs", in: "Hello\t\n  world", want: "hello world"},
		{name: "casing", in: "HELLO World", want: "hello world"},
		{name: "empty", in: "   ", want: ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Normalize(tc.in); got != tc.want {
				t.Fatalf("Normalize(%q)=%q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestComputeDeterministic(t *testing.T) {
	cloneID := uuid.New()
	a := Compute("Hello world", cloneID, baseConfig())
	b := Compute("Hello world", cloneID, baseConfig())
	if a != b {
		t.Fatalf("same inputs produced different keys: %s vs %s", a, b)
	}
	if len(a) != 64 {
		t.Fatalf("expected sha256 hex key, got len=%d", len(a))
	}
}

func TestComputeNormalizesText(t *testing.T) {
	cloneID := uuid.New()
	a := Compute("  Hello   world ", cloneID, baseConfig())
	b := Compute("hello world", cloneID, baseConfig())
	if a != b {
		t.Fatalf("whitespace/casing variants should share a key")
	}
}

func TestComputeAcousticFieldsChangeKey(t *testing.T) {
	cloneID := uuid.New()
	base := Compute("hello", cloneID, baseConfig())

	mutations := []struct {
		name   string
		mutate func(*domain.SynthesisConfig)
	}{
		{name: "format", mutate: func(c *domain.SynthesisConfig) { c.Format = "mp3" }},
		{name: "sample_rate", mutate: func(c *domain.SynthesisConfig) { c.SampleRate = 44100 }},
		{name: "speed", mutate: func(c *domain.SynthesisConfig) { c.Speed = 1.25 }},
		{name: "pitch", mutate: func(c *domain.SynthesisConfig) { c.Pitch = 0.9 }},
		{name: "volume", mutate: func(c *domain.SynthesisConfig) { c.Volume = 0.5 }},
		{name: "language", mutate: func(c *domain.SynthesisConfig) { c.Language = "de" }},
	}
	for _, m := range mutations {
		t.Run(m.name, func(t *testing.T) {
			cfg := baseConfig()
			m.mutate(&cfg)
			if Compute("hello", cloneID, cfg) == base {
				t.Fatalf("changing %s did not change the key", m.name)
			}
		})
	}
}

func TestComputeDisplayOnlyFieldsExcluded(t *testing.T) {
	cloneID := uuid.New()
	plain := Compute("hello", cloneID, baseConfig())

	labeled := baseConfig()
	labeled.Label = "My favorite render"
	if Compute("hello", cloneID, labeled) != plain {
		t.Fatalf("label must not affect the fingerprint")
	}
}

func TestComputeCloneIdentityIncluded(t *testing.T) {
	a := Compute("hello", uuid.New(), baseConfig())
	b := Compute("hello", uuid.New(), baseConfig())
	if a == b {
		t.Fatalf("different clones must not share a key")
	}
}
