// Package extractor turns conversation turns into memory candidates,
// via cheap pattern matching for explicit remember-this directives and
// via a generation model for implicit facts.
package extractor

import (
	"context"
	"log/slog"
	"strings"

	"github.com/givelift/recall/internal/models"
	"github.com/givelift/recall/internal/types"
)

// Options tune both extraction paths.
type Options struct {
	// MinAutoImportance drops model candidates scored below it.
	MinAutoImportance float64
	// RecentTurnWindow bounds how many trailing turns reach the model.
	RecentTurnWindow int
	// MaxContentLength truncates candidate content, in runes.
	MaxContentLength int
	// ExplicitImportance is the fixed score for remember-this directives.
	ExplicitImportance float64
}

// Extractor runs the two extraction paths. The generator may be nil when
// no extraction provider is configured; only the explicit path works then.
type Extractor struct {
	generator models.Generator
	opts      Options
}

func New(generator models.Generator, opts Options) *Extractor {
	return &Extractor{generator: generator, opts: opts}
}

// ExtractAll unions both paths: explicit directives always run; the
// model-backed path runs only when the caller supplied a provider key
// and is best-effort. Its failures are logged, never propagated, so a
// flaky provider cannot cost the caller the explicit candidates.
func (e *Extractor) ExtractAll(ctx context.Context, apiKey string, turns []types.Turn) []types.MemoryCandidate {
	candidates := e.ExtractExplicit(turns)

	if apiKey == "" || e.generator == nil {
		return candidates
	}
	auto, err := e.ExtractAuto(ctx, apiKey, turns)
	if err != nil {
		slog.Warn("automatic memory extraction failed", "error", err)
		return candidates
	}
	return append(candidates, auto...)
}

func truncate(text string, maxRunes int) string {
	if maxRunes <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= maxRunes {
		return text
	}
	return strings.TrimSpace(string(runes[:maxRunes]))
}

// clampImportance forces a model-reported score into [0,1]; NaN maps
// to 0.
func clampImportance(v float64) float64 {
	if v != v || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

