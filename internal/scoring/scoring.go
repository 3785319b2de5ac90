// Package scoring holds the importance, decay, and relevance model for
// memories. Everything here is a pure function of its inputs, with no I/O
// and no clocks (callers pass "now"), so the policy stays deterministic.
package scoring

import (
	"math"
	"regexp"
	"strings"
	"time"
)

// Config carries every weight, bonus, and threshold of the scoring model.
// These are policy knobs, not laws; deployments tune them via configuration.
type Config struct {
	// CategoryWeights seed BaseImportance per memory category.
	CategoryWeights       map[string]float64
	DefaultCategoryWeight float64

	// HighValuePatterns mark content worth remembering on sight, e.g.
	// first-person self-description.
	HighValuePatterns []*regexp.Regexp
	PhraseBonus       float64

	PronounMinCount int
	PronounBonus    float64

	LongContentWords    int
	LongContentBonus    float64
	ShortContentWords   int
	ShortContentPenalty float64

	ExplicitBonus      float64
	UserRequestedBonus float64
	// ExplicitImportance is the fixed score assigned to "remember this"
	// directives before tag bonuses.
	ExplicitImportance float64

	DecayHalfLifeDays float64
	DecayFloor        float64

	AccessBoostScale float64
	AccessBoostCap   float64

	SimilarityWeight float64
	ImportanceWeight float64

	// Prune decision table.
	PruneProtectImportance float64
	PruneProtectAccesses   int
	PruneLowImportance     float64
	PruneMinAgeDays        float64
	PruneMidImportance     float64
	PruneStaleDays         float64
}

// DefaultConfig returns the scoring policy shipped with the engine.
func DefaultConfig() Config {
	return Config{
		CategoryWeights: map[string]float64{
			"identity":     0.70,
			"goal":         0.65,
			"donor":        0.60,
			"preference":   0.55,
			"organization": 0.55,
			"event":        0.50,
			"other":        0.40,
		},
		DefaultCategoryWeight: 0.40,

		HighValuePatterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\bmy name is\b`),
			regexp.MustCompile(`(?i)\bi(?:'m| am)\b`),
			regexp.MustCompile(`(?i)\bi work (?:at|for|with)\b`),
			regexp.MustCompile(`(?i)\bmy (?:role|goal|organization|nonprofit|team)\b`),
			regexp.MustCompile(`(?i)\bwe(?:'re| are) (?:raising|planning|running)\b`),
			regexp.MustCompile(`(?i)\bi prefer\b`),
		},
		PhraseBonus: 0.15,

		PronounMinCount: 2,
		PronounBonus:    0.05,

		LongContentWords:    20,
		LongContentBonus:    0.05,
		ShortContentWords:   5,
		ShortContentPenalty: 0.10,

		ExplicitBonus:      0.15,
		UserRequestedBonus: 0.10,
		ExplicitImportance: 0.90,

		DecayHalfLifeDays: 90,
		DecayFloor:        0.5,

		AccessBoostScale: 0.05,
		AccessBoostCap:   0.20,

		SimilarityWeight: 0.7,
		ImportanceWeight: 0.3,

		PruneProtectImportance: 0.8,
		PruneProtectAccesses:   10,
		PruneLowImportance:     0.4,
		PruneMinAgeDays:        90,
		PruneMidImportance:     0.6,
		PruneStaleDays:         180,
	}
}

var pronounPattern = regexp.MustCompile(`(?i)\b(i|me|my|mine|we|our|us)\b`)

// BaseImportance scores raw content for a category before any tag bonuses.
func (c Config) BaseImportance(content, category string) float64 {
	score, ok := c.CategoryWeights[category]
	if !ok {
		score = c.DefaultCategoryWeight
	}

	for _, p := range c.HighValuePatterns {
		if p.MatchString(content) {
			score += c.PhraseBonus
			break
		}
	}

	if len(pronounPattern.FindAllString(content, c.PronounMinCount)) >= c.PronounMinCount {
		score += c.PronounBonus
	}

	words := len(strings.Fields(content))
	if words >= c.LongContentWords {
		score += c.LongContentBonus
	} else if words < c.ShortContentWords {
		score -= c.ShortContentPenalty
	}

	return clamp01(score)
}

// FinalImportance applies tag bonuses to a base score. Bonuses are
// independently additive; the result is clamped to [0,1].
func (c Config) FinalImportance(base float64, tags []string) float64 {
	score := base
	for _, tag := range tags {
		switch tag {
		case "explicit":
			score += c.ExplicitBonus
		case "user-requested":
			score += c.UserRequestedBonus
		}
	}
	return clamp01(score)
}

// TemporalDecay returns the decay multiplier for a memory last touched at
// lastAccessed (or created, when never accessed). Decay is exponential with
// a half-life of DecayHalfLifeDays, floored at DecayFloor so inactivity
// alone never zeroes a memory.
func (c Config) TemporalDecay(lastAccessed *time.Time, created time.Time, now time.Time) float64 {
	ref := created
	if lastAccessed != nil {
		ref = *lastAccessed
	}
	days := now.Sub(ref).Hours() / 24
	if days <= 0 {
		return 1
	}
	decay := math.Exp(-math.Ln2 * days / c.DecayHalfLifeDays)
	if decay < c.DecayFloor {
		return c.DecayFloor
	}
	return decay
}

// AccessBoost rewards frequently retrieved memories with diminishing
// returns, capped at AccessBoostCap.
func (c Config) AccessBoost(accessCount int) float64 {
	if accessCount <= 0 {
		return 0
	}
	boost := c.AccessBoostScale * math.Log(1+float64(accessCount))
	if boost > c.AccessBoostCap {
		return c.AccessBoostCap
	}
	return boost
}

// CurrentImportance recombines a memory's stored importance with temporal
// decay and the access boost into its standing value at query time.
func (c Config) CurrentImportance(importance float64, accessCount int, lastAccessed *time.Time, created time.Time, now time.Time) float64 {
	return clamp01(importance*c.TemporalDecay(lastAccessed, created, now) + c.AccessBoost(accessCount))
}

// Relevance ranks a retrieved candidate by similarity and standing
// importance combined.
func (c Config) Relevance(similarity, importance float64) float64 {
	return c.SimilarityWeight*similarity + c.ImportanceWeight*importance
}

// ShouldPrune is the pruning decision table. High-importance or
// frequently-accessed memories are never pruned; low-value memories go once
// old enough, mid-value memories once stale enough.
func (c Config) ShouldPrune(importance float64, accessCount int, ageDays, idleDays float64) bool {
	if importance > c.PruneProtectImportance || accessCount > c.PruneProtectAccesses {
		return false
	}
	if importance < c.PruneLowImportance && accessCount == 0 && ageDays > c.PruneMinAgeDays {
		return true
	}
	if importance < c.PruneMidImportance && idleDays >= c.PruneStaleDays {
		return true
	}
	return false
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
