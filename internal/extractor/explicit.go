package extractor

import (
	"regexp"
	"strings"

	"github.com/givelift/recall/internal/types"
)

// explicitRule pairs a detection pattern with the handler that turns its
// match into memory content. Rules are tried in order and the first match
// wins, so more specific phrasings sit above looser ones.
type explicitRule struct {
	name    string
	pattern *regexp.Regexp
	build   func(match []string) string
}

var explicitRules = []explicitRule{
	{
		name:    "remember_that",
		pattern: regexp.MustCompile(`(?i)\bremember\s+that\s+(.+)`),
		build:   firstGroup,
	},
	{
		name:    "remember_colon",
		pattern: regexp.MustCompile(`(?i)\bremember[:,]\s*(.+)`),
		build:   firstGroup,
	},
	{
		name:    "dont_forget",
		pattern: regexp.MustCompile(`(?i)\bdon'?t\s+forget\s+(.+)`),
		build:   dropLeadingThat,
	},
	{
		name:    "keep_in_mind",
		pattern: regexp.MustCompile(`(?i)\bkeep\s+in\s+mind\s+(.+)`),
		build:   dropLeadingThat,
	},
	{
		name:    "note_that",
		pattern: regexp.MustCompile(`(?i)\bnote\s+that\s+(.+)`),
		build:   firstGroup,
	},
	{
		name:    "future_reference",
		pattern: regexp.MustCompile(`(?i)\bfor\s+future\s+reference[:,]?\s+(.+)`),
		build:   firstGroup,
	},
}

func firstGroup(match []string) string {
	return strings.TrimSpace(match[1])
}

func dropLeadingThat(match []string) string {
	content := strings.TrimSpace(match[1])
	if strings.HasPrefix(strings.ToLower(content), "that ") {
		content = strings.TrimSpace(content[len("that "):])
	}
	return content
}

// ExtractExplicit scans user-authored turns for remember-this directives.
// It never calls the network; every match becomes a candidate carrying the
// fixed explicit importance.
func (e *Extractor) ExtractExplicit(turns []types.Turn) []types.MemoryCandidate {
	var candidates []types.MemoryCandidate
	for _, turn := range turns {
		if turn.Role != "user" {
			continue
		}
		for _, rule := range explicitRules {
			match := rule.pattern.FindStringSubmatch(turn.Content)
			if match == nil {
				continue
			}
			content := truncate(rule.build(match), e.opts.MaxContentLength)
			if content != "" {
				candidates = append(candidates, types.MemoryCandidate{
					Content:    content,
					Importance: e.opts.ExplicitImportance,
					Category:   types.CategoryOther,
					Tags:       []string{"explicit", "user-requested"},
					Type:       types.MemoryTypeExplicit,
				})
			}
			break
		}
	}
	return candidates
}
