package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/givelift/recall/internal/models"
	"github.com/givelift/recall/internal/types"
)

const extractionInstruction = `You are a memory extraction assistant for a nonprofit fundraising workspace.
Review the conversation and extract facts worth remembering in future conversations.

Extract only:
1. Stable facts about the organization, its people, and its donors
2. Preferences and working habits the user reveals
3. Goals, deadlines, and commitments with concrete details
4. Important events and their outcomes

Skip small talk, transient context, and anything the user is unlikely to care about next week.

Output requirements:
- Return a JSON array of objects with keys: content, importance, category, tags, context
- importance is a number between 0 and 1 reflecting long-term value
- category is one of: identity, goal, donor, preference, organization, event, other
- content must be one self-contained sentence
- Return [] when nothing is worth remembering
- Do not include any text outside the JSON array`

const (
	extractionMaxTokens   = 1024
	extractionTemperature = 0.2
)

// rawCandidate is the shape each element of the model's JSON array must
// take. Parsing is strict here; tolerance lives in parseCandidates.
type rawCandidate struct {
	Content    string   `json:"content"`
	Importance float64  `json:"importance"`
	Category   string   `json:"category"`
	Tags       []string `json:"tags"`
	Context    string   `json:"context"`
}

// ExtractAuto serializes the recent turns into a transcript and asks the
// generation model for memory candidates. Transport failures surface to
// the caller; unparseable model output degrades to an empty list.
func (e *Extractor) ExtractAuto(ctx context.Context, apiKey string, turns []types.Turn) ([]types.MemoryCandidate, error) {
	turns = recentWindow(turns, e.opts.RecentTurnWindow)
	if len(turns) == 0 {
		return nil, nil
	}

	result, err := e.generator.Generate(ctx, apiKey, models.GenerateRequest{
		System:         extractionInstruction,
		Prompt:         transcript(turns),
		ResponseSchema: &models.ResponseSchema{Name: "memory_candidates", Schema: candidateSchema()},
		MaxTokens:      extractionMaxTokens,
		Temperature:    extractionTemperature,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to extract memories: %w", err)
	}

	parsed, err := parseCandidates(result.Text)
	if err != nil {
		slog.Warn("discarding unparseable extraction output",
			"provider", e.generator.Name(),
			"error", err,
		)
		return nil, nil
	}

	candidates := make([]types.MemoryCandidate, 0, len(parsed))
	for _, raw := range parsed {
		content := truncate(strings.TrimSpace(raw.Content), e.opts.MaxContentLength)
		if content == "" {
			continue
		}
		importance := clampImportance(raw.Importance)
		if importance < e.opts.MinAutoImportance {
			continue
		}
		candidates = append(candidates, types.MemoryCandidate{
			Content:    content,
			Importance: importance,
			Category:   types.NormalizeCategory(raw.Category),
			Tags:       raw.Tags,
			Context:    strings.TrimSpace(raw.Context),
			Type:       types.MemoryTypeAuto,
		})
	}
	return candidates, nil
}

// parseCandidates pulls the first bracketed JSON array out of the model
// output, tolerating prose or code fences around it.
func parseCandidates(raw string) ([]rawCandidate, error) {
	clean := strings.TrimSpace(raw)
	start := strings.Index(clean, "[")
	end := strings.LastIndex(clean, "]")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON array in model output")
	}
	var candidates []rawCandidate
	if err := json.Unmarshal([]byte(clean[start:end+1]), &candidates); err != nil {
		return nil, fmt.Errorf("failed to parse candidate array: %w", err)
	}
	return candidates, nil
}

func transcript(turns []types.Turn) string {
	var sb strings.Builder
	for _, turn := range turns {
		sb.WriteString(turn.Role)
		sb.WriteString(": ")
		sb.WriteString(turn.Content)
		sb.WriteString("\n")
	}
	return sb.String()
}

func recentWindow(turns []types.Turn, window int) []types.Turn {
	if window > 0 && len(turns) > window {
		return turns[len(turns)-window:]
	}
	return turns
}

func candidateSchema() *jsonschema.Schema {
	minImportance := 0.0
	maxImportance := 1.0
	return &jsonschema.Schema{
		Type: "array",
		Items: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"content": {
					Type:        "string",
					Description: "one self-contained sentence stating the fact",
				},
				"importance": {
					Type:        "number",
					Description: "long-term value of the fact",
					Minimum:     &minImportance,
					Maximum:     &maxImportance,
				},
				"category": {
					Type: "string",
					Enum: []any{
						types.CategoryIdentity,
						types.CategoryGoal,
						types.CategoryDonor,
						types.CategoryPreference,
						types.CategoryOrganization,
						types.CategoryEvent,
						types.CategoryOther,
					},
				},
				"tags": {
					Type:  "array",
					Items: &jsonschema.Schema{Type: "string"},
				},
				"context": {
					Type:        "string",
					Description: "short background for the fact",
				},
			},
			Required: []string{"content", "importance"},
		},
	}
}
