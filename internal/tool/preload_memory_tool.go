// Package tool provides ADK tools backed by the recall engine.
package tool

import (
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/adk/memory"
	"google.golang.org/adk/model"
	"google.golang.org/adk/tool"
	"google.golang.org/genai"

	"github.com/givelift/recall/internal/utils"
)

const (
	preloadMemoryToolName        = "preload_memory"
	preloadMemoryToolDescription = "Preloads stored supporter memories relevant to the user's message into the system instruction."
)

// PreloadMemoryTool splices memories retrieved for the user's message
// into the system instruction before each model call. Entries render in
// the same line format the engine's retrieval block uses, so agents and
// the chat path see memories the same way.
type PreloadMemoryTool struct {
	name        string
	description string
	maxEntries  int
}

// NewPreloadMemoryTool returns a tool injecting at most maxEntries
// memories per turn; maxEntries <= 0 means no limit.
func NewPreloadMemoryTool(maxEntries int) *PreloadMemoryTool {
	return &PreloadMemoryTool{
		name:        preloadMemoryToolName,
		description: preloadMemoryToolDescription,
		maxEntries:  maxEntries,
	}
}

// Name implements tool.Tool.
func (t *PreloadMemoryTool) Name() string {
	return t.name
}

// Description implements tool.Tool.
func (t *PreloadMemoryTool) Description() string {
	return t.description
}

// IsLongRunning implements tool.Tool.
func (t *PreloadMemoryTool) IsLongRunning() bool {
	return false
}

// ProcessRequest searches the session's memory service with the user's
// message and appends the rendered block to the system instruction.
func (t *PreloadMemoryTool) ProcessRequest(ctx tool.Context, req *model.LLMRequest) error {
	if ctx == nil || req == nil {
		return nil
	}

	query := strings.TrimSpace(utils.ExtractContentText(ctx.UserContent()))
	if query == "" {
		return nil
	}

	resp, err := ctx.SearchMemory(ctx, query)
	if err != nil {
		slog.Error("memory preload search failed", "error", err)
		return fmt.Errorf("failed to search memory: %w", err)
	}
	if resp == nil || len(resp.Memories) == 0 {
		return nil
	}

	instruction := buildMemoryInstruction(resp.Memories, t.maxEntries)
	if instruction == "" {
		return nil
	}
	appendInstruction(req, instruction)
	return nil
}

func buildMemoryInstruction(entries []memory.Entry, maxEntries int) string {
	if maxEntries > 0 && len(entries) > maxEntries {
		entries = entries[:maxEntries]
	}

	var sb strings.Builder
	lines := 0
	for _, entry := range entries {
		text := strings.TrimSpace(utils.ExtractContentText(entry.Content))
		if text == "" {
			continue
		}
		sb.WriteString(formatEntryLine(entry, text))
		sb.WriteString("\n")
		lines++
	}
	if lines == 0 {
		return ""
	}
	return "Relevant memories from previous conversations:\n" + sb.String()
}

func formatEntryLine(entry memory.Entry, text string) string {
	parts := []string{"-"}
	if !entry.Timestamp.IsZero() {
		parts = append(parts, "["+entry.Timestamp.Format("2006-01-02")+"]")
	}
	if author := strings.TrimSpace(entry.Author); author != "" {
		parts = append(parts, author+":")
	}
	parts = append(parts, text)
	return strings.Join(parts, " ")
}

func appendInstruction(req *model.LLMRequest, instruction string) {
	if req.Config == nil {
		req.Config = &genai.GenerateContentConfig{}
	}
	if req.Config.SystemInstruction == nil {
		req.Config.SystemInstruction = genai.NewContentFromText(instruction, genai.RoleUser)
		return
	}
	req.Config.SystemInstruction.Parts = append(req.Config.SystemInstruction.Parts, genai.NewPartFromText(instruction))
}
