package retrieval

import (
	"strings"
	"time"

	"github.com/givelift/recall/internal/types"
)

const memoryBlockHeader = "Relevant memories from previous conversations:"

// BuildMemoryBlock renders ranked memories as a prompt block, one line
// per memory under a short header. Returns "" when nothing renders.
func BuildMemoryBlock(memories []types.RetrievedMemory) string {
	if len(memories) == 0 {
		return ""
	}

	var sb strings.Builder
	lines := 0
	for _, mem := range memories {
		text := strings.TrimSpace(mem.Content)
		if text == "" {
			continue
		}
		sb.WriteString(formatMemoryLine(mem.CreatedAt, mem.Category, text))
		sb.WriteString("\n")
		lines++
	}
	if lines == 0 {
		return ""
	}
	return memoryBlockHeader + "\n" + sb.String()
}

func formatMemoryLine(created time.Time, category, text string) string {
	parts := []string{"-"}
	if !created.IsZero() {
		parts = append(parts, "["+created.Format("2006-01-02")+"]")
	}
	if category != "" {
		parts = append(parts, category+":")
	}
	parts = append(parts, text)
	return strings.Join(parts, " ")
}
