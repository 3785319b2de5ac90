package docproc

import (
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// MarkdownToText flattens Markdown to plain text: block structure becomes
// line breaks, inline markup drops away, code blocks keep their lines,
// raw HTML is discarded.
func MarkdownToText(source []byte) string {
	doc := goldmark.New().Parser().Parse(text.NewReader(source))

	var sb strings.Builder
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			if n.Type() == ast.TypeBlock && sb.Len() > 0 {
				sb.WriteByte('\n')
			}
			return ast.WalkContinue, nil
		}
		switch v := n.(type) {
		case *ast.Text:
			sb.Write(v.Segment.Value(source))
			if v.SoftLineBreak() || v.HardLineBreak() {
				sb.WriteByte('\n')
			}
		case *ast.AutoLink:
			sb.Write(v.URL(source))
		case *ast.CodeBlock:
			writeBlockLines(&sb, source, v.Lines())
		case *ast.FencedCodeBlock:
			writeBlockLines(&sb, source, v.Lines())
		}
		return ast.WalkContinue, nil
	})

	return collapseBlankLines(strings.TrimSpace(sb.String()))
}

func writeBlockLines(sb *strings.Builder, source []byte, lines *text.Segments) {
	for i := 0; i < lines.Len(); i++ {
		segment := lines.At(i)
		sb.Write(segment.Value(source))
	}
}

var blankRunPattern = regexp.MustCompile(`\n{3,}`)

func collapseBlankLines(s string) string {
	return blankRunPattern.ReplaceAllString(s, "\n\n")
}
