// Package docproc turns uploaded files into plain text ready for
// chunking: PDF through an external converter service, Markdown through
// AST extraction, plain text as-is. It also counts pages and words and
// detects the document language.
package docproc

import (
	"context"
	"mime"
	"path/filepath"
	"strings"

	"github.com/givelift/recall/internal/errors"
)

// Extraction is the processed form of an uploaded file.
type Extraction struct {
	Text      string
	PageCount *int
	WordCount int
	// Language is the lowercase ISO 639-1 code, empty when undetectable.
	Language string
}

// Converter turns a PDF into Markdown via an external service.
type Converter interface {
	Convert(ctx context.Context, filename string, data []byte) (string, error)
}

const (
	kindPDF      = "pdf"
	kindMarkdown = "markdown"
	kindPlain    = "plain"
)

// Processor routes an upload through the extraction path for its type.
type Processor struct {
	converter Converter
	detector  *languageDetector
	pages     func(data []byte) (int, error)
}

func NewProcessor(converter Converter) *Processor {
	return &Processor{
		converter: converter,
		detector:  newLanguageDetector(),
		pages:     pdfPageCount,
	}
}

// Process extracts text from an upload. Unsupported or unreadable files
// return validation errors; converter outages surface wrapped so the
// ingest pipeline can record them as the failure reason.
func (p *Processor) Process(ctx context.Context, mimeType, filename string, data []byte) (Extraction, error) {
	if len(data) == 0 {
		return Extraction{}, errors.NewValidation("file is empty")
	}
	kind, err := fileKind(mimeType, filename)
	if err != nil {
		return Extraction{}, err
	}

	var extraction Extraction
	switch kind {
	case kindPDF:
		extraction, err = p.processPDF(ctx, filename, data)
	case kindMarkdown:
		extraction = Extraction{Text: MarkdownToText(data)}
	default:
		extraction = Extraction{Text: string(data)}
	}
	if err != nil {
		return Extraction{}, err
	}

	extraction.Text = strings.TrimSpace(extraction.Text)
	if extraction.Text == "" {
		return Extraction{}, errors.NewValidation("no extractable text in %s", filename)
	}
	extraction.WordCount = len(strings.Fields(extraction.Text))
	extraction.Language = p.detector.detect(extraction.Text)
	return extraction, nil
}

func (p *Processor) processPDF(ctx context.Context, filename string, data []byte) (Extraction, error) {
	pages, err := p.pages(data)
	if err != nil {
		return Extraction{}, errors.NewValidation("unreadable PDF: %v", err)
	}
	if p.converter == nil {
		return Extraction{}, errors.NewValidation("PDF uploads are disabled: no converter configured")
	}
	markdown, err := p.converter.Convert(ctx, filename, data)
	if err != nil {
		return Extraction{}, err
	}
	return Extraction{Text: MarkdownToText([]byte(markdown)), PageCount: &pages}, nil
}

// SupportedMIME reports whether an upload of this type and name would be
// accepted, for cheap rejection before the file is read.
func SupportedMIME(mimeType, filename string) bool {
	_, err := fileKind(mimeType, filename)
	return err == nil
}

func fileKind(mimeType, filename string) (string, error) {
	media := mimeType
	if parsed, _, err := mime.ParseMediaType(mimeType); err == nil {
		media = parsed
	}
	media = strings.ToLower(strings.TrimSpace(media))

	switch media {
	case "application/pdf":
		return kindPDF, nil
	case "text/markdown", "text/x-markdown":
		return kindMarkdown, nil
	case "text/plain":
		return kindPlain, nil
	case "", "application/octet-stream":
		// Fall through to the extension.
	default:
		return "", errors.NewValidation("unsupported file type %q", mimeType)
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return kindPDF, nil
	case ".md", ".markdown":
		return kindMarkdown, nil
	case ".txt", ".text":
		return kindPlain, nil
	}
	return "", errors.NewValidation("unsupported file type for %q", filename)
}
