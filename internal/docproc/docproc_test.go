package docproc

import (
	"context"
	stderrors "errors"
	"strings"
	"testing"

	"github.com/givelift/recall/internal/errors"
)

var errContrived = stderrors.New("contrived failure")

func TestMarkdownToTextDropsMarkup(t *testing.T) {
	source := []byte(`# Annual Gala

Our **biggest** fundraiser of the [year](https://example.org).

- Invite donors
- Book venue

` + "```go\nfmt.Println(\"hi\")\n```\n")

	out := MarkdownToText(source)

	for _, want := range []string{
		"Annual Gala",
		"Our biggest fundraiser of the year.",
		"Invite donors",
		"Book venue",
		`fmt.Println("hi")`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected output to contain %q, got:\n%s", want, out)
		}
	}
	for _, banned := range []string{"#", "**", "](", "```"} {
		if strings.Contains(out, banned) {
			t.Fatalf("expected markup %q to be stripped, got:\n%s", banned, out)
		}
	}
	if strings.Contains(out, "https://example.org") {
		t.Fatalf("expected link destination to be dropped, got:\n%s", out)
	}
}

func TestMarkdownToTextDropsRawHTML(t *testing.T) {
	out := MarkdownToText([]byte("<div class=\"x\">ignored</div>\n\nKept paragraph.\n"))
	if strings.Contains(out, "<div") {
		t.Fatalf("expected html to be dropped, got:\n%s", out)
	}
	if !strings.Contains(out, "Kept paragraph.") {
		t.Fatalf("expected surrounding text to survive, got:\n%s", out)
	}
}

func TestProcessPlainText(t *testing.T) {
	p := NewProcessor(nil)
	text := "  The development director thanked every major donor personally after the spring campaign.  "

	extraction, err := p.Process(context.Background(), "text/plain; charset=utf-8", "notes.txt", []byte(text))
	if err != nil {
		t.Fatalf("Process returned error: %v", err)
	}
	if extraction.Text != strings.TrimSpace(text) {
		t.Fatalf("expected trimmed passthrough, got %q", extraction.Text)
	}
	if extraction.WordCount != 12 {
		t.Fatalf("expected 12 words, got %d", extraction.WordCount)
	}
	if extraction.PageCount != nil {
		t.Fatalf("expected no page count for text, got %v", *extraction.PageCount)
	}
	if extraction.Language != "en" {
		t.Fatalf("expected language en, got %q", extraction.Language)
	}
}

func TestProcessDetectsSpanish(t *testing.T) {
	p := NewProcessor(nil)
	text := "La directora de desarrollo agradeció personalmente a cada donante importante después de la campaña de primavera."

	extraction, err := p.Process(context.Background(), "text/plain", "notas.txt", []byte(text))
	if err != nil {
		t.Fatalf("Process returned error: %v", err)
	}
	if extraction.Language != "es" {
		t.Fatalf("expected language es, got %q", extraction.Language)
	}
}

func TestProcessMarkdownByExtensionFallback(t *testing.T) {
	p := NewProcessor(nil)

	extraction, err := p.Process(context.Background(), "application/octet-stream", "plan.md", []byte("# Plan\n\nRaise funds.\n"))
	if err != nil {
		t.Fatalf("Process returned error: %v", err)
	}
	if strings.Contains(extraction.Text, "#") {
		t.Fatalf("expected markdown to be flattened, got %q", extraction.Text)
	}
	if !strings.Contains(extraction.Text, "Plan") || !strings.Contains(extraction.Text, "Raise funds.") {
		t.Fatalf("unexpected text: %q", extraction.Text)
	}
}

func TestProcessRejectsUnsupportedTypes(t *testing.T) {
	p := NewProcessor(nil)
	cases := []struct {
		name     string
		mime     string
		filename string
	}{
		{"archive", "application/zip", "backup.zip"},
		{"image", "image/png", "logo.png"},
		{"unknown extension", "", "data.bin"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := p.Process(context.Background(), tc.mime, tc.filename, []byte("x"))
			if !errors.Is(err, errors.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if SupportedMIME(tc.mime, tc.filename) {
				t.Fatalf("expected %q/%q to be unsupported", tc.mime, tc.filename)
			}
		})
	}
}

func TestProcessRejectsEmptyAndBlankFiles(t *testing.T) {
	p := NewProcessor(nil)

	if _, err := p.Process(context.Background(), "text/plain", "empty.txt", nil); !errors.Is(err, errors.ErrValidation) {
		t.Fatalf("expected validation error for empty file, got %v", err)
	}
	if _, err := p.Process(context.Background(), "text/plain", "blank.txt", []byte("  \n \t ")); !errors.Is(err, errors.ErrValidation) {
		t.Fatalf("expected validation error for blank file, got %v", err)
	}
}

func TestProcessPDFThroughConverter(t *testing.T) {
	converter := &fakeConverter{markdown: "# Impact Report\n\nWe served 4,000 families."}
	p := NewProcessor(converter)
	p.pages = func(data []byte) (int, error) { return 12, nil }

	extraction, err := p.Process(context.Background(), "application/pdf", "report.pdf", []byte("%PDF-1.7 stub"))
	if err != nil {
		t.Fatalf("Process returned error: %v", err)
	}
	if extraction.PageCount == nil || *extraction.PageCount != 12 {
		t.Fatalf("expected page count 12, got %v", extraction.PageCount)
	}
	if !strings.Contains(extraction.Text, "Impact Report") || !strings.Contains(extraction.Text, "We served 4,000 families.") {
		t.Fatalf("unexpected text: %q", extraction.Text)
	}
	if converter.gotFilename != "report.pdf" {
		t.Fatalf("expected converter to get the filename, got %q", converter.gotFilename)
	}
	if string(converter.gotData) != "%PDF-1.7 stub" {
		t.Fatalf("expected converter to get the raw bytes, got %q", converter.gotData)
	}
}

func TestProcessPDFWithUnreadableStructure(t *testing.T) {
	p := NewProcessor(&fakeConverter{})
	p.pages = func(data []byte) (int, error) { return 0, errContrived }

	_, err := p.Process(context.Background(), "application/pdf", "broken.pdf", []byte("not a pdf"))
	if !errors.Is(err, errors.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestProcessPDFWithoutConverterConfigured(t *testing.T) {
	p := NewProcessor(nil)
	p.pages = func(data []byte) (int, error) { return 3, nil }

	_, err := p.Process(context.Background(), "application/pdf", "report.pdf", []byte("%PDF"))
	if !errors.Is(err, errors.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestProcessSurfacesConverterFailures(t *testing.T) {
	converter := &fakeConverter{err: errContrived}
	p := NewProcessor(converter)
	p.pages = func(data []byte) (int, error) { return 3, nil }

	_, err := p.Process(context.Background(), "application/pdf", "report.pdf", []byte("%PDF"))
	if err == nil || errors.Is(err, errors.ErrValidation) {
		t.Fatalf("expected the converter error to surface as-is, got %v", err)
	}
}

type fakeConverter struct {
	markdown    string
	err         error
	gotFilename string
	gotData     []byte
}

func (f *fakeConverter) Convert(_ context.Context, filename string, data []byte) (string, error) {
	f.gotFilename = filename
	f.gotData = data
	if f.err != nil {
		return "", f.err
	}
	return f.markdown, nil
}

var _ Converter = (*fakeConverter)(nil)
