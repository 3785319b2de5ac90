package docproc

import (
	"bytes"
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// pdfPageCount validates the PDF structure and returns its page count.
func pdfPageCount(data []byte) (int, error) {
	count, err := api.PageCount(bytes.NewReader(data), model.NewDefaultConfiguration())
	if err != nil {
		return 0, fmt.Errorf("failed to read PDF: %w", err)
	}
	if count <= 0 {
		return 0, fmt.Errorf("PDF has no pages")
	}
	return count, nil
}
