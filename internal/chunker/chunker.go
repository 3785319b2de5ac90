// Package chunker splits document text into overlapping token windows for
// embedding. Chunking is pure and deterministic: the same text, tokenizer,
// and options always produce the same windows.
package chunker

import (
	"math"
	"strings"

	"github.com/givelift/recall/internal/errors"
)

// MaxChunkSize is the hard safety ceiling on the window size, independent of
// configuration.
const MaxChunkSize = 8192

// Tokenizer converts text to token ids and back.
type Tokenizer interface {
	Encode(text string) []int
	Decode(tokens []int) string
}

// Piece is one token window cut from a document's text.
type Piece struct {
	Ordinal    int
	Content    string
	TokenCount int
	StartToken int
	// PageEstimate interpolates the window's position across the document's
	// page count. Advisory only: there is no back-reference to real page
	// boundaries.
	PageEstimate *int
}

// Options control window geometry.
type Options struct {
	ChunkSize int
	Overlap   int
}

// Chunker slides a fixed-size token window over text.
type Chunker struct {
	tok  Tokenizer
	size int
	step int
}

// New validates the window geometry and returns a Chunker. Geometry errors
// are configuration mistakes and fail fast.
func New(tok Tokenizer, opts Options) (*Chunker, error) {
	if opts.ChunkSize <= 0 {
		return nil, errors.NewValidation("chunk size must be positive, got %d", opts.ChunkSize)
	}
	if opts.ChunkSize > MaxChunkSize {
		return nil, errors.NewValidation("chunk size %d exceeds ceiling %d", opts.ChunkSize, MaxChunkSize)
	}
	if opts.Overlap < 0 {
		return nil, errors.NewValidation("overlap must not be negative, got %d", opts.Overlap)
	}
	if opts.Overlap >= opts.ChunkSize {
		return nil, errors.NewValidation("overlap %d must be smaller than chunk size %d", opts.Overlap, opts.ChunkSize)
	}
	return &Chunker{
		tok:  tok,
		size: opts.ChunkSize,
		step: opts.ChunkSize - opts.Overlap,
	}, nil
}

// Chunk tokenizes text once and cuts it into windows of the configured size,
// advancing by size minus overlap tokens per step. Empty or whitespace-only
// input yields no pieces. pageCount <= 0 means the source page count is
// unknown and page estimates are omitted.
func (c *Chunker) Chunk(text string, pageCount int) []Piece {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	tokens := c.tok.Encode(text)
	total := len(tokens)
	if total == 0 {
		return nil
	}

	var pieces []Piece
	for start := 0; start < total; start += c.step {
		end := start + c.size
		if end > total {
			end = total
		}
		window := tokens[start:end]
		pieces = append(pieces, Piece{
			Ordinal:      len(pieces),
			Content:      strings.TrimSpace(c.tok.Decode(window)),
			TokenCount:   len(window),
			StartToken:   start,
			PageEstimate: estimatePage(start, total, pageCount),
		})
		if end == total {
			break
		}
	}
	return pieces
}

// estimatePage linearly interpolates a token position across the page count,
// clamped to [1, pageCount].
func estimatePage(start, total, pageCount int) *int {
	if pageCount <= 0 || total <= 0 {
		return nil
	}
	page := int(math.Ceil(float64(start) / float64(total) * float64(pageCount)))
	if page < 1 {
		page = 1
	}
	if page > pageCount {
		page = pageCount
	}
	return &page
}
