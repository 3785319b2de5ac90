package chunker

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

type bpeTokenizer struct {
	enc *tiktoken.Tiktoken
}

// NewTiktoken returns a Tokenizer backed by the named BPE encoding
// (e.g. "cl100k_base", the encoding of the text-embedding-3 family).
func NewTiktoken(encoding string) (Tokenizer, error) {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("failed to load token encoding %q: %w", encoding, err)
	}
	return &bpeTokenizer{enc: enc}, nil
}

func (b *bpeTokenizer) Encode(text string) []int {
	return b.enc.Encode(text, nil, nil)
}

func (b *bpeTokenizer) Decode(tokens []int) string {
	return b.enc.Decode(tokens)
}

var _ Tokenizer = (*bpeTokenizer)(nil)
