package chat

import (
	"fmt"

	"github.com/tiktoken-go/tokenizer"
)

// TokenCounter counts model tokens in a piece of text.
type TokenCounter interface {
	Count(text string) (int, error)
}

type tiktokenCounter struct {
	codec tokenizer.Codec
}

// NewTokenCounter returns a counter using the o200k_base encoding.
func NewTokenCounter() (TokenCounter, error) {
	codec, err := tokenizer.Get(tokenizer.O200kBase)
	if err != nil {
		return nil, fmt.Errorf("failed to load tokenizer: %w", err)
	}
	return tiktokenCounter{codec: codec}, nil
}

func (c tiktokenCounter) Count(text string) (int, error) {
	ids, _, err := c.codec.Encode(text)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}
