package model

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

type TokenCounter interface {
	Count(text string) int
}

// TiktokenCounter approximates prompt size with the cl100k encoding. The
// encoding is loaded lazily on first use.
type TiktokenCounter struct {
	once sync.Once
	enc  *tiktoken.Tiktoken
	err  error
}

func NewTiktokenCounter() *TiktokenCounter {
	return &TiktokenCounter{}
}

// Count returns -1 when the encoding could not be loaded.
func (c *TiktokenCounter) Count(text string) int {
	c.once.Do(func() {
		c.enc, c.err = tiktoken.EncodingForModel("gpt-3.5-turbo")
		if c.err != nil {
			c.err = fmt.Errorf("load tiktoken encoding: %w", c.err)
		}
	})
	if c.err != nil {
		return -1
	}
	return len(c.enc.Encode(text, nil, nil))
}

func (c *TiktokenCounter) Err() error { return c.err }

// CountMessages sums the token counts of all message contents.
func CountMessages(tc TokenCounter, messages []Message) int {
	total := 0
	for _, m := range messages {
		n := tc.Count(m.Content)
		if n < 0 {
			return -1
		}
		total += n
	}
	return total
}
