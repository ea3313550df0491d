package service

import (
	"unicode/utf8"

	"docchat/types"
)

const separatorLen = 2 // elements of a chunk are joined by a blank line

type ChunkerConfig struct {
	MaxCharacters  int
	NewAfterNChars int
	Overlap        int
}

// Chunker groups elements into blocks by title: a title always opens a new
// block, a block is closed once it reaches NewAfterNChars and never grows
// past MaxCharacters. Text longer than MaxCharacters is cut into windows
// sharing Overlap characters. Tables are kept whole in blocks of their own.
type Chunker struct {
	cfg ChunkerConfig
}

func NewChunker(cfg ChunkerConfig) *Chunker {
	if cfg.MaxCharacters <= 0 {
		cfg.MaxCharacters = 1500
	}
	if cfg.NewAfterNChars <= 0 || cfg.NewAfterNChars > cfg.MaxCharacters {
		cfg.NewAfterNChars = cfg.MaxCharacters
	}
	if cfg.Overlap < 0 || cfg.Overlap >= cfg.MaxCharacters {
		cfg.Overlap = 0
	}
	return &Chunker{cfg: cfg}
}

func (c *Chunker) Chunk(elements []types.Element) []types.Block {
	var blocks []types.Block
	var cur []types.Element
	size := 0

	closeBlock := func() {
		if len(cur) > 0 {
			blocks = append(blocks, types.Block{Elements: cur})
		}
		cur = nil
		size = 0
	}
	add := func(e types.Element, n int) {
		if len(cur) > 0 {
			size += separatorLen
		}
		cur = append(cur, e)
		size += n
	}

	for _, e := range elements {
		n := elementLen(e)

		switch {
		case e.Kind == types.ElementTitle:
			closeBlock()
			add(e, n)
			continue

		case e.Kind == types.ElementTable:
			closeBlock()
			add(e, n)
			closeBlock()
			continue

		case e.Kind == types.ElementText && n > c.cfg.MaxCharacters:
			closeBlock()
			for _, part := range c.split(e.Text) {
				add(types.Element{Kind: types.ElementText, Text: part}, utf8.RuneCountInString(part))
				closeBlock()
			}
			continue
		}

		if len(cur) > 0 && size+separatorLen+n > c.cfg.MaxCharacters {
			closeBlock()
		}
		add(e, n)
		if size >= c.cfg.NewAfterNChars {
			closeBlock()
		}
	}
	closeBlock()
	return blocks
}

// split cuts text into windows of MaxCharacters runes, each starting
// Overlap runes before the end of the previous one.
func (c *Chunker) split(text string) []string {
	r := []rune(text)
	step := c.cfg.MaxCharacters - c.cfg.Overlap

	var parts []string
	for start := 0; start < len(r); start += step {
		end := start + c.cfg.MaxCharacters
		if end >= len(r) {
			parts = append(parts, string(r[start:]))
			break
		}
		parts = append(parts, string(r[start:end]))
	}
	return parts
}

// elementLen is the indexed text length of an element. Images carry no text.
func elementLen(e types.Element) int {
	if e.Kind == types.ElementImage {
		return 0
	}
	return utf8.RuneCountInString(e.Text)
}
