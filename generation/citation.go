package generation

import (
	"regexp"
	"strconv"
	"strings"

	"docchat/types"
)

const snippetLen = 200

var (
	citationRe = regexp.MustCompile(`\[Source:\s*([^,\]\n]+?),\s*Chunk\s*(\d+)\]`)
	markerRe   = regexp.MustCompile(`\s*\[Source:\s*[^,\]\n]+?,\s*Chunk\s*\d+\]`)
)

// ExtractCitations collects the distinct [Source: <name>, Chunk <n>] markers
// of answer in order of first appearance. Each citation carries a snippet of
// the matching chunk, or an empty one when the model cited something it was
// not given.
func ExtractCitations(answer string, chunks []types.RetrievedChunk) []types.Citation {
	type key struct {
		source  string
		chunkID int
	}

	citations := []types.Citation{}
	seen := make(map[key]struct{})
	for _, m := range citationRe.FindAllStringSubmatch(answer, -1) {
		id, err := strconv.Atoi(m[2])
		if err != nil {
			continue
		}
		k := key{strings.TrimSpace(m[1]), id}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}

		citations = append(citations, types.Citation{
			Source:  k.source,
			ChunkID: k.chunkID,
			Snippet: snippetFor(k.source, k.chunkID, chunks),
		})
	}
	return citations
}

// StripCitations removes every citation marker with its leading whitespace.
func StripCitations(answer string) string {
	return strings.TrimSpace(markerRe.ReplaceAllString(answer, ""))
}

// SourcesUsed lists the distinct sources of citations in first-seen order.
func SourcesUsed(citations []types.Citation) []string {
	sources := []string{}
	seen := make(map[string]struct{})
	for _, c := range citations {
		if _, ok := seen[c.Source]; ok {
			continue
		}
		seen[c.Source] = struct{}{}
		sources = append(sources, c.Source)
	}
	return sources
}

func snippetFor(source string, chunkID int, chunks []types.RetrievedChunk) string {
	for _, c := range chunks {
		if c.Source == source && c.ChunkID == chunkID {
			r := []rune(c.Content)
			if len(r) > snippetLen {
				r = r[:snippetLen]
			}
			return string(r)
		}
	}
	return ""
}
