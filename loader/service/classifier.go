package service

import (
	"strings"

	"docchat/types"
)

const defaultImageMIME = "image/jpeg"

// Classify partitions the elements of a block into text, table markup and
// image payloads, and records which kinds are present.
func Classify(block types.Block) types.ContentParts {
	var text []string
	tables := []string{}
	images := []string{}
	var mimes []string
	kinds := make(map[types.ContentType]struct{})

	for _, e := range block.Elements {
		switch e.Kind {
		case types.ElementTable:
			kinds[types.ContentTable] = struct{}{}
			if e.TableHTML != "" {
				tables = append(tables, e.TableHTML)
			}
		case types.ElementImage:
			kinds[types.ContentImage] = struct{}{}
			if e.Image != "" {
				images = append(images, e.Image)
				mime := e.ImageMIME
				if mime == "" {
					mime = defaultImageMIME
				}
				mimes = append(mimes, mime)
			}
		default:
			kinds[types.ContentText] = struct{}{}
			text = append(text, e.Text)
		}
	}

	return types.ContentParts{
		Text:           strings.Join(text, "\n"),
		Tables:         tables,
		Images:         images,
		ImageMIMETypes: mimes,
		Types:          types.SortedTypes(kinds),
	}
}
