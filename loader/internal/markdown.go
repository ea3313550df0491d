package internal

import (
	"html"
	"regexp"
	"strings"

	"docchat/types"
)

var (
	imgRegex     = regexp.MustCompile(`!\[[^\]]*\]\(data:(image\/[a-zA-Z+.-]+);base64,([^)]+)\)`)
	headingRegex = regexp.MustCompile(`^\s{0,3}(#{1,6})\s+(.+?)\s*#*\s*$`)
)

// TokenizeMD splits docling markdown into typed elements: headings become
// titles, pipe tables become tables rendered as HTML, inline data-URI
// pictures become images and blank-line separated paragraphs become text.
func TokenizeMD(md string) []types.Element {
	lines := strings.Split(strings.ReplaceAll(md, "\r\n", "\n"), "\n")
	var elements []types.Element

	var buf strings.Builder
	flushText := func() {
		if text := strings.TrimSpace(buf.String()); text != "" {
			elements = append(elements, types.Element{Kind: types.ElementText, Text: text})
		}
		buf.Reset()
	}

	for i := 0; i < len(lines); i++ {
		line := lines[i]

		// -------- TABLE --------
		if isTableRow(line) {
			if end, ok := tableEnd(lines, i); ok {
				flushText()
				elements = append(elements, tableElement(lines[i:end]))
				i = end - 1
				continue
			}
		}

		// -------- IMAGE --------
		if imgRegex.MatchString(line) {
			flushText()
			for _, m := range imgRegex.FindAllStringSubmatch(line, -1) {
				elements = append(elements, types.Element{Kind: types.ElementImage, Image: m[2], ImageMIME: m[1]})
			}
			if rest := strings.TrimSpace(imgRegex.ReplaceAllString(line, "")); rest != "" {
				buf.WriteString(rest)
				buf.WriteString("\n")
			}
			continue
		}

		// -------- TITLE --------
		if m := headingRegex.FindStringSubmatch(line); m != nil {
			flushText()
			elements = append(elements, types.Element{Kind: types.ElementTitle, Text: m[2]})
			continue
		}

		// -------- TEXT --------
		if strings.TrimSpace(line) == "" {
			flushText()
			continue
		}
		buf.WriteString(line)
		buf.WriteString("\n")
	}

	flushText()
	return elements
}

// tableEnd returns the index after the run of table rows starting at start,
// provided the run contains a separator row.
func tableEnd(lines []string, start int) (int, bool) {
	i := start
	hasSeparator := false
	for i < len(lines) && isTableRow(lines[i]) {
		if isSeparatorRow(lines[i]) {
			hasSeparator = true
		}
		i++
	}
	return i, hasSeparator
}

// tableElement renders a pipe table as HTML. Rows above the separator form
// the header. The element text is the plain cell content.
func tableElement(rows []string) types.Element {
	var header, body [][]string
	seenSeparator := false
	for _, row := range rows {
		if isSeparatorRow(row) {
			seenSeparator = true
			continue
		}
		if seenSeparator {
			body = append(body, splitRow(row))
		} else {
			header = append(header, splitRow(row))
		}
	}

	var h, t strings.Builder
	h.WriteString("<table>")
	if len(header) > 0 {
		h.WriteString("<thead>")
		for _, cells := range header {
			writeRow(&h, &t, "th", cells)
		}
		h.WriteString("</thead>")
	}
	h.WriteString("<tbody>")
	for _, cells := range body {
		writeRow(&h, &t, "td", cells)
	}
	h.WriteString("</tbody></table>")

	return types.Element{
		Kind:      types.ElementTable,
		Text:      strings.TrimSpace(t.String()),
		TableHTML: h.String(),
	}
}

func writeRow(h, t *strings.Builder, tag string, cells []string) {
	h.WriteString("<tr>")
	for _, c := range cells {
		h.WriteString("<" + tag + ">")
		h.WriteString(html.EscapeString(c))
		h.WriteString("</" + tag + ">")
	}
	h.WriteString("</tr>")
	t.WriteString(strings.Join(cells, " "))
	t.WriteString("\n")
}

func isTableRow(line string) bool {
	line = strings.TrimSpace(line)
	return strings.HasPrefix(line, "|") && strings.Count(line, "|") >= 2
}

func isSeparatorRow(line string) bool {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "|") || !strings.Contains(line, "---") {
		return false
	}
	return strings.Trim(line, "|-: ") == ""
}

func splitRow(line string) []string {
	line = strings.TrimSpace(line)
	line = strings.TrimPrefix(line, "|")
	line = strings.TrimSuffix(line, "|")
	parts := strings.Split(line, "|")
	cells := make([]string, len(parts))
	for i, p := range parts {
		cells[i] = strings.TrimSpace(p)
	}
	return cells
}
