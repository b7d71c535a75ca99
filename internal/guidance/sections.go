package guidance

import (
	"bufio"
	"bytes"
	"strings"
)

// GeneralSection holds paragraphs that appear before the first heading or
// under a "## general" heading.
const GeneralSection = "general"

// parseSections splits Markdown into paragraphs grouped by "## " heading,
// keyed by the lower-cased heading text. Table rows and list items become
// standalone paragraphs; separator rows and "#" titles are dropped.
func parseSections(md []byte) (map[string][]string, error) {
	out := map[string][]string{}
	section := GeneralSection
	var para []string

	flush := func() {
		if len(para) == 0 {
			return
		}
		out[section] = append(out[section], strings.Join(para, " "))
		para = para[:0]
	}
	fact := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" {
			return
		}
		flush()
		out[section] = append(out[section], s)
	}

	sc := bufio.NewScanner(bytes.NewReader(md))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch {
		case line == "":
			flush()
		case strings.HasPrefix(line, "## "):
			flush()
			section = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(line, "## ")))
		case strings.HasPrefix(line, "#"):
			flush()
		case strings.HasPrefix(line, "|") && strings.HasSuffix(line, "|"):
			if row := tableRow(line); row != "" {
				fact(row)
			}
		case strings.HasPrefix(line, "- ") || strings.HasPrefix(line, "* "):
			fact(line[2:])
		default:
			para = append(para, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	flush()
	return out, nil
}

// tableRow joins the non-empty cells of a Markdown table row with spaces.
// Separator rows such as "| --- | :-: |" yield "".
func tableRow(line string) string {
	cols := strings.Split(strings.Trim(line, "|"), "|")
	cells := make([]string, 0, len(cols))
	allSep := true
	for _, c := range cols {
		cell := strings.TrimSpace(c)
		if cell == "" {
			continue
		}
		if strings.Trim(cell, ":-") != "" {
			allSep = false
		}
		cells = append(cells, cell)
	}
	if allSep {
		return ""
	}
	return strings.Join(cells, " ")
}
