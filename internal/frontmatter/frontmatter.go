// Package frontmatter splits and joins the metadata block delimited by
// --- fences at the head of a Markdown document.
package frontmatter

import (
	"strings"
)

const fence = "---"

// Document holds the output of splitting a Markdown source.
type Document struct {
	Meta Meta
	Body string
}

// Parse separates the front-matter block from the body.
//
// A source that does not begin with the fence, or whose opening fence is
// never closed, is treated as having no front matter: the whole input
// becomes the body unchanged. Inside the block, lines without a colon are
// skipped; each remaining line splits on its first colon into a trimmed
// key and a trimmed value. Values wrapped in [ ] parse as comma-separated
// lists with empty elements dropped. Everything else stays a string.
func Parse(source string) Document {
	if !strings.HasPrefix(source, fence) {
		return Document{Body: source}
	}

	end := strings.Index(source[len(fence):], fence)
	if end < 0 {
		// Unterminated block is not an error, just body.
		return Document{Body: source}
	}
	end += len(fence)

	block := strings.TrimSpace(source[len(fence):end])
	body := strings.TrimSpace(source[end+len(fence):])

	var meta Meta
	for _, line := range strings.Split(block, "\n") {
		idx := strings.Index(line, ":")
		if idx < 0 {
			continue
		}
		key := strings.TrimSpace(line[:idx])
		if key == "" {
			continue
		}
		raw := strings.TrimSpace(line[idx+1:])
		meta.Set(key, parseValue(raw))
	}

	return Document{Meta: meta, Body: body}
}

// parseValue interprets [a, b, c] as a list, anything else as a scalar.
// No type coercion: numbers and booleans remain strings.
func parseValue(raw string) Value {
	if strings.HasPrefix(raw, "[") && strings.HasSuffix(raw, "]") {
		var items []string
		for _, item := range strings.Split(raw[1:len(raw)-1], ",") {
			item = strings.TrimSpace(item)
			if item == "" {
				continue
			}
			items = append(items, item)
		}
		return List(items...)
	}
	return String(raw)
}

// Serialize joins meta and body back into a fenced document.
//
// Values are interpolated without quoting or escaping; callers must
// ensure metadata values contain no raw newline and no bare fence.
func Serialize(meta Meta, body string) string {
	lines := []string{fence}
	for _, key := range meta.Keys() {
		v, _ := meta.Get(key)
		if v.IsList() {
			lines = append(lines, key+": ["+strings.Join(v.Items(), ", ")+"]")
		} else {
			lines = append(lines, key+": "+v.Scalar())
		}
	}
	lines = append(lines, fence, "", body)
	return strings.Join(lines, "\n")
}
