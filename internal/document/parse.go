package document

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Ext is the file extension of documents.
const Ext = ".md"

// ScriptLanguages are the fence info strings treated as scripts.
var ScriptLanguages = []string{"lua", "script"}

// ParseError reports a malformed document.
type ParseError struct {
	Line    int
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Message)
}

// Load reads and parses a document from disk.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	d, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	d.Path = path
	return d, nil
}

// Parse parses document content.
func Parse(data []byte) (*Document, error) {
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	lines := strings.SplitAfter(text, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}

	d := &Document{}
	i := 0

	if len(lines) > 0 && strings.TrimSpace(lines[0]) == "---" {
		end := -1
		for j := 1; j < len(lines); j++ {
			if strings.TrimSpace(lines[j]) == "---" {
				end = j
				break
			}
		}
		if end > 0 {
			fm := strings.Join(lines[1:end], "")
			if err := yaml.Unmarshal([]byte(fm), &d.Meta); err != nil {
				return nil, &ParseError{Line: 1, Message: "invalid frontmatter: " + err.Error()}
			}
			d.hasFrontmatter = true
			i = end + 1
		}
	}

	var buf strings.Builder
	flushText := func() {
		if buf.Len() > 0 {
			d.segments = append(d.segments, segment{kind: segText, text: buf.String()})
			buf.Reset()
		}
	}

	for i < len(lines) {
		line := lines[i]
		info, isFence := fenceInfo(line)
		if !isFence {
			buf.WriteString(line)
			i++
			continue
		}

		start := i + 1 // 1-based line of the opening fence
		body, next, closed := fenceBody(lines, i+1)
		switch {
		case isScriptLang(info):
			if !closed {
				return nil, &ParseError{Line: start, Message: "unterminated script block"}
			}
			flushText()
			d.scripts = append(d.scripts, Script{Index: len(d.scripts), Line: start, Code: body})
			d.segments = append(d.segments, segment{kind: segScript, text: info, index: len(d.scripts) - 1})
		case info == "state":
			if !closed {
				return nil, &ParseError{Line: start, Message: "unterminated state block"}
			}
			data := map[string]any{}
			if strings.TrimSpace(body) != "" {
				if err := json.Unmarshal([]byte(body), &data); err != nil {
					return nil, &ParseError{Line: start, Message: "invalid state block: " + err.Error()}
				}
			}
			flushText()
			d.states = append(d.states, data)
			d.segments = append(d.segments, segment{kind: segState, text: info, index: len(d.states) - 1})
		default:
			if info == "map" && closed {
				d.maps = append(d.maps, parseMap(body, start))
			}
			for _, l := range lines[i:next] {
				buf.WriteString(l)
			}
		}
		i = next
	}
	flushText()

	return d, nil
}

// fenceInfo returns the info string of an opening ``` fence.
func fenceInfo(line string) (string, bool) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "```") {
		return "", false
	}
	return strings.TrimSpace(strings.TrimPrefix(trimmed, "```")), true
}

// fenceBody collects lines from start up to the closing fence. next is the
// index after the closing fence.
func fenceBody(lines []string, start int) (body string, next int, closed bool) {
	var b strings.Builder
	for j := start; j < len(lines); j++ {
		if strings.TrimSpace(lines[j]) == "```" {
			return b.String(), j + 1, true
		}
		b.WriteString(lines[j])
	}
	return b.String(), len(lines), false
}

func isScriptLang(info string) bool {
	for _, l := range ScriptLanguages {
		if info == l {
			return true
		}
	}
	return false
}

// parseMap splits an optional "TILE:AB12 NAME:Dock ZONE:UTC" header line
// from the map art.
func parseMap(body string, line int) MapTile {
	m := MapTile{Line: line}
	rows := strings.Split(body, "\n")
	if first := strings.TrimSpace(rows[0]); strings.Contains(first, ":") && !strings.HasPrefix(first, "│") {
		m.Metadata = map[string]string{}
		for _, part := range strings.Fields(first) {
			if k, v, ok := strings.Cut(part, ":"); ok {
				m.Metadata[strings.ToLower(k)] = v
			}
		}
		m.Tile = m.Metadata["tile"]
		m.Name = m.Metadata["name"]
		m.Zone = m.Metadata["zone"]
		rows = rows[1:]
	}
	m.ASCII = strings.TrimSpace(strings.Join(rows, "\n"))
	return m
}
