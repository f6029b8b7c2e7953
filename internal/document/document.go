// Package document parses markdown documents that carry YAML frontmatter,
// fenced Lua scripts and fenced JSON state blocks.
package document

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Metadata is the YAML frontmatter.
type Metadata struct {
	Title       string         `yaml:"title,omitempty" json:"title,omitempty"`
	Author      string         `yaml:"author,omitempty" json:"author,omitempty"`
	Permissions []string       `yaml:"permissions,omitempty" json:"permissions,omitempty"`
	Tags        []string       `yaml:"tags,omitempty" json:"tags,omitempty"`
	Extra       map[string]any `yaml:",inline" json:"extra,omitempty"`
}

// Script is one fenced script block.
type Script struct {
	Index int    `json:"index"`
	Line  int    `json:"line"` // line of the opening fence
	Code  string `json:"code"`
}

// MapTile is one fenced map block. An optional first line of KEY:value
// pairs (TILE, NAME, ZONE, ...) is split off as metadata.
type MapTile struct {
	Line     int               `json:"line"`
	Tile     string            `json:"tile,omitempty"`
	Name     string            `json:"name,omitempty"`
	Zone     string            `json:"zone,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
	ASCII    string            `json:"ascii"`
}

type segmentKind int

const (
	segText segmentKind = iota
	segScript
	segState
)

type segment struct {
	kind  segmentKind
	text  string // raw lines for text segments, fence info for others
	index int    // into scripts or states
}

// Document is a parsed markdown document. State accessors are safe for
// concurrent use.
type Document struct {
	Path string
	Meta Metadata

	hasFrontmatter bool
	segments       []segment
	scripts        []Script
	maps           []MapTile

	mu     sync.Mutex
	states []map[string]any
}

// Scripts returns the script blocks in document order.
func (d *Document) Scripts() []Script {
	return append([]Script(nil), d.scripts...)
}

// Maps returns the map blocks in document order. They are kept verbatim
// by Render.
func (d *Document) Maps() []MapTile {
	return append([]MapTile(nil), d.maps...)
}

// Permissions returns the frontmatter permissions.
func (d *Document) Permissions() []string {
	return append([]string(nil), d.Meta.Permissions...)
}

// HasPermissions reports whether every name in required is granted.
func (d *Document) HasPermissions(required ...string) bool {
	for _, r := range required {
		if !slices.Contains(d.Meta.Permissions, r) {
			return false
		}
	}
	return true
}

// Get returns the value of key from the first state block holding it.
func (d *Document) Get(key string, def any) (any, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, sb := range d.states {
		if v, ok := sb[key]; ok {
			return v, nil
		}
	}
	return def, nil
}

// Set stores key in the first state block, creating one if needed.
func (d *Document) Set(key string, value any) error {
	if _, err := json.Marshal(value); err != nil {
		return fmt.Errorf("state value for %q is not JSON: %w", key, err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.states) == 0 {
		d.states = append(d.states, map[string]any{})
		d.segments = append(d.segments, segment{kind: segState, text: "state", index: 0})
	}
	d.states[0][key] = value
	return nil
}

// Delete removes key from every state block.
func (d *Document) Delete(key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, sb := range d.states {
		delete(sb, key)
	}
	return nil
}

// State returns a merged copy of all state blocks; earlier blocks win.
func (d *Document) State() map[string]any {
	d.mu.Lock()
	defer d.mu.Unlock()
	merged := map[string]any{}
	for i := len(d.states) - 1; i >= 0; i-- {
		for k, v := range d.states[i] {
			merged[k] = v
		}
	}
	return merged
}

// Render writes the document back to markdown. Text and scripts are kept
// as parsed; state blocks reflect the current state.
func (d *Document) Render() ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var b bytes.Buffer
	if d.hasFrontmatter || !isZeroMeta(d.Meta) {
		fm, err := yaml.Marshal(d.Meta)
		if err != nil {
			return nil, fmt.Errorf("render frontmatter: %w", err)
		}
		b.WriteString("---\n")
		b.Write(fm)
		b.WriteString("---\n")
	}

	for _, seg := range d.segments {
		switch seg.kind {
		case segText:
			b.WriteString(seg.text)
		case segScript:
			fmt.Fprintf(&b, "```%s\n", seg.text)
			code := d.scripts[seg.index].Code
			b.WriteString(code)
			if code != "" && !strings.HasSuffix(code, "\n") {
				b.WriteByte('\n')
			}
			b.WriteString("```\n")
		case segState:
			data, err := json.MarshalIndent(d.states[seg.index], "", "  ")
			if err != nil {
				return nil, fmt.Errorf("render state block: %w", err)
			}
			if b.Len() > 0 && !bytes.HasSuffix(b.Bytes(), []byte("\n")) {
				b.WriteByte('\n')
			}
			b.WriteString("```state\n")
			b.Write(data)
			b.WriteString("\n```\n")
		}
	}
	return b.Bytes(), nil
}

func isZeroMeta(m Metadata) bool {
	return m.Title == "" && m.Author == "" && len(m.Permissions) == 0 && len(m.Tags) == 0 && len(m.Extra) == 0
}
