package bridge

import (
	"fmt"
	"strings"
)

// CommandDoc documents one command.
type CommandDoc struct {
	Name  string `json:"name" yaml:"name"`
	Usage string `json:"usage" yaml:"usage"`
}

// NamespaceDoc groups the commands of one namespace in display order.
type NamespaceDoc struct {
	Name     string       `json:"name" yaml:"name"`
	Commands []CommandDoc `json:"commands" yaml:"commands"`
}

// Catalog is the read-only command reference.
type Catalog struct {
	namespaces []NamespaceDoc
	index      map[string]bool
	nsIndex    map[string]bool
}

// NewCatalog builds a catalog from namespace docs.
func NewCatalog(docs []NamespaceDoc) *Catalog {
	c := &Catalog{
		index:   make(map[string]bool),
		nsIndex: make(map[string]bool),
	}
	for _, ns := range docs {
		cp := NamespaceDoc{Name: ns.Name, Commands: append([]CommandDoc(nil), ns.Commands...)}
		c.namespaces = append(c.namespaces, cp)
		c.nsIndex[ns.Name] = true
		for _, cmd := range ns.Commands {
			c.index[ns.Name+"."+cmd.Name] = true
		}
	}
	return c
}

// DefaultCatalog documents the default namespaces.
func DefaultCatalog() *Catalog {
	return NewCatalog(defaultDocs)
}

var defaultDocs = []NamespaceDoc{
	{Name: "FILE", Commands: []CommandDoc{
		{"NEW", `Create new file: FILE.NEW{name="file.txt", content="..."}`},
		{"OPEN", `Open file: FILE.OPEN{name="file.txt"}`},
		{"SAVE", `Save file: FILE.SAVE{name="file.txt", content="..."}`},
		{"DELETE", `Delete file: FILE.DELETE{name="file.txt"}`},
		{"LIST", `List files: FILE.LIST{directory="."}`},
	}},
	{Name: "MESH", Commands: []CommandDoc{
		{"SEND", `Send message: MESH.SEND{device="node2", message="hello"}`},
		{"BROADCAST", `Broadcast: MESH.BROADCAST{message="hello"}`},
		{"DEVICES", `List devices: MESH.DEVICES()`},
		{"PAIR", `Pair device: MESH.PAIR{device="node2"}`},
	}},
	{Name: "PROMPT", Commands: []CommandDoc{
		{"ASK", `Ask user input: PROMPT.ASK{text="Enter name:"}`},
		{"CONFIRM", `Confirm yes/no: PROMPT.CONFIRM{text="Continue?"}`},
		{"CHOOSE", `Choose option: PROMPT.CHOOSE{options={"a", "b", "c"}}`},
	}},
	{Name: "STATE", Commands: []CommandDoc{
		{"GET", `Get state: STATE.GET{key="variable"}`},
		{"SET", `Set state: STATE.SET{key="variable", value=123}`},
		{"DELETE", `Delete state: STATE.DELETE{key="variable"}`},
	}},
	{Name: "LOG", Commands: []CommandDoc{
		{"INFO", `Log info: LOG.INFO{message="Status update"}`},
		{"WARN", `Log warning: LOG.WARN{message="Warning"}`},
		{"ERROR", `Log error: LOG.ERROR{message="Error occurred"}`},
		{"DEBUG", `Log debug: LOG.DEBUG{message="Debug info"}`},
	}},
}

// Has reports whether "NS.METHOD" is documented.
func (c *Catalog) Has(command string) bool {
	return c.index[command]
}

// IsNamespace reports whether name is a documented namespace.
func (c *Catalog) IsNamespace(name string) bool {
	return c.nsIndex[name]
}

// Namespaces returns a copy of all namespace docs.
func (c *Catalog) Namespaces() []NamespaceDoc {
	out := make([]NamespaceDoc, len(c.namespaces))
	for i, ns := range c.namespaces {
		out[i] = NamespaceDoc{Name: ns.Name, Commands: append([]CommandDoc(nil), ns.Commands...)}
	}
	return out
}

// Help renders the reference for one namespace, or all when namespace is empty.
func (c *Catalog) Help(namespace string) (string, error) {
	var b strings.Builder
	if namespace != "" {
		for _, ns := range c.namespaces {
			if ns.Name == namespace {
				fmt.Fprintf(&b, "%s commands:\n", ns.Name)
				for _, cmd := range ns.Commands {
					fmt.Fprintf(&b, "  %s\n", cmd.Usage)
				}
				return b.String(), nil
			}
		}
		return "", fmt.Errorf("unknown namespace: %s", namespace)
	}

	b.WriteString("Command reference:\n")
	for _, ns := range c.namespaces {
		fmt.Fprintf(&b, "\n%s:\n", ns.Name)
		for _, cmd := range ns.Commands {
			fmt.Fprintf(&b, "  %s\n", cmd.Usage)
		}
	}
	return b.String(), nil
}
