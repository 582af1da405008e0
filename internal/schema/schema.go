// Package schema holds the request-scoped schema context retrieved for
// one question and the allow-list derived from it. Both are transient:
// nothing here outlives the request.
package schema

import (
	"fmt"
	"sort"
	"strings"
)

type Column struct {
	Name        string `json:"name"`
	Type        string `json:"type,omitempty"`
	Description string `json:"description,omitempty"`
}

// Entry is one retrievable schema element: a table or view with its
// described columns, plus the similarity score assigned at retrieval.
type Entry struct {
	Object      string   `json:"object"`
	Kind        string   `json:"kind"`
	Description string   `json:"description,omitempty"`
	Columns     []Column `json:"columns,omitempty"`
	Similarity  float64  `json:"similarity"`
}

// Context is the ranked schema context for one request, ordered by
// similarity descending.
type Context []Entry

func (c Context) Empty() bool {
	return len(c) == 0
}

// PromptText renders the context the way the generator prompt expects
// it: one block per object with its described columns.
func (c Context) PromptText() string {
	if len(c) == 0 {
		return ""
	}
	var b strings.Builder
	for i, entry := range c {
		if i > 0 {
			b.WriteString("\n")
		}
		kind := entry.Kind
		if kind == "" {
			kind = "table"
		}
		fmt.Fprintf(&b, "%s %s", strings.ToUpper(kind), entry.Object)
		if entry.Description != "" {
			fmt.Fprintf(&b, " - %s", entry.Description)
		}
		b.WriteString("\n")
		for _, col := range entry.Columns {
			fmt.Fprintf(&b, "  - %s", col.Name)
			if col.Type != "" {
				fmt.Fprintf(&b, " (%s)", col.Type)
			}
			if col.Description != "" {
				fmt.Fprintf(&b, ": %s", col.Description)
			}
			b.WriteString("\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// AllowedObjects is the allow-list the validator trusts: the tables and
// table.column identifiers present verbatim in one request's context.
type AllowedObjects struct {
	tables  map[string]struct{}
	columns map[string]struct{}
}

// Derive extracts identifiers from the context. It is pure and performs
// no inference: only objects spelled out in the context are allowed. An
// empty context yields an empty set, which rejects everything.
func Derive(ctx Context) AllowedObjects {
	allowed := AllowedObjects{
		tables:  make(map[string]struct{}),
		columns: make(map[string]struct{}),
	}
	for _, entry := range ctx {
		table := normalizeIdent(entry.Object)
		if table == "" {
			continue
		}
		allowed.tables[table] = struct{}{}
		// A schema-qualified object is also addressable by its bare name.
		if idx := strings.LastIndex(table, "."); idx >= 0 {
			allowed.tables[table[idx+1:]] = struct{}{}
		}
		for _, col := range entry.Columns {
			name := normalizeIdent(col.Name)
			if name == "" {
				continue
			}
			allowed.columns[name] = struct{}{}
		}
	}
	return allowed
}

func (a AllowedObjects) Empty() bool {
	return len(a.tables) == 0
}

func (a AllowedObjects) HasTable(name string) bool {
	_, ok := a.tables[normalizeIdent(name)]
	return ok
}

func (a AllowedObjects) HasColumn(name string) bool {
	_, ok := a.columns[normalizeIdent(name)]
	return ok
}

// Tables returns the allowed table identifiers sorted, for prompts and
// error messages.
func (a AllowedObjects) Tables() []string {
	names := make([]string, 0, len(a.tables))
	for name := range a.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func normalizeIdent(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
