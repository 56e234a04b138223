// Package schema models a Notion database's columns and translates them in
// both directions: outbound into a JSON Schema that constrains model output,
// and inbound from a validated record into Notion property values.
package schema

import (
	"fmt"
	"sort"
)

// Kind is the closed set of Notion property types the translators know about.
type Kind int

const (
	KindUnsupported Kind = iota
	KindTitle
	KindRichText
	KindURL
	KindNumber
	KindCheckbox
	KindSelect
	KindMultiSelect
)

var kindTags = map[string]Kind{
	"title":        KindTitle,
	"rich_text":    KindRichText,
	"url":          KindURL,
	"number":       KindNumber,
	"checkbox":     KindCheckbox,
	"select":       KindSelect,
	"multi_select": KindMultiSelect,
}

// ParseKind maps a Notion property type tag to a Kind. Tags outside the
// supported set map to KindUnsupported.
func ParseKind(tag string) Kind {
	if k, ok := kindTags[tag]; ok {
		return k
	}
	return KindUnsupported
}

func (k Kind) String() string {
	for tag, kind := range kindTags {
		if kind == k {
			return tag
		}
	}
	return "unsupported"
}

// IsChoice reports whether values of this kind are constrained to an option set.
func (k Kind) IsChoice() bool {
	return k == KindSelect || k == KindMultiSelect
}

// Property is a single column definition.
type Property struct {
	Name string
	// Type is the raw Notion type tag, reported by Skipped for unsupported columns.
	Type    string
	Kind    Kind
	Options []string
}

// Supported reports whether the property takes part in extraction. Choice
// columns without any options cannot accept a value and are left out.
func (p Property) Supported() bool {
	if p.Kind == KindUnsupported || p.Name == "" {
		return false
	}
	if p.Kind.IsChoice() && len(p.Options) == 0 {
		return false
	}
	return true
}

// Database is the schema of a Notion database as read for one request.
type Database struct {
	ID         string
	Title      string
	Properties []Property
}

// NewDatabase builds a Database with properties sorted by name so that the
// derived schema and prompt are stable across requests.
func NewDatabase(id, title string, props []Property) Database {
	sorted := make([]Property, len(props))
	copy(sorted, props)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Name < sorted[j].Name
	})
	return Database{ID: id, Title: title, Properties: sorted}
}

// Supported returns the properties that take part in extraction, in order.
func (d Database) Supported() []Property {
	var props []Property
	for _, p := range d.Properties {
		if p.Supported() {
			props = append(props, p)
		}
	}
	return props
}

// Skipped describes the properties left out of extraction as "name (type)".
func (d Database) Skipped() []string {
	var names []string
	for _, p := range d.Properties {
		if !p.Supported() {
			tag := p.Type
			if tag == "" {
				tag = p.Kind.String()
			}
			names = append(names, fmt.Sprintf("%s (%s)", p.Name, tag))
		}
	}
	return names
}

// Record is an extracted row: property name to decoded JSON value.
type Record map[string]any
