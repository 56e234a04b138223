package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
)

// ErrNotObject is returned when model output is valid JSON but not an object.
var ErrNotObject = errors.New("extracted value is not a JSON object")

// Field returns the validator for a single property and whether the property
// must be present. ok is false for properties that produce no field.
func Field(p Property) (field *jsonschema.Schema, required bool, ok bool) {
	if !p.Supported() {
		return nil, false, false
	}

	switch p.Kind {
	case KindTitle, KindRichText, KindURL:
		return &jsonschema.Schema{Type: "string"}, true, true
	case KindNumber:
		return &jsonschema.Schema{Type: "number"}, true, true
	case KindCheckbox:
		return &jsonschema.Schema{Types: []string{"boolean", "null"}}, false, true
	case KindSelect:
		return &jsonschema.Schema{Type: "string", Enum: enumOf(p.Options)}, true, true
	case KindMultiSelect:
		return &jsonschema.Schema{
			Type:  "array",
			Items: &jsonschema.Schema{Type: "string", Enum: enumOf(p.Options)},
		}, true, true
	case KindUnsupported:
		return nil, false, false
	}
	return nil, false, false
}

func enumOf(options []string) []any {
	enum := make([]any, len(options))
	for i, o := range options {
		enum[i] = o
	}
	return enum
}

// Outbound builds the JSON Schema of an extracted record for db.
func Outbound(db Database) *jsonschema.Schema {
	s := &jsonschema.Schema{
		Type:       "object",
		Title:      db.Title,
		Properties: map[string]*jsonschema.Schema{},
	}
	for _, p := range db.Properties {
		field, required, ok := Field(p)
		if !ok {
			continue
		}
		s.Properties[p.Name] = field
		s.PropertyOrder = append(s.PropertyOrder, p.Name)
		if required {
			s.Required = append(s.Required, p.Name)
		}
	}
	return s
}

// Extraction is a compiled Outbound schema ready to validate model output.
type Extraction struct {
	Name     string
	Schema   *jsonschema.Schema
	resolved *jsonschema.Resolved
}

// NewExtraction compiles the extraction schema for db.
func NewExtraction(db Database) (*Extraction, error) {
	s := Outbound(db)
	resolved, err := s.Resolve(nil)
	if err != nil {
		return nil, fmt.Errorf("resolving extraction schema: %w", err)
	}
	name := db.Title
	if name == "" {
		name = "Row"
	}
	return &Extraction{Name: name, Schema: s, resolved: resolved}, nil
}

// JSON renders the schema for inclusion in a prompt.
func (e *Extraction) JSON() (string, error) {
	b, err := json.MarshalIndent(e.Schema, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling extraction schema: %w", err)
	}
	return string(b), nil
}

// Validate decodes raw model output and checks it against the schema.
func (e *Extraction) Validate(raw string) (Record, error) {
	raw = trimFence(raw)

	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, fmt.Errorf("output is not valid JSON: %w", err)
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, ErrNotObject
	}
	if err := e.resolved.Validate(obj); err != nil {
		return nil, err
	}
	return Record(obj), nil
}

// trimFence strips a markdown code fence some models wrap JSON in.
func trimFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = s[3:]
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
