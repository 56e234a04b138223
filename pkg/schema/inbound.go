package schema

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jomei/notionapi"
)

// ErrNotNumeric flags a number column whose extracted value is not a number.
var ErrNotNumeric = errors.New("value is not numeric")

// Inbound translates an extracted record into Notion property values for db.
// Properties that are unsupported or absent from rec produce nothing.
func Inbound(rec Record, db Database) (notionapi.Properties, error) {
	props := notionapi.Properties{}
	for _, p := range db.Properties {
		if !p.Supported() {
			continue
		}
		v, ok := rec[p.Name]
		if !ok {
			continue
		}
		prop, err := propertyValue(p, v)
		if err != nil {
			return nil, fmt.Errorf("property %q: %w", p.Name, err)
		}
		props[p.Name] = prop
	}
	return props, nil
}

func propertyValue(p Property, v any) (notionapi.Property, error) {
	switch p.Kind {
	case KindTitle:
		return notionapi.TitleProperty{
			Type:  notionapi.PropertyTypeTitle,
			Title: richText(text(v)),
		}, nil
	case KindRichText:
		return notionapi.RichTextProperty{
			Type:     notionapi.PropertyTypeRichText,
			RichText: richText(text(v)),
		}, nil
	case KindURL:
		return notionapi.URLProperty{
			Type: notionapi.PropertyTypeURL,
			URL:  text(v),
		}, nil
	case KindNumber:
		n, err := number(v)
		if err != nil {
			return nil, err
		}
		return notionapi.NumberProperty{
			Type:   notionapi.PropertyTypeNumber,
			Number: n,
		}, nil
	case KindCheckbox:
		return notionapi.CheckboxProperty{
			Type:     notionapi.PropertyTypeCheckbox,
			Checkbox: truthy(v),
		}, nil
	case KindSelect:
		return notionapi.SelectProperty{
			Type:   notionapi.PropertyTypeSelect,
			Select: notionapi.Option{Name: text(v)},
		}, nil
	case KindMultiSelect:
		return notionapi.MultiSelectProperty{
			Type:        notionapi.PropertyTypeMultiSelect,
			MultiSelect: options(v),
		}, nil
	case KindUnsupported:
	}
	return nil, fmt.Errorf("unsupported kind %s", p.Kind)
}

func richText(content string) []notionapi.RichText {
	return []notionapi.RichText{{Text: &notionapi.Text{Content: content}}}
}

func text(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}

func number(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrNotNumeric, n)
		}
		return f, nil
	}
	return 0, fmt.Errorf("%w: %v", ErrNotNumeric, v)
}

// truthy coerces a decoded JSON value to a checkbox state.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0
	}
	return true
}

// options keeps element order and duplicates as extracted.
func options(v any) []notionapi.Option {
	var opts []notionapi.Option
	switch items := v.(type) {
	case []any:
		for _, item := range items {
			opts = append(opts, notionapi.Option{Name: text(item)})
		}
	case []string:
		for _, item := range items {
			opts = append(opts, notionapi.Option{Name: item})
		}
	}
	if opts == nil {
		opts = []notionapi.Option{}
	}
	return opts
}
