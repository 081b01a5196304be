// Package schema compiles collection JSON schemas with the store's custom
// keywords and exposes the side-indexes the table mapper needs.
//
// Three non-standard keywords are recognized:
//
//	x-unique: "<field>"                       declarative; names the field
//	                                          whose value carries the UNIQUE
//	                                          constraint in storage
//	x-parent-id: {parent: "<coll>", field: "<field>"}
//	                                          active; the field must name an
//	                                          existing row of the parent
//	                                          collection at validation time
//	x-inspect: "<field>" | ["<field>", ...]   declarative; fields materialized
//	                                          to dedicated index columns
package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

var (
	ErrInvalidSchema = errors.New("invalid schema")
	ErrParentLookup  = errors.New("parent lookup failed")
)

// Lookup answers the x-parent-id existence probe against live database
// state. Implemented by the store backend.
type Lookup interface {
	ParentExists(collection string, id string) (bool, error)
}

// ParentRef describes a collection's x-parent-id declaration.
type ParentRef struct {
	Collection string `json:"parent"`
	Field      string `json:"field"`
}

// Descriptor is a compiled collection schema plus its side-indexes. The
// Validator is never serialized; Raw is what gets persisted.
type Descriptor struct {
	Collection  string
	Raw         json.RawMessage
	Validator   *jsonschema.Schema
	UniqueField string
	Parent      *ParentRef
	Inspect     []string
}

// HasUnique reports whether the collection declares x-unique.
func (d *Descriptor) HasUnique() bool {
	return d.UniqueField != ""
}

// Compile validates and compiles a collection schema, wiring the custom
// keyword runtime to lookup.
func Compile(collection string, raw []byte, lookup Lookup) (*Descriptor, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
	}

	obj, _ := doc.(map[string]any)

	desc := &Descriptor{
		Collection: collection,
		Raw:        append(json.RawMessage(nil), raw...),
	}

	if obj != nil {
		if desc.UniqueField, err = extractUnique(obj); err != nil {
			return nil, err
		}
		if desc.Parent, err = extractParent(obj); err != nil {
			return nil, err
		}
		if desc.Inspect, err = extractInspect(obj); err != nil {
			return nil, err
		}
	}

	c := jsonschema.NewCompiler()
	c.AssertVocabs()
	c.RegisterVocabulary(parentVocabulary(lookup))

	url := "store:///" + collection + ".json"
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
	}
	sch, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
	}
	desc.Validator = sch

	return desc, nil
}

// Validate checks a decoded JSON document against the compiled schema,
// running any custom keywords (which may read live database state).
func (d *Descriptor) Validate(doc any) error {
	return d.Validator.Validate(doc)
}

func extractUnique(obj map[string]any) (string, error) {
	v, ok := obj["x-unique"]
	if !ok {
		return "", nil
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("%w: x-unique must be a non-empty string", ErrInvalidSchema)
	}
	return s, nil
}

func extractParent(obj map[string]any) (*ParentRef, error) {
	v, ok := obj["x-parent-id"]
	if !ok {
		return nil, nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: x-parent-id must be an object", ErrInvalidSchema)
	}
	parent, _ := m["parent"].(string)
	field, _ := m["field"].(string)
	if parent == "" || field == "" {
		return nil, fmt.Errorf("%w: x-parent-id requires string 'parent' and 'field'", ErrInvalidSchema)
	}
	return &ParentRef{Collection: parent, Field: field}, nil
}

func extractInspect(obj map[string]any) ([]string, error) {
	v, ok := obj["x-inspect"]
	if !ok {
		return nil, nil
	}
	switch t := v.(type) {
	case string:
		if t == "" {
			return nil, fmt.Errorf("%w: x-inspect field name must not be empty", ErrInvalidSchema)
		}
		return []string{t}, nil
	case []any:
		fields := make([]string, 0, len(t))
		for _, e := range t {
			s, ok := e.(string)
			if !ok || s == "" {
				return nil, fmt.Errorf("%w: x-inspect entries must be non-empty strings", ErrInvalidSchema)
			}
			fields = append(fields, s)
		}
		return fields, nil
	default:
		return nil, fmt.Errorf("%w: x-inspect must be a string or array of strings", ErrInvalidSchema)
	}
}

// maxParentDepth bounds the ancestor chain length. Exceeding it (or finding
// a cycle) is a registration-time validation failure, never a request-time
// surprise.
const maxParentDepth = 8

// CheckParentGraph verifies the parent references across a set of
// descriptors form chains no deeper than maxParentDepth and contain no
// cycles. References to collections outside the set are permitted (they
// terminate the chain).
func CheckParentGraph(descs map[string]*Descriptor) error {
	for name := range descs {
		seen := map[string]bool{}
		cur := name
		for depth := 0; ; depth++ {
			if depth > maxParentDepth {
				return fmt.Errorf("%w: parent chain from %q exceeds depth %d", ErrInvalidSchema, name, maxParentDepth)
			}
			if seen[cur] {
				return fmt.Errorf("%w: parent cycle through %q", ErrInvalidSchema, cur)
			}
			seen[cur] = true
			d, ok := descs[cur]
			if !ok || d.Parent == nil {
				break
			}
			cur = d.Parent.Collection
		}
	}
	return nil
}
