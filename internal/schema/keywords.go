package schema

import (
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/text/message"
)

// parentVocabulary builds the x-parent-id keyword. The keyword is active:
// validating a document probes the parent collection for a live row, so two
// identical documents may validate differently at different times.
func parentVocabulary(lookup Lookup) *jsonschema.Vocabulary {
	url := "store:///meta/parent-id.json"
	meta, err := jsonschema.UnmarshalJSON(strings.NewReader(`{
		"properties": {
			"x-parent-id": {
				"type": "object",
				"properties": {
					"parent": { "type": "string" },
					"field": { "type": "string" }
				},
				"required": ["parent", "field"]
			}
		}
	}`))
	if err != nil {
		panic(err)
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, meta); err != nil {
		panic(err)
	}
	sch, err := c.Compile(url)
	if err != nil {
		panic(err)
	}

	return &jsonschema.Vocabulary{
		URL:    url,
		Schema: sch,
		Compile: func(_ *jsonschema.CompilerContext, obj map[string]any) (jsonschema.SchemaExt, error) {
			v, ok := obj["x-parent-id"]
			if !ok {
				return nil, nil
			}
			m, ok := v.(map[string]any)
			if !ok {
				return nil, nil
			}
			parent, _ := m["parent"].(string)
			field, _ := m["field"].(string)
			if parent == "" || field == "" {
				return nil, nil
			}
			return &parentID{lookup: lookup, parent: parent, field: field}, nil
		},
	}
}

type parentID struct {
	lookup Lookup
	parent string
	field  string
}

func (k *parentID) Validate(ctx *jsonschema.ValidatorContext, v any) {
	obj, ok := v.(map[string]any)
	if !ok {
		return
	}

	raw, ok := obj[k.field]
	if !ok {
		ctx.AddError(&ParentIDKind{Parent: k.parent, Field: k.field, Reason: "field is missing"})
		return
	}
	id, ok := raw.(string)
	if !ok {
		ctx.AddError(&ParentIDKind{Parent: k.parent, Field: k.field, Reason: "expected a string id"})
		return
	}

	exists, err := k.lookup.ParentExists(k.parent, id)
	if err != nil {
		ctx.AddError(&ParentIDKind{Parent: k.parent, Field: k.field, Reason: "lookup failed: " + err.Error()})
		return
	}
	if !exists {
		ctx.AddError(&ParentIDKind{Parent: k.parent, Field: k.field, ID: id, Reason: "no such row"})
	}
}

// ParentIDKind is the validation error raised by x-parent-id.
type ParentIDKind struct {
	Parent string
	Field  string
	ID     string
	Reason string
}

func (*ParentIDKind) KeywordPath() []string {
	return []string{"x-parent-id"}
}

func (k *ParentIDKind) LocalizedString(p *message.Printer) string {
	if k.ID != "" {
		return p.Sprintf("x-parent-id %s.%s: %s: value %q not found in collection %q", k.Parent, k.Field, k.Reason, k.ID, k.Parent)
	}
	return p.Sprintf("x-parent-id %s.%s: %s", k.Parent, k.Field, k.Reason)
}
