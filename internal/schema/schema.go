// Package schema turns an instruction's annotation graph into the JSON schema
// handed to the extraction model, and validates what the model returns.
package schema

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/yqms/instructionflow/internal/models"
)

// promptSchema builds the schema fragment for one extractable value. The type
// is a [t, "null"] union so the model can report an absent field without
// violating the schema.
func promptSchema(p models.Prompt) map[string]any {
	t := p.Type
	if t == "" {
		t = models.PromptString
	}
	s := map[string]any{
		"type": []any{string(t), "null"},
	}
	if p.Description != "" {
		s["description"] = p.Description
	}
	return s
}

func annotationSchema(a *models.Annotation) map[string]any {
	s := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"field_name":       promptSchema(a.FieldName),
			"annotation_value": promptSchema(a.Value),
		},
		"required":             []any{"field_name", "annotation_value"},
		"additionalProperties": false,
	}
	if a.Description != "" {
		s["description"] = a.Description
	}
	return s
}

// genericNoteItem is emitted for annotation lists that have no items yet, so
// the model can still populate them.
func genericNoteItem() map[string]any {
	return annotationSchema(&models.Annotation{
		FieldName: models.Prompt{Type: models.PromptString, Description: "The heading or label of this note"},
		Value:     models.Prompt{Type: models.PromptString, Description: "The body text of this note"},
	})
}

func nodeSchema(n *models.Node) map[string]any {
	switch n.Kind {
	case models.KindAnnotation:
		return annotationSchema(n.Annotation)
	case models.KindAnnotationList:
		item := genericNoteItem()
		if len(n.Items) > 0 {
			item = annotationSchema(n.Items[0])
		}
		return map[string]any{
			"type":  "array",
			"items": item,
		}
	case models.KindObject:
		properties := map[string]any{}
		required := make([]any, 0, len(n.Fields))
		for _, name := range n.FieldOrder() {
			child, ok := n.Fields[name]
			if !ok {
				continue
			}
			properties[name] = nodeSchema(child)
			required = append(required, name)
		}
		return map[string]any{
			"type":                 "object",
			"properties":           properties,
			"required":             required,
			"additionalProperties": false,
		}
	default:
		return map[string]any{"type": "object"}
	}
}

// Generate derives the extraction schema for an instruction's current graph.
// The shape follows the graph exactly, so a conforming model response can be
// merged back node by node.
func Generate(instr *models.Instruction) map[string]any {
	if instr == nil || instr.Root == nil {
		return map[string]any{"type": "object"}
	}
	s := nodeSchema(instr.Root)
	s["$schema"] = "https://json-schema.org/draft/2020-12/schema"
	return s
}

// Compile compiles a generated schema for validation.
func Compile(s map[string]any) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	compiled, err := jsonschema.CompileString("extraction.json", string(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}
	return compiled, nil
}

// Validate checks a model response against a generated schema.
func Validate(s map[string]any, doc map[string]any) error {
	compiled, err := Compile(s)
	if err != nil {
		return err
	}
	// The validator wants plain JSON types, so round-trip through encoding.
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("failed to unmarshal document: %w", err)
	}
	if err := compiled.Validate(v); err != nil {
		return fmt.Errorf("extraction output does not match schema: %w", err)
	}
	return nil
}
