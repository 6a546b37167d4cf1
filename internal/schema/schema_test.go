package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yqms/instructionflow/internal/models"
)

func TestGenerateFollowsGraphShape(t *testing.T) {
	instr := models.NewProductionInstruction("doc-1")
	s := Generate(instr)

	assert.Equal(t, "object", s["type"])

	props, ok := s["properties"].(map[string]any)
	require.True(t, ok)
	require.Contains(t, props, "title")
	require.Contains(t, props, "customer")
	require.Contains(t, props, "purchase")
	require.Contains(t, props, "notes")

	title, ok := props["title"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "object", title["type"])
	titleProps := title["properties"].(map[string]any)
	assert.Contains(t, titleProps, "field_name")
	assert.Contains(t, titleProps, "annotation_value")

	value := titleProps["annotation_value"].(map[string]any)
	assert.Equal(t, []any{"string", "null"}, value["type"])

	customer := props["customer"].(map[string]any)
	customerProps := customer["properties"].(map[string]any)
	for _, name := range []string{"name", "style", "po", "color", "quantity"} {
		assert.Contains(t, customerProps, name)
	}

	notes, ok := props["notes"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "array", notes["type"])
	item := notes["items"].(map[string]any)
	assert.Equal(t, "object", item["type"])
}

func TestGenerateEmptyListEmitsGenericItem(t *testing.T) {
	instr := &models.Instruction{
		Root: &models.Node{
			Kind: models.KindObject,
			Order: []string{"notes"},
			Fields: map[string]*models.Node{
				"notes": {Kind: models.KindAnnotationList},
			},
		},
	}
	s := Generate(instr)
	notes := s["properties"].(map[string]any)["notes"].(map[string]any)
	item := notes["items"].(map[string]any)
	itemProps := item["properties"].(map[string]any)
	assert.Contains(t, itemProps, "field_name")
	assert.Contains(t, itemProps, "annotation_value")
}

func TestValidateAcceptsConformingDocument(t *testing.T) {
	instr := models.NewProductionInstruction("doc-1")
	s := Generate(instr)

	doc := map[string]any{
		"title": map[string]any{"field_name": "品名", "annotation_value": "冬物コート"},
		"customer": map[string]any{
			"name":     map[string]any{"field_name": "客先", "annotation_value": "ACME"},
			"style":    map[string]any{"field_name": "型番", "annotation_value": "ST-100"},
			"po":       map[string]any{"field_name": "PO", "annotation_value": "PO-9"},
			"color":    map[string]any{"field_name": "色", "annotation_value": nil},
			"quantity": map[string]any{"field_name": "数量", "annotation_value": "1200"},
		},
		"purchase": map[string]any{
			"order":    map[string]any{"field_name": "発注日", "annotation_value": "2026-01-10"},
			"delivery": map[string]any{"field_name": "納期", "annotation_value": "2026-03-01"},
			"material": map[string]any{"field_name": "素材", "annotation_value": "ウール"},
		},
		"notes": []any{
			map[string]any{"field_name": "注意", "annotation_value": "縫い代1cm"},
		},
	}

	require.NoError(t, Validate(s, doc))
}

func TestValidateRejectsWrongShape(t *testing.T) {
	instr := models.NewProductionInstruction("doc-1")
	s := Generate(instr)

	doc := map[string]any{"title": "not an annotation object"}
	assert.Error(t, Validate(s, doc))
}
