package models

import (
	"strconv"
	"time"
)

// PromptType constrains what an extractable value looks like in the generated
// JSON schema.
type PromptType string

const (
	PromptString PromptType = "string"
	PromptNumber PromptType = "number"
	PromptObject PromptType = "object"
	PromptArray  PromptType = "array"
)

// Prompt describes one extractable value: its schema type, a description fed
// to the extraction model, and optionally the Content holding its current
// value.
type Prompt struct {
	Type        PromptType `firestore:"type" json:"type"`
	Description string     `firestore:"description" json:"description"`
	ContentID   string     `firestore:"contentId,omitempty" json:"contentId,omitempty"`
}

// Annotation is the atomic (label, value) extraction unit pairing two Prompts.
type Annotation struct {
	FieldName   Prompt `firestore:"fieldName" json:"fieldName"`
	Value       Prompt `firestore:"annotationValue" json:"annotationValue"`
	Description string `firestore:"description,omitempty" json:"description,omitempty"`
}

// NodeKind is decided once at instruction construction time, so traversals
// never have to sniff a node's shape.
type NodeKind string

const (
	KindObject         NodeKind = "object"
	KindAnnotation     NodeKind = "annotation"
	KindAnnotationList NodeKind = "annotationList"
)

// Node is one vertex of the annotation graph. Exactly one of Annotation,
// Items, or Fields is populated, according to Kind.
type Node struct {
	Kind       NodeKind         `firestore:"kind" json:"kind"`
	Annotation *Annotation      `firestore:"annotation,omitempty" json:"annotation,omitempty"`
	Items      []*Annotation    `firestore:"items,omitempty" json:"items,omitempty"`
	Fields     map[string]*Node `firestore:"fields,omitempty" json:"fields,omitempty"`
	Order      []string         `firestore:"order,omitempty" json:"order,omitempty"`
}

// Instruction is the structured, per-document record of all extracted fields.
// Exactly one exists per Document.
type Instruction struct {
	ID               string    `firestore:"-" json:"id"`
	DocumentID       string    `firestore:"documentId" json:"documentId"`
	DetectedLanguage string    `firestore:"detectedLanguage,omitempty" json:"detectedLanguage,omitempty"`
	Root             *Node     `firestore:"root" json:"root"`
	CreatedAt        time.Time `firestore:"createdAt,omitempty" json:"createdAt"`
}

func annotationNode(label, description string) *Node {
	return &Node{
		Kind: KindAnnotation,
		Annotation: &Annotation{
			FieldName: Prompt{Type: PromptString, Description: "The printed label of the " + label + " field"},
			Value:     Prompt{Type: PromptString, Description: description},
		},
	}
}

func objectNode(order []string, fields map[string]*Node) *Node {
	return &Node{Kind: KindObject, Fields: fields, Order: order}
}

// NewProductionInstruction builds the default annotation graph a document
// starts with: placeholder annotations that extraction later overwrites.
func NewProductionInstruction(documentID string) *Instruction {
	root := objectNode(
		[]string{"title", "customer", "purchase", "notes"},
		map[string]*Node{
			"title": annotationNode("title", "The document title"),
			"customer": objectNode(
				[]string{"name", "style", "po", "color", "quantity"},
				map[string]*Node{
					"name":     annotationNode("customer name", "The customer or buyer name"),
					"style":    annotationNode("style", "The garment style number"),
					"po":       annotationNode("purchase order", "The purchase order number"),
					"color":    annotationNode("color", "The article color"),
					"quantity": annotationNode("quantity", "The ordered quantity"),
				},
			),
			"purchase": objectNode(
				[]string{"order", "delivery", "material"},
				map[string]*Node{
					"order":    annotationNode("order date", "The order date"),
					"delivery": annotationNode("delivery date", "The requested delivery date"),
					"material": annotationNode("material", "The main fabric or material"),
				},
			),
			"notes": {Kind: KindAnnotationList},
		},
	)
	return &Instruction{DocumentID: documentID, Root: root, CreatedAt: time.Now()}
}

// FieldOrder returns the object node's field names in construction order,
// falling back to the map's keys when no order was recorded.
func (n *Node) FieldOrder() []string {
	if len(n.Order) > 0 {
		return n.Order
	}
	names := make([]string, 0, len(n.Fields))
	for name := range n.Fields {
		names = append(names, name)
	}
	return names
}

// WalkAnnotations visits every annotation in the graph in field order, list
// items in index order. The walk stops on the first non-nil error.
func (n *Node) WalkAnnotations(visit func(path []string, a *Annotation) error) error {
	return n.walk(nil, visit)
}

func (n *Node) walk(path []string, visit func(path []string, a *Annotation) error) error {
	if n == nil {
		return nil
	}
	// Each child gets its own copy so a visitor may retain the path.
	extend := func(seg string) []string {
		next := make([]string, len(path), len(path)+1)
		copy(next, path)
		return append(next, seg)
	}
	switch n.Kind {
	case KindAnnotation:
		return visit(path, n.Annotation)
	case KindAnnotationList:
		for i, item := range n.Items {
			if err := visit(extend(strconv.Itoa(i)), item); err != nil {
				return err
			}
		}
	case KindObject:
		for _, name := range n.FieldOrder() {
			child, ok := n.Fields[name]
			if !ok {
				continue
			}
			if err := child.walk(extend(name), visit); err != nil {
				return err
			}
		}
	}
	return nil
}
