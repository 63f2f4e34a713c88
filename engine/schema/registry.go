// Package schema is the static registry of graph entity types, their attribute
// shapes, and the directed relationship types between them. It mirrors the
// schema the ingestion collaborator writes and is consulted to validate every
// traversal request before it reaches the graph store.
package schema

import (
	"fmt"
	"sort"
	"strings"

	"github.com/PartSenseAI/partsense-mvp/engine/domain"
)

// AttrKind controls filter semantics for an attribute.
type AttrKind int

const (
	// AttrIdentifier matches exactly (case-insensitive for numbers and ids).
	AttrIdentifier AttrKind = iota
	// AttrText matches by case-insensitive substring.
	AttrText
	// AttrNumeric supports comparison operators.
	AttrNumeric
)

// Entity describes one node label.
type Entity struct {
	Type  domain.EntityType
	IDKey string
	Attrs map[string]AttrKind
}

// Relationship is a directed typed edge between two entity types.
type Relationship struct {
	Type string
	From domain.EntityType
	To   domain.EntityType
}

// Direction of a traversal hop relative to the edge definition.
type Direction int

const (
	DirOut Direction = iota // follow the edge as defined (from -> to)
	DirIn                   // follow the edge backwards (to -> from)
)

// Hop is one step of a traversal path.
type Hop struct {
	RelType   string
	Direction Direction
}

// Registry holds the static schema. Immutable after New.
type Registry struct {
	entities map[domain.EntityType]Entity
	// rels indexes relationship definitions by type; a relationship type can
	// legally connect more than one entity pair (e.g. HAS_QNA, HAS_STORY).
	rels map[string][]Relationship
}

// New builds the registry for the appliance-parts graph.
func New() *Registry {
	r := &Registry{
		entities: make(map[domain.EntityType]Entity),
		rels:     make(map[string][]Relationship),
	}
	for _, e := range defaultEntities {
		r.entities[e.Type] = e
	}
	for _, rel := range defaultRelationships {
		r.rels[rel.Type] = append(r.rels[rel.Type], rel)
	}
	return r
}

var defaultEntities = []Entity{
	{Type: domain.EntityPart, IDKey: "id", Attrs: map[string]AttrKind{
		"id": AttrIdentifier, "url": AttrIdentifier, "name": AttrText,
		"partselect_num": AttrIdentifier, "manufacturer_part_num": AttrIdentifier,
		"price": AttrNumeric, "status": AttrText,
		"install_difficulty": AttrText, "install_time": AttrText,
		"description": AttrText, "works_with_products": AttrText,
	}},
	{Type: domain.EntityModel, IDKey: "model_num", Attrs: map[string]AttrKind{
		"model_num": AttrIdentifier, "name": AttrText, "url": AttrIdentifier,
	}},
	{Type: domain.EntityManufacturer, IDKey: "name", Attrs: map[string]AttrKind{"name": AttrText}},
	{Type: domain.EntityBrand, IDKey: "name", Attrs: map[string]AttrKind{"name": AttrText}},
	{Type: domain.EntityProductType, IDKey: "name", Attrs: map[string]AttrKind{"name": AttrText}},
	{Type: domain.EntitySymptom, IDKey: "name", Attrs: map[string]AttrKind{"name": AttrText}},
	{Type: domain.EntityStory, IDKey: "title", Attrs: map[string]AttrKind{
		"title": AttrText, "content": AttrText, "difficulty": AttrText,
		"repair_time": AttrText, "tools": AttrText,
	}},
	{Type: domain.EntityQnA, IDKey: "question", Attrs: map[string]AttrKind{
		"question": AttrText, "answer": AttrText, "model": AttrIdentifier, "date": AttrText,
	}},
	{Type: domain.EntityInstallationInstruction, IDKey: "title", Attrs: map[string]AttrKind{
		"title": AttrText, "content": AttrText, "difficulty": AttrText,
		"repair_time": AttrText, "tools": AttrText,
	}},
	{Type: domain.EntityVideo, IDKey: "url", Attrs: map[string]AttrKind{
		"title": AttrText, "url": AttrIdentifier,
	}},
	{Type: domain.EntityManual, IDKey: "url", Attrs: map[string]AttrKind{
		"name": AttrText, "url": AttrIdentifier,
	}},
	{Type: domain.EntitySection, IDKey: "name", Attrs: map[string]AttrKind{
		"name": AttrText, "url": AttrIdentifier,
	}},
}

var defaultRelationships = []Relationship{
	{Type: "MANUFACTURED_BY", From: domain.EntityPart, To: domain.EntityManufacturer},
	{Type: "BRAND_DESTINATION", From: domain.EntityPart, To: domain.EntityBrand},
	{Type: "COMPATIBLE_WITH", From: domain.EntityPart, To: domain.EntityModel},
	{Type: "HAS_VIDEO", From: domain.EntityPart, To: domain.EntityVideo},
	{Type: "FIXES_SYMPTOM", From: domain.EntityPart, To: domain.EntitySymptom},
	{Type: "HAS_STORY", From: domain.EntityPart, To: domain.EntityStory},
	{Type: "HAS_STORY", From: domain.EntityModel, To: domain.EntityStory},
	{Type: "HAS_QNA", From: domain.EntityPart, To: domain.EntityQnA},
	{Type: "HAS_QNA", From: domain.EntityModel, To: domain.EntityQnA},
	{Type: "RELATED_TO", From: domain.EntityPart, To: domain.EntityPart},
	{Type: "REPLACES", From: domain.EntityPart, To: domain.EntityPart},
	{Type: "WORKS_WITH_PRODUCT_TYPE", From: domain.EntityPart, To: domain.EntityProductType},
	{Type: "HAS_SECTION", From: domain.EntityModel, To: domain.EntitySection},
	{Type: "HAS_MANUAL", From: domain.EntityModel, To: domain.EntityManual},
	{Type: "MADE_BY", From: domain.EntityModel, To: domain.EntityBrand},
	{Type: "IS", From: domain.EntityModel, To: domain.EntityProductType},
	{Type: "HAS_PART", From: domain.EntityModel, To: domain.EntityPart},
	{Type: "HAS_INSTALLATION_INSTRUCTION", From: domain.EntityModel, To: domain.EntityInstallationInstruction},
	{Type: "HAS_INSTALLATION_INSTRUCTION", From: domain.EntityPart, To: domain.EntityInstallationInstruction},
	{Type: "HAS_SYMPTOM", From: domain.EntityModel, To: domain.EntitySymptom},
	{Type: "REFERENCES_PART", From: domain.EntityQnA, To: domain.EntityPart},
	{Type: "FEATURES_PART", From: domain.EntityVideo, To: domain.EntityPart},
	{Type: "USES_PART", From: domain.EntityInstallationInstruction, To: domain.EntityPart},
	{Type: "USES_FIXING_PART", From: domain.EntitySymptom, To: domain.EntityPart},
}

// Entity returns the descriptor for a type.
func (r *Registry) Entity(t domain.EntityType) (Entity, bool) {
	e, ok := r.entities[t]
	return e, ok
}

// AttrKind returns the filter kind of an attribute on an entity type.
func (r *Registry) AttrKind(t domain.EntityType, attr string) (AttrKind, bool) {
	e, ok := r.entities[t]
	if !ok {
		return 0, false
	}
	k, ok := e.Attrs[attr]
	return k, ok
}

// Step resolves one hop from the given entity type. It returns the terminal
// entity type, or false when the relationship type does not connect from that
// type in the requested direction.
func (r *Registry) Step(from domain.EntityType, hop Hop) (domain.EntityType, bool) {
	for _, rel := range r.rels[hop.RelType] {
		switch hop.Direction {
		case DirOut:
			if rel.From == from {
				return rel.To, true
			}
		case DirIn:
			if rel.To == from {
				return rel.From, true
			}
		}
	}
	return "", false
}

// ValidatePath walks a hop sequence from the start type and returns the
// terminal entity type, or an ErrInvalidQueryShape-wrapping error at the first
// hop the schema does not define.
func (r *Registry) ValidatePath(start domain.EntityType, hops []Hop) (domain.EntityType, error) {
	if _, ok := r.entities[start]; !ok {
		return "", &domain.QueryShapeError{Start: start, RelType: "", Terminal: start}
	}
	cur := start
	for _, hop := range hops {
		next, ok := r.Step(cur, hop)
		if !ok {
			return "", &domain.QueryShapeError{Start: cur, RelType: hop.RelType, Terminal: ""}
		}
		cur = next
	}
	return cur, nil
}

// Describe renders the schema as human-readable lines, one per relationship,
// in deterministic order. Used in planner diagnostics and debug logging.
func (r *Registry) Describe() string {
	var lines []string
	for _, rels := range r.rels {
		for _, rel := range rels {
			lines = append(lines, fmt.Sprintf("(:%s)-[:%s]->(:%s)", rel.From, rel.Type, rel.To))
		}
	}
	sort.Strings(lines)
	return strings.Join(lines, "\n")
}
