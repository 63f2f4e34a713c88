// Package graph executes validated traversal requests against the Neo4j
// knowledge graph and returns matching subgraphs. Every request is checked
// against the schema registry before any cypher is built; an undefined path
// never reaches the store.
package graph

import (
	"fmt"
	"strings"

	"github.com/PartSenseAI/partsense-mvp/engine/domain"
	"github.com/PartSenseAI/partsense-mvp/engine/schema"
)

// FilterOp is the comparison operator of a filter predicate.
type FilterOp string

const (
	OpEq       FilterOp = "eq"
	OpContains FilterOp = "contains"
	OpLt       FilterOp = "lt"
	OpLte      FilterOp = "lte"
	OpGt       FilterOp = "gt"
	OpGte      FilterOp = "gte"
)

// Filter is a predicate on a start-entity attribute.
type Filter struct {
	Field string
	Op    FilterOp
	Value any
}

// TraversalRequest describes one graph retrieval: a start entity type with a
// filter, a relationship path, and a result cap.
type TraversalRequest struct {
	Start  domain.EntityType
	Filter Filter
	Hops   []schema.Hop
	Limit  int
}

// Record is an entity instance returned from the store.
type Record struct {
	Type  domain.EntityType
	Props map[string]any
}

// Subgraph is a start entity plus the terminal entities reached via the
// requested path, deduplicated across paths.
type Subgraph struct {
	Start     Record
	Terminals []Record
}

const defaultLimit = 10

// buildCypher renders a validated request into a parameterised cypher query.
func buildCypher(reg *schema.Registry, req TraversalRequest) (string, map[string]any, error) {
	var b strings.Builder
	params := map[string]any{}

	b.WriteString(fmt.Sprintf("MATCH (start:%s)", req.Start))
	cur := req.Start
	for i, hop := range req.Hops {
		next, ok := reg.Step(cur, hop)
		if !ok {
			return "", nil, &domain.QueryShapeError{Start: cur, RelType: hop.RelType}
		}
		alias := ""
		if i == len(req.Hops)-1 {
			alias = "term"
		}
		switch hop.Direction {
		case schema.DirOut:
			b.WriteString(fmt.Sprintf("-[:%s]->(%s:%s)", hop.RelType, alias, next))
		case schema.DirIn:
			b.WriteString(fmt.Sprintf("<-[:%s]-(%s:%s)", hop.RelType, alias, next))
		}
		cur = next
	}

	where, err := filterClause(reg, req.Start, req.Filter, params)
	if err != nil {
		return "", nil, err
	}
	if where != "" {
		b.WriteString(" WHERE " + where)
	}

	limit := req.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	params["limit"] = limit

	if len(req.Hops) == 0 {
		b.WriteString(" RETURN start LIMIT $limit")
	} else {
		b.WriteString(" RETURN start, collect(DISTINCT term) AS terms LIMIT $limit")
	}
	return b.String(), params, nil
}

// filterClause renders the filter predicate, honouring the attribute kind:
// identifiers match exactly (case-insensitive for strings), free text matches
// by lowered substring, numerics compare.
func filterClause(reg *schema.Registry, start domain.EntityType, f Filter, params map[string]any) (string, error) {
	if f.Field == "" {
		return "", nil
	}
	kind, ok := reg.AttrKind(start, f.Field)
	if !ok {
		return "", fmt.Errorf("graph: unknown attribute %s.%s", start, f.Field)
	}

	field := "start." + f.Field
	switch kind {
	case schema.AttrNumeric:
		op, ok := numericOps[f.Op]
		if !ok {
			return "", fmt.Errorf("graph: operator %s not valid for numeric field %s", f.Op, f.Field)
		}
		params["val"] = f.Value
		return fmt.Sprintf("%s %s $val", field, op), nil
	case schema.AttrIdentifier:
		if f.Op != OpEq {
			return "", fmt.Errorf("graph: identifier field %s requires exact match", f.Field)
		}
		params["val"] = fmt.Sprint(f.Value)
		return fmt.Sprintf("toLower(%s) = toLower($val)", field), nil
	default: // AttrText
		params["val"] = fmt.Sprint(f.Value)
		if f.Op == OpEq {
			return fmt.Sprintf("toLower(%s) = toLower($val)", field), nil
		}
		return fmt.Sprintf("toLower(%s) CONTAINS toLower($val)", field), nil
	}
}

var numericOps = map[FilterOp]string{
	OpEq: "=", OpLt: "<", OpLte: "<=", OpGt: ">", OpGte: ">=",
}
