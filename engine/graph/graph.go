package graph

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"

	"github.com/PartSenseAI/partsense-mvp/engine/domain"
	"github.com/PartSenseAI/partsense-mvp/engine/schema"
)

// result is the minimal interface needed from a neo4j result.
type result interface {
	Next(ctx context.Context) bool
	Record() *neo4j.Record
}

// runner is the minimal interface needed from a neo4j session.
type runner interface {
	Run(ctx context.Context, cypher string, params map[string]any) (result, error)
	Close(ctx context.Context) error
}

// Retriever executes traversal requests against the graph store.
type Retriever struct {
	driver     neo4j.DriverWithContext
	registry   *schema.Registry
	logger     *slog.Logger
	newSession func(ctx context.Context) runner // for testing
}

// New creates a Retriever over the given driver and schema registry.
func New(driver neo4j.DriverWithContext, registry *schema.Registry, logger *slog.Logger) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{driver: driver, registry: registry, logger: logger}
}

// neo4jSessionAdapter adapts neo4j.SessionWithContext to the runner interface.
type neo4jSessionAdapter struct {
	sess neo4j.SessionWithContext
}

func (a *neo4jSessionAdapter) Run(ctx context.Context, cypher string, params map[string]any) (result, error) {
	return a.sess.Run(ctx, cypher, params)
}

func (a *neo4jSessionAdapter) Close(ctx context.Context) error {
	return a.sess.Close(ctx)
}

func (r *Retriever) session(ctx context.Context) runner {
	if r.newSession != nil {
		return r.newSession(ctx)
	}
	sess := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	return &neo4jSessionAdapter{sess: sess}
}

// Fetch validates the request path against the registry, executes it, and
// returns matching subgraphs. An undefined path fails with a
// domain.ErrInvalidQueryShape-wrapping error before touching the store.
func (r *Retriever) Fetch(ctx context.Context, req TraversalRequest) ([]Subgraph, error) {
	terminal, err := r.registry.ValidatePath(req.Start, req.Hops)
	if err != nil {
		return nil, err
	}

	cypher, params, err := buildCypher(r.registry, req)
	if err != nil {
		return nil, err
	}

	sess := r.session(ctx)
	defer sess.Close(ctx)

	res, err := sess.Run(ctx, cypher, params)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("graph: fetch %s: %w", req.Start, domain.ErrRetrievalTimeout)
		}
		return nil, fmt.Errorf("graph: fetch %s: %w", req.Start, err)
	}

	var subgraphs []Subgraph
	for res.Next(ctx) {
		rec := res.Record()
		sg, err := r.subgraphFromRecord(rec, req.Start, terminal, len(req.Hops) > 0)
		if err != nil {
			return nil, err
		}
		subgraphs = append(subgraphs, sg)
	}
	return subgraphs, nil
}

// subgraphFromRecord converts one result row into a Subgraph, deduplicating
// terminal records by their identifying attribute.
func (r *Retriever) subgraphFromRecord(rec *neo4j.Record, start, terminal domain.EntityType, hasTerms bool) (Subgraph, error) {
	startVal, ok := rec.Get("start")
	if !ok {
		return Subgraph{}, fmt.Errorf("graph: result row missing start entity")
	}
	startNode, ok := startVal.(dbtype.Node)
	if !ok {
		return Subgraph{}, fmt.Errorf("graph: unexpected start value type %T", startVal)
	}
	sg := Subgraph{Start: Record{Type: start, Props: startNode.Props}}

	if !hasTerms {
		return sg, nil
	}

	termsVal, ok := rec.Get("terms")
	if !ok {
		return sg, nil
	}
	termList, ok := termsVal.([]any)
	if !ok {
		return sg, nil
	}

	seen := make(map[string]bool)
	for _, raw := range termList {
		node, ok := raw.(dbtype.Node)
		if !ok {
			continue
		}
		rec := Record{Type: terminal, Props: node.Props}
		id := r.RecordID(rec)
		if id != "" && seen[id] {
			continue
		}
		seen[id] = true
		sg.Terminals = append(sg.Terminals, rec)
	}
	sortRecords(sg.Terminals, r.RecordID)
	return sg, nil
}

// RecordID returns a record's identifying attribute value per the schema.
func (r *Retriever) RecordID(rec Record) string {
	return RecordID(r.registry, rec)
}

// sortRecords orders records by id so equal-priority matches are stable.
func sortRecords(recs []Record, id func(Record) string) {
	sort.SliceStable(recs, func(i, j int) bool { return id(recs[i]) < id(recs[j]) })
}

// Ref builds an EntityRef for a record, preferring a display name when the
// record carries one.
func (r *Retriever) Ref(rec Record) domain.EntityRef {
	return RecordRef(r.registry, rec)
}
