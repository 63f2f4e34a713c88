package rag

import (
	"reflect"
	"strings"
	"testing"

	"github.com/PartSenseAI/partsense-mvp/engine/domain"
	"github.com/PartSenseAI/partsense-mvp/engine/graph"
	"github.com/PartSenseAI/partsense-mvp/engine/schema"
	"github.com/PartSenseAI/partsense-mvp/engine/semantic"
)

func partRecord(id, name string) graph.Record {
	return graph.Record{Type: domain.EntityPart, Props: map[string]any{"id": id, "name": name}}
}

func modelStart(num string) graph.Record {
	return graph.Record{Type: domain.EntityModel, Props: map[string]any{"model_num": num}}
}

func TestAssembleTierOrdering(t *testing.T) {
	a := NewAssembler(schema.New(), AssemblerOpts{})

	graphs := []GraphResult{{
		ReqIdx: 0,
		Subgraphs: []graph.Subgraph{{
			Start:     modelStart("M1"),
			Terminals: []graph.Record{partRecord("P1", "Ice Maker Assembly")},
		}},
	}}
	vectors := []VectorResult{
		{ReqIdx: 3, Hits: []semantic.Hit{
			{ID: "v1", Score: 0.99, Content: "vector story", EntityType: domain.EntityStory, EntityID: "S1"},
		}},
		{ReqIdx: 1, Fallback: true, Hits: []semantic.Hit{
			{ID: "f1", Score: 0.40, Content: "fallback qna", EntityType: domain.EntityQnA, EntityID: "Q1"},
		}},
	}

	bundle := a.Assemble(graphs, vectors)
	if len(bundle.Snippets) != 3 {
		t.Fatalf("expected 3 snippets, got %d", len(bundle.Snippets))
	}
	wantProv := []Provenance{ProvGraph, ProvGraphFallback, ProvVector}
	for i, want := range wantProv {
		if bundle.Snippets[i].Provenance != want {
			t.Fatalf("snippet %d provenance = %s, want %s (graph before fallback before vector)",
				i, bundle.Snippets[i].Provenance, want)
		}
	}
	if bundle.Snippets[0].Source.ID != "P1" {
		t.Fatalf("top snippet should be the graph part, got %+v", bundle.Snippets[0].Source)
	}
}

func TestAssembleDedupePrefersGraph(t *testing.T) {
	a := NewAssembler(schema.New(), AssemblerOpts{})

	graphs := []GraphResult{{
		Subgraphs: []graph.Subgraph{{
			Start:     modelStart("M1"),
			Terminals: []graph.Record{partRecord("P1", "Drain Pump")},
		}},
	}}
	vectors := []VectorResult{{Hits: []semantic.Hit{
		{ID: "v1", Score: 0.88, Content: "pump content", EntityType: domain.EntityPart, EntityID: "P1"},
		{ID: "v2", Score: 0.70, Content: "other part", EntityType: domain.EntityPart, EntityID: "P2"},
	}}}

	bundle := a.Assemble(graphs, vectors)
	if len(bundle.Snippets) != 2 {
		t.Fatalf("duplicate entity should collapse, got %d snippets", len(bundle.Snippets))
	}
	top := bundle.Snippets[0]
	if top.Provenance != ProvGraph || top.Source.ID != "P1" {
		t.Fatalf("graph snippet should win the duplicate, got %+v", top)
	}
	if top.Score != 0.88 {
		t.Fatalf("vector score should attach to the surviving graph snippet, got %f", top.Score)
	}
}

func TestAssembleVectorOrderByScore(t *testing.T) {
	a := NewAssembler(schema.New(), AssemblerOpts{})

	vectors := []VectorResult{{Hits: []semantic.Hit{
		{ID: "low", Score: 0.3, Content: "low", EntityID: "a", EntityType: domain.EntityQnA},
		{ID: "high", Score: 0.9, Content: "high", EntityID: "b", EntityType: domain.EntityQnA},
		{ID: "mid", Score: 0.6, Content: "mid", EntityID: "c", EntityType: domain.EntityQnA},
	}}}

	bundle := a.Assemble(nil, vectors)
	var got []string
	for _, s := range bundle.Snippets {
		got = append(got, s.Text)
	}
	if !reflect.DeepEqual(got, []string{"high", "mid", "low"}) {
		t.Fatalf("vector snippets out of order: %v", got)
	}
}

func TestAssembleSnippetCap(t *testing.T) {
	a := NewAssembler(schema.New(), AssemblerOpts{MaxSnippets: 2, MaxChars: 100000})

	var hits []semantic.Hit
	for _, id := range []string{"a", "b", "c", "d"} {
		hits = append(hits, semantic.Hit{ID: id, EntityID: id, EntityType: domain.EntityQnA, Score: 0.5, Content: "x"})
	}
	bundle := a.Assemble(nil, []VectorResult{{Hits: hits}})
	if len(bundle.Snippets) != 2 {
		t.Fatalf("cap not enforced: %d snippets", len(bundle.Snippets))
	}
}

func TestAssembleCharBudgetDropsWholeSnippets(t *testing.T) {
	a := NewAssembler(schema.New(), AssemblerOpts{MaxSnippets: 10, MaxChars: 25})

	vectors := []VectorResult{{Hits: []semantic.Hit{
		{ID: "a", EntityID: "a", EntityType: domain.EntityQnA, Score: 0.9, Content: strings.Repeat("x", 10)},
		{ID: "b", EntityID: "b", EntityType: domain.EntityQnA, Score: 0.8, Content: strings.Repeat("y", 10)},
		{ID: "c", EntityID: "c", EntityType: domain.EntityQnA, Score: 0.7, Content: strings.Repeat("z", 10)},
	}}}

	bundle := a.Assemble(nil, vectors)
	if len(bundle.Snippets) != 2 {
		t.Fatalf("expected 2 whole snippets within budget, got %d", len(bundle.Snippets))
	}
	for _, s := range bundle.Snippets {
		if len(s.Text) != 10 {
			t.Fatal("snippets must never be cut mid-record")
		}
	}
	if bundle.Chars() > 25 {
		t.Fatalf("budget exceeded: %d chars", bundle.Chars())
	}
}

func TestAssembleIdempotent(t *testing.T) {
	a := NewAssembler(schema.New(), AssemblerOpts{})

	graphs := []GraphResult{{
		Subgraphs: []graph.Subgraph{{
			Start:     modelStart("M1"),
			Terminals: []graph.Record{partRecord("P1", "Gasket"), partRecord("P2", "Valve")},
		}},
	}}
	vectors := []VectorResult{{Hits: []semantic.Hit{
		{ID: "v1", Score: 0.5, Content: "story", EntityType: domain.EntityStory, EntityID: "S1"},
	}}}

	first := a.Assemble(graphs, vectors)
	for i := 0; i < 5; i++ {
		if !reflect.DeepEqual(a.Assemble(graphs, vectors), first) {
			t.Fatal("assembly must be deterministic for identical inputs")
		}
	}
}

func TestRenderRecordPrefixesStart(t *testing.T) {
	sg := graph.Subgraph{
		Start:     modelStart("WDT780SAEM1"),
		Terminals: []graph.Record{partRecord("P1", "Ice Maker Assembly")},
	}
	text := renderRecord(sg.Terminals[0], sg)
	if !strings.Contains(text, "WDT780SAEM1") {
		t.Fatalf("terminal snippet should name its start entity:\n%s", text)
	}
	if !strings.Contains(text, "name: Ice Maker Assembly") {
		t.Fatalf("snippet should render whitelisted props:\n%s", text)
	}
}
