package rag

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/PartSenseAI/partsense-mvp/engine/domain"
	"github.com/PartSenseAI/partsense-mvp/engine/graph"
	"github.com/PartSenseAI/partsense-mvp/engine/planner"
	"github.com/PartSenseAI/partsense-mvp/engine/schema"
	"github.com/PartSenseAI/partsense-mvp/engine/semantic"
	"github.com/PartSenseAI/partsense-mvp/engine/session"
	"github.com/PartSenseAI/partsense-mvp/pkg/metrics"
)

// --- stubs ---

type stubGraph struct {
	mu        sync.Mutex
	subgraphs []graph.Subgraph
	err       error
	hang      bool // block until the request context expires
	calls     []graph.TraversalRequest
}

func (s *stubGraph) Fetch(ctx context.Context, req graph.TraversalRequest) ([]graph.Subgraph, error) {
	s.mu.Lock()
	s.calls = append(s.calls, req)
	hang := s.hang
	s.mu.Unlock()
	if hang {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subgraphs, s.err
}

type vectorCall struct {
	query   string
	ct      domain.ContentType
	ctxDead bool
}

type stubVector struct {
	mu    sync.Mutex
	hits  map[domain.ContentType][]semantic.Hit
	err   error
	calls []vectorCall
}

func (s *stubVector) Search(ctx context.Context, q string, ct domain.ContentType, _ int) ([]semantic.Hit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, vectorCall{query: q, ct: ct, ctxDead: ctx.Err() != nil})
	if s.err != nil {
		return nil, s.err
	}
	return s.hits[ct], nil
}

type stubSynth struct {
	mu         sync.Mutex
	reply      string
	err        error
	calls      int
	lastBundle Bundle
}

func (s *stubSynth) Synthesize(_ context.Context, _ string, bundle Bundle, _ session.State) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.lastBundle = bundle
	return s.reply, s.err
}

func newTestService(t *testing.T, g GraphRetriever, v VectorRetriever, synth Synthesizer) (*Service, *session.Manager) {
	t.Helper()
	reg := schema.New()
	sessions := session.NewManager(session.DefaultOptions(), nil)
	t.Cleanup(sessions.Close)

	svc := NewService(
		planner.New(reg, nil),
		g, v,
		NewAssembler(reg, DefaultAssemblerOpts()),
		synth,
		sessions,
		Options{RetrievalTimeout: time.Second},
		metrics.New(),
		nil,
	)
	return svc, sessions
}

func diagnosisSubgraph() []graph.Subgraph {
	return []graph.Subgraph{{
		Start: graph.Record{Type: domain.EntityModel, Props: map[string]any{"model_num": "WDT780SAEM1"}},
		Terminals: []graph.Record{{
			Type:  domain.EntityPart,
			Props: map[string]any{"id": "PS1", "name": "Ice Maker Assembly", "price": 89.95},
		}},
	}}
}

// --- tests ---

func TestQueryEndToEnd(t *testing.T) {
	g := &stubGraph{subgraphs: diagnosisSubgraph()}
	v := &stubVector{hits: map[domain.ContentType][]semantic.Hit{
		domain.ContentStories: {{ID: "s1", Score: 0.8, Content: "I replaced mine", EntityType: domain.EntityStory, EntityID: "S1"}},
	}}
	synth := &stubSynth{reply: "Replace the Ice Maker Assembly (PS1)."}
	svc, sessions := newTestService(t, g, v, synth)

	reply, err := svc.Query(context.Background(), "s1", "My Whirlpool WDT780SAEM1 ice maker is not making ice")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if reply.Answer != "Replace the Ice Maker Assembly (PS1)." {
		t.Fatalf("unexpected answer: %q", reply.Answer)
	}
	if reply.Clarify {
		t.Fatal("should not clarify")
	}
	if len(g.calls) == 0 {
		t.Fatal("graph retriever was never called")
	}
	if synth.calls != 1 {
		t.Fatalf("synthesizer calls = %d, want 1", synth.calls)
	}
	if synth.lastBundle.Empty() {
		t.Fatal("bundle handed to synthesis should not be empty")
	}
	top := synth.lastBundle.Snippets[0]
	if top.Provenance != ProvGraph || top.Source.ID != "PS1" {
		t.Fatalf("top snippet should be the graph part, got %+v", top)
	}

	// The turn and the resolved part land in the session.
	st := sessions.Get("s1")
	if len(st.Turns) != 1 || st.Turns[0].Assistant != reply.Answer {
		t.Fatalf("turn not recorded: %+v", st.Turns)
	}
	if ref, ok := st.LastPart(); !ok || ref.ID != "PS1" {
		t.Fatalf("top part should be remembered for follow-ups, got %+v, %v", ref, ok)
	}
	if ref, ok := st.LastModel(); !ok || ref.ID != "WDT780SAEM1" {
		t.Fatalf("model mention should be remembered, got %+v, %v", ref, ok)
	}
}

func TestQueryFallbackOnEmptyGraph(t *testing.T) {
	g := &stubGraph{} // zero rows for every graph request
	v := &stubVector{hits: map[domain.ContentType][]semantic.Hit{
		domain.ContentStories: {{ID: "s1", Score: 0.7, Content: "story text", EntityType: domain.EntityStory, EntityID: "S1"}},
	}}
	synth := &stubSynth{reply: "Based on similar repairs..."}
	svc, _ := newTestService(t, g, v, synth)

	_, err := svc.Query(context.Background(), "s1", "My WDT780SAEM1 ice maker is not making ice")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}

	var sawFallback bool
	for _, sn := range synth.lastBundle.Snippets {
		if sn.Provenance == ProvGraphFallback {
			sawFallback = true
		}
	}
	if !sawFallback {
		t.Fatalf("empty graph results should surface fallback snippets, bundle: %+v", synth.lastBundle.Snippets)
	}
}

func TestQueryFallbackSurvivesGraphTimeout(t *testing.T) {
	g := &stubGraph{hang: true} // consumes its entire retrieval budget
	v := &stubVector{hits: map[domain.ContentType][]semantic.Hit{
		domain.ContentStories: {{ID: "s1", Score: 0.7, Content: "story text", EntityType: domain.EntityStory, EntityID: "S1"}},
	}}
	synth := &stubSynth{reply: "Based on similar repairs..."}

	reg := schema.New()
	sessions := session.NewManager(session.DefaultOptions(), nil)
	t.Cleanup(sessions.Close)
	svc := NewService(
		planner.New(reg, nil),
		g, v,
		NewAssembler(reg, DefaultAssemblerOpts()),
		synth,
		sessions,
		Options{RetrievalTimeout: 25 * time.Millisecond},
		metrics.New(),
		nil,
	)

	_, err := svc.Query(context.Background(), "s1", "My WDT780SAEM1 ice maker is not making ice")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}

	v.mu.Lock()
	calls := append([]vectorCall(nil), v.calls...)
	v.mu.Unlock()
	if len(calls) == 0 {
		t.Fatal("vector fallback should still run after the graph request times out")
	}
	for _, c := range calls {
		if c.ctxDead {
			t.Fatalf("fallback for %s ran on an already-expired context", c.ct)
		}
	}

	var sawFallback bool
	for _, sn := range synth.lastBundle.Snippets {
		if sn.Provenance == ProvGraphFallback {
			sawFallback = true
		}
	}
	if !sawFallback {
		t.Fatalf("fallback snippets should reach synthesis, bundle: %+v", synth.lastBundle.Snippets)
	}
}

func TestQueryClarify(t *testing.T) {
	g := &stubGraph{}
	v := &stubVector{}
	synth := &stubSynth{reply: "should not be used"}
	svc, sessions := newTestService(t, g, v, synth)

	reply, err := svc.Query(context.Background(), "s1", "is it ok?")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if !reply.Clarify || reply.Answer == "" {
		t.Fatalf("expected clarify reply, got %+v", reply)
	}
	if synth.calls != 0 {
		t.Fatal("clarify turns must not call the model")
	}
	if len(g.calls) != 0 || len(v.calls) != 0 {
		t.Fatal("clarify turns must not retrieve")
	}
	if len(sessions.Get("s1").Turns) != 1 {
		t.Fatal("clarify turn should still be recorded")
	}
}

func TestQueryRejectsInvalidMessage(t *testing.T) {
	svc, sessions := newTestService(t, &stubGraph{}, &stubVector{}, &stubSynth{})

	_, err := svc.Query(context.Background(), "s1", "x")
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !errors.Is(err, domain.ErrMessageTooShort) {
		t.Fatalf("expected ErrMessageTooShort, got %v", err)
	}
	if len(sessions.Get("s1").Turns) != 0 {
		t.Fatal("invalid messages must not be recorded")
	}
}

func TestQueryAbsorbsGraphFailure(t *testing.T) {
	g := &stubGraph{err: errors.New("neo4j down")}
	v := &stubVector{hits: map[domain.ContentType][]semantic.Hit{
		domain.ContentQnA: {{ID: "q1", Score: 0.9, Content: "qna text", EntityType: domain.EntityQnA, EntityID: "Q1"}},
	}}
	synth := &stubSynth{reply: "best effort answer"}
	svc, _ := newTestService(t, g, v, synth)

	reply, err := svc.Query(context.Background(), "s1", "What is PS11752778?")
	if err != nil {
		t.Fatalf("retrieval failures must not fail the turn: %v", err)
	}
	if reply.Answer != "best effort answer" {
		t.Fatalf("unexpected answer: %q", reply.Answer)
	}
	if synth.lastBundle.Empty() {
		t.Fatal("vector results should still reach synthesis")
	}
}

func TestQuerySurfacesApologyOnSynthFailure(t *testing.T) {
	g := &stubGraph{subgraphs: diagnosisSubgraph()}
	v := &stubVector{}
	synth := &stubSynth{reply: "I'm sorry, I'm having trouble answering right now.", err: domain.ErrModelUnavailable}
	svc, sessions := newTestService(t, g, v, synth)

	reply, err := svc.Query(context.Background(), "s1", "My WDT780SAEM1 is not making ice")
	if err != nil {
		t.Fatalf("model failure must not fail the turn: %v", err)
	}
	if reply.Answer != synth.reply {
		t.Fatalf("apology text should be surfaced as the answer, got %q", reply.Answer)
	}
	if len(sessions.Get("s1").Turns) != 1 {
		t.Fatal("apology turn should still be recorded")
	}
}

func TestQueryAllRetrievalsFailYieldsEmptyBundle(t *testing.T) {
	g := &stubGraph{err: errors.New("down")}
	v := &stubVector{err: errors.New("down")}
	synth := &stubSynth{reply: "I could not find reference information."}
	svc, _ := newTestService(t, g, v, synth)

	_, err := svc.Query(context.Background(), "s1", "What is PS11752778?")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if synth.calls != 1 {
		t.Fatal("synthesis should still run with an empty bundle")
	}
	if !synth.lastBundle.Empty() {
		t.Fatalf("bundle should be empty, got %+v", synth.lastBundle.Snippets)
	}
}
