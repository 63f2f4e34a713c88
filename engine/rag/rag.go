// Package rag orchestrates a conversational turn: plan retrieval against the
// session state, execute graph and vector requests concurrently with a
// fallback policy, assemble a ranked context bundle, and hand it to answer
// synthesis. Sub-retrieval failures degrade the bundle, never the turn.
package rag

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/PartSenseAI/partsense-mvp/engine/domain"
	"github.com/PartSenseAI/partsense-mvp/engine/graph"
	"github.com/PartSenseAI/partsense-mvp/engine/planner"
	"github.com/PartSenseAI/partsense-mvp/engine/semantic"
	"github.com/PartSenseAI/partsense-mvp/engine/session"
	"github.com/PartSenseAI/partsense-mvp/pkg/fn"
	"github.com/PartSenseAI/partsense-mvp/pkg/metrics"
)

// GraphRetriever executes validated traversal requests.
type GraphRetriever interface {
	Fetch(ctx context.Context, req graph.TraversalRequest) ([]graph.Subgraph, error)
}

// VectorRetriever runs similarity search over one content type.
type VectorRetriever interface {
	Search(ctx context.Context, queryText string, ct domain.ContentType, topK int) ([]semantic.Hit, error)
}

// Synthesizer produces the final grounded answer for a turn.
type Synthesizer interface {
	Synthesize(ctx context.Context, utterance string, bundle Bundle, st session.State) (string, error)
}

// Options configures the orchestrator.
type Options struct {
	// RetrievalTimeout bounds each individual retrieval request.
	RetrievalTimeout time.Duration
}

// DefaultOptions returns the default per-request retrieval budget.
func DefaultOptions() Options {
	return Options{RetrievalTimeout: 3 * time.Second}
}

// Reply is the outcome of one conversational turn.
type Reply struct {
	SessionID string           `json:"session_id"`
	Answer    string           `json:"answer"`
	Intents   []planner.Intent `json:"intents,omitempty"`
	Clarify   bool             `json:"clarify,omitempty"`
	Snippets  int              `json:"snippets"`
}

// Service wires the planner, retrievers, assembler, synthesizer, and session
// store into the query pipeline.
type Service struct {
	planner   *planner.Planner
	graph     GraphRetriever
	vector    VectorRetriever
	assembler *Assembler
	synth     Synthesizer
	sessions  *session.Manager
	opts      Options
	logger    *slog.Logger
	tracer    trace.Tracer

	queries    *metrics.Counter
	clarifies  *metrics.Counter
	fallbacks  *metrics.Counter
	graphErrs  *metrics.Counter
	vectorErrs *metrics.Counter
	synthErrs  *metrics.Counter
	inflight   *metrics.Gauge
	duration   *metrics.Histogram
}

// NewService creates the orchestrator.
func NewService(
	p *planner.Planner,
	g GraphRetriever,
	v VectorRetriever,
	a *Assembler,
	synth Synthesizer,
	sessions *session.Manager,
	opts Options,
	reg *metrics.Registry,
	logger *slog.Logger,
) *Service {
	if opts.RetrievalTimeout <= 0 {
		opts.RetrievalTimeout = DefaultOptions().RetrievalTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	if reg == nil {
		reg = metrics.New()
	}
	return &Service{
		planner:   p,
		graph:     g,
		vector:    v,
		assembler: a,
		synth:     synth,
		sessions:  sessions,
		opts:      opts,
		logger:    logger,
		tracer:    otel.Tracer("engine/rag"),

		queries:   reg.Counter("rag_queries_total", "Conversational turns processed"),
		clarifies: reg.Counter("rag_clarify_total", "Turns answered with a clarifying question"),
		fallbacks: reg.Counter("rag_fallback_total", "Vector fallbacks run for empty graph requests"),
		graphErrs: reg.Counter(metrics.WithLabels("rag_retrieval_errors_total", "kind", "graph"),
			"Retrieval requests that failed"),
		vectorErrs: reg.Counter(metrics.WithLabels("rag_retrieval_errors_total", "kind", "vector"),
			"Retrieval requests that failed"),
		synthErrs: reg.Counter("rag_synthesis_failures_total", "Turns that fell back to the apology reply"),
		inflight:  reg.Gauge("rag_inflight_queries", "Turns currently being processed"),
		duration: reg.Histogram("rag_query_duration_seconds", "End-to-end turn latency",
			[]float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}),
	}
}

// Query runs one conversational turn. The returned error is non-nil only for
// invalid input; operational failures degrade to a clarification or apology
// answer instead.
func (s *Service) Query(ctx context.Context, sessionID, message string) (Reply, error) {
	ctx, span := s.tracer.Start(ctx, "rag.query",
		trace.WithAttributes(attribute.String("session.id", sessionID)))
	defer span.End()

	start := time.Now()
	s.queries.Inc()
	s.inflight.Inc()
	defer s.inflight.Dec()
	defer s.duration.Since(start)

	if err := domain.ValidateMessage(message); err != nil {
		return Reply{}, err
	}

	st := s.sessions.Get(sessionID)
	plan := s.planner.Plan(message, st)
	span.SetAttributes(attribute.Int("plan.requests", len(plan.Requests)))

	if plan.IsClarify() {
		s.clarifies.Inc()
		s.sessions.Append(sessionID, domain.Turn{User: message, Assistant: plan.Clarify}, nil)
		return Reply{
			SessionID: sessionID,
			Answer:    plan.Clarify,
			Intents:   plan.Intents,
			Clarify:   true,
		}, nil
	}

	graphs, vectors := s.retrieve(ctx, plan)
	bundle := s.assembler.Assemble(graphs, vectors)
	span.SetAttributes(attribute.Int("bundle.snippets", len(bundle.Snippets)))

	answerText, err := s.synth.Synthesize(ctx, message, bundle, st)
	if err != nil {
		// The synthesizer returns usable apology text on final failure.
		s.synthErrs.Inc()
		s.logger.Error("synthesis degraded to apology", "session_id", sessionID, "error", err)
	}

	mentions := plan.Mentions
	if ref, ok := topPartRef(bundle); ok {
		mentions = append(mentions, ref)
	}
	s.sessions.Append(sessionID, domain.Turn{User: message, Assistant: answerText}, mentions)

	return Reply{
		SessionID: sessionID,
		Answer:    answerText,
		Intents:   plan.Intents,
		Snippets:  len(bundle.Snippets),
	}, nil
}

// retrievalOutcome carries one request's results back from the fan-out.
type retrievalOutcome struct {
	graph  *GraphResult
	vector *VectorResult
}

// retrieve executes the plan's requests concurrently. Each retrieval call gets
// its own timeout; a failed request contributes nothing and the rest proceed.
// A graph request that returns zero rows runs its paired vector fallback
// before giving up, on a fresh timeout so a slow graph query cannot starve it.
func (s *Service) retrieve(ctx context.Context, plan planner.Plan) ([]GraphResult, []VectorResult) {
	ctx, span := s.tracer.Start(ctx, "rag.retrieve")
	defer span.End()

	tasks := make([]func() retrievalOutcome, 0, len(plan.Requests))
	for i, req := range plan.Requests {
		i, req := i, req
		tasks = append(tasks, func() retrievalOutcome {
			switch req.Kind {
			case planner.KindGraph:
				return s.runGraph(ctx, i, req)
			default:
				return s.runVector(ctx, i, req.Vector, false)
			}
		})
	}

	var graphs []GraphResult
	var vectors []VectorResult
	for _, out := range fn.FanOut(tasks...) {
		if out.graph != nil {
			graphs = append(graphs, *out.graph)
		}
		if out.vector != nil {
			vectors = append(vectors, *out.vector)
		}
	}
	return graphs, vectors
}

func (s *Service) runGraph(ctx context.Context, idx int, req planner.Request) retrievalOutcome {
	gctx, cancel := context.WithTimeout(ctx, s.opts.RetrievalTimeout)
	subgraphs, err := s.graph.Fetch(gctx, req.Graph)
	cancel()
	switch {
	case errors.Is(err, domain.ErrInvalidQueryShape):
		// The planner emitted a path the schema does not define. That is a
		// planner bug, not user error; log loudly and drop the request.
		s.graphErrs.Inc()
		s.logger.Error("planner emitted invalid traversal path",
			"start", req.Graph.Start, "hops", len(req.Graph.Hops), "error", err)
	case err != nil:
		s.graphErrs.Inc()
		s.logger.Warn("graph retrieval failed", "start", req.Graph.Start, "error", err)
	}

	rowCount := 0
	for _, sg := range subgraphs {
		rowCount += len(sg.Terminals)
		if len(sg.Terminals) == 0 {
			rowCount++
		}
	}
	if rowCount > 0 {
		return retrievalOutcome{graph: &GraphResult{ReqIdx: idx, Subgraphs: subgraphs}}
	}

	if req.Fallback == nil {
		return retrievalOutcome{}
	}
	// Fresh budget: the graph fetch may have consumed its whole timeout, and
	// the fallback is the last chance to ground this request.
	s.fallbacks.Inc()
	return s.runVector(ctx, idx, *req.Fallback, true)
}

func (s *Service) runVector(ctx context.Context, idx int, vr planner.VectorRequest, fallback bool) retrievalOutcome {
	vctx, cancel := context.WithTimeout(ctx, s.opts.RetrievalTimeout)
	defer cancel()
	hits, err := s.vector.Search(vctx, vr.Query, vr.ContentType, vr.TopK)
	if err != nil {
		s.vectorErrs.Inc()
		s.logger.Warn("vector retrieval failed",
			"content_type", vr.ContentType, "fallback", fallback, "error", err)
		return retrievalOutcome{}
	}
	return retrievalOutcome{vector: &VectorResult{ReqIdx: idx, Fallback: fallback, Hits: hits}}
}

// topPartRef returns the highest-ranked graph-sourced part in the bundle, so
// a follow-up like "how do I install it" can resolve the reference.
func topPartRef(bundle Bundle) (domain.EntityRef, bool) {
	for _, sn := range bundle.Snippets {
		if sn.Provenance == ProvGraph && sn.Source.Type == domain.EntityPart && sn.Source.ID != "" {
			return sn.Source, true
		}
	}
	return domain.EntityRef{}, false
}
