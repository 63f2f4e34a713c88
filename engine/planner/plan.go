// Package planner interprets a user utterance against session state and
// produces a retrieval plan: an ordered set of graph and vector retrieval
// requests with a fallback policy, or a clarifying question when nothing
// usable can be extracted.
package planner

import (
	"github.com/PartSenseAI/partsense-mvp/engine/domain"
	"github.com/PartSenseAI/partsense-mvp/engine/graph"
)

// Intent classifies what the utterance is asking for.
type Intent string

const (
	IntentSymptomDiagnosis  Intent = "symptom-diagnosis"
	IntentPartLookupByModel Intent = "part-lookup-by-model"
	IntentPartLookupByID    Intent = "part-lookup-by-id"
	IntentCompatibility     Intent = "compatibility-check"
	IntentInstallation      Intent = "installation-how-to"
	IntentGeneralQA         Intent = "general-qa"
	IntentFollowUp          Intent = "follow-up-reference"
)

// RequestKind tags a retrieval request as graph or vector.
type RequestKind string

const (
	KindGraph  RequestKind = "graph"
	KindVector RequestKind = "vector"
)

// VectorRequest is a similarity search over one content type.
type VectorRequest struct {
	Query       string
	ContentType domain.ContentType
	TopK        int
}

// Request is one retrieval in a plan. Graph requests always carry a paired
// vector fallback over the same semantic scope, attempted when the graph
// request returns zero results.
type Request struct {
	Kind     RequestKind
	Intent   Intent
	Graph    graph.TraversalRequest // set when Kind == KindGraph
	Vector   VectorRequest          // set when Kind == KindVector
	Fallback *VectorRequest         // graph requests only
}

// Plan is the planner's output. When Clarify is non-empty the plan carries no
// requests and the question is surfaced verbatim to the user.
type Plan struct {
	Intents  []Intent
	Requests []Request
	Clarify  string
	// Mentions are the entities resolved from the utterance (or via
	// anaphora), recorded into the session once the turn completes.
	Mentions []domain.EntityRef
}

// IsClarify reports whether the plan is a clarification request.
func (p Plan) IsClarify() bool { return p.Clarify != "" }
