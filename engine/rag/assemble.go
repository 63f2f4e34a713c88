package rag

import (
	"fmt"
	"sort"
	"strings"

	"github.com/PartSenseAI/partsense-mvp/engine/domain"
	"github.com/PartSenseAI/partsense-mvp/engine/graph"
	"github.com/PartSenseAI/partsense-mvp/engine/schema"
	"github.com/PartSenseAI/partsense-mvp/engine/semantic"
)

// Provenance tags where a snippet came from.
type Provenance string

const (
	// ProvGraph marks an exact-match graph traversal result.
	ProvGraph Provenance = "graph"
	// ProvGraphFallback marks a vector result retrieved because its paired
	// graph request came back empty.
	ProvGraphFallback Provenance = "graph-fallback"
	// ProvVector marks a plain similarity-search result.
	ProvVector Provenance = "vector"
)

// Snippet is one unit of retrieved context with its provenance.
type Snippet struct {
	Text       string
	Source     domain.EntityRef
	Provenance Provenance
	// Score is the vector similarity when known; zero for pure graph hits
	// unless a duplicate vector hit contributed one.
	Score float32

	tier  int
	order int
}

// Bundle is the assembled, ranked, budget-capped context handed to synthesis.
type Bundle struct {
	Snippets []Snippet
}

// Empty reports whether the bundle carries no context.
func (b Bundle) Empty() bool { return len(b.Snippets) == 0 }

// Chars returns the total character count across snippets.
func (b Bundle) Chars() int {
	n := 0
	for _, s := range b.Snippets {
		n += len(s.Text)
	}
	return n
}

// GraphResult is the outcome of one graph retrieval, tagged with its position
// in the plan so ranking within a tier stays stable.
type GraphResult struct {
	ReqIdx    int
	Subgraphs []graph.Subgraph
}

// VectorResult is the outcome of one vector retrieval. Fallback marks results
// standing in for a zero-row graph request.
type VectorResult struct {
	ReqIdx   int
	Fallback bool
	Hits     []semantic.Hit
}

const (
	tierGraph    = 0
	tierFallback = 1
	tierVector   = 2
)

// AssemblerOpts bounds the assembled context.
type AssemblerOpts struct {
	// MaxSnippets caps the number of snippets in a bundle.
	MaxSnippets int
	// MaxChars caps the total character budget. Snippets are dropped whole
	// from the lowest-ranked tier first; text is never cut mid-record.
	MaxChars int
}

// DefaultAssemblerOpts returns the default context budget.
func DefaultAssemblerOpts() AssemblerOpts {
	return AssemblerOpts{MaxSnippets: 12, MaxChars: 6000}
}

// Assembler merges graph and vector retrieval results into a single ranked
// bundle: exact graph hits first, then fallback hits, then vector hits by
// score. Duplicates referring to the same entity keep the graph snippet and
// carry the vector score as a secondary signal.
type Assembler struct {
	registry *schema.Registry
	opts     AssemblerOpts
}

// NewAssembler creates an Assembler over the given schema registry.
func NewAssembler(registry *schema.Registry, opts AssemblerOpts) *Assembler {
	if opts.MaxSnippets <= 0 {
		opts.MaxSnippets = DefaultAssemblerOpts().MaxSnippets
	}
	if opts.MaxChars <= 0 {
		opts.MaxChars = DefaultAssemblerOpts().MaxChars
	}
	return &Assembler{registry: registry, opts: opts}
}

// Assemble builds a Bundle from retrieval results. It is a pure function of
// its inputs: the same results always assemble to the same bundle.
func (a *Assembler) Assemble(graphs []GraphResult, vectors []VectorResult) Bundle {
	var snippets []Snippet

	// graphKeys tracks entities already covered by a graph snippet so later
	// vector duplicates only contribute their score.
	graphKeys := make(map[string]int)

	for _, gr := range graphs {
		for _, sg := range gr.Subgraphs {
			recs := sg.Terminals
			if len(recs) == 0 {
				recs = []graph.Record{sg.Start}
			}
			for _, rec := range recs {
				ref := graph.RecordRef(a.registry, rec)
				key := entityKey(ref)
				if _, dup := graphKeys[key]; dup {
					continue
				}
				snippets = append(snippets, Snippet{
					Text:       renderRecord(rec, sg),
					Source:     ref,
					Provenance: ProvGraph,
					tier:       tierGraph,
					order:      gr.ReqIdx*1000 + len(snippets),
				})
				graphKeys[key] = len(snippets) - 1
			}
		}
	}

	vectorKeys := make(map[string]bool)
	for _, vr := range vectors {
		prov, tier := ProvVector, tierVector
		if vr.Fallback {
			prov, tier = ProvGraphFallback, tierFallback
		}
		for _, hit := range vr.Hits {
			ref := hit.Ref()
			key := entityKey(ref)
			if key != "/" {
				if idx, dup := graphKeys[key]; dup {
					// Graph wins; keep the similarity score as signal.
					if snippets[idx].Score < hit.Score {
						snippets[idx].Score = hit.Score
					}
					continue
				}
				if vectorKeys[key] {
					continue
				}
				vectorKeys[key] = true
			}
			snippets = append(snippets, Snippet{
				Text:       hit.Content,
				Source:     ref,
				Provenance: prov,
				Score:      hit.Score,
				tier:       tier,
				order:      vr.ReqIdx * 1000,
			})
		}
	}

	sort.SliceStable(snippets, func(i, j int) bool {
		a, b := snippets[i], snippets[j]
		if a.tier != b.tier {
			return a.tier < b.tier
		}
		if a.tier == tierGraph {
			return a.order < b.order
		}
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		return a.Source.ID < b.Source.ID
	})

	// Drop whole snippets from the bottom until both budgets hold.
	if len(snippets) > a.opts.MaxSnippets {
		snippets = snippets[:a.opts.MaxSnippets]
	}
	total := 0
	cut := len(snippets)
	for i, s := range snippets {
		if total+len(s.Text) > a.opts.MaxChars {
			cut = i
			break
		}
		total += len(s.Text)
	}
	snippets = snippets[:cut]

	return Bundle{Snippets: snippets}
}

func entityKey(ref domain.EntityRef) string {
	return string(ref.Type) + "/" + ref.ID
}

// renderKeys is the ordered attribute whitelist for graph records. Anything
// not listed is omitted from the rendered snippet.
var renderKeys = []string{
	"name", "title", "model_num", "partselect_num", "manufacturer_part_num",
	"brand", "product_type", "price", "status", "install_difficulty",
	"install_time", "symptom_detail", "difficulty", "repair_time",
	"description", "content", "text", "question", "answer",
	"works_with_products", "url",
}

// renderRecord flattens a graph record into readable key/value lines. When the
// record is a traversal terminal, the start entity's identity is prefixed so
// the synthesizer can see what the result relates to.
func renderRecord(rec graph.Record, sg graph.Subgraph) string {
	var b strings.Builder
	if len(sg.Terminals) > 0 {
		if v, ok := startLabel(sg.Start); ok {
			fmt.Fprintf(&b, "For %s %s:\n", strings.ToLower(string(sg.Start.Type)), v)
		}
	}
	for _, k := range renderKeys {
		v, ok := rec.Props[k]
		if !ok {
			continue
		}
		s := strings.TrimSpace(fmt.Sprint(v))
		if s == "" {
			continue
		}
		fmt.Fprintf(&b, "%s: %s\n", strings.ReplaceAll(k, "_", " "), s)
	}
	return strings.TrimRight(b.String(), "\n")
}

func startLabel(rec graph.Record) (string, bool) {
	for _, k := range []string{"model_num", "partselect_num", "name", "title"} {
		if v, ok := rec.Props[k]; ok {
			return fmt.Sprint(v), true
		}
	}
	return "", false
}
