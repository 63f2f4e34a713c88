package planner

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/PartSenseAI/partsense-mvp/engine/domain"
	"github.com/PartSenseAI/partsense-mvp/engine/graph"
	"github.com/PartSenseAI/partsense-mvp/engine/schema"
	"github.com/PartSenseAI/partsense-mvp/engine/session"
	"github.com/PartSenseAI/partsense-mvp/pkg/partnlp"
)

// Planner builds retrieval plans. It is a pure function of the utterance and
// session state; the registry only supplies attribute shapes and paths.
type Planner struct {
	registry *schema.Registry
	logger   *slog.Logger
	topK     int
}

// New creates a Planner.
func New(registry *schema.Registry, logger *slog.Logger) *Planner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Planner{registry: registry, logger: logger, topK: 5}
}

const clarifyQuestion = "Could you tell me the model number of your appliance, or the part number you are asking about?"

// anaphoraRe detects references that lean on conversation state.
var anaphoraRe = regexp.MustCompile(`(?i)\b(it|its|this|that|the same|my (?:model|unit|machine|appliance)|the (?:model|unit|machine|appliance))\b`)

// compatibilityRe detects compatibility phrasing.
var compatibilityRe = regexp.MustCompile(`(?i)\b(compatib|fits?\b|work(?:s)? (?:with|on|for)|goes? (?:with|on))`)

// installRe detects installation phrasing.
var installRe = regexp.MustCompile(`(?i)\b(install|replace|replacing|how (?:do|to|can) .{0,24}(?:fix|change|put|remove|swap)|instructions?)\b`)

// Plan classifies the utterance, extracts entity mentions, and produces an
// ordered retrieval plan. It never silently guesses a model number: when no
// entity filter and no usable free text remain, it returns a Clarify plan.
func (p *Planner) Plan(utterance string, st session.State) Plan {
	ex := partnlp.Extract(utterance)
	keywords := extractKeywords(utterance)

	plan := Plan{}
	isFollowUp := false

	// Anaphora resolution: pull last-mentioned entities in when the
	// utterance refers back and extraction found nothing explicit.
	if anaphoraRe.MatchString(utterance) {
		if len(ex.ModelNums) == 0 {
			if ref, ok := st.LastModel(); ok {
				ex.ModelNums = append(ex.ModelNums, ref.ID)
				isFollowUp = true
			}
		}
		if len(ex.PartNums) == 0 && len(ex.MfrPartNums) == 0 {
			if ref, ok := st.LastPart(); ok {
				ex.PartNums = append(ex.PartNums, ref.ID)
				isFollowUp = true
			}
		}
	}
	if len(ex.Symptoms) == 0 {
		// A bare "how do I fix it" follow-up inherits the open symptom.
		if ref, ok := st.LastSymptom(); ok && anaphoraRe.MatchString(utterance) {
			ex.Symptoms = append(ex.Symptoms, ref.Name)
			isFollowUp = true
		}
	}

	if isFollowUp {
		plan.Intents = append(plan.Intents, IntentFollowUp)
	}

	// Nothing extractable and nothing to search on: ask, never guess.
	if ex.Empty() && len(keywords) == 0 {
		plan.Clarify = clarifyQuestion
		return plan
	}

	p.recordMentions(&plan, ex)

	// Intent classification is additive: an utterance mapping to several
	// intents emits requests for all of them; ranking decides downstream.
	hasModel := len(ex.ModelNums) > 0
	hasPart := len(ex.PartNums) > 0 || len(ex.MfrPartNums) > 0
	wantsCompat := compatibilityRe.MatchString(utterance)
	wantsInstall := installRe.MatchString(utterance)

	if len(ex.Symptoms) > 0 {
		plan.Intents = append(plan.Intents, IntentSymptomDiagnosis)
		p.addSymptomRequests(&plan, ex, utterance)
	}
	if hasPart {
		plan.Intents = append(plan.Intents, IntentPartLookupByID)
		p.addPartLookupRequests(&plan, ex, utterance)
	}
	if wantsCompat && (hasPart || hasModel) {
		plan.Intents = append(plan.Intents, IntentCompatibility)
		p.addCompatibilityRequests(&plan, ex, utterance)
	}
	if wantsInstall && (hasPart || hasModel) {
		plan.Intents = append(plan.Intents, IntentInstallation)
		p.addInstallationRequests(&plan, ex, utterance)
	}
	if hasModel && len(ex.Symptoms) == 0 && !wantsCompat && !wantsInstall {
		plan.Intents = append(plan.Intents, IntentPartLookupByModel)
		p.addModelPartsRequests(&plan, ex, utterance)
	}

	// Always close with a general vector sweep so unresolved free text is
	// carried as a filter instead of blocking the plan. The sweep is part of
	// every plan, so the intent is recorded unconditionally.
	plan.Intents = append(plan.Intents, IntentGeneralQA)
	plan.Requests = append(plan.Requests,
		vectorReq(IntentGeneralQA, utterance, domain.ContentQnA, p.topK),
		vectorReq(IntentGeneralQA, utterance, domain.ContentStories, p.topK),
	)

	p.logger.Debug("plan built",
		"intents", plan.Intents,
		"requests", len(plan.Requests),
		"mentions", len(plan.Mentions),
	)
	return plan
}

func (p *Planner) recordMentions(plan *Plan, ex partnlp.Extraction) {
	for _, m := range ex.ModelNums {
		plan.Mentions = append(plan.Mentions, domain.EntityRef{Type: domain.EntityModel, ID: m, Name: m})
	}
	for _, pn := range ex.PartNums {
		plan.Mentions = append(plan.Mentions, domain.EntityRef{Type: domain.EntityPart, ID: pn, Name: pn})
	}
	for _, pn := range ex.MfrPartNums {
		plan.Mentions = append(plan.Mentions, domain.EntityRef{Type: domain.EntityPart, ID: pn, Name: pn})
	}
	for _, s := range ex.Symptoms {
		plan.Mentions = append(plan.Mentions, domain.EntityRef{Type: domain.EntitySymptom, ID: s, Name: s})
	}
}

// addSymptomRequests plans the Model→Symptom→Part diagnosis path when a
// model is known, and the Symptom→Part path keyed on the symptom text.
func (p *Planner) addSymptomRequests(plan *Plan, ex partnlp.Extraction, utterance string) {
	for _, model := range ex.ModelNums {
		plan.Requests = append(plan.Requests, Request{
			Kind:   KindGraph,
			Intent: IntentSymptomDiagnosis,
			Graph: graph.TraversalRequest{
				Start:  domain.EntityModel,
				Filter: graph.Filter{Field: "model_num", Op: graph.OpEq, Value: model},
				Hops: []schema.Hop{
					{RelType: "HAS_SYMPTOM", Direction: schema.DirOut},
					{RelType: "USES_FIXING_PART", Direction: schema.DirOut},
				},
				Limit: p.topK,
			},
			Fallback: fallbackReq(utterance, domain.ContentStories, p.topK),
		})
	}
	for _, symptom := range ex.Symptoms {
		plan.Requests = append(plan.Requests, Request{
			Kind:   KindGraph,
			Intent: IntentSymptomDiagnosis,
			Graph: graph.TraversalRequest{
				Start:  domain.EntitySymptom,
				Filter: graph.Filter{Field: "name", Op: graph.OpContains, Value: symptom},
				Hops:   []schema.Hop{{RelType: "USES_FIXING_PART", Direction: schema.DirOut}},
				Limit:  p.topK,
			},
			Fallback: fallbackReq(utterance, domain.ContentStories, p.topK),
		})
	}
}

// addPartLookupRequests plans direct part lookups by identifier.
func (p *Planner) addPartLookupRequests(plan *Plan, ex partnlp.Extraction, utterance string) {
	for _, pn := range ex.PartNums {
		plan.Requests = append(plan.Requests, Request{
			Kind:   KindGraph,
			Intent: IntentPartLookupByID,
			Graph: graph.TraversalRequest{
				Start:  domain.EntityPart,
				Filter: graph.Filter{Field: "partselect_num", Op: graph.OpEq, Value: pn},
				Limit:  p.topK,
			},
			Fallback: fallbackReq(utterance, domain.ContentParts, p.topK),
		})
	}
	for _, pn := range ex.MfrPartNums {
		plan.Requests = append(plan.Requests, Request{
			Kind:   KindGraph,
			Intent: IntentPartLookupByID,
			Graph: graph.TraversalRequest{
				Start:  domain.EntityPart,
				Filter: graph.Filter{Field: "manufacturer_part_num", Op: graph.OpEq, Value: pn},
				Limit:  p.topK,
			},
			Fallback: fallbackReq(utterance, domain.ContentParts, p.topK),
		})
	}
}

// addCompatibilityRequests plans Part→Model compatibility checks from either
// direction, depending on which identifiers were mentioned.
func (p *Planner) addCompatibilityRequests(plan *Plan, ex partnlp.Extraction, utterance string) {
	partNums := append(append([]string{}, ex.PartNums...), ex.MfrPartNums...)
	for _, pn := range partNums {
		field := "partselect_num"
		if !strings.HasPrefix(strings.ToUpper(pn), "PS") {
			field = "manufacturer_part_num"
		}
		plan.Requests = append(plan.Requests, Request{
			Kind:   KindGraph,
			Intent: IntentCompatibility,
			Graph: graph.TraversalRequest{
				Start:  domain.EntityPart,
				Filter: graph.Filter{Field: field, Op: graph.OpEq, Value: pn},
				Hops:   []schema.Hop{{RelType: "COMPATIBLE_WITH", Direction: schema.DirOut}},
				Limit:  p.topK,
			},
			Fallback: fallbackReq(utterance, domain.ContentQnA, p.topK),
		})
	}
	if len(partNums) == 0 {
		for _, model := range ex.ModelNums {
			plan.Requests = append(plan.Requests, Request{
				Kind:   KindGraph,
				Intent: IntentCompatibility,
				Graph: graph.TraversalRequest{
					Start:  domain.EntityModel,
					Filter: graph.Filter{Field: "model_num", Op: graph.OpEq, Value: model},
					Hops:   []schema.Hop{{RelType: "HAS_PART", Direction: schema.DirOut}},
					Limit:  p.topK,
				},
				Fallback: fallbackReq(utterance, domain.ContentQnA, p.topK),
			})
		}
	}
}

// addInstallationRequests plans instruction lookups for the mentioned part or
// model plus a vector search over the instructions index.
func (p *Planner) addInstallationRequests(plan *Plan, ex partnlp.Extraction, utterance string) {
	partNums := append(append([]string{}, ex.PartNums...), ex.MfrPartNums...)
	for _, pn := range partNums {
		field := "partselect_num"
		if !strings.HasPrefix(strings.ToUpper(pn), "PS") {
			field = "manufacturer_part_num"
		}
		plan.Requests = append(plan.Requests, Request{
			Kind:   KindGraph,
			Intent: IntentInstallation,
			Graph: graph.TraversalRequest{
				Start:  domain.EntityPart,
				Filter: graph.Filter{Field: field, Op: graph.OpEq, Value: pn},
				Hops:   []schema.Hop{{RelType: "HAS_INSTALLATION_INSTRUCTION", Direction: schema.DirOut}},
				Limit:  p.topK,
			},
			Fallback: fallbackReq(utterance, domain.ContentInstructions, p.topK),
		})
	}
	for _, model := range ex.ModelNums {
		plan.Requests = append(plan.Requests, Request{
			Kind:   KindGraph,
			Intent: IntentInstallation,
			Graph: graph.TraversalRequest{
				Start:  domain.EntityModel,
				Filter: graph.Filter{Field: "model_num", Op: graph.OpEq, Value: model},
				Hops:   []schema.Hop{{RelType: "HAS_INSTALLATION_INSTRUCTION", Direction: schema.DirOut}},
				Limit:  p.topK,
			},
			Fallback: fallbackReq(utterance, domain.ContentInstructions, p.topK),
		})
	}
	plan.Requests = append(plan.Requests, vectorReq(IntentInstallation, utterance, domain.ContentInstructions, p.topK))
}

// addModelPartsRequests plans the Model→Part listing for a bare model mention.
func (p *Planner) addModelPartsRequests(plan *Plan, ex partnlp.Extraction, utterance string) {
	for _, model := range ex.ModelNums {
		plan.Requests = append(plan.Requests, Request{
			Kind:   KindGraph,
			Intent: IntentPartLookupByModel,
			Graph: graph.TraversalRequest{
				Start:  domain.EntityModel,
				Filter: graph.Filter{Field: "model_num", Op: graph.OpEq, Value: model},
				Hops:   []schema.Hop{{RelType: "HAS_PART", Direction: schema.DirOut}},
				Limit:  p.topK,
			},
			Fallback: fallbackReq(utterance, domain.ContentParts, p.topK),
		})
	}
}

func vectorReq(intent Intent, query string, ct domain.ContentType, topK int) Request {
	return Request{
		Kind:   KindVector,
		Intent: intent,
		Vector: VectorRequest{Query: query, ContentType: ct, TopK: topK},
	}
}

func fallbackReq(query string, ct domain.ContentType, topK int) *VectorRequest {
	return &VectorRequest{Query: query, ContentType: ct, TopK: topK}
}

// stopWords filtered out of free-text keyword extraction.
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "is": true, "are": true,
	"was": true, "were": true, "be": true, "been": true, "being": true,
	"have": true, "has": true, "had": true, "do": true, "does": true,
	"did": true, "will": true, "would": true, "could": true, "should": true,
	"may": true, "might": true, "can": true, "shall": true, "to": true,
	"of": true, "in": true, "for": true, "on": true, "with": true,
	"at": true, "by": true, "from": true, "as": true, "into": true,
	"what": true, "where": true, "when": true, "how": true, "which": true,
	"who": true, "this": true, "that": true, "these": true, "those": true,
	"i": true, "me": true, "my": true, "it": true, "its": true,
	"and": true, "but": true, "or": true, "not": true, "you": true,
	"hi": true, "hello": true, "hey": true, "thanks": true, "please": true,
	"there": true, "help": true, "need": true, "want": true, "know": true,
}

// extractKeywords returns the meaningful free-text tokens of an utterance.
func extractKeywords(utterance string) []string {
	words := strings.Fields(strings.ToLower(utterance))
	var keywords []string
	for _, w := range words {
		w = strings.Trim(w, "?.,!;:'\"")
		if len(w) > 2 && !stopWords[w] {
			keywords = append(keywords, w)
		}
	}
	return keywords
}
