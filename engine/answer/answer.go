// Package answer turns an assembled context bundle into a grounded reply via
// a single LLM call per turn, guarded by a circuit breaker and bounded retry.
package answer

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/PartSenseAI/partsense-mvp/engine/domain"
	"github.com/PartSenseAI/partsense-mvp/engine/rag"
	"github.com/PartSenseAI/partsense-mvp/engine/session"
	"github.com/PartSenseAI/partsense-mvp/pkg/fn"
	"github.com/PartSenseAI/partsense-mvp/pkg/resilience"
)

// LLM is the completion surface the synthesizer depends on.
type LLM interface {
	Chat(ctx context.Context, system, user string) (string, error)
}

// Apology is returned verbatim when the model stays unreachable after the
// retry budget is spent.
const Apology = "I'm sorry, I'm having trouble answering right now. Please try again in a moment."

// historyTail bounds how many prior turns are replayed into the prompt.
const historyTail = 4

// Options configures the synthesizer.
type Options struct {
	Retry   fn.RetryOpts
	Breaker resilience.BreakerOpts
}

// DefaultOptions returns retry/breaker settings tuned for a local model.
func DefaultOptions() Options {
	return Options{
		Retry: fn.RetryOpts{
			MaxAttempts: 3,
			InitialWait: 500 * time.Millisecond,
			MaxWait:     5 * time.Second,
			Jitter:      true,
		},
		Breaker: resilience.BreakerOpts{
			FailThreshold: 5,
			Timeout:       30 * time.Second,
			HalfOpenMax:   1,
		},
	}
}

// Synthesizer produces grounded answers from retrieved context.
type Synthesizer struct {
	llm     LLM
	breaker *resilience.Breaker
	retry   fn.RetryOpts
	logger  *slog.Logger
}

// New creates a Synthesizer.
func New(llm LLM, opts Options, logger *slog.Logger) *Synthesizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Synthesizer{
		llm:     llm,
		breaker: resilience.NewBreaker(opts.Breaker),
		retry:   opts.Retry,
		logger:  logger,
	}
}

const systemPrompt = `You are a helpful appliance parts assistant. Answer the
user's question using ONLY the context provided. Each context entry is tagged
with its retrieval source in square brackets; do not repeat the tags in your
answer. If the context does not contain the information needed, say you do not
know and ask for the appliance model number or the part number. Never invent
part numbers, prices, or compatibility claims. Keep answers concise and
practical.`

const emptyContextPrompt = `You are a helpful appliance parts assistant. No
reference information was found for this question. Tell the user you could not
find the answer, and ask for the appliance model number or part number so you
can look it up. Do not guess or invent part details.`

// Synthesize makes exactly one guarded completion attempt sequence for the
// turn. On final failure it returns the fixed apology text along with an
// error wrapping domain.ErrModelUnavailable so callers can still reply.
func (s *Synthesizer) Synthesize(ctx context.Context, utterance string, bundle rag.Bundle, st session.State) (string, error) {
	system := systemPrompt
	if bundle.Empty() {
		system = emptyContextPrompt
	}
	user := buildUserPrompt(utterance, bundle, st)

	res := fn.Retry(ctx, s.retry, func(ctx context.Context) fn.Result[string] {
		return resilience.CallResult(s.breaker, ctx, func(ctx context.Context) fn.Result[string] {
			return fn.FromPair(s.llm.Chat(ctx, system, user))
		})
	})

	reply, err := res.Unwrap()
	if err != nil {
		s.logger.Error("synthesis failed", "error", err)
		return Apology, fmt.Errorf("answer: %w", domain.ErrModelUnavailable)
	}
	return postProcess(reply), nil
}

// buildUserPrompt renders the history tail, the provenance-tagged context, and
// the current question into one user message.
func buildUserPrompt(utterance string, bundle rag.Bundle, st session.State) string {
	var b strings.Builder

	turns := st.Turns
	if len(turns) > historyTail {
		turns = turns[len(turns)-historyTail:]
	}
	if len(turns) > 0 {
		b.WriteString("Conversation so far:\n")
		for _, t := range turns {
			fmt.Fprintf(&b, "User: %s\nAssistant: %s\n", t.User, t.Assistant)
		}
		b.WriteString("\n")
	}

	if !bundle.Empty() {
		b.WriteString("Context:\n")
		for i, sn := range bundle.Snippets {
			fmt.Fprintf(&b, "[%s] (%d)\n%s\n\n", sn.Provenance, i+1, sn.Text)
		}
	}

	fmt.Fprintf(&b, "Question: %s", utterance)
	return b.String()
}

// provTagRe matches provenance tags the model may echo back.
var provTagRe = regexp.MustCompile(`\[(?:graph|graph-fallback|vector)\](?:\s*\(\d+\))?\s*`)

// postProcess strips leaked provenance markup and trims whitespace.
func postProcess(reply string) string {
	reply = provTagRe.ReplaceAllString(reply, "")
	return strings.TrimSpace(reply)
}
