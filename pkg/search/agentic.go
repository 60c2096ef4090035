package search

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/openresponses/openresponses/pkg/api"
	"github.com/openresponses/openresponses/pkg/filter"
	"github.com/openresponses/openresponses/pkg/observability"
)

const (
	terminatePrefix = "TERMINATE:"
	nextQueryPrefix = "NEXT_QUERY:"
	memoryMarker    = "##MEMORY##"

	// Per-iteration budget for invalid model decisions before forcing
	// termination.
	maxInvalidDecisions = 3

	// Cumulative budget for issuing the same normalized query.
	maxRepeatedQueries = 3
)

// Termination reasons reported on the final iteration.
const (
	ReasonInvalidDecision = "LLM decision invalid"
	ReasonRepeatedQueries = "repeated queries"
	ReasonNoSeedResults   = "No initial results found."
)

// CompletionClient is the slice of the upstream client the controller needs.
type CompletionClient interface {
	Complete(ctx context.Context, params api.CompletionParams) (*api.ModelCompletion, error)
}

// ModelSettings selects and tunes the decision model.
type ModelSettings struct {
	Model       string
	Temperature *float64
	MaxTokens   *int
}

// AgenticParams is one controller run.
type AgenticParams struct {
	Question       string
	VectorStoreIDs []string
	Filter         filter.Filter
	MaxResults     int
	MaxIterations  int

	// SeedName, when set, prefixes the seed query to anchor retrieval on a
	// named entity.
	SeedName string

	ModelSettings ModelSettings
}

// Iteration is one recorded step of the loop.
type Iteration struct {
	Query             string `json:"query,omitempty"`
	Retrieved         int    `json:"retrieved"`
	Memory            string `json:"memory,omitempty"`
	Note              string `json:"note,omitempty"`
	IsFinal           bool   `json:"is_final,omitempty"`
	TerminationReason string `json:"termination_reason,omitempty"`
}

// AgenticResult is the controller's output.
type AgenticResult struct {
	Data              []api.SearchResult `json:"data"`
	SearchIterations  []Iteration        `json:"search_iterations"`
	KnowledgeAcquired string             `json:"knowledge_acquired,omitempty"`
}

// Event is one progress notification. Streaming surfaces these as
// response.agentic_search.progress SSE events.
type Event struct {
	Phase     string `json:"phase"`
	Iteration int    `json:"iteration"`
	Query     string `json:"query,omitempty"`
	Count     int    `json:"count,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// Progress phases.
const (
	PhaseSeeding           = "seeding"
	PhaseLLMDecision       = "llm_decision"
	PhaseSearching         = "searching"
	PhaseIterationComplete = "iteration_complete"
	PhaseTerminated        = "terminated"
)

// Emitter receives progress events. A nil Emitter is allowed.
type Emitter interface {
	Emit(event Event)
}

// EmitterFunc adapts a function to the Emitter interface.
type EmitterFunc func(Event)

func (f EmitterFunc) Emit(event Event) { f(event) }

// Controller runs the bounded retrieval loop: seed search, then up to
// MaxIterations rounds of model-directed query refinement.
type Controller struct {
	hybrid  *Hybrid
	client  CompletionClient
	emitter Emitter
	tracer  trace.Tracer
	logger  *slog.Logger
}

// NewController builds a controller over the hybrid engine and the decision
// model client. emitter may be nil.
func NewController(hybrid *Hybrid, client CompletionClient, emitter Emitter) *Controller {
	return &Controller{
		hybrid:  hybrid,
		client:  client,
		emitter: emitter,
		tracer:  observability.GetTracer("search"),
		logger:  slog.Default().With("component", "agentic_search"),
	}
}

func (c *Controller) emit(event Event) {
	if c.emitter != nil {
		c.emitter.Emit(event)
	}
}

// Run executes the loop and returns the accumulated buffer, the iteration
// history, and the knowledge summary.
func (c *Controller) Run(ctx context.Context, params AgenticParams) (*AgenticResult, error) {
	if strings.TrimSpace(params.Question) == "" {
		return nil, api.InvalidArgumentf("question must not be blank")
	}
	if params.MaxResults < 1 {
		return nil, api.InvalidArgumentf("max results must be at least 1, got %d", params.MaxResults)
	}
	if params.MaxIterations < 1 {
		return nil, api.InvalidArgumentf("max iterations must be at least 1, got %d", params.MaxIterations)
	}

	ctx, span := c.tracer.Start(ctx, observability.SpanAgenticSearch,
		trace.WithAttributes(attribute.StringSlice(observability.AttrVectorStoreIDs, params.VectorStoreIDs)))
	defer span.End()

	start := time.Now()
	result, err := c.run(ctx, params)
	iterations := 0
	if result != nil {
		iterations = len(result.SearchIterations)
	}
	observability.GetGlobalMetrics().RecordSearch(ctx, iterations, time.Since(start), err)
	if err != nil {
		span.RecordError(err)
	}
	return result, err
}

// loopState carries the mutable loop data.
type loopState struct {
	buffer      map[string]api.SearchResult
	history     []Iteration
	queryCounts map[string]int
	iteration   int
}

func (c *Controller) run(ctx context.Context, params AgenticParams) (*AgenticResult, error) {
	state := &loopState{
		buffer:      make(map[string]api.SearchResult),
		queryCounts: make(map[string]int),
		iteration:   1,
	}

	seedQuery := params.Question
	if params.SeedName != "" {
		seedQuery = params.SeedName + " " + params.Question
	}
	c.emit(Event{Phase: PhaseSeeding, Iteration: state.iteration, Query: seedQuery})

	seed, err := c.hybrid.Search(ctx, HybridParams{
		Query:          seedQuery,
		MaxResults:     params.MaxResults,
		Filter:         params.Filter,
		VectorStoreIDs: params.VectorStoreIDs,
	})
	if err != nil {
		return nil, err
	}
	if len(seed) == 0 {
		state.history = append(state.history, Iteration{
			Query:             seedQuery,
			IsFinal:           true,
			TerminationReason: ReasonNoSeedResults,
		})
		c.emit(Event{Phase: PhaseTerminated, Iteration: state.iteration, Reason: ReasonNoSeedResults})
		return c.finish(state, params.MaxResults, ""), nil
	}
	mergeBuffer(state.buffer, seed)
	state.history = append(state.history, Iteration{Query: seedQuery, Retrieved: len(seed)})
	state.queryCounts[normalizeQuery(seedQuery)]++

	for state.iteration < params.MaxIterations {
		decision, err := c.decide(ctx, params, state)
		if err != nil {
			return nil, err
		}

		if decision == nil {
			state.history = append(state.history, Iteration{
				IsFinal:           true,
				TerminationReason: ReasonInvalidDecision,
			})
			c.emit(Event{Phase: PhaseTerminated, Iteration: state.iteration, Reason: ReasonInvalidDecision})
			return c.finish(state, params.MaxResults, ""), nil
		}
		if decision.terminate {
			state.history = append(state.history, Iteration{
				IsFinal:           true,
				TerminationReason: "TERMINATE",
			})
			c.emit(Event{Phase: PhaseTerminated, Iteration: state.iteration, Reason: "TERMINATE"})
			return c.finish(state, params.MaxResults, decision.summary), nil
		}

		normalized := normalizeQuery(decision.query)
		state.queryCounts[normalized]++
		if state.queryCounts[normalized] >= maxRepeatedQueries {
			state.history = append(state.history, Iteration{
				Query:             decision.query,
				IsFinal:           true,
				TerminationReason: ReasonRepeatedQueries,
			})
			c.emit(Event{Phase: PhaseTerminated, Iteration: state.iteration, Reason: ReasonRepeatedQueries})
			return c.finish(state, params.MaxResults, ""), nil
		}

		searchFilter := params.Filter
		note := ""
		if decision.attrs != nil {
			searchFilter = filter.And(params.Filter, decision.attrs)
		} else if decision.attrsNote != "" {
			note = decision.attrsNote
		}

		c.emit(Event{Phase: PhaseSearching, Iteration: state.iteration, Query: decision.query})
		results, err := c.hybrid.Search(ctx, HybridParams{
			Query:          decision.query,
			MaxResults:     params.MaxResults,
			Filter:         searchFilter,
			VectorStoreIDs: params.VectorStoreIDs,
		})
		if err != nil {
			return nil, err
		}
		mergeBuffer(state.buffer, results)

		state.iteration++
		state.history = append(state.history, Iteration{
			Query:     decision.query,
			Retrieved: len(results),
			Memory:    decision.memory,
			Note:      note,
		})
		c.emit(Event{Phase: PhaseIterationComplete, Iteration: state.iteration, Query: decision.query, Count: len(results)})
	}

	// The cap is not a round of its own: it closes the last search that was
	// actually issued.
	reason := fmt.Sprintf("Reached max iterations (%d).", params.MaxIterations)
	last := &state.history[len(state.history)-1]
	last.IsFinal = true
	last.TerminationReason = reason
	c.emit(Event{Phase: PhaseTerminated, Iteration: state.iteration, Reason: reason})
	return c.finish(state, params.MaxResults, ""), nil
}

// decide asks the model for the next step, retrying invalid output up to
// the per-iteration budget. nil decision with nil error means the budget is
// exhausted.
func (c *Controller) decide(ctx context.Context, params AgenticParams, state *loopState) (*decision, error) {
	prompt := c.buildPrompt(params, state)
	for attempt := 1; attempt <= maxInvalidDecisions; attempt++ {
		c.emit(Event{Phase: PhaseLLMDecision, Iteration: state.iteration})

		completion, err := c.client.Complete(ctx, prompt)
		if err != nil {
			return nil, api.WrapError(api.KindUpstream, "agentic decision call failed", err)
		}
		text := ""
		if choice := completion.FirstChoice(); choice != nil {
			text = api.ContentText(choice.Message.Content)
		}
		d := parseDecision(text)
		if d != nil {
			return d, nil
		}
		c.logger.Warn("invalid agentic decision",
			"iteration", state.iteration, "attempt", attempt, "output", truncate(text, 200))
	}
	return nil, nil
}

// buildPrompt renders the system instruction plus the current buffer and
// history for the decision model.
func (c *Controller) buildPrompt(params AgenticParams, state *loopState) api.CompletionParams {
	var sb strings.Builder
	sb.WriteString("Question: ")
	sb.WriteString(params.Question)
	sb.WriteString("\n\nRetrieved so far:\n")
	for _, r := range sortedBuffer(state.buffer) {
		sb.WriteString("- ")
		sb.WriteString(r.Filename)
		sb.WriteString(": ")
		sb.WriteString(truncate(r.Text(), 300))
		sb.WriteString("\n")
	}
	sb.WriteString("\nPrior iterations:\n")
	for i, it := range state.history {
		fmt.Fprintf(&sb, "%d. query=%q retrieved=%d\n", i+1, it.Query, it.Retrieved)
	}

	return api.CompletionParams{
		Model: params.ModelSettings.Model,
		Messages: []api.Message{
			{Role: api.RoleSystem, Content: agenticSystemPrompt},
			{Role: api.RoleUser, Content: sb.String()},
		},
		Temperature: params.ModelSettings.Temperature,
		MaxTokens:   params.ModelSettings.MaxTokens,
	}
}

const agenticSystemPrompt = `You are a retrieval controller. Based on the question, the documents retrieved so far, and the prior search iterations, respond with exactly one of:

TERMINATE: <summary of the answer based on the retrieved documents>
NEXT_QUERY: <refined search query> {<optional flat JSON object of attribute filters>} [` + memoryMarker + ` <optional fact worth remembering>]

Use TERMINATE when the retrieved documents answer the question. Use NEXT_QUERY to retrieve missing information. Respond with nothing else.`

// finish sorts and truncates the buffer and assembles the knowledge
// summary: per-iteration memory fragments when present, otherwise the
// model's termination summary.
func (c *Controller) finish(state *loopState, maxResults int, summary string) *AgenticResult {
	data := sortedBuffer(state.buffer)
	if len(data) > maxResults {
		data = data[:maxResults]
	}

	// The seed search sits at index 0 and never carries memory, so the
	// history index is the model-driven iteration number.
	var lines []string
	for i, it := range state.history {
		if it.Memory != "" {
			lines = append(lines, fmt.Sprintf("Iteration %d: %s", i, it.Memory))
		}
	}
	knowledge := strings.Join(lines, "\n")
	if knowledge == "" {
		knowledge = summary
	}

	return &AgenticResult{
		Data:              data,
		SearchIterations:  state.history,
		KnowledgeAcquired: knowledge,
	}
}

// decision is a parsed model response.
type decision struct {
	terminate bool
	summary   string

	query     string
	attrs     filter.Filter
	attrsNote string
	memory    string
}

// parseDecision interprets the model output. nil means invalid.
func parseDecision(text string) *decision {
	text = strings.TrimSpace(text)
	switch {
	case strings.HasPrefix(text, terminatePrefix):
		return &decision{
			terminate: true,
			summary:   strings.TrimSpace(strings.TrimPrefix(text, terminatePrefix)),
		}
	case strings.HasPrefix(text, nextQueryPrefix):
		rest := strings.TrimSpace(strings.TrimPrefix(text, nextQueryPrefix))
		d := &decision{}

		if i := strings.Index(rest, memoryMarker); i >= 0 {
			d.memory = strings.TrimSpace(rest[i+len(memoryMarker):])
			rest = strings.TrimSpace(rest[:i])
		}
		if open := strings.Index(rest, "{"); open >= 0 {
			if end := strings.LastIndex(rest, "}"); end > open {
				raw := rest[open : end+1]
				rest = strings.TrimSpace(rest[:open] + rest[end+1:])
				d.attrs, d.attrsNote = parseAttributeFilter(raw)
			}
		}
		d.query = strings.TrimSpace(rest)
		if d.query == "" {
			return nil
		}
		return d
	default:
		return nil
	}
}

// parseAttributeFilter decodes a flat JSON object into a conjunction of
// equality comparisons. Malformed input yields no filter and a warning
// note; it must never widen the search.
func parseAttributeFilter(raw string) (filter.Filter, string) {
	var attrs map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &attrs); err != nil {
		return nil, fmt.Sprintf("ignored malformed attribute filter: %v", err)
	}
	for _, v := range attrs {
		switch v.(type) {
		case string, float64, bool, nil:
		default:
			return nil, "ignored attribute filter with non-scalar values"
		}
	}
	return filter.FromAttributes(attrs), ""
}

// mergeBuffer dedups results into the buffer by (file_id, chunk_index),
// keeping the higher score.
func mergeBuffer(buffer map[string]api.SearchResult, results []api.SearchResult) {
	for _, r := range results {
		idx, _ := r.ChunkIndex()
		key := fmt.Sprintf("%s-%d", r.FileID, idx)
		if existing, ok := buffer[key]; ok && existing.Score >= r.Score {
			continue
		}
		buffer[key] = r
	}
}

func sortedBuffer(buffer map[string]api.SearchResult) []api.SearchResult {
	out := make([]api.SearchResult, 0, len(buffer))
	for _, r := range buffer {
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if out[i].FileID != out[j].FileID {
			return out[i].FileID < out[j].FileID
		}
		ci, _ := out[i].ChunkIndex()
		cj, _ := out[j].ChunkIndex()
		return ci < cj
	})
	return out
}

// normalizeQuery lowercases and collapses whitespace for repeat detection.
func normalizeQuery(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
