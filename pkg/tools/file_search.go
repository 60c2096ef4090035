package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/openresponses/openresponses/pkg/api"
	"github.com/openresponses/openresponses/pkg/config"
	"github.com/openresponses/openresponses/pkg/filter"
	"github.com/openresponses/openresponses/pkg/llms"
	"github.com/openresponses/openresponses/pkg/search"
)

// FileSearchArgs is the argument shape the model fills in.
type FileSearchArgs struct {
	Query string `json:"query" jsonschema:"required,description=Natural-language query to run against the attached vector stores"`
}

type fileSearchResult struct {
	FileID   string  `json:"file_id"`
	Filename string  `json:"filename,omitempty"`
	Score    float64 `json:"score"`
	Content  string  `json:"content"`
}

type fileSearchOutput struct {
	Results           []fileSearchResult `json:"results"`
	KnowledgeAcquired string             `json:"knowledge_acquired,omitempty"`
}

type fileSearch struct {
	hybrid *search.Hybrid
	models *llms.Registry
	cfg    config.SearchConfig
}

// NewFileSearch builds the file_search native tool. The agentic loop runs
// over the hybrid engine; its decision model is the configured agentic
// model, falling back to the client serving the request.
func NewFileSearch(hybrid *search.Hybrid, models *llms.Registry, cfg config.SearchConfig) *Tool {
	fs := &fileSearch{hybrid: hybrid, models: models, cfg: cfg}
	return &Tool{
		Name:        "file_search",
		Description: "Search the vector stores attached to this request and return the most relevant passages.",
		Variant:     VariantNative,
		Parameters:  SchemaFor(FileSearchArgs{}),
		Handler:     fs.run,
	}
}

func (fs *fileSearch) run(ctx context.Context, inv Invocation) (string, error) {
	var args FileSearchArgs
	if err := DecodeArgs(inv.Args, &args); err != nil {
		return "", api.WrapError(api.KindInvalidArgument, "decoding file_search arguments", err)
	}

	spec := inv.Request.FileSearchSpec()
	if spec == nil {
		return "", api.NewError(api.KindInvalidArgument, "file_search invoked without a file_search tool entry")
	}

	var f filter.Filter
	if len(spec.Filters) > 0 {
		parsed, err := filter.ParseJSON(spec.Filters)
		if err != nil {
			return "", api.WrapError(api.KindFilterApplication, "parsing file_search filters", err)
		}
		f = parsed
	}

	maxResults := fs.cfg.MaxResults
	if spec.MaxNumResults != nil && *spec.MaxNumResults > 0 {
		maxResults = *spec.MaxNumResults
	}
	maxIterations := fs.cfg.MaxIterations
	if spec.MaxIterations != nil && *spec.MaxIterations > 0 {
		maxIterations = *spec.MaxIterations
	}

	client, model, err := fs.decisionModel(inv)
	if err != nil {
		return "", err
	}

	controller := search.NewController(fs.hybrid, client, inv.Emitter)
	result, err := controller.Run(ctx, search.AgenticParams{
		Question:       args.Query,
		VectorStoreIDs: spec.VectorStoreIDs,
		Filter:         f,
		MaxResults:     maxResults,
		MaxIterations:  maxIterations,
		ModelSettings:  search.ModelSettings{Model: model},
	})
	if err != nil {
		return "", err
	}
	return formatFileSearchOutput(result)
}

// decisionModel picks the client driving the loop: the configured agentic
// model when set, else the client already serving the request.
func (fs *fileSearch) decisionModel(inv Invocation) (search.CompletionClient, string, error) {
	if fs.cfg.AgenticModel != "" && fs.models != nil {
		client, model, err := fs.models.Resolve(fs.cfg.AgenticModel)
		if err != nil {
			return nil, "", err
		}
		return client, model, nil
	}
	if inv.Client == nil {
		return nil, "", api.NewError(api.KindInvalidArgument, "no model available for file_search")
	}
	return inv.Client, "", nil
}

func formatFileSearchOutput(result *search.AgenticResult) (string, error) {
	out := fileSearchOutput{
		Results:           make([]fileSearchResult, 0, len(result.Data)),
		KnowledgeAcquired: result.KnowledgeAcquired,
	}
	for _, r := range result.Data {
		out.Results = append(out.Results, fileSearchResult{
			FileID:   r.FileID,
			Filename: r.Filename,
			Score:    r.Score,
			Content:  r.Text(),
		})
	}
	data, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("encoding file_search output: %w", err)
	}
	return string(data), nil
}
