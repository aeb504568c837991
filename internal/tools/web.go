package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"merchantama/internal/agent"

	bravesearch "github.com/cnosuke/go-brave-search"
)

const (
	defaultSearchCount = 5
	maxSearchCount     = 20
)

type webSearchArgs struct {
	Query string `json:"query" jsonschema:"description=Search query"`
	Count int    `json:"count" jsonschema:"description=Number of results to return (default 5 and at most 20)"`
}

type Web struct {
	brave  *bravesearch.Client
	schema map[string]any
}

func NewWeb(braveAPIKey string) (*Web, error) {
	client, err := bravesearch.NewClient(braveAPIKey)
	if err != nil {
		return nil, fmt.Errorf("brave client: %w", err)
	}
	schema, err := agent.SchemaFor[webSearchArgs]()
	if err != nil {
		return nil, err
	}
	return &Web{brave: client, schema: schema}, nil
}

func (w *Web) Name() string { return "web_search" }
func (w *Web) Description() string {
	return "Search the web for up-to-date information"
}
func (w *Web) InputSchema() any { return w.schema }

func (w *Web) Execute(ctx context.Context, input string) (string, error) {
	var args webSearchArgs
	if err := json.Unmarshal([]byte(input), &args); err != nil {
		return "", fmt.Errorf("parsing web_search input: %w", err)
	}
	if args.Query == "" {
		return "", fmt.Errorf("query is required")
	}
	if args.Count <= 0 {
		args.Count = defaultSearchCount
	}
	if args.Count > maxSearchCount {
		args.Count = maxSearchCount
	}

	slog.Debug("web: searching", "query", args.Query, "count", args.Count)

	resp, err := w.brave.WebSearch(ctx, args.Query, &bravesearch.WebSearchParams{
		Count: args.Count,
	})
	if err != nil {
		return "", fmt.Errorf("brave search: %w", err)
	}

	results := resp.GetWebResults()
	if len(results) == 0 {
		return "No results found.", nil
	}

	var b strings.Builder
	for i, r := range results {
		if i > 0 {
			b.WriteString("\n---\n")
		}
		fmt.Fprintf(&b, "%s\n%s\n%s", r.Title, r.URL, r.Description)
	}

	slog.Debug("web: search done", "query", args.Query, "results", len(results))
	return truncate([]byte(b.String())), nil
}
