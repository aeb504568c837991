package llm

import (
	"context"

	"github.com/openai/openai-go/v3/responses"
)

// Request is one model turn.
type Request struct {
	Instructions string
	Input        []responses.ResponseInputItemUnionParam
	Tools        []responses.ToolUnionParam
	// OutputSchema, when set, constrains the final message to JSON matching it.
	OutputSchema     map[string]any
	OutputSchemaName string
}

type Provider interface {
	ChatStream(ctx context.Context, req Request, onToken func(string)) (*responses.Response, error)
}
