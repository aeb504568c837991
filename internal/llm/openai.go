package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/responses"
	"github.com/openai/openai-go/v3/shared"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

var ErrNoCompletion = errors.New("stream ended without a completed response")

type OpenAIProvider struct {
	client      *openai.Client
	model       string
	temperature *float64
}

type OpenAIOption func(*OpenAIProvider)

// WithTemperature sets the sampling temperature. Reasoning models reject it,
// so it is only sent when configured.
func WithTemperature(t float64) OpenAIOption {
	return func(o *OpenAIProvider) { o.temperature = &t }
}

func NewOpenAI(baseURL, apiKey, model string, opts ...OpenAIOption) *OpenAIProvider {
	var reqOpts []option.RequestOption
	if apiKey != "" {
		reqOpts = append(reqOpts, option.WithAPIKey(apiKey))
	}
	if baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(baseURL))
	}
	reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}))
	client := openai.NewClient(reqOpts...)

	p := &OpenAIProvider{client: &client, model: model}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (o *OpenAIProvider) Model() string { return o.model }

func (o *OpenAIProvider) ChatStream(ctx context.Context, req Request, onToken func(string)) (*responses.Response, error) {
	params := responses.ResponseNewParams{
		Model: shared.ResponsesModel(o.model),
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: req.Input,
		},
		Tools: req.Tools,
	}
	if req.Instructions != "" {
		params.Instructions = openai.String(req.Instructions)
	}
	if o.temperature != nil {
		params.Temperature = openai.Float(*o.temperature)
	}
	if req.OutputSchema != nil {
		params.Text = responses.ResponseTextConfigParam{
			Format: responses.ResponseFormatTextConfigUnionParam{
				OfJSONSchema: &responses.ResponseFormatTextJSONSchemaConfigParam{
					Name:   req.OutputSchemaName,
					Schema: req.OutputSchema,
					Strict: openai.Bool(true),
				},
			},
		}
	}

	stream := o.client.Responses.NewStreaming(ctx, params)
	defer stream.Close()

	var completed *responses.Response

	for stream.Next() {
		event := stream.Current()

		switch event.Type {
		case "response.output_text.delta":
			if event.Delta != "" {
				onToken(event.Delta)
			}
		case "response.completed":
			completed = &event.Response
		case "response.failed":
			return nil, fmt.Errorf("response failed: %s", event.Response.Error.Message)
		case "response.incomplete":
			return nil, fmt.Errorf("response incomplete: %s", event.Response.IncompleteDetails.Reason)
		}
	}

	if err := stream.Err(); err != nil {
		return nil, err
	}
	if completed == nil {
		return nil, ErrNoCompletion
	}

	return completed, nil
}
