package hosted

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/kirillkom/car-knowledge-assistant/internal/core/domain"
	"github.com/kirillkom/car-knowledge-assistant/internal/infrastructure/resilience"
)

// Options configures the OpenAI-compatible hosted backend.
type Options struct {
	BaseURL     string
	APIKey      string
	Model       string
	EmbedModel  string
	Temperature float64
	MaxTokens   int
	HTTPClient  *http.Client

	ResilienceExecutor *resilience.Executor
}

type Client struct {
	api      *openai.Client
	opts     Options
	executor *resilience.Executor
}

func New(opts Options) *Client {
	cfg := openai.DefaultConfig(opts.APIKey)
	if strings.TrimSpace(opts.BaseURL) != "" {
		cfg.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	}
	if opts.HTTPClient != nil {
		cfg.HTTPClient = opts.HTTPClient
	}
	return &Client{
		api:      openai.NewClientWithConfig(cfg),
		opts:     opts,
		executor: opts.ResilienceExecutor,
	}
}

// Generator sends the rendered prompt as a single user message.
type Generator struct {
	client *Client
}

func NewGenerator(client *Client) *Generator {
	return &Generator{client: client}
}

func (g *Generator) Name() string {
	return "hosted:" + g.client.opts.Model
}

func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(g.client.opts.APIKey) == "" {
		return "", domain.WrapError(domain.ErrGeneration, "hosted generate", errors.New("api key is not configured"))
	}

	req := openai.ChatCompletionRequest{
		Model: g.client.opts.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: float32(g.client.opts.Temperature),
		MaxTokens:   g.client.opts.MaxTokens,
	}

	var resp openai.ChatCompletionResponse
	err := g.client.call(ctx, "hosted.generate", func(callCtx context.Context) error {
		var callErr error
		resp, callErr = g.client.api.CreateChatCompletion(callCtx, req)
		return callErr
	})
	if err != nil {
		return "", domain.WrapError(domain.ErrGeneration, "hosted generate", err)
	}
	if len(resp.Choices) == 0 {
		return "", domain.WrapError(domain.ErrGeneration, "hosted generate", errors.New("empty completion"))
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

type Embedder struct {
	client *Client
}

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	req := openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(e.client.opts.EmbedModel),
		Input: texts,
	}

	var resp openai.EmbeddingResponse
	err := e.client.call(ctx, "hosted.embed", func(callCtx context.Context) error {
		var callErr error
		resp, callErr = e.client.api.CreateEmbeddings(callCtx, req)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("hosted embed returned %d vectors for %d inputs", len(resp.Data), len(texts))
	}

	out := make([][]float32, len(texts))
	for i, item := range resp.Data {
		idx := item.Index
		if idx < 0 || idx >= len(out) {
			idx = i
		}
		out[idx] = item.Embedding
	}
	return out, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}
	return vectors[0], nil
}

func (c *Client) call(ctx context.Context, operation string, fn func(context.Context) error) error {
	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, operation, fn, classifyError)
	} else {
		err = fn(ctx)
	}
	if err == nil {
		return nil
	}
	return resilience.MarkTemporary(operation, err, classifyError)
}

func classifyError(err error) resilience.ErrorClassification {
	return resilience.Classify(err, func(err error) (resilience.ErrorClassification, bool) {
		status := statusCode(err)
		if status == 0 {
			return resilience.ErrorClassification{}, false
		}
		return resilience.StatusClassification(status), true
	})
}

func statusCode(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}
