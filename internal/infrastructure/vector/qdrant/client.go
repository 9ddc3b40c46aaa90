package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/car-knowledge-assistant/internal/core/domain"
	"github.com/kirillkom/car-knowledge-assistant/internal/infrastructure/resilience"
)

const upsertBatchSize = 256

// Client stores every build in its own collection and points a stable
// alias at the newest one, so searches never see a half-written index.
type Client struct {
	baseURL    string
	alias      string
	apiKey     string
	httpClient *http.Client
	executor   *resilience.Executor
	now        func() time.Time
}

type Options struct {
	HTTPTimeout        time.Duration
	ResilienceExecutor *resilience.Executor
}

func New(baseURL, alias, apiKey string) *Client {
	return NewWithOptions(baseURL, alias, apiKey, Options{})
}

func NewWithOptions(baseURL, alias, apiKey string, options Options) *Client {
	timeout := options.HTTPTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		alias:      alias,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		executor:   options.ResilienceExecutor,
		now:        time.Now,
	}
}

func (c *Client) Name() string {
	return "qdrant"
}

type statusError struct {
	Operation  string
	StatusCode int
	Status     string
	Body       string
}

func (e *statusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("qdrant %s status: %s", e.Operation, e.Status)
	}
	return fmt.Sprintf("qdrant %s status: %s: %s", e.Operation, e.Status, e.Body)
}

func (c *Client) Replace(ctx context.Context, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return domain.WrapError(domain.ErrData, "qdrant replace", fmt.Errorf("no chunks"))
	}

	previous, err := c.aliasTarget(ctx)
	if err != nil {
		return err
	}

	collection := fmt.Sprintf("%s_%d", c.alias, c.now().UnixNano())
	if err := c.createCollection(ctx, collection, len(chunks[0].Vector)); err != nil {
		return err
	}
	if err := c.upsert(ctx, collection, chunks); err != nil {
		c.dropCollection(collection)
		return err
	}
	if err := c.swapAlias(ctx, collection, previous != ""); err != nil {
		c.dropCollection(collection)
		return err
	}
	if previous != "" && previous != collection {
		c.dropCollection(previous)
	}
	return nil
}

func (c *Client) Load(ctx context.Context) (int, bool, error) {
	target, err := c.aliasTarget(ctx)
	if err != nil {
		return 0, false, err
	}
	if target == "" {
		return 0, false, nil
	}

	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	path := fmt.Sprintf("/collections/%s/points/count", c.alias)
	if err := c.do(ctx, "count", http.MethodPost, path, map[string]any{"exact": true}, &resp); err != nil {
		return 0, false, err
	}
	return resp.Result.Count, true, nil
}

func (c *Client) Search(ctx context.Context, queryVector []float32, limit int) ([]domain.RetrievedChunk, error) {
	reqBody := map[string]any{
		"vector":       queryVector,
		"limit":        limit,
		"with_payload": true,
	}

	var searchResp struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	path := fmt.Sprintf("/collections/%s/points/search", c.alias)
	if err := c.do(ctx, "search", http.MethodPost, path, reqBody, &searchResp); err != nil {
		var se *statusError
		if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
			return nil, domain.WrapError(domain.ErrNotInitialized, "qdrant search", fmt.Errorf("%w: %w", domain.ErrIndexNotReady, err))
		}
		return nil, err
	}

	out := make([]domain.RetrievedChunk, 0, len(searchResp.Result))
	for _, r := range searchResp.Result {
		out = append(out, domain.RetrievedChunk{
			ID:       getStringPayload(r.Payload, "chunk_id"),
			Position: getIntPayload(r.Payload, "position"),
			Text:     getStringPayload(r.Payload, "text"),
			Score:    r.Score,
		})
	}
	return out, nil
}

func (c *Client) createCollection(ctx context.Context, collection string, vectorSize int) error {
	reqBody := map[string]any{
		"vectors": map[string]any{
			"size":     vectorSize,
			"distance": "Cosine",
		},
	}
	return c.do(ctx, "create collection", http.MethodPut, "/collections/"+collection, reqBody, nil)
}

func (c *Client) upsert(ctx context.Context, collection string, chunks []domain.Chunk) error {
	type point struct {
		ID      string         `json:"id"`
		Vector  []float32      `json:"vector"`
		Payload map[string]any `json:"payload"`
	}

	path := fmt.Sprintf("/collections/%s/points?wait=true", collection)
	for start := 0; start < len(chunks); start += upsertBatchSize {
		end := min(start+upsertBatchSize, len(chunks))
		points := make([]point, 0, end-start)
		for _, chunk := range chunks[start:end] {
			points = append(points, point{
				ID:     uuid.NewSHA1(uuid.NameSpaceOID, []byte(chunk.ID)).String(),
				Vector: chunk.Vector,
				Payload: map[string]any{
					"chunk_id": chunk.ID,
					"position": chunk.Position,
					"hash":     chunk.Hash,
					"text":     chunk.Text,
				},
			})
		}
		if err := c.do(ctx, "upsert", http.MethodPut, path, map[string]any{"points": points}, nil); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) aliasTarget(ctx context.Context) (string, error) {
	var resp struct {
		Result struct {
			Aliases []struct {
				AliasName      string `json:"alias_name"`
				CollectionName string `json:"collection_name"`
			} `json:"aliases"`
		} `json:"result"`
	}
	if err := c.do(ctx, "list aliases", http.MethodGet, "/aliases", nil, &resp); err != nil {
		return "", err
	}
	for _, a := range resp.Result.Aliases {
		if a.AliasName == c.alias {
			return a.CollectionName, nil
		}
	}
	return "", nil
}

func (c *Client) swapAlias(ctx context.Context, collection string, hadPrevious bool) error {
	actions := make([]map[string]any, 0, 2)
	if hadPrevious {
		actions = append(actions, map[string]any{
			"delete_alias": map[string]any{"alias_name": c.alias},
		})
	}
	actions = append(actions, map[string]any{
		"create_alias": map[string]any{
			"collection_name": collection,
			"alias_name":      c.alias,
		},
	})
	return c.do(ctx, "swap alias", http.MethodPost, "/collections/aliases", map[string]any{"actions": actions}, nil)
}

// dropCollection is best effort; a leftover collection only wastes space.
func (c *Client) dropCollection(collection string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := c.do(ctx, "drop collection", http.MethodDelete, "/collections/"+collection, nil, nil); err != nil {
		slog.Default().Warn("qdrant_drop_collection_failed", "collection", collection, "error", err.Error())
	}
}

// do runs one Qdrant REST call through the resilience executor when configured.
func (c *Client) do(ctx context.Context, operation, method, path string, payload any, out any) error {
	var data []byte
	if payload != nil {
		var err error
		if data, err = json.Marshal(payload); err != nil {
			return fmt.Errorf("marshal %s body: %w", operation, err)
		}
	}

	call := func(callCtx context.Context) error {
		return c.send(callCtx, operation, method, path, data, out)
	}
	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, "qdrant."+strings.ReplaceAll(operation, " ", "_"), call, classifyQdrantError)
	} else {
		err = call(ctx)
	}
	return resilience.MarkTemporary("qdrant "+operation, err, classifyQdrantError)
}

func (c *Client) send(ctx context.Context, operation, method, path string, data []byte, out any) error {
	var body io.Reader
	if data != nil {
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}
	if data != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant %s: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &statusError{
			Operation:  operation,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       strings.TrimSpace(string(msg)),
		}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	return nil
}

func classifyQdrantError(err error) resilience.ErrorClassification {
	return resilience.Classify(err, func(err error) (resilience.ErrorClassification, bool) {
		var se *statusError
		if !errors.As(err, &se) {
			return resilience.ErrorClassification{}, false
		}
		return resilience.StatusClassification(se.StatusCode), true
	})
}

func getStringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func getIntPayload(payload map[string]any, key string) int {
	switch v := payload[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case json.Number:
		n, _ := v.Int64()
		return int(n)
	default:
		return 0
	}
}
