package huggingface

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/kirillkom/car-knowledge-assistant/internal/core/domain"
	"github.com/kirillkom/car-knowledge-assistant/internal/infrastructure/resilience"
)

// Classifier calls a hosted zero-shot classification pipeline
// (e.g. facebook/bart-large-mnli) through the inference API.
type Classifier struct {
	endpoint   string
	token      string
	httpClient *http.Client
	executor   *resilience.Executor
}

type Options struct {
	BaseURL            string
	Model              string
	Token              string
	HTTPTimeout        time.Duration
	ResilienceExecutor *resilience.Executor
}

func New(opts Options) *Classifier {
	timeout := opts.HTTPTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Classifier{
		endpoint:   strings.TrimRight(opts.BaseURL, "/") + "/" + strings.TrimLeft(opts.Model, "/"),
		token:      opts.Token,
		httpClient: &http.Client{Timeout: timeout},
		executor:   opts.ResilienceExecutor,
	}
}

type statusError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *statusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("huggingface status: %s", e.Status)
	}
	return fmt.Sprintf("huggingface status: %s: %s", e.Status, e.Body)
}

func (c *Classifier) Classify(ctx context.Context, text string, labels []string) ([]domain.LabelScore, error) {
	if len(labels) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "huggingface classify", errors.New("no candidate labels"))
	}

	payload := map[string]any{
		"inputs": text,
		"parameters": map[string]any{
			"candidate_labels": labels,
		},
	}

	var raw json.RawMessage
	call := func(callCtx context.Context) error {
		return c.post(callCtx, payload, &raw)
	}

	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, "huggingface.classify", call, classifyError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return nil, domain.WrapError(domain.ErrClassificationUnavailable, "huggingface classify", err)
	}

	ranked, err := decodeRanking(raw)
	if err != nil {
		return nil, domain.WrapError(domain.ErrClassificationUnavailable, "huggingface classify", err)
	}
	return ranked, nil
}

func (c *Classifier) post(ctx context.Context, payload any, out *json.RawMessage) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal classify request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create classify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("classify request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read classify response: %w", err)
	}
	if resp.StatusCode >= 300 {
		msg := strings.TrimSpace(string(data))
		if len(msg) > 2048 {
			msg = msg[:2048]
		}
		return &statusError{StatusCode: resp.StatusCode, Status: resp.Status, Body: msg}
	}
	*out = data
	return nil
}

// decodeRanking accepts both the classic pipeline shape
// {"labels":[...],"scores":[...]} and the list shape [{"label":..,"score":..}].
func decodeRanking(raw json.RawMessage) ([]domain.LabelScore, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, errors.New("empty classification response")
	}

	var out []domain.LabelScore
	if trimmed[0] == '[' {
		var items []struct {
			Label string  `json:"label"`
			Score float64 `json:"score"`
		}
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("decode classification list: %w", err)
		}
		for _, item := range items {
			out = append(out, domain.LabelScore{Label: item.Label, Score: item.Score})
		}
	} else {
		var pipeline struct {
			Labels []string  `json:"labels"`
			Scores []float64 `json:"scores"`
		}
		if err := json.Unmarshal(trimmed, &pipeline); err != nil {
			return nil, fmt.Errorf("decode classification: %w", err)
		}
		if len(pipeline.Labels) != len(pipeline.Scores) {
			return nil, fmt.Errorf("classification returned %d labels and %d scores", len(pipeline.Labels), len(pipeline.Scores))
		}
		for i, label := range pipeline.Labels {
			out = append(out, domain.LabelScore{Label: label, Score: pipeline.Scores[i]})
		}
	}

	if len(out) == 0 {
		return nil, errors.New("empty classification ranking")
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, nil
}

func classifyError(err error) resilience.ErrorClassification {
	return resilience.Classify(err, func(err error) (resilience.ErrorClassification, bool) {
		var statusErr *statusError
		if !errors.As(err, &statusErr) {
			return resilience.ErrorClassification{}, false
		}
		// 503 is returned while the model is loading.
		return resilience.StatusClassification(statusErr.StatusCode), true
	})
}
