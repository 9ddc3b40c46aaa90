package huggingface

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kirillkom/car-knowledge-assistant/internal/core/domain"
	"github.com/kirillkom/car-knowledge-assistant/internal/infrastructure/resilience"
)

func TestClassifyPostsCandidateLabels(t *testing.T) {
	var gotPath, gotAuth string
	var payload struct {
		Inputs     string `json:"inputs"`
		Parameters struct {
			CandidateLabels []string `json:"candidate_labels"`
		} `json:"parameters"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&payload)
		_, _ = w.Write([]byte(`{"sequence":"x","labels":["irrelevant","car query","other"],"scores":[0.1,0.8,0.1]}`))
	}))
	defer server.Close()

	c := New(Options{BaseURL: server.URL + "/models/", Model: "facebook/bart-large-mnli", Token: "hf_x"})
	ranked, err := c.Classify(context.Background(), "how do i open the trunk", []string{"car query", "irrelevant", "other"})
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if gotPath != "/models/facebook/bart-large-mnli" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if gotAuth != "Bearer hf_x" {
		t.Fatalf("unexpected auth %q", gotAuth)
	}
	if payload.Inputs != "how do i open the trunk" || len(payload.Parameters.CandidateLabels) != 3 {
		t.Fatalf("unexpected payload %+v", payload)
	}
	if ranked[0].Label != "car query" || ranked[0].Score != 0.8 {
		t.Fatalf("expected car query first, got %+v", ranked)
	}
}

func TestClassifyAcceptsListShape(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"label":"other","score":0.2},{"label":"irrelevant","score":0.7}]`))
	}))
	defer server.Close()

	ranked, err := New(Options{BaseURL: server.URL, Model: "m"}).Classify(context.Background(), "pizza", []string{"other", "irrelevant"})
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if ranked[0].Label != "irrelevant" {
		t.Fatalf("expected sorted ranking, got %+v", ranked)
	}
}

func TestClassifyFailureIsClassificationUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad token", http.StatusUnauthorized)
	}))
	defer server.Close()

	_, err := New(Options{BaseURL: server.URL, Model: "m"}).Classify(context.Background(), "q", []string{"a"})
	if !domain.IsKind(err, domain.ErrClassificationUnavailable) {
		t.Fatalf("expected ErrClassificationUnavailable, got %v", err)
	}
}

func TestClassifyRetriesWhileModelLoads(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, `{"error":"Model is currently loading"}`, http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"labels":["a"],"scores":[1]}`))
	}))
	defer server.Close()

	cfg := resilience.DefaultConfig()
	cfg.RetryInitialBackoff = time.Millisecond
	cfg.RetryMaxBackoff = time.Millisecond
	c := New(Options{BaseURL: server.URL, Model: "m", ResilienceExecutor: resilience.NewExecutor(cfg)})

	ranked, err := c.Classify(context.Background(), "q", []string{"a"})
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if len(ranked) != 1 || calls.Load() != 2 {
		t.Fatalf("ranked=%+v calls=%d", ranked, calls.Load())
	}
}

func TestDecodeRankingRejectsMismatchedArrays(t *testing.T) {
	if _, err := decodeRanking([]byte(`{"labels":["a","b"],"scores":[1]}`)); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := decodeRanking([]byte(`{"labels":[],"scores":[]}`)); err == nil {
		t.Fatalf("expected error for empty ranking")
	}
}
