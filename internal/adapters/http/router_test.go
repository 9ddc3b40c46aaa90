package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kirillkom/car-knowledge-assistant/internal/config"
	"github.com/kirillkom/car-knowledge-assistant/internal/core/domain"
)

type fakeService struct {
	ingestResult *domain.IngestResult
	ingestErr    error
	enqueued     *domain.IngestionRun
	runs         map[string]*domain.IngestionRun
	searchResult *domain.SearchResult
	searchErr    error
	askResult    *domain.AskResult
	askErr       error
	uploaded     string
	uploadedBody string
	stats        domain.IndexStats

	lastTopK int
}

func (f *fakeService) Ingest(context.Context) (*domain.IngestResult, error) {
	return f.ingestResult, f.ingestErr
}

func (f *fakeService) Search(_ context.Context, query string, topK int) (*domain.SearchResult, error) {
	f.lastTopK = topK
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	if f.searchResult != nil {
		return f.searchResult, nil
	}
	return &domain.SearchResult{Query: query, Results: []string{}}, nil
}

func (f *fakeService) Ask(_ context.Context, _ string, topK int) (*domain.AskResult, error) {
	f.lastTopK = topK
	return f.askResult, f.askErr
}

func (f *fakeService) EnqueueIngest(context.Context) (*domain.IngestionRun, error) {
	if f.enqueued == nil {
		return nil, domain.WrapError(domain.ErrTemporary, "enqueue", errors.New("queue down"))
	}
	return f.enqueued, nil
}

func (f *fakeService) RunIngest(context.Context, string) error { return nil }

func (f *fakeService) IngestionRun(_ context.Context, id string) (*domain.IngestionRun, error) {
	run, ok := f.runs[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "get ingestion run", errors.New("missing"))
	}
	return run, nil
}

func (f *fakeService) UploadCorpus(_ context.Context, filename string, body io.Reader) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	f.uploaded = filename
	f.uploadedBody = string(data)
	return nil
}

func (f *fakeService) IndexStats() domain.IndexStats { return f.stats }

func newTestHandler(t *testing.T, cfg config.Config, svc *fakeService) http.Handler {
	t.Helper()
	handler, err := NewRouter(cfg, svc, WithLLMMode("local:phi3")).Handler()
	if err != nil {
		t.Fatalf("Handler() error = %v", err)
	}
	return handler
}

func doJSON(t *testing.T, handler http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestAskBlockedResponseShape(t *testing.T) {
	svc := &fakeService{askResult: &domain.AskResult{
		Question: "Who won the game?",
		Decision: domain.GatewayDecision{Action: domain.ActionBlock, Reason: domain.ReasonIrrelevantQuery},
	}}
	rec := doJSON(t, newTestHandler(t, config.Config{APIValidateRequests: true}, svc), http.MethodPost, "/ask", `{"question":"Who won the game?"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body=%s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["status"] != "blocked" || body["reason"] != domain.ReasonIrrelevantQuery || body["question"] != "Who won the game?" {
		t.Fatalf("unexpected blocked body: %v", body)
	}
}

func TestAskPassedResponseShape(t *testing.T) {
	svc := &fakeService{askResult: &domain.AskResult{
		Question: "How do I check the tire pressure?",
		Decision: domain.GatewayDecision{Action: domain.ActionPass, Reason: domain.ReasonCleanSimplified},
		Answer: &domain.Answer{
			Question:          "How do I check the tire pressure?",
			ProcessedQuestion: "check tire pressure",
			Text:              "Use the gauge.",
			Reason:            domain.ReasonCleanSimplified,
		},
	}}
	rec := doJSON(t, newTestHandler(t, config.Config{APIValidateRequests: true}, svc), http.MethodPost, "/ask", `{"question":"How do I check the tire pressure?","top_k":2}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body=%s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["original_question"] != "How do I check the tire pressure?" ||
		body["processed_question"] != "check tire pressure" ||
		body["answer"] != "Use the gauge." ||
		body["slm_reason"] != domain.ReasonCleanSimplified {
		t.Fatalf("unexpected answer body: %v", body)
	}
	if svc.lastTopK != 2 {
		t.Fatalf("top_k = %d, want 2", svc.lastTopK)
	}
}

func TestSearchNotInitializedReturnsInstruction(t *testing.T) {
	svc := &fakeService{searchErr: domain.WrapError(domain.ErrNotInitialized, "search", domain.ErrIndexNotReady)}
	rec := doJSON(t, newTestHandler(t, config.Config{}, svc), http.MethodPost, "/search", `{"query":"oil change"}`)

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
	if got := decodeBody(t, rec)["error"]; got != domain.NotInitializedMessage {
		t.Fatalf("error = %v", got)
	}
}

func TestSearchReturnsResults(t *testing.T) {
	svc := &fakeService{searchResult: &domain.SearchResult{Query: "oil", Results: []string{"Check oil level.", "Oil type 5W-30."}}}
	rec := doJSON(t, newTestHandler(t, config.Config{}, svc), http.MethodPost, "/search", `{"query":"oil","top_k":2}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body domain.SearchResult
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Query != "oil" || len(body.Results) != 2 {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestSearchValidationRejectsMissingQuery(t *testing.T) {
	rec := doJSON(t, newTestHandler(t, config.Config{APIValidateRequests: true}, &fakeService{}), http.MethodPost, "/search", `{"top_k":3}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestSearchRejectsBlankQueryWithoutValidator(t *testing.T) {
	rec := doJSON(t, newTestHandler(t, config.Config{}, &fakeService{}), http.MethodPost, "/search", `{"query":"   "}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestEmbedSyncAndAsync(t *testing.T) {
	svc := &fakeService{
		ingestResult: &domain.IngestResult{Status: domain.EmbeddingsStoredStatus, Count: 900},
		enqueued:     &domain.IngestionRun{ID: "run-1", Status: domain.IngestionQueued},
	}
	handler := newTestHandler(t, config.Config{APIValidateRequests: true}, svc)

	rec := doJSON(t, handler, http.MethodPost, "/embed", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("sync status = %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["status"] != "Embeddings stored" || body["count"] != float64(900) {
		t.Fatalf("unexpected sync body: %v", body)
	}

	rec = doJSON(t, handler, http.MethodPost, "/embed?async=true", "")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("async status = %d", rec.Code)
	}
	body = decodeBody(t, rec)
	if body["status"] != "queued" || body["run_id"] != "run-1" {
		t.Fatalf("unexpected async body: %v", body)
	}
}

func TestEmbedDataErrorMapsTo422(t *testing.T) {
	svc := &fakeService{ingestErr: domain.WrapError(domain.ErrData, "read corpus", errors.New("column text not found"))}
	rec := doJSON(t, newTestHandler(t, config.Config{}, svc), http.MethodPost, "/embed", "")
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
}

func TestGetIngestion(t *testing.T) {
	svc := &fakeService{runs: map[string]*domain.IngestionRun{
		"run-1": {ID: "run-1", Status: domain.IngestionSucceeded, Count: 12},
	}}
	handler := newTestHandler(t, config.Config{APIValidateRequests: true}, svc)

	rec := doJSON(t, handler, http.MethodGet, "/v1/ingestions/run-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := decodeBody(t, rec)["status"]; got != "succeeded" {
		t.Fatalf("status field = %v", got)
	}

	rec = doJSON(t, handler, http.MethodGet, "/v1/ingestions/missing", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing status = %d, want 404", rec.Code)
	}
}

func TestUploadCorpus(t *testing.T) {
	svc := &fakeService{}
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", "car_data.csv")
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	_, _ = part.Write([]byte("text\nCheck the oil.\n"))
	_ = writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/v1/corpus", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()
	newTestHandler(t, config.Config{APIValidateRequests: true}, svc).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body=%s", rec.Code, rec.Body.String())
	}
	if svc.uploaded != "car_data.csv" || !strings.Contains(svc.uploadedBody, "Check the oil.") {
		t.Fatalf("unexpected upload: %q %q", svc.uploaded, svc.uploadedBody)
	}
}

func TestRootAndIndexStats(t *testing.T) {
	svc := &fakeService{stats: domain.IndexStats{Ready: true, Count: 3, Backend: "local"}}
	handler := newTestHandler(t, config.Config{}, svc)

	rec := doJSON(t, handler, http.MethodGet, "/", "")
	if rec.Code != http.StatusOK || decodeBody(t, rec)["llm_mode"] != "local:phi3" {
		t.Fatalf("unexpected root response: %d %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodGet, "/v1/index", "")
	body := decodeBody(t, rec)
	if body["ready"] != true || body["count"] != float64(3) {
		t.Fatalf("unexpected stats: %v", body)
	}

	rec = doJSON(t, handler, http.MethodGet, "/nope", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown path status = %d", rec.Code)
	}
}

func TestRequestIDIsEchoed(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, "req-42")
	rec := httptest.NewRecorder()
	newTestHandler(t, config.Config{}, &fakeService{}).ServeHTTP(rec, req)

	if got := rec.Header().Get(requestIDHeader); got != "req-42" {
		t.Fatalf("request id = %q", got)
	}
}

func TestAskGenerationFailureMapsTo502(t *testing.T) {
	svc := &fakeService{askErr: domain.WrapError(domain.ErrGeneration, "generate answer", errors.New("model crashed"))}
	rec := doJSON(t, newTestHandler(t, config.Config{}, svc), http.MethodPost, "/ask", `{"question":"oil?"}`)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
}

func TestRequestIDReplacedWhenInvalid(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, strings.Repeat("x", maxRequestIDLength+1))
	rec := httptest.NewRecorder()
	newTestHandler(t, config.Config{}, &fakeService{}).ServeHTTP(rec, req)

	got := rec.Header().Get(requestIDHeader)
	if got == "" || len(got) > maxRequestIDLength {
		t.Fatalf("request id = %q", got)
	}
}
