package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/car-knowledge-assistant/internal/core/domain"
	"github.com/kirillkom/car-knowledge-assistant/internal/core/ports"
)

// QueryGateway evaluates raw questions before retrieval.
type QueryGateway interface {
	Evaluate(ctx context.Context, rawQuery string) domain.GatewayDecision
}

// AnswerChain produces grounded answers for gateway-approved questions.
type AnswerChain interface {
	Answer(ctx context.Context, question string, k int) (string, []domain.RetrievedChunk, error)
}

// IndexService is the retrieval index as seen by the facade.
type IndexService interface {
	Retriever
	Build(ctx context.Context, texts []string) (int, error)
	Load(ctx context.Context) (bool, error)
	Stats() domain.IndexStats
}

type AssistantOptions struct {
	DefaultTopK int
	MaxTopK     int

	Queue    ports.MessageQueue
	Cache    ports.AnswerCache
	CacheTTL time.Duration

	Storage   ports.ObjectStorage
	CorpusKey string
}

// Assistant is the service facade behind every transport.
type Assistant struct {
	corpus  ports.CorpusReader
	index   IndexService
	gateway QueryGateway
	chain   AnswerChain
	runs    ports.IngestionRunStore
	opts    AssistantOptions
}

func NewAssistant(
	corpus ports.CorpusReader,
	index IndexService,
	gateway QueryGateway,
	chain AnswerChain,
	runs ports.IngestionRunStore,
	opts AssistantOptions,
) *Assistant {
	if opts.DefaultTopK <= 0 {
		opts.DefaultTopK = 3
	}
	if opts.MaxTopK <= 0 {
		opts.MaxTopK = 20
	}
	if opts.MaxTopK < opts.DefaultTopK {
		opts.MaxTopK = opts.DefaultTopK
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 10 * time.Minute
	}
	return &Assistant{
		corpus:  corpus,
		index:   index,
		gateway: gateway,
		chain:   chain,
		runs:    runs,
		opts:    opts,
	}
}

func (a *Assistant) Ingest(ctx context.Context) (*domain.IngestResult, error) {
	run := a.newRun(domain.IngestionRunning)
	if err := a.runs.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("create ingestion run: %w", err)
	}

	count, err := a.build(ctx, run.ID)
	if err != nil {
		return nil, err
	}
	return &domain.IngestResult{
		Status: domain.EmbeddingsStoredStatus,
		Count:  count,
		RunID:  run.ID,
	}, nil
}

func (a *Assistant) EnqueueIngest(ctx context.Context) (*domain.IngestionRun, error) {
	if a.opts.Queue == nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "enqueue ingest", errors.New("asynchronous ingestion requires a message queue"))
	}

	run := a.newRun(domain.IngestionQueued)
	if err := a.runs.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("create ingestion run: %w", err)
	}
	if err := a.opts.Queue.PublishIngestRequested(ctx, run.ID); err != nil {
		a.finishRun(ctx, run.ID, domain.IngestionFailed, 0, err)
		return nil, fmt.Errorf("publish ingest job: %w", err)
	}
	return run, nil
}

func (a *Assistant) RunIngest(ctx context.Context, runID string) error {
	run, err := a.runs.GetByID(ctx, runID)
	if err != nil {
		return fmt.Errorf("get ingestion run: %w", err)
	}
	if run.Status != domain.IngestionQueued {
		slog.Warn("ingestion_run_skipped", "run_id", runID, "status", run.Status)
		return nil
	}
	if err := a.runs.UpdateStatus(ctx, runID, domain.IngestionRunning, 0, ""); err != nil {
		return fmt.Errorf("mark ingestion run running: %w", err)
	}
	_, err = a.build(ctx, runID)
	return err
}

func (a *Assistant) IngestionRun(ctx context.Context, id string) (*domain.IngestionRun, error) {
	if strings.TrimSpace(id) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "get ingestion run", errors.New("run id is required"))
	}
	return a.runs.GetByID(ctx, id)
}

func (a *Assistant) Search(ctx context.Context, query string, topK int) (*domain.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "search", errors.New("query is required"))
	}

	chunks, err := a.index.Search(ctx, query, a.topK(topK))
	if err != nil {
		return nil, err
	}
	results := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		results = append(results, chunk.Text)
	}
	return &domain.SearchResult{Query: query, Results: results}, nil
}

func (a *Assistant) Ask(ctx context.Context, question string, topK int) (*domain.AskResult, error) {
	stats := a.index.Stats()
	if !stats.Ready {
		return nil, domain.WrapError(domain.ErrNotInitialized, "ask", domain.ErrIndexNotReady)
	}

	decision := a.gateway.Evaluate(ctx, question)
	slog.Info("gateway_decision", "action", decision.Action, "reason", decision.Reason)
	if decision.Blocked() {
		return &domain.AskResult{Question: question, Decision: decision}, nil
	}

	k := a.topK(topK)
	cacheKey := answerCacheKey(stats.Version, k, decision.CleanedText)
	if text, ok := a.cachedAnswer(ctx, cacheKey); ok {
		return &domain.AskResult{
			Question: question,
			Decision: decision,
			Answer:   a.newAnswer(question, decision, text, nil, true),
		}, nil
	}

	text, sources, err := a.chain.Answer(ctx, decision.CleanedText, k)
	if err != nil {
		return nil, err
	}
	a.storeAnswer(ctx, cacheKey, text)

	return &domain.AskResult{
		Question: question,
		Decision: decision,
		Answer:   a.newAnswer(question, decision, text, sources, false),
	}, nil
}

func (a *Assistant) IndexStats() domain.IndexStats {
	return a.index.Stats()
}

// ReloadIndex reopens the persisted index, e.g. after another process rebuilt it.
func (a *Assistant) ReloadIndex(ctx context.Context) error {
	found, err := a.index.Load(ctx)
	if err != nil {
		return err
	}
	if !found {
		slog.Warn("index_not_found", "message", domain.NotInitializedMessage)
	}
	return nil
}

func (a *Assistant) UploadCorpus(ctx context.Context, filename string, body io.Reader) error {
	if a.opts.Storage == nil || a.opts.CorpusKey == "" {
		return domain.WrapError(domain.ErrInvalidInput, "upload corpus", errors.New("corpus storage is not configured"))
	}
	want := strings.ToLower(filepath.Ext(a.opts.CorpusKey))
	got := strings.ToLower(filepath.Ext(filename))
	if got != want {
		return domain.WrapError(domain.ErrInvalidInput, "upload corpus", fmt.Errorf("expected %s file, got %q", want, filename))
	}
	if err := a.opts.Storage.Save(ctx, a.opts.CorpusKey, body); err != nil {
		return fmt.Errorf("save corpus: %w", err)
	}
	return nil
}

func (a *Assistant) build(ctx context.Context, runID string) (int, error) {
	texts, err := a.corpus.Read(ctx)
	var count int
	if err == nil {
		count, err = a.index.Build(ctx, texts)
	}
	if err != nil {
		a.finishRun(ctx, runID, domain.IngestionFailed, 0, err)
		return 0, err
	}

	a.finishRun(ctx, runID, domain.IngestionSucceeded, count, nil)
	if a.opts.Queue != nil {
		if err := a.opts.Queue.PublishIndexRebuilt(ctx, a.index.Stats().Version); err != nil {
			slog.Warn("index_rebuilt_publish_failed", "run_id", runID, "error", err)
		}
	}
	return count, nil
}

func (a *Assistant) finishRun(ctx context.Context, runID string, status domain.IngestionStatus, count int, cause error) {
	message := ""
	if cause != nil {
		message = cause.Error()
	}
	if err := a.runs.UpdateStatus(context.WithoutCancel(ctx), runID, status, count, message); err != nil {
		slog.Error("ingestion_run_update_failed", "run_id", runID, "status", status, "error", err)
	}
}

func (a *Assistant) newRun(status domain.IngestionStatus) *domain.IngestionRun {
	return &domain.IngestionRun{
		ID:        uuid.NewString(),
		Source:    a.corpus.Source(),
		Status:    status,
		CreatedAt: time.Now().UTC(),
	}
}

func (a *Assistant) newAnswer(question string, decision domain.GatewayDecision, text string, sources []domain.RetrievedChunk, cached bool) *domain.Answer {
	return &domain.Answer{
		Question:          question,
		ProcessedQuestion: decision.CleanedText,
		Text:              text,
		Reason:            decision.Reason,
		Sources:           sources,
		Cached:            cached,
	}
}

func (a *Assistant) topK(topK int) int {
	switch {
	case topK <= 0:
		return a.opts.DefaultTopK
	case topK > a.opts.MaxTopK:
		return a.opts.MaxTopK
	default:
		return topK
	}
}

func (a *Assistant) cachedAnswer(ctx context.Context, key string) (string, bool) {
	if a.opts.Cache == nil {
		return "", false
	}
	text, ok, err := a.opts.Cache.Get(ctx, key)
	if err != nil {
		slog.Warn("answer_cache_get_failed", "error", err)
		return "", false
	}
	return text, ok
}

func (a *Assistant) storeAnswer(ctx context.Context, key, text string) {
	if a.opts.Cache == nil || text == "" {
		return
	}
	if err := a.opts.Cache.Set(ctx, key, text, a.opts.CacheTTL); err != nil {
		slog.Warn("answer_cache_set_failed", "error", err)
	}
}

func answerCacheKey(indexVersion string, k int, question string) string {
	sum := sha256.Sum256([]byte(indexVersion + "\x00" + strconv.Itoa(k) + "\x00" + question))
	return "answer:" + hex.EncodeToString(sum[:])
}
