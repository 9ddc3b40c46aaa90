package ports

import (
	"context"
	"io"

	"github.com/kirillkom/car-knowledge-assistant/internal/core/domain"
)

// Assistant is the inbound contract of the service facade.
type Assistant interface {
	Ingest(ctx context.Context) (*domain.IngestResult, error)
	Search(ctx context.Context, query string, topK int) (*domain.SearchResult, error)
	Ask(ctx context.Context, question string, topK int) (*domain.AskResult, error)
}

// IngestionScheduler is the inbound contract for asynchronous ingestion.
type IngestionScheduler interface {
	EnqueueIngest(ctx context.Context) (*domain.IngestionRun, error)
	RunIngest(ctx context.Context, runID string) error
}

// IngestionReader is the inbound read model for ingestion run state.
type IngestionReader interface {
	IngestionRun(ctx context.Context, id string) (*domain.IngestionRun, error)
}

// CorpusUploader replaces the source corpus file.
type CorpusUploader interface {
	UploadCorpus(ctx context.Context, filename string, body io.Reader) error
}

// IndexInspector exposes retrieval index state.
type IndexInspector interface {
	IndexStats() domain.IndexStats
}
