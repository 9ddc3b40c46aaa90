package ports

import (
	"context"
	"io"
	"time"

	"github.com/kirillkom/car-knowledge-assistant/internal/core/domain"
)

// RelevanceClassifier ranks candidate labels for a text, highest score first.
type RelevanceClassifier interface {
	Classify(ctx context.Context, text string, labels []string) ([]domain.LabelScore, error)
}

// LexicalSimplifier reduces text to its content lemmas, preserving token order.
type LexicalSimplifier interface {
	Simplify(ctx context.Context, text string) (string, error)
}

// Embedder builds vectors for chunks and query text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// VectorStore persists embedded chunks and performs nearest-neighbour search.
// Replace must build the new index completely before making it visible.
type VectorStore interface {
	Replace(ctx context.Context, chunks []domain.Chunk) error
	Search(ctx context.Context, queryVector []float32, limit int) ([]domain.RetrievedChunk, error)
	Load(ctx context.Context) (count int, found bool, err error)
	Name() string
}

// AnswerGenerator creates the final user-facing answer from a rendered prompt.
type AnswerGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Name() string
}

// CorpusReader reads the flat text corpus into chunk texts.
type CorpusReader interface {
	Read(ctx context.Context) ([]string, error)
	Source() string
}

// Chunker splits long text into chunks.
type Chunker interface {
	Split(text string) []string
}

// ObjectStorage stores uploaded corpus files.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// IngestionRunStore persists ingestion run history.
type IngestionRunStore interface {
	Create(ctx context.Context, run *domain.IngestionRun) error
	GetByID(ctx context.Context, id string) (*domain.IngestionRun, error)
	UpdateStatus(ctx context.Context, id string, status domain.IngestionStatus, count int, errMessage string) error
}

// MessageQueue publishes/consumes ingestion jobs and index rebuild events.
type MessageQueue interface {
	PublishIngestRequested(ctx context.Context, runID string) error
	SubscribeIngestRequested(ctx context.Context, handler func(context.Context, string) error) error
	PublishIndexRebuilt(ctx context.Context, version string) error
	SubscribeIndexRebuilt(ctx context.Context, handler func(context.Context, string) error) error
}

// AnswerCache caches generated answers keyed by processed question.
type AnswerCache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}
