package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/car-knowledge-assistant/internal/core/domain"
	"github.com/kirillkom/car-knowledge-assistant/internal/core/ports"
)

type IndexOptions struct {
	BatchSize   int
	Concurrency int
}

// Index is the retrieval index service. Builds are serialized and become
// visible to searches only after the backing store has been fully replaced.
type Index struct {
	embedder ports.Embedder
	store    ports.VectorStore
	opts     IndexOptions

	buildMu sync.Mutex

	mu    sync.RWMutex
	stats domain.IndexStats
}

func NewIndex(embedder ports.Embedder, store ports.VectorStore, opts IndexOptions) *Index {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 32
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	return &Index{
		embedder: embedder,
		store:    store,
		opts:     opts,
		stats:    domain.IndexStats{Backend: store.Name()},
	}
}

// Load opens a previously persisted index. It reports whether one was found.
// Load waits for a running Build so it never restores an older snapshot over it.
func (ix *Index) Load(ctx context.Context) (bool, error) {
	ix.buildMu.Lock()
	defer ix.buildMu.Unlock()

	count, found, err := ix.store.Load(ctx)
	if err != nil {
		return false, fmt.Errorf("load vector store: %w", err)
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	if !found || count == 0 {
		ix.stats = domain.IndexStats{Backend: ix.store.Name()}
		return false, nil
	}
	loadedAt := time.Now().UTC()
	ix.stats = domain.IndexStats{
		Ready:   true,
		Count:   count,
		Version: fmt.Sprintf("%d", loadedAt.UnixNano()),
		BuiltAt: loadedAt,
		Backend: ix.store.Name(),
	}
	return true, nil
}

func (ix *Index) Build(ctx context.Context, texts []string) (int, error) {
	chunks := makeChunks(texts)
	if len(chunks) == 0 {
		return 0, domain.WrapError(domain.ErrData, "build index", fmt.Errorf("no non-empty chunks to index"))
	}

	ix.buildMu.Lock()
	defer ix.buildMu.Unlock()

	start := time.Now()
	if err := ix.embedChunks(ctx, chunks); err != nil {
		return 0, fmt.Errorf("embed chunks: %w", err)
	}
	if err := ix.store.Replace(ctx, chunks); err != nil {
		return 0, fmt.Errorf("replace vector store: %w", err)
	}

	builtAt := time.Now().UTC()
	ix.mu.Lock()
	ix.stats = domain.IndexStats{
		Ready:   true,
		Count:   len(chunks),
		Version: fmt.Sprintf("%d", builtAt.UnixNano()),
		BuiltAt: builtAt,
		Backend: ix.store.Name(),
	}
	ix.mu.Unlock()

	slog.Info("index_built",
		"backend", ix.store.Name(),
		"chunks", len(chunks),
		"duration_ms", float64(time.Since(start).Microseconds())/1000.0,
	)
	return len(chunks), nil
}

func (ix *Index) Search(ctx context.Context, query string, k int) ([]domain.RetrievedChunk, error) {
	if k <= 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "search index", fmt.Errorf("k must be positive, got %d", k))
	}

	stats := ix.Stats()
	if !stats.Ready {
		return nil, domain.WrapError(domain.ErrNotInitialized, "search index", domain.ErrIndexNotReady)
	}
	if k > stats.Count {
		k = stats.Count
	}

	queryVector, err := ix.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	chunks, err := ix.store.Search(ctx, queryVector, k)
	if err != nil {
		return nil, fmt.Errorf("search vector store: %w", err)
	}
	if len(chunks) > k {
		chunks = chunks[:k]
	}
	return chunks, nil
}

func (ix *Index) Stats() domain.IndexStats {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.stats
}

func (ix *Index) embedChunks(ctx context.Context, chunks []domain.Chunk) error {
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(ix.opts.Concurrency)

	for start := 0; start < len(chunks); start += ix.opts.BatchSize {
		end := start + ix.opts.BatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		group.Go(func() error {
			texts := make([]string, len(batch))
			for i := range batch {
				texts[i] = batch[i].Text
			}
			vectors, err := ix.embedder.Embed(groupCtx, texts)
			if err != nil {
				return err
			}
			if len(vectors) != len(batch) {
				return fmt.Errorf("embedder returned %d vectors for %d texts", len(vectors), len(batch))
			}
			for i := range batch {
				batch[i].Vector = vectors[i]
			}
			return nil
		})
	}
	return group.Wait()
}

func makeChunks(texts []string) []domain.Chunk {
	chunks := make([]domain.Chunk, 0, len(texts))
	for _, text := range texts {
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		sum := sha256.Sum256([]byte(text))
		hash := hex.EncodeToString(sum[:])
		position := len(chunks)
		chunks = append(chunks, domain.Chunk{
			ID:       fmt.Sprintf("%06d-%s", position, hash[:16]),
			Position: position,
			Hash:     hash,
			Text:     text,
		})
	}
	return chunks
}
