// Package local keeps the vector index in a single SQLite file under a
// directory and serves searches from an in-memory snapshot.
package local

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/kirillkom/car-knowledge-assistant/internal/core/domain"
)

const (
	indexFile   = "index.db"
	stagingFile = "index.db.staging"
)

type entry struct {
	chunk domain.Chunk
	norm  float64
}

type Store struct {
	dir string

	mu      sync.RWMutex
	entries []entry
}

func New(dir string) *Store {
	if dir == "" {
		dir = "./data/index"
	}
	return &Store{dir: dir}
}

func (s *Store) Name() string {
	return "local"
}

func (s *Store) path() string {
	return filepath.Join(s.dir, indexFile)
}

// Replace writes the chunks into a staging database and renames it over
// the live file. Searches keep using the previous snapshot until the swap.
func (s *Store) Replace(ctx context.Context, chunks []domain.Chunk) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create index directory: %w", err)
	}

	staging := filepath.Join(s.dir, stagingFile)
	_ = os.Remove(staging)
	if err := writeDatabase(ctx, staging, chunks); err != nil {
		_ = os.Remove(staging)
		return err
	}

	entries := toEntries(chunks)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Rename(staging, s.path()); err != nil {
		_ = os.Remove(staging)
		return fmt.Errorf("swap index file: %w", err)
	}
	s.entries = entries
	return nil
}

// Load reads a previously persisted index. found is false when no index
// file exists yet.
func (s *Store) Load(ctx context.Context) (int, bool, error) {
	if _, err := os.Stat(s.path()); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("stat index file: %w", err)
	}

	chunks, err := readDatabase(ctx, s.path())
	if err != nil {
		return 0, false, domain.WrapError(domain.ErrData, "load local index", err)
	}

	entries := toEntries(chunks)
	s.mu.Lock()
	s.entries = entries
	s.mu.Unlock()
	return len(entries), true, nil
}

func (s *Store) Search(ctx context.Context, queryVector []float32, limit int) ([]domain.RetrievedChunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, nil
	}
	queryNorm := vectorNorm(queryVector)

	s.mu.RLock()
	results := make([]domain.RetrievedChunk, 0, len(s.entries))
	for _, e := range s.entries {
		results = append(results, domain.RetrievedChunk{
			ID:       e.chunk.ID,
			Position: e.chunk.Position,
			Text:     e.chunk.Text,
			Score:    cosine(queryVector, queryNorm, e.chunk.Vector, e.norm),
		})
	}
	s.mu.RUnlock()

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Position < results[j].Position
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func writeDatabase(ctx context.Context, path string, chunks []domain.Chunk) error {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return fmt.Errorf("open staging index: %w", err)
	}
	defer db.Close()

	schema := `
	CREATE TABLE chunks (
		id TEXT PRIMARY KEY,
		position INTEGER NOT NULL,
		hash TEXT NOT NULL,
		text TEXT NOT NULL,
		embedding BLOB NOT NULL
	);
	`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create index schema: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin index transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO chunks (id, position, hash, text, embedding) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare chunk insert: %w", err)
	}
	defer stmt.Close()

	for _, chunk := range chunks {
		embedding, err := json.Marshal(chunk.Vector)
		if err != nil {
			return fmt.Errorf("encode embedding: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, chunk.ID, chunk.Position, chunk.Hash, chunk.Text, embedding); err != nil {
			return fmt.Errorf("insert chunk %s: %w", chunk.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit index: %w", err)
	}
	return nil
}

func readDatabase(ctx context.Context, path string) ([]domain.Chunk, error) {
	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, `SELECT id, position, hash, text, embedding FROM chunks ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer rows.Close()

	var chunks []domain.Chunk
	for rows.Next() {
		var chunk domain.Chunk
		var embedding []byte
		if err := rows.Scan(&chunk.ID, &chunk.Position, &chunk.Hash, &chunk.Text, &embedding); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		if err := json.Unmarshal(embedding, &chunk.Vector); err != nil {
			return nil, fmt.Errorf("decode embedding for %s: %w", chunk.ID, err)
		}
		chunks = append(chunks, chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunks: %w", err)
	}
	return chunks, nil
}

func toEntries(chunks []domain.Chunk) []entry {
	out := make([]entry, 0, len(chunks))
	for _, chunk := range chunks {
		out = append(out, entry{chunk: chunk, norm: vectorNorm(chunk.Vector)})
	}
	return out
}

func vectorNorm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func cosine(a []float32, normA float64, b []float32, normB float64) float64 {
	if len(a) != len(b) || normA == 0 || normB == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot / (normA * normB)
}
