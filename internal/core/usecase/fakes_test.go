package usecase

import (
	"context"
	"errors"
	"hash/fnv"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/kirillkom/car-knowledge-assistant/internal/core/domain"
)

// hashEmbedderFake produces bag-of-words vectors so that similar texts are close.
type hashEmbedderFake struct {
	mu         sync.Mutex
	batchCalls int
	err        error
}

func (f *hashEmbedderFake) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.batchCalls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, 0, len(texts))
	for _, text := range texts {
		out = append(out, bagOfWords(text))
	}
	return out, nil
}

func (f *hashEmbedderFake) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := f.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func bagOfWords(text string) []float32 {
	vec := make([]float32, 64)
	for _, token := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(token))
		vec[h.Sum32()%64]++
	}
	return vec
}

type memoryStoreFake struct {
	mu       sync.RWMutex
	chunks   []domain.Chunk
	persist  []domain.Chunk
	replaces int
	err      error
}

func (s *memoryStoreFake) Name() string { return "memory" }

func (s *memoryStoreFake) Replace(_ context.Context, chunks []domain.Chunk) error {
	if s.err != nil {
		return s.err
	}
	next := make([]domain.Chunk, len(chunks))
	copy(next, chunks)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = next
	s.persist = next
	s.replaces++
	return nil
}

func (s *memoryStoreFake) Load(context.Context) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.persist == nil {
		return 0, false, nil
	}
	s.chunks = s.persist
	return len(s.chunks), true, nil
}

func (s *memoryStoreFake) Search(_ context.Context, queryVector []float32, limit int) ([]domain.RetrievedChunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.chunks == nil {
		return nil, errors.New("store not loaded")
	}
	out := make([]domain.RetrievedChunk, 0, len(s.chunks))
	for _, chunk := range s.chunks {
		out = append(out, domain.RetrievedChunk{
			ID:       chunk.ID,
			Position: chunk.Position,
			Text:     chunk.Text,
			Score:    cosineFake(queryVector, chunk.Vector),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func cosineFake(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

type generatorFake struct {
	answer string
	err    error

	calls  int
	prompt string
}

func (g *generatorFake) Name() string { return "fake" }

func (g *generatorFake) Generate(_ context.Context, prompt string) (string, error) {
	g.calls++
	g.prompt = prompt
	if g.err != nil {
		return "", g.err
	}
	return g.answer, nil
}
