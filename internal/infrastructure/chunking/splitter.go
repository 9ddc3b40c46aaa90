package chunking

import "strings"

// Splitter cuts text into windows of ChunkSize words, each window sharing
// Overlap words with the previous one. ChunkSize <= 0 disables splitting.
type Splitter struct {
	ChunkSize int
	Overlap   int
}

func NewSplitter(chunkSize, overlap int) *Splitter {
	if chunkSize < 0 {
		chunkSize = 0
	}
	if overlap < 0 {
		overlap = 0
	}
	if chunkSize > 0 && overlap >= chunkSize {
		overlap = chunkSize / 4
	}
	return &Splitter{
		ChunkSize: chunkSize,
		Overlap:   overlap,
	}
}

func (s *Splitter) Split(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	words := strings.Fields(text)
	if s.ChunkSize <= 0 || len(words) <= s.ChunkSize {
		return []string{text}
	}

	step := s.ChunkSize - s.Overlap
	if step <= 0 {
		step = s.ChunkSize
	}

	out := make([]string, 0, len(words)/step+1)
	for start := 0; start < len(words); start += step {
		end := min(start+s.ChunkSize, len(words))
		out = append(out, strings.Join(words[start:end], " "))
		if end == len(words) {
			break
		}
	}
	return out
}
