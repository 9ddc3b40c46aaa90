package domain

import "time"

// Chunk is a unit of indexed manual text. Chunks are immutable once the index is built.
type Chunk struct {
	ID       string    `json:"id"`
	Position int       `json:"position"`
	Hash     string    `json:"hash"`
	Text     string    `json:"text"`
	Vector   []float32 `json:"-"`
}

type RetrievedChunk struct {
	ID       string  `json:"id"`
	Position int     `json:"position"`
	Text     string  `json:"text"`
	Score    float64 `json:"score"`
}

type IndexStats struct {
	Ready   bool      `json:"ready"`
	Count   int       `json:"count"`
	Version string    `json:"version,omitempty"`
	BuiltAt time.Time `json:"built_at,omitempty"`
	Backend string    `json:"backend"`
}

type SearchResult struct {
	Query   string   `json:"query"`
	Results []string `json:"results"`
}

type Answer struct {
	Question          string           `json:"original_question"`
	ProcessedQuestion string           `json:"processed_question"`
	Text              string           `json:"answer"`
	Reason            string           `json:"slm_reason"`
	Sources           []RetrievedChunk `json:"-"`
	Cached            bool             `json:"-"`
}

// AskResult holds either a blocked gateway decision or a generated answer.
type AskResult struct {
	Question string
	Decision GatewayDecision
	Answer   *Answer
}

func (r AskResult) Blocked() bool {
	return r.Answer == nil
}
