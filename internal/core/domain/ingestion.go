package domain

import "time"

type IngestionStatus string

const (
	IngestionQueued    IngestionStatus = "queued"
	IngestionRunning   IngestionStatus = "running"
	IngestionSucceeded IngestionStatus = "succeeded"
	IngestionFailed    IngestionStatus = "failed"
)

// EmbeddingsStoredStatus is the status reported after a successful ingestion.
const EmbeddingsStoredStatus = "Embeddings stored"

type IngestionRun struct {
	ID         string          `json:"id"`
	Source     string          `json:"source"`
	Status     IngestionStatus `json:"status"`
	Count      int             `json:"count"`
	Error      string          `json:"error,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
}

type IngestResult struct {
	Status string `json:"status"`
	Count  int    `json:"count"`
	RunID  string `json:"run_id,omitempty"`
}
