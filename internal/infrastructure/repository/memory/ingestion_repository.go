// Package memory keeps ingestion run history in process memory. It backs
// single-process deployments that run without Postgres.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kirillkom/car-knowledge-assistant/internal/core/domain"
)

type IngestionRepository struct {
	mu   sync.RWMutex
	runs map[string]domain.IngestionRun
	now  func() time.Time
}

func NewIngestionRepository() *IngestionRepository {
	return &IngestionRepository{
		runs: make(map[string]domain.IngestionRun),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (r *IngestionRepository) Create(_ context.Context, run *domain.IngestionRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.runs[run.ID]; exists {
		return domain.WrapError(domain.ErrInvalidInput, "create ingestion run", fmt.Errorf("duplicate id %s", run.ID))
	}
	r.runs[run.ID] = *run
	return nil
}

func (r *IngestionRepository) GetByID(_ context.Context, id string) (*domain.IngestionRun, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	run, ok := r.runs[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "get ingestion run", fmt.Errorf("ingestion run not found: %s", id))
	}
	return &run, nil
}

func (r *IngestionRepository) UpdateStatus(_ context.Context, id string, status domain.IngestionStatus, count int, errMessage string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[id]
	if !ok {
		return domain.WrapError(domain.ErrNotFound, "update ingestion run", fmt.Errorf("ingestion run not found: %s", id))
	}
	run.Status = status
	run.Count = count
	run.Error = errMessage
	if status == domain.IngestionSucceeded || status == domain.IngestionFailed {
		finished := r.now()
		run.FinishedAt = &finished
	}
	r.runs[id] = run
	return nil
}
