package memory

import (
	"context"
	"sort"
	"sync"

	"tasks-pizza/internal/domain"
)

var _ domain.ExecutionRepository = (*ExecutionRepository)(nil)

// ExecutionRepository keeps execution records per task name.
type ExecutionRepository struct {
	mu      sync.RWMutex
	records map[string][]domain.ExecutionRecord
}

func NewExecutionRepository() *ExecutionRepository {
	return &ExecutionRepository{records: make(map[string][]domain.ExecutionRecord)}
}

func (r *ExecutionRepository) Save(ctx context.Context, record *domain.ExecutionRecord) error {
	if err := record.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	records := r.records[record.TaskName]
	for i := range records {
		if records[i].ID == record.ID {
			records[i] = *record
			return nil
		}
	}
	r.records[record.TaskName] = append(records, *record)
	return nil
}

func (r *ExecutionRepository) ListByTaskName(ctx context.Context, taskName string, page, pageSize int) ([]*domain.ExecutionRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]*domain.ExecutionRecord, 0, len(r.records[taskName]))
	for _, rec := range r.records[taskName] {
		cp := rec
		all = append(all, &cp)
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].StartTime.After(all[j].StartTime)
	})

	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		return all, nil
	}
	start := (page - 1) * pageSize
	if start >= len(all) {
		return []*domain.ExecutionRecord{}, nil
	}
	return all[start:min(start+pageSize, len(all))], nil
}
