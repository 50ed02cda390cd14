package inmemory

import (
	"context"
	"fmt"
	"time"

	model "github.com/tigerroll/surfin-etl/pkg/etl/core/domain/model"
	"github.com/tigerroll/surfin-etl/pkg/etl/core/domain/repository"
)

// SaveException persists a new exception record.
func (s *Store) SaveException(ctx context.Context, exc *model.DataException) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.exceptions[exc.ID]; exists {
		return fmt.Errorf("exception with ID %s already exists", exc.ID)
	}
	s.exceptions[exc.ID] = exc.Clone()
	return nil
}

// UpdateException replaces a stored exception record.
func (s *Store) UpdateException(ctx context.Context, exc *model.DataException) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.exceptions[exc.ID]; !exists {
		return repository.ErrExceptionNotFound
	}
	s.exceptions[exc.ID] = exc.Clone()
	return nil
}

// FindExceptionByID returns a copy of the stored exception.
func (s *Store) FindExceptionByID(ctx context.Context, id string) (*model.DataException, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	exc, ok := s.exceptions[id]
	if !ok {
		return nil, repository.ErrExceptionNotFound
	}
	return exc.Clone(), nil
}

// FindExceptionsByJob returns the job's exceptions, newest first.
func (s *Store) FindExceptionsByJob(ctx context.Context, jobID string) ([]*model.DataException, error) {
	return s.findExceptions(func(e *model.DataException) bool { return e.JobID == jobID }, 0), nil
}

// FindRecentExceptions returns up to limit exceptions, newest first.
func (s *Store) FindRecentExceptions(ctx context.Context, limit int) ([]*model.DataException, error) {
	return s.findExceptions(func(*model.DataException) bool { return true }, limit), nil
}

func (s *Store) findExceptions(match func(*model.DataException) bool, limit int) []*model.DataException {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*model.DataException, 0)
	for _, e := range s.exceptions {
		if match(e) {
			result = append(result, e.Clone())
		}
	}
	sortByTime(result, func(e *model.DataException) time.Time { return e.Timestamp }, true)
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result
}
