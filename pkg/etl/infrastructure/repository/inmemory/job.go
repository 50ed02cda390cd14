package inmemory

import (
	"context"
	"fmt"
	"time"

	model "github.com/tigerroll/surfin-etl/pkg/etl/core/domain/model"
	"github.com/tigerroll/surfin-etl/pkg/etl/core/domain/repository"
	"github.com/tigerroll/surfin-etl/pkg/etl/support/util/exception"
)

// SaveJob persists a new job. It returns an error if a job with the same ID exists.
func (s *Store) SaveJob(ctx context.Context, job *model.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("job with ID %s already exists", job.ID)
	}
	s.jobs[job.ID] = job.Clone()
	return nil
}

// UpdateJob stores job when its Version matches the stored one, then increments it.
func (s *Store) UpdateJob(ctx context.Context, job *model.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, exists := s.jobs[job.ID]
	if !exists {
		return repository.ErrJobNotFound
	}
	if stored.Version != job.Version {
		return exception.NewOptimisticLockingFailureException("inmemory", fmt.Sprintf("job %s was modified concurrently (version %d, stored %d)", job.ID, job.Version, stored.Version), nil)
	}
	job.Version++
	job.UpdatedAt = time.Now()
	s.jobs[job.ID] = job.Clone()
	return nil
}

// FindJobByID returns a copy of the stored job.
func (s *Store) FindJobByID(ctx context.Context, id string) (*model.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, repository.ErrJobNotFound
	}
	return job.Clone(), nil
}

// FindJobsByStatus returns matching jobs ordered by creation time.
func (s *Store) FindJobsByStatus(ctx context.Context, status model.JobStatus) ([]*model.Job, error) {
	return s.findJobs(func(j *model.Job) bool { return j.Status == status }), nil
}

// FindJobsBySource returns matching jobs ordered by creation time.
func (s *Store) FindJobsBySource(ctx context.Context, sourceID string) ([]*model.Job, error) {
	return s.findJobs(func(j *model.Job) bool { return strEq(j.SourceID, sourceID) }), nil
}

func (s *Store) findJobs(match func(*model.Job) bool) []*model.Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*model.Job, 0)
	for _, j := range s.jobs {
		if match(j) {
			result = append(result, j.Clone())
		}
	}
	sortByTime(result, func(j *model.Job) time.Time { return j.CreatedAt }, false)
	return result
}
