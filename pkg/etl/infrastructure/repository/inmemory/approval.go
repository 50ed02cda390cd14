package inmemory

import (
	"context"
	"fmt"
	"time"

	model "github.com/tigerroll/surfin-etl/pkg/etl/core/domain/model"
	"github.com/tigerroll/surfin-etl/pkg/etl/core/domain/repository"
	"github.com/tigerroll/surfin-etl/pkg/etl/support/util/exception"
)

func cloneApproval(a *model.WorkflowApproval) *model.WorkflowApproval {
	c := *a
	return &c
}

// SaveApproval persists a new approval request.
func (s *Store) SaveApproval(ctx context.Context, approval *model.WorkflowApproval) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.approvals[approval.ID]; exists {
		return fmt.Errorf("approval with ID %s already exists", approval.ID)
	}
	s.approvals[approval.ID] = cloneApproval(approval)
	return nil
}

// UpdateApproval stores approval when its Version matches the stored one, then increments it.
func (s *Store) UpdateApproval(ctx context.Context, approval *model.WorkflowApproval) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, exists := s.approvals[approval.ID]
	if !exists {
		return repository.ErrApprovalNotFound
	}
	if stored.Version != approval.Version {
		return exception.NewOptimisticLockingFailureException("inmemory", fmt.Sprintf("approval %s was modified concurrently", approval.ID), nil)
	}
	approval.Version++
	approval.UpdatedAt = time.Now()
	s.approvals[approval.ID] = cloneApproval(approval)
	return nil
}

// FindApprovalByID returns a copy of the stored approval.
func (s *Store) FindApprovalByID(ctx context.Context, id string) (*model.WorkflowApproval, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.approvals[id]
	if !ok {
		return nil, repository.ErrApprovalNotFound
	}
	return cloneApproval(a), nil
}

// FindApprovalsByState returns approvals in state, oldest submission first.
func (s *Store) FindApprovalsByState(ctx context.Context, state model.ApprovalState) ([]*model.WorkflowApproval, error) {
	return s.findApprovals(func(a *model.WorkflowApproval) bool { return a.State == state }), nil
}

// FindApprovalsByJob returns the job's approvals, oldest submission first.
func (s *Store) FindApprovalsByJob(ctx context.Context, jobID string) ([]*model.WorkflowApproval, error) {
	return s.findApprovals(func(a *model.WorkflowApproval) bool { return a.JobID == jobID }), nil
}

func (s *Store) findApprovals(match func(*model.WorkflowApproval) bool) []*model.WorkflowApproval {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*model.WorkflowApproval, 0)
	for _, a := range s.approvals {
		if match(a) {
			result = append(result, cloneApproval(a))
		}
	}
	sortByTime(result, func(a *model.WorkflowApproval) time.Time { return a.SubmittedAt }, false)
	return result
}
