// Package inmemory implements repository.Store on guarded maps. It backs tests and
// single-process runs configured without a database.
package inmemory

import (
	"sort"
	"sync"
	"time"

	model "github.com/tigerroll/surfin-etl/pkg/etl/core/domain/model"
	"github.com/tigerroll/surfin-etl/pkg/etl/core/domain/repository"
)

// Store holds every aggregate in memory. Reads and writes copy values so callers never
// share state with the store.
type Store struct {
	mu          sync.RWMutex
	jobs        map[string]*model.Job
	schemas     map[string]*model.DetectedSchema
	events      []*model.LineageEvent
	exceptions  map[string]*model.DataException
	approvals   map[string]*model.WorkflowApproval
	dataSources map[string]*model.DataSource
}

var _ repository.Store = (*Store)(nil)

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		jobs:        make(map[string]*model.Job),
		schemas:     make(map[string]*model.DetectedSchema),
		exceptions:  make(map[string]*model.DataException),
		approvals:   make(map[string]*model.WorkflowApproval),
		dataSources: make(map[string]*model.DataSource),
	}
}

func sortByTime[T any](items []T, at func(T) time.Time, desc bool) {
	sort.SliceStable(items, func(i, j int) bool {
		if desc {
			return at(items[i]).After(at(items[j]))
		}
		return at(items[i]).Before(at(items[j]))
	})
}

func strEq(p *string, v string) bool {
	return p != nil && *p == v
}
