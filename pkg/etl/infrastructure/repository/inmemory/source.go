package inmemory

import (
	"context"
	"fmt"
	"time"

	model "github.com/tigerroll/surfin-etl/pkg/etl/core/domain/model"
	"github.com/tigerroll/surfin-etl/pkg/etl/core/domain/repository"
)

func cloneSource(d *model.DataSource) *model.DataSource {
	c := *d
	c.ConnectionConfig = d.ConnectionConfig.Clone()
	return &c
}

// SaveDataSource persists a new data source.
func (s *Store) SaveDataSource(ctx context.Context, source *model.DataSource) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.dataSources[source.ID]; exists {
		return fmt.Errorf("data source with ID %s already exists", source.ID)
	}
	s.dataSources[source.ID] = cloneSource(source)
	return nil
}

// FindDataSourceByID returns a copy of the stored data source.
func (s *Store) FindDataSourceByID(ctx context.Context, id string) (*model.DataSource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.dataSources[id]
	if !ok {
		return nil, repository.ErrDataSourceNotFound
	}
	return cloneSource(d), nil
}

// FindActiveDataSources returns active sources ordered by creation time.
func (s *Store) FindActiveDataSources(ctx context.Context) ([]*model.DataSource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*model.DataSource, 0)
	for _, d := range s.dataSources {
		if d.Active {
			result = append(result, cloneSource(d))
		}
	}
	sortByTime(result, func(d *model.DataSource) time.Time { return d.CreatedAt }, false)
	return result, nil
}
