package inmemory

import (
	"context"
	"fmt"
	"time"

	model "github.com/tigerroll/surfin-etl/pkg/etl/core/domain/model"
	"github.com/tigerroll/surfin-etl/pkg/etl/core/domain/repository"
)

func cloneSchema(s *model.DetectedSchema) *model.DetectedSchema {
	c := *s
	c.Fields = append(model.FieldList(nil), s.Fields...)
	c.Sample = append([]interface{}(nil), s.Sample...)
	return &c
}

// SaveSchema persists a new detected schema.
func (s *Store) SaveSchema(ctx context.Context, schema *model.DetectedSchema) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.schemas[schema.ID]; exists {
		return fmt.Errorf("schema with ID %s already exists", schema.ID)
	}
	s.schemas[schema.ID] = cloneSchema(schema)
	return nil
}

// UpdateSchema replaces a stored schema.
func (s *Store) UpdateSchema(ctx context.Context, schema *model.DetectedSchema) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.schemas[schema.ID]; !exists {
		return repository.ErrSchemaNotFound
	}
	schema.UpdatedAt = time.Now()
	s.schemas[schema.ID] = cloneSchema(schema)
	return nil
}

// FindSchemaByID returns a copy of the stored schema.
func (s *Store) FindSchemaByID(ctx context.Context, id string) (*model.DetectedSchema, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	schema, ok := s.schemas[id]
	if !ok {
		return nil, repository.ErrSchemaNotFound
	}
	return cloneSchema(schema), nil
}

// FindSchemasBySource returns the source's schemas, newest first.
func (s *Store) FindSchemasBySource(ctx context.Context, sourceID string) ([]*model.DetectedSchema, error) {
	return s.findSchemas(func(d *model.DetectedSchema) bool { return strEq(d.SourceID, sourceID) }), nil
}

// FindSchemasByJob returns the job's schemas, newest first.
func (s *Store) FindSchemasByJob(ctx context.Context, jobID string) ([]*model.DetectedSchema, error) {
	return s.findSchemas(func(d *model.DetectedSchema) bool { return strEq(d.JobID, jobID) }), nil
}

func (s *Store) findSchemas(match func(*model.DetectedSchema) bool) []*model.DetectedSchema {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*model.DetectedSchema, 0)
	for _, d := range s.schemas {
		if match(d) {
			result = append(result, cloneSchema(d))
		}
	}
	sortByTime(result, func(d *model.DetectedSchema) time.Time { return d.CreatedAt }, true)
	return result
}
