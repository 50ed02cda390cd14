// Package sql implements repository.Store on the GORM database adapter. Writes join the
// transaction bound to the context, if any.
package sql

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/fx"

	"github.com/tigerroll/surfin-etl/pkg/etl/adapter/database"
	model "github.com/tigerroll/surfin-etl/pkg/etl/core/domain/model"
	"github.com/tigerroll/surfin-etl/pkg/etl/core/domain/repository"
	"github.com/tigerroll/surfin-etl/pkg/etl/support/util/exception"
)

const moduleName = "SQLStore"

// SQLStore implements repository.Store.
type SQLStore struct {
	conn database.DBConnection
}

var _ repository.Store = (*SQLStore)(nil)

// NewSQLStore creates a store on conn.
func NewSQLStore(conn database.DBConnection) *SQLStore {
	return &SQLStore{conn: conn}
}

func (r *SQLStore) executor(ctx context.Context) database.DBExecutor {
	return r.conn.Executor(ctx)
}

func internalErr(op, msg string, err error) error {
	return exception.NewEtlError(moduleName, exception.KindInternal, op+": "+msg, err)
}

// create inserts entity.
func (r *SQLStore) create(ctx context.Context, op string, entity TableNamer, id string) error {
	if _, err := r.executor(ctx).ExecuteUpdate(ctx, entity, database.OpCreate, entity.TableName(), nil); err != nil {
		return internalErr(op, fmt.Sprintf("failed to save (ID: %s)", id), err)
	}
	return nil
}

// update writes entity and reports notFound when no row matched.
func (r *SQLStore) update(ctx context.Context, op string, entity TableNamer, id string, notFound error) error {
	rows, err := r.executor(ctx).ExecuteUpdate(ctx, entity, database.OpUpdate, entity.TableName(), nil)
	if err != nil {
		return internalErr(op, fmt.Sprintf("failed to update (ID: %s)", id), err)
	}
	if rows == 0 {
		return notFound
	}
	return nil
}

// updateVersioned writes entity only where the stored version equals originalVersion.
func (r *SQLStore) updateVersioned(ctx context.Context, op string, entity TableNamer, id string, originalVersion int) error {
	rows, err := r.executor(ctx).ExecuteUpdate(ctx, entity, database.OpUpdate, entity.TableName(),
		map[string]interface{}{"version": originalVersion})
	if err != nil {
		return internalErr(op, fmt.Sprintf("failed to update (ID: %s)", id), err)
	}
	if rows == 0 {
		return exception.NewOptimisticLockingFailureException("repository",
			fmt.Sprintf("%s (ID: %s) with version %d not found for update", op, id, originalVersion), nil)
	}
	return nil
}

// TableNamer is implemented by every entity.
type TableNamer interface {
	TableName() string
}

// --- Jobs ---

func (r *SQLStore) SaveJob(ctx context.Context, job *model.Job) error {
	const op = "SQLStore.SaveJob"
	entity, err := fromDomainJob(job)
	if err != nil {
		return internalErr(op, "failed to map job", err)
	}
	return r.create(ctx, op, entity, job.ID)
}

func (r *SQLStore) UpdateJob(ctx context.Context, job *model.Job) error {
	const op = "SQLStore.UpdateJob"
	originalVersion := job.Version
	prevUpdated := job.UpdatedAt
	job.Version++
	job.UpdatedAt = time.Now()

	entity, err := fromDomainJob(job)
	if err == nil {
		err = r.updateVersioned(ctx, op, entity, job.ID, originalVersion)
	}
	if err != nil {
		job.Version = originalVersion
		job.UpdatedAt = prevUpdated
		return err
	}
	return nil
}

func (r *SQLStore) FindJobByID(ctx context.Context, id string) (*model.Job, error) {
	const op = "SQLStore.FindJobByID"
	var entities []JobEntity
	if err := r.executor(ctx).ExecuteQueryAdvanced(ctx, &entities, map[string]interface{}{"id": id}, "", 1); err != nil {
		return nil, internalErr(op, fmt.Sprintf("failed to find job by ID: %s", id), err)
	}
	if len(entities) == 0 {
		return nil, repository.ErrJobNotFound
	}
	return toDomainJob(&entities[0])
}

func (r *SQLStore) FindJobsByStatus(ctx context.Context, status model.JobStatus) ([]*model.Job, error) {
	return r.findJobs(ctx, "SQLStore.FindJobsByStatus", map[string]interface{}{"status": string(status)})
}

func (r *SQLStore) FindJobsBySource(ctx context.Context, sourceID string) ([]*model.Job, error) {
	return r.findJobs(ctx, "SQLStore.FindJobsBySource", map[string]interface{}{"source_id": sourceID})
}

func (r *SQLStore) findJobs(ctx context.Context, op string, query map[string]interface{}) ([]*model.Job, error) {
	var entities []JobEntity
	if err := r.executor(ctx).ExecuteQueryAdvanced(ctx, &entities, query, "created_at ASC", 0); err != nil {
		return nil, internalErr(op, "failed to query jobs", err)
	}
	out := make([]*model.Job, 0, len(entities))
	for i := range entities {
		j, err := toDomainJob(&entities[i])
		if err != nil {
			return nil, internalErr(op, "failed to map job", err)
		}
		out = append(out, j)
	}
	return out, nil
}

// --- Schemas ---

func (r *SQLStore) SaveSchema(ctx context.Context, schema *model.DetectedSchema) error {
	const op = "SQLStore.SaveSchema"
	entity, err := fromDomainSchema(schema)
	if err != nil {
		return internalErr(op, "failed to map schema", err)
	}
	return r.create(ctx, op, entity, schema.ID)
}

func (r *SQLStore) UpdateSchema(ctx context.Context, schema *model.DetectedSchema) error {
	const op = "SQLStore.UpdateSchema"
	schema.UpdatedAt = time.Now()
	entity, err := fromDomainSchema(schema)
	if err != nil {
		return internalErr(op, "failed to map schema", err)
	}
	return r.update(ctx, op, entity, schema.ID, repository.ErrSchemaNotFound)
}

func (r *SQLStore) FindSchemaByID(ctx context.Context, id string) (*model.DetectedSchema, error) {
	schemas, err := r.findSchemas(ctx, "SQLStore.FindSchemaByID", map[string]interface{}{"id": id})
	if err != nil {
		return nil, err
	}
	if len(schemas) == 0 {
		return nil, repository.ErrSchemaNotFound
	}
	return schemas[0], nil
}

func (r *SQLStore) FindSchemasBySource(ctx context.Context, sourceID string) ([]*model.DetectedSchema, error) {
	return r.findSchemas(ctx, "SQLStore.FindSchemasBySource", map[string]interface{}{"source_id": sourceID})
}

func (r *SQLStore) FindSchemasByJob(ctx context.Context, jobID string) ([]*model.DetectedSchema, error) {
	return r.findSchemas(ctx, "SQLStore.FindSchemasByJob", map[string]interface{}{"job_id": jobID})
}

func (r *SQLStore) findSchemas(ctx context.Context, op string, query map[string]interface{}) ([]*model.DetectedSchema, error) {
	var entities []DetectedSchemaEntity
	if err := r.executor(ctx).ExecuteQueryAdvanced(ctx, &entities, query, "created_at DESC", 0); err != nil {
		return nil, internalErr(op, "failed to query schemas", err)
	}
	out := make([]*model.DetectedSchema, 0, len(entities))
	for i := range entities {
		s, err := toDomainSchema(&entities[i])
		if err != nil {
			return nil, internalErr(op, "failed to map schema", err)
		}
		out = append(out, s)
	}
	return out, nil
}

// --- Lineage ---

func (r *SQLStore) AppendEvent(ctx context.Context, event *model.LineageEvent) error {
	const op = "SQLStore.AppendEvent"
	entity, err := fromDomainEvent(event)
	if err != nil {
		return internalErr(op, "failed to map lineage event", err)
	}
	return r.create(ctx, op, entity, event.ID)
}

func (r *SQLStore) FindEventsByJob(ctx context.Context, jobID string) ([]*model.LineageEvent, error) {
	return r.findEvents(ctx, "SQLStore.FindEventsByJob", map[string]interface{}{"job_id": jobID}, "occurred_at ASC")
}

func (r *SQLStore) FindEventsBySource(ctx context.Context, sourceID string) ([]*model.LineageEvent, error) {
	return r.findEvents(ctx, "SQLStore.FindEventsBySource", map[string]interface{}{"source_id": sourceID}, "occurred_at DESC")
}

func (r *SQLStore) FindEventsByType(ctx context.Context, eventType model.EventType) ([]*model.LineageEvent, error) {
	return r.findEvents(ctx, "SQLStore.FindEventsByType", map[string]interface{}{"event_type": string(eventType)}, "occurred_at ASC")
}

func (r *SQLStore) findEvents(ctx context.Context, op string, query map[string]interface{}, order string) ([]*model.LineageEvent, error) {
	var entities []LineageEventEntity
	if err := r.executor(ctx).ExecuteQueryAdvanced(ctx, &entities, query, order, 0); err != nil {
		return nil, internalErr(op, "failed to query lineage events", err)
	}
	out := make([]*model.LineageEvent, 0, len(entities))
	for i := range entities {
		ev, err := toDomainEvent(&entities[i])
		if err != nil {
			return nil, internalErr(op, "failed to map lineage event", err)
		}
		out = append(out, ev)
	}
	return out, nil
}

// --- Exceptions ---

func (r *SQLStore) SaveException(ctx context.Context, exc *model.DataException) error {
	const op = "SQLStore.SaveException"
	entity, err := fromDomainException(exc)
	if err != nil {
		return internalErr(op, "failed to map exception", err)
	}
	return r.create(ctx, op, entity, exc.ID)
}

func (r *SQLStore) UpdateException(ctx context.Context, exc *model.DataException) error {
	const op = "SQLStore.UpdateException"
	entity, err := fromDomainException(exc)
	if err != nil {
		return internalErr(op, "failed to map exception", err)
	}
	return r.update(ctx, op, entity, exc.ID, repository.ErrExceptionNotFound)
}

func (r *SQLStore) FindExceptionByID(ctx context.Context, id string) (*model.DataException, error) {
	excs, err := r.findExceptions(ctx, "SQLStore.FindExceptionByID", map[string]interface{}{"id": id}, 1)
	if err != nil {
		return nil, err
	}
	if len(excs) == 0 {
		return nil, repository.ErrExceptionNotFound
	}
	return excs[0], nil
}

func (r *SQLStore) FindExceptionsByJob(ctx context.Context, jobID string) ([]*model.DataException, error) {
	return r.findExceptions(ctx, "SQLStore.FindExceptionsByJob", map[string]interface{}{"job_id": jobID}, 0)
}

func (r *SQLStore) FindRecentExceptions(ctx context.Context, limit int) ([]*model.DataException, error) {
	return r.findExceptions(ctx, "SQLStore.FindRecentExceptions", nil, limit)
}

func (r *SQLStore) findExceptions(ctx context.Context, op string, query map[string]interface{}, limit int) ([]*model.DataException, error) {
	var entities []DataExceptionEntity
	if err := r.executor(ctx).ExecuteQueryAdvanced(ctx, &entities, query, "occurred_at DESC", limit); err != nil {
		return nil, internalErr(op, "failed to query exceptions", err)
	}
	out := make([]*model.DataException, 0, len(entities))
	for i := range entities {
		x, err := toDomainException(&entities[i])
		if err != nil {
			return nil, internalErr(op, "failed to map exception", err)
		}
		out = append(out, x)
	}
	return out, nil
}

// --- Approvals ---

func (r *SQLStore) SaveApproval(ctx context.Context, approval *model.WorkflowApproval) error {
	return r.create(ctx, "SQLStore.SaveApproval", fromDomainApproval(approval), approval.ID)
}

func (r *SQLStore) UpdateApproval(ctx context.Context, approval *model.WorkflowApproval) error {
	const op = "SQLStore.UpdateApproval"
	originalVersion := approval.Version
	prevUpdated := approval.UpdatedAt
	approval.Version++
	approval.UpdatedAt = time.Now()
	if err := r.updateVersioned(ctx, op, fromDomainApproval(approval), approval.ID, originalVersion); err != nil {
		approval.Version = originalVersion
		approval.UpdatedAt = prevUpdated
		return err
	}
	return nil
}

func (r *SQLStore) FindApprovalByID(ctx context.Context, id string) (*model.WorkflowApproval, error) {
	approvals, err := r.findApprovals(ctx, "SQLStore.FindApprovalByID", map[string]interface{}{"id": id})
	if err != nil {
		return nil, err
	}
	if len(approvals) == 0 {
		return nil, repository.ErrApprovalNotFound
	}
	return approvals[0], nil
}

func (r *SQLStore) FindApprovalsByState(ctx context.Context, state model.ApprovalState) ([]*model.WorkflowApproval, error) {
	return r.findApprovals(ctx, "SQLStore.FindApprovalsByState", map[string]interface{}{"state": string(state)})
}

func (r *SQLStore) FindApprovalsByJob(ctx context.Context, jobID string) ([]*model.WorkflowApproval, error) {
	return r.findApprovals(ctx, "SQLStore.FindApprovalsByJob", map[string]interface{}{"job_id": jobID})
}

func (r *SQLStore) findApprovals(ctx context.Context, op string, query map[string]interface{}) ([]*model.WorkflowApproval, error) {
	var entities []WorkflowApprovalEntity
	if err := r.executor(ctx).ExecuteQueryAdvanced(ctx, &entities, query, "submitted_at ASC", 0); err != nil {
		return nil, internalErr(op, "failed to query approvals", err)
	}
	out := make([]*model.WorkflowApproval, 0, len(entities))
	for i := range entities {
		a, err := toDomainApproval(&entities[i])
		if err != nil {
			return nil, internalErr(op, "failed to map approval", err)
		}
		out = append(out, a)
	}
	return out, nil
}

// --- Data sources ---

func (r *SQLStore) SaveDataSource(ctx context.Context, source *model.DataSource) error {
	const op = "SQLStore.SaveDataSource"
	entity, err := fromDomainDataSource(source)
	if err != nil {
		return internalErr(op, "failed to map data source", err)
	}
	return r.create(ctx, op, entity, source.ID)
}

func (r *SQLStore) FindDataSourceByID(ctx context.Context, id string) (*model.DataSource, error) {
	sources, err := r.findDataSources(ctx, "SQLStore.FindDataSourceByID", map[string]interface{}{"id": id})
	if err != nil {
		return nil, err
	}
	if len(sources) == 0 {
		return nil, repository.ErrDataSourceNotFound
	}
	return sources[0], nil
}

func (r *SQLStore) FindActiveDataSources(ctx context.Context) ([]*model.DataSource, error) {
	return r.findDataSources(ctx, "SQLStore.FindActiveDataSources", map[string]interface{}{"active": true})
}

func (r *SQLStore) findDataSources(ctx context.Context, op string, query map[string]interface{}) ([]*model.DataSource, error) {
	var entities []DataSourceEntity
	if err := r.executor(ctx).ExecuteQueryAdvanced(ctx, &entities, query, "created_at ASC", 0); err != nil {
		return nil, internalErr(op, "failed to query data sources", err)
	}
	out := make([]*model.DataSource, 0, len(entities))
	for i := range entities {
		d, err := toDomainDataSource(&entities[i])
		if err != nil {
			return nil, internalErr(op, "failed to map data source", err)
		}
		out = append(out, d)
	}
	return out, nil
}

// Module provides SQLStore under every repository interface.
var Module = fx.Options(
	fx.Provide(
		fx.Annotate(
			NewSQLStore,
			fx.As(new(repository.Store)),
			fx.As(new(repository.JobRepository)),
			fx.As(new(repository.SchemaRepository)),
			fx.As(new(repository.LineageRepository)),
			fx.As(new(repository.ExceptionRepository)),
			fx.As(new(repository.ApprovalRepository)),
			fx.As(new(repository.DataSourceRepository)),
		),
	),
)
