// Package lineage records the append-only event timeline of every job and derives traces,
// reports and downstream dependencies from it.
package lineage

import (
	"context"
	"time"

	"go.uber.org/fx"

	model "github.com/tigerroll/surfin-etl/pkg/etl/core/domain/model"
	"github.com/tigerroll/surfin-etl/pkg/etl/core/domain/repository"
	"github.com/tigerroll/surfin-etl/pkg/etl/core/ports"
	"github.com/tigerroll/surfin-etl/pkg/etl/support/util/exception"
	"github.com/tigerroll/surfin-etl/pkg/etl/support/util/logger"
)

// ConnectionDataFlow is the only dependency kind lineage can infer.
const ConnectionDataFlow = "data_flow"

// FlowStep is one entry of a trace's data flow.
type FlowStep struct {
	Step        int             `json:"step"`
	EventType   model.EventType `json:"event_type"`
	Timestamp   time.Time       `json:"timestamp"`
	Description string          `json:"description"`
}

// Transformation is a trace entry for an event carrying transformation details.
type Transformation struct {
	Timestamp    time.Time           `json:"timestamp"`
	Details      model.Metadata      `json:"details"`
	InputSchema  *model.TableProfile `json:"input_schema,omitempty"`
	OutputSchema *model.TableProfile `json:"output_schema,omitempty"`
}

// Trace is the chronological timeline of a job rebuilt from its stored events.
type Trace struct {
	JobID           string                `json:"job_id"`
	Events          []*model.LineageEvent `json:"events"`
	DataFlow        []FlowStep            `json:"data_flow"`
	Transformations []Transformation      `json:"transformations"`
	TotalEvents     int                   `json:"total_events"`
}

// Dependency links a job's output destination to a job that consumed it.
type Dependency struct {
	DownstreamJobID string    `json:"downstream_job_id"`
	ConnectionType  string    `json:"connection_type"`
	Destination     string    `json:"destination"`
	Timestamp       time.Time `json:"timestamp"`
}

// ReportSummary counts the main parts of a Report.
type ReportSummary struct {
	TotalEvents            int `json:"total_events"`
	TransformationsCount   int `json:"transformations_count"`
	DownstreamDependencies int `json:"downstream_dependencies"`
}

// Report bundles a trace with its downstream dependencies.
type Report struct {
	JobID        string        `json:"job_id"`
	GeneratedAt  time.Time     `json:"generated_at"`
	Summary      ReportSummary `json:"summary"`
	Trace        *Trace        `json:"lineage_trace"`
	Dependencies []Dependency  `json:"downstream_dependencies"`
}

// Tracker is the lineage service.
type Tracker struct {
	events repository.LineageRepository
}

// TrackerParams are the dependencies of NewTracker.
type TrackerParams struct {
	fx.In
	Events repository.LineageRepository
}

// NewTracker creates a Tracker.
func NewTracker(p TrackerParams) *Tracker {
	return &Tracker{events: p.Events}
}

func timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func (t *Tracker) append(ctx context.Context, ev *model.LineageEvent) (*model.LineageEvent, error) {
	if err := t.events.AppendEvent(ctx, ev); err != nil {
		return nil, exception.NewEtlErrorf("lineage", exception.KindInternal, "failed to record %s event for job %s", ev.EventType, ev.JobID, err)
	}
	logger.Debugf("Lineage: %s recorded for job '%s'.", ev.EventType, ev.JobID)
	return ev, nil
}

// RecordEvent appends a plain event.
func (t *Tracker) RecordEvent(ctx context.Context, jobID string, eventType model.EventType, metadata model.Metadata) (*model.LineageEvent, error) {
	return t.append(ctx, model.NewLineageEvent(jobID, eventType, metadata))
}

// RecordIngestion appends the ingestion event of a new job, linked to its data source.
func (t *Tracker) RecordIngestion(ctx context.Context, jobID string, sourceID *string, metadata model.Metadata) (*model.LineageEvent, error) {
	ev := model.NewLineageEvent(jobID, model.EventIngestion, metadata)
	ev.SourceID = sourceID
	return t.append(ctx, ev)
}

// RecordTransformation appends a transformation event with both schema snapshots and their diff.
func (t *Tracker) RecordTransformation(ctx context.Context, jobID string, rules []model.RuleType, input, output *model.TableProfile) (*model.LineageEvent, error) {
	names := make([]interface{}, len(rules))
	for i, r := range rules {
		names[i] = string(r)
	}
	ev := model.NewLineageEvent(jobID, model.EventTransformation, model.Metadata{
		"transformation_rules":     names,
		"transformation_timestamp": timestamp(time.Now()),
		"rules_count":              len(rules),
	})
	ev.InputSchema = input
	ev.OutputSchema = output
	ev.TransformationDetails = model.Metadata{
		"rules_applied":  len(rules),
		"schema_changes": model.CompareProfiles(input, output).ToMetadata(),
	}
	return t.append(ctx, ev)
}

// RecordOutput appends an output event. destination is what DownstreamDependencies matches on.
func (t *Tracker) RecordOutput(ctx context.Context, jobID, destination string, metadata model.Metadata) (*model.LineageEvent, error) {
	md := metadata.Clone()
	if md == nil {
		md = model.Metadata{}
	}
	md["destination"] = destination
	md["output_timestamp"] = timestamp(time.Now())
	return t.append(ctx, model.NewLineageEvent(jobID, model.EventOutput, md))
}

// Trace rebuilds the job's timeline. A job without events yields an empty trace.
func (t *Tracker) Trace(ctx context.Context, jobID string) (*Trace, error) {
	events, err := t.events.FindEventsByJob(ctx, jobID)
	if err != nil {
		return nil, exception.NewEtlError("lineage", exception.KindInternal, "failed to load lineage events", err)
	}
	tr := &Trace{
		JobID:           jobID,
		Events:          events,
		DataFlow:        make([]FlowStep, 0, len(events)),
		Transformations: []Transformation{},
		TotalEvents:     len(events),
	}
	for i, ev := range events {
		tr.DataFlow = append(tr.DataFlow, FlowStep{
			Step:        i + 1,
			EventType:   ev.EventType,
			Timestamp:   ev.Timestamp,
			Description: ev.Describe(),
		})
		if len(ev.TransformationDetails) > 0 {
			tr.Transformations = append(tr.Transformations, Transformation{
				Timestamp:    ev.Timestamp,
				Details:      ev.TransformationDetails,
				InputSchema:  ev.InputSchema,
				OutputSchema: ev.OutputSchema,
			})
		}
	}
	return tr, nil
}

// DownstreamDependencies finds jobs whose events name one of this job's output destinations as
// their "source". Matching is by string equality on metadata, so two unrelated jobs writing to
// the same destination name are indistinguishable.
func (t *Tracker) DownstreamDependencies(ctx context.Context, jobID string) ([]Dependency, error) {
	events, err := t.events.FindEventsByJob(ctx, jobID)
	if err != nil {
		return nil, exception.NewEtlError("lineage", exception.KindInternal, "failed to load lineage events", err)
	}
	destinations := map[string]bool{}
	var ordered []string
	for _, ev := range events {
		if ev.EventType != model.EventOutput {
			continue
		}
		if dest, ok := ev.Metadata.GetString("destination"); ok && dest != "" && !destinations[dest] {
			destinations[dest] = true
			ordered = append(ordered, dest)
		}
	}
	deps := []Dependency{}
	if len(ordered) == 0 {
		return deps, nil
	}

	bySource := map[string][]*model.LineageEvent{}
	for _, et := range model.EventTypes() {
		candidates, err := t.events.FindEventsByType(ctx, et)
		if err != nil {
			return nil, exception.NewEtlError("lineage", exception.KindInternal, "failed to scan lineage events", err)
		}
		for _, ev := range candidates {
			if ev.JobID == jobID {
				continue
			}
			if src, ok := ev.Metadata.GetString("source"); ok && destinations[src] {
				bySource[src] = append(bySource[src], ev)
			}
		}
	}
	for _, dest := range ordered {
		for _, ev := range bySource[dest] {
			deps = append(deps, Dependency{
				DownstreamJobID: ev.JobID,
				ConnectionType:  ConnectionDataFlow,
				Destination:     dest,
				Timestamp:       ev.Timestamp,
			})
		}
	}
	return deps, nil
}

// Report combines Trace and DownstreamDependencies.
func (t *Tracker) Report(ctx context.Context, jobID string) (*Report, error) {
	tr, err := t.Trace(ctx, jobID)
	if err != nil {
		return nil, err
	}
	deps, err := t.DownstreamDependencies(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return &Report{
		JobID:       jobID,
		GeneratedAt: time.Now(),
		Summary: ReportSummary{
			TotalEvents:            tr.TotalEvents,
			TransformationsCount:   len(tr.Transformations),
			DownstreamDependencies: len(deps),
		},
		Trace:        tr,
		Dependencies: deps,
	}, nil
}

// BySource returns the events of a data source, newest first.
func (t *Tracker) BySource(ctx context.Context, sourceID string) ([]*model.LineageEvent, error) {
	events, err := t.events.FindEventsBySource(ctx, sourceID)
	if err != nil {
		return nil, exception.NewEtlError("lineage", exception.KindInternal, "failed to load lineage events", err)
	}
	return events, nil
}

var _ ports.LineageRecorder = (*Tracker)(nil)
