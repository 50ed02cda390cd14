package usecase

import (
	"context"
	"sync"

	"go.uber.org/fx"
	"golang.org/x/sync/errgroup"

	port "github.com/tigerroll/surfin-etl/pkg/etl/core/application/port"
	config "github.com/tigerroll/surfin-etl/pkg/etl/core/config"
	model "github.com/tigerroll/surfin-etl/pkg/etl/core/domain/model"
	"github.com/tigerroll/surfin-etl/pkg/etl/core/domain/repository"
	"github.com/tigerroll/surfin-etl/pkg/etl/core/ports"
	"github.com/tigerroll/surfin-etl/pkg/etl/engine/transform"
	"github.com/tigerroll/surfin-etl/pkg/etl/support/util/exception"
	"github.com/tigerroll/surfin-etl/pkg/etl/support/util/logger"
)

// SimpleJobLauncher implements JobLauncher for local execution.
type SimpleJobLauncher struct {
	cfg       *config.Config
	jobs      repository.JobRepository
	engine    *transform.Engine
	listeners []port.JobListener

	wg sync.WaitGroup
	// activeRuns holds the cancel functions of background runs.
	activeRuns map[string]context.CancelFunc
	mu         sync.Mutex
}

// SimpleJobLauncherParams are the dependencies of NewSimpleJobLauncher.
type SimpleJobLauncherParams struct {
	fx.In
	Lifecycle fx.Lifecycle `optional:"true"`
	Config    *config.Config
	Jobs      repository.JobRepository
	Engine    *transform.Engine
	Listeners []port.JobListener `group:"job_listeners"`
}

// NewSimpleJobLauncher creates a SimpleJobLauncher. When a lifecycle is given, stopping the
// application cancels and waits for background runs.
func NewSimpleJobLauncher(p SimpleJobLauncherParams) *SimpleJobLauncher {
	l := &SimpleJobLauncher{
		cfg:        p.Config,
		jobs:       p.Jobs,
		engine:     p.Engine,
		listeners:  p.Listeners,
		activeRuns: make(map[string]context.CancelFunc),
	}
	if p.Lifecycle != nil {
		p.Lifecycle.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				l.cancelAll()
				done := make(chan struct{})
				go func() {
					l.Wait()
					close(done)
				}()
				select {
				case <-done:
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			},
		})
	}
	return l
}

var (
	_ JobLauncher       = (*SimpleJobLauncher)(nil)
	_ ports.JobExecutor = (*SimpleJobLauncher)(nil)
)

// Run executes the stored rule set of a pending job and returns the job in its final state.
// A failed transformation is not an error of Run: the failure is on the returned job.
func (l *SimpleJobLauncher) Run(ctx context.Context, jobID string) (*model.Job, error) {
	job, err := l.jobs.FindJobByID(ctx, jobID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, exception.NewEtlErrorf("launcher", exception.KindNotFound, "job %s not found", jobID, err)
		}
		return nil, exception.NewEtlError("launcher", exception.KindInternal, "failed to load job", err)
	}
	if job.Status != model.JobStatusPending {
		return nil, exception.NewEtlErrorf("launcher", exception.KindInvalidState, "job %s is %s, only pending jobs can run", jobID, job.Status)
	}

	logger.Infof("Launching job '%s' (%s) with %d rule(s).", job.ID, job.Name, len(job.Rules))
	for _, listener := range l.listeners {
		listener.BeforeJob(ctx, job)
	}

	_, runErr := l.engine.Apply(ctx, job, job.Rules)
	if runErr != nil {
		// The in-memory status may never have been stored; listeners get the persisted job.
		if stored, err := l.jobs.FindJobByID(ctx, job.ID); err == nil {
			job = stored
		} else {
			logger.Warnf("Job '%s': could not reload after a failed run: %v", job.ID, err)
		}
	}

	for _, listener := range l.listeners {
		listener.AfterJob(ctx, job)
	}

	if runErr != nil {
		if job.Status != model.JobStatusFailed {
			// The outcome could not be persisted.
			return job, runErr
		}
		logger.Warnf("Job '%s' finished with status %s: %s", job.ID, job.Status, job.ErrorMessage)
		return job, nil
	}
	logger.Infof("Job '%s' finished with status %s.", job.ID, job.Status)
	return job, nil
}

// RunAsync starts Run in the background. The run outlives ctx's cancellation but keeps its values.
func (l *SimpleJobLauncher) RunAsync(ctx context.Context, jobID string) error {
	job, err := l.jobs.FindJobByID(ctx, jobID)
	if err != nil {
		if repository.IsNotFound(err) {
			return exception.NewEtlErrorf("launcher", exception.KindNotFound, "job %s not found", jobID, err)
		}
		return exception.NewEtlError("launcher", exception.KindInternal, "failed to load job", err)
	}
	if job.Status != model.JobStatusPending {
		return exception.NewEtlErrorf("launcher", exception.KindInvalidState, "job %s is %s, only pending jobs can run", jobID, job.Status)
	}

	l.mu.Lock()
	if _, running := l.activeRuns[jobID]; running {
		l.mu.Unlock()
		return exception.NewEtlErrorf("launcher", exception.KindInvalidState, "job %s is already running", jobID)
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	l.activeRuns[jobID] = cancel
	l.mu.Unlock()

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		defer l.unregister(jobID)
		if _, err := l.Run(runCtx, jobID); err != nil {
			logger.Errorf("Background run of job '%s' failed: %v", jobID, err)
		}
	}()
	return nil
}

func (l *SimpleJobLauncher) unregister(jobID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if cancel, ok := l.activeRuns[jobID]; ok {
		cancel()
		delete(l.activeRuns, jobID)
	}
}

func (l *SimpleJobLauncher) cancelAll() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for jobID, cancel := range l.activeRuns {
		logger.Debugf("Cancelling background run of job '%s'.", jobID)
		cancel()
	}
}

// RunPending runs every pending job, at most Runner.Concurrency at a time, and returns them
// in their final states. Jobs that could not be run are logged and left out.
func (l *SimpleJobLauncher) RunPending(ctx context.Context) ([]*model.Job, error) {
	pending, err := l.jobs.FindJobsByStatus(ctx, model.JobStatusPending)
	if err != nil {
		return nil, exception.NewEtlError("launcher", exception.KindInternal, "failed to load pending jobs", err)
	}

	results := make([]*model.Job, len(pending))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.cfg.ETL.Runner.Concurrency)
	for i, job := range pending {
		i, jobID := i, job.ID
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			done, err := l.Run(gctx, jobID)
			if err != nil {
				logger.Warnf("Skipping job '%s': %v", jobID, err)
				return nil
			}
			results[i] = done
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	finished := make([]*model.Job, 0, len(results))
	for _, job := range results {
		if job != nil {
			finished = append(finished, job)
		}
	}
	logger.Infof("Ran %d of %d pending job(s).", len(finished), len(pending))
	return finished, nil
}

// Wait blocks until every background run has returned.
func (l *SimpleJobLauncher) Wait() {
	l.wg.Wait()
}
