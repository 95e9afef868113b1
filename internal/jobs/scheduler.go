package jobs

import (
	"context"
	"fmt"
	"log"
	"sync"
)

// RunnerFunc executes one job. Long-running loops are expected to call
// rc.IsCancelled at checkpoints and return promptly when it reports true.
type RunnerFunc func(ctx context.Context, rc *RunContext) error

// RunContext is what a runner sees of its job.
type RunContext struct {
	JobID    string
	ParentID string
	Meta     map[string]any

	sched *Scheduler
}

// IsCancelled reports whether this job (or its parent pipeline) has
// been asked to stop.
func (rc *RunContext) IsCancelled() bool {
	if rc.sched.isCancelled(rc.JobID) {
		return true
	}
	return rc.ParentID != "" && rc.sched.isCancelled(rc.ParentID)
}

// Progress records processed/total counts on the job row. Failures are
// logged, not returned: progress bookkeeping must never abort a job.
func (rc *RunContext) Progress(ctx context.Context, processed, total int) {
	if err := rc.sched.store.UpdateProgress(ctx, rc.JobID, processed, total); err != nil {
		log.Printf("jobs: progress update for %s: %v", rc.JobID, err)
	}
}

// RunSub runs another job type synchronously as a child of this job.
// Used by the pipeline runner to chain stages. The child inherits the
// parent's metadata, so a source-scoped pipeline scopes its stages too.
func (rc *RunContext) RunSub(ctx context.Context, jobType Type) (*Job, error) {
	return rc.sched.runSync(ctx, jobType, "pipeline", rc.JobID, rc.Meta)
}

// Scheduler runs registered jobs in the background, guaranteeing at
// most one running job per type. State is instance-scoped: two
// schedulers never share reservations.
type Scheduler struct {
	store *Store

	mu           sync.Mutex
	runningTypes map[Type]string
	cancelled    map[string]bool
	runners      map[Type]RunnerFunc
	wg           sync.WaitGroup
}

// NewScheduler creates a scheduler over the given job store.
func NewScheduler(store *Store) *Scheduler {
	return &Scheduler{
		store:        store,
		runningTypes: make(map[Type]string),
		cancelled:    make(map[string]bool),
		runners:      make(map[Type]RunnerFunc),
	}
}

// Register binds a runner to a job type.
func (s *Scheduler) Register(jobType Type, runner RunnerFunc) {
	s.mu.Lock()
	s.runners[jobType] = runner
	s.mu.Unlock()
}

// Enqueue creates a job row and starts it in the background. If a job
// of the same type is already running, the new row is marked skipped
// and returned without starting anything.
//
// The type is reserved before the goroutine is spawned, so two
// concurrent Enqueue calls can never both start.
func (s *Scheduler) Enqueue(ctx context.Context, jobType Type, createdBy string, metadata map[string]any) (*Job, error) {
	job, runner, err := s.prepare(ctx, jobType, createdBy, "", metadata)
	if err != nil || job.Status == StatusSkipped {
		return job, err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		// Detached from the request context: the job outlives the
		// HTTP call that enqueued it.
		s.run(context.Background(), job, runner)
	}()
	return job, nil
}

// runSync creates and runs a job inline, blocking until it finishes.
func (s *Scheduler) runSync(ctx context.Context, jobType Type, createdBy, parentID string, metadata map[string]any) (*Job, error) {
	job, runner, err := s.prepare(ctx, jobType, createdBy, parentID, metadata)
	if err != nil || job.Status == StatusSkipped {
		return job, err
	}

	s.run(ctx, job, runner)
	return s.store.Get(ctx, job.ID)
}

func (s *Scheduler) prepare(ctx context.Context, jobType Type, createdBy, parentID string, metadata map[string]any) (*Job, RunnerFunc, error) {
	s.mu.Lock()
	runner, ok := s.runners[jobType]
	s.mu.Unlock()
	if !ok {
		return nil, nil, fmt.Errorf("no runner registered for job type %s", jobType)
	}

	job, err := s.store.Create(ctx, jobType, createdBy, parentID, metadata)
	if err != nil {
		return nil, nil, err
	}

	s.mu.Lock()
	if runningID, busy := s.runningTypes[jobType]; busy {
		s.mu.Unlock()
		reason := fmt.Sprintf("job %s of type %s is already running", runningID, jobType)
		if err := s.store.MarkSkipped(ctx, job.ID, reason); err != nil {
			return nil, nil, err
		}
		job.Status = StatusSkipped
		job.ErrorMessage = reason
		return job, nil, nil
	}
	s.runningTypes[jobType] = job.ID
	s.mu.Unlock()

	return job, runner, nil
}

func (s *Scheduler) run(ctx context.Context, job *Job, runner RunnerFunc) {
	if err := s.store.MarkRunning(ctx, job.ID); err != nil {
		log.Printf("jobs: marking %s running: %v", job.ID, err)
	}

	rc := &RunContext{JobID: job.ID, ParentID: job.ParentJobID, Meta: job.Metadata, sched: s}
	runErr := runner(ctx, rc)

	s.mu.Lock()
	delete(s.runningTypes, job.Type)
	// A cancelled parent pipeline cancels its children too.
	wasCancelled := s.cancelled[job.ID] || (job.ParentJobID != "" && s.cancelled[job.ParentJobID])
	delete(s.cancelled, job.ID)
	s.mu.Unlock()

	switch {
	case wasCancelled:
		if err := s.store.MarkCancelled(ctx, job.ID); err != nil {
			log.Printf("jobs: marking %s cancelled: %v", job.ID, err)
		}
		log.Printf("jobs: %s job %s cancelled", job.Type, job.ID)
	case runErr != nil:
		if err := s.store.MarkFailed(ctx, job.ID, runErr.Error()); err != nil {
			log.Printf("jobs: marking %s failed: %v", job.ID, err)
		}
		log.Printf("jobs: %s job %s failed: %v", job.Type, job.ID, runErr)
	default:
		if err := s.store.MarkCompleted(ctx, job.ID); err != nil {
			log.Printf("jobs: marking %s completed: %v", job.ID, err)
		}
	}
}

// Cancel requests cooperative cancellation of a job. Running jobs stop
// at their next checkpoint; pending rows that never started are marked
// cancelled immediately.
func (s *Scheduler) Cancel(ctx context.Context, id string) error {
	job, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if job == nil {
		return fmt.Errorf("job %s not found", id)
	}
	if job.Status.Terminal() {
		return fmt.Errorf("job %s already %s", id, job.Status)
	}

	s.mu.Lock()
	tracked := s.runningTypes[job.Type] == id
	if tracked {
		s.cancelled[id] = true
	}
	s.mu.Unlock()

	if !tracked {
		// Pending row from a previous process, or not yet started.
		return s.store.MarkCancelled(ctx, id)
	}
	return nil
}

func (s *Scheduler) isCancelled(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled[id]
}

// Running returns the job IDs currently running, keyed by type.
func (s *Scheduler) Running() map[Type]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	running := make(map[Type]string, len(s.runningTypes))
	for t, id := range s.runningTypes {
		running[t] = id
	}
	return running
}

// Wait blocks until all background jobs have finished. Used in tests
// and during shutdown.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}
