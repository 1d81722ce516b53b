package pipeline

import (
	"sync"
	"time"
)

// StepStatus represents the lifecycle of one pipeline step.
type StepStatus string

const (
	StepQueued    StepStatus = "queued"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepSkipped   StepStatus = "skipped"
	StepFailed    StepStatus = "failed"
)

// Step keeps track of a step while the pipeline runs.
type Step struct {
	Name      string
	Status    StepStatus
	Error     string
	StartedAt time.Time
	UpdatedAt time.Time
}

// Duration is the time spent between start and the last update.
func (s Step) Duration() time.Duration {
	if s.StartedAt.IsZero() {
		return 0
	}
	return s.UpdatedAt.Sub(s.StartedAt)
}

// Tracker stores step states in the order they were registered. It is safe
// for concurrent use so a progress reporter can read it while steps run.
type Tracker struct {
	mu    sync.RWMutex
	steps map[string]*Step
	order []string
	now   func() time.Time
}

func NewTracker() *Tracker {
	return &Tracker{
		steps: make(map[string]*Step),
		now:   time.Now,
	}
}

// Queue registers the named steps. Known steps are left alone.
func (t *Tracker) Queue(names ...string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, name := range names {
		if _, ok := t.steps[name]; ok {
			continue
		}
		t.steps[name] = &Step{Name: name, Status: StepQueued, UpdatedAt: t.now()}
		t.order = append(t.order, name)
	}
}

func (t *Tracker) SetRunning(name string) {
	t.Queue(name)
	t.update(name, func(s *Step, now time.Time) {
		s.Status = StepRunning
		s.StartedAt = now
	})
}

func (t *Tracker) Complete(name string) {
	t.update(name, func(s *Step, _ time.Time) {
		s.Status = StepCompleted
	})
}

func (t *Tracker) Skip(name string) {
	t.Queue(name)
	t.update(name, func(s *Step, _ time.Time) {
		s.Status = StepSkipped
	})
}

// Fail records a failure with its message.
func (t *Tracker) Fail(name string, err error) {
	t.update(name, func(s *Step, _ time.Time) {
		s.Status = StepFailed
		s.Error = err.Error()
	})
}

// Get fetches a copy of a step by name.
func (t *Tracker) Get(name string) (Step, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.steps[name]
	if !ok {
		return Step{}, false
	}
	return *s, true
}

// Steps returns copies of all steps in registration order.
func (t *Tracker) Steps() []Step {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Step, 0, len(t.order))
	for _, name := range t.order {
		out = append(out, *t.steps[name])
	}
	return out
}

func (t *Tracker) update(name string, update func(s *Step, now time.Time)) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.steps[name]
	if !ok {
		return
	}

	now := t.now()
	update(s, now)
	s.UpdatedAt = now
}
