package tasks

import (
	"fmt"
	"sort"

	"go.uber.org/zap"
)

type entry struct {
	priority int
	seq      int
	task     Task
	running  bool
}

// outranks reports whether e takes precedence over o: lower priority number
// first, then earlier registration.
func (e *entry) outranks(o *entry) bool {
	if e.priority != o.priority {
		return e.priority < o.priority
	}
	return e.seq < o.seq
}

// Scheduler runs prioritized, mutually exclusive tasks. It is driven from the
// simulation goroutine only and holds no locks.
type Scheduler struct {
	name     string
	log      *zap.Logger
	entries  []*entry
	nextSeq  int
	disabled FlagSet
	owners   [numFlags]*entry
}

func NewScheduler(name string, log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{name: name, log: log}
}

// Add registers task at priority. Lower numbers win.
func (s *Scheduler) Add(priority int, task Task) {
	if task == nil {
		return
	}
	e := &entry{priority: priority, seq: s.nextSeq, task: task}
	s.nextSeq++
	s.entries = append(s.entries, e)
	sort.SliceStable(s.entries, func(i, j int) bool { return s.entries[i].outranks(s.entries[j]) })
}

// Remove stops task if it is running and unregisters it.
func (s *Scheduler) Remove(task Task) {
	for i, e := range s.entries {
		if e.task != task {
			continue
		}
		if e.running {
			s.stop(e, "removed")
		}
		s.entries = append(s.entries[:i], s.entries[i+1:]...)
		return
	}
}

// SetControlFlag enables or disables a flag. Running tasks that claim a
// disabled flag are stopped on the next Update.
func (s *Scheduler) SetControlFlag(f Flag, enabled bool) {
	if enabled {
		s.disabled = s.disabled.Without(f)
	} else {
		s.disabled = s.disabled.With(f)
	}
}

func (s *Scheduler) ControlFlagEnabled(f Flag) bool { return !s.disabled.Has(f) }

// Update advances the scheduler by one tick: stop tasks that no longer hold,
// start eligible tasks in rank order, then tick everything running.
func (s *Scheduler) Update() {
	for _, e := range s.entries {
		if !e.running {
			continue
		}
		if e.task.Flags().Overlaps(s.disabled) {
			s.stop(e, "flag disabled")
			continue
		}
		if !e.task.ShouldContinue() {
			s.stop(e, "finished")
		}
	}

	for _, e := range s.entries {
		if e.running {
			continue
		}
		if e.task.Flags().Overlaps(s.disabled) {
			continue
		}
		if !s.compatible(e) {
			continue
		}
		if !e.task.ShouldStart() {
			continue
		}
		s.preempt(e)
		s.start(e)
	}

	for _, e := range s.entries {
		if e.running {
			e.task.Tick()
		}
	}
}

// compatible reports whether e may start against the current owners: every
// overlapping owner must be outranked by e and interruptible.
func (s *Scheduler) compatible(e *entry) bool {
	for _, f := range e.task.Flags().List() {
		o := s.owners[f]
		if o == nil || o == e {
			continue
		}
		if o.outranks(e) {
			return false
		}
		if it, ok := o.task.(Interruptible); ok && !it.Interruptible() {
			return false
		}
	}
	return true
}

func (s *Scheduler) preempt(e *entry) {
	for _, f := range e.task.Flags().List() {
		if o := s.owners[f]; o != nil && o != e && o.running {
			s.stop(o, "preempted by "+taskName(e.task))
		}
	}
}

func (s *Scheduler) start(e *entry) {
	e.running = true
	for _, f := range e.task.Flags().List() {
		s.owners[f] = e
	}
	e.task.Start()
	s.log.Debug("task start", zap.String("scheduler", s.name), zap.String("task", taskName(e.task)), zap.Int("priority", e.priority))
}

func (s *Scheduler) stop(e *entry, why string) {
	e.running = false
	for f, o := range s.owners {
		if o == e {
			s.owners[f] = nil
		}
	}
	e.task.Stop()
	s.log.Debug("task stop", zap.String("scheduler", s.name), zap.String("task", taskName(e.task)), zap.String("reason", why))
}

// StopAll stops every running task, e.g. when the agent is removed.
func (s *Scheduler) StopAll() {
	for _, e := range s.entries {
		if e.running {
			s.stop(e, "stop all")
		}
	}
}

func (s *Scheduler) IsRunning(task Task) bool {
	for _, e := range s.entries {
		if e.task == task {
			return e.running
		}
	}
	return false
}

// Running lists running tasks in rank order.
func (s *Scheduler) Running() []Task {
	var out []Task
	for _, e := range s.entries {
		if e.running {
			out = append(out, e.task)
		}
	}
	return out
}

// Owner returns the running task holding f, if any.
func (s *Scheduler) Owner(f Flag) Task {
	if !f.Valid() || s.owners[f] == nil {
		return nil
	}
	return s.owners[f].task
}

func (s *Scheduler) Len() int { return len(s.entries) }

func taskName(t Task) string {
	if n, ok := t.(Named); ok && n.Name() != "" {
		return n.Name()
	}
	return fmt.Sprintf("%T", t)
}

// Pair bundles an agent's goal and target schedulers. Target selection runs
// before goal selection every tick.
type Pair struct {
	Goals   *Scheduler
	Targets *Scheduler
}

func NewPair(log *zap.Logger) Pair {
	return Pair{
		Goals:   NewScheduler("goals", log),
		Targets: NewScheduler("targets", log),
	}
}

func (p Pair) AddTask(priority int, t Task)       { p.Goals.Add(priority, t) }
func (p Pair) AddTargetTask(priority int, t Task) { p.Targets.Add(priority, t) }

func (p Pair) Update() {
	p.Targets.Update()
	p.Goals.Update()
}
