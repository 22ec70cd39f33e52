// Package scheduler provides a named-task registry for deferring and
// debouncing work inside a cooperative tick loop. Tasks are keyed by name;
// adding a task under an existing name either replaces it or, when debounce
// is requested, leaves the running timer alone so repeated triggers from a
// noisy input do not keep pushing the deadline out.
package scheduler

import (
	"sort"
	"time"
)

type task struct {
	fireAt   time.Time
	interval time.Duration
	periodic bool
	debounce bool
	cleared  bool
	fn       func()
}

// Scheduler holds at most one task per name. It is not safe for concurrent
// use; all calls are expected to come from the owning tick loop.
type Scheduler struct {
	now   func() time.Time
	tasks map[string]*task
}

// New creates a scheduler using the given time source. Pass time.Now for
// production use; tests supply their own.
func New(now func() time.Time) *Scheduler {
	return &Scheduler{
		now:   now,
		tasks: make(map[string]*task),
	}
}

// Add registers a one-shot task that becomes ready after delay. If debounce
// is true and a task of that name already exists the call does nothing,
// preserving the original deadline. With debounce false the task is replaced
// and the deadline reset. fn may be nil, in which case the task acts purely
// as a latch queried through Check.
func (s *Scheduler) Add(name string, debounce bool, delay time.Duration, fn func()) {
	if debounce {
		if _, exists := s.tasks[name]; exists {
			return
		}
	}
	s.tasks[name] = &task{
		fireAt:   s.now().Add(delay),
		debounce: debounce,
		fn:       fn,
	}
}

// AddPeriodic registers a task that fires every interval, starting one
// interval from now. Debounce semantics match Add.
func (s *Scheduler) AddPeriodic(name string, debounce bool, interval time.Duration, fn func()) {
	if debounce {
		if _, exists := s.tasks[name]; exists {
			return
		}
	}
	s.tasks[name] = &task{
		fireAt:   s.now().Add(interval),
		interval: interval,
		periodic: true,
		debounce: debounce,
		fn:       fn,
	}
}

// Check reports the debounce outcome for name. It returns nil when no such
// task exists, true when the deadline has passed without the task being
// cleared, and false otherwise.
func (s *Scheduler) Check(name string) *bool {
	t, exists := s.tasks[name]
	if !exists {
		return nil
	}
	ready := !t.cleared && !s.now().Before(t.fireAt)
	return &ready
}

// Clear marks a task's outcome as resolved-false without removing it, so it
// cannot fire again within the current window. Unknown names are ignored.
func (s *Scheduler) Clear(name string) {
	if t, exists := s.tasks[name]; exists {
		t.cleared = true
	}
}

// Remove deletes the named task. Unknown names are ignored.
func (s *Scheduler) Remove(name string) {
	delete(s.tasks, name)
}

// Reset removes every task.
func (s *Scheduler) Reset() {
	s.tasks = make(map[string]*task)
}

// Len returns the number of registered tasks.
func (s *Scheduler) Len() int {
	return len(s.tasks)
}

// Tick fires every due task in name order. A due periodic task re-arms for
// the next interval and a cleared window is skipped, with the flag opening
// again on re-arm. A due one-shot with a callback is removed after firing;
// callback-less one-shots persist so Check keeps answering for them.
func (s *Scheduler) Tick() {
	now := s.now()

	due := make([]string, 0, len(s.tasks))
	for name, t := range s.tasks {
		if !now.Before(t.fireAt) {
			due = append(due, name)
		}
	}
	sort.Strings(due)

	for _, name := range due {
		t := s.tasks[name]
		if t.fn != nil && !t.cleared {
			t.fn()
		}
		switch {
		case t.periodic:
			t.fireAt = now.Add(t.interval)
			t.cleared = false
		case t.fn != nil:
			delete(s.tasks, name)
		}
	}
}
