package engine

import (
	"sync"
	"time"
)

// Store is the shared work store: five buffers (tasks, profiles,
// scheduled requests, ready requests, responses), two result sinks
// (entities, extraction errors), and two in-flight operation registries.
//
// Each buffer is guarded by its own mutex so that a background fetch
// batch appending responses never contends with, say, request minting.
// Buffer-to-buffer transitions hold both locks (scheduled before ready)
// so an item is never observable in two buffers, and never in neither.
// No lock is ever held across I/O.
type Store[E any] struct {
	tasksMu sync.Mutex
	tasks   []*Task

	profilesMu sync.Mutex
	profiles   []*Profile

	scheduledMu sync.Mutex
	scheduled   []*Request

	readyMu sync.Mutex
	ready   []*Request

	responsesMu sync.Mutex
	responses   []*Response

	entitiesMu sync.Mutex
	entities   []E

	errorsMu sync.Mutex
	errors   []string

	fetchOpsMu sync.Mutex
	fetchOps   []*Operation

	profileOpsMu sync.Mutex
	profileOps   []*Operation
}

// NewStore creates an empty work store.
func NewStore[E any]() *Store[E] {
	return &Store[E]{}
}

// PushTasks appends tasks to the task buffer.
func (s *Store[E]) PushTasks(ts []*Task) {
	if len(ts) == 0 {
		return
	}
	s.tasksMu.Lock()
	s.tasks = append(s.tasks, ts...)
	s.tasksMu.Unlock()
}

// PopTask removes the oldest task, if any.
func (s *Store[E]) PopTask() (*Task, bool) {
	s.tasksMu.Lock()
	defer s.tasksMu.Unlock()
	if len(s.tasks) == 0 {
		return nil, false
	}
	t := s.tasks[0]
	s.tasks = s.tasks[1:]
	return t, true
}

// ReturnTask puts a task back at the head of the buffer, used when a
// popped task cannot obtain a profile this round.
func (s *Store[E]) ReturnTask(t *Task) {
	s.tasksMu.Lock()
	s.tasks = append([]*Task{t}, s.tasks...)
	s.tasksMu.Unlock()
}

// TaskLen returns the task buffer depth.
func (s *Store[E]) TaskLen() int {
	s.tasksMu.Lock()
	defer s.tasksMu.Unlock()
	return len(s.tasks)
}

// AppendProfiles adds acquired profiles to the pool. It is called by
// background acquisition batches as well as the control loop.
func (s *Store[E]) AppendProfiles(ps []*Profile) {
	if len(ps) == 0 {
		return
	}
	s.profilesMu.Lock()
	s.profiles = append(s.profiles, ps...)
	s.profilesMu.Unlock()
}

// TakeProfile moves one profile out of the pool.
func (s *Store[E]) TakeProfile() (*Profile, bool) {
	s.profilesMu.Lock()
	defer s.profilesMu.Unlock()
	if len(s.profiles) == 0 {
		return nil, false
	}
	p := s.profiles[0]
	s.profiles = s.profiles[1:]
	return p, true
}

// ProfileLen returns the profile pool size.
func (s *Store[E]) ProfileLen() int {
	s.profilesMu.Lock()
	defer s.profilesMu.Unlock()
	return len(s.profiles)
}

// PushScheduled appends requests to the scheduled buffer.
func (s *Store[E]) PushScheduled(rs ...*Request) {
	if len(rs) == 0 {
		return
	}
	s.scheduledMu.Lock()
	s.scheduled = append(s.scheduled, rs...)
	s.scheduledMu.Unlock()
}

// ScheduledLen returns the scheduled buffer depth.
func (s *Store[E]) ScheduledLen() int {
	s.scheduledMu.Lock()
	defer s.scheduledMu.Unlock()
	return len(s.scheduled)
}

// PromoteReady moves requests whose not-before time has elapsed from the
// scheduled buffer into the ready buffer, stopping once the ready buffer
// reaches high or the scheduled buffer is exhausted. Requests that are
// not yet eligible stay scheduled. Returns the number moved.
func (s *Store[E]) PromoteReady(now time.Time, high int) int {
	s.scheduledMu.Lock()
	defer s.scheduledMu.Unlock()
	s.readyMu.Lock()
	defer s.readyMu.Unlock()

	moved := 0
	kept := s.scheduled[:0]
	for i, r := range s.scheduled {
		if len(s.ready) >= high {
			kept = append(kept, s.scheduled[i:]...)
			break
		}
		if r.NotBefore.After(now) {
			kept = append(kept, r)
			continue
		}
		s.ready = append(s.ready, r)
		moved++
	}
	s.scheduled = kept
	return moved
}

// TakeReady removes up to n requests from the ready buffer.
func (s *Store[E]) TakeReady(n int) []*Request {
	s.readyMu.Lock()
	defer s.readyMu.Unlock()
	if n > len(s.ready) {
		n = len(s.ready)
	}
	if n <= 0 {
		return nil
	}
	batch := make([]*Request, n)
	copy(batch, s.ready[:n])
	s.ready = s.ready[n:]
	return batch
}

// ReadyLen returns the ready buffer depth.
func (s *Store[E]) ReadyLen() int {
	s.readyMu.Lock()
	defer s.readyMu.Unlock()
	return len(s.ready)
}

// AppendResponses adds completed fetch results. It is called by
// background fetch batches as they complete.
func (s *Store[E]) AppendResponses(rs []*Response) {
	if len(rs) == 0 {
		return
	}
	s.responsesMu.Lock()
	s.responses = append(s.responses, rs...)
	s.responsesMu.Unlock()
}

// TakeResponses removes up to n buffered responses; n <= 0 takes all.
func (s *Store[E]) TakeResponses(n int) []*Response {
	s.responsesMu.Lock()
	defer s.responsesMu.Unlock()
	if n <= 0 || n > len(s.responses) {
		n = len(s.responses)
	}
	if n == 0 {
		return nil
	}
	batch := make([]*Response, n)
	copy(batch, s.responses[:n])
	s.responses = s.responses[n:]
	return batch
}

// ResponseLen returns the response buffer depth.
func (s *Store[E]) ResponseLen() int {
	s.responsesMu.Lock()
	defer s.responsesMu.Unlock()
	return len(s.responses)
}

// AppendEntities adds extracted records to the entity sink.
func (s *Store[E]) AppendEntities(es []E) {
	if len(es) == 0 {
		return
	}
	s.entitiesMu.Lock()
	s.entities = append(s.entities, es...)
	s.entitiesMu.Unlock()
}

// TakeEntities empties the entity sink.
func (s *Store[E]) TakeEntities() []E {
	s.entitiesMu.Lock()
	defer s.entitiesMu.Unlock()
	es := s.entities
	s.entities = nil
	return es
}

// EntityLen returns the entity sink depth.
func (s *Store[E]) EntityLen() int {
	s.entitiesMu.Lock()
	defer s.entitiesMu.Unlock()
	return len(s.entities)
}

// AppendErrors adds extraction error messages to the error sink.
func (s *Store[E]) AppendErrors(msgs []string) {
	if len(msgs) == 0 {
		return
	}
	s.errorsMu.Lock()
	s.errors = append(s.errors, msgs...)
	s.errorsMu.Unlock()
}

// TakeErrors empties the error sink.
func (s *Store[E]) TakeErrors() []string {
	s.errorsMu.Lock()
	defer s.errorsMu.Unlock()
	msgs := s.errors
	s.errors = nil
	return msgs
}

// ErrorLen returns the error sink depth.
func (s *Store[E]) ErrorLen() int {
	s.errorsMu.Lock()
	defer s.errorsMu.Unlock()
	return len(s.errors)
}

// RegisterFetch records an in-flight fetch batch.
func (s *Store[E]) RegisterFetch(op *Operation) {
	s.fetchOpsMu.Lock()
	s.fetchOps = append(s.fetchOps, op)
	s.fetchOpsMu.Unlock()
}

// RegisterProfile records an in-flight profile-acquisition batch.
func (s *Store[E]) RegisterProfile(op *Operation) {
	s.profileOpsMu.Lock()
	s.profileOps = append(s.profileOps, op)
	s.profileOpsMu.Unlock()
}

// PopProfileOp removes the most recently registered acquisition handle.
func (s *Store[E]) PopProfileOp() (*Operation, bool) {
	s.profileOpsMu.Lock()
	defer s.profileOpsMu.Unlock()
	if len(s.profileOps) == 0 {
		return nil, false
	}
	op := s.profileOps[len(s.profileOps)-1]
	s.profileOps = s.profileOps[:len(s.profileOps)-1]
	return op, true
}

// DrainFetchOps removes and returns every registered fetch handle.
func (s *Store[E]) DrainFetchOps() []*Operation {
	s.fetchOpsMu.Lock()
	defer s.fetchOpsMu.Unlock()
	ops := s.fetchOps
	s.fetchOps = nil
	return ops
}

// FetchOpLen returns the number of registered fetch handles.
func (s *Store[E]) FetchOpLen() int {
	s.fetchOpsMu.Lock()
	defer s.fetchOpsMu.Unlock()
	return len(s.fetchOps)
}

// ProfileOpLen returns the number of registered acquisition handles.
func (s *Store[E]) ProfileOpLen() int {
	s.profileOpsMu.Lock()
	defer s.profileOpsMu.Unlock()
	return len(s.profileOps)
}

// Reap drops every registered operation that has already completed,
// without blocking on the ones that have not. A completed operation
// that finished with an error surfaces that error.
func (s *Store[E]) Reap() error {
	if err := reapOps(&s.fetchOpsMu, &s.fetchOps); err != nil {
		return err
	}
	return reapOps(&s.profileOpsMu, &s.profileOps)
}

func reapOps(mu *sync.Mutex, ops *[]*Operation) error {
	mu.Lock()
	defer mu.Unlock()
	kept := (*ops)[:0]
	var firstErr error
	for _, op := range *ops {
		done, err := op.TryJoin()
		if !done {
			kept = append(kept, op)
			continue
		}
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	*ops = kept
	return firstErr
}

// Empty reports whether all five buffers and both sinks are empty. This
// is the normal-path termination condition, checked each tick.
func (s *Store[E]) Empty() bool {
	return s.TaskLen() == 0 &&
		s.ProfileLen() == 0 &&
		s.ScheduledLen() == 0 &&
		s.ReadyLen() == 0 &&
		s.ResponseLen() == 0 &&
		s.EntityLen() == 0 &&
		s.ErrorLen() == 0
}
