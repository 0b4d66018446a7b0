// pattern: Imperative Shell

package output

import (
	"fmt"
	"sync"
)

// State is the request state of a surface's latest run.
type State int

const (
	StateIdle State = iota
	StateInFlight
	StateComplete
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateInFlight:
		return "in_flight"
	case StateComplete:
		return "complete"
	case StateErrored:
		return "errored"
	default:
		return "idle"
	}
}

// Snapshot is a consistent copy of a surface.
type Snapshot struct {
	Name  string   `json:"name"`
	State string   `json:"state"`
	Runs  int      `json:"runs"`
	Seq   uint64   `json:"seq"`
	Run   int      `json:"run,omitempty"` // set when the snapshot covers one run
	Lines []string `json:"lines"`
}

// Surface is an append-only, line-oriented display buffer for one
// validation target. It is reused across runs.
type Surface struct {
	name     string
	onChange func(*Surface)

	mu       sync.Mutex
	lines    []string
	lineRun  []int   // run that wrote each line; 0 for separators
	runState []State // outcome of run i+1
	state    State
	runs     int
	seq      uint64
	err      error
	subs     map[chan struct{}]struct{}
	closed   bool
}

func NewSurface(name string) *Surface {
	return &Surface{name: name, subs: make(map[chan struct{}]struct{})}
}

func (s *Surface) Name() string {
	return s.name
}

// Begin starts a new run. A surface that already ran gets a separator
// line so earlier output stays readable.
func (s *Surface) Begin() {
	s.BeginRun()
}

// BeginRun is Begin returning the number of the run it started, from 1.
func (s *Surface) BeginRun() int {
	s.mu.Lock()
	s.runs++
	run := s.runs
	if run > 1 {
		s.appendLocked(0, fmt.Sprintf("--- run %d ---", run))
	}
	s.runState = append(s.runState, StateInFlight)
	s.state = StateInFlight
	s.err = nil
	s.seq++
	s.mu.Unlock()
	s.notify()
	return run
}

// AppendLine adds one line of display text to the latest run.
func (s *Surface) AppendLine(line string) {
	s.mu.Lock()
	s.appendLocked(s.runs, line)
	s.seq++
	s.mu.Unlock()
	s.notify()
}

// AppendRunLine adds a line written by the given run, which need not be
// the latest.
func (s *Surface) AppendRunLine(run int, line string) {
	s.mu.Lock()
	s.appendLocked(run, line)
	s.seq++
	s.mu.Unlock()
	s.notify()
}

func (s *Surface) appendLocked(run int, line string) {
	s.lines = append(s.lines, line)
	s.lineRun = append(s.lineRun, run)
}

// Finish ends the latest run; a non-nil err marks it errored.
func (s *Surface) Finish(err error) {
	s.mu.Lock()
	run := s.runs
	s.mu.Unlock()
	s.FinishRun(run, err)
}

// FinishRun ends the given run. The surface state follows only the
// latest run.
func (s *Surface) FinishRun(run int, err error) {
	state := StateComplete
	if err != nil {
		state = StateErrored
	}

	s.mu.Lock()
	if run >= 1 && run <= len(s.runState) {
		s.runState[run-1] = state
	}
	if run == s.runs {
		s.state = state
		s.err = err
	}
	s.seq++
	s.mu.Unlock()
	s.notify()
}

func (s *Surface) Lines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.lines...)
}

// LinesSince returns lines from index n on, and the new length.
func (s *Surface) LinesSince(n int) ([]string, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n < 0 {
		n = 0
	}
	if n >= len(s.lines) {
		return nil, len(s.lines)
	}
	return append([]string(nil), s.lines[n:]...), len(s.lines)
}

func (s *Surface) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the transport error of the latest run, if any.
func (s *Surface) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Surface) Runs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs
}

// Seq increases on every change.
func (s *Surface) Seq() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

func (s *Surface) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Name:  s.name,
		State: s.state.String(),
		Runs:  s.runs,
		Seq:   s.seq,
		Lines: append([]string(nil), s.lines...),
	}
}

// RunSnapshot is a snapshot of one run: its own state and only the lines
// it wrote. ok is false for a run that never started.
func (s *Surface) RunSnapshot(run int) (snap Snapshot, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if run < 1 || run > s.runs {
		return Snapshot{}, false
	}
	lines := []string{}
	for i, r := range s.lineRun {
		if r == run {
			lines = append(lines, s.lines[i])
		}
	}
	return Snapshot{
		Name:  s.name,
		State: s.runState[run-1].String(),
		Runs:  s.runs,
		Seq:   s.seq,
		Run:   run,
		Lines: lines,
	}, true
}

// Subscribe returns a channel that receives a value after changes.
// Notifications coalesce: a slow reader sees one pending signal, not one
// per line. The channel is closed when the surface is closed.
func (s *Surface) Subscribe() chan struct{} {
	ch := make(chan struct{}, 1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		close(ch)
		return ch
	}
	s.subs[ch] = struct{}{}
	return ch
}

func (s *Surface) Unsubscribe(ch chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subs[ch]; ok {
		delete(s.subs, ch)
		close(ch)
	}
}

// Close releases all subscribers. Later writes still land in the buffer
// but nobody is notified.
func (s *Surface) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for ch := range s.subs {
		close(ch)
	}
	s.subs = make(map[chan struct{}]struct{})
}

// reopen lets a closed surface take subscribers again.
func (s *Surface) reopen() {
	s.mu.Lock()
	s.closed = false
	s.mu.Unlock()
}

func (s *Surface) notify() {
	s.mu.Lock()
	for ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	s.mu.Unlock()

	if s.onChange != nil {
		s.onChange(s)
	}
}
