// Copyright 2026 The Govisor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use file except in compliance with the License.
// You may obtain a copy of the license at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package super

import (
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// DefaultKillWait bounds how long we wait for a killed process to be
// reaped before declaring the instance Fatal.
const DefaultKillWait = 5 * time.Second

// NewBackOff returns the default delay policy between restart attempts:
// exponential from one second, doubling, capped at thirty seconds, and
// never giving up on its own.
func NewBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.Multiplier = 2
	b.RandomizationFactor = 0.1
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// Supervisor owns the lifecycle of exactly one operating system process:
// spawning it, confirming it started, restarting it according to its
// program's policy, and stopping it with escalation to a kill.
//
// Every lifecycle runs in its own goroutine, started by Start and ended
// when a terminal state is reached.  All transitions happen on that
// goroutine, so the events for one instance are delivered in order.
type Supervisor struct {
	id       ID
	prog     *Program
	env      []string
	logger   *log.Logger
	notify   func(Event)
	backoff  func() backoff.BackOff
	signal   func(*os.Process, Signal, bool) error
	killWait time.Duration

	state   State
	pid     int
	retries int
	stamp   time.Time
	detail  string
	active  bool
	stopReq bool
	killReq bool
	stop    chan struct{}
	kill    chan struct{}
	done    chan struct{}
	mx      sync.Mutex
}

// Status is a snapshot of a supervisor, for display purposes.
type Status struct {
	ID      ID        `json:"id"`
	State   State     `json:"state"`
	Pid     int       `json:"pid,omitempty"`
	Retries int       `json:"retries"`
	Since   time.Time `json:"since"`
	Detail  string    `json:"detail"`
}

// exitResult is what the reaper goroutine reports.
type exitResult struct {
	state *os.ProcessState
	err   error
}

func (r exitResult) code() int {
	if r.state != nil {
		return r.state.ExitCode()
	}
	return -1
}

func (r exitResult) String() string {
	if r.state != nil {
		return r.state.String()
	}
	if r.err != nil {
		return r.err.Error()
	}
	return "exited"
}

// NewSupervisor creates a supervisor in the Stopped state.  The process
// will inherit the current environment, with the program's environment
// applied on top.
func NewSupervisor(id ID, p *Program) *Supervisor {
	done := make(chan struct{})
	close(done)
	return &Supervisor{
		id:       id,
		prog:     p,
		env:      os.Environ(),
		logger:   log.New(os.Stderr, "["+id.String()+"] ", log.LstdFlags),
		backoff:  NewBackOff,
		signal:   signalProcess,
		killWait: DefaultKillWait,
		stamp:    time.Now(),
		detail:   "Created",
		done:     done,
	}
}

func (s *Supervisor) ID() ID {
	return s.id
}

// Program returns the definition this instance runs.  It must not be
// modified.
func (s *Supervisor) Program() *Program {
	return s.prog
}

// SetLogger replaces the logger used for lifecycle messages and for the
// output of the process.
func (s *Supervisor) SetLogger(l *log.Logger) {
	s.mx.Lock()
	s.logger = l
	s.mx.Unlock()
}

// SetNotify registers the function that receives every lifecycle event.
// It is called from the supervisor's goroutine and should not block.
func (s *Supervisor) SetNotify(fn func(Event)) {
	s.mx.Lock()
	s.notify = fn
	s.mx.Unlock()
}

// SetBackOff replaces the delay policy used between restart attempts.
// The function is called once per Start.
func (s *Supervisor) SetBackOff(fn func() backoff.BackOff) {
	s.mx.Lock()
	s.backoff = fn
	s.mx.Unlock()
}

// SetKillWait sets how long a killed process may take to be reaped.
func (s *Supervisor) SetKillWait(d time.Duration) {
	s.mx.Lock()
	s.killWait = d
	s.mx.Unlock()
}

// SetEnviron replaces the inherited environment, mostly for testing.
func (s *Supervisor) SetEnviron(env []string) {
	s.mx.Lock()
	s.env = append([]string{}, env...)
	s.mx.Unlock()
}

// Status returns a snapshot of the current state.
func (s *Supervisor) Status() Status {
	s.mx.Lock()
	defer s.mx.Unlock()
	return Status{
		ID:      s.id,
		State:   s.state,
		Pid:     s.pid,
		Retries: s.retries,
		Since:   s.stamp,
		Detail:  s.detail,
	}
}

// Done returns a channel that is closed once the current lifecycle has
// ended.  For a supervisor that was never started it is already closed.
func (s *Supervisor) Done() <-chan struct{} {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.done
}

// Start begins a new lifecycle.  It does not wait for the process to
// start; progress is reported through events.
func (s *Supervisor) Start() error {
	s.mx.Lock()
	defer s.mx.Unlock()
	if s.active {
		return ErrAlreadyStarted
	}
	s.active = true
	s.stopReq = false
	s.killReq = false
	s.retries = 0
	s.stop = make(chan struct{})
	s.kill = make(chan struct{})
	s.done = make(chan struct{})
	go s.run(s.stop, s.kill, s.done, s.backoff())
	return nil
}

// Stop asks the instance to shut down: a pending restart is abandoned,
// and a live process is sent its stop signal, then killed if it outlives
// its stop time.  Stop does not wait, and does nothing if the supervisor
// is not active or already stopping.
func (s *Supervisor) Stop() {
	s.mx.Lock()
	if s.active && !s.stopReq {
		s.stopReq = true
		close(s.stop)
	}
	s.mx.Unlock()
}

// Kill is Stop without the grace period.  A stop that is already waiting
// out its stop time escalates at once.
func (s *Supervisor) Kill() {
	s.mx.Lock()
	if s.active {
		if !s.stopReq {
			s.stopReq = true
			close(s.stop)
		}
		if !s.killReq {
			s.killReq = true
			close(s.kill)
		}
	}
	s.mx.Unlock()
}

func (s *Supervisor) logf(format string, v ...interface{}) {
	s.mx.Lock()
	l := s.logger
	s.mx.Unlock()
	l.Printf(format, v...)
}

// transition moves to a new state and reports it.  Only the lifecycle
// goroutine calls this.
func (s *Supervisor) transition(to State, pid int, detail string) {
	s.mx.Lock()
	ev := Event{
		ID:     s.id,
		From:   s.state,
		To:     to,
		Time:   time.Now(),
		Detail: detail,
		Pid:    pid,
	}
	s.state = to
	s.pid = pid
	s.stamp = ev.Time
	s.detail = detail
	notify := s.notify
	logger := s.logger
	s.mx.Unlock()

	if pid != 0 {
		logger.Printf("%s -> %s (pid %d): %s", ev.From, ev.To, pid, detail)
	} else {
		logger.Printf("%s -> %s: %s", ev.From, ev.To, detail)
	}
	if notify != nil {
		notify(ev)
	}
}

func (s *Supervisor) run(stop, kill <-chan struct{}, done chan struct{}, bo backoff.BackOff) {
	defer func() {
		s.mx.Lock()
		s.active = false
		s.mx.Unlock()
		close(done)
	}()

	for {
		select {
		case <-stop:
			s.transition(Stopped, 0, "Stopped")
			return
		default:
		}

		s.transition(Starting, 0, "Spawning "+strings.Join(s.prog.Command, " "))
		proc, exited, e := s.spawn()
		if e != nil {
			if !s.failedStart(bo, "Failed to start: "+e.Error(), stop) {
				return
			}
			continue
		}

		if !s.supervise(proc, exited, stop, kill, bo) {
			return
		}
	}
}

// supervise watches one spawned process until it exits or is stopped.  It
// returns true if the process should be spawned again.
func (s *Supervisor) supervise(proc *os.Process, exited <-chan exitResult, stop, kill <-chan struct{}, bo backoff.BackOff) bool {
	var startC <-chan time.Time
	started := false
	if d := s.prog.StartTime.Std(); d > 0 {
		s.setPid(proc.Pid)
		timer := time.NewTimer(d)
		defer timer.Stop()
		startC = timer.C
	} else {
		started = true
		s.running(proc.Pid, bo)
	}

	for {
		select {
		case <-startC:
			startC = nil
			started = true
			s.running(proc.Pid, bo)

		case r := <-exited:
			if !started {
				return s.failedStart(bo, "Exited too quickly: "+r.String(), stop)
			}
			if !s.prog.Restartable(r.code()) {
				s.transition(Exited, 0, "Exited: "+r.String())
				return false
			}
			return s.backOff(bo, "Exited: "+r.String(), stop)

		case <-stop:
			s.terminate(proc, exited, kill)
			return false
		}
	}
}

func (s *Supervisor) setPid(pid int) {
	s.mx.Lock()
	s.pid = pid
	s.mx.Unlock()
}

// running marks a successful start, which clears the retry budget.
func (s *Supervisor) running(pid int, bo backoff.BackOff) {
	s.mx.Lock()
	s.retries = 0
	s.mx.Unlock()
	bo.Reset()
	s.transition(Running, pid, "Started")
}

// failedStart accounts for a start attempt that did not make it to
// Running, whatever the restart policy.  It returns true if another
// attempt should be made.
func (s *Supervisor) failedStart(bo backoff.BackOff, detail string, stop <-chan struct{}) bool {
	s.mx.Lock()
	s.retries++
	n := s.retries
	s.mx.Unlock()

	if n > s.prog.StartRetries {
		s.transition(Fatal, 0,
			fmt.Sprintf("%s (gave up after %d attempts)", detail, n))
		return false
	}
	return s.backOff(bo, detail, stop)
}

// backOff waits before the next attempt.  A stop request cuts the wait
// short and ends the lifecycle.
func (s *Supervisor) backOff(bo backoff.BackOff, detail string, stop <-chan struct{}) bool {
	select {
	case <-stop:
		s.transition(Stopped, 0, "Stopped: "+detail)
		return false
	default:
	}

	d := bo.NextBackOff()
	if d == backoff.Stop {
		s.transition(Fatal, 0, detail+" (no more retries)")
		return false
	}
	s.transition(Backoff, 0, fmt.Sprintf("%s (retrying in %v)", detail, d))

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-stop:
		s.transition(Stopped, 0, "Stopped while backing off")
		return false
	}
}

// terminate runs the stop protocol: stop signal, grace period, kill.
func (s *Supervisor) terminate(proc *os.Process, exited <-chan exitResult, kill <-chan struct{}) {
	p := s.prog
	s.transition(Stopping, proc.Pid, "Sending "+p.StopSignal.String())

	switch e := s.signal(proc, p.StopSignal, p.StopAsGroup); {
	case errors.Is(e, syscall.EINVAL):
		// The signal itself is unusable, so the process is still there.
		s.logf("Failed sending %v: %v", p.StopSignal, e)
		s.forceKill(proc, exited)
		return
	case e != nil:
		select {
		case r := <-exited:
			s.transition(Stopped, 0, "Stopped: "+r.String())
		default:
			s.transition(Stopped, 0, fmt.Sprintf(
				"Failed sending %v: %v (presumed stopped)",
				p.StopSignal, e))
		}
		return
	}

	grace := time.NewTimer(p.StopTime.Std())
	defer grace.Stop()
	select {
	case r := <-exited:
		s.transition(Stopped, 0, "Stopped: "+r.String())
		return
	case <-grace.C:
		s.logf("Graceful shutdown timed out")
	case <-kill:
		s.logf("Forced shutdown requested")
	}
	s.forceKill(proc, exited)
}

// forceKill sends the unconditional kill and waits for the reap.  A process
// that outlives the kill wait leaves the instance Fatal.
func (s *Supervisor) forceKill(proc *os.Process, exited <-chan exitResult) {
	p := s.prog
	if e := s.signal(proc, sigKill, p.KillAsGroup); e != nil {
		s.logf("Failed killing: %v", e)
	}

	s.mx.Lock()
	wait := time.NewTimer(s.killWait)
	s.mx.Unlock()
	defer wait.Stop()
	select {
	case r := <-exited:
		s.transition(Stopped, 0, "Killed: "+r.String())
	case <-wait.C:
		s.transition(Fatal, proc.Pid, ErrKillFailed.Error())
	}
}

// spawn starts the process and a goroutine that reaps it.  Output is
// logged a line at a time.
func (s *Supervisor) spawn() (*os.Process, <-chan exitResult, error) {
	p := s.prog

	s.mx.Lock()
	env := mergeEnv(s.env, p.Environment)
	logger := s.logger
	s.mx.Unlock()

	stdout := newLineWriter(logger, "stdout> ")
	stderr := newLineWriter(logger, "stderr> ")
	cmd := exec.Command(p.Command[0], p.Command[1:]...)
	cmd.Env = env
	cmd.Dir = p.Directory
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.SysProcAttr = procAttr()
	// Descendants that keep our pipes open must not hold up the reap.
	cmd.WaitDelay = time.Second

	if e := cmd.Start(); e != nil {
		return nil, nil, e
	}

	exited := make(chan exitResult, 1)
	go func() {
		e := cmd.Wait()
		stdout.Flush()
		stderr.Flush()
		if errors.Is(e, exec.ErrWaitDelay) {
			e = nil
		}
		exited <- exitResult{state: cmd.ProcessState, err: e}
	}()
	return cmd.Process, exited, nil
}

// mergeEnv overrides entries of base with env.  Variables not named in
// env pass through untouched; new ones are appended in sorted order.
func mergeEnv(base []string, env map[string]string) []string {
	rv := make([]string, 0, len(base)+len(env))
	seen := make(map[string]bool, len(env))
	for _, kv := range base {
		k, _, _ := strings.Cut(kv, "=")
		if v, ok := env[k]; ok {
			if seen[k] {
				continue
			}
			seen[k] = true
			rv = append(rv, k+"="+v)
			continue
		}
		rv = append(rv, kv)
	}
	extra := make([]string, 0, len(env))
	for k := range env {
		if !seen[k] {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	for _, k := range extra {
		rv = append(rv, k+"="+env[k])
	}
	return rv
}
