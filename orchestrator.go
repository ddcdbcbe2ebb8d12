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
	"context"
	"io"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Orchestrator owns one Supervisor per program instance and runs them as
// a whole.  Instances start in ascending priority order and stop in
// descending order; each priority tier must settle before the next one
// is touched.  Within a tier everything runs concurrently.
//
// The orchestrator never looks inside a supervisor.  It starts and stops
// them, and learns what happened from their events.
type Orchestrator struct {
	name        string
	supervisors []*Supervisor
	byName      map[string]*Supervisor
	states      map[ID]State
	starting    map[ID]bool
	stopping    map[ID]bool
	startFailed []ID
	listeners   []func(Event)
	logger      *log.Logger
	dest        *log.Logger
	log         *Log
	mlog        *MultiLogger
	serial      int64
	createTime  time.Time
	updateTime  time.Time
	cv          *sync.Cond
	mx          sync.Mutex
}

// Info is top level information about an Orchestrator.
type Info struct {
	Name       string    `json:"name"`
	Serial     int64     `json:"serial,string"`
	CreateTime time.Time `json:"created"`
	UpdateTime time.Time `json:"updated"`
}

// NewOrchestrator creates a supervisor for every instance of every program
// in the configuration.  Nothing is started.
func NewOrchestrator(name string, cfg *Config) *Orchestrator {
	if name == "" {
		name = "super"
	}
	o := &Orchestrator{
		name:     name,
		byName:   make(map[string]*Supervisor),
		states:   make(map[ID]State),
		starting: make(map[ID]bool),
		stopping: make(map[ID]bool),
		// Like the log, the serial starts from the clock so that it
		// is unlikely to repeat across restarts.
		serial:     time.Now().UnixNano(),
		createTime: time.Now(),
		mlog:       NewMultiLogger(),
		log:        NewLog(MaxLogRecords),
	}
	o.updateTime = o.createTime
	o.cv = sync.NewCond(&o.mx)
	o.mlog.AddLogger(log.New(o.log, "", 0))
	o.dest = log.New(os.Stderr, "", log.LstdFlags)
	o.mlog.AddLogger(o.dest)
	o.logger = o.mlog.Logger("")

	for _, pname := range cfg.Names() {
		for id, p := range Instances(pname, cfg.Programs[pname]) {
			s := NewSupervisor(id, p)
			s.SetLogger(o.mlog.Logger("[" + id.String() + "] "))
			s.SetNotify(o.onEvent)
			o.supervisors = append(o.supervisors, s)
			o.byName[id.String()] = s
		}
	}
	sort.SliceStable(o.supervisors, func(i, j int) bool {
		pi := o.supervisors[i].Program().Priority
		pj := o.supervisors[j].Program().Priority
		if pi != pj {
			return pi < pj
		}
		return o.supervisors[i].ID().Less(o.supervisors[j].ID())
	})
	return o
}

func (o *Orchestrator) Name() string {
	return o.name
}

// SetLogger replaces the default destination, standard error, for log
// messages.  The in-memory log is not affected.
func (o *Orchestrator) SetLogger(l *log.Logger) {
	o.mlog.DelLogger(o.dest)
	o.dest = l
	o.mlog.AddLogger(l)
}

// SetLogWriter is SetLogger with an unadorned logger on w.
func (o *Orchestrator) SetLogWriter(w io.Writer) {
	o.SetLogger(log.New(w, "", 0))
}

// SetBackOff replaces the restart delay policy of every supervisor.
func (o *Orchestrator) SetBackOff(fn func() backoff.BackOff) {
	for _, s := range o.supervisors {
		s.SetBackOff(fn)
	}
}

// SetKillWait sets the kill confirmation window of every supervisor.
func (o *Orchestrator) SetKillWait(d time.Duration) {
	for _, s := range o.supervisors {
		s.SetKillWait(d)
	}
}

// AddListener registers fn to receive every event, after the orchestrator
// has processed it.
func (o *Orchestrator) AddListener(fn func(Event)) {
	o.mx.Lock()
	o.listeners = append(o.listeners, fn)
	o.mx.Unlock()
}

// Supervisors returns every supervisor, in start order.
func (o *Orchestrator) Supervisors() []*Supervisor {
	return append([]*Supervisor{}, o.supervisors...)
}

// Find returns the supervisor for an instance name such as "web[2]".
func (o *Orchestrator) Find(name string) *Supervisor {
	return o.byName[name]
}

// GetInfo returns top-level information, consistently.
func (o *Orchestrator) GetInfo() *Info {
	o.mx.Lock()
	defer o.mx.Unlock()
	return &Info{
		Name:       o.name,
		Serial:     o.serial,
		CreateTime: o.createTime,
		UpdateTime: o.updateTime,
	}
}

// Serial is incremented on every event.
func (o *Orchestrator) Serial() int64 {
	o.mx.Lock()
	defer o.mx.Unlock()
	return o.serial
}

// WatchSerial waits until the serial differs from old, or ctx is done,
// and returns the serial.
func (o *Orchestrator) WatchSerial(ctx context.Context, old int64) int64 {
	o.mx.Lock()
	defer o.mx.Unlock()
	waitCond(ctx, o.cv, func() bool { return o.serial != old })
	return o.serial
}

func (o *Orchestrator) GetLog(last int64) ([]LogRecord, int64) {
	return o.log.Records(last)
}

func (o *Orchestrator) WatchLog(ctx context.Context, last int64) int64 {
	return o.log.Watch(ctx, last)
}

// StartFailures lists the instances that went Fatal during StartAll.
func (o *Orchestrator) StartFailures() []ID {
	o.mx.Lock()
	defer o.mx.Unlock()
	return append([]ID{}, o.startFailed...)
}

// Fatal lists the instances whose last reported state is Fatal.
func (o *Orchestrator) Fatal() []ID {
	o.mx.Lock()
	defer o.mx.Unlock()
	var rv []ID
	for _, s := range o.supervisors {
		if o.states[s.ID()] == Fatal {
			rv = append(rv, s.ID())
		}
	}
	return rv
}

func (o *Orchestrator) logf(format string, v ...interface{}) {
	o.logger.Printf(format, v...)
}

// onEvent is every supervisor's notify function.
func (o *Orchestrator) onEvent(ev Event) {
	o.mx.Lock()
	o.states[ev.ID] = ev.To
	switch ev.To {
	case Running, Exited, Fatal, Stopped:
		delete(o.starting, ev.ID)
	}
	if ev.To.Terminal() {
		delete(o.stopping, ev.ID)
	}
	o.serial++
	o.updateTime = ev.Time
	o.cv.Broadcast()
	listeners := append([]func(Event){}, o.listeners...)
	o.mx.Unlock()

	for _, fn := range listeners {
		fn(ev)
	}
}

// tiers groups the supervisors by priority, lowest first.
func (o *Orchestrator) tiers() [][]*Supervisor {
	var rv [][]*Supervisor
	for i, s := range o.supervisors {
		if i == 0 || s.Program().Priority != o.supervisors[i-1].Program().Priority {
			rv = append(rv, nil)
		}
		rv[len(rv)-1] = append(rv[len(rv)-1], s)
	}
	return rv
}

func tierNames(tier []*Supervisor) string {
	names := make([]string, 0, len(tier))
	for _, s := range tier {
		names = append(names, s.ID().String())
	}
	return strings.Join(names, ", ")
}

// settled returns a condition that holds once no member of tier is in
// pending.  Evaluate it with the lock held.
func (o *Orchestrator) settled(tier []*Supervisor, pending map[ID]bool) func() bool {
	return func() bool {
		for _, s := range tier {
			if pending[s.ID()] {
				return false
			}
		}
		return true
	}
}

// StartAll starts every tier in ascending priority order.  A tier is done
// once each member is Running, Exited or Fatal; only then does the next
// tier start.  Instances that go Fatal are logged and remembered, but do
// not prevent later tiers from starting.  If ctx ends first, StartAll
// gives up waiting and returns its error; whatever was started keeps
// running until StopAll.
func (o *Orchestrator) StartAll(ctx context.Context) error {
	o.logf("*** %s starting ***", o.name)
	for _, tier := range o.tiers() {
		o.logf("Starting priority %d: %s",
			tier[0].Program().Priority, tierNames(tier))

		o.mx.Lock()
		for _, s := range tier {
			o.starting[s.ID()] = true
		}
		o.mx.Unlock()

		for _, s := range tier {
			if e := s.Start(); e != nil {
				o.logf("Cannot start %s: %v", s.ID(), e)
				o.mx.Lock()
				delete(o.starting, s.ID())
				o.mx.Unlock()
			}
		}

		o.mx.Lock()
		ok := waitCond(ctx, o.cv, o.settled(tier, o.starting))
		for _, s := range tier {
			if o.states[s.ID()] == Fatal {
				o.startFailed = append(o.startFailed, s.ID())
				o.logger.Printf("%s failed to start", s.ID())
			}
		}
		o.mx.Unlock()
		if !ok {
			return ctx.Err()
		}
	}
	return nil
}

// StopAll stops every tier in descending priority order, waiting for a
// tier to be fully stopped before moving on.  If ctx ends while waiting,
// the remaining stops are escalated to kills.  StopAll always returns
// with every supervisor in a terminal state.
func (o *Orchestrator) StopAll(ctx context.Context) {
	tiers := o.tiers()
	for i := len(tiers) - 1; i >= 0; i-- {
		tier := tiers[i]

		var pending []*Supervisor
		o.mx.Lock()
		for _, s := range tier {
			id := s.ID()
			if o.starting[id] || !o.states[id].Terminal() {
				o.stopping[id] = true
				pending = append(pending, s)
			}
		}
		o.mx.Unlock()
		if len(pending) == 0 {
			continue
		}

		o.logf("Stopping priority %d: %s",
			tier[0].Program().Priority, tierNames(pending))
		for _, s := range pending {
			s.Stop()
		}

		o.mx.Lock()
		if !waitCond(ctx, o.cv, o.settled(pending, o.stopping)) {
			o.mx.Unlock()
			o.logf("Stop interrupted, killing: %s", tierNames(pending))
			for _, s := range pending {
				s.Kill()
			}
			o.mx.Lock()
			waitCond(context.Background(), o.cv,
				o.settled(pending, o.stopping))
		}
		o.mx.Unlock()
	}
	o.logf("*** %s stopped ***", o.name)
}

// Wait blocks until every supervisor is in a terminal state, or ctx ends.
func (o *Orchestrator) Wait(ctx context.Context) error {
	o.mx.Lock()
	defer o.mx.Unlock()
	ok := waitCond(ctx, o.cv, func() bool {
		for _, s := range o.supervisors {
			if o.starting[s.ID()] || !o.states[s.ID()].Terminal() {
				return false
			}
		}
		return true
	})
	if !ok {
		return ctx.Err()
	}
	return nil
}

// Run starts everything, waits until ctx ends or nothing is left
// running, then stops everything.  killCtx ending during the stop
// escalates to kills.
func (o *Orchestrator) Run(ctx, killCtx context.Context) {
	if e := o.StartAll(ctx); e != nil {
		o.logf("Startup interrupted: %v", e)
	}
	if e := o.Wait(ctx); e == nil {
		o.logf("Nothing left running")
	}
	o.StopAll(killCtx)
}
