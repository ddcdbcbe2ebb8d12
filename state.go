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
	"fmt"
	"time"
)

// State is the lifecycle state of a single supervised instance.
//
//	Stopped ---Start---> Starting ---start_time---> Running ---exit---> Exited
//	   ^                  |    ^                     |   |
//	   |             exit |    | retry          exit |   | Stop
//	   |                  v    |                     |   v
//	   +<------Stop------ Backoff <------------------+  Stopping
//	   |                  |                              |
//	   |                  v                              |
//	   |                Fatal  (retries exhausted)       |
//	   +<------------------------------------------------+
//
// Starting may also go straight to Stopping when stopped.
type State int

const (
	Stopped State = iota
	Starting
	Running
	Backoff
	Stopping
	Exited
	Fatal
)

var stateNames = [...]string{
	Stopped:  "Stopped",
	Starting: "Starting",
	Running:  "Running",
	Backoff:  "Backoff",
	Stopping: "Stopping",
	Exited:   "Exited",
	Fatal:    "Fatal",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(b []byte) error {
	for i, name := range stateNames {
		if name == string(b) {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", string(b))
}

// Terminal is true for states that the supervisor will not leave without
// another Start.
func (s State) Terminal() bool {
	return s == Stopped || s == Exited || s == Fatal
}

// Event records one state transition of one instance.  Events are the
// only way an Orchestrator learns what its supervisors are doing.
type Event struct {
	ID     ID        `json:"id"`
	From   State     `json:"from"`
	To     State     `json:"to"`
	Time   time.Time `json:"time"`
	Detail string    `json:"detail"`
	Pid    int       `json:"pid,omitempty"`
}

func (e Event) String() string {
	return fmt.Sprintf("%s: %s -> %s: %s", e.ID, e.From, e.To, e.Detail)
}
