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

// Package super runs a fixed set of programs the way an init process
// would inside a container.  It is similar in concept to supervisord,
// but much smaller.
//
// A Config names programs.  Each Program runs as one or more instances,
// identified by an ID such as "web" or "web[2]", and each instance is
// owned by a Supervisor, which spawns it, decides whether it started,
// restarts it after a back off according to its AutoRestart policy, and
// stops it with a signal followed by a kill.  Supervisors report every
// state change as an Event.
//
// An Orchestrator starts all instances in ascending priority order, a
// tier at a time, and stops them in the reverse order.  It keeps an
// in-memory Log of everything the supervisors and their processes write,
// which the rest package can serve over HTTP.
//
// Durations in configuration files use a compact form, such as "1m30s"
// or "2w", described by ParseDuration.
package super
