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

// Package rest exposes a read-only view of a running supervisor over
// HTTP, and a client for it.  There are deliberately no endpoints that
// change anything.
//
//	GET /                    orchestrator info
//	GET /instances           instance names, in start order
//	GET /instances/{name}    one instance
//	GET /log                 recent log lines
//
// Every response carries an Etag.  A request with If-None-Match gets 304
// when nothing changed; adding the poll headers turns it into a long poll
// that waits up to the given number of seconds for a change.
package rest

import (
	"strconv"
	"time"

	"github.com/govisor/super"
)

const (
	mimeJson = "application/json; charset=UTF-8"

	PollEtagHeader = "X-Super-Poll-Etag"
	PollTimeHeader = "X-Super-Poll-Time"

	maxPollTime = 300 * time.Second
)

// InstanceInfo describes one supervised instance.
type InstanceInfo struct {
	Name     string      `json:"name"`
	Program  string      `json:"program"`
	Instance int         `json:"instance,omitempty"`
	Priority int         `json:"priority"`
	Command  []string    `json:"command"`
	State    super.State `json:"state"`
	Pid      int         `json:"pid,omitempty"`
	Retries  int         `json:"retries"`
	Since    time.Time   `json:"since"`
	Detail   string      `json:"detail"`
}

type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return e.Message
}

func etag(id int64) string {
	return `"` + strconv.FormatInt(id, 16) + `"`
}
