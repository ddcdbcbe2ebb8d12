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
	"strings"
	"sync"
	"time"
)

// MaxLogRecords is the default capacity of a Log.
const MaxLogRecords = 1000

// LogRecord is one line of a Log.
type LogRecord struct {
	Id   int64     `json:"id,string"`
	Time time.Time `json:"time"`
	Text string    `json:"text"`
}

// Log keeps the most recent lines written to it.  It is an io.Writer, so
// a log.Logger can write into it.  Every write advances an id, which
// readers use like an Etag to learn whether anything changed.
type Log struct {
	records []LogRecord
	written int
	id      int64
	cv      *sync.Cond
	mx      sync.Mutex
}

// NewLog returns a Log that holds at most max lines.
func NewLog(max int) *Log {
	if max <= 0 {
		max = MaxLogRecords
	}
	l := &Log{
		records: make([]LogRecord, max),
		// Start from the clock so that ids differ across restarts of
		// the supervisor, which keeps clients' cached Etags honest.
		id: time.Now().UnixNano(),
	}
	l.cv = sync.NewCond(&l.mx)
	return l
}

// Write stores each non-empty line of b as a record.  Blank lines are
// dropped, and a write with nothing to keep leaves the id alone.
func (l *Log) Write(b []byte) (int, error) {
	now := time.Now()
	l.mx.Lock()
	defer l.mx.Unlock()
	added := false
	for _, line := range strings.Split(string(b), "\n") {
		if line == "" {
			continue
		}
		l.id++
		l.records[l.written%len(l.records)] = LogRecord{
			Id:   l.id,
			Time: now,
			Text: line,
		}
		l.written++
		added = true
	}
	if added {
		l.cv.Broadcast()
	}
	return len(b), nil
}

// Records returns the retained lines, oldest first, and the current id.
// If the id still equals last, nothing is copied and nil is returned.
func (l *Log) Records(last int64) ([]LogRecord, int64) {
	l.mx.Lock()
	defer l.mx.Unlock()
	if l.id == last {
		return nil, last
	}
	n := l.written
	if n > len(l.records) {
		n = len(l.records)
	}
	recs := make([]LogRecord, 0, n)
	for i := l.written - n; i < l.written; i++ {
		recs = append(recs, l.records[i%len(l.records)])
	}
	return recs, l.id
}

// Watch blocks until the id moves past last, or ctx is done, and returns
// the id at that point.
func (l *Log) Watch(ctx context.Context, last int64) int64 {
	l.mx.Lock()
	defer l.mx.Unlock()
	waitCond(ctx, l.cv, func() bool { return l.id != last })
	return l.id
}

// waitCond waits on cv, whose lock must be held, until done returns true
// or ctx ends.  It reports whether done was satisfied.
func waitCond(ctx context.Context, cv *sync.Cond, done func() bool) bool {
	stop := context.AfterFunc(ctx, func() {
		cv.L.Lock()
		cv.Broadcast()
		cv.L.Unlock()
	})
	defer stop()
	for !done() {
		if ctx.Err() != nil {
			return false
		}
		cv.Wait()
	}
	return true
}
