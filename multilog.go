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
	"log"
	"slices"
	"strings"
	"sync"
)

// MultiLogger is the shared sink behind every instance logger.  Each
// supervisor gets its own *log.Logger from Logger, carrying an
// "[name[i]] " prefix; whatever those loggers print is split into lines
// here and replayed on each destination, so the in-memory Log and the
// console both see one tagged line per record, in their own format.
type MultiLogger struct {
	dests []*log.Logger
	lock  sync.Mutex
}

func NewMultiLogger() *MultiLogger {
	return &MultiLogger{}
}

func (l *MultiLogger) Write(b []byte) (int, error) {
	lines := strings.Split(strings.TrimSuffix(string(b), "\n"), "\n")
	// Hold the lock across delivery so all destinations agree on order.
	l.lock.Lock()
	defer l.lock.Unlock()
	for _, line := range lines {
		for _, d := range l.dests {
			d.Println(line)
		}
	}
	return len(b), nil
}

// AddLogger registers a destination, once.
func (l *MultiLogger) AddLogger(d *log.Logger) {
	l.lock.Lock()
	if !slices.Contains(l.dests, d) {
		l.dests = append(l.dests, d)
	}
	l.lock.Unlock()
}

// DelLogger stops delivery to a destination.
func (l *MultiLogger) DelLogger(d *log.Logger) {
	l.lock.Lock()
	l.dests = slices.DeleteFunc(l.dests, func(x *log.Logger) bool {
		return x == d
	})
	l.lock.Unlock()
}

// Logger returns a logger for one source, such as an instance, whose
// lines all start with prefix.
func (l *MultiLogger) Logger(prefix string) *log.Logger {
	return log.New(l, prefix, 0)
}
