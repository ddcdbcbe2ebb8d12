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
	"bytes"
	"log"
	"sync"
)

// lineWriter gathers process output into lines and logs each one with a
// prefix, so that stdout and stderr can be told apart in the log.
type lineWriter struct {
	logger *log.Logger
	prefix string
	buf    []byte
	lock   sync.Mutex
}

func newLineWriter(l *log.Logger, prefix string) *lineWriter {
	return &lineWriter{logger: l, prefix: prefix}
}

func (w *lineWriter) Write(b []byte) (int, error) {
	w.lock.Lock()
	w.buf = append(w.buf, b...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		w.logger.Print(w.prefix, string(bytes.TrimRight(w.buf[:i], "\r")))
		w.buf = w.buf[i+1:]
	}
	w.lock.Unlock()
	return len(b), nil
}

// Flush logs a trailing partial line, if any.
func (w *lineWriter) Flush() {
	w.lock.Lock()
	if len(w.buf) != 0 {
		w.logger.Print(w.prefix, string(w.buf))
		w.buf = nil
	}
	w.lock.Unlock()
}
