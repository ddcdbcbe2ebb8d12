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
	"context"
	"log"
	"strings"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

type testLog struct {
	t *testing.T
}

func (tl *testLog) Write(p []byte) (n int, err error) {
	s := string(p)
	s = strings.Trim(s, "\n")
	tl.t.Log(s)
	return len(p), nil
}

// syncBuffer collects log output that is written from several goroutines.
type syncBuffer struct {
	buf bytes.Buffer
	mx  sync.Mutex
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mx.Lock()
	defer b.mx.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mx.Lock()
	defer b.mx.Unlock()
	return b.buf.String()
}

// recorder keeps every event it is handed, in arrival order.
type recorder struct {
	events []Event
	mx     sync.Mutex
}

func (r *recorder) notify(ev Event) {
	r.mx.Lock()
	r.events = append(r.events, ev)
	r.mx.Unlock()
}

func (r *recorder) all() []Event {
	r.mx.Lock()
	defer r.mx.Unlock()
	return append([]Event{}, r.events...)
}

// states lists the target state of every event, optionally only for one
// instance.
func (r *recorder) states(name string) []State {
	var rv []State
	for _, ev := range r.all() {
		if name == "" || ev.ID.String() == name {
			rv = append(rv, ev.To)
		}
	}
	return rv
}

func (r *recorder) count(name string, st State) int {
	n := 0
	for _, s := range r.states(name) {
		if s == st {
			n++
		}
	}
	return n
}

// index returns the position of the first event taking name to st, or
// -1 if there is none.
func (r *recorder) index(name string, st State) int {
	for i, ev := range r.all() {
		if ev.ID.String() == name && ev.To == st {
			return i
		}
	}
	return -1
}

func waitFor(d time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(d)
	for !cond() {
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(5 * time.Millisecond)
	}
	return true
}

func TestLog(t *testing.T) {
	Convey("Given a log holding three lines", t, func() {
		l := NewLog(3)
		recs, id := l.Records(0)
		So(recs, ShouldBeEmpty)

		Convey("Writes split into lines and advance the id", func() {
			logger := log.New(l, "", 0)
			logger.Print("one\ntwo")
			recs, id2 := l.Records(id)
			So(id2, ShouldEqual, id+2)
			So(len(recs), ShouldEqual, 2)
			So(recs[0].Text, ShouldEqual, "one")
			So(recs[1].Text, ShouldEqual, "two")
			So(recs[1].Id, ShouldEqual, id2)

			Convey("An unchanged id returns nothing", func() {
				recs, id3 := l.Records(id2)
				So(recs, ShouldBeNil)
				So(id3, ShouldEqual, id2)
			})

			Convey("Old lines fall off the end", func() {
				logger.Print("three")
				logger.Print("four")
				recs, _ := l.Records(0)
				So(len(recs), ShouldEqual, 3)
				So(recs[0].Text, ShouldEqual, "two")
				So(recs[2].Text, ShouldEqual, "four")
			})
		})

		Convey("Blank lines are not kept", func() {
			l.Write([]byte("\n"))
			recs, id2 := l.Records(id)
			So(recs, ShouldBeNil)
			So(id2, ShouldEqual, id)

			l.Write([]byte("a\n\nb\n"))
			recs, id2 = l.Records(id)
			So(id2, ShouldEqual, id+2)
			So(len(recs), ShouldEqual, 2)
			So(recs[1].Text, ShouldEqual, "b")
		})

		Convey("Watch wakes up on a write", func() {
			go func() {
				time.Sleep(20 * time.Millisecond)
				l.Write([]byte("hello\n"))
			}()
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			So(l.Watch(ctx, id), ShouldEqual, id+1)
		})

		Convey("Watch gives up when the context ends", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
			defer cancel()
			start := time.Now()
			So(l.Watch(ctx, id), ShouldEqual, id)
			So(time.Since(start), ShouldBeLessThan, 5*time.Second)
		})
	})
}

func TestMultiLogger(t *testing.T) {
	Convey("Given a multi logger with two destinations", t, func() {
		b1 := &syncBuffer{}
		b2 := &syncBuffer{}
		l1 := log.New(b1, "1: ", 0)
		l2 := log.New(b2, "2: ", 0)
		ml := NewMultiLogger()
		ml.AddLogger(l1)
		ml.AddLogger(l2)
		ml.AddLogger(l2)

		Convey("Every line reaches every destination once", func() {
			ml.Logger("[x] ").Print("a\nb")
			So(b1.String(), ShouldEqual, "1: [x] a\n1: b\n")
			So(b2.String(), ShouldEqual, "2: [x] a\n2: b\n")
		})

		Convey("Instance loggers keep their own prefix", func() {
			web := ml.Logger("[web[2]] ")
			db := ml.Logger("[db] ")
			web.Print("up")
			db.Print("ready\nlistening")
			So(b1.String(), ShouldEqual,
				"1: [web[2]] up\n1: [db] ready\n1: listening\n")
		})

		Convey("Removed destinations see nothing more", func() {
			ml.DelLogger(l1)
			ml.Logger("").Print("c")
			So(b1.String(), ShouldEqual, "")
			So(b2.String(), ShouldEqual, "2: c\n")
		})
	})
}

func TestLineWriter(t *testing.T) {
	Convey("Process output is logged a line at a time", t, func() {
		b := &syncBuffer{}
		w := newLineWriter(log.New(b, "", 0), "out> ")
		w.Write([]byte("par"))
		So(b.String(), ShouldEqual, "")
		w.Write([]byte("tial\r\nnext\nlast"))
		So(b.String(), ShouldEqual, "out> partial\nout> next\n")
		w.Flush()
		So(b.String(), ShouldEqual, "out> partial\nout> next\nout> last\n")
	})
}

func TestMergeEnv(t *testing.T) {
	Convey("Configured variables override inherited ones", t, func() {
		env := mergeEnv(
			[]string{"A=1", "B=2", "A=3", "C"},
			map[string]string{"A": "x", "Z": "z", "D": "d"})
		So(env, ShouldResemble, []string{"A=x", "B=2", "C", "D=d", "Z=z"})
	})
}
