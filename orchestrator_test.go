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

//go:build unix

package super

import (
	"context"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

// WithOrchestrator builds an orchestrator from a TOML configuration, and
// makes sure everything is stopped again before the test ends.
func WithOrchestrator(t *testing.T, text string, fn func(*Orchestrator, *recorder)) func() {
	return func() {
		cfg, e := DecodeConfig(strings.NewReader(text), FormatTOML)
		So(e, ShouldBeNil)
		o := NewOrchestrator("test", cfg)
		o.SetLogWriter(&testLog{t: t})
		o.SetBackOff(fastBackOff)
		o.SetKillWait(2 * time.Second)
		r := &recorder{}
		o.AddListener(r.notify)
		Reset(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
			defer cancel()
			o.StopAll(ctx)
		})
		fn(o, r)
	}
}

func timeout() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 10*time.Second)
}

const priorityConfig = `
[programs.echo]
command = ["sleep", "30"]
priority = 6

[programs.foo]
command = ["sleep", "30"]
start_time = "1s"
`

func TestOrchestratorPriority(t *testing.T) {
	Convey("Given programs at priorities 6 and 0", t,
		WithOrchestrator(t, priorityConfig, func(o *Orchestrator, r *recorder) {
			names := []string{}
			for _, s := range o.Supervisors() {
				names = append(names, s.ID().String())
			}
			So(names, ShouldResemble, []string{"foo", "echo"})
			So(o.Find("echo"), ShouldNotBeNil)
			So(o.Find("bar"), ShouldBeNil)

			ctx, cancel := timeout()
			defer cancel()
			So(o.StartAll(ctx), ShouldBeNil)

			Convey("The lower priority is running before the higher starts", func() {
				So(o.Find("foo").Status().State, ShouldEqual, Running)
				So(o.Find("echo").Status().State, ShouldEqual, Running)
				So(r.index("foo", Starting), ShouldBeLessThan, r.index("foo", Running))
				So(r.index("foo", Running), ShouldBeLessThan, r.index("echo", Starting))
				So(o.StartFailures(), ShouldBeEmpty)
			})

			Convey("Stopping goes the other way", func() {
				o.StopAll(ctx)
				So(o.Find("foo").Status().State, ShouldEqual, Stopped)
				So(o.Find("echo").Status().State, ShouldEqual, Stopped)
				So(r.index("echo", Stopping), ShouldBeLessThan, r.index("echo", Stopped))
				So(r.index("echo", Stopped), ShouldBeLessThan, r.index("foo", Stopping))
			})

			Convey("Every event advances the serial", func() {
				serial := o.Serial()
				wctx, wcancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer wcancel()
				go o.Find("echo").Stop()
				So(o.WatchSerial(wctx, serial), ShouldNotEqual, serial)
				So(o.GetInfo().Name, ShouldEqual, "test")
			})
		}))
}

func TestOrchestratorFailures(t *testing.T) {
	Convey("Given a program that cannot start below one that can", t,
		WithOrchestrator(t, `
[programs.bad]
command = ["/nonexistent/program"]
start_retries = 1

[programs.good]
command = ["sleep", "30"]
priority = 1
`, func(o *Orchestrator, r *recorder) {
			ctx, cancel := timeout()
			defer cancel()
			So(o.StartAll(ctx), ShouldBeNil)

			Convey("The failure is recorded but startup carries on", func() {
				So(o.StartFailures(), ShouldResemble, []ID{{Name: "bad"}})
				So(o.Fatal(), ShouldResemble, []ID{{Name: "bad"}})
				So(o.Find("good").Status().State, ShouldEqual, Running)
			})

			Convey("Stopping leaves the failure alone", func() {
				o.StopAll(ctx)
				So(o.Find("bad").Status().State, ShouldEqual, Fatal)
				So(o.Find("good").Status().State, ShouldEqual, Stopped)
				So(r.count("bad", Stopping), ShouldEqual, 0)
			})
		}))
}

func TestOrchestratorWait(t *testing.T) {
	Convey("Given instances that exit on their own", t,
		WithOrchestrator(t, `
[programs.once]
command = "sh -c 'exit 0'"
num_procs = 3
auto_restart = "never"
`, func(o *Orchestrator, r *recorder) {
			So(len(o.Supervisors()), ShouldEqual, 3)
			So(o.Find("once[2]"), ShouldNotBeNil)

			ctx, cancel := timeout()
			defer cancel()
			So(o.StartAll(ctx), ShouldBeNil)
			So(o.Wait(ctx), ShouldBeNil)
			for _, s := range o.Supervisors() {
				So(s.Status().State, ShouldEqual, Exited)
			}
			So(o.Fatal(), ShouldBeEmpty)

			Convey("The output ends up in the log", func() {
				recs, _ := o.GetLog(0)
				text := []string{}
				for _, rec := range recs {
					text = append(text, rec.Text)
				}
				So(strings.Join(text, "\n"), ShouldContainSubstring,
					"[once[3]] Running -> Exited")
			})
		}))

	Convey("Waiting gives up when the context ends", t,
		WithOrchestrator(t, priorityConfig, func(o *Orchestrator, r *recorder) {
			ctx, cancel := timeout()
			defer cancel()
			So(o.StartAll(ctx), ShouldBeNil)
			wctx, wcancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			defer wcancel()
			So(o.Wait(wctx), ShouldEqual, context.DeadlineExceeded)
		}))
}

func TestOrchestratorKill(t *testing.T) {
	Convey("Given a program that ignores its stop signal", t,
		WithOrchestrator(t, `
[programs.stubborn]
command = ["/bin/sh", "-c", "trap '' TERM; while :; do sleep 1; done"]
stop_time = "1m"
kill_as_group = true
`, func(o *Orchestrator, r *recorder) {
			ctx, cancel := timeout()
			defer cancel()
			So(o.StartAll(ctx), ShouldBeNil)
			time.Sleep(200 * time.Millisecond)

			Convey("A cancelled stop escalates to a kill", func() {
				kctx, kcancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
				defer kcancel()
				start := time.Now()
				o.StopAll(kctx)
				So(time.Since(start), ShouldBeLessThan, 5*time.Second)
				So(o.Find("stubborn").Status().State, ShouldEqual, Stopped)
			})
		}))
}

func TestOrchestratorRun(t *testing.T) {
	Convey("Run stops everything when its context ends", t,
		WithOrchestrator(t, priorityConfig, func(o *Orchestrator, r *recorder) {
			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan struct{})
			go func() {
				o.Run(ctx, context.Background())
				close(done)
			}()
			So(waitFor(5*time.Second, func() bool {
				return o.Find("echo").Status().State == Running
			}), ShouldBeTrue)
			cancel()
			select {
			case <-done:
			case <-time.After(10 * time.Second):
			}
			So(o.Find("echo").Status().State, ShouldEqual, Stopped)
			So(o.Find("foo").Status().State, ShouldEqual, Stopped)
		}))
}
