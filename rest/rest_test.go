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

package rest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/govisor/super"
)

type testLog struct {
	t *testing.T
}

func (tl *testLog) Write(p []byte) (n int, err error) {
	tl.t.Log(strings.Trim(string(p), "\n"))
	return len(p), nil
}

const testConfig = `
[programs.web]
command = ["/nonexistent/web", "--port", "80"]
num_procs = 2
priority = 5

[programs.db]
command = ["/nonexistent/db"]
`

func WithServer(t *testing.T, fn func(*super.Orchestrator, *Client)) func() {
	return func() {
		cfg, e := super.DecodeConfig(strings.NewReader(testConfig), super.FormatTOML)
		So(e, ShouldBeNil)
		o := super.NewOrchestrator("resttest", cfg)
		o.SetLogWriter(&testLog{t: t})
		srv := httptest.NewServer(NewHandler(o))
		Reset(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			o.StopAll(ctx)
			srv.Close()
		})
		fn(o, NewClient(nil, srv.URL+"/"))
	}
}

func TestRest(t *testing.T) {
	Convey("Given a status server", t, WithServer(t, func(o *super.Orchestrator, c *Client) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		Convey("Info describes the orchestrator", func() {
			info, e := c.Info(ctx)
			So(e, ShouldBeNil)
			So(info.Name, ShouldEqual, "resttest")
			So(info.Serial, ShouldEqual, o.Serial())
		})

		Convey("Instances are listed in start order", func() {
			names, e := c.Instances(ctx)
			So(e, ShouldBeNil)
			So(names, ShouldResemble, []string{"db", "web[1]", "web[2]"})
		})

		Convey("Instances can be looked up by name", func() {
			info, e := c.Instance(ctx, "web[2]")
			So(e, ShouldBeNil)
			So(info.Name, ShouldEqual, "web[2]")
			So(info.Program, ShouldEqual, "web")
			So(info.Instance, ShouldEqual, 2)
			So(info.Priority, ShouldEqual, 5)
			So(info.Command, ShouldResemble, []string{"/nonexistent/web", "--port", "80"})
			So(info.State, ShouldEqual, super.Stopped)
		})

		Convey("Unknown instances are not found", func() {
			_, e := c.Instance(ctx, "nope")
			So(e, ShouldNotBeNil)
			re, ok := e.(*Error)
			So(ok, ShouldBeTrue)
			So(re.Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("Failures show up in the instance state", func() {
			So(o.StartAll(ctx), ShouldBeNil)
			info, e := c.Instance(ctx, "db")
			So(e, ShouldBeNil)
			So(info.State, ShouldEqual, super.Fatal)
			So(info.Detail, ShouldContainSubstring, "Failed to start")

			recs, e := c.Log(ctx)
			So(e, ShouldBeNil)
			So(recs, ShouldNotBeEmpty)
		})

		Convey("An unchanged Etag is not modified", func() {
			_, tag, e := c.WatchInfo(ctx, "", 0)
			So(e, ShouldBeNil)
			So(tag, ShouldNotEqual, "")
			info, tag2, e := c.WatchInfo(ctx, tag, 0)
			So(e, ShouldBeNil)
			So(info, ShouldBeNil)
			So(tag2, ShouldEqual, tag)

			Convey("And a poll returns when something changes", func() {
				go func() {
					time.Sleep(50 * time.Millisecond)
					o.Find("db").Start()
				}()
				start := time.Now()
				info, tag3, e := c.WatchInfo(ctx, tag, 5)
				So(e, ShouldBeNil)
				So(info, ShouldNotBeNil)
				So(tag3, ShouldNotEqual, tag)
				So(time.Since(start), ShouldBeLessThan, 5*time.Second)
			})
		})

		Convey("Only GET is allowed", func() {
			res, e := http.Post(c.base+"/instances", "text/plain", nil)
			So(e, ShouldBeNil)
			res.Body.Close()
			So(res.StatusCode, ShouldEqual, http.StatusMethodNotAllowed)
		})
	}))
}
