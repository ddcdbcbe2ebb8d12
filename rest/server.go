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
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/govisor/super"
)

// Handler wraps an Orchestrator, adding http.Handler functionality.
type Handler struct {
	o *super.Orchestrator
	r *mux.Router
}

func (h *Handler) internalError(w http.ResponseWriter, e error) {
	http.Error(w, e.Error(), http.StatusInternalServerError)
}

func (h *Handler) writeJson(w http.ResponseWriter, tag string, v interface{}) {
	if b, e := json.Marshal(v); e != nil {
		h.internalError(w, e)
	} else {
		w.Header().Set("Content-Type", mimeJson)
		w.Header().Set("Etag", tag)
		w.Write(b)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, e *Error) {
	if b, err := json.Marshal(e); err != nil {
		h.internalError(w, err)
	} else {
		w.Header().Set("Content-Type", mimeJson)
		w.WriteHeader(e.Code)
		w.Write(b)
	}
}

// poll handles conditional and long-poll requests.  It returns true if
// the response has been written (304), otherwise the caller should write
// the current value.  watch waits for a change from the given id.
func (h *Handler) poll(w http.ResponseWriter, r *http.Request, cur int64,
	watch func(context.Context, int64) int64) (int64, bool) {

	match := r.Header.Get("If-None-Match")
	if match == "" || match != etag(cur) {
		return cur, false
	}
	if r.Header.Get(PollEtagHeader) == match {
		secs, _ := strconv.Atoi(r.Header.Get(PollTimeHeader))
		wait := time.Duration(secs) * time.Second
		if wait > maxPollTime {
			wait = maxPollTime
		}
		if wait > 0 {
			ctx, cancel := context.WithTimeout(r.Context(), wait)
			cur = watch(ctx, cur)
			cancel()
		}
	}
	if match == etag(cur) {
		w.Header().Set("Etag", match)
		w.WriteHeader(http.StatusNotModified)
		return cur, true
	}
	return cur, false
}

func (h *Handler) getInfo(w http.ResponseWriter, r *http.Request) {
	if _, done := h.poll(w, r, h.o.Serial(), h.o.WatchSerial); done {
		return
	}
	info := h.o.GetInfo()
	h.writeJson(w, etag(info.Serial), info)
}

func (h *Handler) listInstances(w http.ResponseWriter, r *http.Request) {
	// The set of instances never changes, but the info carries the
	// serial, so use it to let clients cache consistently.
	serial, done := h.poll(w, r, h.o.Serial(), h.o.WatchSerial)
	if done {
		return
	}
	svcs := h.o.Supervisors()
	l := make([]string, 0, len(svcs))
	for _, s := range svcs {
		l = append(l, s.ID().String())
	}
	h.writeJson(w, etag(serial), l)
}

func instanceInfo(s *super.Supervisor) *InstanceInfo {
	st := s.Status()
	p := s.Program()
	return &InstanceInfo{
		Name:     s.ID().String(),
		Program:  s.ID().Name,
		Instance: s.ID().Instance,
		Priority: p.Priority,
		Command:  append([]string{}, p.Command...),
		State:    st.State,
		Pid:      st.Pid,
		Retries:  st.Retries,
		Since:    st.Since,
		Detail:   st.Detail,
	}
}

func (h *Handler) getInstance(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["instance"]
	s := h.o.Find(name)
	if s == nil {
		h.writeError(w, &Error{http.StatusNotFound, "Instance not found"})
		return
	}
	serial, done := h.poll(w, r, h.o.Serial(), h.o.WatchSerial)
	if done {
		return
	}
	h.writeJson(w, etag(serial), instanceInfo(s))
}

func (h *Handler) getLog(w http.ResponseWriter, r *http.Request) {
	_, cur := h.o.GetLog(0)
	if _, done := h.poll(w, r, cur, h.o.WatchLog); done {
		return
	}
	recs, id := h.o.GetLog(0)
	if recs == nil {
		recs = []super.LogRecord{}
	}
	h.writeJson(w, etag(id), recs)
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	h.r.ServeHTTP(w, req)
}

func NewHandler(o *super.Orchestrator) *Handler {
	r := mux.NewRouter()
	h := &Handler{o: o, r: r}
	r.HandleFunc("/", h.getInfo).Methods("GET")
	r.HandleFunc("/instances", h.listInstances).Methods("GET")
	r.HandleFunc("/instances/{instance}", h.getInstance).Methods("GET")
	r.HandleFunc("/log", h.getLog).Methods("GET")
	return h
}
