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
	"iter"
	"strconv"
)

// ID names one instance of a program.  Instance is zero for programs that
// run a single process, and numbered from one otherwise.
type ID struct {
	Name     string `json:"name"`
	Instance int    `json:"instance,omitempty"`
}

func (id ID) String() string {
	if id.Instance == 0 {
		return id.Name
	}
	return id.Name + "[" + strconv.Itoa(id.Instance) + "]"
}

// Less orders identities by name, then instance number.
func (id ID) Less(o ID) bool {
	if id.Name != o.Name {
		return id.Name < o.Name
	}
	return id.Instance < o.Instance
}

// Instances yields one (ID, Program) pair per process the program asks
// for.  A single process program yields a bare name; otherwise instances
// are numbered 1..NumProcs in order.  Each pair carries its own copy of
// the definition.  The sequence holds no state, so it can be iterated any
// number of times with the same result.
func Instances(name string, p *Program) iter.Seq2[ID, *Program] {
	return func(yield func(ID, *Program) bool) {
		n := p.NumProcs
		if n < 1 {
			n = 1
		}
		if n == 1 {
			yield(ID{Name: name}, p.Clone())
			return
		}
		for i := 1; i <= n; i++ {
			if !yield(ID{Name: name, Instance: i}, p.Clone()) {
				return
			}
		}
	}
}
