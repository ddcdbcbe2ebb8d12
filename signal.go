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
	"fmt"
	"strconv"
	"strings"
	"syscall"
)

// Signal is a signal identifier as found in program definitions.  In
// configuration files it may be written as a number, or by name with or
// without the SIG prefix.
type Signal syscall.Signal

// ParseSignal resolves a signal number or name.  Numbers must name a
// signal this platform knows.
func ParseSignal(s string) (Signal, error) {
	s = strings.TrimSpace(s)
	if n, e := strconv.Atoi(s); e == nil {
		if n <= 0 || signalName(syscall.Signal(n)) == "" {
			return 0, fmt.Errorf("%w: %d", ErrBadSignal, n)
		}
		return Signal(n), nil
	}
	name := strings.ToUpper(s)
	if !strings.HasPrefix(name, "SIG") {
		name = "SIG" + name
	}
	if sig := signalNum(name); sig != 0 {
		return Signal(sig), nil
	}
	return 0, fmt.Errorf("%w: %s", ErrBadSignal, s)
}

func (s Signal) String() string {
	if name := signalName(syscall.Signal(s)); name != "" {
		return name
	}
	return strconv.Itoa(int(s))
}

func (s Signal) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Signal) UnmarshalText(b []byte) error {
	v, e := ParseSignal(string(b))
	if e != nil {
		return e
	}
	*s = v
	return nil
}
