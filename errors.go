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
	"errors"
	"fmt"
)

var (
	ErrNoCommand      = errors.New("Command must not be empty")
	ErrBadNumProcs    = errors.New("Number of processes must be positive")
	ErrBadRetries     = errors.New("Start retries must not be negative")
	ErrBadSignal      = errors.New("Unknown signal")
	ErrBadAutoRestart = errors.New("Unknown auto restart policy")
	ErrBadFormat      = errors.New("Unknown configuration format")
	ErrDurationRange  = errors.New("Duration out of range")
	ErrAlreadyStarted = errors.New("Supervisor is already running")
	ErrKillFailed     = errors.New("Process survived forced kill")
)

// DurationError reports a character in a duration string that is neither
// a digit nor one of the unit letters.
type DurationError struct {
	Text string
	Char rune
}

func (e *DurationError) Error() string {
	return fmt.Sprintf("Unexpected character %q in duration %q",
		e.Char, e.Text)
}

// ConfigError is returned when a program definition fails validation.
type ConfigError struct {
	Program string
	Field   string
	Err     error
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("program %s: %v", e.Program, e.Err)
	}
	return fmt.Sprintf("program %s: %s: %v", e.Program, e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}
