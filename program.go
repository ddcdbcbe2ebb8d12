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
	"slices"
	"strings"
	"time"

	"github.com/google/shlex"
	"gopkg.in/yaml.v3"
)

// DefaultStopTime is how long a program is given to exit after its stop
// signal before it is killed.
const DefaultStopTime = Duration(10 * time.Second)

// AutoRestart selects what happens when a running program exits on its own.
type AutoRestart int

const (
	// OnUnexpected restarts unless the exit code is listed in ExitCodes.
	OnUnexpected AutoRestart = iota
	// Always restarts regardless of the exit code.
	Always
	// OnExpected restarts only if the exit code is listed in ExitCodes.
	OnExpected
	// Never leaves the program exited.
	Never
)

var autoRestartNames = map[AutoRestart]string{
	OnUnexpected: "OnUnexpected",
	Always:       "Always",
	OnExpected:   "OnExpected",
	Never:        "Never",
}

func (a AutoRestart) String() string {
	if name, ok := autoRestartNames[a]; ok {
		return name
	}
	return fmt.Sprintf("AutoRestart(%d)", int(a))
}

// ParseAutoRestart accepts the canonical policy names in any case, with or
// without underscores or dashes, plus a few shorthands.
func ParseAutoRestart(s string) (AutoRestart, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.NewReplacer("_", "", "-", "").Replace(norm)
	switch norm {
	case "onunexpected", "unexpected":
		return OnUnexpected, nil
	case "always", "true":
		return Always, nil
	case "onexpected", "expected":
		return OnExpected, nil
	case "never", "false":
		return Never, nil
	}
	return 0, fmt.Errorf("%w: %s", ErrBadAutoRestart, s)
}

func (a AutoRestart) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *AutoRestart) UnmarshalText(b []byte) error {
	v, e := ParseAutoRestart(string(b))
	if e != nil {
		return e
	}
	*a = v
	return nil
}

// Command is an argv.  Configuration files may give it as a list, or as a
// single string that is split using shell quoting rules.
type Command []string

func (c *Command) split(s string) error {
	args, e := shlex.Split(s)
	if e != nil {
		return e
	}
	*c = args
	return nil
}

func (c *Command) UnmarshalTOML(v interface{}) error {
	switch v := v.(type) {
	case string:
		return c.split(v)
	case []interface{}:
		args := make([]string, 0, len(v))
		for _, a := range v {
			s, ok := a.(string)
			if !ok {
				return fmt.Errorf("command argument %v is not a string", a)
			}
			args = append(args, s)
		}
		*c = args
		return nil
	}
	return fmt.Errorf("command must be a string or a list, not %T", v)
}

func (c *Command) UnmarshalYAML(n *yaml.Node) error {
	switch n.Kind {
	case yaml.ScalarNode:
		return c.split(n.Value)
	case yaml.SequenceNode:
		var args []string
		if e := n.Decode(&args); e != nil {
			return e
		}
		*c = args
		return nil
	}
	return fmt.Errorf("line %d: command must be a string or a list", n.Line)
}

// Program is the validated definition of one program.  It is never
// modified once loaded; every instance of the program gets its own Clone.
type Program struct {
	Command      []string          `toml:"command" yaml:"command" json:"command"`
	NumProcs     int               `toml:"num_procs" yaml:"num_procs" json:"num_procs"`
	Priority     int               `toml:"priority" yaml:"priority" json:"priority"`
	StartTime    Duration          `toml:"start_time" yaml:"start_time" json:"start_time"`
	StartRetries int               `toml:"start_retries" yaml:"start_retries" json:"start_retries"`
	AutoRestart  AutoRestart       `toml:"auto_restart" yaml:"auto_restart" json:"auto_restart"`
	ExitCodes    []int             `toml:"exit_codes,omitempty" yaml:"exit_codes,omitempty" json:"exit_codes,omitempty"`
	StopSignal   Signal            `toml:"stop_signal" yaml:"stop_signal" json:"stop_signal"`
	StopTime     Duration          `toml:"stop_time" yaml:"stop_time" json:"stop_time"`
	StopAsGroup  bool              `toml:"stop_as_group" yaml:"stop_as_group" json:"stop_as_group"`
	KillAsGroup  bool              `toml:"kill_as_group" yaml:"kill_as_group" json:"kill_as_group"`
	Environment  map[string]string `toml:"environment,omitempty" yaml:"environment,omitempty" json:"environment,omitempty"`
	Directory    string            `toml:"directory,omitempty" yaml:"directory,omitempty" json:"directory,omitempty"`
}

// rawProgram is a program as it appears in a file, with absent optional
// fields left nil so that defaults can be told apart from explicit values.
type rawProgram struct {
	Command      Command           `toml:"command" yaml:"command"`
	NumProcs     *int              `toml:"num_procs" yaml:"num_procs"`
	Priority     *int              `toml:"priority" yaml:"priority"`
	StartTime    *Duration         `toml:"start_time" yaml:"start_time"`
	StartRetries *int              `toml:"start_retries" yaml:"start_retries"`
	AutoRestart  *AutoRestart      `toml:"auto_restart" yaml:"auto_restart"`
	ExitCodes    []int             `toml:"exit_codes" yaml:"exit_codes"`
	StopSignal   *Signal           `toml:"stop_signal" yaml:"stop_signal"`
	StopTime     *Duration         `toml:"stop_time" yaml:"stop_time"`
	StopAsGroup  bool              `toml:"stop_as_group" yaml:"stop_as_group"`
	KillAsGroup  bool              `toml:"kill_as_group" yaml:"kill_as_group"`
	Environment  map[string]string `toml:"environment" yaml:"environment"`
	Directory    string            `toml:"directory" yaml:"directory"`
}

// NewProgram returns a definition for the command with every other field
// at its default.
func NewProgram(command ...string) *Program {
	return &Program{
		Command:     append([]string{}, command...),
		NumProcs:    1,
		AutoRestart: OnUnexpected,
		StopSignal:  sigTerm,
		StopTime:    DefaultStopTime,
	}
}

// adopt applies defaults to a parsed record and validates it.
func (r *rawProgram) adopt(name string) (*Program, error) {
	bad := func(field string, e error) error {
		return &ConfigError{Program: name, Field: field, Err: e}
	}
	if len(r.Command) == 0 || r.Command[0] == "" {
		return nil, bad("command", ErrNoCommand)
	}
	p := NewProgram(r.Command...)
	if r.NumProcs != nil {
		if *r.NumProcs < 1 {
			return nil, bad("num_procs", ErrBadNumProcs)
		}
		p.NumProcs = *r.NumProcs
	}
	if r.Priority != nil {
		p.Priority = *r.Priority
	}
	if r.StartTime != nil {
		p.StartTime = *r.StartTime
	}
	if r.StartRetries != nil {
		if *r.StartRetries < 0 {
			return nil, bad("start_retries", ErrBadRetries)
		}
		p.StartRetries = *r.StartRetries
	}
	if r.AutoRestart != nil {
		p.AutoRestart = *r.AutoRestart
	}
	if len(r.ExitCodes) != 0 {
		codes := append([]int{}, r.ExitCodes...)
		slices.Sort(codes)
		p.ExitCodes = slices.Compact(codes)
	}
	if r.StopSignal != nil {
		p.StopSignal = *r.StopSignal
	}
	if r.StopTime != nil {
		p.StopTime = *r.StopTime
	}
	p.StopAsGroup = r.StopAsGroup
	p.KillAsGroup = r.KillAsGroup
	if len(r.Environment) != 0 {
		p.Environment = make(map[string]string, len(r.Environment))
		for k, v := range r.Environment {
			p.Environment[k] = v
		}
	}
	p.Directory = r.Directory
	return p, nil
}

// Clone returns a deep copy.
func (p *Program) Clone() *Program {
	c := *p
	c.Command = append([]string{}, p.Command...)
	if p.ExitCodes != nil {
		c.ExitCodes = append([]int{}, p.ExitCodes...)
	}
	if p.Environment != nil {
		c.Environment = make(map[string]string, len(p.Environment))
		for k, v := range p.Environment {
			c.Environment[k] = v
		}
	}
	return &c
}

// Expected reports whether code is one of the configured exit codes.
func (p *Program) Expected(code int) bool {
	return slices.Contains(p.ExitCodes, code)
}

// Restartable applies the AutoRestart policy to an exit code from a
// program that had started successfully.  The start retry budget is not
// considered here.
func (p *Program) Restartable(code int) bool {
	switch p.AutoRestart {
	case Always:
		return true
	case OnExpected:
		return p.Expected(code)
	case OnUnexpected:
		return !p.Expected(code)
	}
	return false
}
