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
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Format identifies a configuration file syntax.
type Format int

const (
	FormatTOML Format = iota
	FormatYAML
)

// FormatFor guesses the format of a file from its extension.  Anything
// that is not obviously YAML is taken to be TOML.
func FormatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	}
	return FormatTOML
}

// Config is the complete set of programs to supervise, keyed by name.
type Config struct {
	Programs map[string]*Program `toml:"programs" yaml:"programs" json:"programs"`
}

type rawConfig struct {
	Programs map[string]rawProgram `toml:"programs" yaml:"programs"`
}

// LoadConfig reads and validates a configuration file.
func LoadConfig(path string) (*Config, error) {
	f, e := os.Open(path)
	if e != nil {
		return nil, e
	}
	defer f.Close()
	cfg, e := DecodeConfig(f, FormatFor(path))
	if e != nil {
		return nil, fmt.Errorf("%s: %w", path, e)
	}
	return cfg, nil
}

// DecodeConfig parses and validates a configuration.  Every program gets
// the documented defaults for the fields it leaves out.
func DecodeConfig(r io.Reader, f Format) (*Config, error) {
	raw := rawConfig{}
	switch f {
	case FormatTOML:
		if _, e := toml.NewDecoder(r).Decode(&raw); e != nil {
			return nil, e
		}
	case FormatYAML:
		if e := yaml.NewDecoder(r).Decode(&raw); e != nil &&
			!errors.Is(e, io.EOF) {
			return nil, e
		}
	default:
		return nil, ErrBadFormat
	}

	cfg := &Config{Programs: make(map[string]*Program, len(raw.Programs))}
	names := make([]string, 0, len(raw.Programs))
	for name := range raw.Programs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		rp := raw.Programs[name]
		p, e := rp.adopt(name)
		if e != nil {
			return nil, e
		}
		cfg.Programs[name] = p
	}
	return cfg, nil
}

// Encode writes the configuration as TOML, with every default spelled out
// and durations in whole seconds.
func (c *Config) Encode(w io.Writer) error {
	return toml.NewEncoder(w).Encode(c)
}

// Names returns the program names in sorted order.
func (c *Config) Names() []string {
	names := make([]string, 0, len(c.Programs))
	for name := range c.Programs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
