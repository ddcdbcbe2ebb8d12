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
	"math"
	"strconv"
	"time"
)

// Duration is a time span that reads and writes the compact configuration
// form, a run of <digits><unit> pairs such as "1w2d3h4m5s".  Units may
// repeat and appear in any order; they simply accumulate.
type Duration time.Duration

var durationUnits = map[rune]int64{
	'w': 7 * 24 * 60 * 60,
	'd': 24 * 60 * 60,
	'h': 60 * 60,
	'm': 60,
	's': 1,
}

// ParseDuration parses the compact duration grammar.  The empty string is
// a zero duration.  A character that is neither a digit nor a unit letter
// yields a *DurationError naming it.  Trailing digits without a unit are
// ignored, as they never reach a unit to be scaled by.
func ParseDuration(s string) (Duration, error) {
	var total, compound int64
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9':
			if compound > (math.MaxInt64-int64(c-'0'))/10 {
				return 0, ErrDurationRange
			}
			compound = compound*10 + int64(c-'0')
		case durationUnits[c] != 0:
			unit := durationUnits[c]
			if compound > maxSeconds/unit ||
				total > maxSeconds-compound*unit {
				return 0, ErrDurationRange
			}
			total += compound * unit
			compound = 0
		default:
			return 0, &DurationError{Text: s, Char: c}
		}
	}
	return Duration(time.Duration(total) * time.Second), nil
}

const maxSeconds = int64(math.MaxInt64 / int64(time.Second))

// Seconds returns the whole number of seconds, discarding any fraction.
func (d Duration) Seconds() int64 {
	return int64(time.Duration(d) / time.Second)
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// String always renders whole seconds, e.g. "90s".  Sub-second precision
// is dropped.
func (d Duration) String() string {
	return strconv.FormatInt(d.Seconds(), 10) + "s"
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, e := ParseDuration(string(b))
	if e != nil {
		return e
	}
	*d = v
	return nil
}
