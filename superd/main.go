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

// Command super supervises a fixed set of programs, described by a
// configuration file, the way an init system would inside a container.
//
//	super -c <config>           run the programs until SIGINT or SIGTERM
//	super check -c <config>     validate and print the configuration
//	super status [<instance>]   show the state of a running supervisor
//
// A second SIGINT or SIGTERM during shutdown kills whatever is left.
package main

import (
	"fmt"
	"os"
)

func main() {
	root := newRootCmd()

	if e := root.Execute(); e != nil {
		fmt.Fprintln(os.Stderr, e)
		os.Exit(1)
	}
}
