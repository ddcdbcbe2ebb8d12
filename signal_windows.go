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

//go:build windows

package super

import (
	"os"
	"syscall"
)

const (
	sigTerm = Signal(syscall.SIGTERM)
	sigKill = Signal(syscall.SIGKILL)
)

var signalNames = map[string]syscall.Signal{
	"SIGHUP":  syscall.SIGHUP,
	"SIGINT":  syscall.SIGINT,
	"SIGKILL": syscall.SIGKILL,
	"SIGQUIT": syscall.SIGQUIT,
	"SIGTERM": syscall.SIGTERM,
}

func signalNum(name string) syscall.Signal {
	return signalNames[name]
}

func signalName(sig syscall.Signal) string {
	for name, s := range signalNames {
		if s == sig {
			return name
		}
	}
	return ""
}

func procAttr() *syscall.SysProcAttr {
	return nil
}

// Windows has neither process groups nor graceful signals; everything
// becomes a kill.
func signalProcess(p *os.Process, sig Signal, group bool) error {
	return p.Kill()
}
