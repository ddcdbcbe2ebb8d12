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

//go:build unix

package super

import (
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

const (
	sigTerm = Signal(unix.SIGTERM)
	sigKill = Signal(unix.SIGKILL)
)

func signalNum(name string) syscall.Signal {
	return unix.SignalNum(name)
}

func signalName(sig syscall.Signal) string {
	return unix.SignalName(sig)
}

// Every instance leads its own process group, so that group signals reach
// its descendants and nobody else.
func procAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}

func signalProcess(p *os.Process, sig Signal, group bool) error {
	if group {
		return unix.Kill(-p.Pid, syscall.Signal(sig))
	}
	return unix.Kill(p.Pid, syscall.Signal(sig))
}
