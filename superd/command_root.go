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

package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/nightlyone/lockfile"
	"github.com/spf13/cobra"

	"github.com/govisor/super"
	"github.com/govisor/super/rest"
)

type runOptions struct {
	config  string
	name    string
	listen  string
	pidfile string
}

func newRootCmd() *cobra.Command {
	opts := &runOptions{}
	root := &cobra.Command{
		Use:           "super",
		Short:         "A process supervisor for containers",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts)
		},
	}
	root.Flags().StringVarP(&opts.config, "config", "c", "", "configuration file")
	root.Flags().StringVarP(&opts.name, "name", "n", "super", "supervisor name")
	root.Flags().StringVarP(&opts.listen, "listen", "a", "", "serve read-only status on this address")
	root.Flags().StringVar(&opts.pidfile, "pidfile", "", "refuse to run if this pid file is locked")
	root.MarkFlagRequired("config")

	root.AddCommand(newCheckCmd())
	root.AddCommand(newStatusCmd())
	return root
}

func lockPidFile(path string) (lockfile.Lockfile, error) {
	abs, e := filepath.Abs(path)
	if e != nil {
		return "", e
	}
	lock, e := lockfile.New(abs)
	if e != nil {
		return "", e
	}
	if e := lock.TryLock(); e != nil {
		return "", fmt.Errorf("cannot lock %s: %w", abs, e)
	}
	return lock, nil
}

func run(ctx context.Context, opts *runOptions) error {
	// Configuration problems are fatal before anything starts.
	cfg, e := super.LoadConfig(opts.config)
	if e != nil {
		return e
	}

	if opts.pidfile != "" {
		lock, e := lockPidFile(opts.pidfile)
		if e != nil {
			return e
		}
		defer lock.Unlock()
	}

	o := super.NewOrchestrator(opts.name, cfg)

	if opts.listen != "" {
		ln, e := net.Listen("tcp", opts.listen)
		if e != nil {
			return e
		}
		srv := &http.Server{Handler: rest.NewHandler(o)}
		go func() {
			if e := srv.Serve(ln); e != http.ErrServerClosed {
				log.Printf("Status server failed: %v", e)
			}
		}()
		defer srv.Close()
	}

	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)

	ctx, shutdown := context.WithCancel(ctx)
	defer shutdown()
	killCtx, kill := context.WithCancel(context.Background())
	defer kill()

	// The first signal shuts down gracefully, the second kills.
	go func() {
		for n := 0; ; n++ {
			select {
			case sig := <-sigs:
				if n == 0 {
					log.Printf("Received %v, shutting down", sig)
					shutdown()
				} else {
					log.Printf("Received %v, killing", sig)
					kill()
					return
				}
			case <-killCtx.Done():
				return
			}
		}
	}()

	o.Run(ctx, killCtx)

	if ctx.Err() == nil {
		if failed := o.Fatal(); len(failed) != 0 {
			return fmt.Errorf("instances failed: %v", failed)
		}
	}
	return nil
}
