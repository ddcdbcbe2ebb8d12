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
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/govisor/super/rest"
)

func newStatusCmd() *cobra.Command {
	addr := "http://127.0.0.1:8321"
	cmd := &cobra.Command{
		Use:   "status [<instance> ...]",
		Short: "Show the state of instances of a running supervisor",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			return showStatus(ctx, cmd.OutOrStdout(), rest.NewClient(nil, addr), args)
		},
	}
	cmd.Flags().StringVarP(&addr, "address", "a", addr, "status server URL")
	return cmd
}

func showStatus(ctx context.Context, out io.Writer, c *rest.Client, names []string) error {
	if len(names) == 0 {
		var e error
		if names, e = c.Instances(ctx); e != nil {
			return e
		}
	}
	w := tabwriter.NewWriter(out, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "INSTANCE\tSTATE\tPID\tSINCE\tDETAIL")
	for _, name := range names {
		info, e := c.Instance(ctx, name)
		if e != nil {
			return fmt.Errorf("%s: %w", name, e)
		}
		pid := "-"
		if info.Pid != 0 {
			pid = fmt.Sprint(info.Pid)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", info.Name, info.State, pid,
			info.Since.Format(time.RFC3339), info.Detail)
	}
	return w.Flush()
}
