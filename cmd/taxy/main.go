// Copyright The taxy Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command taxy runs the reverse proxy gateway and its administration API.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"
	"go.uber.org/zap"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync() //nolint:errcheck

	undo, err := maxprocs.Set(maxprocs.Logger(logger.Sugar().Infof))
	defer undo()
	if err != nil {
		logger.Warn("failed to set GOMAXPROCS", zap.Error(err))
	}

	root := newRootCommand(logger)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand(logger *zap.Logger) *cobra.Command {
	root := &cobra.Command{
		Use:   "taxy",
		Short: "A reverse proxy gateway",
		Long: `taxy is a reverse proxy gateway with automatic certificate management
and a web-based administration console.

Use "taxy start" to run the gateway in the foreground, and
"taxy add-account" to provision an administrator login before the
console is reachable.`,
		SilenceUsage: true,
	}
	root.AddCommand(newStartCommand(logger))
	root.AddCommand(newAddAccountCommand(logger))
	return root
}
