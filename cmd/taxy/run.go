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

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/taxygo/taxy/internal/accounts"
	"github.com/taxygo/taxy/internal/adminapi"
	"github.com/taxygo/taxy/internal/control"
	"github.com/taxygo/taxy/internal/storage"
)

const defaultAdminAddr = "127.0.0.1:46492"

func newStartCommand(logger *zap.Logger) *cobra.Command {
	var (
		configDir string
		adminAddr string
		noAdmin   bool
	)

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStart(cmd.Context(), logger, configDir, adminAddr, noAdmin)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&configDir, "config-dir", "c", "", "directory holding taxy's configuration (default: OS config dir)")
	flags.StringVarP(&adminAddr, "listen", "l", defaultAdminAddr, "address the admin API listens on")
	flags.BoolVarP(&noAdmin, "no-admin", "n", false, "disable the admin API entirely")

	return cmd
}

func runStart(ctx context.Context, logger *zap.Logger, configDir, adminAddr string, noAdmin bool) error {
	dir, err := resolveConfigDir(configDir)
	if err != nil {
		return err
	}
	logger.Info("starting taxy", zap.String("config_dir", dir))

	store := storage.NewFileStorage(dir)
	state, err := control.New(store, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize control state: %w", err)
	}
	accountMgr := accounts.NewManager(store)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loopCtx, cancelLoop := context.WithCancel(context.Background())
	defer cancelLoop()
	go state.Run(loopCtx)

	if noAdmin {
		logger.Info("admin API disabled, running until interrupted")
		<-ctx.Done()
		return nil
	}

	handler := adminapi.NewRouter(state, accountMgr, logger)
	server := &http.Server{
		Addr:    adminAddr,
		Handler: handler,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("admin API listening", zap.String("addr", adminAddr))
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("admin API failed: %w", err)
		}
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("admin API did not shut down cleanly", zap.Error(err))
	}

	return nil
}
