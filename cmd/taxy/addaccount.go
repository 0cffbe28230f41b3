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
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/taxygo/taxy/internal/accounts"
	"github.com/taxygo/taxy/internal/storage"
)

func newAddAccountCommand(logger *zap.Logger) *cobra.Command {
	var (
		configDir string
		password  string
		withTotp  bool
	)

	cmd := &cobra.Command{
		Use:   "add-account <username>",
		Short: "Add an administrator account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAddAccount(logger, configDir, args[0], password, withTotp)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&configDir, "config-dir", "c", "", "directory holding taxy's configuration (default: OS config dir)")
	flags.StringVarP(&password, "password", "p", "", "password for the new account (prompted for if omitted)")
	flags.BoolVar(&withTotp, "totp", false, "also provision a TOTP secret for this account")

	return cmd
}

func runAddAccount(logger *zap.Logger, configDir, username, password string, withTotp bool) error {
	dir, err := resolveConfigDir(configDir)
	if err != nil {
		return err
	}

	if password == "" {
		password, err = promptPassword()
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
	}

	store := storage.NewFileStorage(dir)
	mgr := accounts.NewManager(store)
	_, secret, err := mgr.AddAccount(username, password, withTotp)
	if err != nil {
		return fmt.Errorf("failed to add account: %w", err)
	}

	logger.Info("account added", zap.String("username", username), zap.String("config_dir", dir))
	if secret != "" {
		fmt.Printf("TOTP secret for %s: %s\n", username, secret)
	}
	return nil
}

func promptPassword() (string, error) {
	fmt.Fprint(os.Stderr, "password?: ")
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
