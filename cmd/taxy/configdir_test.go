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
	"os"
	"path/filepath"
	"testing"
)

func TestResolveConfigDirExplicit(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "config")
	got, err := resolveConfigDir(dir)
	if err != nil {
		t.Fatalf("resolveConfigDir: %v", err)
	}
	if got != dir {
		t.Fatalf("expected %s, got %s", dir, got)
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		t.Fatalf("expected directory to be created at %s", dir)
	}
}

func TestResolveConfigDirDefault(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	got, err := resolveConfigDir("")
	if err != nil {
		t.Fatalf("resolveConfigDir: %v", err)
	}
	if filepath.Base(got) != "taxy" {
		t.Fatalf("expected default dir to end in taxy, got %s", got)
	}
}
