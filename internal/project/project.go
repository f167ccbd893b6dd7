// Copyright 2025 go-tlang Authors
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

// Package project locates the go-tlang source tree, whose headers directory
// every generated kernel is compiled against.
package project

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"golang.org/x/mod/modfile"
)

// ModulePath is the module the project root declares in its go.mod.
const ModulePath = "github.com/ajroetker/go-tlang"

// EnvRoot overrides root discovery when set.
const EnvRoot = "TLANG_PROJECT"

// RuntimeHeader is the header every generated kernel includes, relative to
// the header directory.
const RuntimeHeader = "common.h"

var errNotFound = errors.New("go-tlang project root not found")

// Root returns the project root. TLANG_PROJECT wins when set; otherwise the
// directories from start upward are searched for the go.mod of ModulePath,
// and last the source location of this package is used.
func Root(start string) (string, error) {
	if dir := os.Getenv(EnvRoot); dir != "" {
		if err := checkHeaders(dir); err != nil {
			return "", fmt.Errorf("%s=%s: %w", EnvRoot, dir, err)
		}
		return filepath.Abs(dir)
	}
	if start != "" {
		if dir, err := findModuleRoot(start); err == nil {
			return dir, nil
		}
	}
	if _, file, _, ok := runtime.Caller(0); ok {
		dir := filepath.Join(filepath.Dir(file), "..", "..")
		if checkHeaders(dir) == nil {
			return filepath.Clean(dir), nil
		}
	}
	return "", errNotFound
}

// HeaderDir returns the include directory below root.
func HeaderDir(root string) string {
	return filepath.Join(root, "headers")
}

// findModuleRoot walks up from dir to the go.mod declaring ModulePath.
func findModuleRoot(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	for {
		path, err := modulePath(filepath.Join(dir, "go.mod"))
		if err == nil && path == ModulePath && checkHeaders(dir) == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errNotFound
		}
		dir = parent
	}
}

func modulePath(gomod string) (string, error) {
	data, err := os.ReadFile(gomod)
	if err != nil {
		return "", err
	}
	f, err := modfile.ParseLax(gomod, data, nil)
	if err != nil {
		return "", fmt.Errorf("parse %s: %w", gomod, err)
	}
	if f.Module == nil {
		return "", fmt.Errorf("%s: no module directive", gomod)
	}
	return f.Module.Mod.Path, nil
}

func checkHeaders(root string) error {
	_, err := os.Stat(filepath.Join(HeaderDir(root), RuntimeHeader))
	return err
}
