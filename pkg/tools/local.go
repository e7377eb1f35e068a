// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package tools

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// LocalHandler is an in-process tool implementation dispatched by tag.
type LocalHandler func(ctx context.Context, args map[string]interface{}, storeID string) (interface{}, error)

// BuiltinHandlers returns the default local handler table.
func BuiltinHandlers() map[string]LocalHandler {
	return map[string]LocalHandler{
		"read_file":     readFileHandler,
		"write_file":    writeFileHandler,
		"list_dir":      listDirHandler,
		"shell_execute": shellExecuteHandler,
		"search":        searchHandler,
	}
}

func stringArg(args map[string]interface{}, name string) (string, error) {
	v, ok := args[name]
	if !ok {
		return "", fmt.Errorf("missing required argument %q", name)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("argument %q must be a string", name)
	}
	return s, nil
}

func readFileHandler(ctx context.Context, args map[string]interface{}, storeID string) (interface{}, error) {
	path, err := stringArg(args, "path")
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return string(data), nil
}

func writeFileHandler(ctx context.Context, args map[string]interface{}, storeID string) (interface{}, error) {
	path, err := stringArg(args, "path")
	if err != nil {
		return nil, err
	}
	content, err := stringArg(args, "content")
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create parent directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", path, err)
	}
	return map[string]interface{}{"path": path, "bytes_written": len(content)}, nil
}

func listDirHandler(ctx context.Context, args map[string]interface{}, storeID string) (interface{}, error) {
	path, err := stringArg(args, "path")
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", path, err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	return names, nil
}

func shellExecuteHandler(ctx context.Context, args map[string]interface{}, storeID string) (interface{}, error) {
	command, err := stringArg(args, "command")
	if err != nil {
		return nil, err
	}
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	output, err := cmd.CombinedOutput()
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("failed to run command: %w", err)
		}
		// Non-zero exit is still a result the model can act on.
	}
	return map[string]interface{}{
		"output":    string(output),
		"exit_code": cmd.ProcessState.ExitCode(),
	}, nil
}

func searchHandler(ctx context.Context, args map[string]interface{}, storeID string) (interface{}, error) {
	root, err := stringArg(args, "path")
	if err != nil {
		return nil, err
	}
	pattern, err := stringArg(args, "pattern")
	if err != nil {
		return nil, err
	}

	const maxMatches = 200
	var matches []map[string]interface{}
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		for i, line := range strings.Split(string(data), "\n") {
			if strings.Contains(line, pattern) {
				matches = append(matches, map[string]interface{}{
					"file": path,
					"line": i + 1,
					"text": strings.TrimSpace(line),
				})
				if len(matches) >= maxMatches {
					return filepath.SkipAll
				}
			}
		}
		return nil
	})
	if walkErr != nil && !errors.Is(walkErr, context.Canceled) && !errors.Is(walkErr, context.DeadlineExceeded) {
		return nil, fmt.Errorf("search failed: %w", walkErr)
	}
	return matches, nil
}
