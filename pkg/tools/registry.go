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
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/teradata-labs/weft/pkg/llm"
)

// DefinitionSource loads the tool catalog from wherever it lives
// (database table, static config, test fixture).
type DefinitionSource interface {
	LoadDefinitions(ctx context.Context) ([]ToolDefinition, error)
}

// StaticSource is a fixed in-memory catalog. Used in tests and for the
// built-in local toolset.
type StaticSource []ToolDefinition

// LoadDefinitions returns the static catalog.
func (s StaticSource) LoadDefinitions(ctx context.Context) ([]ToolDefinition, error) {
	return s, nil
}

// MultiSource concatenates catalogs from several sources; earlier
// sources win on name collisions.
type MultiSource []DefinitionSource

// LoadDefinitions loads and concatenates all member catalogs.
func (m MultiSource) LoadDefinitions(ctx context.Context) ([]ToolDefinition, error) {
	var out []ToolDefinition
	for _, src := range m {
		defs, err := src.LoadDefinitions(ctx)
		if err != nil {
			return nil, err
		}
		out = append(out, defs...)
	}
	return out, nil
}

// Registry holds the current tool catalog behind an atomically swapped
// immutable snapshot. In-flight agent loops pin the snapshot they
// started with; Reload never affects them.
type Registry struct {
	source   DefinitionSource
	snapshot atomic.Pointer[Snapshot]
}

// NewRegistry creates a registry over the given source and performs the
// initial load.
func NewRegistry(ctx context.Context, source DefinitionSource) (*Registry, error) {
	r := &Registry{source: source}
	if err := r.Reload(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload builds a fresh snapshot from the source and swaps it in.
// On failure the previous snapshot stays active.
func (r *Registry) Reload(ctx context.Context) error {
	defs, err := r.source.LoadDefinitions(ctx)
	if err != nil {
		return fmt.Errorf("failed to load tool definitions: %w", err)
	}
	r.snapshot.Store(newSnapshot(defs))
	return nil
}

// Snapshot returns the current immutable catalog view.
func (r *Registry) Snapshot() *Snapshot {
	return r.snapshot.Load()
}

// Snapshot is an immutable view of the tool catalog. Safe for
// concurrent use; never mutated after construction.
type Snapshot struct {
	byName  map[string]ToolDefinition
	ordered []ToolDefinition
}

func newSnapshot(defs []ToolDefinition) *Snapshot {
	s := &Snapshot{
		byName:  make(map[string]ToolDefinition, len(defs)),
		ordered: make([]ToolDefinition, 0, len(defs)),
	}
	for _, def := range defs {
		if _, dup := s.byName[def.Name]; dup {
			continue // first definition wins
		}
		s.byName[def.Name] = def
		s.ordered = append(s.ordered, def)
	}
	sort.Slice(s.ordered, func(i, j int) bool {
		return s.ordered[i].Name < s.ordered[j].Name
	})
	return s
}

// Get returns the named definition.
func (s *Snapshot) Get(name string) (ToolDefinition, bool) {
	def, ok := s.byName[name]
	return def, ok
}

// All returns every definition, sorted by name. The slice is a copy.
func (s *Snapshot) All() []ToolDefinition {
	out := make([]ToolDefinition, len(s.ordered))
	copy(out, s.ordered)
	return out
}

// Len returns the catalog size.
func (s *Snapshot) Len() int {
	return len(s.ordered)
}

// Subset returns the definitions for the given names, preserving
// catalog order. Unknown names are ignored.
func (s *Snapshot) Subset(names []string) []ToolDefinition {
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	var out []ToolDefinition
	for _, def := range s.ordered {
		if want[def.Name] {
			out = append(out, def)
		}
	}
	return out
}

// Specs converts definitions to the model-facing tool format.
func Specs(defs []ToolDefinition) []llm.ToolSpec {
	out := make([]llm.ToolSpec, 0, len(defs))
	for _, def := range defs {
		out = append(out, llm.ToolSpec{
			Name:        def.Name,
			Description: def.Description,
			InputSchema: def.InputSchema,
		})
	}
	return out
}
