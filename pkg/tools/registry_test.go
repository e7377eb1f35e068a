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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakySource fails until armed.
type flakySource struct {
	defs []ToolDefinition
	fail bool
}

func (f *flakySource) LoadDefinitions(ctx context.Context) ([]ToolDefinition, error) {
	if f.fail {
		return nil, fmt.Errorf("catalog backend unavailable")
	}
	return f.defs, nil
}

func def(name string) ToolDefinition {
	return ToolDefinition{Name: name, Binding: Binding{Type: BindingLocal, LocalTag: name}}
}

func TestRegistryInitialLoad(t *testing.T) {
	r, err := NewRegistry(context.Background(), StaticSource{def("b"), def("a")})
	require.NoError(t, err)

	snap := r.Snapshot()
	assert.Equal(t, 2, snap.Len())

	// All is sorted by name.
	all := snap.All()
	assert.Equal(t, "a", all[0].Name)
	assert.Equal(t, "b", all[1].Name)
}

func TestRegistryInitialLoadFailure(t *testing.T) {
	_, err := NewRegistry(context.Background(), &flakySource{fail: true})
	assert.Error(t, err)
}

func TestRegistrySnapshotSurvivesReload(t *testing.T) {
	src := &flakySource{defs: []ToolDefinition{def("a")}}
	r, err := NewRegistry(context.Background(), src)
	require.NoError(t, err)

	// A loop in flight pins this snapshot.
	pinned := r.Snapshot()

	src.defs = []ToolDefinition{def("a"), def("b")}
	require.NoError(t, r.Reload(context.Background()))

	assert.Equal(t, 1, pinned.Len(), "pinned snapshot must not change")
	assert.Equal(t, 2, r.Snapshot().Len())
}

func TestRegistryReloadFailureKeepsPrevious(t *testing.T) {
	src := &flakySource{defs: []ToolDefinition{def("a")}}
	r, err := NewRegistry(context.Background(), src)
	require.NoError(t, err)

	src.fail = true
	assert.Error(t, r.Reload(context.Background()))
	assert.Equal(t, 1, r.Snapshot().Len(), "previous catalog stays active")
}

func TestSnapshotGet(t *testing.T) {
	snap := newSnapshot([]ToolDefinition{def("a")})

	got, ok := snap.Get("a")
	require.True(t, ok)
	assert.Equal(t, "a", got.Name)

	_, ok = snap.Get("missing")
	assert.False(t, ok)
}

func TestSnapshotSubset(t *testing.T) {
	snap := newSnapshot([]ToolDefinition{def("a"), def("b"), def("c")})

	subset := snap.Subset([]string{"c", "a", "nope"})
	require.Len(t, subset, 2)
	// Catalog order, not request order; unknown names ignored.
	assert.Equal(t, "a", subset[0].Name)
	assert.Equal(t, "c", subset[1].Name)

	assert.Empty(t, snap.Subset(nil))
}

func TestSnapshotAllReturnsCopy(t *testing.T) {
	snap := newSnapshot([]ToolDefinition{def("a"), def("b")})

	all := snap.All()
	all[0].Name = "mutated"

	fresh := snap.All()
	assert.Equal(t, "a", fresh[0].Name)
}

func TestMultiSourceFirstWins(t *testing.T) {
	primary := StaticSource{{Name: "x", Description: "primary"}}
	fallback := StaticSource{{Name: "x", Description: "fallback"}, {Name: "y"}}

	r, err := NewRegistry(context.Background(), MultiSource{primary, fallback})
	require.NoError(t, err)

	snap := r.Snapshot()
	assert.Equal(t, 2, snap.Len())
	got, ok := snap.Get("x")
	require.True(t, ok)
	assert.Equal(t, "primary", got.Description)
}

func TestSpecs(t *testing.T) {
	defs := []ToolDefinition{
		{Name: "a", Description: "first", InputSchema: []byte(`{"type":"object"}`)},
	}
	specs := Specs(defs)
	require.Len(t, specs, 1)
	assert.Equal(t, "a", specs[0].Name)
	assert.Equal(t, "first", specs[0].Description)
	assert.JSONEq(t, `{"type":"object"}`, string(specs[0].InputSchema))
}
