// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package decomposer

import (
	"testing"

	"github.com/stretchr/testify/require"

	"open-swarm/pkg/types"
)

func categories(tasks []types.Task) map[types.Category]bool {
	seen := make(map[types.Category]bool)
	for _, t := range tasks {
		seen[t.Category] = true
	}
	return seen
}

func TestDecomposeJapaneseLoginObjective(t *testing.T) {
	d := New()
	result, err := d.Decompose("Webアプリのログイン機能を作成する", Options{SessionID: "s1"})
	require.NoError(t, err)
	require.NotEmpty(t, result.Tasks)

	cats := categories(result.Tasks)
	require.True(t, cats[types.CategoryDesign])
	require.True(t, cats[types.CategoryImplement])
	require.True(t, cats[types.CategoryTest])

	validation := ValidateDependencies(result.Tasks)
	require.True(t, validation.Valid)
	require.Empty(t, validation.Errors)
}

func TestDecomposeIdsUniqueAcrossTwoCalls(t *testing.T) {
	d := New()
	r1, err := d.Decompose("build a login page", Options{SessionID: "s1"})
	require.NoError(t, err)
	r2, err := d.Decompose("build a login page", Options{SessionID: "s2"})
	require.NoError(t, err)

	seen := make(map[string]bool)
	for _, task := range append(append([]types.Task{}, r1.Tasks...), r2.Tasks...) {
		require.False(t, seen[task.ID], "duplicate id across sessions: %s", task.ID)
		seen[task.ID] = true
	}
}

func TestDecomposeGenericFallback(t *testing.T) {
	d := New()
	result, err := d.Decompose("migrate the billing pipeline to a new provider", Options{SessionID: "s1"})
	require.NoError(t, err)
	require.Len(t, result.Tasks, 3)
	require.Equal(t, "generic", result.Metadata["template"])
}

func TestDecomposePaginationAndProfileTemplates(t *testing.T) {
	d := New()
	pagination, err := d.Decompose("add pagination to the search results", Options{SessionID: "s1"})
	require.NoError(t, err)
	require.Equal(t, "pagination", pagination.Metadata["template"])

	profile, err := d.Decompose("プロフィール編集画面を作る", Options{SessionID: "s2"})
	require.NoError(t, err)
	require.Equal(t, "profile", profile.Metadata["template"])
}

func TestDecomposeRequiresSessionID(t *testing.T) {
	d := New()
	_, err := d.Decompose("login", Options{})
	require.Error(t, err)
}

func TestDecomposeUseAPINotImplemented(t *testing.T) {
	d := New()
	_, err := d.Decompose("login", Options{SessionID: "s1", UseAPI: true})
	require.Error(t, err)
}

func TestDecomposeEmitsLifecycleEvents(t *testing.T) {
	d := New()
	var kinds []string
	d.Events().Subscribe(func(e types.DecomposeEvent) { kinds = append(kinds, e.Kind) })

	_, err := d.Decompose("login", Options{SessionID: "s1"})
	require.NoError(t, err)
	require.Equal(t, []string{"start", "progress", "complete"}, kinds)
}

func TestValidateDependenciesRejectsDanglingAndCycle(t *testing.T) {
	dangling := ValidateDependencies([]types.Task{
		{ID: "a", Dependencies: []string{"ghost"}},
	})
	require.False(t, dangling.Valid)
	require.Len(t, dangling.Errors, 1)
	require.Contains(t, dangling.Errors[0], "ghost")

	cyclic := ValidateDependencies([]types.Task{
		{ID: "a", Dependencies: []string{"b"}},
		{ID: "b", Dependencies: []string{"a"}},
	})
	require.False(t, cyclic.Valid)
	require.Len(t, cyclic.Errors, 1)
	require.Contains(t, cyclic.Errors[0], "cycle")
}

func TestValidateDependenciesAccumulatesMultipleErrors(t *testing.T) {
	result := ValidateDependencies([]types.Task{
		{ID: "a", Dependencies: []string{"a", "ghost"}},
	})
	require.False(t, result.Valid)
	require.Len(t, result.Errors, 2)
}

func TestValidateDependenciesWarnsOnIsolatedTask(t *testing.T) {
	result := ValidateDependencies([]types.Task{
		{ID: "a", Dependencies: []string{"b"}},
		{ID: "b"},
		{ID: "c"},
	})
	require.True(t, result.Valid)
	require.Len(t, result.Warnings, 1)
	require.Contains(t, result.Warnings[0], `"c"`)
}

func TestTopologicalSortAndParallelGroups(t *testing.T) {
	d := New()
	result, err := d.Decompose("login", Options{SessionID: "s1"})
	require.NoError(t, err)

	order := TopologicalSort(result.Tasks)
	require.Len(t, order, len(result.Tasks))

	groups := GetParallelGroups(result.Tasks)
	require.NotEmpty(t, groups)
	total := 0
	for _, g := range groups {
		total += len(g)
	}
	require.Equal(t, len(result.Tasks), total)
}
