// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

// Package decomposer implements the Task Decomposer (spec §4.1): it
// turns a natural-language objective into a validated, dependency-
// ordered list of tasks via deterministic keyword-template matching.
package decomposer

import (
	"fmt"
	"strings"

	"open-swarm/pkg/aidoserr"
	"open-swarm/pkg/graph"
	"open-swarm/pkg/pubsub"
	"open-swarm/pkg/types"
)

// Options controls one decompose call.
type Options struct {
	// SessionID scopes rewritten task ids. Required.
	SessionID string
	// UseAPI requests an LLM-backed decomposition instead of the
	// deterministic keyword templates. Not implemented: Decompose
	// returns a ConfigError if set, since no decomposition model is
	// wired (only the subprocess agents talk to an assistant).
	UseAPI bool
}

// Decomposition is the result of one decompose call.
type Decomposition struct {
	Tasks     []types.Task
	Reasoning string
	Metadata  map[string]any
}

// Decomposer selects and instantiates a keyword template for an
// objective and validates the result.
type Decomposer struct {
	events *pubsub.Bus[types.DecomposeEvent]
}

// New creates a Decomposer.
func New() *Decomposer {
	return &Decomposer{events: pubsub.New[types.DecomposeEvent]()}
}

// Events returns the bus decompose:{start,progress,complete,error}
// events are published on.
func (d *Decomposer) Events() *pubsub.Bus[types.DecomposeEvent] { return d.events }

// Decompose turns objective into a validated task list. Deterministic:
// the same objective and session id always produce the same tasks in
// the same order.
func (d *Decomposer) Decompose(objective string, opts Options) (Decomposition, error) {
	if opts.SessionID == "" {
		return Decomposition{}, &aidoserr.ValidationError{TaskID: "(none)", Message: "SessionID is required to scope rewritten task ids"}
	}

	d.events.Publish(types.DecomposeEvent{Kind: "start", Objective: objective})

	if opts.UseAPI {
		err := &aidoserr.ConfigError{Field: "UseAPI", Message: "API-backed decomposition is not implemented; set UseAPI=false"}
		d.events.Publish(types.DecomposeEvent{Kind: "error", Objective: objective, Error: err.Error()})
		return Decomposition{}, err
	}

	tmpl := selectTemplate(objective)
	d.events.Publish(types.DecomposeEvent{Kind: "progress", Objective: objective, TaskCount: len(tmpl.Tasks)})

	tasks, err := instantiate(tmpl, opts.SessionID)
	if err != nil {
		d.events.Publish(types.DecomposeEvent{Kind: "error", Objective: objective, Error: err.Error()})
		return Decomposition{}, err
	}

	validation := ValidateDependencies(tasks)
	if !validation.Valid {
		err := &aidoserr.ValidationError{TaskID: "(graph)", Message: strings.Join(validation.Errors, "; ")}
		d.events.Publish(types.DecomposeEvent{Kind: "error", Objective: objective, Error: err.Error()})
		return Decomposition{}, err
	}

	result := Decomposition{
		Tasks:     tasks,
		Reasoning: fmt.Sprintf("matched template %q for objective %q", tmpl.Name, objective),
		Metadata: map[string]any{
			"template":  tmpl.Name,
			"taskCount": len(tasks),
			"warnings":  validation.Warnings,
		},
	}
	d.events.Publish(types.DecomposeEvent{Kind: "complete", Objective: objective, TaskCount: len(tasks)})
	return result, nil
}

func selectTemplate(objective string) decompositionTemplate {
	for _, t := range templates {
		if t.matches(objective) {
			return t
		}
	}
	return genericTemplate
}

// instantiate rewrites a template's placeholder ids to
// "<sessionID>-t<n>" and remaps every intra-template dependency
// reference through the same substitution table.
func instantiate(tmpl decompositionTemplate, sessionID string) ([]types.Task, error) {
	idMap := make(map[string]string, len(tmpl.Tasks))
	for i, tt := range tmpl.Tasks {
		idMap[tt.ID] = fmt.Sprintf("%s-t%d", sessionID, i+1)
	}

	tasks := make([]types.Task, 0, len(tmpl.Tasks))
	for _, tt := range tmpl.Tasks {
		deps := make([]string, 0, len(tt.Dependencies))
		for _, d := range tt.Dependencies {
			rewritten, ok := idMap[d]
			if !ok {
				return nil, &aidoserr.ValidationError{TaskID: tt.ID, Message: fmt.Sprintf("template %q references unknown dependency %q", tmpl.Name, d)}
			}
			deps = append(deps, rewritten)
		}
		tasks = append(tasks, types.Task{
			ID:           idMap[tt.ID],
			Description:  tt.Description,
			Category:     tt.Category,
			Dependencies: deps,
			Priority:     tt.Priority,
			Complexity:   tt.Complexity,
		})
	}
	return tasks, nil
}

// ValidationResult is validateDependencies' §4.1 `{valid, errors[],
// warnings[]}` contract. Errors make the decomposition unusable
// (dangling dependency, cycle); warnings flag shape worth a second
// look (an isolated task) without rejecting the decomposition.
type ValidationResult struct {
	Valid    bool
	Errors   []string
	Warnings []string
}

// ValidateDependencies checks tasks against spec §7's invariant "∀ task
// t, dep d in t.dependencies: d is a task in the same decomposition",
// accumulating every violation instead of stopping at the first one.
// pkg/graph.BuildFromTasks silently drops a dangling or cyclic edge
// (it guarantees an acyclic graph no matter how malformed the input),
// so cycle detection here walks tasks' raw Dependencies directly rather
// than asking the already-repaired graph whether it has one.
func ValidateDependencies(tasks []types.Task) ValidationResult {
	ids := make(map[string]struct{}, len(tasks))
	for _, t := range tasks {
		ids[t.ID] = struct{}{}
	}

	var errs []string
	for _, t := range tasks {
		for _, dep := range t.Dependencies {
			if dep == t.ID {
				errs = append(errs, fmt.Sprintf("task %q depends on itself", t.ID))
				continue
			}
			if _, ok := ids[dep]; !ok {
				errs = append(errs, fmt.Sprintf("task %q references unknown dependency %q", t.ID, dep))
			}
		}
	}
	if cycleTasks := findCycle(tasks, ids); len(cycleTasks) > 0 {
		errs = append(errs, fmt.Sprintf("dependency graph contains a cycle through %v", cycleTasks))
	}

	var warnings []string
	g := graph.New()
	g.BuildFromTasks(tasks)
	for _, id := range g.Analyze().IsolatedTasks {
		warnings = append(warnings, fmt.Sprintf("task %q has no dependencies and no dependents", id))
	}

	return ValidationResult{Valid: len(errs) == 0, Errors: errs, Warnings: warnings}
}

// findCycle walks tasks' raw Dependencies with three-color DFS and
// returns the ids on the first cycle it finds (nil if none). Self-loops
// and dangling dependencies are ignored here since ValidateDependencies
// already reports those separately.
func findCycle(tasks []types.Task, ids map[string]struct{}) []string {
	deps := make(map[string][]string, len(tasks))
	for _, t := range tasks {
		deps[t.ID] = t.Dependencies
	}

	const (
		white = iota
		gray
		black
	)
	color := make(map[string]int, len(tasks))
	var cycle []string
	var visit func(id string) bool
	visit = func(id string) bool {
		color[id] = gray
		for _, dep := range deps[id] {
			if dep == id {
				continue
			}
			if _, ok := ids[dep]; !ok {
				continue
			}
			switch color[dep] {
			case gray:
				cycle = []string{dep, id}
				return true
			case white:
				if visit(dep) {
					return true
				}
			}
		}
		color[id] = black
		return false
	}

	for _, t := range tasks {
		if color[t.ID] == white && visit(t.ID) {
			return cycle
		}
	}
	return nil
}

// TopologicalSort orders tasks respecting dependencies, tie-broken by
// priority. A thin convenience wrapper over pkg/graph for callers that
// only have a decomposition, not a live Graph.
func TopologicalSort(tasks []types.Task) []string {
	g := graph.New()
	g.BuildFromTasks(tasks)
	return g.TopologicalSort()
}

// GetParallelGroups returns tasks grouped into dependency levels, each
// group sorted by priority.
func GetParallelGroups(tasks []types.Task) [][]string {
	g := graph.New()
	g.BuildFromTasks(tasks)
	return g.ParallelGroups()
}
