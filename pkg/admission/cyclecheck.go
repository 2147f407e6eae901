// Package admission implements the server-side desired-state gate: before a
// proposed State is accepted, every dependency name must resolve to a
// workload present in the same state, and the dependency graph it forms
// must be acyclic. Both checks are pure and synchronous; admission shares no
// state with an agent's scheduler and mutates nothing it is given.
package admission

import (
	"fmt"
	"sort"

	"github.com/cuemby/fleet/pkg/types"
)

// InvalidStructureError reports that a workload's dependency names a
// workload absent from the state under check.
type InvalidStructureError struct {
	Workload types.WorkloadName
	Missing  types.WorkloadName
}

func (e *InvalidStructureError) Error() string {
	return fmt.Sprintf("workload '%s' is not part of the state.", e.Missing)
}

// CycleError reports that Name participates in a dependency cycle.
// Name identifies one participant on the cycle, not necessarily the one
// that introduced it.
type CycleError struct {
	Name types.WorkloadName
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("workload '%s' is part of a dependency cycle", e.Name)
}

// CheckState validates that every dependency in state resolves to a known
// workload and that the resulting dependency graph is acyclic. It returns
// nil, *InvalidStructureError, or *CycleError.
//
// The traversal is an iterative depth-first search over an explicit stack,
// visiting start nodes and each node's dependencies in sorted order so the
// result — in particular which participant a CycleError names — is
// deterministic across runs regardless of Go's unordered map iteration.
func CheckState(state *types.DesiredState) error {
	names := sortedNames(state.Workloads)

	visited := make(map[types.WorkloadName]bool, len(names))
	onPath := make(map[types.WorkloadName]bool, len(names))
	var path []types.WorkloadName

	for _, start := range names {
		if visited[start] {
			continue
		}
		if err := walk(state, start, visited, onPath, &path); err != nil {
			return err
		}
	}
	return nil
}

// walk runs the iterative DFS rooted at start, using stack as the frontier
// and path/onPath as the "currently on this recursion branch" marker.
func walk(
	state *types.DesiredState,
	start types.WorkloadName,
	visited map[types.WorkloadName]bool,
	onPath map[types.WorkloadName]bool,
	path *[]types.WorkloadName,
) error {
	stack := []types.WorkloadName{start}

	for len(stack) > 0 {
		top := stack[len(stack)-1]

		if !visited[top] {
			visited[top] = true
			onPath[top] = true
			*path = append(*path, top)
		} else {
			stack = stack[:len(stack)-1]
			// A name can sit on the stack more than once (pushed by two
			// parents before either copy was visited); only the pop that
			// finishes its own visit takes it off the path.
			if onPath[top] {
				onPath[top] = false
				*path = (*path)[:len(*path)-1]
			}
		}

		spec, ok := state.Workloads[top]
		if !ok {
			// top was pushed as a dependency reference; absence from
			// Workloads is exactly the InvalidStructure condition.
			continue
		}

		for _, dep := range sortedDependencyNames(spec.Dependencies) {
			if _, exists := state.Workloads[dep]; !exists {
				return &InvalidStructureError{Workload: top, Missing: dep}
			}
			if !visited[dep] {
				stack = append(stack, dep)
			} else if onPath[dep] {
				return &CycleError{Name: dep}
			}
		}
	}
	return nil
}

func sortedNames(workloads map[types.WorkloadName]*types.WorkloadSpec) []types.WorkloadName {
	names := make([]types.WorkloadName, 0, len(workloads))
	for name := range workloads {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

func sortedDependencyNames(deps map[types.WorkloadName]types.AddCondition) []types.WorkloadName {
	names := make([]types.WorkloadName, 0, len(deps))
	for name := range deps {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// TopoCandidateOrder returns a post-order traversal of state's dependency
// graph: a workload never appears before something it depends on. It is a
// read-only diagnostic for explaining ordering decisions downstream of
// admission (logging "why did X schedule after Y"), not itself a scheduling
// decision, and assumes state has already passed CheckState — its behavior
// on a cyclic or structurally invalid state is unspecified.
func TopoCandidateOrder(state *types.DesiredState) []types.WorkloadName {
	names := sortedNames(state.Workloads)
	visited := make(map[types.WorkloadName]bool, len(names))
	order := make([]types.WorkloadName, 0, len(names))

	for _, start := range names {
		if visited[start] {
			continue
		}
		order = appendPostOrder(state, start, visited, order)
	}
	return order
}

func appendPostOrder(
	state *types.DesiredState,
	start types.WorkloadName,
	visited map[types.WorkloadName]bool,
	order []types.WorkloadName,
) []types.WorkloadName {
	type frame struct {
		name     types.WorkloadName
		expanded bool
	}
	stack := []frame{{name: start}}

	for len(stack) > 0 {
		top := &stack[len(stack)-1]

		if visited[top.name] {
			stack = stack[:len(stack)-1]
			continue
		}

		if top.expanded {
			visited[top.name] = true
			order = append(order, top.name)
			stack = stack[:len(stack)-1]
			continue
		}
		top.expanded = true

		spec, ok := state.Workloads[top.name]
		if !ok {
			continue
		}
		for _, dep := range sortedDependencyNames(spec.Dependencies) {
			if !visited[dep] {
				stack = append(stack, frame{name: dep})
			}
		}
	}
	return order
}
