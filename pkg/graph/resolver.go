// Package graph implements the pure dependency-resolution engine: cycle
// detection, ready-set computation, and completion/deadlock detection over
// a project's task set. Nothing here touches the Store or the network —
// every function is a pure function of its inputs.
package graph

import (
	"sort"

	"github.com/frankbria/codeframe/pkg/models"
)

// Node is the minimal task view the resolver needs.
type Node struct {
	ID         int64
	TaskNumber string
	Status     models.TaskStatus
	DependsOn  []int64
}

// Result bundles the resolver's outputs for one evaluation of a task set.
type Result struct {
	ReadySet       []Node
	BlockedSet     []Node
	IsComplete     bool
	DeadlockReason string
}

// CycleError is returned by DetectCycle when the dependency graph contains
// a cycle; a cyclic decomposition must be rejected wholesale.
type CycleError struct {
	Cycle []int64
}

func (e *CycleError) Error() string {
	return "cyclic task dependency"
}

// DetectCycle runs on every decomposition before any task row is persisted.
// It returns a *CycleError naming one offending cycle, or nil if the graph
// is acyclic.
func DetectCycle(nodes []Node) error {
	byID := make(map[int64]Node, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = n
	}

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[int64]int, len(nodes))
	var path []int64

	var visit func(id int64) *CycleError
	visit = func(id int64) *CycleError {
		color[id] = gray
		path = append(path, id)
		for _, dep := range byID[id].DependsOn {
			if _, ok := byID[dep]; !ok {
				continue // dangling deps are validated separately
			}
			switch color[dep] {
			case white:
				if err := visit(dep); err != nil {
					return err
				}
			case gray:
				// Found the cycle: slice path from dep's first occurrence.
				start := 0
				for i, v := range path {
					if v == dep {
						start = i
						break
					}
				}
				cyc := append([]int64{}, path[start:]...)
				cyc = append(cyc, dep)
				return &CycleError{Cycle: cyc}
			}
		}
		path = path[:len(path)-1]
		color[id] = black
		return nil
	}

	// Deterministic iteration order for reproducible error messages.
	ids := make([]int64, 0, len(nodes))
	for _, n := range nodes {
		ids = append(ids, n.ID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		if color[id] == white {
			if err := visit(id); err != nil {
				return err
			}
		}
	}
	return nil
}

// Evaluate computes the ready set, blocked set, completion, and deadlock
// status of a task set. Same inputs always produce the same outputs.
func Evaluate(nodes []Node) Result {
	byID := make(map[int64]Node, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = n
	}

	depsSatisfied := func(n Node) bool {
		for _, dep := range n.DependsOn {
			d, ok := byID[dep]
			if !ok || d.Status != models.TaskCompleted {
				return false
			}
		}
		return true
	}
	depFailed := func(n Node) bool {
		for _, dep := range n.DependsOn {
			if d, ok := byID[dep]; ok && d.Status == models.TaskFailed {
				return true
			}
		}
		return false
	}

	var ready, blocked []Node
	allTerminal := true
	for _, n := range nodes {
		if !n.Status.Terminal() {
			allTerminal = false
		}
		switch {
		case n.Status == models.TaskPending && depsSatisfied(n):
			ready = append(ready, n)
		case depFailed(n) && !n.Status.Terminal():
			blocked = append(blocked, n)
		}
	}

	// Deterministic tie-break: ascending task_number, then id.
	sort.Slice(ready, func(i, j int) bool {
		if ready[i].TaskNumber != ready[j].TaskNumber {
			return ready[i].TaskNumber < ready[j].TaskNumber
		}
		return ready[i].ID < ready[j].ID
	})

	res := Result{ReadySet: ready, BlockedSet: blocked, IsComplete: allTerminal}

	if !allTerminal && len(ready) == 0 {
		// No ready work and nothing in flight: everything remaining is
		// either blocked-on-failure or stuck pending with unsatisfiable
		// deps. Only declare deadlock if nothing is currently in_progress
		// (the caller is expected to pass that through Status).
		anyInFlight := false
		for _, n := range nodes {
			if n.Status == models.TaskInProgress {
				anyInFlight = true
				break
			}
		}
		if !anyInFlight && len(blocked) > 0 {
			res.DeadlockReason = "all remaining tasks are blocked on failed dependencies"
		}
	}

	return res
}
