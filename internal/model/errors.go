package model

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidDemand is returned when a unit with a non-positive demand
	// reaches the planner.
	ErrInvalidDemand = errors.New("invalid workload demand")

	// ErrNoFeasibleNodeType is returned when no candidate node type can host
	// the single largest workload unit.
	ErrNoFeasibleNodeType = errors.New("no node type can host the largest workload unit")

	// ErrNoFeasibleConfiguration is returned when every candidate was evaluated
	// but none produced a usable packing.
	ErrNoFeasibleConfiguration = errors.New("no feasible configuration")

	// ErrCacheComputation is returned when computing a packing for a capacity
	// key failed unexpectedly.
	ErrCacheComputation = errors.New("solution computation failed")
)

// EvaluationError attaches node type and capacity context to a failure that
// aborted a planning run.
type EvaluationError struct {
	NodeType NodeType
	Capacity ResourceQuantity
	Err      error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("evaluating node type %q (cpu=%g, mem=%g): %v",
		e.NodeType.ID, e.Capacity.CPUMillis, e.Capacity.MemoryMB, e.Err)
}

func (e *EvaluationError) Unwrap() error {
	return e.Err
}
