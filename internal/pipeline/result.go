package pipeline

import (
	"fmt"
)

// Stage names the unit of work that produced a skip.
type Stage string

const (
	StageVehicles     Stage = "vehicles"
	StageVehiclePlate Stage = "vehicle_plate"
	StageLocate       Stage = "locate"
	StageFramePlate   Stage = "frame_plate"
	StagePersist      Stage = "persist"
)

// Skip records a unit of work that failed and was dropped.
type Skip struct {
	Stage  Stage
	Frame  int
	Reason error
}

func (s Skip) Error() string {
	return fmt.Sprintf("%s on frame %d: %v", s.Stage, s.Frame, s.Reason)
}

func (s Skip) Unwrap() error { return s.Reason }

// Result is the outcome of one unit of work: either a value or a skip.
type Result[T any] struct {
	Value   T
	Skipped *Skip
}

func (r Result[T]) OK() bool { return r.Skipped == nil }

// attempt runs fn as a single unit of work. Errors and panics both turn into
// a skip so the caller can carry on with the next unit.
func attempt[T any](stage Stage, frame int, fn func() (T, error)) (res Result[T]) {
	defer func() {
		if r := recover(); r != nil {
			res = Result[T]{Skipped: &Skip{Stage: stage, Frame: frame, Reason: fmt.Errorf("panic: %v", r)}}
		}
	}()

	v, err := fn()
	if err != nil {
		return Result[T]{Skipped: &Skip{Stage: stage, Frame: frame, Reason: err}}
	}
	return Result[T]{Value: v}
}
