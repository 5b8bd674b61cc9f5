// Package epochvalue implements the live/marked/set three-slot pipeline
// (spec.md §3.3) used by every entity field whose effective value changes
// only at an epoch boundary.
package epochvalue

import "encoding/json"

// Value is a three-slot pipeline: Live is the value currently in force,
// Marked is staged during the epoch (captured at snapshot time), and Set
// is scheduled to become Live at the next boundary.
type Value[T any] struct {
	live   T
	marked T
	set    T
}

// jsonValue mirrors Value's three slots with exported fields so the
// versioned entity codec (entity.Encode/Decode) can round-trip it; Value
// itself keeps the slots unexported so callers can only reach them
// through the transition operations below.
type jsonValue[T any] struct {
	Live   T `json:"live"`
	Marked T `json:"marked"`
	Set    T `json:"set"`
}

func (v Value[T]) MarshalJSON() ([]byte, error) {
	return json.Marshal(jsonValue[T]{Live: v.live, Marked: v.marked, Set: v.set})
}

func (v *Value[T]) UnmarshalJSON(b []byte) error {
	var j jsonValue[T]
	if err := json.Unmarshal(b, &j); err != nil {
		return err
	}
	v.live, v.marked, v.set = j.Live, j.Marked, j.Set
	return nil
}

// New builds a Value with all three slots equal to v, the state a freshly
// registered entity starts in.
func New[T any](v T) Value[T] {
	return Value[T]{live: v, marked: v, set: v}
}

func (v Value[T]) Live() T   { return v.live }
func (v Value[T]) Marked() T { return v.marked }
func (v Value[T]) Set() T    { return v.set }

// Snapshot captures the full internal state, used by deltas to build undo
// data before mutating a Value.
type Snapshot[T any] struct {
	Live   T
	Marked T
	Set    T
}

func (v Value[T]) Snapshot() Snapshot[T] {
	return Snapshot[T]{Live: v.live, Marked: v.marked, Set: v.set}
}

// Restore resets the pipeline to a prior snapshot, used by undo.
func (v *Value[T]) Restore(s Snapshot[T]) {
	v.live, v.marked, v.set = s.Live, s.Marked, s.Set
}

// Transition performs the EWRAP wrap-up shift: set becomes live, marked
// becomes set. Marked is left untouched here; callers that also need to
// stage a freshly computed marked value should follow with Mark.
func (v *Value[T]) Transition() {
	v.live = v.set
	v.set = v.marked
}

// Mark stages a newly computed value into the marked slot, to be picked up
// by the next Transition.
func (v *Value[T]) Mark(newMarked T) {
	v.marked = newMarked
}

// Replace overwrites the set slot directly (e.g. a mid-epoch delegation
// change that should take effect at the next boundary).
func (v *Value[T]) Replace(newSet T) {
	v.set = newSet
}

// MutateLive applies f to the live value in place, for fields (like
// rewards_sum) that accumulate within an epoch without going through the
// transition pipeline.
func (v *Value[T]) MutateLive(f func(T) T) {
	v.live = f(v.live)
}
