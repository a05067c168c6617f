// Package orderer implements pointer and keyboard reordering of a list as a
// small state machine: Idle, or Dragging a source item.
package orderer

import (
	"fmt"
	"slices"
)

// Phase is the state of an Orderer.
type Phase int

const (
	Idle Phase = iota
	Dragging
)

func (p Phase) String() string {
	if p == Dragging {
		return "dragging"
	}
	return "idle"
}

// Result describes the outcome of a drop or keyboard move.
type Result[K comparable] struct {
	// Order is a fresh slice, equal to the input when nothing moved.
	Order     []K
	Committed bool
	From, To  int
	// Message announces the move for assistive technology.
	Message string
}

// Orderer tracks one drag gesture at a time. It is not safe for concurrent
// use; owners serialize access.
type Orderer[K comparable] struct {
	phase  Phase
	source K
	label  func(K) string
}

// New returns an idle Orderer. label names items in announcements; nil
// falls back to fmt.Sprint.
func New[K comparable](label func(K) string) *Orderer[K] {
	if label == nil {
		label = func(k K) string { return fmt.Sprint(k) }
	}
	return &Orderer[K]{label: label}
}

// Phase returns the current state.
func (o *Orderer[K]) Phase() Phase { return o.phase }

// Source returns the item being dragged.
func (o *Orderer[K]) Source() (K, bool) {
	return o.source, o.phase == Dragging
}

// Begin starts dragging id. Beginning again replaces the source.
func (o *Orderer[K]) Begin(id K) {
	o.phase = Dragging
	o.source = id
}

// Cancel abandons the gesture without touching the order.
func (o *Orderer[K]) Cancel() {
	var zero K
	o.phase = Idle
	o.source = zero
}

// Drop releases the dragged item over target. The source is removed and
// reinserted at the target's index. Dropping onto itself, onto an item not
// in order, or while idle cancels. The orderer is idle afterwards.
func (o *Orderer[K]) Drop(order []K, target K) Result[K] {
	source, dragging := o.Source()
	o.Cancel()

	out := slices.Clone(order)
	if !dragging || source == target {
		return Result[K]{Order: out}
	}
	from := slices.Index(out, source)
	to := slices.Index(out, target)
	if from < 0 || to < 0 {
		return Result[K]{Order: out}
	}
	return o.commit(out, from, to)
}

// MoveToIndex shifts id by delta positions, clamped to the list bounds.
// Nothing happens when the clamped index equals the current one.
func (o *Orderer[K]) MoveToIndex(order []K, id K, delta int) Result[K] {
	out := slices.Clone(order)
	from := slices.Index(out, id)
	if from < 0 {
		return Result[K]{Order: out}
	}
	to := max(0, min(len(out)-1, from+delta))
	if to == from {
		return Result[K]{Order: out, From: from, To: to}
	}
	return o.commit(out, from, to)
}

func (o *Orderer[K]) commit(order []K, from, to int) Result[K] {
	item := order[from]
	order = slices.Delete(order, from, from+1)
	order = slices.Insert(order, to, item)
	return Result[K]{
		Order:     order,
		Committed: true,
		From:      from,
		To:        to,
		Message:   Announcement(o.label(item), to),
	}
}

// Announcement formats the live-region message for an item that landed at
// the zero-based index.
func Announcement(label string, index int) string {
	return fmt.Sprintf("%s moved to position %d.", label, index+1)
}
