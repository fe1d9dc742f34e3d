/*
Package cpu identifies the processor the calling thread runs on.

A processor id is only meaningful while the thread cannot migrate,
so ids are handed out by Pin and the scope ends with Unpin (push_off/pop_off in a real kernel).
Goroutines are not bound to processors, so the implementations here decide
which processor a pinned scope belongs to.
*/
package cpu

import "sync/atomic"

// Identifier reports the current processor
type Identifier interface {
	// Pin suppresses migration of the caller and returns the id of its processor
	Pin() int
	// Unpin ends the scope started by Pin
	Unpin(id int)
}

// Fixed runs every thread on the same processor
type Fixed int

// Pin returns the fixed id
func (f Fixed) Pin() int { return int(f) }

// Unpin does nothing
func (f Fixed) Unpin(int) {}

// RoundRobin places each pinned scope on the next processor in turn.
// this models threads migrating between processors across calls
type RoundRobin struct {
	n    uint32
	next uint32
}

// NewRoundRobin initializes RoundRobin over n processors
func NewRoundRobin(n int) *RoundRobin {
	return &RoundRobin{n: uint32(n)}
}

// Pin returns the next processor id
func (r *RoundRobin) Pin() int {
	return int((atomic.AddUint32(&r.next, 1) - 1) % r.n)
}

// Unpin does nothing
func (r *RoundRobin) Unpin(int) {}

// Manual is switched explicitly with Set. this is intended to be used in test
type Manual struct {
	id int32
}

// Set moves every following scope to processor id
func (m *Manual) Set(id int) {
	atomic.StoreInt32(&m.id, int32(id))
}

// Pin returns the current id
func (m *Manual) Pin() int {
	return int(atomic.LoadInt32(&m.id))
}

// Unpin does nothing
func (m *Manual) Unpin(int) {}
