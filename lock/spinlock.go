/*
Spinlock is the mutual exclusion used for short critical sections
(allocator pools, block cache buckets).

The lock word is updated with cas operation and waiters busy-wait on it,
the same way as the buffer header lock of a database buffer pool.
The holder is recorded as an Owner, so Holding answers "is this lock held by me"
even when several goroutines share one processor id.
The processor of the holder stays pinned from Acquire until Release.

Rules for the caller:
- hold it only for a bounded number of steps
- never block (disk io, sleep lock, channel) while holding it
*/
package lock

import (
	"runtime"
	"sync/atomic"

	"github.com/HayatoShiba/ppmem/common"
	"github.com/HayatoShiba/ppmem/cpu"
)

// noCPU is recorded while the lock is free
const noCPU int32 = -1

// Spinlock is a busy-waiting lock
type Spinlock struct {
	// name is for debugging
	name string
	// locked is 1 while held
	locked uint32
	// owner is the thread holding the lock
	owner atomic.Pointer[Owner]
	// cpu is the processor the holder is pinned to
	cpu int32
	// cpus identifies the processor of the caller
	cpus cpu.Identifier
}

// NewSpinlock initializes Spinlock
func NewSpinlock(name string, cpus cpu.Identifier) *Spinlock {
	return &Spinlock{
		name: name,
		cpu:  noCPU,
		cpus: cpus,
	}
}

// Name returns the name of the lock
func (l *Spinlock) Name() string {
	return l.name
}

// Acquire spins until the lock is acquired by o
func (l *Spinlock) Acquire(o *Owner) {
	if o == nil {
		common.Panic("acquire %s: no owner", l.name)
	}
	id := l.cpus.Pin()
	for !atomic.CompareAndSwapUint32(&l.locked, 0, 1) {
		// the holder is a goroutine that may have been descheduled, so let it run
		runtime.Gosched()
	}
	l.owner.Store(o)
	atomic.StoreInt32(&l.cpu, int32(id))
}

// TryAcquire acquires the lock for o only if it is free right now
func (l *Spinlock) TryAcquire(o *Owner) bool {
	if o == nil {
		common.Panic("acquire %s: no owner", l.name)
	}
	id := l.cpus.Pin()
	if !atomic.CompareAndSwapUint32(&l.locked, 0, 1) {
		l.cpus.Unpin(id)
		return false
	}
	l.owner.Store(o)
	atomic.StoreInt32(&l.cpu, int32(id))
	return true
}

// Release releases the lock held by o.
// releasing a free lock or a lock held by someone else is fatal
func (l *Spinlock) Release(o *Owner) {
	if !l.Holding(o) {
		common.Panic("release %s", l.name)
	}
	id := atomic.SwapInt32(&l.cpu, noCPU)
	l.owner.Store(nil)
	atomic.StoreUint32(&l.locked, 0)
	l.cpus.Unpin(int(id))
}

// Holding reports whether the lock is held by o
func (l *Spinlock) Holding(o *Owner) bool {
	return o != nil && atomic.LoadUint32(&l.locked) == 1 && l.owner.Load() == o
}

// HolderCPU returns the processor the holder is pinned to, or -1 while the lock is free
func (l *Spinlock) HolderCPU() int {
	return int(atomic.LoadInt32(&l.cpu))
}
