/*
Sleeplock is the long-term lock protecting buffer contents.
A waiter sleeps instead of spinning, so the holder may keep it across disk io.
Like Spinlock, the holder is recorded as an Owner.
*/
package lock

import (
	"sync"

	"github.com/HayatoShiba/ppmem/common"
)

// Sleeplock is a blocking lock which can report who holds it
type Sleeplock struct {
	// name is for debugging
	name string
	// mu protects owner
	mu   sync.Mutex
	cond *sync.Cond
	// owner is the holder, nil while free
	owner *Owner
}

// NewSleeplock initializes Sleeplock
func NewSleeplock(name string) *Sleeplock {
	l := &Sleeplock{name: name}
	l.cond = sync.NewCond(&l.mu)
	return l
}

// Acquire sleeps until the lock is acquired by o
func (l *Sleeplock) Acquire(o *Owner) {
	if o == nil {
		common.Panic("acquiresleep %s: no owner", l.name)
	}
	l.mu.Lock()
	for l.owner != nil {
		l.cond.Wait()
	}
	l.owner = o
	l.mu.Unlock()
}

// Release releases the lock held by o and wakes up one waiter.
// releasing a free lock or a lock held by someone else is fatal
func (l *Sleeplock) Release(o *Owner) {
	l.mu.Lock()
	if o == nil || l.owner != o {
		l.mu.Unlock()
		common.Panic("releasesleep %s", l.name)
	}
	l.owner = nil
	l.cond.Signal()
	l.mu.Unlock()
}

// Holding reports whether the lock is held by o
func (l *Sleeplock) Holding(o *Owner) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return o != nil && l.owner == o
}
