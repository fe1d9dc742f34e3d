/*
Victim selection for a cache miss.

The home bucket lock is held during the whole search, so that no other thread can
insert the same block into the home bucket meanwhile.
Other buckets are searched in order home+1, home+2, ... (wrapping around), each from
its least recently used end. The first unused buffer found is re-tagged and moved
into the home bucket. The home bucket itself is searched last.

Deadlock:
waiting on a second bucket lock while holding the home bucket lock can make a cycle
when threads missing on different buckets search each other's home bucket.
So other bucket locks are only try-acquired. A busy bucket is skipped, and if no
victim is found the caller releases the home lock, backs off and starts over.
No thread ever waits for a bucket lock while holding another one.
Only a search which could inspect every bucket and found no unused buffer is fatal.
*/
package buffer

import (
	"runtime"

	"github.com/HayatoShiba/ppmem/lock"
	"github.com/HayatoShiba/ppmem/logging"
)

// recycle finds an unused buffer, re-tags it for t and links it into home
// with refcnt 1 and valid false.
// self must hold the home bucket lock.
// busy is true when some bucket was skipped because its lock was held by others
func (m *Manager) recycle(self *lock.Owner, home *bucket, t tag) (b *Buf, busy bool) {
	n := len(m.buckets)
	h := m.hash(t.blockno)
	for i := 1; i < n; i++ {
		other := m.buckets[(h+i)%n]
		if !other.lock.TryAcquire(self) {
			busy = true
			continue
		}
		if b := m.lruUnused(other); b != nil {
			m.claim(b, t)
			m.links.remove(int(b.id))
			other.lock.Release(self)
			m.links.pushFront(home.head, int(b.id))
			logging.Logger.Debug("bcache: buffer %d moved from bucket %d to %d for block %d", b.id, (h+i)%n, h, t.blockno)
			return b, busy
		}
		other.lock.Release(self)
	}
	// home bucket last
	if b := m.lruUnused(home); b != nil {
		m.claim(b, t)
		m.links.remove(int(b.id))
		m.links.pushFront(home.head, int(b.id))
		return b, busy
	}
	return nil, busy
}

// claim re-tags b for t. the caller must hold the lock of the bucket b is on
func (m *Manager) claim(b *Buf, t tag) {
	b.tag = t
	b.valid = false
	b.refcnt = 1
}

// backoff lets the holders of busy buckets run before the search starts over
func backoff() {
	runtime.Gosched()
}
