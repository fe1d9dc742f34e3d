/*
The pool is split into buckets by the hash of the block number.
Each bucket is a circular doubly linked list of buffers with a sentinel, protected by its own spin lock,
so that lookups of blocks in different buckets don't contend.

Links are buffer ids instead of pointers. The links of all buffers and all sentinels are held in
two arrays (next/prev) in the manager: buffer i uses slot i and the sentinel of bucket j uses slot nbuf+j.
head.next is the most recently used buffer and head.prev is the least recently used one.
*/
package buffer

import (
	"fmt"

	"github.com/HayatoShiba/ppmem/common"
	"github.com/HayatoShiba/ppmem/cpu"
	"github.com/HayatoShiba/ppmem/lock"
)

// bucket is one hash bucket
type bucket struct {
	// lock protects the list and the tag/refcnt of the buffers on it
	lock *lock.Spinlock
	// head is the slot of the sentinel
	head int
}

// links holds next/prev of every buffer and every sentinel
type links struct {
	next []int
	prev []int
}

// newBuckets initializes n empty buckets whose sentinels start at slot nbuf
func newBuckets(n, nbuf int, cpus cpu.Identifier) ([]*bucket, *links) {
	l := &links{
		next: make([]int, nbuf+n),
		prev: make([]int, nbuf+n),
	}
	buckets := make([]*bucket, n)
	for i := range buckets {
		head := nbuf + i
		// empty list points to itself
		l.next[head] = head
		l.prev[head] = head
		buckets[i] = &bucket{
			lock: lock.NewSpinlock(fmt.Sprintf("bcache%d", i), cpus),
			head: head,
		}
	}
	return buckets, l
}

// pushFront links slot x right after head (most recently used end)
func (l *links) pushFront(head, x int) {
	l.next[x] = l.next[head]
	l.prev[x] = head
	l.prev[l.next[head]] = x
	l.next[head] = x
}

// remove unlinks slot x from its list
func (l *links) remove(x int) {
	l.next[l.prev[x]] = l.next[x]
	l.prev[l.next[x]] = l.prev[x]
	l.next[x] = x
	l.prev[x] = x
}

// hash returns the home bucket of the block
func (m *Manager) hash(blockno common.BlockNo) int {
	return int(blockno) % len(m.buckets)
}

// bucketOf returns the home bucket of the buffer.
// the caller must hold a reference so that the tag does not change
func (m *Manager) bucketOf(b *Buf) *bucket {
	return m.buckets[m.hash(b.tag.blockno)]
}

// lookup returns the buffer caching the block in bucket bk, or nil.
// the caller must hold the bucket lock
func (m *Manager) lookup(bk *bucket, t tag) *Buf {
	for x := m.links.next[bk.head]; x != bk.head; x = m.links.next[x] {
		if b := m.bufs[x]; b.tag == t {
			return b
		}
	}
	return nil
}

// lruUnused returns the least recently used buffer with no reference in bucket bk, or nil.
// the caller must hold the bucket lock
func (m *Manager) lruUnused(bk *bucket) *Buf {
	for x := m.links.prev[bk.head]; x != bk.head; x = m.links.prev[x] {
		if b := m.bufs[x]; b.refcnt == 0 {
			return b
		}
	}
	return nil
}
