/*
Buffer manager is the block cache.
It keeps a fixed pool of buffers holding copies of disk blocks, so that
- disk reads of hot blocks are avoided
- concurrent threads using the same block share one copy, and are serialized on it

the methods as main entry point:
- Read: return the buffer of the block with its content lock held. read from disk if not cached.
- Write: write the buffer contents to disk. the caller must hold the buffer.
- Release: release the content lock and drop the reference.
Read/Write/Release take the calling thread as a *lock.Owner, the content lock records it
so that Write or Release by a thread which does not hold the buffer is fatal.
- Pin/Unpin: hold/drop an extra reference so that the buffer is not recycled,
  independently from the content lock (e.g. a log keeping blocks until they are installed).

-----

# The list of locks used for buffer

- bucket lock (spin lock):
  - this protects the list of the bucket and the tag/refcnt of the buffers on the list
  - held only for a few steps, never across disk io or the content lock

- buffer content lock (sleep lock):
  - this protects valid flag and the contents of each buffer
  - this may be held long time (across disk io), so waiters sleep

Read/Release/Pin/Unpin take only the home bucket lock of the block.
A miss takes the home bucket lock and then one other bucket lock at a time, see victim.go.

------

buffer replacement
A buffer whose refcnt is 0 can be recycled for another block.
Release moves a buffer with no reference to the most recently used end of its bucket, and
victims are searched from the least recently used end of each bucket.
Buckets are searched in fixed order (home+1, home+2, ...), so this is LRU within a bucket,
not a global LRU.
*/
package buffer

import (
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/HayatoShiba/ppmem/common"
	"github.com/HayatoShiba/ppmem/config"
	"github.com/HayatoShiba/ppmem/cpu"
	"github.com/HayatoShiba/ppmem/lock"
	"github.com/HayatoShiba/ppmem/logging"
)

// Disk is the disk driver. transfers are synchronous and may block
type Disk interface {
	ReadBlock(dev common.Device, blockno common.BlockNo, data []byte) error
	WriteBlock(dev common.Device, blockno common.BlockNo, data []byte) error
}

// Manager manages the buffer pool
type Manager struct {
	// disk driver
	disk Disk
	// bufs is the buffer pool. bufs[id].id == id
	bufs []*Buf
	// buckets are hash buckets of buffers
	buckets []*bucket
	// links of bufs and sentinels of buckets
	links *links
	// stats counts lookups
	stats Stats
}

// Stats is the number of lookups by result
type Stats struct {
	// Hits is the number of lookups which found the block cached
	Hits uint64
	// Misses is the number of lookups which recycled a buffer
	Misses uint64
	// Retries is the number of times a miss had to start over because buckets were busy
	Retries uint64
}

// NewManager initializes the block cache
// every buffer starts in bucket 0
func NewManager(cfg config.Config, disk Disk, cpus cpu.Identifier) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "cfg.Validate failed")
	}
	m := &Manager{
		disk: disk,
		bufs: make([]*Buf, cfg.NBuf),
	}
	m.buckets, m.links = newBuckets(cfg.NBucket, cfg.NBuf, cpus)
	for i := range m.bufs {
		m.bufs[i] = newBuf(BufferID(i), cfg.BlockSize)
		m.links.pushFront(m.buckets[0].head, i)
	}
	logging.Logger.Debug("bcache: %d buffers, %d buckets", cfg.NBuf, cfg.NBucket)
	return m, nil
}

// get returns the buffer of the block with refcnt incremented and the content lock held.
// if the block is not cached, an unused buffer is recycled for it (valid is false then).
// running out of unused buffers is fatal
func (m *Manager) get(self *lock.Owner, dev common.Device, blockno common.BlockNo) *Buf {
	t := newTag(dev, blockno)
	for {
		home := m.buckets[m.hash(blockno)]
		home.lock.Acquire(self)

		// is the block already cached?
		if b := m.lookup(home, t); b != nil {
			b.refcnt++
			home.lock.Release(self)
			atomic.AddUint64(&m.stats.Hits, 1)
			b.lock.Acquire(self)
			return b
		}

		// not cached; recycle an unused buffer
		b, busy := m.recycle(self, home, t)
		home.lock.Release(self)
		if b != nil {
			atomic.AddUint64(&m.stats.Misses, 1)
			b.lock.Acquire(self)
			return b
		}
		if !busy {
			common.Panic("bget: no buffers")
		}
		// some bucket could not be searched, start over
		atomic.AddUint64(&m.stats.Retries, 1)
		backoff()
	}
}

// Read returns the buffer of the block with its content lock held by self.
// the block is read from disk unless its contents are already cached.
// the caller must call Release when it is done with the buffer.
// when the disk read fails, the buffer is released and the error is returned
func (m *Manager) Read(self *lock.Owner, dev common.Device, blockno common.BlockNo) (*Buf, error) {
	b := m.get(self, dev, blockno)
	if !b.valid {
		if err := m.disk.ReadBlock(b.tag.dev, b.tag.blockno, b.data); err != nil {
			m.Release(self, b)
			return nil, errors.Wrap(err, "disk.ReadBlock failed")
		}
		b.valid = true
	}
	return b, nil
}

// Write writes the buffer contents to disk. self must hold the buffer
func (m *Manager) Write(self *lock.Owner, b *Buf) error {
	if !b.lock.Holding(self) {
		common.Panic("bwrite")
	}
	if err := m.disk.WriteBlock(b.tag.dev, b.tag.blockno, b.data); err != nil {
		return errors.Wrap(err, "disk.WriteBlock failed")
	}
	return nil
}

// Release releases the content lock and drops the reference taken by Read.
// self must hold the buffer, and must not use it afterward
func (m *Manager) Release(self *lock.Owner, b *Buf) {
	if !b.lock.Holding(self) {
		common.Panic("brelse")
	}
	b.lock.Release(self)

	bk := m.bucketOf(b)
	bk.lock.Acquire(self)
	if b.refcnt <= 0 {
		bk.lock.Release(self)
		common.Panic("brelse: refcnt %d", b.refcnt)
	}
	b.refcnt--
	if b.refcnt == 0 {
		// no one is waiting for it.
		m.links.remove(int(b.id))
		m.links.pushFront(bk.head, int(b.id))
	}
	bk.lock.Release(self)
}

// Pin takes an extra reference so that the buffer is not recycled.
// the caller must hold a reference already (Read or Pin)
func (m *Manager) Pin(b *Buf) {
	self := lock.NewOwner("bpin")
	bk := m.bucketOf(b)
	bk.lock.Acquire(self)
	b.refcnt++
	bk.lock.Release(self)
}

// Unpin drops the reference taken by Pin
func (m *Manager) Unpin(b *Buf) {
	self := lock.NewOwner("bunpin")
	bk := m.bucketOf(b)
	bk.lock.Acquire(self)
	if b.refcnt <= 0 {
		bk.lock.Release(self)
		common.Panic("bunpin: refcnt %d", b.refcnt)
	}
	b.refcnt--
	bk.lock.Release(self)
}

// Stats returns lookup counters
func (m *Manager) Stats() Stats {
	return Stats{
		Hits:    atomic.LoadUint64(&m.stats.Hits),
		Misses:  atomic.LoadUint64(&m.stats.Misses),
		Retries: atomic.LoadUint64(&m.stats.Retries),
	}
}
