package buffer

import (
	"bytes"
	"encoding/binary"
	"sync"
	"testing"
	"time"

	"github.com/HayatoShiba/ppmem/common"
	"github.com/HayatoShiba/ppmem/lock"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

const dev = common.Device(1)

// me is the thread running the test
var me = lock.NewOwner("test")

// tags returns the tag of every buffer
func tags(m *Manager) []tag {
	ts := make([]tag, len(m.bufs))
	for i, b := range m.bufs {
		ts[i] = b.tag
	}
	return ts
}

func TestReadHit(t *testing.T) {
	m, dm := TestingNewManager(t, 3, 2)
	content := bytes.Repeat([]byte{9}, TestingBlockSize)
	assert.Nil(t, dm.WriteBlock(dev, common.BlockNo(5), content))

	b1, err := m.Read(me, dev, common.BlockNo(5))
	assert.Nil(t, err)
	assert.True(t, b1.valid)
	assert.Equal(t, content, b1.Data())
	m.Release(me, b1)

	b2, err := m.Read(me, dev, common.BlockNo(5))
	assert.Nil(t, err)
	// the same buffer without second disk read
	assert.Equal(t, b1.ID(), b2.ID())
	assert.Equal(t, uint64(1), dm.Stats().Reads)
	assert.Equal(t, Stats{Hits: 1, Misses: 1}, m.Stats())
	m.Release(me, b2)
}

// 2 buckets and 3 buffers: blocks 0 and 2 share bucket 0, blocks 1 and 3 share bucket 1
func TestReadRecyclesWithinBuckets(t *testing.T) {
	m, _ := TestingNewManager(t, 3, 2)

	b0, err := m.Read(me, dev, common.BlockNo(0))
	assert.Nil(t, err)
	b2, err := m.Read(me, dev, common.BlockNo(2))
	assert.Nil(t, err)
	b1, err := m.Read(me, dev, common.BlockNo(1))
	assert.Nil(t, err)

	// every buffer holds a different block
	assert.NotEqual(t, b0.ID(), b2.ID())
	assert.NotEqual(t, b0.ID(), b1.ID())
	assert.NotEqual(t, b2.ID(), b1.ID())
	assert.Equal(t, []int{int(b2.ID()), int(b0.ID())}, m.links.list(m.buckets[0].head))
	assert.Equal(t, []int{int(b1.ID())}, m.links.list(m.buckets[1].head))

	m.Release(me, b0)
	b3, err := m.Read(me, dev, common.BlockNo(3))
	assert.Nil(t, err)
	// the buffer of block 0 is reused, block 1 is kept
	assert.Equal(t, b0.ID(), b3.ID())
	assert.Equal(t, common.BlockNo(3), b3.BlockNo())
	assert.Equal(t, common.BlockNo(1), b1.BlockNo())
	assert.Equal(t, []int{int(b2.ID())}, m.links.list(m.buckets[0].head))
	assert.Equal(t, []int{int(b3.ID()), int(b1.ID())}, m.links.list(m.buckets[1].head))

	m.Release(me, b1)
	m.Release(me, b2)
	m.Release(me, b3)
}

func TestReadEvictsExactlyOneUnusedBuffer(t *testing.T) {
	m, _ := TestingNewManager(t, 4, 3)
	var held []*Buf
	for i := 0; i < 4; i++ {
		b, err := m.Read(me, dev, common.BlockNo(i))
		assert.Nil(t, err)
		held = append(held, b)
	}
	// everything is unused except block 1
	for i, b := range held {
		if i != 1 {
			m.Release(me, b)
		}
	}
	before := tags(m)

	b, err := m.Read(me, dev, common.BlockNo(10))
	assert.Nil(t, err)
	after := tags(m)

	changed := 0
	for i := range before {
		if before[i] != after[i] {
			changed++
			assert.Equal(t, b.ID(), BufferID(i))
		}
	}
	assert.Equal(t, 1, changed)
	assert.Equal(t, common.BlockNo(1), held[1].BlockNo())
	assert.Equal(t, 1, held[1].refcnt)
	assert.Equal(t, 1, b.refcnt)
	assert.False(t, b.ID() == held[1].ID())

	m.Release(me, b)
	m.Release(me, held[1])
}

func TestPinExcludesFromRecycling(t *testing.T) {
	m, _ := TestingNewManager(t, 2, 2)

	a, err := m.Read(me, dev, common.BlockNo(0))
	assert.Nil(t, err)
	m.Pin(a)
	m.Release(me, a)
	assert.Equal(t, 1, a.refcnt)

	b, err := m.Read(me, dev, common.BlockNo(1))
	assert.Nil(t, err)

	// a is pinned and b is held, so there is no buffer for block 2
	assert.PanicsWithError(t, "panic: bget: no buffers", func() {
		_, _ = m.Read(me, dev, common.BlockNo(2))
	})
	assert.Equal(t, common.BlockNo(0), a.BlockNo())

	m.Unpin(a)
	c, err := m.Read(me, dev, common.BlockNo(2))
	assert.Nil(t, err)
	assert.Equal(t, a.ID(), c.ID())

	m.Release(me, b)
	m.Release(me, c)
}

func TestUnpinWithoutReference(t *testing.T) {
	m, _ := TestingNewManager(t, 1, 1)
	b, err := m.Read(me, dev, common.BlockNo(0))
	assert.Nil(t, err)
	m.Release(me, b)
	assert.Panics(t, func() {
		m.Unpin(b)
	})
}

func TestLockDiscipline(t *testing.T) {
	tests := []struct {
		name     string
		expected string
		call     func(m *Manager, b *Buf)
	}{
		{
			name:     "write after release",
			expected: "panic: bwrite",
			call:     func(m *Manager, b *Buf) { _ = m.Write(me, b) },
		},
		{
			name:     "release twice",
			expected: "panic: brelse",
			call:     func(m *Manager, b *Buf) { m.Release(me, b) },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _ := TestingNewManager(t, 2, 2)
			b, err := m.Read(me, dev, common.BlockNo(1))
			assert.Nil(t, err)
			m.Release(me, b)
			assert.PanicsWithError(t, tt.expected, func() {
				tt.call(m, b)
			})
		})
	}
	t.Run("held by another thread", func(t *testing.T) {
		m, _ := TestingNewManager(t, 2, 2)
		other := lock.NewOwner("other")
		b, err := m.Read(me, dev, common.BlockNo(1))
		assert.Nil(t, err)

		assert.PanicsWithError(t, "panic: bwrite", func() { _ = m.Write(other, b) })
		assert.PanicsWithError(t, "panic: brelse", func() { m.Release(other, b) })
		// the holder still has it
		assert.True(t, b.lock.Holding(me))
		assert.Equal(t, 1, b.refcnt)
		m.Release(me, b)
	})
	t.Run("stale buffer reacquired by another thread", func(t *testing.T) {
		m, _ := TestingNewManager(t, 2, 2)
		other := lock.NewOwner("other")
		b, err := m.Read(me, dev, common.BlockNo(1))
		assert.Nil(t, err)
		m.Release(me, b)

		got, err := m.Read(other, dev, common.BlockNo(1))
		assert.Nil(t, err)
		assert.Equal(t, b.ID(), got.ID())
		assert.PanicsWithError(t, "panic: bwrite", func() { _ = m.Write(me, b) })
		assert.PanicsWithError(t, "panic: brelse", func() { m.Release(me, b) })
		m.Release(other, got)
	})
	t.Run("buffer never read", func(t *testing.T) {
		m, _ := TestingNewManager(t, 2, 2)
		assert.Panics(t, func() { _ = m.Write(me, m.bufs[0]) })
		assert.Panics(t, func() { m.Release(me, m.bufs[1]) })
	})
}

func TestWrite(t *testing.T) {
	m, dm := TestingNewManager(t, 2, 2)
	b, err := m.Read(me, dev, common.BlockNo(4))
	assert.Nil(t, err)
	copy(b.Data(), "hello")
	assert.Nil(t, m.Write(me, b))
	// write does not change the state of the buffer
	assert.True(t, b.valid)
	assert.Equal(t, 1, b.refcnt)
	assert.True(t, b.lock.Holding(me))
	m.Release(me, b)

	got := make([]byte, TestingBlockSize)
	assert.Nil(t, dm.ReadBlock(dev, common.BlockNo(4), got))
	assert.Equal(t, []byte("hello"), got[:5])
}

func TestReadAfterEviction(t *testing.T) {
	m, dm := TestingNewManager(t, 1, 1)
	b, err := m.Read(me, dev, common.BlockNo(0))
	assert.Nil(t, err)
	copy(b.Data(), "persisted")
	assert.Nil(t, m.Write(me, b))
	m.Release(me, b)

	// the only buffer is recycled for block 1
	b, err = m.Read(me, dev, common.BlockNo(1))
	assert.Nil(t, err)
	assert.Equal(t, make([]byte, TestingBlockSize), b.Data())
	m.Release(me, b)

	b, err = m.Read(me, dev, common.BlockNo(0))
	assert.Nil(t, err)
	assert.Equal(t, []byte("persisted"), b.Data()[:9])
	m.Release(me, b)
	assert.Equal(t, uint64(3), dm.Stats().Reads)
}

// failingDisk fails every transfer
type failingDisk struct{}

func (failingDisk) ReadBlock(common.Device, common.BlockNo, []byte) error {
	return errors.New("io error")
}

func (failingDisk) WriteBlock(common.Device, common.BlockNo, []byte) error {
	return errors.New("io error")
}

func TestDiskError(t *testing.T) {
	m := TestingNewManagerWithDisk(t, 1, 1, failingDisk{})
	b, err := m.Read(me, dev, common.BlockNo(0))
	assert.NotNil(t, err)
	assert.Nil(t, b)

	// the buffer is released and stays invalid
	buf := m.bufs[0]
	assert.Equal(t, 0, buf.refcnt)
	assert.False(t, buf.valid)
	assert.False(t, buf.lock.Holding(me))

	// the buffer can be written while held even if its contents were never read
	b = m.get(me, dev, common.BlockNo(0))
	assert.NotNil(t, m.Write(me, b))
	m.Release(me, b)
}

func TestRetryWhenBucketIsBusy(t *testing.T) {
	m, _ := TestingNewManager(t, 1, 2)
	// move the only buffer to bucket 1
	b, err := m.Read(me, dev, common.BlockNo(1))
	assert.Nil(t, err)
	m.Release(me, b)

	// someone holds bucket 1, so the miss on block 0 (bucket 0) has to wait for it without holding bucket 0
	m.buckets[1].lock.Acquire(me)
	reader := lock.NewOwner("reader")
	done := make(chan *Buf)
	go func() {
		b, err := m.Read(reader, dev, common.BlockNo(0))
		assert.Nil(t, err)
		done <- b
	}()

	assert.Eventually(t, func() bool {
		return m.Stats().Retries > 0
	}, 5*time.Second, time.Millisecond)
	// the home bucket is not held while retrying
	assert.Eventually(t, func() bool {
		if !m.buckets[0].lock.TryAcquire(me) {
			return false
		}
		m.buckets[0].lock.Release(me)
		return true
	}, 5*time.Second, time.Millisecond)

	m.buckets[1].lock.Release(me)
	select {
	case got := <-done:
		assert.Equal(t, b.ID(), got.ID())
		assert.Equal(t, common.BlockNo(0), got.BlockNo())
		assert.True(t, got.lock.Holding(reader))
		m.Release(reader, got)
	case <-time.After(5 * time.Second):
		t.Fatal("Read did not complete")
	}
}

func TestConcurrentReadWrite(t *testing.T) {
	const (
		workers    = 4
		iterations = 200
		nblocks    = 10
	)
	// every worker holds at most one buffer, so the pool is never exhausted
	m, dm := TestingNewManager(t, 2*workers, 3)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			me := lock.NewOwner("worker")
			for i := 0; i < iterations; i++ {
				blockno := common.BlockNo((w + i) % nblocks)
				b, err := m.Read(me, dev, blockno)
				if err != nil {
					t.Errorf("Read failed: %v", err)
					return
				}
				n := binary.LittleEndian.Uint32(b.Data())
				binary.LittleEndian.PutUint32(b.Data(), n+1)
				if err := m.Write(me, b); err != nil {
					t.Errorf("Write failed: %v", err)
				}
				m.Release(me, b)
			}
		}(w)
	}
	wg.Wait()

	// every increment reached the disk exactly once
	total := uint32(0)
	data := make([]byte, TestingBlockSize)
	for i := 0; i < nblocks; i++ {
		assert.Nil(t, dm.ReadBlock(dev, common.BlockNo(i), data))
		total += binary.LittleEndian.Uint32(data)
	}
	assert.Equal(t, uint32(workers*iterations), total)

	// no reference is left
	for _, b := range m.bufs {
		assert.Equal(t, 0, b.refcnt)
	}
}
