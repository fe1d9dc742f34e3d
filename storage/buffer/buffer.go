package buffer

import (
	"github.com/HayatoShiba/ppmem/common"
	"github.com/HayatoShiba/ppmem/lock"
)

// BufferID is the index of a buffer in the pool.
// buffers are never freed, so the id of a buffer never changes
type BufferID int

// Buf is a cached copy of one disk block
//
// tag and refcnt are protected by the lock of the bucket the buffer belongs to.
// valid and data are protected by the content lock.
type Buf struct {
	// id is the index in the pool
	id BufferID
	// tag is the block cached in the buffer
	tag tag
	// valid is true when data has been read from disk
	valid bool
	// refcnt is the number of references (Read and Pin).
	// while refcnt > 0, tag must not be changed
	refcnt int
	// lock is the content lock, held from Read until Release
	lock *lock.Sleeplock
	// data is the block contents
	data []byte
}

// newBuf initializes an unused buffer
func newBuf(id BufferID, blockSize int) *Buf {
	return &Buf{
		id:   id,
		lock: lock.NewSleeplock("buffer"),
		data: make([]byte, blockSize),
	}
}

// ID returns the index of the buffer in the pool
func (b *Buf) ID() BufferID {
	return b.id
}

// Dev returns the device of the cached block
func (b *Buf) Dev() common.Device {
	return b.tag.dev
}

// BlockNo returns the block number of the cached block
func (b *Buf) BlockNo() common.BlockNo {
	return b.tag.blockno
}

// Data returns the block contents.
// the caller must hold the buffer (returned by Read and not released yet)
func (b *Buf) Data() []byte {
	return b.data
}
