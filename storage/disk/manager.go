/*
Disk manager is the disk driver of the block cache.
Each device is one image file and block n of the device is at byte offset n*blockSize.
Transfers are synchronous: ReadBlock/WriteBlock return after the whole block is moved.

A block which has never been written reads as zeros, so a fresh (empty) image
behaves like a zero-filled disk.

The cache serializes transfers of one block with the buffer content lock,
but transfers of different blocks of the same device can be concurrent,
so seek+read/write on the shared file is protected by mu.
*/
package disk

import (
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/HayatoShiba/ppmem/common"
)

// Manager manages disk images
type Manager struct {
	// mu protects opener and the position of each storage
	mu sync.Mutex
	// opener opens the storage of a device
	opener opener
	// blockSize is the size of one block
	blockSize int
	// stats counts transfers
	stats Stats
}

// Stats is the number of transfers done by Manager
type Stats struct {
	Reads  uint64
	Writes uint64
}

// NewManager initializes disk manager over the image files under dir
func NewManager(dir string, blockSize int) (*Manager, error) {
	if blockSize <= 0 {
		return nil, errors.Errorf("invalid block size: %d", blockSize)
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, errors.Wrap(err, "os.MkdirAll failed")
	}
	return &Manager{
		opener:    newFileOpener(dir),
		blockSize: blockSize,
	}, nil
}

// BlockSize returns the size of one block
func (m *Manager) BlockSize() int {
	return m.blockSize
}

// ReadBlock reads the block of the device into data
func (m *Manager) ReadBlock(dev common.Device, blockno common.BlockNo, data []byte) error {
	if len(data) != m.blockSize {
		return errors.Errorf("data size %d is not block size %d", len(data), m.blockSize)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	st, err := m.opener.open(dev)
	if err != nil {
		return errors.Wrap(err, "open failed")
	}
	off := int64(blockno) * int64(m.blockSize)
	size, err := st.Size()
	if err != nil {
		return errors.Wrap(err, "Size failed")
	}
	atomic.AddUint64(&m.stats.Reads, 1)
	// not written yet
	if off >= size {
		for i := range data {
			data[i] = 0
		}
		return nil
	}
	if _, err := st.Seek(off, io.SeekStart); err != nil {
		return errors.Wrap(err, "Seek failed")
	}
	n, err := io.ReadFull(st, data)
	if err == io.ErrUnexpectedEOF {
		// the last block of the image is partial
		for i := n; i < len(data); i++ {
			data[i] = 0
		}
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "io.ReadFull failed")
	}
	return nil
}

// WriteBlock writes data into the block of the device
// fsync is not called here, see Sync
func (m *Manager) WriteBlock(dev common.Device, blockno common.BlockNo, data []byte) error {
	if len(data) != m.blockSize {
		return errors.Errorf("data size %d is not block size %d", len(data), m.blockSize)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	st, err := m.opener.open(dev)
	if err != nil {
		return errors.Wrap(err, "open failed")
	}
	off := int64(blockno) * int64(m.blockSize)
	if _, err := st.Seek(off, io.SeekStart); err != nil {
		return errors.Wrap(err, "Seek failed")
	}
	if _, err := st.Write(data); err != nil {
		return errors.Wrap(err, "Write failed")
	}
	atomic.AddUint64(&m.stats.Writes, 1)
	return nil
}

// Sync flushes the image of the device to stable storage
func (m *Manager) Sync(dev common.Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, err := m.opener.open(dev)
	if err != nil {
		return errors.Wrap(err, "open failed")
	}
	if err := st.Sync(); err != nil {
		return errors.Wrap(err, "Sync failed")
	}
	return nil
}

// Stats returns the number of transfers so far
func (m *Manager) Stats() Stats {
	return Stats{
		Reads:  atomic.LoadUint64(&m.stats.Reads),
		Writes: atomic.LoadUint64(&m.stats.Writes),
	}
}

// Close closes every image
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.opener.close(); err != nil {
		return errors.Wrap(err, "close failed")
	}
	return nil
}
