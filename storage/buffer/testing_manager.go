package buffer

import (
	"testing"

	"github.com/HayatoShiba/ppmem/config"
	"github.com/HayatoShiba/ppmem/cpu"
	"github.com/HayatoShiba/ppmem/storage/disk"
)

// TestingBlockSize is the block size used by TestingNewManager
const TestingBlockSize = 1024

// TestingNewManager initializes the block cache with nbuf buffers and nbucket buckets over in-memory disk
func TestingNewManager(t *testing.T, nbuf, nbucket int) (*Manager, *disk.Manager) {
	dm := disk.TestingNewBufferManager(TestingBlockSize)
	return TestingNewManagerWithDisk(t, nbuf, nbucket, dm), dm
}

// TestingNewManagerWithDisk initializes the block cache over the given disk
func TestingNewManagerWithDisk(t *testing.T, nbuf, nbucket int, d Disk) *Manager {
	cfg := config.Default()
	cfg.NBuf = nbuf
	cfg.NBucket = nbucket
	cfg.BlockSize = TestingBlockSize
	m, err := NewManager(cfg, d, cpu.Fixed(0))
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	return m
}
