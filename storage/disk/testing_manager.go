package disk

import "testing"

// TestingNewFileManager initializes disk manager with file storage under t.TempDir()
// so that the generated images are removed after test is completed
func TestingNewFileManager(t *testing.T, blockSize int) (*Manager, error) {
	return NewManager(t.TempDir(), blockSize)
}

// TestingNewBufferManager initializes disk manager with buffer storage instead of file storage. This prevents unnecessary disk I/O.
func TestingNewBufferManager(blockSize int) *Manager {
	return &Manager{
		opener:    newBufferOpener(),
		blockSize: blockSize,
	}
}
