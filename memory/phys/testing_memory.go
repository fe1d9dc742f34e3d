package phys

import "testing"

// TestingNewMemory maps n bytes of physical memory starting at base and unmaps it when the test completes
func TestingNewMemory(t *testing.T, base PA, n uint64) *Memory {
	m, err := New(base, base+PA(n))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() {
		if err := m.Close(); err != nil {
			t.Errorf("Close failed: %v", err)
		}
	})
	return m
}
