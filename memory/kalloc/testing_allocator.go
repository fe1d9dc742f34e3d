package kalloc

import (
	"testing"

	"github.com/HayatoShiba/ppmem/config"
	"github.com/HayatoShiba/ppmem/cpu"
	"github.com/HayatoShiba/ppmem/memory/phys"
)

// TestingPageSize is the frame size used by TestingNewAllocator
const TestingPageSize = 4096

// TestingNewAllocator initializes an allocator managing exactly nframes frames on ncpu processors.
// the kernel image occupies the first frame of memory
func TestingNewAllocator(t *testing.T, nframes, ncpu int, cpus cpu.Identifier) (*Allocator, *phys.Memory) {
	cfg := config.Default()
	cfg.NCPU = ncpu
	cfg.PageSize = TestingPageSize
	cfg.KernelEnd = cfg.KernBase + TestingPageSize
	cfg.PhysTop = cfg.KernelEnd + uint64(nframes)*TestingPageSize

	mem := phys.TestingNewMemory(t, phys.PA(cfg.KernBase), cfg.PhysTop-cfg.KernBase)
	a, err := New(cfg, mem, cpus)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return a, mem
}
