package kalloc

import (
	"fmt"

	"github.com/HayatoShiba/ppmem/cpu"
	"github.com/HayatoShiba/ppmem/lock"
	"github.com/HayatoShiba/ppmem/memory/phys"
)

// nilFrame terminates a free list. address 0 is never managed because kernel end is above it
const nilFrame phys.PA = 0

// pool is the free list of one processor.
// a free frame stores the address of the next free frame in its first 8 bytes,
// so the list costs no memory besides the frames themselves
type pool struct {
	// lock protects freelist and n
	lock *lock.Spinlock
	// freelist is the head of the list
	freelist phys.PA
	// n is the number of frames on the list
	n int
}

// newPool initializes an empty pool for processor id
func newPool(id int, cpus cpu.Identifier) *pool {
	return &pool{
		lock:     lock.NewSpinlock(fmt.Sprintf("kmem%d", id), cpus),
		freelist: nilFrame,
	}
}

// push puts pa at the head of the list. the caller must hold the lock
func (p *pool) push(mem *phys.Memory, pa phys.PA) {
	mem.PutUint64(pa, uint64(p.freelist))
	p.freelist = pa
	p.n++
}

// pop removes the head of the list. the caller must hold the lock.
// nilFrame is returned when the list is empty
func (p *pool) pop(mem *phys.Memory) phys.PA {
	pa := p.freelist
	if pa == nilFrame {
		return nilFrame
	}
	p.freelist = phys.PA(mem.Uint64(pa))
	p.n--
	return pa
}
