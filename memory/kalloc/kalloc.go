/*
Package kalloc is the physical page allocator.
It hands out whole frames of physical memory for process memory, kernel stacks,
page-table pages and pipe buffers.

Every processor has its own pool (free list + spin lock) so that allocations on
different processors don't contend.
- Free pushes the frame onto the pool of the processor which frees it.
  The allocating processor is not tracked, so frames drift between pools.
- Allocate pops from the local pool, and when it is empty steals one frame
  from the first other pool that has one.

Frames are filled with junk on both Free and Allocate to make dangling references
and reads of uninitialized memory visible. This is a debugging aid only:
the fill gives no confidentiality guarantee.
*/
package kalloc

import (
	"github.com/pkg/errors"

	"github.com/HayatoShiba/ppmem/common"
	"github.com/HayatoShiba/ppmem/config"
	"github.com/HayatoShiba/ppmem/cpu"
	"github.com/HayatoShiba/ppmem/lock"
	"github.com/HayatoShiba/ppmem/logging"
	"github.com/HayatoShiba/ppmem/memory/phys"
)

const (
	// freeJunk fills a freed frame
	freeJunk byte = 1
	// allocJunk fills an allocated frame
	allocJunk byte = 5
)

// Allocator manages the frames in [end, top)
type Allocator struct {
	mem  *phys.Memory
	cpus cpu.Identifier
	// pageSize is the size of one frame
	pageSize uint64
	// end is the first address after the kernel image
	end phys.PA
	// top is the top of physical memory
	top phys.PA
	// pools has one pool per processor
	pools []*pool
}

// New initializes the allocator and frees every frame between the kernel end and the top of memory
func New(cfg config.Config, mem *phys.Memory, cpus cpu.Identifier) (*Allocator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "cfg.Validate failed")
	}
	end, top := phys.PA(cfg.KernelEnd), phys.PA(cfg.PhysTop)
	if end < mem.Base() || top > mem.Top() {
		return nil, errors.Errorf("managed range [%#x, %#x) is outside of memory [%#x, %#x)", end, top, mem.Base(), mem.Top())
	}
	a := &Allocator{
		mem:      mem,
		cpus:     cpus,
		pageSize: cfg.PageSize,
		end:      end,
		top:      top,
		pools:    make([]*pool, cfg.NCPU),
	}
	for i := range a.pools {
		a.pools[i] = newPool(i, cpus)
	}
	a.freeRange(end, top)
	logging.Logger.Debug("kalloc: %d frames in [%#x, %#x)", a.Len(), end, top)
	return a, nil
}

// freeRange frees every whole frame in [start, stop)
func (a *Allocator) freeRange(start, stop phys.PA) {
	for p := a.pgRoundUp(start); uint64(p)+a.pageSize <= uint64(stop); p += phys.PA(a.pageSize) {
		a.Free(p)
	}
}

func (a *Allocator) pgRoundUp(pa phys.PA) phys.PA {
	return phys.PA((uint64(pa) + a.pageSize - 1) &^ (a.pageSize - 1))
}

// cpuID returns the processor of the caller. the id may be stale as soon as it is returned,
// which is fine because any pool is correct, the local one is just cheaper
func (a *Allocator) cpuID() int {
	id := a.cpus.Pin()
	a.cpus.Unpin(id)
	if id < 0 || id >= len(a.pools) {
		common.Panic("kalloc: cpu id %d out of range", id)
	}
	return id
}

// Free returns the frame at pa to the pool of the current processor.
// pa must have been returned by Allocate (or be passed during initialization).
// a misaligned or out of range address is fatal
func (a *Allocator) Free(pa phys.PA) {
	if !a.valid(pa) {
		common.Panic("kfree %#x", pa)
	}

	// fill with junk to catch dangling refs
	a.mem.Fill(pa, a.pageSize, freeJunk)

	self := lock.NewOwner("kfree")
	p := a.pools[a.cpuID()]
	p.lock.Acquire(self)
	p.push(a.mem, pa)
	p.lock.Release(self)
}

// Allocate returns one frame.
// false is returned when no processor has a free frame; the caller has to handle it
func (a *Allocator) Allocate() (phys.PA, bool) {
	self := lock.NewOwner("kalloc")
	p := a.pools[a.cpuID()]
	p.lock.Acquire(self)
	pa := p.pop(a.mem)
	p.lock.Release(self)

	// the local pool is empty, so steal from others
	if pa == nilFrame {
		pa = a.steal(self)
	}
	if pa == nilFrame {
		return 0, false
	}
	// fill with junk
	a.mem.Fill(pa, a.pageSize, allocJunk)
	return pa, true
}

// steal removes one frame from the first pool which has one.
// a pool whose lock is held by self is skipped, acquiring it would deadlock.
// a pool held by another thread is waited for: its lock is only held for a few steps,
// and skipping it could report exhaustion while it has frames
func (a *Allocator) steal(self *lock.Owner) phys.PA {
	for i, p := range a.pools {
		if p.lock.Holding(self) {
			continue
		}
		p.lock.Acquire(self)
		pa := p.pop(a.mem)
		p.lock.Release(self)
		if pa != nilFrame {
			logging.Logger.Debug("kalloc: stole %#x from cpu %d", pa, i)
			return pa
		}
	}
	return nilFrame
}

// valid reports whether pa is a frame managed by the allocator
func (a *Allocator) valid(pa phys.PA) bool {
	return uint64(pa)%a.pageSize == 0 && pa >= a.end && pa < a.top
}

// Page returns the contents of the frame at pa
func (a *Allocator) Page(pa phys.PA) []byte {
	if !a.valid(pa) {
		common.Panic("kalloc: page %#x", pa)
	}
	return a.mem.Bytes(pa, a.pageSize)
}

// PageSize returns the size of one frame
func (a *Allocator) PageSize() uint64 {
	return a.pageSize
}

// FreeCount returns the number of free frames in the pool of processor id
func (a *Allocator) FreeCount(id int) int {
	self := lock.NewOwner("kmem")
	p := a.pools[id]
	p.lock.Acquire(self)
	defer p.lock.Release(self)
	return p.n
}

// Len returns the number of free frames of all processors.
// the pools are visited one by one, so the result is not a snapshot under concurrent use
func (a *Allocator) Len() int {
	n := 0
	for i := range a.pools {
		n += a.FreeCount(i)
	}
	return n
}
