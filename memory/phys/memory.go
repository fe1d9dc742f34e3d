/*
Package phys simulates physical memory.

The physical address range [base, top) is backed by one anonymous private mapping,
so untouched frames cost nothing until they are written (the allocator writes every
frame during boot, like a real kernel does).
A physical address is translated into the mapping by subtracting base.
*/
package phys

import (
	"encoding/binary"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// PA is a physical address
type PA uint64

// Memory is the physical memory of the machine
type Memory struct {
	base PA
	top  PA
	// data is the mapping backing [base, top)
	data []byte
}

// New maps physical memory for [base, top)
func New(base, top PA) (*Memory, error) {
	if top <= base {
		return nil, errors.Errorf("invalid physical range [%#x, %#x)", base, top)
	}
	data, err := unix.Mmap(-1, 0, int(top-base), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, errors.Wrap(err, "unix.Mmap failed")
	}
	return &Memory{
		base: base,
		top:  top,
		data: data,
	}, nil
}

// Close unmaps the memory. it must not be used afterward
func (m *Memory) Close() error {
	if m.data == nil {
		return nil
	}
	if err := unix.Munmap(m.data); err != nil {
		return errors.Wrap(err, "unix.Munmap failed")
	}
	m.data = nil
	return nil
}

// Base returns the lowest address
func (m *Memory) Base() PA {
	return m.base
}

// Top returns the address right after the highest address
func (m *Memory) Top() PA {
	return m.top
}

// Contains reports whether [pa, pa+n) lies within the memory
func (m *Memory) Contains(pa PA, n uint64) bool {
	return pa >= m.base && pa <= m.top && uint64(m.top-pa) >= n
}

// Bytes returns the n bytes at pa. out of range access is a bug of the caller and panics
func (m *Memory) Bytes(pa PA, n uint64) []byte {
	off := uint64(pa - m.base)
	return m.data[off : off+n : off+n]
}

// Fill sets the n bytes at pa to c
func (m *Memory) Fill(pa PA, n uint64, c byte) {
	b := m.Bytes(pa, n)
	for i := range b {
		b[i] = c
	}
}

// Uint64 reads the word at pa
func (m *Memory) Uint64(pa PA) uint64 {
	return binary.LittleEndian.Uint64(m.Bytes(pa, 8))
}

// PutUint64 writes the word at pa
func (m *Memory) PutUint64(pa PA, v uint64) {
	binary.LittleEndian.PutUint64(m.Bytes(pa, 8), v)
}
