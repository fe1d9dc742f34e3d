/*
Config holds the kernel-wide constants of the memory-resource layer.
The defaults follow a small RISC-V machine: 8 harts, 128MB of RAM starting at 0x80000000,
4096-byte pages, 1024-byte disk blocks, 30 cached buffers spread over 13 buckets.

Every value can be overridden from an INI file (all keys optional, default section):

	ncpu      = 8
	nbuf      = 30
	nbucket   = 13
	pagesize  = 4096
	blocksize = 1024
	kernbase  = 2147483648
	kernelend = 2148532224
	phystop   = 2281701376
	diskdir   = disk
	loglevel  = info
*/
package config

import (
	beecfg "github.com/astaxie/beego/config"
	"github.com/pkg/errors"
)

const (
	// KernBase is where RAM starts and the kernel image is loaded
	KernBase uint64 = 0x80000000
	// default size of RAM
	ramSize uint64 = 128 * 1024 * 1024
	// default size of the kernel image. the first address after it is `end`
	kernelImageSize uint64 = 1024 * 1024
)

// Config is the configuration of the page allocator and the block cache
type Config struct {
	// NCPU is the number of processors, so the number of allocator pools
	NCPU int
	// NBuf is the number of buffers in the block cache
	NBuf int
	// NBucket is the number of hash buckets of the block cache
	NBucket int
	// PageSize is the size of one frame
	PageSize uint64
	// BlockSize is the size of one disk block (buffer payload)
	BlockSize int
	// KernBase is the lowest physical address
	KernBase uint64
	// KernelEnd is the first address after the kernel image
	KernelEnd uint64
	// PhysTop is the top of physical memory (exclusive)
	PhysTop uint64
	// DiskDir is where disk images are stored
	DiskDir string
	// LogLevel is the name of the log level
	LogLevel string
}

// Default returns the default configuration
func Default() Config {
	return Config{
		NCPU:      8,
		NBuf:      30,
		NBucket:   13,
		PageSize:  4096,
		BlockSize: 1024,
		KernBase:  KernBase,
		KernelEnd: KernBase + kernelImageSize,
		PhysTop:   KernBase + ramSize,
		DiskDir:   "disk",
		LogLevel:  "info",
	}
}

// Load reads the INI file at path on top of the defaults and validates the result
func Load(path string) (Config, error) {
	c := Default()
	cnf, err := beecfg.NewConfig("ini", path)
	if err != nil {
		return c, errors.Wrap(err, "config.NewConfig failed")
	}
	c.NCPU = cnf.DefaultInt("ncpu", c.NCPU)
	c.NBuf = cnf.DefaultInt("nbuf", c.NBuf)
	c.NBucket = cnf.DefaultInt("nbucket", c.NBucket)
	c.PageSize = uint64(cnf.DefaultInt64("pagesize", int64(c.PageSize)))
	c.BlockSize = cnf.DefaultInt("blocksize", c.BlockSize)
	c.KernBase = uint64(cnf.DefaultInt64("kernbase", int64(c.KernBase)))
	c.KernelEnd = uint64(cnf.DefaultInt64("kernelend", int64(c.KernelEnd)))
	c.PhysTop = uint64(cnf.DefaultInt64("phystop", int64(c.PhysTop)))
	c.DiskDir = cnf.DefaultString("diskdir", c.DiskDir)
	c.LogLevel = cnf.DefaultString("loglevel", c.LogLevel)
	if err := c.Validate(); err != nil {
		return c, errors.Wrap(err, "Validate failed")
	}
	return c, nil
}

// Validate checks that the configuration describes a usable machine
func (c Config) Validate() error {
	if c.NCPU <= 0 {
		return errors.Errorf("ncpu must be positive: %d", c.NCPU)
	}
	if c.NBuf <= 0 {
		return errors.Errorf("nbuf must be positive: %d", c.NBuf)
	}
	if c.NBucket <= 0 {
		return errors.Errorf("nbucket must be positive: %d", c.NBucket)
	}
	if c.BlockSize <= 0 {
		return errors.Errorf("blocksize must be positive: %d", c.BlockSize)
	}
	// the free list link is stored in the first 8 bytes of a free frame
	if c.PageSize < 8 || c.PageSize&(c.PageSize-1) != 0 {
		return errors.Errorf("pagesize must be a power of two not less than 8: %d", c.PageSize)
	}
	if c.KernBase%c.PageSize != 0 {
		return errors.Errorf("kernbase is not page aligned: %#x", c.KernBase)
	}
	if c.KernelEnd < c.KernBase || c.KernelEnd >= c.PhysTop {
		return errors.Errorf("kernelend %#x is not in [%#x, %#x)", c.KernelEnd, c.KernBase, c.PhysTop)
	}
	return nil
}
