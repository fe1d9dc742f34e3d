// memcore boots the page allocator and the block cache and runs a concurrent workload on them.
//
//	memcore -config memcore.ini -threads 8 -iterations 1000
package main

import (
	"flag"
	"fmt"
	"os"
	"sync"

	"github.com/pkg/errors"

	"github.com/HayatoShiba/ppmem/common"
	"github.com/HayatoShiba/ppmem/config"
	"github.com/HayatoShiba/ppmem/cpu"
	"github.com/HayatoShiba/ppmem/lock"
	"github.com/HayatoShiba/ppmem/logging"
	"github.com/HayatoShiba/ppmem/memory/kalloc"
	"github.com/HayatoShiba/ppmem/memory/phys"
	"github.com/HayatoShiba/ppmem/storage/buffer"
	"github.com/HayatoShiba/ppmem/storage/disk"
)

func main() {
	configPath := flag.String("config", "", "path of the INI config (defaults are used when empty)")
	threads := flag.Int("threads", 8, "number of kernel threads")
	iterations := flag.Int("iterations", 1000, "operations per thread")
	nblocks := flag.Int("blocks", 64, "number of distinct blocks touched")
	flag.Parse()

	if err := run(*configPath, *threads, *iterations, *nblocks); err != nil {
		logging.Logger.Error("%+v", err)
		os.Exit(1)
	}
}

func run(configPath string, threads, iterations, nblocks int) error {
	cfg := config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			return errors.Wrap(err, "config.Load failed")
		}
	}
	if err := logging.SetLevel(cfg.LogLevel); err != nil {
		return errors.Wrap(err, "logging.SetLevel failed")
	}
	// every thread holds at most one buffer at a time
	if threads > cfg.NBuf {
		return errors.Errorf("threads %d must not exceed nbuf %d", threads, cfg.NBuf)
	}

	// threads migrate between processors on every pinned scope
	cpus := cpu.NewRoundRobin(cfg.NCPU)

	mem, err := phys.New(phys.PA(cfg.KernBase), phys.PA(cfg.PhysTop))
	if err != nil {
		return errors.Wrap(err, "phys.New failed")
	}
	defer mem.Close()
	alloc, err := kalloc.New(cfg, mem, cpus)
	if err != nil {
		return errors.Wrap(err, "kalloc.New failed")
	}

	dm, err := disk.NewManager(cfg.DiskDir, cfg.BlockSize)
	if err != nil {
		return errors.Wrap(err, "disk.NewManager failed")
	}
	defer dm.Close()
	bcache, err := buffer.NewManager(cfg, dm, cpus)
	if err != nil {
		return errors.Wrap(err, "buffer.NewManager failed")
	}

	logging.Logger.Info("memcore: %d cpus, %d free frames, %d buffers in %d buckets",
		cfg.NCPU, alloc.Len(), cfg.NBuf, cfg.NBucket)

	var (
		wg       sync.WaitGroup
		errMu    sync.Mutex
		firstErr error
	)
	for i := 0; i < threads; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			if err := worker(id, iterations, nblocks, alloc, bcache); err != nil {
				errMu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				errMu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	if firstErr != nil {
		return firstErr
	}

	for i := 0; i < cfg.NCPU; i++ {
		logging.Logger.Info("memcore: cpu %d has %d free frames", i, alloc.FreeCount(i))
	}
	cs, ds := bcache.Stats(), dm.Stats()
	fmt.Printf("frames free: %d\n", alloc.Len())
	fmt.Printf("bcache hits: %d misses: %d retries: %d\n", cs.Hits, cs.Misses, cs.Retries)
	fmt.Printf("disk reads: %d writes: %d\n", ds.Reads, ds.Writes)
	return nil
}

// worker copies a frame into a block and back, the way a pipe or a file write would
func worker(id, iterations, nblocks int, alloc *kalloc.Allocator, bcache *buffer.Manager) error {
	self := lock.NewOwner(fmt.Sprintf("thread%d", id))
	for i := 0; i < iterations; i++ {
		pa, ok := alloc.Allocate()
		if !ok {
			logging.Logger.Warn("memcore: thread %d: out of memory", id)
			continue
		}
		page := alloc.Page(pa)
		page[0] = byte(id)

		blockno := common.BlockNo((id*iterations + i) % nblocks)
		b, err := bcache.Read(self, common.Device(1), blockno)
		if err != nil {
			alloc.Free(pa)
			return errors.Wrapf(err, "Read of block %d failed", blockno)
		}
		n := copy(b.Data(), page)
		if i%4 == 0 {
			if err := bcache.Write(self, b); err != nil {
				bcache.Release(self, b)
				alloc.Free(pa)
				return errors.Wrapf(err, "Write of block %d failed", blockno)
			}
		}
		copy(page, b.Data()[:n])
		bcache.Release(self, b)
		alloc.Free(pa)
	}
	return nil
}
