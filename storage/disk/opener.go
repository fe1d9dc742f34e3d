/*
This file defines opener interface and its implementations.
We don't want to execute disk I/O in test, so it's better to use byte slice instead of actual file in test.
For this reason, opener interface is defined. Opener opens the storage of a device. The implementations are:
- fileOpener: open and return the image file of the device.
- bufferOpener: open and return byte slice. this is intended to be used in test.
*/
package disk

import (
	"os"

	"github.com/HayatoShiba/ppmem/common"
	"github.com/pkg/errors"
)

// opener opens storage
type opener interface {
	open(common.Device) (storage, error)
	close() error
}

// fileOpener opens image files under dir
type fileOpener struct {
	dir string
	// cache storages after open the files
	st map[common.Device]storage
}

// newFileOpener initializes fileOpener
func newFileOpener(dir string) *fileOpener {
	return &fileOpener{
		dir: dir,
		st:  make(map[common.Device]storage),
	}
}

// open opens and returns the image file of the device
func (fo *fileOpener) open(dev common.Device) (storage, error) {
	// when file descriptor is cached, just return it
	st, ok := fo.st[dev]
	if ok {
		return st, nil
	}
	fd, err := os.OpenFile(getDeviceFilePath(fo.dir, dev), os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, errors.Wrap(err, "os.OpenFile failed")
	}
	// cache file descriptor when open the file
	fo.st[dev] = fileStorage{fd}
	return fileStorage{fd}, nil
}

// close closes every opened file
func (fo *fileOpener) close() error {
	var firstErr error
	for dev, st := range fo.st {
		if err := st.Close(); err != nil && firstErr == nil {
			firstErr = errors.Wrapf(err, "Close of device %d failed", dev)
		}
		delete(fo.st, dev)
	}
	return firstErr
}

// bufferOpener opens buffer
type bufferOpener struct {
	st map[common.Device]storage
}

// newBufferOpener initializes bufferOpener
func newBufferOpener() *bufferOpener {
	return &bufferOpener{
		st: make(map[common.Device]storage),
	}
}

// open returns the buffer of the device
func (bo *bufferOpener) open(dev common.Device) (storage, error) {
	buf, ok := bo.st[dev]
	if ok {
		return buf, nil
	}
	buf = newBufferStorage()
	bo.st[dev] = buf
	return buf, nil
}

// close keeps the buffers, so the contents survive like a file
func (bo *bufferOpener) close() error {
	return nil
}
