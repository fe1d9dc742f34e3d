package buffer

import "github.com/HayatoShiba/ppmem/common"

// tag is buffer tag
// buffer tag must be sufficient to locate where the block is on disk
type tag struct {
	// device
	dev common.Device
	// block number on the device
	blockno common.BlockNo
}

// newTag initializes buffer tag
func newTag(dev common.Device, blockno common.BlockNo) tag {
	return tag{
		dev:     dev,
		blockno: blockno,
	}
}
