package common

// Device identifies a block device (disk image)
type Device uint32

// BlockNo is the number of a block on a device
// block n lives at byte offset n*BlockSize on the device
type BlockNo uint32
