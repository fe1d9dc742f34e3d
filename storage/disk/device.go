package disk

import (
	"fmt"
	"path/filepath"

	"github.com/HayatoShiba/ppmem/common"
)

// getDeviceFilePath returns the path of the image file of the device under dir
// - device 1: dir/dev1.img
func getDeviceFilePath(dir string, dev common.Device) string {
	return filepath.Join(dir, fmt.Sprintf("dev%d.img", dev))
}
