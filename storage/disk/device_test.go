package disk

import (
	"path/filepath"
	"testing"

	"github.com/HayatoShiba/ppmem/common"
	"github.com/stretchr/testify/assert"
)

func TestGetDeviceFilePath(t *testing.T) {
	tests := []struct {
		name     string
		dev      common.Device
		expected string
	}{
		{
			name:     "root device",
			dev:      common.Device(1),
			expected: filepath.Join("disk", "dev1.img"),
		},
		{
			name:     "second device",
			dev:      common.Device(2),
			expected: filepath.Join("disk", "dev2.img"),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := getDeviceFilePath("disk", tt.dev)
			assert.Equal(t, tt.expected, got)
		})
	}
}
