package jpegx

import (
	"encoding/binary"
	"fmt"
	"os"
)

// Dimensions reads pixel width/height from the first SOF marker of a
// JPEG byte stream without decoding the image.
func Dimensions(data []byte) (width, height int, err error) {
	if len(data) < 4 || data[0] != 0xFF || data[1] != 0xD8 {
		return 0, 0, fmt.Errorf("not a jpeg stream")
	}
	i := 2
	for i+3 < len(data) {
		if data[i] != 0xFF {
			i++
			continue
		}
		// Skip fill bytes.
		for i < len(data) && data[i] == 0xFF {
			i++
		}
		if i >= len(data) {
			break
		}
		marker := data[i]
		i++

		// Standalone markers carry no length.
		if marker == 0xD8 || (marker >= 0xD0 && marker <= 0xD7) || marker == 0x01 {
			continue
		}
		if marker == 0xDA {
			// Start of scan, no SOF seen.
			break
		}
		if i+1 >= len(data) {
			break
		}
		segLen := int(binary.BigEndian.Uint16(data[i : i+2]))
		if isSOF(marker) {
			if i+6 >= len(data) {
				break
			}
			height = int(binary.BigEndian.Uint16(data[i+3 : i+5]))
			width = int(binary.BigEndian.Uint16(data[i+5 : i+7]))
			return width, height, nil
		}
		i += segLen
	}
	return 0, 0, fmt.Errorf("no SOF marker found")
}

// DimensionsFile probes the file on disk.
func DimensionsFile(path string) (int, int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, 0, fmt.Errorf("read jpeg %s: %w", path, err)
	}
	return Dimensions(data)
}

func isSOF(marker byte) bool {
	switch marker {
	case 0xC0, 0xC1, 0xC2, 0xC3, 0xC5, 0xC6, 0xC7, 0xC9, 0xCA, 0xCB, 0xCD, 0xCE, 0xCF:
		return true
	default:
		return false
	}
}
