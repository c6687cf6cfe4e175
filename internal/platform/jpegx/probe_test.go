package jpegx

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

// minimalJPEG builds SOI + APP0 + SOF0 with the given dimensions.
func minimalJPEG(width, height int) []byte {
	buf := []byte{0xFF, 0xD8}

	app0 := make([]byte, 16)
	app0[0], app0[1] = 0xFF, 0xE0
	binary.BigEndian.PutUint16(app0[2:4], 14)
	copy(app0[4:], []byte("JFIF\x00"))
	buf = append(buf, app0...)

	sof := make([]byte, 2+17)
	sof[0], sof[1] = 0xFF, 0xC0
	binary.BigEndian.PutUint16(sof[2:4], 17)
	sof[4] = 8
	binary.BigEndian.PutUint16(sof[5:7], uint16(height))
	binary.BigEndian.PutUint16(sof[7:9], uint16(width))
	sof[9] = 3
	return append(buf, sof...)
}

func TestDimensions(t *testing.T) {
	w, h, err := Dimensions(minimalJPEG(320, 240))
	if err != nil {
		t.Fatalf("dimensions: %v", err)
	}
	if w != 320 || h != 240 {
		t.Fatalf("got %dx%d, want 320x240", w, h)
	}
}

func TestDimensionsProgressive(t *testing.T) {
	data := minimalJPEG(1920, 1080)
	// SOF2 (progressive) is probed the same way as SOF0.
	data[18+1] = 0xC2
	w, h, err := Dimensions(data)
	if err != nil {
		t.Fatalf("dimensions: %v", err)
	}
	if w != 1920 || h != 1080 {
		t.Fatalf("got %dx%d, want 1920x1080", w, h)
	}
}

func TestDimensionsRejectsNonJPEG(t *testing.T) {
	for _, data := range [][]byte{
		nil,
		{0x89, 0x50, 0x4E, 0x47},
		{0xFF, 0xD8},
	} {
		if _, _, err := Dimensions(data); err == nil {
			t.Fatalf("expected error for %v", data)
		}
	}
}

func TestDimensionsNoSOF(t *testing.T) {
	// SOI then straight to start-of-scan.
	data := []byte{0xFF, 0xD8, 0xFF, 0xDA, 0x00, 0x02}
	if _, _, err := Dimensions(data); err == nil {
		t.Fatal("expected error when no SOF marker exists")
	}
}

func TestDimensionsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "probe.jpg")
	if err := os.WriteFile(path, minimalJPEG(640, 360), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	w, h, err := DimensionsFile(path)
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	if w != 640 || h != 360 {
		t.Fatalf("got %dx%d, want 640x360", w, h)
	}

	if _, _, err := DimensionsFile(filepath.Join(t.TempDir(), "missing.jpg")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
