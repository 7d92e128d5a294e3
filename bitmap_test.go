package main

import (
	"errors"
	"testing"
)

func TestUnpackIndex(t *testing.T) {
	tests := []struct {
		name string
		row  []byte
		bpp  int
		want []int
	}{
		{"8bpp", []byte{0x00, 0x7F, 0xFF}, 8, []int{0, 127, 255}},
		{"4bpp", []byte{0xA5, 0x0F}, 4, []int{0xA, 0x5, 0x0, 0xF}},
		{"2bpp", []byte{0b11_00_10_01}, 2, []int{3, 0, 2, 1}},
		{"1bpp", []byte{0b1010_0001}, 1, []int{1, 0, 1, 0, 0, 0, 0, 1}},
	}
	for _, tt := range tests {
		for x, want := range tt.want {
			if got := unpackIndex(tt.row, x, tt.bpp); got != want {
				t.Errorf("%s: unpackIndex(x=%d) = %d; want %d", tt.name, x, got, want)
			}
		}
	}
}

func TestLuminosity(t *testing.T) {
	tests := []struct {
		r, g, b byte
		want    int
	}{
		{0, 0, 0, 0},
		{255, 255, 255, 255},
		{255, 0, 0, 76},
		{0, 255, 0, 149},
		{0, 0, 255, 29},
		{128, 128, 128, 128},
	}
	for _, tt := range tests {
		if got := luminosity(tt.r, tt.g, tt.b); got != tt.want {
			t.Errorf("luminosity(%d, %d, %d) = %d; want %d", tt.r, tt.g, tt.b, got, tt.want)
		}
	}
}

func TestDecodeAndRenderAllDepths(t *testing.T) {
	// Palette entry 0 is dark, entry 1 is light; higher entries alternate.
	palette := [][3]byte{
		{0, 0, 0},       // L=0 -> dark
		{255, 255, 255}, // L=255 -> light
		{200, 200, 200}, // L=200 -> light
		{50, 50, 50},    // L=50 -> dark
	}

	for _, bpp := range []int{1, 2, 4, 8} {
		pal := palette
		if bpp == 1 {
			pal = palette[:2]
		}
		w, h := 16, 4
		// Checkerboard over the first two entries.
		data := buildBMP(w, h, bpp, pal, func(x, y int) int {
			return (x + y) % 2
		})

		panel := newFakePanel(w, h)
		buf := &imageBuffer{data: data}
		if err := decodeAndRender(buf, panel); err != nil {
			t.Fatalf("bpp=%d: decodeAndRender: %v", bpp, err)
		}
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				want := (x+y)%2 == 1 // entry 1 = white = light
				if panel.pix[y][x] != want {
					t.Fatalf("bpp=%d: pixel (%d,%d) = %t; want %t", bpp, x, y, panel.pix[y][x], want)
				}
			}
		}
	}
}

func TestDecodeAndRenderLuminosityThreshold(t *testing.T) {
	// Straddle the threshold: 127 must be dark, 128 light.
	palette := [][3]byte{
		{127, 127, 127},
		{128, 128, 128},
	}
	w, h := 8, 1
	data := buildBMP(w, h, 8, palette, func(x, y int) int { return x % 2 })

	panel := newFakePanel(w, h)
	if err := decodeAndRender(&imageBuffer{data: data}, panel); err != nil {
		t.Fatal(err)
	}
	for x := 0; x < w; x++ {
		want := x%2 == 1
		if panel.pix[0][x] != want {
			t.Errorf("pixel %d = %t; want %t", x, panel.pix[0][x], want)
		}
	}
}

func TestDecodeAndRenderClipsToSmallerBound(t *testing.T) {
	palette := [][3]byte{{0, 0, 0}, {255, 255, 255}}

	// Bitmap larger than panel: must clip, not crash.
	data := buildBMP(32, 8, 1, palette, func(x, y int) int { return 1 })
	panel := newFakePanel(16, 4)
	if err := decodeAndRender(&imageBuffer{data: data}, panel); err != nil {
		t.Fatalf("oversized bitmap: %v", err)
	}
	if !panel.pix[3][15] {
		t.Error("clipped render missed panel corner")
	}

	// Bitmap smaller than panel: pixels outside the bitmap stay untouched.
	data = buildBMP(8, 2, 1, palette, func(x, y int) int { return 1 })
	panel = newFakePanel(16, 4)
	if err := decodeAndRender(&imageBuffer{data: data}, panel); err != nil {
		t.Fatalf("undersized bitmap: %v", err)
	}
	if !panel.pix[1][7] {
		t.Error("in-bounds pixel not rendered")
	}
	if panel.pix[3][15] {
		t.Error("out-of-bitmap pixel was written")
	}
}

func TestDecodeRejectsNonIndexed(t *testing.T) {
	palette := [][3]byte{{0, 0, 0}, {255, 255, 255}}
	data := buildBMP(8, 2, 1, palette, func(x, y int) int { return 0 })

	// Patch the bit depth to 24 (direct color).
	data[28] = 24
	err := decodeAndRender(&imageBuffer{data: data}, newFakePanel(8, 2))
	if !errors.Is(err, errNotIndexedBitmap) {
		t.Errorf("24bpp: err = %v; want errNotIndexedBitmap", err)
	}

	// Bad magic.
	data = buildBMP(8, 2, 1, palette, func(x, y int) int { return 0 })
	data[0] = 'X'
	err = decodeAndRender(&imageBuffer{data: data}, newFakePanel(8, 2))
	if !errors.Is(err, errNotIndexedBitmap) {
		t.Errorf("bad magic: err = %v; want errNotIndexedBitmap", err)
	}

	// Compressed bitmaps are not supported.
	data = buildBMP(8, 2, 1, palette, func(x, y int) int { return 0 })
	data[30] = 1 // BI_RLE8
	err = decodeAndRender(&imageBuffer{data: data}, newFakePanel(8, 2))
	if !errors.Is(err, errNotIndexedBitmap) {
		t.Errorf("compressed: err = %v; want errNotIndexedBitmap", err)
	}
}

func TestDecodeRejectsTruncated(t *testing.T) {
	palette := [][3]byte{{0, 0, 0}, {255, 255, 255}}
	data := buildBMP(16, 8, 1, palette, func(x, y int) int { return 1 })

	// Header only.
	if err := decodeAndRender(&imageBuffer{data: data[:20]}, newFakePanel(16, 8)); err == nil {
		t.Error("expected error for truncated header")
	}

	// Pixel data cut short.
	if err := decodeAndRender(&imageBuffer{data: data[:len(data)-8]}, newFakePanel(16, 8)); err == nil {
		t.Error("expected error for truncated pixel data")
	}
}

func TestDecodeOutOfRangePaletteIndexIsDark(t *testing.T) {
	// 4bpp bitmap whose palette declares only 2 entries; index 3 is out of
	// range and must render dark without aborting.
	palette := [][3]byte{{255, 255, 255}, {255, 255, 255}}
	data := buildBMP(8, 1, 4, palette, func(x, y int) int {
		if x == 0 {
			return 3
		}
		return 0
	})

	panel := newFakePanel(8, 1)
	if err := decodeAndRender(&imageBuffer{data: data}, panel); err != nil {
		t.Fatal(err)
	}
	if panel.pix[0][0] {
		t.Error("out-of-range index rendered light; want dark")
	}
	if !panel.pix[0][1] {
		t.Error("valid index rendered dark; want light")
	}
}
