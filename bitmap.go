package main

import (
	"encoding/binary"
	"fmt"
	"log"
)

//---------------- Indexed bitmap decoder ----------------

// PanelSurface is the drawing side of the e-paper driver. The decoder streams
// pixels into it one scanline at a time; nothing beyond what the surface
// itself retains is materialized.
type PanelSurface interface {
	Size() (width, height int)
	DrawPixel(x, y int, light bool)
}

const (
	BMP_FILE_HEADER_SIZE = 14
	BMP_COMPRESSION_RGB  = 0
	LUMINOSITY_THRESHOLD = 127
)

type bitmapHeader struct {
	width     int
	height    int
	bottomUp  bool
	bitsPerPx int
	palette   [][3]byte // RGB triples
	pixOffset int
	stride    int
}

// luminosity computes the ITU-R 601 luma of a palette entry.
func luminosity(r, g, b byte) int {
	return (299*int(r) + 587*int(g) + 114*int(b)) / 1000
}

// unpackIndex extracts the palette index of pixel column x from a packed
// scanline. Indices are packed most-significant-bits-first within each byte.
func unpackIndex(row []byte, x, bitsPerPx int) int {
	perByte := 8 / bitsPerPx
	b := row[x/perByte]
	shift := 8 - bitsPerPx - (x%perByte)*bitsPerPx
	return int(b>>shift) & (1<<bitsPerPx - 1)
}

// parseBitmapHeader validates the BMP headers and reads the palette. Only
// uncompressed palette-indexed bitmaps (1/2/4/8 bits per pixel) are accepted.
func parseBitmapHeader(data []byte) (*bitmapHeader, error) {
	if len(data) < BMP_FILE_HEADER_SIZE+40 {
		return nil, fmt.Errorf("bitmap: truncated header (%d bytes)", len(data))
	}
	if data[0] != 'B' || data[1] != 'M' {
		return nil, fmt.Errorf("%w: bad magic", errNotIndexedBitmap)
	}
	pixOffset := int(binary.LittleEndian.Uint32(data[10:14]))
	dibSize := int(binary.LittleEndian.Uint32(data[14:18]))
	if dibSize < 40 || len(data) < BMP_FILE_HEADER_SIZE+dibSize {
		return nil, fmt.Errorf("bitmap: bad DIB header size %d", dibSize)
	}

	width := int(int32(binary.LittleEndian.Uint32(data[18:22])))
	rawHeight := int(int32(binary.LittleEndian.Uint32(data[22:26])))
	bitsPerPx := int(binary.LittleEndian.Uint16(data[28:30]))
	compression := binary.LittleEndian.Uint32(data[30:34])

	switch bitsPerPx {
	case 1, 2, 4, 8:
	default:
		return nil, fmt.Errorf("%w: %d bits per pixel", errNotIndexedBitmap, bitsPerPx)
	}
	if compression != BMP_COMPRESSION_RGB {
		return nil, fmt.Errorf("%w: compression %d", errNotIndexedBitmap, compression)
	}
	if width <= 0 || rawHeight == 0 {
		return nil, fmt.Errorf("bitmap: bad dimensions %dx%d", width, rawHeight)
	}

	height := rawHeight
	bottomUp := true
	if rawHeight < 0 {
		height = -rawHeight
		bottomUp = false
	}

	clrUsed := int(binary.LittleEndian.Uint32(data[46:50]))
	if clrUsed == 0 || clrUsed > 1<<bitsPerPx {
		clrUsed = 1 << bitsPerPx
	}
	palOffset := BMP_FILE_HEADER_SIZE + dibSize
	if len(data) < palOffset+clrUsed*4 {
		return nil, fmt.Errorf("bitmap: truncated palette (%d entries)", clrUsed)
	}
	palette := make([][3]byte, clrUsed)
	for i := 0; i < clrUsed; i++ {
		// Palette entries are stored B, G, R, reserved.
		o := palOffset + i*4
		palette[i] = [3]byte{data[o+2], data[o+1], data[o]}
	}

	// Scanlines are padded to 32-bit boundaries.
	stride := (width*bitsPerPx + 31) / 32 * 4

	if pixOffset < palOffset+clrUsed*4 || pixOffset > len(data) {
		return nil, fmt.Errorf("bitmap: bad pixel offset %d", pixOffset)
	}

	return &bitmapHeader{
		width:     width,
		height:    height,
		bottomUp:  bottomUp,
		bitsPerPx: bitsPerPx,
		palette:   palette,
		pixOffset: pixOffset,
		stride:    stride,
	}, nil
}

// decodeAndRender streams the fetched bitmap into the panel surface, mapping
// each palette entry to the light or dark physical color by luminosity.
// Dimension mismatches against the panel are tolerated: decoding proceeds
// clipped to the smaller bound so minor server/client drift never crashes
// the device.
func decodeAndRender(buf *imageBuffer, panel PanelSurface) error {
	hdr, err := parseBitmapHeader(buf.Bytes())
	if err != nil {
		return err
	}

	panelW, panelH := panel.Size()
	if hdr.width != panelW || hdr.height != panelH {
		log.Printf("bitmap is %dx%d, panel is %dx%d; rendering clipped",
			hdr.width, hdr.height, panelW, panelH)
	}

	w := hdr.width
	if w > panelW {
		w = panelW
	}
	h := hdr.height
	if h > panelH {
		h = panelH
	}

	data := buf.Bytes()
	for y := 0; y < h; y++ {
		srcRow := y
		if hdr.bottomUp {
			srcRow = hdr.height - 1 - y
		}
		start := hdr.pixOffset + srcRow*hdr.stride
		if start+hdr.stride > len(data) {
			return fmt.Errorf("bitmap: truncated pixel data at row %d", srcRow)
		}
		row := data[start : start+hdr.stride]
		for x := 0; x < w; x++ {
			idx := unpackIndex(row, x, hdr.bitsPerPx)
			if idx >= len(hdr.palette) {
				// Out-of-range index: render dark rather than abort.
				panel.DrawPixel(x, y, false)
				continue
			}
			c := hdr.palette[idx]
			panel.DrawPixel(x, y, luminosity(c[0], c[1], c[2]) > LUMINOSITY_THRESHOLD)
		}
	}
	return nil
}
