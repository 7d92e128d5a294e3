package main

import (
	"encoding/binary"
	"net/url"
	"os"
	"strconv"
	"strings"
	"testing"
)

// fakePanel records decoded pixels for assertions.
type fakePanel struct {
	w, h int
	pix  [][]bool // true = light
}

func newFakePanel(w, h int) *fakePanel {
	pix := make([][]bool, h)
	for i := range pix {
		pix[i] = make([]bool, w)
	}
	return &fakePanel{w: w, h: h, pix: pix}
}

func (p *fakePanel) Size() (int, int) { return p.w, p.h }

func (p *fakePanel) DrawPixel(x, y int, light bool) {
	if x < 0 || y < 0 || x >= p.w || y >= p.h {
		return
	}
	p.pix[y][x] = light
}

// buildBMP synthesizes an uncompressed palette-indexed BMP (bottom-up rows).
// index(x, y) yields the palette index for each pixel.
func buildBMP(w, h, bpp int, palette [][3]byte, index func(x, y int) int) []byte {
	stride := (w*bpp + 31) / 32 * 4
	palCount := len(palette)
	pixOffset := 14 + 40 + palCount*4
	total := pixOffset + stride*h
	buf := make([]byte, total)

	buf[0] = 'B'
	buf[1] = 'M'
	binary.LittleEndian.PutUint32(buf[2:6], uint32(total))
	binary.LittleEndian.PutUint32(buf[10:14], uint32(pixOffset))

	binary.LittleEndian.PutUint32(buf[14:18], 40)
	binary.LittleEndian.PutUint32(buf[18:22], uint32(w))
	binary.LittleEndian.PutUint32(buf[22:26], uint32(h))
	binary.LittleEndian.PutUint16(buf[26:28], 1)
	binary.LittleEndian.PutUint16(buf[28:30], uint16(bpp))
	binary.LittleEndian.PutUint32(buf[30:34], BMP_COMPRESSION_RGB)
	binary.LittleEndian.PutUint32(buf[34:38], uint32(stride*h))
	binary.LittleEndian.PutUint32(buf[46:50], uint32(palCount))

	for i, c := range palette {
		o := 14 + 40 + i*4
		buf[o] = c[2]   // B
		buf[o+1] = c[1] // G
		buf[o+2] = c[0] // R
	}

	perByte := 8 / bpp
	for r := 0; r < h; r++ {
		y := h - 1 - r // bottom-up
		rowStart := pixOffset + r*stride
		for x := 0; x < w; x++ {
			idx := index(x, y)
			shift := 8 - bpp - (x%perByte)*bpp
			buf[rowStart+x/perByte] |= byte(idx << shift)
		}
	}
	return buf
}

func readFileString(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// testConfigForServer points the gateway config at an httptest server URL.
func testConfigForServer(t *testing.T, serverURL string) Config {
	t.Helper()
	u, err := url.Parse(serverURL)
	if err != nil {
		t.Fatal(err)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		t.Fatal(err)
	}
	cfg := defaultConfig()
	cfg.ServerHost = u.Hostname()
	cfg.ServerPort = port
	cfg.ImagePath = "/dashboard.bmp"
	return cfg
}
