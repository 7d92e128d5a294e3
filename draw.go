package main

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"log"
	"os"

	"github.com/llgcode/draw2d/draw2dimg"
	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

//---------------- First-boot status screen ----------------

const (
	BOOT_FONT_PATH   = "assets/fonts/Orbitron-Medium.ttf"
	BOOT_FONT_SIZE   = 24
	BOOT_LINE_HEIGHT = 40
	BOOT_MARGIN      = 40
	BOOT_MARK_SIZE   = 24
)

var (
	checkSVG = `<svg viewBox="0 0 24 24"><path d="M4 13 L9 18 L20 6" stroke="#000" stroke-width="3" fill="none"/></svg>`
	crossSVG = `<svg viewBox="0 0 24 24"><path d="M5 5 L19 19 M19 5 L5 19" stroke="#000" stroke-width="3" fill="none"/></svg>`
)

// getBootFace loads the boot font, falling back to the built-in bitmap face
// when the TTF asset is missing (e.g. in tests).
func getBootFace() (font.Face, int) {
	fontBytes, err := os.ReadFile(BOOT_FONT_PATH)
	if err != nil {
		return basicfont.Face7x13, 13
	}
	ttfFont, err := opentype.Parse(fontBytes)
	if err != nil {
		log.Printf("boot font parse: %v", err)
		return basicfont.Face7x13, 13
	}
	face, err := opentype.NewFace(ttfFont, &opentype.FaceOptions{
		Size:    BOOT_FONT_SIZE,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return basicfont.Face7x13, 13
	}
	metrics := face.Metrics()
	return face, metrics.Ascent.Round() + metrics.Descent.Round()
}

// renderSVGIcon rasterizes an inline SVG into an RGBA image.
func renderSVGIcon(svgData string, w, h int) (*image.RGBA, error) {
	icon, err := oksvg.ReadIconStream(bytes.NewReader([]byte(svgData)))
	if err != nil {
		return nil, err
	}
	icon.SetTarget(0, 0, float64(w), float64(h))
	rgba := image.NewRGBA(image.Rect(0, 0, w, h))
	scanner := rasterx.NewScannerGV(w, h, rgba, rgba.Bounds())
	dasher := rasterx.NewDasher(w, h, scanner)
	icon.Draw(dasher, 1.0)
	return rgba, nil
}

// bootScreen accumulates incremental status lines ("connecting", "syncing
// time", "loading dashboard") with pass/fail marks during the very first boot.
type bootScreen struct {
	img    *image.RGBA
	face   font.Face
	lineH  int
	lines  int
	lastY  int
	marked bool
}

func newBootScreen(w, h int) *bootScreen {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{color.White}, image.Point{}, draw.Src)

	// Frame the status area so a half-drawn boot is recognizable at a glance.
	gc := draw2dimg.NewGraphicContext(img)
	gc.SetStrokeColor(color.Black)
	gc.SetLineWidth(3)
	drawRoundedRect(gc, 20, 20, float64(w-40), float64(h-40), 16)
	gc.Stroke()

	face, lineH := getBootFace()
	if lineH < BOOT_LINE_HEIGHT {
		lineH = BOOT_LINE_HEIGHT
	}
	return &bootScreen{img: img, face: face, lineH: lineH}
}

func drawRoundedRect(gc *draw2dimg.GraphicContext, x, y, w, h, r float64) {
	gc.MoveTo(x+r, y)
	gc.LineTo(x+w-r, y)
	gc.QuadCurveTo(x+w, y, x+w, y+r)
	gc.LineTo(x+w, y+h-r)
	gc.QuadCurveTo(x+w, y+h, x+w-r, y+h)
	gc.LineTo(x+r, y+h)
	gc.QuadCurveTo(x, y+h, x, y+h-r)
	gc.LineTo(x, y+r)
	gc.QuadCurveTo(x, y, x+r, y)
	gc.Close()
}

// AddLine appends a status line without a mark.
func (b *bootScreen) AddLine(text string) {
	b.lines++
	y := BOOT_MARGIN + b.lines*b.lineH
	d := &font.Drawer{
		Dst:  b.img,
		Src:  image.NewUniform(color.Black),
		Face: b.face,
		Dot:  fixed.P(BOOT_MARGIN, y),
	}
	d.DrawString(text)
	b.lastY = y
	b.marked = false
}

// MarkLast stamps a pass or fail mark next to the most recent line.
func (b *bootScreen) MarkLast(ok bool) {
	if b.lines == 0 || b.marked {
		return
	}
	svg := checkSVG
	if !ok {
		svg = crossSVG
	}
	icon, err := renderSVGIcon(svg, BOOT_MARK_SIZE, BOOT_MARK_SIZE)
	if err != nil {
		log.Printf("boot mark render: %v", err)
		return
	}
	at := image.Pt(b.img.Bounds().Dx()-BOOT_MARGIN-BOOT_MARK_SIZE, b.lastY-BOOT_MARK_SIZE+4)
	draw.Draw(b.img, image.Rectangle{Min: at, Max: at.Add(image.Pt(BOOT_MARK_SIZE, BOOT_MARK_SIZE))},
		icon, image.Point{}, draw.Over)
	b.marked = true
}

// RenderTo thresholds the RGBA status image onto the panel surface.
func (b *bootScreen) RenderTo(panel PanelSurface) {
	w, h := panel.Size()
	for y := 0; y < h && y < b.img.Bounds().Dy(); y++ {
		for x := 0; x < w && x < b.img.Bounds().Dx(); x++ {
			c := b.img.RGBAAt(x, y)
			lum := luminosity(c.R, c.G, c.B)
			// Transparent pixels stay light.
			light := c.A < 128 || lum > LUMINOSITY_THRESHOLD
			panel.DrawPixel(x, y, light)
		}
	}
}
