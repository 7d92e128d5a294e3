package main

import (
	"fmt"
	"log"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
)

//---------------- 1bpp framebuffer ----------------

// frameBuffer is the packed monochrome framebuffer behind the panel, eight
// pixels per byte, MSB first. A window restricts writes for partial updates.
type frameBuffer struct {
	w, h   int
	stride int
	pix    []byte
	window [4]int // x0, y0, x1, y1 (exclusive)
}

func newFrameBuffer(w, h int) *frameBuffer {
	fb := &frameBuffer{w: w, h: h, stride: w / 8, pix: make([]byte, w/8*h)}
	fb.SetFullWindow()
	return fb
}

func (fb *frameBuffer) Size() (int, int) { return fb.w, fb.h }

func (fb *frameBuffer) SetFullWindow() {
	fb.window = [4]int{0, 0, fb.w, fb.h}
}

// SetPartialWindow clips subsequent writes to the given rectangle.
func (fb *frameBuffer) SetPartialWindow(x, y, w, h int) {
	x0, y0, x1, y1 := x, y, x+w, y+h
	if x0 < 0 {
		x0 = 0
	}
	if y0 < 0 {
		y0 = 0
	}
	if x1 > fb.w {
		x1 = fb.w
	}
	if y1 > fb.h {
		y1 = fb.h
	}
	fb.window = [4]int{x0, y0, x1, y1}
}

// DrawPixel writes one pixel, clipped to the current window. Bit set = light.
func (fb *frameBuffer) DrawPixel(x, y int, light bool) {
	if x < fb.window[0] || y < fb.window[1] || x >= fb.window[2] || y >= fb.window[3] {
		return
	}
	i := y*fb.stride + x/8
	mask := byte(0x80 >> (x % 8))
	if light {
		fb.pix[i] |= mask
	} else {
		fb.pix[i] &^= mask
	}
}

func (fb *frameBuffer) FillScreen(light bool) {
	v := byte(0x00)
	if light {
		v = 0xFF
	}
	for i := range fb.pix {
		fb.pix[i] = v
	}
}

//---------------- UC8179 panel driver ----------------

const (
	UC8179_PANEL_SETTING   = 0x00
	UC8179_POWER_SETTING   = 0x01
	UC8179_POWER_OFF       = 0x02
	UC8179_POWER_ON        = 0x04
	UC8179_BOOSTER_START   = 0x06
	UC8179_DEEP_SLEEP      = 0x07
	UC8179_DATA_OLD        = 0x10
	UC8179_DISPLAY_REFRESH = 0x12
	UC8179_DATA_NEW        = 0x13
	UC8179_DUAL_SPI        = 0x15
	UC8179_VCOM_INTERVAL   = 0x50
	UC8179_TCON            = 0x60
	UC8179_RESOLUTION      = 0x61
	UC8179_CASCADE         = 0xE0
	UC8179_FORCE_TEMP      = 0xE5

	EPD_BUSY_TIMEOUT = 30 * time.Second
	SPI_CHUNK_BYTES  = 4096
)

// Epd drives the 7.5" UC8179 monochrome panel over SPI.
type Epd struct {
	*frameBuffer

	conn spi.Conn
	port spi.PortCloser
	rst  gpio.PinOut
	dc   gpio.PinOut
	busy gpio.PinIn

	fullRefreshEvery int
	partialRuns      int
	asleep           bool
}

func newEpd(cfg Config) (*Epd, error) {
	port, err := spireg.Open(cfg.SPIPort)
	if err != nil {
		return nil, fmt.Errorf("epd: open %s: %w", cfg.SPIPort, err)
	}
	conn, err := port.Connect(4000*physic.KiloHertz, spi.Mode0, 8)
	if err != nil {
		port.Close()
		return nil, fmt.Errorf("epd: connect: %w", err)
	}

	rst := gpioreg.ByName(cfg.PinReset)
	dc := gpioreg.ByName(cfg.PinDC)
	busy := gpioreg.ByName(cfg.PinBusy)
	if rst == nil || dc == nil || busy == nil {
		port.Close()
		return nil, fmt.Errorf("epd: gpio pins %s/%s/%s not found",
			cfg.PinReset, cfg.PinDC, cfg.PinBusy)
	}
	if err := busy.In(gpio.PullUp, gpio.NoEdge); err != nil {
		port.Close()
		return nil, fmt.Errorf("epd: busy pin: %w", err)
	}

	return &Epd{
		frameBuffer:      newFrameBuffer(EPD_WIDTH, EPD_HEIGHT),
		conn:             conn,
		port:             port,
		rst:              rst,
		dc:               dc,
		busy:             busy,
		fullRefreshEvery: cfg.FullRefreshEvery,
	}, nil
}

func (e *Epd) sendCommand(cmd byte) {
	e.dc.Out(gpio.Low)
	e.conn.Tx([]byte{cmd}, nil)
}

func (e *Epd) sendData(data ...byte) {
	e.dc.Out(gpio.High)
	for len(data) > 0 {
		n := len(data)
		if n > SPI_CHUNK_BYTES {
			n = SPI_CHUNK_BYTES
		}
		e.conn.Tx(data[:n], nil)
		data = data[n:]
	}
}

func (e *Epd) reset() {
	e.rst.Out(gpio.High)
	time.Sleep(20 * time.Millisecond)
	e.rst.Out(gpio.Low)
	time.Sleep(2 * time.Millisecond)
	e.rst.Out(gpio.High)
	time.Sleep(20 * time.Millisecond)
}

// waitUntilIdle blocks while the controller holds BUSY low. The wait is
// bounded so a wedged panel cannot hang the wake cycle forever.
func (e *Epd) waitUntilIdle() {
	deadline := time.Now().Add(EPD_BUSY_TIMEOUT)
	for e.busy.Read() == gpio.Low {
		if time.Now().After(deadline) {
			log.Printf("epd: busy timeout after %s", EPD_BUSY_TIMEOUT)
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// Init brings the controller out of reset and programs the panel for normal
// (full refresh) operation.
func (e *Epd) Init() {
	e.reset()

	e.sendCommand(UC8179_POWER_SETTING)
	e.sendData(0x07, 0x07, 0x3F, 0x3F) // VGH=20V VGL=-20V VDH=15V VDL=-15V
	e.sendCommand(UC8179_BOOSTER_START)
	e.sendData(0x17, 0x17, 0x28, 0x17)
	e.sendCommand(UC8179_POWER_ON)
	time.Sleep(100 * time.Millisecond)
	e.waitUntilIdle()

	e.sendCommand(UC8179_PANEL_SETTING)
	e.sendData(0x1F) // KW mode, internal temperature sensor
	e.sendCommand(UC8179_RESOLUTION)
	e.sendData(0x03, 0x20, 0x01, 0xE0) // 800x480
	e.sendCommand(UC8179_DUAL_SPI)
	e.sendData(0x00)
	e.sendCommand(UC8179_VCOM_INTERVAL)
	e.sendData(0x10, 0x07)
	e.sendCommand(UC8179_TCON)
	e.sendData(0x22)

	e.asleep = false
}

// ensureAwake re-initializes the controller after hibernation. The panel keeps
// its image while hibernated (bistable), only the controller needs waking.
func (e *Epd) ensureAwake() {
	if e.asleep {
		e.Init()
	}
}

func (e *Epd) pushFrame() {
	inverted := make([]byte, len(e.pix))
	for i, b := range e.pix {
		inverted[i] = ^b
	}
	e.sendCommand(UC8179_DATA_NEW)
	e.sendData(inverted...)
}

// FullRefresh pushes the framebuffer with the slow full waveform. Clears any
// ghosting accumulated by partial refreshes.
func (e *Epd) FullRefresh() {
	e.ensureAwake()

	old := make([]byte, len(e.pix))
	for i := range old {
		old[i] = 0xFF
	}
	e.sendCommand(UC8179_DATA_OLD)
	e.sendData(old...)
	e.pushFrame()

	e.sendCommand(UC8179_DISPLAY_REFRESH)
	time.Sleep(100 * time.Millisecond)
	e.waitUntilIdle()
	e.partialRuns = 0
}

// PartialRefresh pushes the framebuffer with the fast low-flash waveform.
// After fullRefreshEvery consecutive partial updates it falls back to a full
// refresh to clear ghosting.
func (e *Epd) PartialRefresh() {
	if e.fullRefreshEvery > 0 && e.partialRuns >= e.fullRefreshEvery {
		e.FullRefresh()
		return
	}
	e.ensureAwake()

	e.sendCommand(UC8179_PANEL_SETTING)
	e.sendData(0x1F)
	e.sendCommand(UC8179_VCOM_INTERVAL)
	e.sendData(0x10, 0x07)
	e.sendCommand(UC8179_CASCADE)
	e.sendData(0x02) // enable partial mode
	e.sendCommand(UC8179_FORCE_TEMP)
	e.sendData(0x5A)

	e.pushFrame()

	e.sendCommand(UC8179_DISPLAY_REFRESH)
	time.Sleep(10 * time.Millisecond)
	e.waitUntilIdle()
	e.partialRuns++
}

// Hibernate drops the controller into its lowest-power retained mode. The
// displayed image persists without power.
func (e *Epd) Hibernate() {
	if e.asleep {
		return
	}
	e.sendCommand(UC8179_POWER_OFF)
	e.waitUntilIdle()
	e.sendCommand(UC8179_DEEP_SLEEP)
	e.sendData(0xA5)
	e.asleep = true
}

// PowerOff is the pre-deep-sleep shutdown; identical to hibernation since the
// whole board loses power right after.
func (e *Epd) PowerOff() {
	e.Hibernate()
}

func (e *Epd) Close() error {
	e.Hibernate()
	return e.port.Close()
}
