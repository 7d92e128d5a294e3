package main

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
)

//---------------- Diagnostics server ----------------

// frameMutex guards the panel framebuffer between the wake-cycle renderer and
// the diagnostics snapshot.
var frameMutex sync.RWMutex

// diagState is the read-only snapshot served on /status.
type diagState struct {
	mu           sync.RWMutex
	WakeReason   string  `json:"wake_reason"`
	TimeSynced   bool    `json:"time_synced"`
	BootCount    int     `json:"boot_count"`
	BatteryPct   int     `json:"battery_percent"`
	BatteryVolts float64 `json:"battery_volts"`
	LastFetchOK  bool    `json:"last_fetch_ok"`
	LastError    string  `json:"last_error,omitempty"`
	FailedCycles int     `json:"failed_cycles"`
	LocalTime    string  `json:"local_time"`
}

var diag = &diagState{}

func (d *diagState) update(wake int, batt BatteryReading, fetchErr error, failedCycles int) {
	st := deviceStore.Load()
	d.mu.Lock()
	d.WakeReason = wakeName(wake)
	d.TimeSynced = st.TimeSynced
	d.BootCount = st.BootCount
	d.BatteryPct = batt.Percent
	d.BatteryVolts = batt.Volts
	d.LastFetchOK = fetchErr == nil
	d.LastError = ""
	if fetchErr != nil {
		d.LastError = fetchErr.Error()
	}
	d.FailedCycles = failedCycles
	d.LocalTime = clock.localNow().Format(time.RFC3339)
	d.mu.Unlock()
}

// fbToImage expands the packed 1bpp framebuffer back to grayscale for the
// /frame endpoint.
func fbToImage(fb *frameBuffer) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, fb.w, fb.h))
	for y := 0; y < fb.h; y++ {
		for x := 0; x < fb.w; x++ {
			if fb.pix[y*fb.stride+x/8]&(0x80>>(x%8)) != 0 {
				img.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	return img
}

const indexHTML = `<!doctype html>
<html><head><title>home dashboard</title></head>
<body style="font-family:monospace">
<h3>home dashboard device</h3>
<p><a href="/status">status</a> | <a href="/battery.svg">battery graph</a></p>
<img src="/frame" style="border:1px solid #000;max-width:100%">
</body></html>`

func serveFrame(panel *frameBuffer) fiber.Handler {
	return func(c *fiber.Ctx) error {
		frameMutex.RLock()
		img := fbToImage(panel)
		frameMutex.RUnlock()

		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			return c.Status(fiber.StatusInternalServerError).SendString("Failed to encode image")
		}
		c.Set("Content-Type", "image/png")
		c.Set("Content-Length", strconv.Itoa(buf.Len()))
		return c.Send(buf.Bytes())
	}
}

func serveStatus(c *fiber.Ctx) error {
	diag.mu.RLock()
	defer diag.mu.RUnlock()
	return c.JSON(diag)
}

func serveBatteryGraph(history *BatteryHistory) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var buf bytes.Buffer
		history.RenderSVG(&buf)
		c.Set("Content-Type", "image/svg+xml")
		return c.Send(buf.Bytes())
	}
}

// httpServer runs the local diagnostics endpoint. Read-only: it serves
// snapshots and never touches the wake-cycle control path.
func httpServer(addr string, panel *frameBuffer, history *BatteryHistory) {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})

	app.Get("/", func(c *fiber.Ctx) error {
		c.Set("Content-Type", "text/html")
		return c.SendString(indexHTML)
	})
	app.Get("/frame", serveFrame(panel))
	app.Get("/status", serveStatus)
	app.Get("/battery.svg", serveBatteryGraph(history))

	log.Println("Starting diagnostics server on", addr)
	if err := app.Listen(addr); err != nil {
		log.Printf("diagnostics server: %v", err)
	}
}
