package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	svg "github.com/ajstarks/svgo"
)

//---------------- Battery history ----------------

const (
	MAX_BATTERY_SAMPLES = 144 // 24h of 10-minute cycles
	GRAPH_WIDTH         = 400
	GRAPH_HEIGHT        = 160
	GRAPH_MARGIN        = 20
)

// BatterySample is one per-cycle battery measurement.
type BatterySample struct {
	Timestamp time.Time `json:"timestamp"`
	Volts     float64   `json:"volts"`
	Percent   int       `json:"percent"`
}

// BatteryHistory keeps a bounded run of samples on tmpfs. It survives light
// sleep and is lost on deep sleep or power loss, like the rest of the
// retained state.
type BatteryHistory struct {
	mu      sync.RWMutex
	path    string
	Samples []BatterySample `json:"samples"`
}

func newBatteryHistory(path string) *BatteryHistory {
	h := &BatteryHistory{path: path}
	data, err := os.ReadFile(path)
	if err == nil {
		// A stale or corrupt file is just ignored; history is best effort.
		json.Unmarshal(data, h)
	}
	return h
}

// Record appends a reading, trims the ring and persists it.
func (h *BatteryHistory) Record(r BatteryReading) {
	if !r.Supported() {
		return
	}
	h.mu.Lock()
	h.Samples = append(h.Samples, BatterySample{
		Timestamp: time.Now(),
		Volts:     r.Volts,
		Percent:   r.Percent,
	})
	if len(h.Samples) > MAX_BATTERY_SAMPLES {
		h.Samples = h.Samples[len(h.Samples)-MAX_BATTERY_SAMPLES:]
	}
	data, err := json.Marshal(h)
	h.mu.Unlock()
	if err == nil {
		os.WriteFile(h.path, data, 0644)
	}
}

func (h *BatteryHistory) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.Samples)
}

// RenderSVG writes the battery percentage graph for the diagnostics server.
func (h *BatteryHistory) RenderSVG(w io.Writer) {
	h.mu.RLock()
	samples := make([]BatterySample, len(h.Samples))
	copy(samples, h.Samples)
	h.mu.RUnlock()

	canvas := svg.New(w)
	canvas.Start(GRAPH_WIDTH, GRAPH_HEIGHT)
	canvas.Rect(0, 0, GRAPH_WIDTH, GRAPH_HEIGHT, "fill:white;stroke:black")

	if len(samples) == 0 {
		canvas.Text(GRAPH_WIDTH/2, GRAPH_HEIGHT/2, "no samples",
			"text-anchor:middle;font-size:14px;fill:gray")
		canvas.End()
		return
	}

	plotW := GRAPH_WIDTH - 2*GRAPH_MARGIN
	plotH := GRAPH_HEIGHT - 2*GRAPH_MARGIN
	xs := make([]int, len(samples))
	ys := make([]int, len(samples))
	for i, s := range samples {
		x := GRAPH_MARGIN
		if len(samples) > 1 {
			x += i * plotW / (len(samples) - 1)
		}
		xs[i] = x
		ys[i] = GRAPH_MARGIN + plotH - s.Percent*plotH/100
	}
	canvas.Polyline(xs, ys, "fill:none;stroke:black;stroke-width:2")

	last := samples[len(samples)-1]
	canvas.Text(GRAPH_WIDTH-GRAPH_MARGIN, GRAPH_MARGIN-5,
		fmt.Sprintf("%d%% (%.2fV)", last.Percent, last.Volts),
		"text-anchor:end;font-size:12px;fill:black")
	canvas.End()
}
