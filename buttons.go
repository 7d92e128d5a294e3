package main

import (
	"log"
	"time"

	evdev "github.com/holoplot/go-evdev"
)

//---------------- Wake buttons ----------------

const (
	BUTTON_REFRESH = iota
	BUTTON_SLIDE
)

func buttonName(id int) string {
	if id == BUTTON_SLIDE {
		return "SLIDE"
	}
	return "REFRESH"
}

// debouncer suppresses edges that arrive too soon after the previous one.
type debouncer struct {
	last time.Time
	min  time.Duration
}

func (d *debouncer) Press(t time.Time) bool {
	if !d.last.IsZero() && t.Sub(d.last) < d.min {
		return false
	}
	d.last = t
	return true
}

// buttonMonitor watches the two gpio-keys input devices. Presses land on Wake
// (buffered, one pending press) and satisfy both the in-cycle poll and the
// light-sleep wake condition.
type buttonMonitor struct {
	Wake chan int
}

func newButtonMonitor(cfg Config) *buttonMonitor {
	m := &buttonMonitor{Wake: make(chan int, 1)}
	m.watch(cfg.ButtonRefreshDevice, BUTTON_REFRESH)
	m.watch(cfg.ButtonSlideDevice, BUTTON_SLIDE)
	return m
}

// watch finds the input device by name and starts reading key events from it.
// A missing device is logged and skipped; the timer wake still works.
func (m *buttonMonitor) watch(name string, id int) {
	paths, err := evdev.ListDevicePaths()
	if err != nil {
		log.Printf("buttons: ListDevicePaths: %v", err)
		return
	}
	var devPath string
	for _, ip := range paths {
		if ip.Name == name {
			devPath = ip.Path
			break
		}
	}
	if devPath == "" {
		log.Printf("buttons: no input device named %q", name)
		return
	}

	dev, err := evdev.Open(devPath)
	if err != nil {
		log.Printf("buttons: open %s: %v", devPath, err)
		return
	}
	log.Printf("buttons: %s button on %s", buttonName(id), devPath)

	go func() {
		deb := debouncer{min: BUTTON_DEBOUNCE_MS * time.Millisecond}
		for {
			ev, err := dev.ReadOne()
			if err != nil {
				log.Printf("buttons: read %s: %v", buttonName(id), err)
				time.Sleep(100 * time.Millisecond)
				continue
			}
			// Buttons are active-low; the kernel reports value 1 on press.
			if ev.Type != evdev.EV_KEY || ev.Value != 1 {
				continue
			}
			if !deb.Press(time.Now()) {
				continue
			}
			select {
			case m.Wake <- id:
			default:
			}
		}
	}()
}

// Poll waits up to window for a pending press, checking every BUTTON_POLL_MS.
// Returns the button id, or -1 if nothing was pressed.
func (m *buttonMonitor) Poll(window time.Duration) int {
	deadline := time.Now().Add(window)
	for {
		select {
		case id := <-m.Wake:
			return id
		default:
		}
		if !time.Now().Before(deadline) {
			return -1
		}
		time.Sleep(BUTTON_POLL_MS * time.Millisecond)
	}
}
