package main

import (
	"log"
	"os"
	"time"

	"periph.io/x/host/v3"
)

const (
	REFRESH_ATTEMPTS       = 2
	REFRESH_RETRY_DELAY    = 2 * time.Second
	BUTTON_POLL_WINDOW     = 500 * time.Millisecond
	WAKE_STABILIZE_DELAY   = 50 * time.Millisecond
	FIRST_BOOT_ERROR_DELAY = 5 * time.Second
)

var cfg Config

func main() {
	configPath := "config.json"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	var err error
	cfg, err = loadConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if _, err := host.Init(); err != nil {
		log.Fatal(err)
	}
	if err := setCPUGovernor(cfg); err != nil {
		log.Printf("cpu governor: %v", err)
	}

	panel, err := newEpd(cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer panel.Close()

	gw := newNetworkGateway(cfg)
	buttons := newButtonMonitor(cfg)
	history := newBatteryHistory(cfg.BatteryHistoryPath)

	go httpServer(cfg.DebugServerAddr, panel.frameBuffer, history)

	runLoop(panel, gw, buttons, history)
}

// bootStatus appends a status line during the very first boot and pushes it to
// the panel. No-op on later boots (boot is nil).
func bootStatus(boot *bootScreen, panel *Epd, text string) {
	if boot == nil {
		return
	}
	boot.AddLine(text)
	frameMutex.Lock()
	boot.RenderTo(panel)
	frameMutex.Unlock()
	panel.FullRefresh()
}

func bootMark(boot *bootScreen, panel *Epd, ok bool) {
	if boot == nil {
		return
	}
	boot.MarkLast(ok)
	frameMutex.Lock()
	boot.RenderTo(panel)
	frameMutex.Unlock()
	panel.FullRefresh()
}

// refreshDashboard fetches and renders the dashboard image, retrying once.
// All attempts failing is non-fatal: the previous panel content stays up and
// the next cycle tries again.
func refreshDashboard(gw *networkGateway, panel *Epd, batt BatteryReading,
	boot *bootScreen, partial bool) error {

	bootStatus(boot, panel, "loading dashboard")

	var lastErr error
	for attempt := 1; attempt <= REFRESH_ATTEMPTS; attempt++ {
		if attempt > 1 {
			time.Sleep(REFRESH_RETRY_DELAY)
		}

		if err := gw.Connect(); err != nil {
			lastErr = err
		} else {
			buf, err := gw.FetchImage(batt.Percent)
			if err != nil {
				lastErr = err
			} else {
				frameMutex.Lock()
				panel.SetFullWindow()
				renderErr := decodeAndRender(buf, panel)
				frameMutex.Unlock()
				buf.Release()
				if renderErr == nil {
					if partial {
						panel.PartialRefresh()
					} else {
						panel.FullRefresh()
					}
					bootMark(boot, panel, true)
					return nil
				}
				lastErr = renderErr
			}
		}

		log.Printf("refresh attempt %d/%d failed: %v", attempt, REFRESH_ATTEMPTS, lastErr)
		if attempt == 1 && boot != nil {
			// Keep the failure mark visible before power is cut on the next
			// sleep transition.
			bootMark(boot, panel, false)
			time.Sleep(FIRST_BOOT_ERROR_DELAY)
		}
	}
	bootMark(boot, panel, false)
	return lastErr
}

// runLoop is the wake cycle: determine wake cause, initialize, sync time,
// gate on the deep-sleep window, refresh, handle buttons, sleep.
func runLoop(panel *Epd, gw *networkGateway, buttons *buttonMonitor, history *BatteryHistory) {
	wake := WAKE_COLD_BOOT
	failedCycles := 0

	for {
		// Step 1: wake accounting.
		st := deviceStore.Load()
		st.BootCount++
		st.LastWakeEpoch = time.Now().Unix()
		deviceStore.Save(st)
		log.Printf("wake cycle %d, cause %s", st.BootCount, wakeName(wake))

		if wake == WAKE_BUTTON_REFRESH || wake == WAKE_BUTTON_SLIDE {
			// Levels are noisy right after resume.
			time.Sleep(WAKE_STABILIZE_DELAY)
		}

		// Step 2: panel bring-up. partial refresh is only allowed when the
		// panel was already initialized before this cycle.
		wasInitialized := st.DisplayInitialized
		firstEver := st.BootCount == 1
		var boot *bootScreen
		if !st.DisplayInitialized {
			panel.Init()
			st.DisplayInitialized = true
			deviceStore.Save(st)
			if firstEver {
				boot = newBootScreen(EPD_WIDTH, EPD_HEIGHT)
			}
		}

		// Step 3: time sync, leaving the network up for the fetch below.
		if !st.TimeSynced {
			bootStatus(boot, panel, "connecting")
			if err := gw.Connect(); err != nil {
				log.Printf("connect: %v", err)
				bootMark(boot, panel, false)
			} else {
				bootMark(boot, panel, true)
				bootStatus(boot, panel, "syncing time")
				if syncTime(cfg) {
					st.TimeSynced = true
					deviceStore.Save(st)
					bootMark(boot, panel, true)
				} else {
					log.Println("time sync failed, proceeding on local clock")
					bootMark(boot, panel, false)
				}
			}
		}

		// Step 4: pending button press, consumed after the sleep-gate check.
		pending := buttons.Poll(BUTTON_POLL_WINDOW)

		// Step 5: deep-sleep gate. enterDeepSleep never returns.
		plan := computeSleepPlan(clock.localNow(), cfg)
		if plan.Kind == DEEP_SLEEP {
			log.Printf("inside deep-sleep window [%d,%d), sleeping %ds",
				cfg.DeepSleepStartHour, cfg.DeepSleepEndHour, plan.DurationSec)
			enterDeepSleep(cfg, plan, gw, panel)
		}

		// Step 6: dashboard refresh.
		batt := readBattery(cfg)
		history.Record(batt)
		err := refreshDashboard(gw, panel, batt, boot, wasInitialized)
		if err != nil {
			failedCycles++
			log.Printf("dashboard not updated this cycle (%d failed): %v", failedCycles, err)
		} else {
			failedCycles = 0
		}
		diag.update(wake, batt, err, failedCycles)

		// Step 7: pending button action.
		switch pending {
		case BUTTON_REFRESH:
			log.Println("refresh button: forcing out-of-schedule refresh")
			err = refreshDashboard(gw, panel, batt, nil, true)
			if err != nil {
				failedCycles++
			} else {
				failedCycles = 0
			}
			diag.update(WAKE_BUTTON_REFRESH, batt, err, failedCycles)
		case BUTTON_SLIDE:
			// Placeholder for the slide action; acknowledged only.
			log.Println("slide button pressed")
		}

		// Step 8: light sleep until the next tick or a button.
		gw.Shutdown()
		panel.Hibernate()
		wake = lightSleep(SleepPlan{Kind: LIGHT_SLEEP, DurationMs: cfg.RefreshIntervalMs}, buttons)
	}
}
