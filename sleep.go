package main

import (
	"fmt"
	"log"
	"os"
	"os/exec"
	"time"
)

//---------------- Sleep scheduler ----------------

const (
	LIGHT_SLEEP = iota
	DEEP_SLEEP
)

// SleepPlan is computed fresh every cycle from the current wall clock and is
// never cached.
type SleepPlan struct {
	Kind        int
	DurationMs  int   // light sleep
	DurationSec int64 // deep sleep
}

// isDeepSleepTime reports whether hour falls inside the overnight window
// [start, end).
func isDeepSleepTime(hour, start, end int) bool {
	return hour >= start && hour < end
}

// secondsUntilWindowEnd returns the seconds from hour:minute until endHour:00,
// wrapping across midnight, plus the fixed wake buffer.
func secondsUntilWindowEnd(hour, minute, endHour int) int64 {
	h := (endHour - hour + 24) % 24
	return int64(h)*3600 - int64(minute)*60 + DEEP_SLEEP_BUFFER_SEC
}

// computeSleepPlan decides between the overnight deep sleep and the normal
// inter-refresh light sleep.
func computeSleepPlan(now time.Time, cfg Config) SleepPlan {
	if isDeepSleepTime(now.Hour(), cfg.DeepSleepStartHour, cfg.DeepSleepEndHour) {
		return SleepPlan{
			Kind:        DEEP_SLEEP,
			DurationSec: secondsUntilWindowEnd(now.Hour(), now.Minute(), cfg.DeepSleepEndHour),
		}
	}
	return SleepPlan{Kind: LIGHT_SLEEP, DurationMs: cfg.RefreshIntervalMs}
}

// armWakealarm programs the RTC to fire after d. The alarm register must be
// cleared before it can be rewritten.
func armWakealarm(path string, now time.Time, d time.Duration) error {
	if err := os.WriteFile(path, []byte("0"), 0644); err != nil {
		return fmt.Errorf("%w: clear: %v", errWakealarm, err)
	}
	at := now.Add(d).Unix()
	if err := os.WriteFile(path, []byte(fmt.Sprintf("%d", at)), 0644); err != nil {
		return fmt.Errorf("%w: set: %v", errWakealarm, err)
	}
	return nil
}

// lightSleep suspends the wake cycle until the refresh timer expires or one of
// the buttons fires. Execution resumes here afterwards, which is what keeps
// light-sleep wakes fast and allows partial panel refresh.
func lightSleep(plan SleepPlan, buttons *buttonMonitor) int {
	timer := time.NewTimer(time.Duration(plan.DurationMs) * time.Millisecond)
	defer timer.Stop()
	select {
	case <-timer.C:
		return WAKE_TIMER
	case id := <-buttons.Wake:
		if id == BUTTON_SLIDE {
			return WAKE_BUTTON_SLIDE
		}
		return WAKE_BUTTON_REFRESH
	}
}

// enterDeepSleep powers the device down for the rest of the overnight window.
// It never returns: the RTC alarm (or a button) powers the board back up and
// the whole boot sequence starts over. A failure to arm the alarm is a
// hardware fault and forces a reboot instead, so the device can never end up
// asleep with no way to wake.
func enterDeepSleep(cfg Config, plan SleepPlan, gw *networkGateway, panel *Epd) {
	deviceStore.ClearForDeepSleep()
	gw.Shutdown()
	panel.PowerOff()

	if err := armWakealarm(cfg.RTCWakealarmPath, time.Now(), time.Duration(plan.DurationSec)*time.Second); err != nil {
		log.Printf("deep sleep: %v, rebooting instead", err)
		time.Sleep(3 * time.Second)
		if err := exec.Command("reboot").Run(); err != nil {
			log.Printf("reboot failed: %v", err)
			os.Exit(1)
		}
		select {}
	}

	log.Printf("deep sleep: powering off for %ds", plan.DurationSec)
	if err := exec.Command("poweroff").Run(); err != nil {
		log.Printf("poweroff failed: %v, rebooting", err)
		if err := exec.Command("reboot").Run(); err != nil {
			os.Exit(1)
		}
	}
	select {}
}
