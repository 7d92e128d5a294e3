package main

import (
	"os"
	"strconv"
	"strings"
	"time"
)

//---------------- Battery monitor ----------------

// BATTERY_UNSUPPORTED distinguishes "no battery hardware" from "battery at 0%".
const BATTERY_UNSUPPORTED = -1

// Below this real (post-divider) voltage no battery can plausibly be attached.
const BATTERY_MIN_PLAUSIBLE_VOLTS = 2.0

// BatteryReading is recomputed every cycle and never persisted.
type BatteryReading struct {
	Volts   float64
	Percent int
}

// Supported reports whether the board has battery monitoring hardware.
func (r BatteryReading) Supported() bool {
	return r.Percent != BATTERY_UNSUPPORTED
}

// batteryPercent linearly maps volts onto [0,100] between the empty and full
// thresholds, clamped.
func batteryPercent(volts, empty, full float64) int {
	if full <= empty {
		return BATTERY_UNSUPPORTED
	}
	pct := int((volts - empty) / (full - empty) * 100)
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	return pct
}

// readBatteryVoltage reads the divided ADC voltage (microvolts in sysfs) and
// returns the real battery voltage.
func readBatteryVoltage(path string) (float64, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	rawUV, err := strconv.ParseFloat(strings.TrimSpace(string(content)), 64)
	if err != nil {
		return 0, err
	}
	return rawUV / 1000 / 1000 * BATTERY_DIVIDER, nil
}

// readBattery powers the monitoring circuit, samples the battery voltage and
// powers the circuit back down to avoid idle current draw.
func readBattery(cfg Config) BatteryReading {
	if err := os.WriteFile(cfg.BatteryEnablePath, []byte("1"), 0644); err == nil {
		// Let the divider settle before sampling.
		time.Sleep(10 * time.Millisecond)
		defer os.WriteFile(cfg.BatteryEnablePath, []byte("0"), 0644)
	}

	volts, err := readBatteryVoltage(cfg.BatteryVoltagePath)
	if err != nil || volts < BATTERY_MIN_PLAUSIBLE_VOLTS {
		return BatteryReading{Volts: volts, Percent: BATTERY_UNSUPPORTED}
	}
	return BatteryReading{
		Volts:   volts,
		Percent: batteryPercent(volts, cfg.BatteryEmptyVolts, cfg.BatteryFullVolts),
	}
}
