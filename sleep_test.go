package main

import (
	"testing"
	"time"
)

func TestIsDeepSleepTime(t *testing.T) {
	// Default window [0,5).
	for h := 0; h < 24; h++ {
		want := h < 5
		if got := isDeepSleepTime(h, 0, 5); got != want {
			t.Errorf("isDeepSleepTime(%d, 0, 5) = %t; want %t", h, got, want)
		}
	}

	tests := []struct {
		hour, start, end int
		want             bool
	}{
		{1, 1, 6, true},
		{0, 1, 6, false},
		{5, 1, 6, true},
		{6, 1, 6, false},
		{12, 9, 17, true},
		{17, 9, 17, false},
		{8, 9, 17, false},
	}
	for _, tt := range tests {
		if got := isDeepSleepTime(tt.hour, tt.start, tt.end); got != tt.want {
			t.Errorf("isDeepSleepTime(%d, %d, %d) = %t; want %t",
				tt.hour, tt.start, tt.end, got, tt.want)
		}
	}
}

func TestSecondsUntilWindowEnd(t *testing.T) {
	tests := []struct {
		hour, minute, end int
		want              int64
	}{
		{2, 30, 5, 2*3600 - 30*60 + DEEP_SLEEP_BUFFER_SEC}, // 9120
		{0, 0, 5, 5*3600 + DEEP_SLEEP_BUFFER_SEC},
		{4, 59, 5, 3600 - 59*60 + DEEP_SLEEP_BUFFER_SEC},
		{23, 0, 5, 6*3600 + DEEP_SLEEP_BUFFER_SEC}, // wraps midnight
		{23, 45, 5, 6*3600 - 45*60 + DEEP_SLEEP_BUFFER_SEC},
	}
	for _, tt := range tests {
		if got := secondsUntilWindowEnd(tt.hour, tt.minute, tt.end); got != tt.want {
			t.Errorf("secondsUntilWindowEnd(%d, %d, %d) = %d; want %d",
				tt.hour, tt.minute, tt.end, got, tt.want)
		}
	}

	if got := secondsUntilWindowEnd(2, 30, 5); got != 9120 {
		t.Errorf("secondsUntilWindowEnd(2, 30, 5) = %d; want 9120", got)
	}
}

func TestSecondsUntilWindowEndMonotonic(t *testing.T) {
	// Advancing from 00:00 toward 05:00 must never increase the remaining time.
	prev := secondsUntilWindowEnd(0, 0, 5)
	for h := 0; h < 5; h++ {
		for m := 0; m < 60; m++ {
			if h == 0 && m == 0 {
				continue
			}
			got := secondsUntilWindowEnd(h, m, 5)
			if got > prev {
				t.Fatalf("secondsUntilWindowEnd(%d, %d, 5) = %d increased from %d", h, m, got, prev)
			}
			prev = got
		}
	}
}

func TestComputeSleepPlan(t *testing.T) {
	cfg := defaultConfig()

	at := func(h, m int) time.Time {
		return time.Date(2024, 6, 1, h, m, 0, 0, time.UTC)
	}

	plan := computeSleepPlan(at(14, 0), cfg)
	if plan.Kind != LIGHT_SLEEP {
		t.Fatalf("plan at 14:00 = %d; want LIGHT_SLEEP", plan.Kind)
	}
	if plan.DurationMs != 600000 {
		t.Errorf("light sleep duration = %dms; want 600000", plan.DurationMs)
	}

	plan = computeSleepPlan(at(2, 30), cfg)
	if plan.Kind != DEEP_SLEEP {
		t.Fatalf("plan at 02:30 = %d; want DEEP_SLEEP", plan.Kind)
	}
	if plan.DurationSec != 9120 {
		t.Errorf("deep sleep duration = %ds; want 9120", plan.DurationSec)
	}
}

func TestArmWakealarm(t *testing.T) {
	path := t.TempDir() + "/wakealarm"
	now := time.Unix(1700000000, 0)

	if err := armWakealarm(path, now, 9120*time.Second); err != nil {
		t.Fatalf("armWakealarm: %v", err)
	}
	data, err := readFileString(path)
	if err != nil {
		t.Fatal(err)
	}
	if data != "1700009120" {
		t.Errorf("wakealarm = %q; want %q", data, "1700009120")
	}

	if err := armWakealarm(t.TempDir()+"/missing/wakealarm", now, time.Second); err == nil {
		t.Error("expected error for unwritable wakealarm path")
	}
}

func TestLightSleepWakesOnButton(t *testing.T) {
	buttons := &buttonMonitor{Wake: make(chan int, 1)}
	buttons.Wake <- BUTTON_SLIDE

	wake := lightSleep(SleepPlan{Kind: LIGHT_SLEEP, DurationMs: 60000}, buttons)
	if wake != WAKE_BUTTON_SLIDE {
		t.Errorf("wake = %s; want BUTTON_SLIDE", wakeName(wake))
	}
}

func TestLightSleepWakesOnTimer(t *testing.T) {
	buttons := &buttonMonitor{Wake: make(chan int, 1)}

	start := time.Now()
	wake := lightSleep(SleepPlan{Kind: LIGHT_SLEEP, DurationMs: 10}, buttons)
	if wake != WAKE_TIMER {
		t.Errorf("wake = %s; want TIMER", wakeName(wake))
	}
	if time.Since(start) > time.Second {
		t.Error("timer wake took too long")
	}
}
