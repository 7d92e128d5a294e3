package main

import "sync"

//---------------- Wake sources ----------------

const (
	WAKE_COLD_BOOT = iota
	WAKE_TIMER
	WAKE_BUTTON_REFRESH
	WAKE_BUTTON_SLIDE
	WAKE_UNKNOWN
)

func wakeName(w int) string {
	switch w {
	case WAKE_COLD_BOOT:
		return "COLD_BOOT"
	case WAKE_TIMER:
		return "TIMER"
	case WAKE_BUTTON_REFRESH:
		return "BUTTON_REFRESH"
	case WAKE_BUTTON_SLIDE:
		return "BUTTON_SLIDE"
	default:
		return "UNKNOWN"
	}
}

//---------------- Device state ----------------

// DeviceState survives light sleep (the process keeps running) and resets on
// deep sleep or power loss (the process restarts). DisplayInitialized must be
// cleared before every deep-sleep transition.
type DeviceState struct {
	BootCount          int   `json:"boot_count"`
	TimeSynced         bool  `json:"time_synced"`
	DisplayInitialized bool  `json:"display_initialized"`
	LastWakeEpoch      int64 `json:"last_wake_epoch"`
}

// stateStore is the memory-resident state store. Load returns the zero value
// on first-ever boot and after deep sleep; Save has no failure mode.
type stateStore struct {
	mu    sync.RWMutex
	state DeviceState
}

func (s *stateStore) Load() DeviceState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *stateStore) Save(st DeviceState) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// ClearForDeepSleep drops everything that must not survive a deep-sleep
// transition. The store itself dies with the process; clearing here keeps the
// diagnostics snapshot honest during the shutdown window.
func (s *stateStore) ClearForDeepSleep() {
	s.mu.Lock()
	s.state.TimeSynced = false
	s.state.DisplayInitialized = false
	s.mu.Unlock()
}

var deviceStore = &stateStore{}
