package main

import (
	"encoding/json"
	"fmt"
	"os"
)

const (
	EPD_WIDTH  = 800
	EPD_HEIGHT = 480

	// Anything larger than this cannot be a framebuffer for our panel and is
	// treated as a corrupt or mismatched server response.
	MAX_IMAGE_BYTES = 150000

	// Added on top of the time remaining until the deep-sleep window ends, so
	// the device wakes safely past the boundary.
	DEEP_SLEEP_BUFFER_SEC = 120

	BUTTON_DEBOUNCE_MS = 200
	BUTTON_POLL_MS     = 50

	// Voltage divider in front of the battery ADC halves the real voltage.
	BATTERY_DIVIDER = 2.0
)

//---------------- Config ----------------

// Config represents the overall config JSON.
type Config struct {
	WifiSSID     string `json:"wifi_ssid"`
	WifiPassword string `json:"wifi_password"`

	ServerHost string `json:"server_host"`
	ServerPort int    `json:"server_port"`
	ImagePath  string `json:"image_path"`

	NTPServer    string `json:"ntp_server"`
	UTCOffsetSec int    `json:"utc_offset_sec"`
	DSTOffsetSec int    `json:"dst_offset_sec"`

	DeepSleepStartHour int `json:"deep_sleep_start_hour"`
	DeepSleepEndHour   int `json:"deep_sleep_end_hour"`
	RefreshIntervalMs  int `json:"refresh_interval_ms"`
	ConnectTimeoutMs   int `json:"connect_timeout_ms"`
	HTTPTimeoutMs      int `json:"http_timeout_ms"`

	// Consecutive partial refreshes before the next refresh is forced full to
	// clear accumulated ghosting.
	FullRefreshEvery int `json:"full_refresh_every"`

	SPIPort  string `json:"spi_port"`
	PinReset string `json:"pin_reset"`
	PinDC    string `json:"pin_dc"`
	PinBusy  string `json:"pin_busy"`

	ButtonRefreshDevice string `json:"button_refresh_device"`
	ButtonSlideDevice   string `json:"button_slide_device"`

	BatteryEnablePath  string  `json:"battery_enable_path"`
	BatteryVoltagePath string  `json:"battery_voltage_path"`
	BatteryEmptyVolts  float64 `json:"battery_empty_volts"`
	BatteryFullVolts   float64 `json:"battery_full_volts"`

	RTCWakealarmPath string `json:"rtc_wakealarm_path"`
	CPUGovernor      string `json:"cpu_governor"`
	CPUGovernorPath  string `json:"cpu_governor_path"`

	DebugServerAddr    string `json:"debug_server_addr"`
	BatteryHistoryPath string `json:"battery_history_path"`
}

// defaultConfig returns the config used when fields are absent from the JSON file.
func defaultConfig() Config {
	return Config{
		ServerPort:          80,
		ImagePath:           "/dashboard.bmp",
		NTPServer:           "pool.ntp.org",
		DeepSleepStartHour:  0,
		DeepSleepEndHour:    5,
		RefreshIntervalMs:   600000,
		ConnectTimeoutMs:    20000,
		HTTPTimeoutMs:       45000,
		FullRefreshEvery:    10,
		SPIPort:             "SPI0.0",
		PinReset:            "GPIO17",
		PinDC:               "GPIO25",
		PinBusy:             "GPIO24",
		ButtonRefreshDevice: "gpio-key-refresh",
		ButtonSlideDevice:   "gpio-key-slide",
		BatteryEnablePath:   "/sys/class/power_supply/battery/monitor_enable",
		BatteryVoltagePath:  "/sys/class/power_supply/battery/voltage_now",
		BatteryEmptyVolts:   3.0,
		BatteryFullVolts:    4.1,
		RTCWakealarmPath:    "/sys/class/rtc/rtc0/wakealarm",
		CPUGovernor:         "powersave",
		CPUGovernorPath:     "/sys/devices/system/cpu/cpu0/cpufreq/scaling_governor",
		DebugServerAddr:     ":8081",
		BatteryHistoryPath:  "/tmp/dashboard_battery_history.json",
	}
}

// loadConfig reads and unmarshals the config file over the defaults.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	if cfg.ServerHost == "" {
		return cfg, fmt.Errorf("config: server_host is required")
	}
	if cfg.DeepSleepStartHour < 0 || cfg.DeepSleepEndHour > 24 ||
		cfg.DeepSleepStartHour >= cfg.DeepSleepEndHour {
		return cfg, fmt.Errorf("config: bad deep sleep window [%d,%d)",
			cfg.DeepSleepStartHour, cfg.DeepSleepEndHour)
	}
	return cfg, nil
}

// imageURL builds the dashboard fetch URL without the battery parameter.
func (c Config) imageURL() string {
	return fmt.Sprintf("http://%s:%d%s", c.ServerHost, c.ServerPort, c.ImagePath)
}

// setCPUGovernor applies the configured cpufreq governor. Failure is logged by
// the caller and never fatal; the board just runs at the firmware default.
func setCPUGovernor(cfg Config) error {
	if cfg.CPUGovernor == "" {
		return nil
	}
	return os.WriteFile(cfg.CPUGovernorPath, []byte(cfg.CPUGovernor), 0644)
}
