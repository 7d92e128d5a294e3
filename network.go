package main

import (
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os/exec"
	"time"

	"github.com/go-ping/ping"
)

//---------------- Network gateway ----------------

const FETCH_CHUNK_BYTES = 4096

// imageBuffer owns the fetched dashboard bytes for the duration of a single
// refresh attempt. It is never retained across a sleep transition.
type imageBuffer struct {
	data []byte
}

func (b *imageBuffer) Len() int { return len(b.data) }

func (b *imageBuffer) Bytes() []byte { return b.data }

// Release drops the buffer. Safe to call more than once.
func (b *imageBuffer) Release() {
	b.data = nil
}

type networkGateway struct {
	cfg       Config
	http      *http.Client
	connected bool
}

func newNetworkGateway(cfg Config) *networkGateway {
	return &networkGateway{
		cfg:  cfg,
		http: &http.Client{Timeout: time.Duration(cfg.HTTPTimeoutMs) * time.Millisecond},
	}
}

func (g *networkGateway) Connected() bool { return g.connected }

// pingHost sends a single ICMP echo to the dashboard host.
// Note: raw ICMP usually requires root, which this device runs as.
func pingHost(host string) bool {
	pinger, err := ping.NewPinger(host)
	if err != nil {
		return false
	}
	pinger.SetPrivileged(true)
	pinger.Count = 1
	pinger.Timeout = 2 * time.Second
	if err := pinger.Run(); err != nil {
		return false
	}
	return pinger.Statistics().PacketsRecv > 0
}

// reachable probes the dashboard server, falling back to a TCP dial for hosts
// that drop ICMP.
func (g *networkGateway) reachable() bool {
	if pingHost(g.cfg.ServerHost) {
		return true
	}
	addr := fmt.Sprintf("%s:%d", g.cfg.ServerHost, g.cfg.ServerPort)
	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// Connect powers the radio on, asks the OS to associate, and polls until the
// dashboard server is reachable or the connect timeout elapses.
func (g *networkGateway) Connect() error {
	if g.connected {
		return nil
	}

	if err := exec.Command("rfkill", "unblock", "wifi").Run(); err != nil {
		log.Printf("rfkill unblock failed: %v", err)
	}
	if g.cfg.WifiSSID != "" {
		// Association is owned by NetworkManager; this is a nudge, not a
		// requirement, so its exit code is only logged.
		out, err := exec.Command("nmcli", "dev", "wifi", "connect",
			g.cfg.WifiSSID, "password", g.cfg.WifiPassword).CombinedOutput()
		if err != nil {
			log.Printf("nmcli connect: %v (%s)", err, string(out))
		}
	}

	deadline := time.Now().Add(time.Duration(g.cfg.ConnectTimeoutMs) * time.Millisecond)
	for time.Now().Before(deadline) {
		if g.reachable() {
			g.connected = true
			return nil
		}
		time.Sleep(500 * time.Millisecond)
	}
	return errConnectTimeout
}

// Shutdown powers the radio off. Always called before any sleep transition so
// the radio cannot interfere with the wake timer.
func (g *networkGateway) Shutdown() {
	if err := exec.Command("rfkill", "block", "wifi").Run(); err != nil {
		log.Printf("rfkill block failed: %v", err)
	}
	g.connected = false
}

// FetchImage performs the dashboard GET. batteryPercent is appended as a query
// parameter only when battery monitoring is supported; BATTERY_UNSUPPORTED is
// a valid, silent state. The response body is only accepted when its declared
// length is plausible and fully delivered.
func (g *networkGateway) FetchImage(batteryPercent int) (*imageBuffer, error) {
	url := g.cfg.imageURL()
	if batteryPercent != BATTERY_UNSUPPORTED {
		url = fmt.Sprintf("%s?battery=%d", url, batteryPercent)
	}

	resp, err := g.http.Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &FetchError{Status: resp.StatusCode, URL: url}
	}

	n := resp.ContentLength
	if n <= 0 {
		return nil, fmt.Errorf("%w: %d", errBadContentLength, n)
	}
	if n > MAX_IMAGE_BYTES {
		// Reject before allocating anything.
		return nil, fmt.Errorf("%w: %d bytes", errPayloadTooLarge, n)
	}

	buf := &imageBuffer{data: make([]byte, n)}
	read := 0
	for read < int(n) {
		chunk := int(n) - read
		if chunk > FETCH_CHUNK_BYTES {
			chunk = FETCH_CHUNK_BYTES
		}
		m, err := io.ReadFull(resp.Body, buf.data[read:read+chunk])
		read += m
		if err != nil {
			buf.Release()
			return nil, fmt.Errorf("%w: got %d of %d bytes: %v", errPayloadTruncated, read, n, err)
		}
	}
	return buf, nil
}
