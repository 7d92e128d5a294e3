package main

import (
	"encoding/binary"
	"fmt"
	"log"
	"net"
	"sync"
	"time"
)

//---------------- SNTP time sync ----------------

const (
	NTP_PORT         = 123
	NTP_PACKET_SIZE  = 48
	NTP_EPOCH_OFFSET = 2208988800 // seconds between 1900-01-01 and 1970-01-01
	NTP_MAX_RETRIES  = 10
	NTP_RETRY_DELAY  = 1000 * time.Millisecond
)

// deviceClock carries the offset between the NTP result and the local clock so
// the deep-sleep window can be gated on real local time even when the system
// clock is wrong. Refresh-interval timing stays on relative elapsed time and
// is unaffected.
type deviceClock struct {
	mu        sync.RWMutex
	offset    time.Duration
	utcOffset time.Duration
	dstOffset time.Duration
	synced    bool
}

var clock = &deviceClock{}

func (c *deviceClock) setOffsets(utcSec, dstSec int) {
	c.mu.Lock()
	c.utcOffset = time.Duration(utcSec) * time.Second
	c.dstOffset = time.Duration(dstSec) * time.Second
	c.mu.Unlock()
}

func (c *deviceClock) applySync(ntpTime time.Time) {
	c.mu.Lock()
	c.offset = ntpTime.Sub(time.Now())
	c.synced = true
	c.mu.Unlock()
}

// localNow returns the best-effort local wall time: the system clock corrected
// by the last NTP sync plus the configured UTC and DST offsets.
func (c *deviceClock) localNow() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Now().Add(c.offset + c.utcOffset + c.dstOffset).UTC()
}

func (c *deviceClock) isSynced() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.synced
}

// parseNTPResponse extracts the transmit timestamp from a server reply.
func parseNTPResponse(buf []byte) (time.Time, error) {
	if len(buf) < NTP_PACKET_SIZE {
		return time.Time{}, fmt.Errorf("ntp: short response (%d bytes)", len(buf))
	}
	if mode := buf[0] & 0x07; mode != 4 && mode != 5 {
		return time.Time{}, fmt.Errorf("ntp: unexpected mode %d", mode)
	}
	secs := binary.BigEndian.Uint32(buf[40:44])
	frac := binary.BigEndian.Uint32(buf[44:48])
	if secs == 0 {
		return time.Time{}, fmt.Errorf("ntp: zero transmit timestamp")
	}
	nsec := uint64(frac) * 1e9 >> 32
	return time.Unix(int64(secs)-NTP_EPOCH_OFFSET, int64(nsec)).UTC(), nil
}

// queryNTP performs one SNTP round trip.
func queryNTP(server string, timeout time.Duration) (time.Time, error) {
	conn, err := net.DialTimeout("udp", fmt.Sprintf("%s:%d", server, NTP_PORT), timeout)
	if err != nil {
		return time.Time{}, err
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(timeout))

	req := make([]byte, NTP_PACKET_SIZE)
	req[0] = 0x23 // LI=0, VN=4, Mode=3 (client)
	if _, err := conn.Write(req); err != nil {
		return time.Time{}, err
	}

	resp := make([]byte, NTP_PACKET_SIZE)
	n, err := conn.Read(resp)
	if err != nil {
		return time.Time{}, err
	}
	return parseNTPResponse(resp[:n])
}

// syncTime polls the configured NTP server until it yields a valid time or the
// retry budget runs out. Failure is non-fatal: the device proceeds on whatever
// clock it has.
func syncTime(cfg Config) bool {
	clock.setOffsets(cfg.UTCOffsetSec, cfg.DSTOffsetSec)
	for i := 0; i < NTP_MAX_RETRIES; i++ {
		ntpTime, err := queryNTP(cfg.NTPServer, 2*time.Second)
		if err == nil {
			clock.applySync(ntpTime)
			log.Printf("time synced: %s", clock.localNow().Format("2006-01-02 15:04:05"))
			return true
		}
		log.Printf("ntp attempt %d/%d failed: %v", i+1, NTP_MAX_RETRIES, err)
		time.Sleep(NTP_RETRY_DELAY)
	}
	return false
}
