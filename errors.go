package main

import (
	"errors"
	"fmt"
)

var (
	// errConnectTimeout indicates the network did not come up within the connect timeout.
	errConnectTimeout = errors.New("network: connect timeout")
	// errPayloadTooLarge indicates the declared content length exceeds MAX_IMAGE_BYTES.
	errPayloadTooLarge = errors.New("fetch: payload too large")
	// errPayloadTruncated indicates the connection dropped before the declared length arrived.
	errPayloadTruncated = errors.New("fetch: payload truncated")
	// errBadContentLength indicates a missing, zero or negative declared content length.
	errBadContentLength = errors.New("fetch: bad content length")
	// errNotIndexedBitmap indicates the fetched image is not a palette-indexed bitmap.
	errNotIndexedBitmap = errors.New("bitmap: not an indexed-color bitmap")
	// errWakealarm indicates the RTC wake timer could not be armed. Treated as a
	// hardware fault: the device reboots rather than risk never waking again.
	errWakealarm = errors.New("sleep: failed to arm RTC wakealarm")
)

// FetchError captures a non-200 response from the dashboard server.
type FetchError struct {
	Status int
	URL    string
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch: server returned status %d for %s", e.Status, e.URL)
}

// isServerError reports whether err came back as an HTTP-level failure.
func isServerError(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe)
}
