package ports

import (
	"errors"
	"fmt"
	"net"
	"strconv"
)

// ErrNoFreePort is returned when a scan exhausts its range.
var ErrNoFreePort = errors.New("no free port found")

// Available reports whether port can be bound on all interfaces.
func Available(port int) bool {
	if port <= 0 || port > 65535 {
		return false
	}
	ln, err := net.Listen("tcp", net.JoinHostPort("", strconv.Itoa(port)))
	if err != nil {
		return false
	}
	_ = ln.Close()
	return true
}

// NextAvailable returns the first bindable port in [start, start+span).
func NextAvailable(start, span int) (int, error) {
	if span <= 0 {
		span = 1
	}
	for p := start; p < start+span && p <= 65535; p++ {
		if Available(p) {
			return p, nil
		}
	}
	return 0, fmt.Errorf("%w in %d-%d", ErrNoFreePort, start, start+span-1)
}
