package util

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// FormatAddr returns "host:port".
func FormatAddr(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// ParseEndpoint splits an endpoint such as "tcp://10.0.0.2:6000",
// "unix:///dev/socket/modem_fmt" or a bare "host:port" into the network
// and address expected by net.Dial.  Bare addresses default to tcp.
func ParseEndpoint(s string) (network, address string, err error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", "", fmt.Errorf("empty endpoint")
	}

	scheme, rest, found := strings.Cut(s, "://")
	if !found {
		if _, _, err := net.SplitHostPort(s); err != nil {
			return "", "", fmt.Errorf("endpoint %q: %w", s, err)
		}
		return "tcp", s, nil
	}

	switch scheme {
	case "tcp", "tcp4", "tcp6":
		if _, _, err := net.SplitHostPort(rest); err != nil {
			return "", "", fmt.Errorf("endpoint %q: %w", s, err)
		}
		return scheme, rest, nil
	case "unix":
		if rest == "" {
			return "", "", fmt.Errorf("endpoint %q: missing socket path", s)
		}
		return "unix", rest, nil
	default:
		return "", "", fmt.Errorf("endpoint %q: unsupported scheme %q", s, scheme)
	}
}
