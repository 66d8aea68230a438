package utils

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"
)

// --- Utility Functions ---

// DetectLocalIP returns the first non-loopback IPv4 address of this host.
func DetectLocalIP() (string, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "", err
	}
	for _, a := range addrs {
		if ipnet, ok := a.(*net.IPNet); ok && !ipnet.IP.IsLoopback() && ipnet.IP.To4() != nil {
			return ipnet.IP.String(), nil
		}
	}
	return "", fmt.Errorf("no local IPv4 address found")
}

// SubnetPrefix returns the first three octets of an IPv4 address, e.g.
// "192.168.0" for "192.168.0.42".
func SubnetPrefix(ip string) (string, error) {
	parsed := net.ParseIP(ip).To4()
	if parsed == nil {
		return "", fmt.Errorf("not an IPv4 address: %q", ip)
	}
	parts := strings.Split(parsed.String(), ".")
	return strings.Join(parts[:3], "."), nil
}

// Probe reports whether a TCP connection to ip:port can be opened within
// timeout. The connection is closed immediately.
func Probe(ctx context.Context, ip string, port int, timeout time.Duration) bool {
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(ip, fmt.Sprint(port)))
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
