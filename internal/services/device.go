package services

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// Device is an open handle on a physical receipt printer.
type Device interface {
	// Identifier names the device in logs, status and settings.
	Identifier() string
	IsReachable(ctx context.Context) bool
	// Execute commits a rendered command stream to the printer. It should
	// return once ctx is done; a write that outlives the print timeout
	// costs the device its connection.
	Execute(ctx context.Context, payload []byte) error
	Close() error
}

// OpenFunc opens the device named by identifier. It does not verify that
// the device answers; the engine does that with IsReachable.
type OpenFunc func(ctx context.Context, identifier string) (Device, error)

const spoolerPrefix = "printer:"

// DeviceOpener maps identifiers onto device implementations:
//
//	tcp://10.0.0.250:9100, 10.0.0.250   raw TCP (port 9100 by default)
//	printer:EPSON_TM_T20                OS print spooler queue
//	/dev/usb/lp0, \\.\COM1              local device file
type DeviceOpener struct {
	Port         int
	ProbeTimeout time.Duration
}

func (o DeviceOpener) Open(ctx context.Context, identifier string) (Device, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, fmt.Errorf("empty device identifier")
	}

	if addr, ok := o.networkAddr(identifier); ok {
		return &NetworkDevice{
			Addr:         addr,
			ProbeTimeout: o.ProbeTimeout,
			Settle:       500 * time.Millisecond,
		}, nil
	}
	if queue, ok := strings.CutPrefix(identifier, spoolerPrefix); ok {
		if queue == "" {
			return nil, fmt.Errorf("empty spooler queue in %q", identifier)
		}
		return &SpoolerDevice{Queue: queue}, nil
	}
	return &PortDevice{Path: identifier}, nil
}

// networkAddr resolves tcp:// URLs, bare IPs and ip:port pairs.
func (o DeviceOpener) networkAddr(identifier string) (string, bool) {
	port := o.Port
	if port == 0 {
		port = 9100
	}
	if rest, ok := strings.CutPrefix(identifier, "tcp://"); ok {
		if _, _, err := net.SplitHostPort(rest); err == nil {
			return rest, true
		}
		return net.JoinHostPort(rest, strconv.Itoa(port)), true
	}
	if ip := net.ParseIP(identifier); ip != nil {
		return net.JoinHostPort(ip.String(), strconv.Itoa(port)), true
	}
	if host, _, err := net.SplitHostPort(identifier); err == nil && net.ParseIP(host) != nil {
		return identifier, true
	}
	return "", false
}

// --- Network (raw port 9100) ---

type NetworkDevice struct {
	Addr         string
	ProbeTimeout time.Duration
	// Settle is how long to keep the socket open after writing so the
	// printer can drain its buffer.
	Settle time.Duration
}

func (d *NetworkDevice) Identifier() string {
	host, port, err := net.SplitHostPort(d.Addr)
	if err == nil && port == "9100" {
		return host
	}
	return "tcp://" + d.Addr
}

func (d *NetworkDevice) IsReachable(ctx context.Context) bool {
	timeout := d.ProbeTimeout
	if timeout <= 0 {
		timeout = time.Second
	}
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", d.Addr)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

func (d *NetworkDevice) Execute(ctx context.Context, payload []byte) error {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", d.Addr)
	if err != nil {
		return fmt.Errorf("connection failed: %w", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetWriteDeadline(deadline)
	}
	if _, err := conn.Write(payload); err != nil {
		return fmt.Errorf("write failed: %w", err)
	}

	if d.Settle > 0 {
		select {
		case <-time.After(d.Settle):
		case <-ctx.Done():
		}
	}
	return nil
}

func (d *NetworkDevice) Close() error { return nil }

// --- Local device file (USB printer class, serial, LPT) ---

type PortDevice struct {
	Path string
}

func (d *PortDevice) Identifier() string { return d.Path }

func (d *PortDevice) IsReachable(ctx context.Context) bool {
	f, err := os.OpenFile(d.Path, os.O_WRONLY, 0)
	if err != nil {
		return false
	}
	f.Close()
	return true
}

func (d *PortDevice) Execute(ctx context.Context, payload []byte) error {
	f, err := os.OpenFile(d.Path, os.O_WRONLY, 0)
	if err != nil {
		return fmt.Errorf("opening %s: %w", d.Path, err)
	}
	defer f.Close()

	if deadline, ok := ctx.Deadline(); ok {
		// Not every device file supports deadlines; the engine's own
		// timeout still applies when this is a no-op.
		_ = f.SetWriteDeadline(deadline)
	}
	if _, err := f.Write(payload); err != nil {
		return fmt.Errorf("write failed: %w", err)
	}
	return nil
}

func (d *PortDevice) Close() error { return nil }

// --- OS print spooler ---

type SpoolerDevice struct {
	Queue string
}

func (d *SpoolerDevice) Identifier() string { return spoolerPrefix + d.Queue }

func (d *SpoolerDevice) IsReachable(ctx context.Context) bool {
	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.CommandContext(ctx, "powershell", "-NoProfile", "-Command",
			fmt.Sprintf("Get-Printer -Name '%s' | Out-Null", strings.ReplaceAll(d.Queue, "'", "''")))
	} else {
		cmd = exec.CommandContext(ctx, "lpstat", "-p", d.Queue)
	}
	return cmd.Run() == nil
}

func (d *SpoolerDevice) Execute(ctx context.Context, payload []byte) error {
	if runtime.GOOS == "windows" {
		return d.executeWindows(ctx, payload)
	}

	cmd := exec.CommandContext(ctx, "lp", "-d", d.Queue, "-o", "raw")
	cmd.Stdin = bytes.NewReader(payload)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("lp -d %s: %w: %s", d.Queue, err, strings.TrimSpace(string(output)))
	}
	return nil
}

// executeWindows copies the raw job to the shared queue, which the
// spooler passes through to the printer untouched.
func (d *SpoolerDevice) executeWindows(ctx context.Context, payload []byte) error {
	tmp, err := os.CreateTemp("", "print-job-*.bin")
	if err != nil {
		return fmt.Errorf("creating spool file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		return fmt.Errorf("writing spool file: %w", err)
	}
	tmp.Close()

	target := `\\localhost\` + d.Queue
	cmd := exec.CommandContext(ctx, "cmd", "/C", "copy", "/B", filepath.Clean(tmp.Name()), target)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("copy to %s: %w: %s", target, err, strings.TrimSpace(string(output)))
	}
	return nil
}

func (d *SpoolerDevice) Close() error { return nil }
