package services

import (
	"context"
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeviceOpenerNetworkAddr(t *testing.T) {
	o := DeviceOpener{}
	tests := []struct {
		identifier string
		addr       string
		ok         bool
	}{
		{"10.0.0.250", "10.0.0.250:9100", true},
		{"10.0.0.250:9101", "10.0.0.250:9101", true},
		{"tcp://10.0.0.250", "10.0.0.250:9100", true},
		{"tcp://printer.local:9100", "printer.local:9100", true},
		{"printer:EPSON", "", false},
		{"/dev/usb/lp0", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.identifier, func(t *testing.T) {
			addr, ok := o.networkAddr(tt.identifier)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.addr, addr)
		})
	}

	addr, ok := DeviceOpener{Port: 9200}.networkAddr("10.0.0.1")
	assert.True(t, ok)
	assert.Equal(t, "10.0.0.1:9200", addr)
}

func TestDeviceOpenerKinds(t *testing.T) {
	ctx := context.Background()
	o := DeviceOpener{}

	dev, err := o.Open(ctx, "10.0.0.250")
	require.NoError(t, err)
	assert.IsType(t, &NetworkDevice{}, dev)
	assert.Equal(t, "10.0.0.250", dev.Identifier())

	dev, err = o.Open(ctx, "tcp://10.0.0.250:9101")
	require.NoError(t, err)
	assert.Equal(t, "tcp://10.0.0.250:9101", dev.Identifier())

	dev, err = o.Open(ctx, "printer:EPSON_TM_T20")
	require.NoError(t, err)
	assert.IsType(t, &SpoolerDevice{}, dev)
	assert.Equal(t, "printer:EPSON_TM_T20", dev.Identifier())

	dev, err = o.Open(ctx, "/dev/usb/lp0")
	require.NoError(t, err)
	assert.IsType(t, &PortDevice{}, dev)

	_, err = o.Open(ctx, " ")
	assert.Error(t, err)
	_, err = o.Open(ctx, "printer:")
	assert.Error(t, err)
}

func TestNetworkDeviceExecute(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	received := make(chan []byte, 2)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			data, _ := io.ReadAll(conn)
			conn.Close()
			received <- data
		}
	}()

	dev := &NetworkDevice{Addr: ln.Addr().String(), ProbeTimeout: time.Second}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	assert.True(t, dev.IsReachable(ctx))
	assert.Empty(t, <-received, "probe sends nothing")

	require.NoError(t, dev.Execute(ctx, []byte{0x1B, 0x40, 'h', 'i'}))
	assert.Equal(t, []byte{0x1B, 0x40, 'h', 'i'}, <-received)
}

func TestNetworkDeviceUnreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	dev := &NetworkDevice{Addr: addr, ProbeTimeout: 200 * time.Millisecond}
	assert.False(t, dev.IsReachable(context.Background()))
	assert.Error(t, dev.Execute(context.Background(), []byte("x")))
}

func TestPortDeviceExecute(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lp0")
	dev := &PortDevice{Path: path}
	assert.False(t, dev.IsReachable(context.Background()))

	require.NoError(t, os.WriteFile(path, nil, 0644))
	assert.True(t, dev.IsReachable(context.Background()))
	require.NoError(t, dev.Execute(context.Background(), []byte("receipt")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "receipt", string(data))
}
