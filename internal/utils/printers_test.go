package utils

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubnetPrefix(t *testing.T) {
	prefix, err := SubnetPrefix("192.168.0.42")
	require.NoError(t, err)
	assert.Equal(t, "192.168.0", prefix)

	_, err = SubnetPrefix("fe80::1")
	assert.Error(t, err)
	_, err = SubnetPrefix("printer")
	assert.Error(t, err)
}

func TestProbe(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	assert.True(t, Probe(context.Background(), "127.0.0.1", port, time.Second))

	ln.Close()
	assert.False(t, Probe(context.Background(), "127.0.0.1", port, 200*time.Millisecond))
}

func TestProbeCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, Probe(ctx, "127.0.0.1", 9, time.Second))
}
