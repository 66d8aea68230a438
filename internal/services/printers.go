package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Riboost-Studio/perfect-menu-print-agent/internal/model"
	"github.com/Riboost-Studio/perfect-menu-print-agent/internal/utils"
)

// --- Discovery Logic ---

// ProbeFunc reports whether a printer answers at ip.
type ProbeFunc func(ctx context.Context, ip string) bool

// Scanner finds candidate printers. The subnet sweep probes every host
// of the local /24 concurrently; spooler and port discovery are
// sequential and return at most one candidate each.
type Scanner struct {
	Port    int
	Timeout time.Duration

	// Probe, LocalIP and Queues default to real network and OS lookups.
	Probe   ProbeFunc
	LocalIP func() (string, error)
	Queues  func(ctx context.Context) ([]string, error)

	Ports     []string
	NameHints []string
	Open      OpenFunc
	Logger    *slog.Logger
}

func (s *Scanner) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return s.Logger
}

func (s *Scanner) probe(ctx context.Context, ip string) bool {
	if s.Probe != nil {
		return s.Probe(ctx, ip)
	}
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = 300 * time.Millisecond
	}
	port := s.Port
	if port == 0 {
		port = 9100
	}
	return utils.Probe(ctx, ip, port, timeout)
}

// ScanSubnet sweeps the /24 of the first non-loopback IPv4 address.
func (s *Scanner) ScanSubnet(ctx context.Context) ([]model.CandidateDevice, error) {
	detect := s.LocalIP
	if detect == nil {
		detect = utils.DetectLocalIP
	}
	localIP, err := detect()
	if err != nil {
		return nil, fmt.Errorf("detecting local IP: %w", err)
	}
	prefix, err := utils.SubnetPrefix(localIP)
	if err != nil {
		return nil, err
	}
	return s.ScanPrefix(ctx, prefix), nil
}

// ScanPrefix probes prefix.1 through prefix.254 in parallel and returns
// every host that accepted the connection. It always waits for all
// probes; the order of the result is unspecified.
func (s *Scanner) ScanPrefix(ctx context.Context, prefix string) []model.CandidateDevice {
	s.logger().Info("scanning subnet", "subnet", prefix+".0/24")
	started := time.Now()

	foundChan := make(chan string, 254)
	var wg sync.WaitGroup
	for i := 1; i <= 254; i++ {
		ip := fmt.Sprintf("%s.%d", prefix, i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.probe(ctx, ip) {
				foundChan <- ip
			}
		}()
	}

	go func() {
		wg.Wait()
		close(foundChan)
	}()

	var found []model.CandidateDevice
	for ip := range foundChan {
		found = append(found, model.CandidateDevice{
			Identifier: ip,
			Kind:       model.DeviceKindNetwork,
			Label:      fmt.Sprintf("Thermal printer (%s)", ip),
			IP:         ip,
		})
	}
	s.logger().Info("subnet scan finished", "found", len(found), "elapsed", time.Since(started))
	return found
}

// ScanSpooler returns the first spooler queue whose name looks like a
// receipt printer, or nil.
func (s *Scanner) ScanSpooler(ctx context.Context) (*model.CandidateDevice, error) {
	list := s.Queues
	if list == nil {
		list = utils.ListSpoolerQueues
	}
	queues, err := list(ctx)
	if err != nil {
		return nil, err
	}
	for _, queue := range queues {
		if !utils.MatchesHint(queue, s.NameHints) {
			continue
		}
		return &model.CandidateDevice{
			Identifier: spoolerPrefix + queue,
			Kind:       model.DeviceKindSpooler,
			Label:      queue,
		}, nil
	}
	return nil, nil
}

// ScanPorts tries the well-known local ports in order and returns the
// first one that can be opened for writing, or nil.
func (s *Scanner) ScanPorts(ctx context.Context) *model.CandidateDevice {
	if s.Open == nil {
		return nil
	}
	ports := s.Ports
	if len(ports) == 0 {
		ports = utils.CommonPrinterPorts()
	}
	for _, port := range ports {
		if ctx.Err() != nil {
			return nil
		}
		if !utils.PortExists(port) {
			continue
		}
		dev, err := s.Open(ctx, port)
		if err != nil {
			s.logger().Debug("port rejected", "port", port, "error", err)
			continue
		}
		reachable := dev.IsReachable(ctx)
		dev.Close()
		if reachable {
			return &model.CandidateDevice{
				Identifier: dev.Identifier(),
				Kind:       model.DeviceKindSerial,
				Label:      port,
			}
		}
	}
	return nil
}
