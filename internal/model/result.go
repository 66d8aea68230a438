package model

import "time"

// PrintResult is the outcome of one job. It is never modified after the
// engine returns it.
type PrintResult struct {
	Success   bool      `json:"success"`
	Simulated bool      `json:"simulated"`
	OrderID   string    `json:"orderId"`
	PrintedAt time.Time `json:"printedAt"`
	Device    *string   `json:"printerIP"`
	Error     string    `json:"error,omitempty"`
}

type DeviceKind string

const (
	DeviceKindNetwork DeviceKind = "network"
	DeviceKindSpooler DeviceKind = "spooler"
	DeviceKindSerial  DeviceKind = "serial"
)

// CandidateDevice is a discovered printer endpoint that has not been
// selected yet.
type CandidateDevice struct {
	Identifier string     `json:"identifier"`
	Kind       DeviceKind `json:"type"`
	Label      string     `json:"label"`
	IP         string     `json:"ip,omitempty"`
}
