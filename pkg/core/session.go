package core

import "time"

// FlightSession groups everything recorded between service start and stop.
type FlightSession struct {
	ID             uint
	StartTime      time.Time
	ServiceName    string
	ServiceVersion string
	Hostname       string
	TickRateHz     float64
}
