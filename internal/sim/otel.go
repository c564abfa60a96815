package sim

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/skysim-labs/dronepilot/internal/sim"

func meter() metric.Meter {
	return otel.Meter(instrumentationName)
}
