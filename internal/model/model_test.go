package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTableNames(t *testing.T) {
	tests := []struct {
		name     string
		model    interface{ TableName() string }
		expected string
	}{
		{"FlightSession", &FlightSession{}, "flight_sessions"},
		{"CommandLog", &CommandLog{}, "command_logs"},
		{"FlightEventLog", &FlightEventLog{}, "flight_events"},
		{"StateSample", &StateSample{}, "state_samples"},
		{"ObservationLog", &ObservationLog{}, "observation_logs"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.model.TableName())
		})
	}
}

func TestDatabaseModelLists(t *testing.T) {
	// Both migration lists carry every table exactly once.
	assert.Len(t, DatabaseModels, 5)
	assert.Len(t, DatabaseModelsSQLite, len(DatabaseModels))

	seen := make(map[interface{ TableName() string }]bool)
	for _, m := range DatabaseModels {
		named, ok := m.(interface{ TableName() string })
		assert.True(t, ok, "model %T has no TableName", m)
		assert.False(t, seen[named], "model %T listed twice", m)
		seen[named] = true
	}
}
