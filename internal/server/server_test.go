package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skysim-labs/dronepilot/internal/geo"
	"github.com/skysim-labs/dronepilot/internal/history"
	"github.com/skysim-labs/dronepilot/pkg/core"
	"github.com/skysim-labs/dronepilot/pkg/vec"
)

type fakeSim struct {
	mu           sync.Mutex
	commands     []string
	observations []core.Observation
	state        core.VehicleState
}

func (f *fakeSim) EnqueueCommand(raw string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, raw)
}

func (f *fakeSim) EnqueueObservation(obs core.Observation) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.observations = append(f.observations, obs)
}

func (f *fakeSim) State() core.VehicleState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func newTestServer(t *testing.T, conv *geo.Converter) (*Server, *fakeSim, *history.Log) {
	t.Helper()
	sim := &fakeSim{state: core.VehicleState{
		Time:         time.Now(),
		Tick:         42,
		Orientation:  vec.Identity(),
		Mode:         "idle",
		SpeedPercent: 100,
	}}
	hist := history.NewLog(0, 0)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := New(logger, "127.0.0.1:0", sim, hist, conv, nil)
	require.NoError(t, err)
	return s, sim, hist
}

type fakeStats struct {
	commands, events, states, observations int
}

func (f fakeStats) QueueLengths() (int, int, int, int) {
	return f.commands, f.events, f.states, f.observations
}

func postJSON(t *testing.T, s *Server, path, body string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.app.Test(req)
	require.NoError(t, err)
	return resp
}

func getPath(t *testing.T, s *Server, path string) *http.Response {
	t.Helper()
	resp, err := s.app.Test(httptest.NewRequest(fiber.MethodGet, path, nil))
	require.NoError(t, err)
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestServer_ReceiveCommand(t *testing.T) {
	tests := []struct {
		name string
		path string
		body string
		want []string
	}{
		{
			name: "single command",
			path: "/receive_command",
			body: `{"command":"move_forward"}`,
			want: []string{"move_forward"},
		},
		{
			name: "root path accepts commands too",
			path: "/",
			body: `{"command":"ascend"}`,
			want: []string{"ascend"},
		},
		{
			name: "semicolon separated list is split and trimmed",
			path: "/receive_command",
			body: `{"command":"move_forward; ascend ;stop"}`,
			want: []string{"move_forward", "ascend", "stop"},
		},
		{
			name: "coordinate arguments pass through unsplit",
			path: "/receive_command",
			body: `{"command":"navigate_to_position:1,2,3,4,5,6"}`,
			want: []string{"navigate_to_position:1,2,3,4,5,6"},
		},
		{
			name: "details field is accepted",
			path: "/receive_command",
			body: `{"command":"turn_90","details":"user said turn right"}`,
			want: []string{"turn_90"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, sim, _ := newTestServer(t, nil)
			resp := postJSON(t, s, tt.path, tt.body)

			require.Equal(t, http.StatusOK, resp.StatusCode)
			ack := decodeBody[ackResponse](t, resp)
			assert.Equal(t, "success", ack.Status)

			sim.mu.Lock()
			defer sim.mu.Unlock()
			assert.Equal(t, tt.want, sim.commands)
		})
	}
}

func TestServer_ReceiveCommandErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "missing command field", body: `{"details":"x"}`},
		{name: "empty command", body: `{"command":""}`},
		{name: "only separators", body: `{"command":" ; ;"}`},
		{name: "invalid JSON", body: `{"command":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, sim, _ := newTestServer(t, nil)
			resp := postJSON(t, s, "/receive_command", tt.body)

			require.Equal(t, http.StatusBadRequest, resp.StatusCode)
			errResp := decodeBody[errorResponse](t, resp)
			assert.NotEmpty(t, errResp.Error)

			sim.mu.Lock()
			defer sim.mu.Unlock()
			assert.Empty(t, sim.commands)
		})
	}
}

func TestServer_Observations(t *testing.T) {
	s, sim, _ := newTestServer(t, nil)

	resp := postJSON(t, s, "/observations",
		`{"name":"Blue Chair","tag":"chair","position":{"x":3,"y":0,"z":4},"distanceMeters":5,"timestampSeconds":1700000000.5}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	sim.mu.Lock()
	defer sim.mu.Unlock()
	require.Len(t, sim.observations, 1)
	obs := sim.observations[0]
	assert.Equal(t, "Blue Chair", obs.Name)
	assert.Equal(t, "chair", obs.Tag)
	assert.InDelta(t, 3, obs.Position.X, 1e-9)
	assert.InDelta(t, 5, obs.Distance, 1e-9)
	assert.Equal(t, vec.Identity(), obs.Orientation, "zero orientation should default to identity")
	assert.Equal(t, int64(1700000000), obs.Time.Unix())
}

func TestServer_ObservationMissingName(t *testing.T) {
	s, sim, _ := newTestServer(t, nil)

	resp := postJSON(t, s, "/observations", `{"tag":"chair"}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	sim.mu.Lock()
	defer sim.mu.Unlock()
	assert.Empty(t, sim.observations)
}

func TestServer_HistoryByTag(t *testing.T) {
	s, _, hist := newTestServer(t, nil)
	hist.Add(core.Observation{
		Name:     "Blue Chair",
		Tag:      "chair",
		Position: vec.Vec3{X: 3, Z: 4},
		Distance: 5,
		Time:     time.Now(),
	})

	resp := getPath(t, s, "/history?tag=chair")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody[historyResponse](t, resp)

	require.True(t, body.Found)
	require.Len(t, body.Records, 1)
	rec := body.Records[0]
	assert.Equal(t, "Blue Chair", rec.Name)
	assert.InDelta(t, 3, rec.Position.X, 1e-9)
	assert.InDelta(t, 5, rec.DistanceMeters, 1e-9)
	assert.Greater(t, rec.TimestampSeconds, 0.0)
	assert.Nil(t, rec.Longitude)
}

func TestServer_HistoryMissIsNotAnError(t *testing.T) {
	s, _, _ := newTestServer(t, nil)

	resp := getPath(t, s, "/history?tag=nothing")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody[historyResponse](t, resp)
	assert.False(t, body.Found)
	assert.Zero(t, body.Count)
}

func TestServer_HistoryRecent(t *testing.T) {
	s, _, hist := newTestServer(t, nil)
	base := time.Now()
	for i, name := range []string{"first", "second", "third"} {
		hist.Add(core.Observation{Name: name, Time: base.Add(time.Duration(i) * time.Second)})
	}

	resp := getPath(t, s, "/history?count=2")
	body := decodeBody[historyResponse](t, resp)

	require.Equal(t, 2, body.Count)
	assert.Equal(t, "third", body.Records[0].Name)
	assert.Equal(t, "second", body.Records[1].Name)
}

func TestServer_HistoryByName(t *testing.T) {
	s, _, hist := newTestServer(t, nil)
	hist.Add(core.Observation{Name: "Landing Pad", Tag: "pad", Time: time.Now()})

	resp := getPath(t, s, "/history?name=landing%20pad")
	body := decodeBody[historyResponse](t, resp)
	require.True(t, body.Found)
	assert.Equal(t, "Landing Pad", body.Records[0].Name)
}

func TestServer_HistoryGeo(t *testing.T) {
	conv, err := geo.NewConverter(0, 0)
	require.NoError(t, err)
	s, _, hist := newTestServer(t, conv)
	hist.Add(core.Observation{
		Name:     "tower",
		Tag:      "tower",
		Position: vec.Vec3{X: 1000, Y: 50, Z: 1000},
		Time:     time.Now(),
	})

	resp := getPath(t, s, "/history?tag=tower&geo=1")
	body := decodeBody[historyResponse](t, resp)
	require.True(t, body.Found)
	rec := body.Records[0]

	require.NotNil(t, rec.Longitude)
	require.NotNil(t, rec.Latitude)
	require.NotNil(t, rec.AltitudeMeters)
	assert.InDelta(t, 0.008983, *rec.Longitude, 1e-4)
	assert.InDelta(t, 0.008983, *rec.Latitude, 1e-4)
	assert.InDelta(t, 50, *rec.AltitudeMeters, 1e-9)

	resp = getPath(t, s, "/history?tag=tower")
	body = decodeBody[historyResponse](t, resp)
	assert.Nil(t, body.Records[0].Longitude, "geo fields require geo=1")
}

func TestServer_HistoryTags(t *testing.T) {
	s, _, hist := newTestServer(t, nil)
	hist.Add(core.Observation{Name: "a", Tag: "chair", Time: time.Now()})
	hist.Add(core.Observation{Name: "b", Tag: "door", Time: time.Now()})

	resp := getPath(t, s, "/history/tags")
	body := decodeBody[tagsResponse](t, resp)
	assert.Equal(t, []string{"chair", "door"}, body.Tags)
}

func TestServer_Health(t *testing.T) {
	s, _, _ := newTestServer(t, nil)

	resp := getPath(t, s, "/health")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody[healthResponse](t, resp)

	assert.True(t, body.IsServerRunning)
	assert.True(t, body.IsSimRunning)
	assert.Equal(t, uint64(42), body.Tick)
}

func TestServer_HealthStaleSim(t *testing.T) {
	s, sim, _ := newTestServer(t, nil)
	sim.mu.Lock()
	sim.state.Time = time.Now().Add(-10 * time.Second)
	sim.mu.Unlock()

	body := decodeBody[healthResponse](t, getPath(t, s, "/health"))
	assert.False(t, body.IsSimRunning)
}

func TestServer_Status(t *testing.T) {
	s, _, hist := newTestServer(t, nil)
	hist.Add(core.Observation{Name: "a", Tag: "chair", Time: time.Now()})

	body := decodeBody[statusResponse](t, getPath(t, s, "/status"))
	assert.Equal(t, "idle", body.Mode)
	assert.InDelta(t, 100, body.SpeedPercent, 1e-9)
	assert.Equal(t, uint64(42), body.Tick)
	assert.Equal(t, 1, body.HistoryCount)
	assert.Nil(t, body.QueueDepths, "no recorder stats wired")
}

func TestServer_StatusQueueDepths(t *testing.T) {
	sim := &fakeSim{state: core.VehicleState{Mode: "idle"}}
	hist := history.NewLog(0, 0)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := New(logger, "127.0.0.1:0", sim, hist, nil,
		fakeStats{commands: 1, events: 2, states: 3, observations: 4})
	require.NoError(t, err)

	body := decodeBody[statusResponse](t, getPath(t, s, "/status"))
	require.NotNil(t, body.QueueDepths)
	assert.Equal(t, 1, body.QueueDepths.Commands)
	assert.Equal(t, 2, body.QueueDepths.Events)
	assert.Equal(t, 3, body.QueueDepths.States)
	assert.Equal(t, 4, body.QueueDepths.Observations)
}

func TestServer_State(t *testing.T) {
	s, sim, _ := newTestServer(t, nil)
	sim.mu.Lock()
	sim.state.Position = vec.Vec3{X: 1, Y: 2, Z: 3}
	sim.state.Velocity = vec.Vec3{Z: 5}
	sim.state.HeadingDeg = 90
	sim.mu.Unlock()

	body := decodeBody[stateResponse](t, getPath(t, s, "/state"))
	assert.InDelta(t, 1, body.Position.X, 1e-9)
	assert.InDelta(t, 5, body.Velocity.Z, 1e-9)
	assert.InDelta(t, 90, body.HeadingDeg, 1e-9)
	assert.Equal(t, uint64(42), body.Tick)
}

func TestServer_Root(t *testing.T) {
	s, _, _ := newTestServer(t, nil)
	resp := getPath(t, s, "/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
