package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_WithValidConfigFile(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := t.TempDir()
	cfg := `{
		"logLevel": "debug",
		"server": { "host": "0.0.0.0", "port": 8080 },
		"db": { "host": "10.0.0.1", "port": "5433" }
	}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "dronepilot.cfg.json"), []byte(cfg), 0644))

	err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "debug", viper.GetString("logLevel"))
	assert.Equal(t, "0.0.0.0", viper.GetString("server.host"))
	assert.Equal(t, 8080, viper.GetInt("server.port"))
	assert.Equal(t, "10.0.0.1", viper.GetString("db.host"))
	assert.Equal(t, "5433", viper.GetString("db.port"))
}

func TestLoad_DefaultValues(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "dronepilot.cfg.json"), []byte(`{}`), 0644))

	err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "info", viper.GetString("logLevel"))
	assert.Equal(t, "./logs", viper.GetString("logsDir"))
	assert.Equal(t, "127.0.0.1", viper.GetString("server.host"))
	assert.Equal(t, 5005, viper.GetInt("server.port"))
	assert.Equal(t, 30.0, viper.GetFloat64("sim.tickRateHz"))
	assert.Equal(t, 5.0, viper.GetFloat64("motion.linearSpeed"))
	assert.Equal(t, 90.0, viper.GetFloat64("motion.turnRateDeg"))
	assert.Equal(t, "2s", viper.GetString("motion.commandTimeout"))
	assert.Equal(t, 100, viper.GetInt("history.capacity"))
	assert.Equal(t, "memory", viper.GetString("recorder.type"))
	assert.Equal(t, "./recordings", viper.GetString("recorder.memory.outputDir"))
	assert.Equal(t, true, viper.GetBool("recorder.memory.compressOutput"))
	assert.Equal(t, "localhost", viper.GetString("db.host"))
	assert.Equal(t, "dronepilot", viper.GetString("db.database"))
	assert.Equal(t, false, viper.GetBool("influx.enabled"))
	assert.Equal(t, false, viper.GetBool("graylog.enabled"))
	assert.Equal(t, "localhost:12201", viper.GetString("graylog.address"))
	assert.Equal(t, false, viper.GetBool("otel.enabled"))
	assert.Equal(t, "dronepilot", viper.GetString("otel.serviceName"))
	assert.Equal(t, "5s", viper.GetString("otel.batchTimeout"))
	assert.Equal(t, true, viper.GetBool("otel.insecure"))
	assert.Equal(t, false, viper.GetBool("geo.enabled"))
}

func TestLoad_MissingFile(t *testing.T) {
	t.Cleanup(viper.Reset)

	err := Load("/nonexistent/path")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error reading config file")
}

func TestGetMotionConfig(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := t.TempDir()
	cfg := `{
		"motion": { "linearSpeed": 7.5, "turnRateDeg": 120, "commandTimeout": "1500ms" }
	}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "dronepilot.cfg.json"), []byte(cfg), 0644))
	require.NoError(t, Load(dir))

	mc := GetMotionConfig()
	assert.Equal(t, 7.5, mc.LinearSpeed)
	assert.Equal(t, 120.0, mc.TurnRateDeg)
	assert.Equal(t, 1500*time.Millisecond, mc.CommandTimeout)
}

func TestGetHistoryConfig_Defaults(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "dronepilot.cfg.json"), []byte(`{}`), 0644))
	require.NoError(t, Load(dir))

	hc := GetHistoryConfig()
	assert.Equal(t, 100, hc.Capacity)
	assert.Equal(t, 10*time.Second, hc.DuplicateCooldown)
}

func TestGetRecorderConfig_Override(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := t.TempDir()
	cfg := `{
		"recorder": {
			"type": "sqlite",
			"sampleInterval": "500ms",
			"memory": { "outputDir": "/tmp/out", "compressOutput": false }
		}
	}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "dronepilot.cfg.json"), []byte(cfg), 0644))
	require.NoError(t, Load(dir))

	rc := GetRecorderConfig()
	assert.Equal(t, "sqlite", rc.Type)
	assert.Equal(t, 500*time.Millisecond, rc.SampleInterval)
	assert.Equal(t, "/tmp/out", rc.Memory.OutputDir)
	assert.Equal(t, false, rc.Memory.CompressOutput)
}

func TestGetOTelConfig_Override(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := t.TempDir()
	cfg := `{
		"otel": {
			"enabled": true,
			"serviceName": "my-service",
			"batchTimeout": "30s",
			"endpoint": "localhost:4317",
			"insecure": false
		}
	}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "dronepilot.cfg.json"), []byte(cfg), 0644))
	require.NoError(t, Load(dir))

	oc := GetOTelConfig()
	assert.Equal(t, true, oc.Enabled)
	assert.Equal(t, "my-service", oc.ServiceName)
	assert.Equal(t, 30*time.Second, oc.BatchTimeout)
	assert.Equal(t, "localhost:4317", oc.Endpoint)
	assert.Equal(t, false, oc.Insecure)
}

func TestGetServerConfig(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := t.TempDir()
	cfg := `{ "server": { "host": "0.0.0.0", "port": 9000 } }`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "dronepilot.cfg.json"), []byte(cfg), 0644))
	require.NoError(t, Load(dir))

	sc := GetServerConfig()
	assert.Equal(t, "0.0.0.0", sc.Host)
	assert.Equal(t, 9000, sc.Port)
}
