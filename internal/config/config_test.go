package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const sampleYAML = `
runtime:
  mode: MANUAL
logging:
  level: info
polling:
  interval_ms: 500
metrics_namespace: anolis
providers:
  - id: sim0
    command: /usr/bin/sim-provider
    args: ["--port", "9000"]
    timeout_ms: 500
    restart_policy:
      enabled: true
      max_attempts: 3
      backoff_ms: [100, 500, 2000]
automation:
  enabled: true
  behavior_tree: tree.json
  tick_rate_hz: 20
  manual_gating_policy: OVERRIDE
  parameters:
    - name: setpoint
      type: double
      default: 20.0
      min: 0
      max: 100
`

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "anolis.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadParsesAllFields(t *testing.T) {
	path := writeTemp(t, sampleYAML)
	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "MANUAL", cfg.Runtime.Mode)
	require.Equal(t, "info", cfg.Logging.Level)
	require.Equal(t, int64(500), cfg.Polling.IntervalMS)
	require.Len(t, cfg.Providers, 1)
	require.Equal(t, "sim0", cfg.Providers[0].ID)
	require.Equal(t, []int64{100, 500, 2000}, cfg.Providers[0].RestartPolicy.BackoffMS)
	require.True(t, cfg.Automation.Enabled)
	require.Equal(t, "tree.json", cfg.Automation.BehaviorTree)
	require.Equal(t, 20, cfg.Automation.TickRateHz)
	require.Equal(t, "OVERRIDE", cfg.Automation.ManualGatingPolicy)
	require.Len(t, cfg.Automation.Parameters, 1)
}

func TestValidateRejectsDuplicateProviderIDs(t *testing.T) {
	cfg := &Config{Providers: []Provider{{ID: "a"}, {ID: "a"}}}
	require.Error(t, Validate(cfg))
}

func TestValidateRejectsMismatchedBackoffLength(t *testing.T) {
	cfg := &Config{Providers: []Provider{{
		ID:            "a",
		RestartPolicy: RestartPolicy{Enabled: true, MaxAttempts: 3, BackoffMS: []int64{100, 200}},
	}}}
	require.Error(t, Validate(cfg))
}

func TestValidateRejectsNegativePollingInterval(t *testing.T) {
	cfg := &Config{Polling: Polling{IntervalMS: -1}}
	require.Error(t, Validate(cfg))
}

func TestValidateRejectsUnknownRuntimeMode(t *testing.T) {
	cfg := &Config{Runtime: Runtime{Mode: "BOGUS"}}
	require.Error(t, Validate(cfg))
}

func TestValidateRejectsUnknownLoggingLevel(t *testing.T) {
	cfg := &Config{Logging: Logging{Level: "verbose"}}
	require.Error(t, Validate(cfg))
}

func TestValidateRequiresBehaviorTreeWhenAutomationEnabled(t *testing.T) {
	cfg := &Config{Automation: Automation{Enabled: true, TickRateHz: 10}}
	require.Error(t, Validate(cfg))
}

func TestValidateRejectsOutOfRangeTickRate(t *testing.T) {
	cfg := &Config{Automation: Automation{Enabled: true, BehaviorTree: "tree.json", TickRateHz: 0}}
	require.Error(t, Validate(cfg))
}

func TestValidateRejectsUnknownManualGatingPolicy(t *testing.T) {
	cfg := &Config{Automation: Automation{ManualGatingPolicy: "SOMETIMES"}}
	require.Error(t, Validate(cfg))
}

func TestWatcherReloadsOnWrite(t *testing.T) {
	path := writeTemp(t, sampleYAML)
	w, err := NewWatcher(path)
	require.NoError(t, err)

	got := make(chan *Config, 1)
	w.OnChange(func(cfg *Config) { got <- cfg })

	stopCh := make(chan struct{})
	go w.Run(stopCh, nil)
	defer close(stopCh)

	time.Sleep(50 * time.Millisecond) // let the watcher attach before the write
	overridden := strings.Replace(sampleYAML, "tick_rate_hz: 20", "tick_rate_hz: 40", 1)
	require.NoError(t, os.WriteFile(path, []byte(overridden), 0644))

	select {
	case cfg := <-got:
		require.Equal(t, 40, cfg.Automation.TickRateHz)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for reload callback")
	}
}
