package tracking

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryMonitorRecordsSamples(t *testing.T) {
	file := MemoryFile(filepath.Join(t.TempDir(), "results"), "run")
	m := NewMemoryMonitor(MonitorConfig{Enabled: true, Interval: 10 * time.Millisecond, File: file})

	m.Start()
	time.Sleep(50 * time.Millisecond)
	m.Stop()

	samples := m.Samples()
	require.GreaterOrEqual(t, len(samples), 2)
	require.Greater(t, samples[0].HeapSysBytes, float64(0))
	require.Greater(t, m.Peak(), float64(0))

	data, err := os.ReadFile(file)
	require.Nil(t, err)
	var written []MemorySample
	require.Nil(t, json.Unmarshal(data, &written))
	require.Len(t, written, len(samples))
}

func TestMemoryMonitorDisabled(t *testing.T) {
	file := filepath.Join(t.TempDir(), "memory.json")
	m := NewMemoryMonitor(MonitorConfig{File: file})

	m.Start()
	m.Stop()

	require.Empty(t, m.Samples())
	require.NoFileExists(t, file)
}

func TestHostInfo(t *testing.T) {
	info := HostInfo()
	require.Contains(t, info, "host_cpu")
	require.Contains(t, info, "host_logical_cores")
}
