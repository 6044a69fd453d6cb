package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.AddRecords("matched", 3)
	m.AddRecords("matched", 2)
	m.AddRecords("unmatched", 0)
	m.AddMappings(4)
	m.IncGenerated("1")
	m.IncGenerated("1")
	m.IncWindow("2", false)

	assert.Equal(t, 5.0, testutil.ToFloat64(m.Records.WithLabelValues("matched")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.MappingsFlushed))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Generated.WithLabelValues("1")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RecalcWindows.WithLabelValues("2", "rolled_back")))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.AddRecords("matched", 1)
		m.ObserveLookup(time.Second)
		m.IncWindow("1", true)
		assert.NoError(t, m.WriteTextfile("ignored.prom"))
	})
}

func TestMetrics_WriteTextfile(t *testing.T) {
	m := New()
	m.SetRunDuration("reconcile", "succeeded", 2*time.Second)

	path := filepath.Join(t.TempDir(), "fileno.prom")
	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), `fileno_run_duration_seconds{kind="reconcile",status="succeeded"} 2`))
}
