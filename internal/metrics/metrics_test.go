package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_JobLifecycle(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New("jobspool", reg)

	m.RecordCycle()
	m.RecordCycle()
	m.RecordDequeued("default")
	m.JobStarted("default")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runningJobs.WithLabelValues("default")))

	m.JobFinished("default", StatusSuccess, 150*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.cyclesTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.dequeuedTotal.WithLabelValues("default")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.runningJobs.WithLabelValues("default")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.finishedTotal.WithLabelValues("default", StatusSuccess)))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.finishedTotal.WithLabelValues("default", StatusFailure)))
	assert.Equal(t, 1, testutil.CollectAndCount(m.jobDuration))
}

func TestMetrics_SpoolEvents(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New("jobspool", reg)

	m.RecordCorrupt("pending", "etl")
	m.RecordCorrupt("pending", "etl")
	m.RecordChained("etl")
	m.RecordPruned(3)
	m.RecordPruned(0)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.corruptTotal.WithLabelValues("pending", "etl")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.chainedTotal.WithLabelValues("etl")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.prunedTotal))
}

func TestMetrics_RegistersUnderNamespace(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New("jobspool", reg)
	m.RecordCycle()

	families, err := reg.Gather()
	assert.NoError(t, err)

	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "jobspool_scheduler_cycles_total")
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordCycle()
		m.RecordDequeued("default")
		m.JobStarted("default")
		m.JobFinished("default", StatusFailure, time.Second)
		m.RecordChained("default")
		m.RecordCorrupt("pending", "default")
		m.RecordPruned(1)
	})
}

func TestMetrics_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New("jobspool", reg)
	assert.Panics(t, func() { New("jobspool", reg) })
}
