package progress

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestReporter_ClampsAndStaysMonotonic(t *testing.T) {
	status := &Status{}
	r := NewReporter("run-1", status, zap.NewNop())

	r.Report(PhaseInsert, "start", -5)
	last, ok := status.Last()
	require.True(t, ok)
	assert.Equal(t, 0.0, *last.Percent)

	r.Report(PhaseInsert, "half", 50)
	r.Report(PhaseInsert, "backwards", 30)
	last, _ = status.Last()
	assert.Equal(t, 50.0, *last.Percent)
	assert.Equal(t, "backwards", last.Message)

	r.Report(PhaseInsert, "over", 140)
	last, _ = status.Last()
	assert.Equal(t, 100.0, *last.Percent)

	// Another phase starts from zero again
	r.Report(PhasePrefetch, "other", 10)
	last, _ = status.Last()
	assert.Equal(t, 10.0, *last.Percent)
	assert.Equal(t, "run-1", last.RunID)
}

func TestStage_ScalesIntoWindow(t *testing.T) {
	status := &Status{}
	r := NewReporter("run-1", status, nil)
	stage := r.Stage(PhasePrefetch, 5, 35)

	stage.Update("chunk", 1, 2)
	last, _ := status.Last()
	assert.InDelta(t, 22.5, *last.Percent, 1e-9)

	stage.Update("empty", 0, 0)
	last, _ = status.Last()
	assert.InDelta(t, 40.0, *last.Percent, 1e-9)

	stage.Done("done")
	last, _ = status.Last()
	assert.InDelta(t, 40.0, *last.Percent, 1e-9)
}

func TestChannelSink_NeverBlocks(t *testing.T) {
	sink := NewChannelSink(2)
	r := NewReporter("run-1", sink, nil)

	for i := 0; i < 5; i++ {
		r.Message(PhaseRead, "tick")
	}

	assert.Equal(t, int64(3), sink.Dropped())
	sink.Close()

	var got int
	for e := range sink.Events() {
		assert.Nil(t, e.Percent)
		got++
	}
	assert.Equal(t, 2, got)
}

func TestReporter_SinkErrorsAreLogged(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	failing := SinkFunc(func(Event) error { return errors.New("sink down") })
	r := NewReporter("run-1", Multi{failing, &Status{}}, zap.New(core))

	assert.NotPanics(t, func() { r.Message(PhaseDone, "finished") })
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "Progress sink rejected event", logs.All()[0].Message)
}

func TestReporter_NilIsNoop(t *testing.T) {
	var r *Reporter
	assert.NotPanics(t, func() {
		r.Message(PhaseRead, "x")
		r.Report(PhaseRead, "x", 10)
	})
}
