package run

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus(t *testing.T) {
	tests := []struct {
		status Status
		valid  bool
		final  bool
	}{
		{status: StatusPending, valid: true},
		{status: StatusRunning, valid: true},
		{status: StatusCompleted, valid: true, final: true},
		{status: StatusFailed, valid: true, final: true},
		{status: Status("stopped")},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.valid, tt.status.IsValid())
			assert.Equal(t, tt.final, tt.status.IsFinal())
		})
	}
}

func TestRun_Transitions(t *testing.T) {
	r := newRun()
	require.NoError(t, r.Validate())

	assert.ErrorIs(t, r.Complete(Completion{}), ErrRunNotRunning)
	require.NoError(t, r.Start())
	assert.ErrorIs(t, r.Start(), ErrRunAlreadyStarted)

	require.NoError(t, r.Complete(Completion{SuccessCount: 3}))
	assert.Equal(t, StatusCompleted, r.Status)
	assert.Equal(t, 3, r.SuccessCount)
	require.NotNil(t, r.DurationMs)
	assert.GreaterOrEqual(t, *r.DurationMs, int64(0))

	assert.ErrorIs(t, r.Fail("late"), ErrRunNotRunning)
}

func TestJSONMap_Scan(t *testing.T) {
	var m JSONMap
	require.NoError(t, m.Scan([]byte(`{"a": 1}`)))
	assert.Equal(t, float64(1), m["a"])

	require.NoError(t, m.Scan(`{"b": "x"}`))
	assert.Equal(t, "x", m["b"])

	require.NoError(t, m.Scan(nil))
	assert.Empty(t, m)

	assert.Error(t, m.Scan(42))
}
