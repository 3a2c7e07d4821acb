package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRandomPacerStaysInWindow(t *testing.T) {
	t.Parallel()

	p := NewRandomPacer(200*time.Millisecond, 700*time.Millisecond)
	for range 200 {
		d := p.Next()
		assert.GreaterOrEqual(t, d, 200*time.Millisecond)
		assert.LessOrEqual(t, d, 700*time.Millisecond)
	}
}

func TestRandomPacerSwapsInvertedBounds(t *testing.T) {
	t.Parallel()

	p := NewRandomPacer(time.Second, 10*time.Millisecond)
	assert.Equal(t, 10*time.Millisecond, p.Min)
	assert.Equal(t, time.Second, p.Max)
}

func TestRandomPacerFixedWindow(t *testing.T) {
	t.Parallel()

	p := NewRandomPacer(50*time.Millisecond, 50*time.Millisecond)
	assert.Equal(t, 50*time.Millisecond, p.Next())
}

func TestRandomPacerPauseUsesSleep(t *testing.T) {
	t.Parallel()

	var slept []time.Duration
	p := &RandomPacer{Min: time.Millisecond, Max: 2 * time.Millisecond, Sleep: func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}}
	require.NoError(t, p.Pause(context.Background()))
	require.Len(t, slept, 1)
	assert.GreaterOrEqual(t, slept[0], time.Millisecond)
}

func TestSleepContextCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := sleepContext(ctx, time.Hour)
	require.ErrorIs(t, err, context.Canceled)
	assert.NoError(t, sleepContext(context.Background(), 0))
}
