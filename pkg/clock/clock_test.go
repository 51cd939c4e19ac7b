package clock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSystemSleepCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := System().Sleep(ctx, time.Hour)
	require.Equal(t, context.Canceled, err)
}

func TestFake(t *testing.T) {
	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	f := NewFake(start)

	require.NoError(t, f.Sleep(context.Background(), time.Second))
	f.Advance(time.Minute)
	assert.Equal(t, start.Add(time.Minute+time.Second), f.Now())
	assert.Equal(t, []time.Duration{time.Second}, f.Sleeps())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.Error(t, f.Sleep(ctx, time.Second))
	assert.Len(t, f.Sleeps(), 1)
}
