package api

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/oee-tracker/production"
	"github.com/warp/oee-tracker/shift"
)

func TestLineMonitor_Transitions(t *testing.T) {
	// GIVEN: A fresh line with no reports
	a := newAPI(t, shift.At(testDay, 9, 0))
	m := a.handler.Monitor
	ctx := context.Background()

	_, ok := m.Last()
	assert.False(t, ok)

	st, err := m.Check(ctx)
	require.NoError(t, err)
	assert.Equal(t, production.LineOffline, st.State)
	assert.Nil(t, st.LastActivity)

	// WHEN: A counter report arrives
	a.report(t, bigCylinder, 10, 100)
	a.clock.Advance(4 * time.Minute)

	// THEN: The line is online
	st, err = m.Check(ctx)
	require.NoError(t, err)
	assert.Equal(t, production.LineOnline, st.State)
	assert.Equal(t, "4 minutes ago", st.SinceLastText())

	// WHEN: The line goes silent past the threshold
	a.clock.Advance(7 * time.Minute)

	// THEN: The line is offline and the cached status follows
	st, err = m.Check(ctx)
	require.NoError(t, err)
	assert.Equal(t, production.LineOffline, st.State)
	assert.True(t, st.ShiftActive)

	last, ok := m.Last()
	require.True(t, ok)
	assert.Equal(t, production.LineOffline, last.State)
}

func TestLineMonitor_StartStop(t *testing.T) {
	a := newAPI(t, shift.At(testDay, 9, 0))
	m := a.handler.Monitor
	m.Interval = 10 * time.Millisecond

	m.Start()
	m.Start() // second call is a no-op

	require.Eventually(t, func() bool {
		_, ok := m.Last()
		return ok
	}, time.Second, 5*time.Millisecond)

	m.Stop()
	m.Stop()
}

func TestLineMonitor_RunStopsWithContext(t *testing.T) {
	a := newAPI(t, shift.At(testDay, 9, 0))
	m := a.handler.Monitor
	m.Interval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	require.Eventually(t, func() bool {
		_, ok := m.Last()
		return ok
	}, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("monitor did not stop")
	}
}
