package modemgr

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestModeStringRoundTrip(t *testing.T) {
	for _, m := range []Mode{ModeIdle, ModeManual, ModeAuto, ModeFault} {
		parsed, err := ParseMode(m.String())
		require.NoError(t, err)
		require.Equal(t, m, parsed)
	}
}

func TestParseModeRejectsUnknown(t *testing.T) {
	_, err := ParseMode("BOGUS")
	require.Error(t, err)
}

func TestStartsInConfiguredMode(t *testing.T) {
	require.Equal(t, ModeIdle, New(ModeIdle).Current())
	require.Equal(t, ModeManual, New(ModeManual).Current())
}

func TestDirectManualToAutoAllowed(t *testing.T) {
	m := New(ModeManual)
	require.NoError(t, m.SetMode(ModeAuto))
	require.Equal(t, ModeAuto, m.Current())
}

func TestDirectAutoToIdleRejected(t *testing.T) {
	m := New(ModeAuto)
	require.Error(t, m.SetMode(ModeIdle), "AUTO must route through MANUAL before IDLE")
}

func TestValidTransitions(t *testing.T) {
	m := New(ModeIdle)
	require.NoError(t, m.SetMode(ModeManual))
	require.Equal(t, ModeManual, m.Current())

	require.NoError(t, m.SetMode(ModeAuto))
	require.Equal(t, ModeAuto, m.Current())

	require.NoError(t, m.SetMode(ModeManual))
	require.NoError(t, m.SetMode(ModeIdle))
	require.Equal(t, ModeIdle, m.Current())
}

func TestSettingCurrentModeIsANoOp(t *testing.T) {
	m := New(ModeIdle)
	require.NoError(t, m.SetMode(ModeIdle))
	require.Equal(t, ModeIdle, m.Current())
}

func TestFaultReachableFromAnyMode(t *testing.T) {
	for _, start := range []Mode{ModeIdle, ModeManual, ModeAuto} {
		m := New(start)
		require.NoError(t, m.SetMode(ModeFault))
		require.Equal(t, ModeFault, m.Current())
	}
}

func TestFaultOnlyExitsToManual(t *testing.T) {
	m := New(ModeIdle)
	m.RaiseFault()
	require.Error(t, m.SetMode(ModeIdle))
	require.Error(t, m.SetMode(ModeAuto))
	require.NoError(t, m.SetMode(ModeManual))
}

func TestOnChangeFiresWithFromAndToAfterUnlock(t *testing.T) {
	m := New(ModeIdle)

	type transition struct {
		from, to Mode
		at       time.Time
	}
	ch := make(chan transition, 4)
	m.OnChange(func(from, to Mode, at time.Time) {
		ch <- transition{from, to, at}
	})

	require.NoError(t, m.SetMode(ModeManual))
	got := <-ch
	require.Equal(t, ModeIdle, got.from)
	require.Equal(t, ModeManual, got.to)
	require.False(t, got.at.IsZero())
}

func TestRaiseFaultSkipsCallbackWhenAlreadyFault(t *testing.T) {
	m := New(ModeIdle)
	m.RaiseFault()

	var calls int
	m.OnChange(func(from, to Mode, at time.Time) { calls++ })
	m.RaiseFault()
	require.Equal(t, 0, calls)
}
