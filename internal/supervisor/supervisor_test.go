package supervisor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func (s *Supervisor) withClock(fn func() time.Time) {
	s.now = fn
}

func TestRecordCrashArmsBackoffThenAllowsRestart(t *testing.T) {
	s := New()
	clock := time.Now()
	s.withClock(func() time.Time { return clock })

	s.Register("p1", Config{Enabled: true, MaxAttempts: 3, BackoffMS: []int64{100, 200, 400}})

	s.RecordCrash("p1")
	require.Equal(t, 1, s.GetAttemptCount("p1"))
	require.False(t, s.ShouldRestart("p1"), "backoff has not elapsed yet")

	clock = clock.Add(150 * time.Millisecond)
	require.True(t, s.ShouldRestart("p1"))
}

func TestCircuitOpensAfterMaxAttempts(t *testing.T) {
	s := New()
	s.Register("p1", Config{Enabled: true, MaxAttempts: 2, BackoffMS: []int64{10, 20}})

	s.RecordCrash("p1")
	s.RecordCrash("p1")
	require.False(t, s.IsCircuitOpen("p1"))

	s.RecordCrash("p1") // third failure exceeds MaxAttempts
	require.True(t, s.IsCircuitOpen("p1"))
	require.False(t, s.ShouldRestart("p1"), "open circuit must not permit restarts")
}

func TestRecordSuccessResetsAttemptsAndCircuit(t *testing.T) {
	s := New()
	s.Register("p1", Config{Enabled: true, MaxAttempts: 1, BackoffMS: []int64{10}})

	s.RecordCrash("p1")
	s.RecordCrash("p1")
	require.True(t, s.IsCircuitOpen("p1"))

	s.RecordSuccess("p1")
	require.False(t, s.IsCircuitOpen("p1"))
	require.Equal(t, 0, s.GetAttemptCount("p1"))
}

func TestMarkCrashDetectedLatchesOnce(t *testing.T) {
	s := New()
	s.Register("p1", Config{Enabled: true, MaxAttempts: 3, BackoffMS: []int64{10, 10, 10}})

	require.True(t, s.MarkCrashDetected("p1"))
	require.False(t, s.MarkCrashDetected("p1"), "second call on the same episode must not re-latch")

	s.ClearCrashDetected("p1")
	require.True(t, s.MarkCrashDetected("p1"), "after clearing, a new episode can latch again")
}

func TestResetBreakerClearsOpenCircuitAndLatch(t *testing.T) {
	s := New()
	s.Register("p1", Config{Enabled: true, MaxAttempts: 1, BackoffMS: []int64{10}})

	s.MarkCrashDetected("p1")
	s.RecordCrash("p1")
	s.RecordCrash("p1")
	require.True(t, s.IsCircuitOpen("p1"))

	s.ResetBreaker("p1")
	require.False(t, s.IsCircuitOpen("p1"))
	require.Equal(t, 0, s.GetAttemptCount("p1"))
	require.True(t, s.MarkCrashDetected("p1"), "latch must be clear after ResetBreaker")
}

func TestDisabledPolicyNeverRestarts(t *testing.T) {
	s := New()
	s.Register("p1", Config{Enabled: false, MaxAttempts: 3, BackoffMS: []int64{10, 10, 10}})

	s.RecordCrash("p1")
	require.False(t, s.ShouldRestart("p1"))
	require.Equal(t, 0, s.GetAttemptCount("p1"))
}

func TestUnknownProviderIsInert(t *testing.T) {
	s := New()
	require.False(t, s.ShouldRestart("ghost"))
	require.False(t, s.IsCircuitOpen("ghost"))
	require.Equal(t, 0, s.GetAttemptCount("ghost"))
}
