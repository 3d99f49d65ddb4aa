package monotonic

import (
	"testing"
	"time"

	"github.com/beevik/ntp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClockOffset(t *testing.T) {
	c := NewClock()
	assert.Zero(t, c.Offset())

	c.SetOffset(3 * time.Second)
	assert.Equal(t, 3*time.Second, c.Offset())

	diff := c.Now().Sub(time.Now())
	assert.InDelta(t, float64(3*time.Second), float64(diff), float64(100*time.Millisecond))
}

func TestTimestampNeverDecreases(t *testing.T) {
	c := NewClock()
	prev := c.Timestamp()
	for i := 0; i < 1000; i++ {
		ts := c.Timestamp()
		require.Greater(t, ts, prev)
		prev = ts
	}
}

func TestTimestampSurvivesBackwardsOffset(t *testing.T) {
	c := NewClock()
	first := c.Timestamp()

	// A large negative correction must not make timestamps go backwards.
	c.SetOffset(-time.Hour)
	second := c.Timestamp()
	assert.Greater(t, second, first)
}

func TestDeadlineExpiry(t *testing.T) {
	d := NewDeadline(50 * time.Millisecond)
	assert.False(t, d.IsExpired())
	assert.Greater(t, d.Remaining(), time.Duration(0))

	time.Sleep(60 * time.Millisecond)
	assert.True(t, d.IsExpired())
	assert.Zero(t, d.Remaining())

	d.Reset(time.Minute)
	assert.False(t, d.IsExpired())
}

func TestDeadlinePanicsOnNegativeLifetime(t *testing.T) {
	assert.Panics(t, func() { NewDeadline(-1) })
	d := NewDeadline(time.Second)
	assert.Panics(t, func() { d.Reset(-1) })
}

func TestValidateTimestamp(t *testing.T) {
	c := NewClock()
	now := uint64(time.Now().UnixMicro())

	assert.NoError(t, c.ValidateTimestamp(now))
	assert.NoError(t, c.ValidateTimestamp(now-uint64(MaxSkew.Microseconds())/2))
	assert.NoError(t, c.ValidateTimestamp(now+uint64(MaxSkew.Microseconds())/2))

	assert.ErrorIs(t, c.ValidateTimestamp(now-uint64((MaxSkew+time.Minute).Microseconds())), ErrSkew)
	assert.ErrorIs(t, c.ValidateTimestamp(now+uint64((MaxSkew+time.Minute).Microseconds())), ErrSkew)
}

type fakeNTP struct {
	errs map[string]error
}

func (f fakeNTP) Query(host string) (*ntp.Response, error) {
	return nil, f.errs[host]
}

func TestSampleOffsetAllServersFail(t *testing.T) {
	client := fakeNTP{errs: map[string]error{"a": assert.AnError, "b": assert.AnError}}
	_, err := SampleOffset(client, []string{"a", "b"})
	assert.ErrorIs(t, err, ErrNoNTPServer)
}

func TestSampleOffsetNoServers(t *testing.T) {
	_, err := SampleOffset(fakeNTP{}, nil)
	assert.ErrorIs(t, err, ErrNoNTPServer)
}
