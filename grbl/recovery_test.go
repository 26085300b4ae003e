package grbl

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iwtcode/grblAdapter/models"
)

func TestWithRetryStopsOnSuccess(t *testing.T) {
	calls := 0
	err := withRetry(5, 0, func() (bool, error) {
		calls++
		if calls < 3 {
			return true, errors.New("transient")
		}
		return false, nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)
}

func TestWithRetryStopsOnFinalError(t *testing.T) {
	calls := 0
	fatal := errors.New("fatal")
	err := withRetry(5, 0, func() (bool, error) {
		calls++
		return false, fatal
	})
	require.ErrorIs(t, err, fatal)
	require.Equal(t, 1, calls)
}

func TestWithRetryExhaustsAttempts(t *testing.T) {
	calls := 0
	transient := errors.New("transient")
	err := withRetry(3, 0, func() (bool, error) {
		calls++
		return true, transient
	})
	require.ErrorIs(t, err, transient)
	require.Equal(t, 3, calls)
}

func TestBackoffDirectionPicksNearestBoundary(t *testing.T) {
	a := newTestAdapter(newFakeConn())

	// Объём по умолчанию: X[0..300] Y[0..200] Z[-80..0].
	cases := []struct {
		pos  models.Coordinate
		axis string
		dir  int
	}{
		{models.NewCoordinate(299, 100, -40), "X", -1},
		{models.NewCoordinate(1, 100, -40), "X", +1},
		{models.NewCoordinate(150, 199, -40), "Y", -1},
		{models.NewCoordinate(150, 1, -40), "Y", +1},
		{models.NewCoordinate(150, 100, -1), "Z", -1},
		{models.NewCoordinate(150, 100, -79), "Z", +1},
	}
	for _, tc := range cases {
		axis, dir := a.backoffDirection(tc.pos)
		require.Equal(t, tc.axis, axis, "pos=%s", tc.pos)
		require.Equal(t, tc.dir, dir, "pos=%s", tc.pos)
	}
}

func TestRecoverFromAlarmBacksOffNearestBoundary(t *testing.T) {
	fc := newFakeConn()
	fc.statusSequence(
		"<Alarm|WPos:299.000,100.000,-40.000>",
		"<Idle|WPos:297.000,100.000,-40.000>",
	)
	a := newTestAdapter(fc)

	require.NoError(t, a.recoverFromAlarm("test"))

	lines := fc.sentLines()
	require.Contains(t, lines, "$X")
	require.Contains(t, lines, "G91")
	require.Contains(t, lines, "G1 X-2.000 F800.0")
	require.Contains(t, lines, "G90")
}

func TestRecoverFromAlarmFailsWhenAlarmPersists(t *testing.T) {
	fc := newFakeConn()
	fc.statusSequence("<Alarm|WPos:0.000,0.000,0.000>")
	a := newTestAdapter(fc)

	err := a.recoverFromAlarm("trigger")
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, "trigger", statusErr.Response)
	require.Equal(t, 1, fc.sentCount("$X"))
}
