package housekeep

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/badu/aio/httpserver"
)

func TestAddIdleSweepZeroIntervalIsNoop(t *testing.T) {
	srv := httpserver.NewServer(nil, nil)
	s := New(srv, logrus.NewEntry(logrus.StandardLogger()))
	require.NoError(t, s.AddIdleSweep(0, time.Minute))
	require.NoError(t, s.AddHealthLog(0))
	require.Empty(t, s.cron.Entries())
}

func TestAddIdleSweepRegistersJob(t *testing.T) {
	srv := httpserver.NewServer(nil, nil)
	s := New(srv, logrus.NewEntry(logrus.StandardLogger()))
	require.NoError(t, s.AddIdleSweep(time.Second, time.Minute))
	require.Len(t, s.cron.Entries(), 1)
}
