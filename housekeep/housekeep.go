// Package housekeep restores the periodic maintenance sweep that
// original_source/ (chronos/asyncdispatch2's HTTP server) ran alongside
// request handling and that spec.md's distillation folded into
// wait-composed per-request timeouts (SPEC_FULL.md §4.12). It is optional:
// a caller that never starts it changes nothing about httpserver's own
// behavior.
package housekeep

import (
	"os"
	"runtime"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/shirou/gopsutil/v3/process"
	"github.com/sirupsen/logrus"

	"github.com/badu/aio/httpserver"
)

// Sweeper runs two optional cron jobs over an httpserver.Server: an idle
// connection sweep and a process health logger.
type Sweeper struct {
	server *httpserver.Server
	log    *logrus.Entry
	cron   *cron.Cron

	idleTimeout time.Duration
}

// New constructs a Sweeper bound to server. Call AddIdleSweep and/or
// AddHealthLog before Start to register jobs; a Sweeper with no jobs
// registered runs an empty cron schedule harmlessly.
func New(server *httpserver.Server, log *logrus.Entry) *Sweeper {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Sweeper{
		server: server,
		log:    log,
		cron:   cron.New(),
	}
}

// AddIdleSweep registers a job that runs every interval and closes any
// connection idle longer than idleTimeout. interval <= 0 is a no-op; the
// health job has its own interval (AddHealthLog).
func (s *Sweeper) AddIdleSweep(interval, idleTimeout time.Duration) error {
	if interval <= 0 {
		return nil
	}
	s.idleTimeout = idleTimeout
	_, err := s.cron.AddFunc(everySpec(interval), s.sweepIdle)
	return err
}

// AddHealthLog registers a job that runs every interval and logs open
// connection count, goroutine count, and RSS via gopsutil/v3/process.
func (s *Sweeper) AddHealthLog(interval time.Duration) error {
	if interval <= 0 {
		return nil
	}
	_, err := s.cron.AddFunc(everySpec(interval), s.logHealth)
	return err
}

// Start begins running registered jobs on their own goroutine (cron.Cron's
// own scheduler loop).
func (s *Sweeper) Start() { s.cron.Start() }

// Stop cancels the scheduler and waits for any in-flight job to finish.
func (s *Sweeper) Stop(timeout time.Duration) {
	ctx := s.cron.Stop()
	select {
	case <-ctx.Done():
	case <-time.After(timeout):
		s.log.Warn("housekeep: stop timed out waiting for running job")
	}
}

func (s *Sweeper) sweepIdle() {
	closed := 0
	for _, c := range s.server.IdleConnections() {
		if c.IdleSince() > s.idleTimeout {
			_ = c.Close()
			closed++
		}
	}
	if closed > 0 {
		s.log.WithField("closed", closed).Debug("housekeep: idle sweep closed connections")
	}
}

func (s *Sweeper) logHealth() {
	entry := s.log.WithField("goroutines", runtime.NumGoroutine())
	entry = entry.WithField("connections", len(s.server.IdleConnections()))
	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if mem, err := proc.MemoryInfo(); err == nil {
			entry = entry.WithField("rss_bytes", mem.RSS)
		}
	}
	entry.Info("housekeep: process health")
}

// everySpec builds a robfig/cron "@every" spec from a duration, the
// scheduler's own shorthand for fixed-interval jobs (as opposed to a
// calendar-based cron expression).
func everySpec(d time.Duration) string {
	return "@every " + d.String()
}
