package scheduler

import (
	"context"
	"fmt"
	"sync"

	"github.com/auto-dns/docker-fleet-updater/internal/settings"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

type fleetRunner interface {
	CheckAll(ctx context.Context, update bool)
}

type scheduleReader interface {
	Schedule() settings.Schedule
}

// Manager runs the periodic fleet checks. The check job only looks for new images; the
// update job also applies them.
type Manager struct {
	mu       sync.Mutex
	cron     *cron.Cron
	runner   fleetRunner
	settings scheduleReader
	entries  []cron.EntryID
	logger   zerolog.Logger
}

func NewManager(logger zerolog.Logger, runner fleetRunner, s scheduleReader) *Manager {
	cl := cronLogger{logger: logger}
	return &Manager{
		cron:     cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		runner:   runner,
		settings: s,
		logger:   logger,
	}
}

// Start schedules the jobs and starts the cron runner.
func (m *Manager) Start() error {
	if err := m.Reschedule(); err != nil {
		return err
	}
	m.cron.Start()
	m.logger.Info().Msg("Cron manager started")
	return nil
}

// Stop stops the cron runner. Jobs already running are left to finish.
func (m *Manager) Stop() {
	m.cron.Stop()
	m.logger.Info().Msg("Cron manager stopped")
}

// Reschedule replaces the jobs with the ones of the current schedule settings.
func (m *Manager) Reschedule() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, id := range m.entries {
		m.cron.Remove(id)
	}
	m.entries = nil

	schedule := m.settings.Schedule()
	jobs := []struct {
		expr   string
		update bool
	}{
		{schedule.Check, false},
		{schedule.Update, true},
	}
	for _, job := range jobs {
		if job.expr == "" {
			continue
		}
		update := job.update
		id, err := m.cron.AddFunc(job.expr, func() { m.run(update) })
		if err != nil {
			return fmt.Errorf("schedule %q: %w", job.expr, err)
		}
		m.entries = append(m.entries, id)
		m.logger.Info().Msgf("Scheduled fleet %s at '%s'", jobName(update), job.expr)
	}
	return nil
}

func (m *Manager) run(update bool) {
	m.logger.Info().Msgf("Running scheduled fleet %s", jobName(update))
	m.runner.CheckAll(context.Background(), update)
}

// Entries returns the scheduled jobs.
func (m *Manager) Entries() []cron.Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []cron.Entry
	for _, id := range m.entries {
		out = append(out, m.cron.Entry(id))
	}
	return out
}

func jobName(update bool) string {
	if update {
		return "update"
	}
	return "check"
}

// cronLogger adapts zerolog to the cron logger interface.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
