package catalog

import (
	"time"

	"go.uber.org/zap"
)

const (
	defaultStatsWindow = 30
	defaultStaleAfter  = 24 * time.Hour
)

type settings struct {
	l           *zap.Logger
	now         func() time.Time
	statsWindow int
	staleAfter  time.Duration
}

func defaultSettings() settings {
	return settings{
		l:           zap.NewNop(),
		now:         time.Now,
		statsWindow: defaultStatsWindow,
		staleAfter:  defaultStaleAfter,
	}
}

// Option tunes how the upstream catalog is loaded and how artifacts are generated
type Option func(*settings)

// Logger injects a logging facility
func Logger(l *zap.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.l = l
		}
	}
}

// Clock overrides the current time, used to check the freshness of the cache
func Clock(now func() time.Time) Option {
	return func(s *settings) {
		if now != nil {
			s.now = now
		}
	}
}

// StatsWindow sets the number of daily statistics files summed up. It defaults to 30 days.
func StatsWindow(days int) Option {
	return func(s *settings) {
		if days > 0 {
			s.statsWindow = days
		}
	}
}

// StaleAfter sets the age after which cached statistics are reported as stale. It defaults to a day.
func StaleAfter(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.staleAfter = d
		}
	}
}
