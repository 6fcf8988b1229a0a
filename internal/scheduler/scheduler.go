// Package scheduler runs the periodic housekeeping of a game server:
// demo retention, archive pruning, disk space and lag checks.
package scheduler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/gasbugs/AC/internal/config"
	"github.com/gasbugs/AC/internal/events"
	"github.com/gasbugs/AC/internal/util"
)

// DiskWarnPercent is the disk usage above which a warning is logged.
const DiskWarnPercent = 90.0

// DemoDir prunes stored demo files by count.
type DemoDir interface {
	PruneDir(keep int) (int, error)
}

// Pruner removes archived games older than a cutoff.
type Pruner interface {
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
}

// LagChecker raises lag alerts from recent tick timings.
type LagChecker interface {
	Check(ctx context.Context)
}

// Deps are the components the jobs act on. Nil members disable their job.
type Deps struct {
	Demos   DemoDir
	Archive Pruner
	Lag     LagChecker
}

// Scheduler manages periodic background tasks.
type Scheduler struct {
	cfg      *config.Config
	eventBus *events.EventBus
	deps     Deps
	logger   zerolog.Logger

	now      func() time.Time
	diskWarn func(path string) (float64, error)
}

// NewScheduler creates a new task scheduler.
func NewScheduler(cfg *config.Config, eventBus *events.EventBus, deps Deps) *Scheduler {
	return &Scheduler{
		cfg:      cfg,
		eventBus: eventBus,
		deps:     deps,
		logger:   util.ComponentLogger("scheduler"),
		now:      time.Now,
		diskWarn: diskPercent,
	}
}

// Start runs every enabled job until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	timers := s.cfg.GetTimers()

	jobs := []struct {
		name     string
		interval int
		fn       func(context.Context)
		enabled  bool
	}{
		{"demo_cleanup", timers.DemoCleanupInterval, s.cleanDemos, s.cfg.GetDemo().Directory != ""},
		{"archive_prune", timers.ArchivePrune, s.pruneArchive, s.deps.Archive != nil},
		{"lag_check", timers.LagCheckInterval, s.checkLag, s.deps.Lag != nil},
		{"disk_check", timers.DiskCheckInterval, s.checkDisk, true},
	}

	started := 0
	for _, job := range jobs {
		if !job.enabled || job.interval <= 0 {
			continue
		}
		started++
		go s.every(ctx, job.name, seconds(job.interval), job.fn)
	}
	s.logger.Info().Int("jobs", started).Msg("scheduler started")

	<-ctx.Done()
	s.logger.Info().Msg("scheduler stopped")
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// every runs job at each interval. A zero interval disables the job.
func (s *Scheduler) every(ctx context.Context, name string, interval time.Duration, job func(context.Context)) {
	if interval <= 0 {
		s.logger.Debug().Str("job", name).Msg("job disabled")
		return
	}
	s.logger.Debug().Str("job", name).Dur("interval", interval).Msg("job scheduled")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			job(ctx)
		}
	}
}

// cleanDemos removes demo files past their retention age, then trims the
// directory down to the configured file count.
func (s *Scheduler) cleanDemos(ctx context.Context) {
	demoCfg := s.cfg.GetDemo()
	if demoCfg.Directory == "" {
		return
	}

	s.logger.Info().
		Str("directory", demoCfg.Directory).
		Int("retention_days", demoCfg.RetentionDays).
		Msg("running demo cleanup")

	var (
		deletedCount int
		deletedSize  int64
	)
	now := s.now()
	maxAge := time.Duration(demoCfg.RetentionDays) * 24 * time.Hour

	err := filepath.Walk(demoCfg.Directory, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() || ctx.Err() != nil {
			return nil
		}

		var shouldDelete bool
		age := now.Sub(info.ModTime())
		switch strings.ToLower(filepath.Ext(info.Name())) {
		case ".dmo":
			shouldDelete = maxAge > 0 && age > maxAge
		case ".tmp":
			shouldDelete = age > 24*time.Hour
		}

		if shouldDelete {
			if err := os.Remove(path); err == nil {
				deletedCount++
				deletedSize += info.Size()
				s.logger.Debug().Str("file", info.Name()).Msg("deleted old file")
			}
		}
		return nil
	})
	if err != nil {
		s.logger.Warn().Err(err).Msg("demo cleanup encountered errors")
	}

	if s.deps.Demos != nil && demoCfg.MaxFiles > 0 {
		n, err := s.deps.Demos.PruneDir(demoCfg.MaxFiles)
		if err != nil {
			s.logger.Warn().Err(err).Msg("failed to prune demo directory")
		}
		deletedCount += n
	}

	s.logger.Info().
		Int("deleted_files", deletedCount).
		Str("freed_space", formatBytes(deletedSize)).
		Msg("demo cleanup completed")
}

func (s *Scheduler) checkLag(ctx context.Context) {
	s.deps.Lag.Check(ctx)
}

func (s *Scheduler) pruneArchive(ctx context.Context) {
	days := s.cfg.GetArchive().RetentionDays
	if days <= 0 {
		return
	}
	cutoff := s.now().Add(-time.Duration(days) * 24 * time.Hour)
	n, err := s.deps.Archive.Prune(ctx, cutoff)
	if err != nil {
		s.logger.Error().Err(err).Msg("archive prune failed")
		return
	}
	s.logger.Info().Int64("games", n).Time("cutoff", cutoff).Msg("archive pruned")
}

func (s *Scheduler) checkDisk(ctx context.Context) {
	path := s.cfg.GetDemo().Directory
	if path == "" {
		path = "."
	}
	pct, err := s.diskWarn(path)
	if err != nil {
		s.logger.Debug().Err(err).Str("path", path).Msg("disk usage unavailable")
		return
	}
	var level string
	switch {
	case pct >= 99:
		level = "critical"
	case pct >= 95:
		level = "error"
	case pct >= DiskWarnPercent:
		level = "warning"
	default:
		return
	}
	s.logger.Warn().Str("level", level).Float64("used_percent", pct).Str("path", path).Msg("disk almost full")
	if s.eventBus != nil {
		s.eventBus.Publish(events.EventDiskWarning, "scheduler", events.DiskWarningPayload{
			Level:       level,
			Path:        path,
			UsedPercent: pct,
		})
	}
}

func diskPercent(path string) (float64, error) {
	if _, err := os.Stat(path); err != nil {
		return 0, err
	}
	usage, err := util.GetDiskUsage(path)
	if err != nil {
		return 0, err
	}
	return usage.UsedPercent, nil
}

// formatBytes formats bytes into human-readable format.
func formatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.2f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.2f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.2f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
