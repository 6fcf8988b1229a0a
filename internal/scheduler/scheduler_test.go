package scheduler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gasbugs/AC/internal/config"
	"github.com/gasbugs/AC/internal/events"
)

type fakeDemos struct {
	keep  int
	calls int
}

func (f *fakeDemos) PruneDir(keep int) (int, error) {
	f.keep = keep
	f.calls++
	return 1, nil
}

type fakePruner struct {
	cutoff time.Time
	err    error
}

func (f *fakePruner) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	f.cutoff = cutoff
	return 3, f.err
}

func writeAged(t *testing.T, path string, age time.Duration, now time.Time) {
	t.Helper()
	if err := os.WriteFile(path, []byte("data"), 0644); err != nil {
		t.Fatal(err)
	}
	mod := now.Add(-age)
	if err := os.Chtimes(path, mod, mod); err != nil {
		t.Fatal(err)
	}
}

func TestCleanDemos(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	cfg := config.DefaultConfig()
	cfg.Demo.Directory = dir
	cfg.Demo.RetentionDays = 7
	cfg.Demo.MaxFiles = 10

	old := filepath.Join(dir, "20240101_ac_complex.dmo")
	fresh := filepath.Join(dir, "20240301_ac_desert.dmo")
	tmp := filepath.Join(dir, "upload.tmp")
	other := filepath.Join(dir, "notes.txt")
	writeAged(t, old, 8*24*time.Hour, now)
	writeAged(t, fresh, time.Hour, now)
	writeAged(t, tmp, 48*time.Hour, now)
	writeAged(t, other, 30*24*time.Hour, now)

	demos := &fakeDemos{}
	s := NewScheduler(cfg, nil, Deps{Demos: demos})
	s.now = func() time.Time { return now }
	s.cleanDemos(context.Background())

	for path, want := range map[string]bool{old: false, fresh: true, tmp: false, other: true} {
		_, err := os.Stat(path)
		if got := err == nil; got != want {
			t.Errorf("%s exists = %v, want %v", filepath.Base(path), got, want)
		}
	}
	if demos.calls != 1 || demos.keep != 10 {
		t.Errorf("PruneDir called %d times with keep %d", demos.calls, demos.keep)
	}

	cfg.Demo.MaxFiles = 0
	s.cleanDemos(context.Background())
	if demos.calls != 1 {
		t.Error("PruneDir called without a file limit")
	}
}

func TestPruneArchive(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Archive.RetentionDays = 30
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	p := &fakePruner{}
	s := NewScheduler(cfg, nil, Deps{Archive: p})
	s.now = func() time.Time { return now }
	s.pruneArchive(context.Background())
	if want := now.AddDate(0, 0, -30); !p.cutoff.Equal(want) {
		t.Errorf("cutoff %v, want %v", p.cutoff, want)
	}

	cfg.Archive.RetentionDays = 0
	p.cutoff = time.Time{}
	s.pruneArchive(context.Background())
	if !p.cutoff.IsZero() {
		t.Error("pruned with retention disabled")
	}

	cfg.Archive.RetentionDays = 1
	p.err = errors.New("locked")
	s.pruneArchive(context.Background())
}

func TestCheckDisk(t *testing.T) {
	bus := events.NewEventBus()
	defer bus.Stop()
	got := make(chan events.DiskWarningPayload, 1)
	bus.Subscribe(events.EventDiskWarning, "test", func(ctx context.Context, e events.Event) error {
		got <- e.Payload.(events.DiskWarningPayload)
		return nil
	})

	cfg := config.DefaultConfig()
	cfg.Demo.Directory = t.TempDir()
	s := NewScheduler(cfg, bus, Deps{})

	s.diskWarn = func(string) (float64, error) { return 50, nil }
	s.checkDisk(context.Background())
	select {
	case p := <-got:
		t.Fatalf("warning at half usage: %+v", p)
	case <-time.After(50 * time.Millisecond):
	}

	s.diskWarn = func(string) (float64, error) { return 95.5, nil }
	s.checkDisk(context.Background())
	select {
	case p := <-got:
		if p.UsedPercent != 95.5 || p.Path != cfg.Demo.Directory || p.Level != "error" {
			t.Errorf("payload %+v", p)
		}
	case <-time.After(time.Second):
		t.Fatal("no disk warning emitted")
	}
}

func TestEveryDisabled(t *testing.T) {
	s := NewScheduler(config.DefaultConfig(), nil, Deps{})
	done := make(chan struct{})
	go func() {
		s.every(context.Background(), "noop", 0, func(context.Context) { t.Error("disabled job ran") })
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("zero interval did not return")
	}
}

func TestEveryRuns(t *testing.T) {
	s := NewScheduler(config.DefaultConfig(), nil, Deps{})
	ctx, cancel := context.WithCancel(context.Background())
	ran := make(chan struct{}, 1)
	go s.every(ctx, "tick", 5*time.Millisecond, func(context.Context) {
		select {
		case ran <- struct{}{}:
		default:
		}
	})
	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("job never ran")
	}
	cancel()
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{512, "512 B"},
		{2048, "2.00 KB"},
		{5 * 1024 * 1024, "5.00 MB"},
		{3 * 1024 * 1024 * 1024, "3.00 GB"},
	}
	for _, tt := range tests {
		if got := formatBytes(tt.in); got != tt.want {
			t.Errorf("formatBytes(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
