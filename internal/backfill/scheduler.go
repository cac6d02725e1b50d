package backfill

import (
	"context"
	"errors"
	"log"
	"sort"
	"time"

	"github.com/xelth-com/salonsync/internal/config"
	"github.com/xelth-com/salonsync/internal/store"
)

// Scheduler runs resumable backfills in the background on an interval
type Scheduler struct {
	driver *Driver
	states StateStore
	cfg    config.SyncConfig

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewScheduler creates a scheduler over driver
func NewScheduler(driver *Driver, states StateStore, cfg config.SyncConfig) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		driver: driver,
		states: states,
		cfg:    cfg,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// Start begins the background loop
func (s *Scheduler) Start() {
	if !s.cfg.Enabled {
		log.Println("Backfill scheduler disabled: SYNC_ENABLED not set")
		close(s.done)
		return
	}

	go func() {
		defer close(s.done)
		log.Println("📡 Backfill scheduler started")

		if s.cfg.SyncOnStartup {
			s.RunOnce(s.ctx)
		}

		interval := time.Duration(s.cfg.IntervalMin) * time.Minute
		if s.cfg.IntervalMin <= 0 {
			interval = 30 * time.Minute
		}

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.RunOnce(s.ctx)
			case <-s.ctx.Done():
				log.Println("🛑 Backfill scheduler stopped")
				return
			}
		}
	}()
}

// Stop cancels any running page fetch and waits for the loop to exit
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.done
}

// RunOnce advances every enabled resource by up to its pages-per-run,
// resuming from the persisted cursor. A fresh sweep only asks for records
// updated since the last completed one.
func (s *Scheduler) RunOnce(ctx context.Context) {
	names := make([]string, 0, len(s.cfg.Resources))
	for name := range s.cfg.Resources {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		rc := s.cfg.Resources[name]
		if !rc.Enabled {
			continue
		}
		kind, err := ParseKind(name)
		if err != nil {
			log.Printf("⚠️ Backfill scheduler: %v", err)
			continue
		}
		if ctx.Err() != nil {
			return
		}

		opts := RunOptions{
			Cursor:  SyncCursor{Limit: s.cfg.PageSize},
			Pages:   rc.PagesPerRun,
			RPM:     s.cfg.RPM,
			Persist: true,
		}

		st, err := s.states.GetSyncState(ctx, name)
		switch {
		case err == nil && st.PageInfo != "":
			opts.Cursor.PageInfo = st.PageInfo
		case err == nil:
			opts.Filters = &Filters{Status: rc.Status, UpdatedAtMin: st.LastCompletedAt}
		case errors.Is(err, store.ErrNotFound):
			opts.Filters = &Filters{Status: rc.Status}
		default:
			log.Printf("❌ Backfill scheduler: reading %s state failed: %v", name, err)
			continue
		}

		log.Printf("🔄 Backfill scheduler: advancing %s", name)
		if _, err := s.driver.Run(ctx, kind, opts); err != nil {
			log.Printf("❌ Backfill scheduler: %s run failed: %v", name, err)
		}
	}
}
