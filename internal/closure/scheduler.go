package closure

import (
	"context"
	"log"
	"time"

	"gorm.io/gorm"

	"site-attendance-backend/config"
	"site-attendance-backend/internal/model"
)

// Scheduler periodically triggers the daily closure once a project's local
// time passes its auto-checkout deadline. The aggregator's closure-date guard
// makes redundant triggers harmless.
type Scheduler struct {
	cfg        *config.ClosureConfig
	aggregator *Aggregator
	db         *gorm.DB
	now        func() time.Time
}

// NewScheduler creates the closure scheduler.
func NewScheduler(cfg *config.ClosureConfig, aggregator *Aggregator, db *gorm.DB) *Scheduler {
	return &Scheduler{cfg: cfg, aggregator: aggregator, db: db, now: time.Now}
}

// Run drives the scheduler loop until the context is cancelled. It fires one
// immediate pass and then ticks at the configured interval.
func (s *Scheduler) Run(ctx context.Context) {
	if !s.cfg.Enabled {
		log.Println("closure scheduler is disabled by configuration")
		return
	}

	log.Printf("closure scheduler started, checking every %v", s.cfg.Interval)
	s.tick(ctx)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.tick(ctx)
		case <-ctx.Done():
			log.Println("closure scheduler shutting down")
			return
		}
	}
}

// tick runs closure for every active project whose local wall clock has
// passed the auto-checkout deadline today.
func (s *Scheduler) tick(ctx context.Context) {
	var projects []model.Project
	if err := s.db.WithContext(ctx).Where("is_active = ?", true).Find(&projects).Error; err != nil {
		log.Printf("closure scheduler: failed to list projects: %v", err)
		return
	}

	now := s.now().UTC()
	for _, project := range projects {
		loc, err := time.LoadLocation(project.Timezone)
		if err != nil {
			loc = time.UTC
		}
		local := now.In(loc)
		date := local.Format("2006-01-02")

		if local.Before(deadlineFor(&project, date)) {
			continue
		}

		summary, err := s.aggregator.RunForDate(ctx, date)
		if err != nil {
			log.Printf("closure scheduler: run for %s failed: %v", date, err)
			continue
		}
		if !summary.AlreadyClosed {
			log.Printf("closure scheduler: closed %s (forced=%d exceptions=%d)",
				date, summary.ForcedCheckouts, summary.Exceptions)
		}
	}
}
