// Package scheduler triggers the end-of-day portfolio sync for every user
// with a connected broker.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"taxsync-pro/internal/markethours"
	"taxsync-pro/internal/syncer"

	"github.com/robfig/cron/v3"
)

// Syncer runs one user's sync; *syncer.Service satisfies it.
type Syncer interface {
	Sync(ctx context.Context, req syncer.Request) (*syncer.Result, error)
}

// UserLister lists users to sync; the sqlite store satisfies it.
type UserLister interface {
	ConnectedUsers(ctx context.Context) ([]string, error)
}

// Scheduler runs RunOnce on a cron spec evaluated in IST. Runs that fall on
// NSE holidays or weekends are skipped.
type Scheduler struct {
	spec     string
	schedule cron.Schedule
	cron     *cron.Cron
	users    UserLister
	syncer   Syncer
	now      func() time.Time

	// OnRun is called after every run with its counts (for health).
	OnRun func(synced, failed int)
}

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// New parses spec (standard five-field cron or a descriptor like @daily).
func New(spec string, users UserLister, s Syncer) (*Scheduler, error) {
	schedule, err := parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", spec, err)
	}
	return &Scheduler{
		spec:     spec,
		schedule: schedule,
		cron:     cron.New(cron.WithLocation(markethours.IST), cron.WithParser(parser)),
		users:    users,
		syncer:   s,
		now:      time.Now,
	}, nil
}

// Next returns the first scheduled time after t, in IST.
func (s *Scheduler) Next(t time.Time) time.Time {
	return s.schedule.Next(t.In(markethours.IST))
}

// Start registers the job and starts the cron loop. Jobs stop receiving new
// runs when ctx is done or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.spec, func() {
		if ctx.Err() != nil {
			return
		}
		s.RunOnce(ctx)
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	log.Printf("[scheduler] started, spec=%q next=%s", s.spec, s.Next(s.now()).Format(time.RFC3339))
	return nil
}

// Stop halts the cron loop and waits for a running job to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	log.Printf("[scheduler] stopped")
}

// RunOnce syncs every connected user in turn. Users are synced one at a time
// so broker rate limits are shared fairly.
func (s *Scheduler) RunOnce(ctx context.Context) (synced, failed int) {
	now := s.now()
	if !markethours.IsTradingDay(now) {
		day := now.In(markethours.IST).Format("2006-01-02")
		if name, ok := markethours.Holiday(now); ok {
			log.Printf("[scheduler] %s is an NSE holiday (%s), skipping", day, name)
		} else {
			log.Printf("[scheduler] %s is a weekend, skipping", day)
		}
		return 0, 0
	}

	users, err := s.users.ConnectedUsers(ctx)
	if err != nil {
		log.Printf("[scheduler] list users: %v", err)
		return 0, 0
	}

	for _, u := range users {
		if ctx.Err() != nil {
			break
		}
		res, err := s.syncer.Sync(ctx, syncer.Request{UserID: u})
		switch {
		case errors.Is(err, syncer.ErrNoIntegrations):
			// Disconnected since the listing.
		case err != nil:
			failed++
			log.Printf("[scheduler] sync %s: %v", u, err)
		default:
			synced++
			if !res.Cached {
				log.Printf("[scheduler] synced %s: %d holdings, %d opportunities", u, len(res.Holdings), len(res.Opportunities))
			}
		}
	}

	log.Printf("[scheduler] run complete: %d synced, %d failed of %d users", synced, failed, len(users))
	if s.OnRun != nil {
		s.OnRun(synced, failed)
	}
	return synced, failed
}
