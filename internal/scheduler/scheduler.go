// Package scheduler runs the poll loop: fetch, de-duplicate, filter per
// subscriber and deliver.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"khamsat_bot/internal/filter"
	"khamsat_bot/internal/model"
	"khamsat_bot/internal/source"
)

// Defaults for the loop timing.
const (
	DefaultInterval  = 30 * time.Second
	DefaultCooldown  = 15 * time.Second
	DefaultSendDelay = 50 * time.Millisecond
)

// Source fetches the current page of requests.
type Source interface {
	Fetch(ctx context.Context) (source.Result, error)
}

// Notifier renders and delivers alerts.
type Notifier interface {
	FormatAlert(items []model.Item) []string
	SendAlert(chatID int64, text string) error
}

// Audience lists the chats that receive alerts.
type Audience interface {
	EligibleSubscribers(ctx context.Context) ([]int64, error)
}

// Preferences returns a chat's category selection.
type Preferences interface {
	Get(ctx context.Context, chatID int64) (model.Selection, error)
}

// SeenSet records processed request IDs.
type SeenSet interface {
	Contains(id string) bool
	Add(ctx context.Context, id string) error
}

// Switch reports whether monitoring is enabled.
type Switch interface {
	IsMonitoringActive(ctx context.Context) (bool, error)
}

// Deps groups the collaborators of a Scheduler.
type Deps struct {
	Source      Source
	Notifier    Notifier
	Audience    Audience
	Preferences Preferences
	Seen        SeenSet
	Switch      Switch
}

// Scheduler periodically polls the source and sends alerts for new requests.
type Scheduler struct {
	deps      Deps
	log       *slog.Logger
	interval  time.Duration
	cooldown  time.Duration
	sendDelay time.Duration
}

// New creates a Scheduler with the default timing.
func New(deps Deps, log *slog.Logger) *Scheduler {
	return &Scheduler{
		deps:      deps,
		log:       log,
		interval:  DefaultInterval,
		cooldown:  DefaultCooldown,
		sendDelay: DefaultSendDelay,
	}
}

// SetIntervals overrides the poll interval and the wait after a failed cycle.
// Non-positive values keep the current setting.
func (s *Scheduler) SetIntervals(interval, cooldown time.Duration) {
	if interval > 0 {
		s.interval = interval
	}
	if cooldown > 0 {
		s.cooldown = cooldown
	}
}

// SetSendDelay overrides the pause between consecutive messages.
func (s *Scheduler) SetSendDelay(d time.Duration) {
	s.sendDelay = d
}

// Run starts the loop, blocking until ctx is cancelled. The first cycle runs
// immediately.
func (s *Scheduler) Run(ctx context.Context) {
	s.log.Info("scheduler started", "interval", s.interval, "cooldown", s.cooldown)

	for {
		wait := s.interval
		if err := s.RunOnce(ctx); err != nil {
			s.log.Error("poll cycle failed", "error", err, "retry_in", s.cooldown)
			wait = s.cooldown
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.log.Info("scheduler stopped")
			return
		case <-timer.C:
		}
	}
}

// RunOnce performs a single poll cycle. A panic inside the cycle is recovered
// and returned as an error.
func (s *Scheduler) RunOnce(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in poll cycle: %v", r)
		}
	}()
	return s.cycle(ctx)
}

func (s *Scheduler) cycle(ctx context.Context) error {
	if ctx.Err() != nil {
		return nil
	}

	active, err := s.deps.Switch.IsMonitoringActive(ctx)
	if err != nil {
		s.log.Warn("read monitoring flag, skipping cycle", "error", err)
		return nil
	}
	if !active {
		s.log.Debug("monitoring disabled, skipping cycle")
		return nil
	}

	res, err := s.deps.Source.Fetch(ctx)
	if err != nil {
		s.log.Error("fetch requests", "error", err)
		return nil
	}

	fresh := s.newItems(res.Recent)
	s.log.Debug("poll cycle", "fetched", len(res.All), "recent", len(res.Recent), "new", len(fresh))
	if len(fresh) == 0 {
		return nil
	}

	subscribers, err := s.deps.Audience.EligibleSubscribers(ctx)
	if err != nil {
		return fmt.Errorf("list eligible subscribers: %w", err)
	}

	defer s.markSeen(ctx, fresh)
	s.deliver(ctx, subscribers, fresh)
	return nil
}

// newItems returns the items not yet seen, without duplicates, in input order.
func (s *Scheduler) newItems(items []model.Item) []model.Item {
	var fresh []model.Item
	batch := make(map[string]struct{}, len(items))
	for _, it := range items {
		if _, dup := batch[it.ID]; dup {
			continue
		}
		batch[it.ID] = struct{}{}
		if s.deps.Seen.Contains(it.ID) {
			continue
		}
		fresh = append(fresh, it)
	}
	return fresh
}

func (s *Scheduler) deliver(ctx context.Context, subscribers []int64, items []model.Item) {
	sent := 0
	defer func() {
		if sent > 0 {
			s.log.Info("sent alerts", "items", len(items), "messages", sent)
		}
	}()

	for _, chatID := range subscribers {
		if ctx.Err() != nil {
			return
		}

		sel, err := s.deps.Preferences.Get(ctx, chatID)
		if err != nil {
			s.log.Warn("read preference, using all categories", "chat_id", chatID, "error", err)
			sel = model.AllCategories()
		}

		matched := filter.Apply(items, sel)
		if len(matched) == 0 {
			continue
		}

		for _, text := range s.deps.Notifier.FormatAlert(matched) {
			if err := s.deps.Notifier.SendAlert(chatID, text); err != nil {
				s.log.Error("send alert", "chat_id", chatID, "error", err)
				break
			}
			sent++
			if s.sendDelay > 0 {
				select {
				case <-ctx.Done():
					return
				case <-time.After(s.sendDelay):
				}
			}
		}
	}
}

// markSeen records every new item regardless of delivery outcome. It runs on
// a context detached from cancellation so a shutdown mid-cycle still persists.
func (s *Scheduler) markSeen(ctx context.Context, items []model.Item) {
	ctx = context.WithoutCancel(ctx)
	for _, it := range items {
		if err := s.deps.Seen.Add(ctx, it.ID); err != nil {
			s.log.Error("mark seen", "item_id", it.ID, "error", err)
		}
	}
}
