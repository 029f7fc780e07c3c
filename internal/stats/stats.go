package stats

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"gatekeeper-bot/internal/domain"
)

// Store is the slice of the repository the collector needs.
type Store interface {
	CountUsers(ctx context.Context) (int, error)
	CountSubscribed(ctx context.Context) (int, error)
	CountCreatedSince(ctx context.Context, t time.Time) (int, error)
	LastUserCreatedAt(ctx context.Context) (*time.Time, error)
	CountReminderSent(ctx context.Context, tier string) (int, error)
	CountSubscribedAfterReminder(ctx context.Context, tier string) (int, error)
	ListUsers(ctx context.Context) ([]domain.User, error)
	SentTiers(ctx context.Context, userID int64) (map[string]bool, error)
}

// Summary is an aggregate snapshot of the audience.
type Summary struct {
	TotalUsers     int
	Subscribed     int
	Unsubscribed   int
	SubscribedRate float64 // percent
	Today          int
	Week           int
	Month          int
	LastJoined     *time.Time
}

// TierConversion reports reminder reach and post-reminder verification for
// one tier.
type TierConversion struct {
	Tier            string
	Sent            int
	SubscribedAfter int
}

// Collector aggregates usage statistics and exports them.
type Collector struct {
	repo      Store
	tiers     []domain.ReminderTier
	exportDir string
	log       *zap.Logger
}

// New creates a statistics collector.
func New(repo Store, tiers []domain.ReminderTier, exportDir string, log *zap.Logger) *Collector {
	return &Collector{
		repo:      repo,
		tiers:     tiers,
		exportDir: exportDir,
		log:       log,
	}
}

// Summary returns audience totals and registration activity.
func (c *Collector) Summary(ctx context.Context) (*Summary, error) {
	total, err := c.repo.CountUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("count users: %w", err)
	}
	subscribed, err := c.repo.CountSubscribed(ctx)
	if err != nil {
		return nil, fmt.Errorf("count subscribed: %w", err)
	}

	now := time.Now().UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	today, err := c.repo.CountCreatedSince(ctx, midnight)
	if err != nil {
		return nil, fmt.Errorf("count today: %w", err)
	}
	week, err := c.repo.CountCreatedSince(ctx, midnight.AddDate(0, 0, -7))
	if err != nil {
		return nil, fmt.Errorf("count week: %w", err)
	}
	month, err := c.repo.CountCreatedSince(ctx, midnight.AddDate(0, 0, -30))
	if err != nil {
		return nil, fmt.Errorf("count month: %w", err)
	}
	last, err := c.repo.LastUserCreatedAt(ctx)
	if err != nil {
		return nil, fmt.Errorf("last joined: %w", err)
	}

	rate := 0.0
	if total > 0 {
		rate = float64(subscribed) / float64(total) * 100
	}

	return &Summary{
		TotalUsers:     total,
		Subscribed:     subscribed,
		Unsubscribed:   total - subscribed,
		SubscribedRate: rate,
		Today:          today,
		Week:           week,
		Month:          month,
		LastJoined:     last,
	}, nil
}

// Conversions returns per-tier reminder reach and conversion counts, in tier
// order.
func (c *Collector) Conversions(ctx context.Context) ([]TierConversion, error) {
	res := make([]TierConversion, 0, len(c.tiers))
	for _, tier := range c.tiers {
		sent, err := c.repo.CountReminderSent(ctx, tier.Name)
		if err != nil {
			return nil, fmt.Errorf("count sent %s: %w", tier.Name, err)
		}
		after, err := c.repo.CountSubscribedAfterReminder(ctx, tier.Name)
		if err != nil {
			return nil, fmt.Errorf("count converted %s: %w", tier.Name, err)
		}
		res = append(res, TierConversion{Tier: tier.Name, Sent: sent, SubscribedAfter: after})
	}
	return res, nil
}
