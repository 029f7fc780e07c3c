package reminder

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"gatekeeper-bot/internal/domain"
	"gatekeeper-bot/internal/scheduler"
	"gatekeeper-bot/internal/store"
)

// Sender delivers a reminder message with the verification control attached.
// telegram.Client implements this.
type Sender interface {
	SendReminder(chatID int64, text string) error
}

// Store is the slice of the repository the reminder service needs.
type Store interface {
	GetUser(ctx context.Context, userID int64) (*domain.User, error)
	ReminderSent(ctx context.Context, userID int64, tier string) (bool, error)
	MarkReminderSent(ctx context.Context, userID int64, tier string) error
	ReminderText(ctx context.Context, tier string) (string, error)
}

// Job binds the immutable context of one scheduled reminder firing.
type Job struct {
	UserID int64
	ChatID int64
	Tier   string
}

// Service plans tiered reminder jobs for unverified users and dispatches them
// when they come due.
type Service struct {
	repo   Store
	sched  *scheduler.Scheduler
	sender Sender
	tiers  []domain.ReminderTier
	log    *zap.Logger
}

// New creates a reminder service over the given tier ladder.
func New(repo Store, sched *scheduler.Scheduler, sender Sender, tiers []domain.ReminderTier, log *zap.Logger) *Service {
	return &Service{
		repo:   repo,
		sched:  sched,
		sender: sender,
		tiers:  tiers,
		log:    log,
	}
}

func jobKey(userID int64, tier string) string {
	return fmt.Sprintf("reminder:%d:%s", userID, tier)
}

func userPrefix(userID int64) string {
	return fmt.Sprintf("reminder:%d:", userID)
}

// ScheduleAll plans one delayed reminder per tier for the user. Re-invoking
// for the same user replaces the pending jobs rather than duplicating them.
func (s *Service) ScheduleAll(userID, chatID int64) {
	for _, tier := range s.tiers {
		job := Job{UserID: userID, ChatID: chatID, Tier: tier.Name}
		s.sched.Schedule(jobKey(userID, tier.Name), tier.Delay, func() {
			s.Dispatch(context.Background(), job)
		})
		s.log.Info("reminder scheduled",
			zap.Int64("userID", userID),
			zap.String("tier", tier.Name),
			zap.Duration("delay", tier.Delay),
		)
	}
}

// CancelAll cancels every pending reminder job for the user. No-op when none
// exist.
func (s *Service) CancelAll(userID int64) {
	if n := s.sched.CancelMatching(userPrefix(userID)); n > 0 {
		s.log.Info("reminders cancelled",
			zap.Int64("userID", userID), zap.Int("count", n))
	}
}

// Dispatch fires one tier for one user: re-check eligibility, send, mark
// sent. Every failed precondition turns the firing into a no-op.
func (s *Service) Dispatch(ctx context.Context, job Job) {
	u, err := s.repo.GetUser(ctx, job.UserID)
	if errors.Is(err, store.ErrNotFound) {
		s.log.Warn("reminder fired for unknown user", zap.Int64("userID", job.UserID))
		return
	}
	if err != nil {
		s.log.Error("load user failed",
			zap.Error(err), zap.Int64("userID", job.UserID))
		return
	}

	if u.Subscribed {
		return
	}

	sent, err := s.repo.ReminderSent(ctx, job.UserID, job.Tier)
	if err != nil {
		s.log.Error("sent-flag lookup failed",
			zap.Error(err), zap.Int64("userID", job.UserID), zap.String("tier", job.Tier))
		return
	}
	if sent {
		return
	}

	text, err := s.repo.ReminderText(ctx, job.Tier)
	if err != nil {
		// Missing template is a configuration fault, not a user-facing error.
		s.log.Error("reminder text unavailable",
			zap.Error(err), zap.String("tier", job.Tier))
		return
	}

	if err := s.sender.SendReminder(job.ChatID, text); err != nil {
		// The flag stays unset: an external retry may legitimately resend.
		s.log.Error("reminder send failed",
			zap.Error(err), zap.Int64("userID", job.UserID), zap.String("tier", job.Tier))
		return
	}

	if err := s.repo.MarkReminderSent(ctx, job.UserID, job.Tier); err != nil {
		s.log.Error("mark reminder sent failed",
			zap.Error(err), zap.Int64("userID", job.UserID), zap.String("tier", job.Tier))
		return
	}

	s.log.Info("reminder sent",
		zap.Int64("userID", job.UserID), zap.String("tier", job.Tier))
}
