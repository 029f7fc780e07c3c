package store

import (
	"context"
	"errors"
	"time"

	"gatekeeper-bot/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// Settings keys understood by the bot.
const (
	SettingInviteLink = "channel_invite_link"
	SettingGreeting   = "greeting_message"
)

// Repo defines storage operations for users, reminders, mailings and settings.
type Repo interface {
	// Users
	UpsertUser(ctx context.Context, u *domain.User) error
	GetUser(ctx context.Context, userID int64) (*domain.User, error)
	SetSubscribed(ctx context.Context, userID int64, at time.Time) error
	ListUsers(ctx context.Context) ([]domain.User, error)
	ListRecipients(ctx context.Context) ([]domain.Recipient, error)
	DeleteAllUsers(ctx context.Context) error

	// Per-tier reminder sent flags (monotonic: a mark is never unset)
	ReminderSent(ctx context.Context, userID int64, tier string) (bool, error)
	MarkReminderSent(ctx context.Context, userID int64, tier string) error
	SentTiers(ctx context.Context, userID int64) (map[string]bool, error)

	// Reminder message bodies, editable by admins
	ReminderText(ctx context.Context, tier string) (string, error)
	SetReminderText(ctx context.Context, tier, text string) error

	// Free-form settings (invite link, greeting)
	Setting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error

	// Mailings
	CreateMailing(ctx context.Context, m *domain.Mailing) (int64, error)
	GetMailing(ctx context.Context, id int64) (*domain.Mailing, error)
	SetMailingStatus(ctx context.Context, id int64, status string) error
	ClaimMailing(ctx context.Context, id int64, total int) (bool, error)
	SetMailingProgress(ctx context.Context, id int64, sent int) error
	FinishMailing(ctx context.Context, id int64, sent int) error
	DeleteMailing(ctx context.Context, id int64) error

	// Statistics counters
	CountUsers(ctx context.Context) (int, error)
	CountSubscribed(ctx context.Context) (int, error)
	CountCreatedSince(ctx context.Context, t time.Time) (int, error)
	LastUserCreatedAt(ctx context.Context) (*time.Time, error)
	CountReminderSent(ctx context.Context, tier string) (int, error)
	CountSubscribedAfterReminder(ctx context.Context, tier string) (int, error)

	Close() error
}
