package domain

import "time"

// ReminderTier is one fixed nudge step for unverified users: a stable name
// and a delay counted from registration. The message body lives in the store
// and is editable by admins.
type ReminderTier struct {
	Name  string
	Delay time.Duration
}

// Tiers returns the deployment-fixed reminder ladder.
func Tiers() []ReminderTier {
	return []ReminderTier{
		{Name: "reminder_3min", Delay: 3 * time.Minute},
		{Name: "reminder_10min", Delay: 10 * time.Minute},
		{Name: "reminder_30min", Delay: 30 * time.Minute},
		{Name: "reminder_9hours", Delay: 9 * time.Hour},
	}
}
