package domain

import "time"

// User is a channel audience member tracked by the bot.
// Subscribed flips to true once the user passes the human-verification gate;
// after that no reminder is ever sent to them again.
type User struct {
	ID           int64 // Telegram user id
	ChatID       int64 // private chat used for delivery
	Username     string
	FirstName    string
	LastName     string
	Subscribed   bool
	SubscribedAt *time.Time // UTC, nullable
	CreatedAt    time.Time  // UTC
}

// Recipient is the minimal addressing pair snapshotted for a broadcast.
type Recipient struct {
	UserID int64
	ChatID int64
}
