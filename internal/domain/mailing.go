package domain

import "time"

// Mailing lifecycle statuses. Transitions are monotonic
// (draft → test_sent → sending → sent) except the rollback to draft on a
// broadcast-level failure.
const (
	MailingDraft    = "draft"
	MailingTestSent = "test_sent"
	MailingSending  = "sending"
	MailingSent     = "sent"
)

// Mailing is a broadcast job record, retained for audit after completion.
type Mailing struct {
	ID          int64
	Text        string
	ImageFileID string // Telegram file id; empty for text-only mailings
	Status      string
	CreatedBy   int64
	CreatedAt   time.Time // UTC
	SentCount   int
	TotalCount  int
}
