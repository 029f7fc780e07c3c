package mailing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"gatekeeper-bot/internal/domain"
	"gatekeeper-bot/internal/store"
)

// Sender is the messaging transport used by the engine.
// telegram.Client implements this.
type Sender interface {
	SendText(chatID int64, text string) error
	SendPhoto(chatID int64, fileID, caption string) error
}

// Store is the slice of the repository the engine needs.
type Store interface {
	CreateMailing(ctx context.Context, m *domain.Mailing) (int64, error)
	GetMailing(ctx context.Context, id int64) (*domain.Mailing, error)
	SetMailingStatus(ctx context.Context, id int64, status string) error
	ClaimMailing(ctx context.Context, id int64, total int) (bool, error)
	SetMailingProgress(ctx context.Context, id int64, sent int) error
	FinishMailing(ctx context.Context, id int64, sent int) error
	DeleteMailing(ctx context.Context, id int64) error
	ListRecipients(ctx context.Context) ([]domain.Recipient, error)
}

// Progress is persisted every this many successful sends, bounding write
// volume without letting the counter grow too stale.
const checkpointEvery = 10

// Engine owns mailing records: creation, test copies and asynchronous
// broadcasts over the whole user registry.
type Engine struct {
	repo      Store
	sender    Sender
	log       *zap.Logger
	sendDelay time.Duration // pause between sends, keeps us under rate limits

	mu       sync.Mutex
	inflight map[int64]struct{}
	wg       sync.WaitGroup
}

// New creates a mailing engine.
func New(repo Store, sender Sender, sendDelay time.Duration, log *zap.Logger) *Engine {
	return &Engine{
		repo:      repo,
		sender:    sender,
		log:       log,
		sendDelay: sendDelay,
		inflight:  make(map[int64]struct{}),
	}
}

// Create stores a new draft mailing and returns its id.
func (e *Engine) Create(ctx context.Context, text, imageFileID string, createdBy int64) (int64, error) {
	id, err := e.repo.CreateMailing(ctx, &domain.Mailing{
		Text:        text,
		ImageFileID: imageFileID,
		Status:      domain.MailingDraft,
		CreatedBy:   createdBy,
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		e.log.Error("create mailing failed", zap.Error(err))
		return 0, fmt.Errorf("create mailing: %w", err)
	}
	e.log.Info("mailing created", zap.Int64("mailingID", id))
	return id, nil
}

// Get returns a mailing record.
func (e *Engine) Get(ctx context.Context, id int64) (*domain.Mailing, error) {
	return e.repo.GetMailing(ctx, id)
}

// Delete removes a mailing record.
func (e *Engine) Delete(ctx context.Context, id int64) error {
	return e.repo.DeleteMailing(ctx, id)
}

// SendTest delivers one copy of the mailing to the admin and marks it
// test_sent. The returned string is a human-readable outcome for the admin
// UI; a transport failure is reported without changing the status.
func (e *Engine) SendTest(ctx context.Context, mailingID, adminID int64) (bool, string) {
	m, err := e.repo.GetMailing(ctx, mailingID)
	if errors.Is(err, store.ErrNotFound) {
		return false, "❌ Mailing not found"
	}
	if err != nil {
		e.log.Error("load mailing failed", zap.Error(err), zap.Int64("mailingID", mailingID))
		return false, "❌ Could not load the mailing"
	}

	if err := e.deliver(m, adminID); err != nil {
		e.log.Error("test send failed", zap.Error(err), zap.Int64("mailingID", mailingID))
		return false, "❌ Test send failed: " + err.Error()
	}

	if err := e.repo.SetMailingStatus(ctx, mailingID, domain.MailingTestSent); err != nil {
		e.log.Error("set test_sent failed", zap.Error(err), zap.Int64("mailingID", mailingID))
		return false, "❌ Could not update mailing status"
	}

	e.log.Info("test mailing sent",
		zap.Int64("mailingID", mailingID), zap.Int64("adminID", adminID))
	return true, "✅ Test message sent to you in private messages!"
}

// Launch starts an asynchronous broadcast of the mailing to every user in
// the registry. It returns immediately with (accepted, sent so far, total
// recipients). A mailing already broadcasting is rejected without touching
// any state.
func (e *Engine) Launch(ctx context.Context, mailingID, adminID int64) (bool, int, int) {
	e.mu.Lock()
	if _, busy := e.inflight[mailingID]; busy {
		e.mu.Unlock()
		e.log.Warn("mailing already broadcasting", zap.Int64("mailingID", mailingID))
		return false, 0, 0
	}
	e.inflight[mailingID] = struct{}{}
	e.mu.Unlock()

	accepted, total := e.start(ctx, mailingID, adminID)
	if !accepted {
		e.release(mailingID)
		return false, 0, 0
	}
	return true, 0, total
}

// start snapshots the registry and the mailing content, claims the sending
// status and hands off to the broadcast goroutine.
func (e *Engine) start(ctx context.Context, mailingID, adminID int64) (bool, int) {
	m, err := e.repo.GetMailing(ctx, mailingID)
	if err != nil {
		e.log.Error("load mailing failed", zap.Error(err), zap.Int64("mailingID", mailingID))
		return false, 0
	}

	recipients, err := e.repo.ListRecipients(ctx)
	if err != nil {
		e.log.Error("recipient snapshot failed", zap.Error(err), zap.Int64("mailingID", mailingID))
		return false, 0
	}

	claimed, err := e.repo.ClaimMailing(ctx, mailingID, len(recipients))
	if err != nil {
		e.log.Error("claim mailing failed", zap.Error(err), zap.Int64("mailingID", mailingID))
		return false, 0
	}
	if !claimed {
		e.log.Warn("mailing not claimable",
			zap.Int64("mailingID", mailingID), zap.String("status", m.Status))
		return false, 0
	}

	e.wg.Add(1)
	go e.broadcast(m, recipients, adminID)

	e.log.Info("broadcast started",
		zap.Int64("mailingID", mailingID), zap.Int("total", len(recipients)))
	return true, len(recipients)
}

// broadcast iterates the recipient snapshot sequentially. Per-recipient
// transport failures are logged and skipped; only storage failures abort the
// run and roll the mailing back to draft.
func (e *Engine) broadcast(m *domain.Mailing, recipients []domain.Recipient, adminID int64) {
	defer e.wg.Done()
	defer e.release(m.ID)

	ctx := context.Background()
	sent := 0

	for _, rcpt := range recipients {
		if err := e.deliver(m, rcpt.ChatID); err != nil {
			e.log.Warn("broadcast send failed",
				zap.Int64("mailingID", m.ID), zap.Int64("userID", rcpt.UserID), zap.Error(err))
			continue
		}
		sent++

		if sent%checkpointEvery == 0 {
			if err := e.repo.SetMailingProgress(ctx, m.ID, sent); err != nil {
				e.abort(ctx, m.ID, adminID, err)
				return
			}
		}

		if e.sendDelay > 0 {
			time.Sleep(e.sendDelay)
		}
	}

	if err := e.repo.FinishMailing(ctx, m.ID, sent); err != nil {
		e.abort(ctx, m.ID, adminID, err)
		return
	}

	e.log.Info("broadcast finished",
		zap.Int64("mailingID", m.ID), zap.Int("sent", sent), zap.Int("total", len(recipients)))

	if adminID != 0 {
		notice := fmt.Sprintf(
			"✅ <b>Broadcast finished!</b>\n\nDelivered to <b>%d</b> of <b>%d</b> users",
			sent, len(recipients))
		if err := e.sender.SendText(adminID, notice); err != nil {
			e.log.Error("completion notice failed", zap.Error(err), zap.Int64("adminID", adminID))
		}
	}
}

// abort handles a broadcast-level storage failure: the mailing rolls back to
// draft and the admin is notified. Per-recipient transport errors never reach
// here.
func (e *Engine) abort(ctx context.Context, mailingID, adminID int64, cause error) {
	e.log.Error("broadcast aborted", zap.Int64("mailingID", mailingID), zap.Error(cause))

	if err := e.repo.SetMailingStatus(ctx, mailingID, domain.MailingDraft); err != nil {
		e.log.Error("rollback to draft failed", zap.Error(err), zap.Int64("mailingID", mailingID))
	}
	if adminID != 0 {
		notice := fmt.Sprintf(
			"❌ <b>Broadcast failed!</b>\n\nMailing #%d was not completed due to an error.",
			mailingID)
		if err := e.sender.SendText(adminID, notice); err != nil {
			e.log.Error("failure notice failed", zap.Error(err), zap.Int64("adminID", adminID))
		}
	}
}

func (e *Engine) deliver(m *domain.Mailing, chatID int64) error {
	if m.ImageFileID != "" {
		return e.sender.SendPhoto(chatID, m.ImageFileID, m.Text)
	}
	return e.sender.SendText(chatID, m.Text)
}

func (e *Engine) release(mailingID int64) {
	e.mu.Lock()
	delete(e.inflight, mailingID)
	e.mu.Unlock()
}

// Wait blocks until all in-flight broadcasts finish. Used on shutdown.
func (e *Engine) Wait() {
	e.wg.Wait()
}
