package telegram

import (
	"context"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"gatekeeper-bot/internal/config"
	"gatekeeper-bot/internal/mailing"
	"gatekeeper-bot/internal/reminder"
	"gatekeeper-bot/internal/stats"
	"gatekeeper-bot/internal/store"
)

// Pending state keys used in admin conversational flows.
const (
	pendingMailingText    = "await_mailing_text"
	pendingMailingImage   = "await_mailing_image"
	pendingInviteLink     = "await_invite_link"
	pendingReminderPrefix = "await_reminder_text:" // + tier name
)

// Router wires Telegram updates to handlers and holds minimal in-memory
// conversational state.
type Router struct {
	client    *Client
	cfg       config.Config
	log       *zap.Logger
	repo      store.Repo
	reminders *reminder.Service
	mailings  *mailing.Engine
	stats     *stats.Collector

	mu     sync.RWMutex
	state  map[int64]string // chatID -> pending state
	drafts map[int64]string // admin chatID -> mailing text under construction
}

// NewRouter creates a new Telegram router.
func NewRouter(
	client *Client,
	cfg config.Config,
	repo store.Repo,
	reminders *reminder.Service,
	mailings *mailing.Engine,
	statsCollector *stats.Collector,
	log *zap.Logger,
) *Router {
	return &Router{
		client:    client,
		cfg:       cfg,
		log:       log,
		repo:      repo,
		reminders: reminders,
		mailings:  mailings,
		stats:     statsCollector,
		state:     make(map[int64]string),
		drafts:    make(map[int64]string),
	}
}

func (r *Router) setPending(chatID int64, s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state[chatID] = s
}

func (r *Router) getPending(chatID int64) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state[chatID]
}

func (r *Router) clearPending(chatID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.state, chatID)
}

func (r *Router) setDraft(chatID int64, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drafts[chatID] = text
}

func (r *Router) takeDraft(chatID int64) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	text := r.drafts[chatID]
	delete(r.drafts, chatID)
	return text
}

// HandleUpdate routes a single update to the appropriate handler.
func (r *Router) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	switch {
	case upd.ChatJoinRequest != nil:
		r.handleJoinRequest(ctx, upd.ChatJoinRequest)

	case upd.Message != nil:
		r.handleMessage(ctx, upd.Message)

	case upd.CallbackQuery != nil:
		r.handleCallback(ctx, upd.CallbackQuery)
	}
}

func (r *Router) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	text := strings.TrimSpace(msg.Text)

	switch {
	case strings.HasPrefix(text, "/start"):
		r.handleStart(ctx, msg)
	case strings.HasPrefix(text, "/help"):
		r.handleHelp(chatID)
	case strings.HasPrefix(text, "/admin"):
		r.handleAdmin(msg)
	default:
		// Free-form text and photos feed the admin conversational flows.
		if r.cfg.IsAdmin(msg.From.ID) {
			r.handleAdminFreeForm(ctx, msg)
		}
	}
}

func (r *Router) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	data := cb.Data
	_ = r.client.AnswerCallback(cb.ID)

	if data == "verify" {
		r.handleVerify(ctx, cb)
		return
	}

	// Everything below is admin-only.
	if !r.cfg.IsAdmin(cb.From.ID) {
		return
	}
	chatID := cb.Message.Chat.ID

	switch {
	case data == "admin:stats":
		r.handleStats(ctx, chatID)
	case data == "admin:export":
		r.handleExport(ctx, chatID)
	case data == "admin:mailing":
		r.setPending(chatID, pendingMailingText)
		r.sendText(chatID, mailingAskTextText)
	case data == "mailing:skip_image":
		r.handleMailingImageSkipped(ctx, chatID, cb.From.ID)
	case strings.HasPrefix(data, "mailing:test:"):
		r.handleMailingTest(ctx, chatID, cb.From.ID, strings.TrimPrefix(data, "mailing:test:"))
	case strings.HasPrefix(data, "mailing:launch:"):
		r.handleMailingLaunch(ctx, chatID, cb.From.ID, strings.TrimPrefix(data, "mailing:launch:"))
	case strings.HasPrefix(data, "mailing:cancel:"):
		r.handleMailingDelete(ctx, chatID, strings.TrimPrefix(data, "mailing:cancel:"))
	case data == "admin:reminders":
		r.handleRemindersMenu(chatID)
	case strings.HasPrefix(data, "tier:"):
		r.handleTierSelected(ctx, chatID, strings.TrimPrefix(data, "tier:"))
	case data == "admin:link":
		r.setPending(chatID, pendingInviteLink)
		r.sendText(chatID, linkAskText)
	case data == "admin:clear":
		r.sendMarkup(chatID, clearConfirmText, clearConfirmKeyboard())
	case data == "clear:confirm":
		r.handleClearUsers(ctx, chatID)
	case data == "clear:cancel":
		r.sendText(chatID, clearCancelledText)
	default:
		// Unknown callback — ignore silently
	}
}

// sendText delivers a message, logging (not surfacing) transport failures.
func (r *Router) sendText(chatID int64, text string) {
	if err := r.client.SendText(chatID, text); err != nil {
		r.log.Error("send failed", zap.Error(err), zap.Int64("chatID", chatID))
	}
}

func (r *Router) sendMarkup(chatID int64, text string, markup any) {
	if err := r.client.SendMarkup(chatID, text, markup); err != nil {
		r.log.Error("send failed", zap.Error(err), zap.Int64("chatID", chatID))
	}
}
