package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"gatekeeper-bot/internal/domain"
	"gatekeeper-bot/internal/store"
)

// handleAdmin shows the admin panel menu.
func (r *Router) handleAdmin(msg *tgbotapi.Message) {
	if !r.cfg.IsAdmin(msg.From.ID) {
		r.sendText(msg.Chat.ID, notAdminText)
		return
	}
	r.sendMarkup(msg.Chat.ID, adminMenuText, adminMenuKeyboard())
}

// handleAdminFreeForm feeds free-form admin input (text or photo) into
// whichever conversational flow is pending for the chat.
func (r *Router) handleAdminFreeForm(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	pending := r.getPending(chatID)

	switch {
	case pending == pendingMailingText && msg.Text != "":
		r.setDraft(chatID, msg.Text)
		r.setPending(chatID, pendingMailingImage)
		r.sendMarkup(chatID, mailingAskImageText, skipImageKeyboard())

	case pending == pendingMailingImage && len(msg.Photo) > 0:
		// The last photo size is the largest.
		fileID := msg.Photo[len(msg.Photo)-1].FileID
		r.finishMailingDraft(ctx, chatID, msg.From.ID, fileID)

	case strings.HasPrefix(pending, pendingReminderPrefix) && msg.Text != "":
		tier := strings.TrimPrefix(pending, pendingReminderPrefix)
		r.clearPending(chatID)
		if err := r.repo.SetReminderText(ctx, tier, msg.Text); err != nil {
			r.log.Error("save reminder text failed", zap.Error(err), zap.String("tier", tier))
			r.sendText(chatID, reminderSaveFailText)
			return
		}
		r.sendText(chatID, reminderSavedText)

	case pending == pendingInviteLink && msg.Text != "":
		r.clearPending(chatID)
		link := strings.TrimSpace(msg.Text)
		if !strings.HasPrefix(link, "https://t.me/") {
			r.sendText(chatID, linkInvalidText)
			return
		}
		if err := r.repo.SetSetting(ctx, store.SettingInviteLink, link); err != nil {
			r.log.Error("save invite link failed", zap.Error(err))
			r.sendText(chatID, adminFailText)
			return
		}
		r.sendText(chatID, linkSavedText)

	default:
		// No pending flow: ignore free-form input
	}
}

// handleMailingImageSkipped finishes the draft as a text-only mailing.
func (r *Router) handleMailingImageSkipped(ctx context.Context, chatID, adminID int64) {
	if r.getPending(chatID) != pendingMailingImage {
		return
	}
	r.finishMailingDraft(ctx, chatID, adminID, "")
}

// finishMailingDraft persists the mailing and shows the preview menu.
func (r *Router) finishMailingDraft(ctx context.Context, chatID, adminID int64, imageFileID string) {
	r.clearPending(chatID)
	text := r.takeDraft(chatID)
	if text == "" {
		r.sendText(chatID, mailingCreateFailText)
		return
	}

	id, err := r.mailings.Create(ctx, text, imageFileID, adminID)
	if err != nil {
		r.sendText(chatID, mailingCreateFailText)
		return
	}

	preview := fmt.Sprintf("📨 <b>Mailing #%d created</b>\n\n%s", id, text)
	if imageFileID != "" {
		preview += "\n\n🖼 With image"
	}
	r.sendMarkup(chatID, preview, mailingPreviewKeyboard(id))
}

func (r *Router) handleMailingTest(ctx context.Context, chatID, adminID int64, rawID string) {
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		return
	}
	_, outcome := r.mailings.SendTest(ctx, id, adminID)
	r.sendText(chatID, outcome)
}

func (r *Router) handleMailingLaunch(ctx context.Context, chatID, adminID int64, rawID string) {
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		return
	}
	ok, _, total := r.mailings.Launch(ctx, id, adminID)
	if !ok {
		r.sendText(chatID, fmt.Sprintf(
			"❌ Could not start broadcast #%d: it is already running or already sent.", id))
		return
	}
	r.sendText(chatID, fmt.Sprintf(
		"🚀 Broadcast #%d started for <b>%d</b> users. You will be notified when it finishes.",
		id, total))
}

func (r *Router) handleMailingDelete(ctx context.Context, chatID int64, rawID string) {
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		return
	}
	if err := r.mailings.Delete(ctx, id); err != nil {
		r.log.Error("delete mailing failed", zap.Error(err), zap.Int64("mailingID", id))
		return
	}
	r.sendText(chatID, mailingDeletedText)
}

func (r *Router) handleStats(ctx context.Context, chatID int64) {
	sum, err := r.stats.Summary(ctx)
	if err != nil {
		r.log.Error("stats summary failed", zap.Error(err))
		r.sendText(chatID, statsUnavailableText)
		return
	}
	convs, err := r.stats.Conversions(ctx)
	if err != nil {
		r.log.Error("stats conversions failed", zap.Error(err))
		r.sendText(chatID, statsUnavailableText)
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📊 <b>Statistics</b>\n\n")
	fmt.Fprintf(&b, "Users: <b>%d</b>\n", sum.TotalUsers)
	fmt.Fprintf(&b, "Verified: <b>%d</b> (%.1f%%)\n", sum.Subscribed, sum.SubscribedRate)
	fmt.Fprintf(&b, "Unverified: <b>%d</b>\n\n", sum.Unsubscribed)
	fmt.Fprintf(&b, "New today: %d | week: %d | month: %d\n\n", sum.Today, sum.Week, sum.Month)
	b.WriteString("<b>Reminders</b>\n")
	for _, conv := range convs {
		fmt.Fprintf(&b, "%s: sent %d, verified after %d\n",
			conv.Tier, conv.Sent, conv.SubscribedAfter)
	}

	r.sendText(chatID, b.String())
}

func (r *Router) handleExport(ctx context.Context, chatID int64) {
	path, err := r.stats.ExportXLSX(ctx)
	if err != nil {
		r.log.Error("export failed", zap.Error(err))
		r.sendText(chatID, exportFailText)
		return
	}
	if err := r.client.SendDocument(chatID, path); err != nil {
		r.log.Error("send export failed", zap.Error(err), zap.String("path", path))
		r.sendText(chatID, exportFailText)
	}
}

func (r *Router) handleRemindersMenu(chatID int64) {
	r.sendMarkup(chatID, reminderAskTierText, tiersKeyboard(domain.Tiers()))
}

func (r *Router) handleTierSelected(ctx context.Context, chatID int64, tier string) {
	current, err := r.repo.ReminderText(ctx, tier)
	if err != nil {
		r.log.Error("load reminder text failed", zap.Error(err), zap.String("tier", tier))
	}
	r.setPending(chatID, pendingReminderPrefix+tier)
	prompt := fmt.Sprintf("✏️ Send the new text for <b>%s</b>.", tier)
	if current != "" {
		prompt += "\n\nCurrent text:\n" + current
	}
	r.sendText(chatID, prompt)
}

func (r *Router) handleClearUsers(ctx context.Context, chatID int64) {
	if err := r.repo.DeleteAllUsers(ctx); err != nil {
		r.log.Error("clear users failed", zap.Error(err))
		r.sendText(chatID, adminFailText)
		return
	}
	r.log.Warn("user registry cleared by admin", zap.Int64("chatID", chatID))
	r.sendText(chatID, clearDoneText)
}
