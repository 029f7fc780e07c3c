package telegram

import (
	"context"
	"errors"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"gatekeeper-bot/internal/domain"
	"gatekeeper-bot/internal/store"
)

// handleStart registers the user (unverified) and shows the welcome message
// with the verification button. Reminders are (re)planned for anyone who has
// not verified yet; re-invocation replaces pending jobs rather than stacking
// them.
func (r *Router) handleStart(ctx context.Context, msg *tgbotapi.Message) {
	from := msg.From
	chatID := msg.Chat.ID

	u, err := r.ensureUser(ctx, from, chatID)
	if err != nil {
		r.log.Error("ensure user failed", zap.Error(err), zap.Int64("userID", from.ID))
		r.sendText(chatID, verifyRetryText)
		return
	}

	if !u.Subscribed {
		r.reminders.ScheduleAll(u.ID, u.ChatID)
	}

	r.sendMarkup(chatID, welcomeText, verifyKeyboard(verifyButtonLabel))
}

func (r *Router) handleHelp(chatID int64) {
	r.sendText(chatID, helpText)
}

// ensureUser loads the user, creating an unverified record on first contact.
// Profile fields of an existing user are refreshed; verification state is
// never touched here.
func (r *Router) ensureUser(ctx context.Context, from *tgbotapi.User, chatID int64) (*domain.User, error) {
	u, err := r.repo.GetUser(ctx, from.ID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	if u == nil {
		u = &domain.User{
			ID:        from.ID,
			CreatedAt: time.Now().UTC(),
		}
	}
	u.ChatID = chatID
	u.Username = from.UserName
	u.FirstName = from.FirstName
	u.LastName = from.LastName

	if err := r.repo.UpsertUser(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// handleVerify processes the human-verification button: mark subscribed,
// cancel all pending reminders, and hand out the channel invite link.
func (r *Router) handleVerify(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	userID := cb.From.ID
	chatID := cb.Message.Chat.ID
	messageID := cb.Message.MessageID

	u, err := r.repo.GetUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		r.log.Warn("verify from unknown user", zap.Int64("userID", userID))
		r.sendText(chatID, verifyRetryText)
		return
	}
	if err != nil {
		r.log.Error("load user failed", zap.Error(err), zap.Int64("userID", userID))
		r.sendText(chatID, verifyRetryText)
		return
	}

	if u.Subscribed {
		r.editText(chatID, messageID, alreadyVerifiedText)
		return
	}

	if err := r.repo.SetSubscribed(ctx, userID, time.Now().UTC()); err != nil {
		r.log.Error("set subscribed failed", zap.Error(err), zap.Int64("userID", userID))
		r.sendText(chatID, verifyRetryText)
		return
	}
	r.reminders.CancelAll(userID)
	r.log.Info("user verified", zap.Int64("userID", userID))

	// Verification sticks even when the link cannot be produced: the user
	// must not keep getting reminders because of a transport hiccup.
	if r.isChannelMember(userID) {
		r.editText(chatID, messageID, verifiedText)
		return
	}
	if link := r.inviteLink(ctx, userID); link != "" {
		if err := r.client.EditTextMarkup(chatID, messageID, verifiedWithLinkText, joinKeyboard(link)); err != nil {
			r.log.Error("edit failed", zap.Error(err), zap.Int64("chatID", chatID))
		}
		return
	}
	r.editText(chatID, messageID, verifiedText)
}

// isChannelMember reports whether the user already joined the channel; such a
// user gets no join button. Lookup failures count as not-a-member.
func (r *Router) isChannelMember(userID int64) bool {
	if r.cfg.ChannelID == 0 {
		return false
	}
	status, err := r.client.MemberStatus(r.cfg.ChannelID, userID)
	if err != nil {
		r.log.Warn("member status lookup failed", zap.Error(err), zap.Int64("userID", userID))
		return false
	}
	switch status {
	case "creator", "administrator", "member":
		return true
	}
	return false
}

// inviteLink returns the stored invite link, falling back to creating a
// personal one through the API. Empty string when neither works.
func (r *Router) inviteLink(ctx context.Context, userID int64) string {
	link, err := r.repo.Setting(ctx, store.SettingInviteLink)
	if err == nil && link != "" {
		return link
	}
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		r.log.Error("load invite link failed", zap.Error(err))
	}

	if r.cfg.ChannelID == 0 {
		return ""
	}
	created, err := r.client.CreateInviteLink(r.cfg.ChannelID, userID)
	if err != nil {
		r.log.Error("create invite link failed", zap.Error(err), zap.Int64("userID", userID))
		return ""
	}
	return created
}

// handleJoinRequest auto-approves a pending channel join request, registers
// the user and starts the verification funnel.
func (r *Router) handleJoinRequest(ctx context.Context, req *tgbotapi.ChatJoinRequest) {
	if r.cfg.ChannelID != 0 && req.Chat.ID != r.cfg.ChannelID {
		r.log.Info("join request for unknown chat ignored", zap.Int64("chatID", req.Chat.ID))
		return
	}

	userID := req.From.ID
	r.log.Info("join request received",
		zap.Int64("userID", userID), zap.String("username", req.From.UserName))

	if err := r.client.ApproveJoinRequest(req.Chat.ID, userID); err != nil {
		// Approval failures are transport errors; we still register the user
		// so the funnel can proceed once they talk to the bot.
		r.log.Error("approve join request failed", zap.Error(err), zap.Int64("userID", userID))
	}

	// Direct messages to a user go to the chat with their own id.
	u, err := r.ensureUser(ctx, &req.From, userID)
	if err != nil {
		r.log.Error("ensure user failed", zap.Error(err), zap.Int64("userID", userID))
		return
	}

	greeting, err := r.repo.Setting(ctx, store.SettingGreeting)
	if err != nil || greeting == "" {
		greeting = greetingFallbackText
	}
	r.sendText(u.ChatID, greeting)
	r.sendMarkup(u.ChatID, verifyPromptText, verifyKeyboard(verifyButtonLabel))

	if !u.Subscribed {
		r.reminders.ScheduleAll(u.ID, u.ChatID)
	}
}

func (r *Router) editText(chatID int64, messageID int, text string) {
	if err := r.client.EditText(chatID, messageID, text); err != nil {
		r.log.Error("edit failed", zap.Error(err), zap.Int64("chatID", chatID))
	}
}
