package telegram

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"gatekeeper-bot/internal/domain"
)

// Button labels.
const (
	verifyButtonLabel   = "OK ✅"
	reminderButtonLabel = "OK 🔥"
	joinButtonLabel     = "🚀 Open the channel"
	skipButtonLabel     = "Skip ➡️"
)

// User-facing texts.
const (
	welcomeText = "👋 <b>Welcome!</b>\n\n" +
		"This bot delivers important updates and announcements.\n\n" +
		"Tap \"" + verifyButtonLabel + "\" below to register for notifications! 👇"

	greetingFallbackText = "👋 <b>Welcome to our channel!</b>\n\n" +
		"Glad to have you with us!\n\nStay tuned! 🎉"

	verifyPromptText = "Please confirm you are human by tapping the button below 👇"

	verifiedText = "✅ <b>Great!</b>\n\n" +
		"You are registered for notifications!"

	verifiedWithLinkText = verifiedText +
		"\n\nTap the button below to join the channel 👇"

	alreadyVerifiedText = "You are already registered ✅"

	verifyRetryText = "❌ Something went wrong. Please send /start and try again."

	helpText = "🤖 <b>Help</b>\n\n" +
		"/start — register for notifications\n" +
		"/help — show this message\n\n" +
		"The bot approves channel join requests automatically and keeps you " +
		"up to date with announcements."
)

// Admin texts.
const (
	adminMenuText          = "🛠 <b>Admin panel</b>\n\nChoose an action:"
	notAdminText           = "This command is only available to administrators."
	mailingAskTextText     = "✏️ Send the mailing text in a single message (HTML allowed):"
	mailingAskImageText    = "🖼 Send an image for the mailing, or skip:"
	mailingCreateFailText  = "❌ Could not create the mailing. Try again later."
	mailingDeletedText     = "🗑 Mailing deleted."
	reminderAskTierText    = "⏰ Which reminder do you want to edit?"
	reminderSavedText      = "✅ Reminder text updated."
	reminderSaveFailText   = "❌ Could not save the reminder text."
	linkAskText            = "🔗 Send the channel invite link (https://t.me/...):"
	linkInvalidText        = "❌ That does not look like a Telegram link. Expected https://t.me/..."
	linkSavedText          = "✅ Invite link saved."
	clearConfirmText       = "⚠️ <b>Delete ALL users?</b>\n\nThis clears the registry and every reminder flag. It cannot be undone."
	clearDoneText          = "🗑 Registry cleared."
	clearCancelledText     = "Cancelled."
	statsUnavailableText   = "❌ Could not load statistics."
	exportFailText         = "❌ Export failed."
	adminFailText          = "❌ Something went wrong. Try again."
)

func verifyKeyboard(label string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, "verify"),
		),
	)
}

func joinKeyboard(url string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonURL(joinButtonLabel, url),
		),
	)
}

func adminMenuKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📊 Statistics", "admin:stats"),
			tgbotapi.NewInlineKeyboardButtonData("📥 Export XLSX", "admin:export"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📨 New mailing", "admin:mailing"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("⏰ Reminder texts", "admin:reminders"),
			tgbotapi.NewInlineKeyboardButtonData("🔗 Invite link", "admin:link"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🗑 Clear users", "admin:clear"),
		),
	)
}

func skipImageKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(skipButtonLabel, "mailing:skip_image"),
		),
	)
}

func mailingPreviewKeyboard(mailingID int64) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🧪 Send test", fmt.Sprintf("mailing:test:%d", mailingID)),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🚀 Launch broadcast", fmt.Sprintf("mailing:launch:%d", mailingID)),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("❌ Delete", fmt.Sprintf("mailing:cancel:%d", mailingID)),
		),
	)
}

func tiersKeyboard(tiers []domain.ReminderTier) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(tiers))
	for _, tier := range tiers {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(tier.Name, "tier:"+tier.Name),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func clearConfirmKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("⚠️ Yes, delete everything", "clear:confirm"),
			tgbotapi.NewInlineKeyboardButtonData("Cancel", "clear:cancel"),
		),
	)
}
