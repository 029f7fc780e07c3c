package telegram

import (
	"encoding/json"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// Client wraps the Bot API with the send operations the rest of the app
// needs. It implements reminder.Sender and mailing.Sender.
type Client struct {
	bot *tgbotapi.BotAPI
	log *zap.Logger
}

// NewClient creates a transport client over an authorized bot.
func NewClient(bot *tgbotapi.BotAPI, log *zap.Logger) *Client {
	return &Client{bot: bot, log: log}
}

// SendText sends an HTML-formatted text message.
func (c *Client) SendText(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	_, err := c.bot.Send(msg)
	return err
}

// SendMarkup sends an HTML-formatted text message with a keyboard attached.
func (c *Client) SendMarkup(chatID int64, text string, markup any) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = markup
	_, err := c.bot.Send(msg)
	return err
}

// SendReminder sends a reminder with the inline verification button attached.
func (c *Client) SendReminder(chatID int64, text string) error {
	return c.SendMarkup(chatID, text, verifyKeyboard(reminderButtonLabel))
}

// SendPhoto sends a photo by Telegram file id with an HTML caption.
func (c *Client) SendPhoto(chatID int64, fileID, caption string) error {
	msg := tgbotapi.NewPhoto(chatID, tgbotapi.FileID(fileID))
	msg.Caption = caption
	msg.ParseMode = tgbotapi.ModeHTML
	_, err := c.bot.Send(msg)
	return err
}

// SendDocument sends a local file as a document.
func (c *Client) SendDocument(chatID int64, path string) error {
	msg := tgbotapi.NewDocument(chatID, tgbotapi.FilePath(path))
	_, err := c.bot.Send(msg)
	return err
}

// EditText replaces the text of a previously sent message.
func (c *Client) EditText(chatID int64, messageID int, text string) error {
	msg := tgbotapi.NewEditMessageText(chatID, messageID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	_, err := c.bot.Send(msg)
	return err
}

// EditTextMarkup replaces the text of a previously sent message and attaches
// an inline keyboard.
func (c *Client) EditTextMarkup(chatID int64, messageID int, text string, markup tgbotapi.InlineKeyboardMarkup) error {
	msg := tgbotapi.NewEditMessageTextAndMarkup(chatID, messageID, text, markup)
	msg.ParseMode = tgbotapi.ModeHTML
	_, err := c.bot.Send(msg)
	return err
}

// AnswerCallback acknowledges an inline button press.
func (c *Client) AnswerCallback(id string) error {
	_, err := c.bot.Request(tgbotapi.NewCallback(id, ""))
	return err
}

// ApproveJoinRequest approves a pending request to join the channel.
func (c *Client) ApproveJoinRequest(chatID, userID int64) error {
	_, err := c.bot.Request(tgbotapi.ApproveChatJoinRequestConfig{
		ChatConfig: tgbotapi.ChatConfig{ChatID: chatID},
		UserID:     userID,
	})
	return err
}

// MemberStatus returns the user's membership status in the channel
// (member, administrator, creator, left, kicked).
func (c *Client) MemberStatus(chatID, userID int64) (string, error) {
	member, err := c.bot.GetChatMember(tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{ChatID: chatID, UserID: userID},
	})
	if err != nil {
		return "", err
	}
	return member.Status, nil
}

// CreateInviteLink creates a single-use personal invite link to the channel.
func (c *Client) CreateInviteLink(chatID, userID int64) (string, error) {
	resp, err := c.bot.Request(tgbotapi.CreateChatInviteLinkConfig{
		ChatConfig:  tgbotapi.ChatConfig{ChatID: chatID},
		Name:        fmt.Sprintf("User_%d", userID),
		MemberLimit: 1,
	})
	if err != nil {
		return "", err
	}
	var link tgbotapi.ChatInviteLink
	if err := json.Unmarshal(resp.Result, &link); err != nil {
		return "", fmt.Errorf("decode invite link: %w", err)
	}
	return link.InviteLink, nil
}
