package chat

import (
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Telegram implements Chat over the Telegram Bot API.
type Telegram struct {
	api    *tgbotapi.BotAPI
	logger *slog.Logger
}

// NewTelegram authenticates against the Bot API with the given token.
func NewTelegram(token string, logger *slog.Logger) (*Telegram, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("authenticate bot: %w", err)
	}
	logger.Info("telegram bot authenticated", "username", api.Self.UserName)
	return &Telegram{api: api, logger: logger.With("component", "telegram")}, nil
}

// Updates returns the long-polling update channel.
func (t *Telegram) Updates() tgbotapi.UpdatesChannel {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	return t.api.GetUpdatesChan(u)
}

// StopUpdates stops the long-polling loop.
func (t *Telegram) StopUpdates() {
	t.api.StopReceivingUpdates()
}

// AnswerCallback acknowledges a callback query so the client stops spinning.
func (t *Telegram) AnswerCallback(callbackID string) {
	if _, err := t.api.Request(tgbotapi.NewCallback(callbackID, "")); err != nil {
		t.logger.Warn("answer callback failed", "error", err)
	}
}

func keyboard(buttons [][]Button) *tgbotapi.InlineKeyboardMarkup {
	if len(buttons) == 0 {
		return nil
	}
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(buttons))
	for _, row := range buttons {
		r := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			r = append(r, tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Data))
		}
		rows = append(rows, r)
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &markup
}

func (t *Telegram) Notify(chatID int64, text string, buttons [][]Button) (Handle, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	if kb := keyboard(buttons); kb != nil {
		msg.ReplyMarkup = kb
	}
	sent, err := t.api.Send(msg)
	if err != nil {
		return Handle{}, fmt.Errorf("send message: %w", err)
	}
	return Handle{ChatID: chatID, MessageID: sent.MessageID}, nil
}

func (t *Telegram) EditStatus(h Handle, text string, buttons [][]Button) error {
	edit := tgbotapi.NewEditMessageText(h.ChatID, h.MessageID, text)
	edit.ReplyMarkup = keyboard(buttons)
	if _, err := t.api.Send(edit); err != nil {
		return fmt.Errorf("edit message %d: %w", h.MessageID, err)
	}
	return nil
}

func (t *Telegram) SendImage(chatID int64, name string, image []byte, caption string, buttons [][]Button) (Handle, error) {
	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileBytes{Name: name, Bytes: image})
	photo.Caption = caption
	if kb := keyboard(buttons); kb != nil {
		photo.ReplyMarkup = kb
	}
	sent, err := t.api.Send(photo)
	if err != nil {
		return Handle{}, fmt.Errorf("send photo: %w", err)
	}
	return Handle{ChatID: chatID, MessageID: sent.MessageID}, nil
}

func (t *Telegram) SendImageURL(chatID int64, imageURL, caption string, buttons [][]Button) (Handle, error) {
	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileURL(imageURL))
	photo.Caption = caption
	if kb := keyboard(buttons); kb != nil {
		photo.ReplyMarkup = kb
	}
	sent, err := t.api.Send(photo)
	if err != nil {
		return Handle{}, fmt.Errorf("send photo: %w", err)
	}
	return Handle{ChatID: chatID, MessageID: sent.MessageID}, nil
}

func (t *Telegram) EditImage(h Handle, name string, image []byte, buttons [][]Button) error {
	media := tgbotapi.NewInputMediaPhoto(tgbotapi.FileBytes{Name: name, Bytes: image})
	edit := tgbotapi.EditMessageMediaConfig{
		BaseEdit: tgbotapi.BaseEdit{
			ChatID:    h.ChatID,
			MessageID: h.MessageID,
		},
		Media: media,
	}
	if kb := keyboard(buttons); kb != nil {
		edit.ReplyMarkup = kb
	}
	if _, err := t.api.Request(edit); err != nil {
		return fmt.Errorf("edit photo %d: %w", h.MessageID, err)
	}
	return nil
}

func (t *Telegram) DeleteMessage(h Handle) error {
	if _, err := t.api.Request(tgbotapi.NewDeleteMessage(h.ChatID, h.MessageID)); err != nil {
		return fmt.Errorf("delete message %d: %w", h.MessageID, err)
	}
	return nil
}
