// Package notifier 负责向操作员发送消息。
package notifier

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// Notifier 向操作员发送纯文本消息
type Notifier interface {
	Send(ctx context.Context, text string) error
}

// sender 是用到的 *tgbotapi.BotAPI 方法
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram 把消息发送到指定的聊天
type Telegram struct {
	api    sender
	chatID int64
	logger *zap.Logger
}

// NewTelegram 使用 bot token 连接 Telegram API
func NewTelegram(token string, chatID int64, logger *zap.Logger) (*Telegram, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("init telegram bot: %w", err)
	}
	logger.Info("telegram notifier ready", zap.String("bot", api.Self.UserName), zap.Int64("chat_id", chatID))
	return &Telegram{api: api, chatID: chatID, logger: logger}, nil
}

// Send 把文本发送到配置的聊天
func (t *Telegram) Send(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := t.api.Send(tgbotapi.NewMessage(t.chatID, text)); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

// Log 只把消息写入日志，用于不需要联系操作员的场景
type Log struct {
	logger *zap.Logger
}

func NewLog(logger *zap.Logger) *Log {
	return &Log{logger: logger}
}

func (l *Log) Send(_ context.Context, text string) error {
	l.logger.Info("notification", zap.String("text", text))
	return nil
}
