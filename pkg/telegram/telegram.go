package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
)

type botAPI interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*tgmodels.Message, error)
	SendPhoto(ctx context.Context, params *bot.SendPhotoParams) (*tgmodels.Message, error)
}

// Client posts to Telegram channels and groups through the Bot API.
type Client struct {
	bot botAPI
}

func New(token string) (*Client, error) {
	b, err := bot.New(token, bot.WithSkipGetMe())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Telegram bot: %w", err)
	}
	return &Client{bot: b}, nil
}

// ChatID converts "@channel" or a numeric id to what the Bot API expects.
func ChatID(target string) (any, error) {
	target = strings.TrimSpace(target)
	if strings.HasPrefix(target, "@") && len(target) > 1 {
		return target, nil
	}
	id, err := strconv.ParseInt(target, 10, 64)
	if err != nil || id == 0 {
		return nil, fmt.Errorf("invalid chat id: %q", target)
	}
	return id, nil
}

// SendMessage posts text and returns the message id.
func (c *Client) SendMessage(ctx context.Context, target, text string) (int, error) {
	chatID, err := ChatID(target)
	if err != nil {
		return 0, err
	}
	msg, err := c.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: chatID,
		Text:   text,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to send Telegram message to %s: %w", target, err)
	}
	return msg.ID, nil
}

// SendPhoto posts an image by URL with a caption and returns the message id.
func (c *Client) SendPhoto(ctx context.Context, target, photoURL, caption string) (int, error) {
	chatID, err := ChatID(target)
	if err != nil {
		return 0, err
	}
	msg, err := c.bot.SendPhoto(ctx, &bot.SendPhotoParams{
		ChatID:  chatID,
		Photo:   &tgmodels.InputFileString{Data: photoURL},
		Caption: caption,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to send Telegram photo to %s: %w", target, err)
	}
	return msg.ID, nil
}
