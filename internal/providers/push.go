package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/segmentio/kafka-go"
	"golang.org/x/time/rate"

	"alert-bulletin-service/internal/logging"
	"alert-bulletin-service/internal/models"
)

// Publisher hands messages to the push gateway.
type Publisher interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// PushNotification is the message published for the push gateway. Recipient
// is a topic name or a device token.
type PushNotification struct {
	Recipient  string `json:"recipient"`
	Title      string `json:"title"`
	Body       string `json:"body"`
	BulletinID string `json:"bulletin_id"`
	Level      string `json:"level"`
	ImageURL   string `json:"image_url,omitempty"`
}

// PushAdapter publishes one notification per topic or device token.
type PushAdapter struct {
	base
	publisher Publisher
}

func NewPushAdapter(publisher Publisher, linker Linker, limiter *rate.Limiter, logger *logging.Logger) *PushAdapter {
	return &PushAdapter{
		base:      base{channel: models.ChannelPush, limiter: limiter, linker: linker, logger: logger},
		publisher: publisher,
	}
}

func pushContent(b models.Bulletin) (title, body string) {
	return truncate(singleLine(b.Title), pushTitleLimit), truncate(singleLine(b.AdvisoryText), pushBodyLimit)
}

func (a *PushAdapter) Send(ctx context.Context, b models.Bulletin, target models.Target) models.ChannelResult {
	if res, done := a.precheck(a.publisher != nil, target); done {
		return res
	}

	title, body := pushContent(b)
	var image string
	if images := a.imageURLs(ctx, b); len(images) > 0 {
		image = images[0]
	}

	to := recipients(target)
	msgs := make([]kafka.Message, 0, len(to))
	for _, r := range to {
		value, err := json.Marshal(PushNotification{
			Recipient:  r,
			Title:      title,
			Body:       body,
			BulletinID: b.ID.String(),
			Level:      string(b.Level),
			ImageURL:   image,
		})
		if err != nil {
			return models.ChannelResult{Status: models.StatusFailed, Detail: "encode push notification: " + err.Error()}
		}
		msgs = append(msgs, kafka.Message{Key: []byte(r), Value: value})
	}

	outcomes := make([]outcome, len(to))
	for i, r := range to {
		outcomes[i].recipient = r
	}

	err := a.wait(ctx)
	if err == nil {
		err = a.publisher.WriteMessages(ctx, msgs...)
	}
	if err != nil {
		var perMessage kafka.WriteErrors
		if errors.As(err, &perMessage) && len(perMessage) == len(outcomes) {
			for i, werr := range perMessage {
				outcomes[i].err = werr
			}
		} else {
			for i := range outcomes {
				outcomes[i].err = fmt.Errorf("%w: publish: %v", models.ErrTransientTransport, err)
			}
		}
		a.logger.WithFields(logging.Fields{"channel": a.channel, "bulletin_id": b.ID}).WithError(err).Warn("Push publish failed")
	}
	return tally(outcomes)
}
