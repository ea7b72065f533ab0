package providers

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/time/rate"

	"alert-bulletin-service/internal/logging"
	"alert-bulletin-service/internal/models"
	"alert-bulletin-service/pkg/sms"
)

// Texter sends one chat message to one phone number.
type Texter interface {
	Send(toNumber, body string, mediaURLs []string) (string, error)
}

// ChatAdapter broadcasts a single-line summary to every phone number.
type ChatAdapter struct {
	base
	texter Texter
}

func NewChatAdapter(texter Texter, linker Linker, limiter *rate.Limiter, logger *logging.Logger) *ChatAdapter {
	return &ChatAdapter{
		base:   base{channel: models.ChannelChatBroadcast, limiter: limiter, linker: linker, logger: logger},
		texter: texter,
	}
}

func chatBody(b models.Bulletin) string {
	return truncate(singleLine(b.Title+". "+b.AdvisoryText+" "+joinTags(b.Hashtags)), chatBodyLimit)
}

func (a *ChatAdapter) Send(ctx context.Context, b models.Bulletin, target models.Target) models.ChannelResult {
	if res, done := a.precheck(a.texter != nil, target); done {
		return res
	}

	body := chatBody(b)
	var media []string
	if images := a.imageURLs(ctx, b); len(images) > 0 {
		media = images[:1]
	}

	var outcomes []outcome
	for _, number := range recipients(target) {
		o := outcome{recipient: number}
		switch {
		case !sms.ValidNumber(number):
			o.err = invalidRecipient("invalid phone number")
		default:
			if o.err = a.wait(ctx); o.err == nil {
				_, o.err = a.texter.Send(number, body, media)
				o.err = twilioFailure(o.err)
			}
		}
		if o.err != nil {
			a.logger.WithFields(logging.Fields{"channel": a.channel, "recipient": number}).WithError(o.err).Warn("Chat broadcast failed")
		}
		outcomes = append(outcomes, o)
	}
	return tally(outcomes)
}

// twilioFailure classes a Twilio rejection. Throttling, server errors and
// errors without an API status stay unclassified and count as transport failures.
func twilioFailure(err error) error {
	if err == nil || sms.Retryable(err) {
		return err
	}
	status, ok := sms.RestStatus(err)
	switch {
	case !ok:
		return err
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%w: %v", models.ErrConfiguration, err)
	default:
		return fmt.Errorf("%w: %v", models.ErrValidation, err)
	}
}
