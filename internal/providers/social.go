package providers

import (
	"context"

	"golang.org/x/time/rate"

	"alert-bulletin-service/internal/logging"
	"alert-bulletin-service/internal/models"
	"alert-bulletin-service/pkg/telegram"
)

// Poster publishes to a social page.
type Poster interface {
	SendMessage(ctx context.Context, target, text string) (int, error)
	SendPhoto(ctx context.Context, target, photoURL, caption string) (int, error)
}

// SocialAdapter publishes the bulletin on each target page. The first chart,
// when there is one, goes out as a photo ahead of the full text.
type SocialAdapter struct {
	base
	poster Poster
}

func NewSocialAdapter(poster Poster, linker Linker, limiter *rate.Limiter, logger *logging.Logger) *SocialAdapter {
	return &SocialAdapter{
		base:   base{channel: models.ChannelSocialPost, limiter: limiter, linker: linker, logger: logger},
		poster: poster,
	}
}

func socialCaption(b models.Bulletin) string {
	return truncate(b.Title+"\n\n"+joinTags(b.Hashtags), socialCaptionLimit)
}

func (a *SocialAdapter) Send(ctx context.Context, b models.Bulletin, target models.Target) models.ChannelResult {
	if res, done := a.precheck(a.poster != nil, target); done {
		return res
	}

	text := truncate(plainText(b), socialTextLimit)
	images := a.imageURLs(ctx, b)

	var outcomes []outcome
	for _, page := range recipients(target) {
		o := outcome{recipient: page}
		if _, err := telegram.ChatID(page); err != nil {
			o.err = invalidRecipient("%v", err)
		} else {
			o.err = a.post(ctx, page, text, b, images)
		}
		if o.err != nil {
			a.logger.WithFields(logging.Fields{"channel": a.channel, "page": page}).WithError(o.err).Warn("Social post failed")
		}
		outcomes = append(outcomes, o)
	}
	return tally(outcomes)
}

func (a *SocialAdapter) post(ctx context.Context, page, text string, b models.Bulletin, images []string) error {
	if len(images) > 0 {
		if err := a.wait(ctx); err != nil {
			return err
		}
		if _, err := a.poster.SendPhoto(ctx, page, images[0], socialCaption(b)); err != nil {
			return err
		}
	}
	if err := a.wait(ctx); err != nil {
		return err
	}
	_, err := a.poster.SendMessage(ctx, page, text)
	return err
}
